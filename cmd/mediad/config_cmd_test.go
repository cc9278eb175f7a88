// SPDX-License-Identifier: MIT

package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigInit(t *testing.T) {
	t.Setenv("MEDIAD_DATA_DIR", t.TempDir())
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	code, out, errOut := runCLI(t, "config", "init", "-f", path)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "wrote "+path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "listenAddr")
	assert.NotContains(t, string(data), "dataDir")

	code, _, errOut = runCLI(t, "config", "init", "-f", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "already exists")

	code, _, _ = runCLI(t, "config", "init", "-f", path, "--force")
	assert.Equal(t, 0, code)

	code, out, errOut = runCLI(t, "config", "validate", "-f", path)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "is valid")
}

func TestConfigValidate_Rejects(t *testing.T) {
	t.Setenv("MEDIAD_DATA_DIR", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bogusKey: 1\n"), 0o600))

	code, _, errOut := runCLI(t, "config", "validate", "--file", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "Configuration error")
}

func TestConfigDump_JSON(t *testing.T) {
	t.Setenv("MEDIAD_DATA_DIR", t.TempDir())
	t.Setenv("MEDIAD_LISTEN_ADDR", "127.0.0.1:9999")

	code, out, errOut := runCLI(t, "config", "dump", "--format", "json")
	require.Equal(t, 0, code, errOut)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "127.0.0.1:9999", decoded["ListenAddr"])
}

func TestConfigCLI_Usage(t *testing.T) {
	code, _, errOut := runCLI(t, "config")
	assert.Equal(t, 0, code)
	assert.Contains(t, errOut, "Usage:")

	code, _, errOut = runCLI(t, "config", "frobnicate")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "Unknown subcommand: frobnicate")

	code, _, _ = runCLI(t, "config", "dump", "--format", "toml")
	assert.Equal(t, 2, code)
}

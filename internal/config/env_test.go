// SPDX-License-Identifier: MIT

package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ManuGH/mediad/internal/log"
)

func TestParseString(t *testing.T) {
	tests := []struct {
		name   string
		value  string
		envSet bool
		want   string
	}{
		{name: "environment variable set", value: "from-env", envSet: true, want: "from-env"},
		{name: "environment variable not set", want: "default"},
		{name: "environment variable empty string", value: "", envSet: true, want: "default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envSet {
				t.Setenv("MEDIAD_TEST_STRING", tt.value)
			}
			assert.Equal(t, tt.want, ParseString("MEDIAD_TEST_STRING", "default"))
		})
	}
}

func TestParseInt(t *testing.T) {
	t.Setenv("MEDIAD_TEST_INT", "42")
	assert.Equal(t, 42, ParseInt("MEDIAD_TEST_INT", 7))

	t.Setenv("MEDIAD_TEST_INT", "forty-two")
	assert.Equal(t, 7, ParseInt("MEDIAD_TEST_INT", 7))

	assert.Equal(t, 7, ParseInt("MEDIAD_TEST_INT_UNSET", 7))
}

func TestParseDuration(t *testing.T) {
	t.Setenv("MEDIAD_TEST_DURATION", "1500ms")
	assert.Equal(t, 1500*time.Millisecond, ParseDuration("MEDIAD_TEST_DURATION", time.Second))

	t.Setenv("MEDIAD_TEST_DURATION", "90")
	assert.Equal(t, time.Second, ParseDuration("MEDIAD_TEST_DURATION", time.Second))
}

func TestParseBool(t *testing.T) {
	tests := map[string]bool{
		"true": true, "TRUE": true, "1": true, "yes": true,
		"false": false, "0": false, "No": false,
		"maybe": true, // invalid keeps the default
	}
	for value, want := range tests {
		t.Run(value, func(t *testing.T) {
			t.Setenv("MEDIAD_TEST_BOOL", value)
			assert.Equal(t, want, ParseBool("MEDIAD_TEST_BOOL", true))
		})
	}
}

func TestParseFloat(t *testing.T) {
	t.Setenv("MEDIAD_TEST_FLOAT", "0.25")
	assert.InDelta(t, 0.25, ParseFloat("MEDIAD_TEST_FLOAT", 1), 1e-9)
}

func TestParseList(t *testing.T) {
	def := []string{"a"}
	assert.Equal(t, def, ParseList("MEDIAD_TEST_LIST_UNSET", def))

	t.Setenv("MEDIAD_TEST_LIST", " , ")
	assert.Equal(t, def, ParseList("MEDIAD_TEST_LIST", def))

	t.Setenv("MEDIAD_TEST_LIST", "mp4, mkv,,webm ")
	assert.Equal(t, []string{"mp4", "mkv", "webm"}, ParseList("MEDIAD_TEST_LIST", def))
}

func TestParseList_LogsEnvironmentSource(t *testing.T) {
	var buf bytes.Buffer
	log.Configure(log.Config{Level: "debug", Output: &buf})
	t.Cleanup(func() { log.Configure(log.Config{Level: "info"}) })

	t.Setenv("MEDIAD_TEST_LIST", "mp4,mkv")
	assert.Equal(t, []string{"mp4", "mkv"}, ParseList("MEDIAD_TEST_LIST", nil))

	out := buf.String()
	assert.Contains(t, out, `"key":"MEDIAD_TEST_LIST"`)
	assert.Contains(t, out, `"source":"environment"`)
	assert.Contains(t, out, `"component":"config"`)
}

// SPDX-License-Identifier: MIT

package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ManuGH/mediad/internal/config"
	"github.com/ManuGH/mediad/internal/version"
)

func runConfigCLI(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printConfigUsage(stderr)
		return 0
	}

	switch args[0] {
	case "init":
		return runConfigInit(args[1:], stdout, stderr)
	case "validate":
		return runConfigValidate(args[1:], stdout, stderr)
	case "dump":
		return runConfigDump(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown subcommand: %s\n\n", args[0])
		printConfigUsage(stderr)
		return 2
	}
}

func printConfigUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  mediad config init [--file|-f config.yaml] [--force]")
	fmt.Fprintln(w, "  mediad config validate [--file|-f config.yaml]")
	fmt.Fprintln(w, "  mediad config dump [--file|-f config.yaml] [--format=yaml|json]")
}

// runConfigInit writes the default configuration atomically.
func runConfigInit(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("mediad config init", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var file string
	var force bool
	fs.StringVar(&file, "file", "", "path of the configuration file to create")
	fs.StringVar(&file, "f", "", "path of the configuration file to create (shorthand)")
	fs.BoolVar(&force, "force", false, "overwrite an existing file")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	defaults := config.Defaults()
	path := strings.TrimSpace(file)
	if path == "" {
		path = filepath.Join(defaults.DataDir, "config.yaml")
	}

	fileCfg := config.ToFileConfig(defaults)
	// The data directory follows the machine, not the file.
	fileCfg.DataDir = ""
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		fmt.Fprintf(stderr, "Failed to create %s: %v\n", filepath.Dir(path), err)
		return 1
	}
	if err := config.WriteFile(path, fileCfg, force); err != nil {
		if errors.Is(err, config.ErrExists) {
			fmt.Fprintf(stderr, "Error: %s already exists (use --force to overwrite)\n", path)
			return 1
		}
		fmt.Fprintf(stderr, "Failed to write %s: %v\n", path, err)
		return 1
	}

	fmt.Fprintf(stdout, "wrote %s\n", path)
	return 0
}

func runConfigValidate(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("mediad config validate", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var file string
	fs.StringVar(&file, "file", "", "path to YAML configuration file")
	fs.StringVar(&file, "f", "", "path to YAML configuration file (shorthand)")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	configPath := strings.TrimSpace(file)
	if configPath == "" {
		configPath = resolveDefaultConfigPath()
	}
	if configPath == "" {
		fmt.Fprintln(stderr, "Error: --file is required (no config.yaml found in the data directory)")
		return 2
	}

	if _, err := config.NewLoader(configPath, version.Version).Load(); err != nil {
		fmt.Fprintf(stderr, "Configuration error in %s:\n  %v\n", configPath, err)
		return 1
	}

	fmt.Fprintf(stdout, "%s is valid\n", configPath)
	return 0
}

// runConfigDump prints the effective configuration (defaults, file and env).
func runConfigDump(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("mediad config dump", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var file string
	var format string
	fs.StringVar(&file, "file", "", "path to YAML configuration file")
	fs.StringVar(&file, "f", "", "path to YAML configuration file (shorthand)")
	fs.StringVar(&format, "format", "yaml", "output format: yaml or json")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	configPath := strings.TrimSpace(file)
	if configPath == "" {
		configPath = resolveDefaultConfigPath()
	}

	cfg, err := config.NewLoader(configPath, version.Version).Load()
	if err != nil {
		fmt.Fprintf(stderr, "Configuration error in %s:\n  %v\n", configPath, err)
		return 1
	}
	fileCfg := config.ToFileConfig(cfg)

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "yaml", "yml":
		if err := config.Encode(stdout, fileCfg); err != nil {
			fmt.Fprintf(stderr, "Failed to encode YAML: %v\n", err)
			return 1
		}
		return 0
	case "json":
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(fileCfg); err != nil {
			fmt.Fprintf(stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	default:
		fmt.Fprintf(stderr, "Unsupported format: %s (use yaml or json)\n", format)
		return 2
	}
}

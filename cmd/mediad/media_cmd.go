package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/ManuGH/mediad/internal/config"
	"github.com/ManuGH/mediad/internal/delivery"
	xglog "github.com/ManuGH/mediad/internal/log"
	"github.com/ManuGH/mediad/internal/media/probe"
	"github.com/ManuGH/mediad/internal/media/reference"
	"github.com/ManuGH/mediad/internal/version"
)

// loadCLIConfig loads the configuration for one-shot commands and keeps
// their logging on stderr at warn level.
func loadCLIConfig(configPath string, stderr io.Writer) (config.AppConfig, error) {
	xglog.Configure(xglog.Config{Level: "warn", Output: stderr, Service: "mediad", Version: version.Version})
	path := strings.TrimSpace(configPath)
	if path == "" {
		path = resolveDefaultConfigPath()
	}
	return config.NewLoader(path, version.Version).Load()
}

func writeIndentedJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// runResolveCLI prints how a reference would be delivered.
func runResolveCLI(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("mediad resolve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to config file (YAML)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "Usage: mediad resolve [--config file] <reference>")
		return 2
	}

	cfg, err := loadCLIConfig(*configPath, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Configuration error: %v\n", err)
		return 1
	}

	prober := probe.New(cfg.FFmpeg.FFprobeBin, cfg.FFmpeg.ProbeTimeout)
	d := delivery.NewDispatcher(prober, nil, cfg.Delivery, delivery.WithPlatform(reference.HostPlatform()))
	res, err := d.Resolve(context.Background(), fs.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if err := writeIndentedJSON(stdout, res); err != nil {
		fmt.Fprintf(stderr, "Failed to encode JSON: %v\n", err)
		return 1
	}
	return 0
}

// runProbeCLI prints the streams of a reference.
func runProbeCLI(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("mediad probe", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to config file (YAML)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "Usage: mediad probe [--config file] <reference>")
		return 2
	}

	cfg, err := loadCLIConfig(*configPath, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Configuration error: %v\n", err)
		return 1
	}

	ref := reference.NormalizeFor(fs.Arg(0), reference.HostPlatform())
	res, err := probe.New(cfg.FFmpeg.FFprobeBin, cfg.FFmpeg.ProbeTimeout).Probe(context.Background(), ref)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if err := writeIndentedJSON(stdout, res); err != nil {
		fmt.Fprintf(stderr, "Failed to encode JSON: %v\n", err)
		return 1
	}
	return 0
}

// runOpenCLI turns launch arguments into the app-scheme reference to load,
// the way a desktop shell hands files to the player.
func runOpenCLI(args []string, stdout, stderr io.Writer) int {
	ref, ok := reference.FirstLaunchReference(args)
	if !ok {
		fmt.Fprintln(stderr, "Error: no media file or "+reference.AppScheme+":// reference in arguments")
		return 1
	}
	fmt.Fprintln(stdout, ref)
	return 0
}

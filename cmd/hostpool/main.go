// hostpool runs and exercises per-key outbound connection pools.
//
// Usage:
//
//	hostpool [flags] serve
//	hostpool [flags] probe [probe flags] <host:port>
//
// Flags:
//
//	-config string
//	    Path to a .toml or .yaml configuration file (default "~/.hostpool/config.toml")
//	-v
//	    Enable verbose logging
//	-version
//	    Print version and exit
//
// The serve command keeps a pool registry running and exposes /metrics,
// /stats and /version on the debug listener. The probe command dials a
// target repeatedly through the pool and reports how many connections
// were reused.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-i2p/hostpool/lib/client"
	"github.com/go-i2p/hostpool/lib/config"
	apperrors "github.com/go-i2p/hostpool/lib/errors"
	"github.com/go-i2p/hostpool/lib/metrics"
	"github.com/go-i2p/hostpool/lib/registry"
	"github.com/go-i2p/hostpool/lib/sockets"
	"github.com/go-i2p/hostpool/version"
)

// exitConfig is the sysexits code for a bad configuration file.
const exitConfig = 78

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	defaultConfigPath := filepath.Join(homeDir, ".hostpool", "config.toml")

	fs := flag.NewFlagSet("hostpool", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to configuration file (.toml, .yaml)")
	verbose := fs.Bool("v", false, "Enable verbose logging")
	showVersion := fs.Bool("version", false, "Print version and exit")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "hostpool - per-key outbound connection pools\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n")
		fmt.Fprintf(os.Stderr, "  hostpool [flags] serve                 Run pools with the debug endpoint\n")
		fmt.Fprintf(os.Stderr, "  hostpool [flags] probe <host:port>     Dial a target through the pool\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *showVersion {
		fmt.Printf("hostpool version %s\n", version.Full())
		return 0
	}

	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return 2
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Error("failed to load config", "path", *configPath, "error", err)
		if apperrors.IsConfiguration(err) {
			return exitConfig
		}
		return 1
	}

	switch rest[0] {
	case "serve":
		return handleServe(cfg, logger)
	case "probe":
		return handleProbe(rest[1:], cfg, logger)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", rest[0])
		fs.Usage()
		return 2
	}
}

// newRegistry builds the registry and dialer described by cfg.
func newRegistry(cfg *config.Config) (*registry.Registry, *client.Dialer, error) {
	opts, err := cfg.Options()
	if err != nil {
		return nil, nil, err
	}
	policy, err := cfg.Policy()
	if err != nil {
		return nil, nil, err
	}

	adapter := sockets.New(sockets.Options{KeepAlivePeriod: cfg.KeepAlive()})
	reg := registry.New(opts, policy, adapter)
	dialer := client.New(reg, cfg.ClientConfig())
	metrics.RecordStartTime()
	return reg, dialer, nil
}

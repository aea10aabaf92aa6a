package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/pokt-network/poktroll/pkg/polylog"
	"github.com/pokt-network/poktroll/pkg/polylog/polyzero"

	configpkg "github.com/georgex8001/voting-fun/config"
)

// Version information injected at build time via ldflags
var (
	Version   string
	Commit    string
	BuildDate string
)

// defaultConfigPath will be appended to the location of
// the executable to get the full path to the config file.
const defaultConfigPath = "config/.config.yaml"

func main() {
	os.Exit(run())
}

func run() int {
	// Get the config path and the command to run
	configPath, args, err := parseFlags(defaultConfigPath)
	if err != nil {
		log.Printf(`{"level":"fatal","error":"%v","message":"failed to get config path"}`, err)
		return 1
	}

	// Load the config
	config, err := configpkg.LoadClientConfigFromYAML(configPath)
	if err != nil {
		log.Printf(`{"level":"info","error":"%v","message":"failed to load config from filepath %v. trying environment variables..."}`, err, configPath)
		conf, err := configpkg.LoadClientConfigFromEnv()
		if err != nil {
			log.Printf(`{"level":"fatal","error":"%v","message":"failed to load config from environment variables and filepath"}`, err)
			return 1
		}
		config = conf
	}

	// Initialize the logger
	loggerOpts := []polylog.LoggerOption{
		polyzero.WithLevel(polyzero.ParseLevel(config.Logger.Level)),
	}
	logger := polyzero.NewLogger(loggerOpts...)

	logger.Debug().
		Str("version", versionInfo()).
		Str("build_date", BuildDate).
		Uint64("chain_id", config.Network.ChainID).
		Msg("Voting client starting")

	// SIGINT/SIGTERM cancel every running command, including watch.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, logger, config)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize voting client")
		return 1
	}
	defer app.Close()

	if err := app.run(ctx, os.Stdout, args); err != nil {
		logger.Error().Err(err).Msg("Command failed")
		return 1
	}
	return 0
}

func versionInfo() string {
	if Version == "" {
		return "dev"
	}
	if Commit != "" {
		return Version + " (" + Commit[:min(7, len(Commit))] + ")"
	}
	return Version
}

/* -------------------- Client Init Helpers -------------------- */

// parseFlags returns the full path to the config file and the remaining
// command line arguments.
//
// Priority for determining config path:
// - If `-config` flag is set, use its value
// - Otherwise, use defaultConfigPath relative to executable directory
//
// Examples:
// - Executable in `/app` → config at `/app/config/.config.yaml`
// - Executable in `./bin` → config at `./bin/config/.config.yaml`
func parseFlags(defaultConfigPath string) (string, []string, error) {
	var configPath string

	flag.StringVar(&configPath, "config", "", "override the default config path")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [-config path] <command> [args]\n\nCommands:\n", filepath.Base(os.Args[0]))
		printCommands(flag.CommandLine.Output())
		fmt.Fprintln(flag.CommandLine.Output(), "\nFlags:")
		flag.PrintDefaults()
	}
	flag.Parse()
	if configPath != "" {
		return configPath, flag.Args(), nil
	}

	// Get executable directory for default path
	exeDir, err := os.Executable()
	if err != nil {
		return "", nil, fmt.Errorf("failed to get executable path: %w", err)
	}

	configPath = filepath.Join(filepath.Dir(exeDir), defaultConfigPath)

	return configPath, flag.Args(), nil
}

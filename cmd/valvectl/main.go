// valvectl drives relay-switched irrigation valves from a Raspberry Pi.
//
// A request is a JSON list of channel records, grouped by "order" and run
// group after group. Every channel is reverted when its duration elapses or
// when the run is stopped, and every touched channel is reset at the end.
//
//	valvectl run '[{"pin":17,"state":true,"duration":5,"order":1}]'
//	valvectl stop
//	valvectl serve
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nerrad567/valvectl/internal/infrastructure/config"
	"github.com/nerrad567/valvectl/internal/infrastructure/logging"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// configEnvVar names the environment variable holding the config path.
const configEnvVar = "VALVECTL_CONFIG"

var configPath string

var rootCmd = &cobra.Command{
	Use:           "valvectl",
	Short:         "Timed relay valve controller",
	Long:          "valvectl switches relay channels for timed durations in ordered groups, reverting every channel on completion or stop.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default $"+configEnvVar+", else built-in defaults)")
}

func main() {
	// SIGINT and SIGTERM are the stop signal for a running operation.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}

// getConfigPath returns the configuration file path.
// The --config flag wins over VALVECTL_CONFIG; an empty result means defaults.
func getConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return os.Getenv(configEnvVar)
}

// loadConfig loads configuration and builds the logger it describes.
func loadConfig() (*config.Config, *logging.Logger, error) {
	path := getConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	log := logging.New(cfg.Logging, version)
	if path != "" {
		log.Debug("configuration loaded", "path", path)
	}
	return cfg, log, nil
}

// Package main is the mapcap command: the dashboard server, a terminal
// watch view and one-shot commands against the MapCap backend.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mapcap-ipo/internal/config"
	"mapcap-ipo/internal/logging"
	"mapcap-ipo/internal/mapcap"
)

// forceExitTimeout bounds graceful shutdown after the first signal.
const forceExitTimeout = 30 * time.Second

var (
	// Global flags
	verbose  bool
	envFile  string
	apiURL   string
	logLevel string
	timeout  time.Duration

	cfg    *config.Config
	logger *zap.Logger
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "mapcap",
		Short: "MapCap IPO dashboard",
		Long: `mapcap serves the MapCap IPO dashboard for Pioneers and talks to the
MapCap backend: live pool statistics, the 28-day price chart, investments
through the Pi wallet and withdrawal requests.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(envFile)
			if err != nil {
				return err
			}
			applyFlagOverrides(cmd, loaded)
			if err := loaded.Validate(); err != nil {
				return err
			}
			cfg = loaded

			logger, err = logging.New(logging.Options{
				Level:   cfg.LogLevel,
				Format:  cfg.LogFormat,
				Verbose: verbose,
			})
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before the environment")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "MapCap backend base URL (overrides "+config.EnvAPIURL+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides "+config.EnvLogLevel+")")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "backend request timeout (overrides "+config.EnvHTTPTimeout+")")

	rootCmd.AddCommand(
		newServeCmd(),
		newWatchCmd(),
		newStatsCmd(),
		newWithdrawCmd(),
		newMigrateCmd(),
	)
	return rootCmd
}

// applyFlagOverrides copies explicitly set global flags over the loaded config.
func applyFlagOverrides(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("api-url") {
		c.APIURL = apiURL
	}
	if flags.Changed("log-level") {
		c.LogLevel = logLevel
	}
	if flags.Changed("timeout") {
		c.HTTPTimeout = timeout
	}
}

func newClient(l *zap.Logger) *mapcap.HTTPClient {
	return mapcap.NewHTTPClient(cfg.APIURL,
		mapcap.WithTimeout(cfg.HTTPTimeout),
		mapcap.WithLogger(l),
	)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM. A second
// signal, or a shutdown longer than forceExitTimeout, exits the process.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
			signal.Stop(sigCh)
			return
		}

		select {
		case sig := <-sigCh:
			logger.Warn("received second signal, forcing exit", zap.String("signal", sig.String()))
			os.Exit(1)
		case <-time.After(forceExitTimeout):
			logger.Error("graceful shutdown timed out, forcing exit", zap.Duration("timeout", forceExitTimeout))
			os.Exit(1)
		}
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}

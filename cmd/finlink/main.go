package main

import (
	"fmt"
	"os"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"
	"github.com/systmms/finlink/cmd/finlink/commands"
	"github.com/systmms/finlink/internal/config"
	dserrors "github.com/systmms/finlink/internal/errors"
	"github.com/systmms/finlink/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	err := run()
	// Wipe enclave key material before exit.
	memguard.Purge()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", dserrors.SimplifyError(err))
		os.Exit(1)
	}
}

func run() error {
	// Global flags
	var (
		configFile string
		noColor    bool
		debug      bool
		logFormat  string
	)

	defaultConfig := os.Getenv(config.EnvConfig)
	if defaultConfig == "" {
		defaultConfig = config.DefaultPath
	}

	cfg := &config.Config{}

	rootCmd := &cobra.Command{
		Use:   "finlink",
		Short: "Secure adapter registry for financial institution APIs",
		Long: `finlink keeps provider credentials sealed at rest and maintains one live,
health-checked connection per financial institution.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg.Path = configFile
			cfg.Debug = debug
			cfg.NoColor = noColor
			cfg.Logger = logging.NewWithOptions(logging.Options{
				Debug:   debug,
				NoColor: noColor,
				Format:  logFormat,
			})
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", defaultConfig, "Config file path")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", logging.FormatAuto, "Log format: auto, console or json")

	rootCmd.AddCommand(
		commands.NewServeCommand(cfg),
		commands.NewSealCommand(cfg),
		commands.NewHashTokenCommand(cfg),
		commands.NewTokenCommand(cfg),
		commands.NewProvidersCommand(cfg),
		commands.NewStoreCommand(cfg),
	)

	return rootCmd.Execute()
}

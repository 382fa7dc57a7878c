package main

import (
	"fmt"

	"github.com/dsalearning/dsa-recorder/internal/config"
	"github.com/dsalearning/dsa-recorder/internal/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	cfg      *config.Config
	log      zerolog.Logger
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "dsa-recorder",
	Short: "Record voice notes for DSA practice cards",
	Long: `dsa-recorder captures microphone audio into mono 16-bit WAV files and
keeps track of which practice card each recording belongs to.

Run without a subcommand to start the tray app.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile == "" {
			cfgFile = config.DefaultPath()
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		level := cfg.LogLevel
		if logLevel != "" {
			level = logLevel
		}
		log = logging.NewWithLevel(level)
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return trayCmd.RunE(cmd, args)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is the platform config dir)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.Flags().StringVar(&trayCard, "card", defaultCard, "card id attached to recordings")

	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(recordingsCmd)
	rootCmd.AddCommand(trayCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "dsa-recorder %s (%s)\n", Version, Commit)
	},
}

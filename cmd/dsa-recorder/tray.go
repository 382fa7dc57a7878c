package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/dsalearning/dsa-recorder/internal/tray"
	"github.com/getlantern/systray"
	"github.com/spf13/cobra"
)

var trayCard string

var trayCmd = &cobra.Command{
	Use:   "tray",
	Short: "Run the menu bar app",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Create tray UI first (we'll pass it to app)
		trayUI := tray.New(nil, trayCard, Version, Commit, log)

		rt, err := setup(trayUI)
		if err != nil {
			return err
		}
		trayUI.SetApp(rt.app)

		if name, err := rt.app.CheckMicrophone(cmd.Context()); err != nil {
			log.Error().Err(err).Msg("Microphone unavailable")
		} else {
			log.Info().Str("device", name).Msg("Microphone available")
		}

		log.Info().Msg("DSA Recorder starting...")

		// Quitting the tray runs the shutdown in onExit.
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigChan
			log.Info().Msg("Shutting down...")
			systray.Quit()
		}()

		// Start tray UI - MUST run on main thread
		if err := trayUI.Run(cmd.Context()); err != nil {
			return err
		}
		return rt.store.Close()
	},
}

func init() {
	trayCmd.Flags().StringVar(&trayCard, "card", defaultCard, "card id attached to recordings")
}

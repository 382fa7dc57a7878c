package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var (
	recordCard     string
	recordDuration time.Duration
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a voice note from the terminal",
	Long: `Record from the selected input device into the recordings directory.

Press Enter to pause or resume. Recording stops on Ctrl+C, or after
--duration when it is set.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := setup(nil)
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := rt.close(ctx); err != nil {
				log.Error().Err(err).Msg("Shutdown error")
			}
		}()

		ctx := cmd.Context()
		if _, err := rt.app.CheckMicrophone(ctx); err != nil {
			return err
		}

		info, err := rt.app.StartRecording(ctx, recordCard)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Recording to %s (Enter pauses, Ctrl+C stops)\n", info.Filepath)

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		var timeout <-chan time.Time
		if recordDuration > 0 {
			timer := time.NewTimer(recordDuration)
			defer timer.Stop()
			timeout = timer.C
		}

		enter := make(chan struct{})
		go func() {
			scanner := bufio.NewScanner(cmd.InOrStdin())
			for scanner.Scan() {
				enter <- struct{}{}
			}
		}()

	wait:
		for {
			select {
			case <-sigChan:
				break wait
			case <-timeout:
				break wait
			case <-enter:
				if err := togglePause(ctx, rt); err != nil {
					log.Error().Err(err).Msg("Pause action failed")
				}
			}
		}

		res, err := rt.app.StopRecording(ctx)
		if res.Filepath != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%s, device %q)\n",
				res.Filepath, res.Duration.Round(time.Millisecond), res.Device)
		}
		return err
	},
}

func togglePause(ctx context.Context, rt *services) error {
	if rt.app.State().IsPaused {
		if err := rt.app.ResumeRecording(ctx); err != nil {
			return err
		}
		fmt.Println("Resumed")
		return nil
	}
	if err := rt.app.PauseRecording(ctx); err != nil {
		return err
	}
	fmt.Println("Paused")
	return nil
}

func init() {
	recordCmd.Flags().StringVar(&recordCard, "card", defaultCard, "card id attached to the recording (empty skips saving metadata)")
	recordCmd.Flags().DurationVarP(&recordDuration, "duration", "d", 0, "stop automatically after this long")
}

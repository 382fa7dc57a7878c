package main

import (
	"fmt"
	"time"

	"github.com/dsalearning/dsa-recorder/internal/audio"
	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info <file.wav>",
	Short: "Show the format and length of a recording",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		info, err := audio.ReadInfo(args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "file:        %s\n", args[0])
		fmt.Fprintf(out, "sample_rate: %d Hz\n", info.SampleRate)
		fmt.Fprintf(out, "channels:    %d\n", info.Channels)
		fmt.Fprintf(out, "bit_depth:   %d\n", info.BitDepth)
		fmt.Fprintf(out, "frames:      %d\n", info.Frames)
		fmt.Fprintf(out, "duration:    %s\n", info.Duration.Round(time.Millisecond))
		return nil
	},
}

package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dsalearning/dsa-recorder/internal/storage"
	"github.com/spf13/cobra"
)

var recordingsCard string

var recordingsCmd = &cobra.Command{
	Use:   "recordings",
	Short: "List saved recordings, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := storage.Open(cfg.DatabasePath(), log)
		if err != nil {
			return err
		}
		defer store.Close()

		var recs []storage.Recording
		if recordingsCard != "" {
			recs, err = store.RecordingsForCard(cmd.Context(), recordingsCard)
		} else {
			recs, err = store.Recordings(cmd.Context())
		}
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CREATED\tCARD\tDURATION\tFILE")
		for _, r := range recs {
			dur := "-"
			if r.Duration != nil {
				dur = (time.Duration(*r.Duration) * time.Second).String()
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.CreatedAt.Local().Format(time.DateTime), r.CardID, dur, r.Filepath)
		}
		return w.Flush()
	},
}

func init() {
	recordingsCmd.Flags().StringVar(&recordingsCard, "card", "", "only list recordings for this card")
}

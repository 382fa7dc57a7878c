package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var selectDevice string

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List input devices",
	Long: `List the input devices the audio backend can capture from.

With --select the named device is used for future recordings and saved
to the config file.`,
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
		if selectDevice != "" {
			if _, err := rt.app.ListDevices(ctx); err != nil {
				return err
			}
			if err := rt.app.SetDevice(ctx, selectDevice); err != nil {
				return err
			}
		}

		devices, err := rt.app.ListDevices(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tDEFAULT\tSELECTED")
		for _, d := range devices {
			fmt.Fprintf(w, "%s\t%s\t%s\n", d.Name, mark(d.Default), mark(d.Selected))
		}
		return w.Flush()
	},
}

func mark(b bool) string {
	if b {
		return "*"
	}
	return ""
}

func init() {
	devicesCmd.Flags().StringVar(&selectDevice, "select", "", "select the named device for recording")
}

package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func onceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Seed and drain the job queue a single time, then exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			if err := a.engine.RecoverStaleJobs(ctx); err != nil {
				return err
			}
			if err := a.engine.ScheduleJobs(ctx); err != nil {
				return err
			}

			summary, err := a.engine.RunDueJobs(ctx)
			if err != nil {
				return err
			}

			encoded, err := json.MarshalIndent(summary, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
			return nil
		},
	}
}

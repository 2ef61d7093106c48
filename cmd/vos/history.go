package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	apperr "github.com/GriffinCanCode/olfactory-vision/internal/errors"
	"github.com/GriffinCanCode/olfactory-vision/internal/store"
)

func newHistoryCmd(ro *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List recorded runs, or show one run's events",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if ro.cfg.DBPath == "" {
				return apperr.New(apperr.CodeConfigInvalid, "no run history configured").WithMetadata("field", "db_path")
			}
			db, err := store.Open(ro.cfg.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx := cmd.Context()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			defer w.Flush()

			if len(args) == 1 {
				run, err := db.Get(ctx, args[0])
				if err != nil {
					return err
				}
				events, err := db.Events(ctx, run.ID)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", run.ID, run.Status, run.Source)
				fmt.Fprintln(w, "TIME\tSTAGE\tSTATE\tATTEMPT\tCOVERAGE\tMESSAGE")
				for _, e := range events {
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.3f\t%s\n",
						e.Time.Format(time.TimeOnly), e.Stage, e.State, e.Attempt, e.Coverage, e.Message)
				}
				return nil
			}

			runs, err := db.List(ctx, limit)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, "ID\tSTARTED\tSTATUS\tCOVERAGE\tATTEMPTS\tSOURCE\tERROR")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%.3f\t%d\t%s\t%s\n",
					r.ID, r.StartedAt.Local().Format(time.DateTime), r.Status, r.Coverage, r.Attempts, r.Source, r.ErrorCode)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", store.DefaultListLimit, "runs to list")
	return cmd
}

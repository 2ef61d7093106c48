package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/olfactory-vision/internal/app"
	"github.com/GriffinCanCode/olfactory-vision/internal/batch"
	apperr "github.com/GriffinCanCode/olfactory-vision/internal/errors"
	"github.com/GriffinCanCode/olfactory-vision/internal/report"
)

func newBatchCmd(ro *rootOptions) *cobra.Command {
	var (
		pattern     string
		filter      batch.Filter
		concurrency int
		cooldown    time.Duration
		fps         float64
	)
	cmd := &cobra.Command{
		Use:   "batch <dir>",
		Short: "Analyze every matching video in a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ro.cfg
			if fps <= 0 {
				fps = cfg.FPS
			}
			if !cmd.Flags().Changed("concurrency") {
				concurrency = cfg.BatchConcurrency
			}
			if !cmd.Flags().Changed("cooldown") {
				cooldown = cfg.BatchCooldown
			}

			videos, err := batch.Discover(args[0], pattern, filter)
			if err != nil {
				return err
			}
			if len(videos) == 0 {
				return apperr.New(apperr.CodeNotFound, "no videos matched").
					WithMetadata("dir", args[0]).WithMetadata("pattern", pattern)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "analyzing %d video(s)\n", len(videos))

			a, err := app.New(cmd.Context(), cfg, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			sum := batch.Run(cmd.Context(), videos, func(ctx context.Context, path string) (string, error) {
				out := report.OutputPath(cfg.OutputDir, path, time.Now())
				if _, err := a.Analyze(ctx, "", path, fps, out); err != nil {
					return "", err
				}
				return out, nil
			}, batch.Options{Concurrency: concurrency, Cooldown: cooldown})

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "VIDEO\tSTATUS\tELAPSED\tDETAIL")
			for _, r := range sum.Results {
				status, detail := "ok", r.Output
				if r.Err != nil {
					status, detail = apperr.CodeOf(r.Err).String(), r.Err.Error()
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Video.Path, status, r.Duration.Round(time.Second), detail)
			}
			w.Flush()

			fmt.Fprintf(cmd.OutOrStdout(), "%d/%d succeeded\n", sum.Succeeded(), len(sum.Results))
			if failed := sum.Failed(); len(failed) > 0 {
				return apperr.Newf(apperr.CodePipelineFailed, "%d video(s) failed", len(failed))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&pattern, "pattern", batch.DefaultPattern, "file name glob")
	cmd.Flags().IntVar(&filter.From, "from", 0, "first video number to include")
	cmd.Flags().IntVar(&filter.To, "to", 0, "last video number to include")
	cmd.Flags().IntVar(&concurrency, "concurrency", 1, "videos analyzed at once (default from config)")
	cmd.Flags().DurationVar(&cooldown, "cooldown", 0, "minimum spacing between video starts (default from config)")
	cmd.Flags().Float64Var(&fps, "fps", 0, "sampling rate (default from config)")
	return cmd
}

package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/olfactory-vision/internal/app"
	apperr "github.com/GriffinCanCode/olfactory-vision/internal/errors"
	"github.com/GriffinCanCode/olfactory-vision/internal/orchestrator/progress"
	"github.com/GriffinCanCode/olfactory-vision/internal/report"
)

func newAnalyzeCmd(ro *rootOptions) *cobra.Command {
	var (
		fps        float64
		output     string
		keepFrames string
		quiet      bool
	)
	cmd := &cobra.Command{
		Use:   "analyze <video> [fps]",
		Short: "Analyze one video and write its report",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ro.cfg
			if len(args) == 2 {
				v, err := strconv.ParseFloat(args[1], 64)
				if err != nil {
					return apperr.Wrap(err, apperr.CodeValidation, "fps must be a number").WithMetadata("fps", args[1])
				}
				fps = v
			}
			if fps <= 0 {
				fps = cfg.FPS
			}
			if output == "" {
				output = report.OutputPath(cfg.OutputDir, args[0], time.Now())
			}

			var sinks []progress.Sink
			if !quiet {
				sinks = append(sinks, progressPrinter(cmd.ErrOrStderr()))
			}
			a, err := app.New(cmd.Context(), cfg, app.Options{KeepFramesDir: keepFrames, Sinks: sinks})
			if err != nil {
				return err
			}
			defer a.Close()

			rep, err := a.Analyze(cmd.Context(), "", args[0], fps, output)
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), rep)
			fmt.Fprintf(cmd.OutOrStdout(), "report written to %s\n", output)
			return nil
		},
	}
	cmd.Flags().Float64Var(&fps, "fps", 0, "sampling rate (default from config)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "report path (default <output_dir>/<name>_analysis_<time>.json)")
	cmd.Flags().StringVar(&keepFrames, "keep-frames", "", "keep extracted frames in this directory")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print progress")
	return cmd
}

// progressPrinter writes one line per pipeline event.
func progressPrinter(w io.Writer) progress.Sink {
	return progress.SinkFunc(func(e progress.Event) {
		line := fmt.Sprintf("%-10s %s", e.Stage, e.State)
		if e.Attempt > 0 {
			line += fmt.Sprintf(" attempt=%d", e.Attempt)
		}
		if e.Coverage > 0 {
			line += fmt.Sprintf(" coverage=%.3f", e.Coverage)
		}
		if e.Message != "" {
			line += " " + e.Message
		}
		fmt.Fprintln(w, line)
	})
}

func printSummary(w io.Writer, rep report.Report) {
	meta := rep.Meta()
	fmt.Fprintf(w, "%s: %.2fs at %.1f fps, %d frames, coverage %.3f after %d attempt(s)\n",
		meta.Source, meta.TotalDuration, meta.SamplingFPS, meta.FrameCount, meta.Coverage, meta.Attempts)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tSTART\tEND\tACTIVITY\tINTENSITY\tDESCRIPTORS")
	for _, e := range rep.Timeline() {
		fmt.Fprintf(tw, "%d\t%.2f\t%.2f\t%s\t%.2f (%s)\t%v\n",
			e.Index, e.StartTime, e.EndTime, e.ActivityLevel, e.Scent.IntensityValue, e.Scent.IntensityLabel, e.Scent.Descriptors)
	}
	tw.Flush()
}

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	apperr "github.com/GriffinCanCode/olfactory-vision/internal/errors"
	"github.com/GriffinCanCode/olfactory-vision/internal/report"
)

func newValidateCmd(ro *rootOptions) *cobra.Command {
	var curve bool
	cmd := &cobra.Command{
		Use:   "validate <report.json>...",
		Short: "Re-check stored reports against the configured limits",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			opts := report.CheckOptions{MaxHighActivity: ro.cfg.MaxHighActivity, Threshold: ro.cfg.CoverageThreshold}
			bad := 0
			for _, path := range args {
				doc, err := report.ReadFile(path)
				if err != nil {
					fmt.Fprintf(out, "%s: %v\n", path, err)
					bad++
					continue
				}
				findings := report.Check(doc, opts)
				switch {
				case report.HasErrors(findings):
					bad++
					fmt.Fprintf(out, "%s: FAIL\n", path)
				case len(findings) > 0:
					fmt.Fprintf(out, "%s: ok with warnings\n", path)
				default:
					fmt.Fprintf(out, "%s: ok (%d intervals)\n", path, len(doc.VisualTimeline))
				}
				for _, f := range findings {
					fmt.Fprintf(out, "  %s\n", f)
				}
				if curve {
					fmt.Fprintf(out, "  curve: %s\n", formatCurve(report.Curve(doc)))
				}
			}
			if bad > 0 {
				return apperr.Newf(apperr.CodeValidation, "%d of %d report(s) failed", bad, len(args))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&curve, "curve", false, "print the intensity curve")
	return cmd
}

func formatCurve(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatFloat(v, 'f', 2, 64)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

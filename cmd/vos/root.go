package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/olfactory-vision/internal/app"
	"github.com/GriffinCanCode/olfactory-vision/internal/config"
)

type rootOptions struct {
	configPath string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	ro := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "vos",
		Short:         "Turn video into a timed olfactory report",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadFile(ro.configPath)
			if err != nil {
				return err
			}
			ro.cfg = cfg
			app.SetupLogging(cfg, os.Stderr)
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&ro.configPath, "config", "", "YAML config file (default $VOS_CONFIG)")

	cmd.AddCommand(
		newAnalyzeCmd(ro),
		newBatchCmd(ro),
		newValidateCmd(ro),
		newHistoryCmd(ro),
		newServeCmd(ro),
	)
	return cmd
}

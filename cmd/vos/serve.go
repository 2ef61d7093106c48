package main

import (
	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/olfactory-vision/internal/app"
)

func newServeCmd(ro *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.New(cmd.Context(), ro.cfg, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Serve(cmd.Context())
		},
	}
}

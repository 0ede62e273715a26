package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

// ClearResult is the output of the clear command.
type ClearResult struct {
	Event   string `json:"event"`
	Cleared bool   `json:"cleared"`
}

// Text implements texter.
func (r ClearResult) Text() string {
	return fmt.Sprintf("%s cleared=%t", r.Event, r.Cleared)
}

// NewClearCommand creates the clear command.
func NewClearCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear <sdk_Module.method>",
		Short: "Tell the device to stop emitting an event",
		Long: `Send the clear call for an event to the configured device. The
identifier must carry its API surface prefix.

Examples:
  fca clear core_Device.onNameChanged
  fca clear manage_Device.onNameChanged --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts, cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			dev, err := connect(ctx, cfg, nil)
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := dev.Close(); closeErr != nil {
					slog.Error("error closing device connection", "error", closeErr)
				}
			}()

			cleared, err := dev.engine.ClearEventListeners(ctx, args[0])
			if err != nil {
				return WrapExitError(ExitFailure, "clear failed", err)
			}
			return newFormatter(rootOpts, cmd).Success(ClearResult{Event: args[0], Cleared: cleared})
		},
	}
}

package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/fca/internal/engine"
	"github.com/roach88/fca/internal/schema"
)

// pollInterval is how often listen re-reads a listener while waiting.
const pollInterval = 50 * time.Millisecond

// ListenOptions holds flags for the listen command.
type ListenOptions struct {
	*RootOptions
	NotSupported bool
	Wait         time.Duration
	Keep         bool
}

// ListenResult is the output of the listen command.
type ListenResult struct {
	Registration engine.RegistrationResult `json:"registration"`
	Retrieval    *engine.Retrieval         `json:"retrieval,omitempty"`
	Cleared      bool                      `json:"cleared"`
}

// Text implements texter.
func (r ListenResult) Text() string {
	var b strings.Builder
	reg := r.Registration
	if reg.Registered() {
		fmt.Fprintf(&b, "listener %s: %s", reg.EventListenerID, reg.EventListenerSchemaResult.Status)
	} else {
		fmt.Fprintf(&b, "listen %s rejected: %s", reg.EventName, reg.EventListenerSchemaResult.Status)
	}
	if r.Retrieval != nil {
		if r.Retrieval.Observed {
			fmt.Fprintf(&b, "\nnotification: %s", r.Retrieval.EventSchemaResult.Status)
		} else {
			b.WriteString("\nnotification: none")
		}
	}
	if r.Cleared {
		b.WriteString("\ncleared")
	}
	return b.String()
}

// failed reports whether any verdict in the result is FAIL.
func (r ListenResult) failed() bool {
	if r.Registration.EventListenerSchemaResult.Status == schema.StatusFail {
		return true
	}
	return r.Retrieval != nil && r.Retrieval.Observed &&
		r.Retrieval.EventSchemaResult.Status == schema.StatusFail
}

// NewListenCommand creates the listen command.
func NewListenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "listen <event>",
		Short: "Register a listener on the device and validate it",
		Long: `Register a listener for an event on the configured device, validate
the listen acknowledgement and, with --wait, the first notification.
The listener is cleared before exit unless --keep is given.

Exit codes:
  0 - All verdicts PASS
  1 - A verdict is FAIL
  2 - Command error (config, catalogs, device connection)

Examples:
  fca listen Device.onNameChanged --wait 10s
  fca listen manage_Device.onNameChanged --config fca.yaml
  fca listen Advertising.onPolicyChanged --not-supported`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListen(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.NotSupported, "not-supported", false, "expect the device to reject the listen call")
	cmd.Flags().DurationVar(&opts.Wait, "wait", 0, "wait up to this long for a notification")
	cmd.Flags().BoolVar(&opts.Keep, "keep", false, "do not clear the listener before exiting")

	return cmd
}

func runListen(opts *ListenOptions, event string, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions, cmd)
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

	reg, err := dev.engine.NorthBoundEventHandling(ctx, engine.NewRequest(event, opts.NotSupported))
	if err != nil {
		return WrapExitError(ExitCommandError, "listen failed", err)
	}
	result := ListenResult{Registration: reg}

	if reg.Registered() && opts.Wait > 0 {
		r := waitForNotification(ctx, dev.engine, reg.EventListenerID, opts.Wait)
		result.Retrieval = &r
	}

	if reg.Registered() && !opts.Keep {
		cleared, err := dev.engine.ClearEventListeners(ctx, clearName(event))
		if err != nil {
			slog.Warn("listener not cleared", "event", event, "error", err)
		}
		result.Cleared = cleared
	}

	if err := newFormatter(opts.RootOptions, cmd).Success(result); err != nil {
		return err
	}
	if result.failed() {
		return NewExitError(ExitFailure, "validation failed")
	}
	return nil
}

// waitForNotification polls a listener until it has observed a
// notification or the wait elapses.
func waitForNotification(ctx context.Context, eng *engine.Engine, id string, wait time.Duration) engine.Retrieval {
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	r := eng.Fetch(id)
	for !r.Observed {
		select {
		case <-ctx.Done():
			return eng.Fetch(id)
		case <-ticker.C:
			r = eng.Fetch(id)
		}
	}
	return r
}

// clearName gives core identifiers the explicit prefix that clearing
// requires.
func clearName(event string) string {
	prefix, _, found := strings.Cut(event, "_")
	if found && !strings.Contains(prefix, ".") {
		return event
	}
	return "core_" + event
}

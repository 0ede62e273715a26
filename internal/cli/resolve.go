package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/fca/internal/eventname"
)

// Resolution is the output of the resolve command.
type Resolution struct {
	Event      string `json:"event"`
	SDKType    string `json:"sdkType"`
	Module     string `json:"module"`
	Method     string `json:"method,omitempty"`
	ListenerID string `json:"listenerIdPrefix,omitempty"`
}

// Text implements texter.
func (r Resolution) Text() string {
	return fmt.Sprintf("%s -> sdkType=%s module=%s method=%s", r.Event, r.SDKType, r.Module, r.Method)
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <event>",
		Short: "Show the API surface and module of an event identifier",
		Long: `Resolve an event identifier of the form [sdk_]Module.method into
the API surface and module it is dispatched to. Identifiers without a
surface prefix belong to the core surface.

Examples:
  fca resolve Device.onNameChanged
  fca resolve manage_Device.onNameChanged --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			n := eventname.Parse(args[0])
			res := Resolution{
				Event:   args[0],
				SDKType: n.SDKType,
				Module:  n.Module,
			}
			if n.Method != "" {
				res.Method = n.MethodName()
				res.ListenerID = n.Qualified() + "-"
			}
			return newFormatter(rootOpts, cmd).Success(res)
		},
	}
}

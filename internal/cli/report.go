package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/fca/internal/engine"
	"github.com/roach88/fca/internal/report"
)

// ReportOptions holds flags for the report command.
type ReportOptions struct {
	*RootOptions
	Records  bool
	Listener string
}

// RunList is the output of report without a run id.
type RunList struct {
	Runs []report.Run `json:"runs"`
}

// Text implements texter.
func (l RunList) Text() string {
	if len(l.Runs) == 0 {
		return "No runs recorded."
	}
	var b strings.Builder
	for i, run := range l.Runs {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s  %s  %-9s  %s", run.ID, run.StartedAt.Format("2006-01-02T15:04:05Z"), run.Mode, run.Name)
	}
	return b.String()
}

// RunReport is the output of report for one run.
type RunReport struct {
	Summary report.Summary `json:"summary"`
	Records []report.Entry `json:"records,omitempty"`
}

// Text implements texter.
func (r RunReport) Text() string {
	var b strings.Builder
	s := r.Summary
	fmt.Fprintf(&b, "Run %s (%s, %s)\n", s.Run.ID, s.Run.Name, s.Run.Mode)
	fmt.Fprintf(&b, "PASS %d  FAIL %d  errors %d", s.Pass, s.Fail, s.Errors)

	ops := make([]string, 0, len(s.ByOp))
	for op := range s.ByOp {
		ops = append(ops, string(op))
	}
	sort.Strings(ops)
	for _, op := range ops {
		fmt.Fprintf(&b, "\n  %-10s %d", op, s.ByOp[engine.Op(op)])
	}

	for _, e := range r.Records {
		b.WriteByte('\n')
		writeEntry(&b, e)
	}
	return b.String()
}

// ListenerHistory is the output of report --listener.
type ListenerHistory struct {
	ListenerID string         `json:"listener_id"`
	Records    []report.Entry `json:"records"`
}

// Text implements texter.
func (h ListenerHistory) Text() string {
	if len(h.Records) == 0 {
		return fmt.Sprintf("No records for %s.", h.ListenerID)
	}
	var b strings.Builder
	for i, e := range h.Records {
		if i > 0 {
			b.WriteByte('\n')
		}
		writeEntry(&b, e)
	}
	return b.String()
}

func writeEntry(b *strings.Builder, e report.Entry) {
	fmt.Fprintf(b, "%4d %-10s %s", e.Seq, e.Op, e.Event)
	if e.ListenerID != "" {
		fmt.Fprintf(b, " [%s]", e.ListenerID)
	}
	if e.Status != "" {
		fmt.Fprintf(b, " %s", e.Status)
	}
	if e.Error != "" {
		fmt.Fprintf(b, " error=%q", e.Error)
	}
}

// NewReportCommand creates the report command.
func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "report <db> [run-id]",
		Short: "Inspect journaled runs",
		Long: `Read a report database written by "fca serve --report" or
"fca test --report".

Without a run id, lists every run. With a run id, prints its verdict
summary and, with --records, every journaled operation. --listener
prints the history of one listener across runs.

Examples:
  fca report ./fca.db
  fca report ./fca.db 0190b3a4-... --records
  fca report ./fca.db --listener Device.onNameChanged-1`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := ""
			if len(args) == 2 {
				runID = args[1]
			}
			return runReport(opts, args[0], runID, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Records, "records", false, "include every record of the run")
	cmd.Flags().StringVar(&opts.Listener, "listener", "", "show the history of one listener id")

	return cmd
}

func runReport(opts *ReportOptions, path, runID string, cmd *cobra.Command) error {
	if _, err := os.Stat(path); err != nil {
		return NewExitError(ExitCommandError, fmt.Sprintf("report database not found: %s", path))
	}

	st, err := report.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open report database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing report database", "error", closeErr)
		}
	}()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := newFormatter(opts.RootOptions, cmd)

	switch {
	case opts.Listener != "":
		entries, err := st.ReadListener(ctx, opts.Listener)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to read listener", err)
		}
		return out.Success(ListenerHistory{ListenerID: opts.Listener, Records: entries})

	case runID == "":
		runs, err := st.Runs(ctx)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to read runs", err)
		}
		return out.Success(RunList{Runs: runs})
	}

	sum, err := st.Summarize(ctx, runID)
	if errors.Is(err, report.ErrRunNotFound) {
		return NewExitError(ExitCommandError, fmt.Sprintf("run not found: %s", runID))
	}
	if err != nil {
		return WrapExitError(ExitFailure, "failed to summarize run", err)
	}
	result := RunReport{Summary: sum}
	if opts.Records {
		if result.Records, err = st.ReadRecords(ctx, runID); err != nil {
			return WrapExitError(ExitFailure, "failed to read records", err)
		}
	}
	return out.Success(result)
}

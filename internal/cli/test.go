package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/fca/internal/catalog"
	"github.com/roach88/fca/internal/config"
	"github.com/roach88/fca/internal/harness"
	"github.com/roach88/fca/internal/report"
	"github.com/roach88/fca/internal/transport/ws"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern)
	Live   bool   // run against the configured device
	Report string // report database path
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	RunID  string   `json:"run_id,omitempty"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenario-file-or-dir>",
		Short: "Run certification scenarios",
		Long: `Run certification scenarios against a simulated device, or against
the configured device with --live.

Each scenario's step expectations and assertions are checked. Against
the simulated device the trace is also compared with
golden/<scenario-file>.golden next to the scenario, when present.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, config, device connection)

Examples:
  fca test ./scenarios
  fca test ./scenarios --filter "module-*"
  fca test ./scenarios --update
  fca test ./scenarios/names.yaml --live --config fca.yaml
  fca test ./scenarios --report ./fca.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().BoolVar(&opts.Live, "live", false, "run against the configured device")
	cmd.Flags().StringVar(&opts.Report, "report", "", "journal every run to this report database")

	return cmd
}

// suite holds what every scenario of one invocation shares.
type suite struct {
	opts     *TestOptions
	out      io.Writer
	runOpts  []harness.Option
	store    *report.Store
	compared bool // golden files apply
}

func runTests(opts *TestOptions, path string, cmd *cobra.Command) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenario path not found: %s", path))
	}

	cfg, err := loadConfig(opts.RootOptions, cmd)
	if err != nil {
		return err
	}

	scenarioFiles, err := findScenarioFiles(path, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	if len(scenarioFiles) == 0 {
		if opts.Format == "json" {
			return outputTestJSON(cmd, TestResult{Scenarios: []ScenarioResult{}})
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No scenarios found.")
		return nil
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	s := &suite{opts: opts, out: cmd.OutOrStdout(), compared: !opts.Live}
	if opts.Verbose {
		s.runOpts = append(s.runOpts, harness.WithLogger(slog.Default()))
	}

	if opts.Live {
		closeLive, err := s.connectLive(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeLive()
	}

	if opts.Report != "" {
		st, err := report.Open(opts.Report)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open report database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				slog.Error("error closing report database", "error", closeErr)
			}
		}()
		s.store = st
	}

	result := TestResult{
		Scenarios: make([]ScenarioResult, 0, len(scenarioFiles)),
		Total:     len(scenarioFiles),
	}
	for _, file := range scenarioFiles {
		scenResult := s.run(ctx, file)
		result.Scenarios = append(result.Scenarios, scenResult)
		if scenResult.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if opts.Format == "json" {
		return outputTestJSON(cmd, result)
	}
	return outputTestText(cmd, result)
}

// connectLive dials the configured device and routes every scenario
// through it.
func (s *suite) connectLive(ctx context.Context, cfg config.Config) (func(), error) {
	dialCtx, cancel := context.WithTimeout(ctx, cfg.TransportTimeout())
	defer cancel()
	client, err := ws.Dial(dialCtx, cfg.Transport.URL, ws.WithWriteTimeout(cfg.TransportTimeout()))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to connect to device", err)
	}
	s.runOpts = append(s.runOpts, harness.WithTransport(client))

	if len(cfg.Catalogs) > 0 {
		set, err := catalog.LoadSet(cfg.Catalogs)
		if err != nil {
			_ = client.Close()
			return nil, WrapExitError(ExitCommandError, "failed to load catalogs", err)
		}
		s.runOpts = append(s.runOpts, harness.WithCatalogs(set))
	}

	return func() {
		if err := client.Close(); err != nil {
			slog.Error("error closing device connection", "error", err)
		}
	}, nil
}

// findScenarioFiles returns path itself when it is a file, otherwise
// every YAML file under it whose base name matches filter.
func findScenarioFiles(path string, filter string) ([]string, error) {
	if filter != "" {
		if _, err := filepath.Match(filter, ""); err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
	}

	var files []string
	err := filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		ext := filepath.Ext(p)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(p), ext)
			if matched, _ := filepath.Match(filter, name); !matched {
				return nil
			}
		}

		files = append(files, p)
		return nil
	})
	return files, err
}

// run executes one scenario file and reports it.
func (s *suite) run(ctx context.Context, scenarioFile string) ScenarioResult {
	fail := func(name string, errs ...string) ScenarioResult {
		s.printf("✗ %s\n", name)
		for _, e := range errs {
			s.printf("  %s\n", e)
		}
		return ScenarioResult{Name: name, Pass: false, Errors: errs}
	}

	scenario, err := harness.LoadScenario(scenarioFile)
	if err != nil {
		return fail(filepath.Base(scenarioFile), fmt.Sprintf("failed to load scenario: %v", err))
	}

	runOpts := s.runOpts
	runID := ""
	if s.store != nil {
		run, err := s.store.StartRun(ctx, scenario.Name, scenario.DispatchMode(), time.Now())
		if err != nil {
			return fail(scenario.Name, fmt.Sprintf("failed to start report run: %v", err))
		}
		runID = run.ID
		runOpts = append(runOpts[:len(runOpts):len(runOpts)], harness.WithRecorder(s.store.Journal(run)))
	}

	result, err := harness.Run(ctx, scenario, runOpts...)
	if err != nil {
		res := fail(scenario.Name, fmt.Sprintf("execution failed: %v", err))
		res.RunID = runID
		return res
	}

	errs := result.Errors
	if s.compared {
		if msg := s.golden(scenario, result, scenarioFile); msg != "" {
			errs = append(errs, msg)
		}
	}

	if len(errs) > 0 || !result.Pass {
		res := fail(scenario.Name, errs...)
		res.RunID = runID
		return res
	}

	if s.opts.Update && s.compared {
		s.printf("✓ %s (golden updated)\n", scenario.Name)
	} else {
		s.printf("✓ %s\n", scenario.Name)
	}
	return ScenarioResult{Name: scenario.Name, Pass: true, RunID: runID}
}

// golden updates or compares the scenario's golden file and returns a
// failure message, if any. A scenario without a golden file passes on
// its assertions alone.
func (s *suite) golden(scenario *harness.Scenario, result *harness.Result, scenarioFile string) string {
	data, err := harness.Snapshot(scenario, result)
	if err != nil {
		return fmt.Sprintf("failed to render trace: %v", err)
	}
	goldenPath := goldenFilePath(scenarioFile)

	if s.opts.Update {
		if err := os.MkdirAll(filepath.Dir(goldenPath), 0755); err != nil {
			return fmt.Sprintf("failed to create golden directory: %v", err)
		}
		if err := os.WriteFile(goldenPath, data, 0644); err != nil {
			return fmt.Sprintf("failed to write golden file: %v", err)
		}
		return ""
	}

	want, err := os.ReadFile(goldenPath)
	if os.IsNotExist(err) {
		return ""
	}
	if err != nil {
		return fmt.Sprintf("failed to read golden file: %v", err)
	}
	if !bytes.Equal(want, data) {
		return "golden file mismatch (run with --update to regenerate)"
	}
	return ""
}

func (s *suite) printf(format string, args ...any) {
	if s.opts.Format == "json" {
		return
	}
	fmt.Fprintf(s.out, format, args...)
}

// goldenFilePath returns the path to the golden file for a scenario.
func goldenFilePath(scenarioFile string) string {
	dir := filepath.Dir(scenarioFile)
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, "golden", name+".golden")
}

// outputTestJSON outputs the test result as JSON.
func outputTestJSON(cmd *cobra.Command, result TestResult) error {
	response := CLIResponse{Status: "ok", Data: result}
	if result.Failed > 0 {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    CodeTestFailed,
			Message: fmt.Sprintf("%d scenario(s) failed", result.Failed),
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

// outputTestText outputs the test result as text.
func outputTestText(cmd *cobra.Command, result TestResult) error {
	w := cmd.OutOrStdout()

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}

	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}

package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/fca/internal/dispatch"
)

// Scenario is a certification run: a list of engine operations with
// expected verdicts, and assertions over the resulting trace.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario certifies.
	Description string `yaml:"description"`

	// Mode is SDK or Transport. Defaults to SDK.
	Mode string `yaml:"mode,omitempty"`

	// Catalogs maps an API surface to an OpenRPC document path, relative
	// to the scenario file. When empty the built-in mock catalog is used.
	Catalogs map[string]string `yaml:"catalogs,omitempty"`

	// LegacyIDCoercion registers listeners whose dispatch id is not a
	// scalar.
	LegacyIDCoercion bool `yaml:"legacy_id_coercion,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one engine operation. Exactly one of Listen, Notify, Fetch,
// Clear or ClearAll is set.
type Step struct {
	// Listen registers the event identifier.
	Listen string `yaml:"listen,omitempty"`

	// Notify makes the simulated device emit Payload for the event
	// identifier.
	Notify string `yaml:"notify,omitempty"`

	// Fetch retrieves the latest notification of a listener, named by its
	// id or by an alias bound with As.
	Fetch string `yaml:"fetch,omitempty"`

	// Clear clears the event identifier.
	Clear string `yaml:"clear,omitempty"`

	// ClearAll clears every listener.
	ClearAll bool `yaml:"clear_all,omitempty"`

	// NotSupported marks a listen the device is expected to refuse.
	NotSupported bool `yaml:"not_supported,omitempty"`

	// Ack scripts the device acknowledgement of a listen. SDK mode reports
	// the dispatch id rather than the acknowledgement, so Ack only shows in
	// Transport mode verdicts.
	Ack any `yaml:"ack,omitempty"`

	// Reject scripts the device to refuse a listen with this error payload.
	Reject any `yaml:"reject,omitempty"`

	// As binds the registered listener id to an alias.
	As string `yaml:"as,omitempty"`

	// Payload is the notification emitted by Notify.
	Payload any `yaml:"payload,omitempty"`

	// Wait makes Fetch poll until a notification arrives or the duration
	// elapses.
	Wait string `yaml:"wait,omitempty"`

	// Expect is the expected outcome: PASS or FAIL for listen and fetch,
	// NONE for a fetch with nothing observed, ERROR for a failing clear,
	// or the status text of clear_all.
	Expect string `yaml:"expect,omitempty"`
}

// Step operations.
const (
	OpListen   = "listen"
	OpNotify   = "notify"
	OpFetch    = "fetch"
	OpClear    = "clear"
	OpClearAll = "clear_all"
)

// Expectations besides schema statuses.
const (
	ExpectNone  = "NONE"
	ExpectError = "ERROR"
)

// Op returns the operation the step performs, or "" when none or several
// are set.
func (s Step) Op() string {
	var ops []string
	if s.Listen != "" {
		ops = append(ops, OpListen)
	}
	if s.Notify != "" {
		ops = append(ops, OpNotify)
	}
	if s.Fetch != "" {
		ops = append(ops, OpFetch)
	}
	if s.Clear != "" {
		ops = append(ops, OpClear)
	}
	if s.ClearAll {
		ops = append(ops, OpClearAll)
	}
	if len(ops) != 1 {
		return ""
	}
	return ops[0]
}

// Target returns the step's operand.
func (s Step) Target() string {
	switch s.Op() {
	case OpListen:
		return s.Listen
	case OpNotify:
		return s.Notify
	case OpFetch:
		return s.Fetch
	case OpClear:
		return s.Clear
	}
	return ""
}

// scripted reports whether the step needs the simulated device.
func (s Step) scripted() bool {
	return s.Op() == OpNotify || s.Ack != nil || s.Reject != nil
}

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// errors. Catalog paths are resolved relative to the file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	base := filepath.Dir(path)
	for surface, p := range scenario.Catalogs {
		if !filepath.IsAbs(p) {
			scenario.Catalogs[surface] = filepath.Join(base, p)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// DispatchMode returns the scenario's dispatch mode. Call after validation.
func (s *Scenario) DispatchMode() dispatch.Mode {
	if s.Mode == "" {
		return dispatch.ModeSDK
	}
	m, _ := dispatch.ParseMode(s.Mode)
	return m
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Mode != "" {
		if _, err := dispatch.ParseMode(s.Mode); err != nil {
			return err
		}
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for surface, p := range s.Catalogs {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return fmt.Errorf("catalog for %s not found: %s", surface, p)
		}
	}

	aliases := make(map[string]bool)
	for i, step := range s.Steps {
		if err := validateStep(i, step, aliases); err != nil {
			return err
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, step Step, aliases map[string]bool) error {
	op := step.Op()
	if op == "" {
		return fmt.Errorf("steps[%d]: exactly one of listen, notify, fetch, clear, clear_all is required", i)
	}
	if op != OpListen && (step.As != "" || step.Ack != nil || step.Reject != nil || step.NotSupported) {
		return fmt.Errorf("steps[%d]: as, ack, reject and not_supported apply to listen only", i)
	}
	if step.Ack != nil && step.Reject != nil {
		return fmt.Errorf("steps[%d]: ack and reject are exclusive", i)
	}
	if op != OpNotify && step.Payload != nil {
		return fmt.Errorf("steps[%d]: payload applies to notify only", i)
	}
	if step.Wait != "" {
		if op != OpFetch {
			return fmt.Errorf("steps[%d]: wait applies to fetch only", i)
		}
		if _, err := time.ParseDuration(step.Wait); err != nil {
			return fmt.Errorf("steps[%d]: wait: %w", i, err)
		}
	}
	if step.As != "" {
		if aliases[step.As] {
			return fmt.Errorf("steps[%d]: alias %q already bound", i, step.As)
		}
		aliases[step.As] = true
	}

	switch op {
	case OpListen, OpFetch:
		switch step.Expect {
		case "", "PASS", "FAIL":
		case ExpectNone:
			if op == OpListen {
				return fmt.Errorf("steps[%d]: expect NONE applies to fetch only", i)
			}
		default:
			return fmt.Errorf("steps[%d]: unknown expectation %q", i, step.Expect)
		}
	case OpClear:
		if step.Expect != "" && step.Expect != ExpectError {
			return fmt.Errorf("steps[%d]: clear expects nothing or ERROR, got %q", i, step.Expect)
		}
	case OpNotify:
		if step.Expect != "" {
			return fmt.Errorf("steps[%d]: notify takes no expectation", i)
		}
	}
	return nil
}

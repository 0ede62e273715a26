package schema

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/kaptinlin/jsonschema"
)

// Status is a validation verdict.
type Status string

const (
	StatusPass Status = "PASS"
	StatusFail Status = "FAIL"
)

// Issue is one validator diagnostic.
type Issue struct {
	Variant string `json:"variant,omitempty"`
	Keyword string `json:"keyword,omitempty"`
	Message string `json:"message"`
}

// Result is the verdict for one payload.
type Result struct {
	Status  Status  `json:"status"`
	Variant string  `json:"variant,omitempty"`
	Errors  []Issue `json:"errors"`
}

// Passed reports whether the verdict is PASS.
func (r Result) Passed() bool { return r.Status == StatusPass }

// Fail builds a FAIL verdict carrying the given issues.
func Fail(issues ...Issue) Result {
	if issues == nil {
		issues = []Issue{}
	}
	return Result{Status: StatusFail, Errors: issues}
}

// Validator compiles and caches schemas.
//
// Thread-safety: Validator is safe for concurrent use.
type Validator struct {
	mu    sync.Mutex
	cache map[string]*jsonschema.Schema
}

// NewValidator creates an empty Validator.
func NewValidator() *Validator {
	return &Validator{cache: make(map[string]*jsonschema.Schema)}
}

// compile returns the compiled form of s, compiling it on first use.
// A fresh compiler is used per schema since catalog schemas carry no $id.
func (v *Validator) compile(s map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	key := string(raw)

	v.mu.Lock()
	defer v.mu.Unlock()

	if compiled, ok := v.cache[key]; ok {
		return compiled, nil
	}
	compiled, err := jsonschema.NewCompiler().Compile(raw)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	v.cache[key] = compiled
	return compiled, nil
}

// Validate checks value against one variant.
//
// A schema that cannot be compiled yields a FAIL verdict rather than an
// error: a broken catalog entry is a finding, not a harness fault.
func (v *Validator) Validate(variant Variant, value any) Result {
	if variant.Schema == nil {
		return Fail(Issue{Variant: variant.Title, Message: "no schema"})
	}
	compiled, err := v.compile(variant.Schema)
	if err != nil {
		return Fail(Issue{Variant: variant.Title, Message: err.Error()})
	}

	instance, err := normalize(value)
	if err != nil {
		return Fail(Issue{Variant: variant.Title, Message: err.Error()})
	}

	res := compiled.Validate(instance)
	if res.IsValid() {
		return Result{Status: StatusPass, Variant: variant.Title, Errors: []Issue{}}
	}

	issues := make([]Issue, 0, len(res.Errors))
	for keyword, e := range res.Errors {
		msg := keyword
		if e != nil {
			msg = e.Message
		}
		issues = append(issues, Issue{Variant: variant.Title, Keyword: keyword, Message: msg})
	}
	sort.Slice(issues, func(i, j int) bool { return issues[i].Keyword < issues[j].Keyword })
	if len(issues) == 0 {
		issues = append(issues, Issue{Variant: variant.Title, Message: "value does not match schema"})
	}
	return Result{Status: StatusFail, Variant: variant.Title, Errors: issues}
}

// ValidateAny checks value against each variant in order and returns the
// first passing verdict. When no variant passes, the verdict is FAIL and
// collects every variant's issues after a summary issue.
func (v *Validator) ValidateAny(variants []Variant, value any) Result {
	if len(variants) == 0 {
		return Fail(Issue{Message: "no schema"})
	}

	titles := make([]string, 0, len(variants))
	issues := []Issue{{}}
	for _, variant := range variants {
		r := v.Validate(variant, value)
		if r.Passed() {
			return r
		}
		titles = append(titles, fmt.Sprintf("%q", variant.Title))
		issues = append(issues, r.Errors...)
	}
	issues[0] = Issue{Keyword: "anyOf", Message: "is not any of " + strings.Join(titles, ",")}
	return Result{Status: StatusFail, Errors: issues}
}

// normalize converts arbitrary Go values into the generic JSON shapes the
// validator understands (map[string]any, []any, float64, string, bool, nil).
func normalize(value any) (any, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("value is not JSON-encodable: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return out, nil
}

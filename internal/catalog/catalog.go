// Package catalog models the OpenRPC method catalog of a Firebolt API
// surface and loads it from JSON or YAML documents.
package catalog

import (
	"slices"
	"strings"

	"github.com/roach88/fca/internal/schema"
)

// Tag names with meaning to the harness.
const (
	TagEvent        = "event"
	TagCapabilities = "capabilities"
)

// Document is an OpenRPC specification document.
type Document struct {
	OpenRPC    string         `json:"openrpc" yaml:"openrpc"`
	Info       Info           `json:"info" yaml:"info"`
	Methods    []Method       `json:"methods" yaml:"methods"`
	Components map[string]any `json:"components,omitempty" yaml:"components,omitempty"`
}

// Info is the document header.
type Info struct {
	Title   string `json:"title" yaml:"title"`
	Version string `json:"version" yaml:"version"`
}

// Method describes one API method.
type Method struct {
	Name     string    `json:"name" yaml:"name"`
	Summary  string    `json:"summary,omitempty" yaml:"summary,omitempty"`
	Params   []Param   `json:"params" yaml:"params"`
	Result   Result    `json:"result" yaml:"result"`
	Tags     []Tag     `json:"tags,omitempty" yaml:"tags,omitempty"`
	Examples []Example `json:"examples,omitempty" yaml:"examples,omitempty"`
}

// Param describes one method parameter.
type Param struct {
	Name     string         `json:"name" yaml:"name"`
	Required bool           `json:"required,omitempty" yaml:"required,omitempty"`
	Schema   map[string]any `json:"schema" yaml:"schema"`
}

// Result describes a method's result.
type Result struct {
	Name   string         `json:"name" yaml:"name"`
	Schema map[string]any `json:"schema" yaml:"schema"`
}

// Tag annotates a method. Alternative and Uses carry the x-alternative and
// x-uses extensions.
type Tag struct {
	Name        string   `json:"name" yaml:"name"`
	Alternative string   `json:"x-alternative,omitempty" yaml:"x-alternative,omitempty"`
	Uses        []string `json:"x-uses,omitempty" yaml:"x-uses,omitempty"`
}

// Example is an illustrative call.
type Example struct {
	Name   string         `json:"name" yaml:"name"`
	Params []ExampleParam `json:"params" yaml:"params"`
	Result ExampleResult  `json:"result" yaml:"result"`
}

// ExampleParam is one example argument.
type ExampleParam struct {
	Name  string `json:"name" yaml:"name"`
	Value any    `json:"value" yaml:"value"`
}

// ExampleResult is an example's expected result.
type ExampleResult struct {
	Name  string `json:"name" yaml:"name"`
	Value any    `json:"value" yaml:"value"`
}

// IsEvent reports whether the method is tagged as an event.
func (m *Method) IsEvent() bool {
	return m.tag(TagEvent) != nil
}

// Alternative returns the x-alternative hint of the event tag, if any.
func (m *Method) Alternative() string {
	if t := m.tag(TagEvent); t != nil {
		return t.Alternative
	}
	return ""
}

// Capabilities returns the capability identifiers the method uses.
func (m *Method) Capabilities() []string {
	if t := m.tag(TagCapabilities); t != nil {
		return slices.Clone(t.Uses)
	}
	return nil
}

// ResultVariants returns the named branches of the result schema.
func (m *Method) ResultVariants() []schema.Variant {
	return schema.VariantsOf(m.Result.Schema)
}

func (m *Method) tag(name string) *Tag {
	for i := range m.Tags {
		if m.Tags[i].Name == name {
			return &m.Tags[i]
		}
	}
	return nil
}

// Catalog indexes a Document by method name.
type Catalog struct {
	doc    *Document
	byName map[string]*Method
}

// New indexes doc. Method names are matched case-insensitively; when two
// methods differ only by case the first one wins.
func New(doc *Document) *Catalog {
	c := &Catalog{doc: doc, byName: make(map[string]*Method, len(doc.Methods))}
	for i := range doc.Methods {
		key := strings.ToLower(doc.Methods[i].Name)
		if _, exists := c.byName[key]; !exists {
			c.byName[key] = &doc.Methods[i]
		}
	}
	return c
}

// Document returns the indexed document.
func (c *Catalog) Document() *Document { return c.doc }

// Method looks up a method by name, ignoring case.
func (c *Catalog) Method(name string) (*Method, bool) {
	m, ok := c.byName[strings.ToLower(name)]
	return m, ok
}

// Events returns the event methods in document order.
func (c *Catalog) Events() []*Method {
	var out []*Method
	for i := range c.doc.Methods {
		if c.doc.Methods[i].IsEvent() {
			out = append(out, &c.doc.Methods[i])
		}
	}
	return out
}

// Set holds one Catalog per API surface.
type Set map[string]*Catalog

// Method looks up a method in the catalog of the given surface.
func (s Set) Method(sdkType, name string) (*Method, bool) {
	c, ok := s[sdkType]
	if !ok {
		return nil, false
	}
	return c.Method(name)
}

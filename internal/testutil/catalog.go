package testutil

import (
	"github.com/roach88/fca/internal/catalog"
	"github.com/roach88/fca/internal/schema"
)

// MockSurface is the surface name MockCatalog is registered under.
const MockSurface = "mocksdk"

// MockEvents lists the event methods MockCatalog declares.
var MockEvents = []string{
	"mockmodule.onnotsupported",
	"mockmodule.onmodulechanged",
	"mockmodule.oninvalidschema",
	"mockeventmodule.oneventmodulechanged",
	"moduleX.onChanged",
}

// MockDocument builds a small OpenRPC document with a handful of event
// methods and two plain methods.
func MockDocument() *catalog.Document {
	doc := &catalog.Document{
		OpenRPC: "1.2.4",
		Info:    catalog.Info{Title: "mockSchema", Version: "1.0.0"},
		Methods: []catalog.Method{
			{
				Name:    "mock.mockmethod",
				Summary: "Firebolt OpenRPC schema",
				Result:  catalog.Result{Name: "OpenRPC Schema", Schema: map[string]any{"type": "object"}},
			},
			{
				Name: "mockmodule2.mockmethodwparam",
				Tags: []catalog.Tag{
					{Name: "rpc-only"},
					{Name: catalog.TagCapabilities, Uses: []string{"xrn:firebolt:capability:mock:capability"}},
				},
				Params: []catalog.Param{{
					Name:     "version",
					Required: true,
					Schema: map[string]any{
						"type":       "object",
						"properties": map[string]any{"mockSubProperty": map[string]any{"type": "integer", "minimum": 0}},
						"required":   []any{"mockSubProperty"},
					},
				}},
				Result: catalog.Result{Name: "session", Schema: map[string]any{"type": "object"}},
			},
		},
	}
	for _, name := range MockEvents {
		doc.Methods = append(doc.Methods, EventMethod(name))
	}
	return doc
}

// MockCatalog indexes MockDocument.
func MockCatalog() *catalog.Catalog {
	return catalog.New(MockDocument())
}

// MockSet returns a catalog set holding MockCatalog under MockSurface and
// the core surface.
func MockSet() catalog.Set {
	c := MockCatalog()
	return catalog.Set{MockSurface: c, "core": c}
}

// EventMethod builds an event method whose result is the usual
// ListenResponse | EventResponse union. The notification branch accepts
// objects with an optional string mockProperty.
func EventMethod(name string) catalog.Method {
	return catalog.Method{
		Name: name,
		Params: []catalog.Param{{
			Name:     "listen",
			Required: true,
			Schema:   map[string]any{"type": "boolean"},
		}},
		Tags: []catalog.Tag{
			{Name: catalog.TagEvent, Alternative: "policy"},
			{Name: catalog.TagCapabilities, Uses: []string{"xrn:firebolt:capability:mock:mock"}},
		},
		Result: catalog.Result{
			Name: "default",
			Schema: map[string]any{
				"anyOf": []any{
					schema.ListenResponseSchema(),
					map[string]any{
						"title": schema.TitleEventResponse,
						"type":  "object",
						"properties": map[string]any{
							"mockProperty": map[string]any{"title": "mockProperty", "type": "string"},
						},
					},
				},
			},
		},
		Examples: []catalog.Example{{
			Name:   "Acknowledgement",
			Params: []catalog.ExampleParam{{Name: "listen", Value: true}},
			Result: catalog.ExampleResult{Name: "Default Result", Value: map[string]any{"mockProperty": "mockPropertyValue"}},
		}},
	}
}

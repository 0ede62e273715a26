package schema

import (
	"fmt"
	"slices"
)

// Branch titles used by Firebolt OpenRPC documents.
const (
	TitleListenResponse = "ListenResponse"
	TitleEventResponse  = "EventResponse"
)

// Variant is one named branch of a result schema.
type Variant struct {
	Title  string         `json:"title"`
	Schema map[string]any `json:"schema"`
}

// VariantsOf splits a result schema into its branches. An anyOf or oneOf
// union yields one Variant per branch, in declaration order; any other schema
// yields a single Variant.
func VariantsOf(resultSchema map[string]any) []Variant {
	if resultSchema == nil {
		return nil
	}
	for _, key := range []string{"anyOf", "oneOf"} {
		branches, ok := resultSchema[key].([]any)
		if !ok {
			continue
		}
		out := make([]Variant, 0, len(branches))
		for i, b := range branches {
			m, ok := b.(map[string]any)
			if !ok {
				continue
			}
			out = append(out, Variant{Title: titleOf(m, fmt.Sprintf("variant%d", i)), Schema: m})
		}
		return out
	}
	return []Variant{{Title: titleOf(resultSchema, "result"), Schema: resultSchema}}
}

func titleOf(m map[string]any, fallback string) string {
	if t, ok := m["title"].(string); ok && t != "" {
		return t
	}
	return fallback
}

// EventVariants picks the acknowledgement and notification branches of an
// event result schema.
//
// The acknowledgement branch is the one titled ListenResponse, or failing
// that the first branch requiring both "event" and "listening". When the
// schema has no such branch the built-in ListenResponse schema stands in.
// The notification branch is the first remaining branch; ok is false when
// there is none.
func EventVariants(variants []Variant) (ack, notification Variant, ok bool) {
	ackIdx := -1
	for i, v := range variants {
		if v.Title == TitleListenResponse {
			ackIdx = i
			break
		}
	}
	if ackIdx < 0 {
		for i, v := range variants {
			if requires(v.Schema, "event", "listening") {
				ackIdx = i
				break
			}
		}
	}

	if ackIdx >= 0 {
		ack = variants[ackIdx]
	} else {
		ack = Variant{Title: TitleListenResponse, Schema: ListenResponseSchema()}
	}

	for i, v := range variants {
		if i == ackIdx {
			continue
		}
		return ack, v, true
	}
	return ack, Variant{}, false
}

func requires(s map[string]any, fields ...string) bool {
	raw, ok := s["required"].([]any)
	if !ok {
		return false
	}
	var names []string
	for _, r := range raw {
		if n, ok := r.(string); ok {
			names = append(names, n)
		}
	}
	for _, f := range fields {
		if !slices.Contains(names, f) {
			return false
		}
	}
	return true
}

// ListenResponseSchema describes the {event, listening} acknowledgement.
func ListenResponseSchema() map[string]any {
	return map[string]any{
		"title":    TitleListenResponse,
		"type":     "object",
		"required": []any{"event", "listening"},
		"properties": map[string]any{
			"event":     map[string]any{"type": "string", "pattern": "[a-zA-Z]+\\.on[A-Z][a-zA-Z]+"},
			"listening": map[string]any{"type": "boolean"},
		},
		"additionalProperties": false,
	}
}

// ErrorObjectSchema describes a well-formed {code, message} error.
func ErrorObjectSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"code":    map[string]any{"type": "number"},
			"message": map[string]any{"type": "string"},
		},
		"required": []any{"code", "message"},
	}
}

// ErrorVariant wraps ErrorObjectSchema.
func ErrorVariant() Variant {
	return Variant{Title: "Error", Schema: ErrorObjectSchema()}
}

// Package eventname resolves Firebolt event identifiers.
//
// An identifier has one of three shapes:
//
//	sdk_Module.onSomethingChanged   explicit API surface
//	Module.onSomethingChanged       core surface
//	Module                          core surface, module only
//
// Resolution is pure and total. Strict parsing, used for teardown, rejects
// anything that does not carry both a surface prefix and a method.
package eventname

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// CoreSurface is the surface assumed when an identifier has no prefix.
const CoreSurface = "core"

// Name is a parsed event identifier.
type Name struct {
	// Full is the identifier exactly as supplied.
	Full string

	// SDKType is the lower-cased surface prefix, or CoreSurface.
	SDKType string

	// Module is the lower-cased module segment.
	Module string

	// RawModule is the module segment with its original casing.
	RawModule string

	// Method is the segment after the dot with its original casing.
	Method string
}

// Resolve maps an identifier to its surface and lower-cased module.
func Resolve(identifier string) (sdkType, module string) {
	n := Parse(identifier)
	return n.SDKType, n.Module
}

// Parse splits an identifier into its components. It never fails.
func Parse(identifier string) Name {
	n := Name{Full: identifier, SDKType: CoreSurface}

	rest := identifier
	if idx := strings.Index(identifier, "_"); idx >= 0 {
		prefix, tail := identifier[:idx], identifier[idx+1:]
		if !strings.Contains(prefix, ".") && strings.Contains(tail, ".") {
			n.SDKType = strings.ToLower(prefix)
			rest = tail
		}
	}

	if dot := strings.Index(rest, "."); dot >= 0 {
		n.RawModule = rest[:dot]
		n.Method = rest[dot+1:]
	} else {
		n.RawModule = rest
	}
	n.Module = strings.ToLower(n.RawModule)
	return n
}

// MalformedError reports an identifier that cannot address a listener.
type MalformedError struct {
	Identifier string
	Reason     string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed event identifier %q: %s", e.Identifier, e.Reason)
}

// ParseStrict parses an identifier that must have the sdk_Module.method shape.
func ParseStrict(identifier string) (Name, error) {
	idx := strings.Index(identifier, "_")
	if idx <= 0 || strings.Contains(identifier[:idx], ".") {
		return Name{}, &MalformedError{Identifier: identifier, Reason: "missing sdk_ surface prefix"}
	}
	dot := strings.Index(identifier[idx+1:], ".")
	if dot < 0 {
		return Name{}, &MalformedError{Identifier: identifier, Reason: "missing .method segment"}
	}
	n := Parse(identifier)
	if n.Module == "" || n.Method == "" {
		return Name{}, &MalformedError{Identifier: identifier, Reason: "empty module or method"}
	}
	return n, nil
}

// Qualified returns "Module.method" without the surface prefix.
func (n Name) Qualified() string {
	if n.Method == "" {
		return n.RawModule
	}
	return n.RawModule + "." + n.Method
}

// Suffix returns the lower-cased event name after its "on" prefix:
// "onModuleChanged" becomes "modulechanged".
func (n Name) Suffix() string {
	m := n.Method
	if len(m) >= 2 && strings.EqualFold(m[:2], "on") {
		m = m[2:]
	}
	return strings.ToLower(m)
}

// MethodName returns the wire method for the event, "on" followed by the
// title-cased suffix ("onModulechanged").
func (n Name) MethodName() string {
	return "on" + cases.Title(language.Und).String(n.Suffix())
}

// CatalogName returns the name under which the event appears in a method
// catalog. Lookups against it are case-insensitive.
func (n Name) CatalogName() string {
	return n.Module + "." + n.Method
}

// ListenerID composes the registry handle for a dispatch identifier.
func (n Name) ListenerID(dispatchID string) string {
	return n.Qualified() + "-" + dispatchID
}

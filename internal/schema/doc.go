// Package schema validates captured payloads against JSON Schemas taken from
// an OpenRPC method catalog.
//
// Result schemas of event methods are usually a union of two named branches:
// an acknowledgement branch describing the immediate {event, listening}
// response to a listen call, and a notification branch describing the values
// the event later delivers. The union is modelled explicitly as an ordered
// list of Variants; callers pick the branch they expect instead of relying on
// structural matching.
//
// Every verdict is a Result with Status PASS or FAIL and a list of Issues.
// Validation never blocks the caller: a failing payload is still returned
// alongside its FAIL verdict.
package schema

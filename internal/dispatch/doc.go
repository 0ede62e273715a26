// Package dispatch implements the two strategies the engine uses to register
// and clear event listeners on a device.
//
// SDK mode goes through a per-module listen/clear pair taken from a
// ModuleTable keyed by API surface and module name. Transport mode talks to
// the raw Transport directly: listen returns a Pending acknowledgement and
// teardown sends {"listen": false} for the event.
//
// Both strategies deliver notifications through a Callback that the engine
// supplies at registration time.
package dispatch

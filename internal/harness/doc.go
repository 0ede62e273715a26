// Package harness runs certification scenarios against the invocation
// engine.
//
// A scenario is a YAML list of steps (listen, notify, fetch, clear,
// clear_all) with expected verdicts. By default the engine talks to a
// simulated device: listens are acknowledged, scripted acks and
// rejections are returned, and notify steps emit notifications. With
// WithTransport the same steps run against a real device; steps that
// script the device are then refused.
//
// Each run yields a trace of step outcomes. The trace carries no times,
// so it can be compared byte for byte against a golden file.
//
// Example scenario:
//
//	name: module_changed
//	description: A notification is retrievable after registration
//	steps:
//	  - listen: mocksdk_mockmodule.onmodulechanged
//	    as: changed
//	    expect: PASS
//	  - notify: mocksdk_mockmodule.onmodulechanged
//	    payload: {mockProperty: "on"}
//	  - fetch: changed
//	    expect: PASS
//	assertions:
//	  - type: final_state
//	    listeners: 1
package harness

package engine

import (
	"sync/atomic"

	"github.com/roach88/fca/internal/dispatch"
)

// ModeSource supplies the dispatch mode. The engine reads it once per
// registration or teardown, so the mode may change between calls.
type ModeSource interface {
	Mode() dispatch.Mode
}

// FixedMode is a ModeSource that never changes.
type FixedMode dispatch.Mode

// Mode implements ModeSource.
func (m FixedMode) Mode() dispatch.Mode { return dispatch.Mode(m) }

// ModeSwitch is a ModeSource that can be flipped at runtime.
//
// Thread-safety: ModeSwitch is safe for concurrent use.
type ModeSwitch struct {
	v atomic.Value // dispatch.Mode
}

// NewModeSwitch creates a ModeSwitch set to initial.
func NewModeSwitch(initial dispatch.Mode) *ModeSwitch {
	s := &ModeSwitch{}
	s.v.Store(initial)
	return s
}

// Mode implements ModeSource.
func (s *ModeSwitch) Mode() dispatch.Mode {
	return s.v.Load().(dispatch.Mode)
}

// Set changes the mode for subsequent operations.
func (s *ModeSwitch) Set(m dispatch.Mode) {
	s.v.Store(m)
}

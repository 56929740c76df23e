// Package pause provides the system-wide pause flag that gates every
// state-mutating entry point. While paused, mutating operations fail fast with
// types.ErrPaused and have no side effects.
package pause

import (
	"sync/atomic"

	"github.com/omnipool-labs/alm/internal/types"
)

// Switch is a process-wide pause flag. The zero value is running.
type Switch struct {
	paused atomic.Bool
}

// Pause stops all mutating entry points.
func (s *Switch) Pause() {
	s.paused.Store(true)
}

// Resume re-enables mutating entry points.
func (s *Switch) Resume() {
	s.paused.Store(false)
}

// Paused reports the current state.
func (s *Switch) Paused() bool {
	return s.paused.Load()
}

// Check returns types.ErrPaused when the switch is engaged, nil otherwise.
// Mutating entry points call this before touching any state.
func (s *Switch) Check() error {
	if s.paused.Load() {
		return types.ErrPaused
	}
	return nil
}

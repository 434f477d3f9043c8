// Package profile holds voice profile state and its persistence.
package profile

import (
	"fmt"
	"time"
)

// State is the lifecycle of a voice profile. A profile is created
// Pending, moves to Processing when a training job claims it, and ends
// Ready or Failed. Replacing its samples returns it to Pending.
type State string

const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateReady      State = "ready"
	StateFailed     State = "failed"
)

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StatePending, StateProcessing, StateReady, StateFailed:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is legal.
func (s State) CanTransition(next State) bool {
	switch s {
	case StatePending:
		return next == StateProcessing
	case StateProcessing:
		return next == StateReady || next == StateFailed
	case StateReady, StateFailed:
		// Re-training starts from Pending (samples replaced) or directly
		// re-enters Processing.
		return next == StatePending || next == StateProcessing
	}
	return false
}

// Profile is one cloned voice.
//
// Invariants maintained by Store:
//   - ArtifactPath is set only in StateReady.
//   - Error is set only in StateFailed.
//   - Progress stays within [0, 100].
type Profile struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	State        State     `json:"state"`
	CreatedAt    time.Time `json:"created_at"`
	SamplePaths  []string  `json:"audio_samples"`
	ArtifactPath string    `json:"artifact_path,omitempty"`
	Error        string    `json:"error,omitempty"`
	Progress     int       `json:"progress"`
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (p Profile) Clone() Profile {
	out := p
	out.SamplePaths = append([]string(nil), p.SamplePaths...)
	return out
}

// Changes is a patch applied by Store.Update. Nil fields are left
// untouched; unknown fields cannot exist by construction.
type Changes struct {
	Name         *string
	State        *State
	ArtifactPath *string
	Error        *string
	Progress     *int
}

func (c Changes) validate() error {
	if c.State != nil && !c.State.Valid() {
		return fmt.Errorf("profile: unknown state %q", *c.State)
	}
	if c.Progress != nil && (*c.Progress < 0 || *c.Progress > 100) {
		return fmt.Errorf("profile: progress %d out of range", *c.Progress)
	}
	return nil
}

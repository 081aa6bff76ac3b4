// Package registry records which worker generation is serving and which
// one is waiting to take over. The state is shared across all proxy
// instances via Redis, or kept in memory for a single instance.
package registry

import (
	"time"
)

// Redis keys for registration state storage.
const (
	RedisKeyActiveGeneration  = "offline:registration:active_generation"
	RedisKeyWaitingGeneration = "offline:registration:waiting_generation"
	RedisKeyPhase             = "offline:registration:phase"
	RedisKeyLastUpdate        = "offline:registration:last_update"
)

// Phase is the registration's position in the worker lifecycle.
type Phase string

const (
	// PhaseNone means no worker was ever registered.
	PhaseNone Phase = "none"

	// PhaseInstalling means a new generation is pre-warming its cache.
	PhaseInstalling Phase = "installing"

	// PhaseWaiting means a new generation installed and waits to activate.
	PhaseWaiting Phase = "waiting"

	// PhaseActivating means stale generations are being deleted.
	PhaseActivating Phase = "activating"

	// PhaseActive means the active generation controls all requests.
	PhaseActive Phase = "active"

	// PhaseInstallFailed means the last install aborted. The previous
	// active generation, if any, keeps serving.
	PhaseInstallFailed Phase = "install_failed"
)

// Phases lists every phase, in lifecycle order.
var Phases = []Phase{
	PhaseNone,
	PhaseInstalling,
	PhaseWaiting,
	PhaseActivating,
	PhaseActive,
	PhaseInstallFailed,
}

// State is the registration state shared by every proxy instance.
type State struct {
	// ActiveGeneration is the generation currently answering requests.
	ActiveGeneration string `json:"active_generation"`

	// WaitingGeneration is an installed generation not yet activated.
	WaitingGeneration string `json:"waiting_generation,omitempty"`

	// Phase is the last lifecycle transition.
	Phase Phase `json:"phase"`

	// LastUpdate is when the state was last saved.
	LastUpdate time.Time `json:"last_update"`
}

// IsStale returns true if the state is older than maxAge.
func (s *State) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// Serving reports whether a generation controls requests.
func (s *State) Serving() bool {
	return s.ActiveGeneration != ""
}

// HasWaiting reports whether an installed generation waits to activate.
func (s *State) HasWaiting() bool {
	return s.WaitingGeneration != ""
}

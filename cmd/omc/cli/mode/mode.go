// Package mode tracks which collaboration modes are active for a session.
//
// A mode is a named behavior profile the host agent runs under (autopilot,
// swarm, ...). Activation is recorded as a marker per (session, mode) pair.
// Exclusive modes additionally claim a per-session slot so that at most one
// of them is active at a time; the first writer wins and later claims are
// reported as conflicts rather than applied.
package mode

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Mode identifies a collaboration mode.
type Mode string

const (
	Autopilot Mode = "autopilot"
	Swarm     Mode = "swarm"
	Pipeline  Mode = "pipeline"
	Ralph     Mode = "ralph"
	Ultrawork Mode = "ultrawork"
	Team      Mode = "team"
	Ultraqa   Mode = "ultraqa"
)

// All returns every known mode in a stable order.
func All() []Mode {
	return []Mode{Autopilot, Swarm, Pipeline, Ralph, Ultrawork, Team, Ultraqa}
}

// exclusiveModes are the modes that own the agent's whole control loop.
// Running two of them at once would have them fight over the same turn, so
// they are mutually exclusive. The remaining modes layer on top of whatever
// else is running.
var exclusiveModes = map[Mode]bool{
	Autopilot: true,
	Swarm:     true,
	Pipeline:  true,
}

// Exclusive reports whether m conflicts with other exclusive modes.
func (m Mode) Exclusive() bool {
	return exclusiveModes[m]
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case Autopilot, Swarm, Pipeline, Ralph, Ultrawork, Team, Ultraqa:
		return true
	default:
		return false
	}
}

// ErrUnknownMode is returned when a mode name is not recognized.
var ErrUnknownMode = errors.New("unknown mode")

// Parse converts a mode name into a Mode. Names are matched without regard
// to case or surrounding whitespace.
func Parse(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
	return m, nil
}

// StaleAfter is how long an activation marker stays live. Sessions that end
// without a session-end hook (crash, kill) leave markers behind; anything
// older than this is swept on the next registry access.
const StaleAfter = time.Hour

// State is one activation marker.
type State struct {
	SessionID   string         `json:"session_id"`
	Mode        Mode           `json:"mode"`
	Exclusive   bool           `json:"exclusive"`
	Active      bool           `json:"active"`
	ActivatedAt time.Time      `json:"activated_at"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Stale reports whether the marker is strictly older than the staleness
// window at the given time. A marker exactly at the boundary is kept.
func (s *State) Stale(now time.Time) bool {
	return now.Sub(s.ActivatedAt) > StaleAfter
}

// clone returns a deep enough copy for handing out to callers.
func (s *State) clone() *State {
	if s == nil {
		return nil
	}
	out := *s
	if s.Metadata != nil {
		out.Metadata = make(map[string]any, len(s.Metadata))
		for k, v := range s.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

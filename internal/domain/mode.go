package domain

import "fmt"

// SessionMode is the application mode of a session.
type SessionMode string

const (
	ModeIdle      SessionMode = "idle"
	ModeAnalyzing SessionMode = "analyzing"
	ModeReady     SessionMode = "ready"
	ModeCreative  SessionMode = "creative"
)

// transitions is the full mode transition table. Analysis failure
// restores the previous mode, so analyzing may fall back to idle.
var transitions = map[SessionMode][]SessionMode{
	ModeIdle:      {ModeAnalyzing},
	ModeAnalyzing: {ModeReady, ModeIdle},
	ModeReady:     {ModeAnalyzing, ModeCreative},
	ModeCreative:  {ModeReady},
}

// CanTransition reports whether moving from one mode to another is allowed.
func CanTransition(from, to SessionMode) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition validates and applies a mode change on the session.
func (s *Session) Transition(to SessionMode) error {
	if !CanTransition(s.Mode, to) {
		return SessionError(fmt.Sprintf("cannot transition from %s to %s", s.Mode, to), nil)
	}
	s.Mode = to
	return nil
}

// ValidMode reports whether m is a known session mode.
func ValidMode(m SessionMode) bool {
	switch m {
	case ModeIdle, ModeAnalyzing, ModeReady, ModeCreative:
		return true
	}
	return false
}

package domain

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from SessionMode
		to   SessionMode
		want bool
	}{
		{ModeIdle, ModeAnalyzing, true},
		{ModeIdle, ModeReady, false},
		{ModeIdle, ModeCreative, false},
		{ModeAnalyzing, ModeReady, true},
		{ModeAnalyzing, ModeIdle, true}, // failure restores previous mode
		{ModeAnalyzing, ModeCreative, false},
		{ModeReady, ModeCreative, true},
		{ModeReady, ModeAnalyzing, true},
		{ModeReady, ModeIdle, false},
		{ModeCreative, ModeReady, true},
		{ModeCreative, ModeAnalyzing, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestSessionTransition(t *testing.T) {
	s := &Session{Mode: ModeIdle}

	if err := s.Transition(ModeCreative); err == nil {
		t.Error("Expected error for idle -> creative")
	}
	if s.Mode != ModeIdle {
		t.Errorf("Mode changed on rejected transition: %s", s.Mode)
	}

	if err := s.Transition(ModeAnalyzing); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if s.Mode != ModeAnalyzing {
		t.Errorf("Mode not applied: %s", s.Mode)
	}
}

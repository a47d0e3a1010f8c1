package domain

import "testing"

func TestIsValidTransition_HappyPath(t *testing.T) {
	path := []JobStatus{
		StatusPendingUpload,
		StatusUploaded,
		StatusProcessing,
		StatusAnalyzingDiff,
		StatusAnalyzingCubicacion,
		StatusGeneratingImpactos,
		StatusCompleted,
	}
	for i := 0; i < len(path)-1; i++ {
		if !IsValidTransition(path[i], path[i+1]) {
			t.Errorf("expected %s -> %s to be valid", path[i], path[i+1])
		}
	}
}

func TestIsValidTransition_ErrorFromNonTerminal(t *testing.T) {
	for _, s := range AllStatuses() {
		if IsTerminalStatus(s) {
			continue
		}
		if !IsValidTransition(s, StatusError) {
			t.Errorf("expected %s -> error to be valid", s)
		}
	}
}

// Every pair not explicitly declared must be rejected, including self-loops,
// skips, backward edges, and anything out of a terminal state.
func TestIsValidTransition_RejectsUndeclaredPairs(t *testing.T) {
	declared := map[[2]JobStatus]bool{
		{StatusPendingUpload, StatusUploaded}:                  true,
		{StatusUploaded, StatusProcessing}:                     true,
		{StatusProcessing, StatusAnalyzingDiff}:                true,
		{StatusAnalyzingDiff, StatusAnalyzingCubicacion}:       true,
		{StatusAnalyzingCubicacion, StatusGeneratingImpactos}:  true,
		{StatusGeneratingImpactos, StatusCompleted}:            true,
	}
	for _, s := range AllStatuses() {
		if !IsTerminalStatus(s) {
			declared[[2]JobStatus{s, StatusError}] = true
		}
	}

	for _, from := range AllStatuses() {
		for _, to := range AllStatuses() {
			want := declared[[2]JobStatus{from, to}]
			if got := IsValidTransition(from, to); got != want {
				t.Errorf("IsValidTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestIsValidTransition_TerminalStatesHaveNoExits(t *testing.T) {
	for _, from := range []JobStatus{StatusCompleted, StatusError} {
		for _, to := range AllStatuses() {
			if IsValidTransition(from, to) {
				t.Errorf("terminal state %s must have no outgoing edge, got %s -> %s", from, from, to)
			}
		}
	}
}

func TestIsValidTransition_UnknownStates(t *testing.T) {
	if IsValidTransition("bogus", StatusUploaded) {
		t.Error("transition from undeclared state must be invalid")
	}
	if IsValidTransition(StatusUploaded, "bogus") {
		t.Error("transition to undeclared state must be invalid")
	}
}

func TestCheckTransition(t *testing.T) {
	if err := CheckTransition(StatusUploaded, StatusProcessing); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	err := CheckTransition(StatusUploaded, StatusCompleted)
	if err == nil {
		t.Fatal("expected error for skip transition")
	}
	transErr, ok := err.(*InvalidTransitionError)
	if !ok {
		t.Fatalf("expected *InvalidTransitionError, got %T", err)
	}
	if transErr.From != StatusUploaded || transErr.To != StatusCompleted {
		t.Errorf("unexpected edge in error: %s -> %s", transErr.From, transErr.To)
	}
}

func TestIsTerminalStatus(t *testing.T) {
	tests := []struct {
		status JobStatus
		want   bool
	}{
		{StatusPendingUpload, false},
		{StatusUploaded, false},
		{StatusProcessing, false},
		{StatusAnalyzingDiff, false},
		{StatusAnalyzingCubicacion, false},
		{StatusGeneratingImpactos, false},
		{StatusCompleted, true},
		{StatusError, true},
		{"bogus", false},
	}
	for _, tt := range tests {
		if got := IsTerminalStatus(tt.status); got != tt.want {
			t.Errorf("IsTerminalStatus(%s) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestStatusLabel_CoversAllStates(t *testing.T) {
	for _, s := range AllStatuses() {
		if StatusLabel(s) == string(s) {
			t.Errorf("no display label defined for state %s", s)
		}
	}
}

package rules

import "testing"

func TestApplyUCIAndSAN(t *testing.T) {
	tr := NewTracker()

	mv, err := tr.Apply("e2e4")
	if err != nil {
		t.Fatalf("Apply(e2e4): %v", err)
	}
	if mv.SAN != "e4" {
		t.Fatalf("SAN = %q, want e4", mv.SAN)
	}
	if mv.Verdict != VerdictOngoing {
		t.Fatalf("verdict = %q after one move", mv.Verdict)
	}
	if tr.WhiteToMove() {
		t.Fatal("still white to move after e4")
	}

	// SAN input for black.
	mv, err = tr.Apply("e5")
	if err != nil {
		t.Fatalf("Apply(e5): %v", err)
	}
	if mv.UCI != "e7e5" {
		t.Fatalf("UCI = %q, want e7e5", mv.UCI)
	}
}

func TestApplyRejectsIllegalMove(t *testing.T) {
	tr := NewTracker()
	if _, err := tr.Apply("e2e5"); err == nil {
		t.Fatal("expected error for illegal pawn move")
	}
	if _, err := tr.Apply("  "); err == nil {
		t.Fatal("expected error for blank move")
	}
	// Board must be unchanged.
	if !tr.WhiteToMove() {
		t.Fatal("turn advanced despite illegal move")
	}
}

func TestScholarsMateVerdict(t *testing.T) {
	tr := NewTracker()
	moves := []string{"e2e4", "e7e5", "d1h5", "b8c6", "f1c4", "g8f6", "h5f7"}
	var last *Move
	for _, m := range moves {
		mv, err := tr.Apply(m)
		if err != nil {
			t.Fatalf("Apply(%s): %v", m, err)
		}
		last = mv
	}
	if last.Verdict != VerdictCheckmate {
		t.Fatalf("verdict = %q, want checkmate", last.Verdict)
	}
	if !last.WhiteWon {
		t.Fatal("white delivered mate but WhiteWon is false")
	}
}

func TestFingerprintChangesPerPosition(t *testing.T) {
	tr := NewTracker()
	before := tr.Fingerprint()
	if _, err := tr.Apply("e2e4"); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	after := tr.Fingerprint()
	if before == after {
		t.Fatal("fingerprint did not change after a move")
	}
	if len(after) != 64 {
		t.Fatalf("fingerprint length = %d, want 64 hex chars", len(after))
	}

	// Same move sequence reproduces the same fingerprint.
	tr2 := NewTracker()
	if _, err := tr2.Apply("e2e4"); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if tr2.Fingerprint() != after {
		t.Fatal("fingerprint is not deterministic")
	}
}

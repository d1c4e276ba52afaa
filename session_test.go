package chatsync

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestCursorMonotonic(t *testing.T) {
	tr := NewSessionTracker(time.Now, zerolog.Nop())
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	tr.AdvanceCursor(base)
	if !tr.Cursor().Equal(base) {
		t.Fatalf("cursor = %v, want %v", tr.Cursor(), base)
	}

	tr.AdvanceCursor(base.Add(-time.Hour))
	if !tr.Cursor().Equal(base) {
		t.Fatal("cursor regressed on older timestamp")
	}

	tr.AdvanceCursor(time.Time{})
	if !tr.Cursor().Equal(base) {
		t.Fatal("cursor regressed on zero timestamp")
	}

	next := base.Add(time.Minute)
	tr.AdvanceCursor(next)
	if !tr.Cursor().Equal(next) {
		t.Fatalf("cursor = %v, want %v", tr.Cursor(), next)
	}
}

func TestApplyInfoRollover(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tr := NewSessionTracker(func() time.Time { return now }, zerolog.Nop())

	var gotOld, gotNew string
	var fired int
	tr.OnRollover(func(oldID, newID string) {
		fired++
		gotOld, gotNew = oldID, newID
	})

	if tr.ApplyInfo(InfoResponse{SessionID: "s1", APIVersion: 1}) {
		t.Fatal("first info reported a rollover")
	}
	tr.AdvanceCursor(now.Add(-time.Hour))

	if !tr.ApplyInfo(InfoResponse{SessionID: "s2", APIVersion: 1}) {
		t.Fatal("session change not detected")
	}
	if fired != 1 || gotOld != "s1" || gotNew != "s2" {
		t.Fatalf("hook: fired=%d old=%q new=%q", fired, gotOld, gotNew)
	}
	if !tr.Cursor().Equal(now) {
		t.Fatalf("cursor = %v, want reset to clock %v", tr.Cursor(), now)
	}

	if tr.ApplyInfo(InfoResponse{SessionID: "s2", APIVersion: 2}) {
		t.Fatal("same session id reported a rollover")
	}
	if fired != 1 {
		t.Fatalf("hook fired %d times, want 1", fired)
	}
	if got := tr.Session().APIVersion; got != 2 {
		t.Fatalf("apiVersion = %d, want 2", got)
	}

	// An empty incoming id never clears the stored identity.
	tr.ApplyInfo(InfoResponse{SessionID: "", APIVersion: 2})
	if got := tr.Session().SessionID; got != "s2" {
		t.Fatalf("sessionID = %q after empty info, want s2", got)
	}
}

func TestConnStateMachine(t *testing.T) {
	tr := NewSessionTracker(time.Now, zerolog.Nop())

	var transitions []ConnState
	tr.OnStateChange(func(prev, next ConnState) {
		transitions = append(transitions, next)
	})

	if tr.State() != StateDisconnected {
		t.Fatalf("initial state = %q", tr.State())
	}
	if tr.Connected() {
		t.Fatal("disconnected tracker reports connected")
	}

	tr.MarkConnecting()
	tr.MarkConnected()
	tr.MarkDegraded()
	if !tr.Connected() {
		t.Fatal("degraded should still count as connected")
	}
	if !tr.Session().Connected {
		t.Fatal("session snapshot should derive connected from degraded")
	}

	tr.MarkDegraded() // duplicate, no transition
	tr.MarkDisconnected()

	want := []ConnState{StateConnecting, StateConnected, StateDegraded, StateDisconnected}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Fatalf("transition %d = %q, want %q", i, transitions[i], want[i])
		}
	}
}

func TestRestoreNeverRestoresConnectivity(t *testing.T) {
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	tr := NewSessionTracker(time.Now, zerolog.Nop())
	tr.Restore("s1", 3, base)

	s := tr.Session()
	if s.SessionID != "s1" || s.APIVersion != 3 || !s.LastSyncCursor.Equal(base) {
		t.Fatalf("session = %+v", s)
	}
	if s.Connected {
		t.Fatal("restored session must start disconnected")
	}
}

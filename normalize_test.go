package chatsync

import (
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testNormalizer(now time.Time) *Normalizer {
	return NewNormalizer(func() time.Time { return now }, zerolog.Nop())
}

func TestNormalizeMessageDefaults(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	n := testNormalizer(now)

	t.Run("missing id gets a synthetic one", func(t *testing.T) {
		msg := n.NormalizeMessage(map[string]any{"text": "hi"})
		if !strings.HasPrefix(msg.ID, syntheticIDPrefix) {
			t.Fatalf("id = %q, want %q prefix", msg.ID, syntheticIDPrefix)
		}
	})

	t.Run("absent fields default", func(t *testing.T) {
		msg := n.NormalizeMessage(map[string]any{"id": "m1"})
		if msg.Text != "" || msg.AuthorID != "" {
			t.Fatalf("unexpected text/author: %q %q", msg.Text, msg.AuthorID)
		}
		if !msg.CreatedAt.Equal(now) {
			t.Fatalf("createdAt = %v, want clock time %v", msg.CreatedAt, now)
		}
		if msg.Origin != OriginServer {
			t.Fatalf("origin = %q, want %q", msg.Origin, OriginServer)
		}
		if msg.Status != StatusSent {
			t.Fatalf("status = %q, want %q", msg.Status, StatusSent)
		}
		if msg.Reactions == nil || msg.Attachments == nil {
			t.Fatal("reactions and attachments must be non-nil")
		}
		if msg.Tally == nil {
			t.Fatal("tally must be non-nil")
		}
	})

	t.Run("timestamps parse RFC3339", func(t *testing.T) {
		msg := n.NormalizeMessage(map[string]any{
			"id":        "m2",
			"createdAt": "2025-05-30T08:15:00.5Z",
		})
		want := time.Date(2025, 5, 30, 8, 15, 0, 500000000, time.UTC)
		if !msg.CreatedAt.Equal(want) {
			t.Fatalf("createdAt = %v, want %v", msg.CreatedAt, want)
		}
	})

	t.Run("tally is derived from reactions", func(t *testing.T) {
		msg := n.NormalizeMessage(map[string]any{
			"id": "m3",
			"reactions": []any{
				map[string]any{"emoji": "👍", "participantIds": []any{"u1", "u1", "u2"}},
			},
		})
		if got := msg.Tally["👍"].Count; got != 2 {
			t.Fatalf("tally count = %d, want 2 after dedup", got)
		}
	})
}

func TestNormalizeParticipant(t *testing.T) {
	n := testNormalizer(time.Now())

	t.Run("missing id drops the record", func(t *testing.T) {
		if _, ok := n.NormalizeParticipant(map[string]any{"name": "Ada"}); ok {
			t.Fatal("expected idless participant to be dropped")
		}
	})

	t.Run("missing name falls back", func(t *testing.T) {
		p, ok := n.NormalizeParticipant(map[string]any{"id": "p1"})
		if !ok {
			t.Fatal("expected participant to survive")
		}
		if p.Name != UnknownUserName {
			t.Fatalf("name = %q, want %q", p.Name, UnknownUserName)
		}
	})
}

func TestDecodeBatchShapes(t *testing.T) {
	n := testNormalizer(time.Now())

	t.Run("array form", func(t *testing.T) {
		msgs := n.DecodeMessageBatch([]byte(`[{"id":"m1","text":"a"},{"id":"m2","text":"b"}]`))
		if len(msgs) != 2 || msgs[0].ID != "m1" || msgs[1].ID != "m2" {
			t.Fatalf("msgs = %+v", msgs)
		}
	})

	t.Run("object form keyed by id", func(t *testing.T) {
		msgs := n.DecodeMessageBatch([]byte(`{"m2":{"text":"b"},"m1":{"text":"a"}}`))
		if len(msgs) != 2 {
			t.Fatalf("len = %d, want 2", len(msgs))
		}
		// Keys are visited in sorted order and fill in the missing ids.
		if msgs[0].ID != "m1" || msgs[1].ID != "m2" {
			t.Fatalf("ids = %q, %q", msgs[0].ID, msgs[1].ID)
		}
	})

	t.Run("explicit id wins over map key", func(t *testing.T) {
		msgs := n.DecodeMessageBatch([]byte(`{"k1":{"id":"real","text":"a"}}`))
		if len(msgs) != 1 || msgs[0].ID != "real" {
			t.Fatalf("msgs = %+v, want one with id real", msgs)
		}
	})

	t.Run("malformed elements are skipped", func(t *testing.T) {
		msgs := n.DecodeMessageBatch([]byte(`[{"id":"m1"},42,{"id":"m2"}]`))
		if len(msgs) != 2 {
			t.Fatalf("len = %d, want 2", len(msgs))
		}
	})

	t.Run("participants drop idless entries", func(t *testing.T) {
		parts := n.DecodeParticipantBatch([]byte(`[{"name":"Ghost"},{"id":"p1","name":"Ada"}]`))
		if len(parts) != 1 || parts[0].ID != "p1" {
			t.Fatalf("parts = %+v", parts)
		}
	})

	t.Run("scalar payload yields an empty batch", func(t *testing.T) {
		if msgs := n.DecodeMessageBatch([]byte(`"nope"`)); len(msgs) != 0 {
			t.Fatalf("msgs = %+v, want none", msgs)
		}
	})
}

package chatsync

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestDisplayNameContract(t *testing.T) {
	c := NewParticipantCache("", zerolog.Nop())
	c.ReplaceAll([]Participant{
		{ID: "p1", Name: "Ada"},
		{ID: "p2"},
	})

	cases := []struct {
		id   string
		want string
	}{
		{LocalParticipantID, LocalDisplayName},
		{"p1", "Ada"},
		{"p2", UnknownUserName},
		{"ghost", UnknownUserName},
	}
	for _, tc := range cases {
		if got := c.DisplayName(tc.id); got != tc.want {
			t.Errorf("DisplayName(%q) = %q, want %q", tc.id, got, tc.want)
		}
	}
}

func TestDisplayNameCustomLocalID(t *testing.T) {
	c := NewParticipantCache("u42", zerolog.Nop())
	if got := c.DisplayName("u42"); got != LocalDisplayName {
		t.Fatalf("DisplayName(u42) = %q, want %q", got, LocalDisplayName)
	}
	if got := c.DisplayName(LocalParticipantID); got != UnknownUserName {
		t.Fatalf("DisplayName(you) = %q, want %q when local id differs", got, UnknownUserName)
	}
}

func TestParticipantCacheOps(t *testing.T) {
	c := NewParticipantCache("", zerolog.Nop())

	t.Run("map key fills a missing id", func(t *testing.T) {
		c.ReplaceAllMap(map[string]Participant{
			"p1": {Name: "Ada"},
			"p2": {ID: "p2", Name: "Grace"},
		})
		if p, ok := c.Get("p1"); !ok || p.ID != "p1" || p.Name != "Ada" {
			t.Fatalf("p1 = %+v, ok=%v", p, ok)
		}
	})

	t.Run("get never creates", func(t *testing.T) {
		before := c.Len()
		if _, ok := c.Get("ghost"); ok {
			t.Fatal("ghost resolved")
		}
		if c.Len() != before {
			t.Fatal("lookup grew the cache")
		}
	})

	t.Run("upsert and remove", func(t *testing.T) {
		if !c.Upsert(Participant{ID: "p3", Name: "Linus"}) {
			t.Fatal("upsert rejected")
		}
		if c.Upsert(Participant{Name: "anonymous"}) {
			t.Fatal("idless upsert accepted")
		}
		if !c.Remove("p3") {
			t.Fatal("remove failed")
		}
		if c.Remove("p3") {
			t.Fatal("second remove reported success")
		}
	})

	t.Run("upsert many applies the batch in one call", func(t *testing.T) {
		c.ReplaceAll([]Participant{{ID: "p1", Name: "Ada"}})
		applied := c.UpsertMany([]Participant{
			{ID: "p1", Name: "Ada L."},
			{ID: "p4", Name: "Edsger"},
			{Name: "anonymous"},
		})
		if applied != 2 {
			t.Fatalf("applied = %d, want 2", applied)
		}
		if p, _ := c.Get("p1"); p.Name != "Ada L." {
			t.Fatalf("p1 = %+v, rename not applied", p)
		}
		if _, ok := c.Get("p4"); !ok {
			t.Fatal("p4 missing")
		}
		if c.Len() != 2 {
			t.Fatalf("len = %d, idless record was admitted", c.Len())
		}
	})

	t.Run("snapshot is sorted by name then id", func(t *testing.T) {
		c.ReplaceAll([]Participant{
			{ID: "b", Name: "Zoe"},
			{ID: "c", Name: "Ada"},
			{ID: "a", Name: "Zoe"},
		})
		snap := c.Snapshot()
		gotIDs := []string{snap[0].ID, snap[1].ID, snap[2].ID}
		if gotIDs[0] != "c" || gotIDs[1] != "a" || gotIDs[2] != "b" {
			t.Fatalf("order = %v, want [c a b]", gotIDs)
		}
	})
}

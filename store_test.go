package chatsync

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
)

// testStoreContract exercises the behavior every Store implementation must
// share.
func testStoreContract(t *testing.T, s Store) {
	t.Helper()

	if _, err := s.Load(nsMessages, SnapshotVersion); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("load before save: err = %v, want ErrNoSnapshot", err)
	}

	blob := []byte(`[{"id":"m1"}]`)
	if err := s.Save(nsMessages, SnapshotVersion, blob); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.Load(nsMessages, SnapshotVersion)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(got) != string(blob) {
		t.Fatalf("blob = %q, want %q", got, blob)
	}

	if _, err := s.Load(nsMessages, SnapshotVersion+1); !errors.Is(err, ErrSnapshotVersion) {
		t.Fatalf("version mismatch: err = %v, want ErrSnapshotVersion", err)
	}

	if err := s.Save(nsMessages, SnapshotVersion, []byte(`[]`)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, err = s.Load(nsMessages, SnapshotVersion)
	if err != nil {
		t.Fatalf("load after overwrite: %v", err)
	}
	if string(got) != `[]` {
		t.Fatalf("blob = %q after overwrite, want []", got)
	}

	// Namespaces are independent.
	if _, err := s.Load(nsParticipants, SnapshotVersion); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("foreign namespace: err = %v, want ErrNoSnapshot", err)
	}
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	testStoreContract(t, s)
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	testStoreContract(t, s)
}

func TestSQLiteStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Save(nsSession, SnapshotVersion, []byte(`{"sessionId":"s1"}`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s, err = NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	got, err := s.Load(nsSession, SnapshotVersion)
	if err != nil {
		t.Fatalf("load after reopen: %v", err)
	}
	if string(got) != `{"sessionId":"s1"}` {
		t.Fatalf("blob = %q", got)
	}
}

func TestTransientSQLiteErrClassification(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{fmt.Errorf("SQLITE_BUSY: database is locked (5)"), true},
		{fmt.Errorf("database table is locked (6)"), true},
		{fmt.Errorf("IOERR_SHORT_READ (522)"), true},
		{fmt.Errorf("UNIQUE constraint failed: snapshots.namespace"), false},
		{fmt.Errorf("no such table: snapshots"), false},
	}
	for _, tc := range cases {
		if got := isTransientSQLiteErr(tc.err); got != tc.want {
			t.Errorf("isTransientSQLiteErr(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

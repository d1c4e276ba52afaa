package chatsync

import "sync"

// SnapshotVersion is the schema version stamped on every persisted blob.
// Bump it when the snapshot encoding changes: stale blobs are discarded on
// load, never migrated, because every piece of state is re-derivable from
// the server.
const SnapshotVersion = 1

// Snapshot namespaces used by the engine.
const (
	nsMessages     = "messages"
	nsParticipants = "participants"
	nsSession      = "session"
)

// Store persists engine snapshots between runs. Save overwrites a
// namespace. Load returns ErrNoSnapshot when the namespace was never
// written and ErrSnapshotVersion when the stored blob carries a different
// schema version.
type Store interface {
	Save(namespace string, version int, blob []byte) error
	Load(namespace string, version int) ([]byte, error)
	Close() error
}

// MemoryStore is the default process-lifetime Store, for tests and for
// callers that do not want durable state.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string]memoryBlob
}

type memoryBlob struct {
	version int
	data    []byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string]memoryBlob)}
}

func (s *MemoryStore) Save(namespace string, version int, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[namespace] = memoryBlob{version: version, data: append([]byte(nil), blob...)}
	return nil
}

func (s *MemoryStore) Load(namespace string, version int) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[namespace]
	if !ok {
		return nil, ErrNoSnapshot
	}
	if b.version != version {
		return nil, ErrSnapshotVersion
	}
	return append([]byte(nil), b.data...), nil
}

func (s *MemoryStore) Close() error { return nil }

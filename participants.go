package chatsync

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// ParticipantCache is the id-keyed table of chat members. The sync loop is
// its only network-driven writer; renderers read through Get, DisplayName,
// and Snapshot.
type ParticipantCache struct {
	mu      sync.RWMutex
	byID    map[string]Participant
	localID string
	log     zerolog.Logger
}

// NewParticipantCache builds an empty cache. localID is the sentinel id of
// the local user; empty falls back to LocalParticipantID.
func NewParticipantCache(localID string, log zerolog.Logger) *ParticipantCache {
	if localID == "" {
		localID = LocalParticipantID
	}
	return &ParticipantCache{
		byID:    make(map[string]Participant),
		localID: localID,
		log:     log,
	}
}

// ReplaceAll installs a full participant set, dropping prior state.
func (c *ParticipantCache) ReplaceAll(parts []Participant) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID = make(map[string]Participant, len(parts))
	for _, p := range parts {
		if p.ID == "" {
			c.log.Warn().Msg("participant without id dropped on replace")
			continue
		}
		c.byID[p.ID] = p
	}
}

// ReplaceAllMap installs a pre-keyed participant set. An entry whose record
// lacks an id inherits its map key.
func (c *ParticipantCache) ReplaceAllMap(parts map[string]Participant) {
	list := make([]Participant, 0, len(parts))
	for key, p := range parts {
		if p.ID == "" {
			p.ID = key
		}
		list = append(list, p)
	}
	c.ReplaceAll(list)
}

// Upsert inserts or overwrites one participant. A missing id is a logged
// no-op.
func (c *ParticipantCache) Upsert(p Participant) bool {
	if p.ID == "" {
		c.log.Warn().Msg("participant upsert without id ignored")
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID[p.ID] = p
	return true
}

// UpsertMany inserts or overwrites a delta batch under one lock, so a
// reader sees either none of the batch or all of it. Records without an id
// are dropped. Returns the number applied.
func (c *ParticipantCache) UpsertMany(parts []Participant) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	applied := 0
	for _, p := range parts {
		if p.ID == "" {
			c.log.Warn().Msg("participant without id dropped from delta")
			continue
		}
		c.byID[p.ID] = p
		applied++
	}
	return applied
}

// Remove deletes a participant by id. Absent ids are a no-op.
func (c *ParticipantCache) Remove(id string) bool {
	if id == "" {
		c.log.Warn().Msg("participant remove without id ignored")
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.byID[id]; !ok {
		return false
	}
	delete(c.byID, id)
	return true
}

// Get returns the participant and whether it exists. A miss never creates
// an entry.
func (c *ParticipantCache) Get(id string) (Participant, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.byID[id]
	return p, ok
}

// DisplayName resolves an author id for rendering: the local user renders
// as "You", a known participant by name, everything else as "Unknown User".
func (c *ParticipantCache) DisplayName(id string) string {
	if id == c.localID {
		return LocalDisplayName
	}
	c.mu.RLock()
	p, ok := c.byID[id]
	c.mu.RUnlock()
	if ok && p.Name != "" {
		return p.Name
	}
	return UnknownUserName
}

// Snapshot returns all participants sorted by name then id, so render
// order is stable across calls.
func (c *ParticipantCache) Snapshot() []Participant {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Participant, 0, len(c.byID))
	for _, p := range c.byID {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (c *ParticipantCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}

// Clear drops every participant. Used on session rollover and logout.
func (c *ParticipantCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID = make(map[string]Participant)
}

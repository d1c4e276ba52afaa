package chatsync

import (
	"sync"

	"github.com/rs/zerolog"
)

// MessageCache is the ordered, deduplicated message collection: index 0 is
// the newest entry. Each mutation runs under one lock, so readers never
// observe a half-applied batch, and every path that touches Reactions
// recomputes the tally before the lock is released.
//
// Mutators validate their input and degrade to logged no-ops on malformed
// arguments. A bad record must never poison the rest of a batch.
type MessageCache struct {
	mu    sync.RWMutex
	items []Message
	index map[string]int // id -> position in items
	log   zerolog.Logger
}

func NewMessageCache(log zerolog.Logger) *MessageCache {
	return &MessageCache{index: make(map[string]int), log: log}
}

// reindex rebuilds the id index after a structural change. Caller holds mu.
func (c *MessageCache) reindex() {
	c.index = make(map[string]int, len(c.items))
	for i := range c.items {
		c.index[c.items[i].ID] = i
	}
}

// ReplaceAll installs a full ordered set, newest first, dropping prior
// state. Used for the initial load and for full refreshes. Records without
// an id and later duplicates of an id are dropped.
func (c *MessageCache) ReplaceAll(msgs []Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make([]Message, 0, len(msgs))
	c.index = make(map[string]int, len(msgs))
	for _, m := range msgs {
		if m.ID == "" {
			c.log.Warn().Msg("message without id dropped on replace")
			continue
		}
		if _, dup := c.index[m.ID]; dup {
			c.log.Warn().Str("id", m.ID).Msg("duplicate message id dropped on replace")
			continue
		}
		m.Tally = AggregateReactions(m.Reactions)
		c.index[m.ID] = len(c.items)
		c.items = append(c.items, m)
	}
}

// UpsertMany merges a delta batch in one step: records with unseen ids are
// inserted at the head as a block, preserving the batch's newest-first
// order, and records whose id is already cached are merged in place, since
// the delta endpoint resends a record only when it changed. The whole batch
// lands under one lock, so a concurrent reader sees either none of it or
// all of it.
func (c *MessageCache) UpsertMany(msgs []Message) (added, updated int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var fresh []Message
	seen := make(map[string]bool, len(msgs))
	for _, m := range msgs {
		if m.ID == "" {
			c.log.Warn().Msg("message without id dropped from delta")
			continue
		}
		if seen[m.ID] {
			c.log.Warn().Str("id", m.ID).Msg("duplicate message id dropped from delta")
			continue
		}
		seen[m.ID] = true
		if _, ok := c.index[m.ID]; ok {
			if c.mergeLocked(m.ID, serverUpdate(m)) {
				updated++
			}
			continue
		}
		m.Tally = AggregateReactions(m.Reactions)
		fresh = append(fresh, m)
	}
	if len(fresh) > 0 {
		c.items = append(fresh, c.items...)
		c.reindex()
	}
	return len(fresh), updated
}

// serverUpdate converts a redelivered record into a partial update. Server
// records are full records, so text, reactions, and attachments are
// authoritative; local delivery status and creation time are not the
// server's to change.
func serverUpdate(m Message) MessageUpdate {
	upd := MessageUpdate{
		Text:        &m.Text,
		Reactions:   m.Reactions,
		Attachments: m.Attachments,
	}
	if m.AuthorID != "" {
		upd.AuthorID = &m.AuthorID
	}
	if m.EditedAt != nil {
		upd.EditedAt = m.EditedAt
	}
	return upd
}

// InsertOptimistic puts a locally authored message at the head with status
// sending. The id must not collide with a cached one; a clash is rejected.
func (c *MessageCache) InsertOptimistic(m Message) bool {
	if m.ID == "" {
		c.log.Warn().Msg("optimistic insert without id ignored")
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.index[m.ID]; ok {
		c.log.Warn().Str("id", m.ID).Msg("optimistic insert clashes with cached id, ignored")
		return false
	}
	m.Origin = OriginLocal
	m.Status = StatusSending
	m.Tally = AggregateReactions(m.Reactions)
	c.items = append([]Message{m}, c.items...)
	c.reindex()
	return true
}

// ReconcileOptimistic replaces the optimistic entry at tempID with the
// server-confirmed message, keeping its position in the order. When tempID
// is already gone (a sync batch delivered the authoritative copy first) the
// server message falls back to a normal upsert, so the confirmed record is
// present exactly once either way.
func (c *MessageCache) ReconcileOptimistic(tempID string, server Message) bool {
	if tempID == "" || server.ID == "" {
		c.log.Warn().Msg("reconcile with missing id ignored")
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	server.Origin = OriginServer
	if server.Status == "" || server.Status == StatusSending {
		server.Status = StatusSent
	}
	server.Tally = AggregateReactions(server.Reactions)

	pos, haveTemp := c.index[tempID]
	srvPos, haveServer := c.index[server.ID]

	switch {
	case haveTemp && haveServer && server.ID != tempID:
		// The authoritative copy raced in through a sync batch. Refresh it
		// in place and drop the temp entry.
		c.items[srvPos] = server
		c.items = append(c.items[:pos], c.items[pos+1:]...)
		c.reindex()
	case haveTemp:
		c.items[pos] = server
		delete(c.index, tempID)
		c.index[server.ID] = pos
	case haveServer:
		c.items[srvPos] = server
	default:
		c.items = append([]Message{server}, c.items...)
		c.reindex()
	}
	return true
}

// MergeUpdate applies a partial edit to a cached message. An unknown id is
// a logged no-op. AuthorID is immutable once set: an empty or conflicting
// incoming author never overwrites it. A non-nil Reactions slice replaces
// the stored events and re-derives the tally.
func (c *MessageCache) MergeUpdate(id string, upd MessageUpdate) bool {
	if id == "" {
		c.log.Warn().Msg("merge update without id ignored")
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mergeLocked(id, upd)
}

// mergeLocked applies a partial edit in place. Caller holds mu.
func (c *MessageCache) mergeLocked(id string, upd MessageUpdate) bool {
	pos, ok := c.index[id]
	if !ok {
		c.log.Warn().Str("id", id).Msg("merge update for unknown message ignored")
		return false
	}
	m := &c.items[pos]
	if upd.Text != nil {
		m.Text = *upd.Text
	}
	if upd.AuthorID != nil && *upd.AuthorID != "" {
		if m.AuthorID == "" {
			m.AuthorID = *upd.AuthorID
		} else if m.AuthorID != *upd.AuthorID {
			c.log.Warn().Str("id", id).Msg("author change ignored, author is immutable")
		}
	}
	if upd.EditedAt != nil {
		t := *upd.EditedAt
		m.EditedAt = &t
	}
	if upd.Status != nil {
		m.Status = *upd.Status
	}
	if upd.Attachments != nil {
		m.Attachments = append([]Attachment(nil), upd.Attachments...)
	}
	if upd.Reactions != nil {
		m.Reactions = cloneReactionEvents(upd.Reactions)
		m.Tally = AggregateReactions(m.Reactions)
	}
	return true
}

// Remove deletes a message by id. Absent ids are a no-op.
func (c *MessageCache) Remove(id string) bool {
	if id == "" {
		c.log.Warn().Msg("remove without id ignored")
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	pos, ok := c.index[id]
	if !ok {
		return false
	}
	c.items = append(c.items[:pos], c.items[pos+1:]...)
	c.reindex()
	return true
}

// ToggleReaction flips participantID's emoji reaction on a message: present
// removes, absent adds, and toggling twice restores the original state.
// added reports whether the toggle ended with the reaction present; ok is
// false when the arguments are malformed or the message is unknown.
func (c *MessageCache) ToggleReaction(id, emoji, participantID string) (added, ok bool) {
	if id == "" || emoji == "" || participantID == "" {
		c.log.Warn().Msg("reaction toggle with missing argument ignored")
		return false, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	pos, found := c.index[id]
	if !found {
		c.log.Warn().Str("id", id).Msg("reaction toggle for unknown message ignored")
		return false, false
	}
	m := &c.items[pos]
	m.Reactions, added = toggleReactionEvents(m.Reactions, emoji, participantID)
	m.Tally = AggregateReactions(m.Reactions)
	return added, true
}

// Get returns a deep copy of the message with the given id.
func (c *MessageCache) Get(id string) (Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	pos, ok := c.index[id]
	if !ok {
		return Message{}, false
	}
	return c.items[pos].Clone(), true
}

// Snapshot returns a deep copy of the ordered message list, newest first.
func (c *MessageCache) Snapshot() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Message, len(c.items))
	for i := range c.items {
		out[i] = c.items[i].Clone()
	}
	return out
}

// Committed returns the persistable subset of the cache: sends still in
// flight are excluded, everything else is deep-copied in order.
func (c *MessageCache) Committed() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Message, 0, len(c.items))
	for i := range c.items {
		if c.items[i].Status == StatusSending {
			continue
		}
		out = append(out, c.items[i].Clone())
	}
	return out
}

func (c *MessageCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Clear drops every message. Used on session rollover and logout.
func (c *MessageCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = nil
	c.index = make(map[string]int)
}

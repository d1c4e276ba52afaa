package chatsync

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Clock supplies the current time. Injected so ingestion defaults and
// cursor resets stay deterministic under test.
type Clock func() time.Time

const (
	// syntheticIDPrefix marks ids minted for server records that arrived
	// without one.
	syntheticIDPrefix = "synthetic-"

	// localIDPrefix marks optimistic ids minted before the server confirms
	// a send.
	localIDPrefix = "local-"
)

// Normalizer converts loosely shaped service records into canonical cache
// entities. Payload shapes drift between server versions: collections
// arrive either as arrays or as id-keyed objects, and individual fields may
// be missing or null. The normalizer is the single place those differences
// are absorbed; everything downstream sees one shape.
type Normalizer struct {
	clock Clock
	log   zerolog.Logger
	newID func() string
}

// NewNormalizer builds a normalizer. A nil clock defaults to time.Now.
func NewNormalizer(clock Clock, log zerolog.Logger) *Normalizer {
	if clock == nil {
		clock = time.Now
	}
	return &Normalizer{clock: clock, log: log, newID: uuid.NewString}
}

// NormalizeMessage builds a canonical Message from a raw record. A record
// without an id gets a synthetic one so it stays renderable and
// deduplicable; text defaults to empty, createdAt to ingestion time, and
// reactions to an empty set. The tally is always recomputed, never trusted
// from the payload.
func (n *Normalizer) NormalizeMessage(raw map[string]any) Message {
	id := strOr(raw, "id", "")
	if id == "" {
		id = syntheticIDPrefix + n.newID()
		n.log.Warn().Str("assigned", id).Msg("message record missing id, synthesized one")
	}

	msg := Message{
		ID:          id,
		Origin:      OriginServer,
		Text:        strOr(raw, "text", ""),
		AuthorID:    strOr(raw, "authorId", ""),
		CreatedAt:   n.timeOr(raw, "createdAt"),
		Status:      StatusSent,
		Reactions:   parseReactionEvents(raw["reactions"]),
		Attachments: parseAttachments(raw["attachments"]),
	}
	if t, ok := parseTime(raw, "editedAt"); ok {
		msg.EditedAt = &t
	}
	msg.Tally = AggregateReactions(msg.Reactions)
	return msg
}

// NormalizeParticipant builds a canonical Participant. A record without an
// id cannot be cached or referenced and is dropped; the ok result is false.
func (n *Normalizer) NormalizeParticipant(raw map[string]any) (Participant, bool) {
	id := strOr(raw, "id", "")
	if id == "" {
		n.log.Warn().Msg("participant record missing id, dropped")
		return Participant{}, false
	}
	return Participant{
		ID:    id,
		Name:  strOr(raw, "name", UnknownUserName),
		Role:  strOr(raw, "role", ""),
		Title: strOr(raw, "title", ""),
	}, true
}

// DecodeMessageBatch decodes a payload that is either an array of message
// records or an object keyed by message id. A bad record is skipped with a
// diagnostic; it never aborts the batch.
func (n *Normalizer) DecodeMessageBatch(data []byte) []Message {
	records := n.decodeRecords(data, "messages")
	msgs := make([]Message, 0, len(records))
	for _, raw := range records {
		msgs = append(msgs, n.NormalizeMessage(raw))
	}
	return msgs
}

// DecodeParticipantBatch is the participant counterpart of
// DecodeMessageBatch.
func (n *Normalizer) DecodeParticipantBatch(data []byte) []Participant {
	records := n.decodeRecords(data, "participants")
	parts := make([]Participant, 0, len(records))
	for _, raw := range records {
		if p, ok := n.NormalizeParticipant(raw); ok {
			parts = append(parts, p)
		}
	}
	return parts
}

// decodeRecords absorbs the array-or-object union shape once, at the
// boundary. In the keyed form the map key supplies a missing id field but
// never overrides an explicit one. Keys are sorted so the keyed form yields
// a stable batch order.
func (n *Normalizer) decodeRecords(data []byte, kind string) []map[string]any {
	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err == nil {
		records := make([]map[string]any, 0, len(arr))
		for _, el := range arr {
			var raw map[string]any
			if err := json.Unmarshal(el, &raw); err != nil {
				n.log.Warn().Str("kind", kind).Msg("skipping non-object record in batch")
				continue
			}
			records = append(records, raw)
		}
		return records
	}

	var keyed map[string]json.RawMessage
	if err := json.Unmarshal(data, &keyed); err != nil {
		n.log.Warn().Str("kind", kind).Err(err).Msg("unrecognized batch payload shape, dropped")
		return nil
	}
	keys := make([]string, 0, len(keyed))
	for k := range keyed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	records := make([]map[string]any, 0, len(keyed))
	for _, k := range keys {
		var raw map[string]any
		if err := json.Unmarshal(keyed[k], &raw); err != nil {
			n.log.Warn().Str("kind", kind).Str("key", k).Msg("skipping non-object record in batch")
			continue
		}
		if strOr(raw, "id", "") == "" {
			raw["id"] = k
		}
		records = append(records, raw)
	}
	return records
}

// ============================================================================
// Field helpers
// ============================================================================

func strOr(m map[string]any, key, fallback string) string {
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func parseTime(m map[string]any, key string) (time.Time, bool) {
	s, ok := m[key].(string)
	if !ok || s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func (n *Normalizer) timeOr(m map[string]any, key string) time.Time {
	if t, ok := parseTime(m, key); ok {
		return t
	}
	return n.clock()
}

// parseReactionEvents always yields a non-nil slice. Redelivered records
// are full records, so an absent reactions field means none, same as a
// present empty set.
func parseReactionEvents(v any) []ReactionEvent {
	items, ok := v.([]any)
	if !ok {
		return []ReactionEvent{}
	}
	events := make([]ReactionEvent, 0, len(items))
	for _, item := range items {
		raw, ok := item.(map[string]any)
		if !ok {
			continue
		}
		ev := ReactionEvent{Emoji: strOr(raw, "emoji", "")}
		if ev.Emoji == "" {
			continue
		}
		if ids, ok := raw["participantIds"].([]any); ok {
			for _, id := range ids {
				if s, ok := id.(string); ok && s != "" {
					ev.ParticipantIDs = append(ev.ParticipantIDs, s)
				}
			}
		}
		events = append(events, ev)
	}
	return events
}

func parseAttachments(v any) []Attachment {
	items, ok := v.([]any)
	if !ok {
		return []Attachment{}
	}
	atts := make([]Attachment, 0, len(items))
	for _, item := range items {
		raw, ok := item.(map[string]any)
		if !ok {
			continue
		}
		att := Attachment{Type: strOr(raw, "type", ""), URL: strOr(raw, "url", "")}
		if att.URL == "" {
			continue
		}
		atts = append(atts, att)
	}
	return atts
}

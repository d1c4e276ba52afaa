package chatsync

import "time"

// ============================================================================
// Messages
// ============================================================================

// Status is the local delivery state of a message. It never crosses the
// wire: the server neither sends nor accepts it.
type Status string

const (
	StatusSending Status = "sending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Origin records where a message identifier was minted. Local messages keep
// a temporary id until the server confirms the send and the cache swaps in
// the authoritative one.
type Origin string

const (
	OriginLocal  Origin = "local"
	OriginServer Origin = "server"
)

// Message is the canonical cached message entity.
//
// Tally is derived state. Every path that touches Reactions recomputes it,
// so it is excluded from serialization and rebuilt on restore.
type Message struct {
	ID          string          `json:"id"`
	Origin      Origin          `json:"origin,omitempty"`
	Text        string          `json:"text"`
	AuthorID    string          `json:"authorId"`
	CreatedAt   time.Time       `json:"createdAt"`
	EditedAt    *time.Time      `json:"editedAt,omitempty"`
	Status      Status          `json:"status,omitempty"`
	Reactions   []ReactionEvent `json:"reactions"`
	Tally       ReactionTally   `json:"-"`
	Attachments []Attachment    `json:"attachments,omitempty"`
}

// Clone returns a deep copy. Snapshots hand clones to callers so cache
// internals are never aliased outside the lock.
func (m Message) Clone() Message {
	out := m
	if m.EditedAt != nil {
		t := *m.EditedAt
		out.EditedAt = &t
	}
	out.Reactions = cloneReactionEvents(m.Reactions)
	out.Tally = m.Tally.clone()
	if m.Attachments != nil {
		out.Attachments = append([]Attachment(nil), m.Attachments...)
	}
	return out
}

// ReactionEvent is one raw reaction record as the server delivers it: an
// emoji plus the participants who reacted with it.
type ReactionEvent struct {
	Emoji          string   `json:"emoji"`
	ParticipantIDs []string `json:"participantIds"`
}

// ReactionGroup is the derived per-emoji summary renderers display.
type ReactionGroup struct {
	Count          int      `json:"count"`
	ParticipantIDs []string `json:"participantIds"`
}

// ReactionTally maps an emoji to its derived group. A message without
// reactions carries an empty tally, never a nil one.
type ReactionTally map[string]ReactionGroup

func (t ReactionTally) clone() ReactionTally {
	out := make(ReactionTally, len(t))
	for emoji, group := range t {
		out[emoji] = ReactionGroup{
			Count:          group.Count,
			ParticipantIDs: append([]string(nil), group.ParticipantIDs...),
		}
	}
	return out
}

// Attachment is a file or media entry carried by a message.
type Attachment struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// MessageUpdate carries a partial edit. Nil fields are left untouched; a
// non-nil Reactions or Attachments slice replaces the stored one.
type MessageUpdate struct {
	Text        *string
	AuthorID    *string
	EditedAt    *time.Time
	Status      *Status
	Reactions   []ReactionEvent
	Attachments []Attachment
}

// ============================================================================
// Participants
// ============================================================================

const (
	// LocalParticipantID is the sentinel author id for the local user.
	LocalParticipantID = "you"

	// LocalDisplayName is what DisplayName renders for the local user.
	LocalDisplayName = "You"

	// UnknownUserName is the fallback for absent or unnamed participants.
	UnknownUserName = "Unknown User"
)

// Participant is a chat member. Messages reference participants by id only;
// looking one up never creates an entry.
type Participant struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Role  string `json:"role,omitempty"`
	Title string `json:"title,omitempty"`
}

// ============================================================================
// Session
// ============================================================================

// ConnState is the session tracker's connectivity state.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"

	// StateDegraded means the service is reachable but recent sync cycles
	// have been failing.
	StateDegraded ConnState = "degraded"
)

// Session describes the server epoch the client is synchronized against.
// A changed SessionID means the server's backing state was reset and the
// local caches no longer describe it.
type Session struct {
	SessionID      string    `json:"sessionId"`
	APIVersion     int       `json:"apiVersion"`
	Connected      bool      `json:"connected"`
	LastSyncCursor time.Time `json:"lastSyncCursor"`
}

// InfoResponse is the payload of GET /info.
type InfoResponse struct {
	SessionID  string `json:"sessionId"`
	APIVersion int    `json:"apiVersion"`
}

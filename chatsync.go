// Package chatsync maintains a locally cached, eventually consistent view
// of a remote chat service: messages, participants, and reactions, kept
// fresh by a polling sync loop and updated optimistically by local writes.
//
// The engine owns three caches (messages, participants, session) and a
// sync controller that polls the service for deltas. Renderers read
// snapshots, subscribe to events, and route every mutation through the
// engine entry points.
//
// Example:
//
//	engine := chatsync.New("https://chat.example.com",
//		chatsync.WithToken(os.Getenv("CHATSYNC_TOKEN")),
//		chatsync.WithPollInterval(5*time.Second),
//	)
//	defer engine.Close()
//
//	engine.On(chatsync.EventSyncComplete, func(event string, payload any) {
//		render(engine.Messages())
//	})
//	engine.Start(ctx)
//
//	msg, err := engine.Send(ctx, "hello")
package chatsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout bounds each network call the engine makes.
	DefaultTimeout = 30 * time.Second

	// DefaultPollInterval is the delay between healthy sync cycles.
	DefaultPollInterval = 5 * time.Second
)

// Engine wires the caches, the sync controller, and the persistence layer
// into the single object a client application talks to.
type Engine struct {
	*emitter

	messages *MessageCache
	parts    *ParticipantCache
	session  *SessionTracker
	sync     *syncController
	api      *apiClient
	norm     *Normalizer
	store    Store
	clock    Clock
	log      zerolog.Logger
	selfID   string
	tempID   func() string

	mu      sync.Mutex
	started bool
	closed  bool
}

// Option configures the engine.
type Option func(*engineOptions)

type engineOptions struct {
	token        string
	httpClient   *http.Client
	timeout      time.Duration
	logger       zerolog.Logger
	clock        Clock
	store        Store
	pollInterval time.Duration
	backoff      BackoffConfig
	limiter      *rate.Limiter
	selfID       string
}

// WithToken sets the bearer token sent on every request.
func WithToken(token string) Option {
	return func(o *engineOptions) { o.token = token }
}

// WithHTTPClient supplies a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *engineOptions) { o.httpClient = client }
}

// WithTimeout bounds every network call. A request that exceeds it counts
// as a network failure.
func WithTimeout(timeout time.Duration) Option {
	return func(o *engineOptions) { o.timeout = timeout }
}

// WithLogger routes engine diagnostics through the given logger. The engine
// is silent by default.
func WithLogger(log zerolog.Logger) Option {
	return func(o *engineOptions) { o.logger = log }
}

// WithClock injects a time source for ingestion defaults and cursor resets.
func WithClock(clock Clock) Option {
	return func(o *engineOptions) { o.clock = clock }
}

// WithStore persists snapshots to the given store. The default is an
// in-memory store that lives and dies with the process.
func WithStore(store Store) Option {
	return func(o *engineOptions) { o.store = store }
}

// WithPollInterval sets the delay between healthy sync cycles.
func WithPollInterval(d time.Duration) Option {
	return func(o *engineOptions) { o.pollInterval = d }
}

// WithBackoff overrides the retry schedule applied after failed cycles.
func WithBackoff(cfg BackoffConfig) Option {
	return func(o *engineOptions) { o.backoff = cfg }
}

// WithRateLimit throttles outgoing requests to at most rps per second with
// the given burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(o *engineOptions) { o.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// WithSelfID overrides the sentinel identifier for the local user.
func WithSelfID(id string) Option {
	return func(o *engineOptions) { o.selfID = id }
}

// New assembles an engine against the service at baseURL. The returned
// engine has restored any persisted snapshot but is not polling yet; call
// Start.
func New(baseURL string, opts ...Option) *Engine {
	o := engineOptions{
		timeout:      DefaultTimeout,
		logger:       zerolog.Nop(),
		clock:        time.Now,
		pollInterval: DefaultPollInterval,
		selfID:       LocalParticipantID,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: o.timeout}
	} else if o.httpClient.Timeout == 0 {
		o.httpClient.Timeout = o.timeout
	}
	if o.store == nil {
		o.store = NewMemoryStore()
	}
	if o.clock == nil {
		o.clock = time.Now
	}

	log := o.logger
	norm := NewNormalizer(o.clock, log)
	e := &Engine{
		emitter:  newEmitter(),
		messages: NewMessageCache(log),
		parts:    NewParticipantCache(o.selfID, log),
		session:  NewSessionTracker(o.clock, log),
		norm:     norm,
		store:    o.store,
		clock:    o.clock,
		log:      log,
		selfID:   o.selfID,
		tempID:   func() string { return localIDPrefix + uuid.NewString() },
	}
	e.api = &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   o.token,
		http:    o.httpClient,
		limiter: o.limiter,
		norm:    norm,
		log:     log,
	}
	e.sync = newSyncController(
		e.api, e.messages, e.parts, e.session,
		o.pollInterval, o.backoff, e.emit, e.persist, log,
	)

	e.session.OnRollover(func(oldID, newID string) {
		e.messages.Clear()
		e.parts.Clear()
	})
	e.session.OnStateChange(func(prev, next ConnState) {
		e.emit(EventConnState, next)
	})

	e.restore()
	return e
}

// ============================================================================
// Lifecycle
// ============================================================================

// Start begins polling. The first cycle runs immediately.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.closed || e.started {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.mu.Unlock()
	e.sync.Start(ctx)
}

// Stop halts polling. Cached state stays intact so renderers keep showing
// the last known view.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	e.started = false
	e.mu.Unlock()
	e.sync.Stop()
}

// Close stops polling, persists the committed view, and releases the
// store. The engine must not be used afterwards.
func (e *Engine) Close() error {
	e.Stop()
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()
	e.persist()
	e.removeAll()
	return e.store.Close()
}

// ForceSync bypasses any pending backoff and polls now.
func (e *Engine) ForceSync(ctx context.Context) error {
	return e.sync.ForceSync(ctx)
}

// Clear drops all cached and persisted state, as on logout.
func (e *Engine) Clear() {
	e.messages.Clear()
	e.parts.Clear()
	e.session.Restore("", 0, time.Time{})
	e.persist()
}

// ============================================================================
// Local writes
// ============================================================================

// Send applies an optimistic local write and posts it to the service. The
// message is visible immediately with StatusSending; on confirmation the
// temporary id is replaced in place by the server-issued one. On failure
// the message flips to StatusFailed and stays addressable for RetrySend.
func (e *Engine) Send(ctx context.Context, text string) (Message, error) {
	local := Message{
		ID:        e.tempID(),
		Origin:    OriginLocal,
		Text:      text,
		AuthorID:  e.selfID,
		CreatedAt: e.clock(),
		Status:    StatusSending,
		Reactions: []ReactionEvent{},
		Tally:     ReactionTally{},
	}
	if !e.messages.InsertOptimistic(local) {
		return Message{}, fmt.Errorf("temp id %q already cached, send aborted", local.ID)
	}
	e.emit(EventMessageNew, local)

	return e.deliver(ctx, local)
}

// RetrySend re-posts a failed local message, reusing its text. The entry
// flips back to StatusSending while the call is in flight.
func (e *Engine) RetrySend(ctx context.Context, id string) (Message, error) {
	m, ok := e.messages.Get(id)
	if !ok {
		return Message{}, fmt.Errorf("%w: message %q", ErrNotFound, id)
	}
	if m.Origin != OriginLocal || m.Status != StatusFailed {
		return Message{}, fmt.Errorf("%w: message %q is not a failed local send", ErrValidation, id)
	}
	sending := StatusSending
	e.messages.MergeUpdate(id, MessageUpdate{Status: &sending})
	return e.deliver(ctx, m)
}

// deliver runs the send call and reconciles the optimistic entry with the
// outcome.
func (e *Engine) deliver(ctx context.Context, local Message) (Message, error) {
	server, err := e.api.sendMessage(ctx, local.Text)
	if err != nil {
		failed := StatusFailed
		e.messages.MergeUpdate(local.ID, MessageUpdate{Status: &failed})
		e.persist()
		e.emit(EventMessageFailed, map[string]any{"id": local.ID, "error": err.Error()})
		m, _ := e.messages.Get(local.ID)
		return m, err
	}

	e.messages.ReconcileOptimistic(local.ID, *server)
	e.persist()
	m, ok := e.messages.Get(server.ID)
	if !ok {
		m = *server
	}
	e.emit(EventMessageConfirmed, map[string]any{"localId": local.ID, "id": server.ID})
	return m, nil
}

// ToggleReaction flips the local user's emoji reaction on a message,
// locally first, then best-effort against the service. A server without
// reaction endpoints leaves the reaction local-only and reports no error;
// any other server failure is returned, but the local flip stands either
// way.
func (e *Engine) ToggleReaction(ctx context.Context, messageID, emoji string) error {
	added, ok := e.messages.ToggleReaction(messageID, emoji, e.selfID)
	if !ok {
		return fmt.Errorf("%w: message %q", ErrNotFound, messageID)
	}
	e.persist()

	var err error
	if added {
		err = e.api.addReaction(ctx, messageID, emoji, e.selfID)
	} else {
		err = e.api.removeReaction(ctx, messageID, emoji, e.selfID)
	}
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotImplemented) {
		e.log.Debug().Str("id", messageID).Msg("reaction endpoints unavailable, keeping reaction local")
		return nil
	}
	return err
}

// RemoveMessage deletes a message from the local cache.
func (e *Engine) RemoveMessage(id string) bool {
	removed := e.messages.Remove(id)
	if removed {
		e.persist()
	}
	return removed
}

// ============================================================================
// Reads
// ============================================================================

// Messages returns the ordered message list, newest first.
func (e *Engine) Messages() []Message { return e.messages.Snapshot() }

// Message looks up one message by id.
func (e *Engine) Message(id string) (Message, bool) { return e.messages.Get(id) }

// Participants returns the known participant set.
func (e *Engine) Participants() []Participant { return e.parts.Snapshot() }

// Participant looks up a participant by id; a miss never creates one.
func (e *Engine) Participant(id string) (Participant, bool) { return e.parts.Get(id) }

// DisplayName resolves an author id for rendering.
func (e *Engine) DisplayName(id string) string { return e.parts.DisplayName(id) }

// Session returns the tracked session, including connectivity.
func (e *Engine) Session() Session { return e.session.Session() }

// ConnState returns the connectivity state machine's position.
func (e *Engine) ConnState() ConnState { return e.session.State() }

// Connected reports service reachability. Degraded counts as reachable.
func (e *Engine) Connected() bool { return e.session.Connected() }

// SyncState returns the poll loop state.
func (e *Engine) SyncState() SyncState { return e.sync.State() }

// LastError returns the most recent sync failure, nil when healthy.
func (e *Engine) LastError() error { return e.sync.LastError() }

// Info fetches the live session descriptor without touching local state.
func (e *Engine) Info(ctx context.Context) (*InfoResponse, error) { return e.api.info(ctx) }

// ============================================================================
// Persistence
// ============================================================================

// sessionSnapshot is the persisted subset of Session. Transient
// connectivity flags are not part of the snapshot.
type sessionSnapshot struct {
	SessionID      string    `json:"sessionId"`
	APIVersion     int       `json:"apiVersion"`
	LastSyncCursor time.Time `json:"lastSyncCursor"`
}

// restore loads persisted snapshots. Absent or version-mismatched blobs
// start the engine cold; a stale snapshot is never migrated.
func (e *Engine) restore() {
	var sess sessionSnapshot
	if e.loadJSON(nsSession, &sess) {
		e.session.Restore(sess.SessionID, sess.APIVersion, sess.LastSyncCursor)
	}
	var msgs []Message
	if e.loadJSON(nsMessages, &msgs) {
		e.messages.ReplaceAll(msgs) // recomputes tallies dropped by serialization
	}
	var parts []Participant
	if e.loadJSON(nsParticipants, &parts) {
		e.parts.ReplaceAll(parts)
	}
}

func (e *Engine) loadJSON(namespace string, v any) bool {
	blob, err := e.store.Load(namespace, SnapshotVersion)
	if err != nil {
		switch {
		case errors.Is(err, ErrNoSnapshot):
		case errors.Is(err, ErrSnapshotVersion):
			e.log.Warn().Str("namespace", namespace).Msg("discarding snapshot with stale schema version")
		default:
			e.log.Warn().Str("namespace", namespace).Err(err).Msg("snapshot load failed, starting cold")
		}
		return false
	}
	if err := json.Unmarshal(blob, v); err != nil {
		e.log.Warn().Str("namespace", namespace).Err(err).Msg("snapshot decode failed, starting cold")
		return false
	}
	return true
}

// persist writes the committed view: messages no longer in flight, the
// participant table, and the session identity with its cursor.
func (e *Engine) persist() {
	sess := e.session.Session()
	e.saveJSON(nsSession, sessionSnapshot{
		SessionID:      sess.SessionID,
		APIVersion:     sess.APIVersion,
		LastSyncCursor: sess.LastSyncCursor,
	})
	e.saveJSON(nsMessages, e.messages.Committed())
	e.saveJSON(nsParticipants, e.parts.Snapshot())
}

func (e *Engine) saveJSON(namespace string, v any) {
	blob, err := json.Marshal(v)
	if err != nil {
		e.log.Warn().Str("namespace", namespace).Err(err).Msg("snapshot encode failed")
		return
	}
	if err := e.store.Save(namespace, SnapshotVersion, blob); err != nil {
		e.log.Warn().Str("namespace", namespace).Err(err).Msg("snapshot write failed")
	}
}

package chatsync

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// errSyncInFlight coalesces overlapping poll requests; it never escapes the
// controller.
var errSyncInFlight = errors.New("sync already in flight")

// SyncState is the poll loop's position.
type SyncState string

const (
	SyncIdle    SyncState = "idle"
	SyncPolling SyncState = "polling"
	SyncBackoff SyncState = "backoff"
)

// SyncStats summarizes one applied sync cycle.
type SyncStats struct {
	Added        int `json:"added"`
	Updated      int `json:"updated"`
	Participants int `json:"participants"`
}

// BackoffConfig bounds the retry schedule applied after failed poll cycles.
type BackoffConfig struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	MaxRetries int
}

func (c *BackoffConfig) applyDefaults() {
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 10
	}
}

// backoff computes jittered exponential delays: base doubled per retry,
// capped at max. A healthy cycle resets the counter.
type backoff struct {
	base       time.Duration
	max        time.Duration
	maxRetries int
	retries    int
}

func newBackoff(cfg BackoffConfig) *backoff {
	cfg.applyDefaults()
	return &backoff{base: cfg.BaseDelay, max: cfg.MaxDelay, maxRetries: cfg.MaxRetries}
}

func (b *backoff) next() time.Duration {
	jitter := time.Duration(rand.Float64() * float64(b.base) * 0.5)
	delay := time.Duration(math.Min(
		float64(b.base)*math.Pow(2, float64(b.retries))+float64(jitter),
		float64(b.max),
	))
	b.retries++
	return delay
}

func (b *backoff) exhausted() bool { return b.retries >= b.maxRetries }

func (b *backoff) reset() { b.retries = 0 }

// syncController drives the polling loop: fetch the session descriptor,
// pull message and participant deltas concurrently, apply them to the
// caches as one batch, advance the cursor. Failures feed the backoff
// schedule; exhausting it marks the session disconnected and parks the loop
// until a forced sync or a restart.
type syncController struct {
	api      *apiClient
	messages *MessageCache
	parts    *ParticipantCache
	session  *SessionTracker
	emit     func(event string, payload any)
	applied  func() // runs after a cycle lands committed state
	log      zerolog.Logger
	interval time.Duration

	mu      sync.Mutex
	bo      *backoff
	state   SyncState
	syncing bool
	lastErr error
	cancel  context.CancelFunc
	done    chan struct{}
	wake    chan struct{}
}

func newSyncController(
	api *apiClient,
	messages *MessageCache,
	parts *ParticipantCache,
	session *SessionTracker,
	interval time.Duration,
	cfg BackoffConfig,
	emit func(event string, payload any),
	applied func(),
	log zerolog.Logger,
) *syncController {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &syncController{
		api:      api,
		messages: messages,
		parts:    parts,
		session:  session,
		emit:     emit,
		applied:  applied,
		log:      log,
		interval: interval,
		bo:       newBackoff(cfg),
		state:    SyncIdle,
		wake:     make(chan struct{}, 1),
	}
}

// Start launches the poll loop; the first cycle runs immediately. Starting
// a running controller is a no-op.
func (s *syncController) Start(ctx context.Context) {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.bo.reset()
	s.lastErr = nil
	s.mu.Unlock()

	s.session.MarkConnecting()
	go s.run(runCtx, done)
}

// Stop cancels the loop and waits for any in-flight cycle to unwind.
// Cached state stays intact. Idempotent.
func (s *syncController) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.session.MarkDisconnected()
	s.setState(SyncIdle)
}

func (s *syncController) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		case <-s.wake:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}

		err := s.cycle(ctx)
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, errSyncInFlight) {
			timer.Reset(s.interval)
			continue
		}

		if err == nil {
			s.mu.Lock()
			s.bo.reset()
			s.lastErr = nil
			s.state = SyncIdle
			s.mu.Unlock()
			timer.Reset(s.interval)
			continue
		}

		s.mu.Lock()
		s.lastErr = err
		exhausted := s.bo.exhausted()
		var delay time.Duration
		if !exhausted {
			delay = s.bo.next()
			s.state = SyncBackoff
		} else {
			s.state = SyncIdle
		}
		retries := s.bo.retries
		s.mu.Unlock()

		if exhausted {
			s.log.Error().Err(err).Int("retries", retries).Msg("sync retries exhausted, giving up until forced")
			s.session.MarkDisconnected()
			s.emit(EventSyncError, map[string]any{"error": err.Error(), "willRetry": false})
			// Park until a forced sync succeeds or the loop is stopped.
			select {
			case <-ctx.Done():
				return
			case <-s.wake:
				timer.Reset(0)
			}
			continue
		}

		if s.session.Connected() {
			s.session.MarkDegraded()
		}
		s.emit(EventSyncError, map[string]any{"error": err.Error(), "willRetry": true})
		s.log.Warn().Err(err).Dur("backoff", delay).Int("retries", retries).Msg("sync cycle failed, backing off")
		timer.Reset(delay)
	}
}

// ForceSync bypasses any pending backoff and runs a cycle now. The retry
// counter resets only when the cycle succeeds, so a failing service cannot
// be declared healthy by the user mashing refresh. Coalesces with an
// in-flight cycle.
func (s *syncController) ForceSync(ctx context.Context) error {
	err := s.cycle(ctx)
	if errors.Is(err, errSyncInFlight) {
		return nil
	}
	if err == nil {
		s.mu.Lock()
		s.bo.reset()
		s.lastErr = nil
		s.state = SyncIdle
		s.mu.Unlock()
		s.poke()
		return nil
	}
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	return err
}

// poke nudges the run loop awake without blocking.
func (s *syncController) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// cycle performs one poll: info, then messages and participants in
// parallel, then a single atomic application to the caches. The context is
// re-checked after every network await; once the controller is stopped,
// nothing more may be applied.
func (s *syncController) cycle(ctx context.Context) error {
	s.mu.Lock()
	if s.syncing {
		s.mu.Unlock()
		return errSyncInFlight
	}
	s.syncing = true
	s.state = SyncPolling
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.syncing = false
		s.mu.Unlock()
	}()

	info, err := s.api.info(ctx)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if s.session.ApplyInfo(*info) {
		s.emit(EventSessionRollover, map[string]any{"sessionId": info.SessionID})
	}
	s.session.MarkConnected()

	since := s.session.Cursor()
	initial := since.IsZero()

	var (
		wg      sync.WaitGroup
		msgs    []Message
		parts   []Participant
		msgErr  error
		partErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		msgs, msgErr = s.api.messagesSince(ctx, since)
	}()
	go func() {
		defer wg.Done()
		parts, partErr = s.api.participantsSince(ctx, since)
	}()
	wg.Wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}

	// The fetches fail independently: a participant outage must not block
	// message delivery, and vice versa.
	var stats SyncStats
	if msgErr == nil {
		stats.Added, stats.Updated = s.applyMessages(msgs, initial)
	}
	if partErr == nil {
		stats.Participants = s.applyParticipants(parts, initial)
	}
	if (msgErr == nil || partErr == nil) && s.applied != nil {
		s.applied()
	}
	if msgErr != nil {
		return msgErr
	}
	if partErr != nil {
		return partErr
	}

	s.emit(EventSyncComplete, stats)
	s.log.Debug().
		Int("added", stats.Added).
		Int("updated", stats.Updated).
		Int("participants", stats.Participants).
		Msg("sync cycle complete")
	return nil
}

// applyMessages lands a fetched batch in the message cache as one
// transition and advances the cursor to the newest createdAt it saw. The
// first fetch of a session installs the full set; afterwards the cache
// inserts unseen records and merges redelivered ones under a single lock.
func (s *syncController) applyMessages(msgs []Message, initial bool) (added, updated int) {
	if initial {
		s.messages.ReplaceAll(msgs)
		added = s.messages.Len()
	} else {
		added, updated = s.messages.UpsertMany(msgs)
	}
	var latest time.Time
	for i := range msgs {
		if msgs[i].CreatedAt.After(latest) {
			latest = msgs[i].CreatedAt
		}
	}
	if !latest.IsZero() {
		s.session.AdvanceCursor(latest)
	}
	return added, updated
}

func (s *syncController) applyParticipants(parts []Participant, initial bool) int {
	if initial {
		s.parts.ReplaceAll(parts)
		n := s.parts.Len()
		if n > 0 {
			s.emit(EventParticipants, n)
		}
		return n
	}
	n := s.parts.UpsertMany(parts)
	if n > 0 {
		s.emit(EventParticipants, n)
	}
	return n
}

// State returns the poll loop state.
func (s *syncController) State() SyncState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastError returns the most recent cycle failure, nil after a healthy
// cycle.
func (s *syncController) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *syncController) setState(st SyncState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Package seeding implements the cross-server seeding incentive engine:
// session lifecycle, the participant state machine, stacking reward grants,
// close preview, and symmetric reversal.
package seeding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sqdops/seedtrack/internal/domain"
	"github.com/sqdops/seedtrack/internal/metrics"
	"github.com/sqdops/seedtrack/internal/storage"
	"github.com/sqdops/seedtrack/internal/whitelist"
)

// Policy holds business-rule switches that are deliberate decisions rather
// than invariants.
type Policy struct {
	// SeederPlaytimeEligible extends the playtime track to seeders. By
	// default seeders only qualify for the completion track.
	SeederPlaytimeEligible bool
}

// Engine owns seeding sessions: it consumes presence events, drives the
// participant state machine, grants rewards through the whitelist
// collaborator, and handles close/cancel/revoke/reverse.
type Engine struct {
	store  *storage.Store
	wl     whitelist.Client
	policy Policy
	log    *logrus.Entry

	events chan domain.Event

	// Per-session locks serialize everything that can mutate one session:
	// presence events, playtime ticks, close, cancel, revoke, reverse. The
	// status flip and its completion pass run under one critical section so
	// auto-close fires exactly once.
	mu    sync.Mutex
	locks map[int64]*sync.Mutex

	tickInterval time.Duration
	done         chan struct{}
	wg           sync.WaitGroup
}

// New creates an engine over the given store and whitelist collaborator.
func New(store *storage.Store, wl whitelist.Client, policy Policy, tickInterval time.Duration) *Engine {
	if tickInterval == 0 {
		tickInterval = time.Minute
	}
	return &Engine{
		store:        store,
		wl:           wl,
		policy:       policy,
		log:          logrus.WithField("component", "seeding"),
		events:       make(chan domain.Event, 100),
		locks:        make(map[int64]*sync.Mutex),
		tickInterval: tickInterval,
		done:         make(chan struct{}),
	}
}

// Events returns the event channel for WebSocket broadcasting.
func (e *Engine) Events() <-chan domain.Event {
	return e.events
}

// Start launches the playtime accrual loop.
func (e *Engine) Start(ctx context.Context) {
	e.wg.Add(1)
	go e.tickLoop(ctx)

	if count, err := e.countActive(ctx); err == nil {
		metrics.ActiveSessions.Set(float64(count))
	}
}

// Stop shuts the engine down and waits for the tick loop to finish.
func (e *Engine) Stop() {
	close(e.done)
	e.wg.Wait()
}

func (e *Engine) countActive(ctx context.Context) (int, error) {
	sessions, err := e.store.GetActiveSessions(ctx)
	return len(sessions), err
}

// sessionLock returns the mutex guarding one session id.
func (e *Engine) sessionLock(sessionID int64) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[sessionID] = l
	}
	return l
}

// publish sends an event for WebSocket broadcast, dropping it if the
// channel is full.
func (e *Engine) publish(eventType string, sessionID int64, data interface{}) {
	ev := domain.Event{
		Type:      eventType,
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
	select {
	case e.events <- ev:
	default:
		e.log.Warn("event channel full, dropping event")
	}
}

// CreateSessionParams carries everything needed to open a session.
type CreateSessionParams struct {
	TargetServerID  int64
	PlayerThreshold int
	Rewards         domain.RewardsConfig
	TestMode        bool
	SourceServerIDs []int64
	CreatedBy       string
}

// CreateSession validates and opens a new session. In normal mode the
// source set is every other known server; test mode requires an explicit
// non-empty source list and relaxes the threshold floor to 1.
func (e *Engine) CreateSession(ctx context.Context, params CreateSessionParams) (*domain.SeedingSession, error) {
	if err := params.Rewards.Validate(); err != nil {
		return nil, err
	}

	sess := &domain.SeedingSession{
		TargetServerID:  params.TargetServerID,
		PlayerThreshold: params.PlayerThreshold,
		Rewards:         params.Rewards,
		TestMode:        params.TestMode,
		CreatedBy:       params.CreatedBy,
	}
	if err := sess.ValidateThreshold(); err != nil {
		return nil, err
	}

	if _, err := e.store.GetServerByID(ctx, params.TargetServerID); err != nil {
		return nil, domain.NewValidationError("unknown target server %d", params.TargetServerID)
	}

	if params.TestMode {
		if len(params.SourceServerIDs) == 0 {
			return nil, domain.NewValidationError("test mode requires an explicit source server list")
		}
		for _, id := range params.SourceServerIDs {
			if id == params.TargetServerID {
				return nil, domain.NewValidationError("target server cannot be its own source")
			}
			if _, err := e.store.GetServerByID(ctx, id); err != nil {
				return nil, domain.NewValidationError("unknown source server %d", id)
			}
		}
		sess.SourceServerIDs = params.SourceServerIDs
	} else {
		if len(params.SourceServerIDs) != 0 {
			return nil, domain.NewValidationError("source servers may only be specified in test mode")
		}
		servers, err := e.store.GetServers(ctx)
		if err != nil {
			return nil, err
		}
		for _, srv := range servers {
			if srv.ID != params.TargetServerID {
				sess.SourceServerIDs = append(sess.SourceServerIDs, srv.ID)
			}
		}
		if len(sess.SourceServerIDs) == 0 {
			return nil, domain.NewValidationError("no source servers available for target %d", params.TargetServerID)
		}
	}

	if err := e.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}

	metrics.ActiveSessions.Inc()
	e.audit(ctx, params.CreatedBy, storage.AuditSessionCreated, &sess.ID, nil, "",
		fmt.Sprintf("target=%d threshold=%d test=%v", sess.TargetServerID, sess.PlayerThreshold, sess.TestMode))
	e.publish(domain.EventSessionCreated, sess.ID, domain.SessionEvent{Session: *sess})
	e.log.WithFields(logrus.Fields{
		"session_id":       sess.ID,
		"target_server_id": sess.TargetServerID,
		"threshold":        sess.PlayerThreshold,
		"test_mode":        sess.TestMode,
	}).Info("seeding session created")

	return sess, nil
}

// CloseSession completes an active session manually, granting completion
// rewards to eligible participants.
func (e *Engine) CloseSession(ctx context.Context, sessionID int64, operator string) (*domain.SeedingSession, error) {
	lock := e.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := e.store.GetSessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != domain.SessionActive {
		return nil, domain.NewInvalidStateError("session %d is already %s", sessionID, sess.Status)
	}

	if err := e.completeLocked(ctx, sess, operator, time.Now().UTC()); err != nil {
		return nil, err
	}
	return e.store.GetSessionByID(ctx, sessionID)
}

// CancelSession terminates an active session without granting anything,
// regardless of participant progress.
func (e *Engine) CancelSession(ctx context.Context, sessionID int64, operator, reason string) (*domain.SeedingSession, error) {
	if reason == "" {
		return nil, domain.NewValidationError("cancellation requires a reason")
	}

	lock := e.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := e.store.GetSessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != domain.SessionActive {
		return nil, domain.NewInvalidStateError("session %d is already %s", sessionID, sess.Status)
	}

	now := time.Now().UTC()
	flipped, err := e.store.CloseSessionStatus(ctx, sessionID, domain.SessionCancelled, reason, now)
	if err != nil {
		return nil, err
	}
	if !flipped {
		return nil, domain.NewInvalidStateError("session %d is no longer active", sessionID)
	}

	metrics.ActiveSessions.Dec()
	metrics.SessionsClosed.WithLabelValues("cancelled").Inc()
	e.audit(ctx, operator, storage.AuditSessionCancelled, &sessionID, nil, reason, "")

	sess, err = e.store.GetSessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	e.publish(domain.EventSessionCancelled, sessionID, domain.SessionEvent{Session: *sess, Reason: reason})
	e.log.WithFields(logrus.Fields{"session_id": sessionID, "reason": reason}).Info("seeding session cancelled")
	return sess, nil
}

// completeLocked settles an active session: one reward pass over every
// participant, then the flip to completed. The flip comes last so a
// collaborator failure mid-pass surfaces to the caller with the session
// still active; retrying the close is safe against the write-once grant
// ledger. Caller holds the session lock and has verified the session is
// active.
func (e *Engine) completeLocked(ctx context.Context, sess *domain.SeedingSession, operator string, now time.Time) error {
	participants, err := e.store.ListParticipants(ctx, sess.ID, storage.ParticipantFilter{})
	if err != nil {
		return err
	}

	granted := 0
	for i := range participants {
		p := &participants[i]
		e.accruePlaytime(p, now)

		// The final partial window can cross the playtime threshold.
		playtimeDue := e.playtimeDue(sess, p)
		if playtimeDue && p.Type == domain.TypeSwitcher {
			p.AdvanceStatus(domain.StatusPlaytimeMet)
		}
		if err := e.store.UpdateParticipantState(ctx, p); err != nil {
			return err
		}
		if playtimeDue {
			if err := e.evaluateReward(ctx, sess, p, domain.TrackPlaytime, now); err != nil {
				return err
			}
		}

		if !p.CompletionEligible() {
			continue
		}
		if err := e.evaluateReward(ctx, sess, p, domain.TrackCompletion, now); err != nil {
			return err
		}
		granted++

		p.AdvanceStatus(domain.StatusCompleted)
		if err := e.store.UpdateParticipantState(ctx, p); err != nil {
			return err
		}
		e.publish(domain.EventParticipantUpdate, sess.ID, domain.ParticipantEvent{Participant: *p})
	}

	flipped, err := e.store.CloseSessionStatus(ctx, sess.ID, domain.SessionCompleted, "", now)
	if err != nil {
		return err
	}
	if !flipped {
		return domain.NewInvalidStateError("session %d is no longer active", sess.ID)
	}
	sess.Status = domain.SessionCompleted
	sess.ClosedAt = &now

	metrics.ActiveSessions.Dec()
	metrics.SessionsClosed.WithLabelValues("completed").Inc()
	e.audit(ctx, operator, storage.AuditSessionCompleted, &sess.ID, nil, "",
		fmt.Sprintf("completion rewards granted to %d participants", granted))
	e.publish(domain.EventSessionCompleted, sess.ID, domain.SessionEvent{Session: *sess})
	e.log.WithFields(logrus.Fields{
		"session_id": sess.ID,
		"granted":    granted,
	}).Info("seeding session completed")
	return nil
}

// checkAutoCloseLocked completes the session if the on-target count has
// reached the threshold, settling rewards as of now. Caller holds the
// session lock.
func (e *Engine) checkAutoCloseLocked(ctx context.Context, sess *domain.SeedingSession, now time.Time) error {
	if sess.Status != domain.SessionActive {
		return nil
	}
	count, err := e.store.CountOnTarget(ctx, sess.ID)
	if err != nil {
		return err
	}
	if count < sess.PlayerThreshold {
		return nil
	}
	e.log.WithFields(logrus.Fields{
		"session_id": sess.ID,
		"on_target":  count,
		"threshold":  sess.PlayerThreshold,
	}).Info("player threshold reached, auto-closing session")
	return e.completeLocked(ctx, sess, "auto", now)
}

// tickLoop periodically accrues playtime and re-checks thresholds, so a
// playtime reward fires even when no presence event arrives at the
// crossing minute.
func (e *Engine) tickLoop(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.Tick(ctx, time.Now().UTC()); err != nil {
				e.log.Errorf("tick failed: %v", err)
			}
		}
	}
}

// Tick advances playtime accounting for every active session up to now.
func (e *Engine) Tick(ctx context.Context, now time.Time) error {
	sessions, err := e.store.GetActiveSessions(ctx)
	if err != nil {
		return err
	}

	for i := range sessions {
		sess := &sessions[i]
		if err := e.tickSession(ctx, sess, now); err != nil {
			e.log.WithField("session_id", sess.ID).Errorf("session tick failed: %v", err)
		}
	}
	return nil
}

func (e *Engine) tickSession(ctx context.Context, sess *domain.SeedingSession, now time.Time) error {
	lock := e.sessionLock(sess.ID)
	lock.Lock()
	defer lock.Unlock()

	// Re-check under the lock; a close may have won the race.
	current, err := e.store.GetSessionByID(ctx, sess.ID)
	if err != nil {
		return err
	}
	if current.Status != domain.SessionActive {
		return nil
	}

	participants, err := e.store.ListParticipants(ctx, sess.ID, storage.ParticipantFilter{})
	if err != nil {
		return err
	}

	for i := range participants {
		p := &participants[i]
		if !p.IsOnTarget {
			continue
		}
		if e.accruePlaytime(p, now) == 0 {
			continue
		}
		due := e.playtimeDue(current, p)
		if due && p.Type == domain.TypeSwitcher {
			p.AdvanceStatus(domain.StatusPlaytimeMet)
		}
		// Accrued minutes commit even when the grant below fails.
		if err := e.store.UpdateParticipantState(ctx, p); err != nil {
			return err
		}
		if due {
			if err := e.evaluateReward(ctx, current, p, domain.TrackPlaytime, now); err != nil {
				return err
			}
		}
	}

	return e.checkAutoCloseLocked(ctx, current, now)
}

// audit writes an audit entry; failures are logged, never propagated, so
// bookkeeping trouble cannot abort a grant that already happened.
func (e *Engine) audit(ctx context.Context, operator, action string, sessionID, participantID *int64, reason, details string) {
	entry := &storage.AuditEntry{
		Operator:      operator,
		Action:        action,
		SessionID:     sessionID,
		ParticipantID: participantID,
		Reason:        reason,
		Details:       details,
	}
	if err := e.store.InsertAudit(ctx, entry); err != nil {
		e.log.Errorf("audit write failed: %v", err)
	}
}

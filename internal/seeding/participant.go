package seeding

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sqdops/seedtrack/internal/domain"
	"github.com/sqdops/seedtrack/internal/metrics"
	"github.com/sqdops/seedtrack/internal/storage"
)

// ObservePresence routes one presence feed event into every active session
// that tracks the event's server, creating participant records on first
// sight and driving the state machine. Reward evaluation runs synchronously
// so a threshold crossing closes the session the moment it happens.
func (e *Engine) ObservePresence(ctx context.Context, ev domain.PresenceEvent) error {
	if ev.SteamID == "" {
		return domain.NewValidationError("presence event missing steam id")
	}
	if ev.Event != domain.PresenceJoin && ev.Event != domain.PresenceLeave {
		return domain.NewValidationError("unknown presence event %q", ev.Event)
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	metrics.PresenceEvents.WithLabelValues(string(ev.Event)).Inc()

	sessions, err := e.store.GetActiveSessionsForServer(ctx, ev.ServerID)
	if err != nil {
		return err
	}

	for i := range sessions {
		if err := e.observeForSession(ctx, &sessions[i], ev); err != nil {
			e.log.WithFields(logrus.Fields{
				"session_id": sessions[i].ID,
				"steam_id":   ev.SteamID,
			}).Errorf("presence handling failed: %v", err)
		}
	}
	return nil
}

func (e *Engine) observeForSession(ctx context.Context, sess *domain.SeedingSession, ev domain.PresenceEvent) error {
	lock := e.sessionLock(sess.ID)
	lock.Lock()
	defer lock.Unlock()

	// Re-check under the lock; the session may have closed since the query.
	current, err := e.store.GetSessionByID(ctx, sess.ID)
	if err != nil {
		return err
	}
	if current.Status != domain.SessionActive {
		return nil
	}

	onTarget := current.TargetServerID == ev.ServerID

	p, err := e.store.GetParticipant(ctx, current.ID, ev.SteamID)
	switch {
	case err == nil:
		if err := e.updateParticipant(ctx, current, p, ev, onTarget); err != nil {
			return err
		}
	case errors.Is(err, domain.ErrNotFound):
		if ev.Event == domain.PresenceLeave {
			// A leave for a player we never saw join carries no information.
			return nil
		}
		p, err = e.createParticipant(ctx, current, ev, onTarget)
		if err != nil {
			return err
		}
	default:
		return err
	}

	e.publish(domain.EventParticipantUpdate, current.ID, domain.ParticipantEvent{Participant: *p})

	if onTarget && ev.Event == domain.PresenceJoin {
		return e.checkAutoCloseLocked(ctx, current, ev.Timestamp)
	}
	return nil
}

// createParticipant classifies a first observation: already on the target
// means seeder, on a source means switcher. The classification never
// changes afterward.
func (e *Engine) createParticipant(ctx context.Context, sess *domain.SeedingSession, ev domain.PresenceEvent, onTarget bool) (*domain.SeedingParticipant, error) {
	ts := ev.Timestamp
	p := &domain.SeedingParticipant{
		SessionID: sess.ID,
		SteamID:   ev.SteamID,
		Username:  ev.Username,
	}

	if onTarget {
		p.Type = domain.TypeSeeder
		p.Status = domain.StatusSeeder
		p.TargetJoinedAt = &ts
		p.PlaytimeAccruedAt = &ts
		p.IsOnTarget = true
	} else {
		p.Type = domain.TypeSwitcher
		p.Status = domain.StatusOnSource
		p.SourceJoinedAt = &ts
	}

	if err := e.store.CreateParticipant(ctx, p); err != nil {
		return nil, err
	}
	e.log.WithFields(logrus.Fields{
		"session_id": sess.ID,
		"steam_id":   p.SteamID,
		"type":       p.Type,
	}).Info("participant joined session")
	return p, nil
}

// updateParticipant applies one presence event to an existing record. All
// progression is monotonic: leaving never reverts a status, and duplicate
// events fall through as no-ops. The presence observation always commits;
// reward evaluation runs after the state write, so a collaborator failure
// leaves the track ungranted for the next qualifying observation without
// losing the observation itself.
func (e *Engine) updateParticipant(ctx context.Context, sess *domain.SeedingSession, p *domain.SeedingParticipant, ev domain.PresenceEvent, onTarget bool) error {
	ts := ev.Timestamp
	if ev.Username != "" {
		p.Username = ev.Username
	}

	var due []domain.RewardTrack

	switch {
	case onTarget && ev.Event == domain.PresenceJoin:
		if !p.IsOnTarget {
			p.IsOnTarget = true
			p.TargetJoinedAt = &ts
			p.TargetLeftAt = nil
			// Accrual resumes from the rejoin; time away never counts.
			p.PlaytimeAccruedAt = &ts
		}
		if p.Type == domain.TypeSwitcher {
			p.AdvanceStatus(domain.StatusSwitched)
			if !p.Granted(domain.TrackSwitch) {
				due = append(due, domain.TrackSwitch)
			}
		}

	case onTarget && ev.Event == domain.PresenceLeave:
		if p.IsOnTarget {
			e.accruePlaytime(p, ts)
			p.IsOnTarget = false
			p.TargetLeftAt = &ts
			p.PlaytimeAccruedAt = nil
		}

	case !onTarget && ev.Event == domain.PresenceJoin:
		// Latest source window wins; earlier cycles only matter for the
		// switcher classification already made.
		p.SourceJoinedAt = &ts
		p.SourceLeftAt = nil

	case !onTarget && ev.Event == domain.PresenceLeave:
		p.SourceLeftAt = &ts
	}

	if e.playtimeDue(sess, p) {
		if p.Type == domain.TypeSwitcher {
			// Threshold can only be met after switching; status follows.
			p.AdvanceStatus(domain.StatusPlaytimeMet)
		}
		due = append(due, domain.TrackPlaytime)
	}

	if err := e.store.UpdateParticipantState(ctx, p); err != nil {
		return err
	}

	for _, track := range due {
		if err := e.evaluateReward(ctx, sess, p, track, ts); err != nil {
			return err
		}
	}
	return nil
}

// accruePlaytime advances the participant's accumulated on-target minutes
// up to now, returning how many whole minutes were added. Partial minutes
// stay pending in the accrual marker.
func (e *Engine) accruePlaytime(p *domain.SeedingParticipant, now time.Time) int64 {
	if !p.IsOnTarget || p.PlaytimeAccruedAt == nil {
		return 0
	}
	elapsed := now.Sub(*p.PlaytimeAccruedAt)
	mins := int64(elapsed / time.Minute)
	if mins <= 0 {
		return 0
	}
	p.TargetPlaytimeMinutes += mins
	next := p.PlaytimeAccruedAt.Add(time.Duration(mins) * time.Minute)
	p.PlaytimeAccruedAt = &next
	return mins
}

// playtimeDue reports whether the playtime track should fire now:
// configured, not yet granted, eligible under the seeder policy, and past
// the threshold. Without a playtime track the participant simply stays
// switched until completion.
func (e *Engine) playtimeDue(sess *domain.SeedingSession, p *domain.SeedingParticipant) bool {
	track := sess.Rewards.Playtime
	if track == nil || p.Granted(domain.TrackPlaytime) {
		return false
	}
	if !e.playtimeEligible(p) {
		return false
	}
	return p.TargetPlaytimeMinutes >= track.ThresholdMinutes
}

// playtimeEligible applies the seeder policy: switchers always accrue
// toward the playtime track, seeders only when the policy opts them in.
func (e *Engine) playtimeEligible(p *domain.SeedingParticipant) bool {
	if p.Type == domain.TypeSwitcher {
		return true
	}
	return e.policy.SeederPlaytimeEligible
}

// GetSession returns a session with counters.
func (e *Engine) GetSession(ctx context.Context, sessionID int64) (*domain.SeedingSession, error) {
	return e.store.GetSessionByID(ctx, sessionID)
}

// ListSessions returns sessions, optionally filtered by status.
func (e *Engine) ListSessions(ctx context.Context, status string, limit int) ([]domain.SeedingSession, error) {
	return e.store.ListSessions(ctx, status, limit)
}

// ListParticipants returns a session's participants with optional filters.
func (e *Engine) ListParticipants(ctx context.Context, sessionID int64, filter storage.ParticipantFilter) ([]domain.SeedingParticipant, error) {
	if _, err := e.store.GetSessionByID(ctx, sessionID); err != nil {
		return nil, err
	}
	return e.store.ListParticipants(ctx, sessionID, filter)
}

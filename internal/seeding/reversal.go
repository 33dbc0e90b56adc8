package seeding

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/sqdops/seedtrack/internal/domain"
	"github.com/sqdops/seedtrack/internal/metrics"
	"github.com/sqdops/seedtrack/internal/storage"
)

// RevokeParticipant retracts every grant a participant received under a
// session and clears the ledger. Only settled (non-active) sessions can be
// revoked, so a revoke never races live grant evaluation.
func (e *Engine) RevokeParticipant(ctx context.Context, sessionID, participantID int64, operator, reason string) (*domain.SeedingParticipant, error) {
	if reason == "" {
		return nil, domain.NewValidationError("revocation requires a reason")
	}

	lock := e.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := e.store.GetSessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status == domain.SessionActive {
		return nil, domain.NewInvalidStateError("cannot revoke rewards while session %d is active", sessionID)
	}

	p, err := e.store.GetParticipantByID(ctx, participantID)
	if err != nil {
		return nil, err
	}
	if p.SessionID != sessionID {
		return nil, domain.NewValidationError("participant %d does not belong to session %d", participantID, sessionID)
	}

	if err := e.revokeGrantsLocked(ctx, sess, p, operator, reason); err != nil {
		return nil, err
	}
	return e.store.GetParticipantByID(ctx, participantID)
}

// ReverseSessionRewards revokes every grant issued under a session. Safe to
// re-run: participants whose ledger is already clean are skipped.
func (e *Engine) ReverseSessionRewards(ctx context.Context, sessionID int64, operator, reason string) (int, error) {
	if reason == "" {
		return 0, domain.NewValidationError("reversal requires a reason")
	}

	lock := e.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := e.store.GetSessionByID(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if sess.Status == domain.SessionActive {
		return 0, domain.NewInvalidStateError("cannot reverse rewards while session %d is active", sessionID)
	}

	participants, err := e.store.ListParticipants(ctx, sessionID, storage.ParticipantFilter{})
	if err != nil {
		return 0, err
	}

	reversed := 0
	for i := range participants {
		p := &participants[i]
		if !p.HasAnyGrant() {
			continue
		}
		if err := e.revokeGrantsLocked(ctx, sess, p, operator, reason); err != nil {
			return reversed, err
		}
		reversed++
	}

	e.audit(ctx, operator, storage.AuditSessionReversed, &sessionID, nil, reason,
		fmt.Sprintf("reversed grants for %d participants", reversed))
	e.publish(domain.EventSessionReversed, sessionID, domain.SessionEvent{Session: *sess, Reason: reason})
	e.log.WithFields(logrus.Fields{
		"session_id": sessionID,
		"reversed":   reversed,
	}).Info("session rewards reversed")

	return reversed, nil
}

// revokeGrantsLocked undoes each non-null grant on one participant. The
// retraction is confirmed before anything is cleared, so a collaborator
// failure leaves the grant intact for a safe retry. Caller holds the
// session lock.
func (e *Engine) revokeGrantsLocked(ctx context.Context, sess *domain.SeedingSession, p *domain.SeedingParticipant, operator, reason string) error {
	type grant struct {
		track   domain.RewardTrack
		id      string
		minutes int64
	}
	var grants []grant
	if p.SwitchRewardedAt != nil {
		grants = append(grants, grant{domain.TrackSwitch, p.SwitchGrantID, p.SwitchGrantMinutes})
	}
	if p.PlaytimeRewardedAt != nil {
		grants = append(grants, grant{domain.TrackPlaytime, p.PlaytimeGrantID, p.PlaytimeGrantMinutes})
	}
	if p.CompletionRewardedAt != nil {
		grants = append(grants, grant{domain.TrackCompletion, p.CompletionGrantID, p.CompletionGrantMinutes})
	}

	for _, g := range grants {
		// Retract by the stored record id and minutes, never by anything
		// recomputed from config.
		if err := e.wl.Retract(ctx, g.id); err != nil {
			metrics.GrantFailures.WithLabelValues("retract").Inc()
			return domain.NewDependencyError("whitelist retract", err)
		}

		cleared, err := e.store.ClearGrant(ctx, p.ID, g.track)
		if err != nil {
			return fmt.Errorf("clearing %s grant: %w", g.track, err)
		}
		if !cleared {
			continue
		}

		metrics.RewardsRevoked.WithLabelValues(string(g.track)).Inc()
		e.audit(ctx, operator, storage.AuditRewardRevoked, &sess.ID, &p.ID, reason,
			fmt.Sprintf("track=%s steam_id=%s minutes=%d grant_id=%s", g.track, p.SteamID, g.minutes, g.id))
		e.publish(domain.EventRewardRevoked, sess.ID, domain.RewardEvent{
			SteamID:  p.SteamID,
			Username: p.Username,
			Track:    g.track,
			Minutes:  g.minutes,
		})
		e.log.WithFields(logrus.Fields{
			"session_id": sess.ID,
			"steam_id":   p.SteamID,
			"track":      g.track,
		}).Info("reward revoked")
	}

	return nil
}

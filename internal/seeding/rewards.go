package seeding

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sqdops/seedtrack/internal/domain"
	"github.com/sqdops/seedtrack/internal/metrics"
	"github.com/sqdops/seedtrack/internal/storage"
)

// sourceTag labels a whitelist grant with the session that produced it.
// Test-mode grants get a distinct prefix so they are filterable in the
// collaborator's ledger.
func sourceTag(sess *domain.SeedingSession) string {
	if sess.TestMode {
		return fmt.Sprintf("seeding-test:%d", sess.ID)
	}
	return fmt.Sprintf("seeding:%d", sess.ID)
}

// evaluateReward applies exactly one reward track to a participant:
// guard, convert to minutes, grant externally, then persist the ledger
// entry. A duplicate trigger is a no-op; a collaborator failure leaves no
// trace; a persistence failure retracts the fresh grant so the two sides
// never diverge. Caller holds the session lock.
func (e *Engine) evaluateReward(ctx context.Context, sess *domain.SeedingSession, p *domain.SeedingParticipant, track domain.RewardTrack, now time.Time) error {
	minutes := sess.Rewards.TrackMinutes(track)
	if minutes == 0 {
		return nil
	}
	if p.Granted(track) {
		return nil
	}

	grantID, err := e.wl.Grant(ctx, p.SteamID, minutes, sourceTag(sess))
	if err != nil {
		metrics.GrantFailures.WithLabelValues("grant").Inc()
		return domain.NewDependencyError("whitelist grant", err)
	}

	applied, err := e.store.ApplyGrant(ctx, p.ID, track, grantID, now, minutes)
	if err == nil && !applied {
		err = fmt.Errorf("grant ledger already holds a %s reward", track)
	}
	if err != nil {
		// Roll the external side back; the grant id is all we need.
		if rerr := e.wl.Retract(ctx, grantID); rerr != nil {
			e.log.WithFields(logrus.Fields{
				"grant_id": grantID,
				"steam_id": p.SteamID,
			}).Errorf("failed to retract orphaned grant: %v", rerr)
		}
		return fmt.Errorf("recording %s grant: %w", track, err)
	}

	ts := now
	switch track {
	case domain.TrackSwitch:
		p.SwitchRewardedAt = &ts
		p.SwitchGrantID = grantID
		p.SwitchGrantMinutes = minutes
	case domain.TrackPlaytime:
		p.PlaytimeRewardedAt = &ts
		p.PlaytimeGrantID = grantID
		p.PlaytimeGrantMinutes = minutes
	case domain.TrackCompletion:
		p.CompletionRewardedAt = &ts
		p.CompletionGrantID = grantID
		p.CompletionGrantMinutes = minutes
	}
	p.TotalRewardMinutes += minutes

	metrics.RewardsGranted.WithLabelValues(string(track)).Inc()
	e.audit(ctx, "engine", storage.AuditRewardGranted, &sess.ID, &p.ID, "",
		fmt.Sprintf("track=%s steam_id=%s minutes=%d grant_id=%s", track, p.SteamID, minutes, grantID))
	e.publish(domain.EventRewardGranted, sess.ID, domain.RewardEvent{
		SteamID:  p.SteamID,
		Username: p.Username,
		Track:    track,
		Minutes:  minutes,
		TestMode: sess.TestMode,
	})
	e.log.WithFields(logrus.Fields{
		"session_id": sess.ID,
		"steam_id":   p.SteamID,
		"track":      track,
		"minutes":    minutes,
	}).Info("reward granted")

	return nil
}

package seeding

import (
	"context"

	"github.com/sqdops/seedtrack/internal/domain"
	"github.com/sqdops/seedtrack/internal/storage"
)

// PreviewClose computes what completing the session right now would grant,
// without mutating anything. It relies on the same eligibility predicate as
// the real completion pass, so preview and close can never disagree.
func (e *Engine) PreviewClose(ctx context.Context, sessionID int64) (*domain.ClosePreview, error) {
	sess, err := e.store.GetSessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	preview := &domain.ClosePreview{SessionID: sessionID}
	if sess.Rewards.Completion == nil {
		return preview, nil
	}

	participants, err := e.store.ListParticipants(ctx, sessionID, storage.ParticipantFilter{})
	if err != nil {
		return nil, err
	}

	perParticipant := sess.Rewards.Completion.Minutes()
	for i := range participants {
		if participants[i].CompletionEligible() {
			preview.ParticipantsToReward++
		}
	}
	preview.TotalMinutes = int64(preview.ParticipantsToReward) * perParticipant
	preview.TotalWhitelistDays = float64(preview.TotalMinutes) / float64(domain.MinutesPerDay)

	return preview, nil
}

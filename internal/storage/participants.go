package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sqdops/seedtrack/internal/domain"
)

const participantColumns = `
	id, session_id, steam_id, username, participant_type, status,
	source_joined_at, source_left_at, target_joined_at, target_left_at,
	target_playtime_minutes, playtime_accrued_at, is_on_target,
	switch_rewarded_at, switch_grant_id, switch_granted_minutes,
	playtime_rewarded_at, playtime_grant_id, playtime_granted_minutes,
	completion_rewarded_at, completion_grant_id, completion_granted_minutes,
	total_reward_minutes
`

// ParticipantFilter narrows participant listings.
type ParticipantFilter struct {
	Status domain.ParticipantStatus
	Type   domain.ParticipantType
}

// CreateParticipant inserts a new participant record.
func (s *Store) CreateParticipant(ctx context.Context, p *domain.SeedingParticipant) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO seeding_participants (
			session_id, steam_id, username, participant_type, status,
			source_joined_at, source_left_at, target_joined_at, target_left_at,
			target_playtime_minutes, playtime_accrued_at, is_on_target
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.SessionID, p.SteamID, p.Username, string(p.Type), string(p.Status),
		nullTimestamp(p.SourceJoinedAt), nullTimestamp(p.SourceLeftAt),
		nullTimestamp(p.TargetJoinedAt), nullTimestamp(p.TargetLeftAt),
		p.TargetPlaytimeMinutes, nullTimestamp(p.PlaytimeAccruedAt), p.IsOnTarget)
	if err != nil {
		return fmt.Errorf("creating participant: %w", err)
	}
	p.ID, _ = result.LastInsertId()
	return nil
}

// GetParticipant finds a participant by session and steam id.
func (s *Store) GetParticipant(ctx context.Context, sessionID int64, steamID string) (*domain.SeedingParticipant, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+participantColumns+` FROM seeding_participants
		WHERE session_id = ? AND steam_id = ?
	`, sessionID, steamID)
	p, err := scanParticipant(row)
	if err == sql.ErrNoRows {
		return nil, domain.NewNotFoundError("participant %s in session %d", steamID, sessionID)
	}
	return p, err
}

// GetParticipantByID finds a participant by row id.
func (s *Store) GetParticipantByID(ctx context.Context, id int64) (*domain.SeedingParticipant, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+participantColumns+` FROM seeding_participants WHERE id = ?
	`, id)
	p, err := scanParticipant(row)
	if err == sql.ErrNoRows {
		return nil, domain.NewNotFoundError("participant %d", id)
	}
	return p, err
}

// ListParticipants returns participants for a session with optional filters.
func (s *Store) ListParticipants(ctx context.Context, sessionID int64, filter ParticipantFilter) ([]domain.SeedingParticipant, error) {
	query := `SELECT ` + participantColumns + ` FROM seeding_participants WHERE session_id = ?`
	args := []interface{}{sessionID}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Type != "" {
		query += ` AND participant_type = ?`
		args = append(args, string(filter.Type))
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var participants []domain.SeedingParticipant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		participants = append(participants, *p)
	}
	return participants, rows.Err()
}

// UpdateParticipantState writes the presence and progression fields. Grant
// ledger fields are only touched through ApplyGrant / ClearGrant.
func (s *Store) UpdateParticipantState(ctx context.Context, p *domain.SeedingParticipant) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE seeding_participants SET
			username = ?, status = ?,
			source_joined_at = ?, source_left_at = ?,
			target_joined_at = ?, target_left_at = ?,
			target_playtime_minutes = ?, playtime_accrued_at = ?, is_on_target = ?
		WHERE id = ?
	`, p.Username, string(p.Status),
		nullTimestamp(p.SourceJoinedAt), nullTimestamp(p.SourceLeftAt),
		nullTimestamp(p.TargetJoinedAt), nullTimestamp(p.TargetLeftAt),
		p.TargetPlaytimeMinutes, nullTimestamp(p.PlaytimeAccruedAt), p.IsOnTarget,
		p.ID)
	return err
}

// grantColumnPrefix maps a reward track to its ledger column prefix.
func grantColumnPrefix(track domain.RewardTrack) (string, error) {
	switch track {
	case domain.TrackSwitch:
		return "switch", nil
	case domain.TrackPlaytime:
		return "playtime", nil
	case domain.TrackCompletion:
		return "completion", nil
	}
	return "", fmt.Errorf("unknown reward track %q", track)
}

// ApplyGrant records a granted reward track: sets the write-once timestamp,
// stores the whitelist grant record id and the granted minutes, and adds
// the minutes to the total. Returns false without changes if the track was
// already granted, which makes duplicate event delivery a no-op at the
// storage layer too.
func (s *Store) ApplyGrant(ctx context.Context, participantID int64, track domain.RewardTrack, grantID string, at time.Time, minutes int64) (bool, error) {
	col, err := grantColumnPrefix(track)
	if err != nil {
		return false, err
	}

	result, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE seeding_participants SET
			%[1]s_rewarded_at = ?,
			%[1]s_grant_id = ?,
			%[1]s_granted_minutes = ?,
			total_reward_minutes = total_reward_minutes + ?
		WHERE id = ? AND %[1]s_rewarded_at IS NULL
	`, col), formatTimestamp(at), grantID, minutes, minutes, participantID)
	if err != nil {
		return false, err
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// ClearGrant undoes a recorded grant, subtracting the minutes recorded at
// grant time rather than anything recomputed from config, so the undo is
// exact by construction. Returns false if the track held no grant.
func (s *Store) ClearGrant(ctx context.Context, participantID int64, track domain.RewardTrack) (bool, error) {
	col, err := grantColumnPrefix(track)
	if err != nil {
		return false, err
	}

	result, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE seeding_participants SET
			%[1]s_rewarded_at = NULL,
			%[1]s_grant_id = NULL,
			%[1]s_granted_minutes = 0,
			total_reward_minutes = total_reward_minutes - %[1]s_granted_minutes
		WHERE id = ? AND %[1]s_rewarded_at IS NOT NULL
	`, col), participantID)
	if err != nil {
		return false, err
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// CountOnTarget returns how many participants are currently on the target
// server for a session.
func (s *Store) CountOnTarget(ctx context.Context, sessionID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM seeding_participants WHERE session_id = ? AND is_on_target
	`, sessionID).Scan(&count)
	return count, err
}

// nullTimestamp formats a nullable time for storage.
func nullTimestamp(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return formatTimestamp(*t)
}

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sqdops/seedtrack/internal/domain"
)

const sessionColumns = `
	id, target_server_id, player_threshold, test_mode, status, cancel_reason,
	created_by, created_at, closed_at,
	switch_value, switch_unit,
	playtime_value, playtime_unit, playtime_threshold_minutes,
	completion_value, completion_unit
`

// CreateSession inserts a session and its source server set in one
// transaction. The partial unique index on (target_server_id) WHERE
// status='active' makes a second concurrent create fail instead of
// producing two active sessions.
func (s *Store) CreateSession(ctx context.Context, sess *domain.SeedingSession) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	var switchVal, playVal, playThresh, compVal interface{}
	var switchUnit, playUnit, compUnit interface{}
	if sess.Rewards.Switch != nil {
		switchVal, switchUnit = sess.Rewards.Switch.Value, string(sess.Rewards.Switch.Unit)
	}
	if sess.Rewards.Playtime != nil {
		playVal, playUnit = sess.Rewards.Playtime.Value, string(sess.Rewards.Playtime.Unit)
		playThresh = sess.Rewards.Playtime.ThresholdMinutes
	}
	if sess.Rewards.Completion != nil {
		compVal, compUnit = sess.Rewards.Completion.Value, string(sess.Rewards.Completion.Unit)
	}

	now := sess.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
		sess.CreatedAt = now
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO seeding_sessions (
			target_server_id, player_threshold, test_mode, status, created_by, created_at,
			switch_value, switch_unit,
			playtime_value, playtime_unit, playtime_threshold_minutes,
			completion_value, completion_unit
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sess.TargetServerID, sess.PlayerThreshold, sess.TestMode, string(domain.SessionActive),
		sess.CreatedBy, formatTimestamp(now),
		switchVal, switchUnit, playVal, playUnit, playThresh, compVal, compUnit)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return domain.NewConflictError("target server %d already has an active session", sess.TargetServerID)
		}
		return err
	}

	sess.ID, _ = result.LastInsertId()
	sess.Status = domain.SessionActive

	for _, srvID := range sess.SourceServerIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO session_source_servers (session_id, server_id) VALUES (?, ?)
		`, sess.ID, srvID); err != nil {
			return fmt.Errorf("recording source server: %w", err)
		}
	}

	return tx.Commit()
}

// GetSessionByID returns a session with its source set and derived counters.
func (s *Store) GetSessionByID(ctx context.Context, id int64) (*domain.SeedingSession, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM seeding_sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, domain.NewNotFoundError("session %d", id)
	}
	if err != nil {
		return nil, err
	}

	if err := s.loadSessionExtras(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// ListSessions returns sessions, newest first, optionally filtered by status.
func (s *Store) ListSessions(ctx context.Context, status string, limit int) ([]domain.SeedingSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM seeding_sessions`
	var args []interface{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []domain.SeedingSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range sessions {
		if err := s.loadSessionExtras(ctx, &sessions[i]); err != nil {
			return nil, err
		}
	}
	return sessions, nil
}

// GetActiveSessionsForServer returns active sessions for which the given
// server is either the target or a source.
func (s *Store) GetActiveSessionsForServer(ctx context.Context, serverID int64) ([]domain.SeedingSession, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM seeding_sessions s
		WHERE s.status = 'active' AND (
			s.target_server_id = ?
			OR EXISTS (SELECT 1 FROM session_source_servers ss WHERE ss.session_id = s.id AND ss.server_id = ?)
		)
	`, serverID, serverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []domain.SeedingSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range sessions {
		if err := s.loadSessionSources(ctx, &sessions[i]); err != nil {
			return nil, err
		}
	}
	return sessions, nil
}

// GetActiveSessions returns all active sessions with their source sets.
func (s *Store) GetActiveSessions(ctx context.Context) ([]domain.SeedingSession, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM seeding_sessions WHERE status = 'active' ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []domain.SeedingSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range sessions {
		if err := s.loadSessionSources(ctx, &sessions[i]); err != nil {
			return nil, err
		}
	}
	return sessions, nil
}

// CloseSessionStatus flips an active session to a terminal status. Returns
// false when the session was not active, so a concurrent close loses the
// race cleanly instead of firing a second completion pass.
func (s *Store) CloseSessionStatus(ctx context.Context, id int64, status domain.SessionStatus, reason string, closedAt time.Time) (bool, error) {
	var cancelReason interface{}
	if reason != "" {
		cancelReason = reason
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE seeding_sessions
		SET status = ?, cancel_reason = ?, closed_at = ?
		WHERE id = ? AND status = 'active'
	`, string(status), cancelReason, formatTimestamp(closedAt), id)
	if err != nil {
		return false, err
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// loadSessionSources populates the source server id set.
func (s *Store) loadSessionSources(ctx context.Context, sess *domain.SeedingSession) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT server_id FROM session_source_servers WHERE session_id = ? ORDER BY server_id
	`, sess.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	sess.SourceServerIDs = nil
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return err
		}
		sess.SourceServerIDs = append(sess.SourceServerIDs, id)
	}
	return rows.Err()
}

// loadSessionExtras populates sources and the denormalized display counters.
// The counters are recomputed from participant rows, never stored.
func (s *Store) loadSessionExtras(ctx context.Context, sess *domain.SeedingSession) error {
	if err := s.loadSessionSources(ctx, sess); err != nil {
		return err
	}

	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM seeding_participants WHERE session_id = ?
	`, sess.ID).Scan(&sess.ParticipantCount); err != nil {
		return err
	}

	return s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(
			(switch_rewarded_at IS NOT NULL) +
			(playtime_rewarded_at IS NOT NULL) +
			(completion_rewarded_at IS NOT NULL)
		), 0)
		FROM seeding_participants WHERE session_id = ?
	`, sess.ID).Scan(&sess.RewardsGranted)
}

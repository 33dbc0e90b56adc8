package storage

import (
	"context"
	"database/sql"
	"time"
)

// Audit actions recorded by the engine. Destructive ones always carry a
// human-readable reason from the operator.
const (
	AuditSessionCreated   = "session_created"
	AuditSessionCompleted = "session_completed"
	AuditSessionCancelled = "session_cancelled"
	AuditRewardGranted    = "reward_granted"
	AuditRewardRevoked    = "reward_revoked"
	AuditSessionReversed  = "session_reversed"
)

// AuditEntry is one append-only row in the engine's action trail.
type AuditEntry struct {
	ID            int64     `json:"id"`
	Operator      string    `json:"operator"`
	Action        string    `json:"action"`
	SessionID     *int64    `json:"session_id,omitempty"`
	ParticipantID *int64    `json:"participant_id,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	Details       string    `json:"details,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// InsertAudit appends an audit entry.
func (s *Store) InsertAudit(ctx context.Context, e *AuditEntry) error {
	now := e.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
		e.CreatedAt = now
	}
	var reason, details interface{}
	if e.Reason != "" {
		reason = e.Reason
	}
	if e.Details != "" {
		details = e.Details
	}
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (operator, action, session_id, participant_id, reason, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.Operator, e.Action, e.SessionID, e.ParticipantID, reason, details, formatTimestamp(now))
	if err != nil {
		return err
	}
	e.ID, _ = result.LastInsertId()
	return nil
}

// ListAudit returns audit entries, newest first, optionally scoped to one
// session.
func (s *Store) ListAudit(ctx context.Context, sessionID *int64, limit int) ([]AuditEntry, error) {
	query := `
		SELECT id, operator, action, session_id, participant_id, reason, details, created_at
		FROM audit_log`
	var args []interface{}
	if sessionID != nil {
		query += ` WHERE session_id = ?`
		args = append(args, *sessionID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var sessID, partID sql.NullInt64
		var reason, details sql.NullString
		if err := rows.Scan(&e.ID, &e.Operator, &e.Action, &sessID, &partID, &reason, &details, &e.CreatedAt); err != nil {
			return nil, err
		}
		if sessID.Valid {
			e.SessionID = &sessID.Int64
		}
		if partID.Valid {
			e.ParticipantID = &partID.Int64
		}
		e.Reason = scanNullStringValue(reason)
		e.Details = scanNullStringValue(details)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

package domain

import "time"

// SessionStatus is the lifecycle status of a seeding session.
// Completed and cancelled are terminal.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionCancelled SessionStatus = "cancelled"
)

// Terminal reports whether the status allows no further transitions.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionCancelled
}

// Session threshold bounds. Test mode relaxes the floor to allow
// exercising a session with a single player.
const (
	MinPlayerThreshold     = 10
	MinTestPlayerThreshold = 1
	MaxPlayerThreshold     = 99
)

// SeedingSession is one cross-server seeding incentive campaign against a
// target server. At most one active session may exist per target server.
type SeedingSession struct {
	ID              int64         `json:"id"`
	TargetServerID  int64         `json:"target_server_id"`
	SourceServerIDs []int64       `json:"source_server_ids"`
	PlayerThreshold int           `json:"player_threshold"`
	Rewards         RewardsConfig `json:"rewards"`
	TestMode        bool          `json:"test_mode"`
	Status          SessionStatus `json:"status"`
	CancelReason    string        `json:"cancel_reason,omitempty"`
	CreatedBy       string        `json:"created_by"`
	CreatedAt       time.Time     `json:"created_at"`
	ClosedAt        *time.Time    `json:"closed_at,omitempty"`

	// Denormalized for display; recomputable from participant rows.
	ParticipantCount int `json:"participant_count"`
	RewardsGranted   int `json:"rewards_granted"`
}

// ValidateThreshold checks the player threshold against the session's mode.
func (s *SeedingSession) ValidateThreshold() error {
	min := MinPlayerThreshold
	if s.TestMode {
		min = MinTestPlayerThreshold
	}
	if s.PlayerThreshold < min || s.PlayerThreshold > MaxPlayerThreshold {
		return NewValidationError("player threshold %d out of range [%d, %d]", s.PlayerThreshold, min, MaxPlayerThreshold)
	}
	return nil
}

// ClosePreview is a read-only projection of what completing a session would
// grant, computed with the same eligibility predicate as the real close.
type ClosePreview struct {
	SessionID            int64   `json:"session_id"`
	ParticipantsToReward int     `json:"participants_to_reward"`
	TotalWhitelistDays   float64 `json:"total_whitelist_days"`
	TotalMinutes         int64   `json:"total_minutes"`
}

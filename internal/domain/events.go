package domain

import "time"

// Event types for WebSocket notifications
const (
	EventSessionCreated     = "session_created"
	EventSessionCompleted   = "session_completed"
	EventSessionCancelled   = "session_cancelled"
	EventParticipantUpdate  = "participant_update"
	EventRewardGranted      = "reward_granted"
	EventRewardRevoked      = "reward_revoked"
	EventSessionReversed    = "session_reversed"
)

// Event represents a real-time event for WebSocket broadcast
type Event struct {
	Type      string      `json:"event"`
	SessionID int64       `json:"session_id"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// SessionEvent carries a session snapshot on lifecycle transitions
type SessionEvent struct {
	Session SeedingSession `json:"session"`
	Reason  string         `json:"reason,omitempty"`
}

// ParticipantEvent is sent when a participant's record changes
type ParticipantEvent struct {
	Participant SeedingParticipant `json:"participant"`
}

// RewardEvent is sent when a reward track is granted or revoked
type RewardEvent struct {
	SteamID  string      `json:"steam_id"`
	Username string      `json:"username,omitempty"`
	Track    RewardTrack `json:"track"`
	Minutes  int64       `json:"minutes"`
	TestMode bool        `json:"test_mode,omitempty"`
}

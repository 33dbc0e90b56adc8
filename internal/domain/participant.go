package domain

import "time"

// ParticipantType classifies a participant at first observation and never
// changes: a switcher was seen on a source server first, a seeder was
// already on the target.
type ParticipantType string

const (
	TypeSwitcher ParticipantType = "switcher"
	TypeSeeder   ParticipantType = "seeder"
)

// ParticipantStatus is the monotonic progression status. Presence on the
// target is tracked separately (IsOnTarget); leaving never moves a
// participant backward.
type ParticipantStatus string

const (
	StatusOnSource    ParticipantStatus = "on_source"
	StatusSeeder      ParticipantStatus = "seeder"
	StatusSwitched    ParticipantStatus = "switched"
	StatusPlaytimeMet ParticipantStatus = "playtime_met"
	StatusCompleted   ParticipantStatus = "completed"
)

// statusRank orders statuses for the monotonicity guard.
var statusRank = map[ParticipantStatus]int{
	StatusOnSource:    0,
	StatusSeeder:      0,
	StatusSwitched:    1,
	StatusPlaytimeMet: 2,
	StatusCompleted:   3,
}

// SeedingParticipant is one player's record under one session.
type SeedingParticipant struct {
	ID        int64  `json:"id"`
	SessionID int64  `json:"session_id"`
	SteamID   string `json:"steam_id"`
	Username  string `json:"username"`

	Type   ParticipantType   `json:"participant_type"`
	Status ParticipantStatus `json:"status"`

	SourceJoinedAt *time.Time `json:"source_joined_at,omitempty"`
	SourceLeftAt   *time.Time `json:"source_left_at,omitempty"`
	TargetJoinedAt *time.Time `json:"target_joined_at,omitempty"`
	TargetLeftAt   *time.Time `json:"target_left_at,omitempty"`

	// TargetPlaytimeMinutes accumulates only while the participant is on the
	// target and the session is active. PlaytimeAccruedAt marks how far
	// accrual has advanced within the current on-target window.
	TargetPlaytimeMinutes int64      `json:"target_playtime_minutes"`
	PlaytimeAccruedAt     *time.Time `json:"-"`

	IsOnTarget bool `json:"is_on_target"`

	// Grant ledger. Each timestamp is write-once until cleared by a
	// revocation; the grant id and granted minutes are recorded at grant
	// time so a revoke retracts and subtracts exactly what was issued.
	SwitchRewardedAt       *time.Time `json:"switch_rewarded_at,omitempty"`
	SwitchGrantID          string     `json:"-"`
	SwitchGrantMinutes     int64      `json:"-"`
	PlaytimeRewardedAt     *time.Time `json:"playtime_rewarded_at,omitempty"`
	PlaytimeGrantID        string     `json:"-"`
	PlaytimeGrantMinutes   int64      `json:"-"`
	CompletionRewardedAt   *time.Time `json:"completion_rewarded_at,omitempty"`
	CompletionGrantID      string     `json:"-"`
	CompletionGrantMinutes int64      `json:"-"`
	TotalRewardMinutes     int64      `json:"total_reward_minutes"`
}

// Granted reports whether the given track has already been granted.
func (p *SeedingParticipant) Granted(track RewardTrack) bool {
	switch track {
	case TrackSwitch:
		return p.SwitchRewardedAt != nil
	case TrackPlaytime:
		return p.PlaytimeRewardedAt != nil
	case TrackCompletion:
		return p.CompletionRewardedAt != nil
	}
	return false
}

// HasAnyGrant reports whether any track has been granted.
func (p *SeedingParticipant) HasAnyGrant() bool {
	return p.SwitchRewardedAt != nil || p.PlaytimeRewardedAt != nil || p.CompletionRewardedAt != nil
}

// AdvanceStatus moves the participant to next if and only if that is a
// forward move. This is the single authority on status progression.
func (p *SeedingParticipant) AdvanceStatus(next ParticipantStatus) bool {
	if statusRank[next] <= statusRank[p.Status] && p.Status != next {
		return false
	}
	if p.Status == next {
		return false
	}
	p.Status = next
	return true
}

// CompletionEligible is the shared predicate used by both the close preview
// and the real completion pass: present on target and not yet rewarded for
// completion. Absent participants never receive completion.
func (p *SeedingParticipant) CompletionEligible() bool {
	return p.IsOnTarget && p.CompletionRewardedAt == nil
}

// ValidParticipantStatus reports whether s is a known status value.
func ValidParticipantStatus(s ParticipantStatus) bool {
	_, ok := statusRank[s]
	return ok
}

// ValidParticipantType reports whether t is a known type value.
func ValidParticipantType(t ParticipantType) bool {
	return t == TypeSwitcher || t == TypeSeeder
}

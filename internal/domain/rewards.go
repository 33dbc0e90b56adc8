package domain

// RewardTrack identifies one of the three independent reward tracks.
type RewardTrack string

const (
	TrackSwitch     RewardTrack = "switch"
	TrackPlaytime   RewardTrack = "playtime"
	TrackCompletion RewardTrack = "completion"
)

// DurationReward is a whitelist extension amount for a single track.
type DurationReward struct {
	Value int          `json:"value" yaml:"value"`
	Unit  DurationUnit `json:"unit" yaml:"unit"`
}

// Minutes returns the canonical minute amount for this reward.
func (r DurationReward) Minutes() int64 {
	return ToMinutes(r.Value, r.Unit)
}

// PlaytimeReward is the playtime track: amount plus the on-target minute
// threshold a participant must accumulate before it fires.
type PlaytimeReward struct {
	Value            int          `json:"value" yaml:"value"`
	Unit             DurationUnit `json:"unit" yaml:"unit"`
	ThresholdMinutes int64        `json:"threshold_minutes" yaml:"threshold_minutes"`
}

// Minutes returns the canonical minute amount for this reward.
func (r PlaytimeReward) Minutes() int64 {
	return ToMinutes(r.Value, r.Unit)
}

// RewardsConfig describes up to three independently optional reward tracks.
// A nil track is not offered by the session.
type RewardsConfig struct {
	Switch     *DurationReward `json:"switch,omitempty"`
	Playtime   *PlaytimeReward `json:"playtime,omitempty"`
	Completion *DurationReward `json:"completion,omitempty"`
}

// Validate rejects an empty config and any track with a non-positive value,
// an unknown unit, or (for playtime) a non-positive threshold.
func (c RewardsConfig) Validate() error {
	if c.Switch == nil && c.Playtime == nil && c.Completion == nil {
		return NewValidationError("rewards config must define at least one track")
	}
	if c.Switch != nil {
		if c.Switch.Value <= 0 {
			return NewValidationError("switch reward value must be positive")
		}
		if !ValidUnit(c.Switch.Unit) {
			return NewValidationError("switch reward has unknown unit %q", c.Switch.Unit)
		}
	}
	if c.Playtime != nil {
		if c.Playtime.Value <= 0 {
			return NewValidationError("playtime reward value must be positive")
		}
		if !ValidUnit(c.Playtime.Unit) {
			return NewValidationError("playtime reward has unknown unit %q", c.Playtime.Unit)
		}
		if c.Playtime.ThresholdMinutes <= 0 {
			return NewValidationError("playtime threshold must be positive")
		}
	}
	if c.Completion != nil {
		if c.Completion.Value <= 0 {
			return NewValidationError("completion reward value must be positive")
		}
		if !ValidUnit(c.Completion.Unit) {
			return NewValidationError("completion reward has unknown unit %q", c.Completion.Unit)
		}
	}
	return nil
}

// TrackMinutes returns the canonical minutes the given track would grant,
// or 0 if the track is not configured.
func (c RewardsConfig) TrackMinutes(track RewardTrack) int64 {
	switch track {
	case TrackSwitch:
		if c.Switch != nil {
			return c.Switch.Minutes()
		}
	case TrackPlaytime:
		if c.Playtime != nil {
			return c.Playtime.Minutes()
		}
	case TrackCompletion:
		if c.Completion != nil {
			return c.Completion.Minutes()
		}
	}
	return 0
}

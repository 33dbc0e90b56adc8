package domain

import (
	"errors"
	"testing"
)

func TestRewardsConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  RewardsConfig
		wantErr bool
	}{
		{
			name:    "no tracks",
			config:  RewardsConfig{},
			wantErr: true,
		},
		{
			name: "switch only",
			config: RewardsConfig{
				Switch: &DurationReward{Value: 1, Unit: UnitDays},
			},
		},
		{
			name: "all three tracks",
			config: RewardsConfig{
				Switch:     &DurationReward{Value: 12, Unit: UnitHours},
				Playtime:   &PlaytimeReward{Value: 1, Unit: UnitDays, ThresholdMinutes: 60},
				Completion: &DurationReward{Value: 3, Unit: UnitDays},
			},
		},
		{
			name: "zero switch value",
			config: RewardsConfig{
				Switch: &DurationReward{Value: 0, Unit: UnitDays},
			},
			wantErr: true,
		},
		{
			name: "negative completion value",
			config: RewardsConfig{
				Completion: &DurationReward{Value: -1, Unit: UnitHours},
			},
			wantErr: true,
		},
		{
			name: "unknown unit",
			config: RewardsConfig{
				Switch: &DurationReward{Value: 1, Unit: "weeks"},
			},
			wantErr: true,
		},
		{
			name: "playtime without threshold",
			config: RewardsConfig{
				Playtime: &PlaytimeReward{Value: 1, Unit: UnitDays},
			},
			wantErr: true,
		},
		{
			name: "negative playtime threshold",
			config: RewardsConfig{
				Playtime: &PlaytimeReward{Value: 1, Unit: UnitDays, ThresholdMinutes: -5},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected validation error, got nil")
				}
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("expected ErrValidation, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestTrackMinutes(t *testing.T) {
	config := RewardsConfig{
		Switch:     &DurationReward{Value: 12, Unit: UnitHours},
		Completion: &DurationReward{Value: 3, Unit: UnitDays},
	}

	if got := config.TrackMinutes(TrackSwitch); got != 720 {
		t.Fatalf("switch minutes = %d, want 720", got)
	}
	if got := config.TrackMinutes(TrackCompletion); got != 4320 {
		t.Fatalf("completion minutes = %d, want 4320", got)
	}
	// Unconfigured track grants nothing.
	if got := config.TrackMinutes(TrackPlaytime); got != 0 {
		t.Fatalf("playtime minutes = %d, want 0", got)
	}
}

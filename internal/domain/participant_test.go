package domain

import (
	"testing"
	"time"
)

func TestAdvanceStatusMonotonic(t *testing.T) {
	p := &SeedingParticipant{Status: StatusOnSource, Type: TypeSwitcher}

	if !p.AdvanceStatus(StatusSwitched) {
		t.Fatalf("expected on_source -> switched to advance")
	}
	if p.Status != StatusSwitched {
		t.Fatalf("status = %q, want switched", p.Status)
	}

	// Backward moves are rejected.
	if p.AdvanceStatus(StatusOnSource) {
		t.Fatalf("expected switched -> on_source to be rejected")
	}
	if p.Status != StatusSwitched {
		t.Fatalf("status regressed to %q", p.Status)
	}

	if !p.AdvanceStatus(StatusPlaytimeMet) {
		t.Fatalf("expected switched -> playtime_met to advance")
	}
	if !p.AdvanceStatus(StatusCompleted) {
		t.Fatalf("expected playtime_met -> completed to advance")
	}

	// Re-applying the current status is a no-op.
	if p.AdvanceStatus(StatusCompleted) {
		t.Fatalf("expected completed -> completed to be a no-op")
	}
}

func TestAdvanceStatusSeederSkipsSwitched(t *testing.T) {
	p := &SeedingParticipant{Status: StatusSeeder, Type: TypeSeeder}

	// Seeders never pass through switched; playtime_met is their next rank.
	if !p.AdvanceStatus(StatusPlaytimeMet) {
		t.Fatalf("expected seeder -> playtime_met to advance")
	}
	if !p.AdvanceStatus(StatusCompleted) {
		t.Fatalf("expected playtime_met -> completed to advance")
	}
}

func TestGrantedAndHasAnyGrant(t *testing.T) {
	now := time.Now().UTC()
	p := &SeedingParticipant{}

	if p.HasAnyGrant() {
		t.Fatalf("fresh participant should have no grants")
	}
	for _, track := range []RewardTrack{TrackSwitch, TrackPlaytime, TrackCompletion} {
		if p.Granted(track) {
			t.Fatalf("fresh participant reports %s granted", track)
		}
	}

	p.SwitchRewardedAt = &now
	if !p.Granted(TrackSwitch) {
		t.Fatalf("expected switch to be granted")
	}
	if p.Granted(TrackCompletion) {
		t.Fatalf("completion should not be granted")
	}
	if !p.HasAnyGrant() {
		t.Fatalf("expected HasAnyGrant after switch grant")
	}
}

func TestCompletionEligible(t *testing.T) {
	now := time.Now().UTC()

	p := &SeedingParticipant{IsOnTarget: true}
	if !p.CompletionEligible() {
		t.Fatalf("on-target participant without a completion grant should be eligible")
	}

	p.CompletionRewardedAt = &now
	if p.CompletionEligible() {
		t.Fatalf("already-rewarded participant should not be eligible")
	}

	absent := &SeedingParticipant{IsOnTarget: false}
	if absent.CompletionEligible() {
		t.Fatalf("absent participant should not be eligible")
	}
}

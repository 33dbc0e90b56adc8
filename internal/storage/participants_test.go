package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sqdops/seedtrack/internal/domain"
)

func seedParticipant(t *testing.T, store *Store, sessionID int64, steamID string, onTarget bool) *domain.SeedingParticipant {
	t.Helper()
	now := time.Now().UTC()
	p := &domain.SeedingParticipant{
		SessionID: sessionID,
		SteamID:   steamID,
		Username:  "player-" + steamID,
		Type:      domain.TypeSwitcher,
		Status:    domain.StatusOnSource,
	}
	if onTarget {
		p.Type = domain.TypeSeeder
		p.Status = domain.StatusSeeder
		p.IsOnTarget = true
		p.TargetJoinedAt = &now
		p.PlaytimeAccruedAt = &now
	} else {
		p.SourceJoinedAt = &now
	}
	if err := store.CreateParticipant(context.Background(), p); err != nil {
		t.Fatalf("creating participant: %v", err)
	}
	return p
}

func TestParticipantRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ids := seedServers(t, store, 2)
	sess := testSession(ids[0], ids[1:])
	if err := store.CreateSession(ctx, sess); err != nil {
		t.Fatalf("create session: %v", err)
	}

	p := seedParticipant(t, store, sess.ID, "76561198000000001", true)
	if p.ID == 0 {
		t.Fatalf("participant id not assigned")
	}

	got, err := store.GetParticipant(ctx, sess.ID, "76561198000000001")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Type != domain.TypeSeeder || got.Status != domain.StatusSeeder {
		t.Fatalf("got type=%s status=%s", got.Type, got.Status)
	}
	if !got.IsOnTarget {
		t.Fatalf("is_on_target lost in round trip")
	}
	if got.TargetJoinedAt == nil || got.PlaytimeAccruedAt == nil {
		t.Fatalf("timestamps lost in round trip")
	}

	// State update persists progression fields.
	got.Status = domain.StatusPlaytimeMet
	got.TargetPlaytimeMinutes = 75
	if err := store.UpdateParticipantState(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err = store.GetParticipantByID(ctx, got.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Status != domain.StatusPlaytimeMet || got.TargetPlaytimeMinutes != 75 {
		t.Fatalf("update lost: status=%s minutes=%d", got.Status, got.TargetPlaytimeMinutes)
	}
}

func TestDuplicateParticipantRejected(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ids := seedServers(t, store, 2)
	sess := testSession(ids[0], ids[1:])
	if err := store.CreateSession(ctx, sess); err != nil {
		t.Fatalf("create session: %v", err)
	}

	seedParticipant(t, store, sess.ID, "s1", false)
	p := &domain.SeedingParticipant{
		SessionID: sess.ID,
		SteamID:   "s1",
		Type:      domain.TypeSwitcher,
		Status:    domain.StatusOnSource,
	}
	if err := store.CreateParticipant(ctx, p); err == nil {
		t.Fatalf("expected duplicate (session, steam_id) insert to fail")
	}
}

func TestApplyAndClearGrant(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ids := seedServers(t, store, 2)
	sess := testSession(ids[0], ids[1:])
	if err := store.CreateSession(ctx, sess); err != nil {
		t.Fatalf("create session: %v", err)
	}
	p := seedParticipant(t, store, sess.ID, "s1", true)

	now := time.Now().UTC()
	applied, err := store.ApplyGrant(ctx, p.ID, domain.TrackSwitch, "wl-1", now, 720)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !applied {
		t.Fatalf("expected first apply to succeed")
	}

	// Write-once: the second apply is rejected without touching the total.
	applied, err = store.ApplyGrant(ctx, p.ID, domain.TrackSwitch, "wl-2", now, 720)
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if applied {
		t.Fatalf("duplicate apply overwrote the ledger")
	}

	got, err := store.GetParticipantByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.SwitchRewardedAt == nil || got.SwitchGrantID != "wl-1" {
		t.Fatalf("ledger entry wrong: at=%v id=%q", got.SwitchRewardedAt, got.SwitchGrantID)
	}
	if got.SwitchGrantMinutes != 720 {
		t.Fatalf("granted minutes = %d, want 720", got.SwitchGrantMinutes)
	}
	if got.TotalRewardMinutes != 720 {
		t.Fatalf("total = %d, want 720", got.TotalRewardMinutes)
	}

	// Independent tracks stack.
	if _, err := store.ApplyGrant(ctx, p.ID, domain.TrackCompletion, "wl-3", now, 1440); err != nil {
		t.Fatalf("completion apply: %v", err)
	}
	got, _ = store.GetParticipantByID(ctx, p.ID)
	if got.TotalRewardMinutes != 2160 {
		t.Fatalf("total after stacking = %d, want 2160", got.TotalRewardMinutes)
	}

	// Clearing subtracts the minutes stored at grant time and is idempotent.
	cleared, err := store.ClearGrant(ctx, p.ID, domain.TrackSwitch)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if !cleared {
		t.Fatalf("expected clear to find the grant")
	}
	cleared, err = store.ClearGrant(ctx, p.ID, domain.TrackSwitch)
	if err != nil {
		t.Fatalf("second clear: %v", err)
	}
	if cleared {
		t.Fatalf("double clear subtracted twice")
	}

	got, _ = store.GetParticipantByID(ctx, p.ID)
	if got.SwitchRewardedAt != nil || got.SwitchGrantID != "" || got.SwitchGrantMinutes != 0 {
		t.Fatalf("switch ledger not cleared")
	}
	if got.TotalRewardMinutes != 1440 {
		t.Fatalf("total after clear = %d, want 1440", got.TotalRewardMinutes)
	}
}

func TestListParticipantsFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ids := seedServers(t, store, 2)
	sess := testSession(ids[0], ids[1:])
	if err := store.CreateSession(ctx, sess); err != nil {
		t.Fatalf("create session: %v", err)
	}

	seedParticipant(t, store, sess.ID, "s1", true)  // seeder
	seedParticipant(t, store, sess.ID, "s2", false) // switcher on source
	seedParticipant(t, store, sess.ID, "s3", false) // switcher on source

	all, err := store.ListParticipants(ctx, sess.ID, ParticipantFilter{})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("all = %d, want 3", len(all))
	}

	switchers, err := store.ListParticipants(ctx, sess.ID, ParticipantFilter{Type: domain.TypeSwitcher})
	if err != nil {
		t.Fatalf("list switchers: %v", err)
	}
	if len(switchers) != 2 {
		t.Fatalf("switchers = %d, want 2", len(switchers))
	}

	seeders, err := store.ListParticipants(ctx, sess.ID, ParticipantFilter{Status: domain.StatusSeeder})
	if err != nil {
		t.Fatalf("list seeders: %v", err)
	}
	if len(seeders) != 1 {
		t.Fatalf("seeders = %d, want 1", len(seeders))
	}
}

func TestCountOnTarget(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ids := seedServers(t, store, 2)
	sess := testSession(ids[0], ids[1:])
	if err := store.CreateSession(ctx, sess); err != nil {
		t.Fatalf("create session: %v", err)
	}

	seedParticipant(t, store, sess.ID, "s1", true)
	seedParticipant(t, store, sess.ID, "s2", true)
	seedParticipant(t, store, sess.ID, "s3", false)

	count, err := store.CountOnTarget(ctx, sess.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("on target = %d, want 2", count)
	}
}

func TestSessionCountersDerivedFromParticipants(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ids := seedServers(t, store, 2)
	sess := testSession(ids[0], ids[1:])
	if err := store.CreateSession(ctx, sess); err != nil {
		t.Fatalf("create session: %v", err)
	}

	p1 := seedParticipant(t, store, sess.ID, "s1", true)
	seedParticipant(t, store, sess.ID, "s2", false)

	now := time.Now().UTC()
	if _, err := store.ApplyGrant(ctx, p1.ID, domain.TrackSwitch, "wl-1", now, 720); err != nil {
		t.Fatalf("apply switch: %v", err)
	}
	if _, err := store.ApplyGrant(ctx, p1.ID, domain.TrackCompletion, "wl-2", now, 1440); err != nil {
		t.Fatalf("apply completion: %v", err)
	}

	got, err := store.GetSessionByID(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.ParticipantCount != 2 {
		t.Fatalf("participant count = %d, want 2", got.ParticipantCount)
	}
	if got.RewardsGranted != 2 {
		t.Fatalf("rewards granted = %d, want 2", got.RewardsGranted)
	}
}

func TestParticipantNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetParticipant(context.Background(), 1, "nobody")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

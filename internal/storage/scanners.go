package storage

import (
	"database/sql"
	"time"

	"github.com/sqdops/seedtrack/internal/domain"
)

// Null scanner helpers - reduce repetitive nil-checking code

func scanNullTime(nt sql.NullTime) *time.Time {
	if nt.Valid {
		return &nt.Time
	}
	return nil
}

func scanNullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// scanner is an interface satisfied by both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

// scanSession scans a session row, reassembling the rewards config from its
// nullable column groups.
func scanSession(sc scanner) (*domain.SeedingSession, error) {
	var sess domain.SeedingSession
	var status string
	var cancelReason sql.NullString
	var closedAt sql.NullTime
	var switchVal, playVal, playThresh, compVal sql.NullInt64
	var switchUnit, playUnit, compUnit sql.NullString

	err := sc.Scan(
		&sess.ID, &sess.TargetServerID, &sess.PlayerThreshold, &sess.TestMode,
		&status, &cancelReason, &sess.CreatedBy, &sess.CreatedAt, &closedAt,
		&switchVal, &switchUnit,
		&playVal, &playUnit, &playThresh,
		&compVal, &compUnit,
	)
	if err != nil {
		return nil, err
	}

	sess.Status = domain.SessionStatus(status)
	sess.CancelReason = scanNullStringValue(cancelReason)
	sess.ClosedAt = scanNullTime(closedAt)

	if switchVal.Valid {
		sess.Rewards.Switch = &domain.DurationReward{
			Value: int(switchVal.Int64),
			Unit:  domain.DurationUnit(switchUnit.String),
		}
	}
	if playVal.Valid {
		sess.Rewards.Playtime = &domain.PlaytimeReward{
			Value:            int(playVal.Int64),
			Unit:             domain.DurationUnit(playUnit.String),
			ThresholdMinutes: playThresh.Int64,
		}
	}
	if compVal.Valid {
		sess.Rewards.Completion = &domain.DurationReward{
			Value: int(compVal.Int64),
			Unit:  domain.DurationUnit(compUnit.String),
		}
	}

	return &sess, nil
}

// scanParticipant scans a participant row including the grant ledger.
func scanParticipant(sc scanner) (*domain.SeedingParticipant, error) {
	var p domain.SeedingParticipant
	var ptype, status string
	var sourceJoined, sourceLeft, targetJoined, targetLeft sql.NullTime
	var accruedAt, switchAt, playAt, compAt sql.NullTime
	var switchGrant, playGrant, compGrant sql.NullString

	err := sc.Scan(
		&p.ID, &p.SessionID, &p.SteamID, &p.Username, &ptype, &status,
		&sourceJoined, &sourceLeft, &targetJoined, &targetLeft,
		&p.TargetPlaytimeMinutes, &accruedAt, &p.IsOnTarget,
		&switchAt, &switchGrant, &p.SwitchGrantMinutes,
		&playAt, &playGrant, &p.PlaytimeGrantMinutes,
		&compAt, &compGrant, &p.CompletionGrantMinutes,
		&p.TotalRewardMinutes,
	)
	if err != nil {
		return nil, err
	}

	p.Type = domain.ParticipantType(ptype)
	p.Status = domain.ParticipantStatus(status)
	p.SourceJoinedAt = scanNullTime(sourceJoined)
	p.SourceLeftAt = scanNullTime(sourceLeft)
	p.TargetJoinedAt = scanNullTime(targetJoined)
	p.TargetLeftAt = scanNullTime(targetLeft)
	p.PlaytimeAccruedAt = scanNullTime(accruedAt)
	p.SwitchRewardedAt = scanNullTime(switchAt)
	p.SwitchGrantID = scanNullStringValue(switchGrant)
	p.PlaytimeRewardedAt = scanNullTime(playAt)
	p.PlaytimeGrantID = scanNullStringValue(playGrant)
	p.CompletionRewardedAt = scanNullTime(compAt)
	p.CompletionGrantID = scanNullStringValue(compGrant)

	return &p, nil
}

// scanUser scans a user row from the database
func scanUser(sc scanner) (*User, error) {
	var u User
	var lastLogin sql.NullTime
	err := sc.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.IsAdmin,
		&u.PasswordChangeRequired, &u.CreatedAt, &lastLogin)
	if err != nil {
		return nil, err
	}
	u.LastLogin = scanNullTime(lastLogin)
	return &u, nil
}

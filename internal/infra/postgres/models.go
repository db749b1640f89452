package postgres

import (
	"time"

	"github.com/uptrace/bun"

	"quiz-battle-service/internal/domain"
)

type sessionRow struct {
	bun.BaseModel `bun:"table:battle_sessions"`

	ID           string               `bun:"id,pk"`
	InvitationID string               `bun:"invitation_id,notnull"`
	Status       string               `bun:"status,notnull"`
	Settled      bool                 `bun:"settled,notnull"`
	Version      int64                `bun:"version,notnull"`
	Data         domain.BattleSession `bun:"data,type:jsonb,notnull"`
	UpdatedAt    time.Time            `bun:"updated_at,notnull"`
}

func newSessionRow(s domain.BattleSession) *sessionRow {
	return &sessionRow{
		ID:           s.ID,
		InvitationID: s.InvitationID,
		Status:       string(s.Status),
		Settled:      s.Settled,
		Version:      s.Version,
		Data:         s,
		UpdatedAt:    time.Now().UTC(),
	}
}

type invitationRow struct {
	bun.BaseModel `bun:"table:battle_invitations"`

	ID           string            `bun:"id,pk"`
	ChallengerID string            `bun:"challenger_id,notnull"`
	ChallengedID string            `bun:"challenged_id,notnull"`
	Status       string            `bun:"status,notnull"`
	Version      int64             `bun:"version,notnull"`
	ExpiresAt    time.Time         `bun:"expires_at,notnull"`
	Data         domain.Invitation `bun:"data,type:jsonb,notnull"`
	UpdatedAt    time.Time         `bun:"updated_at,notnull"`
}

func newInvitationRow(inv domain.Invitation) *invitationRow {
	return &invitationRow{
		ID:           inv.ID,
		ChallengerID: inv.ChallengerID,
		ChallengedID: inv.ChallengedID,
		Status:       string(inv.Status),
		Version:      inv.Version,
		ExpiresAt:    inv.ExpiresAt,
		Data:         inv,
		UpdatedAt:    time.Now().UTC(),
	}
}

type activityRow struct {
	bun.BaseModel `bun:"table:activity_ledger"`

	UserID     string    `bun:"user_id,pk"`
	DedupKey   string    `bun:"dedup_key,pk"`
	Type       string    `bun:"type,notnull"`
	OccurredAt time.Time `bun:"occurred_at,notnull"`
	Day        string    `bun:"day,notnull"`
	XPDelta    int64     `bun:"xp_delta,notnull"`
}

func (r activityRow) record() domain.ActivityRecord {
	return domain.ActivityRecord{
		UserID:     r.UserID,
		Type:       domain.ActivityType(r.Type),
		OccurredAt: r.OccurredAt.UTC(),
		Date:       r.Day,
		XPDelta:    r.XPDelta,
		DedupKey:   r.DedupKey,
	}
}

type profileRow struct {
	bun.BaseModel `bun:"table:learning_profiles"`

	UserID    string         `bun:"user_id,pk"`
	Version   int64          `bun:"version,notnull"`
	Data      domain.Profile `bun:"data,type:jsonb,notnull"`
	UpdatedAt time.Time      `bun:"updated_at,notnull"`
}

type completedTopicRow struct {
	bun.BaseModel `bun:"table:completed_topics"`

	UserID      string    `bun:"user_id,pk"`
	Topic       string    `bun:"topic,pk"`
	CompletedAt time.Time `bun:"completed_at,notnull"`
}

package app

import (
	"context"
	"time"

	"quiz-battle-service/internal/domain"
)

// SessionRepository abstracts how battle sessions are stored (in-memory, Redis, Postgres).
// UpdateIfVersion must commit only when the stored version equals expectedVersion and
// report domain.ErrVersionConflict otherwise.
type SessionRepository interface {
	Create(ctx context.Context, session domain.BattleSession) error
	Get(ctx context.Context, sessionID string) (domain.BattleSession, error)
	UpdateIfVersion(ctx context.Context, session domain.BattleSession, expectedVersion int64) error
	// ListOpen returns ids of sessions that are not terminal or not yet settled.
	ListOpen(ctx context.Context) ([]string, error)
}

// InvitationRepository stores invitations with the same conditional-write contract.
type InvitationRepository interface {
	Create(ctx context.Context, inv domain.Invitation) error
	Get(ctx context.Context, invitationID string) (domain.Invitation, error)
	UpdateIfVersion(ctx context.Context, inv domain.Invitation, expectedVersion int64) error
}

// ActivityLedger is the append-only per-user activity log.
// Append reports domain.ErrDuplicateActivity when the dedup key was seen for the user.
type ActivityLedger interface {
	Append(ctx context.Context, rec domain.ActivityRecord) error
	List(ctx context.Context, userID string, from, to time.Time) ([]domain.ActivityRecord, error)
}

// ProfileRepository stores the materialized streak and counter views.
// Get returns a zero profile (version 0) for unknown users.
type ProfileRepository interface {
	GetProfile(ctx context.Context, userID string) (domain.Profile, error)
	UpdateProfileIfVersion(ctx context.Context, profile domain.Profile, expectedVersion int64) error
}

// TopicDirectory exposes the completed topics of the externally owned learning profile.
type TopicDirectory interface {
	CompletedTopics(ctx context.Context, userID string) ([]string, error)
}

// QuestionRepository loads questions grouped by topic (from cache/backing store).
type QuestionRepository interface {
	QuestionsByTopic(ctx context.Context, topics []string) (map[string][]domain.Question, error)
}

// QuestionProvider is the external, fallible content generator.
type QuestionProvider interface {
	ProposeQuestions(ctx context.Context, topics []string, difficulty string, count int) ([]domain.Question, error)
}

// SnapshotPublisher pushes full-state session snapshots to the delivery layer.
type SnapshotPublisher interface {
	Publish(ctx context.Context, snapshot domain.BattleSnapshot) error
}

// InvitationNotifier hands invitation events to the external messaging collaborator.
type InvitationNotifier interface {
	Notify(ctx context.Context, event domain.InvitationEvent) error
}

// ResultRecorder receives the outcome of a terminal battle.
type ResultRecorder interface {
	RecordBattleResult(ctx context.Context, result domain.BattleResult) error
}

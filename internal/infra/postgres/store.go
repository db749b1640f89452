package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"quiz-battle-service/internal/domain"
)

// Open returns a bun handle over the pgdriver connector.
func Open(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

// SessionStore persists battle sessions; conditional writes are
// UPDATE ... WHERE version = expected.
type SessionStore struct {
	db *bun.DB
}

func NewSessionStore(db *bun.DB) *SessionStore {
	return &SessionStore{db: db}
}

func (s *SessionStore) Create(ctx context.Context, session domain.BattleSession) error {
	res, err := s.db.NewInsert().Model(newSessionRow(session)).On("CONFLICT DO NOTHING").Exec(ctx)
	if err != nil {
		return err
	}
	if affected(res) == 0 {
		return domain.ErrSessionExists
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, sessionID string) (domain.BattleSession, error) {
	row := new(sessionRow)
	err := s.db.NewSelect().Model(row).Where("id = ?", sessionID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.BattleSession{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.BattleSession{}, err
	}
	return row.Data, nil
}

func (s *SessionStore) UpdateIfVersion(ctx context.Context, session domain.BattleSession, expectedVersion int64) error {
	res, err := s.db.NewUpdate().
		Model(newSessionRow(session)).
		Column("status", "settled", "version", "data", "updated_at").
		WherePK().
		Where("version = ?", expectedVersion).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected(res) == 1 {
		return nil
	}
	return missingOr(ctx, s.db.NewSelect().Model((*sessionRow)(nil)).Where("id = ?", session.ID), domain.ErrSessionNotFound)
}

func (s *SessionStore) ListOpen(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.NewSelect().
		Model((*sessionRow)(nil)).
		Column("id").
		Where("status IN (?) OR NOT settled", bun.In([]string{string(domain.BattlePending), string(domain.BattleActive)})).
		Order("id").
		Scan(ctx, &ids)
	return ids, err
}

// InvitationStore persists invitations with the same conditional-write contract.
type InvitationStore struct {
	db *bun.DB
}

func NewInvitationStore(db *bun.DB) *InvitationStore {
	return &InvitationStore{db: db}
}

func (s *InvitationStore) Create(ctx context.Context, inv domain.Invitation) error {
	res, err := s.db.NewInsert().Model(newInvitationRow(inv)).On("CONFLICT DO NOTHING").Exec(ctx)
	if err != nil {
		return err
	}
	if affected(res) == 0 {
		return domain.ErrInvitationExists
	}
	return nil
}

func (s *InvitationStore) Get(ctx context.Context, invitationID string) (domain.Invitation, error) {
	row := new(invitationRow)
	err := s.db.NewSelect().Model(row).Where("id = ?", invitationID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Invitation{}, domain.ErrInvitationNotFound
	}
	if err != nil {
		return domain.Invitation{}, err
	}
	return row.Data, nil
}

func (s *InvitationStore) UpdateIfVersion(ctx context.Context, inv domain.Invitation, expectedVersion int64) error {
	res, err := s.db.NewUpdate().
		Model(newInvitationRow(inv)).
		Column("status", "version", "data", "updated_at").
		WherePK().
		Where("version = ?", expectedVersion).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected(res) == 1 {
		return nil
	}
	return missingOr(ctx, s.db.NewSelect().Model((*invitationRow)(nil)).Where("id = ?", inv.ID), domain.ErrInvitationNotFound)
}

// Ledger is the append-only activity log; the (user_id, dedup_key) key rejects replays.
type Ledger struct {
	db *bun.DB
}

func NewLedger(db *bun.DB) *Ledger {
	return &Ledger{db: db}
}

func (l *Ledger) Append(ctx context.Context, rec domain.ActivityRecord) error {
	row := &activityRow{
		UserID:     rec.UserID,
		DedupKey:   rec.DedupKey,
		Type:       string(rec.Type),
		OccurredAt: rec.OccurredAt,
		Day:        rec.Date,
		XPDelta:    rec.XPDelta,
	}
	res, err := l.db.NewInsert().Model(row).On("CONFLICT DO NOTHING").Exec(ctx)
	if err != nil {
		return err
	}
	if affected(res) == 0 {
		return domain.ErrDuplicateActivity
	}
	return nil
}

func (l *Ledger) List(ctx context.Context, userID string, from, to time.Time) ([]domain.ActivityRecord, error) {
	var rows []activityRow
	q := l.db.NewSelect().Model(&rows).Where("user_id = ?", userID)
	if !from.IsZero() {
		q = q.Where("occurred_at >= ?", from)
	}
	if !to.IsZero() {
		q = q.Where("occurred_at <= ?", to)
	}
	if err := q.Order("occurred_at", "dedup_key").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]domain.ActivityRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.record())
	}
	return out, nil
}

// ProfileStore persists materialized profiles; version 0 means no row yet.
type ProfileStore struct {
	db *bun.DB
}

func NewProfileStore(db *bun.DB) *ProfileStore {
	return &ProfileStore{db: db}
}

func (s *ProfileStore) GetProfile(ctx context.Context, userID string) (domain.Profile, error) {
	row := new(profileRow)
	err := s.db.NewSelect().Model(row).Where("user_id = ?", userID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Profile{UserID: userID}, nil
	}
	if err != nil {
		return domain.Profile{}, err
	}
	return row.Data, nil
}

func (s *ProfileStore) UpdateProfileIfVersion(ctx context.Context, p domain.Profile, expectedVersion int64) error {
	row := &profileRow{UserID: p.UserID, Version: p.Version, Data: p, UpdatedAt: time.Now().UTC()}
	var (
		res sql.Result
		err error
	)
	if expectedVersion == 0 {
		res, err = s.db.NewInsert().Model(row).On("CONFLICT DO NOTHING").Exec(ctx)
	} else {
		res, err = s.db.NewUpdate().Model(row).
			Column("version", "data", "updated_at").
			WherePK().
			Where("version = ?", expectedVersion).
			Exec(ctx)
	}
	if err != nil {
		return err
	}
	if affected(res) == 0 {
		return domain.ErrVersionConflict
	}
	return nil
}

// TopicDirectory reads completed topics recorded by the learning profile owner.
type TopicDirectory struct {
	db *bun.DB
}

func NewTopicDirectory(db *bun.DB) *TopicDirectory {
	return &TopicDirectory{db: db}
}

func (d *TopicDirectory) MarkCompleted(ctx context.Context, userID string, topics ...string) error {
	if len(topics) == 0 {
		return nil
	}
	rows := make([]completedTopicRow, 0, len(topics))
	now := time.Now().UTC()
	for _, t := range topics {
		rows = append(rows, completedTopicRow{UserID: userID, Topic: t, CompletedAt: now})
	}
	_, err := d.db.NewInsert().Model(&rows).On("CONFLICT DO NOTHING").Exec(ctx)
	return err
}

func (d *TopicDirectory) CompletedTopics(ctx context.Context, userID string) ([]string, error) {
	topics := make([]string, 0)
	err := d.db.NewSelect().
		Model((*completedTopicRow)(nil)).
		Column("topic").
		Where("user_id = ?", userID).
		Order("topic").
		Scan(ctx, &topics)
	return topics, err
}

func affected(res sql.Result) int64 {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}

// missingOr distinguishes a lost conditional update from a missing row.
func missingOr(ctx context.Context, q *bun.SelectQuery, missing error) error {
	exists, err := q.Exists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return missing
	}
	return domain.ErrVersionConflict
}

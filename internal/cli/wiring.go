package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"

	"quiz-battle-service/internal/app"
	"quiz-battle-service/internal/config"
	"quiz-battle-service/internal/domain"
	"quiz-battle-service/internal/infra/memory"
	"quiz-battle-service/internal/infra/postgres"
	redisinfra "quiz-battle-service/internal/infra/redis"
)

// services is the wired application graph plus the handles that must be closed on exit.
type services struct {
	battles     *app.BattleService
	invitations *app.InvitationService
	engine      *app.ConsistencyEngine
	hub         *memory.Hub

	redis   *redis.Client
	pool    *pgxpool.Pool
	db      *bun.DB
	closers []func() error
}

func (s *services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			logrus.Warnf("close: %v", err)
		}
	}
}

// buildServices picks a backend per concern: battle sessions and invitations live in
// Redis when configured, the ledger and profiles prefer Postgres, and memory covers
// whatever is left unconfigured.
func buildServices(ctx context.Context, cfg config.Config) (*services, error) {
	s := &services{hub: memory.NewHub()}

	if cfg.Redis.Addr != "" {
		s.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		s.closers = append(s.closers, s.redis.Close)
		if err := s.redis.Ping(ctx).Err(); err != nil {
			s.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
	}
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		s.pool = pool
		s.closers = append(s.closers, func() error { pool.Close(); return nil })
		s.db = postgres.Open(cfg.Postgres.URL)
		s.closers = append(s.closers, s.db.Close)
	}

	redisTTL := config.TTLDuration(cfg.Redis.TTL, 24*time.Hour)

	var (
		sessions    app.SessionRepository
		invitations app.InvitationRepository
		ledger      app.ActivityLedger
		profiles    app.ProfileRepository
		topics      app.TopicDirectory
		loader      memory.QuestionLoader
	)
	switch {
	case s.redis != nil:
		sessions = redisinfra.NewSessionStore(s.redis, redisTTL)
		invitations = redisinfra.NewInvitationStore(s.redis, redisTTL)
	case s.db != nil:
		sessions = postgres.NewSessionStore(s.db)
		invitations = postgres.NewInvitationStore(s.db)
	default:
		sessions = memory.NewSessionStore()
		invitations = memory.NewInvitationStore()
	}
	switch {
	case s.db != nil:
		ledger = postgres.NewLedger(s.db)
		profiles = postgres.NewProfileStore(s.db)
		topics = postgres.NewTopicDirectory(s.db)
	case s.redis != nil:
		ledger = redisinfra.NewLedger(s.redis)
		profiles = redisinfra.NewProfileStore(s.redis)
		topics = redisinfra.NewTopicDirectory(s.redis)
	default:
		ledger = memory.NewLedger()
		profiles = memory.NewProfileStore()
		dir := memory.NewTopicDirectory()
		for user, completed := range sampleTopics() {
			if err := dir.MarkCompleted(ctx, user, completed...); err != nil {
				s.Close()
				return nil, fmt.Errorf("seed completed topics: %w", err)
			}
		}
		topics = dir
	}

	if s.pool != nil {
		loader = postgres.NewQuestionLoader(s.pool)
	} else {
		loader = memory.NewStaticQuestionLoader(sampleQuestions())
	}
	cacheTTL := config.TTLDuration(cfg.Questions.CacheTTL, 10*time.Minute)
	var cached app.QuestionRepository
	if s.redis != nil {
		cached = redisinfra.NewQuestionRepository(s.redis, loader, cacheTTL)
	} else {
		cached = memory.NewQuestionRepository(loader, cacheTTL)
	}
	// The external question generator plugs in as the first argument; until one is
	// deployed the bank serves the cached pool only, and provider_retries and difficulty
	// apply once it is set.
	bank := app.NewQuestionBank(nil, cached, app.QuestionBankConfig{
		Difficulty:   cfg.Questions.Difficulty,
		ProposeCount: cfg.Battle.QuestionCount * 2,
		Retries:      cfg.Questions.ProviderRetries,
	})

	// Snapshots fan out through Redis so every instance's websocket clients see them.
	var publisher app.SnapshotPublisher = s.hub
	var notifier app.InvitationNotifier
	if s.redis != nil {
		pub := redisinfra.NewPublisher(s.redis)
		publisher = pub
		notifier = pub
	}

	s.engine = app.NewConsistencyEngine(ledger, profiles, consistencyConfig(cfg))
	s.battles = app.NewBattleService(sessions, app.NewFairnessSelector(bank), topics, publisher, s.engine, battleConfig(cfg))
	s.invitations = app.NewInvitationService(invitations, s.battles, notifier, config.TTLDuration(cfg.Invitation.TTL, 10*time.Minute))
	return s, nil
}

func battleConfig(cfg config.Config) app.BattleConfig {
	return app.BattleConfig{
		QuestionCount:    cfg.Battle.QuestionCount,
		TimeLimit:        config.TTLDuration(cfg.Battle.QuestionTimeLimit, 20*time.Second),
		SessionTimeout:   config.TTLDuration(cfg.Battle.SessionTimeout, 5*time.Minute),
		DisconnectGrace:  config.TTLDuration(cfg.Battle.DisconnectGrace, 30*time.Second),
		LateGrace:        config.TTLDuration(cfg.Battle.LateGrace, 2*time.Second),
		MaxCommitRetries: cfg.Battle.MaxCommitRetries,
		ForfeitPolicy:    app.ForfeitPolicy(cfg.Battle.ForfeitPolicy),
	}
}

func consistencyConfig(cfg config.Config) app.ConsistencyConfig {
	xp := make(map[domain.ActivityType]int64, len(cfg.Consistency.XP))
	for kind, value := range cfg.Consistency.XP {
		xp[domain.ActivityType(kind)] = value
	}
	return app.ConsistencyConfig{
		XP:                 xp,
		LevelThresholds:    cfg.Consistency.LevelThresholds,
		Location:           cfg.Location(),
		TutoringMinMinutes: cfg.Consistency.TutoringMinMinutes,
	}
}

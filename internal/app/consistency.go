package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"quiz-battle-service/internal/domain"
	"quiz-battle-service/internal/metrics"
)

// maxHeatmapDays bounds a single heatmap request.
const maxHeatmapDays = 3660

// ConsistencyConfig holds the XP table and level curve.
type ConsistencyConfig struct {
	XP                 map[domain.ActivityType]int64
	LevelThresholds    []int64
	Location           *time.Location
	TutoringMinMinutes int
	MaxRetries         int
}

// ProfileView is a profile plus the streak still alive today.
type ProfileView struct {
	domain.Profile
	ActiveStreak int    `json:"activeStreak"`
	Today        string `json:"today"`
}

// ConsistencyEngine derives streaks, XP, levels and heatmaps from the activity ledger.
type ConsistencyEngine struct {
	ledger   ActivityLedger
	profiles ProfileRepository
	cfg      ConsistencyConfig
	now      func() time.Time
}

func NewConsistencyEngine(ledger ActivityLedger, profiles ProfileRepository, cfg ConsistencyConfig) *ConsistencyEngine {
	return NewConsistencyEngineWithClock(ledger, profiles, cfg, time.Now)
}

// NewConsistencyEngineWithClock allows deterministic timestamps in tests.
func NewConsistencyEngineWithClock(ledger ActivityLedger, profiles ProfileRepository, cfg ConsistencyConfig, now func() time.Time) *ConsistencyEngine {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	return &ConsistencyEngine{ledger: ledger, profiles: profiles, cfg: cfg, now: now}
}

// RecordActivity appends the activity unless its dedup key was already seen for the user,
// then brings the profile in line with the ledger. A duplicate returns
// domain.ErrDuplicateActivity once the profile is known to include it, so a redelivery
// also repairs a profile whose earlier update failed.
func (e *ConsistencyEngine) RecordActivity(ctx context.Context, in domain.ActivityInput) (domain.ActivityRecord, error) {
	ctx, span := tracer.Start(ctx, "ledger.record", trace.WithAttributes(
		attribute.String("user_id", in.UserID),
		attribute.String("type", string(in.Type)),
	))
	defer span.End()

	rec, err := e.buildRecord(in)
	if err != nil {
		return domain.ActivityRecord{}, err
	}
	appendErr := e.ledger.Append(ctx, rec)
	duplicate := errors.Is(appendErr, domain.ErrDuplicateActivity)
	if appendErr != nil && !duplicate {
		return domain.ActivityRecord{}, fmt.Errorf("append activity: %w", appendErr)
	}
	if duplicate {
		metrics.LedgerAppends.WithLabelValues(string(rec.Type), "duplicate").Inc()
		logrus.WithFields(logrus.Fields{"user_id": rec.UserID, "dedup_key": rec.DedupKey}).
			Debug("duplicate activity, checking profile")
	} else {
		metrics.LedgerAppends.WithLabelValues(string(rec.Type), "appended").Inc()
	}

	if _, err := e.syncProfile(ctx, rec.UserID, false); err != nil {
		logrus.WithField("user_id", rec.UserID).Errorf("update profile after append: %v", err)
		return rec, fmt.Errorf("update profile: %w", err)
	}
	return rec, appendErr
}

// RecordBattleResult turns a battle outcome into one ledger entry per participant.
func (e *ConsistencyEngine) RecordBattleResult(ctx context.Context, result domain.BattleResult) error {
	occurred := result.EndedAt
	if occurred.IsZero() {
		occurred = e.now()
	}
	var errs []error
	for _, user := range []string{result.UserA, result.UserB} {
		kind := domain.ActivityBattleDraw
		if result.WinnerID != nil {
			kind = domain.ActivityBattleLoss
			if *result.WinnerID == user {
				kind = domain.ActivityBattleWin
			}
		}
		_, err := e.RecordActivity(ctx, domain.ActivityInput{
			UserID:     user,
			Type:       kind,
			OccurredAt: occurred,
			DedupKey:   "battle:" + result.SessionID + ":" + user,
		})
		if err != nil && !errors.Is(err, domain.ErrDuplicateActivity) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// GetProfile returns the materialized profile and the streak still held today.
func (e *ConsistencyEngine) GetProfile(ctx context.Context, userID string) (ProfileView, error) {
	p, err := e.profiles.GetProfile(ctx, userID)
	if err != nil {
		return ProfileView{}, err
	}
	p.UserID = userID
	if p.Counters.Level == 0 {
		p.Counters.Level = LevelForXP(e.cfg.LevelThresholds, p.Counters.XP)
	}
	today := e.dayOf(e.now())
	return ProfileView{Profile: p, ActiveStreak: StreakAsOf(p.Streak, today), Today: today}, nil
}

// RebuildProfile recomputes streak and counters from the whole ledger and writes them
// even when nothing changed.
func (e *ConsistencyEngine) RebuildProfile(ctx context.Context, userID string) (domain.Profile, error) {
	return e.syncProfile(ctx, userID, true)
}

// GenerateHeatmap counts ledger entries per calendar day over [from, to], with every day
// of the range present.
func (e *ConsistencyEngine) GenerateHeatmap(ctx context.Context, userID string, from, to time.Time) (domain.Heatmap, error) {
	start := startOfDay(from.In(e.cfg.Location))
	end := startOfDay(to.In(e.cfg.Location))
	if end.Before(start) {
		return nil, fmt.Errorf("%w: %s is before %s", domain.ErrInvalidRange, end.Format(domain.DateLayout), start.Format(domain.DateLayout))
	}

	heatmap := make(domain.Heatmap)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if len(heatmap) >= maxHeatmapDays {
			return nil, fmt.Errorf("%w: more than %d days", domain.ErrInvalidRange, maxHeatmapDays)
		}
		heatmap[d.Format(domain.DateLayout)] = 0
	}

	records, err := e.ledger.List(ctx, userID, start, end.AddDate(0, 0, 1).Add(-time.Nanosecond))
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if _, ok := heatmap[rec.Date]; ok {
			heatmap[rec.Date]++
		}
	}
	return heatmap, nil
}

func (e *ConsistencyEngine) buildRecord(in domain.ActivityInput) (domain.ActivityRecord, error) {
	userID := strings.TrimSpace(in.UserID)
	dedup := strings.TrimSpace(in.DedupKey)
	if userID == "" || dedup == "" {
		return domain.ActivityRecord{}, fmt.Errorf("%w: user id and dedup key are required", domain.ErrInvalidActivity)
	}
	xp, ok := e.cfg.XP[in.Type]
	if !ok {
		return domain.ActivityRecord{}, fmt.Errorf("%w: %s", domain.ErrUnknownActivityType, in.Type)
	}
	if in.Type == domain.ActivityTutoringSession && in.DurationMinutes < e.cfg.TutoringMinMinutes {
		xp = 0
	}
	occurred := in.OccurredAt
	if occurred.IsZero() {
		occurred = e.now()
	}
	return domain.ActivityRecord{
		UserID:     userID,
		Type:       in.Type,
		OccurredAt: occurred.UTC(),
		Date:       e.dayOf(occurred),
		XPDelta:    xp,
		DedupKey:   dedup,
	}, nil
}

// syncProfile derives the profile from the user's full ledger and commits it with a
// conditional write. The result depends only on the ledger, so a retried or repeated sync
// never counts an entry twice; a sync that lists the ledger after the last append leaves
// the profile complete. Unless force is set, an unchanged profile is not rewritten.
func (e *ConsistencyEngine) syncProfile(ctx context.Context, userID string, force bool) (domain.Profile, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 2 * time.Millisecond
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(e.cfg.MaxRetries)), ctx)

	var committed domain.Profile
	err := backoff.Retry(func() error {
		current, err := e.profiles.GetProfile(ctx, userID)
		if err != nil {
			return backoff.Permanent(err)
		}
		records, err := e.ledger.List(ctx, userID, time.Time{}, time.Time{})
		if err != nil {
			return backoff.Permanent(err)
		}
		next := rebuildProfile(userID, records, e.cfg.LevelThresholds)
		if !force && current.Version > 0 && next.Streak == current.Streak && next.Counters == current.Counters {
			committed = current
			return nil
		}
		next.Version = current.Version + 1
		next.UpdatedAt = e.now().UTC()
		if err := e.profiles.UpdateProfileIfVersion(ctx, next, current.Version); err != nil {
			if errors.Is(err, domain.ErrVersionConflict) {
				metrics.VersionConflicts.WithLabelValues("profile").Inc()
			}
			// conflicts and transient store errors are both retried from a fresh read
			return err
		}
		committed = next
		return nil
	}, policy)
	return committed, err
}

func (e *ConsistencyEngine) dayOf(t time.Time) string {
	return t.In(e.cfg.Location).Format(domain.DateLayout)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

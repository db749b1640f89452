package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"quiz-battle-service/internal/domain"
	"quiz-battle-service/internal/metrics"
)

var tracer = otel.Tracer("quiz-battle-service/app")

// mutation edits a freshly read session. It returns whether it changed anything and
// must leave the session untouched when it returns an error.
type mutation func(s *domain.BattleSession, now time.Time) (bool, error)

// ScoreSynchronizer applies mutations to battle sessions with read/compute/compare-and-commit
// cycles. No lock is held between the read and the commit; a moved version restarts the
// cycle from a fresh read.
type ScoreSynchronizer struct {
	sessions    SessionRepository
	publisher   SnapshotPublisher
	cfg         BattleConfig
	now         func() time.Time
	initialWait time.Duration
}

func NewScoreSynchronizer(sessions SessionRepository, publisher SnapshotPublisher, cfg BattleConfig, now func() time.Time) *ScoreSynchronizer {
	if now == nil {
		now = time.Now
	}
	return &ScoreSynchronizer{
		sessions:    sessions,
		publisher:   publisher,
		cfg:         cfg,
		now:         now,
		initialWait: 2 * time.Millisecond,
	}
}

// Apply runs fn against the current session state and commits the result with a
// version-checked write. Session timers are advanced in the same write, so completion is
// never a separate step. The returned bool reports whether a write was committed; the
// error is fn's validation error (nothing written for it) or a store failure.
func (y *ScoreSynchronizer) Apply(ctx context.Context, sessionID, op string, fn mutation) (domain.BattleSession, bool, error) {
	ctx, span := tracer.Start(ctx, "battle.apply", trace.WithAttributes(
		attribute.String("session_id", sessionID),
		attribute.String("op", op),
	))
	defer span.End()

	var (
		result    domain.BattleSession
		committed bool
		ended     bool
		opErr     error
		attempt   int
	)
	err := backoff.Retry(func() error {
		attempt++
		current, err := y.sessions.Get(ctx, sessionID)
		if err != nil {
			return backoff.Permanent(err)
		}
		next := current.Clone()
		now := y.now()

		transitioned := advance(&next, now, y.cfg)
		changed, fnErr := fn(&next, now)
		if fnErr == nil && changed && advance(&next, now, y.cfg) {
			transitioned = true
		}
		if !transitioned && !changed {
			result, committed, opErr = current, false, fnErr
			return nil
		}

		next.Version = current.Version + 1
		if err := y.sessions.UpdateIfVersion(ctx, next, current.Version); err != nil {
			if errors.Is(err, domain.ErrVersionConflict) {
				metrics.VersionConflicts.WithLabelValues("battle_session").Inc()
				logrus.WithFields(logrus.Fields{
					"session_id": sessionID,
					"op":         op,
					"version":    current.Version,
					"attempt":    attempt,
				}).Debug("version conflict, retrying from fresh read")
				return err
			}
			return backoff.Permanent(err)
		}
		result, committed, opErr = next, true, fnErr
		ended = !current.Status.Terminal() && next.Status.Terminal()
		return nil
	}, y.retryPolicy(ctx))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, domain.ErrVersionConflict) {
			logrus.WithFields(logrus.Fields{"session_id": sessionID, "op": op, "attempts": attempt}).
				Warn("conditional write retries exhausted")
			return domain.BattleSession{}, false, fmt.Errorf("%w: %d attempts", domain.ErrSessionBusy, attempt)
		}
		return domain.BattleSession{}, false, err
	}

	if committed {
		span.SetAttributes(attribute.Int64("version", result.Version))
		if ended {
			metrics.SessionsEnded.WithLabelValues(string(result.Status), string(result.EndReason)).Inc()
			logrus.WithFields(logrus.Fields{
				"session_id": sessionID,
				"status":     result.Status,
				"reason":     result.EndReason,
			}).Info("battle ended")
		}
		y.publish(ctx, result)
	}
	return result, committed, opErr
}

func (y *ScoreSynchronizer) publish(ctx context.Context, s domain.BattleSession) {
	if y.publisher == nil {
		return
	}
	if err := y.publisher.Publish(ctx, s.Snapshot()); err != nil {
		logrus.WithField("session_id", s.ID).Errorf("publish snapshot: %v", err)
	}
}

func (y *ScoreSynchronizer) retryPolicy(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = y.initialWait
	eb.MaxInterval = 50 * time.Millisecond
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(y.cfg.MaxCommitRetries)), ctx)
}

package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"quiz-battle-service/internal/domain"
	"quiz-battle-service/internal/metrics"
)

// sessionNamespace scopes the deterministic session ids derived from invitation ids.
var sessionNamespace = uuid.MustParse("6f1d5a0e-3c8b-4e55-9a57-0d6f0f4c2b71")

// SessionIDFor derives the battle session id of an invitation. Accepting the same
// invitation twice therefore cannot create two sessions.
func SessionIDFor(invitationID string) string {
	return uuid.NewSHA1(sessionNamespace, []byte(invitationID)).String()
}

// PresentedQuestion is a question shown to one participant with its personal deadline.
type PresentedQuestion struct {
	SessionID   string                `json:"sessionId"`
	Index       int                   `json:"index"`
	Question    domain.PublicQuestion `json:"question"`
	PresentedAt time.Time             `json:"presentedAt"`
	Deadline    time.Time             `json:"deadline"`
}

// BattleService owns the battle session lifecycle.
type BattleService struct {
	sessions SessionRepository
	selector *FairnessSelector
	topics   TopicDirectory
	sync     *ScoreSynchronizer
	results  ResultRecorder
	cfg      BattleConfig
	now      func() time.Time
}

func NewBattleService(
	sessions SessionRepository,
	selector *FairnessSelector,
	topics TopicDirectory,
	publisher SnapshotPublisher,
	results ResultRecorder,
	cfg BattleConfig,
) *BattleService {
	return NewBattleServiceWithClock(sessions, selector, topics, publisher, results, cfg, time.Now)
}

// NewBattleServiceWithClock allows deterministic timestamps in tests.
func NewBattleServiceWithClock(
	sessions SessionRepository,
	selector *FairnessSelector,
	topics TopicDirectory,
	publisher SnapshotPublisher,
	results ResultRecorder,
	cfg BattleConfig,
	now func() time.Time,
) *BattleService {
	return &BattleService{
		sessions: sessions,
		selector: selector,
		topics:   topics,
		sync:     NewScoreSynchronizer(sessions, publisher, cfg, now),
		results:  results,
		cfg:      cfg,
		now:      now,
	}
}

// CreateFromInvitation materializes a pending session for an accepted invitation.
// The pool is requested ∩ completed(challenger) ∩ completed(challenged).
func (b *BattleService) CreateFromInvitation(ctx context.Context, inv domain.Invitation) (domain.BattleSession, error) {
	topicsA, err := b.topics.CompletedTopics(ctx, inv.ChallengerID)
	if err != nil {
		return domain.BattleSession{}, fmt.Errorf("completed topics of %s: %w", inv.ChallengerID, err)
	}
	topicsB, err := b.topics.CompletedTopics(ctx, inv.ChallengedID)
	if err != nil {
		return domain.BattleSession{}, fmt.Errorf("completed topics of %s: %w", inv.ChallengedID, err)
	}

	eligibleA := IntersectTopics(inv.RequestedTopics, topicsA)
	selection, err := b.selector.Select(ctx, eligibleA, topicsB, b.cfg.QuestionCount, SeedFor(inv.ID))
	if err != nil {
		return domain.BattleSession{}, err
	}

	session := domain.BattleSession{
		ID:           SessionIDFor(inv.ID),
		InvitationID: inv.ID,
		A:            domain.ParticipantState{UserID: inv.ChallengerID, Answers: map[int]domain.Answer{}},
		B:            domain.ParticipantState{UserID: inv.ChallengedID, Answers: map[int]domain.Answer{}},
		TopicPool:    selection.Pool,
		Questions:    selection.Questions,
		TimeLimit:    b.cfg.TimeLimit,
		Timeout:      b.cfg.SessionTimeout,
		Status:       domain.BattlePending,
		Version:      1,
		CreatedAt:    b.now(),
	}
	if err := b.sessions.Create(ctx, session); err != nil {
		if errors.Is(err, domain.ErrSessionExists) {
			return b.sessions.Get(ctx, session.ID)
		}
		return domain.BattleSession{}, err
	}
	logrus.WithFields(logrus.Fields{
		"session_id":    session.ID,
		"invitation_id": inv.ID,
		"pool":          session.TopicPool,
	}).Info("battle session created")
	b.sync.publish(ctx, session)
	return session, nil
}

// Get returns the stored session.
func (b *BattleService) Get(ctx context.Context, sessionID string) (domain.BattleSession, error) {
	return b.sessions.Get(ctx, sessionID)
}

// Acknowledge records that a participant is ready; the second acknowledgement starts the battle.
func (b *BattleService) Acknowledge(ctx context.Context, sessionID, userID string) (domain.BattleSnapshot, error) {
	s, _, err := b.sync.Apply(ctx, sessionID, "acknowledge", func(s *domain.BattleSession, now time.Time) (bool, error) {
		return acknowledge(s, userID, now, b.cfg)
	})
	if err != nil {
		return domain.BattleSnapshot{}, err
	}
	b.settleIfTerminal(ctx, s)
	return s.Snapshot(), nil
}

// PresentNext shows the participant their next question, independent of the opponent's pace.
func (b *BattleService) PresentNext(ctx context.Context, sessionID, userID string) (PresentedQuestion, error) {
	var idx int
	s, _, err := b.sync.Apply(ctx, sessionID, "present", func(s *domain.BattleSession, now time.Time) (bool, error) {
		i, changed, err := present(s, userID, now, b.cfg)
		idx = i
		return changed, err
	})
	b.settleIfTerminal(ctx, s)
	if err != nil {
		return PresentedQuestion{}, err
	}
	p, _ := s.Participant(userID)
	presentedAt := p.PresentedAt[idx]
	return PresentedQuestion{
		SessionID:   s.ID,
		Index:       idx,
		Question:    s.Questions[idx].Public(),
		PresentedAt: presentedAt,
		Deadline:    presentedAt.Add(s.TimeLimit),
	}, nil
}

// SubmitAnswer records an answer exactly once and updates the participant's score.
// Duplicates return the first result with domain.ErrAlreadyAnswered.
func (b *BattleService) SubmitAnswer(ctx context.Context, sessionID, userID string, sub domain.AnswerSubmission) (domain.AnswerResult, error) {
	var answer domain.Answer
	s, _, err := b.sync.Apply(ctx, sessionID, "answer", func(s *domain.BattleSession, now time.Time) (bool, error) {
		a, err := submit(s, userID, sub, now, b.cfg)
		answer = a
		return err == nil, err
	})
	b.settleIfTerminal(ctx, s)

	metrics.Submissions.WithLabelValues(submissionOutcome(err)).Inc()
	if err != nil && !errors.Is(err, domain.ErrAlreadyAnswered) {
		entry := logrus.WithFields(logrus.Fields{
			"session_id":     sessionID,
			"user_id":        userID,
			"question_index": sub.QuestionIndex,
		})
		if isRejection(err) {
			entry.Warnf("submission rejected: %v", err)
		}
		return domain.AnswerResult{}, err
	}

	p, ok := s.Participant(userID)
	if !ok {
		return domain.AnswerResult{}, domain.ErrNotParticipant
	}
	result := domain.AnswerResult{
		SessionID:     s.ID,
		QuestionIndex: sub.QuestionIndex,
		Correct:       answer.IsCorrect,
		TotalScore:    p.Score,
		LatencyMs:     answer.LatencyMs,
		Version:       s.Version,
		Status:        s.Status,
	}
	if answer.IsCorrect {
		result.Awarded = s.Questions[sub.QuestionIndex].Weight()
	}
	if err != nil {
		logrus.WithFields(logrus.Fields{"session_id": sessionID, "user_id": userID}).
			Infof("duplicate answer for question %d ignored", sub.QuestionIndex)
	}
	return result, err
}

// Forfeit cancels the session on behalf of userID.
func (b *BattleService) Forfeit(ctx context.Context, sessionID, userID string) (domain.BattleSnapshot, error) {
	s, _, err := b.sync.Apply(ctx, sessionID, "forfeit", func(s *domain.BattleSession, now time.Time) (bool, error) {
		return forfeit(s, userID, now, b.cfg)
	})
	if err != nil {
		return domain.BattleSnapshot{}, err
	}
	b.settleIfTerminal(ctx, s)
	return s.Snapshot(), nil
}

// Disconnect starts the participant's grace period.
func (b *BattleService) Disconnect(ctx context.Context, sessionID, userID string) error {
	return b.setConnected(ctx, sessionID, userID, false)
}

// Reconnect clears a pending grace period.
func (b *BattleService) Reconnect(ctx context.Context, sessionID, userID string) error {
	return b.setConnected(ctx, sessionID, userID, true)
}

func (b *BattleService) setConnected(ctx context.Context, sessionID, userID string, connected bool) error {
	s, _, err := b.sync.Apply(ctx, sessionID, "connection", func(s *domain.BattleSession, now time.Time) (bool, error) {
		return setConnected(s, userID, connected, now)
	})
	b.settleIfTerminal(ctx, s)
	return err
}

// Sweep advances timers of every open session and retries pending settlements.
func (b *BattleService) Sweep(ctx context.Context) error {
	ids, err := b.sessions.ListOpen(ctx)
	if err != nil {
		return fmt.Errorf("list open sessions: %w", err)
	}
	var errs []error
	for _, id := range ids {
		s, _, err := b.sync.Apply(ctx, id, "sweep", func(*domain.BattleSession, time.Time) (bool, error) {
			return false, nil
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("sweep %s: %w", id, err))
			continue
		}
		b.settleIfTerminal(ctx, s)
	}
	return errors.Join(errs...)
}

// settleIfTerminal hands the result of a finished battle to the ledger and marks the
// session settled. Failures are left for the next sweep.
func (b *BattleService) settleIfTerminal(ctx context.Context, s domain.BattleSession) {
	if s.ID == "" || !s.Status.Terminal() || s.Settled {
		return
	}
	entry := logrus.WithField("session_id", s.ID)
	if b.results != nil && (s.Status == domain.BattleCompleted || s.WinnerID != nil) {
		if err := b.results.RecordBattleResult(ctx, s.Result()); err != nil {
			entry.Errorf("record battle result: %v", err)
			return
		}
	}
	_, _, err := b.sync.Apply(ctx, s.ID, "settle", func(s *domain.BattleSession, _ time.Time) (bool, error) {
		if !s.Status.Terminal() || s.Settled {
			return false, nil
		}
		s.Settled = true
		return true, nil
	})
	if err != nil {
		entry.Errorf("mark session settled: %v", err)
	}
}

func isRejection(err error) bool {
	return errors.Is(err, domain.ErrLateSubmission) ||
		errors.Is(err, domain.ErrReplayedSubmission) ||
		errors.Is(err, domain.ErrQuestionNotPresented) ||
		errors.Is(err, domain.ErrOptionNotFound) ||
		errors.Is(err, domain.ErrSessionNotActive)
}

func submissionOutcome(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, domain.ErrAlreadyAnswered):
		return "already_answered"
	case errors.Is(err, domain.ErrLateSubmission):
		return "late"
	case errors.Is(err, domain.ErrReplayedSubmission):
		return "replayed"
	case errors.Is(err, domain.ErrSessionBusy):
		return "busy"
	case isRejection(err):
		return "invalid"
	default:
		return "error"
	}
}

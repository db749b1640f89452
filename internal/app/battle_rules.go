package app

import (
	"time"

	"quiz-battle-service/internal/domain"
)

// ForfeitPolicy decides whether a cancelled battle awards the remaining participant.
type ForfeitPolicy string

const (
	ForfeitNone          ForfeitPolicy = "none"
	ForfeitAwardOpponent ForfeitPolicy = "award_opponent"
)

// BattleConfig carries the timing and policy knobs of the state machine.
type BattleConfig struct {
	QuestionCount    int
	TimeLimit        time.Duration
	SessionTimeout   time.Duration
	DisconnectGrace  time.Duration
	LateGrace        time.Duration
	MaxCommitRetries int
	ForfeitPolicy    ForfeitPolicy
}

// Every rule below validates fully before touching the session, so a returned error
// always means the session is unchanged.

func acknowledge(s *domain.BattleSession, userID string, now time.Time, cfg BattleConfig) (bool, error) {
	p, ok := s.Participant(userID)
	if !ok {
		return false, domain.ErrNotParticipant
	}
	if s.Status.Terminal() {
		return false, domain.ErrSessionNotActive
	}
	if p.Acknowledged {
		return false, nil
	}
	p.Acknowledged = true
	if s.A.Acknowledged && s.B.Acknowledged {
		start := now
		deadline := now.Add(cfg.SessionTimeout)
		s.Status = domain.BattleActive
		s.StartedAt = &start
		s.Deadline = &deadline
	}
	return true, nil
}

// present shows the participant their next question. Asking again while the current
// question is still open returns that question without a mutation.
func present(s *domain.BattleSession, userID string, now time.Time, cfg BattleConfig) (int, bool, error) {
	p, ok := s.Participant(userID)
	if !ok {
		return 0, false, domain.ErrNotParticipant
	}
	if s.Status != domain.BattleActive {
		return 0, false, domain.ErrSessionNotActive
	}
	n := len(p.PresentedAt)
	if n > 0 {
		_, answered := p.Answers[n-1]
		if !answered && !now.After(p.PresentedAt[n-1].Add(cfg.TimeLimit)) {
			return n - 1, false, nil
		}
	}
	if n >= len(s.Questions) {
		return 0, false, domain.ErrNoMoreQuestions
	}
	p.PresentedAt = append(p.PresentedAt, now)
	return n, true, nil
}

func submit(s *domain.BattleSession, userID string, sub domain.AnswerSubmission, now time.Time, cfg BattleConfig) (domain.Answer, error) {
	if s.Status != domain.BattleActive {
		return domain.Answer{}, domain.ErrSessionNotActive
	}
	p, ok := s.Participant(userID)
	if !ok {
		return domain.Answer{}, domain.ErrNotParticipant
	}
	idx := sub.QuestionIndex
	if idx < 0 || idx >= len(s.Questions) || idx >= len(p.PresentedAt) {
		return domain.Answer{}, domain.ErrQuestionNotPresented
	}
	if existing, dup := p.Answers[idx]; dup {
		return existing, domain.ErrAlreadyAnswered
	}

	presentedAt := p.PresentedAt[idx]
	deadline := presentedAt.Add(cfg.TimeLimit)
	switch {
	case sub.ClientTimestamp.Before(presentedAt):
		return domain.Answer{}, domain.ErrReplayedSubmission
	case sub.ClientTimestamp.After(deadline):
		return domain.Answer{}, domain.ErrLateSubmission
	case now.After(deadline.Add(cfg.LateGrace)):
		// The client clock claims in time but the server received it well past the window.
		return domain.Answer{}, domain.ErrLateSubmission
	}

	question := s.Questions[idx]
	option, ok := question.Option(sub.OptionID)
	if !ok {
		return domain.Answer{}, domain.ErrOptionNotFound
	}

	answer := domain.Answer{
		ParticipantID:   userID,
		QuestionIndex:   idx,
		SelectedOption:  option.ID,
		ClientTimestamp: sub.ClientTimestamp,
		ReceivedAt:      now,
		IsCorrect:       option.Correct,
		LatencyMs:       sub.ClientTimestamp.Sub(presentedAt).Milliseconds(),
	}
	if p.Answers == nil {
		p.Answers = make(map[int]domain.Answer)
	}
	p.Answers[idx] = answer
	if answer.IsCorrect {
		p.Score += question.Weight()
	}
	return answer, nil
}

func setConnected(s *domain.BattleSession, userID string, connected bool, now time.Time) (bool, error) {
	p, ok := s.Participant(userID)
	if !ok {
		return false, domain.ErrNotParticipant
	}
	if s.Status.Terminal() {
		return false, nil
	}
	switch {
	case connected && p.DisconnectedAt != nil:
		p.DisconnectedAt = nil
		return true, nil
	case !connected && p.DisconnectedAt == nil:
		at := now
		p.DisconnectedAt = &at
		return true, nil
	}
	return false, nil
}

func forfeit(s *domain.BattleSession, userID string, now time.Time, cfg BattleConfig) (bool, error) {
	opponent, ok := s.Opponent(userID)
	if !ok {
		return false, domain.ErrNotParticipant
	}
	if s.Status.Terminal() {
		return false, domain.ErrSessionNotActive
	}
	cancel(s, now, domain.EndForfeit, opponent.UserID, cfg)
	return true, nil
}

// advance applies the session-owned timers: pending expiry, overall timeout, disconnect
// grace and the all-answered completion check. It reports whether a transition happened.
func advance(s *domain.BattleSession, now time.Time, cfg BattleConfig) bool {
	switch s.Status {
	case domain.BattlePending:
		if cfg.SessionTimeout > 0 && now.After(s.CreatedAt.Add(cfg.SessionTimeout)) {
			cancel(s, now, domain.EndTimeout, "", withoutAward(cfg))
			return true
		}
		return false
	case domain.BattleActive:
	default:
		return false
	}

	if s.Deadline != nil && !now.Before(*s.Deadline) {
		complete(s, now, domain.EndTimeout, cfg)
		return true
	}
	if allResolved(s, now, cfg) {
		complete(s, now, domain.EndAllAnswered, cfg)
		return true
	}
	if cfg.DisconnectGrace > 0 {
		goneA := disconnectedBeyond(s.A, now, cfg.DisconnectGrace)
		goneB := disconnectedBeyond(s.B, now, cfg.DisconnectGrace)
		switch {
		case goneA && goneB:
			cancel(s, now, domain.EndDisconnect, "", cfg)
			return true
		case goneA:
			cancel(s, now, domain.EndDisconnect, s.B.UserID, cfg)
			return true
		case goneB:
			cancel(s, now, domain.EndDisconnect, s.A.UserID, cfg)
			return true
		}
	}
	return false
}

func withoutAward(cfg BattleConfig) BattleConfig {
	cfg.ForfeitPolicy = ForfeitNone
	return cfg
}

func disconnectedBeyond(p domain.ParticipantState, now time.Time, grace time.Duration) bool {
	return p.DisconnectedAt != nil && now.Sub(*p.DisconnectedAt) > grace
}

// allResolved reports whether every question is answered, or presented and expired,
// for both participants.
func allResolved(s *domain.BattleSession, now time.Time, cfg BattleConfig) bool {
	for _, p := range []domain.ParticipantState{s.A, s.B} {
		for i := range s.Questions {
			if _, ok := p.Answers[i]; ok {
				continue
			}
			if i >= len(p.PresentedAt) {
				return false
			}
			if !now.After(p.PresentedAt[i].Add(cfg.TimeLimit).Add(cfg.LateGrace)) {
				return false
			}
		}
	}
	return true
}

// complete scores every unanswered question as missed and decides the winner.
func complete(s *domain.BattleSession, now time.Time, reason domain.EndReason, cfg BattleConfig) {
	for _, p := range []*domain.ParticipantState{&s.A, &s.B} {
		if p.Answers == nil {
			p.Answers = make(map[int]domain.Answer)
		}
		for i := range s.Questions {
			if _, ok := p.Answers[i]; ok {
				continue
			}
			p.Answers[i] = domain.Answer{
				ParticipantID: p.UserID,
				QuestionIndex: i,
				ReceivedAt:    now,
				LatencyMs:     cfg.TimeLimit.Milliseconds(),
				Missed:        true,
			}
		}
	}
	end := now
	s.Status = domain.BattleCompleted
	s.CompletedAt = &end
	s.EndReason = reason
	s.WinnerID = decideWinner(s.A, s.B)
}

// cancel ends the session without a regular result. remaining names the participant
// that may be awarded the win under the configured forfeit policy.
func cancel(s *domain.BattleSession, now time.Time, reason domain.EndReason, remaining string, cfg BattleConfig) {
	end := now
	s.Status = domain.BattleCancelled
	s.CompletedAt = &end
	s.EndReason = reason
	s.WinnerID = nil
	if cfg.ForfeitPolicy == ForfeitAwardOpponent && remaining != "" {
		winner := remaining
		s.WinnerID = &winner
	}
}

// decideWinner compares weighted score, then mean latency (lower wins); a full tie is a draw.
func decideWinner(a, b domain.ParticipantState) *string {
	var winner string
	switch {
	case a.Score > b.Score:
		winner = a.UserID
	case b.Score > a.Score:
		winner = b.UserID
	default:
		la, lb := a.MeanLatencyMs(), b.MeanLatencyMs()
		switch {
		case la < lb:
			winner = a.UserID
		case lb < la:
			winner = b.UserID
		default:
			return nil
		}
	}
	return &winner
}

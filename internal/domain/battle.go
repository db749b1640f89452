package domain

import "time"

// BattleStatus is the lifecycle state of a battle session.
type BattleStatus string

const (
	BattlePending   BattleStatus = "pending"
	BattleActive    BattleStatus = "active"
	BattleCompleted BattleStatus = "completed"
	BattleCancelled BattleStatus = "cancelled"
)

// Terminal reports whether no further transitions are allowed.
func (s BattleStatus) Terminal() bool {
	return s == BattleCompleted || s == BattleCancelled
}

// EndReason records why a session left the active state.
type EndReason string

const (
	EndAllAnswered EndReason = "all_answered"
	EndTimeout     EndReason = "timeout"
	EndForfeit     EndReason = "forfeit"
	EndDisconnect  EndReason = "disconnect"
)

// Answer is one participant's accepted (or synthesized missed) answer to a question.
type Answer struct {
	ParticipantID   string    `json:"participantId"`
	QuestionIndex   int       `json:"questionIndex"`
	SelectedOption  string    `json:"selectedOption"`
	ClientTimestamp time.Time `json:"clientTimestamp"`
	ReceivedAt      time.Time `json:"receivedAt"`
	IsCorrect       bool      `json:"isCorrect"`
	LatencyMs       int64     `json:"latencyMs"`
	Missed          bool      `json:"missed,omitempty"`
}

// ParticipantState is the per-participant slice of a battle session.
type ParticipantState struct {
	UserID         string         `json:"userId"`
	Acknowledged   bool           `json:"acknowledged"`
	PresentedAt    []time.Time    `json:"presentedAt"`
	Answers        map[int]Answer `json:"answers"`
	Score          int            `json:"score"`
	DisconnectedAt *time.Time     `json:"disconnectedAt,omitempty"`
}

// MeanLatencyMs averages latency over every recorded answer, missed ones included.
func (p ParticipantState) MeanLatencyMs() float64 {
	if len(p.Answers) == 0 {
		return 0
	}
	var total int64
	for _, a := range p.Answers {
		total += a.LatencyMs
	}
	return float64(total) / float64(len(p.Answers))
}

func (p ParticipantState) clone() ParticipantState {
	cp := p
	cp.PresentedAt = append([]time.Time(nil), p.PresentedAt...)
	cp.Answers = make(map[int]Answer, len(p.Answers))
	for k, v := range p.Answers {
		cp.Answers[k] = v
	}
	if p.DisconnectedAt != nil {
		t := *p.DisconnectedAt
		cp.DisconnectedAt = &t
	}
	return cp
}

// BattleSession is the versioned state of one competitive session.
type BattleSession struct {
	ID           string           `json:"id"`
	InvitationID string           `json:"invitationId"`
	A            ParticipantState `json:"a"`
	B            ParticipantState `json:"b"`
	TopicPool    []string         `json:"topicPool"`
	Questions    []Question       `json:"questions"`
	TimeLimit    time.Duration    `json:"timeLimit"`
	Timeout      time.Duration    `json:"timeout"`
	Status       BattleStatus     `json:"status"`
	Version      int64            `json:"version"`
	CreatedAt    time.Time        `json:"createdAt"`
	StartedAt    *time.Time       `json:"startedAt,omitempty"`
	Deadline     *time.Time       `json:"deadline,omitempty"`
	CompletedAt  *time.Time       `json:"completedAt,omitempty"`
	WinnerID     *string          `json:"winnerId,omitempty"`
	EndReason    EndReason        `json:"endReason,omitempty"`
	Settled      bool             `json:"settled"`
}

// Participant returns a pointer to the state of userID within the session.
func (s *BattleSession) Participant(userID string) (*ParticipantState, bool) {
	switch userID {
	case s.A.UserID:
		return &s.A, true
	case s.B.UserID:
		return &s.B, true
	}
	return nil, false
}

// Opponent returns the other participant of userID.
func (s *BattleSession) Opponent(userID string) (*ParticipantState, bool) {
	switch userID {
	case s.A.UserID:
		return &s.B, true
	case s.B.UserID:
		return &s.A, true
	}
	return nil, false
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (s BattleSession) Clone() BattleSession {
	cp := s
	cp.A = s.A.clone()
	cp.B = s.B.clone()
	cp.TopicPool = append([]string(nil), s.TopicPool...)
	cp.Questions = make([]Question, len(s.Questions))
	for i, q := range s.Questions {
		q.Options = append([]Option(nil), q.Options...)
		cp.Questions[i] = q
	}
	cp.StartedAt = cloneTime(s.StartedAt)
	cp.Deadline = cloneTime(s.Deadline)
	cp.CompletedAt = cloneTime(s.CompletedAt)
	if s.WinnerID != nil {
		w := *s.WinnerID
		cp.WinnerID = &w
	}
	return cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// ParticipantSnapshot is the client-facing progress of one participant.
type ParticipantSnapshot struct {
	UserID    string  `json:"userId"`
	Score     int     `json:"score"`
	Presented int     `json:"presented"`
	Answered  int     `json:"answered"`
	Connected bool    `json:"connected"`
	Ready     bool    `json:"ready"`
	MeanMs    float64 `json:"meanLatencyMs"`
}

// BattleSnapshot is the full-state view pushed to clients after every commit.
// Applying the same snapshot twice is a no-op because it carries the version.
type BattleSnapshot struct {
	SessionID     string              `json:"sessionId"`
	Status        BattleStatus        `json:"status"`
	Version       int64               `json:"version"`
	TopicPool     []string            `json:"topicPool"`
	QuestionCount int                 `json:"questionCount"`
	A             ParticipantSnapshot `json:"a"`
	B             ParticipantSnapshot `json:"b"`
	Deadline      *time.Time          `json:"deadline,omitempty"`
	WinnerID      *string             `json:"winnerId,omitempty"`
	EndReason     EndReason           `json:"endReason,omitempty"`
}

// Snapshot builds the client-facing view of the session.
func (s BattleSession) Snapshot() BattleSnapshot {
	view := func(p ParticipantState) ParticipantSnapshot {
		answered := 0
		for _, a := range p.Answers {
			if !a.Missed {
				answered++
			}
		}
		return ParticipantSnapshot{
			UserID:    p.UserID,
			Score:     p.Score,
			Presented: len(p.PresentedAt),
			Answered:  answered,
			Connected: p.DisconnectedAt == nil,
			Ready:     p.Acknowledged,
			MeanMs:    p.MeanLatencyMs(),
		}
	}
	cp := s.Clone()
	return BattleSnapshot{
		SessionID:     s.ID,
		Status:        s.Status,
		Version:       s.Version,
		TopicPool:     cp.TopicPool,
		QuestionCount: len(s.Questions),
		A:             view(s.A),
		B:             view(s.B),
		Deadline:      cp.Deadline,
		WinnerID:      cp.WinnerID,
		EndReason:     s.EndReason,
	}
}

// BattleResult is what the consistency ledger consumes from a finished battle.
type BattleResult struct {
	SessionID string       `json:"sessionId"`
	Status    BattleStatus `json:"status"`
	WinnerID  *string      `json:"winnerId,omitempty"`
	UserA     string       `json:"userA"`
	UserB     string       `json:"userB"`
	ScoreA    int          `json:"scoreA"`
	ScoreB    int          `json:"scoreB"`
	EndedAt   time.Time    `json:"endedAt"`
}

// Result derives the battle result of a terminal session.
func (s BattleSession) Result() BattleResult {
	res := BattleResult{
		SessionID: s.ID,
		Status:    s.Status,
		UserA:     s.A.UserID,
		UserB:     s.B.UserID,
		ScoreA:    s.A.Score,
		ScoreB:    s.B.Score,
	}
	if s.WinnerID != nil {
		w := *s.WinnerID
		res.WinnerID = &w
	}
	if s.CompletedAt != nil {
		res.EndedAt = *s.CompletedAt
	}
	return res
}

// AnswerSubmission models the scoring signal from clients.
type AnswerSubmission struct {
	QuestionIndex   int       `json:"questionIndex"`
	OptionID        string    `json:"optionId"`
	ClientTimestamp time.Time `json:"clientTimestamp"`
}

// AnswerResult summarizes the outcome of a submission for a single participant.
type AnswerResult struct {
	SessionID     string       `json:"sessionId"`
	QuestionIndex int          `json:"questionIndex"`
	Correct       bool         `json:"correct"`
	Awarded       int          `json:"awarded"`
	TotalScore    int          `json:"totalScore"`
	LatencyMs     int64        `json:"latencyMs"`
	Version       int64        `json:"version"`
	Status        BattleStatus `json:"status"`
}

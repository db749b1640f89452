package app_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"quiz-battle-service/internal/app"
	"quiz-battle-service/internal/domain"
	"quiz-battle-service/internal/infra/memory"
)

var t0 = time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(start time.Time) *testClock {
	return &testClock{now: start}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func testBattleConfig() app.BattleConfig {
	return app.BattleConfig{
		QuestionCount:    3,
		TimeLimit:        10 * time.Second,
		SessionTimeout:   5 * time.Minute,
		DisconnectGrace:  30 * time.Second,
		LateGrace:        2 * time.Second,
		MaxCommitRetries: 10,
		ForfeitPolicy:    app.ForfeitNone,
	}
}

func testConsistencyConfig() app.ConsistencyConfig {
	return app.ConsistencyConfig{
		XP: map[domain.ActivityType]int64{
			domain.ActivityBattleWin:       50,
			domain.ActivityBattleLoss:      10,
			domain.ActivityBattleDraw:      20,
			domain.ActivityQuizCompleted:   30,
			domain.ActivityQuizCorrect:     2,
			domain.ActivityTutoringSession: 40,
			domain.ActivityFlashcardReview: 5,
		},
		LevelThresholds:    []int64{0, 100, 250, 500},
		Location:           time.UTC,
		TutoringMinMinutes: 15,
	}
}

// makeQuestions builds n questions for topic whose correct option is "o2".
func makeQuestions(topic string, n int) []domain.Question {
	out := make([]domain.Question, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, domain.Question{
			ID:     fmt.Sprintf("%s-%02d", topic, i),
			Topic:  topic,
			Prompt: fmt.Sprintf("%s question %d", topic, i),
			Options: []domain.Option{
				{ID: "o1", Text: "wrong"},
				{ID: "o2", Text: "right", Correct: true},
			},
			Points: 1,
		})
	}
	return out
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.InvitationEvent
}

func (n *recordingNotifier) Notify(_ context.Context, e domain.InvitationEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return nil
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Type+":"+string(e.Invitation.Status))
	}
	return out
}

type battleFixture struct {
	clock       *testClock
	sessions    app.SessionRepository
	store       *memory.SessionStore
	topics      *memory.TopicDirectory
	ledger      *memory.Ledger
	hub         *memory.Hub
	notifier    *recordingNotifier
	engine      *app.ConsistencyEngine
	battles     *app.BattleService
	invitations *app.InvitationService
}

type fixtureOption func(*battleFixture)

// withSessions wraps the session store, e.g. to inject conflicts.
func withSessions(wrap func(app.SessionRepository) app.SessionRepository) fixtureOption {
	return func(f *battleFixture) { f.sessions = wrap(f.sessions) }
}

func newBattleFixture(t *testing.T, cfg app.BattleConfig, opts ...fixtureOption) *battleFixture {
	t.Helper()
	ctx := context.Background()
	f := &battleFixture{
		clock:    newTestClock(t0),
		store:    memory.NewSessionStore(),
		topics:   memory.NewTopicDirectory(),
		ledger:   memory.NewLedger(),
		hub:      memory.NewHub(),
		notifier: &recordingNotifier{},
	}
	f.sessions = f.store
	for _, opt := range opts {
		opt(f)
	}

	require.NoError(t, f.topics.MarkCompleted(ctx, "alice", "go", "sql"))
	require.NoError(t, f.topics.MarkCompleted(ctx, "bob", "go", "k8s"))

	bank := append(makeQuestions("go", 8), makeQuestions("sql", 8)...)
	questions := memory.NewQuestionRepository(memory.NewStaticQuestionLoader(bank), time.Minute)

	f.engine = app.NewConsistencyEngineWithClock(f.ledger, memory.NewProfileStore(), testConsistencyConfig(), f.clock.Now)
	f.battles = app.NewBattleServiceWithClock(f.sessions, app.NewFairnessSelector(questions), f.topics, f.hub, f.engine, cfg, f.clock.Now)
	f.invitations = app.NewInvitationServiceWithClock(memory.NewInvitationStore(), f.battles, f.notifier, time.Hour, f.clock.Now)
	return f
}

// accepted creates and accepts an alice-vs-bob invitation and returns the session id.
func (f *battleFixture) accepted(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	inv, err := f.invitations.Create(ctx, "alice", "bob", []string{"go"})
	require.NoError(t, err)
	inv, err = f.invitations.Respond(ctx, inv.ID, "bob", true)
	require.NoError(t, err)
	require.Equal(t, domain.InvitationAccepted, inv.Status)
	require.NotEmpty(t, inv.SessionID)
	return inv.SessionID
}

// started returns the id of an active alice-vs-bob session.
func (f *battleFixture) started(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	id := f.accepted(t)
	_, err := f.battles.Acknowledge(ctx, id, "alice")
	require.NoError(t, err)
	snap, err := f.battles.Acknowledge(ctx, id, "bob")
	require.NoError(t, err)
	require.Equal(t, domain.BattleActive, snap.Status)
	return id
}

// answer presents the participant's next question and answers it after wait.
func (f *battleFixture) answer(t *testing.T, sessionID, userID string, wait time.Duration, option string) domain.AnswerResult {
	t.Helper()
	ctx := context.Background()
	q, err := f.battles.PresentNext(ctx, sessionID, userID)
	require.NoError(t, err)
	res, err := f.battles.SubmitAnswer(ctx, sessionID, userID, domain.AnswerSubmission{
		QuestionIndex:   q.Index,
		OptionID:        option,
		ClientTimestamp: q.PresentedAt.Add(wait),
	})
	require.NoError(t, err)
	return res
}

func (f *battleFixture) session(t *testing.T, id string) domain.BattleSession {
	t.Helper()
	s, err := f.battles.Get(context.Background(), id)
	require.NoError(t, err)
	return s
}

func (f *battleFixture) activityTypes(t *testing.T, userID string) []domain.ActivityType {
	t.Helper()
	recs, err := f.ledger.List(context.Background(), userID, time.Time{}, time.Time{})
	require.NoError(t, err)
	out := make([]domain.ActivityType, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Type)
	}
	return out
}

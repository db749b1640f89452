package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-battle-service/internal/app"
	"quiz-battle-service/internal/domain"
)

func TestAcknowledgeStartsBattle(t *testing.T) {
	ctx := context.Background()
	f := newBattleFixture(t, testBattleConfig())
	id := f.accepted(t)

	s := f.session(t, id)
	assert.Equal(t, domain.BattlePending, s.Status)
	assert.Equal(t, []string{"go"}, s.TopicPool)
	assert.Len(t, s.Questions, 3)

	snap, err := f.battles.Acknowledge(ctx, id, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.BattlePending, snap.Status)

	// a repeated acknowledgement writes nothing
	again, err := f.battles.Acknowledge(ctx, id, "alice")
	require.NoError(t, err)
	assert.Equal(t, snap.Version, again.Version)

	snap, err = f.battles.Acknowledge(ctx, id, "bob")
	require.NoError(t, err)
	assert.Equal(t, domain.BattleActive, snap.Status)
	require.NotNil(t, snap.Deadline)
	assert.Equal(t, t0.Add(5*time.Minute), *snap.Deadline)

	_, err = f.battles.Acknowledge(ctx, id, "mallory")
	assert.ErrorIs(t, err, domain.ErrNotParticipant)
}

func TestAnswersRequireActiveSession(t *testing.T) {
	ctx := context.Background()
	f := newBattleFixture(t, testBattleConfig())
	id := f.accepted(t)

	_, err := f.battles.PresentNext(ctx, id, "alice")
	assert.ErrorIs(t, err, domain.ErrSessionNotActive)
	_, err = f.battles.SubmitAnswer(ctx, id, "alice", domain.AnswerSubmission{QuestionIndex: 0, OptionID: "o2", ClientTimestamp: t0})
	assert.ErrorIs(t, err, domain.ErrSessionNotActive)
}

func TestDuplicateAnswerIsNoOp(t *testing.T) {
	ctx := context.Background()
	f := newBattleFixture(t, testBattleConfig())
	id := f.started(t)

	for i := 0; i < 3; i++ {
		res := f.answer(t, id, "alice", time.Second, "o2")
		assert.Equal(t, i, res.QuestionIndex)
		assert.True(t, res.Correct)
		assert.Equal(t, 1, res.Awarded)
		assert.Equal(t, i+1, res.TotalScore)
	}
	before := f.session(t, id)

	res, err := f.battles.SubmitAnswer(ctx, id, "alice", domain.AnswerSubmission{
		QuestionIndex:   2,
		OptionID:        "o1",
		ClientTimestamp: f.clock.Now(),
	})
	require.ErrorIs(t, err, domain.ErrAlreadyAnswered)
	assert.True(t, res.Correct, "the first answer stands")
	assert.Equal(t, 3, res.TotalScore)

	after := f.session(t, id)
	assert.Equal(t, before.Version, after.Version)
	assert.Equal(t, 3, after.A.Score)
}

func TestTimingRejectionsLeaveSessionUnchanged(t *testing.T) {
	ctx := context.Background()
	f := newBattleFixture(t, testBattleConfig())
	id := f.started(t)

	q, err := f.battles.PresentNext(ctx, id, "alice")
	require.NoError(t, err)
	assert.Equal(t, q.PresentedAt.Add(10*time.Second), q.Deadline)
	before := f.session(t, id)

	cases := []struct {
		name    string
		advance time.Duration
		sub     domain.AnswerSubmission
		want    error
	}{
		{
			name: "replayed before presentation",
			sub:  domain.AnswerSubmission{QuestionIndex: 0, OptionID: "o2", ClientTimestamp: q.PresentedAt.Add(-time.Second)},
			want: domain.ErrReplayedSubmission,
		},
		{
			name: "client stamp after deadline",
			sub:  domain.AnswerSubmission{QuestionIndex: 0, OptionID: "o2", ClientTimestamp: q.Deadline.Add(time.Millisecond)},
			want: domain.ErrLateSubmission,
		},
		{
			name: "not presented yet",
			sub:  domain.AnswerSubmission{QuestionIndex: 1, OptionID: "o2", ClientTimestamp: q.PresentedAt},
			want: domain.ErrQuestionNotPresented,
		},
		{
			name: "unknown option",
			sub:  domain.AnswerSubmission{QuestionIndex: 0, OptionID: "o9", ClientTimestamp: q.PresentedAt},
			want: domain.ErrOptionNotFound,
		},
		{
			name:    "received past the late grace",
			advance: 13 * time.Second,
			sub:     domain.AnswerSubmission{QuestionIndex: 0, OptionID: "o2", ClientTimestamp: q.PresentedAt.Add(5 * time.Second)},
			want:    domain.ErrLateSubmission,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f.clock.Advance(tc.advance)
			_, err := f.battles.SubmitAnswer(ctx, id, "alice", tc.sub)
			assert.ErrorIs(t, err, tc.want)

			after := f.session(t, id)
			assert.Equal(t, before.Version, after.Version)
			assert.Equal(t, 0, after.A.Score)
			assert.Empty(t, after.A.Answers)
		})
	}
}

func TestPresentNextIsIdempotentWhileOpen(t *testing.T) {
	ctx := context.Background()
	f := newBattleFixture(t, testBattleConfig())
	id := f.started(t)

	first, err := f.battles.PresentNext(ctx, id, "alice")
	require.NoError(t, err)
	f.clock.Advance(3 * time.Second)
	again, err := f.battles.PresentNext(ctx, id, "alice")
	require.NoError(t, err)
	assert.Equal(t, first.Index, again.Index)
	assert.Equal(t, first.PresentedAt, again.PresentedAt)

	// once the window passes the next question is shown
	f.clock.Advance(8 * time.Second)
	next, err := f.battles.PresentNext(ctx, id, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, next.Index)
}

func TestParticipantsProgressIndependently(t *testing.T) {
	f := newBattleFixture(t, testBattleConfig())
	id := f.started(t)

	f.answer(t, id, "alice", time.Second, "o2")
	f.answer(t, id, "alice", time.Second, "o2")
	res := f.answer(t, id, "bob", time.Second, "o1")
	assert.Equal(t, 0, res.QuestionIndex)
	assert.False(t, res.Correct)

	s := f.session(t, id)
	assert.Len(t, s.A.PresentedAt, 2)
	assert.Len(t, s.B.PresentedAt, 1)
	assert.Equal(t, 2, s.A.Score)
	assert.Equal(t, 0, s.B.Score)
}

func TestIdenticalAnswersEndInDraw(t *testing.T) {
	cfg := testBattleConfig()
	cfg.QuestionCount = 5
	f := newBattleFixture(t, cfg)
	id := f.started(t)

	for i := 0; i < 5; i++ {
		f.answer(t, id, "alice", 2*time.Second, "o2")
		f.answer(t, id, "bob", 2*time.Second, "o2")
	}

	s := f.session(t, id)
	assert.Equal(t, domain.BattleCompleted, s.Status)
	assert.Equal(t, domain.EndAllAnswered, s.EndReason)
	assert.Nil(t, s.WinnerID)
	assert.Equal(t, 5, s.A.Score)
	assert.Equal(t, 5, s.B.Score)
	assert.True(t, s.Settled)

	assert.Equal(t, []domain.ActivityType{domain.ActivityBattleDraw}, f.activityTypes(t, "alice"))
	assert.Equal(t, []domain.ActivityType{domain.ActivityBattleDraw}, f.activityTypes(t, "bob"))
}

func TestLowerMeanLatencyBreaksScoreTie(t *testing.T) {
	ctx := context.Background()
	f := newBattleFixture(t, testBattleConfig())
	id := f.started(t)

	for i := 0; i < 3; i++ {
		f.answer(t, id, "alice", time.Second, "o2")
		f.answer(t, id, "bob", 3*time.Second, "o2")
	}

	s := f.session(t, id)
	require.Equal(t, domain.BattleCompleted, s.Status)
	require.NotNil(t, s.WinnerID)
	assert.Equal(t, "alice", *s.WinnerID)

	assert.Equal(t, []domain.ActivityType{domain.ActivityBattleWin}, f.activityTypes(t, "alice"))
	assert.Equal(t, []domain.ActivityType{domain.ActivityBattleLoss}, f.activityTypes(t, "bob"))

	profile, err := f.engine.GetProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, profile.Counters.BattlesWon)
	assert.Equal(t, int64(50), profile.Counters.XP)
}

func TestSessionTimeoutScoresMissedAnswers(t *testing.T) {
	ctx := context.Background()
	cfg := testBattleConfig()
	cfg.SessionTimeout = time.Minute
	f := newBattleFixture(t, cfg)
	id := f.started(t)

	f.answer(t, id, "alice", time.Second, "o2")
	f.clock.Advance(2 * time.Minute)
	require.NoError(t, f.battles.Sweep(ctx))

	s := f.session(t, id)
	assert.Equal(t, domain.BattleCompleted, s.Status)
	assert.Equal(t, domain.EndTimeout, s.EndReason)
	require.NotNil(t, s.WinnerID)
	assert.Equal(t, "alice", *s.WinnerID)
	require.Len(t, s.B.Answers, 3)
	for _, a := range s.B.Answers {
		assert.True(t, a.Missed)
		assert.False(t, a.IsCorrect)
		assert.Equal(t, cfg.TimeLimit.Milliseconds(), a.LatencyMs)
	}
	assert.True(t, s.Settled)

	_, err := f.battles.SubmitAnswer(ctx, id, "bob", domain.AnswerSubmission{QuestionIndex: 0, OptionID: "o2", ClientTimestamp: f.clock.Now()})
	assert.ErrorIs(t, err, domain.ErrSessionNotActive)
}

func TestExpiredQuestionsCompleteBattle(t *testing.T) {
	ctx := context.Background()
	f := newBattleFixture(t, testBattleConfig())
	id := f.started(t)

	// everything is presented and left to expire
	for i := 0; i < 3; i++ {
		for _, user := range []string{"alice", "bob"} {
			_, err := f.battles.PresentNext(ctx, id, user)
			require.NoError(t, err)
		}
		f.clock.Advance(11 * time.Second)
	}
	f.clock.Advance(5 * time.Second)
	require.NoError(t, f.battles.Sweep(ctx))

	s := f.session(t, id)
	assert.Equal(t, domain.BattleCompleted, s.Status)
	assert.Equal(t, domain.EndAllAnswered, s.EndReason)
	assert.Nil(t, s.WinnerID)
}

func TestForfeitPolicies(t *testing.T) {
	ctx := context.Background()

	t.Run("none", func(t *testing.T) {
		f := newBattleFixture(t, testBattleConfig())
		id := f.started(t)
		f.answer(t, id, "alice", time.Second, "o2")

		snap, err := f.battles.Forfeit(ctx, id, "alice")
		require.NoError(t, err)
		assert.Equal(t, domain.BattleCancelled, snap.Status)
		assert.Equal(t, domain.EndForfeit, snap.EndReason)
		assert.Nil(t, snap.WinnerID)
		assert.Equal(t, 1, snap.A.Score, "partial scores are kept")

		assert.Empty(t, f.activityTypes(t, "alice"))
		assert.Empty(t, f.activityTypes(t, "bob"))
		assert.True(t, f.session(t, id).Settled)

		_, err = f.battles.Forfeit(ctx, id, "bob")
		assert.ErrorIs(t, err, domain.ErrSessionNotActive)
	})

	t.Run("award opponent", func(t *testing.T) {
		cfg := testBattleConfig()
		cfg.ForfeitPolicy = app.ForfeitAwardOpponent
		f := newBattleFixture(t, cfg)
		id := f.started(t)

		snap, err := f.battles.Forfeit(ctx, id, "alice")
		require.NoError(t, err)
		require.NotNil(t, snap.WinnerID)
		assert.Equal(t, "bob", *snap.WinnerID)

		assert.Equal(t, []domain.ActivityType{domain.ActivityBattleLoss}, f.activityTypes(t, "alice"))
		assert.Equal(t, []domain.ActivityType{domain.ActivityBattleWin}, f.activityTypes(t, "bob"))
	})
}

func TestDisconnectGrace(t *testing.T) {
	ctx := context.Background()
	cfg := testBattleConfig()
	cfg.ForfeitPolicy = app.ForfeitAwardOpponent
	f := newBattleFixture(t, cfg)
	id := f.started(t)

	require.NoError(t, f.battles.Disconnect(ctx, id, "alice"))
	f.clock.Advance(10 * time.Second)
	require.NoError(t, f.battles.Reconnect(ctx, id, "alice"))
	f.clock.Advance(40 * time.Second)
	require.NoError(t, f.battles.Sweep(ctx))
	assert.Equal(t, domain.BattleActive, f.session(t, id).Status)

	require.NoError(t, f.battles.Disconnect(ctx, id, "alice"))
	f.clock.Advance(31 * time.Second)
	require.NoError(t, f.battles.Sweep(ctx))

	s := f.session(t, id)
	assert.Equal(t, domain.BattleCancelled, s.Status)
	assert.Equal(t, domain.EndDisconnect, s.EndReason)
	require.NotNil(t, s.WinnerID)
	assert.Equal(t, "bob", *s.WinnerID)
}

func TestUnacknowledgedSessionTimesOut(t *testing.T) {
	ctx := context.Background()
	f := newBattleFixture(t, testBattleConfig())
	id := f.accepted(t)
	_, err := f.battles.Acknowledge(ctx, id, "alice")
	require.NoError(t, err)

	f.clock.Advance(6 * time.Minute)
	require.NoError(t, f.battles.Sweep(ctx))

	s := f.session(t, id)
	assert.Equal(t, domain.BattleCancelled, s.Status)
	assert.Equal(t, domain.EndTimeout, s.EndReason)
	assert.Nil(t, s.WinnerID)

	open, err := f.store.ListOpen(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestSnapshotsArePublishedPerCommit(t *testing.T) {
	f := newBattleFixture(t, testBattleConfig())
	id := f.accepted(t)
	ch, cancel := f.hub.Subscribe(id)
	defer cancel()

	initial := <-ch
	assert.Equal(t, domain.BattlePending, initial.Status)

	_, err := f.battles.Acknowledge(context.Background(), id, "alice")
	require.NoError(t, err)
	next := <-ch
	assert.Greater(t, next.Version, initial.Version)
	assert.True(t, next.A.Ready)
}

package app_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"quiz-battle-service/internal/app"
	"quiz-battle-service/internal/domain"
)

// conflictingStore fails the first n conditional writes with a version conflict.
type conflictingStore struct {
	app.SessionRepository
	mu        sync.Mutex
	remaining int
}

func (s *conflictingStore) UpdateIfVersion(ctx context.Context, session domain.BattleSession, expected int64) error {
	s.mu.Lock()
	if s.remaining > 0 {
		s.remaining--
		s.mu.Unlock()
		return domain.ErrVersionConflict
	}
	s.mu.Unlock()
	return s.SessionRepository.UpdateIfVersion(ctx, session, expected)
}

func (s *conflictingStore) arm(n int) {
	s.mu.Lock()
	s.remaining = n
	s.mu.Unlock()
}

// versionLog records every committed version.
type versionLog struct {
	app.SessionRepository
	mu       sync.Mutex
	versions []int64
}

func (s *versionLog) UpdateIfVersion(ctx context.Context, session domain.BattleSession, expected int64) error {
	if err := s.SessionRepository.UpdateIfVersion(ctx, session, expected); err != nil {
		return err
	}
	s.mu.Lock()
	s.versions = append(s.versions, session.Version)
	s.mu.Unlock()
	return nil
}

func TestConcurrentSubmissionsAllLand(t *testing.T) {
	ctx := context.Background()
	cfg := testBattleConfig()
	cfg.QuestionCount = 5
	cfg.MaxCommitRetries = 50
	log := &versionLog{}
	f := newBattleFixture(t, cfg, withSessions(func(r app.SessionRepository) app.SessionRepository {
		log.SessionRepository = r
		return log
	}))
	id := f.started(t)
	start := f.session(t, id).Version

	g, gctx := errgroup.WithContext(ctx)
	for _, user := range []string{"alice", "bob"} {
		user := user
		g.Go(func() error {
			for i := 0; i < 5; i++ {
				q, err := f.battles.PresentNext(gctx, id, user)
				if err != nil {
					return err
				}
				if _, err := f.battles.SubmitAnswer(gctx, id, user, domain.AnswerSubmission{
					QuestionIndex:   q.Index,
					OptionID:        "o2",
					ClientTimestamp: q.PresentedAt,
				}); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	s := f.session(t, id)
	assert.Equal(t, 5, s.A.Score)
	assert.Equal(t, 5, s.B.Score)
	assert.Len(t, s.A.Answers, 5)
	assert.Len(t, s.B.Answers, 5)
	assert.Equal(t, domain.BattleCompleted, s.Status)

	// every commit took a distinct, consecutive version
	log.mu.Lock()
	defer log.mu.Unlock()
	seen := map[int64]bool{}
	for _, v := range log.versions {
		assert.False(t, seen[v], "version %d committed twice", v)
		seen[v] = true
	}
	for v := start + 1; v <= s.Version; v++ {
		assert.True(t, seen[v], "version %d missing", v)
	}
}

func TestInterleavingDoesNotChangeOutcome(t *testing.T) {
	type move struct {
		present bool
		index   int
		option  string
		at      time.Duration
		wantErr error
	}
	// each participant mixes valid answers with a late and a duplicate submission;
	// only the interleaving between the two varies
	plan := map[string][]move{
		"alice": {
			{present: true},
			{index: 0, option: "o2", at: 11 * time.Second, wantErr: domain.ErrLateSubmission},
			{index: 0, option: "o2", at: time.Second},
			{index: 0, option: "o1", at: 2 * time.Second, wantErr: domain.ErrAlreadyAnswered},
			{present: true},
			{index: 1, option: "o1", at: time.Second},
		},
		"bob": {
			{present: true},
			{index: 0, option: "o1", at: time.Second},
			{index: 0, option: "o2", at: time.Second, wantErr: domain.ErrAlreadyAnswered},
			{present: true},
			{index: 1, option: "o2", at: -time.Second, wantErr: domain.ErrReplayedSubmission},
			{index: 1, option: "o2", at: 11 * time.Second, wantErr: domain.ErrLateSubmission},
		},
	}

	var reference *domain.BattleSession
	for _, order := range interleavings(len(plan["alice"]), len(plan["bob"])) {
		f := newBattleFixture(t, testBattleConfig())
		id := f.started(t)
		ctx := context.Background()
		step := map[string]int{}
		for _, aliceMoves := range order {
			user := "bob"
			if aliceMoves {
				user = "alice"
			}
			m := plan[user][step[user]]
			step[user]++
			if m.present {
				_, err := f.battles.PresentNext(ctx, id, user)
				require.NoError(t, err, "order %v", order)
				continue
			}
			before := f.session(t, id)
			_, err := f.battles.SubmitAnswer(ctx, id, user, domain.AnswerSubmission{
				QuestionIndex:   m.index,
				OptionID:        m.option,
				ClientTimestamp: t0.Add(m.at),
			})
			if m.wantErr == nil {
				require.NoError(t, err, "order %v", order)
				continue
			}
			require.ErrorIs(t, err, m.wantErr, "order %v", order)
			after := f.session(t, id)
			require.Equal(t, before.Version, after.Version, "rejected submission committed, order %v", order)
			require.Equal(t, before.A.Score, after.A.Score, "order %v", order)
			require.Equal(t, before.B.Score, after.B.Score, "order %v", order)
		}

		s := f.session(t, id)
		if reference == nil {
			reference = &s
			continue
		}
		assert.Equal(t, reference.A.Score, s.A.Score, "order %v", order)
		assert.Equal(t, reference.B.Score, s.B.Score, "order %v", order)
		assert.Equal(t, reference.A.Answers, s.A.Answers, "order %v", order)
		assert.Equal(t, reference.B.Answers, s.B.Answers, "order %v", order)
		assert.Equal(t, reference.Version, s.Version, "order %v", order)
	}
	require.NotNil(t, reference)
	// only the valid answers count: alice o2 then o1, bob o1 and nothing accepted for q1
	assert.Equal(t, 1, reference.A.Score)
	assert.Equal(t, 0, reference.B.Score)
	assert.Len(t, reference.A.Answers, 2)
	assert.Len(t, reference.B.Answers, 1)
}

func TestConflictsAreRetried(t *testing.T) {
	ctx := context.Background()
	store := &conflictingStore{}
	f := newBattleFixture(t, testBattleConfig(), withSessions(func(r app.SessionRepository) app.SessionRepository {
		store.SessionRepository = r
		return store
	}))
	id := f.started(t)

	q, err := f.battles.PresentNext(ctx, id, "alice")
	require.NoError(t, err)
	before := f.session(t, id)

	store.arm(3)
	res, err := f.battles.SubmitAnswer(ctx, id, "alice", domain.AnswerSubmission{QuestionIndex: q.Index, OptionID: "o2", ClientTimestamp: q.PresentedAt})
	require.NoError(t, err)
	assert.Equal(t, before.Version+1, res.Version)
	assert.Equal(t, 1, res.TotalScore)
}

func TestExhaustedRetriesReportBusy(t *testing.T) {
	ctx := context.Background()
	cfg := testBattleConfig()
	cfg.MaxCommitRetries = 2
	store := &conflictingStore{}
	f := newBattleFixture(t, cfg, withSessions(func(r app.SessionRepository) app.SessionRepository {
		store.SessionRepository = r
		return store
	}))
	id := f.started(t)
	q, err := f.battles.PresentNext(ctx, id, "alice")
	require.NoError(t, err)
	before := f.session(t, id)

	store.arm(100)
	_, err = f.battles.SubmitAnswer(ctx, id, "alice", domain.AnswerSubmission{QuestionIndex: q.Index, OptionID: "o2", ClientTimestamp: q.PresentedAt})
	require.ErrorIs(t, err, domain.ErrSessionBusy)

	store.arm(0)
	after := f.session(t, id)
	assert.Equal(t, before.Version, after.Version)
	assert.Equal(t, 0, after.A.Score)
}

// interleavings returns every merge of a steps of one actor (true) with b steps of another.
func interleavings(a, b int) [][]bool {
	if a == 0 && b == 0 {
		return [][]bool{{}}
	}
	var out [][]bool
	if a > 0 {
		for _, rest := range interleavings(a-1, b) {
			out = append(out, append([]bool{true}, rest...))
		}
	}
	if b > 0 {
		for _, rest := range interleavings(a, b-1) {
			out = append(out, append([]bool{false}, rest...))
		}
	}
	return out
}

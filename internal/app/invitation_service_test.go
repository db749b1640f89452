package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-battle-service/internal/app"
	"quiz-battle-service/internal/domain"
	"quiz-battle-service/internal/infra/memory"
)

func TestCreateInvitationValidates(t *testing.T) {
	ctx := context.Background()
	f := newBattleFixture(t, testBattleConfig())

	_, err := f.invitations.Create(ctx, "alice", "alice", []string{"go"})
	assert.ErrorIs(t, err, domain.ErrInvalidParticipants)
	_, err = f.invitations.Create(ctx, "alice", "bob", []string{" ", ""})
	assert.ErrorIs(t, err, domain.ErrInvalidTopics)

	inv, err := f.invitations.Create(ctx, "alice", "bob", []string{"sql", "go", "go"})
	require.NoError(t, err)
	assert.Equal(t, domain.InvitationPending, inv.Status)
	assert.Equal(t, []string{"go", "sql"}, inv.RequestedTopics)
	assert.Equal(t, t0.Add(time.Hour), inv.ExpiresAt)
	assert.Equal(t, []string{"created:pending"}, f.notifier.types())
}

func TestInvitationExpiresLazily(t *testing.T) {
	ctx := context.Background()
	f := newBattleFixture(t, testBattleConfig())
	inv, err := f.invitations.Create(ctx, "alice", "bob", []string{"go"})
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	got, err := f.invitations.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvitationExpired, got.Status)

	_, err = f.invitations.Respond(ctx, inv.ID, "bob", true)
	assert.ErrorIs(t, err, domain.ErrInvitationExpired)
	_, err = f.battles.Get(ctx, app.SessionIDFor(inv.ID))
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestRespondRules(t *testing.T) {
	ctx := context.Background()
	f := newBattleFixture(t, testBattleConfig())
	inv, err := f.invitations.Create(ctx, "alice", "bob", []string{"go"})
	require.NoError(t, err)

	_, err = f.invitations.Respond(ctx, inv.ID, "alice", true)
	assert.ErrorIs(t, err, domain.ErrNotInvitee)

	declined, err := f.invitations.Respond(ctx, inv.ID, "bob", false)
	require.NoError(t, err)
	assert.Equal(t, domain.InvitationRejected, declined.Status)
	assert.Empty(t, declined.SessionID)

	_, err = f.invitations.Respond(ctx, inv.ID, "bob", true)
	assert.ErrorIs(t, err, domain.ErrAlreadyResolved)

	_, err = f.invitations.Respond(ctx, "missing", "bob", true)
	assert.ErrorIs(t, err, domain.ErrInvitationNotFound)
}

func TestAcceptWithoutCommonTopicRejects(t *testing.T) {
	ctx := context.Background()
	f := newBattleFixture(t, testBattleConfig())
	// bob never completed sql
	inv, err := f.invitations.Create(ctx, "alice", "bob", []string{"sql"})
	require.NoError(t, err)

	got, err := f.invitations.Respond(ctx, inv.ID, "bob", true)
	require.ErrorIs(t, err, domain.ErrFairnessViolation)
	assert.Equal(t, domain.InvitationRejected, got.Status)

	_, err = f.battles.Get(ctx, app.SessionIDFor(inv.ID))
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestAcceptTwiceCreatesOneSession(t *testing.T) {
	ctx := context.Background()
	f := newBattleFixture(t, testBattleConfig())
	inv, err := f.invitations.Create(ctx, "alice", "bob", []string{"go"})
	require.NoError(t, err)

	first, err := f.battles.CreateFromInvitation(ctx, inv)
	require.NoError(t, err)
	second, err := f.battles.CreateFromInvitation(ctx, inv)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Questions, second.Questions)

	accepted, err := f.invitations.Respond(ctx, inv.ID, "bob", true)
	require.NoError(t, err)
	assert.Equal(t, first.ID, accepted.SessionID)

	_, err = f.invitations.Respond(ctx, inv.ID, "bob", true)
	assert.ErrorIs(t, err, domain.ErrAlreadyResolved)

	open, err := f.store.ListOpen(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestTransientFailureKeepsInvitationPending(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock(t0)
	topics := memory.NewTopicDirectory()
	require.NoError(t, topics.MarkCompleted(ctx, "alice", "go"))
	require.NoError(t, topics.MarkCompleted(ctx, "bob", "go"))

	bank := app.NewQuestionBank(failingProvider{}, nil, app.QuestionBankConfig{Retries: 1, InitialWait: time.Millisecond})
	battles := app.NewBattleServiceWithClock(memory.NewSessionStore(), app.NewFairnessSelector(bank), topics, nil, nil, testBattleConfig(), clock.Now)
	invitations := app.NewInvitationServiceWithClock(memory.NewInvitationStore(), battles, nil, time.Hour, clock.Now)

	inv, err := invitations.Create(ctx, "alice", "bob", []string{"go"})
	require.NoError(t, err)
	_, err = invitations.Respond(ctx, inv.ID, "bob", true)
	require.ErrorIs(t, err, domain.ErrResourceUnavailable)

	got, err := invitations.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvitationPending, got.Status)
}

type failingProvider struct{}

func (failingProvider) ProposeQuestions(context.Context, []string, string, int) ([]domain.Question, error) {
	return nil, errors.New("provider down")
}

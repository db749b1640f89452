package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-battle-service/internal/domain"
	"quiz-battle-service/internal/infra/memory"
)

func TestRelayDeliversSnapshotsToHub(t *testing.T) {
	_, client := newTestClient(t)
	hub := memory.NewHub()
	updates, cancelSub := hub.Subscribe("s1")
	defer cancelSub()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- RelaySnapshots(ctx, client, hub, ready) }()

	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not subscribe")
	}

	pub := NewPublisher(client)
	require.NoError(t, pub.Publish(ctx, domain.BattleSnapshot{SessionID: "s1", Version: 4, Status: domain.BattleActive}))

	select {
	case snap := <-updates:
		assert.Equal(t, int64(4), snap.Version)
	case <-time.After(2 * time.Second):
		t.Fatal("snapshot not relayed")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop")
	}
}

func TestNotifyPublishesInvitationEvents(t *testing.T) {
	ctx := context.Background()
	_, client := newTestClient(t)
	sub := client.Subscribe(ctx, InvitationChannel)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	pub := NewPublisher(client)
	require.NoError(t, pub.Notify(ctx, domain.InvitationEvent{Type: "created", Invitation: domain.Invitation{ID: "i1"}}))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Contains(t, msg.Payload, `"id":"i1"`)
}

package redis

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"quiz-battle-service/internal/app"
	"quiz-battle-service/internal/domain"
)

const (
	SnapshotChannel   = "battle:snapshots"
	InvitationChannel = "battle:invitations"
)

// Publisher fans snapshots and invitation events out over Redis pub/sub so every
// instance can push them to its own websocket clients.
type Publisher struct {
	client *redis.Client
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

func (p *Publisher) Publish(ctx context.Context, snap domain.BattleSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, SnapshotChannel, data).Err()
}

func (p *Publisher) Notify(ctx context.Context, event domain.InvitationEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, InvitationChannel, data).Err()
}

// RelaySnapshots forwards snapshots published by any instance to the local sink until
// ctx is done. ready, if non-nil, is closed once the subscription is confirmed.
func RelaySnapshots(ctx context.Context, client *redis.Client, sink app.SnapshotPublisher, ready chan<- struct{}) error {
	sub := client.Subscribe(ctx, SnapshotChannel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	if ready != nil {
		close(ready)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var snap domain.BattleSnapshot
			if err := json.Unmarshal([]byte(msg.Payload), &snap); err != nil {
				logrus.Warnf("[relay] dropping malformed snapshot: %v", err)
				continue
			}
			if err := sink.Publish(ctx, snap); err != nil {
				logrus.WithField("session_id", snap.SessionID).Errorf("[relay] deliver snapshot: %v", err)
			}
		}
	}
}

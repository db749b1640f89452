package redis

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-battle-service/internal/domain"
)

const openSessionsKey = "battle:sessions:open"

// createSessionScript stores a new session and registers it as open in one step, so a
// created session is always visible to the sweeper.
var createSessionScript = redis.NewScript(`
if redis.call('SET', KEYS[1], ARGV[1], 'NX') then
  redis.call('SADD', KEYS[2], ARGV[2])
  return 1
end
return 0
`)

// SessionStore keeps battle sessions as versioned JSON documents so every instance
// behind the load balancer sees the same state. Open (non-terminal or unsettled)
// session ids are tracked in a set for the sweeper; settled sessions are kept for ttl.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

func (s *SessionStore) Create(ctx context.Context, session domain.BattleSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	keys := []string{s.key(session.ID), openSessionsKey}
	created, err := createSessionScript.Run(ctx, s.client, keys, data, session.ID).Int()
	if err != nil {
		return err
	}
	if created == 0 {
		return domain.ErrSessionExists
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, sessionID string) (domain.BattleSession, error) {
	var session domain.BattleSession
	if err := getJSON(ctx, s.client, s.key(sessionID), domain.ErrSessionNotFound, &session); err != nil {
		return domain.BattleSession{}, err
	}
	return session, nil
}

func (s *SessionStore) UpdateIfVersion(ctx context.Context, session domain.BattleSession, expectedVersion int64) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	key := s.key(session.ID)
	closed := session.Status.Terminal() && session.Settled
	return compareAndSet(ctx, s.client, key, expectedVersion, domain.ErrSessionNotFound, func(pipe redis.Pipeliner) {
		if closed {
			pipe.Set(ctx, key, data, s.ttl)
			pipe.SRem(ctx, openSessionsKey, session.ID)
			return
		}
		pipe.Set(ctx, key, data, 0)
		pipe.SAdd(ctx, openSessionsKey, session.ID)
	})
}

func (s *SessionStore) ListOpen(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, openSessionsKey).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *SessionStore) key(sessionID string) string {
	return "battle:session:" + sessionID
}

// InvitationStore keeps invitations as versioned JSON documents; resolved ones expire after ttl.
type InvitationStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewInvitationStore(client *redis.Client, ttl time.Duration) *InvitationStore {
	return &InvitationStore{client: client, ttl: ttl}
}

func (s *InvitationStore) Create(ctx context.Context, inv domain.Invitation) error {
	data, err := json.Marshal(inv)
	if err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, s.key(inv.ID), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrInvitationExists
	}
	return nil
}

func (s *InvitationStore) Get(ctx context.Context, invitationID string) (domain.Invitation, error) {
	var inv domain.Invitation
	if err := getJSON(ctx, s.client, s.key(invitationID), domain.ErrInvitationNotFound, &inv); err != nil {
		return domain.Invitation{}, err
	}
	return inv, nil
}

func (s *InvitationStore) UpdateIfVersion(ctx context.Context, inv domain.Invitation, expectedVersion int64) error {
	data, err := json.Marshal(inv)
	if err != nil {
		return err
	}
	key := s.key(inv.ID)
	var ttl time.Duration
	if inv.Status != domain.InvitationPending {
		ttl = s.ttl
	}
	return compareAndSet(ctx, s.client, key, expectedVersion, domain.ErrInvitationNotFound, func(pipe redis.Pipeliner) {
		pipe.Set(ctx, key, data, ttl)
	})
}

func (s *InvitationStore) key(invitationID string) string {
	return "battle:invitation:" + invitationID
}

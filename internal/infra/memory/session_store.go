package memory

import (
	"context"
	"sort"
	"sync"

	"quiz-battle-service/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
// Stored values are deep copies, so callers never share state with the store.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.BattleSession
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]domain.BattleSession),
	}
}

func (s *SessionStore) Create(_ context.Context, session domain.BattleSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; ok {
		return domain.ErrSessionExists
	}
	s.sessions[session.ID] = session.Clone()
	return nil
}

func (s *SessionStore) Get(_ context.Context, sessionID string) (domain.BattleSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.BattleSession{}, domain.ErrSessionNotFound
	}
	return session.Clone(), nil
}

// UpdateIfVersion is the compare-and-set primitive the score synchronizer relies on.
func (s *SessionStore) UpdateIfVersion(_ context.Context, session domain.BattleSession, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.sessions[session.ID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if current.Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	s.sessions[session.ID] = session.Clone()
	return nil
}

func (s *SessionStore) ListOpen(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0)
	for id, session := range s.sessions {
		if !session.Status.Terminal() || !session.Settled {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// InvitationStore is an in-memory implementation of app.InvitationRepository.
type InvitationStore struct {
	mu          sync.RWMutex
	invitations map[string]domain.Invitation
}

func NewInvitationStore() *InvitationStore {
	return &InvitationStore{
		invitations: make(map[string]domain.Invitation),
	}
}

func (s *InvitationStore) Create(_ context.Context, inv domain.Invitation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.invitations[inv.ID]; ok {
		return domain.ErrInvitationExists
	}
	s.invitations[inv.ID] = inv.Clone()
	return nil
}

func (s *InvitationStore) Get(_ context.Context, invitationID string) (domain.Invitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.invitations[invitationID]
	if !ok {
		return domain.Invitation{}, domain.ErrInvitationNotFound
	}
	return inv.Clone(), nil
}

func (s *InvitationStore) UpdateIfVersion(_ context.Context, inv domain.Invitation, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.invitations[inv.ID]
	if !ok {
		return domain.ErrInvitationNotFound
	}
	if current.Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	s.invitations[inv.ID] = inv.Clone()
	return nil
}

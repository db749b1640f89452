package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"quiz-battle-service/internal/domain"
	"quiz-battle-service/internal/metrics"
)

// BattleStarter creates the session for an accepted invitation.
type BattleStarter interface {
	CreateFromInvitation(ctx context.Context, inv domain.Invitation) (domain.BattleSession, error)
}

// InvitationService manages the challenge handshake that precedes a battle.
type InvitationService struct {
	invitations InvitationRepository
	battles     BattleStarter
	notifier    InvitationNotifier
	ttl         time.Duration
	now         func() time.Time
}

func NewInvitationService(invitations InvitationRepository, battles BattleStarter, notifier InvitationNotifier, ttl time.Duration) *InvitationService {
	return NewInvitationServiceWithClock(invitations, battles, notifier, ttl, time.Now)
}

// NewInvitationServiceWithClock allows deterministic timestamps in tests.
func NewInvitationServiceWithClock(invitations InvitationRepository, battles BattleStarter, notifier InvitationNotifier, ttl time.Duration, now func() time.Time) *InvitationService {
	return &InvitationService{
		invitations: invitations,
		battles:     battles,
		notifier:    notifier,
		ttl:         ttl,
		now:         now,
	}
}

// Create opens a pending invitation from challenger to challenged.
func (s *InvitationService) Create(ctx context.Context, challengerID, challengedID string, requestedTopics []string) (domain.Invitation, error) {
	challengerID = strings.TrimSpace(challengerID)
	challengedID = strings.TrimSpace(challengedID)
	if challengerID == "" || challengedID == "" || challengerID == challengedID {
		return domain.Invitation{}, domain.ErrInvalidParticipants
	}
	topics := NormalizeTopics(requestedTopics)
	if len(topics) == 0 {
		return domain.Invitation{}, domain.ErrInvalidTopics
	}

	now := s.now()
	inv := domain.Invitation{
		ID:              uuid.NewString(),
		ChallengerID:    challengerID,
		ChallengedID:    challengedID,
		RequestedTopics: topics,
		Status:          domain.InvitationPending,
		CreatedAt:       now,
		ExpiresAt:       now.Add(s.ttl),
		Version:         1,
	}
	if err := s.invitations.Create(ctx, inv); err != nil {
		return domain.Invitation{}, err
	}
	metrics.Invitations.WithLabelValues(string(domain.InvitationPending)).Inc()
	s.notify(ctx, "created", inv)
	return inv, nil
}

// Get returns the invitation, transitioning it to expired when its TTL has passed.
func (s *InvitationService) Get(ctx context.Context, invitationID string) (domain.Invitation, error) {
	for {
		inv, err := s.invitations.Get(ctx, invitationID)
		if err != nil {
			return domain.Invitation{}, err
		}
		if inv.Status != domain.InvitationPending || !s.now().After(inv.ExpiresAt) {
			return inv, nil
		}
		expired, err := s.resolve(ctx, inv, domain.InvitationExpired, "", "ttl elapsed")
		if errors.Is(err, domain.ErrVersionConflict) {
			continue
		}
		return expired, err
	}
}

// Respond resolves a pending invitation. Acceptance creates the battle session; a
// session that would violate fairness is never created and the invitation is rejected.
func (s *InvitationService) Respond(ctx context.Context, invitationID, responderID string, accept bool) (domain.Invitation, error) {
	inv, err := s.Get(ctx, invitationID)
	if err != nil {
		return domain.Invitation{}, err
	}
	if responderID != inv.ChallengedID {
		return inv, domain.ErrNotInvitee
	}
	switch inv.Status {
	case domain.InvitationPending:
	case domain.InvitationExpired:
		return inv, domain.ErrInvitationExpired
	default:
		return inv, domain.ErrAlreadyResolved
	}

	if !accept {
		return s.settle(ctx, inv, domain.InvitationRejected, "", "declined")
	}

	session, err := s.battles.CreateFromInvitation(ctx, inv)
	if err != nil {
		if errors.Is(err, domain.ErrFairnessViolation) || errors.Is(err, domain.ErrInsufficientQuestions) {
			rejected, rerr := s.settle(ctx, inv, domain.InvitationRejected, "", err.Error())
			if rerr != nil {
				return rejected, rerr
			}
			return rejected, err
		}
		// Transient failures leave the invitation pending so the user can retry.
		return inv, err
	}
	return s.settle(ctx, inv, domain.InvitationAccepted, session.ID, "")
}

// settle resolves inv, tolerating a concurrent identical resolution.
func (s *InvitationService) settle(ctx context.Context, inv domain.Invitation, status domain.InvitationStatus, sessionID, reason string) (domain.Invitation, error) {
	resolved, err := s.resolve(ctx, inv, status, sessionID, reason)
	if !errors.Is(err, domain.ErrVersionConflict) {
		return resolved, err
	}
	latest, gerr := s.invitations.Get(ctx, inv.ID)
	if gerr != nil {
		return domain.Invitation{}, gerr
	}
	if latest.Status == status && latest.SessionID == sessionID {
		return latest, nil
	}
	return latest, domain.ErrAlreadyResolved
}

func (s *InvitationService) resolve(ctx context.Context, inv domain.Invitation, status domain.InvitationStatus, sessionID, reason string) (domain.Invitation, error) {
	next := inv.Clone()
	now := s.now()
	next.Status = status
	next.SessionID = sessionID
	next.Reason = reason
	next.ResolvedAt = &now
	next.Version = inv.Version + 1
	if err := s.invitations.UpdateIfVersion(ctx, next, inv.Version); err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			metrics.VersionConflicts.WithLabelValues("invitation").Inc()
		}
		return inv, err
	}
	metrics.Invitations.WithLabelValues(string(status)).Inc()
	logrus.WithFields(logrus.Fields{
		"invitation_id": inv.ID,
		"status":        status,
		"session_id":    sessionID,
	}).Info("invitation resolved")
	s.notify(ctx, "resolved", next)
	return next, nil
}

func (s *InvitationService) notify(ctx context.Context, kind string, inv domain.Invitation) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, domain.InvitationEvent{Type: kind, Invitation: inv}); err != nil {
		logrus.WithField("invitation_id", inv.ID).Errorf("notify invitation %s: %v", kind, err)
	}
}

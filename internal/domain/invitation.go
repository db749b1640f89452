package domain

import "time"

// InvitationStatus is the lifecycle state of a battle invitation.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationRejected InvitationStatus = "rejected"
	InvitationExpired  InvitationStatus = "expired"
)

// Invitation is the pending-challenge handshake that precedes a battle session.
// It is immutable once resolved.
type Invitation struct {
	ID              string           `json:"id"`
	ChallengerID    string           `json:"challengerId"`
	ChallengedID    string           `json:"challengedId"`
	RequestedTopics []string         `json:"requestedTopics"`
	Status          InvitationStatus `json:"status"`
	CreatedAt       time.Time        `json:"createdAt"`
	ExpiresAt       time.Time        `json:"expiresAt"`
	ResolvedAt      *time.Time       `json:"resolvedAt,omitempty"`
	SessionID       string           `json:"sessionId,omitempty"`
	Reason          string           `json:"reason,omitempty"`
	Version         int64            `json:"version"`
}

// Clone returns a deep copy of the invitation.
func (i Invitation) Clone() Invitation {
	cp := i
	cp.RequestedTopics = append([]string(nil), i.RequestedTopics...)
	cp.ResolvedAt = cloneTime(i.ResolvedAt)
	return cp
}

// InvitationEvent is emitted to the external messaging collaborator.
type InvitationEvent struct {
	Type       string     `json:"type"` // "created" or "resolved"
	Invitation Invitation `json:"invitation"`
}

package http

import (
	"errors"
	"net/http"

	"quiz-battle-service/internal/domain"
)

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var errorCodes = []struct {
	err    error
	code   string
	status int
}{
	{domain.ErrSessionNotFound, "session_not_found", http.StatusNotFound},
	{domain.ErrInvitationNotFound, "invitation_not_found", http.StatusNotFound},
	{domain.ErrNotParticipant, "not_participant", http.StatusForbidden},
	{domain.ErrNotInvitee, "not_invitee", http.StatusForbidden},
	{domain.ErrFairnessViolation, "fairness_violation", http.StatusUnprocessableEntity},
	{domain.ErrInsufficientQuestions, "insufficient_questions", http.StatusUnprocessableEntity},
	{domain.ErrInvalidTopics, "invalid_topics", http.StatusBadRequest},
	{domain.ErrInvalidParticipants, "invalid_participants", http.StatusBadRequest},
	{domain.ErrInvalidActivity, "invalid_activity", http.StatusBadRequest},
	{domain.ErrUnknownActivityType, "unknown_activity_type", http.StatusBadRequest},
	{domain.ErrInvalidRange, "invalid_range", http.StatusBadRequest},
	{domain.ErrOptionNotFound, "option_not_found", http.StatusBadRequest},
	{domain.ErrQuestionNotPresented, "question_not_presented", http.StatusConflict},
	{domain.ErrNoMoreQuestions, "no_more_questions", http.StatusConflict},
	{domain.ErrAlreadyAnswered, "already_answered", http.StatusConflict},
	{domain.ErrAlreadyResolved, "already_resolved", http.StatusConflict},
	{domain.ErrDuplicateActivity, "duplicate_activity", http.StatusConflict},
	{domain.ErrSessionNotActive, "session_not_active", http.StatusConflict},
	{domain.ErrLateSubmission, "late_submission", http.StatusConflict},
	{domain.ErrReplayedSubmission, "replayed_submission", http.StatusConflict},
	{domain.ErrInvitationExpired, "invitation_expired", http.StatusGone},
	{domain.ErrSessionBusy, "session_busy", http.StatusServiceUnavailable},
	{domain.ErrResourceUnavailable, "resource_unavailable", http.StatusServiceUnavailable},
}

// classify maps a domain error to a stable code and HTTP status.
func classify(err error) (string, int) {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.code, e.status
		}
	}
	return "internal", http.StatusInternalServerError
}

func errorBody(err error) errorPayload {
	code, _ := classify(err)
	return errorPayload{Code: code, Message: err.Error()}
}

package domain

import "errors"

var (
	// ErrFairnessViolation is returned when two participants share no completed topic.
	ErrFairnessViolation = errors.New("fairness violation: no common completed topic")
	// ErrInsufficientQuestions indicates the bank cannot supply enough distinct questions.
	ErrInsufficientQuestions = errors.New("insufficient questions for battle pool")
	// ErrQuestionBankUnavailable is returned when the question provider keeps failing.
	ErrQuestionBankUnavailable = errors.New("question bank unavailable")
	// ErrResourceUnavailable is returned when neither provider nor fallback pool can serve.
	ErrResourceUnavailable = errors.New("resource unavailable")

	// ErrVersionConflict signals a lost conditional write. It is retried internally.
	ErrVersionConflict = errors.New("version conflict")
	// ErrSessionBusy is returned after the conditional write retry bound is exhausted.
	ErrSessionBusy = errors.New("battle session busy, retry later")

	// ErrSessionNotFound is returned when a battle session does not exist.
	ErrSessionNotFound = errors.New("battle session not found")
	// ErrSessionExists is returned when creating a session whose id is already taken.
	ErrSessionExists = errors.New("battle session already exists")
	// ErrSessionNotActive is returned for answer intake outside the active state.
	ErrSessionNotActive = errors.New("battle session not active")
	// ErrNotParticipant is returned when a user acts on a session they are not part of.
	ErrNotParticipant = errors.New("user is not a participant of this battle")
	// ErrQuestionNotPresented indicates an answer for a question index not yet shown.
	ErrQuestionNotPresented = errors.New("question not presented to participant")
	// ErrNoMoreQuestions is returned when every question has already been presented.
	ErrNoMoreQuestions = errors.New("no more questions")
	// ErrOptionNotFound indicates a submitted option ID is invalid.
	ErrOptionNotFound = errors.New("option not found")
	// ErrAlreadyAnswered marks a duplicate submission; the first answer stands.
	ErrAlreadyAnswered = errors.New("answer already recorded")
	// ErrLateSubmission is returned for answers stamped after the question deadline.
	ErrLateSubmission = errors.New("late submission")
	// ErrReplayedSubmission is returned for answers stamped before the question was shown.
	ErrReplayedSubmission = errors.New("replayed submission")

	// ErrInvalidTopics is returned when an invitation names no topics.
	ErrInvalidTopics = errors.New("invitation requires at least one topic")
	// ErrInvalidParticipants is returned when a user challenges themselves.
	ErrInvalidParticipants = errors.New("challenger and challenged must differ")
	// ErrInvitationNotFound is returned for unknown invitation ids.
	ErrInvitationNotFound = errors.New("invitation not found")
	// ErrInvitationExists is returned when creating an invitation whose id is taken.
	ErrInvitationExists = errors.New("invitation already exists")
	// ErrAlreadyResolved is returned when responding to a non-pending invitation.
	ErrAlreadyResolved = errors.New("invitation already resolved")
	// ErrInvitationExpired is returned when responding past the invitation TTL.
	ErrInvitationExpired = errors.New("invitation expired")
	// ErrNotInvitee is returned when someone other than the challenged user responds.
	ErrNotInvitee = errors.New("only the challenged user can respond")

	// ErrDuplicateActivity is returned by ledgers when a dedup key was already appended.
	ErrDuplicateActivity = errors.New("activity already recorded")
	// ErrUnknownActivityType is returned for activity types missing from the XP table.
	ErrUnknownActivityType = errors.New("unknown activity type")
	// ErrInvalidActivity is returned when required activity fields are missing.
	ErrInvalidActivity = errors.New("invalid activity")
	// ErrInvalidRange is returned for heatmap ranges that are reversed or too long.
	ErrInvalidRange = errors.New("invalid date range")
)

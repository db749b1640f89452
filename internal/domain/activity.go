package domain

import "time"

// DateLayout is the calendar-day key used by streaks and heatmaps.
const DateLayout = "2006-01-02"

// ActivityType classifies a ledger entry; XP is looked up by type.
type ActivityType string

const (
	ActivityBattleWin       ActivityType = "battle_win"
	ActivityBattleLoss      ActivityType = "battle_loss"
	ActivityBattleDraw      ActivityType = "battle_draw"
	ActivityQuizCompleted   ActivityType = "quiz_completed"
	ActivityQuizCorrect     ActivityType = "quiz_correct_answer"
	ActivityTutoringSession ActivityType = "tutoring_session"
	ActivityFlashcardReview ActivityType = "flashcard_review"
)

// ActivityInput is what upstream producers hand to the consistency engine.
type ActivityInput struct {
	UserID          string       `json:"userId"`
	Type            ActivityType `json:"type"`
	OccurredAt      time.Time    `json:"occurredAt"`
	DedupKey        string       `json:"dedupKey"`
	DurationMinutes int          `json:"durationMinutes,omitempty"`
}

// ActivityRecord is an append-only ledger entry.
type ActivityRecord struct {
	UserID     string       `json:"userId"`
	Type       ActivityType `json:"type"`
	OccurredAt time.Time    `json:"occurredAt"`
	Date       string       `json:"date"`
	XPDelta    int64        `json:"xpDelta"`
	DedupKey   string       `json:"dedupKey"`
}

// StreakState is the materialized streak view of a user's ledger.
type StreakState struct {
	CurrentStreak    int    `json:"currentStreak"`
	LongestStreak    int    `json:"longestStreak"`
	LastActivityDate string `json:"lastActivityDate,omitempty"`
	TotalActiveDays  int    `json:"totalActiveDays"`
}

// ProfileCounters is the subset of the learning profile owned by the ledger.
type ProfileCounters struct {
	XP           int64 `json:"xp"`
	Level        int   `json:"level"`
	BattlesWon   int   `json:"battlesWon"`
	BattlesLost  int   `json:"battlesLost"`
	BattlesDrawn int   `json:"battlesDrawn"`
}

// Profile bundles the streak and counter views under one optimistic version.
type Profile struct {
	UserID    string          `json:"userId"`
	Streak    StreakState     `json:"streak"`
	Counters  ProfileCounters `json:"counters"`
	Version   int64           `json:"version"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Heatmap maps calendar day (DateLayout) to the number of ledger entries that day.
type Heatmap map[string]int

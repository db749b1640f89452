package app

import (
	"sort"
	"time"

	"quiz-battle-service/internal/domain"
)

// advanceStreak folds one activity day into the streak. It assumes day is not earlier
// than LastActivityDate; out-of-order days go through streakFromDays instead.
func advanceStreak(st domain.StreakState, day string) domain.StreakState {
	switch {
	case st.LastActivityDate == "":
		st.CurrentStreak = 1
		st.TotalActiveDays = 1
	case day == st.LastActivityDate:
		return st
	case day == nextDay(st.LastActivityDate):
		st.CurrentStreak++
		st.TotalActiveDays++
	default:
		st.CurrentStreak = 1
		st.TotalActiveDays++
	}
	st.LastActivityDate = day
	if st.CurrentStreak > st.LongestStreak {
		st.LongestStreak = st.CurrentStreak
	}
	return st
}

// streakFromDays recomputes the streak from an unordered list of activity days.
func streakFromDays(days []string) domain.StreakState {
	unique := make(map[string]struct{}, len(days))
	for _, d := range days {
		unique[d] = struct{}{}
	}
	ordered := make([]string, 0, len(unique))
	for d := range unique {
		ordered = append(ordered, d)
	}
	sort.Strings(ordered)

	st := domain.StreakState{}
	for _, d := range ordered {
		st = advanceStreak(st, d)
	}
	return st
}

// StreakAsOf reports the streak a user still holds on today: it lapses to zero once a
// full calendar day has passed without activity. Stored values are not changed.
func StreakAsOf(st domain.StreakState, today string) int {
	if st.LastActivityDate == today || nextDay(st.LastActivityDate) == today {
		return st.CurrentStreak
	}
	return 0
}

// LevelForXP maps cumulative xp to a level: thresholds[i] is the minimum xp of level i+1.
func LevelForXP(thresholds []int64, xp int64) int {
	level := 0
	for _, t := range thresholds {
		if xp < t {
			break
		}
		level++
	}
	if level < 1 {
		return 1
	}
	return level
}

func nextDay(day string) string {
	t, err := time.Parse(domain.DateLayout, day)
	if err != nil {
		return ""
	}
	return t.AddDate(0, 0, 1).Format(domain.DateLayout)
}

// applyCounters adds one ledger entry's XP and battle counters to the profile.
func applyCounters(p domain.Profile, rec domain.ActivityRecord, thresholds []int64) domain.Profile {
	p.Counters.XP += rec.XPDelta
	p.Counters.Level = LevelForXP(thresholds, p.Counters.XP)
	switch rec.Type {
	case domain.ActivityBattleWin:
		p.Counters.BattlesWon++
	case domain.ActivityBattleLoss:
		p.Counters.BattlesLost++
	case domain.ActivityBattleDraw:
		p.Counters.BattlesDrawn++
	}
	return p
}

// rebuildProfile recomputes every view from the full ledger of one user.
func rebuildProfile(userID string, records []domain.ActivityRecord, thresholds []int64) domain.Profile {
	p := domain.Profile{UserID: userID}
	days := make([]string, 0, len(records))
	for _, rec := range records {
		p = applyCounters(p, rec, thresholds)
		days = append(days, rec.Date)
	}
	p.Counters.Level = LevelForXP(thresholds, p.Counters.XP)
	p.Streak = streakFromDays(days)
	return p
}

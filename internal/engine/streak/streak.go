// Package streak tracks consecutive-day activity and converts streak length
// into reward multipliers.
package streak

import "time"

// State is a user's streak position: how many consecutive days and which day
// was last counted. Day identity uses the calendar date in UTC.
type State struct {
	Count   int
	LastDay string
}

const dayFormat = "2006-01-02"

// Advance moves the streak forward for activity at now. Repeated activity on
// the already-counted day is a no-op, the day after extends the streak, and
// any gap restarts it at one.
func Advance(s State, now time.Time) State {
	today := now.UTC().Format(dayFormat)
	if s.LastDay == today {
		return s
	}

	yesterday := now.UTC().AddDate(0, 0, -1).Format(dayFormat)
	if s.LastDay == yesterday {
		return State{Count: s.Count + 1, LastDay: today}
	}
	return State{Count: 1, LastDay: today}
}

// MessageBonus converts a streak length into the message multiplier
// 1 + perDay*count, capped at maxBonus.
func MessageBonus(count int, perDay, maxBonus float64) float64 {
	bonus := 1.0 + perDay*float64(count)
	if bonus > maxBonus {
		return maxBonus
	}
	return bonus
}

// VoiceBonus converts a streak length into the voice multiplier
// 1 + perDay*count, where the counted days saturate at maxDays.
func VoiceBonus(count, maxDays int, perDay float64) float64 {
	if count > maxDays {
		count = maxDays
	}
	return 1.0 + perDay*float64(count)
}

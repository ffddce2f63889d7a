// Package achievements routes progress updates to condition-specific
// trackers and reports completions.
package achievements

import (
	"time"

	"github.com/rs/zerolog"
)

// ConditionType identifies which kind of activity an achievement counts.
type ConditionType string

const (
	CondMessages           ConditionType = "messages"
	CondVoiceTime          ConditionType = "voice_time"
	CondDailyStreak        ConditionType = "daily_streak"
	CondReactionsGiven     ConditionType = "reactions_given"
	CondGotReactions       ConditionType = "got_reactions"
	CondAttachmentMessages ConditionType = "attachment_messages"
	CondQualityStreak      ConditionType = "quality_streak"
	CondPrestigeLevel      ConditionType = "prestige_level"
	CondTimeBased          ConditionType = "time_based"
)

// family groups condition types by aggregation rule.
type family int

const (
	familyCount family = iota
	familyStreak
	familyReaction
	familyWindow
)

// Definition describes one achievement.
type Definition struct {
	ID       string
	Category string
	Type     ConditionType
	Target   float64

	// WindowDays bounds the rolling window for time-based conditions.
	WindowDays int
}

// Update is one progress event for a user against a definition.
type Update struct {
	UserID string

	// Delta is added for count-style conditions; Absolute replaces the
	// stored value for streak and level style conditions.
	Delta    float64
	Absolute float64

	Timestamp time.Time
}

// Outcome reports what the router did with an update.
type Outcome struct {
	Applied   bool
	Skipped   bool
	Rejected  bool
	Reason    string
	Progress  float64
	Completed bool

	// NewlyCompleted is true only on the update that crossed the target.
	NewlyCompleted bool
}

// Progress is the persisted tracker state for one (user, achievement) pair.
type Progress struct {
	Value     float64
	Completed bool

	// DayBuckets holds per-day sums for window aggregation, keyed by
	// "2006-01-02".
	DayBuckets map[string]float64
}

// Router dispatches updates by condition type, falling back to the
// definition's category when the type is unknown. The dispatch table is
// fixed at construction.
type Router struct {
	byType     map[ConditionType]family
	byCategory map[string]family
	log        zerolog.Logger
}

// NewRouter builds the router with the full set of known condition types.
func NewRouter(log zerolog.Logger) *Router {
	return &Router{
		byType: map[ConditionType]family{
			CondMessages:           familyCount,
			CondVoiceTime:          familyCount,
			CondAttachmentMessages: familyCount,
			CondDailyStreak:        familyStreak,
			CondQualityStreak:      familyStreak,
			CondPrestigeLevel:      familyStreak,
			CondReactionsGiven:     familyReaction,
			CondGotReactions:       familyReaction,
			CondTimeBased:          familyWindow,
		},
		byCategory: map[string]family{
			"activity":  familyCount,
			"social":    familyReaction,
			"dedicated": familyStreak,
		},
		log: log.With().Str("component", "achievements").Logger(),
	}
}

// Route applies one update to the stored progress under the definition's
// tracker family. Completion is monotonic: a completed achievement stays
// completed and further updates only advance the recorded value.
func (r *Router) Route(def Definition, state Progress, u Update) (Progress, Outcome) {
	if def.ID == "" || def.Type == "" {
		return state, Outcome{Rejected: true, Reason: "definition missing id or condition type"}
	}
	if def.Target <= 0 {
		return state, Outcome{Rejected: true, Reason: "definition missing target"}
	}

	fam, ok := r.byType[def.Type]
	if !ok {
		fam, ok = r.byCategory[def.Category]
		if !ok {
			r.log.Warn().
				Str("achievement_id", def.ID).
				Str("condition_type", string(def.Type)).
				Str("category", def.Category).
				Msg("unroutable progress update")
			return state, Outcome{Skipped: true, Reason: "unroutable: unknown condition type and category"}
		}
	}

	wasCompleted := state.Completed

	switch fam {
	case familyCount, familyReaction:
		state.Value += u.Delta
	case familyStreak:
		// Streaks report their current absolute length; keep the best
		// value seen so a broken streak does not erase earned progress.
		if u.Absolute > state.Value {
			state.Value = u.Absolute
		}
	case familyWindow:
		state = applyWindow(state, def, u)
	}

	if state.Value >= def.Target {
		state.Completed = true
	}

	return state, Outcome{
		Applied:        true,
		Progress:       state.Value,
		Completed:      state.Completed,
		NewlyCompleted: state.Completed && !wasCompleted,
	}
}

// applyWindow adds the delta to today's bucket, expires buckets outside the
// window, and recomputes the rolling sum.
func applyWindow(state Progress, def Definition, u Update) Progress {
	if state.DayBuckets == nil {
		state.DayBuckets = make(map[string]float64)
	}

	day := u.Timestamp.UTC().Format("2006-01-02")
	state.DayBuckets[day] += u.Delta

	windowDays := def.WindowDays
	if windowDays <= 0 {
		windowDays = 1
	}
	cutoff := u.Timestamp.UTC().AddDate(0, 0, -windowDays).Format("2006-01-02")

	total := 0.0
	for d, v := range state.DayBuckets {
		if d <= cutoff {
			delete(state.DayBuckets, d)
			continue
		}
		total += v
	}
	state.Value = total
	return state
}

// Package caps enforces per-user reward limits over daily, weekly, and
// monthly windows, with lazy rollover keyed on period identifiers.
package caps

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"emberbot/internal/config"
	"emberbot/internal/models"
)

// warnRatio is the fraction of a cap at which a warning fires once per period.
const warnRatio = 0.9

// granularity identifies one cap window.
type granularity int

const (
	daily granularity = iota
	weekly
	monthly
)

func (g granularity) String() string {
	switch g {
	case daily:
		return "daily"
	case weekly:
		return "weekly"
	default:
		return "monthly"
	}
}

// periodKey renders the identifier for the window containing t.
func periodKey(g granularity, t time.Time) string {
	switch g {
	case daily:
		return t.Format("2006-01-02")
	case weekly:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%d-W%02d", year, week)
	default:
		return t.Format("2006-01")
	}
}

// bucket accumulates granted rewards for one window. When the key no longer
// matches the current period the totals are stale and get reset on touch.
type bucket struct {
	key           string
	xp            int64
	embers        int64
	activeSeconds float64
	warnedXP      bool
	warnedEmbers  bool
}

// userState tracks all three windows for one (user, domain) pair plus the
// last observed clock reading, used to clamp backwards time jumps.
type userState struct {
	buckets [3]bucket
	lastNow time.Time
}

// Warning reports that a user crossed the warning ratio of a cap.
type Warning struct {
	UserID      string
	Domain      string
	Granularity string
	Currency    string
	Used        int64
	Limit       int64
}

// Enforcer applies reward caps per user and domain. Safe for concurrent use.
type Enforcer struct {
	mu     sync.Mutex
	states map[string]*userState
	log    zerolog.Logger
}

// NewEnforcer returns an empty Enforcer.
func NewEnforcer(log zerolog.Logger) *Enforcer {
	return &Enforcer{
		states: make(map[string]*userState),
		log:    log.With().Str("component", "caps").Logger(),
	}
}

func stateKey(userID, domain string) string {
	return userID + ":" + domain
}

// Apply clamps the proposed reward against the user's remaining allowance in
// every capped window and records what was granted. A zero cap disables that
// window. Returns the granted reward and any warnings that newly fired.
//
// Rollover is lazy: a window resets the first time it is touched after its
// period key changes. The clock is clamped to the last value seen for the
// user, so a backwards jump neither resets nor rolls over any window.
func (e *Enforcer) Apply(userID, domain string, proposed models.Reward, caps config.Caps, now time.Time) (models.Reward, []Warning) {
	e.mu.Lock()
	defer e.mu.Unlock()

	state := e.states[stateKey(userID, domain)]
	if state == nil {
		state = &userState{}
		e.states[stateKey(userID, domain)] = state
	}

	if now.Before(state.lastNow) {
		now = state.lastNow
	} else {
		state.lastNow = now
	}

	limits := [3]config.Limits{caps.Daily, caps.Weekly, caps.Monthly}

	granted := proposed
	for g := daily; g <= monthly; g++ {
		b := &state.buckets[g]
		key := periodKey(g, now)
		if b.key != key {
			*b = bucket{key: key}
		}

		if limits[g].XP > 0 {
			if remaining := limits[g].XP - b.xp; granted.XP > remaining {
				granted.XP = max64(remaining, 0)
			}
		}
		if limits[g].Embers > 0 {
			if remaining := limits[g].Embers - b.embers; granted.Embers > remaining {
				granted.Embers = max64(remaining, 0)
			}
		}
	}

	// Each currency warns independently so one grant pushing both over the
	// threshold reports both.
	var warnings []Warning
	for g := daily; g <= monthly; g++ {
		b := &state.buckets[g]
		b.xp += granted.XP
		b.embers += granted.Embers

		if !b.warnedXP && limits[g].XP > 0 && float64(b.xp) >= warnRatio*float64(limits[g].XP) {
			b.warnedXP = true
			warnings = append(warnings, e.warn(userID, domain, g, "xp", b.xp, limits[g].XP))
		}
		if !b.warnedEmbers && limits[g].Embers > 0 && float64(b.embers) >= warnRatio*float64(limits[g].Embers) {
			b.warnedEmbers = true
			warnings = append(warnings, e.warn(userID, domain, g, "embers", b.embers, limits[g].Embers))
		}
	}

	return granted, warnings
}

// Remaining reports how much allowance the user has left in the tightest
// capped window, or (0, false) meaning unlimited when no window is capped.
func (e *Enforcer) Remaining(userID, domain string, caps config.Caps, now time.Time) (models.Reward, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	state := e.states[stateKey(userID, domain)]
	if state != nil && now.Before(state.lastNow) {
		now = state.lastNow
	}

	limits := [3]config.Limits{caps.Daily, caps.Weekly, caps.Monthly}

	capped := false
	remaining := models.Reward{XP: -1, Embers: -1}
	for g := daily; g <= monthly; g++ {
		var used models.Reward
		if state != nil && state.buckets[g].key == periodKey(g, now) {
			used = models.Reward{XP: state.buckets[g].xp, Embers: state.buckets[g].embers}
		}
		if limits[g].XP > 0 {
			capped = true
			left := max64(limits[g].XP-used.XP, 0)
			if remaining.XP < 0 || left < remaining.XP {
				remaining.XP = left
			}
		}
		if limits[g].Embers > 0 {
			capped = true
			left := max64(limits[g].Embers-used.Embers, 0)
			if remaining.Embers < 0 || left < remaining.Embers {
				remaining.Embers = left
			}
		}
	}
	if !capped {
		return models.Reward{}, false
	}
	if remaining.XP < 0 {
		remaining.XP = 0
	}
	if remaining.Embers < 0 {
		remaining.Embers = 0
	}
	return remaining, true
}

// AddActiveSeconds accrues voice time against the user's current periods.
// Informational accounting alongside the currency accumulators; it is not
// clamped.
func (e *Enforcer) AddActiveSeconds(userID, domain string, seconds float64, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	state := e.states[stateKey(userID, domain)]
	if state == nil {
		state = &userState{}
		e.states[stateKey(userID, domain)] = state
	}

	if now.Before(state.lastNow) {
		now = state.lastNow
	} else {
		state.lastNow = now
	}

	for g := daily; g <= monthly; g++ {
		b := &state.buckets[g]
		key := periodKey(g, now)
		if b.key != key {
			*b = bucket{key: key}
		}
		b.activeSeconds += seconds
	}
}

// ActiveSeconds reports the user's accrued voice time in the daily period
// containing now.
func (e *Enforcer) ActiveSeconds(userID, domain string, now time.Time) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	state := e.states[stateKey(userID, domain)]
	if state == nil {
		return 0
	}
	if now.Before(state.lastNow) {
		now = state.lastNow
	}
	b := state.buckets[daily]
	if b.key != periodKey(daily, now) {
		return 0
	}
	return b.activeSeconds
}

func (e *Enforcer) warn(userID, domain string, g granularity, currency string, used, limit int64) Warning {
	e.log.Debug().
		Str("user_id", userID).
		Str("domain", domain).
		Str("granularity", g.String()).
		Str("currency", currency).
		Int64("used", used).
		Int64("limit", limit).
		Msg("cap warning threshold crossed")
	return Warning{
		UserID:      userID,
		Domain:      domain,
		Granularity: g.String(),
		Currency:    currency,
		Used:        used,
		Limit:       limit,
	}
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// Package engine orchestrates the reward pipelines. It turns platform
// events into cap-adjusted point grants, stat deltas, and achievement
// progress, delegating persistence and delivery to collaborators.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"emberbot/internal/config"
	"emberbot/internal/engine/achievements"
	"emberbot/internal/engine/caps"
	"emberbot/internal/engine/ratelimit"
	"emberbot/internal/engine/streak"
	"emberbot/internal/engine/voice"
	"emberbot/internal/models"
)

// Store receives write intents and serves the reads that seed in-memory
// state after a restart. The engine owns no transaction semantics; each
// delta is an independent apply.
type Store interface {
	ApplyStatDelta(ctx context.Context, delta models.StatDelta) error
	SaveProgress(ctx context.Context, guildID, userID, achievementID string, p achievements.Progress) error
	LoadProgress(ctx context.Context, guildID, userID string) (map[string]achievements.Progress, error)
	GetUserStats(ctx context.Context, guildID, userID string) (models.UserStats, error)
	RecordActivity(ctx context.Context, guildID, userID string, at time.Time) error
}

// Notifier receives advisory signals. Implementations must not block the
// pipeline; delivery is best effort.
type Notifier interface {
	CapWarning(ctx context.Context, guildID string, w caps.Warning)
	AchievementCompleted(ctx context.Context, guildID, userID, achievementID string)
}

// OptOut answers whether a user declined tracking. Errors inside an
// implementation must fail open (report false).
type OptOut interface {
	IsOptedOut(ctx context.Context, guildID, userID string) bool
}

// Engine is the reward computation core. All per-user read-modify-write
// sequences run under that user's lock; events for different users proceed
// in parallel.
type Engine struct {
	settings config.Settings
	store    Store
	notifier Notifier
	optout   OptOut
	log      zerolog.Logger

	caps   *caps.Enforcer
	arena  *voice.Arena
	router *achievements.Router

	msgLimiter     *ratelimit.Limiter
	sessionLimiter *ratelimit.Limiter

	defs []achievements.Definition

	mu        sync.Mutex
	userLocks map[string]*sync.Mutex

	stateMu        sync.Mutex
	hydrated       map[string]bool
	lastMessage    map[string]time.Time
	lastReaction   map[string]time.Time
	streaks        map[string]streak.State
	voiceStreaks   map[string]streak.State
	qualityStreaks map[string]int
	progress       map[string]achievements.Progress
}

// New wires an Engine from its collaborators. defs is the achievement set
// progress updates are routed against; it may be empty.
func New(settings config.Settings, store Store, notifier Notifier, optout OptOut, defs []achievements.Definition, log zerolog.Logger) *Engine {
	msg := settings.EffectiveMessage()
	vo := settings.EffectiveVoice()

	return &Engine{
		settings: settings,
		store:    store,
		notifier: notifier,
		optout:   optout,
		log:      log.With().Str("component", "engine").Logger(),

		caps:   caps.NewEnforcer(log),
		arena:  voice.NewArena(),
		router: achievements.NewRouter(log),

		msgLimiter:     ratelimit.New(msg.RateLimitPerMinute, time.Minute),
		sessionLimiter: ratelimit.New(vo.SessionsPerHour, time.Hour),

		defs: defs,

		userLocks:      make(map[string]*sync.Mutex),
		hydrated:       make(map[string]bool),
		lastMessage:    make(map[string]time.Time),
		lastReaction:   make(map[string]time.Time),
		streaks:        make(map[string]streak.State),
		voiceStreaks:   make(map[string]streak.State),
		qualityStreaks: make(map[string]int),
		progress:       make(map[string]achievements.Progress),
	}
}

// lockUser returns the mutex serializing one user's events, creating it on
// first use.
func (e *Engine) lockUser(guildID, userID string) *sync.Mutex {
	key := guildID + ":" + userID
	e.mu.Lock()
	defer e.mu.Unlock()
	if l, ok := e.userLocks[key]; ok {
		return l
	}
	l := &sync.Mutex{}
	e.userLocks[key] = l
	return l
}

func userKey(guildID, userID string) string {
	return guildID + ":" + userID
}

// ensureHydrated seeds the user's in-memory streaks and achievement
// progress from the store on their first event after startup. Without it a
// restart would route progress against zero state, shrink the persisted
// value on the next save, and re-announce completions. Entries already
// present in memory win; load errors leave the maps unseeded rather than
// blocking the event. Caller holds the user lock.
func (e *Engine) ensureHydrated(ctx context.Context, guildID, userID string) {
	key := userKey(guildID, userID)

	e.stateMu.Lock()
	done := e.hydrated[key]
	e.stateMu.Unlock()
	if done {
		return
	}

	stats, err := e.store.GetUserStats(ctx, guildID, userID)
	if err != nil {
		e.log.Error().Err(err).Str("user_id", userID).Msg("load user stats")
	}
	saved, err := e.store.LoadProgress(ctx, guildID, userID)
	if err != nil {
		e.log.Error().Err(err).Str("user_id", userID).Msg("load achievement progress")
	}

	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	if e.hydrated[key] {
		return
	}
	e.hydrated[key] = true

	if _, ok := e.streaks[key]; !ok && stats.StreakCount > 0 {
		e.streaks[key] = streak.State{Count: stats.StreakCount, LastDay: stats.StreakDay}
	}
	if _, ok := e.voiceStreaks[key]; !ok && stats.VoiceStreakCount > 0 {
		e.voiceStreaks[key] = streak.State{Count: stats.VoiceStreakCount, LastDay: stats.VoiceStreakDay}
	}
	for id, p := range saved {
		pk := key + ":" + id
		if _, ok := e.progress[pk]; !ok {
			e.progress[pk] = p
		}
	}
}

// progressAchievements routes one activity delta against every definition of
// the given condition type and persists and announces the results.
func (e *Engine) progressAchievements(ctx context.Context, guildID, userID string, condType achievements.ConditionType, u achievements.Update) {
	for _, def := range e.defs {
		if def.Type != condType {
			continue
		}

		key := userKey(guildID, userID) + ":" + def.ID
		e.stateMu.Lock()
		state := e.progress[key]
		e.stateMu.Unlock()

		next, out := e.router.Route(def, state, u)
		if out.Rejected || out.Skipped {
			e.log.Debug().
				Str("achievement_id", def.ID).
				Str("user_id", userID).
				Str("reason", out.Reason).
				Msg("achievement update not applied")
			continue
		}

		e.stateMu.Lock()
		e.progress[key] = next
		e.stateMu.Unlock()

		if err := e.store.SaveProgress(ctx, guildID, userID, def.ID, next); err != nil {
			e.log.Error().Err(err).
				Str("achievement_id", def.ID).
				Str("user_id", userID).
				Msg("save achievement progress")
		}
		if out.NewlyCompleted {
			e.notifier.AchievementCompleted(ctx, guildID, userID, def.ID)
		}
	}
}

// emitWarnings forwards cap warnings to the notifier.
func (e *Engine) emitWarnings(ctx context.Context, guildID string, warnings []caps.Warning) {
	for _, w := range warnings {
		e.notifier.CapWarning(ctx, guildID, w)
	}
}

// roundReward converts an unrounded reward pair to integers, half-up, with a
// floor of one point per currency. Cap clamping afterwards may still reduce
// a currency to zero.
func roundReward(xp, embers float64) models.Reward {
	return models.Reward{XP: roundMinOne(xp), Embers: roundMinOne(embers)}
}

func roundMinOne(v float64) int64 {
	rounded := int64(v + 0.5)
	if rounded < 1 {
		return 1
	}
	return rounded
}

// Housekeep prunes aged rate-limit entries and closes stale voice sessions,
// returning the summaries of any sessions it reaped. Intended to run on a
// timer from the adapter layer.
func (e *Engine) Housekeep(ctx context.Context, now time.Time) []voice.Summary {
	e.msgLimiter.Prune(now)
	e.sessionLimiter.Prune(now)

	timeout := time.Duration(e.settings.Voice.SessionTimeoutSeconds * float64(time.Second))
	stale := e.arena.CloseStale(timeout, now)
	for _, sum := range stale {
		e.log.Warn().
			Str("session_id", sum.ID).
			Str("user_id", sum.UserID).
			Str("guild_id", sum.GuildID).
			Float64("active_seconds", sum.ActiveSeconds).
			Msg("reaped stale voice session")
		e.finalizeSession(ctx, sum)
	}
	return stale
}

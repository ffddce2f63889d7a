package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emberbot/internal/config"
	"emberbot/internal/engine/achievements"
	"emberbot/internal/engine/caps"
	"emberbot/internal/models"
)

type fakeStore struct {
	deltas   []models.StatDelta
	progress map[string]achievements.Progress
	stats    map[string]models.UserStats
	activity int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		progress: make(map[string]achievements.Progress),
		stats:    make(map[string]models.UserStats),
	}
}

func (s *fakeStore) ApplyStatDelta(_ context.Context, d models.StatDelta) error {
	s.deltas = append(s.deltas, d)
	return nil
}

func (s *fakeStore) SaveProgress(_ context.Context, guildID, userID, achievementID string, p achievements.Progress) error {
	s.progress[guildID+":"+userID+":"+achievementID] = p
	return nil
}

func (s *fakeStore) LoadProgress(_ context.Context, guildID, userID string) (map[string]achievements.Progress, error) {
	out := make(map[string]achievements.Progress)
	prefix := guildID + ":" + userID + ":"
	for key, p := range s.progress {
		if strings.HasPrefix(key, prefix) {
			out[strings.TrimPrefix(key, prefix)] = p
		}
	}
	return out, nil
}

func (s *fakeStore) GetUserStats(_ context.Context, guildID, userID string) (models.UserStats, error) {
	return s.stats[guildID+":"+userID], nil
}

func (s *fakeStore) RecordActivity(_ context.Context, _, _ string, _ time.Time) error {
	s.activity++
	return nil
}

type fakeNotifier struct {
	warnings  []caps.Warning
	completed []string
}

func (n *fakeNotifier) CapWarning(_ context.Context, _ string, w caps.Warning) {
	n.warnings = append(n.warnings, w)
}

func (n *fakeNotifier) AchievementCompleted(_ context.Context, _, _, achievementID string) {
	n.completed = append(n.completed, achievementID)
}

type fakeOptOut struct {
	optedOut map[string]bool
}

func (o *fakeOptOut) IsOptedOut(_ context.Context, guildID, userID string) bool {
	return o.optedOut[guildID+":"+userID]
}

type harness struct {
	engine   *Engine
	store    *fakeStore
	notifier *fakeNotifier
	optout   *fakeOptOut
}

func newHarness(settings config.Settings, defs []achievements.Definition) *harness {
	h := &harness{
		store:    newFakeStore(),
		notifier: &fakeNotifier{},
		optout:   &fakeOptOut{optedOut: make(map[string]bool)},
	}
	h.engine = New(settings, h.store, h.notifier, h.optout, defs, zerolog.Nop())
	return h
}

func msgEvent(text string, at time.Time) models.MessageEvent {
	return models.MessageEvent{
		GuildID:   "g1",
		ChannelID: "c1",
		UserID:    "u1",
		MessageID: "m1",
		Content:   text,
		Timestamp: at,
	}
}

var baseTime = time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)

func TestHandleMessageGrantsReward(t *testing.T) {
	h := newHarness(config.DefaultSettings(), nil)

	granted, err := h.engine.HandleMessage(context.Background(), msgEvent("hello there this is a message", baseTime))
	require.NoError(t, err)

	// Base 10/6 at quality 1.0 with a day-one streak bonus of 1.1.
	assert.Equal(t, models.Reward{XP: 11, Embers: 7}, granted)

	require.Len(t, h.store.deltas, 1)
	d := h.store.deltas[0]
	assert.Equal(t, int64(11), d.XP)
	assert.Equal(t, int64(1), d.Messages)
	assert.Equal(t, 1, d.StreakCount)
	assert.Equal(t, "2024-03-05", d.StreakDay)
	assert.Equal(t, 1, h.store.activity)
}

func TestHandleMessageOptedOutDoesNothing(t *testing.T) {
	h := newHarness(config.DefaultSettings(), nil)
	h.optout.optedOut["g1:u1"] = true

	granted, err := h.engine.HandleMessage(context.Background(), msgEvent("hello there friend", baseTime))
	require.NoError(t, err)
	assert.True(t, granted.IsZero())
	assert.Empty(t, h.store.deltas)
}

func TestHandleMessageCooldown(t *testing.T) {
	h := newHarness(config.DefaultSettings(), nil)
	ctx := context.Background()

	_, err := h.engine.HandleMessage(ctx, msgEvent("first message here", baseTime))
	require.NoError(t, err)

	granted, err := h.engine.HandleMessage(ctx, msgEvent("too soon again", baseTime.Add(2*time.Second)))
	require.NoError(t, err)
	assert.True(t, granted.IsZero())

	granted, err = h.engine.HandleMessage(ctx, msgEvent("patience pays off", baseTime.Add(10*time.Second)))
	require.NoError(t, err)
	assert.False(t, granted.IsZero())
}

func TestHandleMessageRejectedMessageDoesNotStartCooldown(t *testing.T) {
	h := newHarness(config.DefaultSettings(), nil)
	ctx := context.Background()

	// Too short to earn anything, and it must not eat into the cooldown
	// of the valid message that follows.
	granted, err := h.engine.HandleMessage(ctx, msgEvent("hi", baseTime))
	require.NoError(t, err)
	assert.True(t, granted.IsZero())

	granted, err = h.engine.HandleMessage(ctx, msgEvent("a proper message right after", baseTime.Add(2*time.Second)))
	require.NoError(t, err)
	assert.False(t, granted.IsZero())
}

func TestHandleMessageMinLength(t *testing.T) {
	h := newHarness(config.DefaultSettings(), nil)
	ctx := context.Background()

	granted, err := h.engine.HandleMessage(ctx, msgEvent("hi", baseTime))
	require.NoError(t, err)
	assert.True(t, granted.IsZero())

	// An attachment waives the length requirement.
	ev := msgEvent("", baseTime.Add(time.Minute))
	ev.AttachmentCount = 1
	granted, err = h.engine.HandleMessage(ctx, ev)
	require.NoError(t, err)
	assert.False(t, granted.IsZero())
}

func TestHandleMessageRepetitiveContent(t *testing.T) {
	h := newHarness(config.DefaultSettings(), nil)

	granted, err := h.engine.HandleMessage(context.Background(),
		msgEvent("spam spam spam spam spam spam spam spam", baseTime))
	require.NoError(t, err)
	assert.True(t, granted.IsZero())
	assert.Empty(t, h.store.deltas)
}

func TestHandleMessageDisabledChannel(t *testing.T) {
	settings := config.DefaultSettings()
	settings.Master.DisabledChannels = []string{"c1"}
	h := newHarness(settings, nil)

	granted, err := h.engine.HandleMessage(context.Background(), msgEvent("hello over there", baseTime))
	require.NoError(t, err)
	assert.True(t, granted.IsZero())
}

func TestHandleMessageRateLimit(t *testing.T) {
	settings := config.DefaultSettings()
	settings.Message.RateLimitPerMinute = 2
	settings.Message.CooldownSeconds = 0
	h := newHarness(settings, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		granted, err := h.engine.HandleMessage(ctx,
			msgEvent("a perfectly ordinary message", baseTime.Add(time.Duration(i)*time.Second)))
		require.NoError(t, err)
		assert.False(t, granted.IsZero())
	}

	granted, err := h.engine.HandleMessage(ctx, msgEvent("one too many now", baseTime.Add(3*time.Second)))
	require.NoError(t, err)
	assert.True(t, granted.IsZero())
}

func TestHandleMessageCapsClampAndWarn(t *testing.T) {
	settings := config.DefaultSettings()
	settings.Message.Caps.Daily = config.Limits{XP: 5, Embers: 100}
	h := newHarness(settings, nil)

	granted, err := h.engine.HandleMessage(context.Background(), msgEvent("hello there this is a message", baseTime))
	require.NoError(t, err)
	assert.Equal(t, int64(5), granted.XP)
	require.NotEmpty(t, h.notifier.warnings)
	assert.Equal(t, "daily", h.notifier.warnings[0].Granularity)
}

func TestHandleMessageExhaustedCapShortCircuits(t *testing.T) {
	settings := config.DefaultSettings()
	settings.Message.Caps.Daily = config.Limits{XP: 5, Embers: 3}
	h := newHarness(settings, nil)
	ctx := context.Background()

	granted, err := h.engine.HandleMessage(ctx, msgEvent("hello there this is a message", baseTime))
	require.NoError(t, err)
	assert.Equal(t, models.Reward{XP: 5, Embers: 3}, granted)

	// With both allowances spent the next message is dropped before
	// scoring, so no delta is written for it.
	granted, err = h.engine.HandleMessage(ctx, msgEvent("still talking into the void", baseTime.Add(time.Minute)))
	require.NoError(t, err)
	assert.True(t, granted.IsZero())
	assert.Len(t, h.store.deltas, 1)
}

func TestHandleMessageAchievementCompletion(t *testing.T) {
	settings := config.DefaultSettings()
	settings.Message.CooldownSeconds = 0
	defs := []achievements.Definition{
		{ID: "first-words", Type: achievements.CondMessages, Target: 2},
	}
	h := newHarness(settings, defs)
	ctx := context.Background()

	_, err := h.engine.HandleMessage(ctx, msgEvent("counting this one", baseTime))
	require.NoError(t, err)
	assert.Empty(t, h.notifier.completed)

	_, err = h.engine.HandleMessage(ctx, msgEvent("and this one too", baseTime.Add(time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, []string{"first-words"}, h.notifier.completed)

	p := h.store.progress["g1:u1:first-words"]
	assert.Equal(t, 2.0, p.Value)
	assert.True(t, p.Completed)
}

func TestHandleMessageHighQualityStreak(t *testing.T) {
	settings := config.DefaultSettings()
	settings.Message.CooldownSeconds = 0
	settings.Message.HighQualityThreshold = 1.4
	defs := []achievements.Definition{
		{ID: "craftsman", Type: achievements.CondQualityStreak, Target: 2},
	}
	h := newHarness(settings, defs)
	ctx := context.Background()

	// Thread starters score 1.15 x 1.25 = 1.4375, over the lowered threshold.
	ev := msgEvent("kicking off a fresh discussion", baseTime)
	ev.IsThread = true
	ev.IsThreadOwner = true

	granted, err := h.engine.HandleMessage(ctx, ev)
	require.NoError(t, err)
	// 10 x 1.4375 quality x 1.1 streak x 1.2 high-quality factor.
	assert.Equal(t, models.Reward{XP: 19, Embers: 11}, granted)
	assert.Empty(t, h.notifier.completed)

	ev.Timestamp = baseTime.Add(time.Minute)
	_, err = h.engine.HandleMessage(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, []string{"craftsman"}, h.notifier.completed)

	// An ordinary message breaks the run.
	_, err = h.engine.HandleMessage(ctx, msgEvent("just a plain reply", baseTime.Add(2*time.Minute)))
	require.NoError(t, err)
	h.engine.stateMu.Lock()
	assert.Equal(t, 0, h.engine.qualityStreaks["g1:u1"])
	h.engine.stateMu.Unlock()
}

func TestPersistedProgressSurvivesRestart(t *testing.T) {
	settings := config.DefaultSettings()
	defs := []achievements.Definition{
		{ID: "first-words", Type: achievements.CondMessages, Target: 2},
	}
	h := newHarness(settings, defs)
	h.store.stats["g1:u1"] = models.UserStats{
		UserID:      "u1",
		GuildID:     "g1",
		StreakCount: 3,
		StreakDay:   "2024-03-04",
	}
	h.store.progress["g1:u1:first-words"] = achievements.Progress{Value: 2, Completed: true}

	_, err := h.engine.HandleMessage(context.Background(), msgEvent("back after a restart", baseTime))
	require.NoError(t, err)

	// Persisted progress must not regress across a restart, and a
	// completion already earned is not announced again.
	p := h.store.progress["g1:u1:first-words"]
	assert.Equal(t, 3.0, p.Value)
	assert.True(t, p.Completed)
	assert.Empty(t, h.notifier.completed)

	// Yesterday's streak of 3 picks up where it left off.
	require.Len(t, h.store.deltas, 1)
	assert.Equal(t, 4, h.store.deltas[0].StreakCount)
	assert.Equal(t, "2024-03-05", h.store.deltas[0].StreakDay)
}

func TestVoiceStreakSurvivesRestart(t *testing.T) {
	h := newHarness(config.DefaultSettings(), nil)
	h.store.stats["g1:u1"] = models.UserStats{
		UserID:           "u1",
		GuildID:          "g1",
		VoiceStreakCount: 5,
		VoiceStreakDay:   "2024-03-04",
	}
	ctx := context.Background()

	require.NoError(t, h.engine.HandleVoiceJoin(ctx, "g1", "u1", "vc1", baseTime))
	granted, err := h.engine.HandleVoiceTick(ctx, models.VoiceTickEvent{
		GuildID:        "g1",
		ChannelID:      "vc1",
		UserID:         "u1",
		ElapsedSeconds: 60,
		Participants:   2,
		Timestamp:      baseTime.Add(time.Minute),
	})
	require.NoError(t, err)
	assert.Equal(t, models.Reward{XP: 6, Embers: 4}, granted)

	require.Len(t, h.store.deltas, 1)
	assert.Equal(t, 6, h.store.deltas[0].VoiceStreakCount)
	assert.Equal(t, "2024-03-05", h.store.deltas[0].VoiceStreakDay)
}

func TestVoiceLifecycleRewards(t *testing.T) {
	h := newHarness(config.DefaultSettings(), nil)
	ctx := context.Background()

	require.NoError(t, h.engine.HandleVoiceJoin(ctx, "g1", "u1", "vc1", baseTime))

	granted, err := h.engine.HandleVoiceTick(ctx, models.VoiceTickEvent{
		GuildID:        "g1",
		ChannelID:      "vc1",
		UserID:         "u1",
		ElapsedSeconds: 60,
		Participants:   2,
		Timestamp:      baseTime.Add(time.Minute),
	})
	require.NoError(t, err)
	// 60 s at 0.1 XP/s and 0.067 embers/s with a day-one voice streak of 1.01.
	assert.Equal(t, models.Reward{XP: 6, Embers: 4}, granted)

	sum, err := h.engine.HandleVoiceLeave(ctx, "g1", "u1", baseTime.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 60.0, sum.ActiveSeconds)

	// One delta for the tick, one for the session close.
	require.Len(t, h.store.deltas, 2)
	assert.Equal(t, int64(1), h.store.deltas[1].VoiceSessions)
}

func TestVoiceTickWithoutSessionIgnored(t *testing.T) {
	h := newHarness(config.DefaultSettings(), nil)

	granted, err := h.engine.HandleVoiceTick(context.Background(), models.VoiceTickEvent{
		GuildID:        "g1",
		UserID:         "u1",
		ElapsedSeconds: 60,
		Timestamp:      baseTime,
	})
	require.NoError(t, err)
	assert.True(t, granted.IsZero())
}

func TestVoiceDuplicateTickIgnored(t *testing.T) {
	h := newHarness(config.DefaultSettings(), nil)
	ctx := context.Background()

	require.NoError(t, h.engine.HandleVoiceJoin(ctx, "g1", "u1", "vc1", baseTime))

	tick := models.VoiceTickEvent{
		GuildID:        "g1",
		ChannelID:      "vc1",
		UserID:         "u1",
		ElapsedSeconds: 60,
		Participants:   2,
		Timestamp:      baseTime.Add(time.Minute),
	}
	granted, err := h.engine.HandleVoiceTick(ctx, tick)
	require.NoError(t, err)
	assert.False(t, granted.IsZero())

	// Redelivery of the same tick neither pays nor accumulates.
	granted, err = h.engine.HandleVoiceTick(ctx, tick)
	require.NoError(t, err)
	assert.True(t, granted.IsZero())

	s, ok := h.engine.arena.Get("g1", "u1")
	require.True(t, ok)
	assert.Equal(t, 60.0, s.ActiveSeconds)
}

func TestVoiceTickNegativeElapsedRejected(t *testing.T) {
	h := newHarness(config.DefaultSettings(), nil)
	ctx := context.Background()

	require.NoError(t, h.engine.HandleVoiceJoin(ctx, "g1", "u1", "vc1", baseTime))

	_, err := h.engine.HandleVoiceTick(ctx, models.VoiceTickEvent{
		GuildID:        "g1",
		ChannelID:      "vc1",
		UserID:         "u1",
		ElapsedSeconds: -10,
		Timestamp:      baseTime.Add(time.Minute),
	})
	assert.Error(t, err)
}

func TestVoiceShortSessionNotCounted(t *testing.T) {
	h := newHarness(config.DefaultSettings(), nil)
	ctx := context.Background()

	require.NoError(t, h.engine.HandleVoiceJoin(ctx, "g1", "u1", "vc1", baseTime))
	sum, err := h.engine.HandleVoiceLeave(ctx, "g1", "u1", baseTime.Add(5*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 0.0, sum.ActiveSeconds)

	// Under the minimum, so no session-count delta.
	assert.Empty(t, h.store.deltas)
}

func TestVoiceJoinWhileOpenMigrates(t *testing.T) {
	h := newHarness(config.DefaultSettings(), nil)
	ctx := context.Background()

	require.NoError(t, h.engine.HandleVoiceJoin(ctx, "g1", "u1", "vc1", baseTime))
	require.NoError(t, h.engine.HandleVoiceJoin(ctx, "g1", "u1", "vc2", baseTime.Add(time.Minute)))

	s, ok := h.engine.arena.Get("g1", "u1")
	require.True(t, ok)
	assert.Equal(t, "vc2", s.ChannelID)
}

func TestHousekeepReapsStaleSessions(t *testing.T) {
	h := newHarness(config.DefaultSettings(), nil)
	ctx := context.Background()

	require.NoError(t, h.engine.HandleVoiceJoin(ctx, "g1", "u1", "vc1", baseTime))

	// Default timeout is 600 seconds.
	stale := h.engine.Housekeep(ctx, baseTime.Add(11*time.Minute))
	require.Len(t, stale, 1)
	assert.Equal(t, "u1", stale[0].UserID)

	_, ok := h.engine.arena.Get("g1", "u1")
	assert.False(t, ok)
}

func TestHandleReactionRewardsBothSides(t *testing.T) {
	h := newHarness(config.DefaultSettings(), nil)

	reactor, owner, err := h.engine.HandleReaction(context.Background(), models.ReactionEvent{
		GuildID:    "g1",
		MessageID:  "m1",
		ReactorID:  "u1",
		OwnerID:    "u2",
		Emoji:      "👍",
		MessageAge: 10 * time.Minute,
		Timestamp:  baseTime,
	})
	require.NoError(t, err)
	assert.Equal(t, models.Reward{XP: 2, Embers: 1}, reactor)
	assert.Equal(t, models.Reward{XP: 3, Embers: 2}, owner)

	require.Len(t, h.store.deltas, 2)
	assert.Equal(t, int64(1), h.store.deltas[0].ReactionsGiven)
	assert.Equal(t, int64(1), h.store.deltas[1].GotReactions)
}

func TestHandleReactionSelfIgnoredByDefault(t *testing.T) {
	h := newHarness(config.DefaultSettings(), nil)

	reactor, owner, err := h.engine.HandleReaction(context.Background(), models.ReactionEvent{
		GuildID:   "g1",
		ReactorID: "u1",
		OwnerID:   "u1",
		Emoji:     "👍",
		Timestamp: baseTime,
	})
	require.NoError(t, err)
	assert.True(t, reactor.IsZero())
	assert.True(t, owner.IsZero())
	assert.Empty(t, h.store.deltas)
}

func TestHandleReactionReactorCooldownOwnerStillPaid(t *testing.T) {
	h := newHarness(config.DefaultSettings(), nil)
	ctx := context.Background()

	ev := models.ReactionEvent{
		GuildID:    "g1",
		ReactorID:  "u1",
		OwnerID:    "u2",
		Emoji:      "👍",
		MessageAge: 10 * time.Minute,
		Timestamp:  baseTime,
	}
	_, _, err := h.engine.HandleReaction(ctx, ev)
	require.NoError(t, err)

	ev.Timestamp = baseTime.Add(10 * time.Second)
	reactor, owner, err := h.engine.HandleReaction(ctx, ev)
	require.NoError(t, err)
	assert.True(t, reactor.IsZero())
	assert.False(t, owner.IsZero())
}

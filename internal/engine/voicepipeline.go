package engine

import (
	"context"
	"time"

	"emberbot/internal/engine/achievements"
	"emberbot/internal/engine/streak"
	"emberbot/internal/engine/voice"
	"emberbot/internal/models"
)

// HandleVoiceJoin opens a voice session for the user, or migrates the open
// one when the join is really a channel move. Session starts count against
// the per-hour session limit; a rejected start leaves no session open.
func (e *Engine) HandleVoiceJoin(ctx context.Context, guildID, userID, channelID string, now time.Time) error {
	lock := e.lockUser(guildID, userID)
	lock.Lock()
	defer lock.Unlock()

	if e.optout.IsOptedOut(ctx, guildID, userID) {
		return nil
	}

	if _, ok := e.arena.Get(guildID, userID); ok {
		_, err := e.arena.Migrate(guildID, userID, channelID)
		return err
	}

	if !e.sessionLimiter.Allow(userKey(guildID, userID), now) {
		e.log.Debug().
			Str("guild_id", guildID).
			Str("user_id", userID).
			Msg("voice session rate limit hit")
		return nil
	}

	s, err := e.arena.Open(guildID, userID, channelID, now)
	if err != nil {
		return err
	}
	e.log.Debug().
		Str("session_id", s.ID).
		Str("guild_id", guildID).
		Str("user_id", userID).
		Str("channel_id", channelID).
		Msg("voice session opened")
	return nil
}

// HandleVoiceTick accumulates one interval onto the user's session and
// grants the priced reward. Ticks for users without a session are ignored;
// negative elapsed time is a validation error.
func (e *Engine) HandleVoiceTick(ctx context.Context, ev models.VoiceTickEvent) (models.Reward, error) {
	lock := e.lockUser(ev.GuildID, ev.UserID)
	lock.Lock()
	defer lock.Unlock()

	open, ok := e.arena.Get(ev.GuildID, ev.UserID)
	if !ok {
		return models.Reward{}, nil
	}
	// At-least-once delivery: a tick stamped at or before the last applied
	// one is a duplicate and must not accumulate or pay twice.
	if !ev.Timestamp.After(open.LastTick) {
		return models.Reward{}, nil
	}
	e.ensureHydrated(ctx, ev.GuildID, ev.UserID)

	s, err := e.arena.Tick(ev.GuildID, ev.UserID, ev.ElapsedSeconds, ev.Streaming, ev.Video, ev.Participants, ev.Timestamp)
	if err != nil {
		return models.Reward{}, err
	}

	cfg := e.settings.EffectiveVoice()

	tick, err := voice.ComputeTick(ev.ElapsedSeconds, voice.TickState{
		ChannelID:    ev.ChannelID,
		Streaming:    ev.Streaming,
		Video:        ev.Video,
		Participants: ev.Participants,
	}, cfg, s.ActiveSeconds)
	if err != nil {
		return models.Reward{}, err
	}

	st := e.advanceVoiceStreak(ev.GuildID, ev.UserID, ev.Timestamp)
	bonus := streak.VoiceBonus(st.Count, cfg.StreakBonusMaxDay, cfg.StreakBonusPerDay)

	proposed := roundReward(tick.XP*bonus, tick.Embers*bonus)

	granted, warnings := e.caps.Apply(ev.UserID, "voice", proposed, cfg.Caps, ev.Timestamp)
	e.emitWarnings(ctx, ev.GuildID, warnings)
	e.caps.AddActiveSeconds(ev.UserID, "voice", ev.ElapsedSeconds, ev.Timestamp)

	delta := models.StatDelta{
		UserID:           ev.UserID,
		GuildID:          ev.GuildID,
		XP:               granted.XP,
		Embers:           granted.Embers,
		VoiceSeconds:     ev.ElapsedSeconds,
		VoiceStreakCount: st.Count,
		VoiceStreakDay:   st.LastDay,
		At:               ev.Timestamp,
	}
	if ev.Streaming {
		delta.StreamingSeconds = ev.ElapsedSeconds
	}
	if ev.Video {
		delta.VideoSeconds = ev.ElapsedSeconds
	}
	if err := e.store.ApplyStatDelta(ctx, delta); err != nil {
		return granted, err
	}
	if err := e.store.RecordActivity(ctx, ev.GuildID, ev.UserID, ev.Timestamp); err != nil {
		e.log.Error().Err(err).Str("user_id", ev.UserID).Msg("record activity")
	}

	e.progressAchievements(ctx, ev.GuildID, ev.UserID, achievements.CondVoiceTime,
		achievements.Update{UserID: ev.UserID, Delta: ev.ElapsedSeconds, Timestamp: ev.Timestamp})

	return granted, nil
}

// HandleVoiceLeave closes the user's session. Sessions shorter than the
// configured minimum are discarded without counting as a session.
func (e *Engine) HandleVoiceLeave(ctx context.Context, guildID, userID string, now time.Time) (voice.Summary, error) {
	lock := e.lockUser(guildID, userID)
	lock.Lock()
	defer lock.Unlock()

	sum, err := e.arena.Close(guildID, userID, now)
	if err != nil {
		return voice.Summary{}, err
	}
	e.finalizeSession(ctx, sum)
	return sum, nil
}

// finalizeSession records a closed session. Caller holds the user lock for
// explicit leaves; stale-session reaping calls it from Housekeep where the
// arena has already removed the session.
func (e *Engine) finalizeSession(ctx context.Context, sum voice.Summary) {
	e.log.Debug().
		Str("session_id", sum.ID).
		Str("user_id", sum.UserID).
		Float64("active_seconds", sum.ActiveSeconds).
		Float64("engagement", sum.EngagementScore).
		Msg("voice session closed")

	if sum.ActiveSeconds < e.settings.Voice.MinSessionSeconds {
		return
	}

	delta := models.StatDelta{
		UserID:        sum.UserID,
		GuildID:       sum.GuildID,
		VoiceSessions: 1,
		At:            sum.ClosedAt,
	}
	if err := e.store.ApplyStatDelta(ctx, delta); err != nil {
		e.log.Error().Err(err).Str("session_id", sum.ID).Msg("record session close")
	}
}

func (e *Engine) advanceVoiceStreak(guildID, userID string, now time.Time) streak.State {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	key := userKey(guildID, userID)
	next := streak.Advance(e.voiceStreaks[key], now)
	e.voiceStreaks[key] = next
	return next
}

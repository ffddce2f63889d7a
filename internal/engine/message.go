package engine

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"emberbot/internal/engine/achievements"
	"emberbot/internal/engine/content"
	"emberbot/internal/engine/streak"
	"emberbot/internal/models"
)

// HandleMessage runs the message reward pipeline and returns what was
// granted. A zero reward with a nil error means the message was admitted
// but earned nothing (opt-out, limits, validation, or an exhausted cap).
func (e *Engine) HandleMessage(ctx context.Context, ev models.MessageEvent) (models.Reward, error) {
	lock := e.lockUser(ev.GuildID, ev.UserID)
	lock.Lock()
	defer lock.Unlock()

	log := e.log.With().
		Str("guild_id", ev.GuildID).
		Str("channel_id", ev.ChannelID).
		Str("user_id", ev.UserID).
		Logger()

	if e.optout.IsOptedOut(ctx, ev.GuildID, ev.UserID) {
		return models.Reward{}, nil
	}
	e.ensureHydrated(ctx, ev.GuildID, ev.UserID)

	cfg := e.settings.EffectiveMessage()

	if e.settings.DisabledMessageChannels()[ev.ChannelID] {
		return models.Reward{}, nil
	}

	// Rejected messages must leave the cooldown and streak state alone, so
	// all validation runs before anything is recorded.
	if !validMessage(ev, cfg.MinLength) {
		return models.Reward{}, nil
	}

	if repetitiveContent(ev.Content, cfg.UniqueWordRatio) {
		log.Debug().Msg("repetitive content, no reward")
		return models.Reward{}, nil
	}

	if !e.msgLimiter.Allow(userKey(ev.GuildID, ev.UserID), ev.Timestamp) {
		log.Debug().Msg("message rate limit hit")
		return models.Reward{}, nil
	}

	if remaining, capped := e.caps.Remaining(ev.UserID, "message", cfg.Caps, ev.Timestamp); capped && remaining.IsZero() {
		log.Debug().Msg("reward caps exhausted")
		return models.Reward{}, nil
	}

	if !e.passesCooldown(ev, cfg.CooldownSeconds) {
		return models.Reward{}, nil
	}

	features := content.Analyze(ev.Content, ev.AttachmentCount)
	quality := content.Score(features, content.ThreadFlags{
		InThread:    ev.IsThread,
		ThreadOwner: ev.IsThreadOwner,
	}, cfg.Quality)

	st := e.advanceStreak(ev.GuildID, ev.UserID, ev.Timestamp)
	streakBonus := streak.MessageBonus(st.Count, cfg.StreakBonusPerDay, cfg.StreakBonusMax)

	highQuality := quality >= cfg.HighQualityThreshold
	qualityStreak := e.advanceQualityStreak(ev.GuildID, ev.UserID, highQuality)

	channelBonus := 1.0
	if b, ok := cfg.ChannelBonuses[ev.ChannelID]; ok {
		channelBonus = b
	}
	if b, ok := cfg.PremiumChannels[ev.ChannelID]; ok {
		channelBonus *= b
	}

	mult := quality * lengthFactor(features.TextLength, cfg.LengthFactorStart, cfg.MaxLength, cfg.LengthFactorMax) * streakBonus * channelBonus
	if highQuality {
		mult *= cfg.HighQualityFactor
	}

	proposed := roundReward(float64(cfg.BaseXP)*mult, float64(cfg.BaseEmbers)*mult)

	granted, warnings := e.caps.Apply(ev.UserID, "message", proposed, cfg.Caps, ev.Timestamp)
	e.emitWarnings(ctx, ev.GuildID, warnings)

	log.Debug().
		Float64("quality", quality).
		Float64("streak_bonus", streakBonus).
		Int64("xp", granted.XP).
		Int64("embers", granted.Embers).
		Msg("message reward")

	delta := models.StatDelta{
		UserID:      ev.UserID,
		GuildID:     ev.GuildID,
		XP:          granted.XP,
		Embers:      granted.Embers,
		Messages:    1,
		StreakCount: st.Count,
		StreakDay:   st.LastDay,
		At:          ev.Timestamp,
	}
	if ev.AttachmentCount > 0 {
		delta.AttachmentMessages = 1
	}
	if err := e.store.ApplyStatDelta(ctx, delta); err != nil {
		return granted, err
	}
	if err := e.store.RecordActivity(ctx, ev.GuildID, ev.UserID, ev.Timestamp); err != nil {
		log.Error().Err(err).Msg("record activity")
	}

	e.progressAchievements(ctx, ev.GuildID, ev.UserID, achievements.CondMessages,
		achievements.Update{UserID: ev.UserID, Delta: 1, Timestamp: ev.Timestamp})
	if ev.AttachmentCount > 0 {
		e.progressAchievements(ctx, ev.GuildID, ev.UserID, achievements.CondAttachmentMessages,
			achievements.Update{UserID: ev.UserID, Delta: 1, Timestamp: ev.Timestamp})
	}
	e.progressAchievements(ctx, ev.GuildID, ev.UserID, achievements.CondDailyStreak,
		achievements.Update{UserID: ev.UserID, Absolute: float64(st.Count), Timestamp: ev.Timestamp})
	if qualityStreak > 0 {
		e.progressAchievements(ctx, ev.GuildID, ev.UserID, achievements.CondQualityStreak,
			achievements.Update{UserID: ev.UserID, Absolute: float64(qualityStreak), Timestamp: ev.Timestamp})
	}

	return granted, nil
}

// advanceQualityStreak counts consecutive rewarded messages that scored at
// or above the high-quality threshold; one below it breaks the run.
func (e *Engine) advanceQualityStreak(guildID, userID string, highQuality bool) int {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	key := userKey(guildID, userID)
	if highQuality {
		e.qualityStreaks[key]++
	} else {
		e.qualityStreaks[key] = 0
	}
	return e.qualityStreaks[key]
}

// passesCooldown admits a message only after the per-user cooldown since the
// last rewarded message, and records the timestamp when it admits.
func (e *Engine) passesCooldown(ev models.MessageEvent, cooldownSeconds int) bool {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	key := userKey(ev.GuildID, ev.UserID)
	if last, ok := e.lastMessage[key]; ok {
		if ev.Timestamp.Sub(last) < time.Duration(cooldownSeconds)*time.Second {
			return false
		}
	}
	e.lastMessage[key] = ev.Timestamp
	return true
}

// advanceStreak moves the user's daily message streak forward and returns
// the new state.
func (e *Engine) advanceStreak(guildID, userID string, now time.Time) streak.State {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	key := userKey(guildID, userID)
	next := streak.Advance(e.streaks[key], now)
	e.streaks[key] = next
	return next
}

// validMessage enforces the minimum text length, waived for messages that
// carry attachments.
func validMessage(ev models.MessageEvent, minLength int) bool {
	if ev.AttachmentCount > 0 {
		return true
	}
	return utf8.RuneCountInString(ev.Content) >= minLength
}

// repetitiveContent reports whether a message fails the unique-word-ratio
// check. Short messages are exempt; the check targets copy-paste farming.
func repetitiveContent(text string, minRatio float64) bool {
	words := strings.Fields(strings.ToLower(text))
	if len(words) <= 5 {
		return false
	}

	unique := make(map[string]struct{}, len(words))
	for _, w := range words {
		unique[w] = struct{}{}
	}
	ratio := float64(len(unique)) / float64(len(words))
	return ratio < minRatio
}

// lengthFactor scales rewards for longer messages: 1.0 up to start runes,
// then linear up to maxFactor at maxLength runes.
func lengthFactor(textLength, start, maxLength int, maxFactor float64) float64 {
	if textLength <= start || maxLength <= start {
		return 1.0
	}
	if textLength >= maxLength {
		return maxFactor
	}
	span := float64(maxLength - start)
	return 1.0 + (maxFactor-1.0)*float64(textLength-start)/span
}

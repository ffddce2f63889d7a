package engine

import (
	"context"
	"time"

	"emberbot/internal/engine/achievements"
	"emberbot/internal/engine/reactions"
	"emberbot/internal/models"
)

// HandleReaction rewards both sides of a reaction: the reactor for engaging
// and the message owner for posting something worth reacting to. Each side
// is capped independently under its own identity.
func (e *Engine) HandleReaction(ctx context.Context, ev models.ReactionEvent) (reactor, owner models.Reward, err error) {
	if ev.ReactorID == ev.OwnerID && !e.settings.Reaction.SelfReactionsCount {
		return models.Reward{}, models.Reward{}, nil
	}

	cfg := e.settings.Reaction

	result := reactions.Compute(reactions.Context{
		Emoji:        ev.Emoji,
		CustomEmoji:  ev.CustomEmoji,
		FirstOfEmoji: ev.FirstOfEmoji,
		MessageAge:   ev.MessageAge,
	}, cfg)

	reactor = e.rewardReactor(ctx, ev, result, cfg.CooldownSeconds)
	owner = e.rewardOwner(ctx, ev, result)
	return reactor, owner, nil
}

// rewardReactor grants the reacting user's share, subject to opt-out and the
// per-reactor cooldown.
func (e *Engine) rewardReactor(ctx context.Context, ev models.ReactionEvent, result reactions.Result, cooldownSeconds int) models.Reward {
	lock := e.lockUser(ev.GuildID, ev.ReactorID)
	lock.Lock()
	defer lock.Unlock()

	if e.optout.IsOptedOut(ctx, ev.GuildID, ev.ReactorID) {
		return models.Reward{}
	}
	if !e.passesReactionCooldown(ev.GuildID, ev.ReactorID, ev.Timestamp, cooldownSeconds) {
		return models.Reward{}
	}
	e.ensureHydrated(ctx, ev.GuildID, ev.ReactorID)

	granted, warnings := e.caps.Apply(ev.ReactorID, "reaction", result.ReactorReward(), e.settings.Reaction.Caps, ev.Timestamp)
	e.emitWarnings(ctx, ev.GuildID, warnings)

	delta := models.StatDelta{
		UserID:         ev.ReactorID,
		GuildID:        ev.GuildID,
		XP:             granted.XP,
		Embers:         granted.Embers,
		ReactionsGiven: 1,
		At:             ev.Timestamp,
	}
	if err := e.store.ApplyStatDelta(ctx, delta); err != nil {
		e.log.Error().Err(err).Str("user_id", ev.ReactorID).Msg("apply reactor delta")
		return granted
	}

	e.progressAchievements(ctx, ev.GuildID, ev.ReactorID, achievements.CondReactionsGiven,
		achievements.Update{UserID: ev.ReactorID, Delta: 1, Timestamp: ev.Timestamp})
	return granted
}

// rewardOwner grants the message author's share. The owner has no cooldown;
// popularity is capped by the reaction-domain caps instead.
func (e *Engine) rewardOwner(ctx context.Context, ev models.ReactionEvent, result reactions.Result) models.Reward {
	lock := e.lockUser(ev.GuildID, ev.OwnerID)
	lock.Lock()
	defer lock.Unlock()

	if e.optout.IsOptedOut(ctx, ev.GuildID, ev.OwnerID) {
		return models.Reward{}
	}
	e.ensureHydrated(ctx, ev.GuildID, ev.OwnerID)

	granted, warnings := e.caps.Apply(ev.OwnerID, "reaction", result.OwnerReward(), e.settings.Reaction.Caps, ev.Timestamp)
	e.emitWarnings(ctx, ev.GuildID, warnings)

	delta := models.StatDelta{
		UserID:       ev.OwnerID,
		GuildID:      ev.GuildID,
		XP:           granted.XP,
		Embers:       granted.Embers,
		GotReactions: 1,
		At:           ev.Timestamp,
	}
	if err := e.store.ApplyStatDelta(ctx, delta); err != nil {
		e.log.Error().Err(err).Str("user_id", ev.OwnerID).Msg("apply owner delta")
		return granted
	}

	e.progressAchievements(ctx, ev.GuildID, ev.OwnerID, achievements.CondGotReactions,
		achievements.Update{UserID: ev.OwnerID, Delta: 1, Timestamp: ev.Timestamp})
	return granted
}

func (e *Engine) passesReactionCooldown(guildID, userID string, at time.Time, cooldownSeconds int) bool {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	key := userKey(guildID, userID)
	if last, ok := e.lastReaction[key]; ok {
		if at.Sub(last) < time.Duration(cooldownSeconds)*time.Second {
			return false
		}
	}
	e.lastReaction[key] = at
	return true
}

package reactions

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"emberbot/internal/config"
	"emberbot/internal/models"
)

func TestComputeBaseSplit(t *testing.T) {
	cfg := config.DefaultSettings().Reaction

	r := Compute(Context{MessageAge: 5 * time.Minute}, cfg)
	assert.InDelta(t, 1.0, r.Multiplier, 1e-9)
	assert.Equal(t, models.Reward{XP: 2, Embers: 1}, r.ReactorReward())
	assert.Equal(t, models.Reward{XP: 3, Embers: 2}, r.OwnerReward())
}

func TestComputeFastReactionBonus(t *testing.T) {
	cfg := config.DefaultSettings().Reaction

	r := Compute(Context{MessageAge: 30 * time.Second}, cfg)
	assert.InDelta(t, 1.1, r.Multiplier, 1e-9)

	// At exactly the cutoff the reaction is no longer fast.
	r = Compute(Context{MessageAge: 60 * time.Second}, cfg)
	assert.InDelta(t, 1.0, r.Multiplier, 1e-9)
}

func TestComputeBonusesStack(t *testing.T) {
	cfg := config.DefaultSettings().Reaction
	cfg.EmojiBonuses = map[string]float64{"🔥": 1.2}

	r := Compute(Context{
		Emoji:        "🔥",
		CustomEmoji:  true,
		FirstOfEmoji: true,
		MessageAge:   10 * time.Second,
	}, cfg)

	assert.InDelta(t, 1.1*1.05*1.1*1.2, r.Multiplier, 1e-9)
}

func TestComputeUnknownEmojiNoMapBonus(t *testing.T) {
	cfg := config.DefaultSettings().Reaction
	cfg.EmojiBonuses = map[string]float64{"🔥": 1.2}

	r := Compute(Context{Emoji: "👍", MessageAge: 5 * time.Minute}, cfg)
	assert.InDelta(t, 1.0, r.Multiplier, 1e-9)
}

func TestRewardsRoundWithFloorOfOne(t *testing.T) {
	cfg := config.Reaction{ReactorXP: 1, ReactorEmbers: 1, OwnerXP: 1, OwnerEmbers: 1}

	// Multiplier 1.0 on a base of 1 stays 1; the floor matters for tiny
	// configured bases.
	r := Compute(Context{MessageAge: time.Hour}, cfg)
	assert.Equal(t, models.Reward{XP: 1, Embers: 1}, r.ReactorReward())

	cfg = config.Reaction{}
	r = Compute(Context{MessageAge: time.Hour}, cfg)
	assert.Equal(t, models.Reward{XP: 1, Embers: 1}, r.ReactorReward())
	assert.Equal(t, models.Reward{XP: 1, Embers: 1}, r.OwnerReward())
}

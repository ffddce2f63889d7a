// Package reactions prices reaction events for both sides: the user who
// reacted and the author of the message that received the reaction.
package reactions

import (
	"time"

	"emberbot/internal/config"
	"emberbot/internal/models"
)

// Context carries the reaction properties that affect pricing.
type Context struct {
	Emoji        string
	CustomEmoji  bool
	FirstOfEmoji bool
	MessageAge   time.Duration
}

// Result is the unrounded reward split for one reaction.
type Result struct {
	ReactorXP     float64
	ReactorEmbers float64
	OwnerXP       float64
	OwnerEmbers   float64

	Multiplier float64
}

// Compute prices a reaction. The multiplier stacks a fast-reaction bonus,
// a custom-emoji bonus, a first-use bonus, and any per-emoji bonus from the
// configured map, and applies equally to both sides of the split.
func Compute(rc Context, cfg config.Reaction) Result {
	mult := 1.0
	if rc.MessageAge >= 0 && rc.MessageAge < time.Duration(cfg.FastReactionSeconds)*time.Second {
		mult *= cfg.FastReactionBonus
	}
	if rc.CustomEmoji {
		mult *= cfg.CustomEmojiBonus
	}
	if rc.FirstOfEmoji {
		mult *= cfg.UniqueEmojiBonus
	}
	if bonus, ok := cfg.EmojiBonuses[rc.Emoji]; ok {
		mult *= bonus
	}

	return Result{
		ReactorXP:     float64(cfg.ReactorXP) * mult,
		ReactorEmbers: float64(cfg.ReactorEmbers) * mult,
		OwnerXP:       float64(cfg.OwnerXP) * mult,
		OwnerEmbers:   float64(cfg.OwnerEmbers) * mult,
		Multiplier:    mult,
	}
}

// ReactorReward rounds the reactor's share, guaranteeing at least one point
// of each currency for an admitted reaction.
func (r Result) ReactorReward() models.Reward {
	return models.Reward{
		XP:     roundMinOne(r.ReactorXP),
		Embers: roundMinOne(r.ReactorEmbers),
	}
}

// OwnerReward rounds the owner's share.
func (r Result) OwnerReward() models.Reward {
	return models.Reward{
		XP:     roundMinOne(r.OwnerXP),
		Embers: roundMinOne(r.OwnerEmbers),
	}
}

func roundMinOne(v float64) int64 {
	rounded := int64(v + 0.5)
	if rounded < 1 {
		return 1
	}
	return rounded
}

package voice

import (
	"fmt"

	"emberbot/internal/config"
)

// TickState is the observable state of a user's voice presence during one
// reward interval.
type TickState struct {
	ChannelID    string
	Streaming    bool
	Video        bool
	Participants int
}

// TickReward is the unrounded reward for one interval. Rounding and cap
// enforcement happen downstream.
type TickReward struct {
	XP     float64
	Embers float64

	// Multiplier is the combined bonus factor applied to the base rate.
	Multiplier float64
}

// ComputeTick prices one interval of voice presence. The multiplier is built
// up in a fixed order: channel bonus, then screen share, then camera, then
// the social bonus. The social bonus requires the feature enabled, the
// session past its minimum cumulative time, and more participants than the
// threshold; it scales per extra participant up to its own cap.
//
// Negative elapsed time is rejected. Deterministic for fixed inputs.
func ComputeTick(elapsed float64, state TickState, cfg config.Voice, sessionActiveSeconds float64) (TickReward, error) {
	if elapsed < 0 {
		return TickReward{}, fmt.Errorf("elapsed seconds %f: negative duration", elapsed)
	}

	mult := 1.0
	if bonus, ok := cfg.ChannelBonuses[state.ChannelID]; ok {
		mult *= bonus
	}
	if state.Streaming {
		mult *= cfg.ScreenShareBonus
	}
	if state.Video {
		mult *= cfg.CameraBonus
	}
	mult *= socialBonus(state.Participants, sessionActiveSeconds, cfg.Participant)

	return TickReward{
		XP:         elapsed * cfg.XPPerSecond * mult,
		Embers:     elapsed * cfg.EmbersPerSecond * mult,
		Multiplier: mult,
	}, nil
}

func socialBonus(participants int, sessionActiveSeconds float64, p config.Participant) float64 {
	if !p.Enabled {
		return 1.0
	}
	if sessionActiveSeconds < p.MinTimeSeconds {
		return 1.0
	}
	if participants <= p.Threshold {
		return 1.0
	}
	bonus := 1.0 + float64(participants-p.Threshold)*p.PerPerson
	if bonus > p.Max {
		return p.Max
	}
	return bonus
}

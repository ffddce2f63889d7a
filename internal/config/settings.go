package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Limits caps a single period for both currencies. Zero means unlimited.
type Limits struct {
	XP     int64 `yaml:"xp"`
	Embers int64 `yaml:"embers"`
}

// Caps configures optional per-period reward limits.
type Caps struct {
	Daily   Limits `yaml:"daily"`
	Weekly  Limits `yaml:"weekly"`
	Monthly Limits `yaml:"monthly"`
}

// Quality holds all thresholds and multipliers for message quality scoring.
type Quality struct {
	MinFactor float64 `yaml:"min_factor"`
	MaxFactor float64 `yaml:"max_factor"`

	AttachmentBonus        float64 `yaml:"attachment_bonus"`
	AttachmentShortPenalty float64 `yaml:"attachment_short_penalty"`
	AttachmentTinyPenalty  float64 `yaml:"attachment_tiny_penalty"`
	GoodWordThreshold      int     `yaml:"good_word_threshold"`
	ShortWordThreshold     int     `yaml:"short_word_threshold"`

	EmojiBonus         float64 `yaml:"emoji_bonus"`
	EmojiMinWords      int     `yaml:"emoji_min_words"`
	EmojiOnlyPenalty   float64 `yaml:"emoji_only_penalty"`
	EmojiSpamThreshold int     `yaml:"emoji_spam_threshold"`
	EmojiSpamBase      float64 `yaml:"emoji_spam_base"`
	EmojiSpamStep      float64 `yaml:"emoji_spam_step"`
	EmojiSpamFloor     float64 `yaml:"emoji_spam_floor"`

	LinkBonus         float64 `yaml:"link_bonus"`
	LinkContextWords  int     `yaml:"link_context_words"`
	LinkOnlyPenalty   float64 `yaml:"link_only_penalty"`
	LinkSpamThreshold int     `yaml:"link_spam_threshold"`
	LinkSpamPenalty   float64 `yaml:"link_spam_penalty"`

	ThreadBonus        float64 `yaml:"thread_bonus"`
	ThreadStarterBonus float64 `yaml:"thread_starter_bonus"`
}

// Master holds shared settings that every domain inherits unless it
// overrides the same key.
type Master struct {
	ChannelBonuses   map[string]float64 `yaml:"channel_bonuses"`
	DisabledChannels []string           `yaml:"disabled_channels"`
}

// Message configures the message reward pipeline.
type Message struct {
	BaseXP     int64 `yaml:"base_xp"`
	BaseEmbers int64 `yaml:"base_embers"`

	MinLength       int `yaml:"min_length"`
	MaxLength       int `yaml:"max_length"`
	CooldownSeconds int `yaml:"cooldown_seconds"`

	LengthFactorStart int     `yaml:"length_factor_start"`
	LengthFactorMax   float64 `yaml:"length_factor_max"`

	ChannelBonuses   map[string]float64 `yaml:"channel_bonuses"`
	PremiumChannels  map[string]float64 `yaml:"premium_channels"`
	DisabledChannels []string           `yaml:"disabled_channels"`

	RateLimitPerMinute int     `yaml:"rate_limit_per_minute"`
	UniqueWordRatio    float64 `yaml:"unique_word_ratio"`

	StreakBonusPerDay float64 `yaml:"streak_bonus_per_day"`
	StreakBonusMax    float64 `yaml:"streak_bonus_max"`

	HighQualityFactor    float64 `yaml:"high_quality_factor"`
	HighQualityThreshold float64 `yaml:"high_quality_threshold"`

	Quality Quality `yaml:"quality"`
	Caps    Caps    `yaml:"caps"`
}

// Participant configures the opt-in social bonus for populated channels.
type Participant struct {
	Enabled        bool    `yaml:"enabled"`
	MinTimeSeconds float64 `yaml:"min_time_seconds"`
	Threshold      int     `yaml:"threshold"`
	PerPerson      float64 `yaml:"per_person"`
	Max            float64 `yaml:"max"`
}

// Voice configures the voice reward pipeline.
type Voice struct {
	XPPerSecond     float64 `yaml:"xp_per_second"`
	EmbersPerSecond float64 `yaml:"embers_per_second"`

	ChannelBonuses map[string]float64 `yaml:"channel_bonuses"`

	ScreenShareBonus float64 `yaml:"screen_share_bonus"`
	CameraBonus      float64 `yaml:"camera_bonus"`

	Participant Participant `yaml:"participant"`

	MinSessionSeconds     float64 `yaml:"min_session_seconds"`
	SessionTimeoutSeconds float64 `yaml:"session_timeout_seconds"`
	SessionsPerHour       int     `yaml:"sessions_per_hour"`

	StreakBonusPerDay float64 `yaml:"streak_bonus_per_day"`
	StreakBonusMaxDay int     `yaml:"streak_bonus_max_days"`

	Caps Caps `yaml:"caps"`
}

// Reaction configures rewards for giving and receiving reactions.
type Reaction struct {
	ReactorXP     int64 `yaml:"reactor_xp"`
	ReactorEmbers int64 `yaml:"reactor_embers"`
	OwnerXP       int64 `yaml:"owner_xp"`
	OwnerEmbers   int64 `yaml:"owner_embers"`

	CooldownSeconds int `yaml:"cooldown_seconds"`

	FastReactionBonus   float64 `yaml:"fast_reaction_bonus"`
	FastReactionSeconds int     `yaml:"fast_reaction_seconds"`
	CustomEmojiBonus    float64 `yaml:"custom_emoji_bonus"`
	UniqueEmojiBonus    float64 `yaml:"unique_emoji_bonus"`

	EmojiBonuses map[string]float64 `yaml:"emoji_bonuses"`

	SelfReactionsCount bool `yaml:"self_reactions_count"`

	Caps Caps `yaml:"caps"`
}

// Settings is the full per-guild reward configuration.
type Settings struct {
	Master   Master   `yaml:"master"`
	Message  Message  `yaml:"message"`
	Voice    Voice    `yaml:"voice"`
	Reaction Reaction `yaml:"reaction"`
}

// DefaultSettings returns a Settings with all documented defaults.
func DefaultSettings() Settings {
	return Settings{
		Message: Message{
			BaseXP:               10,
			BaseEmbers:           6,
			MinLength:            3,
			MaxLength:            1200,
			CooldownSeconds:      8,
			LengthFactorStart:    100,
			LengthFactorMax:      1.5,
			RateLimitPerMinute:   20,
			UniqueWordRatio:      0.3,
			StreakBonusPerDay:    0.1,
			StreakBonusMax:       2.0,
			HighQualityFactor:    1.2,
			HighQualityThreshold: 1.5,
			Quality:              DefaultQuality(),
		},
		Voice: Voice{
			XPPerSecond:           0.1,
			EmbersPerSecond:       0.067,
			ScreenShareBonus:      1.15,
			CameraBonus:           1.10,
			MinSessionSeconds:     10,
			SessionTimeoutSeconds: 600,
			SessionsPerHour:       10,
			StreakBonusPerDay:     0.01,
			StreakBonusMaxDay:     30,
			Participant: Participant{
				Enabled:        false,
				MinTimeSeconds: 60,
				Threshold:      3,
				PerPerson:      0.05,
				Max:            1.5,
			},
		},
		Reaction: Reaction{
			ReactorXP:           2,
			ReactorEmbers:       1,
			OwnerXP:             3,
			OwnerEmbers:         2,
			CooldownSeconds:     60,
			FastReactionBonus:   1.1,
			FastReactionSeconds: 60,
			CustomEmojiBonus:    1.05,
			UniqueEmojiBonus:    1.1,
		},
	}
}

// DefaultQuality returns the documented quality-scoring defaults.
func DefaultQuality() Quality {
	return Quality{
		MinFactor:              0.5,
		MaxFactor:              2.0,
		AttachmentBonus:        1.08,
		AttachmentShortPenalty: 0.85,
		AttachmentTinyPenalty:  0.7,
		GoodWordThreshold:      20,
		ShortWordThreshold:     5,
		EmojiBonus:             1.05,
		EmojiMinWords:          3,
		EmojiOnlyPenalty:       0.75,
		EmojiSpamThreshold:     10,
		EmojiSpamBase:          0.75,
		EmojiSpamStep:          0.05,
		EmojiSpamFloor:         0.5,
		LinkBonus:              1.03,
		LinkContextWords:       10,
		LinkOnlyPenalty:        0.65,
		LinkSpamThreshold:      5,
		LinkSpamPenalty:        0.7,
		ThreadBonus:            1.15,
		ThreadStarterBonus:     1.25,
	}
}

// LoadSettings reads reward settings from the given YAML path. An empty or
// missing path returns the defaults unchanged; keys present in the file
// override the corresponding default.
func LoadSettings(path string) (Settings, error) {
	settings := DefaultSettings()

	if path == "" {
		return settings, nil
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return settings, nil
		}
		return settings, fmt.Errorf("stat settings file: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return settings, fmt.Errorf("read settings file: %w", err)
	}

	if err := yaml.Unmarshal(data, &settings); err != nil {
		return settings, fmt.Errorf("parse settings file: %w", err)
	}

	return settings, nil
}

// mergeBonuses combines master and domain channel-bonus maps; the domain
// value wins when both define a channel. The result is a fresh map.
func mergeBonuses(master, domain map[string]float64) map[string]float64 {
	merged := make(map[string]float64, len(master)+len(domain))
	for id, bonus := range master {
		merged[id] = bonus
	}
	for id, bonus := range domain {
		merged[id] = bonus
	}
	return merged
}

// mergeDisabled unions master and domain disabled-channel lists.
func mergeDisabled(master, domain []string) map[string]bool {
	disabled := make(map[string]bool, len(master)+len(domain))
	for _, id := range master {
		disabled[id] = true
	}
	for _, id := range domain {
		disabled[id] = true
	}
	return disabled
}

// EffectiveMessage returns the message settings with master-level channel
// configuration merged in. Computed fresh on each call.
func (s Settings) EffectiveMessage() Message {
	msg := s.Message
	msg.ChannelBonuses = mergeBonuses(s.Master.ChannelBonuses, s.Message.ChannelBonuses)
	return msg
}

// EffectiveVoice returns the voice settings with master-level channel
// configuration merged in.
func (s Settings) EffectiveVoice() Voice {
	voice := s.Voice
	voice.ChannelBonuses = mergeBonuses(s.Master.ChannelBonuses, s.Voice.ChannelBonuses)
	return voice
}

// DisabledMessageChannels returns the set of channels where message rewards
// are off, combining master and message-domain lists.
func (s Settings) DisabledMessageChannels() map[string]bool {
	return mergeDisabled(s.Master.DisabledChannels, s.Message.DisabledChannels)
}

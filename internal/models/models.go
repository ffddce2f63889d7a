package models

import "time"

// MessageEvent is a single message delivered by the platform.
type MessageEvent struct {
	GuildID         string
	ChannelID       string
	UserID          string
	MessageID       string
	Content         string
	AttachmentCount int
	IsThread        bool
	IsThreadOwner   bool
	Timestamp       time.Time
}

// VoiceTickEvent reports elapsed voice presence since the previous tick.
type VoiceTickEvent struct {
	GuildID        string
	ChannelID      string
	UserID         string
	ElapsedSeconds float64
	Streaming      bool
	Video          bool
	Participants   int
	Timestamp      time.Time
}

// ReactionEvent is a reaction added to a message.
type ReactionEvent struct {
	GuildID      string
	ChannelID    string
	MessageID    string
	ReactorID    string
	OwnerID      string
	Emoji        string
	CustomEmoji  bool
	FirstOfEmoji bool
	MessageAge   time.Duration
	Timestamp    time.Time
}

// Reward is a pair of point amounts in the two currencies.
type Reward struct {
	XP     int64
	Embers int64
}

// IsZero reports whether both currencies are zero.
func (r Reward) IsZero() bool {
	return r.XP == 0 && r.Embers == 0
}

// StatDelta is a write intent against the persistent store. All numeric
// fields are increments; streak fields are absolute.
type StatDelta struct {
	UserID             string
	GuildID            string
	XP                 int64
	Embers             int64
	Messages           int64
	AttachmentMessages int64
	ReactionsGiven     int64
	GotReactions       int64
	VoiceSeconds       float64
	StreamingSeconds   float64
	VideoSeconds       float64
	VoiceSessions      int64
	StreakCount        int
	StreakDay          string
	VoiceStreakCount   int
	VoiceStreakDay     string
	At                 time.Time
}

// UserStats is the persisted per-user aggregate row.
type UserStats struct {
	UserID             string
	GuildID            string
	XP                 int64
	Embers             int64
	Messages           int64
	AttachmentMessages int64
	ReactionsGiven     int64
	GotReactions       int64
	VoiceSeconds       float64
	VoiceSessions      int64
	StreakCount        int
	StreakDay          string
	VoiceStreakCount   int
	VoiceStreakDay     string
}

package discord

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"emberbot/internal/engine/caps"
	"emberbot/pkg/utils"
)

// Announcer delivers engine signals to users. It is created before the
// gateway session exists and bound to one later; unbound it only logs.
type Announcer struct {
	log zerolog.Logger

	mu      sync.RWMutex
	session *discordgo.Session
}

// NewAnnouncer returns an unbound Announcer.
func NewAnnouncer(log zerolog.Logger) *Announcer {
	return &Announcer{log: log.With().Str("component", "announcer").Logger()}
}

// Bind attaches the gateway session used for delivery.
func (a *Announcer) Bind(session *discordgo.Session) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.session = session
}

// CapWarning surfaces a near-cap condition. Advisory, log only.
func (a *Announcer) CapWarning(_ context.Context, guildID string, w caps.Warning) {
	a.log.Info().
		Str("guild_id", guildID).
		Str("user_id", w.UserID).
		Str("domain", w.Domain).
		Str("granularity", w.Granularity).
		Str("currency", w.Currency).
		Int64("used", w.Used).
		Int64("limit", w.Limit).
		Msg("user approaching reward cap")
}

// AchievementCompleted congratulates the user via DM, falling back to a log
// line when no session is bound or the DM cannot be opened.
func (a *Announcer) AchievementCompleted(_ context.Context, guildID, userID, achievementID string) {
	a.log.Info().
		Str("guild_id", guildID).
		Str("user_id", userID).
		Str("achievement_id", achievementID).
		Msg("achievement completed")

	a.mu.RLock()
	session := a.session
	a.mu.RUnlock()
	if session == nil {
		return
	}

	channel, err := session.UserChannelCreate(userID)
	if err != nil {
		a.log.Debug().Err(err).Str("user_id", userID).Msg("open DM channel")
		return
	}
	msg := fmt.Sprintf("🏅 %s, you completed the **%s** achievement!",
		utils.FormatUserMention(userID), achievementID)
	if _, err := session.ChannelMessageSend(channel.ID, msg); err != nil {
		a.log.Debug().Err(err).Str("user_id", userID).Msg("send achievement DM")
	}
}

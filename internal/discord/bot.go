package discord

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"emberbot/internal/database"
	"emberbot/internal/engine"
	"emberbot/internal/models"
	"emberbot/pkg/utils"
)

// tickInterval is how often open voice sessions are priced.
const tickInterval = 60 * time.Second

// voicePresence is the adapter's view of one user currently in voice,
// carrying the gateway flags the engine needs per tick.
type voicePresence struct {
	channelID string
	streaming bool
	video     bool
	lastTick  time.Time
}

// Bot represents the Discord bot
type Bot struct {
	session    *discordgo.Session
	repository *database.Repository
	engine     *engine.Engine
	log        zerolog.Logger

	mu       sync.Mutex
	presence map[string]*voicePresence // key: guildID:userID

	stop chan struct{}
	done chan struct{}
}

// New creates a new Discord bot
func New(token string, repository *database.Repository, eng *engine.Engine, announcer *Announcer, log zerolog.Logger) (*Bot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}
	announcer.Bind(session)

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsMessageContent

	bot := &Bot{
		session:    session,
		repository: repository,
		engine:     eng,
		log:        log.With().Str("component", "discord").Logger(),
		presence:   make(map[string]*voicePresence),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}

	session.AddHandler(bot.messageCreate)
	session.AddHandler(bot.voiceStateUpdate)
	session.AddHandler(bot.messageReactionAdd)

	return bot, nil
}

// Start starts the bot and the voice tick loop
func (b *Bot) Start() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	go b.tickLoop()

	b.log.Info().Msg("bot is running")
	return nil
}

// Stop stops the bot
func (b *Bot) Stop() error {
	close(b.stop)
	<-b.done
	return b.session.Close()
}

// tickLoop prices open voice sessions on a fixed interval and runs engine
// housekeeping (limiter pruning, stale session reaping).
func (b *Bot) tickLoop() {
	defer close(b.done)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stop:
			return
		case now := <-ticker.C:
			b.tickVoiceSessions(now.UTC())
			b.engine.Housekeep(context.Background(), now.UTC())
		}
	}
}

// tickVoiceSessions sends one VoiceTickEvent per tracked user.
func (b *Bot) tickVoiceSessions(now time.Time) {
	b.mu.Lock()
	ticks := make([]models.VoiceTickEvent, 0, len(b.presence))
	for key, p := range b.presence {
		guildID, userID, ok := strings.Cut(key, ":")
		if !ok {
			continue
		}
		ticks = append(ticks, models.VoiceTickEvent{
			GuildID:        guildID,
			ChannelID:      p.channelID,
			UserID:         userID,
			ElapsedSeconds: now.Sub(p.lastTick).Seconds(),
			Streaming:      p.streaming,
			Video:          p.video,
			Participants:   b.countParticipants(guildID, p.channelID),
			Timestamp:      now,
		})
		p.lastTick = now
	}
	b.mu.Unlock()

	for _, tick := range ticks {
		if _, err := b.engine.HandleVoiceTick(context.Background(), tick); err != nil {
			b.log.Error().Err(err).Str("user_id", tick.UserID).Msg("voice tick")
		}
	}
}

// countParticipants counts users currently in a voice channel from the
// session state cache. Caller holds no guarantee of freshness; this is a
// best-effort snapshot.
func (b *Bot) countParticipants(guildID, channelID string) int {
	guild, err := b.session.State.Guild(guildID)
	if err != nil {
		return 0
	}
	count := 0
	for _, vs := range guild.VoiceStates {
		if vs.ChannelID == channelID {
			count++
		}
	}
	return count
}

// voiceStateUpdate handles voice state updates
func (b *Bot) voiceStateUpdate(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
	guildID := vs.GuildID
	userID := vs.UserID
	key := guildID + ":" + userID
	now := time.Now().UTC()
	ctx := context.Background()

	b.mu.Lock()
	current, tracked := b.presence[key]

	switch {
	case vs.ChannelID != "" && !tracked:
		// Join
		b.presence[key] = &voicePresence{
			channelID: vs.ChannelID,
			streaming: vs.SelfStream,
			video:     vs.SelfVideo,
			lastTick:  now,
		}
		b.mu.Unlock()

		if err := b.engine.HandleVoiceJoin(ctx, guildID, userID, vs.ChannelID, now); err != nil {
			b.log.Error().Err(err).Str("user_id", userID).Msg("voice join")
		}

	case vs.ChannelID != "" && tracked:
		// Move or stream/camera toggle
		current.channelID = vs.ChannelID
		current.streaming = vs.SelfStream
		current.video = vs.SelfVideo
		b.mu.Unlock()

		if err := b.engine.HandleVoiceJoin(ctx, guildID, userID, vs.ChannelID, now); err != nil {
			b.log.Error().Err(err).Str("user_id", userID).Msg("voice move")
		}

	case vs.ChannelID == "" && tracked:
		// Leave: flush the remainder since the last tick, then close.
		elapsed := now.Sub(current.lastTick).Seconds()
		channelID := current.channelID
		streaming := current.streaming
		video := current.video
		delete(b.presence, key)
		b.mu.Unlock()

		if elapsed > 0 {
			_, err := b.engine.HandleVoiceTick(ctx, models.VoiceTickEvent{
				GuildID:        guildID,
				ChannelID:      channelID,
				UserID:         userID,
				ElapsedSeconds: elapsed,
				Streaming:      streaming,
				Video:          video,
				Participants:   b.countParticipants(guildID, channelID),
				Timestamp:      now,
			})
			if err != nil {
				b.log.Error().Err(err).Str("user_id", userID).Msg("final voice tick")
			}
		}
		if _, err := b.engine.HandleVoiceLeave(ctx, guildID, userID, now); err != nil {
			b.log.Debug().Err(err).Str("user_id", userID).Msg("voice leave")
		}

	default:
		b.mu.Unlock()
	}
}

// messageReactionAdd handles reaction add events
func (b *Bot) messageReactionAdd(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
	msg, err := s.State.Message(r.ChannelID, r.MessageID)
	if err != nil {
		msg, err = s.ChannelMessage(r.ChannelID, r.MessageID)
		if err != nil {
			b.log.Debug().Err(err).Str("message_id", r.MessageID).Msg("fetch reacted message")
			return
		}
	}
	if msg.Author == nil || msg.Author.Bot {
		return
	}

	firstOfEmoji := true
	for _, existing := range msg.Reactions {
		if existing.Emoji.Name == r.Emoji.Name && existing.Count > 1 {
			firstOfEmoji = false
			break
		}
	}

	age := time.Duration(0)
	if created, err := discordgo.SnowflakeTimestamp(r.MessageID); err == nil {
		age = time.Since(created)
	}

	_, _, err = b.engine.HandleReaction(context.Background(), models.ReactionEvent{
		GuildID:      r.GuildID,
		ChannelID:    r.ChannelID,
		MessageID:    r.MessageID,
		ReactorID:    r.UserID,
		OwnerID:      msg.Author.ID,
		Emoji:        r.Emoji.Name,
		CustomEmoji:  r.Emoji.ID != "",
		FirstOfEmoji: firstOfEmoji,
		MessageAge:   age,
		Timestamp:    time.Now().UTC(),
	})
	if err != nil {
		b.log.Error().Err(err).Str("message_id", r.MessageID).Msg("handle reaction")
	}
}

// messageCreate handles message creation events
func (b *Bot) messageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author.Bot {
		return
	}

	content := strings.TrimSpace(m.Content)

	switch {
	case content == "!rank":
		b.handleRankCommand(s, m)
		return
	case content == "!top":
		b.handleTopCommand(s, m)
		return
	case content == "!optout":
		b.handleOptOutCommand(s, m, true)
		return
	case content == "!optin":
		b.handleOptOutCommand(s, m, false)
		return
	}

	inThread, threadOwner := b.threadContext(s, m)

	granted, err := b.engine.HandleMessage(context.Background(), models.MessageEvent{
		GuildID:         m.GuildID,
		ChannelID:       m.ChannelID,
		UserID:          m.Author.ID,
		MessageID:       m.ID,
		Content:         m.Content,
		AttachmentCount: len(m.Attachments),
		IsThread:        inThread,
		IsThreadOwner:   threadOwner,
		Timestamp:       time.Now().UTC(),
	})
	if err != nil {
		b.log.Error().Err(err).Str("user_id", m.Author.ID).Msg("handle message")
		return
	}
	if !granted.IsZero() {
		b.log.Debug().
			Str("user_id", m.Author.ID).
			Int64("xp", granted.XP).
			Int64("embers", granted.Embers).
			Msg("message rewarded")
	}
}

// threadContext reports whether the message was posted in a thread and
// whether the author started that thread.
func (b *Bot) threadContext(s *discordgo.Session, m *discordgo.MessageCreate) (inThread, threadOwner bool) {
	ch, err := s.State.Channel(m.ChannelID)
	if err != nil {
		ch, err = s.Channel(m.ChannelID)
		if err != nil {
			return false, false
		}
	}
	if !ch.IsThread() {
		return false, false
	}
	return true, ch.OwnerID == m.Author.ID
}

// handleRankCommand handles the !rank command
func (b *Bot) handleRankCommand(s *discordgo.Session, m *discordgo.MessageCreate) {
	stats, err := b.repository.GetUserStats(context.Background(), m.GuildID, m.Author.ID)
	if err != nil {
		b.log.Error().Err(err).Str("user_id", m.Author.ID).Msg("get user stats")
		s.ChannelMessageSend(m.ChannelID, "Could not fetch your stats right now.")
		return
	}

	msg := fmt.Sprintf("🔥 %s\nXP: %d | Embers: %d\nMessages: %d | Voice: %s\nStreak: %d days",
		m.Author.Username, stats.XP, stats.Embers, stats.Messages,
		utils.FormatDuration(int64(stats.VoiceSeconds)), stats.StreakCount)
	s.ChannelMessageSend(m.ChannelID, msg)
}

// handleTopCommand handles the !top command
func (b *Bot) handleTopCommand(s *discordgo.Session, m *discordgo.MessageCreate) {
	leaders, err := b.repository.GetLeaderboard(context.Background(), m.GuildID, 10)
	if err != nil {
		b.log.Error().Err(err).Msg("get leaderboard")
		s.ChannelMessageSend(m.ChannelID, "Could not fetch the leaderboard right now.")
		return
	}

	if len(leaders) == 0 {
		s.ChannelMessageSend(m.ChannelID, "No activity recorded yet.")
		return
	}

	var lines []string
	for i, stats := range leaders {
		entry := utils.FormatLeaderboardEntry(i+1, utils.FormatUserMention(stats.UserID),
			fmt.Sprintf("%d XP", stats.XP))
		lines = append(lines, entry)
	}

	msg := "🏆 Leaderboard\n" + strings.Join(lines, "\n")
	s.ChannelMessageSend(m.ChannelID, msg)
}

// handleOptOutCommand handles the !optout and !optin commands
func (b *Bot) handleOptOutCommand(s *discordgo.Session, m *discordgo.MessageCreate, optOut bool) {
	if err := b.repository.SetOptOut(context.Background(), m.GuildID, m.Author.ID, optOut); err != nil {
		b.log.Error().Err(err).Str("user_id", m.Author.ID).Msg("set opt-out")
		s.ChannelMessageSend(m.ChannelID, "Could not update your preference right now.")
		return
	}
	if optOut {
		s.ChannelMessageSend(m.ChannelID, "You are now opted out of activity tracking.")
	} else {
		s.ChannelMessageSend(m.ChannelID, "Welcome back, activity tracking is on again.")
	}
}

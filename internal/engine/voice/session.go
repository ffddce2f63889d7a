// Package voice tracks live voice sessions and computes time-based rewards
// for them.
package voice

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrSessionExists is returned when opening a session for a user who
	// already has one in the guild.
	ErrSessionExists = errors.New("voice session already open")

	// ErrNoSession is returned when operating on a user with no open session.
	ErrNoSession = errors.New("no open voice session")
)

// Session is one user's continuous presence in voice, from join to leave.
// Channel moves migrate the session rather than restarting it.
type Session struct {
	ID        string
	UserID    string
	GuildID   string
	ChannelID string
	StartedAt time.Time

	ActiveSeconds    float64
	StreamingSeconds float64
	VideoSeconds     float64

	Participants int
	LastTick     time.Time
}

// Summary describes a closed session.
type Summary struct {
	Session
	ClosedAt time.Time

	// EngagementScore is active time over wall-clock time, in [0, 1] for
	// well-formed sessions. Diagnostic only.
	EngagementScore float64
}

// Arena holds all open sessions for the process. Safe for concurrent use.
type Arena struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewArena returns an empty Arena.
func NewArena() *Arena {
	return &Arena{sessions: make(map[string]*Session)}
}

func sessionKey(guildID, userID string) string {
	return guildID + ":" + userID
}

// Open starts a session for the user in the given channel. Fails with
// ErrSessionExists if one is already open.
func (a *Arena) Open(guildID, userID, channelID string, now time.Time) (Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := sessionKey(guildID, userID)
	if _, ok := a.sessions[key]; ok {
		return Session{}, fmt.Errorf("user %s in guild %s: %w", userID, guildID, ErrSessionExists)
	}

	s := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		GuildID:   guildID,
		ChannelID: channelID,
		StartedAt: now,
		LastTick:  now,
	}
	a.sessions[key] = s
	return *s, nil
}

// Migrate moves an open session to a new channel, preserving its accumulated
// time and identity.
func (a *Arena) Migrate(guildID, userID, channelID string) (Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, ok := a.sessions[sessionKey(guildID, userID)]
	if !ok {
		return Session{}, fmt.Errorf("user %s in guild %s: %w", userID, guildID, ErrNoSession)
	}
	s.ChannelID = channelID
	return *s, nil
}

// Get returns a snapshot of the user's open session.
func (a *Arena) Get(guildID, userID string) (Session, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, ok := a.sessions[sessionKey(guildID, userID)]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Tick accumulates elapsed active time onto the session, with streaming and
// video time counted only while those states are on. Negative elapsed time
// is rejected without touching the session. Streaming and video seconds can
// therefore never exceed active seconds.
func (a *Arena) Tick(guildID, userID string, elapsed float64, streaming, video bool, participants int, now time.Time) (Session, error) {
	if elapsed < 0 {
		return Session{}, fmt.Errorf("elapsed seconds %f: negative duration", elapsed)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	s, ok := a.sessions[sessionKey(guildID, userID)]
	if !ok {
		return Session{}, fmt.Errorf("user %s in guild %s: %w", userID, guildID, ErrNoSession)
	}

	s.ActiveSeconds += elapsed
	if streaming {
		s.StreamingSeconds += elapsed
	}
	if video {
		s.VideoSeconds += elapsed
	}
	s.Participants = participants
	s.LastTick = now

	return *s, nil
}

// Close ends the user's session and returns its summary.
func (a *Arena) Close(guildID, userID string, now time.Time) (Summary, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := sessionKey(guildID, userID)
	s, ok := a.sessions[key]
	if !ok {
		return Summary{}, fmt.Errorf("user %s in guild %s: %w", userID, guildID, ErrNoSession)
	}
	delete(a.sessions, key)

	return summarize(s, now), nil
}

// CloseStale closes every session whose last tick is older than maxIdle and
// returns their summaries. Used to reap sessions orphaned by missed gateway
// events.
func (a *Arena) CloseStale(maxIdle time.Duration, now time.Time) []Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	var closed []Summary
	for key, s := range a.sessions {
		if now.Sub(s.LastTick) > maxIdle {
			closed = append(closed, summarize(s, now))
			delete(a.sessions, key)
		}
	}
	return closed
}

// Len reports the number of open sessions.
func (a *Arena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sessions)
}

func summarize(s *Session, now time.Time) Summary {
	sum := Summary{Session: *s, ClosedAt: now}
	if wall := now.Sub(s.StartedAt).Seconds(); wall > 0 {
		sum.EngagementScore = s.ActiveSeconds / wall
		if sum.EngagementScore > 1 {
			sum.EngagementScore = 1
		}
	}
	return sum
}

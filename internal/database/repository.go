package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"emberbot/internal/engine/achievements"
	"emberbot/internal/models"
)

// Repository handles database operations
type Repository struct {
	db  *DB
	log zerolog.Logger
}

// NewRepository creates a new repository
func NewRepository(db *DB, log zerolog.Logger) *Repository {
	return &Repository{db: db, log: log.With().Str("component", "database").Logger()}
}

// ApplyStatDelta accumulates a stat delta onto the user's row. Numeric
// fields add; streak fields are absolute and replace the stored values.
func (r *Repository) ApplyStatDelta(ctx context.Context, d models.StatDelta) error {
	_, err := r.db.conn.ExecContext(ctx, `
		INSERT INTO user_stats (
			user_id, guild_id, xp, embers, messages, attachment_messages,
			reactions_given, got_reactions, voice_seconds, streaming_seconds,
			video_seconds, voice_sessions, streak_count, streak_day,
			voice_streak_count, voice_streak_day, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (user_id, guild_id) DO UPDATE SET
			xp = user_stats.xp + EXCLUDED.xp,
			embers = user_stats.embers + EXCLUDED.embers,
			messages = user_stats.messages + EXCLUDED.messages,
			attachment_messages = user_stats.attachment_messages + EXCLUDED.attachment_messages,
			reactions_given = user_stats.reactions_given + EXCLUDED.reactions_given,
			got_reactions = user_stats.got_reactions + EXCLUDED.got_reactions,
			voice_seconds = user_stats.voice_seconds + EXCLUDED.voice_seconds,
			streaming_seconds = user_stats.streaming_seconds + EXCLUDED.streaming_seconds,
			video_seconds = user_stats.video_seconds + EXCLUDED.video_seconds,
			voice_sessions = user_stats.voice_sessions + EXCLUDED.voice_sessions,
			streak_count = CASE WHEN EXCLUDED.streak_day <> '' THEN EXCLUDED.streak_count ELSE user_stats.streak_count END,
			streak_day = CASE WHEN EXCLUDED.streak_day <> '' THEN EXCLUDED.streak_day ELSE user_stats.streak_day END,
			voice_streak_count = CASE WHEN EXCLUDED.voice_streak_day <> '' THEN EXCLUDED.voice_streak_count ELSE user_stats.voice_streak_count END,
			voice_streak_day = CASE WHEN EXCLUDED.voice_streak_day <> '' THEN EXCLUDED.voice_streak_day ELSE user_stats.voice_streak_day END,
			updated_at = EXCLUDED.updated_at`,
		d.UserID, d.GuildID, d.XP, d.Embers, d.Messages, d.AttachmentMessages,
		d.ReactionsGiven, d.GotReactions, d.VoiceSeconds, d.StreamingSeconds,
		d.VideoSeconds, d.VoiceSessions, d.StreakCount, d.StreakDay,
		d.VoiceStreakCount, d.VoiceStreakDay, d.At)
	if err != nil {
		return fmt.Errorf("failed to apply stat delta: %w", err)
	}
	return nil
}

// GetUserStats fetches one user's aggregate row. A missing row returns zero
// stats, not an error.
func (r *Repository) GetUserStats(ctx context.Context, guildID, userID string) (models.UserStats, error) {
	stats := models.UserStats{UserID: userID, GuildID: guildID}
	err := r.db.conn.QueryRowContext(ctx, `
		SELECT xp, embers, messages, attachment_messages, reactions_given,
		       got_reactions, voice_seconds, voice_sessions, streak_count, streak_day,
		       voice_streak_count, voice_streak_day
		FROM user_stats WHERE user_id = $1 AND guild_id = $2`,
		userID, guildID).Scan(
		&stats.XP, &stats.Embers, &stats.Messages, &stats.AttachmentMessages,
		&stats.ReactionsGiven, &stats.GotReactions, &stats.VoiceSeconds,
		&stats.VoiceSessions, &stats.StreakCount, &stats.StreakDay,
		&stats.VoiceStreakCount, &stats.VoiceStreakDay)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return stats, fmt.Errorf("failed to get user stats: %w", err)
	}
	return stats, nil
}

// GetLeaderboard returns the guild's top users by XP.
func (r *Repository) GetLeaderboard(ctx context.Context, guildID string, limit int) ([]models.UserStats, error) {
	rows, err := r.db.conn.QueryContext(ctx, `
		SELECT user_id, xp, embers, messages, voice_seconds, streak_count
		FROM user_stats WHERE guild_id = $1 ORDER BY xp DESC LIMIT $2`,
		guildID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get leaderboard: %w", err)
	}
	defer rows.Close()

	var leaders []models.UserStats
	for rows.Next() {
		stats := models.UserStats{GuildID: guildID}
		if err := rows.Scan(&stats.UserID, &stats.XP, &stats.Embers,
			&stats.Messages, &stats.VoiceSeconds, &stats.StreakCount); err != nil {
			r.log.Error().Err(err).Msg("scan leaderboard row")
			continue
		}
		leaders = append(leaders, stats)
	}
	return leaders, rows.Err()
}

// SaveProgress upserts one achievement progress row.
func (r *Repository) SaveProgress(ctx context.Context, guildID, userID, achievementID string, p achievements.Progress) error {
	var buckets []byte
	if len(p.DayBuckets) > 0 {
		var err error
		buckets, err = json.Marshal(p.DayBuckets)
		if err != nil {
			return fmt.Errorf("failed to encode day buckets: %w", err)
		}
	}

	_, err := r.db.conn.ExecContext(ctx, `
		INSERT INTO achievement_progress (user_id, guild_id, achievement_id, progress, completed, day_buckets, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (user_id, guild_id, achievement_id) DO UPDATE SET
			progress = EXCLUDED.progress,
			completed = achievement_progress.completed OR EXCLUDED.completed,
			day_buckets = EXCLUDED.day_buckets,
			updated_at = now()`,
		userID, guildID, achievementID, p.Value, p.Completed, buckets)
	if err != nil {
		return fmt.Errorf("failed to save achievement progress: %w", err)
	}
	return nil
}

// LoadProgress fetches all progress rows for one user in a guild.
func (r *Repository) LoadProgress(ctx context.Context, guildID, userID string) (map[string]achievements.Progress, error) {
	rows, err := r.db.conn.QueryContext(ctx, `
		SELECT achievement_id, progress, completed, day_buckets
		FROM achievement_progress WHERE user_id = $1 AND guild_id = $2`,
		userID, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to load achievement progress: %w", err)
	}
	defer rows.Close()

	progress := make(map[string]achievements.Progress)
	for rows.Next() {
		var id string
		var p achievements.Progress
		var buckets []byte
		if err := rows.Scan(&id, &p.Value, &p.Completed, &buckets); err != nil {
			r.log.Error().Err(err).Msg("scan progress row")
			continue
		}
		if len(buckets) > 0 {
			if err := json.Unmarshal(buckets, &p.DayBuckets); err != nil {
				r.log.Error().Err(err).Str("achievement_id", id).Msg("decode day buckets")
			}
		}
		progress[id] = p
	}
	return progress, rows.Err()
}

// IsOptedOut reports whether the user declined tracking. Errors fail open:
// a store problem must not silently suppress a user's rewards.
func (r *Repository) IsOptedOut(ctx context.Context, guildID, userID string) bool {
	var optedOut bool
	err := r.db.conn.QueryRowContext(ctx,
		"SELECT opted_out FROM opt_outs WHERE user_id = $1 AND guild_id = $2",
		userID, guildID).Scan(&optedOut)
	if errors.Is(err, sql.ErrNoRows) {
		return false
	}
	if err != nil {
		r.log.Error().Err(err).Str("user_id", userID).Msg("opt-out lookup")
		return false
	}
	return optedOut
}

// SetOptOut records the user's tracking preference.
func (r *Repository) SetOptOut(ctx context.Context, guildID, userID string, optedOut bool) error {
	_, err := r.db.conn.ExecContext(ctx, `
		INSERT INTO opt_outs (user_id, guild_id, opted_out)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, guild_id) DO UPDATE SET opted_out = EXCLUDED.opted_out`,
		userID, guildID, optedOut)
	if err != nil {
		return fmt.Errorf("failed to set opt-out: %w", err)
	}
	return nil
}

// RecordActivity bumps the user's hourly and weekday histograms for an
// activity occurring at the given time.
func (r *Repository) RecordActivity(ctx context.Context, guildID, userID string, at time.Time) error {
	pattern, err := r.getPattern(ctx, guildID, userID)
	if err != nil {
		return err
	}

	at = at.UTC()
	pattern.Hourly[at.Hour()]++
	pattern.Weekly[int(at.Weekday())]++

	return r.putPattern(ctx, pattern)
}

// GetActivityPattern fetches one user's histograms, normalizing any legacy
// object-shaped row on the way out.
func (r *Repository) GetActivityPattern(ctx context.Context, guildID, userID string) (ActivityPattern, error) {
	return r.getPattern(ctx, guildID, userID)
}

func (r *Repository) getPattern(ctx context.Context, guildID, userID string) (ActivityPattern, error) {
	pattern := ActivityPattern{UserID: userID, GuildID: guildID}

	var hourly, weekly []byte
	err := r.db.conn.QueryRowContext(ctx,
		"SELECT hourly, weekly FROM activity_patterns WHERE user_id = $1 AND guild_id = $2",
		userID, guildID).Scan(&hourly, &weekly)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return pattern, fmt.Errorf("failed to get activity pattern: %w", err)
	}

	if pattern.Hourly, err = decodePattern(hourly, HourlySlots); err != nil {
		return pattern, err
	}
	if pattern.Weekly, err = decodePattern(weekly, WeeklySlots); err != nil {
		return pattern, err
	}
	return pattern, nil
}

func (r *Repository) putPattern(ctx context.Context, pattern ActivityPattern) error {
	hourly, err := encodePattern(pattern.Hourly)
	if err != nil {
		return err
	}
	weekly, err := encodePattern(pattern.Weekly)
	if err != nil {
		return err
	}

	_, err = r.db.conn.ExecContext(ctx, `
		INSERT INTO activity_patterns (user_id, guild_id, hourly, weekly, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (user_id, guild_id) DO UPDATE SET
			hourly = EXCLUDED.hourly,
			weekly = EXCLUDED.weekly,
			updated_at = now()`,
		pattern.UserID, pattern.GuildID, hourly, weekly)
	if err != nil {
		return fmt.Errorf("failed to put activity pattern: %w", err)
	}
	return nil
}

// NormalizeAllPatterns rewrites every legacy object-shaped pattern row to
// the canonical array shape. With dryRun it only counts. Returns the number
// of rows that were (or would be) rewritten.
func (r *Repository) NormalizeAllPatterns(ctx context.Context, dryRun bool) (int, error) {
	rows, err := r.db.conn.QueryContext(ctx,
		"SELECT user_id, guild_id, hourly, weekly FROM activity_patterns")
	if err != nil {
		return 0, fmt.Errorf("failed to list activity patterns: %w", err)
	}
	defer rows.Close()

	type rawRow struct {
		userID, guildID string
		hourly, weekly  []byte
	}
	var legacy []rawRow
	for rows.Next() {
		var row rawRow
		if err := rows.Scan(&row.userID, &row.guildID, &row.hourly, &row.weekly); err != nil {
			r.log.Error().Err(err).Msg("scan pattern row")
			continue
		}
		if isLegacyPattern(row.hourly) || isLegacyPattern(row.weekly) {
			legacy = append(legacy, row)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to iterate activity patterns: %w", err)
	}

	if dryRun {
		return len(legacy), nil
	}

	normalized := 0
	for _, row := range legacy {
		pattern := ActivityPattern{UserID: row.userID, GuildID: row.guildID}
		if pattern.Hourly, err = decodePattern(row.hourly, HourlySlots); err != nil {
			r.log.Error().Err(err).Str("user_id", row.userID).Msg("decode hourly pattern")
			continue
		}
		if pattern.Weekly, err = decodePattern(row.weekly, WeeklySlots); err != nil {
			r.log.Error().Err(err).Str("user_id", row.userID).Msg("decode weekly pattern")
			continue
		}
		if err := r.putPattern(ctx, pattern); err != nil {
			r.log.Error().Err(err).Str("user_id", row.userID).Msg("rewrite pattern row")
			continue
		}
		normalized++
	}
	return normalized, nil
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emberbot/internal/engine/achievements"
)

func TestLoadAchievements(t *testing.T) {
	path := filepath.Join(t.TempDir(), "achievements.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
achievements:
  - id: chatterbox
    category: activity
    type: messages
    target: 1000
  - id: weekly-regular
    type: time_based
    target: 3600
    window_days: 7
`), 0o644))

	defs, err := LoadAchievements(path)
	require.NoError(t, err)
	require.Len(t, defs, 2)

	assert.Equal(t, achievements.Definition{
		ID:       "chatterbox",
		Category: "activity",
		Type:     achievements.CondMessages,
		Target:   1000,
	}, defs[0])
	assert.Equal(t, 7, defs[1].WindowDays)
}

func TestLoadAchievementsMissingFile(t *testing.T) {
	defs, err := LoadAchievements(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Empty(t, defs)
}

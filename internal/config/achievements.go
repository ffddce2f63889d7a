package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"emberbot/internal/engine/achievements"
)

// achievementFile is the YAML shape of one achievement entry.
type achievementFile struct {
	Achievements []struct {
		ID         string  `yaml:"id"`
		Category   string  `yaml:"category"`
		Type       string  `yaml:"type"`
		Target     float64 `yaml:"target"`
		WindowDays int     `yaml:"window_days"`
	} `yaml:"achievements"`
}

// LoadAchievements reads achievement definitions from a YAML file. An empty
// or missing path yields an empty set; routing simply has nothing to match.
func LoadAchievements(path string) ([]achievements.Definition, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read achievements file: %w", err)
	}

	var file achievementFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse achievements file: %w", err)
	}

	defs := make([]achievements.Definition, 0, len(file.Achievements))
	for _, a := range file.Achievements {
		defs = append(defs, achievements.Definition{
			ID:         a.ID,
			Category:   a.Category,
			Type:       achievements.ConditionType(a.Type),
			Target:     a.Target,
			WindowDays: a.WindowDays,
		})
	}
	return defs, nil
}

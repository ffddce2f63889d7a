package database

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Pattern slot counts: one per hour of day and one per weekday.
const (
	HourlySlots = 24
	WeeklySlots = 7
)

// ActivityPattern holds a user's activity histograms.
type ActivityPattern struct {
	UserID  string
	GuildID string
	Hourly  []int64
	Weekly  []int64
}

// decodePattern reads a pattern column. The canonical shape is a JSON array,
// but rows written by older deployments use an object keyed by slot index
// ({"0": 3, "14": 7}); both decode to a fixed-size slice.
func decodePattern(raw []byte, slots int) ([]int64, error) {
	out := make([]int64, slots)
	if len(raw) == 0 {
		return out, nil
	}

	var arr []int64
	if err := json.Unmarshal(raw, &arr); err == nil {
		copy(out, arr)
		return out, nil
	}

	var obj map[string]int64
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("failed to decode pattern: %w", err)
	}
	for key, count := range obj {
		idx, err := strconv.Atoi(key)
		if err != nil || idx < 0 || idx >= slots {
			continue
		}
		out[idx] = count
	}
	return out, nil
}

// encodePattern writes the canonical array shape.
func encodePattern(slots []int64) ([]byte, error) {
	data, err := json.Marshal(slots)
	if err != nil {
		return nil, fmt.Errorf("failed to encode pattern: %w", err)
	}
	return data, nil
}

// isLegacyPattern reports whether raw uses the object shape.
func isLegacyPattern(raw []byte) bool {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '{':
			return true
		default:
			return false
		}
	}
	return false
}

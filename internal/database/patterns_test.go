package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePatternArray(t *testing.T) {
	got, err := decodePattern([]byte(`[1,2,3]`), HourlySlots)
	require.NoError(t, err)
	require.Len(t, got, HourlySlots)
	assert.Equal(t, int64(1), got[0])
	assert.Equal(t, int64(3), got[2])
	assert.Equal(t, int64(0), got[3])
}

func TestDecodePatternLegacyObject(t *testing.T) {
	got, err := decodePattern([]byte(`{"0": 3, "14": 7, "23": 1}`), HourlySlots)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got[0])
	assert.Equal(t, int64(7), got[14])
	assert.Equal(t, int64(1), got[23])
	assert.Equal(t, int64(0), got[5])
}

func TestDecodePatternLegacyObjectIgnoresBadKeys(t *testing.T) {
	got, err := decodePattern([]byte(`{"24": 9, "-1": 9, "x": 9, "6": 2}`), WeeklySlots)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 0, 0, 0, 0, 0, 2}, got)
}

func TestDecodePatternEmpty(t *testing.T) {
	got, err := decodePattern(nil, WeeklySlots)
	require.NoError(t, err)
	assert.Equal(t, make([]int64, WeeklySlots), got)
}

func TestDecodePatternInvalid(t *testing.T) {
	_, err := decodePattern([]byte(`"nope"`), WeeklySlots)
	assert.Error(t, err)
}

func TestEncodePatternIsArray(t *testing.T) {
	data, err := encodePattern([]int64{0, 1, 2})
	require.NoError(t, err)
	assert.Equal(t, `[0,1,2]`, string(data))
}

func TestIsLegacyPattern(t *testing.T) {
	assert.True(t, isLegacyPattern([]byte(`{"0":1}`)))
	assert.True(t, isLegacyPattern([]byte(" \n {}")))
	assert.False(t, isLegacyPattern([]byte(`[1,2]`)))
	assert.False(t, isLegacyPattern(nil))
}

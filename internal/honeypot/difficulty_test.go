package honeypot_test

import (
	"testing"
	"time"

	"github.com/crowdqc/quality-gin/internal/honeypot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDifficulty_IdealTime(t *testing.T) {
	assert.Equal(t, 10*time.Second, honeypot.DifficultyEasy.IdealTime())
	assert.Equal(t, 30*time.Second, honeypot.DifficultyMedium.IdealTime())
	assert.Equal(t, 60*time.Second, honeypot.DifficultyHard.IdealTime())
}

func TestDifficulty_AllowsWorkerLevel(t *testing.T) {
	tests := []struct {
		difficulty honeypot.Difficulty
		level      int
		want       bool
	}{
		{honeypot.DifficultyEasy, 1, true},
		{honeypot.DifficultyEasy, 10, true},
		{honeypot.DifficultyEasy, 11, false},
		{honeypot.DifficultyMedium, 4, false},
		{honeypot.DifficultyMedium, 5, true},
		{honeypot.DifficultyMedium, 50, true},
		{honeypot.DifficultyMedium, 51, false},
		{honeypot.DifficultyHard, 19, false},
		{honeypot.DifficultyHard, 20, true},
		{honeypot.DifficultyHard, 100, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.difficulty.AllowsWorkerLevel(tt.level),
			"%s level %d", tt.difficulty, tt.level)
	}
}

func TestParseDifficulty(t *testing.T) {
	d, err := honeypot.ParseDifficulty("easy")
	require.NoError(t, err)
	assert.Equal(t, honeypot.DifficultyEasy, d)

	d, err = honeypot.ParseDifficulty("HARD")
	require.NoError(t, err)
	assert.Equal(t, honeypot.DifficultyHard, d)

	_, err = honeypot.ParseDifficulty("impossible")
	assert.Error(t, err)
}

func TestDifficulty_Rank(t *testing.T) {
	assert.Less(t, honeypot.DifficultyEasy.Rank(), honeypot.DifficultyMedium.Rank())
	assert.Less(t, honeypot.DifficultyMedium.Rank(), honeypot.DifficultyHard.Rank())
}

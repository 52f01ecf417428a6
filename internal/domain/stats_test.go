package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeStats(t *testing.T) {
	t.Run("no leaks", func(t *testing.T) {
		s := ComputeStats(1000, 0)
		assert.Equal(t, Stats{TotalMeters: 1000}, s)
	})

	t.Run("several leaks", func(t *testing.T) {
		s := ComputeStats(1000, 7)
		assert.Equal(t, 1000, s.TotalMeters)
		assert.Equal(t, 7, s.ActiveLeaks)
		assert.Equal(t, 16800.0, s.WaterSavedTodayM3)
		assert.Equal(t, 147168.0, s.ProjectedYearlySavingJOD)
	})
}

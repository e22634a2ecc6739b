package lru

import (
	"testing"
	"time"

	"pet-care-tracker/internal/domain/appointments"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ appointments.AvailabilityCache = (*AvailabilityCache)(nil)

func TestAvailabilityCache_PutGetInvalidate(t *testing.T) {
	c := NewAvailabilityCache(4, time.Minute)

	_, ok := c.Get("12/25/2025")
	assert.False(t, ok)

	taken := []string{"09:00 AM"}
	c.Put("12/25/2025", taken)
	taken[0] = "mutated"

	got, ok := c.Get("12/25/2025")
	require.True(t, ok)
	assert.Equal(t, []string{"09:00 AM"}, got)

	got[0] = "mutated again"
	again, _ := c.Get("12/25/2025")
	assert.Equal(t, []string{"09:00 AM"}, again)

	c.Invalidate("12/25/2025")
	_, ok = c.Get("12/25/2025")
	assert.False(t, ok)
}

func TestAvailabilityCache_EvictsOldest(t *testing.T) {
	c := NewAvailabilityCache(2, time.Minute)
	c.Put("a", nil)
	c.Put("b", nil)
	c.Put("c", nil)

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestAvailabilityCache_Expires(t *testing.T) {
	c := NewAvailabilityCache(2, 20*time.Millisecond)
	c.Put("12/25/2025", []string{"09:00 AM"})

	assert.Eventually(t, func() bool {
		_, ok := c.Get("12/25/2025")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextTriggerSameDay(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 4, 9, 15, 0, 0, time.UTC)
	next := nextTrigger(now, []int{10, 18})

	assert.Equal(t, time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC), next)
}

func TestNextTriggerSkipsPassedHour(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)
	next := nextTrigger(now, []int{10, 18})

	// 10:00 exactly is not strictly after now; 18:00 is next.
	assert.Equal(t, time.Date(2025, 3, 4, 18, 0, 0, 0, time.UTC), next)
}

func TestNextTriggerRollsOverToNextDay(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 4, 21, 30, 0, 0, time.UTC)
	next := nextTrigger(now, []int{10, 18})

	assert.Equal(t, time.Date(2025, 3, 5, 10, 0, 0, 0, time.UTC), next)
}

func TestNewHoursSchedulerSanitizesHours(t *testing.T) {
	t.Parallel()

	s := NewHoursScheduler([]int{18, 25, 10, 18, -1}, time.UTC)
	assert.Equal(t, []int{10, 18}, s.Hours())

	s = NewHoursScheduler(nil, time.UTC)
	require.NotEmpty(t, s.Hours())
	assert.Equal(t, []int{10, 18}, s.Hours())
}

package scheduler

import (
	"context"
	"sort"
	"time"

	"ScourtNewsBot/internal/ports"
)

// HoursScheduler fires a job at fixed wall-clock hours in a named
// timezone. The job runs synchronously inside the loop goroutine, so
// at most one run executes at a time and the next trigger cannot fire
// until the previous run has finished.
type HoursScheduler struct {
	hours []int
	loc   *time.Location
	stop  chan struct{}
}

var _ ports.Scheduler = (*HoursScheduler)(nil)

// NewHoursScheduler keeps the valid hours sorted and deduplicated.
func NewHoursScheduler(hours []int, loc *time.Location) *HoursScheduler {
	if loc == nil {
		loc = time.UTC
	}

	seen := map[int]struct{}{}
	kept := make([]int, 0, len(hours))
	for _, hour := range hours {
		if hour < 0 || hour > 23 {
			continue
		}
		if _, dup := seen[hour]; dup {
			continue
		}
		seen[hour] = struct{}{}
		kept = append(kept, hour)
	}
	sort.Ints(kept)
	if len(kept) == 0 {
		kept = []int{10, 18}
	}

	return &HoursScheduler{hours: kept, loc: loc}
}

// Hours exposes the effective schedule for logging.
func (s *HoursScheduler) Hours() []int {
	out := make([]int, len(s.hours))
	copy(out, s.hours)
	return out
}

// Start launches the trigger loop.
func (s *HoursScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}
	if s.stop != nil {
		return nil
	}

	s.stop = make(chan struct{})
	go func() {
		for {
			next := nextTrigger(time.Now().In(s.loc), s.hours)
			timer := time.NewTimer(time.Until(next))
			select {
			case t := <-timer.C:
				job(t)
			case <-ctx.Done():
				timer.Stop()
				return
			case <-s.stop:
				timer.Stop()
				return
			}
		}
	}()

	return nil
}

// Stop halts the trigger loop.
func (s *HoursScheduler) Stop(ctx context.Context) error {
	if s.stop == nil {
		return nil
	}
	close(s.stop)
	s.stop = nil
	return nil
}

// nextTrigger returns the earliest configured hour strictly after now,
// rolling over to the next day's first hour when today is exhausted.
func nextTrigger(now time.Time, hours []int) time.Time {
	for _, hour := range hours {
		candidate := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
		if candidate.After(now) {
			return candidate
		}
	}
	tomorrow := now.AddDate(0, 0, 1)
	return time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), hours[0], 0, 0, 0, now.Location())
}

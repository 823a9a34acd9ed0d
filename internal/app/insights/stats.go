// Package insights summarises completed focus sessions into stats and insight cards.
package insights

import (
	"fmt"
	"sort"
	"time"

	"github.com/osa030/flowshift/internal/domain/record"
)

// ComputeStats summarises sessions. Streaks count consecutive calendar days in loc
// with at least one completed session; the current streak survives until the end of
// the day after the last session.
func ComputeStats(sessions []record.CompletedSession, now time.Time, loc *time.Location) record.Stats {
	if loc == nil {
		loc = time.Local
	}

	var stats record.Stats
	days := make(map[time.Time]bool)
	for _, s := range sessions {
		stats.SessionsCompleted++
		stats.TotalFocusTime += time.Duration(s.DurationSec) * time.Second
		days[dayOf(s.CompletedAt, loc)] = true

		if stats.LastCompletedAt == nil || s.CompletedAt.After(*stats.LastCompletedAt) {
			last := s.CompletedAt
			stats.LastCompletedAt = &last
		}
	}
	if len(days) == 0 {
		return stats
	}

	ordered := make([]time.Time, 0, len(days))
	for d := range days {
		ordered = append(ordered, d)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Before(ordered[j]) })

	run := 1
	stats.LongestStreak = 1
	for i := 1; i < len(ordered); i++ {
		if isNextDay(ordered[i-1], ordered[i]) {
			run++
		} else {
			run = 1
		}
		if run > stats.LongestStreak {
			stats.LongestStreak = run
		}
	}

	today := dayOf(now, loc)
	last := ordered[len(ordered)-1]
	if last.Equal(today) || isNextDay(last, today) {
		stats.CurrentStreak = run
	}
	return stats
}

func dayOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func isNextDay(prev, next time.Time) bool {
	y, m, d := prev.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, prev.Location()).Equal(next)
}

// peakHour returns the local hour in which most sessions started.
func peakHour(sessions []record.CompletedSession, loc *time.Location) (int, bool) {
	if len(sessions) == 0 {
		return 0, false
	}
	var counts [24]int
	for _, s := range sessions {
		counts[s.StartedAt.In(loc).Hour()]++
	}
	best := 0
	for h := 1; h < 24; h++ {
		if counts[h] > counts[best] {
			best = h
		}
	}
	return best, true
}

// hourRange renders a two hour window such as "9-11 AM".
func hourRange(start int) string {
	end := (start + 2) % 24
	suffix := func(h int) string {
		if h < 12 {
			return "AM"
		}
		return "PM"
	}
	clock := func(h int) int {
		if h%12 == 0 {
			return 12
		}
		return h % 12
	}
	if suffix(start) == suffix(end) {
		return fmt.Sprintf("%d-%d %s", clock(start), clock(end), suffix(end))
	}
	return fmt.Sprintf("%d %s-%d %s", clock(start), suffix(start), clock(end), suffix(end))
}

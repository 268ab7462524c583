// Package schedule implements the scheduling core: the posting-window time
// sampler, the daily planner that turns account configuration into durable
// job records with deferred publish triggers, and the polling dispatcher
// retained for brokers without native delayed delivery.
package schedule

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"postpilot/internal/types"
)

// RandomInt returns a uniform random integer in [min, max], inclusive of both
// bounds. It panics if max < min, mirroring the contract of rand.Intn for
// invalid arguments.
func RandomInt(rng *rand.Rand, min, max int) int {
	if max < min {
		panic(fmt.Sprintf("schedule: RandomInt called with max %d < min %d", max, min))
	}
	return min + rng.Intn(max-min+1)
}

// TimesInWindow returns count random UTC instants inside the posting window
// [windowStart, windowEnd) on date's calendar day in the given timezone,
// sorted ascending.
//
// The window bounds are "HH:MM" local times of day resolved against the
// location's rules, so DST transitions shift the absolute bounds with the
// zone rather than with a fixed offset. Samples are independent and uniform
// over the window; no minimum spacing between them is enforced.
//
// Edge cases:
//   - count == 0 returns an empty slice and no error.
//   - windowStart == windowEnd (point window) returns count copies of that
//     single instant.
//   - If the resolved end instant precedes the start instant, the bounds are
//     swapped before sampling. Windows are assumed to lie within one calendar
//     day; a configured overnight window is reinterpreted as its same-day
//     mirror rather than wrapping past midnight.
func TimesInWindow(rng *rand.Rand, timezone, windowStart, windowEnd string, date time.Time, count int) ([]time.Time, error) {
	if count < 0 {
		return nil, types.NewAppError(types.ErrCodeValidationNegativeCount,
			fmt.Sprintf("sample count must be >= 0, got %d", count), nil)
	}
	if count == 0 {
		return []time.Time{}, nil
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidTimezone,
			"unknown IANA timezone "+timezone, err)
	}

	startOfDay, err := types.ParseTimeOfDay(windowStart)
	if err != nil {
		return nil, err
	}
	endOfDay, err := types.ParseTimeOfDay(windowEnd)
	if err != nil {
		return nil, err
	}

	start := startOfDay.On(date, loc)
	end := endOfDay.On(date, loc)

	if start.Equal(end) {
		times := make([]time.Time, count)
		for i := range times {
			times[i] = start
		}
		return times, nil
	}

	if end.Before(start) {
		start, end = end, start
	}

	rangeMs := end.Sub(start).Milliseconds()
	times := make([]time.Time, count)
	for i := range times {
		offset := rng.Int63n(rangeMs)
		times[i] = start.Add(time.Duration(offset) * time.Millisecond)
	}

	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	return times, nil
}

// Package services provides business logic and orchestration services.
//
// This file holds the interval advancers used by the recurring scheduler.
// Each frequency has its own strategy; all arithmetic happens in UTC.
package services

import (
	"fmt"
	"time"

	"fintrack/internal/core"
)

// IntervalAdvancer moves a scheduled instant forward by interval units of
// its frequency. Implementations are pure and must return a value strictly
// after t for every interval >= 1.
type IntervalAdvancer interface {
	Advance(t time.Time, interval int) time.Time
}

// DailyAdvancer adds interval days.
type DailyAdvancer struct{}

func (DailyAdvancer) Advance(t time.Time, interval int) time.Time {
	return t.UTC().AddDate(0, 0, interval)
}

// WeeklyAdvancer adds 7*interval days.
type WeeklyAdvancer struct{}

func (WeeklyAdvancer) Advance(t time.Time, interval int) time.Time {
	return t.UTC().AddDate(0, 0, 7*interval)
}

// MonthlyAdvancer adds interval calendar months keeping the day of month.
// Days missing from the target month roll over into the next one, as
// time.AddDate normalizes them: Jan 31 + 1 month is Mar 3 in 2023 and Mar 2
// in 2024. The rolled-over day then becomes the anchor for later runs.
type MonthlyAdvancer struct{}

func (MonthlyAdvancer) Advance(t time.Time, interval int) time.Time {
	return t.UTC().AddDate(0, interval, 0)
}

var intervalStrategies = map[core.Frequency]IntervalAdvancer{
	core.Daily:   DailyAdvancer{},
	core.Weekly:  WeeklyAdvancer{},
	core.Monthly: MonthlyAdvancer{},
}

// GetIntervalAdvancer returns the advancer for a frequency.
func GetIntervalAdvancer(frequency core.Frequency) (IntervalAdvancer, error) {
	adv, ok := intervalStrategies[frequency]
	if !ok {
		return nil, fmt.Errorf("unknown frequency %q: %w", frequency, core.ErrInvalidFrequency)
	}
	return adv, nil
}

// Advance returns the next run after t. An interval below 1 is treated as 1.
// Intervals above core.MaxInterval, and any result not strictly after t, are
// errors so a corrupted record can never stall or rewind its schedule.
func Advance(t time.Time, frequency core.Frequency, interval int) (time.Time, error) {
	adv, err := GetIntervalAdvancer(frequency)
	if err != nil {
		return time.Time{}, err
	}
	if interval < 1 {
		interval = 1
	}
	if interval > core.MaxInterval {
		return time.Time{}, fmt.Errorf("interval %d: %w", interval, core.ErrInvalidInterval)
	}
	next := adv.Advance(t, interval)
	if !next.After(t) {
		return time.Time{}, fmt.Errorf("advancing %s by %d %s gives %s: %w",
			t.Format(time.RFC3339), interval, frequency, next.Format(time.RFC3339), core.ErrInvalidInterval)
	}
	return next, nil
}

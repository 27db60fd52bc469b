package core

import (
	"fmt"

	"github.com/teambition/rrule-go"
)

// RRule renders the rule as an RFC 5545 recurrence for calendar export,
// anchored at the next scheduled run. Calendar clients expand monthly rules
// on days that do not exist in a month differently from the scheduler, so the
// export is informational only.
func (r RecurringRule) RRule() (string, error) {
	var freq rrule.Frequency
	switch r.Frequency {
	case Daily:
		freq = rrule.DAILY
	case Weekly:
		freq = rrule.WEEKLY
	case Monthly:
		freq = rrule.MONTHLY
	default:
		return "", fmt.Errorf("rrule for frequency %q: %w", r.Frequency, ErrInvalidFrequency)
	}

	interval := r.Interval
	if interval < 1 {
		interval = 1
	}
	opt := rrule.ROption{
		Freq:     freq,
		Interval: interval,
		Dtstart:  r.NextRunAt.UTC(),
	}
	if _, err := rrule.NewRRule(opt); err != nil {
		return "", fmt.Errorf("build rrule: %w", err)
	}
	return opt.String(), nil
}

package recurrence

import (
	"fmt"
	"time"

	"github.com/avelasko/taskpilot/internal/models"
)

// NextOccurrence computes the due date of the occurrence following fromDate
// under the given rule. It returns nil when the rule has run out, i.e. the
// computed date falls strictly after the rule's end date.
func NextOccurrence(rule *models.RecurrenceRule, fromDate time.Time) (*time.Time, error) {
	if rule == nil {
		return nil, fmt.Errorf("nil recurrence rule")
	}
	if err := rule.Validate(); err != nil {
		return nil, fmt.Errorf("invalid recurrence rule: %w", err)
	}

	var next time.Time
	switch rule.Frequency {
	case models.FrequencyDaily:
		next = fromDate.AddDate(0, 0, rule.Interval)
	case models.FrequencyWeekly:
		n, err := nextWeekly(rule, fromDate)
		if err != nil {
			return nil, err
		}
		next = n
	case models.FrequencyMonthly:
		next = addMonthsClamped(fromDate, rule.Interval)
	case models.FrequencyYearly:
		next = addYearsClamped(fromDate, rule.Interval)
	}

	if rule.EndDate != nil && next.After(*rule.EndDate) {
		return nil, nil
	}
	return &next, nil
}

// nextWeekly finds the first date at least one day after fromDate whose
// weekday is in the rule's day set and whose week lands on the interval grid
// anchored at fromDate's week. Without a day set it degenerates to a plain
// interval*7-day jump.
func nextWeekly(rule *models.RecurrenceRule, fromDate time.Time) (time.Time, error) {
	days, err := rule.Weekdays()
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid recurrence rule: %w", err)
	}
	if len(days) == 0 {
		return fromDate.AddDate(0, 0, rule.Interval*7), nil
	}

	anchor := startOfWeek(fromDate)
	d := fromDate.AddDate(0, 0, 1)
	// The matching date is at most interval+1 weeks out.
	limit := (rule.Interval + 1) * 7
	for i := 0; i < limit; i++ {
		if days[d.Weekday()] && weeksBetween(anchor, startOfWeek(d))%rule.Interval == 0 {
			return d, nil
		}
		d = d.AddDate(0, 0, 1)
	}
	return time.Time{}, fmt.Errorf("no weekly occurrence within %d days", limit)
}

// startOfWeek returns midnight Monday of t's week, in t's location.
func startOfWeek(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7 // Monday = 0
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return day.AddDate(0, 0, -offset)
}

// weeksBetween counts calendar weeks between two week starts. Both are
// normalized to UTC dates first: a DST transition makes a week 167 or 169
// wall-clock hours, which must still count as exactly one week.
func weeksBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	au := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	bu := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(bu.Sub(au).Hours() / (24 * 7))
}

// addMonthsClamped advances by n months keeping the day-of-month, clamped to
// the last valid day of the target month. time.AddDate would normalize
// Jan 31 + 1 month into Mar 3, which is not what a monthly bill wants.
func addMonthsClamped(t time.Time, n int) time.Time {
	year, month, day := t.Date()
	target := time.Date(year, month+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	if last := daysInMonth(target.Month(), target.Year()); day > last {
		day = last
	}
	return time.Date(target.Year(), target.Month(), day,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// addYearsClamped advances by n years; Feb 29 lands on Feb 28 in a non-leap
// target year.
func addYearsClamped(t time.Time, n int) time.Time {
	year, month, day := t.Date()
	if last := daysInMonth(month, year+n); day > last {
		day = last
	}
	return time.Date(year+n, month, day,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysInMonth(month time.Month, year int) int {
	// Move to next month, roll back a day.
	firstOfMonth := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return firstOfMonth.AddDate(0, 1, -1).Day()
}

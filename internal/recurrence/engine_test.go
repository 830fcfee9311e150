package recurrence

import (
	"testing"
	"time"

	"github.com/avelasko/taskpilot/internal/models"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNextOccurrenceDaily(t *testing.T) {
	tests := []struct {
		name     string
		interval int
		from     time.Time
		want     time.Time
	}{
		{"every day", 1, date(2025, time.March, 10), date(2025, time.March, 11)},
		{"every third day", 3, date(2025, time.March, 10), date(2025, time.March, 13)},
		{"across month boundary", 1, date(2025, time.January, 31), date(2025, time.February, 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := &models.RecurrenceRule{Frequency: models.FrequencyDaily, Interval: tt.interval}
			got, err := NextOccurrence(rule, tt.from)
			if err != nil {
				t.Fatalf("NextOccurrence() error = %v", err)
			}
			if got == nil || !got.Equal(tt.want) {
				t.Errorf("NextOccurrence() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNextOccurrenceMonthlyClampsDay(t *testing.T) {
	tests := []struct {
		name     string
		interval int
		from     time.Time
		want     time.Time
	}{
		{"jan 31 to feb 28 non-leap", 1, date(2025, time.January, 31), date(2025, time.February, 28)},
		{"jan 31 to feb 29 leap", 1, date(2024, time.January, 31), date(2024, time.February, 29)},
		{"mid-month unaffected", 1, date(2025, time.April, 15), date(2025, time.May, 15)},
		{"quarterly", 3, date(2025, time.November, 30), date(2026, time.February, 28)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := &models.RecurrenceRule{Frequency: models.FrequencyMonthly, Interval: tt.interval}
			got, err := NextOccurrence(rule, tt.from)
			if err != nil {
				t.Fatalf("NextOccurrence() error = %v", err)
			}
			if got == nil || !got.Equal(tt.want) {
				t.Errorf("NextOccurrence() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNextOccurrenceYearlyClampsLeapDay(t *testing.T) {
	tests := []struct {
		name     string
		interval int
		from     time.Time
		want     time.Time
	}{
		{"feb 29 to non-leap", 1, date(2024, time.February, 29), date(2025, time.February, 28)},
		{"feb 29 to leap", 4, date(2024, time.February, 29), date(2028, time.February, 29)},
		{"plain anniversary", 1, date(2025, time.June, 1), date(2026, time.June, 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := &models.RecurrenceRule{Frequency: models.FrequencyYearly, Interval: tt.interval}
			got, err := NextOccurrence(rule, tt.from)
			if err != nil {
				t.Fatalf("NextOccurrence() error = %v", err)
			}
			if got == nil || !got.Equal(tt.want) {
				t.Errorf("NextOccurrence() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNextOccurrenceWeekly(t *testing.T) {
	// 2025-01-08 is a Wednesday; its week starts Monday 2025-01-06.
	wednesday := date(2025, time.January, 8)

	tests := []struct {
		name     string
		interval int
		days     []string
		from     time.Time
		want     time.Time
	}{
		{"no day set falls back to interval weeks", 2, nil, wednesday, date(2025, time.January, 22)},
		{"next listed weekday in same week", 1, []string{"friday"}, wednesday, date(2025, time.January, 10)},
		{"same weekday next week", 1, []string{"wednesday"}, wednesday, date(2025, time.January, 15)},
		{"interval skips off-grid weeks", 2, []string{"monday", "wednesday"}, wednesday, date(2025, time.January, 20)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := &models.RecurrenceRule{
				Frequency: models.FrequencyWeekly,
				Interval:  tt.interval,
				Days:      tt.days,
			}
			got, err := NextOccurrence(rule, tt.from)
			if err != nil {
				t.Fatalf("NextOccurrence() error = %v", err)
			}
			if got == nil || !got.Equal(tt.want) {
				t.Errorf("NextOccurrence() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNextOccurrenceWeeklyAcrossDSTTransition(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("LoadLocation() error = %v", err)
	}

	// Clocks spring forward on 2025-03-09, so the week starting 2025-03-10 is
	// only 167 wall-clock hours after the week starting 2025-03-03. A biweekly
	// rule anchored in the earlier week must still skip to 2025-03-17, not
	// land one week early.
	from := time.Date(2025, time.March, 5, 9, 0, 0, 0, loc)
	rule := &models.RecurrenceRule{
		Frequency: models.FrequencyWeekly,
		Interval:  2,
		Days:      []string{"monday"},
	}

	got, err := NextOccurrence(rule, from)
	if err != nil {
		t.Fatalf("NextOccurrence() error = %v", err)
	}
	want := time.Date(2025, time.March, 17, 9, 0, 0, 0, loc)
	if got == nil || !got.Equal(want) {
		t.Errorf("NextOccurrence() = %v, want %v", got, want)
	}
}

func TestNextOccurrenceEndDate(t *testing.T) {
	end := date(2025, time.January, 12)
	rule := &models.RecurrenceRule{
		Frequency: models.FrequencyWeekly,
		Interval:  1,
		Days:      []string{"wednesday"},
		EndDate:   &end,
	}

	got, err := NextOccurrence(rule, date(2025, time.January, 8))
	if err != nil {
		t.Fatalf("NextOccurrence() error = %v", err)
	}
	if got != nil {
		t.Errorf("NextOccurrence() = %v, want nil past end date", got)
	}

	// An occurrence exactly on the end date still counts.
	end = date(2025, time.January, 15)
	got, err = NextOccurrence(rule, date(2025, time.January, 8))
	if err != nil {
		t.Fatalf("NextOccurrence() error = %v", err)
	}
	if got == nil || !got.Equal(end) {
		t.Errorf("NextOccurrence() = %v, want %v", got, end)
	}
}

func TestNextOccurrenceRejectsMalformedRules(t *testing.T) {
	tests := []struct {
		name string
		rule *models.RecurrenceRule
	}{
		{"nil rule", nil},
		{"zero interval", &models.RecurrenceRule{Frequency: models.FrequencyDaily, Interval: 0}},
		{"unknown frequency", &models.RecurrenceRule{Frequency: "fortnightly", Interval: 1}},
		{"bad weekday token", &models.RecurrenceRule{Frequency: models.FrequencyWeekly, Interval: 1, Days: []string{"someday"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NextOccurrence(tt.rule, date(2025, time.March, 1)); err == nil {
				t.Error("NextOccurrence() expected error, got nil")
			}
		})
	}
}

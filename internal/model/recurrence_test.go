package model

import (
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/samber/mo"
)

const layout = "2006-01-02 15:04"

func mustRule(t *testing.T, p RuleParams) RecurrenceRule {
	t.Helper()
	rule, err := NewRecurrenceRule(p)
	if err != nil {
		t.Fatalf("new rule: %v", err)
	}
	return rule
}

func at(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func TestRecurrenceDaily(t *testing.T) {
	rule := mustRule(t, RuleParams{Frequency: FrequencyDaily, Interval: 1, TimeOfDay: TimeOfDay{Hour: 9}})
	next := rule.NextOccurrence(at(2025, 1, 1, 15, 0))
	if got := next.Format(layout); got != "2025-01-02 09:00" {
		t.Fatalf("unexpected next daily occurrence: %s", got)
	}

	every3 := mustRule(t, RuleParams{Frequency: FrequencyDaily, Interval: 3, TimeOfDay: TimeOfDay{Hour: 7, Minute: 30}})
	if got := every3.NextOccurrence(at(2025, 1, 30, 6, 0)).Format(layout); got != "2025-02-02 07:30" {
		t.Fatalf("unexpected every-3-days occurrence: %s", got)
	}
}

func TestRecurrenceWeeklyListedDays(t *testing.T) {
	monWed := mustRule(t, RuleParams{
		Frequency:  FrequencyWeekly,
		Interval:   1,
		DaysOfWeek: []Weekday{Wednesday, Monday},
		TimeOfDay:  TimeOfDay{Hour: 9},
	})
	monday := at(2025, 1, 6, 8, 0)
	if WeekdayOf(monday) != Monday {
		t.Fatalf("fixture is not a Monday: %s", monday.Weekday())
	}

	next := monWed.NextOccurrence(monday)
	if next.Weekday() != time.Wednesday || next.Format(layout) != "2025-01-08 09:00" {
		t.Fatalf("expected same-week Wednesday, got %s", next.Format(layout))
	}

	// Reference on the last listed weekday wraps to the first one next week.
	next = monWed.NextOccurrence(at(2025, 1, 8, 10, 0))
	if next.Format(layout) != "2025-01-13 09:00" {
		t.Fatalf("expected wrap to Monday, got %s", next.Format(layout))
	}
}

func TestRecurrenceWeeklySingleDayWrap(t *testing.T) {
	mondays := mustRule(t, RuleParams{
		Frequency:  FrequencyWeekly,
		Interval:   1,
		DaysOfWeek: []Weekday{Monday},
		TimeOfDay:  TimeOfDay{Hour: 9},
	})
	tuesday := at(2025, 1, 7, 12, 0)
	next := mondays.NextOccurrence(tuesday)
	if days := int(next.Sub(tuesday.Truncate(24*time.Hour)).Hours() / 24); days != 6 {
		t.Fatalf("expected 6 days ahead, got %d (%s)", days, next.Format(layout))
	}
	if next.Format(layout) != "2025-01-13 09:00" {
		t.Fatalf("unexpected next Monday: %s", next.Format(layout))
	}

	// Same weekday as the only listed day advances a full week.
	if got := mondays.NextOccurrence(at(2025, 1, 13, 8, 0)).Format(layout); got != "2025-01-20 09:00" {
		t.Fatalf("expected following Monday, got %s", got)
	}
}

func TestRecurrenceWeeklyBoundaries(t *testing.T) {
	everyDay := mustRule(t, RuleParams{
		Frequency:  FrequencyWeekly,
		Interval:   1,
		DaysOfWeek: []Weekday{Sunday, Monday, Tuesday, Wednesday, Thursday, Friday, Saturday},
		TimeOfDay:  TimeOfDay{Hour: 6},
	})
	saturday := at(2025, 1, 11, 22, 0)
	if got := everyDay.NextOccurrence(saturday).Format(layout); got != "2025-01-12 06:00" {
		t.Fatalf("expected Sunday after Saturday, got %s", got)
	}

	sundays := mustRule(t, RuleParams{
		Frequency:  FrequencyWeekly,
		Interval:   1,
		DaysOfWeek: []Weekday{Sunday},
		TimeOfDay:  TimeOfDay{Hour: 6},
	})
	if got := sundays.NextOccurrence(saturday).Format(layout); got != "2025-01-12 06:00" {
		t.Fatalf("expected next-day Sunday, got %s", got)
	}

	biweekly := mustRule(t, RuleParams{
		Frequency:  FrequencyWeekly,
		Interval:   2,
		DaysOfWeek: []Weekday{Monday, Wednesday},
		TimeOfDay:  TimeOfDay{Hour: 9},
	})
	if got := biweekly.NextOccurrence(at(2025, 1, 6, 10, 0)).Format(layout); got != "2025-01-08 09:00" {
		t.Fatalf("expected Wednesday inside the same week, got %s", got)
	}
	if got := biweekly.NextOccurrence(at(2025, 1, 8, 10, 0)).Format(layout); got != "2025-01-20 09:00" {
		t.Fatalf("expected Monday two weeks on, got %s", got)
	}
}

func TestRecurrenceWeeklyInterval(t *testing.T) {
	rule := mustRule(t, RuleParams{Frequency: FrequencyWeekly, Interval: 2, TimeOfDay: TimeOfDay{Hour: 18}})
	if got := rule.NextOccurrence(at(2025, 12, 25, 9, 0)).Format(layout); got != "2026-01-08 18:00" {
		t.Fatalf("unexpected biweekly occurrence: %s", got)
	}
}

func TestRecurrenceMonthlyDayOfMonthClamps(t *testing.T) {
	rule := mustRule(t, RuleParams{
		Frequency:  FrequencyMonthly,
		Interval:   1,
		DayOfMonth: mo.Some(31),
		TimeOfDay:  TimeOfDay{Hour: 9},
	})

	// Target month April has 30 days.
	if got := rule.NextOccurrence(at(2025, 3, 15, 12, 0)).Format(layout); got != "2025-04-30 09:00" {
		t.Fatalf("expected clamp to April 30, got %s", got)
	}
	if got := rule.NextOccurrence(at(2025, 4, 30, 9, 0)).Format(layout); got != "2025-05-31 09:00" {
		t.Fatalf("expected May 31 from April reference, got %s", got)
	}
	if got := rule.NextOccurrence(at(2024, 1, 31, 9, 0)).Format(layout); got != "2024-02-29 09:00" {
		t.Fatalf("expected leap February clamp, got %s", got)
	}
}

func TestRecurrenceMonthlySameDay(t *testing.T) {
	rule := mustRule(t, RuleParams{Frequency: FrequencyMonthly, Interval: 1, TimeOfDay: TimeOfDay{Hour: 8}})
	if got := rule.NextOccurrence(at(2025, 1, 31, 8, 0)).Format(layout); got != "2025-02-28 08:00" {
		t.Fatalf("expected February clamp, got %s", got)
	}

	quarterly := mustRule(t, RuleParams{Frequency: FrequencyMonthly, Interval: 3, TimeOfDay: TimeOfDay{Hour: 8}})
	if got := quarterly.NextOccurrence(at(2025, 11, 15, 8, 0)).Format(layout); got != "2026-02-15 08:00" {
		t.Fatalf("expected year rollover, got %s", got)
	}
}

func TestRecurrenceYearlyLeapDay(t *testing.T) {
	rule := mustRule(t, RuleParams{Frequency: FrequencyYearly, Interval: 1, TimeOfDay: TimeOfDay{Hour: 10}})
	if got := rule.NextOccurrence(at(2024, 2, 29, 10, 0)).Format(layout); got != "2025-02-28 10:00" {
		t.Fatalf("expected Feb 28 in common year, got %s", got)
	}

	every4 := mustRule(t, RuleParams{Frequency: FrequencyYearly, Interval: 4, TimeOfDay: TimeOfDay{Hour: 10}})
	if got := every4.NextOccurrence(at(2024, 2, 29, 10, 0)).Format(layout); got != "2028-02-29 10:00" {
		t.Fatalf("expected leap day preserved, got %s", got)
	}

	// Each step chains from the previous occurrence, so a clamped leap day stays
	// on Feb 28 even when a later leap year comes round.
	chain := rule.Preview(at(2024, 2, 29, 10, 0), 4)
	if got := chain[3].Format(layout); got != "2028-02-28 10:00" {
		t.Fatalf("expected the chain to stay on Feb 28, got %s", got)
	}
}

func TestRecurrenceTimezone(t *testing.T) {
	rule := mustRule(t, RuleParams{
		Frequency: FrequencyDaily,
		Interval:  1,
		TimeOfDay: TimeOfDay{Hour: 9},
		Timezone:  "America/New_York",
	})
	// 03:00Z is still Dec 31 in New York.
	next := rule.NextOccurrence(at(2025, 1, 1, 3, 0))
	if got := next.UTC().Format(layout); got != "2025-01-01 14:00" {
		t.Fatalf("unexpected zoned occurrence: %s", got)
	}
	if next.Location().String() != "America/New_York" {
		t.Fatalf("expected result in rule location, got %s", next.Location())
	}
}

func TestRecurrenceAcrossDSTGap(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	rule := mustRule(t, RuleParams{Frequency: FrequencyDaily, Interval: 1, TimeOfDay: TimeOfDay{Hour: 2, Minute: 30}})

	// 2025-03-30 02:30 does not exist in Berlin.
	ref := time.Date(2025, 3, 29, 2, 30, 0, 0, berlin)
	next := rule.NextOccurrence(ref)
	if !next.After(ref) {
		t.Fatalf("expected strictly later occurrence, got %s", next)
	}
	if y, m, d := next.Date(); y != 2025 || m != time.March || d != 30 {
		t.Fatalf("expected March 30, got %s", next)
	}

	after := rule.NextOccurrence(next)
	if after.Format(layout) != "2025-03-31 02:30" {
		t.Fatalf("expected wall time restored after the gap, got %s", after.Format(layout))
	}
}

func TestRecurrenceSkippedCalendarDay(t *testing.T) {
	apia, err := time.LoadLocation("Pacific/Apia")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	rule := mustRule(t, RuleParams{Frequency: FrequencyDaily, Interval: 1, TimeOfDay: TimeOfDay{Hour: 9}, Timezone: "Pacific/Apia"})

	// Samoa moved across the date line: 2011-12-30 never happened there.
	ref := time.Date(2011, 12, 29, 15, 0, 0, 0, apia)
	next := rule.NextOccurrence(ref)
	if !next.After(ref) {
		t.Fatalf("next %s is not after reference %s", next, ref)
	}
	if got := next.Format(layout); got != "2011-12-31 09:00" {
		t.Fatalf("expected the next existing day, got %s", got)
	}
	if got := rule.NextOccurrence(next).Format(layout); got != "2012-01-01 09:00" {
		t.Fatalf("unexpected occurrence after the skipped day: %s", got)
	}
}

func TestRecurrencePreview(t *testing.T) {
	rule := mustRule(t, RuleParams{Frequency: FrequencyDaily, Interval: 3, TimeOfDay: TimeOfDay{Hour: 9}})
	list := rule.Preview(at(2026, 2, 5, 0, 0), 3)
	want := []string{"2026-02-08 09:00", "2026-02-11 09:00", "2026-02-14 09:00"}
	if len(list) != len(want) {
		t.Fatalf("expected %d preview items, got %d", len(want), len(list))
	}
	for i := range list {
		if got := list[i].Format(layout); got != want[i] {
			t.Fatalf("preview[%d] got %s want %s", i, got, want[i])
		}
	}
	if got := rule.Preview(at(2026, 2, 5, 0, 0), 0); len(got) != 0 {
		t.Fatalf("expected empty preview, got %v", got)
	}
}

func TestNewRecurrenceRuleValidation(t *testing.T) {
	cases := []struct {
		name   string
		params RuleParams
		want   error
	}{
		{"unknown frequency", RuleParams{Frequency: "hourly", Interval: 1}, ErrInvalidFrequency},
		{"zero interval", RuleParams{Frequency: FrequencyDaily}, ErrInvalidInterval},
		{"negative interval", RuleParams{Frequency: FrequencyDaily, Interval: -2}, ErrInvalidInterval},
		{"weekday out of range", RuleParams{Frequency: FrequencyWeekly, Interval: 1, DaysOfWeek: []Weekday{8}}, ErrInvalidWeekday},
		{"weekday zero", RuleParams{Frequency: FrequencyWeekly, Interval: 1, DaysOfWeek: []Weekday{0}}, ErrInvalidWeekday},
		{"weekdays on daily", RuleParams{Frequency: FrequencyDaily, Interval: 1, DaysOfWeek: []Weekday{Monday}}, ErrInvalidWeekday},
		{"day of month 0", RuleParams{Frequency: FrequencyMonthly, Interval: 1, DayOfMonth: mo.Some(0)}, ErrInvalidDayOfMonth},
		{"day of month 32", RuleParams{Frequency: FrequencyMonthly, Interval: 1, DayOfMonth: mo.Some(32)}, ErrInvalidDayOfMonth},
		{"day of month on yearly", RuleParams{Frequency: FrequencyYearly, Interval: 1, DayOfMonth: mo.Some(3)}, ErrInvalidDayOfMonth},
		{"hour 24", RuleParams{Frequency: FrequencyDaily, Interval: 1, TimeOfDay: TimeOfDay{Hour: 24}}, ErrInvalidTimeOfDay},
		{"bad timezone", RuleParams{Frequency: FrequencyDaily, Interval: 1, Timezone: "Mars/Olympus"}, ErrInvalidTimezone},
	}
	for _, tc := range cases {
		_, err := NewRecurrenceRule(tc.params)
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
		if !errors.Is(err, ErrInvalidRule) {
			t.Fatalf("%s: expected error to wrap ErrInvalidRule, got %v", tc.name, err)
		}
	}
}

func TestRecurrenceRuleNormalizesWeekdays(t *testing.T) {
	rule := mustRule(t, RuleParams{
		Frequency:  FrequencyWeekly,
		Interval:   1,
		DaysOfWeek: []Weekday{Friday, Monday, Friday},
	})
	days := rule.DaysOfWeek()
	if len(days) != 2 || days[0] != Monday || days[1] != Friday {
		t.Fatalf("unexpected normalized weekdays: %v", days)
	}

	days[0] = Sunday
	if rule.DaysOfWeek()[0] != Monday {
		t.Fatal("rule weekdays must not be mutable through the accessor")
	}
}

func TestRecurrenceRuleString(t *testing.T) {
	rule := mustRule(t, RuleParams{
		Frequency:  FrequencyWeekly,
		Interval:   2,
		DaysOfWeek: []Weekday{Monday, Wednesday},
		TimeOfDay:  TimeOfDay{Hour: 9},
	})
	if got := rule.String(); got != "every 2 weeks on Mon, Wed at 09:00" {
		t.Fatalf("unexpected summary: %q", got)
	}

	monthly := mustRule(t, RuleParams{Frequency: FrequencyMonthly, Interval: 1, DayOfMonth: mo.Some(31), TimeOfDay: TimeOfDay{Hour: 8, Minute: 15}, Timezone: "UTC"})
	if got := monthly.String(); got != "every month on day 31 at 08:15 (UTC)" {
		t.Fatalf("unexpected summary: %q", got)
	}
}

func TestZeroRuleNextOccurrencePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on zero rule")
		}
	}()
	RecurrenceRule{}.NextOccurrence(at(2025, 1, 1, 0, 0))
}

func TestParseTimeOfDayAndWeekday(t *testing.T) {
	tod, err := ParseTimeOfDay("07:05")
	if err != nil || tod != (TimeOfDay{Hour: 7, Minute: 5}) {
		t.Fatalf("unexpected time of day: %+v err=%v", tod, err)
	}
	if _, err := ParseTimeOfDay("7pm"); !errors.Is(err, ErrInvalidTimeOfDay) {
		t.Fatalf("expected ErrInvalidTimeOfDay, got %v", err)
	}

	for raw, want := range map[string]Weekday{"mon": Monday, "Saturday": Saturday, "1": Sunday, " thu ": Thursday} {
		got, err := ParseWeekday(raw)
		if err != nil || got != want {
			t.Fatalf("ParseWeekday(%q) = %v, %v; want %v", raw, got, err, want)
		}
	}
	if _, err := ParseWeekday("funday"); !errors.Is(err, ErrInvalidWeekday) {
		t.Fatalf("expected ErrInvalidWeekday, got %v", err)
	}
}

package model

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/samber/mo"
)

type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

func (f Frequency) IsValid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyYearly:
		return true
	default:
		return false
	}
}

var (
	ErrInvalidRule       = errors.New("model: invalid recurrence rule")
	ErrInvalidFrequency  = fmt.Errorf("%w: frequency", ErrInvalidRule)
	ErrInvalidInterval   = fmt.Errorf("%w: interval", ErrInvalidRule)
	ErrInvalidWeekday    = fmt.Errorf("%w: day of week", ErrInvalidRule)
	ErrInvalidDayOfMonth = fmt.Errorf("%w: day of month", ErrInvalidRule)
	ErrInvalidTimeOfDay  = fmt.Errorf("%w: time of day", ErrInvalidRule)
	ErrInvalidTimezone   = fmt.Errorf("%w: timezone", ErrInvalidRule)
)

// Weekday numbers days 1=Sunday through 7=Saturday.
type Weekday int

const (
	Sunday Weekday = iota + 1
	Monday
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
)

func WeekdayOf(t time.Time) Weekday {
	return Weekday(t.Weekday()) + 1
}

func (w Weekday) IsValid() bool {
	return w >= Sunday && w <= Saturday
}

func (w Weekday) Time() time.Weekday {
	return time.Weekday(w - 1)
}

func (w Weekday) String() string {
	if !w.IsValid() {
		return "Weekday(" + strconv.Itoa(int(w)) + ")"
	}
	return w.Time().String()[:3]
}

// ParseWeekday accepts a number 1-7 or an English day name or its three letter prefix.
func ParseWeekday(raw string) (Weekday, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if n, err := strconv.Atoi(s); err == nil {
		w := Weekday(n)
		if !w.IsValid() {
			return 0, fmt.Errorf("%w: %d", ErrInvalidWeekday, n)
		}
		return w, nil
	}
	for w := Sunday; w <= Saturday; w++ {
		name := strings.ToLower(w.Time().String())
		if s == name || (len(s) >= 3 && strings.HasPrefix(name, s)) {
			return w, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidWeekday, raw)
}

type TimeOfDay struct {
	Hour   int
	Minute int
}

func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 2 {
		return TimeOfDay{}, fmt.Errorf("%w: %q, expected HH:MM", ErrInvalidTimeOfDay, raw)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, raw)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, raw)
	}
	tod := TimeOfDay{Hour: hour, Minute: minute}
	if err := tod.Validate(); err != nil {
		return TimeOfDay{}, err
	}
	return tod, nil
}

func (t TimeOfDay) Validate() error {
	if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 {
		return fmt.Errorf("%w: %02d:%02d", ErrInvalidTimeOfDay, t.Hour, t.Minute)
	}
	return nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// RuleParams is the unvalidated input to NewRecurrenceRule.
type RuleParams struct {
	Frequency  Frequency
	Interval   int
	DaysOfWeek []Weekday
	DayOfMonth mo.Option[int]
	TimeOfDay  TimeOfDay
	// Timezone is an IANA name. Empty means the location of the reference timestamp.
	Timezone string
}

// RecurrenceRule is immutable once built. The zero value is not a usable rule.
type RecurrenceRule struct {
	frequency  Frequency
	interval   int
	daysOfWeek []Weekday
	dayOfMonth mo.Option[int]
	timeOfDay  TimeOfDay
	timezone   string
	loc        *time.Location
}

func NewRecurrenceRule(p RuleParams) (RecurrenceRule, error) {
	if !p.Frequency.IsValid() {
		return RecurrenceRule{}, fmt.Errorf("%w: %q", ErrInvalidFrequency, p.Frequency)
	}
	if p.Interval < 1 {
		return RecurrenceRule{}, fmt.Errorf("%w: %d", ErrInvalidInterval, p.Interval)
	}
	if err := p.TimeOfDay.Validate(); err != nil {
		return RecurrenceRule{}, err
	}

	days, err := normalizeWeekdays(p.DaysOfWeek)
	if err != nil {
		return RecurrenceRule{}, err
	}
	if len(days) > 0 && p.Frequency != FrequencyWeekly {
		return RecurrenceRule{}, fmt.Errorf("%w: only weekly rules take days of week", ErrInvalidWeekday)
	}

	if dom, ok := p.DayOfMonth.Get(); ok {
		if p.Frequency != FrequencyMonthly {
			return RecurrenceRule{}, fmt.Errorf("%w: only monthly rules take a day of month", ErrInvalidDayOfMonth)
		}
		if dom < 1 || dom > 31 {
			return RecurrenceRule{}, fmt.Errorf("%w: %d", ErrInvalidDayOfMonth, dom)
		}
	}

	var loc *time.Location
	tz := strings.TrimSpace(p.Timezone)
	if tz != "" {
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return RecurrenceRule{}, fmt.Errorf("%w: %q", ErrInvalidTimezone, tz)
		}
	}

	return RecurrenceRule{
		frequency:  p.Frequency,
		interval:   p.Interval,
		daysOfWeek: days,
		dayOfMonth: p.DayOfMonth,
		timeOfDay:  p.TimeOfDay,
		timezone:   tz,
		loc:        loc,
	}, nil
}

func normalizeWeekdays(in []Weekday) ([]Weekday, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := slices.Clone(in)
	for _, w := range out {
		if !w.IsValid() {
			return nil, fmt.Errorf("%w: %d", ErrInvalidWeekday, int(w))
		}
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

func (r RecurrenceRule) IsZero() bool { return r.interval == 0 }
func (r RecurrenceRule) Frequency() Frequency { return r.frequency }
func (r RecurrenceRule) Interval() int { return r.interval }
func (r RecurrenceRule) DaysOfWeek() []Weekday { return slices.Clone(r.daysOfWeek) }
func (r RecurrenceRule) DayOfMonth() mo.Option[int] { return r.dayOfMonth }
func (r RecurrenceRule) TimeOfDay() TimeOfDay { return r.timeOfDay }
func (r RecurrenceRule) Timezone() string { return r.timezone }

// Location is nil when the rule follows the reference timestamp's location.
func (r RecurrenceRule) Location() *time.Location { return r.loc }

// Params returns the inputs that rebuild an equal rule.
func (r RecurrenceRule) Params() RuleParams {
	return RuleParams{
		Frequency:  r.frequency,
		Interval:   r.interval,
		DaysOfWeek: r.DaysOfWeek(),
		DayOfMonth: r.dayOfMonth,
		TimeOfDay:  r.timeOfDay,
		Timezone:   r.timezone,
	}
}

// NextOccurrence returns the first occurrence strictly after the reference instant.
// Dates are computed on the wall calendar of the rule's timezone, or of after's
// location when the rule has none. Month and year steps clamp to the last day of
// the target month. A date the zone skipped entirely rolls forward to the next
// day that exists.
func (r RecurrenceRule) NextOccurrence(after time.Time) time.Time {
	if r.IsZero() {
		panic("model: NextOccurrence called on zero RecurrenceRule")
	}
	ref := after
	if r.loc != nil {
		ref = after.In(r.loc)
	}
	y, m, d := r.nextDate(ref)
	next := r.at(ref, y, m, d)
	for !next.After(after) {
		d++
		next = r.at(ref, y, m, d)
	}
	return next
}

func (r RecurrenceRule) nextDate(ref time.Time) (int, time.Month, int) {
	y, m, d := ref.Date()
	switch r.frequency {
	case FrequencyDaily:
		return y, m, d + r.interval
	case FrequencyWeekly:
		if len(r.daysOfWeek) == 0 {
			return y, m, d + 7*r.interval
		}
		return y, m, d + r.daysUntilListedWeekday(WeekdayOf(ref))
	case FrequencyMonthly:
		day := d
		if dom, ok := r.dayOfMonth.Get(); ok {
			day = dom
		}
		return addMonthsClamped(y, m, day, r.interval)
	case FrequencyYearly:
		return addMonthsClamped(y, m, d, 12*r.interval)
	default:
		panic(fmt.Sprintf("model: unknown frequency %q", r.frequency))
	}
}

// daysUntilListedWeekday counts forward from ref to the next listed weekday. When
// ref is on or past every listed day the count wraps into the following week, and
// each extra interval adds one more week.
func (r RecurrenceRule) daysUntilListedWeekday(ref Weekday) int {
	for _, w := range r.daysOfWeek {
		if w > ref {
			return int(w - ref)
		}
	}
	return int(Saturday-ref) + int(r.daysOfWeek[0]) + 7*(r.interval-1)
}

func (r RecurrenceRule) at(ref time.Time, y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, r.timeOfDay.Hour, r.timeOfDay.Minute, 0, 0, ref.Location())
}

func addMonthsClamped(y int, m time.Month, day, months int) (int, time.Month, int) {
	total := int(m) - 1 + months
	ny := y + total/12
	nm := time.Month(total%12 + 1)
	if last := daysIn(ny, nm); day > last {
		day = last
	}
	return ny, nm, day
}

func daysIn(y int, m time.Month) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Preview lists the next count occurrences after from.
func (r RecurrenceRule) Preview(from time.Time, count int) []time.Time {
	if count <= 0 {
		return []time.Time{}
	}
	out := make([]time.Time, 0, count)
	cursor := from
	for i := 0; i < count; i++ {
		cursor = r.NextOccurrence(cursor)
		out = append(out, cursor)
	}
	return out
}

func (r RecurrenceRule) String() string {
	if r.IsZero() {
		return "never"
	}
	var b strings.Builder
	unit := map[Frequency]string{
		FrequencyDaily:   "day",
		FrequencyWeekly:  "week",
		FrequencyMonthly: "month",
		FrequencyYearly:  "year",
	}[r.frequency]
	if r.interval == 1 {
		b.WriteString("every " + unit)
	} else {
		fmt.Fprintf(&b, "every %d %ss", r.interval, unit)
	}
	if len(r.daysOfWeek) > 0 {
		names := make([]string, 0, len(r.daysOfWeek))
		for _, w := range r.daysOfWeek {
			names = append(names, w.String())
		}
		b.WriteString(" on " + strings.Join(names, ", "))
	}
	if dom, ok := r.dayOfMonth.Get(); ok {
		fmt.Fprintf(&b, " on day %d", dom)
	}
	b.WriteString(" at " + r.timeOfDay.String())
	if r.timezone != "" {
		b.WriteString(" (" + r.timezone + ")")
	}
	return b.String()
}

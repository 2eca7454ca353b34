package model

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/mo"
)

var frequencyWords = map[string]Frequency{
	"day": FrequencyDaily, "days": FrequencyDaily, "daily": FrequencyDaily,
	"week": FrequencyWeekly, "weeks": FrequencyWeekly, "weekly": FrequencyWeekly,
	"month": FrequencyMonthly, "months": FrequencyMonthly, "monthly": FrequencyMonthly,
	"year": FrequencyYearly, "years": FrequencyYearly, "yearly": FrequencyYearly, "annually": FrequencyYearly,
}

// ParseRule reads a rule phrase such as "daily at 07:30", "every 2 weeks on mon,thu
// at 09:00 in Europe/Berlin" or "monthly on day 31 at 18:00". It accepts the output
// of RecurrenceRule.String. defaultTZ applies when the phrase names no zone.
func ParseRule(phrase, defaultTZ string) (RecurrenceRule, error) {
	orig := strings.Fields(strings.ReplaceAll(phrase, ",", " "))
	if len(orig) == 0 {
		return RecurrenceRule{}, fmt.Errorf("%w: empty rule", ErrInvalidRule)
	}
	fail := func(format string, args ...any) (RecurrenceRule, error) {
		return RecurrenceRule{}, fmt.Errorf("%w: %q: %s", ErrInvalidRule, phrase, fmt.Sprintf(format, args...))
	}

	p := RuleParams{Interval: 1, Timezone: defaultTZ}
	i := 0
	word := func() string { return strings.ToLower(orig[i]) }

	if word() == "every" {
		i++
		if i < len(orig) {
			if n, err := strconv.Atoi(orig[i]); err == nil {
				p.Interval = n
				i++
			}
		}
	}
	if i >= len(orig) {
		return fail("missing frequency")
	}
	freq, ok := frequencyWords[word()]
	if !ok {
		return fail("unknown frequency %q", orig[i])
	}
	p.Frequency = freq
	i++

	for i < len(orig) {
		switch w := word(); {
		case w == "on":
			i++
			switch freq {
			case FrequencyWeekly:
				start := i
				for i < len(orig) {
					day, err := ParseWeekday(orig[i])
					if err != nil {
						break
					}
					p.DaysOfWeek = append(p.DaysOfWeek, day)
					i++
				}
				if i == start {
					return fail("expected days of week after on")
				}
			case FrequencyMonthly:
				if i < len(orig) && word() == "day" {
					i++
				}
				if i >= len(orig) {
					return fail("expected day of month after on")
				}
				n, err := strconv.Atoi(orig[i])
				if err != nil {
					return fail("bad day of month %q", orig[i])
				}
				p.DayOfMonth = mo.Some(n)
				i++
			default:
				return fail("%s rules take no on clause", freq)
			}
		case w == "at":
			i++
			if i >= len(orig) {
				return fail("expected HH:MM after at")
			}
			tod, err := ParseTimeOfDay(orig[i])
			if err != nil {
				return RecurrenceRule{}, err
			}
			p.TimeOfDay = tod
			i++
		case w == "in":
			i++
			if i >= len(orig) {
				return fail("expected timezone after in")
			}
			p.Timezone = orig[i]
			i++
		case strings.HasPrefix(w, "(") && strings.HasSuffix(w, ")"):
			p.Timezone = strings.TrimSuffix(strings.TrimPrefix(orig[i], "("), ")")
			i++
		default:
			return fail("unexpected %q", orig[i])
		}
	}
	return NewRecurrenceRule(p)
}

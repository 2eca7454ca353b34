package exchange

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/emersion/go-ical"
	"github.com/teambition/rrule-go"

	"github.com/sandeepkv93/cadence/internal/model"
)

const productID = "-//cadence//Recurring Tasks//EN"

var rruleWeekdays = [...]rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

// RRuleOption expresses the definition's schedule as an RRULE anchored at its next
// due date. Days past the 28th are written as BYMONTHDAY=28..d;BYSETPOS=-1 so
// calendar clients clamp short months to their last day the same way cadence does.
func RRuleOption(def model.RecurringTaskDefinition) rrule.ROption {
	rule := def.Rule
	start := icsTime(def.NextDueDate, rule)
	opt := rrule.ROption{
		Interval: rule.Interval(),
		Dtstart:  start,
		Wkst:     rrule.SU,
	}
	switch rule.Frequency() {
	case model.FrequencyDaily:
		opt.Freq = rrule.DAILY
	case model.FrequencyWeekly:
		opt.Freq = rrule.WEEKLY
		for _, w := range rule.DaysOfWeek() {
			opt.Byweekday = append(opt.Byweekday, rruleWeekdays[w-1])
		}
	case model.FrequencyMonthly:
		opt.Freq = rrule.MONTHLY
		day := rule.DayOfMonth().OrElse(start.Day())
		opt.Bymonthday, opt.Bysetpos = clampedMonthDays(day)
	case model.FrequencyYearly:
		opt.Freq = rrule.YEARLY
		opt.Bymonth = []int{int(start.Month())}
		opt.Bymonthday, opt.Bysetpos = clampedMonthDays(start.Day())
	}
	if end, ok := def.EndDate.Get(); ok {
		// UNTIL is inclusive, the end date is not.
		opt.Until = end.Add(-time.Second).UTC()
	}
	return opt
}

func clampedMonthDays(day int) ([]int, []int) {
	if day <= 28 {
		return []int{day}, nil
	}
	days := make([]int, 0, day-27)
	for d := 28; d <= day; d++ {
		days = append(days, d)
	}
	return days, []int{-1}
}

// icsTime expresses t in the rule's zone, or UTC when the rule follows the
// reference timestamp's zone.
func icsTime(t time.Time, rule model.RecurrenceRule) time.Time {
	if loc := rule.Location(); loc != nil {
		return t.In(loc)
	}
	return t.UTC()
}

// ToDo builds the VTODO for one definition.
func ToDo(def model.RecurringTaskDefinition, now time.Time) *ical.Component {
	todo := ical.NewComponent(ical.CompToDo)
	todo.Props.SetText(ical.PropUID, def.ID+"@cadence")
	todo.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
	todo.Props.SetDateTime(ical.PropCreated, def.CreatedAt.UTC())
	todo.Props.SetText(ical.PropSummary, def.Title)
	if def.Description != "" {
		todo.Props.SetText(ical.PropDescription, def.Description)
	}
	if def.Category != "" {
		todo.Props.SetText(ical.PropCategories, def.Category)
	}
	prio := ical.NewProp(ical.PropPriority)
	prio.Value = strconv.Itoa(icsPriority(def.Priority))
	todo.Props.Set(prio)

	due := icsTime(def.NextDueDate, def.Rule)
	start := due
	if def.EstimatedDuration > 0 {
		start = due.Add(-def.EstimatedDuration)
	}
	todo.Props.SetDateTime(ical.PropDateTimeStart, start)
	todo.Props.SetDateTime(ical.PropDue, due)

	opt := RRuleOption(def)
	rr := ical.NewProp(ical.PropRecurrenceRule)
	rr.Value = opt.RRuleString()
	todo.Props.Set(rr)

	status := "NEEDS-ACTION"
	if !def.IsActive || def.Ended() {
		status = "CANCELLED"
	}
	todo.Props.SetText(ical.PropStatus, status)
	return todo
}

func icsPriority(p model.Priority) int {
	switch p {
	case model.PriorityCritical:
		return 1
	case model.PriorityHigh:
		return 3
	case model.PriorityMedium:
		return 5
	default:
		return 9
	}
}

// EncodeICS writes one VCALENDAR with a VTODO per definition.
func EncodeICS(w io.Writer, defs []model.RecurringTaskDefinition, now time.Time) error {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropProductID, productID)
	cal.Props.SetText(ical.PropVersion, "2.0")
	for _, def := range defs {
		cal.Children = append(cal.Children, ToDo(def, now))
	}
	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("exchange: encode ics: %w", err)
	}
	return nil
}

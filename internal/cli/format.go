package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/samber/mo"

	"github.com/sandeepkv93/cadence/internal/model"
	"github.com/sandeepkv93/cadence/internal/views"
)

const timeLayout = "2006-01-02 15:04 MST"

var whenLayouts = []string{"2006-01-02T15:04", "2006-01-02 15:04", "2006-01-02"}

func formatTime(t time.Time) string {
	return t.Format(timeLayout)
}

// parseOptionalWhen reads RFC 3339 or a local date with optional time in loc.
func parseOptionalWhen(raw string, loc *time.Location) (mo.Option[time.Time], error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return mo.None[time.Time](), nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return mo.Some(t.In(loc)), nil
	}
	for _, layout := range whenLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return mo.Some(t), nil
		}
	}
	return mo.None[time.Time](), fmt.Errorf("cannot parse %q, expected 2006-01-02, 2006-01-02 15:04 or RFC 3339", raw)
}

func definitionState(d model.RecurringTaskDefinition) string {
	switch {
	case d.Ended():
		return "ended"
	case !d.IsActive:
		return "paused"
	default:
		return "active"
	}
}

func detailOf(def model.RecurringTaskDefinition, upcoming []time.Time, instances int) views.DefinitionDetail {
	d := views.DefinitionDetail{
		ID:          def.ID,
		Title:       def.Title,
		Description: def.Description,
		Rule:        def.Rule.String(),
		Priority:    string(def.Priority),
		Category:    def.Category,
		State:       definitionState(def),
		NextDue:     formatTime(def.NextDueDate),
		Instances:   instances,
	}
	if def.EstimatedDuration > 0 {
		d.Estimate = def.EstimatedDuration.String()
	}
	if t, ok := def.LastGeneratedAt.Get(); ok {
		d.LastGenerated = formatTime(t)
	}
	if t, ok := def.EndDate.Get(); ok {
		d.Ends = formatTime(t)
	}
	for _, t := range upcoming {
		d.Upcoming = append(d.Upcoming, formatTime(t))
	}
	return d
}

var headerCell = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var bodyCell = lipgloss.NewStyle().Padding(0, 1)

func renderTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerCell
			}
			return bodyCell
		}).
		String()
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), b)
}

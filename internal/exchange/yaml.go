// Package exchange moves recurring definitions in and out of cadence: YAML
// documents for backup and editing, iCalendar for calendar clients.
package exchange

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"
	"gopkg.in/yaml.v3"

	"github.com/sandeepkv93/cadence/internal/model"
)

var ErrInvalidRecord = errors.New("exchange: invalid record")

type Document struct {
	Definitions []DefinitionRecord `yaml:"definitions"`
}

type DefinitionRecord struct {
	ID                   string     `yaml:"id,omitempty"`
	Title                string     `yaml:"title"`
	Description          string     `yaml:"description,omitempty"`
	Category             string     `yaml:"category,omitempty"`
	Priority             string     `yaml:"priority,omitempty"`
	EstimatedDuration    string     `yaml:"estimated_duration,omitempty"`
	Active               *bool      `yaml:"active,omitempty"`
	NextDue              *time.Time `yaml:"next_due,omitempty"`
	LastGeneratedAt      *time.Time `yaml:"last_generated_at,omitempty"`
	LastDue              *time.Time `yaml:"last_due,omitempty"`
	EndDate              *time.Time `yaml:"end_date,omitempty"`
	CreatedAt            *time.Time `yaml:"created_at,omitempty"`
	GeneratedInstanceIDs []string   `yaml:"generated_instance_ids,omitempty"`
	Rule                 RuleRecord `yaml:"rule"`
}

type RuleRecord struct {
	Type       string `yaml:"type"`
	Interval   int    `yaml:"interval,omitempty"`
	DaysOfWeek []int  `yaml:"days_of_week,omitempty"`
	DayOfMonth *int   `yaml:"day_of_month,omitempty"`
	TimeOfDay  string `yaml:"time_of_day,omitempty"`
	Timezone   string `yaml:"timezone,omitempty"`
}

func ToRecord(def model.RecurringTaskDefinition) DefinitionRecord {
	rule := def.Rule
	rec := DefinitionRecord{
		ID:                   def.ID,
		Title:                def.Title,
		Description:          def.Description,
		Category:             def.Category,
		Priority:             string(def.Priority),
		Active:               mo.Some(def.IsActive).ToPointer(),
		NextDue:              mo.Some(def.NextDueDate).ToPointer(),
		LastGeneratedAt:      def.LastGeneratedAt.ToPointer(),
		LastDue:              def.LastDueDate.ToPointer(),
		EndDate:              def.EndDate.ToPointer(),
		CreatedAt:            mo.Some(def.CreatedAt).ToPointer(),
		GeneratedInstanceIDs: def.GeneratedInstanceIDs,
		Rule: RuleRecord{
			Type:       string(rule.Frequency()),
			Interval:   rule.Interval(),
			DayOfMonth: rule.DayOfMonth().ToPointer(),
			TimeOfDay:  rule.TimeOfDay().String(),
			Timezone:   rule.Timezone(),
		},
	}
	if def.EstimatedDuration > 0 {
		rec.EstimatedDuration = def.EstimatedDuration.String()
	}
	for _, w := range rule.DaysOfWeek() {
		rec.Rule.DaysOfWeek = append(rec.Rule.DaysOfWeek, int(w))
	}
	return rec
}

// FromRecord rebuilds a definition. Hand-written records may leave out id,
// priority, active, created_at and next_due; they get a fresh id, Medium, true,
// now and the first occurrence after now respectively. Timestamps are moved to the
// rule's timezone, or to loc when the rule has none.
func FromRecord(rec DefinitionRecord, loc *time.Location, now time.Time) (model.RecurringTaskDefinition, error) {
	if loc == nil {
		loc = time.Local
	}
	params := model.RuleParams{
		Frequency: model.Frequency(strings.ToLower(strings.TrimSpace(rec.Rule.Type))),
		Interval:  rec.Rule.Interval,
		Timezone:  rec.Rule.Timezone,
	}
	if params.Interval == 0 {
		params.Interval = 1
	}
	for _, d := range rec.Rule.DaysOfWeek {
		params.DaysOfWeek = append(params.DaysOfWeek, model.Weekday(d))
	}
	params.DayOfMonth = mo.PointerToOption(rec.Rule.DayOfMonth)
	if strings.TrimSpace(rec.Rule.TimeOfDay) != "" {
		tod, err := model.ParseTimeOfDay(rec.Rule.TimeOfDay)
		if err != nil {
			return model.RecurringTaskDefinition{}, err
		}
		params.TimeOfDay = tod
	}
	rule, err := model.NewRecurrenceRule(params)
	if err != nil {
		return model.RecurringTaskDefinition{}, err
	}
	if rl := rule.Location(); rl != nil {
		loc = rl
	}
	inZone := func(t *time.Time) mo.Option[time.Time] {
		if t == nil {
			return mo.None[time.Time]()
		}
		return mo.Some(t.In(loc))
	}

	priority := model.PriorityMedium
	if strings.TrimSpace(rec.Priority) != "" {
		if priority, err = model.ParsePriority(rec.Priority); err != nil {
			return model.RecurringTaskDefinition{}, err
		}
	}
	var estimated time.Duration
	if strings.TrimSpace(rec.EstimatedDuration) != "" {
		if estimated, err = time.ParseDuration(rec.EstimatedDuration); err != nil {
			return model.RecurringTaskDefinition{}, fmt.Errorf("%w: estimated_duration %q", ErrInvalidRecord, rec.EstimatedDuration)
		}
	}

	id := strings.TrimSpace(rec.ID)
	if id == "" {
		id = uuid.NewString()
	}
	def := model.RecurringTaskDefinition{
		ID:                   id,
		Title:                strings.TrimSpace(rec.Title),
		Description:          rec.Description,
		Category:             strings.TrimSpace(rec.Category),
		Priority:             priority,
		EstimatedDuration:    estimated,
		Rule:                 rule,
		IsActive:             rec.Active == nil || *rec.Active,
		LastGeneratedAt:      inZone(rec.LastGeneratedAt),
		LastDueDate:          inZone(rec.LastDue),
		EndDate:              inZone(rec.EndDate),
		GeneratedInstanceIDs: rec.GeneratedInstanceIDs,
		CreatedAt:            inZone(rec.CreatedAt).OrElse(now.In(loc)),
		NextDueDate:          inZone(rec.NextDue).OrElse(time.Time{}),
	}
	if def.NextDueDate.IsZero() {
		def.NextDueDate = rule.NextOccurrence(now.In(loc))
	}
	if err := def.Validate(); err != nil {
		return model.RecurringTaskDefinition{}, err
	}
	return def, nil
}

func EncodeYAML(w io.Writer, defs []model.RecurringTaskDefinition) error {
	doc := Document{Definitions: make([]DefinitionRecord, 0, len(defs))}
	for _, def := range defs {
		doc.Definitions = append(doc.Definitions, ToRecord(def))
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("exchange: encode yaml: %w", err)
	}
	return enc.Close()
}

// DecodeYAML parses a document and validates every record. Errors name the
// offending record by position and title.
func DecodeYAML(r io.Reader, loc *time.Location, now time.Time) ([]model.RecurringTaskDefinition, error) {
	var doc Document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return []model.RecurringTaskDefinition{}, nil
		}
		return nil, fmt.Errorf("exchange: decode yaml: %w", err)
	}

	out := make([]model.RecurringTaskDefinition, 0, len(doc.Definitions))
	seen := make(map[string]bool, len(doc.Definitions))
	for i, rec := range doc.Definitions {
		def, err := FromRecord(rec, loc, now)
		if err != nil {
			return nil, fmt.Errorf("definition %d (%q): %w", i+1, rec.Title, err)
		}
		if seen[def.ID] {
			return nil, fmt.Errorf("%w: duplicate id %s", ErrInvalidRecord, def.ID)
		}
		seen[def.ID] = true
		out = append(out, def)
	}
	return out, nil
}

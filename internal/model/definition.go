package model

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/samber/mo"
)

// DefaultLeadTime is how far ahead of its due time an occurrence may be generated.
const DefaultLeadTime = 24 * time.Hour

var ErrInvalidDefinition = errors.New("model: invalid recurring definition")

type DefinitionParams struct {
	Title             string
	Description       string
	Category          string
	Priority          Priority
	EstimatedDuration time.Duration
	Rule              RecurrenceRule
	EndDate           mo.Option[time.Time]
	// FirstDue overrides the first occurrence. When absent the rule is evaluated
	// against the creation time.
	FirstDue mo.Option[time.Time]
}

// RecurringTaskDefinition is the persistent template a recurring task is generated
// from. Methods never mutate the receiver; updates come back as new values.
type RecurringTaskDefinition struct {
	ID                   string
	Title                string
	Description          string
	Category             string
	Priority             Priority
	EstimatedDuration    time.Duration
	Rule                 RecurrenceRule
	IsActive             bool
	NextDueDate          time.Time
	LastGeneratedAt      mo.Option[time.Time]
	LastDueDate          mo.Option[time.Time]
	GeneratedInstanceIDs []string
	EndDate              mo.Option[time.Time]
	CreatedAt            time.Time
}

func NewRecurringTaskDefinition(id string, p DefinitionParams, now time.Time) (RecurringTaskDefinition, error) {
	next := p.FirstDue.OrElse(time.Time{})
	if next.IsZero() && !p.Rule.IsZero() {
		next = p.Rule.NextOccurrence(now)
	}
	def := RecurringTaskDefinition{
		ID:                id,
		Title:             strings.TrimSpace(p.Title),
		Description:       p.Description,
		Category:          strings.TrimSpace(p.Category),
		Priority:          p.Priority,
		EstimatedDuration: p.EstimatedDuration,
		Rule:              p.Rule,
		IsActive:          true,
		NextDueDate:       next,
		EndDate:           p.EndDate,
		CreatedAt:         now,
	}
	if err := def.Validate(); err != nil {
		return RecurringTaskDefinition{}, err
	}
	return def, nil
}

func (d RecurringTaskDefinition) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidDefinition)
	}
	if strings.TrimSpace(d.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidDefinition)
	}
	if !d.Priority.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidPriority, d.Priority)
	}
	if d.EstimatedDuration < 0 {
		return fmt.Errorf("%w: negative estimated duration", ErrInvalidDefinition)
	}
	if d.EstimatedDuration%time.Second != 0 {
		return fmt.Errorf("%w: estimated duration %s has a sub-second part", ErrInvalidDefinition, d.EstimatedDuration)
	}
	if d.Rule.IsZero() {
		return fmt.Errorf("%w: recurrence rule is required", ErrInvalidDefinition)
	}
	if d.NextDueDate.IsZero() {
		return fmt.Errorf("%w: next due date is required", ErrInvalidDefinition)
	}
	if d.CreatedAt.IsZero() {
		return fmt.Errorf("%w: created_at is required", ErrInvalidDefinition)
	}
	return nil
}

func (d RecurringTaskDefinition) ShouldGenerate(now time.Time) bool {
	return d.ShouldGenerateWithin(now, DefaultLeadTime)
}

// ShouldGenerateWithin reports whether the occurrence at NextDueDate is ready to be
// materialized: the definition is active and not past its end date, the occurrence
// is due within lead of now, and it was not generated already.
func (d RecurringTaskDefinition) ShouldGenerateWithin(now time.Time, lead time.Duration) bool {
	if !d.IsActive || d.Rule.IsZero() {
		return false
	}
	if end, ok := d.EndDate.Get(); ok && !d.NextDueDate.Before(end) {
		return false
	}
	if d.NextDueDate.After(now.Add(lead)) {
		return false
	}
	if last, ok := d.LastDueDate.Get(); ok && !d.NextDueDate.After(last) {
		return false
	}
	return true
}

// Generate materializes the occurrence at NextDueDate. The caller checks
// ShouldGenerate first and persists both return values together.
func (d RecurringTaskDefinition) Generate(now time.Time, instanceID string) (TaskInstance, RecurringTaskDefinition) {
	inst := TaskInstance{
		ID:                instanceID,
		DefinitionID:      d.ID,
		Title:             d.Title,
		Description:       d.Description,
		Category:          d.Category,
		Priority:          d.Priority,
		EstimatedDuration: d.EstimatedDuration,
		State:             TaskStatePlanned,
		Deadline:          d.NextDueDate,
		CreatedAt:         now,
	}

	next := d
	next.GeneratedInstanceIDs = append(slices.Clone(d.GeneratedInstanceIDs), instanceID)
	next.LastGeneratedAt = mo.Some(now)
	next.LastDueDate = mo.Some(d.NextDueDate)
	next.NextDueDate = d.Rule.NextOccurrence(d.NextDueDate)
	return inst, next
}

// ReadyAt is the earliest instant at which the pending occurrence can be generated.
func (d RecurringTaskDefinition) ReadyAt(lead time.Duration) time.Time {
	return d.NextDueDate.Add(-lead)
}

// Ended reports whether no further occurrence will ever be generated.
func (d RecurringTaskDefinition) Ended() bool {
	end, ok := d.EndDate.Get()
	return ok && !d.NextDueDate.Before(end)
}

func (d RecurringTaskDefinition) WithActive(active bool) RecurringTaskDefinition {
	d.IsActive = active
	return d
}

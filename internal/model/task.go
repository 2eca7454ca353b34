package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidState    = errors.New("model: invalid task state")
	ErrInvalidPriority = errors.New("model: invalid task priority")
)

type TaskState string

// Instances are generated Planned and only ever move to Done.
const (
	TaskStatePlanned TaskState = "Planned"
	TaskStateDone    TaskState = "Done"
)

func (s TaskState) IsValid() bool {
	switch s {
	case TaskStatePlanned, TaskStateDone:
		return true
	default:
		return false
	}
}

type Priority string

const (
	PriorityLow      Priority = "Low"
	PriorityMedium   Priority = "Medium"
	PriorityHigh     Priority = "High"
	PriorityCritical Priority = "Critical"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	default:
		return false
	}
}

// ParsePriority matches priority names case-insensitively.
func ParsePriority(raw string) (Priority, error) {
	for _, p := range []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical} {
		if strings.EqualFold(strings.TrimSpace(raw), string(p)) {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPriority, raw)
}

// TaskInstance is a concrete task materialized from a recurring definition. Once
// generated it is independent of the definition.
type TaskInstance struct {
	ID                string
	DefinitionID      string
	Title             string
	Description       string
	Category          string
	Priority          Priority
	EstimatedDuration time.Duration
	State             TaskState
	Deadline          time.Time
	CreatedAt         time.Time
	CompletedAt       *time.Time
}

func (t TaskInstance) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return errors.New("model: task id is required")
	}
	if strings.TrimSpace(t.Title) == "" {
		return errors.New("model: task title is required")
	}
	if !t.State.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidState, t.State)
	}
	if !t.Priority.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidPriority, t.Priority)
	}
	if t.EstimatedDuration < 0 || t.EstimatedDuration%time.Second != 0 {
		return fmt.Errorf("model: estimated duration %s must be whole non-negative seconds", t.EstimatedDuration)
	}
	if t.Deadline.IsZero() {
		return errors.New("model: task deadline is required")
	}
	if t.CreatedAt.IsZero() {
		return errors.New("model: task created_at is required")
	}
	if t.State == TaskStateDone && t.CompletedAt == nil {
		return errors.New("model: completed_at is required when task state is Done")
	}
	if t.State != TaskStateDone && t.CompletedAt != nil {
		return errors.New("model: completed_at must be nil when task state is not Done")
	}
	return nil
}

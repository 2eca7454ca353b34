package model

import (
	"errors"
	"testing"
	"time"

	"github.com/samber/mo"
)

func dailyDefinition(t *testing.T, now time.Time) RecurringTaskDefinition {
	t.Helper()
	rule := mustRule(t, RuleParams{Frequency: FrequencyDaily, Interval: 1, TimeOfDay: TimeOfDay{Hour: 9}})
	def, err := NewRecurringTaskDefinition("def-1", DefinitionParams{
		Title:             "Water plants",
		Description:       "balcony and kitchen",
		Category:          "home",
		Priority:          PriorityMedium,
		EstimatedDuration: 15 * time.Minute,
		Rule:              rule,
	}, now)
	if err != nil {
		t.Fatalf("new definition: %v", err)
	}
	return def
}

func TestNewDefinitionEvaluatesRuleAtCreation(t *testing.T) {
	now := at(2025, 1, 1, 15, 0)
	def := dailyDefinition(t, now)
	if got := def.NextDueDate.Format(layout); got != "2025-01-02 09:00" {
		t.Fatalf("unexpected first due date: %s", got)
	}
	if !def.IsActive || def.LastGeneratedAt.IsPresent() || len(def.GeneratedInstanceIDs) != 0 {
		t.Fatalf("unexpected initial state: %+v", def)
	}
	if !def.CreatedAt.Equal(now) {
		t.Fatalf("unexpected created_at: %s", def.CreatedAt)
	}
}

func TestNewDefinitionFirstDueOverride(t *testing.T) {
	rule := mustRule(t, RuleParams{Frequency: FrequencyDaily, Interval: 1, TimeOfDay: TimeOfDay{Hour: 9}})
	first := at(2025, 1, 1, 9, 0)
	def, err := NewRecurringTaskDefinition("def-2", DefinitionParams{
		Title:    "Standup",
		Priority: PriorityHigh,
		Rule:     rule,
		FirstDue: mo.Some(first),
	}, at(2025, 1, 1, 8, 0))
	if err != nil {
		t.Fatalf("new definition: %v", err)
	}
	if !def.NextDueDate.Equal(first) {
		t.Fatalf("expected first due override, got %s", def.NextDueDate)
	}
}

func TestNewDefinitionValidation(t *testing.T) {
	rule := mustRule(t, RuleParams{Frequency: FrequencyDaily, Interval: 1})
	now := at(2025, 1, 1, 0, 0)

	if _, err := NewRecurringTaskDefinition("", DefinitionParams{Title: "x", Priority: PriorityLow, Rule: rule}, now); !errors.Is(err, ErrInvalidDefinition) {
		t.Fatalf("expected missing id error, got %v", err)
	}
	if _, err := NewRecurringTaskDefinition("d", DefinitionParams{Title: "  ", Priority: PriorityLow, Rule: rule}, now); !errors.Is(err, ErrInvalidDefinition) {
		t.Fatalf("expected missing title error, got %v", err)
	}
	if _, err := NewRecurringTaskDefinition("d", DefinitionParams{Title: "x", Priority: "Urgent", Rule: rule}, now); !errors.Is(err, ErrInvalidPriority) {
		t.Fatalf("expected priority error, got %v", err)
	}
	if _, err := NewRecurringTaskDefinition("d", DefinitionParams{Title: "x", Priority: PriorityLow}, now); !errors.Is(err, ErrInvalidDefinition) {
		t.Fatalf("expected missing rule error, got %v", err)
	}
	sub := DefinitionParams{Title: "x", Priority: PriorityLow, Rule: rule, EstimatedDuration: 1500 * time.Millisecond}
	if _, err := NewRecurringTaskDefinition("d", sub, now); !errors.Is(err, ErrInvalidDefinition) {
		t.Fatalf("expected sub-second estimate to be rejected, got %v", err)
	}
	sub.EstimatedDuration = 90 * time.Second
	if _, err := NewRecurringTaskDefinition("d", sub, now); err != nil {
		t.Fatalf("whole-second estimate rejected: %v", err)
	}
}

func TestShouldGenerateInactive(t *testing.T) {
	now := at(2025, 1, 1, 15, 0)
	def := dailyDefinition(t, now).WithActive(false)
	for _, probe := range []time.Time{now, now.Add(48 * time.Hour), now.Add(365 * 24 * time.Hour)} {
		if def.ShouldGenerate(probe) {
			t.Fatalf("inactive definition must not generate at %s", probe)
		}
	}
}

func TestShouldGenerateLeadWindow(t *testing.T) {
	now := at(2025, 1, 1, 15, 0)
	def := dailyDefinition(t, now) // due 2025-01-02 09:00

	if !def.ShouldGenerate(now) {
		t.Fatal("expected generation within one day of the due time")
	}
	if def.ShouldGenerate(at(2025, 1, 1, 8, 59)) {
		t.Fatal("expected no generation more than one day ahead")
	}
	if !def.ShouldGenerate(at(2025, 1, 1, 9, 0)) {
		t.Fatal("expected generation exactly one day ahead")
	}
	if def.ShouldGenerateWithin(now, time.Hour) {
		t.Fatal("expected a one hour lead to hold the occurrence back")
	}
}

func TestGenerateAdvancesDefinition(t *testing.T) {
	now := at(2025, 1, 1, 15, 0)
	def := dailyDefinition(t, now)

	inst, next := def.Generate(now, "inst-1")
	if inst.ID != "inst-1" || inst.DefinitionID != def.ID {
		t.Fatalf("unexpected instance identity: %+v", inst)
	}
	if inst.Title != def.Title || inst.Description != def.Description || inst.Category != def.Category ||
		inst.Priority != def.Priority || inst.EstimatedDuration != def.EstimatedDuration {
		t.Fatalf("template fields not copied: %+v", inst)
	}
	if !inst.Deadline.Equal(def.NextDueDate) || inst.State != TaskStatePlanned || !inst.CreatedAt.Equal(now) {
		t.Fatalf("unexpected instance schedule: %+v", inst)
	}
	if err := inst.Validate(); err != nil {
		t.Fatalf("generated instance invalid: %v", err)
	}

	if got := next.NextDueDate.Format(layout); got != "2025-01-03 09:00" {
		t.Fatalf("expected cadence from previous due date, got %s", got)
	}
	if last, ok := next.LastGeneratedAt.Get(); !ok || !last.Equal(now) {
		t.Fatalf("unexpected last generated at: %v", next.LastGeneratedAt)
	}
	if len(next.GeneratedInstanceIDs) != 1 || next.GeneratedInstanceIDs[0] != "inst-1" {
		t.Fatalf("unexpected instance ids: %v", next.GeneratedInstanceIDs)
	}

	if next.ShouldGenerate(now) {
		t.Fatal("expected no generation right after generate")
	}
	if !next.ShouldGenerate(at(2025, 1, 2, 9, 0)) {
		t.Fatal("expected generation once the next occurrence enters the window")
	}
}

func TestGenerateDoesNotMutateReceiver(t *testing.T) {
	now := at(2025, 1, 1, 15, 0)
	def := dailyDefinition(t, now)
	def.GeneratedInstanceIDs = make([]string, 1, 8)
	def.GeneratedInstanceIDs[0] = "older"
	due := def.NextDueDate

	_, first := def.Generate(now, "a")
	_, second := def.Generate(now, "b")

	if len(def.GeneratedInstanceIDs) != 1 || !def.NextDueDate.Equal(due) || def.LastGeneratedAt.IsPresent() {
		t.Fatalf("receiver mutated: %+v", def)
	}
	if first.GeneratedInstanceIDs[1] != "a" || second.GeneratedInstanceIDs[1] != "b" {
		t.Fatalf("generated copies share backing storage: %v %v", first.GeneratedInstanceIDs, second.GeneratedInstanceIDs)
	}
}

func TestGenerateKeepsCadenceWhenLate(t *testing.T) {
	def := dailyDefinition(t, at(2025, 1, 1, 15, 0))
	late := at(2025, 1, 5, 20, 0)

	_, next := def.Generate(late, "inst-1")
	if got := next.NextDueDate.Format(layout); got != "2025-01-03 09:00" {
		t.Fatalf("expected advance from due date, not from now: %s", got)
	}
	if !next.ShouldGenerate(late) {
		t.Fatal("expected overdue occurrence to remain ready for catch-up")
	}
}

func TestShouldGenerateHonorsEndDate(t *testing.T) {
	rule := mustRule(t, RuleParams{Frequency: FrequencyDaily, Interval: 1, TimeOfDay: TimeOfDay{Hour: 9}})
	now := at(2025, 1, 1, 15, 0)
	def, err := NewRecurringTaskDefinition("def-end", DefinitionParams{
		Title:    "Course homework",
		Priority: PriorityLow,
		Rule:     rule,
		EndDate:  mo.Some(at(2025, 1, 3, 9, 0)),
	}, now)
	if err != nil {
		t.Fatalf("new definition: %v", err)
	}

	if !def.ShouldGenerate(now) {
		t.Fatal("expected first occurrence before end date")
	}
	_, def = def.Generate(now, "i1")
	probe := at(2025, 1, 10, 0, 0)
	if def.ShouldGenerate(probe) {
		t.Fatalf("expected no generation at or after end date, next due %s", def.NextDueDate)
	}
	if !def.Ended() {
		t.Fatal("expected definition to report ended")
	}
}

func TestShouldGenerateGuardsStaleRecord(t *testing.T) {
	now := at(2025, 1, 1, 15, 0)
	def := dailyDefinition(t, now)
	_, next := def.Generate(now, "inst-1")

	stale := next
	stale.NextDueDate = def.NextDueDate
	if stale.ShouldGenerate(now) {
		t.Fatal("expected an already generated occurrence to be refused")
	}
}

func TestReadyAt(t *testing.T) {
	def := dailyDefinition(t, at(2025, 1, 1, 15, 0))
	if got := def.ReadyAt(DefaultLeadTime).Format(layout); got != "2025-01-01 09:00" {
		t.Fatalf("unexpected ready time: %s", got)
	}
}

package scheduler

import (
	"testing"
	"time"
)

func TestEngineEmitsInTriggerOrder(t *testing.T) {
	engine := NewEngine(8)
	engine.Start()
	defer engine.Stop()

	now := time.Now().UTC()
	if err := engine.Schedule(WakeEvent{DefinitionID: "later", At: now.Add(80 * time.Millisecond)}); err != nil {
		t.Fatalf("schedule later: %v", err)
	}
	if err := engine.Schedule(WakeEvent{DefinitionID: "sooner", At: now.Add(20 * time.Millisecond)}); err != nil {
		t.Fatalf("schedule sooner: %v", err)
	}

	first := waitEvent(t, engine.C(), time.Second)
	second := waitEvent(t, engine.C(), time.Second)
	if first.DefinitionID != "sooner" || second.DefinitionID != "later" {
		t.Fatalf("unexpected order: first=%s second=%s", first.DefinitionID, second.DefinitionID)
	}
}

func TestEnginePastEventsFireImmediately(t *testing.T) {
	engine := NewEngine(1)
	engine.Start()
	defer engine.Stop()

	if err := engine.Schedule(WakeEvent{DefinitionID: "overdue", At: time.Now().Add(-time.Hour)}); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	ev := waitEvent(t, engine.C(), 500*time.Millisecond)
	if ev.DefinitionID != "overdue" {
		t.Fatalf("unexpected event: %#v", ev)
	}
}

func TestEngineReplaceDiscardsPending(t *testing.T) {
	engine := NewEngine(4)
	engine.Start()
	defer engine.Stop()

	now := time.Now().UTC()
	if err := engine.Schedule(WakeEvent{DefinitionID: "stale", At: now.Add(30 * time.Millisecond)}); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if err := engine.Replace([]WakeEvent{
		{DefinitionID: "b", At: now.Add(60 * time.Millisecond)},
		{DefinitionID: "a", At: now.Add(40 * time.Millisecond)},
	}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if engine.Pending() != 2 {
		t.Fatalf("expected 2 pending events, got %d", engine.Pending())
	}

	first := waitEvent(t, engine.C(), time.Second)
	second := waitEvent(t, engine.C(), time.Second)
	if first.DefinitionID != "a" || second.DefinitionID != "b" {
		t.Fatalf("unexpected events after replace: %s %s", first.DefinitionID, second.DefinitionID)
	}
	select {
	case ev := <-engine.C():
		t.Fatalf("replaced event still fired: %#v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEngineNonBlockingDropsWhenConsumerIsSlow(t *testing.T) {
	engine := NewEngine(1)
	engine.Start()
	defer engine.Stop()

	now := time.Now().UTC()
	for i, id := range []string{"a", "b", "c", "d"} {
		if err := engine.Schedule(WakeEvent{
			DefinitionID: id,
			At:           now.Add(time.Duration(i+1) * 25 * time.Millisecond),
		}); err != nil {
			t.Fatalf("schedule event: %v", err)
		}
	}

	time.Sleep(250 * time.Millisecond)
	if engine.Dropped() == 0 {
		t.Fatalf("expected dropped events > 0, got %d", engine.Dropped())
	}
}

func TestEngineScheduleMovesPendingWake(t *testing.T) {
	engine := NewEngine(4)
	engine.Start()
	defer engine.Stop()

	now := time.Now().UTC()
	if err := engine.Schedule(WakeEvent{DefinitionID: "def", At: now.Add(time.Hour)}); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if err := engine.Schedule(WakeEvent{DefinitionID: "def", At: now.Add(20 * time.Millisecond)}); err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if engine.Pending() != 1 {
		t.Fatalf("expected one pending wake per definition, got %d", engine.Pending())
	}

	ev := waitEvent(t, engine.C(), time.Second)
	if ev.DefinitionID != "def" {
		t.Fatalf("unexpected event: %#v", ev)
	}
	if engine.Pending() != 0 {
		t.Fatalf("expected no pending wakes, got %d", engine.Pending())
	}
}

func TestEngineCoalescesSimultaneousWakes(t *testing.T) {
	engine := NewEngine(4)
	at := time.Now().UTC().Add(-time.Minute)
	if err := engine.Replace([]WakeEvent{
		{DefinitionID: "b", At: at.Add(time.Second)},
		{DefinitionID: "a", At: at},
		{At: at.Add(2 * time.Second)},
	}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	engine.Start()
	defer engine.Stop()

	ev := waitEvent(t, engine.C(), time.Second)
	if ev.DefinitionID != "a" || !ev.At.Equal(at) {
		t.Fatalf("expected earliest wake first, got %#v", ev)
	}
	if len(ev.Covers) != 2 || ev.Covers[0] != "a" || ev.Covers[1] != "b" {
		t.Fatalf("unexpected covers: %v", ev.Covers)
	}
	if engine.Coalesced() != 2 {
		t.Fatalf("expected 2 coalesced wakes, got %d", engine.Coalesced())
	}
	select {
	case extra := <-engine.C():
		t.Fatalf("coalesced wake fired again: %#v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestScheduleValidatesTriggerTime(t *testing.T) {
	engine := NewEngine(1)
	if err := engine.Schedule(WakeEvent{DefinitionID: "bad"}); err != ErrInvalidTriggerTime {
		t.Fatalf("expected ErrInvalidTriggerTime, got %v", err)
	}
	if err := engine.Replace([]WakeEvent{{DefinitionID: "bad"}}); err != ErrInvalidTriggerTime {
		t.Fatalf("expected ErrInvalidTriggerTime from replace, got %v", err)
	}
}

func TestScheduleAfterStop(t *testing.T) {
	engine := NewEngine(1)
	engine.Start()
	engine.Stop()
	if err := engine.Schedule(WakeEvent{At: time.Now()}); err != ErrEngineStopped {
		t.Fatalf("expected ErrEngineStopped, got %v", err)
	}
}

func waitEvent(t *testing.T, ch <-chan WakeEvent, timeout time.Duration) WakeEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for event")
		return WakeEvent{}
	}
}

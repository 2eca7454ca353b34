package scheduler

import (
	"container/heap"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrInvalidTriggerTime = errors.New("scheduler: invalid trigger time")
	ErrEngineStopped      = errors.New("scheduler: engine stopped")
)

// WakeEvent asks for a generation pass at At. DefinitionID names the definition
// whose generation window opens then; an empty id is an anonymous wake such as
// a retry.
type WakeEvent struct {
	DefinitionID string
	At           time.Time
	// Covers lists the definitions of every wake folded into this one when
	// several came due together. Set by the engine on emitted events only.
	Covers []string
}

type wake struct {
	ev    WakeEvent
	index int
}

// wakeQueue is a min-heap on At that tracks positions so a definition's pending
// wake can be moved in place.
type wakeQueue []*wake

func (q wakeQueue) Len() int { return len(q) }

func (q wakeQueue) Less(i, j int) bool { return q[i].ev.At.Before(q[j].ev.At) }

func (q wakeQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *wakeQueue) Push(x any) {
	w := x.(*wake)
	w.index = len(*q)
	*q = append(*q, w)
}

func (q *wakeQueue) Pop() any {
	old := *q
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	w.index = -1
	*q = old[:n-1]
	return w
}

// Engine holds at most one pending wake per definition and emits on C when wakes
// come due. Wakes due at the same time leave as a single event, since one
// generation pass serves all of them. Sends never block; an event that finds the
// channel full is counted in Dropped.
type Engine struct {
	mu        sync.Mutex
	queue     wakeQueue
	byID      map[string]*wake
	out       chan WakeEvent
	kick      chan struct{}
	stopCh    chan struct{}
	doneCh    chan struct{}
	started   bool
	stopped   bool
	dropped   atomic.Uint64
	coalesced atomic.Uint64
}

func NewEngine(bufferSize int) *Engine {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &Engine{
		byID:   make(map[string]*wake),
		out:    make(chan WakeEvent, bufferSize),
		kick:   make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

func (e *Engine) C() <-chan WakeEvent {
	return e.out
}

func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return
	}
	e.started = true
	go e.loop()
}

// Stop ends the loop and closes C. Pending wakes are discarded.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.started || e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	close(e.stopCh)
	e.mu.Unlock()
	<-e.doneCh
}

// Schedule adds a wake. A definition that already has a pending wake has it
// moved to ev.At instead.
func (e *Engine) Schedule(ev WakeEvent) error {
	if ev.At.IsZero() {
		return ErrInvalidTriggerTime
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return ErrEngineStopped
	}
	e.put(ev)
	e.poke()
	return nil
}

// Replace discards every pending wake and schedules events instead.
func (e *Engine) Replace(events []WakeEvent) error {
	for _, ev := range events {
		if ev.At.IsZero() {
			return ErrInvalidTriggerTime
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return ErrEngineStopped
	}
	e.queue = e.queue[:0]
	clear(e.byID)
	for _, ev := range events {
		e.put(ev)
	}
	e.poke()
	return nil
}

// put must be called with mu held.
func (e *Engine) put(ev WakeEvent) {
	ev.Covers = nil
	if ev.DefinitionID != "" {
		if w, ok := e.byID[ev.DefinitionID]; ok {
			w.ev = ev
			heap.Fix(&e.queue, w.index)
			return
		}
	}
	w := &wake{ev: ev}
	heap.Push(&e.queue, w)
	if ev.DefinitionID != "" {
		e.byID[ev.DefinitionID] = w
	}
}

func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

func (e *Engine) Dropped() uint64 { return e.dropped.Load() }

// Coalesced counts wakes that were folded into another event.
func (e *Engine) Coalesced() uint64 { return e.coalesced.Load() }

func (e *Engine) loop() {
	defer close(e.doneCh)
	defer close(e.out)

	timer := time.NewTimer(time.Hour)
	stopTimer(timer)
	defer timer.Stop()

	for {
		next, ok := e.earliest()
		if !ok {
			select {
			case <-e.kick:
				continue
			case <-e.stopCh:
				return
			}
		}

		stopTimer(timer)
		timer.Reset(max(time.Until(next), 0))

		select {
		case <-timer.C:
			ev, ok := e.takeDue(time.Now())
			if !ok {
				continue
			}
			select {
			case e.out <- ev:
			default:
				e.dropped.Add(1)
			}
		case <-e.kick:
		case <-e.stopCh:
			return
		}
	}
}

func (e *Engine) poke() {
	select {
	case e.kick <- struct{}{}:
	default:
	}
}

func (e *Engine) earliest() (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queue) == 0 {
		return time.Time{}, false
	}
	return e.queue[0].ev.At, true
}

// takeDue pops every wake due at now and folds them into the earliest one.
func (e *Engine) takeDue(now time.Time) (WakeEvent, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var (
		out   WakeEvent
		found bool
	)
	for len(e.queue) > 0 && !e.queue[0].ev.At.After(now) {
		w := heap.Pop(&e.queue).(*wake)
		if w.ev.DefinitionID != "" {
			delete(e.byID, w.ev.DefinitionID)
			out.Covers = append(out.Covers, w.ev.DefinitionID)
		}
		if !found {
			out.DefinitionID, out.At = w.ev.DefinitionID, w.ev.At
			found = true
			continue
		}
		e.coalesced.Add(1)
	}
	return out, found
}

func stopTimer(timer *time.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
}

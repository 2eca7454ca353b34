package generator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sandeepkv93/cadence/internal/model"
)

// DefaultMaxCatchUp bounds how many occurrences one definition may produce in a single pass.
const DefaultMaxCatchUp = 30

var ErrPersistence = errors.New("generator: persistence failure")

// Store is the persistence port the driver needs. CommitGeneration must apply the
// definition updates and the new instances atomically.
type Store interface {
	LoadRecurringDefinitions(ctx context.Context) ([]model.RecurringTaskDefinition, error)
	CommitGeneration(ctx context.Context, defs []model.RecurringTaskDefinition, instances []model.TaskInstance) error
}

type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock.
var SystemClock Clock = ClockFunc(time.Now)

type IDFunc func() string

// Listener is notified once per successful pass with the instances it committed.
type Listener interface {
	InstancesGenerated(ctx context.Context, instances []model.TaskInstance)
}

type ListenerFunc func(ctx context.Context, instances []model.TaskInstance)

func (f ListenerFunc) InstancesGenerated(ctx context.Context, instances []model.TaskInstance) {
	f(ctx, instances)
}

type Options struct {
	MaxCatchUp int
	LeadTime   time.Duration
	Clock      Clock
	NewID      IDFunc
	Logger     *slog.Logger
	Listeners  []Listener
}

// Report describes the outcome of one pass.
type Report struct {
	Now       time.Time
	Generated []model.TaskInstance
	Updated   []model.RecurringTaskDefinition
	// Capped lists definitions that still had ready occurrences when the catch-up
	// limit stopped them. The backlog drains on later passes.
	Capped []string
}

func (r Report) Empty() bool {
	return len(r.Generated) == 0
}

type Driver struct {
	mu         sync.Mutex
	store      Store
	clock      Clock
	newID      IDFunc
	log        *slog.Logger
	maxCatchUp int
	lead       time.Duration
	listeners  []Listener
}

func NewDriver(store Store, opts Options) *Driver {
	if opts.MaxCatchUp <= 0 {
		opts.MaxCatchUp = DefaultMaxCatchUp
	}
	if opts.LeadTime < 0 {
		opts.LeadTime = 0
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Driver{
		store:      store,
		clock:      opts.Clock,
		newID:      opts.NewID,
		log:        opts.Logger,
		maxCatchUp: opts.MaxCatchUp,
		lead:       opts.LeadTime,
		listeners:  append([]Listener(nil), opts.Listeners...),
	}
}

func (d *Driver) LeadTime() time.Duration { return d.lead }

func (d *Driver) Now() time.Time { return d.clock.Now() }

// Subscribe adds a listener. Listeners run inside the pass and must not call Run.
func (d *Driver) Subscribe(l Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, l)
}

// Exclusive runs fn while no pass is in progress. Definition edits go through it
// so a pass cannot commit between an edit's read and its write. fn must not call
// Run or Exclusive.
func (d *Driver) Exclusive(ctx context.Context, fn func(ctx context.Context) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}

// Run performs one generation pass. Passes are serialized. Nothing is notified and
// nothing is considered generated unless the store commit succeeds.
func (d *Driver) Run(ctx context.Context) (Report, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clock.Now()
	report := Report{Now: now}

	defs, err := d.store.LoadRecurringDefinitions(ctx)
	if err != nil {
		d.log.Error("load recurring definitions", "error", err)
		return report, fmt.Errorf("%w: load definitions: %w", ErrPersistence, err)
	}

	for _, def := range defs {
		cur := def
		n := 0
		for n < d.maxCatchUp && cur.ShouldGenerateWithin(now, d.lead) {
			var inst model.TaskInstance
			inst, cur = cur.Generate(now, d.newID())
			report.Generated = append(report.Generated, inst)
			n++
		}
		if n == 0 {
			continue
		}
		report.Updated = append(report.Updated, cur)
		if cur.ShouldGenerateWithin(now, d.lead) {
			report.Capped = append(report.Capped, cur.ID)
			d.log.Warn("catch-up limit reached", "definition", cur.ID, "generated", n, "next_due", cur.NextDueDate)
		}
	}

	if report.Empty() {
		d.log.Debug("nothing to generate", "definitions", len(defs))
		return report, nil
	}

	if err := d.store.CommitGeneration(ctx, report.Updated, report.Generated); err != nil {
		d.log.Error("commit generation", "error", err, "instances", len(report.Generated))
		return Report{Now: now}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	d.log.Info("generated instances", "instances", len(report.Generated), "definitions", len(report.Updated))
	for _, l := range d.listeners {
		l.InstancesGenerated(ctx, report.Generated)
	}
	return report, nil
}

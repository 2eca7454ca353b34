// Package app wires storage, the generation driver and the triggers into the
// operations the CLI and the TUI expose.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/sandeepkv93/cadence/internal/config"
	"github.com/sandeepkv93/cadence/internal/exchange"
	"github.com/sandeepkv93/cadence/internal/generator"
	"github.com/sandeepkv93/cadence/internal/model"
	"github.com/sandeepkv93/cadence/internal/scheduler"
	"github.com/sandeepkv93/cadence/internal/storage"
)

var ErrUnknownFormat = errors.New("app: unknown export format")

type Service struct {
	repo   storage.Repository
	driver *generator.Driver
	engine *scheduler.Engine
	cfg    config.Config
	log    *slog.Logger
	loc    *time.Location
	clock  generator.Clock
	newID  generator.IDFunc
	extra  []generator.Listener
}

type Option func(*Service)

func WithClock(c generator.Clock) Option {
	return func(s *Service) { s.clock = c }
}

func WithIDFunc(f generator.IDFunc) Option {
	return func(s *Service) { s.newID = f }
}

func WithListener(l generator.Listener) Option {
	return func(s *Service) { s.extra = append(s.extra, l) }
}

func New(repo storage.Repository, cfg config.Config, log *slog.Logger, opts ...Option) (*Service, error) {
	if repo == nil {
		return nil, errors.New("app: nil repository")
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Service{
		repo:  repo,
		cfg:   cfg,
		log:   log,
		loc:   loc,
		clock: generator.SystemClock,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}

	listeners := append([]generator.Listener{generator.ListenerFunc(s.logInstances)}, s.extra...)
	s.driver = generator.NewDriver(repo, generator.Options{
		MaxCatchUp: cfg.Generation.MaxCatchUp,
		LeadTime:   cfg.Generation.LeadTime,
		Clock:      s.clock,
		NewID:      s.newID,
		Logger:     log.With("component", "generator"),
		Listeners:  listeners,
	})
	s.engine = scheduler.NewEngine(cfg.Scheduler.Buffer)
	return s, nil
}

func (s *Service) logInstances(_ context.Context, instances []model.TaskInstance) {
	for _, inst := range instances {
		s.log.Info("instance generated", "instance", inst.ID, "definition", inst.DefinitionID,
			"title", inst.Title, "deadline", inst.Deadline)
	}
}

func (s *Service) Location() *time.Location { return s.loc }

func (s *Service) Now() time.Time { return s.clock.Now().In(s.loc) }

// DefaultTimezone is the zone applied to new rules that do not name one.
func (s *Service) DefaultTimezone() string { return s.cfg.Generation.Timezone }

func (s *Service) Add(ctx context.Context, p model.DefinitionParams) (model.RecurringTaskDefinition, error) {
	def, err := model.NewRecurringTaskDefinition(s.newID(), p, s.Now())
	if err != nil {
		return model.RecurringTaskDefinition{}, err
	}
	if err := s.repo.SaveRecurringDefinitions(ctx, []model.RecurringTaskDefinition{def}); err != nil {
		return model.RecurringTaskDefinition{}, fmt.Errorf("save definition: %w", err)
	}
	s.log.Info("definition added", "definition", def.ID, "rule", def.Rule.String(), "next_due", def.NextDueDate)
	return def, nil
}

func (s *Service) Definitions(ctx context.Context, filter storage.DefinitionListFilter) ([]model.RecurringTaskDefinition, error) {
	return s.repo.ListDefinitions(ctx, filter)
}

// Definition resolves id, accepting any unique prefix of a definition id.
func (s *Service) Definition(ctx context.Context, id string) (model.RecurringTaskDefinition, error) {
	id = strings.TrimSpace(id)
	def, err := s.repo.GetDefinition(ctx, id)
	if err == nil || !errors.Is(err, storage.ErrNotFound) || id == "" {
		return def, err
	}
	all, err := s.repo.ListDefinitions(ctx, storage.DefinitionListFilter{})
	if err != nil {
		return model.RecurringTaskDefinition{}, err
	}
	return byPrefix(all, id, func(d model.RecurringTaskDefinition) string { return d.ID })
}

// Instance resolves a task instance the same way Definition does.
func (s *Service) Instance(ctx context.Context, id string) (model.TaskInstance, error) {
	id = strings.TrimSpace(id)
	inst, err := s.repo.GetInstance(ctx, id)
	if err == nil || !errors.Is(err, storage.ErrNotFound) || id == "" {
		return inst, err
	}
	all, err := s.repo.ListInstances(ctx, storage.InstanceListFilter{})
	if err != nil {
		return model.TaskInstance{}, err
	}
	return byPrefix(all, id, func(t model.TaskInstance) string { return t.ID })
}

func byPrefix[T any](items []T, prefix string, id func(T) string) (T, error) {
	var (
		zero  T
		match []T
	)
	for _, it := range items {
		if strings.HasPrefix(id(it), prefix) {
			match = append(match, it)
		}
	}
	switch len(match) {
	case 0:
		return zero, storage.ErrNotFound
	case 1:
		return match[0], nil
	default:
		return zero, fmt.Errorf("app: id prefix %q is ambiguous (%d matches)", prefix, len(match))
	}
}

// Pause deactivates a definition. Like every definition edit it runs between
// generation passes and only touches the columns it owns.
func (s *Service) Pause(ctx context.Context, id string) (model.RecurringTaskDefinition, error) {
	var def model.RecurringTaskDefinition
	err := s.driver.Exclusive(ctx, func(ctx context.Context) error {
		found, err := s.Definition(ctx, id)
		if err != nil {
			return err
		}
		if err := s.repo.SetDefinitionActive(ctx, found.ID, false, mo.None[time.Time]()); err != nil {
			return err
		}
		def = found.WithActive(false)
		return nil
	})
	if err != nil {
		return model.RecurringTaskDefinition{}, err
	}
	s.log.Info("definition paused", "definition", def.ID)
	return def, nil
}

// Resume reactivates a definition. Occurrences that fell due while it was paused
// are skipped rather than caught up.
func (s *Service) Resume(ctx context.Context, id string) (model.RecurringTaskDefinition, error) {
	var (
		def     model.RecurringTaskDefinition
		skipped int
	)
	err := s.driver.Exclusive(ctx, func(ctx context.Context) error {
		found, err := s.Definition(ctx, id)
		if err != nil {
			return err
		}
		now := s.Now()
		for found.NextDueDate.Before(now) {
			found.NextDueDate = found.Rule.NextOccurrence(found.NextDueDate)
			skipped++
		}
		if err := s.repo.SetDefinitionActive(ctx, found.ID, true, mo.Some(found.NextDueDate)); err != nil {
			return err
		}
		def = found.WithActive(true)
		return nil
	})
	if err != nil {
		return model.RecurringTaskDefinition{}, err
	}
	s.log.Info("definition resumed", "definition", def.ID, "skipped", skipped, "next_due", def.NextDueDate)
	return def, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	var deleted string
	err := s.driver.Exclusive(ctx, func(ctx context.Context) error {
		def, err := s.Definition(ctx, id)
		if err != nil {
			return err
		}
		deleted = def.ID
		return s.repo.DeleteDefinition(ctx, def.ID)
	})
	if err != nil {
		return err
	}
	s.log.Info("definition deleted", "definition", deleted)
	return nil
}

// Preview lists the next count due dates of a definition, starting with the pending one.
func (s *Service) Preview(ctx context.Context, id string, count int) (model.RecurringTaskDefinition, []time.Time, error) {
	def, err := s.Definition(ctx, id)
	if err != nil {
		return model.RecurringTaskDefinition{}, nil, err
	}
	if count <= 0 {
		return def, []time.Time{}, nil
	}
	out := append([]time.Time{def.NextDueDate}, def.Rule.Preview(def.NextDueDate, count-1)...)
	if end, ok := def.EndDate.Get(); ok {
		kept := out[:0]
		for _, t := range out {
			if t.Before(end) {
				kept = append(kept, t)
			}
		}
		out = kept
	}
	return def, out, nil
}

// Generate runs one generation pass now.
func (s *Service) Generate(ctx context.Context) (generator.Report, error) {
	return s.driver.Run(ctx)
}

func (s *Service) Instances(ctx context.Context, filter storage.InstanceListFilter) ([]model.TaskInstance, error) {
	return s.repo.ListInstances(ctx, filter)
}

func (s *Service) CompleteInstance(ctx context.Context, id string) (model.TaskInstance, error) {
	inst, err := s.Instance(ctx, id)
	if err != nil {
		return model.TaskInstance{}, err
	}
	if inst.State == model.TaskStateDone {
		return inst, nil
	}
	now := s.Now()
	inst.State = model.TaskStateDone
	inst.CompletedAt = &now
	if err := s.repo.UpdateInstance(ctx, inst); err != nil {
		return model.TaskInstance{}, err
	}
	return inst, nil
}

// Import upserts every definition of a YAML document. Nothing is saved when any
// record is invalid.
func (s *Service) Import(ctx context.Context, r io.Reader) ([]model.RecurringTaskDefinition, error) {
	defs, err := exchange.DecodeYAML(r, s.loc, s.Now())
	if err != nil {
		return nil, err
	}
	if len(defs) == 0 {
		return defs, nil
	}
	err = s.driver.Exclusive(ctx, func(ctx context.Context) error {
		return s.repo.SaveRecurringDefinitions(ctx, defs)
	})
	if err != nil {
		return nil, fmt.Errorf("save imported definitions: %w", err)
	}
	s.log.Info("definitions imported", "count", len(defs))
	return defs, nil
}

func (s *Service) Export(ctx context.Context, w io.Writer, format string) error {
	defs, err := s.repo.ListDefinitions(ctx, storage.DefinitionListFilter{})
	if err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "yaml", "yml":
		return exchange.EncodeYAML(w, defs)
	case "ics", "ical":
		return exchange.EncodeICS(w, defs, s.Now())
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

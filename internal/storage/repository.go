package storage

import (
	"context"
	"errors"
	"time"

	"github.com/samber/mo"

	"github.com/sandeepkv93/cadence/internal/model"
)

var ErrNotFound = errors.New("storage: not found")

type Repository interface {
	LoadRecurringDefinitions(ctx context.Context) ([]model.RecurringTaskDefinition, error)
	SaveRecurringDefinitions(ctx context.Context, defs []model.RecurringTaskDefinition) error
	EmitGeneratedInstances(ctx context.Context, instances []model.TaskInstance) error
	CommitGeneration(ctx context.Context, defs []model.RecurringTaskDefinition, instances []model.TaskInstance) error

	GetDefinition(ctx context.Context, id string) (model.RecurringTaskDefinition, error)
	SetDefinitionActive(ctx context.Context, id string, active bool, nextDue mo.Option[time.Time]) error
	DeleteDefinition(ctx context.Context, id string) error
	ListDefinitions(ctx context.Context, filter DefinitionListFilter) ([]model.RecurringTaskDefinition, error)

	GetInstance(ctx context.Context, id string) (model.TaskInstance, error)
	UpdateInstance(ctx context.Context, in model.TaskInstance) error
	ListInstances(ctx context.Context, filter InstanceListFilter) ([]model.TaskInstance, error)
}

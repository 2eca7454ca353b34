package update

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"

	"github.com/sandeepkv93/cadence/internal/generator"
	domainmodel "github.com/sandeepkv93/cadence/internal/model"
	"github.com/sandeepkv93/cadence/internal/storage"
)

type View string

const (
	ViewDefinitions View = "Definitions"
	ViewInstances   View = "Instances"
)

// instanceLimit bounds how many instances the instances table loads.
const instanceLimit = 200

const timeLayout = "2006-01-02 15:04 MST"

// Backend is the part of app.Service the TUI drives.
type Backend interface {
	Now() time.Time
	DefaultTimezone() string
	Add(ctx context.Context, p domainmodel.DefinitionParams) (domainmodel.RecurringTaskDefinition, error)
	Definitions(ctx context.Context, filter storage.DefinitionListFilter) ([]domainmodel.RecurringTaskDefinition, error)
	Pause(ctx context.Context, id string) (domainmodel.RecurringTaskDefinition, error)
	Resume(ctx context.Context, id string) (domainmodel.RecurringTaskDefinition, error)
	Delete(ctx context.Context, id string) error
	Preview(ctx context.Context, id string, count int) (domainmodel.RecurringTaskDefinition, []time.Time, error)
	Generate(ctx context.Context) (generator.Report, error)
	Instances(ctx context.Context, filter storage.InstanceListFilter) ([]domainmodel.TaskInstance, error)
	CompleteInstance(ctx context.Context, id string) (domainmodel.TaskInstance, error)
}

type StatusBar struct {
	Text    string
	IsError bool
}

type GlobalKeyMap struct {
	Definitions string
	Instances   string
	Help        string
	Quit        string
}

type CommandPaletteState struct {
	Active bool
	Input  string
}

type Model struct {
	CurrentView View
	Definitions []domainmodel.RecurringTaskDefinition
	Instances   []domainmodel.TaskInstance
	// Detail is the markdown shown in the right pane.
	Detail      string
	Palette     CommandPaletteState
	HelpVisible bool
	Status      StatusBar
	Keys        GlobalKeyMap
	Quitting    bool
	LastError   error

	ctx     context.Context
	backend Backend
	events  <-chan []domainmodel.TaskInstance

	defTable     table.Model
	instTable    table.Model
	commandInput textinput.Model
	helpModel    help.Model
	detailView   viewport.Model
}

// Option configures a Model.
type Option func(*Model)

// WithEvents feeds instances generated in the background into the model.
func WithEvents(ch <-chan []domainmodel.TaskInstance) Option {
	return func(m *Model) { m.events = ch }
}

func WithContext(ctx context.Context) Option {
	return func(m *Model) { m.ctx = ctx }
}

func NewModel(backend Backend, opts ...Option) Model {
	m := Model{
		CurrentView: ViewDefinitions,
		ctx:         context.Background(),
		backend:     backend,
		Keys: GlobalKeyMap{
			Definitions: "1",
			Instances:   "2",
			Help:        "?",
			Quit:        "q",
		},
	}
	for _, opt := range opts {
		opt(&m)
	}
	m.initBubbleComponents()
	return m
}

func (m *Model) initBubbleComponents() {
	m.defTable = table.New(
		table.WithColumns([]table.Column{
			{Title: "ID", Width: 8},
			{Title: "Title", Width: 20},
			{Title: "Rule", Width: 34},
			{Title: "Next due", Width: 16},
			{Title: "State", Width: 7},
		}),
		table.WithFocused(true),
		table.WithHeight(14),
	)
	m.instTable = table.New(
		table.WithColumns([]table.Column{
			{Title: "ID", Width: 8},
			{Title: "Title", Width: 28},
			{Title: "Deadline", Width: 20},
			{Title: "Priority", Width: 8},
			{Title: "State", Width: 8},
		}),
		table.WithFocused(true),
		table.WithHeight(14),
	)

	m.commandInput = textinput.New()
	m.commandInput.Prompt = "/"
	m.commandInput.CharLimit = 256
	m.commandInput.Width = 64

	m.helpModel = help.New()
	m.detailView = viewport.New(48, 18)
}

func (m *Model) syncTables() {
	rows := make([]table.Row, 0, len(m.Definitions))
	for _, d := range m.Definitions {
		rows = append(rows, table.Row{shortID(d.ID), d.Title, d.Rule.String(), d.NextDueDate.Format("2006-01-02 15:04"), definitionState(d)})
	}
	setRows(&m.defTable, rows)

	rows = make([]table.Row, 0, len(m.Instances))
	for _, in := range m.Instances {
		rows = append(rows, table.Row{shortID(in.ID), in.Title, in.Deadline.Format(timeLayout), string(in.Priority), string(in.State)})
	}
	setRows(&m.instTable, rows)
}

func setRows(t *table.Model, rows []table.Row) {
	cursor := t.Cursor()
	t.SetRows(rows)
	switch {
	case len(rows) == 0:
		return
	case cursor >= len(rows):
		t.SetCursor(len(rows) - 1)
	case cursor < 0:
		t.SetCursor(0)
	}
}

func (m *Model) setDetail(md string) {
	m.Detail = md
	m.detailView.SetContent(renderDetail(md))
	m.detailView.GotoTop()
}

// SelectedDefinition is the definition under the table cursor.
func (m Model) SelectedDefinition() (domainmodel.RecurringTaskDefinition, bool) {
	i := m.defTable.Cursor()
	if i < 0 || i >= len(m.Definitions) {
		return domainmodel.RecurringTaskDefinition{}, false
	}
	return m.Definitions[i], true
}

func (m Model) SelectedInstance() (domainmodel.TaskInstance, bool) {
	i := m.instTable.Cursor()
	if i < 0 || i >= len(m.Instances) {
		return domainmodel.TaskInstance{}, false
	}
	return m.Instances[i], true
}

func definitionState(d domainmodel.RecurringTaskDefinition) string {
	switch {
	case d.Ended():
		return "ended"
	case !d.IsActive:
		return "paused"
	default:
		return "active"
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatOptionalTime(t time.Time, ok bool) string {
	if !ok {
		return ""
	}
	return t.Format(timeLayout)
}

func formatEstimate(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	return fmt.Sprint(d)
}

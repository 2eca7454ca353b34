package update

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sandeepkv93/cadence/internal/commands"
	domainmodel "github.com/sandeepkv93/cadence/internal/model"
	"github.com/sandeepkv93/cadence/internal/storage"
	"github.com/sandeepkv93/cadence/internal/views"
)

type SwitchViewMsg struct {
	View View
}

type SetStatusMsg struct {
	Text    string
	IsError bool
}

type ClearStatusMsg struct{}

type AppErrorMsg struct {
	Err error
}

// GeneratedMsg reports instances produced by a background generation pass.
type GeneratedMsg struct {
	Instances []domainmodel.TaskInstance
}

type refreshedMsg struct {
	definitions []domainmodel.RecurringTaskDefinition
	instances   []domainmodel.TaskInstance
	err         error
}

type commandDoneMsg struct {
	result commands.Result
	err    error
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.refreshCmd(), waitForGeneratedCmd(m.events))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.KeyMsg:
		if m.Palette.Active {
			if typed.String() == m.Keys.Help {
				m.HelpVisible = !m.HelpVisible
				return m, nil
			}
			return m.handlePaletteKey(typed)
		}
		return m.handleKey(typed)
	case SwitchViewMsg:
		if isKnownView(typed.View) {
			m.CurrentView = typed.View
		}
		return m, nil
	case SetStatusMsg:
		m.Status = StatusBar{Text: typed.Text, IsError: typed.IsError}
		return m, nil
	case ClearStatusMsg:
		m.Status = StatusBar{}
		return m, nil
	case AppErrorMsg:
		m.LastError = typed.Err
		if typed.Err != nil {
			m.Status = StatusBar{Text: typed.Err.Error(), IsError: true}
		}
		return m, nil
	case refreshedMsg:
		if typed.err != nil {
			m.LastError = typed.err
			m.Status = StatusBar{Text: typed.err.Error(), IsError: true}
			return m, nil
		}
		m.Definitions = typed.definitions
		m.Instances = typed.instances
		m.syncTables()
		return m, nil
	case commandDoneMsg:
		if typed.err != nil {
			m.LastError = typed.err
			m.Status = StatusBar{Text: typed.err.Error(), IsError: true}
			return m, nil
		}
		m.Status = StatusBar{Text: typed.result.Message}
		if typed.result.Markdown != "" {
			m.setDetail(typed.result.Markdown)
		}
		return m, m.refreshCmd()
	case GeneratedMsg:
		m.Status = StatusBar{Text: fmt.Sprintf("generated %d new task instance(s)", len(typed.Instances))}
		return m, tea.Batch(m.refreshCmd(), waitForGeneratedCmd(m.events))
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "/":
		m.Palette.Active = true
		m.Palette.Input = ""
		m.commandInput.SetValue("")
		m.commandInput.Focus()
		m.Status = StatusBar{Text: "command palette active"}
		return m, nil
	case m.Keys.Definitions:
		m.CurrentView = ViewDefinitions
		return m, nil
	case m.Keys.Instances:
		m.CurrentView = ViewInstances
		return m, nil
	case m.Keys.Help:
		m.HelpVisible = !m.HelpVisible
		return m, nil
	case "ctrl+c", m.Keys.Quit:
		m.Quitting = true
		return m, tea.Quit
	case "r":
		m.Status = StatusBar{Text: "refreshing"}
		return m, m.refreshCmd()
	case "g":
		return m, m.runCommand(commands.Command{Type: commands.TypeGenerate})
	}

	switch m.CurrentView {
	case ViewDefinitions:
		def, ok := m.SelectedDefinition()
		switch msg.String() {
		case "enter":
			if ok {
				return m, m.runCommand(targetCommand(commands.TypeShow, def.ID))
			}
			return m, nil
		case "p":
			if !ok {
				return m, nil
			}
			if def.IsActive {
				return m, m.runCommand(targetCommand(commands.TypePause, def.ID))
			}
			return m, m.runCommand(targetCommand(commands.TypeResume, def.ID))
		}
		var cmd tea.Cmd
		m.defTable, cmd = m.defTable.Update(msg)
		return m, cmd
	case ViewInstances:
		if msg.String() == "x" {
			if in, ok := m.SelectedInstance(); ok {
				return m, m.runCommand(targetCommand(commands.TypeDone, in.ID))
			}
			return m, nil
		}
		var cmd tea.Cmd
		m.instTable, cmd = m.instTable.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) View() string {
	status := ""
	if m.Status.Text != "" {
		if m.Status.IsError {
			status = fmt.Sprintf("status: error: %s", m.Status.Text)
		} else {
			status = fmt.Sprintf("status: %s", m.Status.Text)
		}
	}

	var left string
	switch m.CurrentView {
	case ViewInstances:
		left = views.RenderTitle("Instances") + "\n" + m.instTable.View()
	default:
		left = views.RenderTitle("Recurring definitions") + "\n" + m.defTable.View()
	}

	right := m.detailView.View()
	if strings.TrimSpace(m.Detail) == "" {
		right = "select a definition and press enter"
	}
	if m.HelpVisible {
		right = m.renderHelpView()
	}

	footer := fmt.Sprintf("keys: %s definitions | %s instances | / command | g generate | %s help | %s quit",
		m.Keys.Definitions, m.Keys.Instances, m.Keys.Help, m.Keys.Quit)
	if m.Palette.Active {
		footer = views.RenderCommandPalette(true, m.commandInput.View())
	}

	return views.RenderApp(views.AppData{
		Header:     fmt.Sprintf("cadence | view: %s | definitions: %d | instances: %d", m.CurrentView, len(m.Definitions), len(m.Instances)),
		LeftPane:   left,
		RightPane:  right,
		StatusLine: status,
		Footer:     footer,
		LeftWidth:  90,
	})
}

func (m Model) refreshCmd() tea.Cmd {
	if m.backend == nil {
		return nil
	}
	ctx, b := m.ctx, m.backend
	return func() tea.Msg {
		defs, err := b.Definitions(ctx, storage.DefinitionListFilter{})
		if err != nil {
			return refreshedMsg{err: err}
		}
		instances, err := b.Instances(ctx, storage.InstanceListFilter{Limit: instanceLimit})
		if err != nil {
			return refreshedMsg{err: err}
		}
		return refreshedMsg{definitions: defs, instances: instances}
	}
}

func waitForGeneratedCmd(ch <-chan []domainmodel.TaskInstance) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		instances, ok := <-ch
		if !ok {
			return nil
		}
		return GeneratedMsg{Instances: instances}
	}
}

func isKnownView(v View) bool {
	switch v {
	case ViewDefinitions, ViewInstances:
		return true
	default:
		return false
	}
}

func renderDetail(md string) string {
	return views.RenderMarkdown(md)
}

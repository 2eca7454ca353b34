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

func (m Model) handlePaletteKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.closePalette()
		m.Status = StatusBar{Text: "command palette closed"}
		return m, nil
	case "enter":
		m.Palette.Input = m.commandInput.Value()
		return m.executePaletteCommand()
	}
	if msg.Type == tea.KeyRunes {
		m.commandInput.SetValue(m.commandInput.Value() + string(msg.Runes))
		m.Palette.Input = m.commandInput.Value()
		return m, nil
	}
	var cmd tea.Cmd
	m.commandInput, cmd = m.commandInput.Update(msg)
	m.Palette.Input = m.commandInput.Value()
	return m, cmd
}

func (m *Model) closePalette() {
	m.Palette.Active = false
	m.Palette.Input = ""
	m.commandInput.SetValue("")
	m.commandInput.Blur()
}

func (m Model) executePaletteCommand() (tea.Model, tea.Cmd) {
	raw := strings.TrimSpace(m.Palette.Input)
	m.closePalette()
	cmd, err := commands.Parse(raw)
	if err != nil {
		m.Status = StatusBar{Text: err.Error(), IsError: true}
		return m, nil
	}
	m.Status = StatusBar{Text: "running " + string(cmd.Type)}
	return m, m.runCommand(cmd)
}

// runCommand executes cmd against the backend off the update loop. The result
// comes back as a commandDoneMsg.
func (m Model) runCommand(cmd commands.Command) tea.Cmd {
	if m.backend == nil {
		return nil
	}
	h := m.handlers()
	return func() tea.Msg {
		res, err := commands.Execute(cmd, h)
		return commandDoneMsg{result: res, err: err}
	}
}

func targetCommand(t commands.Type, id string) commands.Command {
	return commands.Command{Type: t, Raw: string(t) + " " + id, Target: &commands.TargetArgs{Target: id}}
}

func (m Model) handlers() commands.Handlers {
	ctx, b := m.ctx, m.backend
	return commands.Handlers{
		Add: func(a commands.AddArgs) (commands.Result, error) {
			rule, err := domainmodel.ParseRule(a.Rule, b.DefaultTimezone())
			if err != nil {
				return commands.Result{}, &commands.CommandError{Code: commands.ErrCodeInvalidArgument, Message: err.Error()}
			}
			def, err := b.Add(ctx, domainmodel.DefinitionParams{Title: a.Title, Priority: domainmodel.PriorityMedium, Rule: rule})
			if err != nil {
				return commands.Result{}, err
			}
			return commands.Result{Message: fmt.Sprintf("added %s %q, next due %s", shortID(def.ID), def.Title, def.NextDueDate.Format(timeLayout))}, nil
		},
		Generate: func() (commands.Result, error) {
			report, err := b.Generate(ctx)
			if err != nil {
				return commands.Result{}, err
			}
			lines := make([]views.GeneratedLine, 0, len(report.Generated))
			for _, in := range report.Generated {
				lines = append(lines, views.GeneratedLine{Title: in.Title, Deadline: in.Deadline.Format(timeLayout)})
			}
			return commands.Result{
				Message:  fmt.Sprintf("generated %d new task instance(s)", len(report.Generated)),
				Markdown: views.ReportMarkdown(lines, report.Capped),
			}, nil
		},
		Pause: func(a commands.TargetArgs) (commands.Result, error) {
			def, err := b.Pause(ctx, a.Target)
			if err != nil {
				return commands.Result{}, err
			}
			return commands.Result{Message: fmt.Sprintf("paused %q", def.Title)}, nil
		},
		Resume: func(a commands.TargetArgs) (commands.Result, error) {
			def, err := b.Resume(ctx, a.Target)
			if err != nil {
				return commands.Result{}, err
			}
			return commands.Result{Message: fmt.Sprintf("resumed %q, next due %s", def.Title, def.NextDueDate.Format(timeLayout))}, nil
		},
		Delete: func(a commands.TargetArgs) (commands.Result, error) {
			if err := b.Delete(ctx, a.Target); err != nil {
				return commands.Result{}, err
			}
			return commands.Result{Message: fmt.Sprintf("deleted %s", a.Target)}, nil
		},
		Show: func(a commands.TargetArgs) (commands.Result, error) {
			return m.describe(a.Target, commands.DefaultPreviewCount)
		},
		Preview: func(a commands.PreviewArgs) (commands.Result, error) {
			return m.describe(a.Target, a.Count)
		},
		Done: func(a commands.TargetArgs) (commands.Result, error) {
			in, err := b.CompleteInstance(ctx, a.Target)
			if err != nil {
				return commands.Result{}, err
			}
			return commands.Result{Message: fmt.Sprintf("completed %q", in.Title)}, nil
		},
	}
}

func (m Model) describe(id string, count int) (commands.Result, error) {
	def, upcoming, err := m.backend.Preview(m.ctx, id, count)
	if err != nil {
		return commands.Result{}, err
	}
	instances, err := m.backend.Instances(m.ctx, storage.InstanceListFilter{DefinitionID: def.ID})
	if err != nil {
		return commands.Result{}, err
	}
	when := make([]string, 0, len(upcoming))
	for _, t := range upcoming {
		when = append(when, t.Format(timeLayout))
	}
	md := views.DefinitionMarkdown(views.DefinitionDetail{
		ID:            def.ID,
		Title:         def.Title,
		Description:   def.Description,
		Rule:          def.Rule.String(),
		Priority:      string(def.Priority),
		Category:      def.Category,
		Estimate:      formatEstimate(def.EstimatedDuration),
		State:         definitionState(def),
		NextDue:       def.NextDueDate.Format(timeLayout),
		LastGenerated: formatOptionalTime(def.LastGeneratedAt.Get()),
		Ends:          formatOptionalTime(def.EndDate.Get()),
		Instances:     len(instances),
		Upcoming:      when,
	})
	return commands.Result{Message: fmt.Sprintf("%s: %d upcoming occurrence(s)", def.Title, len(upcoming)), Markdown: md}, nil
}

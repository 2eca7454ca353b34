package cli

import (
	"context"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/sandeepkv93/cadence/internal/app"
	"github.com/sandeepkv93/cadence/internal/generator"
	"github.com/sandeepkv93/cadence/internal/model"
	"github.com/sandeepkv93/cadence/internal/update"
)

func newServeCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Keep generating instances until interrupted",
		Long: `Keep generating instances until interrupted. A pass runs at startup, on the
scheduler.cron schedule and whenever a definition's generation window opens.
Logs go to stderr unless log.file is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := rt.open(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.close()
			return svc.Serve(cmd.Context())
		},
	}
}

func newTUICommand(rt *runtime) *cobra.Command {
	var serve bool
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Open the terminal UI (default command)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, rt, serve)
		},
	}
	cmd.Flags().BoolVar(&serve, "serve", true, "run background generation while the UI is open")
	return cmd
}

// eventBuffer bounds how many generation batches wait for the UI. Later batches
// are dropped; the UI reloads from the database on the next one anyway.
const eventBuffer = 16

func runTUI(cmd *cobra.Command, rt *runtime, serve bool) error {
	events := make(chan []model.TaskInstance, eventBuffer)
	notify := generator.ListenerFunc(func(_ context.Context, instances []model.TaskInstance) {
		select {
		case events <- instances:
		default:
		}
	})
	// The UI owns the terminal, so logs only reach log.file.
	svc, err := rt.open(io.Discard, app.WithListener(notify))
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	done := make(chan struct{})
	if serve {
		go func() {
			defer close(done)
			if err := svc.Serve(ctx); err != nil {
				rt.log.Error("background generation stopped", "error", err)
			}
		}()
	} else {
		close(done)
	}

	program := tea.NewProgram(
		update.NewModel(svc, update.WithEvents(events), update.WithContext(ctx)),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	_, err = program.Run()
	cancel()
	<-done
	return err
}

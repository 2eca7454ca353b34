// Package cli is the cadence command line. Every command opens the configured
// SQLite database, runs against app.Service and closes it again.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/cadence/internal/app"
	"github.com/sandeepkv93/cadence/internal/config"
	"github.com/sandeepkv93/cadence/internal/storage"
)

var (
	appVersion = "dev"
	appCommit  = "none"
	appDate    = "unknown"
)

// SetVersionInfo sets the version information injected via ldflags.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

// runtime holds the flags shared by every command and the resources a command
// opened, so they can be released when it returns.
type runtime struct {
	configPath string
	dbPath     string
	opts       []app.Option

	cfg    config.Config
	log    *slog.Logger
	repo   *storage.SQLiteRepository
	logOut io.Closer
}

// open loads configuration and opens the database. Logs go to log.file when
// configured and to logTo otherwise.
func (r *runtime) open(logTo io.Writer, extra ...app.Option) (*app.Service, error) {
	cfg, err := config.Load(r.configPath)
	if err != nil {
		return nil, err
	}
	if r.dbPath != "" {
		cfg.Database.Path = r.dbPath
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	log, closer, err := config.NewLogger(cfg.Log, logTo)
	if err != nil {
		return nil, err
	}
	repo, err := storage.OpenSQLite(cfg.Database.Path)
	if err != nil {
		_ = closer.Close()
		return nil, fmt.Errorf("open database %s: %w", cfg.Database.Path, err)
	}
	repo.SetLocation(loc)

	svc, err := app.New(repo, cfg, log, append(slices.Clone(r.opts), extra...)...)
	if err != nil {
		_ = repo.Close()
		_ = closer.Close()
		return nil, err
	}
	r.cfg, r.log, r.repo, r.logOut = cfg, log, repo, closer
	return svc, nil
}

func (r *runtime) close() error {
	var errs []error
	if r.repo != nil {
		errs = append(errs, r.repo.Close())
		r.repo = nil
	}
	if r.logOut != nil {
		errs = append(errs, r.logOut.Close())
		r.logOut = nil
	}
	return errors.Join(errs...)
}

// withService adapts fn into a RunE that opens the service with logging kept off
// the terminal and closes it afterwards.
func (r *runtime) withService(fn func(cmd *cobra.Command, args []string, svc *app.Service) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		svc, err := r.open(io.Discard)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := r.close(); err == nil {
				err = cerr
			}
		}()
		return fn(cmd, args, svc)
	}
}

// NewRootCommand builds the full command tree. Running it without a subcommand
// starts the terminal UI.
func NewRootCommand() *cobra.Command {
	return newRootCommand()
}

func newRootCommand(opts ...app.Option) *cobra.Command {
	rt := &runtime{opts: opts}
	root := &cobra.Command{
		Use:   "cadence",
		Short: "Recurring task engine",
		Long: `cadence keeps recurring task definitions and turns them into concrete task
instances as their occurrences come due.

Definitions are created with a recurrence rule such as "every 2 weeks on mon,thu
at 09:00" and generate one instance per occurrence, a day ahead of the due time
by default. Run "cadence serve" to keep generation going in the background, or
start the terminal UI with "cadence" alone.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, rt, true)
		},
	}
	root.PersistentFlags().StringVar(&rt.configPath, "config", "", "config file (default: ./cadence.yaml or ~/.config/cadence/cadence.yaml)")
	root.PersistentFlags().StringVar(&rt.dbPath, "db", "", "SQLite database path (overrides database.path)")

	root.AddCommand(
		newAddCommand(rt),
		newListCommand(rt),
		newShowCommand(rt),
		newPreviewCommand(rt),
		newPauseCommand(rt),
		newResumeCommand(rt),
		newDeleteCommand(rt),
		newGenerateCommand(rt),
		newInstancesCommand(rt),
		newDoneCommand(rt),
		newExportCommand(rt),
		newImportCommand(rt),
		newServeCommand(rt),
		newTUICommand(rt),
		newVersionCommand(),
	)
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "cadence %s\ncommit: %s\nbuilt:  %s\n", appVersion, appCommit, appDate)
		},
	}
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/cadence/internal/app"
	"github.com/sandeepkv93/cadence/internal/model"
	"github.com/sandeepkv93/cadence/internal/storage"
)

func newGenerateCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "generate",
		Short: "Run one generation pass now",
		Long: `Run one generation pass now. Every active definition whose next occurrence is
within the lead time gets its instances, up to generation.max_catch_up per
definition. A backlog beyond that drains on later passes.`,
		Args: cobra.NoArgs,
		RunE: rt.withService(func(cmd *cobra.Command, args []string, svc *app.Service) error {
			report, err := svc.Generate(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "generated %d instance(s)\n", len(report.Generated))
			for _, in := range report.Generated {
				fmt.Fprintf(out, "  %s  %s  due %s\n", in.ID, in.Title, formatTime(in.Deadline))
			}
			for _, id := range report.Capped {
				fmt.Fprintf(out, "catch-up limit reached for %s, run again to continue\n", id)
			}
			return nil
		}),
	}
}

func newInstancesCommand(rt *runtime) *cobra.Command {
	var (
		definition string
		state      string
		limit      int
	)
	cmd := &cobra.Command{
		Use:   "instances",
		Short: "List generated task instances",
		Args:  cobra.NoArgs,
		RunE: rt.withService(func(cmd *cobra.Command, args []string, svc *app.Service) error {
			filter := storage.InstanceListFilter{Limit: limit}
			if definition != "" {
				def, err := svc.Definition(cmd.Context(), definition)
				if err != nil {
					return err
				}
				filter.DefinitionID = def.ID
			}
			if state != "" {
				s, err := parseState(state)
				if err != nil {
					return err
				}
				filter.State = string(s)
			}
			instances, err := svc.Instances(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if len(instances) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no instances")
				return nil
			}
			rows := make([][]string, 0, len(instances))
			for _, in := range instances {
				rows = append(rows, []string{in.ID, in.Title, formatTime(in.Deadline), string(in.Priority), string(in.State)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"ID", "TITLE", "DEADLINE", "PRIORITY", "STATE"}, rows))
			return nil
		}),
	}
	cmd.Flags().StringVar(&definition, "definition", "", "only instances of this definition")
	cmd.Flags().StringVar(&state, "state", "", "only instances in this state (Planned, Done, ...)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of rows")
	return cmd
}

func newDoneCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "done <instance-id>",
		Short: "Mark a task instance done",
		Args:  cobra.ExactArgs(1),
		RunE: rt.withService(func(cmd *cobra.Command, args []string, svc *app.Service) error {
			in, err := svc.CompleteInstance(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "completed %s %q\n", in.ID, in.Title)
			return nil
		}),
	}
}

func parseState(raw string) (model.TaskState, error) {
	for _, s := range []model.TaskState{model.TaskStatePlanned, model.TaskStateDone} {
		if equalFold(raw, string(s)) {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", model.ErrInvalidState, raw)
}

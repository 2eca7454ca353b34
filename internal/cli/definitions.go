package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/samber/mo"
	"github.com/spf13/cobra"

	"github.com/sandeepkv93/cadence/internal/app"
	"github.com/sandeepkv93/cadence/internal/model"
	"github.com/sandeepkv93/cadence/internal/storage"
	"github.com/sandeepkv93/cadence/internal/views"
)

type addFlags struct {
	rule        string
	frequency   string
	interval    int
	days        []string
	dayOfMonth  int
	at          string
	timezone    string
	priority    string
	category    string
	description string
	duration    time.Duration
	end         string
	first       string
}

func newAddCommand(rt *runtime) *cobra.Command {
	var f addFlags
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Create a recurring task definition",
		Long: `Create a recurring task definition.

The rule is given either as a phrase with --rule or piece by piece with
--frequency and friends. Rules without a timezone use generation.timezone.

Examples:
  cadence add "Water plants" --rule "every 2 days at 08:00"
  cadence add "Team sync" --rule "weekly on mon,thu at 09:30 in Europe/Berlin"
  cadence add "Pay rent" --frequency monthly --day-of-month 31 --at 18:00 --priority high`,
		Args: cobra.ExactArgs(1),
		RunE: rt.withService(func(cmd *cobra.Command, args []string, svc *app.Service) error {
			rule, err := f.buildRule(svc.DefaultTimezone())
			if err != nil {
				return err
			}
			priority, err := model.ParsePriority(f.priority)
			if err != nil {
				return err
			}
			params := model.DefinitionParams{
				Title:             args[0],
				Description:       f.description,
				Category:          f.category,
				Priority:          priority,
				EstimatedDuration: f.duration,
				Rule:              rule,
			}
			if params.EndDate, err = parseOptionalWhen(f.end, svc.Location()); err != nil {
				return fmt.Errorf("--end: %w", err)
			}
			if params.FirstDue, err = parseOptionalWhen(f.first, svc.Location()); err != nil {
				return fmt.Errorf("--first: %w", err)
			}

			def, err := svc.Add(cmd.Context(), params)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s %q (%s), next due %s\n", def.ID, def.Title, def.Rule, formatTime(def.NextDueDate))
			return nil
		}),
	}
	fl := cmd.Flags()
	fl.StringVar(&f.rule, "rule", "", `rule phrase, e.g. "every 2 weeks on mon,thu at 09:00"`)
	fl.StringVar(&f.frequency, "frequency", "", "daily, weekly, monthly or yearly")
	fl.IntVar(&f.interval, "interval", 1, "repeat every N periods")
	fl.StringSliceVar(&f.days, "days", nil, "weekdays for weekly rules (mon,thu or 2,5)")
	fl.IntVar(&f.dayOfMonth, "day-of-month", 0, "day of month for monthly rules, clamped to short months")
	fl.StringVar(&f.at, "at", "00:00", "time of day HH:MM")
	fl.StringVar(&f.timezone, "timezone", "", "IANA timezone of the rule")
	fl.StringVar(&f.priority, "priority", string(model.PriorityMedium), "Low, Medium, High or Critical")
	fl.StringVar(&f.category, "category", "", "category copied into every instance")
	fl.StringVar(&f.description, "description", "", "description copied into every instance")
	fl.DurationVar(&f.duration, "duration", 0, "estimated duration, e.g. 30m")
	fl.StringVar(&f.end, "end", "", "stop generating at this date (2006-01-02 or RFC 3339)")
	fl.StringVar(&f.first, "first", "", "first due date instead of the rule's next occurrence")
	cmd.MarkFlagsMutuallyExclusive("rule", "frequency")
	cmd.MarkFlagsOneRequired("rule", "frequency")
	return cmd
}

func (f addFlags) buildRule(defaultTZ string) (model.RecurrenceRule, error) {
	if f.rule != "" {
		return model.ParseRule(f.rule, defaultTZ)
	}
	p := model.RuleParams{
		Frequency: model.Frequency(strings.ToLower(f.frequency)),
		Interval:  f.interval,
		Timezone:  f.timezone,
	}
	if p.Timezone == "" {
		p.Timezone = defaultTZ
	}
	for _, d := range f.days {
		w, err := model.ParseWeekday(d)
		if err != nil {
			return model.RecurrenceRule{}, err
		}
		p.DaysOfWeek = append(p.DaysOfWeek, w)
	}
	if f.dayOfMonth != 0 {
		p.DayOfMonth = mo.Some(f.dayOfMonth)
	}
	tod, err := model.ParseTimeOfDay(f.at)
	if err != nil {
		return model.RecurrenceRule{}, err
	}
	p.TimeOfDay = tod
	return model.NewRecurrenceRule(p)
}

func newListCommand(rt *runtime) *cobra.Command {
	var (
		active, paused bool
		limit          int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recurring task definitions",
		Args:  cobra.NoArgs,
		RunE: rt.withService(func(cmd *cobra.Command, args []string, svc *app.Service) error {
			filter := storage.DefinitionListFilter{Limit: limit}
			switch {
			case active:
				filter.Active = mo.Some(true).ToPointer()
			case paused:
				filter.Active = mo.Some(false).ToPointer()
			}
			defs, err := svc.Definitions(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if len(defs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no definitions")
				return nil
			}
			rows := make([][]string, 0, len(defs))
			for _, d := range defs {
				rows = append(rows, []string{d.ID, d.Title, d.Rule.String(), formatTime(d.NextDueDate), definitionState(d)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"ID", "TITLE", "RULE", "NEXT DUE", "STATE"}, rows))
			return nil
		}),
	}
	cmd.Flags().BoolVar(&active, "active", false, "only active definitions")
	cmd.Flags().BoolVar(&paused, "paused", false, "only paused definitions")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of rows")
	cmd.MarkFlagsMutuallyExclusive("active", "paused")
	return cmd
}

func newShowCommand(rt *runtime) *cobra.Command {
	var (
		count int
		plain bool
	)
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a definition with its upcoming occurrences",
		Args:  cobra.ExactArgs(1),
		RunE: rt.withService(func(cmd *cobra.Command, args []string, svc *app.Service) error {
			def, upcoming, err := svc.Preview(cmd.Context(), args[0], count)
			if err != nil {
				return err
			}
			instances, err := svc.Instances(cmd.Context(), storage.InstanceListFilter{DefinitionID: def.ID})
			if err != nil {
				return err
			}
			md := views.DefinitionMarkdown(detailOf(def, upcoming, len(instances)))
			if !plain {
				md = views.RenderMarkdown(md)
			}
			fmt.Fprintln(cmd.OutOrStdout(), md)
			return nil
		}),
	}
	cmd.Flags().IntVarP(&count, "count", "n", 5, "number of upcoming occurrences")
	cmd.Flags().BoolVar(&plain, "plain", false, "print markdown without terminal styling")
	return cmd
}

func newPreviewCommand(rt *runtime) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "preview <id>",
		Short: "Print the next due dates of a definition",
		Args:  cobra.ExactArgs(1),
		RunE: rt.withService(func(cmd *cobra.Command, args []string, svc *app.Service) error {
			if count < 1 {
				return fmt.Errorf("--count must be positive, got %d", count)
			}
			_, upcoming, err := svc.Preview(cmd.Context(), args[0], count)
			if err != nil {
				return err
			}
			for _, t := range upcoming {
				fmt.Fprintln(cmd.OutOrStdout(), formatTime(t))
			}
			return nil
		}),
	}
	cmd.Flags().IntVarP(&count, "count", "n", 5, "number of occurrences")
	return cmd
}

func newPauseCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "pause <id>",
		Short: "Stop generating instances for a definition",
		Args:  cobra.ExactArgs(1),
		RunE: rt.withService(func(cmd *cobra.Command, args []string, svc *app.Service) error {
			def, err := svc.Pause(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "paused %s %q\n", def.ID, def.Title)
			return nil
		}),
	}
}

func newResumeCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <id>",
		Short: "Resume a paused definition, skipping occurrences missed meanwhile",
		Args:  cobra.ExactArgs(1),
		RunE: rt.withService(func(cmd *cobra.Command, args []string, svc *app.Service) error {
			def, err := svc.Resume(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "resumed %s %q, next due %s\n", def.ID, def.Title, formatTime(def.NextDueDate))
			return nil
		}),
	}
}

func newDeleteCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a definition; generated instances are kept",
		Args:  cobra.ExactArgs(1),
		RunE: rt.withService(func(cmd *cobra.Command, args []string, svc *app.Service) error {
			def, err := svc.Definition(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := svc.Delete(cmd.Context(), def.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s %q\n", def.ID, def.Title)
			return nil
		}),
	}
}

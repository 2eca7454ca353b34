package views

import (
	"fmt"
	"strings"
)

// DefinitionDetail is the display form of one recurring definition. Times are
// preformatted by the caller.
type DefinitionDetail struct {
	ID            string
	Title         string
	Description   string
	Rule          string
	Priority      string
	Category      string
	Estimate      string
	State         string
	NextDue       string
	LastGenerated string
	Ends          string
	Instances     int
	Upcoming      []string
}

func DefinitionMarkdown(d DefinitionDetail) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", escape(d.Title))
	fmt.Fprintf(&b, "_%s_\n\n", d.Rule)
	if strings.TrimSpace(d.Description) != "" {
		b.WriteString(d.Description + "\n\n")
	}
	b.WriteString("| field | value |\n|---|---|\n")
	row := func(k, v string) {
		if v == "" {
			v = "-"
		}
		fmt.Fprintf(&b, "| %s | %s |\n", k, escape(v))
	}
	row("id", d.ID)
	row("state", d.State)
	row("priority", d.Priority)
	row("category", d.Category)
	row("estimate", d.Estimate)
	row("next due", d.NextDue)
	row("last generated", d.LastGenerated)
	row("ends", d.Ends)
	row("instances", fmt.Sprint(d.Instances))

	b.WriteString("\n## Upcoming\n\n")
	if len(d.Upcoming) == 0 {
		b.WriteString("_nothing scheduled_\n")
	}
	for i, u := range d.Upcoming {
		fmt.Fprintf(&b, "%d. %s\n", i+1, u)
	}
	return b.String()
}

// GeneratedLine is one generated instance in a report.
type GeneratedLine struct {
	Title    string
	Deadline string
}

func ReportMarkdown(generated []GeneratedLine, capped []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Generation pass\n\n%d new task instance(s)\n\n", len(generated))
	for _, g := range generated {
		fmt.Fprintf(&b, "- **%s** due %s\n", escape(g.Title), g.Deadline)
	}
	if len(capped) > 0 {
		fmt.Fprintf(&b, "\n> catch-up limit reached for %s; the rest follows on the next pass\n", strings.Join(capped, ", "))
	}
	return b.String()
}

func escape(s string) string {
	return strings.NewReplacer("|", `\|`, "*", `\*`, "_", `\_`).Replace(s)
}

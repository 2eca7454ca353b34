package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultCronSpec runs a generation pass every day at 06:00.
const DefaultCronSpec = "0 0 6 * * *"

// CronTrigger runs jobs on six-field cron specs (seconds first).
type CronTrigger struct {
	cron *cron.Cron
}

func NewCronTrigger(loc *time.Location) *CronTrigger {
	if loc == nil {
		loc = time.Local
	}
	return &CronTrigger{
		cron: cron.New(cron.WithLocation(loc), cron.WithSeconds()),
	}
}

func (c *CronTrigger) Add(spec string, job func()) (cron.EntryID, error) {
	id, err := c.cron.AddFunc(spec, job)
	if err != nil {
		return 0, fmt.Errorf("scheduler: cron spec %q: %w", spec, err)
	}
	return id, nil
}

// Next reports when the entry fires next. Zero until the trigger is started.
func (c *CronTrigger) Next(id cron.EntryID) time.Time {
	return c.cron.Entry(id).Next
}

func (c *CronTrigger) Start() {
	c.cron.Start()
}

// Stop waits for running jobs to finish.
func (c *CronTrigger) Stop() {
	ctx := c.cron.Stop()
	<-ctx.Done()
}

// ValidateCronSpec checks spec with the same parser the trigger uses.
func ValidateCronSpec(spec string) error {
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(spec); err != nil {
		return fmt.Errorf("scheduler: cron spec %q: %w", spec, err)
	}
	return nil
}

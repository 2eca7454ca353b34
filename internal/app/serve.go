package app

import (
	"context"
	"time"

	"github.com/sandeepkv93/cadence/internal/generator"
	"github.com/sandeepkv93/cadence/internal/scheduler"
	"github.com/sandeepkv93/cadence/internal/storage"
)

// retryDelay is how long Serve waits before retrying a failed pass.
const retryDelay = time.Minute

// Serve keeps generation running until ctx is done. A pass runs at startup, on
// every cron tick and whenever a definition's generation window opens.
func (s *Service) Serve(ctx context.Context) error {
	trigger := scheduler.NewCronTrigger(s.loc)
	requests := make(chan string, 1)
	request := func(reason string) {
		select {
		case requests <- reason:
		default:
		}
	}
	if _, err := trigger.Add(s.cfg.Scheduler.Cron, func() { request("cron") }); err != nil {
		return err
	}

	s.engine.Start()
	defer s.engine.Stop()
	trigger.Start()
	defer trigger.Stop()

	s.log.Info("serving", "cron", s.cfg.Scheduler.Cron, "lead_time", s.cfg.Generation.LeadTime, "timezone", s.loc.String())
	request("startup")
	for {
		select {
		case <-ctx.Done():
			s.log.Info("stopping", "dropped_wakes", s.engine.Dropped(), "coalesced_wakes", s.engine.Coalesced())
			return nil
		case reason := <-requests:
			s.pass(ctx, reason)
		case ev, ok := <-s.engine.C():
			if !ok {
				return nil
			}
			s.log.Debug("wake", "definition", ev.DefinitionID, "at", ev.At, "covers", len(ev.Covers))
			s.pass(ctx, "wake")
		}
	}
}

func (s *Service) pass(ctx context.Context, reason string) {
	report, err := s.driver.Run(ctx)
	if err != nil {
		s.log.Error("generation pass failed", "reason", reason, "error", err)
		if schedErr := s.engine.Schedule(scheduler.WakeEvent{At: s.clock.Now().Add(retryDelay)}); schedErr != nil {
			s.log.Warn("schedule retry", "error", schedErr)
		}
		return
	}
	if !report.Empty() {
		s.log.Info("generation pass", "reason", reason, "instances", len(report.Generated), "capped", len(report.Capped))
	}
	if err := s.rescheduleWakes(ctx, report); err != nil {
		s.log.Error("reschedule wakes", "error", err)
	}
}

// rescheduleWakes replaces pending wakes with one per active definition whose
// window opens in the future. A capped pass asks for an immediate follow-up.
func (s *Service) rescheduleWakes(ctx context.Context, report generator.Report) error {
	active := true
	defs, err := s.repo.ListDefinitions(ctx, storage.DefinitionListFilter{Active: &active})
	if err != nil {
		return err
	}
	now := s.clock.Now()
	lead := s.driver.LeadTime()
	events := make([]scheduler.WakeEvent, 0, len(defs)+1)
	for _, def := range defs {
		if def.Ended() {
			continue
		}
		if at := def.ReadyAt(lead); at.After(now) {
			events = append(events, scheduler.WakeEvent{DefinitionID: def.ID, At: at})
		}
	}
	if len(report.Capped) > 0 {
		events = append(events, scheduler.WakeEvent{DefinitionID: report.Capped[0], At: now})
	}
	s.log.Debug("wakes rescheduled", "pending", len(events))
	return s.engine.Replace(events)
}

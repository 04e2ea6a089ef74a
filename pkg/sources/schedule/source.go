// Package schedule triggers workflow runs on cron expressions. Each entry
// publishes an execution request event when its schedule fires; the engine
// consumes those events like any other trigger.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/loomhq/loom/pkg/eventbus"
	"github.com/loomhq/loom/pkg/events"
)

// Entry is one scheduled workflow trigger.
type Entry struct {
	ID         string
	CronExpr   string
	WorkflowID string

	// InitialData seeds the run's context on every firing.
	InitialData map[string]any
}

// Validate checks the entry against the standard 5-field cron grammar.
func (e Entry) Validate() error {
	if e.ID == "" {
		return errors.New("schedule entry id is required")
	}

	if e.WorkflowID == "" {
		return errors.New("schedule entry workflow id is required")
	}

	if e.CronExpr == "" {
		return errors.New("schedule entry cron expression is required")
	}

	if _, err := cron.ParseStandard(e.CronExpr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", e.CronExpr, err)
	}

	return nil
}

// Source runs the cron loop for a set of entries.
type Source struct {
	bus    eventbus.EventPublisher
	logger *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	entries []Entry
}

func NewSource(bus eventbus.EventPublisher, logger *slog.Logger) *Source {
	return &Source{
		bus:    bus,
		logger: logger.With("module", "schedule_source"),
	}
}

// Add registers an entry. Entries added after Start are not picked up until
// the next Start.
func (s *Source) Add(entry Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, entry)

	return nil
}

// Start begins firing schedules until Stop is called.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return errors.New("schedule source already started")
	}

	runner := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	for _, entry := range s.entries {
		entry := entry

		_, err := runner.AddFunc(entry.CronExpr, func() {
			s.fire(ctx, entry)
		})
		if err != nil {
			return fmt.Errorf("failed to add cron job for entry %s: %w", entry.ID, err)
		}

		s.logger.InfoContext(ctx, "Scheduled workflow trigger",
			"entry_id", entry.ID, "workflow_id", entry.WorkflowID, "cron", entry.CronExpr)
	}

	runner.Start()
	s.cron = runner

	return nil
}

// Stop halts the cron loop and waits for in-flight firings to finish.
func (s *Source) Stop(ctx context.Context) error {
	s.mu.Lock()
	runner := s.cron
	s.cron = nil
	s.mu.Unlock()

	if runner == nil {
		return nil
	}

	select {
	case <-runner.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Source) fire(ctx context.Context, entry Entry) {
	event := events.ExecutionRequested{
		BaseEvent: events.BaseEvent{
			ID:         uuid.New().String(),
			Type:       events.ExecutionRequestedEvent,
			Timestamp:  time.Now().UTC(),
			WorkflowID: entry.WorkflowID,
			Metadata:   map[string]any{"source": "schedule", "entry_id": entry.ID},
		},
		InitialData: entry.InitialData,
	}

	err := s.bus.Publish(ctx, events.Topic, entry.WorkflowID, event)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish scheduled execution request",
			"entry_id", entry.ID, "workflow_id", entry.WorkflowID, "error", err)

		return
	}

	s.logger.InfoContext(ctx, "Published scheduled execution request",
		"entry_id", entry.ID, "workflow_id", entry.WorkflowID, "event_id", event.ID)
}

// Package worker mirrors ledger activity into a spreadsheet.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/sheets"
)

// EventSource delivers ledger events until ctx is done.
type EventSource interface {
	Consume(ctx context.Context, handler func(context.Context, *amqp.LedgerEvent) error) error
}

// LedgerReader lists what the progress table shows.
type LedgerReader interface {
	ListOwners(ctx context.Context) ([]core.Owner, error)
	ListGoals(ctx context.Context, ownerID string, statuses ...core.GoalStatus) ([]core.SavingsGoal, error)
	ListDebts(ctx context.Context, ownerID string, statuses ...core.DebtStatus) ([]core.Debt, error)
}

// ActivityMirror appends every consumed event to the activity sheet and
// rewrites the progress sheet after changes.
type ActivityMirror struct {
	events   EventSource
	ledger   LedgerReader
	activity sheets.ActivityWriter
	progress sheets.ProgressWriter
	interval time.Duration
	logger   *log.Logger

	dirty   atomic.Bool
	handled atomic.Int64
}

func NewActivityMirror(events EventSource, ledger LedgerReader, activity sheets.ActivityWriter, progress sheets.ProgressWriter, interval time.Duration, logger *log.Logger) *ActivityMirror {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &ActivityMirror{
		events:   events,
		ledger:   ledger,
		activity: activity,
		progress: progress,
		interval: interval,
		logger:   logger.WithComponent(log.ComponentWorker),
	}
}

// Run consumes events and refreshes progress until ctx is cancelled. A
// cancelled context is a clean stop and returns nil.
func (m *ActivityMirror) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := m.events.Consume(gctx, m.HandleEvent)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		m.refresh(gctx)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if m.dirty.Swap(false) {
					m.refresh(gctx)
				}
			}
		}
	})

	return g.Wait()
}

// HandleEvent appends one event to the activity sheet. An error leaves the
// event on the queue for redelivery.
func (m *ActivityMirror) HandleEvent(ctx context.Context, ev *amqp.LedgerEvent) error {
	if ev == nil {
		return nil
	}
	if m.activity != nil {
		if err := m.activity.AppendActivity(ctx, []sheets.ActivityRow{sheets.ActivityFromEvent(ev)}); err != nil {
			return fmt.Errorf("append activity: %w", err)
		}
	}
	m.dirty.Store(true)
	n := m.handled.Add(1)
	m.logger.DebugContext(ctx, "Mirrored ledger event",
		"type", ev.Type,
		log.FieldOwner, ev.OwnerID,
		"entity_id", ev.EntityID,
		"handled", n)
	return nil
}

// Handled is the number of events appended since start.
func (m *ActivityMirror) Handled() int64 {
	return m.handled.Load()
}

func (m *ActivityMirror) refresh(ctx context.Context) {
	if err := m.RefreshProgress(ctx); err != nil && ctx.Err() == nil {
		m.dirty.Store(true)
		m.logger.ErrorContext(ctx, "Progress refresh failed", "error", err)
	}
}

// RefreshProgress rewrites the progress table with every owner's goals and
// debts.
func (m *ActivityMirror) RefreshProgress(ctx context.Context) error {
	if m.progress == nil || m.ledger == nil {
		return nil
	}
	owners, err := m.ledger.ListOwners(ctx)
	if err != nil {
		return fmt.Errorf("list owners: %w", err)
	}

	var rows []sheets.ProgressRow
	for _, o := range owners {
		goals, err := m.ledger.ListGoals(ctx, o.ID)
		if err != nil {
			return fmt.Errorf("list goals for %s: %w", o.ID, err)
		}
		for _, g := range goals {
			rows = append(rows, sheets.GoalProgressRow(o.ID, g))
		}
		debts, err := m.ledger.ListDebts(ctx, o.ID)
		if err != nil {
			return fmt.Errorf("list debts for %s: %w", o.ID, err)
		}
		for _, d := range debts {
			rows = append(rows, sheets.DebtProgressRow(o.ID, d))
		}
	}

	if err := m.progress.ReplaceProgress(ctx, rows); err != nil {
		return fmt.Errorf("replace progress: %w", err)
	}
	m.logger.InfoContext(ctx, "Progress sheet refreshed", "owners", len(owners), "rows", len(rows))
	return nil
}

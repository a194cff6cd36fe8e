package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"alert-engine/internal/alert"
)

// ScanStats summarizes one pass over a subject listing.
type ScanStats struct {
	Scanned   int
	Created   int
	Escalated int
	Resolved  int
	Failed    int
}

func (s *ScanStats) record(t alert.Transition) {
	switch t {
	case alert.TransitionCreated:
		s.Created++
	case alert.TransitionEscalated:
		s.Escalated++
	case alert.TransitionResolved:
		s.Resolved++
	}
}

// ScanStock evaluates the stock family for every medication eligible for
// monitoring. Recovered medications get their active stock alert resolved.
func (e *Engine) ScanStock(ctx context.Context) (*ScanStats, error) {
	subjects, err := e.subjects.StockSubjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list stock subjects: %w", err)
	}
	return e.runScan(ctx, "stock", subjects, e.EvaluateStock), nil
}

// ScanExpiry evaluates the expiry family for every medication expiring on or
// before the horizon, expired ones included. An out-of-range window falls
// back to the engine's configured one.
func (e *Engine) ScanExpiry(ctx context.Context, windowDays int) (*ScanStats, error) {
	if windowDays < 1 || windowDays > 365 {
		windowDays = e.expiryWindowDays
	}
	until := e.now().AddDate(0, 0, windowDays)
	subjects, err := e.subjects.ExpirySubjects(ctx, until)
	if err != nil {
		return nil, fmt.Errorf("failed to list expiry subjects: %w", err)
	}

	evaluate := func(ctx context.Context, s *alert.Subject) (alert.Transition, error) {
		return e.evaluateExpiryWindow(ctx, s, windowDays)
	}
	return e.runScan(ctx, "expiry", subjects, evaluate), nil
}

// ScanOrderDelays evaluates the delay family for every sent order whose
// expected delivery date has passed. Received orders leave the listing and
// get their alert resolved by the on-demand check instead.
func (e *Engine) ScanOrderDelays(ctx context.Context) (*ScanStats, error) {
	subjects, err := e.subjects.DelayedOrders(ctx, e.now())
	if err != nil {
		return nil, fmt.Errorf("failed to list delayed orders: %w", err)
	}
	return e.runScan(ctx, "order-delay", subjects, e.EvaluateOrder), nil
}

// runScan evaluates each subject, isolating per-subject failures so one bad
// row never aborts the pass.
func (e *Engine) runScan(ctx context.Context, name string, subjects []*alert.Subject, evaluate func(context.Context, *alert.Subject) (alert.Transition, error)) *ScanStats {
	start := time.Now()
	stats := &ScanStats{}

	for _, s := range subjects {
		stats.Scanned++
		transition, err := evaluate(ctx, s)
		if err != nil {
			stats.Failed++
			slog.Error("Failed to evaluate subject",
				"scan", name,
				"subject_id", s.ID,
				"error", err,
			)
			continue
		}
		stats.record(transition)
	}

	slog.Info("Scan finished",
		"scan", name,
		"scanned", stats.Scanned,
		"created", stats.Created,
		"escalated", stats.Escalated,
		"resolved", stats.Resolved,
		"failed", stats.Failed,
		"duration", time.Since(start),
	)
	return stats
}

package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"splitgroups/pkg/platform/sentinel"
)

// ReconcileResult reports what one pass changed.
type ReconcileResult struct {
	Reconciled int
	Orphans    int
	Failed     int
}

// Reconcile rewrites the derived fields of every group's summary and removes
// summaries whose group is gone. It repairs summaries left behind when a
// derived upsert failed after its primary write had committed.
func (s *Service) Reconcile(ctx context.Context) (ReconcileResult, error) {
	var result ReconcileResult
	start := time.Now()

	groupIDs, err := s.groups.ListIDs(ctx)
	if err != nil {
		return result, err
	}
	live := make(map[string]struct{}, len(groupIDs))
	for _, id := range groupIDs {
		live[id] = struct{}{}
		if err := ctx.Err(); err != nil {
			return result, err
		}
		group, err := s.groups.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				delete(live, id) // deleted mid-pass
				continue
			}
			result.Failed++
			s.logger.WarnContext(ctx, "reconcile: failed to load group", "group_id", id, "error", err)
			continue
		}
		alive, err := s.upsertDerived(ctx, group)
		if err != nil {
			result.Failed++
			s.logger.WarnContext(ctx, "reconcile: failed to upsert summary", "group_id", id, "error", err)
			continue
		}
		if !alive {
			delete(live, id)
			continue
		}
		result.Reconciled++
	}

	summaryIDs, err := s.store.ListGroupIDs(ctx)
	if err != nil {
		return result, err
	}
	for _, id := range summaryIDs {
		if _, ok := live[id]; ok {
			continue
		}
		// The group may have been created after ListIDs.
		if _, err := s.groups.FindByID(ctx, id); !errors.Is(err, sentinel.ErrNotFound) {
			continue
		}
		if err := s.Remove(ctx, id); err != nil {
			result.Failed++
			s.logger.WarnContext(ctx, "reconcile: failed to remove orphan summary", "group_id", id, "error", err)
			continue
		}
		result.Orphans++
	}

	if s.metrics != nil {
		s.metrics.ObserveReconcile(result.Reconciled, result.Orphans, time.Since(start).Seconds())
	}
	return result, nil
}

// Reconciler runs Reconcile on a fixed interval until its context ends.
type Reconciler struct {
	service  *Service
	interval time.Duration
	logger   *slog.Logger
}

func NewReconciler(service *Service, interval time.Duration, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{service: service, interval: interval, logger: logger}
}

// Run blocks until ctx is cancelled. The first pass runs after one interval.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			result, err := r.service.Reconcile(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				r.logger.ErrorContext(ctx, "summary reconciliation failed", "error", err)
				continue
			}
			r.logger.InfoContext(ctx, "summary reconciliation complete",
				"reconciled", result.Reconciled,
				"orphans_removed", result.Orphans,
				"failed", result.Failed,
			)
		}
	}
}

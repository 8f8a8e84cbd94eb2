package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"DecideInbox/internal/domain"
	"DecideInbox/internal/ports"
)

// ReconcileResult lists the workers a sweep demoted.
type ReconcileResult struct {
	Checked int
	Idle    []string
	Offline []string
}

// errUnchanged aborts an update whose condition no longer holds.
var errUnchanged = errors.New("unchanged")

// Staleness returns the status a record should have after elapsed time since
// its last heartbeat, and whether that differs from its current status.
// Offline and error records are left alone; nothing is ever promoted.
func (s *Service) Staleness(rec domain.WorkerRecord, now time.Time) (domain.WorkerStatus, bool) {
	switch rec.Status {
	case domain.WorkerOffline, domain.WorkerError:
		return rec.Status, false
	}
	elapsed := now.Sub(rec.LastHeartbeatAt)
	switch {
	case elapsed > s.settings.OfflineAfter:
		return domain.WorkerOffline, true
	case elapsed > s.settings.IdleAfter && rec.Status == domain.WorkerOnline:
		return domain.WorkerIdle, true
	default:
		return rec.Status, false
	}
}

// Reconcile sweeps every worker once. The staleness check is repeated inside
// each update so a heartbeat landing mid-sweep is never overwritten.
func (s *Service) Reconcile(ctx context.Context) (ReconcileResult, error) {
	workers, err := s.store.ListWorkers(ctx, "")
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("reconcile: %w", err)
	}

	now := s.now().UTC()
	var (
		result ReconcileResult
		errs   []error
	)
	for _, w := range workers {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Checked++
		if _, changed := s.Staleness(w, now); !changed {
			continue
		}

		rec, err := s.store.UpdateWorker(ctx, w.ID, func(rec *domain.WorkerRecord) error {
			next, changed := s.Staleness(*rec, now)
			if !changed {
				return errUnchanged
			}
			rec.Status = next
			return nil
		})
		switch {
		case errors.Is(err, errUnchanged), errors.Is(err, ports.ErrNotFound):
			continue
		case err != nil:
			errs = append(errs, fmt.Errorf("worker %s: %w", w.ID, err))
			continue
		}

		if rec.Status == domain.WorkerOffline {
			result.Offline = append(result.Offline, rec.ID)
		} else {
			result.Idle = append(result.Idle, rec.ID)
		}
		s.info("worker status reconciled", "worker", rec.ID, "from", w.Status, "to", rec.Status,
			"since_heartbeat", now.Sub(rec.LastHeartbeatAt).Round(time.Second))
	}
	return result, errors.Join(errs...)
}

// Reconciler runs Reconcile on a fixed interval.
type Reconciler struct {
	service  *Service
	clock    ports.Clock
	interval time.Duration
}

// NewReconciler builds the background sweep.
func NewReconciler(service *Service, clock ports.Clock, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Reconciler{service: service, clock: clock, interval: interval}
}

// Run sweeps until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			if _, err := r.service.Reconcile(ctx); err != nil && ctx.Err() == nil {
				r.service.warn("reconcile failed", "error", err)
			}
		}
	}
}

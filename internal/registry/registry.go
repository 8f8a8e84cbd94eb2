// Package registry tracks worker identity and liveness.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"DecideInbox/internal/domain"
	"DecideInbox/internal/ports"
)

// ErrUnknownWorker is returned for ids the registry has no record of. It is
// the same sentinel daemons receive back from the coordinator client.
var ErrUnknownWorker = ports.ErrUnregistered

// ErrInvalidRegistration is returned when a registration lacks its identity fields.
var ErrInvalidRegistration = errors.New("invalid registration")

// Settings holds the staleness thresholds.
type Settings struct {
	IdleAfter    time.Duration
	OfflineAfter time.Duration
	ErrorHistory int
}

// DefaultSettings mirrors the coordinator defaults.
func DefaultSettings() Settings {
	return Settings{IdleAfter: 2 * time.Minute, OfflineAfter: 5 * time.Minute, ErrorHistory: 10}
}

// Service is the worker registry.
type Service struct {
	store    ports.WorkerStore
	now      func() time.Time
	settings Settings
	logger   *slog.Logger
}

// New builds a registry over store. A nil now uses time.Now.
func New(store ports.WorkerStore, settings Settings, now func() time.Time, logger *slog.Logger) *Service {
	def := DefaultSettings()
	if settings.IdleAfter <= 0 {
		settings.IdleAfter = def.IdleAfter
	}
	if settings.OfflineAfter <= settings.IdleAfter {
		settings.OfflineAfter = max(def.OfflineAfter, settings.IdleAfter+time.Minute)
	}
	if settings.ErrorHistory < 1 {
		settings.ErrorHistory = def.ErrorHistory
	}
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, now: now, settings: settings, logger: logger}
}

// Register creates a worker or, when the identity is already known, refreshes
// the mutable descriptors of the existing record and marks it online.
func (s *Service) Register(ctx context.Context, reg domain.Registration) (domain.WorkerRecord, error) {
	if reg.OperatorID == "" || reg.Host == "" || reg.Aspect == "" {
		return domain.WorkerRecord{}, fmt.Errorf("%w: operator_id, host and aspect are required", ErrInvalidRegistration)
	}

	now := s.now().UTC()
	created := false
	rec, err := s.store.RegisterWorker(ctx, reg.Identity(), func(rec *domain.WorkerRecord, exists bool) {
		if !exists {
			created = true
			*rec = domain.WorkerRecord{
				ID:           newID(),
				OperatorID:   reg.OperatorID,
				Host:         reg.Host,
				Aspect:       reg.Aspect,
				RegisteredAt: now,
			}
		}
		rec.Name = reg.Name
		if rec.Name == "" {
			rec.Name = reg.Aspect + "@" + reg.Host
		}
		rec.Platform = reg.Platform
		rec.Model = reg.Model
		rec.Version = reg.Version
		rec.Capabilities = slices.Clone(reg.Capabilities)
		rec.Status = domain.WorkerOnline
		rec.LastHeartbeatAt = now
	})
	if err != nil {
		return domain.WorkerRecord{}, fmt.Errorf("register worker: %w", err)
	}

	s.info("worker registered", "worker", rec.ID, "operator", rec.OperatorID, "aspect", rec.Aspect, "host", rec.Host, "created", created)
	return rec, nil
}

// Heartbeat applies a liveness report. A report carrying status offline is a
// farewell from a stopping daemon; any other report marks the worker working
// while a task runs and online otherwise.
func (s *Service) Heartbeat(ctx context.Context, id string, report domain.HeartbeatReport) (domain.WorkerRecord, error) {
	now := s.now().UTC()
	rec, err := s.update(ctx, id, func(rec *domain.WorkerRecord) error {
		rec.LastHeartbeatAt = now
		switch {
		case report.Status == domain.WorkerOffline:
			rec.Status = domain.WorkerOffline
		case report.CurrentTask != "":
			rec.Status = domain.WorkerWorking
		default:
			rec.Status = domain.WorkerOnline
		}

		rec.CurrentTask = report.CurrentTask
		rec.QueueDepth = report.QueueDepth
		rec.ScorerReachable = report.ScorerReachable
		rec.Resources = report.Resources
		rec.Counters.TokensProcessed += max(report.Counters.Tokens, 0)
		rec.Counters.UptimeSeconds += max(report.UptimeSeconds, 0)

		if len(report.Errors) > 0 {
			errs := append(slices.Clone(rec.RecentErrors), report.Errors...)
			if len(errs) > s.settings.ErrorHistory {
				errs = errs[len(errs)-s.settings.ErrorHistory:]
			}
			rec.RecentErrors = errs
		}
		return nil
	})
	if err != nil {
		return domain.WorkerRecord{}, err
	}

	s.debug("heartbeat", "worker", id, "status", rec.Status, "task", rec.CurrentTask, "queue", rec.QueueDepth)
	return rec, nil
}

// MarkActivity records an accepted ingestion batch for the worker.
func (s *Service) MarkActivity(ctx context.Context, id string, ingested, surfaced int) (domain.WorkerRecord, error) {
	now := s.now().UTC()
	return s.update(ctx, id, func(rec *domain.WorkerRecord) error {
		rec.Counters.ItemsIngested += int64(ingested)
		rec.Counters.DecisionsSurfaced += int64(surfaced)
		rec.Status = domain.WorkerWorking
		rec.LastActivityAt = now
		return nil
	})
}

// BumpConfigVersion increments the worker's config version; daemons observe
// it in the next heartbeat acknowledgement.
func (s *Service) BumpConfigVersion(ctx context.Context, id string) (domain.WorkerRecord, error) {
	rec, err := s.update(ctx, id, func(rec *domain.WorkerRecord) error {
		rec.ConfigVersion++
		return nil
	})
	if err != nil {
		return domain.WorkerRecord{}, err
	}
	s.info("config version bumped", "worker", id, "version", rec.ConfigVersion)
	return rec, nil
}

// Get returns one worker.
func (s *Service) Get(ctx context.Context, id string) (domain.WorkerRecord, error) {
	rec, err := s.store.GetWorker(ctx, id)
	if errors.Is(err, ports.ErrNotFound) {
		return domain.WorkerRecord{}, fmt.Errorf("%w: %s", ErrUnknownWorker, id)
	}
	if err != nil {
		return domain.WorkerRecord{}, fmt.Errorf("get worker: %w", err)
	}
	return rec, nil
}

// List returns the workers of operatorID, or every worker when it is empty.
func (s *Service) List(ctx context.Context, operatorID string) ([]domain.WorkerRecord, error) {
	ws, err := s.store.ListWorkers(ctx, operatorID)
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	return ws, nil
}

// Remove deletes a worker record.
func (s *Service) Remove(ctx context.Context, id string) error {
	err := s.store.DeleteWorker(ctx, id)
	if errors.Is(err, ports.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrUnknownWorker, id)
	}
	if err != nil {
		return fmt.Errorf("remove worker: %w", err)
	}
	s.info("worker removed", "worker", id)
	return nil
}

func (s *Service) update(ctx context.Context, id string, fn func(rec *domain.WorkerRecord) error) (domain.WorkerRecord, error) {
	rec, err := s.store.UpdateWorker(ctx, id, fn)
	if errors.Is(err, ports.ErrNotFound) {
		return domain.WorkerRecord{}, fmt.Errorf("%w: %s", ErrUnknownWorker, id)
	}
	if err != nil {
		return domain.WorkerRecord{}, fmt.Errorf("update worker %s: %w", id, err)
	}
	return rec, nil
}

func newID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

func (s *Service) info(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s *Service) debug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *Service) warn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}

// Package inbox serves the operator's routed-item queue and its decision
// write path.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"DecideInbox/internal/domain"
	"DecideInbox/internal/ports"
)

var (
	// ErrAlreadyDecided is returned when an item left pending earlier.
	ErrAlreadyDecided = errors.New("item already decided")
	// ErrInvalidStatus is returned for statuses outside the known set.
	ErrInvalidStatus = errors.New("invalid item status")
	// ErrUnknownItem is returned for ids not present in any inbox.
	ErrUnknownItem = errors.New("unknown item")
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// DecisionRecorder is told about every operator decision.
type DecisionRecorder interface {
	RecordDecision(ctx context.Context, operatorID string) (domain.DisclosureState, error)
}

// Service lists and decides routed items.
type Service struct {
	store    ports.InboxStore
	recorder DecisionRecorder
	now      func() time.Time
	logger   *slog.Logger
}

// New builds the inbox service. A nil now uses time.Now.
func New(store ports.InboxStore, recorder DecisionRecorder, now func() time.Time, logger *slog.Logger) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, recorder: recorder, now: now, logger: logger}
}

// List returns the operator's items newest first. An empty status lists
// every item; limit is clamped to [1, 200] with 50 as the default.
func (s *Service) List(ctx context.Context, operatorID string, status domain.ItemStatus, limit int) ([]domain.RoutedItem, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	switch {
	case limit <= 0:
		limit = defaultLimit
	case limit > maxLimit:
		limit = maxLimit
	}

	items, err := s.store.ListRouted(ctx, operatorID, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list inbox: %w", err)
	}
	return items, nil
}

// Decide moves a pending item to approved, ignored or escalated. Each item
// is decided exactly once; the decision then feeds the operator's
// disclosure progression.
func (s *Service) Decide(ctx context.Context, itemID string, status domain.ItemStatus) (domain.RoutedItem, error) {
	if !status.IsDecision() {
		return domain.RoutedItem{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	now := s.now().UTC()
	item, err := s.store.UpdateRouted(ctx, itemID, func(it *domain.RoutedItem) error {
		if it.Status != domain.ItemPending {
			return fmt.Errorf("%w: %s is %s", ErrAlreadyDecided, it.ID, it.Status)
		}
		it.Status = status
		it.DecidedAt = &now
		return nil
	})
	switch {
	case errors.Is(err, ports.ErrNotFound):
		return domain.RoutedItem{}, fmt.Errorf("%w: %s", ErrUnknownItem, itemID)
	case err != nil:
		return domain.RoutedItem{}, err
	}

	if s.recorder != nil {
		if _, err := s.recorder.RecordDecision(ctx, item.OperatorID); err != nil && s.logger != nil {
			s.logger.Warn("record decision failed", "operator", item.OperatorID, "item", item.ID, "error", err)
		}
	}
	if s.logger != nil {
		s.logger.Info("inbox item decided", "operator", item.OperatorID, "item", item.ID, "status", item.Status)
	}
	return item, nil
}

package domain

import "time"

// Route is the gateway's routing destination for a candidate.
type Route string

const (
	RouteInbox    Route = "decide_inbox"
	RouteFeedOnly Route = "feed_only"
	RouteDropped  Route = "dropped"
)

// ItemStatus tracks the operator decision on a routed item.
type ItemStatus string

const (
	ItemPending   ItemStatus = "pending"
	ItemApproved  ItemStatus = "approved"
	ItemIgnored   ItemStatus = "ignored"
	ItemEscalated ItemStatus = "escalated"
)

// IsDecision reports whether s is a terminal operator decision.
func (s ItemStatus) IsDecision() bool {
	return s == ItemApproved || s == ItemIgnored || s == ItemEscalated
}

// Valid reports whether s is a known status.
func (s ItemStatus) Valid() bool {
	return s == ItemPending || s.IsDecision()
}

// RoutedItem is an accepted candidate that landed in an operator's inbox.
type RoutedItem struct {
	ID         string          `json:"id"`
	OperatorID string          `json:"operator_id"`
	Candidate  IngestCandidate `json:"candidate"`
	Status     ItemStatus      `json:"status"`
	RoutedAt   time.Time       `json:"routed_at"`
	DecidedAt  *time.Time      `json:"decided_at,omitempty"`
}

// Activity is the lightweight projection published for every accepted candidate.
type Activity struct {
	ID         string    `json:"id"`
	OperatorID string    `json:"operator_id"`
	WorkerID   string    `json:"worker_id"`
	ItemID     string    `json:"item_id,omitempty"`
	Title      string    `json:"title"`
	Category   Category  `json:"category"`
	Urgency    Urgency   `json:"urgency"`
	Route      Route     `json:"route"`
	SourceName string    `json:"source_name"`
	SignalKeys []string  `json:"signal_keys,omitempty"`
	At         time.Time `json:"at"`
}

// Package api holds the JSON envelopes exchanged between collection daemons,
// operator-facing clients and the coordinator HTTP server.
package api

import "DecideInbox/internal/domain"

// Route paths shared by the server router and the daemon client.
const (
	PathHealth        = "/api/health"
	PathWorkers       = "/api/workers"
	PathIngest        = "/api/ingest"
	PathSignals       = "/api/signals"
	pathWorker        = "/api/workers/"
	pathOperator      = "/api/operators/"
	pathInboxItem     = "/api/inbox/"
	heartbeatSuffix   = "/heartbeat"
	configVersionPart = "/config-version"
)

// WorkerPath returns the resource path of one worker.
func WorkerPath(id string) string { return pathWorker + id }

// HeartbeatPath returns the liveness endpoint of one worker.
func HeartbeatPath(id string) string { return pathWorker + id + heartbeatSuffix }

// ConfigVersionPath returns the config-version bump endpoint of one worker.
func ConfigVersionPath(id string) string { return pathWorker + id + configVersionPart }

// InboxPath lists an operator's routed items.
func InboxPath(operatorID string) string { return pathOperator + operatorID + "/inbox" }

// FeedPath lists an operator's activity feed.
func FeedPath(operatorID string) string { return pathOperator + operatorID + "/feed" }

// DisclosurePath returns an operator's progression record.
func DisclosurePath(operatorID string) string { return pathOperator + operatorID + "/disclosure" }

// OnboardingPath completes an operator's onboarding.
func OnboardingPath(operatorID string) string { return pathOperator + operatorID + "/onboarding" }

// CelebrationAckPath clears an operator's pending celebration.
func CelebrationAckPath(operatorID string) string {
	return pathOperator + operatorID + "/celebration/ack"
}

// DecisionPath records the operator decision on one routed item.
func DecisionPath(itemID string) string { return pathInboxItem + itemID + "/decision" }

// RegisterRequest is the body of POST /api/workers.
type RegisterRequest = domain.Registration

// HeartbeatRequest is the body of POST /api/workers/{id}/heartbeat.
type HeartbeatRequest = domain.HeartbeatReport

// IngestRequest is the body of POST /api/ingest.
type IngestRequest struct {
	Candidates []domain.IngestCandidate `json:"candidates"`
}

// IngestResponse is returned by POST /api/ingest.
type IngestResponse = domain.SubmitResult

// DecisionRequest is the body of POST /api/inbox/{itemID}/decision.
type DecisionRequest struct {
	Status domain.ItemStatus `json:"status"`
}

// WorkerList is returned by GET /api/workers.
type WorkerList struct {
	Workers []domain.WorkerRecord `json:"workers"`
}

// InboxList is returned by GET /api/operators/{id}/inbox.
type InboxList struct {
	Items []domain.RoutedItem `json:"items"`
}

// FeedList is returned by GET /api/operators/{id}/feed.
type FeedList struct {
	Activities []domain.Activity `json:"activities"`
}

// SignalList is returned by GET /api/signals: signal keys seen from several
// operators, mapped to those operators.
type SignalList struct {
	Signals map[string][]string `json:"signals"`
}

// Health is returned by GET /api/health.
type Health struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// Error is the body of every non-2xx response.
type Error struct {
	Error string `json:"error"`
}

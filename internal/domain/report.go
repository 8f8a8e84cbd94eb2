package domain

// EvalContext is passed to the scoring collaborator alongside a batch.
type EvalContext struct {
	OperatorID string
	Aspect     string
	Keywords   []string
}

// Registration is what a daemon declares about itself at startup.
type Registration struct {
	OperatorID   string   `json:"operator_id"`
	Name         string   `json:"name"`
	Aspect       string   `json:"aspect"`
	Host         string   `json:"host"`
	Platform     string   `json:"platform"`
	Model        string   `json:"model,omitempty"`
	Version      string   `json:"version,omitempty"`
	Capabilities []string `json:"capabilities"`
}

// Identity returns the dedup key for the registration.
func (r Registration) Identity() WorkerIdentity {
	return WorkerIdentity{Host: r.Host, Aspect: r.Aspect, OperatorID: r.OperatorID}
}

// Ack is returned by registration and heartbeat calls.
type Ack struct {
	WorkerID      string       `json:"worker_id"`
	Status        WorkerStatus `json:"status"`
	ConfigVersion int64        `json:"config_version"`
}

// ReportCounters are counts accumulated since the previous liveness report.
type ReportCounters struct {
	ItemsFetched      int64 `json:"items_fetched"`
	ItemsSubmitted    int64 `json:"items_submitted"`
	ItemsAccepted     int64 `json:"items_accepted"`
	DecisionsSurfaced int64 `json:"decisions_surfaced"`
	APICalls          int64 `json:"api_calls"`
	Tokens            int64 `json:"tokens"`
	Errors            int64 `json:"errors"`
}

// Add returns the field-wise sum of c and o.
func (c ReportCounters) Add(o ReportCounters) ReportCounters {
	return ReportCounters{
		ItemsFetched:      c.ItemsFetched + o.ItemsFetched,
		ItemsSubmitted:    c.ItemsSubmitted + o.ItemsSubmitted,
		ItemsAccepted:     c.ItemsAccepted + o.ItemsAccepted,
		DecisionsSurfaced: c.DecisionsSurfaced + o.DecisionsSurfaced,
		APICalls:          c.APICalls + o.APICalls,
		Tokens:            c.Tokens + o.Tokens,
		Errors:            c.Errors + o.Errors,
	}
}

// Sub returns the field-wise difference c - o.
func (c ReportCounters) Sub(o ReportCounters) ReportCounters {
	return ReportCounters{
		ItemsFetched:      c.ItemsFetched - o.ItemsFetched,
		ItemsSubmitted:    c.ItemsSubmitted - o.ItemsSubmitted,
		ItemsAccepted:     c.ItemsAccepted - o.ItemsAccepted,
		DecisionsSurfaced: c.DecisionsSurfaced - o.DecisionsSurfaced,
		APICalls:          c.APICalls - o.APICalls,
		Tokens:            c.Tokens - o.Tokens,
		Errors:            c.Errors - o.Errors,
	}
}

// HeartbeatReport is the periodic liveness push from a daemon.
type HeartbeatReport struct {
	Status          WorkerStatus   `json:"status,omitempty"`
	CurrentTask     string         `json:"current_task,omitempty"`
	QueueDepth      int            `json:"queue_depth"`
	Counters        ReportCounters `json:"counters"`
	UptimeSeconds   int64          `json:"uptime_seconds"`
	Resources       ResourceUsage  `json:"resources"`
	ScorerReachable bool           `json:"scorer_reachable"`
	Errors          []string       `json:"errors,omitempty"`
}

// OutcomeStatus is the per-candidate gateway verdict.
type OutcomeStatus string

const (
	OutcomeAccepted     OutcomeStatus = "accepted"
	OutcomeDuplicate    OutcomeStatus = "duplicate"
	OutcomeUnregistered OutcomeStatus = "unregistered"
	OutcomeInvalid      OutcomeStatus = "invalid"
)

// Outcome describes what happened to one submitted candidate.
type Outcome struct {
	Index  int           `json:"index"`
	Status OutcomeStatus `json:"status"`
	Route  Route         `json:"route"`
	ItemID string        `json:"item_id,omitempty"`
	Reason string        `json:"reason,omitempty"`
}

// SubmitResult is the gateway response for one batch.
type SubmitResult struct {
	Outcomes []Outcome `json:"outcomes"`
	Accepted int       `json:"accepted"`
	Dropped  int       `json:"dropped"`
}

// Routed counts outcomes that landed in the inbox.
func (r SubmitResult) Routed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == OutcomeAccepted && o.Route == RouteInbox {
			n++
		}
	}
	return n
}

// Unregistered counts outcomes rejected because the worker id is unknown.
func (r SubmitResult) Unregistered() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == OutcomeUnregistered {
			n++
		}
	}
	return n
}

// Duplicates counts duplicate outcomes.
func (r SubmitResult) Duplicates() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == OutcomeDuplicate {
			n++
		}
	}
	return n
}

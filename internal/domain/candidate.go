package domain

import (
	"regexp"
	"strings"
	"time"
)

var signalKeyExpr = regexp.MustCompile(`[^a-z0-9]+`)

// Category is the closed set of discovery kinds.
type Category string

const (
	CategoryOpportunity   Category = "opportunity"
	CategoryThreat        Category = "threat"
	CategoryTrend         Category = "trend"
	CategoryDiscussion    Category = "discussion"
	CategoryRelease       Category = "release"
	CategoryBug           Category = "bug"
	CategoryIdea          Category = "idea"
	CategoryCompetitor    Category = "competitor"
	CategoryCollaboration Category = "collaboration"
)

var categories = map[Category]struct{}{
	CategoryOpportunity:   {},
	CategoryThreat:        {},
	CategoryTrend:         {},
	CategoryDiscussion:    {},
	CategoryRelease:       {},
	CategoryBug:           {},
	CategoryIdea:          {},
	CategoryCompetitor:    {},
	CategoryCollaboration: {},
}

// ParseCategory normalizes s and reports whether it names a known category.
func ParseCategory(s string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	_, ok := categories[c]
	return c, ok
}

// Urgency enumerates how quickly a discovery needs attention.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// Rank orders urgencies; unknown values rank below low.
func (u Urgency) Rank() int {
	switch u {
	case UrgencyLow:
		return 0
	case UrgencyMedium:
		return 1
	case UrgencyHigh:
		return 2
	case UrgencyCritical:
		return 3
	default:
		return -1
	}
}

// ParseUrgency normalizes s and reports whether it names a known urgency.
func ParseUrgency(s string) (Urgency, bool) {
	u := Urgency(strings.ToLower(strings.TrimSpace(s)))
	return u, u.Rank() >= 0
}

// UrgencyFromScore derives an urgency when the scorer did not provide one.
func UrgencyFromScore(score float64) Urgency {
	switch {
	case score >= 0.9:
		return UrgencyCritical
	case score >= 0.75:
		return UrgencyHigh
	case score >= 0.5:
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}

// IngestCandidate is one discovery submitted by a worker. Immutable once accepted.
type IngestCandidate struct {
	WorkerID        string    `json:"worker_id"`
	OperatorID      string    `json:"operator_id"`
	Category        Category  `json:"category"`
	Urgency         Urgency   `json:"urgency"`
	Confidence      float64   `json:"confidence"`
	Title           string    `json:"title"`
	Summary         string    `json:"summary"`
	Detail          string    `json:"detail,omitempty"`
	SourceURL       string    `json:"source_url,omitempty"`
	SourceName      string    `json:"source_name"`
	SourceType      string    `json:"source_type"`
	SuggestedAction string    `json:"suggested_action,omitempty"`
	Tags            []string  `json:"tags,omitempty"`
	SignalKeys      []string  `json:"signal_keys,omitempty"`
	ContentHash     string    `json:"content_hash"`
	DiscoveredAt    time.Time `json:"discovered_at"`
}

// SignalKey normalizes a keyword or tag into a topical key: lower case,
// runs of other characters collapsed to "-".
func SignalKey(s string) string {
	return strings.Trim(signalKeyExpr.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

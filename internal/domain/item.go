package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// RawItem is a core entity describing a candidate fetched from a source watcher.
type RawItem struct {
	ExternalID  string
	Title       string
	Summary     string
	URL         string
	Author      string
	SourceName  string
	SourceType  string
	ContentHash string
	Tags        []string
	PublishedAt time.Time
	// Matched lists the operator keywords the item matched, if any.
	Matched []string
}

// Text returns the content the scoring collaborator looks at.
func (r RawItem) Text() string {
	if r.Summary == "" {
		return r.Title
	}
	return r.Title + "\n\n" + r.Summary
}

// Evaluation captures the scoring verdict for one raw item.
type Evaluation struct {
	Score           float64  `json:"score"`
	Category        Category `json:"category"`
	Urgency         Urgency  `json:"urgency,omitempty"`
	Rationale       string   `json:"rationale,omitempty"`
	Summary         string   `json:"summary,omitempty"`
	SuggestedAction string   `json:"suggested_action,omitempty"`
	Tags            []string `json:"tags,omitempty"`
}

// Normalize clamps the score and fills category and urgency defaults.
func (e Evaluation) Normalize() Evaluation {
	switch {
	case e.Score < 0:
		e.Score = 0
	case e.Score > 1:
		e.Score = 1
	}
	if c, ok := ParseCategory(string(e.Category)); ok {
		e.Category = c
	} else {
		e.Category = CategoryDiscussion
	}
	if u, ok := ParseUrgency(string(e.Urgency)); ok {
		e.Urgency = u
	} else {
		e.Urgency = UrgencyFromScore(e.Score)
	}
	return e
}

// Usage counts calls and tokens spent on the scoring collaborator.
type Usage struct {
	Calls  int64 `json:"calls"`
	Tokens int64 `json:"tokens"`
}

// ContentHash fingerprints the underlying source content of an item.
func ContentHash(sourceType, externalID string) string {
	sum := sha256.Sum256([]byte(sourceType + "\x00" + externalID))
	return hex.EncodeToString(sum[:])
}

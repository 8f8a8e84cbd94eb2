package domain

import (
	"maps"
	"slices"
	"time"
)

// Stage is a position in the forward-only capability-unlock lattice.
type Stage string

const (
	StageOnboarding  Stage = "onboarding"
	StageActivation  Stage = "activation"
	StageDailyDriver Stage = "daily_driver"
	StageNetworked   Stage = "networked"
	StageDeep        Stage = "deep"
	StageFullCitizen Stage = "full_citizen"
)

var stageOrder = []Stage{
	StageOnboarding,
	StageActivation,
	StageDailyDriver,
	StageNetworked,
	StageDeep,
	StageFullCitizen,
}

// Index returns the position of s in the lattice, or -1 when unknown.
func (s Stage) Index() int {
	return slices.Index(stageOrder, s)
}

// Next returns the following stage; false at the terminal stage.
func (s Stage) Next() (Stage, bool) {
	i := s.Index()
	if i < 0 || i+1 >= len(stageOrder) {
		return s, false
	}
	return stageOrder[i+1], true
}

// Transition records one stage change.
type Transition struct {
	Stage   Stage     `json:"stage"`
	At      time.Time `json:"at"`
	Trigger string    `json:"trigger"`
}

// DisclosureState is the per-operator progression record.
type DisclosureState struct {
	OperatorID         string          `json:"operator_id"`
	Stage              Stage           `json:"stage"`
	Flags              map[string]bool `json:"flags"`
	OnboardingComplete bool            `json:"onboarding_complete"`
	TotalDecisions     int64           `json:"total_decisions"`
	TotalIngested      int64           `json:"total_ingested"`
	ActiveDays         []string        `json:"active_days"`
	DaysActive         int             `json:"days_active"`
	PendingCelebration string          `json:"pending_celebration,omitempty"`
	History            []Transition    `json:"history"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// NewDisclosureState returns the record every operator starts with.
func NewDisclosureState(operatorID string, now time.Time) DisclosureState {
	return DisclosureState{
		OperatorID: operatorID,
		Stage:      StageOnboarding,
		Flags:      map[string]bool{},
		UpdatedAt:  now,
	}
}

// AddActiveDay inserts day into the sorted set and recomputes DaysActive.
func (s *DisclosureState) AddActiveDay(day string) bool {
	i, found := slices.BinarySearch(s.ActiveDays, day)
	if found {
		return false
	}
	s.ActiveDays = slices.Insert(s.ActiveDays, i, day)
	s.DaysActive = len(s.ActiveDays)
	return true
}

// Clone returns a deep copy of s.
func (s DisclosureState) Clone() DisclosureState {
	s.Flags = maps.Clone(s.Flags)
	if s.Flags == nil {
		s.Flags = map[string]bool{}
	}
	s.ActiveDays = slices.Clone(s.ActiveDays)
	s.History = slices.Clone(s.History)
	return s
}

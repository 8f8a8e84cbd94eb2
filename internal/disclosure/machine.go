// Package disclosure advances each operator through the capability-unlock
// stages as decisions and active days accumulate.
package disclosure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"DecideInbox/internal/domain"
	"DecideInbox/internal/ports"
)

// transition is the edge leaving one stage.
type transition struct {
	to      domain.Stage
	unlocks []string
	// check returns the trigger description when the edge may be taken.
	check func(st domain.DisclosureState) (string, bool)
}

func threshold(days int, decisions int64) func(domain.DisclosureState) (string, bool) {
	return func(st domain.DisclosureState) (string, bool) {
		switch {
		case days > 0 && st.DaysActive >= days:
			return fmt.Sprintf("active_days>=%d", days), true
		case st.TotalDecisions >= decisions:
			return fmt.Sprintf("decisions>=%d", decisions), true
		default:
			return "", false
		}
	}
}

var transitions = map[domain.Stage]transition{
	domain.StageOnboarding: {
		to:      domain.StageActivation,
		unlocks: []string{"inbox", "workers"},
		check: func(st domain.DisclosureState) (string, bool) {
			return "onboarding_complete", st.OnboardingComplete
		},
	},
	domain.StageActivation: {
		to:      domain.StageDailyDriver,
		unlocks: []string{"space", "direct_to_agent"},
		check:   threshold(0, 3),
	},
	domain.StageDailyDriver: {
		to:      domain.StageNetworked,
		unlocks: []string{"network", "signals"},
		check:   threshold(7, 30),
	},
	domain.StageNetworked: {
		to:      domain.StageDeep,
		unlocks: []string{"analytics", "automations"},
		check:   threshold(14, 75),
	},
	domain.StageDeep: {
		to:      domain.StageFullCitizen,
		unlocks: []string{"governance"},
		check:   threshold(21, 100),
	},
}

// Unlocks returns the flags granted on entering stage.
func Unlocks(stage domain.Stage) []string {
	for _, tr := range transitions {
		if tr.to == stage {
			return append([]string(nil), tr.unlocks...)
		}
	}
	return nil
}

// Machine is the per-operator progression engine. Every call is one atomic
// read-modify-write of the operator's record.
type Machine struct {
	store  ports.DisclosureStore
	caps   ports.CapabilityProvider
	loc    *time.Location
	now    func() time.Time
	logger *slog.Logger
}

// NewMachine builds the state machine. Active days are bucketed in loc.
func NewMachine(store ports.DisclosureStore, caps ports.CapabilityProvider, loc *time.Location, now func() time.Time, logger *slog.Logger) *Machine {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	if caps == nil {
		caps = StaticCapabilities{}
	}
	return &Machine{store: store, caps: caps, loc: loc, now: now, logger: logger}
}

// CompleteOnboarding marks onboarding done. Only the onboarding edge is
// evaluated, so repeating it leaves stage and history alone.
func (m *Machine) CompleteOnboarding(ctx context.Context, operatorID string) (domain.DisclosureState, error) {
	return m.mutate(ctx, operatorID, onboardingOnly, func(st *domain.DisclosureState, _ time.Time) {
		st.OnboardingComplete = true
	})
}

// RecordDecision counts one operator decision and today's activity, then
// evaluates the current stage's transition.
func (m *Machine) RecordDecision(ctx context.Context, operatorID string) (domain.DisclosureState, error) {
	return m.mutate(ctx, operatorID, anyStage, func(st *domain.DisclosureState, now time.Time) {
		st.TotalDecisions++
		st.AddActiveDay(now.In(m.loc).Format(time.DateOnly))
	})
}

// RecordIngestion adds count to the ingestion counter. It does not evaluate
// stage transitions.
func (m *Machine) RecordIngestion(ctx context.Context, operatorID string, count int) (domain.DisclosureState, error) {
	return m.mutate(ctx, operatorID, nil, func(st *domain.DisclosureState, _ time.Time) {
		st.TotalIngested += int64(max(count, 0))
	})
}

// AcknowledgeCelebration clears the pending celebration marker.
func (m *Machine) AcknowledgeCelebration(ctx context.Context, operatorID string) (domain.DisclosureState, error) {
	st, err := m.store.UpdateDisclosure(ctx, operatorID, func(st *domain.DisclosureState) error {
		if st.UpdatedAt.IsZero() {
			st.UpdatedAt = m.now().UTC()
		}
		st.PendingCelebration = ""
		return nil
	})
	if err != nil {
		return domain.DisclosureState{}, fmt.Errorf("acknowledge celebration: %w", err)
	}
	return st, nil
}

// State returns the operator's record, or a fresh onboarding record when the
// operator has none yet.
func (m *Machine) State(ctx context.Context, operatorID string) (domain.DisclosureState, error) {
	st, err := m.store.GetDisclosure(ctx, operatorID)
	if errors.Is(err, ports.ErrNotFound) {
		return domain.NewDisclosureState(operatorID, m.now().UTC()), nil
	}
	if err != nil {
		return domain.DisclosureState{}, fmt.Errorf("disclosure state: %w", err)
	}
	return st, nil
}

func onboardingOnly(s domain.Stage) bool { return s == domain.StageOnboarding }

func anyStage(domain.Stage) bool { return true }

// mutate applies fn and the capability flags, then takes the current stage's
// transition when evaluate accepts that stage. A nil evaluate never advances.
func (m *Machine) mutate(ctx context.Context, operatorID string, evaluate func(domain.Stage) bool, fn func(st *domain.DisclosureState, now time.Time)) (domain.DisclosureState, error) {
	available := m.caps.Available(ctx)
	now := m.now().UTC()

	var advanced *domain.Transition
	st, err := m.store.UpdateDisclosure(ctx, operatorID, func(st *domain.DisclosureState) error {
		advanced = nil
		fn(st, now)
		for _, flag := range available {
			st.Flags[flag] = true
		}
		if evaluate != nil && evaluate(st.Stage) {
			advanced = step(st, now)
		}
		st.UpdatedAt = now
		return nil
	})
	if err != nil {
		return domain.DisclosureState{}, fmt.Errorf("update disclosure %s: %w", operatorID, err)
	}

	if advanced != nil && m.logger != nil {
		m.logger.Info("disclosure stage advanced", "operator", operatorID, "stage", advanced.Stage, "trigger", advanced.Trigger)
	}
	return st, nil
}

// step takes at most one transition out of the current stage.
func step(st *domain.DisclosureState, now time.Time) *domain.Transition {
	tr, ok := transitions[st.Stage]
	if !ok {
		return nil
	}
	trigger, ok := tr.check(*st)
	if !ok {
		return nil
	}

	st.Stage = tr.to
	for _, flag := range tr.unlocks {
		st.Flags[flag] = true
	}
	rec := domain.Transition{Stage: tr.to, At: now, Trigger: trigger}
	st.History = append(st.History, rec)
	st.PendingCelebration = string(tr.to)
	return &rec
}

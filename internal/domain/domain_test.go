package domain

import "testing"

func TestEvaluationNormalize(t *testing.T) {
	t.Parallel()

	e := Evaluation{Score: 1.4, Category: " Release "}.Normalize()
	if e.Score != 1 {
		t.Fatalf("expected clamped score 1, got %v", e.Score)
	}
	if e.Category != CategoryRelease {
		t.Fatalf("unexpected category: %s", e.Category)
	}
	if e.Urgency != UrgencyCritical {
		t.Fatalf("expected urgency derived from score, got %s", e.Urgency)
	}

	e = Evaluation{Score: 0.6, Category: "gossip", Urgency: "HIGH"}.Normalize()
	if e.Category != CategoryDiscussion {
		t.Fatalf("unknown category should fall back to discussion, got %s", e.Category)
	}
	if e.Urgency != UrgencyHigh {
		t.Fatalf("explicit urgency should be kept, got %s", e.Urgency)
	}
}

func TestStageNext(t *testing.T) {
	t.Parallel()

	next, ok := StageDeep.Next()
	if !ok || next != StageFullCitizen {
		t.Fatalf("unexpected next stage: %s %v", next, ok)
	}
	if _, ok := StageFullCitizen.Next(); ok {
		t.Fatalf("full_citizen must be terminal")
	}
	if StageOnboarding.Index() >= StageActivation.Index() {
		t.Fatalf("stages out of order")
	}
}

func TestAddActiveDayCountsDistinctDays(t *testing.T) {
	t.Parallel()

	var s DisclosureState
	s.AddActiveDay("2026-10-19")
	s.AddActiveDay("2026-10-18")
	if s.AddActiveDay("2026-10-19") {
		t.Fatalf("same day must not be added twice")
	}
	if s.DaysActive != 2 || len(s.ActiveDays) != 2 {
		t.Fatalf("expected 2 active days, got %d", s.DaysActive)
	}
	if s.ActiveDays[0] != "2026-10-18" {
		t.Fatalf("days should stay sorted: %v", s.ActiveDays)
	}
}

func TestContentHashSeparatesSourceTypes(t *testing.T) {
	t.Parallel()

	a := ContentHash("feed", "42")
	if a != ContentHash("feed", "42") {
		t.Fatalf("hash must be stable")
	}
	if a == ContentHash("github", "42") {
		t.Fatalf("same id from different source types must not collide")
	}
	if len(a) != 64 {
		t.Fatalf("expected hex sha256, got %q", a)
	}
}

func TestSignalKey(t *testing.T) {
	t.Parallel()

	if got := SignalKey("  Large Language Models! "); got != "large-language-models" {
		t.Fatalf("unexpected key: %q", got)
	}
	if got := SignalKey("Go 1.25"); got != "go-1-25" {
		t.Fatalf("unexpected key: %q", got)
	}
}

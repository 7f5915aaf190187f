package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"persona-mirror/internal/domain"
	"persona-mirror/internal/repository"
)

func newTestBuilder() *SnapshotBuilder {
	b := NewSnapshotBuilder(zap.NewNop())
	b.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	return b
}

func buildIn(t *testing.T, store *repository.MemoryStore, userID string) domain.PersonaSnapshot {
	t.Helper()
	var snap domain.PersonaSnapshot
	err := store.WithUserTx(context.Background(), userID, func(ctx context.Context, repos repository.Repos) error {
		var err error
		snap, err = newTestBuilder().Build(ctx, repos, userID)
		return err
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return snap
}

func TestSnapshotBuilder_EmptyUser(t *testing.T) {
	store := repository.NewMemoryStore()
	snap := buildIn(t, store, "ghost")

	if snap.StabilityIndex != domain.EmptySnapshotStability {
		t.Fatalf("expected stability %v, got %v", domain.EmptySnapshotStability, snap.StabilityIndex)
	}
	if snap.SummaryText != domain.InsufficientDataSummary {
		t.Fatalf("unexpected summary: %q", snap.SummaryText)
	}
	if snap.PersonaVector == nil || len(snap.PersonaVector) != 0 {
		t.Fatalf("expected empty non-nil vector, got %#v", snap.PersonaVector)
	}
	if snap.ID == "" {
		t.Fatalf("expected snapshot id")
	}

	latest, err := store.Snapshots().GetLatestByUser(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.ID != snap.ID {
		t.Fatalf("expected persisted snapshot %s, got %s", snap.ID, latest.ID)
	}
}

func TestSnapshotBuilder_VectorAndExactStability(t *testing.T) {
	store := repository.NewMemoryStore()
	metrics := []domain.TraitMetric{
		{UserID: "u1", TraitName: domain.TraitCommunicationStyle, Score: 0.81234, Confidence: 0.33333, EvidenceCount: 4},
		{UserID: "u1", TraitName: domain.TraitDecisionFraming, Score: 0.2, Confidence: 0.71111, EvidenceCount: 9},
		{UserID: "u1", TraitName: domain.TraitReflectionDepth, Score: 0.66666, Confidence: 0.2, EvidenceCount: 3},
	}
	for _, m := range metrics {
		seedMetric(t, store.Traits(), m)
	}

	snap := buildIn(t, store, "u1")

	want := domain.PersonaVector{
		domain.GroupBehavioralProfile: {
			domain.TraitCommunicationStyle: {Score: 0.812, Confidence: 0.333},
			domain.TraitDecisionFraming:    {Score: 0.2, Confidence: 0.711},
			domain.TraitReflectionDepth:    {Score: 0.667, Confidence: 0.2},
		},
	}
	if diff := cmp.Diff(want, snap.PersonaVector); diff != "" {
		t.Fatalf("persona vector mismatch (-want +got):\n%s", diff)
	}

	stored, _ := store.Traits().ListByUser(context.Background(), "u1")
	if snap.StabilityIndex != meanConfidence(stored, 0) {
		t.Fatalf("expected exact mean confidence %v, got %v", meanConfidence(stored, 0), snap.StabilityIndex)
	}
}

func TestSummarizeProfile(t *testing.T) {
	metrics := []domain.TraitMetric{
		{TraitName: domain.TraitCommunicationStyle, Score: 0.8, Confidence: 0.6},
		{TraitName: domain.TraitDecisionFraming, Score: 0.2, Confidence: 0.25},
		{TraitName: domain.TraitEmotionalExpressiveness, Score: 0.5, Confidence: 0.9},
		{TraitName: domain.TraitReflectionDepth, Score: 0.65, Confidence: 0.1},
	}
	got := SummarizeProfile(metrics, meanConfidence(metrics, 0))
	want := "This is a developing personality profile. " +
		"Key characteristics include very high communication style, high reflection depth, and moderate emotional expressiveness. " +
		"The profile shows variability in reflection depth, and decision framing."
	if got != want {
		t.Fatalf("summary mismatch:\nwant %q\n got %q", want, got)
	}
}

func TestSummarizeProfile_SingleStableTrait(t *testing.T) {
	metrics := []domain.TraitMetric{{TraitName: domain.TraitReflectionDepth, Score: 0.1, Confidence: 0.8}}
	got := SummarizeProfile(metrics, 0.8)
	want := "This is a well-established personality profile. Key characteristics include very low reflection depth."
	if got != want {
		t.Fatalf("summary mismatch:\nwant %q\n got %q", want, got)
	}
}

func TestJoinWithAnd(t *testing.T) {
	cases := map[int]string{0: "", 1: "a", 2: "a, and b", 3: "a, b, and c"}
	items := []string{"a", "b", "c"}
	for n, want := range cases {
		if got := joinWithAnd(items[:n]); got != want {
			t.Fatalf("joinWithAnd(%d): expected %q, got %q", n, want, got)
		}
	}
}

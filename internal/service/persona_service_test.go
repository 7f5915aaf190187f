package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"persona-mirror/internal/domain"
	"persona-mirror/internal/llm"
	"persona-mirror/internal/repository"
)

const idkMaybeNudges = `{"nudges": [{"trait": "communication_style", "signal": 0.2, "strength": 0.12}, {"trait": "decision_framing", "signal": 0.15, "strength": 0.15}]}`

func newScriptedClient(reply string) *llm.MockClient {
	return &llm.MockClient{Func: func(req llm.ChatRequest) (string, error) {
		if req.MaxTokens == extractionMaxTokens {
			return idkMaybeNudges, nil
		}
		return reply, nil
	}}
}

func newTestPersonaService(store repository.Store, client llm.LLMClient, cfg PersonaServiceConfig) *PersonaService {
	logger := zap.NewNop()
	return NewPersonaService(PersonaDeps{
		Store:     store,
		Extractor: NewSignalExtractor(client, logger),
		Replies:   NewReplyGenerator(client, NewFallbackBuilder(nil, 11), time.Second, logger),
	}, cfg, logger)
}

func mirrorRequests(client *llm.MockClient) []llm.ChatRequest {
	var out []llm.ChatRequest
	for _, r := range client.Requests() {
		if r.MaxTokens == mirrorMaxTokens {
			out = append(out, r)
		}
	}
	return out
}

func TestProcessMessage_EndToEnd(t *testing.T) {
	store := repository.NewMemoryStore()
	client := newScriptedClient("same, no rush on deciding")
	svc := newTestPersonaService(store, client, PersonaServiceConfig{SnapshotEvery: 1, HistoryTurns: 10})
	ctx := context.Background()

	res, err := svc.ProcessMessage(ctx, " u1 ", "idk maybe")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.TraitsUpdated != 2 {
		t.Fatalf("expected 2 traits updated, got %d", res.TraitsUpdated)
	}
	if res.SnapshotID == "" || res.Summary == "" {
		t.Fatalf("expected snapshot data, got %+v", res)
	}
	if res.DetectedEmotion != domain.EmotionInsecurity || res.ActiveArchetype != domain.ArchetypeDominant {
		t.Fatalf("expected insecurity/dominant, got %s/%s", res.DetectedEmotion, res.ActiveArchetype)
	}
	if res.ReplyText != "same, no rush on deciding" || res.ReplySource != ReplySourceLLM {
		t.Fatalf("unexpected reply: %+v", res)
	}

	turns, err := store.Turns().ListRecent(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("turns: %v", err)
	}
	if len(turns) != 2 || turns[0].Role != domain.RoleUser || turns[1].Role != domain.RoleAssistant {
		t.Fatalf("expected user then assistant turn, got %+v", turns)
	}

	metrics, _ := store.Traits().ListByUser(ctx, "u1")
	if len(metrics) != 2 {
		t.Fatalf("expected 2 stored metrics, got %d", len(metrics))
	}
	if res.StabilityIndex != meanConfidence(metrics, 0) {
		t.Fatalf("expected stability %v, got %v", meanConfidence(metrics, 0), res.StabilityIndex)
	}
}

func TestProcessMessage_ReplaysHistoryAndMirrorsSnapshot(t *testing.T) {
	store := repository.NewMemoryStore()
	client := newScriptedClient("fair enough")
	svc := newTestPersonaService(store, client, PersonaServiceConfig{SnapshotEvery: 1, HistoryTurns: 10})
	ctx := context.Background()

	if _, err := svc.ProcessMessage(ctx, "u1", "idk maybe"); err != nil {
		t.Fatalf("first: %v", err)
	}
	res, err := svc.ProcessMessage(ctx, "u1", "still not sure tbh")
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if !res.MirroringActive {
		t.Fatalf("expected mirroring to use the stored snapshot")
	}

	reqs := mirrorRequests(client)
	if len(reqs) != 2 {
		t.Fatalf("expected 2 mirror requests, got %d", len(reqs))
	}
	last := reqs[1]
	if len(last.Messages) != 3 || last.Messages[0].Content != "idk maybe" || last.Messages[1].Content != "fair enough" {
		t.Fatalf("expected previous turns replayed, got %+v", last.Messages)
	}
	if !strings.Contains(last.SystemPrompt, "precision mirror") {
		t.Fatalf("expected trait-based prompt on second message")
	}
}

func TestProcessMessage_Validation(t *testing.T) {
	svc := newTestPersonaService(repository.NewMemoryStore(), nil, PersonaServiceConfig{})
	ctx := context.Background()

	if _, err := svc.ProcessMessage(ctx, "u1", "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if _, err := svc.ProcessMessage(ctx, "", "hi"); !errors.Is(err, ErrInvalidUserID) {
		t.Fatalf("expected ErrInvalidUserID, got %v", err)
	}
	if _, err := svc.Reflect(ctx, strings.Repeat("x", maxUserIDLength+1), "hi"); !errors.Is(err, ErrInvalidUserID) {
		t.Fatalf("expected ErrInvalidUserID for long id, got %v", err)
	}
}

func TestProcessMessage_WithoutLLM(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newTestPersonaService(store, nil, PersonaServiceConfig{SnapshotEvery: 1})

	res, err := svc.ProcessMessage(context.Background(), "u1", "Yoooo!!!")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.TraitsUpdated != 0 || res.StabilityIndex != 0.5 {
		t.Fatalf("expected no trait updates, got %+v", res)
	}
	if res.Summary != domain.InsufficientDataSummary {
		t.Fatalf("expected insufficient-data snapshot, got %q", res.Summary)
	}
	if res.ReplySource != ReplySourceFallback || res.FallbackReason != "unavailable" || res.ReplyText == "" {
		t.Fatalf("expected local fallback, got %+v", res)
	}
	if res.DetectedEmotion != domain.EmotionExcitement {
		t.Fatalf("expected excitement, got %s", res.DetectedEmotion)
	}
}

func TestProcessMessage_SnapshotCadence(t *testing.T) {
	store := repository.NewMemoryStore()
	client := newScriptedClient("ok")
	svc := newTestPersonaService(store, client, PersonaServiceConfig{SnapshotEvery: 3})
	ctx := context.Background()

	var ids []string
	for i := 0; i < 4; i++ {
		res, err := svc.ProcessMessage(ctx, "u1", fmt.Sprintf("message %d", i))
		if err != nil {
			t.Fatalf("process %d: %v", i, err)
		}
		ids = append(ids, res.SnapshotID)
	}
	if ids[0] == "" || ids[1] != ids[0] {
		t.Fatalf("expected first snapshot to be reused by message 2, got %v", ids)
	}
	if ids[2] == ids[1] || ids[3] != ids[2] {
		t.Fatalf("expected a new snapshot on the third message only, got %v", ids)
	}

	snaps, _ := store.Snapshots().ListByUser(ctx, "u1", 10)
	if len(snaps) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snaps))
	}
}

func TestProcessMessage_ConcurrentSameUserNoLostUpdates(t *testing.T) {
	store := repository.NewMemoryStore()
	client := newScriptedClient("ok")
	svc := newTestPersonaService(store, client, PersonaServiceConfig{SnapshotEvery: 1})
	ctx := context.Background()

	const n = 12
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := svc.ProcessMessage(ctx, "u1", fmt.Sprintf("msg %d", i)); err != nil {
				t.Errorf("process %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	for _, trait := range []string{domain.TraitCommunicationStyle, domain.TraitDecisionFraming} {
		m, err := store.Traits().Get(ctx, "u1", trait)
		if err != nil {
			t.Fatalf("get %s: %v", trait, err)
		}
		if m.EvidenceCount != n {
			t.Fatalf("%s: expected evidence %d, got %d", trait, n, m.EvidenceCount)
		}
		if !m.InBounds() {
			t.Fatalf("%s out of bounds: %+v", trait, m)
		}
	}
}

func TestReflect_InvalidatesCachedProfile(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newTestPersonaService(store, newScriptedClient("ok"), PersonaServiceConfig{})
	ctx := context.Background()

	if _, err := svc.Profile(ctx, "u1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound before any snapshot, got %v", err)
	}

	first, err := svc.Reflect(ctx, "u1", "idk maybe")
	if err != nil {
		t.Fatalf("reflect: %v", err)
	}
	if first.TraitsExtracted != 2 || first.TraitsUpdated != 2 {
		t.Fatalf("unexpected reflection: %+v", first)
	}
	if first.StabilityIndex != round3(first.StabilityIndex) {
		t.Fatalf("expected rounded stability, got %v", first.StabilityIndex)
	}
	profile, err := svc.Profile(ctx, "u1")
	if err != nil || profile.ID != first.SnapshotID {
		t.Fatalf("expected profile %s, got %+v (%v)", first.SnapshotID, profile, err)
	}

	second, err := svc.Reflect(ctx, "u1", "idk maybe")
	if err != nil {
		t.Fatalf("reflect: %v", err)
	}
	profile, err = svc.Profile(ctx, "u1")
	if err != nil || profile.ID != second.SnapshotID {
		t.Fatalf("expected refreshed profile %s, got %s (%v)", second.SnapshotID, profile.ID, err)
	}

	history, err := svc.Snapshots(ctx, "u1", 5)
	if err != nil || len(history) != 2 || history[0].ID != second.SnapshotID {
		t.Fatalf("unexpected snapshot history: %+v (%v)", history, err)
	}
}

type failingTxStore struct {
	*repository.MemoryStore
}

func (failingTxStore) WithUserTx(context.Context, string, func(context.Context, repository.Repos) error) error {
	return errors.New("db unavailable")
}

func TestProcessMessage_StoreFailurePropagates(t *testing.T) {
	store := failingTxStore{repository.NewMemoryStore()}
	svc := newTestPersonaService(store, newScriptedClient("ok"), PersonaServiceConfig{})

	if _, err := svc.ProcessMessage(context.Background(), "u1", "hello"); err == nil {
		t.Fatalf("expected store failure to surface")
	}
	turns, _ := store.Turns().ListRecent(context.Background(), "u1", 10)
	if len(turns) != 0 {
		t.Fatalf("expected no turns persisted on failure, got %d", len(turns))
	}
}

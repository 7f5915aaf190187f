package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"persona-mirror/internal/domain"
	"persona-mirror/internal/llm"
)

type blockingClient struct{}

func (blockingClient) Generate(ctx context.Context, _ llm.ChatRequest) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestReplyGenerator_UsesLLMReply(t *testing.T) {
	client := &llm.MockClient{Response: "  yeah that tracks  "}
	g := NewReplyGenerator(client, NewFallbackBuilder(nil, 1), time.Second, zap.NewNop())

	history := []domain.Turn{
		{Role: domain.RoleUser, Content: "hey"},
		{Role: domain.RoleAssistant, Content: "yo"},
	}
	reply := g.Generate(context.Background(), ReplyInput{
		UserID:       "u1",
		UserText:     "long day",
		SystemPrompt: "mirror them",
		History:      history,
	})
	if reply.Source != ReplySourceLLM || reply.Text != "yeah that tracks" || reply.FallbackReason != "" {
		t.Fatalf("unexpected reply: %+v", reply)
	}

	req := client.Requests()[0]
	if req.SystemPrompt != "mirror them" || req.MaxTokens != mirrorMaxTokens || req.Temperature != mirrorTemperature {
		t.Fatalf("unexpected request: %+v", req)
	}
	if len(req.Messages) != 3 || req.Messages[2].Role != domain.RoleUser || req.Messages[2].Content != "long day" {
		t.Fatalf("expected history followed by the user message, got %+v", req.Messages)
	}
}

func TestReplyGenerator_FallbackReasons(t *testing.T) {
	cases := []struct {
		name   string
		client llm.LLMClient
		reason string
	}{
		{name: "unavailable", client: nil, reason: "unavailable"},
		{name: "error", client: &llm.MockClient{Err: errors.New("401 unauthorized")}, reason: "error"},
		{name: "rate limited", client: &llm.MockClient{Err: llm.ErrRateLimited}, reason: "rate_limited"},
		{name: "empty", client: &llm.MockClient{Response: "   "}, reason: "empty"},
		{name: "echo", client: &llm.MockClient{Response: "Long   DAY"}, reason: "echo"},
		{name: "banned phrase", client: &llm.MockClient{Response: "It seems that you are tired."}, reason: "banned_phrase"},
		{name: "timeout", client: blockingClient{}, reason: "timeout"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := NewReplyGenerator(tc.client, NewFallbackBuilder(nil, 1), 20*time.Millisecond, zap.NewNop())
			reply := g.Generate(context.Background(), ReplyInput{
				UserID:    "u1",
				UserText:  "long day",
				Archetype: domain.ArchetypeCalm,
			})
			if reply.Source != ReplySourceFallback || reply.FallbackReason != tc.reason {
				t.Fatalf("expected fallback with reason %s, got %+v", tc.reason, reply)
			}
			if reply.Text == "" || isEcho(reply.Text, "long day") {
				t.Fatalf("fallback reply must be non-empty and not an echo, got %q", reply.Text)
			}
		})
	}
}

func TestReplyGenerator_SingleAttempt(t *testing.T) {
	client := &llm.MockClient{Err: errors.New("boom")}
	g := NewReplyGenerator(client, nil, time.Second, zap.NewNop())
	g.Generate(context.Background(), ReplyInput{UserID: "u1", UserText: "hi"})
	if client.Calls() != 1 {
		t.Fatalf("expected exactly one generation attempt, got %d", client.Calls())
	}
}

func TestReplyGenerator_RateLimitedClient(t *testing.T) {
	inner := &llm.MockClient{Response: "sure thing"}
	limited := llm.NewRateLimitedClient(inner, 0.001, 1)
	g := NewReplyGenerator(limited, NewFallbackBuilder(nil, 1), time.Second, zap.NewNop())

	first := g.Generate(context.Background(), ReplyInput{UserID: "u1", UserText: "hi"})
	second := g.Generate(context.Background(), ReplyInput{UserID: "u1", UserText: "hi again"})
	if first.Source != ReplySourceLLM {
		t.Fatalf("expected first call to reach the llm, got %+v", first)
	}
	if second.FallbackReason != "rate_limited" {
		t.Fatalf("expected second call to be rate limited, got %+v", second)
	}
	if inner.Calls() != 1 {
		t.Fatalf("expected one upstream call, got %d", inner.Calls())
	}
}

func TestContainsBannedPhrase(t *testing.T) {
	if !ContainsBannedPhrase("Honestly, You Tend To overthink") {
		t.Fatalf("expected case-insensitive match")
	}
	if ContainsBannedPhrase("you got this") {
		t.Fatalf("unexpected banned phrase match")
	}
}

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func TestHTTPClientSendsSystemPromptAndHistory(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("expected /chat/completions, got %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret" {
			t.Errorf("expected bearer auth, got %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hey there"}}]}`))
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL+"/", "secret", "test-model", time.Second, zaptest.NewLogger(t))
	out, err := client.Generate(context.Background(), ChatRequest{
		SystemPrompt: "be brief",
		Messages: []Message{
			{Role: "user", Content: "hi"},
			{Role: "assistant", Content: "yo"},
			{Role: "user", Content: "sup"},
		},
		MaxTokens:   180,
		Temperature: 0.65,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out != "hey there" {
		t.Fatalf("expected reply 'hey there', got %q", out)
	}
	if got.Model != "test-model" || got.MaxTokens != 180 || got.Temperature != 0.65 {
		t.Fatalf("unexpected request params: %+v", got)
	}
	if len(got.Messages) != 4 || got.Messages[0].Role != "system" || got.Messages[3].Content != "sup" {
		t.Fatalf("unexpected messages: %+v", got.Messages)
	}
}

func TestHTTPClientErrors(t *testing.T) {
	cases := map[string]struct {
		status int
		body   string
	}{
		"http error":  {status: http.StatusTooManyRequests, body: `{"error":{"message":"quota"}}`},
		"api error":   {status: http.StatusOK, body: `{"error":{"message":"bad key"}}`},
		"empty reply": {status: http.StatusOK, body: `{"choices":[{"message":{"content":"  "}}]}`},
		"bad json":    {status: http.StatusOK, body: `not json`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			client := NewHTTPClient(srv.URL, "k", "m", time.Second, nil)
			if _, err := client.Generate(context.Background(), ChatRequest{Messages: []Message{{Role: "user", Content: "x"}}}); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestHTTPClientHonoursTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client := NewHTTPClient(srv.URL, "k", "m", 50*time.Millisecond, nil)
	start := time.Now()
	if _, err := client.Generate(context.Background(), ChatRequest{}); err == nil {
		t.Fatalf("expected timeout error")
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("expected bounded wait, took %s", time.Since(start))
	}
}

func TestRateLimitedClientFailsFast(t *testing.T) {
	mock := &MockClient{Response: "ok"}
	client := NewRateLimitedClient(mock, 0.001, 1)

	if out, err := client.Generate(context.Background(), ChatRequest{}); err != nil || out != "ok" {
		t.Fatalf("expected first call to pass, got %q %v", out, err)
	}
	_, err := client.Generate(context.Background(), ChatRequest{})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if mock.Calls() != 1 {
		t.Fatalf("expected 1 upstream call, got %d", mock.Calls())
	}
}

func TestMockClientRecordsRequests(t *testing.T) {
	mock := &MockClient{Func: func(req ChatRequest) (string, error) {
		return req.SystemPrompt, nil
	}}
	out, err := mock.Generate(context.Background(), ChatRequest{SystemPrompt: "echo"})
	if err != nil || out != "echo" {
		t.Fatalf("expected echo, got %q %v", out, err)
	}
	if reqs := mock.Requests(); len(reqs) != 1 || reqs[0].SystemPrompt != "echo" {
		t.Fatalf("expected recorded request, got %+v", reqs)
	}
}

package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"persona-mirror/internal/service"
)

func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("LLM_API_KEY", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("JWT_SECRET", "")
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestReflectThenProfile_PersistsInSQLite(t *testing.T) {
	isolateEnv(t)
	dbPath := filepath.Join(t.TempDir(), "persona.db")

	out, err := execute(t, "", "reflect", "--store", "sqlite", "--sqlite-path", dbPath, "-u", "ana", "idk", "maybe")
	if err != nil {
		t.Fatalf("reflect: %v", err)
	}
	if !strings.Contains(out, "Snapshot:") {
		t.Fatalf("expected snapshot line, got %q", out)
	}

	out, err = execute(t, "", "profile", "--store", "sqlite", "--sqlite-path", dbPath, "-u", "ana")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if !strings.Contains(out, "Stability:") || strings.Contains(out, "No persona snapshot") {
		t.Fatalf("expected stored profile, got %q", out)
	}
}

func TestProfile_EmptyUser(t *testing.T) {
	isolateEnv(t)
	out, err := execute(t, "", "profile", "--store", "memory", "-u", "nobody")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if !strings.Contains(out, `No persona snapshot for "nobody"`) {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestMetrics_EmptyUser(t *testing.T) {
	isolateEnv(t)
	out, err := execute(t, "", "metrics", "--store", "memory")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	if !strings.Contains(out, "No trait metrics") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestChat_InteractiveSessionUsesFallbackWithoutLLM(t *testing.T) {
	isolateEnv(t)
	out, err := execute(t, "hello there\n\n/profile\n/quit\n", "chat", "--store", "memory", "--traits")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if !strings.Contains(out, "source=fallback") {
		t.Fatalf("expected fallback reply, got %q", out)
	}
	if !strings.Contains(out, "Snapshot:") {
		t.Fatalf("expected /profile to print the first snapshot, got %q", out)
	}
}

func TestChat_RejectsBlankMessage(t *testing.T) {
	isolateEnv(t)
	if _, err := execute(t, "", "chat", "--store", "memory", "   "); err == nil {
		t.Fatalf("expected error for blank message")
	}
}

func TestToken_IssuesParseableToken(t *testing.T) {
	isolateEnv(t)
	t.Setenv("JWT_SECRET", "cli-secret")

	out, err := execute(t, "", "token", "-u", "ana")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	claims, err := service.NewJWTService("cli-secret", time.Hour).ParseAccessToken(strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.UserID != "ana" {
		t.Fatalf("expected uid ana, got %s", claims.UserID)
	}
}

func TestToken_RequiresSecret(t *testing.T) {
	isolateEnv(t)
	if _, err := execute(t, "", "token"); err == nil {
		t.Fatalf("expected error without JWT_SECRET")
	}
}

func TestUnknownStore(t *testing.T) {
	isolateEnv(t)
	if _, err := execute(t, "", "metrics", "--store", "mongo"); err == nil {
		t.Fatalf("expected error for unknown store")
	}
}

package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"persona-mirror/internal/domain"
	"persona-mirror/internal/llm"
)

const (
	mirrorMaxTokens   = 180
	mirrorTemperature = 0.65

	ReplySourceLLM      = "llm"
	ReplySourceFallback = "fallback"
)

// Frases que delatan tono de analisis/terapia; la respuesta se descarta si aparece alguna.
var bannedMirrorPhrases = []string{
	"you tend to",
	"this suggests",
	"it seems that",
	"you seem",
	"it looks like",
	"what this indicates",
	"observed pattern",
	"what it might indicate",
	"reflective challenge",
}

// ContainsBannedPhrase reporta si el texto viola las reglas del espejo.
func ContainsBannedPhrase(text string) bool {
	return containsAny(strings.ToLower(text), bannedMirrorPhrases)
}

// ReplyInput agrupa lo necesario para una respuesta del espejo.
type ReplyInput struct {
	UserID       string
	UserText     string
	SystemPrompt string
	History      []domain.Turn
	Style        domain.StyleProfile
	Archetype    domain.Archetype
}

// Reply es la respuesta final y su origen.
type Reply struct {
	Text           string `json:"text"`
	Source         string `json:"source"`
	FallbackReason string `json:"fallback_reason,omitempty"`
}

// ReplyGenerator hace un unico intento contra el LLM acotado por timeout y cae
// a la respuesta local ante error, respuesta vacia, eco o frase prohibida.
type ReplyGenerator struct {
	llmClient llm.LLMClient
	fallback  *FallbackBuilder
	timeout   time.Duration
	logger    *zap.Logger
}

func NewReplyGenerator(llmClient llm.LLMClient, fallback *FallbackBuilder, timeout time.Duration, logger *zap.Logger) *ReplyGenerator {
	if fallback == nil {
		fallback = NewFallbackBuilder(nil, 0)
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReplyGenerator{
		llmClient: llmClient,
		fallback:  fallback,
		timeout:   timeout,
		logger:    logger,
	}
}

func (g *ReplyGenerator) Generate(ctx context.Context, in ReplyInput) Reply {
	text, reason := g.tryLLM(ctx, in)
	if reason == "" {
		recordReply(ReplySourceLLM, "")
		return Reply{Text: text, Source: ReplySourceLLM}
	}

	g.logger.Warn("mirror reply using fallback",
		zap.String("user_id", in.UserID),
		zap.String("reason", reason),
	)
	recordReply(ReplySourceFallback, reason)
	return Reply{
		Text:           g.fallback.Build(in.UserText, in.Style, in.Archetype),
		Source:         ReplySourceFallback,
		FallbackReason: reason,
	}
}

// tryLLM devuelve la respuesta valida o el motivo por el que se descarta.
func (g *ReplyGenerator) tryLLM(ctx context.Context, in ReplyInput) (string, string) {
	if g.llmClient == nil {
		return "", "unavailable"
	}

	messages := make([]llm.Message, 0, len(in.History)+1)
	for _, t := range in.History {
		messages = append(messages, llm.Message{Role: t.Role, Content: t.Content})
	}
	messages = append(messages, llm.Message{Role: domain.RoleUser, Content: in.UserText})

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	raw, err := g.llmClient.Generate(callCtx, llm.ChatRequest{
		SystemPrompt: in.SystemPrompt,
		Messages:     messages,
		MaxTokens:    mirrorMaxTokens,
		Temperature:  mirrorTemperature,
	})
	generationLatency.Observe(time.Since(start).Seconds())

	switch {
	case errors.Is(err, llm.ErrRateLimited):
		return "", "rate_limited"
	case errors.Is(err, context.DeadlineExceeded):
		return "", "timeout"
	case err != nil:
		g.logger.Warn("mirror generation failed", zap.String("user_id", in.UserID), zap.Error(err))
		return "", "error"
	}

	reply := strings.TrimSpace(raw)
	switch {
	case reply == "":
		return "", "empty"
	case isEcho(reply, in.UserText):
		return "", "echo"
	case ContainsBannedPhrase(reply):
		return "", "banned_phrase"
	}
	return reply, ""
}

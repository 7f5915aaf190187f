package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"persona-mirror/internal/domain"
	"persona-mirror/internal/llm"
)

const (
	extractionMaxTokens   = 400
	extractionTemperature = 0.2
)

// SignalExtractor convierte un mensaje en observaciones (trait, signal, strength) usando el LLM.
// Nunca devuelve error: si el LLM no esta disponible o responde basura, la lista queda vacia.
type SignalExtractor struct {
	llmClient llm.LLMClient
	logger    *zap.Logger
	prompt    string
}

func NewSignalExtractor(llmClient llm.LLMClient, logger *zap.Logger) *SignalExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SignalExtractor{
		llmClient: llmClient,
		logger:    logger,
		prompt:    buildExtractionPrompt(),
	}
}

// Extract devuelve las señales validas del mensaje.
func (e *SignalExtractor) Extract(ctx context.Context, message string) []domain.TraitSignal {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil
	}
	if e.llmClient == nil {
		e.logger.Warn("llm not configured, skipping trait extraction")
		return nil
	}

	raw, err := e.llmClient.Generate(ctx, llm.ChatRequest{
		SystemPrompt: e.prompt,
		Messages:     []llm.Message{{Role: domain.RoleUser, Content: message}},
		MaxTokens:    extractionMaxTokens,
		Temperature:  extractionTemperature,
	})
	if err != nil {
		e.logger.Warn("trait extraction failed", zap.Error(err))
		extractionFailures.Inc()
		return nil
	}

	signals, err := parseTraitSignals(raw)
	if err != nil {
		e.logger.Warn("trait extraction response unparseable", zap.Error(err))
		extractionFailures.Inc()
		return nil
	}
	for _, s := range signals {
		extractedSignals.WithLabelValues(s.Trait).Inc()
	}
	e.logger.Debug("trait signals extracted", zap.Int("count", len(signals)))
	return signals
}

type rawNudge struct {
	Trait    string     `json:"trait"`
	Signal   looseFloat `json:"signal"`
	Strength looseFloat `json:"strength"`
}

// parseTraitSignals valida la respuesta del LLM; las entradas invalidas se descartan una a una.
func parseTraitSignals(raw string) ([]domain.TraitSignal, error) {
	cleaned := cleanLLMJSONResponse(raw)
	obj := extractFirstJSONObject(cleaned)
	if obj == "" {
		return nil, fmt.Errorf("no json object in response")
	}

	var envelope struct {
		Nudges []json.RawMessage `json:"nudges"`
	}
	if err := json.Unmarshal([]byte(obj), &envelope); err != nil {
		return nil, fmt.Errorf("decode nudges: %w", err)
	}

	signals := make([]domain.TraitSignal, 0, len(envelope.Nudges))
	for _, item := range envelope.Nudges {
		var n rawNudge
		if err := json.Unmarshal(item, &n); err != nil {
			continue
		}
		trait := strings.TrimSpace(n.Trait)
		if !domain.IsKnownTrait(trait) {
			continue
		}
		if !n.Signal.ok || !n.Strength.ok || !isFinite(n.Signal.value) || !isFinite(n.Strength.value) {
			continue
		}
		signals = append(signals, domain.TraitSignal{
			Trait:    trait,
			Signal:   domain.Clamp(n.Signal.value, 0, 1),
			Strength: domain.Clamp(n.Strength.value, 0, domain.MaxStrengthPerMessage),
		})
	}
	return signals, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func buildExtractionPrompt() string {
	var b strings.Builder
	b.WriteString("You are a behavioral trait analyzer for a gradual personality modeling system.\n\n")
	b.WriteString("Analyze the user's message and detect ONLY clearly observable behavioral signals.\n\n")
	b.WriteString("Available traits:\n")
	for _, name := range domain.TraitNames {
		def := domain.TraitDefinitions[name]
		fmt.Fprintf(&b, "- %s: %s\n  Low (0.0-0.3): %s\n  High (0.7-1.0): %s\n",
			name, def.Description, def.LowIndicator, def.HighIndicator)
	}
	fmt.Fprintf(&b, `
For each trait CLEARLY demonstrated in this specific message:
- signal: the trait level shown by this message (0.0 = low extreme, 1.0 = high extreme, 0.5 = neutral)
- strength: how confident you are in the observation (0.0 to %.1f max)

Rules:
1. NEVER set strength above %.1f
2. ONLY include traits with clear evidence in this message
3. If unsure, omit the trait entirely
4. Be conservative, single messages nudge gradually

Examples:

Message: "idk maybe"
{"nudges": [{"trait": "communication_style", "signal": 0.2, "strength": 0.12}, {"trait": "decision_framing", "signal": 0.15, "strength": 0.15}]}

Message: "I've been thinking deeply about why I keep avoiding difficult conversations. There's a pattern here - every time conflict emerges, I intellectualize it rather than addressing it directly."
{"nudges": [{"trait": "communication_style", "signal": 0.85, "strength": 0.18}, {"trait": "reflection_depth", "signal": 0.9, "strength": 0.2}, {"trait": "emotional_expressiveness", "signal": 0.6, "strength": 0.1}]}

Message: "yes"
{"nudges": [{"trait": "communication_style", "signal": 0.1, "strength": 0.08}]}

Message: "I feel completely overwhelmed and anxious about everything right now!"
{"nudges": [{"trait": "emotional_expressiveness", "signal": 0.85, "strength": 0.18}]}

Return JSON ONLY, no markdown:
{"nudges": [{"trait": "trait_name", "signal": 0.0, "strength": 0.0}]}

If no clear traits are detected, return {"nudges": []}
`, domain.MaxStrengthPerMessage, domain.MaxStrengthPerMessage)
	return b.String()
}

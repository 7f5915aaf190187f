package service

import (
	"fmt"
	"strings"

	"persona-mirror/internal/domain"
)

// Rasgos clave usados para el espejo.
const (
	KeyEmotionalIntensity = "emotional_intensity"
	KeyEmotionalStability = "emotional_stability"
	KeyDirectness         = "directness"
	KeyExpressiveness     = "expressiveness"
	KeyAnalyticalThinking = "analytical_thinking"
	KeyDecisionConfidence = "decision_confidence"
)

var keyTraitOrder = []string{
	KeyEmotionalIntensity,
	KeyEmotionalStability,
	KeyDirectness,
	KeyExpressiveness,
	KeyAnalyticalThinking,
	KeyDecisionConfidence,
}

// keyTraitSources: de que rasgos persistidos se alimenta cada rasgo clave.
// emotional_stability no tiene fuente en la taxonomia y queda en 0.5.
var keyTraitSources = map[string][]string{
	KeyEmotionalIntensity: {domain.TraitEmotionalExpressiveness},
	KeyDirectness:         {domain.TraitDecisionFraming},
	KeyExpressiveness:     {domain.TraitEmotionalExpressiveness},
	KeyAnalyticalThinking: {domain.TraitReflectionDepth},
	KeyDecisionConfidence: {domain.TraitDecisionFraming},
}

const keyTraitMinConfidence = 0.2

// KeyTraits proyecta el vector del snapshot a los seis rasgos clave (0.5 por defecto).
func KeyTraits(vector domain.PersonaVector) map[string]float64 {
	out := make(map[string]float64, len(keyTraitOrder))
	for _, key := range keyTraitOrder {
		out[key] = 0.5
		sources := append([]string{key}, keyTraitSources[key]...)
		for _, src := range sources {
			if ts, ok := vector.Trait(src); ok && ts.Confidence > keyTraitMinConfidence {
				out[key] = ts.Score
				break
			}
		}
	}
	return out
}

// MirrorStrength mapea la estabilidad a light / moderate / strong.
func MirrorStrength(stability float64) string {
	switch {
	case stability < domain.StabilityThresholdUnstable:
		return "light"
	case stability > domain.StabilityThresholdStable:
		return "strong"
	default:
		return "moderate"
	}
}

// StyleRules traduce el analisis de estilo en instrucciones concretas.
func StyleRules(style domain.StyleProfile, analytical float64) []string {
	var rules []string
	switch {
	case style.AvgSentenceLength < 5:
		rules = append(rules, "Match short, punchy sentences")
	case style.AvgSentenceLength > 15:
		rules = append(rules, "Match longer, flowing sentences")
	default:
		rules = append(rules, "Match moderate sentence rhythm")
	}
	if style.HasSlang {
		rules = append(rules, "Use casual, conversational language")
	} else {
		rules = append(rules, "Maintain clean, clear language")
	}
	if style.PunctuationIntensity > 2 {
		rules = append(rules, "Match their punctuation energy")
	}
	if style.CapsIntensity > 0.1 {
		rules = append(rules, "Use caps for emphasis where they do")
	}
	if analytical > 0.6 && style.AvgSentenceLength > 10 {
		rules = append(rules, "Match analytical depth when they show it")
	}
	if !style.HasQuestions {
		rules = append(rules, "Do NOT ask reflection-style questions unless they do")
	}
	return rules
}

// PromptAssembler arma el prompt de sistema del espejo.
type PromptAssembler struct {
	catalog *ArchetypeCatalog
}

func NewPromptAssembler(catalog *ArchetypeCatalog) *PromptAssembler {
	if catalog == nil {
		catalog = DefaultArchetypeCatalog()
	}
	return &PromptAssembler{catalog: catalog}
}

// Assemble construye el prompt; sin snapshot usa el prompt base de solo estilo.
func (a *PromptAssembler) Assemble(snapshot *domain.PersonaSnapshot, style domain.StyleProfile, archetype domain.Archetype) string {
	if snapshot == nil {
		return a.baseline(style, archetype)
	}

	traits := KeyTraits(snapshot.PersonaVector)
	strength := MirrorStrength(snapshot.StabilityIndex)

	var b strings.Builder
	b.WriteString("You are a precision mirror. Respond as if the user is talking back to themselves at 110% clarity.\n\n")

	b.WriteString("Stored personality baseline:\n")
	for _, key := range keyTraitOrder {
		fmt.Fprintf(&b, "- %s: %s\n", readableTrait(key), formatTraitScore(traits[key]))
	}
	fmt.Fprintf(&b, "Stability index: %.2f, mirror strength %s\n\n", snapshot.StabilityIndex, strength)

	writeStyleAnalysis(&b, style)
	writeArchetype(&b, a.catalog.Profile(archetype))

	b.WriteString("Mirror rules:\n")
	for _, r := range StyleRules(style, traits[KeyAnalyticalThinking]) {
		fmt.Fprintf(&b, "- %s\n", r)
	}
	fmt.Fprintf(&b, "- Emotional intensity must not exceed %s\n", formatTraitScore(traits[KeyEmotionalIntensity]))
	fmt.Fprintf(&b, "- Match their directness: %s\n", formatTraitScore(traits[KeyDirectness]))
	fmt.Fprintf(&b, "- Match their expressiveness: %s\n", formatTraitScore(traits[KeyExpressiveness]))
	switch strength {
	case "strong":
		b.WriteString("- Mirror clearly and confidently\n")
	case "light":
		b.WriteString("- Mirror subtly and carefully\n")
	default:
		b.WriteString("- Mirror with balanced technique\n")
	}
	b.WriteString(mirrorDoNot)
	return b.String()
}

func (a *PromptAssembler) baseline(style domain.StyleProfile, archetype domain.Archetype) string {
	var b strings.Builder
	b.WriteString("You are mirroring the user's communication style. Their personality baseline is still developing.\n\n")
	writeStyleAnalysis(&b, style)
	writeArchetype(&b, a.catalog.Profile(archetype))
	b.WriteString("Mirror rules:\n")
	for _, r := range StyleRules(style, 0.5) {
		fmt.Fprintf(&b, "- %s\n", r)
	}
	b.WriteString(mirrorDoNot)
	return b.String()
}

const mirrorDoNot = `
Do NOT:
- Perform reflection-style questioning unless they ask questions
- Explain their emotions back to them
- Act like a therapist or coach
- Mention that you are mirroring
- Repeat their message back verbatim

Respond as THEY would respond to themselves. Keep it natural and brief.`

func writeStyleAnalysis(b *strings.Builder, style domain.StyleProfile) {
	b.WriteString("Current message style:\n")
	fmt.Fprintf(b, "- Sentence length: %.1f words/sentence\n", style.AvgSentenceLength)
	fmt.Fprintf(b, "- Punctuation: %d marks\n", style.PunctuationIntensity)
	fmt.Fprintf(b, "- Casual language: %s\n", yesNo(style.HasSlang))
	fmt.Fprintf(b, "- Emotional markers: %d\n", style.EmotionalMarkers)
	fmt.Fprintf(b, "- Caps usage: %d%%\n", int(style.CapsIntensity*100))
	fmt.Fprintf(b, "- Contains questions: %s\n\n", yesNo(style.HasQuestions))
}

func writeArchetype(b *strings.Builder, p ArchetypeProfile) {
	fmt.Fprintf(b, "Active style: %s\n", p.Label)
	for _, r := range p.Rules {
		fmt.Fprintf(b, "- %s\n", r)
	}
	b.WriteString("\n")
}

func formatTraitScore(score float64) string {
	words := strings.Fields(domain.TraitLevel(score))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return fmt.Sprintf("%s (%.2f)", strings.Join(words, " "), score)
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

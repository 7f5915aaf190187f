package domain

import (
	"math"
	"time"
)

// Taxonomia fija de rasgos conductuales.
const (
	TraitCommunicationStyle      = "communication_style"      // 0 = conciso, 1 = extenso
	TraitEmotionalExpressiveness = "emotional_expressiveness" // 0 = reservado, 1 = expresivo
	TraitDecisionFraming         = "decision_framing"         // 0 = dubitativo, 1 = decidido
	TraitReflectionDepth         = "reflection_depth"         // 0 = superficial, 1 = profundo
)

// TraitNames respeta el orden de la taxonomia; se usa para desempates deterministas.
var TraitNames = []string{
	TraitCommunicationStyle,
	TraitEmotionalExpressiveness,
	TraitDecisionFraming,
	TraitReflectionDepth,
}

// TraitDefinition describe un rasgo para el prompt de extraccion.
type TraitDefinition struct {
	Description   string
	LowIndicator  string
	HighIndicator string
}

var TraitDefinitions = map[string]TraitDefinition{
	TraitCommunicationStyle: {
		Description:   "Message length and detail level",
		LowIndicator:  "short, direct messages with minimal elaboration",
		HighIndicator: "long, detailed messages with extensive explanation",
	},
	TraitEmotionalExpressiveness: {
		Description:   "Emotional openness and expression",
		LowIndicator:  "reserved, matter-of-fact, emotionally neutral language",
		HighIndicator: "emotionally expressive, uses feeling words, shares emotional states",
	},
	TraitDecisionFraming: {
		Description:   "Certainty and decisiveness in statements",
		LowIndicator:  "uncertain, hesitant, uses qualifiers like 'maybe', 'I think', 'possibly'",
		HighIndicator: "decisive, confident, declarative statements, clear positions",
	},
	TraitReflectionDepth: {
		Description:   "Level of introspection and analysis",
		LowIndicator:  "surface-level observations, simple statements, minimal self-analysis",
		HighIndicator: "deep introspection, explores meaning and patterns, meta-cognitive awareness",
	},
}

// GroupBehavioralProfile agrupa hoy los cuatro rasgos.
const GroupBehavioralProfile = "behavioral_profile"

// TraitGroups mapea grupo -> rasgos, en orden.
var TraitGroups = []TraitGroup{
	{Name: GroupBehavioralProfile, Traits: TraitNames},
}

type TraitGroup struct {
	Name   string
	Traits []string
}

// Parametros de actualizacion gradual.
const (
	DefaultTraitScore      = 0.5
	DefaultTraitConfidence = 0.1

	MaxStrengthPerMessage  = 0.2
	ConfidenceIncreaseRate = 0.03
	ConfidenceDecreaseRate = 0.02
	MinConfidence          = 0.05
	MaxConfidence          = 1.0

	MinEvidenceForRetention = 3
	LowConfidenceThreshold  = 0.1
	ExtremeScoreMin         = 0.05
	ExtremeScoreMax         = 0.95

	StabilityThresholdUnstable = 0.3
	StabilityThresholdStable   = 0.7
)

// IsKnownTrait indica si el nombre pertenece a la taxonomia.
func IsKnownTrait(name string) bool {
	for _, t := range TraitNames {
		if t == name {
			return true
		}
	}
	return false
}

// TraitSignal es una observacion de un solo mensaje.
type TraitSignal struct {
	Trait    string  `json:"trait"`
	Signal   float64 `json:"signal"`
	Strength float64 `json:"strength"`
}

// TraitMetric es el estado persistido de un rasgo por usuario.
type TraitMetric struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	TraitName     string    `json:"trait_name"`
	Score         float64   `json:"score"`
	Confidence    float64   `json:"confidence"`
	EvidenceCount int       `json:"evidence_count"`
	LastSignal    *float64  `json:"last_signal,omitempty"`
	LastUpdated   time.Time `json:"last_updated"`

	// SmoothedEvidence es el evidence_count en el ultimo suavizado de deriva.
	SmoothedEvidence int `json:"-"`
}

// NewTraitMetric crea la metrica por defecto (score 0.5, confianza baja).
func NewTraitMetric(id, userID, trait string, now time.Time) TraitMetric {
	return TraitMetric{
		ID:          id,
		UserID:      userID,
		TraitName:   trait,
		Score:       DefaultTraitScore,
		Confidence:  DefaultTraitConfidence,
		LastUpdated: now,
	}
}

// InBounds reporta si score y confidence estan en sus intervalos cerrados.
func (m TraitMetric) InBounds() bool {
	return !math.IsNaN(m.Score) && m.Score >= 0 && m.Score <= 1 &&
		!math.IsNaN(m.Confidence) && m.Confidence >= MinConfidence && m.Confidence <= MaxConfidence
}

// Clamped devuelve la metrica con score y confidence dentro de limites.
func (m TraitMetric) Clamped() TraitMetric {
	m.Score = Clamp(m.Score, 0, 1)
	m.Confidence = Clamp(m.Confidence, MinConfidence, MaxConfidence)
	if m.EvidenceCount < 0 {
		m.EvidenceCount = 0
	}
	if m.SmoothedEvidence < 0 {
		m.SmoothedEvidence = 0
	}
	return m
}

// Clamp acota v a [lo, hi]; NaN cae a lo.
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// TraitLevel convierte un score en etiqueta de 5 niveles.
func TraitLevel(score float64) string {
	switch {
	case score < 0.25:
		return "very low"
	case score < 0.4:
		return "low"
	case score < 0.6:
		return "moderate"
	case score < 0.75:
		return "high"
	default:
		return "very high"
	}
}

// StabilityLevel clasifica el indice de estabilidad.
func StabilityLevel(stability float64) string {
	switch {
	case stability < StabilityThresholdUnstable:
		return "emerging"
	case stability > StabilityThresholdStable:
		return "well-established"
	default:
		return "developing"
	}
}

package domain

import "time"

// InsufficientDataSummary es el resumen fijo cuando el usuario no tiene metricas.
const InsufficientDataSummary = "Insufficient data to generate personality profile."

// EmptySnapshotStability es el indice usado para snapshots sin datos.
const EmptySnapshotStability = 0.1

// TraitScore es el valor congelado de un rasgo dentro de un snapshot.
type TraitScore struct {
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
}

// PersonaVector agrupa grupo -> rasgo -> valores.
type PersonaVector map[string]map[string]TraitScore

// PersonaSnapshot es inmutable; los cambios generan un snapshot nuevo.
type PersonaSnapshot struct {
	ID             string        `json:"id"`
	UserID         string        `json:"user_id"`
	PersonaVector  PersonaVector `json:"persona_vector"`
	StabilityIndex float64       `json:"stability_index"`
	SummaryText    string        `json:"summary_text"`
	CreatedAt      time.Time     `json:"created_at"`
}

// Trait busca un rasgo en cualquier grupo.
func (v PersonaVector) Trait(name string) (TraitScore, bool) {
	for _, group := range v {
		if ts, ok := group[name]; ok {
			return ts, true
		}
	}
	return TraitScore{}, false
}

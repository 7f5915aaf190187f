package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"persona-mirror/internal/domain"
	"persona-mirror/internal/repository"
)

// SnapshotBuilder congela el estado de rasgos de un usuario en un snapshot inmutable.
type SnapshotBuilder struct {
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

func NewSnapshotBuilder(logger *zap.Logger) *SnapshotBuilder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotBuilder{
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		// ULID: ordenable por tiempo, desempata snapshots del mismo instante.
		newID: func() string { return ulid.Make().String() },
	}
}

// Build lee todas las metricas del usuario y persiste el snapshot.
// Un usuario sin metricas recibe el snapshot vacio, no un error.
func (b *SnapshotBuilder) Build(ctx context.Context, repos repository.Repos, userID string) (domain.PersonaSnapshot, error) {
	metrics, err := repos.Traits.ListByUser(ctx, userID)
	if err != nil {
		return domain.PersonaSnapshot{}, fmt.Errorf("list traits: %w", err)
	}

	snapshot := domain.PersonaSnapshot{
		ID:        b.newID(),
		UserID:    userID,
		CreatedAt: b.now(),
	}
	if len(metrics) == 0 {
		snapshot.PersonaVector = domain.PersonaVector{}
		snapshot.StabilityIndex = domain.EmptySnapshotStability
		snapshot.SummaryText = domain.InsufficientDataSummary
	} else {
		snapshot.PersonaVector = BuildPersonaVector(metrics)
		snapshot.StabilityIndex = meanConfidence(metrics, domain.EmptySnapshotStability)
		snapshot.SummaryText = SummarizeProfile(metrics, snapshot.StabilityIndex)
	}

	if err := repos.Snapshots.Create(ctx, snapshot); err != nil {
		return domain.PersonaSnapshot{}, fmt.Errorf("create snapshot: %w", err)
	}
	snapshotsCreated.Inc()
	b.logger.Info("persona snapshot created",
		zap.String("user_id", userID),
		zap.String("snapshot_id", snapshot.ID),
		zap.Int("traits", len(metrics)),
		zap.Float64("stability_index", snapshot.StabilityIndex),
	)
	return snapshot, nil
}

// BuildPersonaVector agrupa las metricas por grupo con valores redondeados a 3 decimales.
func BuildPersonaVector(metrics []domain.TraitMetric) domain.PersonaVector {
	byName := make(map[string]domain.TraitMetric, len(metrics))
	for _, m := range metrics {
		byName[m.TraitName] = m
	}
	vector := make(domain.PersonaVector, len(domain.TraitGroups))
	for _, group := range domain.TraitGroups {
		entries := make(map[string]domain.TraitScore)
		for _, name := range group.Traits {
			m, ok := byName[name]
			if !ok {
				continue
			}
			entries[name] = domain.TraitScore{
				Score:      round3(m.Score),
				Confidence: round3(m.Confidence),
			}
		}
		vector[group.Name] = entries
	}
	return vector
}

// SummarizeProfile genera el resumen determinista: estabilidad, top 3 por score
// y hasta 3 rasgos de baja confianza.
func SummarizeProfile(metrics []domain.TraitMetric, stability float64) string {
	if len(metrics) == 0 {
		return domain.InsufficientDataSummary
	}

	parts := []string{fmt.Sprintf("This is a %s personality profile.", domain.StabilityLevel(stability))}

	byScore := append([]domain.TraitMetric(nil), metrics...)
	sort.SliceStable(byScore, func(i, j int) bool { return byScore[i].Score > byScore[j].Score })
	if len(byScore) > 3 {
		byScore = byScore[:3]
	}
	described := make([]string, 0, len(byScore))
	for _, m := range byScore {
		described = append(described, domain.TraitLevel(m.Score)+" "+readableTrait(m.TraitName))
	}
	parts = append(parts, fmt.Sprintf("Key characteristics include %s.", joinWithAnd(described)))

	byConf := append([]domain.TraitMetric(nil), metrics...)
	sort.SliceStable(byConf, func(i, j int) bool { return byConf[i].Confidence < byConf[j].Confidence })
	if len(byConf) > 3 {
		byConf = byConf[:3]
	}
	var unstable []string
	for _, m := range byConf {
		if m.Confidence < domain.StabilityThresholdUnstable {
			unstable = append(unstable, readableTrait(m.TraitName))
		}
	}
	if len(unstable) > 0 {
		parts = append(parts, fmt.Sprintf("The profile shows variability in %s.", joinWithAnd(unstable)))
	}

	return strings.Join(parts, " ")
}

// joinWithAnd: "a" | "a, and b" | "a, b, and c".
func joinWithAnd(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	}
	return strings.Join(items[:len(items)-1], ", ") + ", and " + items[len(items)-1]
}

func readableTrait(name string) string {
	return strings.ReplaceAll(name, "_", " ")
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

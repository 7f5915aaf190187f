package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"persona-mirror/internal/domain"
	"persona-mirror/internal/repository"
)

// DriftConfig parametriza la prevencion de deriva.
type DriftConfig struct {
	Interval        int
	SmoothingFactor float64
}

func DefaultDriftConfig() DriftConfig {
	return DriftConfig{Interval: 10, SmoothingFactor: 0.98}
}

// UpdateResult resume una aplicacion de señales.
type UpdateResult struct {
	TraitsUpdated  int     `json:"traits_updated"`
	StabilityIndex float64 `json:"stability_index"`
	DriftApplied   bool    `json:"drift_applied"`
}

// TraitUpdater aplica el promedio ponderado por confianza y la correccion de deriva.
// Debe ejecutarse con repos de una transaccion por usuario (Store.WithUserTx).
type TraitUpdater struct {
	drift  DriftConfig
	logger *zap.Logger
	now    func() time.Time
}

func NewTraitUpdater(drift DriftConfig, logger *zap.Logger) *TraitUpdater {
	if drift.Interval <= 0 {
		drift.Interval = DefaultDriftConfig().Interval
	}
	if drift.SmoothingFactor <= 0 || drift.SmoothingFactor >= 1 {
		drift.SmoothingFactor = DefaultDriftConfig().SmoothingFactor
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TraitUpdater{
		drift:  drift,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Apply actualiza cada rasgo observado, creando la metrica si no existe.
// Sin señales no escribe nada y devuelve la estabilidad actual.
func (u *TraitUpdater) Apply(ctx context.Context, traits repository.TraitRepository, userID string, signals []domain.TraitSignal) (UpdateResult, error) {
	if len(signals) == 0 {
		stability, err := u.stability(ctx, traits, userID)
		if err != nil {
			return UpdateResult{}, err
		}
		return UpdateResult{StabilityIndex: stability}, nil
	}

	before, err := traits.TotalEvidence(ctx, userID)
	if err != nil {
		return UpdateResult{}, fmt.Errorf("total evidence: %w", err)
	}

	var result UpdateResult
	for _, sig := range signals {
		if !domain.IsKnownTrait(sig.Trait) {
			continue
		}
		metric, err := traits.Get(ctx, userID, sig.Trait)
		if errors.Is(err, repository.ErrNotFound) {
			metric = domain.NewTraitMetric(uuid.NewString(), userID, sig.Trait, u.now())
		} else if err != nil {
			return UpdateResult{}, fmt.Errorf("get trait %s: %w", sig.Trait, err)
		}

		updated := u.applySignal(metric, sig)
		if err := traits.Upsert(ctx, updated); err != nil {
			return UpdateResult{}, fmt.Errorf("upsert trait %s: %w", sig.Trait, err)
		}
		traitUpdates.WithLabelValues(sig.Trait).Inc()
		result.TraitsUpdated++

		u.logger.Debug("trait updated",
			zap.String("user_id", userID),
			zap.String("trait", sig.Trait),
			zap.Float64("old_score", metric.Score),
			zap.Float64("new_score", updated.Score),
			zap.Float64("confidence", updated.Confidence),
		)
	}

	after := before + result.TraitsUpdated
	if crossesInterval(before, after, u.drift.Interval) {
		if err := u.PreventDrift(ctx, traits, userID); err != nil {
			return UpdateResult{}, err
		}
		result.DriftApplied = true
	}

	result.StabilityIndex, err = u.stability(ctx, traits, userID)
	if err != nil {
		return UpdateResult{}, err
	}
	return result, nil
}

// applySignal calcula el nuevo estado de la metrica para una observacion.
func (u *TraitUpdater) applySignal(m domain.TraitMetric, sig domain.TraitSignal) domain.TraitMetric {
	signal := domain.Clamp(sig.Signal, 0, 1)
	strength := domain.Clamp(sig.Strength, 0, domain.MaxStrengthPerMessage)
	oldScore := m.Score
	oldConf := m.Confidence

	newScore := oldScore
	if denom := oldConf + strength; denom > 0 {
		newScore = (oldScore*oldConf + signal*strength) / denom
	}

	newConf := oldConf
	switch {
	case math.Abs(signal-oldScore) < 0.05:
		newConf += domain.ConfidenceIncreaseRate * strength * 0.5
	case (signal >= 0.5) == (oldScore >= 0.5):
		newConf += domain.ConfidenceIncreaseRate * strength
	default:
		newConf -= domain.ConfidenceDecreaseRate * strength
	}

	m.Score = u.checkScore(m.UserID, m.TraitName, newScore)
	m.Confidence = u.checkConfidence(m.UserID, m.TraitName, newConf)
	m.LastSignal = &signal
	m.EvidenceCount++
	m.LastUpdated = u.now()
	return m
}

// checkScore acota el score; un valor fuera de [0,1] es un defecto de calculo
// y dispara DPanic (panic en loggers de desarrollo).
func (u *TraitUpdater) checkScore(userID, trait string, v float64) float64 {
	const eps = 1e-9
	if math.IsNaN(v) || v < -eps || v > 1+eps {
		u.logger.DPanic("trait score out of bounds",
			zap.String("user_id", userID),
			zap.String("trait", trait),
			zap.Float64("value", v),
		)
	}
	return domain.Clamp(v, 0, 1)
}

func (u *TraitUpdater) checkConfidence(userID, trait string, v float64) float64 {
	if math.IsNaN(v) {
		u.logger.DPanic("trait confidence is NaN",
			zap.String("user_id", userID),
			zap.String("trait", trait),
		)
	}
	return domain.Clamp(v, domain.MinConfidence, domain.MaxConfidence)
}

// PreventDrift borra rasgos poco fiables y acerca al centro los extremos.
// Un rasgo se suaviza a lo sumo una vez por cada evidencia nueva, asi que
// repetir la pasada sin actualizaciones intermedias no cambia nada.
func (u *TraitUpdater) PreventDrift(ctx context.Context, traits repository.TraitRepository, userID string) error {
	pruned, err := traits.DeleteWeak(ctx, userID, domain.LowConfidenceThreshold, domain.MinEvidenceForRetention)
	if err != nil {
		return fmt.Errorf("delete weak traits: %w", err)
	}

	metrics, err := traits.ListByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("list traits: %w", err)
	}

	smoothed := 0
	for _, m := range metrics {
		score := m.Score
		marker := m.SmoothedEvidence
		if (score < 0.1 || score > 0.9) && m.EvidenceCount != m.SmoothedEvidence {
			score = score*u.drift.SmoothingFactor + (1-u.drift.SmoothingFactor)*0.5
			marker = m.EvidenceCount
		}
		score = domain.Clamp(score, domain.ExtremeScoreMin, domain.ExtremeScoreMax)
		if score == m.Score && marker == m.SmoothedEvidence {
			continue
		}
		m.Score = score
		m.SmoothedEvidence = marker
		if err := traits.Upsert(ctx, m); err != nil {
			return fmt.Errorf("upsert smoothed trait %s: %w", m.TraitName, err)
		}
		smoothed++
	}

	recordDrift(pruned)
	u.logger.Info("drift prevention applied",
		zap.String("user_id", userID),
		zap.Int64("pruned", pruned),
		zap.Int("smoothed", smoothed),
	)
	return nil
}

func (u *TraitUpdater) stability(ctx context.Context, traits repository.TraitRepository, userID string) (float64, error) {
	metrics, err := traits.ListByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("list traits: %w", err)
	}
	return meanConfidence(metrics, 0.5), nil
}

func meanConfidence(metrics []domain.TraitMetric, empty float64) float64 {
	if len(metrics) == 0 {
		return empty
	}
	sum := 0.0
	for _, m := range metrics {
		sum += m.Confidence
	}
	return sum / float64(len(metrics))
}

// crossesInterval indica si (before, after] contiene un multiplo de interval.
func crossesInterval(before, after, interval int) bool {
	if interval <= 0 || after <= before {
		return false
	}
	return after/interval > before/interval
}

package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"persona-mirror/internal/domain"
)

// dbtx lo cumplen *pgxpool.Pool y pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgTraitRepository struct {
	db dbtx
}

func NewPgTraitRepository(db dbtx) *PgTraitRepository {
	return &PgTraitRepository{db: db}
}

const traitColumns = `id, user_id, trait_name, score, confidence, evidence_count, last_signal, last_updated, smoothed_evidence`

func (r *PgTraitRepository) Get(ctx context.Context, userID, traitName string) (domain.TraitMetric, error) {
	query := `SELECT ` + traitColumns + `
		FROM user_persona_metrics
		WHERE user_id = $1 AND trait_name = $2`

	var m domain.TraitMetric
	err := r.db.QueryRow(ctx, query, userID, traitName).Scan(
		&m.ID,
		&m.UserID,
		&m.TraitName,
		&m.Score,
		&m.Confidence,
		&m.EvidenceCount,
		&m.LastSignal,
		&m.LastUpdated,
		&m.SmoothedEvidence,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.TraitMetric{}, ErrNotFound
	}
	if err != nil {
		return domain.TraitMetric{}, mapPgError(err)
	}
	return m, nil
}

func (r *PgTraitRepository) ListByUser(ctx context.Context, userID string) ([]domain.TraitMetric, error) {
	query := `SELECT ` + traitColumns + `
		FROM user_persona_metrics
		WHERE user_id = $1
		ORDER BY trait_name`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	var metrics []domain.TraitMetric
	for rows.Next() {
		var m domain.TraitMetric
		if err := rows.Scan(
			&m.ID,
			&m.UserID,
			&m.TraitName,
			&m.Score,
			&m.Confidence,
			&m.EvidenceCount,
			&m.LastSignal,
			&m.LastUpdated,
			&m.SmoothedEvidence,
		); err != nil {
			return nil, err
		}
		metrics = append(metrics, m)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return metrics, nil
}

func (r *PgTraitRepository) Upsert(ctx context.Context, metric domain.TraitMetric) error {
	const query = `
		INSERT INTO user_persona_metrics (id, user_id, trait_name, score, confidence, evidence_count, last_signal, last_updated, smoothed_evidence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id, trait_name)
		DO UPDATE SET
			score = EXCLUDED.score,
			confidence = EXCLUDED.confidence,
			evidence_count = EXCLUDED.evidence_count,
			last_signal = EXCLUDED.last_signal,
			last_updated = EXCLUDED.last_updated,
			smoothed_evidence = EXCLUDED.smoothed_evidence
	`

	metric = clampForWrite(metric)
	_, err := r.db.Exec(ctx, query,
		metric.ID,
		metric.UserID,
		metric.TraitName,
		metric.Score,
		metric.Confidence,
		metric.EvidenceCount,
		metric.LastSignal,
		metric.LastUpdated,
		metric.SmoothedEvidence,
	)
	return mapPgError(err)
}

func (r *PgTraitRepository) DeleteWeak(ctx context.Context, userID string, minConfidence float64, minEvidence int) (int64, error) {
	const query = `
		DELETE FROM user_persona_metrics
		WHERE user_id = $1 AND confidence < $2 AND evidence_count < $3
	`
	tag, err := r.db.Exec(ctx, query, userID, minConfidence, minEvidence)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PgTraitRepository) TotalEvidence(ctx context.Context, userID string) (int, error) {
	const query = `SELECT COALESCE(SUM(evidence_count), 0) FROM user_persona_metrics WHERE user_id = $1`
	var total int64
	if err := r.db.QueryRow(ctx, query, userID).Scan(&total); err != nil {
		return 0, err
	}
	return int(total), nil
}

// mapPgError traduce violaciones de FK (usuario inexistente) a ErrUserNotFound.
func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23503":
			return fmt.Errorf("%w: %s", ErrUserNotFound, pgErr.ConstraintName)
		case "22P02":
			return fmt.Errorf("%w: invalid user id", ErrUserNotFound)
		}
	}
	return err
}

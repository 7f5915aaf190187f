package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"persona-mirror/internal/domain"
)

type PgSnapshotRepository struct {
	db dbtx
}

func NewPgSnapshotRepository(db dbtx) *PgSnapshotRepository {
	return &PgSnapshotRepository{db: db}
}

func (r *PgSnapshotRepository) Create(ctx context.Context, snapshot domain.PersonaSnapshot) error {
	const query = `
		INSERT INTO persona_snapshots (id, user_id, persona_vector, stability_index, summary_text, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	vector, err := encodePersonaVector(snapshot.PersonaVector)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, query,
		snapshot.ID,
		snapshot.UserID,
		vector,
		snapshot.StabilityIndex,
		snapshot.SummaryText,
		snapshot.CreatedAt,
	)
	return mapPgError(err)
}

func (r *PgSnapshotRepository) GetLatestByUser(ctx context.Context, userID string) (domain.PersonaSnapshot, error) {
	snapshots, err := r.ListByUser(ctx, userID, 1)
	if err != nil {
		return domain.PersonaSnapshot{}, err
	}
	if len(snapshots) == 0 {
		return domain.PersonaSnapshot{}, ErrNotFound
	}
	return snapshots[0], nil
}

func (r *PgSnapshotRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.PersonaSnapshot, error) {
	if limit <= 0 {
		limit = 10
	}
	const query = `
		SELECT id, user_id, persona_vector, stability_index, summary_text, created_at
		FROM persona_snapshots
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	var snapshots []domain.PersonaSnapshot
	for rows.Next() {
		var s domain.PersonaSnapshot
		var vector []byte
		if err := rows.Scan(
			&s.ID,
			&s.UserID,
			&vector,
			&s.StabilityIndex,
			&s.SummaryText,
			&s.CreatedAt,
		); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrNotFound
			}
			return nil, err
		}
		if s.PersonaVector, err = decodePersonaVector(vector); err != nil {
			return nil, err
		}
		snapshots = append(snapshots, s)
	}

	if err := rows.Err(); err != nil {
		return nil, mapPgError(err)
	}

	return snapshots, nil
}

func encodePersonaVector(v domain.PersonaVector) ([]byte, error) {
	if v == nil {
		v = domain.PersonaVector{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal persona vector: %w", err)
	}
	return b, nil
}

func decodePersonaVector(b []byte) (domain.PersonaVector, error) {
	v := domain.PersonaVector{}
	if len(b) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("unmarshal persona vector: %w", err)
	}
	return v, nil
}

package repository

import (
	"context"

	"persona-mirror/internal/domain"
)

type PgTurnRepository struct {
	db dbtx
}

func NewPgTurnRepository(db dbtx) *PgTurnRepository {
	return &PgTurnRepository{db: db}
}

func (r *PgTurnRepository) Append(ctx context.Context, turns ...domain.Turn) error {
	const query = `
		INSERT INTO conversation_turns (id, user_id, role, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	for _, turn := range turns {
		if _, err := r.db.Exec(ctx, query,
			turn.ID,
			turn.UserID,
			turn.Role,
			turn.Content,
			turn.CreatedAt,
		); err != nil {
			return mapPgError(err)
		}
	}
	return nil
}

func (r *PgTurnRepository) ListRecent(ctx context.Context, userID string, limit int) ([]domain.Turn, error) {
	if limit <= 0 {
		return nil, nil
	}
	const query = `
		SELECT id, user_id, role, content, created_at
		FROM (
			SELECT id, user_id, role, content, created_at
			FROM conversation_turns
			WHERE user_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC
	`

	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	var turns []domain.Turn
	for rows.Next() {
		var t domain.Turn
		if err := rows.Scan(
			&t.ID,
			&t.UserID,
			&t.Role,
			&t.Content,
			&t.CreatedAt,
		); err != nil {
			return nil, err
		}
		turns = append(turns, t)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return turns, nil
}

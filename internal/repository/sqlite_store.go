package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"persona-mirror/internal/domain"
)

// sqliteTimeLayout tiene ancho fijo para que ORDER BY sobre texto respete el orden temporal.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

func formatSQLiteTime(t time.Time) string { return t.UTC().Format(sqliteTimeLayout) }

func parseSQLiteTime(s string) (time.Time, error) {
	t, err := time.Parse(sqliteTimeLayout, s)
	if err != nil {
		return time.Parse(time.RFC3339Nano, s)
	}
	return t, nil
}

// sqlExecer lo cumplen *sql.DB y *sql.Tx.
type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore implementa Store con SQLite (CLI / nodo unico).
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// WithUserTx usa una transaccion de database/sql; con una sola conexion abierta
// las transacciones quedan serializadas.
func (s *SQLiteStore) WithUserTx(ctx context.Context, userID string, fn func(ctx context.Context, repos Repos) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sqlite tx: %w", err)
	}
	if err := fn(ctx, Repos{
		Traits:    &sqliteTraitRepo{db: tx},
		Snapshots: &sqliteSnapshotRepo{db: tx},
	}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) Traits() TraitRepository       { return &sqliteTraitRepo{db: s.db} }
func (s *SQLiteStore) Snapshots() SnapshotRepository { return &sqliteSnapshotRepo{db: s.db} }
func (s *SQLiteStore) Turns() TurnRepository         { return &sqliteTurnRepo{db: s.db} }
func (s *SQLiteStore) Close() error                  { return s.db.Close() }

type sqliteTraitRepo struct {
	db sqlExecer
}

func scanSQLiteMetric(scan func(dest ...any) error) (domain.TraitMetric, error) {
	var (
		m          domain.TraitMetric
		lastSignal sql.NullFloat64
		updated    string
	)
	if err := scan(&m.ID, &m.UserID, &m.TraitName, &m.Score, &m.Confidence, &m.EvidenceCount, &lastSignal, &updated, &m.SmoothedEvidence); err != nil {
		return domain.TraitMetric{}, err
	}
	if lastSignal.Valid {
		v := lastSignal.Float64
		m.LastSignal = &v
	}
	t, err := parseSQLiteTime(updated)
	if err != nil {
		return domain.TraitMetric{}, fmt.Errorf("parse last_updated: %w", err)
	}
	m.LastUpdated = t
	return m, nil
}

func (r *sqliteTraitRepo) Get(ctx context.Context, userID, traitName string) (domain.TraitMetric, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+traitColumns+`
		FROM user_persona_metrics WHERE user_id = ? AND trait_name = ?`, userID, traitName)
	m, err := scanSQLiteMetric(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.TraitMetric{}, ErrNotFound
	}
	return m, err
}

func (r *sqliteTraitRepo) ListByUser(ctx context.Context, userID string) ([]domain.TraitMetric, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+traitColumns+`
		FROM user_persona_metrics WHERE user_id = ? ORDER BY trait_name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var metrics []domain.TraitMetric
	for rows.Next() {
		m, err := scanSQLiteMetric(rows.Scan)
		if err != nil {
			return nil, err
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

func (r *sqliteTraitRepo) Upsert(ctx context.Context, metric domain.TraitMetric) error {
	metric = clampForWrite(metric)
	var lastSignal any
	if metric.LastSignal != nil {
		lastSignal = *metric.LastSignal
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_persona_metrics (id, user_id, trait_name, score, confidence, evidence_count, last_signal, last_updated, smoothed_evidence)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, trait_name) DO UPDATE SET
			score = excluded.score,
			confidence = excluded.confidence,
			evidence_count = excluded.evidence_count,
			last_signal = excluded.last_signal,
			last_updated = excluded.last_updated,
			smoothed_evidence = excluded.smoothed_evidence`,
		metric.ID, metric.UserID, metric.TraitName, metric.Score, metric.Confidence,
		metric.EvidenceCount, lastSignal, formatSQLiteTime(metric.LastUpdated), metric.SmoothedEvidence,
	)
	return err
}

func (r *sqliteTraitRepo) DeleteWeak(ctx context.Context, userID string, minConfidence float64, minEvidence int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM user_persona_metrics
		WHERE user_id = ? AND confidence < ? AND evidence_count < ?`, userID, minConfidence, minEvidence)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *sqliteTraitRepo) TotalEvidence(ctx context.Context, userID string) (int, error) {
	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(evidence_count), 0) FROM user_persona_metrics WHERE user_id = ?`, userID).Scan(&total)
	return total, err
}

type sqliteSnapshotRepo struct {
	db sqlExecer
}

func (r *sqliteSnapshotRepo) Create(ctx context.Context, snapshot domain.PersonaSnapshot) error {
	vector, err := encodePersonaVector(snapshot.PersonaVector)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO persona_snapshots (id, user_id, persona_vector, stability_index, summary_text, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		snapshot.ID, snapshot.UserID, string(vector), snapshot.StabilityIndex, snapshot.SummaryText,
		formatSQLiteTime(snapshot.CreatedAt),
	)
	return err
}

func (r *sqliteSnapshotRepo) GetLatestByUser(ctx context.Context, userID string) (domain.PersonaSnapshot, error) {
	snapshots, err := r.ListByUser(ctx, userID, 1)
	if err != nil {
		return domain.PersonaSnapshot{}, err
	}
	if len(snapshots) == 0 {
		return domain.PersonaSnapshot{}, ErrNotFound
	}
	return snapshots[0], nil
}

func (r *sqliteSnapshotRepo) ListByUser(ctx context.Context, userID string, limit int) ([]domain.PersonaSnapshot, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, persona_vector, stability_index, summary_text, created_at
		FROM persona_snapshots
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snapshots []domain.PersonaSnapshot
	for rows.Next() {
		var (
			s       domain.PersonaSnapshot
			vector  string
			created string
		)
		if err := rows.Scan(&s.ID, &s.UserID, &vector, &s.StabilityIndex, &s.SummaryText, &created); err != nil {
			return nil, err
		}
		if s.PersonaVector, err = decodePersonaVector([]byte(vector)); err != nil {
			return nil, err
		}
		if s.CreatedAt, err = parseSQLiteTime(created); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, rows.Err()
}

type sqliteTurnRepo struct {
	db sqlExecer
}

func (r *sqliteTurnRepo) Append(ctx context.Context, turns ...domain.Turn) error {
	for _, t := range turns {
		if _, err := r.db.ExecContext(ctx, `
			INSERT INTO conversation_turns (id, user_id, role, content, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			t.ID, t.UserID, t.Role, t.Content, formatSQLiteTime(t.CreatedAt),
		); err != nil {
			return err
		}
	}
	return nil
}

func (r *sqliteTurnRepo) ListRecent(ctx context.Context, userID string, limit int) ([]domain.Turn, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, role, content, created_at FROM (
			SELECT id, user_id, role, content, created_at
			FROM conversation_turns
			WHERE user_id = ?
			ORDER BY created_at DESC, rowid DESC
			LIMIT ?
		) ORDER BY created_at ASC`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []domain.Turn
	for rows.Next() {
		var (
			t       domain.Turn
			created string
		)
		if err := rows.Scan(&t.ID, &t.UserID, &t.Role, &t.Content, &created); err != nil {
			return nil, err
		}
		if t.CreatedAt, err = parseSQLiteTime(created); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

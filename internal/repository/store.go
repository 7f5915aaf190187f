package repository

import (
	"context"
	"errors"

	"persona-mirror/internal/domain"
)

var (
	// ErrNotFound se devuelve cuando no existe la fila buscada.
	ErrNotFound = errors.New("not found")
	// ErrUserNotFound indica que el usuario referenciado no existe fuera de este nucleo.
	ErrUserNotFound = errors.New("user not found")
)

type TraitRepository interface {
	Get(ctx context.Context, userID, traitName string) (domain.TraitMetric, error)
	// ListByUser devuelve las metricas ordenadas por nombre de rasgo.
	ListByUser(ctx context.Context, userID string) ([]domain.TraitMetric, error)
	Upsert(ctx context.Context, metric domain.TraitMetric) error
	// DeleteWeak borra metricas con confidence < minConfidence y evidence_count < minEvidence.
	DeleteWeak(ctx context.Context, userID string, minConfidence float64, minEvidence int) (int64, error)
	TotalEvidence(ctx context.Context, userID string) (int, error)
}

type SnapshotRepository interface {
	Create(ctx context.Context, snapshot domain.PersonaSnapshot) error
	GetLatestByUser(ctx context.Context, userID string) (domain.PersonaSnapshot, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.PersonaSnapshot, error)
}

type TurnRepository interface {
	Append(ctx context.Context, turns ...domain.Turn) error
	// ListRecent devuelve los ultimos limit turnos en orden cronologico.
	ListRecent(ctx context.Context, userID string, limit int) ([]domain.Turn, error)
}

// Repos agrupa repositorios ligados a la misma transaccion.
type Repos struct {
	Traits    TraitRepository
	Snapshots SnapshotRepository
}

// Store es la unidad de trabajo: WithUserTx serializa las transacciones de un mismo usuario.
// Dentro de fn solo deben usarse los repos recibidos.
type Store interface {
	WithUserTx(ctx context.Context, userID string, fn func(ctx context.Context, repos Repos) error) error
	Traits() TraitRepository
	Snapshots() SnapshotRepository
	Turns() TurnRepository
	Close() error
}

func clampForWrite(m domain.TraitMetric) domain.TraitMetric {
	return m.Clamped()
}

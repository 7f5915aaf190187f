package repository

import (
	"context"
	"sort"
	"sync"

	"persona-mirror/internal/domain"
)

type userState struct {
	metrics   map[string]domain.TraitMetric
	snapshots []domain.PersonaSnapshot
}

func newUserState() *userState {
	return &userState{metrics: make(map[string]domain.TraitMetric)}
}

func (u *userState) clone() *userState {
	c := newUserState()
	for k, v := range u.metrics {
		c.metrics[k] = v
	}
	c.snapshots = append([]domain.PersonaSnapshot(nil), u.snapshots...)
	return c
}

// userAccess abstrae el acceso a los datos de un usuario (confirmados o en transaccion).
type userAccess interface {
	read(userID string, fn func(u *userState))
	write(userID string, fn func(u *userState))
}

// MemoryStore implementa Store en memoria; las transacciones trabajan sobre una copia
// y solo se confirman si fn no devuelve error.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]*userState
	turns map[string][]domain.Turn

	locksMu sync.Mutex
	txLocks map[string]*sync.Mutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[string]*userState),
		turns:   make(map[string][]domain.Turn),
		txLocks: make(map[string]*sync.Mutex),
	}
}

func (s *MemoryStore) userLock(userID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.txLocks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.txLocks[userID] = l
	}
	return l
}

func (s *MemoryStore) read(userID string, fn func(u *userState)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		u = newUserState()
	}
	fn(u)
}

func (s *MemoryStore) write(userID string, fn func(u *userState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		u = newUserState()
		s.users[userID] = u
	}
	fn(u)
}

func (s *MemoryStore) WithUserTx(ctx context.Context, userID string, fn func(ctx context.Context, repos Repos) error) error {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	staged := &stagedAccess{store: s, states: make(map[string]*userState)}
	if err := fn(ctx, Repos{
		Traits:    &memoryTraitRepo{acc: staged},
		Snapshots: &memorySnapshotRepo{acc: staged},
	}); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, st := range staged.states {
		s.users[id] = st
	}
	return nil
}

func (s *MemoryStore) Traits() TraitRepository {
	return &memoryTraitRepo{acc: s}
}

func (s *MemoryStore) Snapshots() SnapshotRepository {
	return &memorySnapshotRepo{acc: s}
}

func (s *MemoryStore) Turns() TurnRepository {
	return &memoryTurnRepo{store: s}
}

func (s *MemoryStore) Close() error { return nil }

type stagedAccess struct {
	store  *MemoryStore
	states map[string]*userState
}

func (a *stagedAccess) state(userID string) *userState {
	if st, ok := a.states[userID]; ok {
		return st
	}
	var st *userState
	a.store.read(userID, func(u *userState) { st = u.clone() })
	a.states[userID] = st
	return st
}

func (a *stagedAccess) read(userID string, fn func(u *userState))  { fn(a.state(userID)) }
func (a *stagedAccess) write(userID string, fn func(u *userState)) { fn(a.state(userID)) }

type memoryTraitRepo struct {
	acc userAccess
}

func (r *memoryTraitRepo) Get(_ context.Context, userID, traitName string) (domain.TraitMetric, error) {
	var (
		m  domain.TraitMetric
		ok bool
	)
	r.acc.read(userID, func(u *userState) { m, ok = u.metrics[traitName] })
	if !ok {
		return domain.TraitMetric{}, ErrNotFound
	}
	return m, nil
}

func (r *memoryTraitRepo) ListByUser(_ context.Context, userID string) ([]domain.TraitMetric, error) {
	var metrics []domain.TraitMetric
	r.acc.read(userID, func(u *userState) {
		for _, m := range u.metrics {
			metrics = append(metrics, m)
		}
	})
	sort.Slice(metrics, func(i, j int) bool { return metrics[i].TraitName < metrics[j].TraitName })
	return metrics, nil
}

func (r *memoryTraitRepo) Upsert(_ context.Context, metric domain.TraitMetric) error {
	metric = clampForWrite(metric)
	r.acc.write(metric.UserID, func(u *userState) {
		if existing, ok := u.metrics[metric.TraitName]; ok {
			metric.ID = existing.ID
		}
		u.metrics[metric.TraitName] = metric
	})
	return nil
}

func (r *memoryTraitRepo) DeleteWeak(_ context.Context, userID string, minConfidence float64, minEvidence int) (int64, error) {
	var removed int64
	r.acc.write(userID, func(u *userState) {
		for name, m := range u.metrics {
			if m.Confidence < minConfidence && m.EvidenceCount < minEvidence {
				delete(u.metrics, name)
				removed++
			}
		}
	})
	return removed, nil
}

func (r *memoryTraitRepo) TotalEvidence(_ context.Context, userID string) (int, error) {
	total := 0
	r.acc.read(userID, func(u *userState) {
		for _, m := range u.metrics {
			total += m.EvidenceCount
		}
	})
	return total, nil
}

type memorySnapshotRepo struct {
	acc userAccess
}

func (r *memorySnapshotRepo) Create(_ context.Context, snapshot domain.PersonaSnapshot) error {
	snapshot.PersonaVector = copyVector(snapshot.PersonaVector)
	r.acc.write(snapshot.UserID, func(u *userState) {
		u.snapshots = append(u.snapshots, snapshot)
	})
	return nil
}

func (r *memorySnapshotRepo) GetLatestByUser(ctx context.Context, userID string) (domain.PersonaSnapshot, error) {
	snapshots, _ := r.ListByUser(ctx, userID, 1)
	if len(snapshots) == 0 {
		return domain.PersonaSnapshot{}, ErrNotFound
	}
	return snapshots[0], nil
}

func (r *memorySnapshotRepo) ListByUser(_ context.Context, userID string, limit int) ([]domain.PersonaSnapshot, error) {
	if limit <= 0 {
		limit = 10
	}
	var snapshots []domain.PersonaSnapshot
	r.acc.read(userID, func(u *userState) {
		snapshots = append(snapshots, u.snapshots...)
	})
	sort.SliceStable(snapshots, func(i, j int) bool {
		if snapshots[i].CreatedAt.Equal(snapshots[j].CreatedAt) {
			return snapshots[i].ID > snapshots[j].ID
		}
		return snapshots[i].CreatedAt.After(snapshots[j].CreatedAt)
	})
	if len(snapshots) > limit {
		snapshots = snapshots[:limit]
	}
	for i := range snapshots {
		snapshots[i].PersonaVector = copyVector(snapshots[i].PersonaVector)
	}
	return snapshots, nil
}

func copyVector(v domain.PersonaVector) domain.PersonaVector {
	out := make(domain.PersonaVector, len(v))
	for group, traits := range v {
		g := make(map[string]domain.TraitScore, len(traits))
		for name, ts := range traits {
			g[name] = ts
		}
		out[group] = g
	}
	return out
}

type memoryTurnRepo struct {
	store *MemoryStore
}

func (r *memoryTurnRepo) Append(_ context.Context, turns ...domain.Turn) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, t := range turns {
		r.store.turns[t.UserID] = append(r.store.turns[t.UserID], t)
	}
	return nil
}

func (r *memoryTurnRepo) ListRecent(_ context.Context, userID string, limit int) ([]domain.Turn, error) {
	if limit <= 0 {
		return nil, nil
	}
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	all := r.store.turns[userID]
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return append([]domain.Turn(nil), all...), nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"persona-mirror/internal/domain"
	"persona-mirror/internal/repository"
)

var (
	ErrEmptyMessage  = errors.New("message is empty")
	ErrInvalidUserID = errors.New("invalid user id")
)

const maxUserIDLength = 128

// PersonaServiceConfig controla la cadencia de snapshots y el historial reenviado.
type PersonaServiceConfig struct {
	// SnapshotEvery crea un snapshot cada N mensajes; siempre se crea si el usuario no tiene ninguno.
	SnapshotEvery int
	HistoryTurns  int
}

// PersonaDeps agrupa los componentes del motor.
type PersonaDeps struct {
	Store     repository.Store
	Extractor *SignalExtractor
	Updater   *TraitUpdater
	Builder   *SnapshotBuilder
	Loader    *SnapshotLoader
	Selector  *EmotionSelector
	Assembler *PromptAssembler
	Replies   *ReplyGenerator
}

// MessageResult es lo que recibe la capa de transporte por cada mensaje.
type MessageResult struct {
	TraitsUpdated   int              `json:"traits_updated"`
	StabilityIndex  float64          `json:"stability_index"`
	Summary         string           `json:"summary"`
	SnapshotID      string           `json:"snapshot_id"`
	ActiveArchetype domain.Archetype `json:"active_archetype"`
	DetectedEmotion domain.Emotion   `json:"detected_emotion"`
	ReplyText       string           `json:"reply_text"`
	ReplySource     string           `json:"reply_source"`
	FallbackReason  string           `json:"fallback_reason,omitempty"`
	MirroringActive bool             `json:"mirroring_active"`
}

// ReflectionResult es la salida del flujo de solo reflexion (sin respuesta).
type ReflectionResult struct {
	TraitsExtracted int     `json:"traits_extracted"`
	TraitsUpdated   int     `json:"traits_updated"`
	StabilityIndex  float64 `json:"stability_index"`
	SnapshotID      string  `json:"snapshot_id"`
	Summary         string  `json:"summary"`
}

// PersonaService orquesta la actualizacion de rasgos y la respuesta espejo.
type PersonaService struct {
	store     repository.Store
	extractor *SignalExtractor
	updater   *TraitUpdater
	builder   *SnapshotBuilder
	loader    *SnapshotLoader
	selector  *EmotionSelector
	assembler *PromptAssembler
	replies   *ReplyGenerator
	cfg       PersonaServiceConfig
	logger    *zap.Logger
	now       func() time.Time

	mu       sync.Mutex
	messages map[string]int
}

func NewPersonaService(deps PersonaDeps, cfg PersonaServiceConfig, logger *zap.Logger) *PersonaService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SnapshotEvery <= 0 {
		cfg.SnapshotEvery = 1
	}
	if cfg.HistoryTurns < 0 {
		cfg.HistoryTurns = 0
	}
	if deps.Extractor == nil {
		deps.Extractor = NewSignalExtractor(nil, logger)
	}
	if deps.Updater == nil {
		deps.Updater = NewTraitUpdater(DefaultDriftConfig(), logger)
	}
	if deps.Builder == nil {
		deps.Builder = NewSnapshotBuilder(logger)
	}
	if deps.Loader == nil && deps.Store != nil {
		deps.Loader = NewSnapshotLoader(deps.Store.Snapshots(), nil, logger)
	}
	if deps.Selector == nil {
		deps.Selector = NewEmotionSelector(logger)
	}
	if deps.Assembler == nil {
		deps.Assembler = NewPromptAssembler(nil)
	}
	if deps.Replies == nil {
		deps.Replies = NewReplyGenerator(nil, nil, 0, logger)
	}
	return &PersonaService{
		store:     deps.Store,
		extractor: deps.Extractor,
		updater:   deps.Updater,
		builder:   deps.Builder,
		loader:    deps.Loader,
		selector:  deps.Selector,
		assembler: deps.Assembler,
		replies:   deps.Replies,
		cfg:       cfg,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		messages:  make(map[string]int),
	}
}

func normalizeInput(userID, text string) (string, string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" || len(userID) > maxUserIDLength {
		return "", "", ErrInvalidUserID
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", "", ErrEmptyMessage
	}
	return userID, text, nil
}

type traitOutcome struct {
	extracted int
	update    UpdateResult
	snapshot  domain.PersonaSnapshot
}

// ProcessMessage corre en paralelo la actualizacion de rasgos y la generacion de la
// respuesta. La respuesta usa el ultimo snapshot disponible al empezar, que puede ir
// un mensaje por detras.
func (s *PersonaService) ProcessMessage(ctx context.Context, userID, text string) (MessageResult, error) {
	userID, text, err := normalizeInput(userID, text)
	if err != nil {
		return MessageResult{}, err
	}
	messagesProcessed.Inc()
	force := s.countMessage(userID)%s.cfg.SnapshotEvery == 0

	var (
		traits traitOutcome
		reply  Reply
		sel    Selection
		mirror bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		traits, err = s.updateTraits(gctx, userID, text, force)
		return err
	})
	g.Go(func() error {
		reply, sel, mirror = s.mirrorReply(gctx, userID, text)
		return nil
	})
	if err := g.Wait(); err != nil {
		return MessageResult{}, err
	}

	now := s.now()
	if err := s.store.Turns().Append(ctx,
		domain.Turn{ID: uuid.NewString(), UserID: userID, Role: domain.RoleUser, Content: text, CreatedAt: now},
		domain.Turn{ID: uuid.NewString(), UserID: userID, Role: domain.RoleAssistant, Content: reply.Text, CreatedAt: now.Add(time.Microsecond)},
	); err != nil {
		s.logger.Warn("append turns failed", zap.String("user_id", userID), zap.Error(err))
	}

	return MessageResult{
		TraitsUpdated:   traits.update.TraitsUpdated,
		StabilityIndex:  traits.update.StabilityIndex,
		Summary:         traits.snapshot.SummaryText,
		SnapshotID:      traits.snapshot.ID,
		ActiveArchetype: sel.Archetype,
		DetectedEmotion: sel.Detected,
		ReplyText:       reply.Text,
		ReplySource:     reply.Source,
		FallbackReason:  reply.FallbackReason,
		MirroringActive: mirror,
	}, nil
}

// Reflect solo actualiza rasgos y siempre deja un snapshot nuevo.
func (s *PersonaService) Reflect(ctx context.Context, userID, text string) (ReflectionResult, error) {
	userID, text, err := normalizeInput(userID, text)
	if err != nil {
		return ReflectionResult{}, err
	}
	messagesProcessed.Inc()

	out, err := s.updateTraits(ctx, userID, text, true)
	if err != nil {
		return ReflectionResult{}, err
	}
	return ReflectionResult{
		TraitsExtracted: out.extracted,
		TraitsUpdated:   out.update.TraitsUpdated,
		StabilityIndex:  round3(out.update.StabilityIndex),
		SnapshotID:      out.snapshot.ID,
		Summary:         out.snapshot.SummaryText,
	}, nil
}

// updateTraits extrae fuera de la transaccion (llamada lenta al LLM) y aplica
// las señales y el snapshot dentro de una unica transaccion por usuario.
func (s *PersonaService) updateTraits(ctx context.Context, userID, text string, forceSnapshot bool) (traitOutcome, error) {
	signals := s.extractor.Extract(ctx, text)
	out := traitOutcome{extracted: len(signals)}

	created := false
	err := s.store.WithUserTx(ctx, userID, func(ctx context.Context, repos repository.Repos) error {
		update, err := s.updater.Apply(ctx, repos.Traits, userID, signals)
		if err != nil {
			return err
		}
		out.update = update

		if !forceSnapshot {
			latest, err := repos.Snapshots.GetLatestByUser(ctx, userID)
			switch {
			case err == nil:
				out.snapshot = latest
				return nil
			case !errors.Is(err, repository.ErrNotFound):
				return fmt.Errorf("latest snapshot: %w", err)
			}
		}
		out.snapshot, err = s.builder.Build(ctx, repos, userID)
		created = err == nil
		return err
	})
	if err != nil {
		return traitOutcome{}, fmt.Errorf("update traits: %w", err)
	}
	if created {
		s.loader.Invalidate(ctx, userID)
	}

	s.logger.Info("persona updated",
		zap.String("user_id", userID),
		zap.Int("signals", out.extracted),
		zap.Int("traits_updated", out.update.TraitsUpdated),
		zap.Float64("stability_index", out.update.StabilityIndex),
		zap.Bool("snapshot_created", created),
	)
	return out, nil
}

// mirrorReply nunca falla: cualquier problema con historial o snapshot degrada
// al prompt base y el generador cae a la respuesta local.
func (s *PersonaService) mirrorReply(ctx context.Context, userID, text string) (Reply, Selection, bool) {
	style := AnalyzeStyle(text)
	sel := s.selector.Select(userID, text)

	snapshot, err := s.loader.Latest(ctx, userID)
	if err != nil {
		s.logger.Warn("snapshot unavailable for mirroring", zap.String("user_id", userID), zap.Error(err))
		snapshot = nil
	}

	var history []domain.Turn
	if s.cfg.HistoryTurns > 0 {
		history, err = s.store.Turns().ListRecent(ctx, userID, s.cfg.HistoryTurns)
		if err != nil {
			s.logger.Warn("conversation history unavailable", zap.String("user_id", userID), zap.Error(err))
			history = nil
		}
	}

	reply := s.replies.Generate(ctx, ReplyInput{
		UserID:       userID,
		UserText:     text,
		SystemPrompt: s.assembler.Assemble(snapshot, style, sel.Archetype),
		History:      history,
		Style:        style,
		Archetype:    sel.Archetype,
	})
	return reply, sel, snapshot != nil
}

func (s *PersonaService) countMessage(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[userID]++
	return s.messages[userID]
}

// Profile devuelve el ultimo snapshot o repository.ErrNotFound.
func (s *PersonaService) Profile(ctx context.Context, userID string) (domain.PersonaSnapshot, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.PersonaSnapshot{}, ErrInvalidUserID
	}
	snapshot, err := s.loader.Latest(ctx, userID)
	if err != nil {
		return domain.PersonaSnapshot{}, err
	}
	if snapshot == nil {
		return domain.PersonaSnapshot{}, repository.ErrNotFound
	}
	return *snapshot, nil
}

// Metrics lee el estado actual de los rasgos directamente del store.
func (s *PersonaService) Metrics(ctx context.Context, userID string) ([]domain.TraitMetric, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrInvalidUserID
	}
	metrics, err := s.store.Traits().ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list traits: %w", err)
	}
	return metrics, nil
}

// Snapshots devuelve el historial de snapshots, el mas reciente primero.
func (s *PersonaService) Snapshots(ctx context.Context, userID string, limit int) ([]domain.PersonaSnapshot, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrInvalidUserID
	}
	snapshots, err := s.store.Snapshots().ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return snapshots, nil
}

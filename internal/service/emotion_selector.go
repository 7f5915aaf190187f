package service

import (
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"

	"persona-mirror/internal/domain"
)

const emotionHistorySize = 5

var emotionKeywords = map[domain.Emotion][]string{
	domain.EmotionInsecurity: {"i don't know", "maybe", "not sure", "probably wrong", "doubt", "uncertain", "hesitant", "scared", "nervous", "idk", "unsure", "confused", "lost"},
	domain.EmotionStress:     {"stressed", "overwhelmed", "anxious", "worried", "pressure", "struggling", "can't handle", "too much", "exhausted", "tired", "drowning", "burnout"},
	domain.EmotionAnger:      {"pissed", "angry", "furious", "mad", "hate", "fuck", "bullshit", "ridiculous", "unacceptable", "done with", "fed up", "irritated"},
	domain.EmotionPlayful:    {"lol", "lmao", "haha", "😂", "💀", "bruh", "nah", "lowkey", "highkey", "vibes", "bet", "tbh"},
	domain.EmotionSarcasm:    {"sure", "yeah right", "oh great", "wonderful", "fantastic", "obviously", "totally", "yeah okay", "perfect", "lovely"},
	domain.EmotionExcitement: {"yay", "woohoo", "omg", "yes", "let's go", "pumped", "thrilled", "can't wait", "hyped", "stoked"},
	domain.EmotionHappiness:  {"happy", "great", "awesome", "amazing", "love", "excellent", "wonderful"},
}

var (
	hypeWords       = []string{"lmaooo", "brooo", "yooo", "yoooo", "frfr", "fr fr", "omfg", "yasss", "yaaas"}
	laughWords      = []string{"lol", "lmao", "haha"}
	ironicPositives = []string{"great", "wonderful", "perfect", "amazing"}
	repeatedPunctRe = regexp.MustCompile(`[!?]{2,}`)
	capsEmphasisRe  = regexp.MustCompile(`[A-Z]{2,}`)
)

// IntensityMarkers registra que marcadores de intensidad se detectaron.
type IntensityMarkers struct {
	Elongation    bool
	RepeatedPunct bool
	HypeWord      bool
	CapsEmphasis  bool
}

func (m IntensityMarkers) Count() int {
	n := 0
	for _, on := range []bool{m.Elongation, m.RepeatedPunct, m.HypeWord, m.CapsEmphasis} {
		if on {
			n++
		}
	}
	return n
}

func detectIntensity(text, lower string) IntensityMarkers {
	return IntensityMarkers{
		Elongation:    hasElongation(lower),
		RepeatedPunct: repeatedPunctRe.MatchString(text),
		HypeWord:      containsAny(lower, hypeWords),
		CapsEmphasis:  capsEmphasisRe.MatchString(text),
	}
}

// ClassifyEmotion puntua cada emocion por palabras clave y heuristicas de intensidad.
// Con puntaje maximo 0 devuelve neutral; los empates los resuelve domain.EmotionOrder.
func ClassifyEmotion(text string) domain.Emotion {
	lower := strings.ToLower(text)
	markers := detectIntensity(text, lower)

	scores := make(map[domain.Emotion]int, len(domain.EmotionOrder))
	for _, e := range domain.EmotionOrder {
		scores[e] = countContained(lower, emotionKeywords[e])
	}

	if markers.Count() >= 1 {
		scores[domain.EmotionExcitement] += 3
		scores[domain.EmotionPlayful] += 2
	}
	if markers.CapsEmphasis && markers.RepeatedPunct {
		scores[domain.EmotionAnger] += 2
	}
	if strings.Contains(text, "?") && len(strings.Fields(text)) < 10 && markers.Count() == 0 {
		scores[domain.EmotionInsecurity]++
	}
	if markers.RepeatedPunct && containsAny(lower, laughWords) {
		scores[domain.EmotionPlayful] += 2
	}
	if containsAny(lower, ironicPositives) && (markers.RepeatedPunct || strings.Contains(text, "...")) {
		scores[domain.EmotionSarcasm] += 2
	}

	best := domain.EmotionNeutral
	top := 0
	for _, e := range domain.EmotionOrder {
		if scores[e] > top {
			best, top = e, scores[e]
		}
	}
	return best
}

// Selection es el resultado de una seleccion de arquetipo.
type Selection struct {
	Detected   domain.Emotion
	Archetype  domain.Archetype
	Suppressed bool
}

// EmotionSelector mantiene por usuario las ultimas emociones clasificadas y aplica
// histeresis: un valor atipico no cambia el arquetipo activo.
type EmotionSelector struct {
	mu      sync.Mutex
	history map[string][]domain.Emotion
	logger  *zap.Logger
}

func NewEmotionSelector(logger *zap.Logger) *EmotionSelector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmotionSelector{
		history: make(map[string][]domain.Emotion),
		logger:  logger,
	}
}

// Select clasifica el mensaje y decide el arquetipo. Siempre se guarda la emocion
// clasificada, no la suprimida.
func (s *EmotionSelector) Select(userID, text string) Selection {
	detected := ClassifyEmotion(text)
	emotionsDetected.WithLabelValues(string(detected)).Inc()
	return s.commit(userID, detected)
}

func (s *EmotionSelector) commit(userID string, detected domain.Emotion) Selection {
	s.mu.Lock()
	defer s.mu.Unlock()

	hist := s.history[userID]
	sel := Selection{Detected: detected, Archetype: domain.ArchetypeFor(detected)}
	if n := len(hist); n >= 2 && hist[n-1] == hist[n-2] && hist[n-1] != detected {
		sel.Archetype = domain.ArchetypeFor(hist[n-1])
		sel.Suppressed = true
	}

	hist = append(hist, detected)
	if len(hist) > emotionHistorySize {
		hist = append([]domain.Emotion(nil), hist[len(hist)-emotionHistorySize:]...)
	}
	s.history[userID] = hist

	s.logger.Debug("archetype selected",
		zap.String("user_id", userID),
		zap.String("emotion", string(detected)),
		zap.String("archetype", string(sel.Archetype)),
		zap.Bool("suppressed", sel.Suppressed),
	)
	return sel
}

// History devuelve una copia del historial del usuario.
func (s *EmotionSelector) History(userID string) []domain.Emotion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Emotion(nil), s.history[userID]...)
}

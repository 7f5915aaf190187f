package domain

// StyleProfile es efimero: se recalcula en cada mensaje.
type StyleProfile struct {
	AvgSentenceLength    float64 `json:"avg_sentence_length"`
	PunctuationIntensity int     `json:"punctuation_intensity"`
	HasSlang             bool    `json:"has_slang"`
	EmotionalMarkers     int     `json:"emotional_markers"`
	CapsIntensity        float64 `json:"caps_intensity"`
	HasQuestions         bool    `json:"has_questions"`
	HasElongation        bool    `json:"has_elongation"`
}

type Emotion string

const (
	EmotionInsecurity Emotion = "insecurity"
	EmotionStress     Emotion = "stress"
	EmotionAnger      Emotion = "anger"
	EmotionPlayful    Emotion = "playful"
	EmotionSarcasm    Emotion = "sarcasm"
	EmotionExcitement Emotion = "excitement"
	EmotionHappiness  Emotion = "happiness"
	EmotionNeutral    Emotion = "neutral"
)

// EmotionOrder define el desempate: gana la primera emocion con el puntaje maximo.
var EmotionOrder = []Emotion{
	EmotionInsecurity,
	EmotionStress,
	EmotionAnger,
	EmotionPlayful,
	EmotionSarcasm,
	EmotionExcitement,
	EmotionHappiness,
}

type Archetype string

const (
	ArchetypeDominant   Archetype = "dominant"
	ArchetypeCalm       Archetype = "calm"
	ArchetypeChallenger Archetype = "challenger"
	ArchetypeChaotic    Archetype = "chaotic"
	ArchetypeDarkWit    Archetype = "dark_wit"
	ArchetypeOptimist   Archetype = "optimist"
)

var emotionArchetypes = map[Emotion]Archetype{
	EmotionInsecurity: ArchetypeDominant,
	EmotionStress:     ArchetypeCalm,
	EmotionAnger:      ArchetypeChallenger,
	EmotionPlayful:    ArchetypeChaotic,
	EmotionSarcasm:    ArchetypeDarkWit,
	EmotionExcitement: ArchetypeChaotic,
	EmotionHappiness:  ArchetypeOptimist,
	EmotionNeutral:    ArchetypeCalm,
}

// ArchetypeFor mapea la emocion a su arquetipo; desconocidas caen en calm.
func ArchetypeFor(e Emotion) Archetype {
	if a, ok := emotionArchetypes[e]; ok {
		return a
	}
	return ArchetypeCalm
}

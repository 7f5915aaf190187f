package service

import (
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"persona-mirror/internal/domain"
)

var sentenceSplitRe = regexp.MustCompile(`[.!?]+`)

var (
	slangMarkers   = []string{"gonna", "wanna", "gotta", "kinda", "sorta", "yeah", "nah", "like", "just", "really"}
	emotionalWords = []string{"love", "hate", "happy", "sad", "angry", "excited", "worried", "anxious", "stressed", "amazing", "terrible", "awesome"}
	emotionalEmoji = []string{"😊", "😂", "😢", "😠", "🥺", "💀", "🔥"}
)

// AnalyzeStyle calcula los rasgos estilisticos del mensaje actual. No tiene estado.
// Las listas se comparan por substring sobre el texto en minusculas.
func AnalyzeStyle(message string) domain.StyleProfile {
	lower := strings.ToLower(message)
	words := strings.Fields(message)

	var sentences []string
	for _, s := range sentenceSplitRe.Split(message, -1) {
		if s = strings.TrimSpace(s); s != "" {
			sentences = append(sentences, s)
		}
	}

	avg := float64(len(words))
	if len(sentences) > 0 {
		total := 0
		for _, s := range sentences {
			total += len(strings.Fields(s))
		}
		avg = float64(total) / float64(len(sentences))
	}

	exclamations := strings.Count(message, "!")
	questions := strings.Count(message, "?")

	markers := countContained(lower, emotionalWords)
	if exclamations > 0 || questions > 0 || containsAny(message, emotionalEmoji) {
		markers++
	}

	caps := 0.0
	if len(words) > 0 {
		capsWords := 0
		for _, w := range words {
			if utf8.RuneCountInString(w) > 1 && isUpperWord(w) {
				capsWords++
			}
		}
		caps = float64(capsWords) / float64(len(words))
	}

	return domain.StyleProfile{
		AvgSentenceLength:    roundTo(avg, 1),
		PunctuationIntensity: exclamations + questions,
		HasSlang:             containsAny(lower, slangMarkers),
		EmotionalMarkers:     markers,
		CapsIntensity:        roundTo(caps, 2),
		HasQuestions:         questions > 0,
		HasElongation:        hasElongation(lower),
	}
}

// isUpperWord: al menos una letra con caso y ninguna minuscula.
func isUpperWord(w string) bool {
	cased := false
	for _, r := range w {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) || unicode.IsTitle(r) {
			cased = true
		}
	}
	return cased
}

// hasElongation detecta 3+ letras a-z iguales consecutivas (RE2 no soporta backreferences).
func hasElongation(lower string) bool {
	var prev rune
	run := 0
	for _, r := range lower {
		if r >= 'a' && r <= 'z' && r == prev {
			run++
			if run >= 3 {
				return true
			}
			continue
		}
		prev = r
		run = 1
	}
	return false
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func countContained(s string, needles []string) int {
	n := 0
	for _, needle := range needles {
		if strings.Contains(s, needle) {
			n++
		}
	}
	return n
}

// roundTo redondea a decimals con empate al par.
func roundTo(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.RoundToEven(v*p) / p
}

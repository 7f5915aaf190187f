package service

import (
	"math/rand/v2"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"persona-mirror/internal/domain"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// normalizeForEcho compara ignorando mayusculas y espacios repetidos.
func normalizeForEcho(s string) string {
	return whitespaceRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), " ")
}

// isEcho indica si la respuesta repite el mensaje del usuario.
func isEcho(reply, userText string) bool {
	return normalizeForEcho(reply) == normalizeForEcho(userText)
}

// FallbackBuilder sintetiza una respuesta local sin LLM a partir del pool del arquetipo.
// La eleccion es pseudoaleatoria con semilla explicita; con la misma semilla la
// secuencia de respuestas es reproducible.
type FallbackBuilder struct {
	catalog *ArchetypeCatalog

	mu  sync.Mutex
	rng *rand.Rand
}

// NewFallbackBuilder usa la hora actual cuando seed es 0.
func NewFallbackBuilder(catalog *ArchetypeCatalog, seed int64) *FallbackBuilder {
	if catalog == nil {
		catalog = DefaultArchetypeCatalog()
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &FallbackBuilder{
		catalog: catalog,
		rng:     rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15)),
	}
}

func (f *FallbackBuilder) pick(n int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rng.IntN(n)
}

// Build devuelve una respuesta corta que refleja jerga, letras estiradas, mayusculas
// e intensidad de puntuacion del mensaje. Nunca repite el mensaje del usuario.
func (f *FallbackBuilder) Build(userText string, style domain.StyleProfile, archetype domain.Archetype) string {
	replies := f.catalog.Profile(archetype).Replies
	start := f.pick(len(replies))
	slang := f.catalog.SlangOpeners[f.pick(len(f.catalog.SlangOpeners))]
	stretch := f.catalog.ElongatedOpeners[f.pick(len(f.catalog.ElongatedOpeners))]

	for i := 0; i < len(replies); i++ {
		reply := decorate(replies[(start+i)%len(replies)], style, slang, stretch)
		if !isEcho(reply, userText) {
			return reply
		}
	}
	return decorate(replies[start]+" fr", style, slang, stretch)
}

func decorate(base string, style domain.StyleProfile, slang, stretch string) string {
	reply := base
	if style.HasSlang {
		reply = slang + " " + lowerFirst(reply)
	}
	if style.HasElongation {
		reply = stretch + " " + lowerFirst(reply)
	}
	if style.CapsIntensity > 0.1 {
		reply = strings.ToUpper(reply)
	}
	if style.PunctuationIntensity > 2 {
		reply = strings.TrimRight(reply, ".!? ") + "!!"
	}
	return reply
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	// "I" y contracciones con "I'" conservan la mayuscula
	if r == 'I' && (len(s) == size || s[size] == ' ' || s[size] == '\'') {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}

package service

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"persona-mirror/internal/domain"
)

//go:embed archetypes.yaml
var archetypesYAML []byte

// ArchetypeProfile es la regla de tono de un arquetipo y su pool de frases de respaldo.
type ArchetypeProfile struct {
	Label   string   `yaml:"label"`
	Rules   []string `yaml:"rules"`
	Replies []string `yaml:"replies"`
}

// ArchetypeCatalog es la tabla fija de arquetipos.
type ArchetypeCatalog struct {
	Archetypes       map[domain.Archetype]ArchetypeProfile `yaml:"archetypes"`
	SlangOpeners     []string                              `yaml:"slang_openers"`
	ElongatedOpeners []string                              `yaml:"elongated_openers"`
}

var allArchetypes = []domain.Archetype{
	domain.ArchetypeDominant,
	domain.ArchetypeCalm,
	domain.ArchetypeChallenger,
	domain.ArchetypeChaotic,
	domain.ArchetypeDarkWit,
	domain.ArchetypeOptimist,
}

// ParseArchetypeCatalog decodifica y valida un catalogo YAML.
func ParseArchetypeCatalog(data []byte) (*ArchetypeCatalog, error) {
	var c ArchetypeCatalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode archetype catalog: %w", err)
	}
	for _, a := range allArchetypes {
		p, ok := c.Archetypes[a]
		if !ok {
			return nil, fmt.Errorf("archetype %q missing from catalog", a)
		}
		if len(p.Rules) == 0 || len(p.Replies) == 0 {
			return nil, fmt.Errorf("archetype %q needs rules and replies", a)
		}
	}
	if len(c.SlangOpeners) == 0 || len(c.ElongatedOpeners) == 0 {
		return nil, fmt.Errorf("archetype catalog needs slang and elongated openers")
	}
	return &c, nil
}

var defaultCatalog = sync.OnceValues(func() (*ArchetypeCatalog, error) {
	return ParseArchetypeCatalog(archetypesYAML)
})

// DefaultArchetypeCatalog devuelve el catalogo embebido. Un catalogo invalido es un error de build.
func DefaultArchetypeCatalog() *ArchetypeCatalog {
	c, err := defaultCatalog()
	if err != nil {
		panic(err)
	}
	return c
}

// Profile devuelve el perfil del arquetipo; desconocidos caen en calm.
func (c *ArchetypeCatalog) Profile(a domain.Archetype) ArchetypeProfile {
	if p, ok := c.Archetypes[a]; ok {
		return p
	}
	return c.Archetypes[domain.ArchetypeCalm]
}

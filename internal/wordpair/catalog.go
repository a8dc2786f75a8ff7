package wordpair

import (
	"context"
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"wavelink-service/internal/domain"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type catalogFile struct {
	Pairs []domain.WordPair `yaml:"pairs"`
}

// ParseCatalog decodes a YAML catalog and rejects duplicate or empty entries.
func ParseCatalog(data []byte) ([]domain.WordPair, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	seen := make(map[string]struct{}, len(file.Pairs))
	for _, p := range file.Pairs {
		if p.ID == "" || p.Word1 == "" || p.Word2 == "" {
			return nil, fmt.Errorf("parse catalog: incomplete pair %+v", p)
		}
		if _, ok := seen[p.ID]; ok {
			return nil, fmt.Errorf("parse catalog: duplicate pair id %q", p.ID)
		}
		seen[p.ID] = struct{}{}
	}
	return file.Pairs, nil
}

// DefaultCatalog returns the embedded catalog.
func DefaultCatalog() []domain.WordPair {
	pairs, err := ParseCatalog(defaultCatalog)
	if err != nil {
		panic(err)
	}
	return pairs
}

// StaticLoader serves a fixed set of pairs (embedded catalog, tests, demos).
type StaticLoader struct {
	pairs []domain.WordPair
}

func NewStaticLoader(pairs []domain.WordPair) *StaticLoader {
	return &StaticLoader{pairs: pairs}
}

func (l *StaticLoader) LoadPairs(_ context.Context) ([]domain.WordPair, error) {
	out := make([]domain.WordPair, len(l.pairs))
	copy(out, l.pairs)
	return out, nil
}

// Filter applies f to pairs.
func Filter(pairs []domain.WordPair, f domain.PairFilter) []domain.WordPair {
	if !f.EasyOnly {
		return pairs
	}
	out := make([]domain.WordPair, 0, len(pairs))
	for _, p := range pairs {
		if p.Easy {
			out = append(out, p)
		}
	}
	return out
}

package memory

import (
	"context"

	"competition-service/internal/domain"
)

// StaticLoader serves a fixed set of competitions (useful for tests/demos).
type StaticLoader struct {
	competitions map[string]domain.Competition
}

func NewStaticLoader(competitions ...domain.Competition) *StaticLoader {
	m := make(map[string]domain.Competition, len(competitions))
	for _, c := range competitions {
		m[c.ID] = c
	}
	return &StaticLoader{competitions: m}
}

func (l *StaticLoader) LoadCompetitions(_ context.Context) (map[string]domain.Competition, error) {
	out := make(map[string]domain.Competition, len(l.competitions))
	for id, c := range l.competitions {
		out[id] = c
	}
	return out, nil
}

// Replace swaps the served competitions; the next catalog reload picks them up.
func (l *StaticLoader) Replace(competitions ...domain.Competition) {
	m := make(map[string]domain.Competition, len(competitions))
	for _, c := range competitions {
		m[c.ID] = c
	}
	l.competitions = m
}

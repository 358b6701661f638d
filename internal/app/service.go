package app

import (
	"context"
	"strings"
	"time"

	"competition-service/internal/domain"
	"github.com/google/uuid"
)

// Store abstracts the persistent tables (in-memory, SQLite, Postgres).
type Store interface {
	// GetState reports found=false when no row exists; it never creates one.
	GetState(ctx context.Context, competitionID string) (domain.CompetitionState, bool, error)
	ListStates(ctx context.Context) ([]domain.CompetitionState, error)
	// UpdateState applies fn to the state row of competitionID (a zero state when missing)
	// and persists it in one transaction. When exclusive is set, every other competition
	// is deactivated in the same transaction.
	UpdateState(ctx context.Context, competitionID string, exclusive bool, fn func(*domain.CompetitionState)) (domain.CompetitionState, error)
	// SaveBest inserts the result or lowers best_ms of the existing row, keeping its ts.
	// It reports whether a row was written.
	SaveBest(ctx context.Context, result domain.Result) (bool, error)
	AppendSubmission(ctx context.Context, submission domain.Submission) error
	ListResults(ctx context.Context, competitionID string) ([]domain.Result, error)
	CompletedLevels(ctx context.Context, competitionID, user string) ([]int, error)
	Stats(ctx context.Context, competitionID string) (domain.Stats, error)
	// SeedCompetitions upserts competition rows and creates an inactive state row for
	// defaultID when no state rows exist yet.
	SeedCompetitions(ctx context.Context, records []domain.CompetitionRecord, defaultID string) error
	// Reset wipes every table and seeds it again.
	Reset(ctx context.Context, records []domain.CompetitionRecord, defaultID string) error
}

// LeaderboardCache memoizes built leaderboards until the next write.
type LeaderboardCache interface {
	Load(ctx context.Context, competitionID string, build func(context.Context) (domain.Leaderboard, error)) (domain.Leaderboard, error)
	Invalidate(ctx context.Context, competitionID string)
}

// EventPublisher forwards competition events to an external stream.
// Implementations report their own failures.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event)
}

// Service contains the competition use cases.
type Service struct {
	store   Store
	catalog *CatalogProvider
	cache   LeaderboardCache
	events  EventPublisher
	hub     *Hub
	now     func() time.Time
	newID   func() string
}

// NewService wires the use cases; cache and events may be nil.
func NewService(store Store, catalog *CatalogProvider, cache LeaderboardCache, events EventPublisher) *Service {
	return NewServiceWithClock(store, catalog, cache, events, time.Now)
}

// NewServiceWithClock is used by tests for deterministic timestamps.
func NewServiceWithClock(store Store, catalog *CatalogProvider, cache LeaderboardCache, events EventPublisher, now func() time.Time) *Service {
	if cache == nil {
		cache = uncachedLeaderboards{}
	}
	if events == nil {
		events = NopPublisher{}
	}
	return &Service{
		store:   store,
		catalog: catalog,
		cache:   cache,
		events:  events,
		hub:     NewHub(),
		now:     now,
		newID:   uuid.NewString,
	}
}

// Catalog returns the currently loaded competitions.
func (s *Service) Catalog() *Catalog {
	return s.catalog.Current()
}

// Bootstrap seeds competition rows from the loaded catalog.
func (s *Service) Bootstrap(ctx context.Context) error {
	catalog := s.catalog.Current()
	return s.store.SeedCompetitions(ctx, catalog.Records(), catalog.DefaultID())
}

// ReloadCatalog re-reads competition definitions and upserts their rows.
func (s *Service) ReloadCatalog(ctx context.Context) (*Catalog, error) {
	catalog, err := s.catalog.Reload(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.store.SeedCompetitions(ctx, catalog.Records(), catalog.DefaultID()); err != nil {
		return nil, err
	}
	for _, c := range catalog.List() {
		s.changed(ctx, c.ID)
	}
	return catalog, nil
}

// Reset wipes results, submissions and states and re-seeds competitions.
func (s *Service) Reset(ctx context.Context) error {
	previous, err := s.store.ListStates(ctx)
	if err != nil {
		return err
	}
	catalog := s.catalog.Current()
	if err := s.store.Reset(ctx, catalog.Records(), catalog.DefaultID()); err != nil {
		return err
	}
	touched := make(map[string]struct{})
	for _, st := range previous {
		touched[st.CompetitionID] = struct{}{}
	}
	for _, c := range catalog.List() {
		touched[c.ID] = struct{}{}
	}
	for id := range touched {
		s.changed(ctx, id)
	}
	s.events.Publish(ctx, domain.Event{Type: domain.EventDataReset, Timestamp: s.now().Unix()})
	return nil
}

// Stats returns activity counters; an empty id resolves the active competition.
func (s *Service) Stats(ctx context.Context, competitionID string) (domain.Stats, error) {
	competitionID, ok, err := s.resolve(ctx, competitionID)
	if err != nil || !ok {
		return domain.Stats{}, err
	}
	return s.store.Stats(ctx, competitionID)
}

// Progress lists the levels user has completed in ascending order.
func (s *Service) Progress(ctx context.Context, user, competitionID string) ([]int, error) {
	if strings.TrimSpace(user) == "" {
		return nil, domain.Invalid("user", "must not be empty")
	}
	competitionID, ok, err := s.resolve(ctx, competitionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []int{}, nil
	}
	return s.store.CompletedLevels(ctx, competitionID, user)
}

// resolve falls back to the active competition when competitionID is empty.
func (s *Service) resolve(ctx context.Context, competitionID string) (string, bool, error) {
	if competitionID != "" {
		return competitionID, true, nil
	}
	return s.ActiveCompetitionID(ctx)
}

// changed drops cached standings and pushes fresh ones to live subscribers.
func (s *Service) changed(ctx context.Context, competitionID string) {
	s.cache.Invalidate(ctx, competitionID)
	if !s.hub.HasSubscribers(competitionID) {
		return
	}
	seq := s.hub.Next(competitionID)
	lb, err := s.Leaderboard(ctx, competitionID)
	if err != nil {
		// the write already succeeded; subscribers catch up on the next change
		return
	}
	s.hub.Publish(competitionID, seq, lb)
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, domain.Event) {}

type uncachedLeaderboards struct{}

func (uncachedLeaderboards) Load(ctx context.Context, _ string, build func(context.Context) (domain.Leaderboard, error)) (domain.Leaderboard, error) {
	return build(ctx)
}

func (uncachedLeaderboards) Invalidate(context.Context, string) {}

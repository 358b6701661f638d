package memory

import (
	"context"
	"sort"
	"sync"

	"competition-service/internal/domain"
)

type resultKey struct {
	user          string
	competitionID string
	level         int
}

// Store is an in-memory implementation of app.Store.
type Store struct {
	mu           sync.RWMutex
	competitions map[string]domain.CompetitionRecord
	states       map[string]domain.CompetitionState
	results      map[resultKey]domain.Result
	submissions  []domain.Submission
}

func NewStore() *Store {
	s := &Store{}
	s.clearLocked()
	return s
}

func (s *Store) clearLocked() {
	s.competitions = make(map[string]domain.CompetitionRecord)
	s.states = make(map[string]domain.CompetitionState)
	s.results = make(map[resultKey]domain.Result)
	s.submissions = nil
}

func (s *Store) GetState(_ context.Context, competitionID string) (domain.CompetitionState, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[competitionID]
	return state, ok, nil
}

func (s *Store) ListStates(_ context.Context) ([]domain.CompetitionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	states := make([]domain.CompetitionState, 0, len(s.states))
	for _, st := range s.states {
		states = append(states, st)
	}
	sort.Slice(states, func(i, j int) bool { return states[i].CompetitionID < states[j].CompetitionID })
	return states, nil
}

func (s *Store) UpdateState(_ context.Context, competitionID string, exclusive bool, fn func(*domain.CompetitionState)) (domain.CompetitionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[competitionID]
	if !ok {
		state = domain.CompetitionState{CompetitionID: competitionID}
	}
	fn(&state)
	state.CompetitionID = competitionID

	if exclusive {
		for id, other := range s.states {
			if id != competitionID && other.IsActive {
				other.IsActive = false
				s.states[id] = other
			}
		}
	}
	s.states[competitionID] = state
	return state, nil
}

func (s *Store) SaveBest(_ context.Context, result domain.Result) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := resultKey{user: result.User, competitionID: result.CompetitionID, level: result.Level}
	existing, ok := s.results[key]
	if !ok {
		s.results[key] = result
		return true, nil
	}
	if result.BestMs < existing.BestMs {
		existing.BestMs = result.BestMs
		s.results[key] = existing
		return true, nil
	}
	return false, nil
}

func (s *Store) AppendSubmission(_ context.Context, submission domain.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submissions = append(s.submissions, submission)
	return nil
}

func (s *Store) ListResults(_ context.Context, competitionID string) ([]domain.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	results := make([]domain.Result, 0)
	for _, r := range s.results {
		if r.CompetitionID == competitionID {
			results = append(results, r)
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].User != results[j].User {
			return results[i].User < results[j].User
		}
		return results[i].Level < results[j].Level
	})
	return results, nil
}

func (s *Store) CompletedLevels(_ context.Context, competitionID, user string) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	levels := make([]int, 0)
	for key := range s.results {
		if key.competitionID == competitionID && key.user == user {
			levels = append(levels, key.level)
		}
	}
	sort.Ints(levels)
	return levels, nil
}

func (s *Store) Stats(_ context.Context, competitionID string) (domain.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := domain.Stats{CompetitionID: competitionID}
	users := make(map[string]struct{})
	for key := range s.results {
		if key.competitionID != competitionID {
			continue
		}
		users[key.user] = struct{}{}
		stats.CompletedLevels++
	}
	for _, sub := range s.submissions {
		if sub.CompetitionID == competitionID {
			stats.Submissions++
		}
	}
	stats.Users = len(users)
	return stats, nil
}

func (s *Store) SeedCompetitions(_ context.Context, records []domain.CompetitionRecord, defaultID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seedLocked(records, defaultID)
	return nil
}

func (s *Store) Reset(_ context.Context, records []domain.CompetitionRecord, defaultID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
	s.seedLocked(records, defaultID)
	return nil
}

func (s *Store) seedLocked(records []domain.CompetitionRecord, defaultID string) {
	for _, rec := range records {
		s.competitions[rec.ID] = rec
	}
	if len(s.states) == 0 && defaultID != "" {
		s.states[defaultID] = domain.CompetitionState{CompetitionID: defaultID}
	}
}

// Competitions returns the seeded competition rows.
func (s *Store) Competitions() []domain.CompetitionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := make([]domain.CompetitionRecord, 0, len(s.competitions))
	for _, rec := range s.competitions {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records
}

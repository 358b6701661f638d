package app

import (
	"context"
	"sort"

	"competition-service/internal/domain"
)

// Leaderboard returns the ranked standings of competitionID, or of the active competition
// when empty. A competition missing from the catalog still renders from stored rows.
func (s *Service) Leaderboard(ctx context.Context, competitionID string) (domain.Leaderboard, error) {
	competitionID, ok, err := s.resolve(ctx, competitionID)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	if !ok {
		return domain.Leaderboard{
			Standings:   []domain.UserStanding{},
			GeneratedAt: s.now().Unix(),
		}, nil
	}
	return s.cache.Load(ctx, competitionID, func(ctx context.Context) (domain.Leaderboard, error) {
		return s.buildLeaderboard(ctx, competitionID)
	})
}

func (s *Service) buildLeaderboard(ctx context.Context, competitionID string) (domain.Leaderboard, error) {
	state, err := s.CompetitionState(ctx, competitionID)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	results, err := s.store.ListResults(ctx, competitionID)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	standings, effective := BuildStandings(state.StartTime, results)

	lb := domain.Leaderboard{
		CompetitionID:  competitionID,
		StartTime:      state.StartTime,
		EffectiveStart: effective,
		Standings:      standings,
		GeneratedAt:    s.now().Unix(),
	}
	if comp, ok := s.catalog.Current().Competition(competitionID); ok {
		lb.Name = comp.Name
	}
	return lb, nil
}

// BuildStandings aggregates results per user and ranks them by highest level reached
// (desc), total elapsed time (asc), earliest achievement (asc) and finally user name.
// Elapsed times are measured from startTime; when the competition never started they are
// measured from one second before the earliest result.
func BuildStandings(startTime int64, results []domain.Result) ([]domain.UserStanding, int64) {
	effective := startTime
	if effective == 0 && len(results) > 0 {
		earliest := results[0].Ts
		for _, r := range results[1:] {
			if r.Ts < earliest {
				earliest = r.Ts
			}
		}
		effective = earliest - 1
	}

	byUser := make(map[string]*domain.UserStanding)
	for _, r := range results {
		row, ok := byUser[r.User]
		if !ok {
			row = &domain.UserStanding{
				User:       r.User,
				Levels:     make(map[int]domain.LevelStanding),
				EarliestTs: r.Ts,
			}
			byUser[r.User] = row
		}
		// results stamped before the start clamp to zero
		elapsed := (r.Ts - effective) * 1000
		if elapsed < 0 {
			elapsed = 0
		}
		row.Levels[r.Level] = domain.LevelStanding{ElapsedMs: elapsed, AchievedTs: r.Ts}
		row.TotalElapsedMs += elapsed
		if r.Level > row.MaxLevel {
			row.MaxLevel = r.Level
		}
		if r.Ts < row.EarliestTs {
			row.EarliestTs = r.Ts
		}
	}

	standings := make([]domain.UserStanding, 0, len(byUser))
	for _, row := range byUser {
		standings = append(standings, *row)
	}
	sort.Slice(standings, func(i, j int) bool {
		a, b := standings[i], standings[j]
		if a.MaxLevel != b.MaxLevel {
			return a.MaxLevel > b.MaxLevel
		}
		if a.TotalElapsedMs != b.TotalElapsedMs {
			return a.TotalElapsedMs < b.TotalElapsedMs
		}
		if a.EarliestTs != b.EarliestTs {
			return a.EarliestTs < b.EarliestTs
		}
		return a.User < b.User
	})
	for i := range standings {
		standings[i].Rank = i + 1
	}
	return standings, effective
}

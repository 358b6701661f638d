package app

import (
	"context"
	"strings"

	"competition-service/internal/domain"
)

// SaveResult records a personal best for (user, competition, level). The first result and
// every strictly faster one report improved=true; an improvement keeps the original ts.
func (s *Service) SaveResult(ctx context.Context, user, competitionID string, level int, ms int64) (bool, error) {
	if err := validateResultKey(user, competitionID, level); err != nil {
		return false, err
	}
	if ms < 0 {
		return false, domain.Invalid("ms", "must not be negative")
	}
	improved, err := s.store.SaveBest(ctx, domain.Result{
		User:          user,
		CompetitionID: competitionID,
		Level:         level,
		BestMs:        ms,
		Ts:            s.now().Unix(),
	})
	if err != nil {
		return false, err
	}
	if improved {
		s.changed(ctx, competitionID)
		s.events.Publish(ctx, domain.Event{
			Type:          domain.EventResultImproved,
			CompetitionID: competitionID,
			User:          user,
			Level:         level,
			Ms:            ms,
			Timestamp:     s.now().Unix(),
		})
	}
	return improved, nil
}

// RecordTimedResult is the client-timing entry point: it only accepts results while the
// competition is active. An empty competitionID resolves the active competition.
func (s *Service) RecordTimedResult(ctx context.Context, user, competitionID string, level int, ms int64) (bool, error) {
	competitionID, ok, err := s.resolve(ctx, competitionID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, domain.ErrNotActive
	}
	state, err := s.CompetitionState(ctx, competitionID)
	if err != nil {
		return false, err
	}
	if !state.IsActive {
		return false, domain.ErrNotActive
	}
	return s.SaveResult(ctx, user, competitionID, level, ms)
}

func validateResultKey(user, competitionID string, level int) error {
	if strings.TrimSpace(user) == "" {
		return domain.Invalid("user", "must not be empty")
	}
	if competitionID == "" {
		return domain.Invalid("competition_id", "must not be empty")
	}
	if level < 1 {
		return domain.Invalid("level", "must be at least 1")
	}
	return nil
}

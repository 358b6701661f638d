package app

import (
	"context"
	"errors"

	"competition-service/internal/domain"
)

// ActiveCompetitionID returns the competition flagged active. With none active it falls
// back to the most recently referenced state row (highest id on ties); ok is false when
// no state rows exist.
func (s *Service) ActiveCompetitionID(ctx context.Context) (string, bool, error) {
	states, err := s.store.ListStates(ctx)
	if err != nil {
		return "", false, err
	}
	id, ok := resolveActive(states)
	return id, ok, nil
}

func resolveActive(states []domain.CompetitionState) (string, bool) {
	var fallback *domain.CompetitionState
	for i := range states {
		st := &states[i]
		if st.IsActive {
			return st.CompetitionID, true
		}
		if fallback == nil ||
			st.ReferencedAt > fallback.ReferencedAt ||
			(st.ReferencedAt == fallback.ReferencedAt && st.CompetitionID > fallback.CompetitionID) {
			fallback = st
		}
	}
	if fallback == nil {
		return "", false
	}
	return fallback.CompetitionID, true
}

// CompetitionState returns the stored state or an inactive, never-started default.
func (s *Service) CompetitionState(ctx context.Context, competitionID string) (domain.CompetitionState, error) {
	state, found, err := s.store.GetState(ctx, competitionID)
	if err != nil {
		return domain.CompetitionState{}, err
	}
	if !found {
		return domain.CompetitionState{CompetitionID: competitionID}, nil
	}
	return state, nil
}

// ListStates returns every stored competition state.
func (s *Service) ListStates(ctx context.Context) ([]domain.CompetitionState, error) {
	return s.store.ListStates(ctx)
}

// SelectCompetition marks competitionID as chosen and deactivates every other competition.
// The chosen competition keeps its own flag and start time.
func (s *Service) SelectCompetition(ctx context.Context, competitionID string) (domain.CompetitionState, error) {
	if err := s.requireKnown(competitionID); err != nil {
		return domain.CompetitionState{}, err
	}
	now := s.now()
	state, err := s.store.UpdateState(ctx, competitionID, true, func(st *domain.CompetitionState) {
		st.ReferencedAt = now.UnixMilli()
	})
	if err != nil {
		return domain.CompetitionState{}, err
	}
	s.afterStateChange(ctx, domain.EventCompetitionSelected, competitionID)
	return state, nil
}

// StartCompetition activates competitionID exclusively. A positive startTime overrides
// the clock; zero keeps an existing start time and only stamps the current time when the
// competition was never started.
func (s *Service) StartCompetition(ctx context.Context, competitionID string, startTime int64) (domain.CompetitionState, error) {
	if startTime < 0 {
		return domain.CompetitionState{}, domain.Invalid("start_time", "must not be negative")
	}
	if err := s.requireKnown(competitionID); err != nil {
		return domain.CompetitionState{}, err
	}
	now := s.now()
	state, err := s.store.UpdateState(ctx, competitionID, true, func(st *domain.CompetitionState) {
		st.IsActive = true
		st.ReferencedAt = now.UnixMilli()
		switch {
		case startTime > 0:
			st.StartTime = startTime
		case st.StartTime == 0:
			st.StartTime = now.Unix()
		}
	})
	if err != nil {
		return domain.CompetitionState{}, err
	}
	s.afterStateChange(ctx, domain.EventCompetitionStarted, competitionID)
	return state, nil
}

// StopCompetition deactivates competitionID; its start time stays as the ranking anchor.
// A competition dropped from the catalog can still be stopped while it has a state row.
func (s *Service) StopCompetition(ctx context.Context, competitionID string) (domain.CompetitionState, error) {
	if err := s.requireKnown(competitionID); err != nil {
		if !errors.Is(err, domain.ErrCompetitionNotFound) {
			return domain.CompetitionState{}, err
		}
		_, found, serr := s.store.GetState(ctx, competitionID)
		if serr != nil {
			return domain.CompetitionState{}, serr
		}
		if !found {
			return domain.CompetitionState{}, err
		}
	}
	now := s.now()
	state, err := s.store.UpdateState(ctx, competitionID, false, func(st *domain.CompetitionState) {
		st.IsActive = false
		st.ReferencedAt = now.UnixMilli()
	})
	if err != nil {
		return domain.CompetitionState{}, err
	}
	s.afterStateChange(ctx, domain.EventCompetitionStopped, competitionID)
	return state, nil
}

func (s *Service) requireKnown(competitionID string) error {
	if competitionID == "" {
		return domain.Invalid("competition_id", "must not be empty")
	}
	if _, ok := s.catalog.Current().Competition(competitionID); !ok {
		return domain.ErrCompetitionNotFound
	}
	return nil
}

func (s *Service) afterStateChange(ctx context.Context, typ domain.EventType, competitionID string) {
	s.changed(ctx, competitionID)
	s.events.Publish(ctx, domain.Event{
		Type:          typ,
		CompetitionID: competitionID,
		Timestamp:     s.now().Unix(),
	})
}

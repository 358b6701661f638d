package app

import (
	"context"
	"sync"

	"competition-service/internal/domain"
)

// Hub fans leaderboard snapshots out to live subscribers, per competition.
// Snapshots carry a sequence number taken after the write they reflect; a snapshot
// older than the last delivered one is dropped.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]map[chan domain.Leaderboard]struct{}
	issued      map[string]uint64
	delivered   map[string]uint64
}

func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]map[chan domain.Leaderboard]struct{}),
		issued:      make(map[string]uint64),
		delivered:   make(map[string]uint64),
	}
}

// Subscribe registers a channel for every snapshot published from now on.
// The caller must invoke cancel to release it.
func (h *Hub) Subscribe(competitionID string) (<-chan domain.Leaderboard, func()) {
	ch := make(chan domain.Leaderboard, 8)

	h.mu.Lock()
	subs, ok := h.subscribers[competitionID]
	if !ok {
		subs = make(map[chan domain.Leaderboard]struct{})
		h.subscribers[competitionID] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		subs := h.subscribers[competitionID]
		if _, ok := subs[ch]; ok {
			delete(subs, ch)
			close(ch)
			if len(subs) == 0 {
				delete(h.subscribers, competitionID)
			}
		}
	}
	return ch, cancel
}

// HasSubscribers reports whether anyone listens to competitionID.
func (h *Hub) HasSubscribers(competitionID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[competitionID]) > 0
}

// Next issues the sequence number for a snapshot about to be built.
func (h *Hub) Next(competitionID string) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.issued[competitionID]++
	return h.issued[competitionID]
}

// Publish delivers lb built under seq without blocking; a full subscriber drops its
// oldest snapshot. It reports false when a newer snapshot was already delivered.
func (h *Hub) Publish(competitionID string, seq uint64, lb domain.Leaderboard) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if seq <= h.delivered[competitionID] {
		return false
	}
	h.delivered[competitionID] = seq
	for ch := range h.subscribers[competitionID] {
		select {
		case ch <- lb:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- lb
		}
	}
	return true
}

// Subscribe streams leaderboard updates of competitionID (the active one when empty).
// The first value is the current standings. The caller must invoke the returned cancel
// function to avoid leaks.
func (s *Service) Subscribe(ctx context.Context, competitionID string) (<-chan domain.Leaderboard, func(), error) {
	competitionID, ok, err := s.resolve(ctx, competitionID)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, domain.ErrCompetitionNotFound
	}
	if _, known := s.catalog.Current().Competition(competitionID); !known {
		return nil, nil, domain.ErrCompetitionNotFound
	}

	// register before building so no write between the two is missed
	ch, cancel := s.hub.Subscribe(competitionID)
	seq := s.hub.Next(competitionID)
	initial, err := s.Leaderboard(ctx, competitionID)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	s.hub.Publish(competitionID, seq, initial)
	return ch, cancel, nil
}

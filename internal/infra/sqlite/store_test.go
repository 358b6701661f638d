package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"competition-service/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "competition.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSaveBestKeepsMinimumAndOriginalTimestamp(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	improved, err := store.SaveBest(ctx, domain.Result{User: "alice", CompetitionID: "c1", Level: 1, BestMs: 500, Ts: 100})
	if err != nil || !improved {
		t.Fatalf("first save: improved=%v err=%v", improved, err)
	}
	improved, err = store.SaveBest(ctx, domain.Result{User: "alice", CompetitionID: "c1", Level: 1, BestMs: 900, Ts: 200})
	if err != nil || improved {
		t.Fatalf("slower save: improved=%v err=%v", improved, err)
	}
	improved, err = store.SaveBest(ctx, domain.Result{User: "alice", CompetitionID: "c1", Level: 1, BestMs: 300, Ts: 300})
	if err != nil || !improved {
		t.Fatalf("faster save: improved=%v err=%v", improved, err)
	}

	results, err := store.ListResults(ctx, "c1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(results) != 1 || results[0].BestMs != 300 || results[0].Ts != 100 {
		t.Fatalf("unexpected results %+v", results)
	}
}

func TestUpdateStateExclusive(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	activate := func(st *domain.CompetitionState) {
		st.IsActive = true
		st.StartTime = 42
	}

	if _, err := store.UpdateState(ctx, "a", true, activate); err != nil {
		t.Fatalf("activate a: %v", err)
	}
	st, err := store.UpdateState(ctx, "b", true, activate)
	if err != nil {
		t.Fatalf("activate b: %v", err)
	}
	if !st.IsActive || st.StartTime != 42 || st.CompetitionID != "b" {
		t.Fatalf("unexpected state %+v", st)
	}

	states, err := store.ListStates(ctx)
	if err != nil {
		t.Fatalf("list states: %v", err)
	}
	active := 0
	for _, s := range states {
		if s.IsActive {
			active++
			if s.CompetitionID != "b" {
				t.Fatalf("expected b active, got %+v", s)
			}
		}
	}
	if active != 1 {
		t.Fatalf("expected exactly one active, got %+v", states)
	}

	a, found, err := store.GetState(ctx, "a")
	if err != nil || !found || a.IsActive || a.StartTime != 42 {
		t.Fatalf("expected a stopped with start kept, got %+v found=%v err=%v", a, found, err)
	}
	if _, found, _ := store.GetState(ctx, "missing"); found {
		t.Fatalf("expected no row for unknown competition")
	}
}

func TestConcurrentActivationLeavesOneActive(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, id := range []string{"a", "b", "c", "d"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, _ = store.UpdateState(ctx, id, true, func(st *domain.CompetitionState) { st.IsActive = true })
		}(id)
	}
	wg.Wait()

	states, _ := store.ListStates(ctx)
	active := 0
	for _, s := range states {
		if s.IsActive {
			active++
		}
	}
	if active != 1 {
		t.Fatalf("expected one active competition, got %+v", states)
	}
}

func TestSubmissionsStatsAndProgress(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, r := range []domain.Result{
		{User: "alice", CompetitionID: "c1", Level: 2, Ts: 3},
		{User: "alice", CompetitionID: "c1", Level: 1, Ts: 2},
		{User: "bob", CompetitionID: "c1", Level: 1, Ts: 4},
		{User: "bob", CompetitionID: "c2", Level: 1, Ts: 4},
	} {
		if _, err := store.SaveBest(ctx, r); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	sub := domain.Submission{ID: "s1", User: "alice", CompetitionID: "c1", Level: 1, Timestamp: 2, IsCorrect: true}
	if err := store.AppendSubmission(ctx, sub); err != nil {
		t.Fatalf("append: %v", err)
	}
	err := store.AppendSubmission(ctx, sub)
	if !errors.Is(err, domain.ErrStorage) {
		t.Fatalf("expected storage error on duplicate id, got %v", err)
	}

	stats, err := store.Stats(ctx, "c1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Users != 2 || stats.CompletedLevels != 3 || stats.Submissions != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	levels, err := store.CompletedLevels(ctx, "c1", "alice")
	if err != nil {
		t.Fatalf("levels: %v", err)
	}
	if len(levels) != 2 || levels[0] != 1 || levels[1] != 2 {
		t.Fatalf("unexpected levels %v", levels)
	}
	levels, _ = store.CompletedLevels(ctx, "c1", "nobody")
	if len(levels) != 0 {
		t.Fatalf("expected no levels, got %v", levels)
	}
}

func TestSeedAndReset(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	records := []domain.CompetitionRecord{
		{ID: "c1", Name: "One", LevelCount: 2},
		{ID: "c2", Name: "Two", LevelCount: 3},
	}

	if err := store.SeedCompetitions(ctx, records, "c1"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	// seeding again must not add a second state row
	if err := store.SeedCompetitions(ctx, records, "c2"); err != nil {
		t.Fatalf("reseed: %v", err)
	}
	states, _ := store.ListStates(ctx)
	if len(states) != 1 || states[0].CompetitionID != "c1" {
		t.Fatalf("unexpected seeded states %+v", states)
	}

	_, _ = store.UpdateState(ctx, "c2", true, func(st *domain.CompetitionState) { st.IsActive = true })
	_, _ = store.SaveBest(ctx, domain.Result{User: "alice", CompetitionID: "c2", Level: 1, Ts: 5})
	_ = store.AppendSubmission(ctx, domain.Submission{ID: "s1", User: "alice", CompetitionID: "c2", Level: 1})

	if err := store.Reset(ctx, records, "c1"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	results, _ := store.ListResults(ctx, "c2")
	stats, _ := store.Stats(ctx, "c2")
	states, _ = store.ListStates(ctx)
	if len(results) != 0 || stats.Submissions != 0 {
		t.Fatalf("expected empty data after reset, results=%v stats=%+v", results, stats)
	}
	if len(states) != 1 || states[0].CompetitionID != "c1" || states[0].IsActive || states[0].StartTime != 0 {
		t.Fatalf("expected inactive default state, got %+v", states)
	}
}

func TestDataSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "competition.db")
	ctx := context.Background()

	store, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_, _ = store.SaveBest(ctx, domain.Result{User: "alice", CompetitionID: "c1", Level: 1, BestMs: 10, Ts: 1})
	_ = store.Close()

	store, err = Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()
	results, _ := store.ListResults(ctx, "c1")
	if len(results) != 1 || results[0].BestMs != 10 {
		t.Fatalf("expected persisted result, got %+v", results)
	}
}

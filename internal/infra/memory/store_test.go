package memory

import (
	"context"
	"testing"

	"competition-service/internal/domain"
)

func TestStoreSaveBestKeepsMinimumAndTimestamp(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	steps := []struct {
		ms       int64
		ts       int64
		improved bool
		best     int64
	}{
		{ms: 500, ts: 100, improved: true, best: 500},
		{ms: 700, ts: 110, improved: false, best: 500},
		{ms: 200, ts: 120, improved: true, best: 200},
		{ms: 200, ts: 130, improved: false, best: 200},
	}
	for i, step := range steps {
		improved, err := store.SaveBest(ctx, domain.Result{User: "alice", CompetitionID: "c1", Level: 1, BestMs: step.ms, Ts: step.ts})
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if improved != step.improved {
			t.Fatalf("step %d: expected improved=%v, got %v", i, step.improved, improved)
		}
		results, _ := store.ListResults(ctx, "c1")
		if len(results) != 1 || results[0].BestMs != step.best || results[0].Ts != 100 {
			t.Fatalf("step %d: unexpected results %+v", i, results)
		}
	}
}

func TestStoreExclusiveUpdate(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	activate := func(st *domain.CompetitionState) { st.IsActive = true }

	if _, err := store.UpdateState(ctx, "a", true, activate); err != nil {
		t.Fatalf("update a: %v", err)
	}
	if _, err := store.UpdateState(ctx, "b", true, activate); err != nil {
		t.Fatalf("update b: %v", err)
	}
	a, _, _ := store.GetState(ctx, "a")
	b, _, _ := store.GetState(ctx, "b")
	if a.IsActive || !b.IsActive {
		t.Fatalf("expected only b active, got a=%+v b=%+v", a, b)
	}
	if _, found, _ := store.GetState(ctx, "missing"); found {
		t.Fatalf("expected no state for unknown competition")
	}
}

func TestStoreResetSeedsDefaultState(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	records := []domain.CompetitionRecord{{ID: "c1", Name: "One", LevelCount: 2}}

	_, _ = store.SaveBest(ctx, domain.Result{User: "alice", CompetitionID: "c1", Level: 1, Ts: 1})
	_ = store.AppendSubmission(ctx, domain.Submission{ID: "s1", User: "alice", CompetitionID: "c1", Level: 1, IsCorrect: true})
	_, _ = store.UpdateState(ctx, "c9", false, func(st *domain.CompetitionState) { st.StartTime = 5 })

	if err := store.Reset(ctx, records, "c1"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	results, _ := store.ListResults(ctx, "c1")
	stats, _ := store.Stats(ctx, "c1")
	states, _ := store.ListStates(ctx)
	if len(results) != 0 || stats.Submissions != 0 {
		t.Fatalf("expected empty tables, results=%v stats=%+v", results, stats)
	}
	if len(states) != 1 || states[0].CompetitionID != "c1" || states[0].IsActive {
		t.Fatalf("expected inactive default state, got %+v", states)
	}
	if got := store.Competitions(); len(got) != 1 || got[0].ID != "c1" {
		t.Fatalf("expected seeded competitions, got %+v", got)
	}
}

func TestStoreStatsAndProgress(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	for _, r := range []domain.Result{
		{User: "alice", CompetitionID: "c1", Level: 2, Ts: 3},
		{User: "alice", CompetitionID: "c1", Level: 1, Ts: 2},
		{User: "bob", CompetitionID: "c1", Level: 1, Ts: 4},
		{User: "bob", CompetitionID: "c2", Level: 1, Ts: 4},
	} {
		_, _ = store.SaveBest(ctx, r)
	}
	_ = store.AppendSubmission(ctx, domain.Submission{ID: "s1", CompetitionID: "c1"})

	stats, _ := store.Stats(ctx, "c1")
	if stats.Users != 2 || stats.CompletedLevels != 3 || stats.Submissions != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	levels, _ := store.CompletedLevels(ctx, "c1", "alice")
	if len(levels) != 2 || levels[0] != 1 || levels[1] != 2 {
		t.Fatalf("unexpected levels %v", levels)
	}
}

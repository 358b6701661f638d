package postgres

import (
	"context"
	"errors"

	"competition-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// activationLockKey serializes state transitions across instances.
const activationLockKey int64 = 0x636f6d70

// Store persists competition data in Postgres. The schema is created by the
// shared bun migrations before the pool is handed over.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) GetState(ctx context.Context, competitionID string) (domain.CompetitionState, bool, error) {
	st := domain.CompetitionState{CompetitionID: competitionID}
	err := s.pool.QueryRow(ctx,
		`SELECT is_active, start_time, referenced_at FROM competition_states WHERE competition_id=$1`,
		competitionID,
	).Scan(&st.IsActive, &st.StartTime, &st.ReferencedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.CompetitionState{}, false, nil
	}
	if err != nil {
		return domain.CompetitionState{}, false, domain.Storage("get state", err)
	}
	return st, true, nil
}

func (s *Store) ListStates(ctx context.Context) ([]domain.CompetitionState, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT competition_id, is_active, start_time, referenced_at FROM competition_states ORDER BY competition_id`)
	if err != nil {
		return nil, domain.Storage("list states", err)
	}
	defer rows.Close()

	states := make([]domain.CompetitionState, 0)
	for rows.Next() {
		var st domain.CompetitionState
		if err := rows.Scan(&st.CompetitionID, &st.IsActive, &st.StartTime, &st.ReferencedAt); err != nil {
			return nil, domain.Storage("list states", err)
		}
		states = append(states, st)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Storage("list states", err)
	}
	return states, nil
}

func (s *Store) UpdateState(ctx context.Context, competitionID string, exclusive bool, fn func(*domain.CompetitionState)) (domain.CompetitionState, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.CompetitionState{}, domain.Storage("update state", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, activationLockKey); err != nil {
		return domain.CompetitionState{}, domain.Storage("update state", err)
	}

	st := domain.CompetitionState{CompetitionID: competitionID}
	err = tx.QueryRow(ctx,
		`SELECT is_active, start_time, referenced_at FROM competition_states WHERE competition_id=$1`,
		competitionID,
	).Scan(&st.IsActive, &st.StartTime, &st.ReferencedAt)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return domain.CompetitionState{}, domain.Storage("update state", err)
	}

	fn(&st)
	st.CompetitionID = competitionID

	if exclusive {
		if _, err := tx.Exec(ctx,
			`UPDATE competition_states SET is_active=FALSE WHERE competition_id<>$1 AND is_active`,
			competitionID,
		); err != nil {
			return domain.CompetitionState{}, domain.Storage("update state", err)
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO competition_states (competition_id, is_active, start_time, referenced_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (competition_id) DO UPDATE
		SET is_active=EXCLUDED.is_active, start_time=EXCLUDED.start_time, referenced_at=EXCLUDED.referenced_at`,
		st.CompetitionID, st.IsActive, st.StartTime, st.ReferencedAt,
	)
	if err != nil {
		return domain.CompetitionState{}, domain.Storage("update state", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.CompetitionState{}, domain.Storage("update state", err)
	}
	return st, nil
}

func (s *Store) SaveBest(ctx context.Context, result domain.Result) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO results (user_name, competition_id, level, best_ms, ts)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_name, competition_id, level) DO UPDATE
		SET best_ms=EXCLUDED.best_ms
		WHERE results.best_ms > EXCLUDED.best_ms`,
		result.User, result.CompetitionID, result.Level, result.BestMs, result.Ts,
	)
	if err != nil {
		return false, domain.Storage("save result", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) AppendSubmission(ctx context.Context, sub domain.Submission) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO submissions (id, user_name, competition_id, level, ms, submitted_at, is_correct)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sub.ID, sub.User, sub.CompetitionID, sub.Level, sub.Ms, sub.Timestamp, sub.IsCorrect,
	)
	return domain.Storage("append submission", err)
}

func (s *Store) ListResults(ctx context.Context, competitionID string) ([]domain.Result, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_name, level, best_ms, ts FROM results
		WHERE competition_id=$1 ORDER BY user_name, level`,
		competitionID,
	)
	if err != nil {
		return nil, domain.Storage("list results", err)
	}
	defer rows.Close()

	results := make([]domain.Result, 0)
	for rows.Next() {
		r := domain.Result{CompetitionID: competitionID}
		if err := rows.Scan(&r.User, &r.Level, &r.BestMs, &r.Ts); err != nil {
			return nil, domain.Storage("list results", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Storage("list results", err)
	}
	return results, nil
}

func (s *Store) CompletedLevels(ctx context.Context, competitionID, user string) ([]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT level FROM results WHERE competition_id=$1 AND user_name=$2 ORDER BY level`,
		competitionID, user,
	)
	if err != nil {
		return nil, domain.Storage("completed levels", err)
	}
	defer rows.Close()

	levels := make([]int, 0)
	for rows.Next() {
		var level int32
		if err := rows.Scan(&level); err != nil {
			return nil, domain.Storage("completed levels", err)
		}
		levels = append(levels, int(level))
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Storage("completed levels", err)
	}
	return levels, nil
}

func (s *Store) Stats(ctx context.Context, competitionID string) (domain.Stats, error) {
	var users, completed, submissions int64
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(DISTINCT user_name) FROM results WHERE competition_id=$1),
			(SELECT COUNT(*) FROM results WHERE competition_id=$1),
			(SELECT COUNT(*) FROM submissions WHERE competition_id=$1)`,
		competitionID,
	).Scan(&users, &completed, &submissions)
	if err != nil {
		return domain.Stats{}, domain.Storage("stats", err)
	}
	return domain.Stats{
		CompetitionID:   competitionID,
		Users:           int(users),
		CompletedLevels: int(completed),
		Submissions:     int(submissions),
	}, nil
}

func (s *Store) SeedCompetitions(ctx context.Context, records []domain.CompetitionRecord, defaultID string) error {
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		return seed(ctx, tx, records, defaultID)
	})
	return domain.Storage("seed competitions", err)
}

func (s *Store) Reset(ctx context.Context, records []domain.CompetitionRecord, defaultID string) error {
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, activationLockKey); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `TRUNCATE submissions, results, competition_states, competitions`); err != nil {
			return err
		}
		return seed(ctx, tx, records, defaultID)
	})
	return domain.Storage("reset", err)
}

func (s *Store) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func seed(ctx context.Context, tx pgx.Tx, records []domain.CompetitionRecord, defaultID string) error {
	if len(records) > 0 {
		batch := &pgx.Batch{}
		for _, rec := range records {
			batch.Queue(`
				INSERT INTO competitions (id, name, description, level_count)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (id) DO UPDATE
				SET name=EXCLUDED.name, description=EXCLUDED.description, level_count=EXCLUDED.level_count`,
				rec.ID, rec.Name, rec.Description, rec.LevelCount,
			)
		}
		br := tx.SendBatch(ctx, batch)
		for range records {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return err
			}
		}
		if err := br.Close(); err != nil {
			return err
		}
	}

	if defaultID == "" {
		return nil
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO competition_states (competition_id, is_active, start_time, referenced_at)
		SELECT $1, FALSE, 0, 0
		WHERE NOT EXISTS (SELECT 1 FROM competition_states)`,
		defaultID,
	)
	return err
}

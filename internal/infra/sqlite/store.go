package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"competition-service/internal/domain"
	"competition-service/internal/infra/migrations"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type competitionRow struct {
	bun.BaseModel `bun:"table:competitions"`

	ID          string `bun:"id,pk"`
	Name        string `bun:"name"`
	Description string `bun:"description"`
	LevelCount  int    `bun:"level_count"`
}

type stateRow struct {
	bun.BaseModel `bun:"table:competition_states"`

	CompetitionID string `bun:"competition_id,pk"`
	IsActive      bool   `bun:"is_active"`
	StartTime     int64  `bun:"start_time"`
	ReferencedAt  int64  `bun:"referenced_at"`
}

type resultRow struct {
	bun.BaseModel `bun:"table:results"`

	UserName      string `bun:"user_name,pk"`
	CompetitionID string `bun:"competition_id,pk"`
	Level         int    `bun:"level,pk"`
	BestMs        int64  `bun:"best_ms"`
	Ts            int64  `bun:"ts"`
}

type submissionRow struct {
	bun.BaseModel `bun:"table:submissions"`

	ID            string `bun:"id,pk"`
	UserName      string `bun:"user_name"`
	CompetitionID string `bun:"competition_id"`
	Level         int    `bun:"level"`
	Ms            int64  `bun:"ms"`
	SubmittedAt   int64  `bun:"submitted_at"`
	IsCorrect     bool   `bun:"is_correct"`
}

// Store persists competition data in a SQLite file through bun.
// A single connection serializes writers, which makes every transaction exclusive.
type Store struct {
	db *bun.DB
}

// OpenDB opens the database at path without touching the schema.
func OpenDB(path string) (*bun.DB, error) {
	sqldb, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000", path))
	if err != nil {
		return nil, domain.Storage("open", err)
	}
	sqldb.SetMaxOpenConns(1)
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

// Open opens (or creates) the database at path and applies pending migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if _, err := migrations.Apply(ctx, db); err != nil {
		_ = db.Close()
		return nil, domain.Storage("migrate", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) GetState(ctx context.Context, competitionID string) (domain.CompetitionState, bool, error) {
	row := new(stateRow)
	err := s.db.NewSelect().Model(row).Where("competition_id = ?", competitionID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CompetitionState{}, false, nil
	}
	if err != nil {
		return domain.CompetitionState{}, false, domain.Storage("get state", err)
	}
	return row.toDomain(), true, nil
}

func (s *Store) ListStates(ctx context.Context) ([]domain.CompetitionState, error) {
	var rows []stateRow
	if err := s.db.NewSelect().Model(&rows).Order("competition_id").Scan(ctx); err != nil {
		return nil, domain.Storage("list states", err)
	}
	states := make([]domain.CompetitionState, 0, len(rows))
	for _, row := range rows {
		states = append(states, row.toDomain())
	}
	return states, nil
}

func (s *Store) UpdateState(ctx context.Context, competitionID string, exclusive bool, fn func(*domain.CompetitionState)) (domain.CompetitionState, error) {
	var updated domain.CompetitionState
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := stateRow{CompetitionID: competitionID}
		err := tx.NewSelect().Model(&row).Where("competition_id = ?", competitionID).Scan(ctx)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		state := row.toDomain()
		fn(&state)
		state.CompetitionID = competitionID

		if exclusive {
			if _, err := tx.ExecContext(ctx,
				`UPDATE competition_states SET is_active = ? WHERE competition_id <> ? AND is_active = ?`,
				false, competitionID, true,
			); err != nil {
				return err
			}
		}

		next := fromDomainState(state)
		_, err = tx.NewInsert().Model(&next).
			On("CONFLICT (competition_id) DO UPDATE").
			Set("is_active = EXCLUDED.is_active").
			Set("start_time = EXCLUDED.start_time").
			Set("referenced_at = EXCLUDED.referenced_at").
			Exec(ctx)
		if err != nil {
			return err
		}
		updated = state
		return nil
	})
	if err != nil {
		return domain.CompetitionState{}, domain.Storage("update state", err)
	}
	return updated, nil
}

func (s *Store) SaveBest(ctx context.Context, result domain.Result) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO results (user_name, competition_id, level, best_ms, ts)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_name, competition_id, level) DO UPDATE
		SET best_ms = excluded.best_ms
		WHERE results.best_ms > excluded.best_ms`,
		result.User, result.CompetitionID, result.Level, result.BestMs, result.Ts,
	)
	if err != nil {
		return false, domain.Storage("save result", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, domain.Storage("save result", err)
	}
	return n > 0, nil
}

func (s *Store) AppendSubmission(ctx context.Context, submission domain.Submission) error {
	row := submissionRow{
		ID:            submission.ID,
		UserName:      submission.User,
		CompetitionID: submission.CompetitionID,
		Level:         submission.Level,
		Ms:            submission.Ms,
		SubmittedAt:   submission.Timestamp,
		IsCorrect:     submission.IsCorrect,
	}
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return domain.Storage("append submission", err)
	}
	return nil
}

func (s *Store) ListResults(ctx context.Context, competitionID string) ([]domain.Result, error) {
	var rows []resultRow
	err := s.db.NewSelect().Model(&rows).
		Where("competition_id = ?", competitionID).
		Order("user_name", "level").
		Scan(ctx)
	if err != nil {
		return nil, domain.Storage("list results", err)
	}
	results := make([]domain.Result, 0, len(rows))
	for _, row := range rows {
		results = append(results, domain.Result{
			User:          row.UserName,
			CompetitionID: row.CompetitionID,
			Level:         row.Level,
			BestMs:        row.BestMs,
			Ts:            row.Ts,
		})
	}
	return results, nil
}

func (s *Store) CompletedLevels(ctx context.Context, competitionID, user string) ([]int, error) {
	levels := make([]int, 0)
	err := s.db.NewSelect().Model((*resultRow)(nil)).
		Column("level").
		Where("competition_id = ?", competitionID).
		Where("user_name = ?", user).
		Order("level").
		Scan(ctx, &levels)
	if err != nil {
		return nil, domain.Storage("completed levels", err)
	}
	return levels, nil
}

func (s *Store) Stats(ctx context.Context, competitionID string) (domain.Stats, error) {
	stats := domain.Stats{CompetitionID: competitionID}
	err := s.db.NewSelect().Model((*resultRow)(nil)).
		ColumnExpr("COUNT(DISTINCT user_name)").
		Where("competition_id = ?", competitionID).
		Scan(ctx, &stats.Users)
	if err != nil {
		return domain.Stats{}, domain.Storage("stats", err)
	}
	stats.CompletedLevels, err = s.db.NewSelect().Model((*resultRow)(nil)).
		Where("competition_id = ?", competitionID).
		Count(ctx)
	if err != nil {
		return domain.Stats{}, domain.Storage("stats", err)
	}
	stats.Submissions, err = s.db.NewSelect().Model((*submissionRow)(nil)).
		Where("competition_id = ?", competitionID).
		Count(ctx)
	if err != nil {
		return domain.Stats{}, domain.Storage("stats", err)
	}
	return stats, nil
}

func (s *Store) SeedCompetitions(ctx context.Context, records []domain.CompetitionRecord, defaultID string) error {
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return seed(ctx, tx, records, defaultID)
	})
	return domain.Storage("seed competitions", err)
}

func (s *Store) Reset(ctx context.Context, records []domain.CompetitionRecord, defaultID string) error {
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, table := range []string{"submissions", "results", "competition_states", "competitions"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return err
			}
		}
		return seed(ctx, tx, records, defaultID)
	})
	return domain.Storage("reset", err)
}

func seed(ctx context.Context, tx bun.Tx, records []domain.CompetitionRecord, defaultID string) error {
	if len(records) > 0 {
		rows := make([]competitionRow, 0, len(records))
		for _, rec := range records {
			rows = append(rows, competitionRow{
				ID:          rec.ID,
				Name:        rec.Name,
				Description: rec.Description,
				LevelCount:  rec.LevelCount,
			})
		}
		_, err := tx.NewInsert().Model(&rows).
			On("CONFLICT (id) DO UPDATE").
			Set("name = EXCLUDED.name").
			Set("description = EXCLUDED.description").
			Set("level_count = EXCLUDED.level_count").
			Exec(ctx)
		if err != nil {
			return err
		}
	}

	if defaultID == "" {
		return nil
	}
	n, err := tx.NewSelect().Model((*stateRow)(nil)).Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	_, err = tx.NewInsert().Model(&stateRow{CompetitionID: defaultID}).Exec(ctx)
	return err
}

func (r stateRow) toDomain() domain.CompetitionState {
	return domain.CompetitionState{
		CompetitionID: r.CompetitionID,
		IsActive:      r.IsActive,
		StartTime:     r.StartTime,
		ReferencedAt:  r.ReferencedAt,
	}
}

func fromDomainState(st domain.CompetitionState) stateRow {
	return stateRow{
		CompetitionID: st.CompetitionID,
		IsActive:      st.IsActive,
		StartTime:     st.StartTime,
		ReferencedAt:  st.ReferencedAt,
	}
}

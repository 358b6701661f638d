package app

import (
	"context"
	"strings"

	"competition-service/internal/domain"
)

// MatchAnswer compares a submitted answer with the expected one. Numeric levels need an
// exact match of the trimmed answer ("7" never equals "7.0"); text levels, and any
// unrecognized input type, compare trimmed values case-insensitively.
func MatchAnswer(answer, expected string, inputType domain.InputType) bool {
	submitted := strings.TrimSpace(answer)
	if inputType == domain.InputNumber {
		return submitted == expected
	}
	return strings.EqualFold(submitted, strings.TrimSpace(expected))
}

// SubmitAnswer validates answer and, when correct, records a zero-ms result plus a
// submission audit row. Wrong answers write nothing. A level without a configured
// expected answer is always incorrect and reported as a validation error.
func (s *Service) SubmitAnswer(ctx context.Context, user, competitionID string, level int, answer, expected string, inputType domain.InputType) (bool, error) {
	if err := validateResultKey(user, competitionID, level); err != nil {
		return false, err
	}
	if strings.TrimSpace(expected) == "" {
		return false, domain.Invalid("expected_answer", "not configured for level")
	}
	if !MatchAnswer(answer, expected, inputType) {
		return false, nil
	}

	now := s.now().Unix()
	improved, err := s.store.SaveBest(ctx, domain.Result{
		User:          user,
		CompetitionID: competitionID,
		Level:         level,
		BestMs:        0,
		Ts:            now,
	})
	if err != nil {
		return false, err
	}
	err = s.store.AppendSubmission(ctx, domain.Submission{
		ID:            s.newID(),
		User:          user,
		CompetitionID: competitionID,
		Level:         level,
		Ms:            0,
		Timestamp:     now,
		IsCorrect:     true,
	})
	if err != nil {
		return false, err
	}

	if improved {
		s.changed(ctx, competitionID)
	}
	s.events.Publish(ctx, domain.Event{
		Type:          domain.EventAnswerAccepted,
		CompetitionID: competitionID,
		User:          user,
		Level:         level,
		Timestamp:     now,
	})
	return true, nil
}

// SubmitLevelAnswer resolves the expected answer from the catalog and submits answer.
// next is the following level number, or 0 when the competition is finished.
func (s *Service) SubmitLevelAnswer(ctx context.Context, user, competitionID string, level int, answer string) (correct bool, next int, err error) {
	if strings.TrimSpace(answer) == "" {
		return false, 0, domain.Invalid("answer", "required")
	}
	competitionID, ok, err := s.resolve(ctx, competitionID)
	if err != nil {
		return false, 0, err
	}
	if !ok {
		return false, 0, domain.ErrCompetitionNotFound
	}
	comp, ok := s.catalog.Current().Competition(competitionID)
	if !ok {
		return false, 0, domain.ErrCompetitionNotFound
	}
	def, ok := comp.Level(level)
	if !ok {
		return false, 0, domain.ErrLevelNotFound
	}

	correct, err = s.SubmitAnswer(ctx, user, competitionID, level, answer, def.ExpectedAnswer, def.InputType)
	if err != nil || !correct {
		return false, 0, err
	}
	return true, comp.NextLevel(level), nil
}

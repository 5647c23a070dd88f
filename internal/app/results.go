package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"quiz-runner/internal/domain"
)

// ResultsService assembles the results view for the current user.
type ResultsService struct {
	sessions SessionProvider
	backend  ResultsFetcher
	quizzes  QuizRepository
	log      zerolog.Logger
}

func NewResultsService(sessions SessionProvider, backend ResultsFetcher, quizzes QuizRepository, log zerolog.Logger) *ResultsService {
	return &ResultsService{sessions: sessions, backend: backend, quizzes: quizzes, log: log}
}

// Load finds the user's attempt for quizID and returns its results merged with
// the full question list.
func (s *ResultsService) Load(ctx context.Context, quizID int64) (domain.QuizResults, error) {
	session, err := s.sessions.Session(ctx)
	if err != nil {
		return domain.QuizResults{}, err
	}
	status, err := s.backend.CheckAttempt(ctx, quizID, session.UserID)
	if err != nil {
		return domain.QuizResults{}, fmt.Errorf("find attempt for quiz %d: %w", quizID, err)
	}
	if !status.HasAttempt || status.AttemptID == 0 {
		return domain.QuizResults{}, domain.ErrNoAttempt
	}

	results, err := s.backend.Results(ctx, status.AttemptID, session.UserID)
	if err != nil {
		return domain.QuizResults{}, fmt.Errorf("fetch results for attempt %d: %w", status.AttemptID, err)
	}

	questions, err := s.quizzes.GetQuestions(ctx, quizID)
	if err != nil {
		s.log.Warn().Err(err).Int64("quiz_id", quizID).Msg("question list unavailable, showing results unmerged")
		return results, nil
	}
	return MergeResults(results, questions), nil
}

// MergeResults lays results over the authoritative question list: every
// question appears exactly once in quiz order, and questions the backend
// left out are shown unanswered and incorrect. Totals are recounted over the
// merged list.
func MergeResults(results domain.QuizResults, questions []domain.Question) domain.QuizResults {
	byID := make(map[int64]domain.QuestionResult, len(results.Questions))
	for _, r := range results.Questions {
		if _, dup := byID[r.QuestionID]; !dup {
			byID[r.QuestionID] = r
		}
	}

	merged := make([]domain.QuestionResult, 0, len(questions))
	correct := 0
	for _, q := range questions {
		r, ok := byID[q.ID]
		if !ok {
			r = domain.QuestionResult{
				QuestionID:     q.ID,
				Statement:      q.Statement,
				Options:        q.Options(),
				CorrectOption:  q.CorrectOption,
				SelectedOption: nil,
				IsCorrect:      false,
			}
		}
		if r.IsCorrect {
			correct++
		}
		merged = append(merged, r)
	}

	out := results
	out.Questions = merged
	out.TotalQuestions = len(merged)
	out.CorrectAnswers = correct
	out.ScorePercentage = 0
	if len(merged) > 0 {
		out.ScorePercentage = (correct*100 + len(merged)/2) / len(merged)
	}
	return out
}

package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"quiz-runner/internal/domain"
)

// Submitter posts final answers and clears local state once the backend accepts them.
type Submitter struct {
	backend SubmissionSender
	store   StateStore
	log     zerolog.Logger
}

func NewSubmitter(backend SubmissionSender, store StateStore, log zerolog.Logger) *Submitter {
	return &Submitter{backend: backend, store: store, log: log}
}

// Submit sends sub. On failure nothing local is touched so the caller can retry.
func (s *Submitter) Submit(ctx context.Context, sub domain.Submission) (domain.SubmitResult, error) {
	if sub.Answers == nil {
		sub.Answers = domain.Answers{}
	}
	if sub.TimeRemaining < 0 {
		sub.TimeRemaining = 0
	}
	res, err := s.backend.Submit(ctx, sub)
	if err != nil {
		s.log.Error().Err(err).Int64("quiz_id", sub.QuizID).Msg("submit failed, keeping local state")
		return domain.SubmitResult{}, fmt.Errorf("submit quiz %d: %w", sub.QuizID, err)
	}
	if err := s.store.Delete(ctx, KeysFor(sub.QuizID).All()...); err != nil {
		// the attempt is recorded server-side; stale keys only affect a later reload
		s.log.Error().Err(err).Int64("quiz_id", sub.QuizID).Msg("clear local quiz state")
	}
	s.log.Info().Int64("quiz_id", sub.QuizID).Int("answered", sub.Answers.Answered()).Int("time_remaining", sub.TimeRemaining).Msg("quiz submitted")
	return res, nil
}

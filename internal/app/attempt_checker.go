package app

import (
	"context"

	"github.com/rs/zerolog"

	"quiz-runner/internal/domain"
)

// AttemptChecker decides whether a quiz may be started for a user.
type AttemptChecker struct {
	backend  AttemptLookup
	failOpen bool
	log      zerolog.Logger
}

// NewAttemptChecker builds a checker. With failOpen a failed lookup is logged
// and reported as "no attempt"; the backend still rejects duplicate starts.
func NewAttemptChecker(backend AttemptLookup, failOpen bool, log zerolog.Logger) *AttemptChecker {
	return &AttemptChecker{backend: backend, failOpen: failOpen, log: log}
}

func (c *AttemptChecker) Check(ctx context.Context, quizID, userID int64) (domain.AttemptStatus, error) {
	status, err := c.backend.CheckAttempt(ctx, quizID, userID)
	if err == nil {
		return status, nil
	}
	if !c.failOpen {
		return domain.AttemptStatus{}, err
	}
	c.log.Warn().Err(err).Int64("quiz_id", quizID).Int64("user_id", userID).Msg("attempt check failed, continuing as no attempt")
	return domain.AttemptStatus{}, nil
}

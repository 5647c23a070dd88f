package app

import (
	"context"
	"fmt"

	"quiz-runner/internal/domain"
)

// QuestionLoader fetches the ordered question set of a quiz.
type QuestionLoader struct {
	quizzes QuizRepository
}

func NewQuestionLoader(quizzes QuizRepository) *QuestionLoader {
	return &QuestionLoader{quizzes: quizzes}
}

// Load returns domain.ErrNoQuestions for an empty quiz, distinct from load failures.
func (l *QuestionLoader) Load(ctx context.Context, quizID int64) ([]domain.Question, error) {
	questions, err := l.quizzes.GetQuestions(ctx, quizID)
	if err != nil {
		return nil, fmt.Errorf("load questions for quiz %d: %w", quizID, err)
	}
	if len(questions) == 0 {
		return nil, domain.ErrNoQuestions
	}
	return questions, nil
}

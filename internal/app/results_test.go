package app_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"quiz-runner/internal/app"
	"quiz-runner/internal/domain"
)

func TestResultsIncludeUnansweredQuestions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.srv.OmitUnanswered = true

	m, err := f.flow(true).Open(ctx, testQuiz)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := m.SelectAnswer(ctx, 11, 2); err != nil {
		t.Fatalf("select: %v", err)
	}
	if _, err := m.Submit(ctx); err != nil {
		t.Fatalf("submit: %v", err)
	}

	svc := app.NewResultsService(f.sessions, f.client, f.quizzes, zerolog.Nop())
	res, err := svc.Load(ctx, testQuiz)
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if len(res.Questions) != 3 {
		t.Fatalf("expected 3 questions, got %d", len(res.Questions))
	}
	for i, want := range []int64{11, 12, 13} {
		if res.Questions[i].QuestionID != want {
			t.Fatalf("question %d: expected id %d, got %d", i, want, res.Questions[i].QuestionID)
		}
	}
	if !res.Questions[0].IsCorrect {
		t.Fatalf("expected q11 correct")
	}
	for _, q := range res.Questions[1:] {
		if q.SelectedOption != nil || q.IsCorrect {
			t.Fatalf("expected q%d unanswered and incorrect, got %+v", q.QuestionID, q)
		}
		if len(q.Options) != domain.OptionCount || q.Statement == "" {
			t.Fatalf("expected q%d filled from the question list, got %+v", q.QuestionID, q)
		}
	}
	if res.TotalQuestions != 3 || res.CorrectAnswers != 1 || res.ScorePercentage != 33 {
		t.Fatalf("unexpected totals %d/%d %d%%", res.CorrectAnswers, res.TotalQuestions, res.ScorePercentage)
	}
}

func TestResultsWithoutAttempt(t *testing.T) {
	f := newFixture(t)
	svc := app.NewResultsService(f.sessions, f.client, f.quizzes, zerolog.Nop())
	if _, err := svc.Load(context.Background(), testQuiz); !errors.Is(err, domain.ErrNoAttempt) {
		t.Fatalf("expected ErrNoAttempt, got %v", err)
	}
}

type brokenQuizzes struct{}

func (brokenQuizzes) GetQuiz(context.Context, int64) (domain.Quiz, error) {
	return domain.Quiz{}, errors.New("down")
}

func (brokenQuizzes) GetQuestions(context.Context, int64) ([]domain.Question, error) {
	return nil, errors.New("down")
}

func TestResultsUnmergedWhenQuestionsUnavailable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.srv.OmitUnanswered = true

	m, err := f.flow(true).Open(ctx, testQuiz)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = m.SelectAnswer(ctx, 12, 1)
	if _, err := m.Submit(ctx); err != nil {
		t.Fatalf("submit: %v", err)
	}

	svc := app.NewResultsService(f.sessions, f.client, brokenQuizzes{}, zerolog.Nop())
	res, err := svc.Load(ctx, testQuiz)
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if len(res.Questions) != 1 || res.Questions[0].QuestionID != 12 {
		t.Fatalf("expected the backend payload as-is, got %+v", res.Questions)
	}
}

func TestMergeResults(t *testing.T) {
	questions := sampleQuestions(testQuiz)
	results := domain.QuizResults{
		QuizID: testQuiz,
		Questions: []domain.QuestionResult{
			{QuestionID: 13, SelectedOption: intp(3), CorrectOption: 3, IsCorrect: true},
			{QuestionID: 13, SelectedOption: intp(1), CorrectOption: 3},
			{QuestionID: 99, SelectedOption: intp(1), CorrectOption: 1, IsCorrect: true},
		},
		TotalQuestions: 3,
		CorrectAnswers: 2,
	}

	merged := app.MergeResults(results, questions)
	if len(merged.Questions) != 3 {
		t.Fatalf("expected one row per question, got %d", len(merged.Questions))
	}
	if merged.Questions[2].QuestionID != 13 || !merged.Questions[2].IsCorrect {
		t.Fatalf("expected first q13 row kept, got %+v", merged.Questions[2])
	}
	if merged.Questions[0].QuestionID != 11 || merged.Questions[0].CorrectOption != 2 {
		t.Fatalf("expected q11 filled from question list, got %+v", merged.Questions[0])
	}
	if merged.CorrectAnswers != 1 || merged.TotalQuestions != 3 || merged.ScorePercentage != 33 {
		t.Fatalf("expected totals recounted, got %d/%d %d%%", merged.CorrectAnswers, merged.TotalQuestions, merged.ScorePercentage)
	}

	empty := app.MergeResults(domain.QuizResults{}, nil)
	if empty.TotalQuestions != 0 || empty.ScorePercentage != 0 || len(empty.Questions) != 0 {
		t.Fatalf("expected empty results, got %+v", empty)
	}
}

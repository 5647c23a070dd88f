package app_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"quiz-runner/internal/app"
	"quiz-runner/internal/auth"
	"quiz-runner/internal/backend"
	"quiz-runner/internal/backend/backendtest"
	"quiz-runner/internal/domain"
	"quiz-runner/internal/infra/memory"
)

const (
	testUser int64 = 7
	testQuiz int64 = 1
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

// newClock starts on a whole second so remaining-time arithmetic is exact.
func newClock() *clock {
	return &clock{t: time.Now().UTC().Truncate(time.Second)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	srv      *backendtest.Server
	client   *backend.Client
	sessions *auth.StaticProvider
	quizzes  *memory.QuizRepository
	store    *memory.StateStore
	clock    *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	srv := backendtest.NewServer()
	t.Cleanup(srv.Close)

	c := newClock()
	srv.SetNow(c.Now)
	srv.AddQuiz(domain.Quiz{ID: testQuiz, ChapterID: 1, Duration: 1}, sampleQuestions(testQuiz)...)

	sessions := auth.NewStaticProvider(domain.Session{UserID: testUser, Role: "user"})
	client := backend.New(srv.URL(), sessions)
	return &fixture{
		srv:      srv,
		client:   client,
		sessions: sessions,
		quizzes:  memory.NewQuizRepository(client, time.Minute),
		store:    memory.NewStateStore(),
		clock:    c,
	}
}

func sampleQuestions(quizID int64) []domain.Question {
	return []domain.Question{
		{ID: 11, QuizID: quizID, Statement: "2+2?", Option1: "3", Option2: "4", Option3: "5", Option4: "22", CorrectOption: 2},
		{ID: 12, QuizID: quizID, Statement: "Capital of France?", Option1: "Paris", Option2: "Rome", Option3: "Oslo", Option4: "Bern", CorrectOption: 1},
		{ID: 13, QuizID: quizID, Statement: "H2O is?", Option1: "Salt", Option2: "Air", Option3: "Water", Option4: "Gold", CorrectOption: 3},
	}
}

func (f *fixture) flow(failOpen bool) *app.Flow {
	return app.NewFlow(app.FlowConfig{
		Sessions: f.sessions,
		Backend:  f.client,
		Quizzes:  f.quizzes,
		Store:    f.store,
		FailOpen: failOpen,
		Now:      f.clock.Now,
		Log:      zerolog.Nop(),
	})
}

// machine builds an unstarted machine for testQuiz against the fixture backend.
func (f *fixture) machine(t *testing.T) *app.Machine {
	t.Helper()
	questions, err := f.quizzes.GetQuestions(context.Background(), testQuiz)
	if err != nil {
		t.Fatalf("load questions: %v", err)
	}
	return app.NewMachine(app.MachineConfig{
		QuizID:    testQuiz,
		UserID:    testUser,
		Questions: questions,
		Store:     f.store,
		Quizzes:   f.quizzes,
		Starter:   f.client,
		Submitter: app.NewSubmitter(f.client, f.store, zerolog.Nop()),
		Now:       f.clock.Now,
		Log:       zerolog.Nop(),
	})
}

func (f *fixture) stored(t *testing.T, key string) (string, bool) {
	t.Helper()
	v, ok, err := f.store.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("store get %s: %v", key, err)
	}
	return v, ok
}

func intp(v int) *int { return &v }

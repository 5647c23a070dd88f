package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/rs/zerolog"

	"quiz-runner/internal/app"
	"quiz-runner/internal/auth"
	"quiz-runner/internal/backend"
	"quiz-runner/internal/backend/backendtest"
	"quiz-runner/internal/config"
	"quiz-runner/internal/domain"
	"quiz-runner/internal/infra/memory"
)

func testRuntime(t *testing.T) (*runtime, *backendtest.Server) {
	t.Helper()
	api := backendtest.NewServer()
	t.Cleanup(api.Close)
	api.AddQuiz(domain.Quiz{ID: 4, ChapterID: 1, Duration: 10},
		domain.Question{ID: 41, QuizID: 4, Statement: "Largest planet?", Option1: "Mars", Option2: "Jupiter", Option3: "Venus", Option4: "Earth", CorrectOption: 2},
		domain.Question{ID: 42, QuizID: 4, Statement: "Smallest prime?", Option1: "0", Option2: "1", Option3: "2", Option4: "3", CorrectOption: 3},
	)

	cfg := config.Default()
	cfg.Backend.BaseURL = api.URL()
	sessions := auth.NewStaticProvider(domain.Session{UserID: 5, Role: "user"})
	client := backend.New(api.URL(), sessions)
	return &runtime{
		cfg:      cfg,
		log:      zerolog.Nop(),
		sessions: sessions,
		client:   client,
		quizzes:  memory.NewQuizRepository(client, time.Minute),
		store:    memory.NewStateStore(),
	}, api
}

func TestTakeQuizToResults(t *testing.T) {
	rt, api := testRuntime(t)
	var out bytes.Buffer

	if err := takeQuiz(context.Background(), rt, 4, strings.NewReader("2\nn\n1\ns\n"), &out); err != nil {
		t.Fatalf("take: %v", err)
	}
	if !strings.Contains(out.String(), "1/2 correct (50%)") {
		t.Fatalf("expected score line, got:\n%s", out.String())
	}
	subs := api.Submissions()
	if len(subs) != 1 {
		t.Fatalf("expected one submission, got %d", len(subs))
	}
	if got := subs[0].Answers[41]; got == nil || *got != 2 {
		t.Fatalf("expected q41=2, got %v", got)
	}

	out.Reset()
	if err := takeQuiz(context.Background(), rt, 4, strings.NewReader(""), &out); err != nil {
		t.Fatalf("retake: %v", err)
	}
	if !strings.Contains(out.String(), "already completed") {
		t.Fatalf("expected redirect to results, got:\n%s", out.String())
	}
}

func TestTakeQuizResumesAfterQuit(t *testing.T) {
	rt, api := testRuntime(t)
	var out bytes.Buffer

	if err := takeQuiz(context.Background(), rt, 4, strings.NewReader("3\nn\nq\n"), &out); err != nil {
		t.Fatalf("take: %v", err)
	}
	if len(api.Submissions()) != 0 {
		t.Fatalf("quit must not submit")
	}
	raw, ok, _ := rt.store.Get(context.Background(), app.KeysFor(4).Index)
	if !ok || raw != "1" {
		t.Fatalf("expected saved index 1, got %q", raw)
	}

	out.Reset()
	if err := takeQuiz(context.Background(), rt, 4, strings.NewReader("s\n"), &out); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if !strings.Contains(out.String(), "Question 2/2") {
		t.Fatalf("expected to resume on question 2, got:\n%s", out.String())
	}
	subs := api.Submissions()
	if len(subs) != 1 {
		t.Fatalf("expected one submission, got %d", len(subs))
	}
	if got := subs[0].Answers[41]; got == nil || *got != 3 {
		t.Fatalf("expected saved answer q41=3 submitted, got %v", got)
	}
	if api.Starts() != 1 {
		t.Fatalf("resume must not start a second attempt, got %d", api.Starts())
	}
}

func TestHandleCommandRejectsBadInput(t *testing.T) {
	rt, _ := testRuntime(t)
	ctx := context.Background()
	m, err := rt.flow().Open(ctx, 4)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	var out bytes.Buffer
	if _, err := handleCommand(ctx, m, "9", &out); err == nil {
		t.Fatalf("expected invalid option error")
	}
	if _, err := handleCommand(ctx, m, "g x", &out); err == nil {
		t.Fatalf("expected jump error")
	}
	if done, err := handleCommand(ctx, m, "what", &out); done || err != nil || !strings.Contains(out.String(), "answer 1-4") {
		t.Fatalf("expected help text, done=%v err=%v out=%q", done, err, out.String())
	}
}

func TestSessionProviderFromToken(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": 9,
		"role":    "user",
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	cfg := config.Default()
	cfg.Session.Token = token

	p, err := sessionProvider(cfg, filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("provider: %v", err)
	}
	session, err := p.Session(context.Background())
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if session.UserID != 9 || session.Role != "user" {
		t.Fatalf("unexpected session %+v", session)
	}
}

func TestSetupWithMemoryDriver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := "backend:\n  base_url: http://127.0.0.1:1/api\nsession:\n  user_id: 3\nstate:\n  driver: memory\nlog:\n  level: error\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	rt, err := setup(context.Background(), path)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	defer rt.Close()
	if _, ok := rt.store.(*memory.StateStore); !ok {
		t.Fatalf("expected memory store, got %T", rt.store)
	}
	if _, ok := rt.quizzes.(*memory.QuizRepository); !ok {
		t.Fatalf("expected in-process quiz cache, got %T", rt.quizzes)
	}
}

func TestSetupRedisDriverNeedsAddress(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := "session:\n  user_id: 3\nstate:\n  driver: redis\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := setup(context.Background(), path); err == nil {
		t.Fatalf("expected error without redis.addr")
	}
}

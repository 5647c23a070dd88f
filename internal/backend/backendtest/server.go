// Package backendtest runs an in-process fake of the platform REST API for tests.
package backendtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"time"

	"quiz-runner/internal/domain"
)

type attemptKey struct {
	userID int64
	quizID int64
}

type attempt struct {
	id        int64
	userID    int64
	quizID    int64
	startTime time.Time
	endTime   *time.Time
	timeSpent int
	answers   domain.Answers
}

// Server is a fake backend. Zero-valued failure knobs mean "behave normally".
type Server struct {
	ts *httptest.Server

	mu        sync.Mutex
	now       func() time.Time
	quizzes   map[int64]domain.Quiz
	questions map[int64][]domain.Question
	subjects  []domain.Subject
	attempts  map[attemptKey]*attempt
	byID      map[int64]*attempt
	nextID    int64

	starts      int
	submissions []domain.Submission

	// OmitUnanswered drops null answers from results payloads.
	OmitUnanswered bool
	// FailChecks makes the attempt-status endpoint answer 500.
	FailChecks bool
	// FailSubmits makes the next n submissions answer 500.
	FailSubmits int
	// HideQuizMetadata makes GET /quiz/{id} answer 500.
	HideQuizMetadata bool
	// StartDelay holds every start request, to widen race windows.
	StartDelay time.Duration
}

// NewServer starts the fake. Call Close when done.
func NewServer() *Server {
	s := &Server{
		now:       time.Now,
		quizzes:   make(map[int64]domain.Quiz),
		questions: make(map[int64][]domain.Question),
		attempts:  make(map[attemptKey]*attempt),
		byID:      make(map[int64]*attempt),
		nextID:    1,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/quizzes/attempt", s.handleCheck)
	mux.HandleFunc("GET /api/quiz/{id}", s.handleQuiz)
	mux.HandleFunc("GET /api/admin/quiz/{id}", s.handleQuestions)
	mux.HandleFunc("POST /api/quizzes/{id}/start", s.handleStart)
	mux.HandleFunc("POST /api/quizzes/{id}/submit", s.handleSubmit)
	mux.HandleFunc("POST /api/quiz_attempts/{id}/results", s.handleResults)
	mux.HandleFunc("POST /api/user/quiz_attempts", s.handleHistory)
	mux.HandleFunc("GET /api/subjects", s.handleSubjects)
	mux.HandleFunc("GET /api/subjects/{id}", s.handleSubject)
	mux.HandleFunc("GET /api/chapters/{id}", s.handleChapter)
	s.ts = httptest.NewServer(mux)
	return s
}

// URL is the API base URL, suitable for backend.New.
func (s *Server) URL() string { return s.ts.URL + "/api" }

func (s *Server) Close() { s.ts.Close() }

// AddQuiz seeds a quiz and its questions.
func (s *Server) AddQuiz(quiz domain.Quiz, questions ...domain.Question) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quizzes[quiz.ID] = quiz
	s.questions[quiz.ID] = questions
}

// AddSubject seeds the catalog.
func (s *Server) AddSubject(subject domain.Subject) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subjects = append(s.subjects, subject)
}

// SetNow replaces the server clock.
func (s *Server) SetNow(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Starts counts start requests that created a new attempt.
func (s *Server) Starts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts
}

// Submissions returns the accepted submissions in arrival order.
func (s *Server) Submissions() []domain.Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Submission(nil), s.submissions...)
}

// SetFailSubmits sets how many upcoming submissions fail.
func (s *Server) SetFailSubmits(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FailSubmits = n
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID int64 `json:"user_id"`
		QuizID int64 `json:"quiz_id"`
	}
	if !decode(w, r, &body) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailChecks {
		writeError(w, http.StatusInternalServerError, "attempt lookup failed")
		return
	}
	if body.UserID == 0 {
		writeError(w, http.StatusUnauthorized, "User ID is required")
		return
	}
	a, ok := s.attempts[attemptKey{body.UserID, body.QuizID}]
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"has_attempt": false, "message": "No attempt found"})
		return
	}
	status := domain.AttemptStatus{HasAttempt: true, AttemptID: a.id, Completed: a.endTime != nil}
	if a.endTime != nil {
		status.EndTime = a.endTime
	} else {
		start := a.startTime
		status.StartTime = &start
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleQuiz(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.HideQuizMetadata {
		writeError(w, http.StatusInternalServerError, "quiz service unavailable")
		return
	}
	quiz, ok := s.quizzes[id]
	if !ok {
		writeError(w, http.StatusNotFound, "Quiz not found")
		return
	}
	writeJSON(w, http.StatusOK, quiz)
}

func (s *Server) handleQuestions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.quizzes[id]; !ok {
		writeError(w, http.StatusNotFound, "Quiz not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"questions": s.questions[id]})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body struct {
		UserID int64 `json:"user_id"`
	}
	if !decode(w, r, &body) {
		return
	}
	if s.StartDelay > 0 {
		time.Sleep(s.StartDelay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if body.UserID == 0 {
		writeError(w, http.StatusBadRequest, "User ID is required")
		return
	}
	quiz, ok := s.quizzes[id]
	if !ok {
		writeError(w, http.StatusNotFound, "Quiz not found")
		return
	}
	now := s.now()
	if !quiz.StartTime.IsZero() && now.Before(quiz.StartTime) {
		writeError(w, http.StatusBadRequest, "Quiz has not started yet")
		return
	}
	if !quiz.EndTime.IsZero() && now.After(quiz.EndTime) {
		writeError(w, http.StatusBadRequest, "Quiz has ended")
		return
	}

	key := attemptKey{body.UserID, id}
	if existing, ok := s.attempts[key]; ok {
		if existing.endTime != nil {
			writeError(w, http.StatusBadRequest, "Quiz already attempted")
			return
		}
		writeJSON(w, http.StatusOK, domain.StartResult{AttemptID: existing.id, StartTime: existing.startTime})
		return
	}

	a := &attempt{id: s.nextID, userID: body.UserID, quizID: id, startTime: now}
	s.nextID++
	s.attempts[key] = a
	s.byID[a.id] = a
	s.starts++
	writeJSON(w, http.StatusCreated, domain.StartResult{AttemptID: a.id, StartTime: a.startTime})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var sub domain.Submission
	if !decode(w, r, &sub) {
		return
	}
	sub.QuizID = id

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailSubmits > 0 {
		s.FailSubmits--
		writeError(w, http.StatusInternalServerError, "submission store unavailable")
		return
	}
	a, ok := s.attempts[attemptKey{sub.UserID, id}]
	if !ok {
		writeError(w, http.StatusBadRequest, "No quiz attempt found")
		return
	}
	if a.endTime != nil {
		writeError(w, http.StatusBadRequest, "Quiz already submitted")
		return
	}
	end := s.now()
	a.endTime = &end
	a.timeSpent = s.quizzes[id].Duration*60 - sub.TimeRemaining
	a.answers = make(domain.Answers)
	for _, q := range s.questions[id] {
		a.answers[q.ID] = sub.Answers[q.ID]
	}
	s.submissions = append(s.submissions, sub)
	writeJSON(w, http.StatusOK, domain.SubmitResult{Message: "Quiz submitted successfully"})
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body struct {
		UserID int64 `json:"user_id"`
	}
	if !decode(w, r, &body) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		writeError(w, http.StatusNotFound, "Attempt not found")
		return
	}
	if a.userID != body.UserID {
		writeError(w, http.StatusForbidden, "Unauthorized to view these results")
		return
	}

	res := domain.QuizResults{QuizID: a.quizID, AttemptID: a.id, TimeSpent: a.timeSpent, EndTime: a.endTime}
	start := a.startTime
	res.StartTime = &start
	for _, q := range s.questions[a.quizID] {
		selected, answered := a.answers[q.ID]
		if s.OmitUnanswered && (!answered || selected == nil) {
			continue
		}
		correct := selected != nil && *selected == q.CorrectOption
		if correct {
			res.CorrectAnswers++
		}
		res.Questions = append(res.Questions, domain.QuestionResult{
			QuestionID:     q.ID,
			Statement:      q.Statement,
			Options:        q.Options(),
			CorrectOption:  q.CorrectOption,
			SelectedOption: selected,
			IsCorrect:      correct,
		})
	}
	res.TotalQuestions = len(res.Questions)
	if res.TotalQuestions > 0 {
		res.ScorePercentage = res.CorrectAnswers * 100 / res.TotalQuestions
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID int64 `json:"user_id"`
	}
	if !decode(w, r, &body) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := make([]domain.AttemptSummary, 0)
	for _, a := range s.attempts {
		if a.userID != body.UserID {
			continue
		}
		correct := 0
		questions := s.questions[a.quizID]
		for _, q := range questions {
			if sel := a.answers[q.ID]; sel != nil && *sel == q.CorrectOption {
				correct++
			}
		}
		start := a.startTime
		row := domain.AttemptSummary{
			AttemptID: a.id,
			QuizID:    a.quizID,
			QuizTitle: "Quiz " + strconv.FormatInt(a.quizID, 10),
			StartTime: &start,
			EndTime:   a.endTime,
			Score:     strconv.Itoa(correct) + "/" + strconv.Itoa(len(questions)),
			ChapterID: s.quizzes[a.quizID].ChapterID,
		}
		if a.endTime != nil {
			spent := a.timeSpent
			row.TimeSpent = &spent
		}
		if len(questions) > 0 {
			row.Percentage = correct * 100 / len(questions)
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].AttemptID > rows[j].AttemptID })
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleSubjects(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Subject, 0, len(s.subjects))
	out = append(out, s.subjects...)
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSubject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, subject := range s.subjects {
		if subject.ID == id {
			writeJSON(w, http.StatusOK, subject)
			return
		}
	}
	writeError(w, http.StatusNotFound, "Subject not found")
}

func (s *Server) handleChapter(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, subject := range s.subjects {
		for _, chapter := range subject.Chapters {
			if chapter.ID == id {
				writeJSON(w, http.StatusOK, chapter)
				return
			}
		}
	}
	writeError(w, http.StatusNotFound, "Chapter not found")
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

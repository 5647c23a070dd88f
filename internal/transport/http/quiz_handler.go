package http

import (
	"context"
	"encoding/json"
	"net/http"

	"quiz-runner/internal/app"
)

// questionView is a question as the taker sees it: no correct option.
type questionView struct {
	ID        int64    `json:"id"`
	Statement string   `json:"question_statement"`
	Options   []string `json:"options"`
}

type quizView struct {
	app.Snapshot
	Questions []questionView `json:"questions"`
}

func viewOf(m *app.Machine) quizView {
	questions := m.Questions()
	out := quizView{Snapshot: m.Snapshot(), Questions: make([]questionView, 0, len(questions))}
	for _, q := range questions {
		out.Questions = append(out.Questions, questionView{ID: q.ID, Statement: q.Statement, Options: q.Options()})
	}
	return out
}

type answerRequest struct {
	QuestionID int64 `json:"question_id" validate:"required,gt=0"`
	Option     *int  `json:"option" validate:"omitempty,min=1,max=4"`
}

type submitResponse struct {
	Message string       `json:"message"`
	State   app.Snapshot `json:"state"`
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	quizID, ok := quizIDParam(w, r)
	if !ok {
		return
	}
	m, err := s.open(r.Context(), quizID)
	if err != nil {
		s.writeDomainError(w, quizID, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(m))
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	m, ok := s.machine(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewOf(m))
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	m, ok := s.machine(w, r)
	if !ok {
		return
	}
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := applyAnswer(r.Context(), m, req); err != nil {
		s.writeDomainError(w, m.QuizID(), err)
		return
	}
	writeJSON(w, http.StatusOK, m.Snapshot())
}

func applyAnswer(ctx context.Context, m *app.Machine, req answerRequest) error {
	if req.Option == nil {
		return m.ClearAnswer(ctx, req.QuestionID)
	}
	return m.SelectAnswer(ctx, req.QuestionID, *req.Option)
}

func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	s.navigate(w, r, (*app.Machine).Next)
}

func (s *Server) handlePrev(w http.ResponseWriter, r *http.Request) {
	s.navigate(w, r, (*app.Machine).Prev)
}

func (s *Server) navigate(w http.ResponseWriter, r *http.Request, step func(*app.Machine, context.Context) (int, error)) {
	m, ok := s.machine(w, r)
	if !ok {
		return
	}
	if _, err := step(m, r.Context()); err != nil {
		s.writeDomainError(w, m.QuizID(), err)
		return
	}
	writeJSON(w, http.StatusOK, m.Snapshot())
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	m, ok := s.machine(w, r)
	if !ok {
		return
	}
	// the submission must finish even if the caller hangs up
	res, err := m.Submit(context.WithoutCancel(r.Context()))
	if err != nil {
		s.writeDomainError(w, m.QuizID(), err)
		return
	}
	writeJSON(w, http.StatusOK, submitResponse{Message: res.Message, State: m.Snapshot()})
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	quizID, ok := quizIDParam(w, r)
	if !ok {
		return
	}
	res, err := s.results.Load(r.Context(), quizID)
	if err != nil {
		s.writeDomainError(w, quizID, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

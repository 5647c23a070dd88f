package domain

import "time"

// OptionCount is the number of options every question carries.
const OptionCount = 4

// Quiz is the read-only quiz metadata served by the backend.
type Quiz struct {
	ID        int64     `json:"id"`
	ChapterID int64     `json:"chapter_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Duration  int       `json:"duration"` // minutes
	Remarks   string    `json:"remarks,omitempty"`
}

// Question models an MCQ question with four options and a 1-based correct index.
type Question struct {
	ID            int64  `json:"id"`
	QuizID        int64  `json:"quiz_id"`
	Statement     string `json:"question_statement"`
	Option1       string `json:"option1"`
	Option2       string `json:"option2"`
	Option3       string `json:"option3"`
	Option4       string `json:"option4"`
	CorrectOption int    `json:"correct_option"`
}

// Options returns the four option strings in display order.
func (q Question) Options() []string {
	return []string{q.Option1, q.Option2, q.Option3, q.Option4}
}

// ValidOption reports whether option is a selectable 1-based index.
func ValidOption(option int) bool {
	return option >= 1 && option <= OptionCount
}

// Answers maps question id to the selected option; nil means unanswered.
// JSON keys are decimal strings, which is what the backend reads.
type Answers map[int64]*int

// Clone returns a deep copy so callers cannot mutate machine state.
func (a Answers) Clone() Answers {
	out := make(Answers, len(a))
	for id, opt := range a {
		if opt == nil {
			out[id] = nil
			continue
		}
		v := *opt
		out[id] = &v
	}
	return out
}

// Answered counts the non-null entries.
func (a Answers) Answered() int {
	n := 0
	for _, opt := range a {
		if opt != nil {
			n++
		}
	}
	return n
}

// AttemptStatus is the backend's answer to "has this user attempted this quiz".
type AttemptStatus struct {
	HasAttempt bool       `json:"has_attempt"`
	AttemptID  int64      `json:"attempt_id,omitempty"`
	Completed  bool       `json:"completed,omitempty"`
	StartTime  *time.Time `json:"start_time,omitempty"`
	EndTime    *time.Time `json:"end_time,omitempty"`
}

// StartResult is returned when the backend records a new (or resumed) attempt.
type StartResult struct {
	AttemptID int64     `json:"attempt_id"`
	StartTime time.Time `json:"start_time"`
}

// Submission is the payload posted when an attempt ends.
type Submission struct {
	QuizID        int64   `json:"-"`
	Answers       Answers `json:"answers"`
	TimeRemaining int     `json:"time_remaining"`
	UserID        int64   `json:"user_id"`
}

// SubmitResult is the server's confirmation of a submission.
type SubmitResult struct {
	Message string `json:"message"`
}

// QuestionResult is one row of a results view.
type QuestionResult struct {
	QuestionID     int64    `json:"question_id"`
	Statement      string   `json:"statement"`
	Options        []string `json:"options"`
	CorrectOption  int      `json:"correct_option"`
	SelectedOption *int     `json:"selected_option"`
	IsCorrect      bool     `json:"is_correct"`
}

// QuizResults is the detailed outcome of one attempt.
type QuizResults struct {
	QuizID          int64            `json:"quiz_id"`
	AttemptID       int64            `json:"attempt_id"`
	StartTime       *time.Time       `json:"start_time"`
	EndTime         *time.Time       `json:"end_time"`
	TimeSpent       int              `json:"time_spent"`
	TotalQuestions  int              `json:"total_questions"`
	CorrectAnswers  int              `json:"correct_answers"`
	ScorePercentage int              `json:"score_percentage"`
	Questions       []QuestionResult `json:"questions"`
}

// AttemptSummary is a row of the user's attempt history.
type AttemptSummary struct {
	AttemptID  int64      `json:"attempt_id"`
	QuizID     int64      `json:"quiz_id"`
	QuizTitle  string     `json:"quiz_title"`
	StartTime  *time.Time `json:"start_time"`
	EndTime    *time.Time `json:"end_time"`
	TimeSpent  *int       `json:"time_spent"`
	Score      string     `json:"score"`
	Percentage int        `json:"percentage"`
	ChapterID  int64      `json:"chapter_id"`
	SubjectID  int64      `json:"subject_id"`
}

// Subject is a top-level catalog entry.
type Subject struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Chapters    []Chapter `json:"chapters,omitempty"`
}

// Chapter groups quizzes under a subject.
type Chapter struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	SubjectID   int64  `json:"subject_id"`
	Quizzes     []Quiz `json:"quizzes,omitempty"`
}

// Session is the authenticated caller, passed explicitly to every backend call.
type Session struct {
	UserID    int64
	Role      string
	Token     string
	ExpiresAt time.Time // zero means no expiry
}

// Expired reports whether the session is past its expiry at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

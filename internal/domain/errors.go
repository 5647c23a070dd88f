package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport marks network failures and non-2xx backend responses.
	ErrTransport = errors.New("backend request failed")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrNoQuestions is returned when a quiz loads fine but has no questions.
	ErrNoQuestions = errors.New("no questions found for this quiz")
	// ErrAlreadyAttempted means the user already has an attempt for the quiz.
	ErrAlreadyAttempted = errors.New("quiz already attempted")
	// ErrStartRejected means the backend refused to start an attempt.
	ErrStartRejected = errors.New("failed to start quiz")
	// ErrNoAttempt is returned by the results view when nothing was recorded.
	ErrNoAttempt = errors.New("no attempt found for this quiz")
	// ErrQuestionNotFound indicates an answer targets an unknown question.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrInvalidOption indicates an option outside 1..4.
	ErrInvalidOption = errors.New("option must be between 1 and 4")
	// ErrNotActive is returned for actions on a machine that is not running.
	ErrNotActive = errors.New("quiz is not active")
	// ErrSubmitInProgress suppresses a duplicate submit while one is in flight.
	ErrSubmitInProgress = errors.New("submission already in progress")
	// ErrAlreadySubmitted is returned once the attempt has been submitted.
	ErrAlreadySubmitted = errors.New("quiz already submitted")
	// ErrSessionExpired is returned when the session token is past expiry.
	ErrSessionExpired = errors.New("session expired")
)

// TransportError carries the details of a failed backend call.
type TransportError struct {
	Op         string
	StatusCode int // 0 for network failures
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return e.Op + ": " + ErrTransport.Error()
	}
}

// Is lets errors.Is match any TransportError against ErrTransport.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

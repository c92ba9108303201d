package questionnaire

import (
	"errors"
	"fmt"
)

var (
	// ErrNoQuestions is returned by Submit before questions were loaded.
	ErrNoQuestions = errors.New("questionnaire: questions not loaded")
	// ErrIncompleteSubmission matches any *IncompleteError.
	ErrIncompleteSubmission = errors.New("questionnaire: please answer all questions")
	// ErrSubmissionInFlight is returned while a previous Submit has not finished.
	ErrSubmissionInFlight = errors.New("questionnaire: submission already in progress")
	// ErrUnknownQuestion is returned when answering an id that is not in the loaded set.
	ErrUnknownQuestion = errors.New("questionnaire: unknown question")
)

// IncompleteError lists the unanswered question ids in display order.
type IncompleteError struct {
	Missing []int64
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("%s (%d unanswered)", ErrIncompleteSubmission.Error(), len(e.Missing))
}

func (e *IncompleteError) Is(target error) bool {
	return target == ErrIncompleteSubmission
}

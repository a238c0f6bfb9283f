package domain

import "errors"

var (
	// ErrExamNotFound indicates the exam content could not be loaded.
	ErrExamNotFound = errors.New("exam not found")
	// ErrExamNotAvailable is returned when the exam exists but is not published.
	ErrExamNotAvailable = errors.New("exam not available")
	// ErrDuplicateSubmission is returned when a final submission already exists for the user and exam.
	ErrDuplicateSubmission = errors.New("exam already submitted")
	// ErrAlreadySubmitted is returned when a draft is saved after the submission was finalized.
	ErrAlreadySubmitted = errors.New("submission already finalized")
	// ErrSubmissionNotFound is returned when no submission exists for the user and exam.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrRankingNotFound is returned when no ranking exists for the user and exam.
	ErrRankingNotFound = errors.New("ranking not found")
	// ErrInvalidAnswer indicates a malformed answer or status, rejected before any write.
	ErrInvalidAnswer = errors.New("invalid answer")
	// ErrUserNotFound is returned by user directories for unknown users.
	ErrUserNotFound = errors.New("user not found")
	// ErrUnavailable hides transient infrastructure failures; the whole call may be retried.
	ErrUnavailable = errors.New("grading temporarily unavailable")
)

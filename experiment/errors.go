package experiment

import "errors"

var (
	// ErrConfigLoad means the stimulus document could not be loaded or does not fit the variant.
	ErrConfigLoad = errors.New("config load failure")
	// ErrComprehensionMismatch is returned by the comprehension gate when an answer is wrong.
	ErrComprehensionMismatch = errors.New("comprehension answers incorrect")
	// ErrPersistence wraps a failed session submission.
	ErrPersistence = errors.New("persistence failure")
	// ErrOutOfRange signals that the active sequence is exhausted.
	ErrOutOfRange = errors.New("index out of range")

	ErrUnexpectedEvent   = errors.New("event not accepted in current phase")
	ErrIncompleteAnswers = errors.New("not all comprehension questions answered")
	ErrInvalidResponse   = errors.New("invalid response")
)

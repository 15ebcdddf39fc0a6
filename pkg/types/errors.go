package types

import "errors"

// Domain errors shared by the matching core and its transports
var (
	// Lookup errors
	ErrStudentNotFound      = errors.New("student profile not found")
	ErrTutorNotFound        = errors.New("tutor profile not found")
	ErrNotStudent           = errors.New("user is not a student")
	ErrNotTutor             = errors.New("user is not a tutor")
	ErrTutorNotInCandidates = errors.New("tutor is not among the student's candidates")

	// Validation errors
	ErrInvalidUserID    = errors.New("user id must be positive")
	ErrInvalidTopK      = errors.New("top_k must be positive")
	ErrInvalidWeights   = errors.New("weights must be non-negative")
	ErrInvalidSlot      = errors.New("availability slot must have day 0-6 and start before end")
	ErrInvalidHelpLevel = errors.New("help level must be between 1 and 10")
	ErrInvalidRole      = errors.New("role must be student or tutor")
	ErrInvalidField     = errors.New("field must be bio, help or locations")
)

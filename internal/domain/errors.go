package domain

import "errors"

var (
	// ErrParticipantNotFound is returned when a participant id does not exist.
	ErrParticipantNotFound = errors.New("participant not found")
	// ErrQuestionNotFound indicates a submitted question ID is invalid.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrAlreadyAnswered rejects a second submission for the same participant/question pair.
	ErrAlreadyAnswered = errors.New("question already answered")
	// ErrForbidden is returned when a non-admin invokes an admin-only operation.
	ErrForbidden = errors.New("admin privileges required")
	// ErrInvalidInput is returned when required fields are missing or malformed.
	ErrInvalidInput = errors.New("missing or invalid input")
	// ErrDuplicateParticipant is returned when the email or pseudo is already taken.
	ErrDuplicateParticipant = errors.New("email or pseudo already in use")
	// ErrInvalidCredentials is returned on a failed login.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

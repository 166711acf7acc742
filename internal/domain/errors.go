package domain

import "errors"

var (
	// ErrUnauthenticated is returned when no verifiable identity accompanies a request.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrUnauthorized is returned when the caller's role or ownership check fails.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrQuizNotFound indicates the quiz content could not be loaded from the catalog.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrSessionNotFound is returned when a live session id is unknown or inactive.
	ErrSessionNotFound = errors.New("live session not found")
	// ErrQuestionNotFound indicates a submitted question ID is not part of the quiz.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrSessionActive is returned when starting a session while one is already running.
	ErrSessionActive = errors.New("an active session already exists for this quiz")
	// ErrAlreadySubmitted is returned when a student finalizes a generation twice.
	// Callers should treat it as success and use the submission returned with it.
	ErrAlreadySubmitted = errors.New("submission already finalized for this generation")
)

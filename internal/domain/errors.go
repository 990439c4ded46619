package domain

import "errors"

var (
	// ErrInvalidRequest marks malformed or incomplete requests.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrGameNotActive is returned when the game phase does not accept answers.
	ErrGameNotActive = errors.New("game is not accepting answers")
	// ErrGameNotFound indicates the game content could not be loaded.
	ErrGameNotFound = errors.New("game not found")
	// ErrPlayerNotFound is returned when a player has not been registered.
	ErrPlayerNotFound = errors.New("player not found")
	// ErrPlayerExists is returned when registering a player twice.
	ErrPlayerExists = errors.New("player already registered")
	// ErrPlayerFinished is returned for submissions after completion.
	ErrPlayerFinished = errors.New("player already finished")
	// ErrQuestionNotFound indicates a submitted question ID is not an active question.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrAlreadyAnswered is returned for duplicate or replayed submissions.
	ErrAlreadyAnswered = errors.New("question already answered")
	// ErrUnknownBranch is returned when a branch id is not in the directory.
	ErrUnknownBranch = errors.New("unknown branch")
	// ErrConcurrentUpdate signals a lost optimistic-concurrency race on a player record.
	ErrConcurrentUpdate = errors.New("player record changed concurrently")
	// ErrNoCorrectAnswer indicates catalog misconfiguration.
	ErrNoCorrectAnswer = errors.New("question has no correct answer configured")
	// ErrUnknownScoringMode indicates catalog misconfiguration.
	ErrUnknownScoringMode = errors.New("unknown scoring mode")
	// ErrInvalidCatalog indicates a game definition that cannot be served.
	ErrInvalidCatalog = errors.New("invalid game definition")
	// ErrStatusTransition signals an attempt to move a player's status backwards.
	ErrStatusTransition = errors.New("illegal player status transition")
)

// Code is the discriminated error code returned to clients.
type Code string

const (
	CodeInvalidRequest   Code = "INVALID_REQUEST"
	CodeGameNotActive    Code = "GAME_NOT_ACTIVE"
	CodeGameNotFound     Code = "GAME_NOT_FOUND"
	CodePlayerNotFound   Code = "PLAYER_NOT_FOUND"
	CodePlayerExists     Code = "PLAYER_EXISTS"
	CodeQuestionNotFound Code = "QUESTION_NOT_FOUND"
	CodeAlreadyAnswered  Code = "ALREADY_ANSWERED"
	CodeUnknownBranch    Code = "UNKNOWN_BRANCH"
	CodeInternal         Code = "INTERNAL"
)

// CodeOf maps an error to its client-facing code. Anything unrecognised,
// including catalog misconfiguration, is CodeInternal.
func CodeOf(err error) Code {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidRequest):
		return CodeInvalidRequest
	case errors.Is(err, ErrGameNotActive):
		return CodeGameNotActive
	case errors.Is(err, ErrGameNotFound):
		return CodeGameNotFound
	case errors.Is(err, ErrPlayerNotFound):
		return CodePlayerNotFound
	case errors.Is(err, ErrPlayerExists):
		return CodePlayerExists
	case errors.Is(err, ErrQuestionNotFound):
		return CodeQuestionNotFound
	case errors.Is(err, ErrAlreadyAnswered), errors.Is(err, ErrPlayerFinished):
		return CodeAlreadyAnswered
	case errors.Is(err, ErrUnknownBranch):
		return CodeUnknownBranch
	}
	return CodeInternal
}

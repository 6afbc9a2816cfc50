package api

import (
	"context"

	"board-api/domain"
)

// Storage abstracts persistence for handlers.
type Storage interface {
	FetchBoardTasks(ctx context.Context, boardID string) ([]domain.Task, error)
	CreateTask(ctx context.Context, task domain.Task) (domain.Task, error)
	UpdateTask(ctx context.Context, boardID, taskID string, patch domain.TaskPatch) (domain.Task, error)
	DeleteTask(ctx context.Context, boardID, taskID string) error
	CreateBoard(ctx context.Context, board domain.Board) error
	CanAccessBoard(ctx context.Context, userID, boardID string) (bool, error)
}

// NotFoundError is matched when a referenced task or board does not exist.
type NotFoundError interface {
	error
	NotFound()
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Publisher pushes task mutation events to board-scoped stream connections.
// Publishing happens synchronously after the storage write commits and before
// the response is returned.
type Publisher interface {
	Publish(boardID string, v any)
}

// Deduper prevents replays of mutations carrying an idempotency key.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove deletes a previously added key, used when the write fails.
	Remove(ctx context.Context, userID, key string) error
}

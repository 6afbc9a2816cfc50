package api

import "board-api/domain"

const mutationMaxSize = 64 * 1024 // 64 KiB

const idempotencyKeyHeader = "Idempotency-Key"

// POST /api/boards request body
type createBoardRequest struct {
	Name string `json:"name"`
}

// POST /api/boards/:board/tasks request body
type createTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Column      string `json:"column"`
}

// GET /api/boards/:board/tasks response body
type tasksResponse struct {
	Tasks []domain.Task `json:"tasks"`
}

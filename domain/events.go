package domain

// Message types exchanged with board-scoped stream connections.
const (
	EventInit         = "init"
	EventTaskCreated  = "task_created"
	EventTaskUpdated  = "task_updated"
	EventTaskDeleted  = "task_deleted"
	EventTasksReorder = "tasks_reorder"

	// EventReorder is the only inbound message type.
	EventReorder = "reorder"
)

// InitMessage is sent once to a connection right after it is admitted to a
// board, carrying the full canonical task list.
type InitMessage struct {
	Type  string `json:"type"`
	Tasks []Task `json:"tasks"`
}

// TaskEvent carries a single task mutation to board subscribers. Task is set
// for create/update; ID is set for delete.
type TaskEvent struct {
	Type    string `json:"type"`
	BoardID string `json:"boardId"`
	Task    *Task  `json:"task,omitempty"`
	ID      string `json:"id,omitempty"`
}

// TaskPosition is one tuple of a reorder batch.
type TaskPosition struct {
	ID     string `json:"id"`
	Column string `json:"column"`
	Order  int    `json:"order"`
}

// ReorderRequest is a client's locally-computed new layout after a drag, sent
// in-band over its stream connection.
type ReorderRequest struct {
	Type    string         `json:"type"`
	BoardID string         `json:"boardId"`
	Tasks   []TaskPosition `json:"tasks"`
}

// ReorderBroadcast republishes the canonical stored order after a reorder
// batch was applied. Clients replace their optimistic view with it.
type ReorderBroadcast struct {
	Type    string `json:"type"`
	BoardID string `json:"boardId"`
	Tasks   []Task `json:"tasks"`
}

package domain

import "sort"

// Board columns. The set is fixed; clients may only place tasks into one of
// these buckets.
const (
	ColumnTodo       = "todo"
	ColumnInProgress = "inprogress"
	ColumnDone       = "done"
)

var columnRank = map[string]int{
	ColumnTodo:       0,
	ColumnInProgress: 1,
	ColumnDone:       2,
}

// ValidColumn reports whether c names one of the fixed board columns.
func ValidColumn(c string) bool {
	_, ok := columnRank[c]
	return ok
}

// Task represents a single board item.
type Task struct {
	ID          string `json:"id"`
	BoardID     string `json:"boardId"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Column      string `json:"column"`
	Order       int    `json:"order"`
}

// TaskPatch carries a partial task update; nil fields are left unchanged.
type TaskPatch struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Column      *string `json:"column"`
	Order       *int    `json:"order"`
}

// Board is the unit of access-control scoping for task sync.
type Board struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	OwnerID string `json:"ownerId"`
}

// SortTasks orders tasks canonically: column first, then order, then ID.
// Order values are only unique per (board, column); the ID tie-break keeps the
// sort total so repeated reads of racing writes cannot oscillate.
func SortTasks(tasks []Task) {
	sort.Slice(tasks, func(i, j int) bool {
		if columnRank[tasks[i].Column] != columnRank[tasks[j].Column] {
			return columnRank[tasks[i].Column] < columnRank[tasks[j].Column]
		}
		if tasks[i].Order != tasks[j].Order {
			return tasks[i].Order < tasks[j].Order
		}
		return tasks[i].ID < tasks[j].ID
	})
}

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"board-api/domain"
)

// NotFoundError marks lookups whose subject does not exist. It satisfies the
// NotFound marker interface matched by the API layer.
type NotFoundError struct{ subject string }

func (e NotFoundError) Error() string { return e.subject + " not found" }

// NotFound tags the error for cross-package matching.
func (e NotFoundError) NotFound() {}

var (
	// ErrTaskNotFound is returned when a referenced task does not exist on the
	// given board.
	ErrTaskNotFound = NotFoundError{subject: "task"}
	// ErrBoardNotFound is returned when a referenced board does not exist.
	ErrBoardNotFound = NotFoundError{subject: "board"}
)

// Storage provides access to underlying persistence mechanisms. Tasks are
// partitioned by board, memberships by board, boards by owner.
type Storage struct {
	taskTable   *aztables.Client
	boardTable  *aztables.Client
	memberTable *aztables.Client
}

// New creates a Storage instance from the given connection string.
func New(connStr, tasksTable, boardsTable, membersTable string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	return &Storage{
		taskTable:   svc.NewClient(tasksTable),
		boardTable:  svc.NewClient(boardsTable),
		memberTable: svc.NewClient(membersTable),
	}, nil
}

type taskEntity struct {
	aztables.Entity
	Title       string `json:"Title"`
	Description string `json:"Description"`
	Column      string `json:"Column"`
	Order       int    `json:"Order"`
}

func (e taskEntity) toTask() domain.Task {
	return domain.Task{
		ID:          e.RowKey,
		BoardID:     e.PartitionKey,
		Title:       e.Title,
		Description: e.Description,
		Column:      e.Column,
		Order:       e.Order,
	}
}

func entityFromTask(t domain.Task) taskEntity {
	return taskEntity{
		Entity:      aztables.Entity{PartitionKey: t.BoardID, RowKey: t.ID},
		Title:       t.Title,
		Description: t.Description,
		Column:      t.Column,
		Order:       t.Order,
	}
}

// nextOrder returns one past the highest order in the column, or 0 for an
// empty column.
func nextOrder(tasks []domain.Task, column string) int {
	order := 0
	for _, t := range tasks {
		if t.Column == column && t.Order >= order {
			order = t.Order + 1
		}
	}
	return order
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == 404
}

// FetchBoardTasks retrieves all tasks for the given board in canonical order.
func (s *Storage) FetchBoardTasks(ctx context.Context, boardID string) ([]domain.Task, error) {
	filter := "PartitionKey eq '" + boardID + "'"
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			var ent taskEntity
			if err := json.Unmarshal(e, &ent); err != nil {
				return nil, err
			}
			tasks = append(tasks, ent.toTask())
		}
	}
	domain.SortTasks(tasks)
	return tasks, nil
}

// CreateTask inserts the task, assigning Order as one past the current highest
// in the task's (board, column), or 0 for an empty column. The read-then-insert
// sequencing is best effort under concurrent creates; duplicate order values
// are tolerated and resolved by the canonical sort.
func (s *Storage) CreateTask(ctx context.Context, task domain.Task) (domain.Task, error) {
	existing, err := s.FetchBoardTasks(ctx, task.BoardID)
	if err != nil {
		return domain.Task{}, err
	}
	task.Order = nextOrder(existing, task.Column)

	payload, err := json.Marshal(entityFromTask(task))
	if err != nil {
		return domain.Task{}, err
	}
	if _, err := s.taskTable.AddEntity(ctx, payload, nil); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

// UpdateTask applies the patch to the task identified by (boardID, taskID) and
// returns the updated task.
func (s *Storage) UpdateTask(ctx context.Context, boardID, taskID string, patch domain.TaskPatch) (domain.Task, error) {
	ent, err := s.getTaskEntity(ctx, boardID, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if patch.Title != nil {
		ent.Title = *patch.Title
	}
	if patch.Description != nil {
		ent.Description = *patch.Description
	}
	if patch.Column != nil {
		ent.Column = *patch.Column
	}
	if patch.Order != nil {
		ent.Order = *patch.Order
	}
	if err := s.putTaskEntity(ctx, ent); err != nil {
		return domain.Task{}, err
	}
	return ent.toTask(), nil
}

// MoveTask sets the task's column and order. The board partition key scopes
// the lookup, so a task identifier from another board never matches.
func (s *Storage) MoveTask(ctx context.Context, boardID, taskID, column string, order int) error {
	ent, err := s.getTaskEntity(ctx, boardID, taskID)
	if err != nil {
		return err
	}
	ent.Column = column
	ent.Order = order
	return s.putTaskEntity(ctx, ent)
}

// DeleteTask removes the task from the board.
func (s *Storage) DeleteTask(ctx context.Context, boardID, taskID string) error {
	if _, err := s.taskTable.DeleteEntity(ctx, boardID, taskID, nil); err != nil {
		if isNotFound(err) {
			return ErrTaskNotFound
		}
		return err
	}
	return nil
}

func (s *Storage) getTaskEntity(ctx context.Context, boardID, taskID string) (taskEntity, error) {
	resp, err := s.taskTable.GetEntity(ctx, boardID, taskID, nil)
	if err != nil {
		if isNotFound(err) {
			return taskEntity{}, ErrTaskNotFound
		}
		return taskEntity{}, err
	}
	var ent taskEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return taskEntity{}, err
	}
	return ent, nil
}

func (s *Storage) putTaskEntity(ctx context.Context, ent taskEntity) error {
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = s.taskTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeReplace})
	if err != nil && isNotFound(err) {
		return ErrTaskNotFound
	}
	return err
}

type boardEntity struct {
	aztables.Entity
	Name string `json:"Name"`
}

type memberEntity struct {
	aztables.Entity
}

// CreateBoard inserts the board and a membership row for its owner.
func (s *Storage) CreateBoard(ctx context.Context, board domain.Board) error {
	payload, err := json.Marshal(boardEntity{
		Entity: aztables.Entity{PartitionKey: board.OwnerID, RowKey: board.ID},
		Name:   board.Name,
	})
	if err != nil {
		return err
	}
	if _, err := s.boardTable.AddEntity(ctx, payload, nil); err != nil {
		return err
	}
	return s.AddBoardMember(ctx, board.ID, board.OwnerID)
}

// AddBoardMember grants userID access to boardID.
func (s *Storage) AddBoardMember(ctx context.Context, boardID, userID string) error {
	payload, err := json.Marshal(memberEntity{
		Entity: aztables.Entity{PartitionKey: boardID, RowKey: userID},
	})
	if err != nil {
		return err
	}
	_, err = s.memberTable.UpsertEntity(ctx, payload, nil)
	return err
}

// CanAccessBoard reports whether userID holds a membership row for boardID.
// Callers must re-check on every mutating operation; membership can change
// while a connection is open.
func (s *Storage) CanAccessBoard(ctx context.Context, userID, boardID string) (bool, error) {
	_, err := s.memberTable.GetEntity(ctx, boardID, userID, nil)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

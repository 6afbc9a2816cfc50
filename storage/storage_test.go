package storage

import (
	"encoding/json"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"

	"board-api/domain"
)

func TestTaskEntityRoundTrip(t *testing.T) {
	task := domain.Task{
		ID:          "t1",
		BoardID:     "b1",
		Title:       "Write docs",
		Description: "outline first",
		Column:      domain.ColumnInProgress,
		Order:       3,
	}

	data, err := json.Marshal(entityFromTask(task))
	if err != nil {
		t.Fatalf("marshal entity: %v", err)
	}
	var ent taskEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		t.Fatalf("unmarshal entity: %v", err)
	}
	if ent.PartitionKey != "b1" || ent.RowKey != "t1" {
		t.Fatalf("unexpected keys: %s/%s", ent.PartitionKey, ent.RowKey)
	}
	if got := ent.toTask(); got != task {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestNextOrder(t *testing.T) {
	tasks := []domain.Task{
		{ID: "a", Column: domain.ColumnTodo, Order: 0},
		{ID: "b", Column: domain.ColumnTodo, Order: 4},
		{ID: "c", Column: domain.ColumnDone, Order: 9},
	}

	if got := nextOrder(tasks, domain.ColumnTodo); got != 5 {
		t.Fatalf("expected 5, got %d", got)
	}
	if got := nextOrder(tasks, domain.ColumnInProgress); got != 0 {
		t.Fatalf("expected 0 for empty column, got %d", got)
	}
	if got := nextOrder(nil, domain.ColumnTodo); got != 0 {
		t.Fatalf("expected 0 for empty board, got %d", got)
	}
}

func TestIsNotFound(t *testing.T) {
	if !isNotFound(&azcore.ResponseError{StatusCode: 404}) {
		t.Fatal("expected 404 response error to match")
	}
	if isNotFound(&azcore.ResponseError{StatusCode: 500}) {
		t.Fatal("expected 500 response error not to match")
	}
	if isNotFound(ErrTaskNotFound) {
		t.Fatal("expected sentinel not to match")
	}
}

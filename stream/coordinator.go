package stream

import (
	"context"

	log "github.com/sirupsen/logrus"

	"board-api/domain"
)

// AccessEvaluator re-checks board membership for a principal. Evaluated on
// every mutating operation; never cached across operations.
type AccessEvaluator interface {
	CanAccessBoard(ctx context.Context, userID, boardID string) (bool, error)
}

// TaskStore is the slice of persistence the coordinator needs.
type TaskStore interface {
	FetchBoardTasks(ctx context.Context, boardID string) ([]domain.Task, error)
	MoveTask(ctx context.Context, boardID, taskID, column string, order int) error
}

// Coordinator applies reorder batches and republishes the canonical stored
// order so concurrently-edited client views reconverge.
type Coordinator struct {
	store      TaskStore
	access     AccessEvaluator
	dispatcher *Dispatcher
	logger     *log.Logger
}

// NewCoordinator creates a coordinator over the given collaborators.
func NewCoordinator(store TaskStore, access AccessEvaluator, dispatcher *Dispatcher, logger *log.Logger) *Coordinator {
	return &Coordinator{store: store, access: access, dispatcher: dispatcher, logger: logger}
}

// HandleReorder authorizes and applies one reorder batch, then broadcasts the
// stored order to every connection on the board, the submitter included.
// Unauthorized batches are dropped without a reply; the sender learns nothing
// about the board it asked for.
func (co *Coordinator) HandleReorder(ctx context.Context, userID string, req domain.ReorderRequest) {
	ok, err := co.access.CanAccessBoard(ctx, userID, req.BoardID)
	if err != nil {
		co.logger.Errorf("stream: reorder access check for board %s: %v", req.BoardID, err)
		return
	}
	if !ok {
		co.logger.WithFields(log.Fields{
			"user":  userID,
			"board": req.BoardID,
		}).Debug("stream: dropping unauthorized reorder")
		return
	}

	// Tuples apply independently in submission order. A tuple naming an
	// unknown column or a task outside the claimed board is skipped, never
	// rolled back, and never aborts the rest of the batch.
	for _, pos := range req.Tasks {
		if !domain.ValidColumn(pos.Column) {
			co.logger.Debugf("stream: skipping move of %s to unknown column %q", pos.ID, pos.Column)
			continue
		}
		if err := co.store.MoveTask(ctx, req.BoardID, pos.ID, pos.Column, pos.Order); err != nil {
			co.logger.Debugf("stream: skipping move of %s on board %s: %v", pos.ID, req.BoardID, err)
		}
	}

	// Re-read after all of this batch's writes. Clients converge on whatever
	// the store now holds, not on the batch they submitted.
	tasks, err := co.store.FetchBoardTasks(ctx, req.BoardID)
	if err != nil {
		co.logger.Errorf("stream: reorder re-read for board %s: %v", req.BoardID, err)
		return
	}
	co.dispatcher.Publish(req.BoardID, domain.ReorderBroadcast{
		Type:    domain.EventTasksReorder,
		BoardID: req.BoardID,
		Tasks:   tasks,
	})
}

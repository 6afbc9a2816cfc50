package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"board-api/domain"
)

type backend interface {
	FetchBoardTasks(ctx context.Context, boardID string) ([]domain.Task, error)
	CreateTask(ctx context.Context, task domain.Task) (domain.Task, error)
	UpdateTask(ctx context.Context, boardID, taskID string, patch domain.TaskPatch) (domain.Task, error)
	MoveTask(ctx context.Context, boardID, taskID, column string, order int) error
	DeleteTask(ctx context.Context, boardID, taskID string) error
	CreateBoard(ctx context.Context, board domain.Board) error
	AddBoardMember(ctx context.Context, boardID, userID string) error
	CanAccessBoard(ctx context.Context, userID, boardID string) (bool, error)
}

// Cache wraps a Storage instance with a Redis-backed cache of per-board task
// lists. Every mutation evicts the board's entry, so a read issued after a
// mutation completes always reflects that mutation.
type Cache struct {
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching Storage wrapper using the provided Redis client
// and TTL. A nil client disables caching entirely.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) FetchBoardTasks(ctx context.Context, boardID string) ([]domain.Task, error) {
	if tasks, ok := c.loadFromCache(ctx, boardID); ok {
		return tasks, nil
	}

	tasks, err := c.base.FetchBoardTasks(ctx, boardID)
	if err != nil {
		return nil, err
	}

	c.store(ctx, boardID, tasks)
	return tasks, nil
}

func (c *Cache) CreateTask(ctx context.Context, task domain.Task) (domain.Task, error) {
	created, err := c.base.CreateTask(ctx, task)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx, task.BoardID)
	return created, nil
}

func (c *Cache) UpdateTask(ctx context.Context, boardID, taskID string, patch domain.TaskPatch) (domain.Task, error) {
	updated, err := c.base.UpdateTask(ctx, boardID, taskID, patch)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx, boardID)
	return updated, nil
}

func (c *Cache) MoveTask(ctx context.Context, boardID, taskID, column string, order int) error {
	if err := c.base.MoveTask(ctx, boardID, taskID, column, order); err != nil {
		return err
	}
	c.evict(ctx, boardID)
	return nil
}

func (c *Cache) DeleteTask(ctx context.Context, boardID, taskID string) error {
	if err := c.base.DeleteTask(ctx, boardID, taskID); err != nil {
		return err
	}
	c.evict(ctx, boardID)
	return nil
}

func (c *Cache) CreateBoard(ctx context.Context, board domain.Board) error {
	return c.base.CreateBoard(ctx, board)
}

func (c *Cache) AddBoardMember(ctx context.Context, boardID, userID string) error {
	return c.base.AddBoardMember(ctx, boardID, userID)
}

// CanAccessBoard is never cached: authorization is re-evaluated on the single
// operation it gates.
func (c *Cache) CanAccessBoard(ctx context.Context, userID, boardID string) (bool, error) {
	return c.base.CanAccessBoard(ctx, userID, boardID)
}

func (c *Cache) loadFromCache(ctx context.Context, boardID string) ([]domain.Task, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, tasksCacheKey(boardID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, tasksCacheKey(boardID)).Err()
		}
		return nil, false
	}
	var tasks []domain.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		_ = c.redis.Del(ctx, tasksCacheKey(boardID)).Err()
		return nil, false
	}
	return tasks, true
}

func (c *Cache) store(ctx context.Context, boardID string, tasks []domain.Task) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(tasks)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, tasksCacheKey(boardID), data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, boardID string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, tasksCacheKey(boardID)).Result()
}

func tasksCacheKey(boardID string) string {
	return "tasks:" + boardID
}

package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"board-api/domain"
)

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, store Storage, auth Authenticator, deduper Deduper, pub Publisher, logger *log.Logger) {
	e.GET("/api/boards/:board/tasks", getBoardTasks(store, auth, logger))
	e.POST("/api/boards", postBoard(store, auth))
	e.POST("/api/boards/:board/tasks", postTask(store, auth, deduper, pub, logger))
	e.PATCH("/api/boards/:board/tasks/:id", patchTask(store, auth, pub))
	e.DELETE("/api/boards/:board/tasks/:id", deleteTask(store, auth, pub))
	e.GET("/healthz", healthz(store))
}

func healthz(_ Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

// boardAccess authenticates the request and checks membership of the :board
// param. Membership is evaluated per request, never cached.
func boardAccess(c echo.Context, store Storage, auth Authenticator) (userID, boardID string, herr error) {
	userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
	if err != nil {
		return "", "", c.String(http.StatusUnauthorized, err.Error())
	}
	boardID = c.Param("board")
	ok, err := store.CanAccessBoard(c.Request().Context(), userID, boardID)
	if err != nil {
		c.Logger().Error(err)
		return "", "", c.String(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		// Non-members get the same answer as for an absent board.
		return "", "", c.String(http.StatusNotFound, "board not found")
	}
	return userID, boardID, nil
}

func getBoardTasks(store Storage, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics := newBoardRequestMetrics(logger)
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		userID, authErr := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.String(http.StatusUnauthorized, authErr.Error())
			return err
		}
		boardID := c.Param("board")

		ok, accessErr := store.CanAccessBoard(ctx, userID, boardID)
		if accessErr != nil {
			metrics.SetErrorStage("access")
			c.Logger().Error(accessErr)
			err = c.String(http.StatusInternalServerError, accessErr.Error())
			return err
		}
		if !ok {
			metrics.SetErrorStage("not_member")
			err = c.String(http.StatusNotFound, "board not found")
			return err
		}

		fetchStart := time.Now()
		tasks, fetchErr := store.FetchBoardTasks(ctx, boardID)
		metrics.ObserveFetch(time.Since(fetchStart))
		if fetchErr != nil {
			metrics.SetErrorStage("storage")
			c.Logger().Error(fetchErr)
			err = c.String(http.StatusInternalServerError, fetchErr.Error())
			return err
		}
		metrics.SetTasksReturned(len(tasks))

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, tasksResponse{Tasks: tasks})
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func postBoard(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		var req createBoardRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if req.Name == "" {
			return c.String(http.StatusBadRequest, "missing board name")
		}

		board := domain.Board{ID: uuid.NewString(), Name: req.Name, OwnerID: userID}
		if err := store.CreateBoard(c.Request().Context(), board); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusCreated, board)
	}
}

func postTask(store Storage, auth Authenticator, deduper Deduper, pub Publisher, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, boardID, herr := boardAccess(c, store, auth)
		if herr != nil {
			return herr
		}

		var req createTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if req.Title == "" {
			return c.String(http.StatusBadRequest, "missing title")
		}
		column := req.Column
		if column == "" {
			column = domain.ColumnTodo
		}
		if !domain.ValidColumn(column) {
			return c.String(http.StatusBadRequest, "invalid column")
		}

		key := c.Request().Header.Get(idempotencyKeyHeader)
		keyAdded := false
		if key != "" && deduper != nil {
			added, err := deduper.Add(ctx, userID, key)
			if err != nil {
				// Dedupe is advisory; keep serving when redis is down.
				logger.Warnf("idempotency add failed, proceeding: %v", err)
			} else if !added {
				return c.NoContent(http.StatusOK)
			} else {
				keyAdded = true
			}
		}

		task := domain.Task{
			ID:          uuid.NewString(),
			BoardID:     boardID,
			Title:       req.Title,
			Description: req.Description,
			Column:      column,
		}
		created, err := store.CreateTask(ctx, task)
		if err != nil {
			if keyAdded {
				if rerr := deduper.Remove(ctx, userID, key); rerr != nil {
					logger.Warnf("idempotency rollback failed: %v", rerr)
				}
			}
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}

		pub.Publish(boardID, domain.TaskEvent{Type: domain.EventTaskCreated, BoardID: boardID, Task: &created})
		return c.JSON(http.StatusCreated, created)
	}
}

func patchTask(store Storage, auth Authenticator, pub Publisher) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		_, boardID, herr := boardAccess(c, store, auth)
		if herr != nil {
			return herr
		}

		var patch domain.TaskPatch
		if err := decodeBody(c, &patch); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if patch.Column != nil && !domain.ValidColumn(*patch.Column) {
			return c.String(http.StatusBadRequest, "invalid column")
		}

		updated, err := store.UpdateTask(ctx, boardID, c.Param("id"), patch)
		if err != nil {
			var nf NotFoundError
			if errors.As(err, &nf) {
				return c.String(http.StatusNotFound, nf.Error())
			}
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}

		pub.Publish(boardID, domain.TaskEvent{Type: domain.EventTaskUpdated, BoardID: boardID, Task: &updated})
		return c.JSON(http.StatusOK, updated)
	}
}

func deleteTask(store Storage, auth Authenticator, pub Publisher) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		_, boardID, herr := boardAccess(c, store, auth)
		if herr != nil {
			return herr
		}

		taskID := c.Param("id")
		if err := store.DeleteTask(ctx, boardID, taskID); err != nil {
			var nf NotFoundError
			if errors.As(err, &nf) {
				return c.String(http.StatusNotFound, nf.Error())
			}
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}

		pub.Publish(boardID, domain.TaskEvent{Type: domain.EventTaskDeleted, BoardID: boardID, ID: taskID})
		return c.NoContent(http.StatusNoContent)
	}
}

func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, mutationMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

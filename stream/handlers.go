package stream

import (
	"context"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"board-api/domain"
)

// Storage abstracts persistence for the stream endpoint.
type Storage interface {
	FetchBoardTasks(ctx context.Context, boardID string) ([]domain.Task, error)
	MoveTask(ctx context.Context, boardID, taskID, column string, order int) error
	CanAccessBoard(ctx context.Context, userID, boardID string) (bool, error)
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Hub bundles the registry, dispatcher and coordinator behind the stream
// endpoint. One Hub is constructed at server start and handed by reference to
// everything that needs dispatch; there is no package-level state.
type Hub struct {
	registry    *Registry
	dispatcher  *Dispatcher
	coordinator *Coordinator
	store       Storage
	auth        Authenticator
	logger      *log.Logger
	upgrader    websocket.Upgrader
}

// NewHub wires a registry, dispatcher and coordinator over the given
// collaborators.
func NewHub(store Storage, auth Authenticator, logger *log.Logger) *Hub {
	registry := NewRegistry()
	dispatcher := NewDispatcher(registry, logger)
	return &Hub{
		registry:    registry,
		dispatcher:  dispatcher,
		coordinator: NewCoordinator(store, store, dispatcher, logger),
		store:       store,
		auth:        auth,
		logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Dispatcher exposes the hub's dispatcher for REST mutation publishing.
func (h *Hub) Dispatcher() *Dispatcher {
	return h.dispatcher
}

// Register wires the stream endpoint on the given Echo instance.
func (h *Hub) Register(e *echo.Echo) {
	e.GET("/api/stream", h.handleStream)
}

// handleStream performs the connection handshake. The credential and the
// optional board identifier arrive as connection-establishment parameters,
// never as in-band messages.
func (h *Hub) handleStream(c echo.Context) error {
	token := c.QueryParam("token")
	authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
	if authHeader == "" && token != "" {
		authHeader = "Bearer " + token
	}
	userID, err := h.auth.UserIDFromAuthHeader(authHeader)
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	boardID := c.QueryParam("board")

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	conn := newConn(ws, userID)
	go conn.writeLoop()

	ctx := c.Request().Context()
	if boardID != "" {
		ok, accessErr := h.store.CanAccessBoard(ctx, userID, boardID)
		if accessErr != nil {
			h.logger.Errorf("stream: handshake access check for board %s: %v", boardID, accessErr)
		}
		// A connection without access to the board it named stays open but is
		// never admitted; it silently receives nothing.
		if accessErr == nil && ok {
			h.registry.Admit(conn, boardID)
			h.sendInit(ctx, conn, boardID)
		}
	}

	h.readLoop(ctx, conn)
	return nil
}

func (h *Hub) sendInit(ctx context.Context, conn *Conn, boardID string) {
	tasks, err := h.store.FetchBoardTasks(ctx, boardID)
	if err != nil {
		h.logger.Errorf("stream: init fetch for board %s: %v", boardID, err)
		return
	}
	data, err := sonic.Marshal(domain.InitMessage{Type: domain.EventInit, Tasks: tasks})
	if err != nil {
		h.logger.Errorf("stream: marshal init for board %s: %v", boardID, err)
		return
	}
	conn.enqueue(data)
}

// readLoop owns the receive side of the connection. Every exit path funnels
// through the deferred removal, so a broadcast never targets a connection that
// already died.
func (h *Hub) readLoop(ctx context.Context, conn *Conn) {
	defer func() {
		h.registry.Remove(conn)
		conn.close()
	}()
	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debugf("stream: read on %s: %v", conn.id, err)
			}
			return
		}
		var req domain.ReorderRequest
		if err := sonic.Unmarshal(data, &req); err != nil || req.Type != domain.EventReorder {
			// Malformed or unknown frames are discarded; the connection
			// stays open.
			h.logger.WithFields(log.Fields{"conn": conn.id}).Warn("stream: discarding malformed message")
			continue
		}
		h.coordinator.HandleReorder(ctx, conn.userID, req)
	}
}

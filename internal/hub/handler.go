package hub

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/SensualOdin/ChickenTendies-sub000/internal/binding"
	"github.com/SensualOdin/ChickenTendies-sub000/internal/events"
	"github.com/SensualOdin/ChickenTendies-sub000/internal/session"
)

// actionTimeout bounds the handling of one inbound action.
const actionTimeout = 10 * time.Second

// Session is what the websocket endpoint needs from the application.
type Session interface {
	// Authorize checks that token binds memberID in groupID and that the
	// member is currently in the group.
	Authorize(ctx context.Context, groupID, memberID, token string) error
	// Snapshot builds the full state a (re)connecting client starts from.
	Snapshot(ctx context.Context, groupID, memberID string) (events.Sync, error)
	// HandleAction applies an action on behalf of memberID. The error text
	// is shown to the client.
	HandleAction(ctx context.Context, groupID, memberID string, action events.Action) error
}

// Handler serves GET /ws?groupId=..&memberId=..
type Handler struct {
	hub      *Hub
	session  Session
	upgrader websocket.Upgrader
}

// NewHandler creates the websocket endpoint. A nil checkOrigin accepts
// every origin.
func NewHandler(h *Hub, s Session, checkOrigin func(r *http.Request) bool) *Handler {
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	return &Handler{
		hub:     h,
		session: s,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	groupID := r.URL.Query().Get("groupId")
	memberID := r.URL.Query().Get("memberId")
	if groupID == "" || memberID == "" {
		http.Error(w, "groupId and memberId are required", http.StatusBadRequest)
		return
	}

	if err := h.session.Authorize(r.Context(), groupID, memberID, binding.FromRequest(r)); err != nil {
		status := http.StatusForbidden
		switch {
		case errors.Is(err, session.ErrGroupNotFound):
			status = http.StatusNotFound
		case errors.Is(err, binding.ErrMissingBinding):
			status = http.StatusUnauthorized
		}
		slog.Info("Websocket connection rejected", "group_id", groupID, "member_id", memberID, "error", err)
		http.Error(w, http.StatusText(status), status)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied.
		slog.Debug("Websocket upgrade failed", "error", err)
		return
	}

	c := newConn(ws, groupID, memberID)
	h.hub.Register(c)
	go c.writePump()

	ctx := r.Context()
	if !h.sync(ctx, c) {
		h.hub.Unregister(c)
		return
	}
	h.readPump(ctx, c)
}

// sync sends a fresh snapshot to c. Before the first snapshot it also
// releases the events held since registration.
func (h *Handler) sync(ctx context.Context, c *Conn) bool {
	snap, err := h.session.Snapshot(ctx, c.groupID, c.memberID)
	if err != nil {
		slog.Error("Failed to build snapshot", "group_id", c.groupID, "member_id", c.memberID, "error", err)
		h.reply(c, events.Error{Message: "could not load group state"})
		return false
	}
	h.reply(c, snap)
	return true
}

// reply sends e to c alone. The first reply is queued ahead of any events
// held since registration.
func (h *Handler) reply(c *Conn, e events.Event) {
	raw, err := events.Encode(e)
	if err != nil {
		slog.Error("Failed to encode event", "kind", e.Kind(), "error", err)
		return
	}
	c.mu.Lock()
	ready := c.ready
	c.mu.Unlock()

	if !ready {
		c.start(raw)
		return
	}
	if !c.enqueue(raw) {
		h.hub.metrics.BroadcastDropped()
		h.hub.Unregister(c)
	}
}

func (h *Handler) readPump(ctx context.Context, c *Conn) {
	defer func() {
		h.hub.Unregister(c)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("Websocket closed unexpectedly", "group_id", c.groupID, "member_id", c.memberID, "error", err)
			}
			return
		}

		action, err := events.DecodeAction(raw)
		if err != nil {
			h.reply(c, events.Error{Message: "unrecognized message"})
			continue
		}

		if _, ok := action.(events.Resync); ok {
			h.sync(ctx, c)
			continue
		}

		actx, cancel := context.WithTimeout(ctx, actionTimeout)
		err = h.session.HandleAction(actx, c.groupID, c.memberID, action)
		cancel()
		if err != nil {
			h.reply(c, events.Error{Message: err.Error()})
		}
	}
}

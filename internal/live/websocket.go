package live

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/claude/grouplift/internal/rotation"
)

const (
	wsReadDeadline  = 60 * time.Second
	wsWriteDeadline = 10 * time.Second
	wsPingInterval  = 30 * time.Second
)

// Origins are not checked, matching the permissive CORS policy of the API.
var upgrader = websocket.Upgrader{
	CheckOrigin:       func(*http.Request) bool { return true },
	EnableCompression: true,
}

// ServeSession upgrades the request to a websocket and streams frames for
// sessionID. The first frame is the current view from snapshot; the
// connection closes after an end frame or when the client goes away.
func (h *Hub) ServeSession(w http.ResponseWriter, r *http.Request, sessionID string, snapshot func() (rotation.View, bool)) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", "session_id", sessionID, "error", err)
		return
	}
	defer conn.Close()

	sub, err := h.Subscribe(sessionID)
	if err != nil {
		conn.WriteJSON(map[string]string{"error": err.Error()})
		return
	}

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			h.Unsubscribe(sessionID, sub)
		})
	}
	defer cleanup()

	// Subscribed before the snapshot so no update falls between the two.
	view, ok := snapshot()
	first := Frame{Type: FrameUpdate, Sequence: view.Version, Session: &view}
	if !ok {
		first = Frame{Type: FrameEnd}
	}
	sub.Seen(view.Version)
	sent := view.Version
	data, _ := json.Marshal(first)
	conn.SetWriteDeadline(time.Now().Add(wsWriteDeadline))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil || !ok {
		return
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadDeadline))
	})

	pingTicker := time.NewTicker(wsPingInterval)
	defer pingTicker.Stop()

	go func() {
		defer cleanup()
		for {
			if err := conn.SetReadDeadline(time.Now().Add(wsReadDeadline)); err != nil {
				return
			}
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case msg := <-sub.Send:
			// Queued before the snapshot was taken.
			if !msg.End && msg.Version > 0 && msg.Version <= sent {
				continue
			}
			sent = max(sent, msg.Version)
			conn.SetWriteDeadline(time.Now().Add(wsWriteDeadline))
			if err := conn.WriteMessage(websocket.TextMessage, msg.Data); err != nil {
				return
			}
			if msg.End {
				return
			}
		case <-sub.Done:
			return
		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteDeadline))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

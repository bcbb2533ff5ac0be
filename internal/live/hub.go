// Package live pushes session views to websocket clients.
package live

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/claude/grouplift/internal/observability"
	"github.com/claude/grouplift/internal/rotation"
)

// ErrTooManySubscribers is returned by Subscribe when the hub is full.
var ErrTooManySubscribers = errors.New("max connections reached")

const (
	FrameUpdate  = "update"
	FrameEnd     = "end"
	FrameDropped = "dropped"
)

// Frame is the JSON message sent to clients. Sequence is the version of
// the session view it carries.
type Frame struct {
	Type     string         `json:"type"`
	Sequence int64          `json:"sequence"`
	Session  *rotation.View `json:"session,omitempty"`
	Dropped  int64          `json:"dropped,omitempty"`
}

// Hub fans session updates out to subscribers, keyed by session id.
type Hub struct {
	mu          sync.Mutex
	sessions    map[string]map[*Subscriber]struct{}
	maxConns    int64
	activeConns atomic.Int64
	bufferSize  int
	log         *slog.Logger
}

// NewHub creates a Hub accepting at most maxConns subscribers in total.
func NewHub(maxConns int64, bufferSize int, log *slog.Logger) *Hub {
	if bufferSize <= 0 {
		bufferSize = 16
	}
	return &Hub{
		sessions:   make(map[string]map[*Subscriber]struct{}),
		maxConns:   maxConns,
		bufferSize: bufferSize,
		log:        log,
	}
}

// Subscribe registers a new subscriber for sessionID.
func (h *Hub) Subscribe(sessionID string) (*Subscriber, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.maxConns > 0 && h.activeConns.Load() >= h.maxConns {
		return nil, ErrTooManySubscribers
	}
	h.activeConns.Add(1)
	observability.SetLiveConnections(h.ActiveConnections())
	sub := NewSubscriber(h.bufferSize)
	subs, ok := h.sessions[sessionID]
	if !ok {
		subs = make(map[*Subscriber]struct{})
		h.sessions[sessionID] = subs
	}
	subs[sub] = struct{}{}
	return sub, nil
}

// Unsubscribe removes sub and closes it.
func (h *Hub) Unsubscribe(sessionID string, sub *Subscriber) {
	h.mu.Lock()
	if subs, ok := h.sessions[sessionID]; ok {
		if _, exists := subs[sub]; exists {
			delete(subs, sub)
			h.activeConns.Add(-1)
			observability.SetLiveConnections(h.ActiveConnections())
		}
		if len(subs) == 0 {
			delete(h.sessions, sessionID)
		}
	}
	h.mu.Unlock()
	sub.Close()
}

// publish offers msg to every subscriber of sessionID. A subscriber whose
// buffer is full loses an update and is sent a drop marker instead if there
// is room for it.
func (h *Hub) publish(sessionID string, msg Message) {
	h.mu.Lock()
	subs := make([]*Subscriber, 0, len(h.sessions[sessionID]))
	for sub := range h.sessions[sessionID] {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		sub.offer(msg, dropMarker)
	}
}

func dropMarker(drops int64) []byte {
	data, _ := json.Marshal(Frame{Type: FrameDropped, Dropped: drops})
	return data
}

// SessionUpdated publishes a view to the session's subscribers. Finished
// and abandoned sessions are sent as an end frame, which always reaches
// the subscriber queue. Views older than one a subscriber already has are
// skipped.
func (h *Hub) SessionUpdated(view rotation.View) {
	if h.SubscriberCount(view.ID) == 0 {
		return
	}

	frameType := FrameUpdate
	if view.State != rotation.StateActive {
		frameType = FrameEnd
	}
	data, err := json.Marshal(Frame{Type: frameType, Sequence: view.Version, Session: &view})
	if err != nil {
		h.log.Error("encoding live frame", "session_id", view.ID, "error", err)
		return
	}
	h.publish(view.ID, Message{Data: data, Version: view.Version, End: frameType == FrameEnd})
}

// SubscriberCount returns the number of subscribers of one session.
func (h *Hub) SubscriberCount(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions[sessionID])
}

// ActiveConnections returns the number of subscribers across all sessions.
func (h *Hub) ActiveConnections() int64 {
	return h.activeConns.Load()
}

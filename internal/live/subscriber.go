package live

import (
	"sync"
	"sync/atomic"
)

// Message is one queued frame. Version is the session view version the
// frame carries; End marks the last frame of a session.
type Message struct {
	Data    []byte
	Version int64
	End     bool
}

// Subscriber is one websocket client's outbound queue.
type Subscriber struct {
	Send      chan Message
	Done      chan struct{}
	closeOnce sync.Once
	drops     atomic.Int64

	// mu orders enqueues so versions in Send never go backwards.
	mu      sync.Mutex
	version int64
}

// NewSubscriber returns a subscriber buffering up to bufferSize frames.
func NewSubscriber(bufferSize int) *Subscriber {
	return &Subscriber{
		Send: make(chan Message, bufferSize),
		Done: make(chan struct{}),
	}
}

// Close marks the subscriber as gone. Safe to call more than once.
func (s *Subscriber) Close() {
	s.closeOnce.Do(func() {
		close(s.Done)
	})
}

func (s *Subscriber) IsClosed() bool {
	select {
	case <-s.Done:
		return true
	default:
		return false
	}
}

// Drops returns how many frames were discarded because Send was full.
func (s *Subscriber) Drops() int64 {
	return s.drops.Load()
}

// Seen records that the client already has version v, so later frames
// carrying an older or equal version are skipped.
func (s *Subscriber) Seen(v int64) {
	s.mu.Lock()
	s.version = max(s.version, v)
	s.mu.Unlock()
}

// offer queues msg without blocking. Stale updates are skipped. When the
// queue is full an update is dropped in favour of a drop marker, while an
// end frame evicts queued frames until it fits. A subscriber that still
// cannot take the end frame is closed.
func (s *Subscriber) offer(msg Message, marker func(drops int64) []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.IsClosed() {
		return
	}
	if !msg.End && msg.Version > 0 && msg.Version <= s.version {
		return
	}
	s.version = max(s.version, msg.Version)

	select {
	case s.Send <- msg:
		return
	default:
	}

	if !msg.End {
		n := s.drops.Add(1)
		select {
		case s.Send <- Message{Data: marker(n)}:
		default:
		}
		return
	}

	for range cap(s.Send) {
		select {
		case <-s.Send:
			s.drops.Add(1)
		default:
		}
		select {
		case s.Send <- msg:
			return
		default:
		}
	}
	s.Close()
}

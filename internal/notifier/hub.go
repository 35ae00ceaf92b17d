// Package notifier fans document processing events out to WebSocket clients.
package notifier

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/regcheck/backend/internal/logger"
)

const (
	DefaultMaxConnections = 100
	sendBuffer            = 32
)

var (
	ErrTooManyConnections = errors.New("too many websocket connections")
	ErrHubClosed          = errors.New("notifier is shut down")
)

// Publisher is what the processing pipeline needs from the hub
type Publisher interface {
	BeginRun(documentID uint)
	PublishStatus(documentID uint, status, stage string, progress int, message string)
	PublishError(documentID uint, msg string)
}

// Subscription receives the events of one document until it is closed.
// C is closed when the subscription ends, including when the hub drops a
// subscriber that cannot keep up.
type Subscription struct {
	ID         string
	DocumentID uint
	C          <-chan Event

	send chan Event
	once sync.Once
}

func (s *Subscription) close() {
	s.once.Do(func() { close(s.send) })
}

type Hub struct {
	mu             sync.RWMutex
	subscribers    map[uint]map[string]*Subscription
	total          int
	maxConnections int
	progress       map[uint]int
	closed         bool
}

func NewHub(maxConnections int) *Hub {
	if maxConnections <= 0 {
		maxConnections = DefaultMaxConnections
	}
	return &Hub{
		subscribers:    make(map[uint]map[string]*Subscription),
		maxConnections: maxConnections,
		progress:       make(map[uint]int),
	}
}

func (h *Hub) Subscribe(documentID uint) (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}
	if h.total >= h.maxConnections {
		return nil, ErrTooManyConnections
	}

	ch := make(chan Event, sendBuffer)
	sub := &Subscription{ID: uuid.NewString(), DocumentID: documentID, C: ch, send: ch}
	if h.subscribers[documentID] == nil {
		h.subscribers[documentID] = make(map[string]*Subscription)
	}
	h.subscribers[documentID][sub.ID] = sub
	h.total++
	return sub, nil
}

func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sub)
}

func (h *Hub) removeLocked(sub *Subscription) {
	subs := h.subscribers[sub.DocumentID]
	if _, ok := subs[sub.ID]; !ok {
		return
	}
	delete(subs, sub.ID)
	if len(subs) == 0 {
		delete(h.subscribers, sub.DocumentID)
	}
	h.total--
	sub.close()
}

// BeginRun forgets the progress high-water mark of a document so a new
// processing run may start again from zero
func (h *Hub) BeginRun(documentID uint) {
	h.mu.Lock()
	delete(h.progress, documentID)
	h.mu.Unlock()
}

// PublishStatus sends a status event. Progress never goes below the highest
// value already published for the current run.
func (h *Hub) PublishStatus(documentID uint, status, stage string, progress int, message string) {
	h.mu.Lock()
	if last, ok := h.progress[documentID]; ok && progress < last {
		progress = last
	}
	h.progress[documentID] = progress
	if status == "completed" || status == "error" {
		delete(h.progress, documentID)
	}
	h.mu.Unlock()

	h.broadcast(documentID, StatusEvent(documentID, status, stage, progress, message))
}

func (h *Hub) PublishError(documentID uint, msg string) {
	h.broadcast(documentID, ErrorEvent(documentID, msg))
}

// LastProgress returns the high-water mark of the running pipeline, if any
func (h *Hub) LastProgress(documentID uint) (int, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	p, ok := h.progress[documentID]
	return p, ok
}

func (h *Hub) broadcast(documentID uint, ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.subscribers[documentID] {
		select {
		case sub.send <- ev:
		default:
			logger.WithContext(map[string]interface{}{
				"component":       "notifier",
				"document_id":     documentID,
				"subscription_id": sub.ID,
			}).Warn("Dropping slow websocket subscriber")
			h.removeLocked(sub)
		}
	}
}

func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.total
}

// Close ends every subscription; later Subscribe calls fail
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for _, subs := range h.subscribers {
		for _, sub := range subs {
			h.removeLocked(sub)
		}
	}
}

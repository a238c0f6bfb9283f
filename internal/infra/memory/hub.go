package memory

import (
	"context"
	"sync"

	"exam-grading-service/internal/domain"
)

// Hub fans cache invalidations out to in-process subscribers (websocket connections) keyed by
// exam. It implements app.CacheInvalidator.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]map[chan domain.CacheScope]struct{}
}

func NewHub() *Hub {
	return &Hub{subscribers: make(map[string]map[chan domain.CacheScope]struct{})}
}

// Subscribe registers interest in examID. The channel keeps only the latest pending
// notification; cancel closes it.
func (h *Hub) Subscribe(examID string) (<-chan domain.CacheScope, func()) {
	ch := make(chan domain.CacheScope, 1)

	h.mu.Lock()
	subs, ok := h.subscribers[examID]
	if !ok {
		subs = make(map[chan domain.CacheScope]struct{})
		h.subscribers[examID] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		subs, ok := h.subscribers[examID]
		if !ok {
			return
		}
		if _, ok := subs[ch]; ok {
			delete(subs, ch)
			close(ch)
		}
		if len(subs) == 0 {
			delete(h.subscribers, examID)
		}
	}
	return ch, cancel
}

// Invalidate notifies the subscribers of an exam scope. Global and subject scopes carry no
// change to a single exam's leaderboard and reach nobody.
func (h *Hub) Invalidate(_ context.Context, scope domain.CacheScope) error {
	if scope.Kind != domain.ScopeExam {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.notifyLocked(h.subscribers[scope.Key], scope)
	return nil
}

// Subscribers reports how many channels are listening on examID.
func (h *Hub) Subscribers(examID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[examID])
}

func (h *Hub) notifyLocked(subs map[chan domain.CacheScope]struct{}, scope domain.CacheScope) {
	for ch := range subs {
		select {
		case ch <- scope:
		default:
			// drop the stale notification so a slow reader never blocks the publisher
			select {
			case <-ch:
			default:
			}
			ch <- scope
		}
	}
}

package session

import (
	"container/list"
	"sync"

	"github.com/relayforge/relayforge/internal/core/domain"
)

// outboundQueue is an unbounded FIFO of ProxyMessages awaiting the write
// loop. Push never blocks; notify carries a single wakeup signal so the
// write loop can select between "queue has work" and its keep-alive timer.
//
// TODO: spec.md leaves "should the outbound queue be bounded" open and
// directs leaving it unbounded for now; revisit if a slow control plane
// peer is ever observed causing unbounded growth here.
type outboundQueue struct {
	mu     sync.Mutex
	items  *list.List
	notify chan struct{}
}

func newOutboundQueue() *outboundQueue {
	return &outboundQueue{items: list.New(), notify: make(chan struct{}, 1)}
}

func (q *outboundQueue) push(msg domain.ProxyMessage) {
	q.mu.Lock()
	q.items.PushBack(msg)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *outboundQueue) tryPop() (domain.ProxyMessage, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	front := q.items.Front()
	if front == nil {
		return domain.ProxyMessage{}, false
	}
	q.items.Remove(front)
	return front.Value.(domain.ProxyMessage), true
}

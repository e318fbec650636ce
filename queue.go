package courier

import "sync"

// queue is the pending-message FIFO between Send and the processing loop.
//
// It is unbounded: push never blocks, so a caller that sends faster than
// the server accepts grows memory without limit.
type queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []*Message
	closed bool
}

func newQueue() *queue {
	q := &queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push appends m. It returns false if the queue has been closed.
func (q *queue) push(m *Message) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.items = append(q.items, m)
	q.cond.Signal()
	return true
}

// pop blocks until a message is available or the queue is closed.
// ok is false once the queue is closed.
func (q *queue) pop() (m *Message, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.closed {
		return nil, false
	}
	m = q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return m, true
}

// close wakes any waiting pop and returns the messages still queued.
func (q *queue) close() []*Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	drained := q.items
	q.items = nil
	q.cond.Broadcast()
	return drained
}

// len returns the number of queued messages.
func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

package console

import (
	"context"
	"errors"
	"sync"
)

const defaultQueueCapacity = 64

var (
	ErrQueueFull   = errors.New("console: request queue is full")
	ErrQueueClosed = errors.New("console: request queue is closed")
)

// Request is one line waiting for the engine goroutine.
type Request struct {
	Line  string
	reply chan ExecResponse
}

// Queue hands command lines from any goroutine to the engine goroutine.
type Queue struct {
	mu       sync.RWMutex
	requests chan Request
	closed   bool
}

func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = defaultQueueCapacity
	}
	return &Queue{requests: make(chan Request, capacity)}
}

// Enqueue submits a line without blocking. The returned channel receives
// exactly one response.
func (q *Queue) Enqueue(line string) (<-chan ExecResponse, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return nil, ErrQueueClosed
	}
	req := Request{Line: line, reply: make(chan ExecResponse, 1)}
	select {
	case q.requests <- req:
		return req.reply, nil
	default:
		return nil, ErrQueueFull
	}
}

// Submit enqueues a line and waits for its response.
func (q *Queue) Submit(ctx context.Context, line string) (ExecResponse, error) {
	reply, err := q.Enqueue(line)
	if err != nil {
		return ExecResponse{}, err
	}
	select {
	case resp := <-reply:
		return resp, nil
	case <-ctx.Done():
		return ExecResponse{}, ctx.Err()
	}
}

// Pump runs at most max queued requests through exec and replies to each.
func (q *Queue) Pump(max int, exec func(line string) ExecResponse) int {
	n := 0
	for max <= 0 || n < max {
		select {
		case req := <-q.requests:
			req.reply <- exec(req.Line)
			n++
		default:
			return n
		}
	}
	return n
}

func (q *Queue) Len() int { return len(q.requests) }

// Close rejects new requests and fails those still queued.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	q.Pump(0, func(string) ExecResponse {
		return ExecResponse{Error: ErrQueueClosed.Error()}
	})
}

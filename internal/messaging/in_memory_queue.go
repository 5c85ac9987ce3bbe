package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

var ErrQueueClosed = errors.New("queue is closed")

type inMemoryTask struct {
	queue   string
	payload []byte
}

func (t *inMemoryTask) Type() string {
	return t.queue
}

func (t *inMemoryTask) Payload() []byte {
	return t.payload
}

func (t *inMemoryTask) Ack() error {
	return nil
}

func (t *inMemoryTask) Nack() error {
	return nil
}

func (t *inMemoryTask) Reject() error {
	return nil
}

// InMemoryQueue is a Publisher and Reciever for single process deployments.
type InMemoryQueue struct {
	mu     sync.RWMutex
	tasks  chan Task
	closed bool
}

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		tasks: make(chan Task, 100),
	}
}

func (q *InMemoryQueue) publishTaskInternal(ctx context.Context, queue string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.tasks <- &inMemoryTask{queue: queue, payload: data}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *InMemoryQueue) PublishEvaluationTask(ctx context.Context, payload EvaluationTaskPayload) error {
	return q.publishTaskInternal(ctx, EvaluationQueue, payload)
}

func (q *InMemoryQueue) Tasks() <-chan Task {
	return q.tasks
}

func (q *InMemoryQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		close(q.tasks)
		q.closed = true
	}
}

package socket

import "sync"

// taskQueue is an unbounded FIFO drained by a single goroutine. Pushing never
// blocks, so tasks may enqueue further tasks.
type taskQueue struct {
	mu     sync.Mutex
	tasks  []func()
	closed bool
	notify chan struct{}
}

func newTaskQueue() *taskQueue {
	return &taskQueue{notify: make(chan struct{}, 1)}
}

func (q *taskQueue) push(task func()) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.tasks = append(q.tasks, task)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

// close rejects further pushes; run returns once the backlog is drained.
func (q *taskQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *taskQueue) run() {
	for {
		q.mu.Lock()
		if len(q.tasks) == 0 {
			closed := q.closed
			q.mu.Unlock()
			if closed {
				return
			}
			<-q.notify
			continue
		}
		task := q.tasks[0]
		q.tasks[0] = nil
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		task()
	}
}

package pipeline

import "github.com/cjbpq/ai-note-app/internal/server/models"

// Task is one unit of background work: a stored job waiting for AI
// processing, together with the request parameters the worker needs.
type Task struct {
	JobID    string
	Owner    models.Owner
	Category string
	Tags     []string
}

// Queue is a bounded in-process task queue. A full queue rejects
// synchronously instead of dropping work: the caller decides what to do
// with the job, so no task ever disappears silently.
type Queue struct {
	tasks chan Task
}

func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 64
	}
	return &Queue{tasks: make(chan Task, capacity)}
}

// TryEnqueue offers the task without blocking. It returns false when the
// queue is at capacity.
func (q *Queue) TryEnqueue(t Task) bool {
	select {
	case q.tasks <- t:
		return true
	default:
		return false
	}
}

// Tasks exposes the receive side for workers.
func (q *Queue) Tasks() <-chan Task {
	return q.tasks
}

// Len returns the number of tasks currently waiting.
func (q *Queue) Len() int {
	return len(q.tasks)
}

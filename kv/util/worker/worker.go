package worker

import (
	"sync"

	"github.com/pingcap/log"
	"go.uber.org/zap"
)

type Task interface{}

type TaskHandler interface {
	Handle(t Task)
}

// Worker runs tasks one at a time on its own goroutine, in the order they were queued. The queue is bounded; callers
// that must not wait use TrySend.
type Worker struct {
	name     string
	tasks    chan Task
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

func NewWorker(name string, capacity int) *Worker {
	return &Worker{
		name:   name,
		tasks:  make(chan Task, capacity),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

func (w *Worker) Start(handler TaskHandler) {
	go func() {
		defer close(w.doneCh)
		for {
			select {
			case t := <-w.tasks:
				handler.Handle(t)
			case <-w.stopCh:
				n := w.drain(handler)
				log.Info("worker stopped", zap.String("name", w.name), zap.Int("drained-tasks", n))
				return
			}
		}
	}()
}

// drain handles the tasks queued before the worker was stopped.
func (w *Worker) drain(handler TaskHandler) int {
	for n := 0; ; n++ {
		select {
		case t := <-w.tasks:
			handler.Handle(t)
		default:
			return n
		}
	}
}

// Send queues t, waiting for room if the queue is full. It returns false once the worker is stopped.
func (w *Worker) Send(t Task) bool {
	select {
	case <-w.stopCh:
		return false
	default:
	}
	select {
	case w.tasks <- t:
		return true
	case <-w.stopCh:
		return false
	}
}

// TrySend queues t only if there is room and the worker isn't stopped.
func (w *Worker) TrySend(t Task) bool {
	select {
	case <-w.stopCh:
		return false
	default:
	}
	select {
	case w.tasks <- t:
		return true
	default:
		return false
	}
}

// Len returns the number of queued tasks.
func (w *Worker) Len() int {
	return len(w.tasks)
}

// Done is closed when the worker goroutine exits.
func (w *Worker) Done() <-chan struct{} {
	return w.doneCh
}

// Stop makes the worker handle what is already queued and exit. It can be called more than once and returns
// without waiting; use Done to wait.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordHandler struct {
	tasks []int
}

func (h *recordHandler) Handle(t Task) {
	h.tasks = append(h.tasks, t.(int))
}

func TestWorkerRunsTasksInOrder(t *testing.T) {
	w := NewWorker("test", 16)
	h := new(recordHandler)
	w.Start(h)
	for i := 0; i < 10; i++ {
		require.True(t, w.Send(i))
	}
	w.Stop()
	<-w.Done()

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, h.tasks)
}

func TestWorkerTrySendFull(t *testing.T) {
	w := NewWorker("test", 2)
	assert.True(t, w.TrySend(1))
	assert.True(t, w.TrySend(2))
	assert.False(t, w.TrySend(3))
	assert.Equal(t, 2, w.Len())

	// Tasks queued before Stop are still handled.
	h := new(recordHandler)
	w.Stop()
	w.Start(h)
	<-w.Done()
	assert.Equal(t, []int{1, 2}, h.tasks)
}

func TestWorkerSendAfterStop(t *testing.T) {
	w := NewWorker("test", 1)
	w.Start(new(recordHandler))
	w.Stop()
	w.Stop()
	<-w.Done()

	assert.False(t, w.Send(1))
	assert.False(t, w.TrySend(1))
}

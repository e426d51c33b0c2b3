package events

import (
	"context"
	"sync"

	"github.com/Klingon-tech/klingnet-wallet/internal/walleterr"
	"github.com/lightningnetwork/lnd/queue"
)

// queueBuffer is the channel buffer in front of the unbounded overflow list.
const queueBuffer = 64

// Queue is an unbounded FIFO of events with a blocking pop. Close wakes
// every blocked Get.
type Queue struct {
	q    *queue.ConcurrentQueue
	quit chan struct{}
	once sync.Once
}

// NewQueue creates and starts a queue.
func NewQueue() *Queue {
	q := &Queue{
		q:    queue.NewConcurrentQueue(queueBuffer),
		quit: make(chan struct{}),
	}
	q.q.Start()
	return q
}

// Push appends e. Events pushed after Close are dropped.
func (q *Queue) Push(e Event) {
	select {
	case q.q.ChanIn() <- e:
	case <-q.quit:
	}
}

// Get blocks until an event is available, the queue is closed or ctx is done.
func (q *Queue) Get(ctx context.Context) (Event, error) {
	select {
	case <-q.quit:
		return nil, walleterr.ErrStopped
	default:
	}
	select {
	case item := <-q.q.ChanOut():
		return item.(Event), nil
	case <-q.quit:
		return nil, walleterr.ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the queue. It is safe to call more than once.
func (q *Queue) Close() {
	q.once.Do(func() {
		close(q.quit)
		q.q.Stop()
	})
}

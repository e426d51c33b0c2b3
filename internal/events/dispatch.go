package events

import (
	"sync"

	"github.com/Klingon-tech/klingnet-wallet/internal/log"
	"github.com/lightningnetwork/lnd/queue"
)

// Listener handles one notification.
type Listener func(Notification)

// ListenerID identifies an attachment for Detach.
type ListenerID uint64

type entry struct {
	id ListenerID
	fn Listener
}

// Dispatcher fans notifications out to listeners on its own goroutine.
// Listeners of a kind run in attachment order and every listener sees
// notifications in dispatch order.
type Dispatcher struct {
	mu        sync.RWMutex
	listeners [numKinds][]entry
	nextID    ListenerID

	q    *queue.ConcurrentQueue
	quit chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewDispatcher creates and starts a dispatcher.
func NewDispatcher() *Dispatcher {
	d := &Dispatcher{
		q:    queue.NewConcurrentQueue(queueBuffer),
		quit: make(chan struct{}),
	}
	d.q.Start()
	d.wg.Add(1)
	go d.run()
	return d
}

// Attach registers fn for kind.
func (d *Dispatcher) Attach(kind Kind, fn Listener) ListenerID {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	id := d.nextID
	d.listeners[kind] = append(d.listeners[kind], entry{id: id, fn: fn})
	return id
}

// AttachObserver registers o for every observer kind under one id.
func (d *Dispatcher) AttachObserver(o Observer) ListenerID {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	id := d.nextID
	fn := func(n Notification) { notify(o, n) }
	for _, k := range observerKinds {
		d.listeners[k] = append(d.listeners[k], entry{id: id, fn: fn})
	}
	return id
}

// Detach removes every registration under id. It reports whether any existed.
func (d *Dispatcher) Detach(id ListenerID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	found := false
	for k := range d.listeners {
		kept := d.listeners[k][:0:0]
		for _, e := range d.listeners[k] {
			if e.id == id {
				found = true
				continue
			}
			kept = append(kept, e)
		}
		d.listeners[k] = kept
	}
	return found
}

// Dispatch queues n for delivery. Notifications dispatched after Stop are dropped.
func (d *Dispatcher) Dispatch(n Notification) {
	select {
	case d.q.ChanIn() <- n:
	case <-d.quit:
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case item := <-d.q.ChanOut():
			d.deliver(item.(Notification))
		case <-d.quit:
			return
		}
	}
}

func (d *Dispatcher) deliver(n Notification) {
	if n.Kind >= numKinds {
		return
	}
	d.mu.RLock()
	ls := d.listeners[n.Kind]
	d.mu.RUnlock()
	for _, e := range ls {
		e.fn(n)
	}
}

// Stop halts delivery and waits for the running listener to return.
// Undelivered notifications are discarded.
func (d *Dispatcher) Stop() {
	d.once.Do(func() {
		close(d.quit)
		d.q.Stop()
		d.wg.Wait()
		log.Wallet.Debug().Msg("Event dispatcher stopped")
	})
}

// Hub publishes notifications to a Queue and a Dispatcher together.
type Hub struct {
	queue      *Queue
	dispatcher *Dispatcher
	shared     bool
}

// NewHub creates a hub with a fresh queue and dispatcher.
func NewHub() *Hub {
	return &Hub{queue: NewQueue(), dispatcher: NewDispatcher()}
}

// NewSharedHub creates a hub with a fresh queue in front of d. Closing the
// hub leaves d running.
func NewSharedHub(d *Dispatcher) *Hub {
	return &Hub{queue: NewQueue(), dispatcher: d, shared: true}
}

// Queue returns the pull-based event queue.
func (h *Hub) Queue() *Queue { return h.queue }

// Dispatcher returns the observer dispatcher.
func (h *Hub) Dispatcher() *Dispatcher { return h.dispatcher }

// Publish delivers ns in order. Observer-only kinds skip the queue.
func (h *Hub) Publish(ns ...Notification) {
	for _, n := range ns {
		if e := n.Event(); e != nil {
			h.queue.Push(e)
		}
		h.dispatcher.Dispatch(n)
	}
}

// Close stops the queue and, unless shared, the dispatcher.
func (h *Hub) Close() {
	h.queue.Close()
	if !h.shared {
		h.dispatcher.Stop()
	}
}

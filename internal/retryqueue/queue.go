package retryqueue

import (
	"sync"
	"time"

	"github.com/VenkatGGG/taxa-totals/internal/taxon"
)

// Handle identifies one consumer registration so it can be withdrawn with Forget. Zero means
// nothing was registered.
type Handle uint64

type waiter struct {
	handle  Handle
	consume taxon.Consumer
}

// Pending is the single queued entry for an id. Every consumer that asked for the id while it
// was queued hangs off the same entry.
type Pending struct {
	ID         taxon.ID
	Attempts   int
	EnqueuedAt time.Time
	waiters    []waiter
}

// Queue is a FIFO of pending ids with at most one entry per id. Drained entries stay known to
// the queue until the runner completes, requeues or drops them.
type Queue struct {
	mu       sync.Mutex
	order    []taxon.ID
	pending  map[taxon.ID]*Pending
	inflight map[taxon.ID]*Pending
	seq      Handle
}

func NewQueue() *Queue {
	return &Queue{
		pending:  make(map[taxon.ID]*Pending),
		inflight: make(map[taxon.ID]*Pending),
	}
}

// Enqueue adds id unless it is already queued, in which case consumer joins the existing
// entry. It returns the registration handle and whether a new entry was created.
func (q *Queue) Enqueue(id taxon.ID, consumer taxon.Consumer) (Handle, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	p, exists := q.pending[id]
	if !exists {
		p = &Pending{ID: id, EnqueuedAt: time.Now().UTC()}
		q.pending[id] = p
		q.order = append(q.order, id)
	}

	var h Handle
	if consumer != nil {
		q.seq++
		h = q.seq
		p.waiters = append(p.waiters, waiter{handle: h, consume: consumer})
	}
	return h, !exists
}

// DrainBatch removes and returns up to max of the oldest entries.
func (q *Queue) DrainBatch(max int) []*Pending {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.order)
	if max > 0 && n > max {
		n = max
	}
	if n == 0 {
		return nil
	}

	batch := make([]*Pending, 0, n)
	for _, id := range q.order[:n] {
		p := q.pending[id]
		delete(q.pending, id)
		if running, ok := q.inflight[id]; ok {
			running.waiters = append(running.waiters, p.waiters...)
			p.waiters = nil
		} else {
			q.inflight[id] = p
		}
		batch = append(batch, p)
	}
	q.order = append([]taxon.ID(nil), q.order[n:]...)
	return batch
}

// Requeue puts a drained entry at the back. If the id was enqueued again while the entry was
// out, the two merge into the entry already queued. Entries settled by Complete in the
// meantime are not requeued.
func (q *Queue) Requeue(p *Pending) {
	if p == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.inflight[p.ID] != p {
		return
	}
	delete(q.inflight, p.ID)

	if existing, ok := q.pending[p.ID]; ok {
		existing.waiters = append(p.waiters, existing.waiters...)
		if p.Attempts > existing.Attempts {
			existing.Attempts = p.Attempts
		}
		if p.EnqueuedAt.Before(existing.EnqueuedAt) {
			existing.EnqueuedAt = p.EnqueuedAt
		}
		return
	}
	q.pending[p.ID] = p
	q.order = append(q.order, p.ID)
}

// Drop abandons a drained entry and reports how many consumers it still had.
func (q *Queue) Drop(p *Pending) int {
	if p == nil {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.inflight[p.ID] != p {
		return 0
	}
	delete(q.inflight, p.ID)
	return len(p.waiters)
}

// Complete takes every consumer waiting on id, drained or queued, out of the queue.
func (q *Queue) Complete(id taxon.ID) []taxon.Consumer {
	q.mu.Lock()
	defer q.mu.Unlock()

	var consumers []taxon.Consumer
	if p, ok := q.inflight[id]; ok {
		delete(q.inflight, id)
		consumers = appendConsumers(consumers, p.waiters)
	}
	if p, ok := q.pending[id]; ok {
		delete(q.pending, id)
		q.removeFromOrder(id)
		consumers = appendConsumers(consumers, p.waiters)
	}
	return consumers
}

// Forget withdraws one registration. The entry itself stays queued.
func (q *Queue) Forget(id taxon.ID, h Handle) bool {
	if h == 0 {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, p := range []*Pending{q.pending[id], q.inflight[id]} {
		if p == nil {
			continue
		}
		for i, w := range p.waiters {
			if w.handle == h {
				p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
				return true
			}
		}
	}
	return false
}

// Waiters counts the consumers registered for id, queued or in flight.
func (q *Queue) Waiters(id taxon.ID) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	if p, ok := q.pending[id]; ok {
		n += len(p.waiters)
	}
	if p, ok := q.inflight[id]; ok {
		n += len(p.waiters)
	}
	return n
}

func (q *Queue) Contains(id taxon.ID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.pending[id]
	return ok
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}

func (q *Queue) removeFromOrder(id taxon.ID) {
	for i, queued := range q.order {
		if queued == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			return
		}
	}
}

func appendConsumers(dst []taxon.Consumer, waiters []waiter) []taxon.Consumer {
	for _, w := range waiters {
		dst = append(dst, w.consume)
	}
	return dst
}

// Package avllq is the audio/video low-latency queue: an in-process,
// single-producer/multiple-consumer ring buffer where a slow consumer loses
// buffers rather than stalling the producer. It is the in-memory sibling of
// fdring/shmring, which carry the same cursor algebra across a process
// boundary instead of a mutex.
package avllq

import (
	"fmt"
	"sync"

	"github.com/lowlatency/llq/internal/metrics"
	"github.com/lowlatency/llq/internal/ringstate"
)

// Item is one produced payload. Type is an opaque application-defined tag
// (codec id, frame kind, ...) carried alongside the bytes.
type Item struct {
	Data []byte
	Type int
}

// Queue is an in-process AVLLQ instance. The zero value is not usable; call
// New.
type Queue struct {
	mu sync.Mutex

	capacity    uint8
	maxItemSize int

	wrOff    uint8
	rdOff    uint8
	local    [ringstate.MaxConsumers]uint8
	consumer [ringstate.MaxConsumers]int32
	nextID   int32

	slots []slot

	name    string
	metrics metrics.Recorder
}

type slot struct {
	data []byte
	n    int
	typ  int
}

// New creates a queue with room for capacity-1 usable items (capacity itself
// is the number of physical slots, matching the original source's
// off-by-one ring convention), each holding up to maxItemSize bytes.
func New(capacity uint8, maxItemSize int) (*Queue, error) {
	if capacity < ringstate.MinCapacity || capacity > ringstate.MaxCapacity {
		return nil, fmt.Errorf("avllq: capacity %d outside [%d, %d]", capacity, ringstate.MinCapacity, ringstate.MaxCapacity)
	}
	if maxItemSize <= 0 {
		return nil, fmt.Errorf("avllq: max item size must be positive, got %d", maxItemSize)
	}

	q := &Queue{
		capacity:    capacity,
		maxItemSize: maxItemSize,
		nextID:      1,
		slots:       make([]slot, capacity),
	}
	for i := range q.consumer {
		q.consumer[i] = -1
	}
	for i := range q.slots {
		q.slots[i].data = make([]byte, maxItemSize)
	}
	return q, nil
}

// WithMetrics attaches a name and recorder used to observe produce/drop
// events. rec may be nil, in which case Queue behaves exactly as before.
// Returns q for chaining onto New.
func (q *Queue) WithMetrics(name string, rec metrics.Recorder) *Queue {
	q.name = name
	q.metrics = rec
	if rec != nil {
		rec.SetCapacity(name, int(q.capacity))
	}
	return q
}

// Cursors accessor methods. They are exported so *Queue satisfies
// ringstate.Cursors; they take no lock, and Queue's own methods call into
// ringstate only while mu is held.

func (q *Queue) Capacity() uint8           { return q.capacity }
func (q *Queue) WrOff() uint8              { return q.wrOff }
func (q *Queue) SetWrOff(v uint8)          { q.wrOff = v }
func (q *Queue) RdOff() uint8              { return q.rdOff }
func (q *Queue) SetRdOff(v uint8)          { q.rdOff = v }
func (q *Queue) LocalOff(i int) uint8      { return q.local[i] }
func (q *Queue) SetLocalOff(i int, v uint8) { q.local[i] = v }
func (q *Queue) Consumer(i int) int32      { return q.consumer[i] }
func (q *Queue) SetConsumer(i int, v int32) { q.consumer[i] = v }
func (q *Queue) NextConsumerID() int32 {
	id := q.nextID
	q.nextID++
	return id
}

// RegisterConsumer allocates a new consumer id, or -1 if MaxConsumers are
// already registered.
func (q *Queue) RegisterConsumer() int32 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return ringstate.Register(q)
}

// DeregisterConsumer removes a consumer's slot. Idempotent.
func (q *Queue) DeregisterConsumer(consumerID int32) {
	q.mu.Lock()
	defer q.mu.Unlock()
	ringstate.Deregister(q, consumerID)
}

// EnumerateConsumers returns the ids currently registered.
func (q *Queue) EnumerateConsumers() []int32 {
	q.mu.Lock()
	defer q.mu.Unlock()
	ids := ringstate.Enumerate(q)
	if q.metrics != nil {
		q.metrics.SetConsumers(q.name, len(ids))
	}
	return ids
}

// Produce copies data into the next slot, tagging it with typ. If data is
// longer than maxItemSize, it is truncated, matching the source's
// fixed-size-buffer semantics (the caller is expected to respect
// maxItemSize; this is a safety net, not a supported usage path).
func (q *Queue) Produce(data []byte, typ int) ringstate.Status {
	q.mu.Lock()
	defer q.mu.Unlock()

	overwrite, _ := ringstate.WillOverwrite(q)
	ringstate.Produce(q, func(off uint8) {
		s := &q.slots[off]
		n := copy(s.data, data)
		s.n = n
		s.typ = typ
	})

	if q.metrics != nil {
		q.metrics.ItemProduced(q.name)
		if overwrite {
			q.metrics.ItemDropped(q.name)
		}
		q.metrics.SetSize(q.name, ringstate.Size(q))
	}
	return ringstate.StatusOK
}

// ReleaseItem is a no-op retained for API symmetry with fdring.Ring.Unref:
// an Item's Data is a plain Go slice reclaimed by the garbage collector, so
// there is nothing to release explicitly. Kept so callers can write queue
// code generically against either avllq or fdzcq without branching on
// which one they're holding.
func (q *Queue) ReleaseItem(Item) {}

// Stats returns a point-in-time snapshot of ring occupancy for callers
// (metrics exporters, status endpoints) that shouldn't need to know about
// the ringstate.Cursors interface.
func (q *Queue) Stats() ringstate.Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return ringstate.Stats{
		Size:      ringstate.Size(q),
		Capacity:  int(q.capacity),
		Consumers: len(ringstate.Enumerate(q)),
	}
}

// Consume returns a copy of the next unread item for consumerID. The
// returned Item's Data is a fresh slice, safe to retain past the next
// Produce call (unlike fdring, which hands out a shared fd that must be
// explicitly released).
func (q *Queue) Consume(consumerID int32) (Item, ringstate.Status) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var item Item
	status := ringstate.Consume(q, consumerID, func(off uint8) {
		s := &q.slots[off]
		item.Data = append([]byte(nil), s.data[:s.n]...)
		item.Type = s.typ
	})
	return item, status
}

// Size returns the number of unread items relative to the global read
// cursor (the slowest consumer not yet having read them).
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return ringstate.Size(q)
}

// Empty reports whether the global read cursor has caught up to wr_off.
func (q *Queue) Empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return ringstate.Empty(q)
}

// Full reports whether the ring holds its maximum usable item count.
func (q *Queue) Full() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return ringstate.Full(q)
}

// The following are exposed for tests only, mirroring the original source's
// "for unit test only" entry points (msu_avllq_local_buf_empty and
// friends). Production code has no use for a consumer's raw cursor state.

// LocalBufEmpty reports whether consumerID has no unread items.
func (q *Queue) LocalBufEmpty(consumerID int32) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	idx := ringstate.FindConsumerIndex(q, consumerID)
	if idx == -1 {
		return true
	}
	return ringstate.LocalEmpty(q, idx)
}

// LocalBufFull reports whether consumerID has capacity-1 unread items.
func (q *Queue) LocalBufFull(consumerID int32) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	idx := ringstate.FindConsumerIndex(q, consumerID)
	if idx == -1 {
		return false
	}
	return ringstate.LocalFull(q, idx)
}

// CompareReadSpeed mirrors msu_avllq_compare_read_speed.
func (q *Queue) CompareReadSpeed(consumerID int32) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return ringstate.CompareReadSpeed(q, consumerID)
}

// SlowestReadOffset mirrors msu_avllq_slowest_rd_off.
func (q *Queue) SlowestReadOffset() uint8 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return ringstate.SlowestOffset(q)
}

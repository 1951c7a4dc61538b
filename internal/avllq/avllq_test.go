package avllq

import (
	"testing"

	"github.com/lowlatency/llq/internal/ringstate"
)

func TestNewRejectsOutOfRangeCapacity(t *testing.T) {
	if _, err := New(1, 64); err == nil {
		t.Fatalf("expected error for capacity below MinCapacity")
	}
	if _, err := New(255, 64); err == nil {
		t.Fatalf("expected error for capacity above MaxCapacity")
	}
	if _, err := New(4, 0); err == nil {
		t.Fatalf("expected error for non-positive max item size")
	}
}

func TestProduceConsumeRoundTrip(t *testing.T) {
	q, err := New(4, 16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	id := q.RegisterConsumer()

	if status := q.Produce([]byte("hello"), 7); status != ringstate.StatusOK {
		t.Fatalf("Produce status=%v", status)
	}

	item, status := q.Consume(id)
	if status != ringstate.StatusOK {
		t.Fatalf("Consume status=%v", status)
	}
	if string(item.Data) != "hello" || item.Type != 7 {
		t.Fatalf("got item %+v", item)
	}
}

func TestConsumeNoBufOnEmptyQueue(t *testing.T) {
	q, _ := New(4, 16)
	id := q.RegisterConsumer()

	if _, status := q.Consume(id); status != ringstate.StatusNoBuf {
		t.Fatalf("expected StatusNoBuf, got %v", status)
	}
}

func TestConsumeUnknownConsumer(t *testing.T) {
	q, _ := New(4, 16)
	if _, status := q.Consume(999); status != ringstate.StatusConsumerNotFound {
		t.Fatalf("expected StatusConsumerNotFound, got %v", status)
	}
}

func TestOverwriteDropsOldestForSlowConsumer(t *testing.T) {
	q, _ := New(4, 16)
	id := q.RegisterConsumer()

	q.Produce([]byte{1}, 0)
	q.Produce([]byte{2}, 0)
	q.Produce([]byte{3}, 0)
	if !q.Full() {
		t.Fatalf("queue should be full at usable capacity")
	}

	// Overflow: the consumer never read anything, so its cursor must be
	// fast-forwarded away from the slot that is about to be overwritten.
	q.Produce([]byte{4}, 0)

	item, status := q.Consume(id)
	if status != ringstate.StatusOK {
		t.Fatalf("Consume status=%v", status)
	}
	// The oldest surviving item should be {2}, not the destroyed {1}.
	if len(item.Data) != 1 || item.Data[0] != 2 {
		t.Fatalf("expected oldest surviving item {2}, got %v", item.Data)
	}
}

func TestMultipleConsumersIndependentCursors(t *testing.T) {
	q, _ := New(8, 16)
	a := q.RegisterConsumer()
	b := q.RegisterConsumer()

	q.Produce([]byte{1}, 0)
	q.Produce([]byte{2}, 0)

	if item, status := q.Consume(a); status != ringstate.StatusOK || item.Data[0] != 1 {
		t.Fatalf("consumer a: item=%+v status=%v", item, status)
	}
	if item, status := q.Consume(a); status != ringstate.StatusOK || item.Data[0] != 2 {
		t.Fatalf("consumer a second read: item=%+v status=%v", item, status)
	}
	if item, status := q.Consume(b); status != ringstate.StatusOK || item.Data[0] != 1 {
		t.Fatalf("consumer b should still see item 1: item=%+v status=%v", item, status)
	}
}

func TestDeregisterThenRegisterReusesSlot(t *testing.T) {
	q, _ := New(8, 16)
	ids := make([]int32, 0, ringstate.MaxConsumers)
	for i := 0; i < ringstate.MaxConsumers; i++ {
		ids = append(ids, q.RegisterConsumer())
	}
	if id := q.RegisterConsumer(); id != -1 {
		t.Fatalf("expected registration failure once table is full, got %d", id)
	}

	q.DeregisterConsumer(ids[0])
	if id := q.RegisterConsumer(); id == -1 {
		t.Fatalf("expected a free slot after deregistering one consumer")
	}
}

func TestEnumerateConsumers(t *testing.T) {
	q, _ := New(8, 16)
	a := q.RegisterConsumer()
	b := q.RegisterConsumer()

	ids := q.EnumerateConsumers()
	if len(ids) != 2 {
		t.Fatalf("expected 2 consumers, got %v", ids)
	}
	seen := map[int32]bool{}
	for _, id := range ids {
		seen[id] = true
	}
	if !seen[a] || !seen[b] {
		t.Fatalf("enumerated ids %v missing %d or %d", ids, a, b)
	}
}

func TestSlowestReadOffsetAndCompareReadSpeed(t *testing.T) {
	q, _ := New(8, 16)
	slow := q.RegisterConsumer()
	fast := q.RegisterConsumer()

	q.Produce([]byte{1}, 0)
	q.Produce([]byte{2}, 0)

	q.Consume(fast)
	q.Consume(fast)

	if !q.LocalBufEmpty(fast) {
		t.Fatalf("fast consumer should have drained the queue")
	}
	if q.LocalBufEmpty(slow) {
		t.Fatalf("slow consumer should still have unread items")
	}

	if speed := q.CompareReadSpeed(fast); speed >= 0 {
		t.Fatalf("fast consumer should compare as faster than global cursor, got %d", speed)
	}
	if off := q.SlowestReadOffset(); off != 0 {
		t.Fatalf("slowest read offset should be the slow consumer's cursor 0, got %d", off)
	}
}

type fakeRecorder struct {
	produced int
	dropped  int
	size     int
}

func (f *fakeRecorder) SetSize(queue string, size int)         { f.size = size }
func (f *fakeRecorder) SetCapacity(queue string, capacity int) {}
func (f *fakeRecorder) SetConsumers(queue string, count int)   {}
func (f *fakeRecorder) ItemProduced(queue string)              { f.produced++ }
func (f *fakeRecorder) ItemDropped(queue string)                { f.dropped++ }
func (f *fakeRecorder) ReleaseCallback(queue, reason string)   {}
func (f *fakeRecorder) DoubleUnref(queue string)                {}
func (f *fakeRecorder) ObserveFdChannelRequest(queue string, seconds float64) {}
func (f *fakeRecorder) FdChannelTimeout(queue string) {}

func TestMetricsObserveProduceAndDrop(t *testing.T) {
	q, _ := New(4, 16)
	rec := &fakeRecorder{}
	q.WithMetrics("test", rec)
	q.RegisterConsumer()

	q.Produce([]byte{1}, 0)
	q.Produce([]byte{2}, 0)
	q.Produce([]byte{3}, 0)
	if rec.dropped != 0 {
		t.Fatalf("expected no drops before the ring fills, got %d", rec.dropped)
	}

	q.Produce([]byte{4}, 0) // overflow
	if rec.produced != 4 {
		t.Fatalf("expected 4 produced events, got %d", rec.produced)
	}
	if rec.dropped != 1 {
		t.Fatalf("expected 1 dropped event after overflow, got %d", rec.dropped)
	}
}

func TestTruncatesOversizedPayload(t *testing.T) {
	q, _ := New(4, 4)
	id := q.RegisterConsumer()

	q.Produce([]byte{1, 2, 3, 4, 5, 6}, 0)

	item, status := q.Consume(id)
	if status != ringstate.StatusOK {
		t.Fatalf("Consume status=%v", status)
	}
	if len(item.Data) != 4 {
		t.Fatalf("expected truncation to maxItemSize=4, got len=%d", len(item.Data))
	}
}

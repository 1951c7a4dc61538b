package ringstate

import "testing"

// fakeCursors is a minimal in-memory Cursors implementation used to exercise
// the algebra in isolation from both avllq's and shmring's storage.
type fakeCursors struct {
	capacity uint8
	wrOff    uint8
	rdOff    uint8
	local    [MaxConsumers]uint8
	consumer [MaxConsumers]int32
	nextID   int32
}

func newFake(capacity uint8) *fakeCursors {
	f := &fakeCursors{capacity: capacity, nextID: 1}
	for i := range f.consumer {
		f.consumer[i] = emptyConsumer
	}
	return f
}

func (f *fakeCursors) Capacity() uint8            { return f.capacity }
func (f *fakeCursors) WrOff() uint8                { return f.wrOff }
func (f *fakeCursors) SetWrOff(v uint8)            { f.wrOff = v }
func (f *fakeCursors) RdOff() uint8                { return f.rdOff }
func (f *fakeCursors) SetRdOff(v uint8)            { f.rdOff = v }
func (f *fakeCursors) LocalOff(i int) uint8        { return f.local[i] }
func (f *fakeCursors) SetLocalOff(i int, v uint8)  { f.local[i] = v }
func (f *fakeCursors) Consumer(i int) int32        { return f.consumer[i] }
func (f *fakeCursors) SetConsumer(i int, v int32)  { f.consumer[i] = v }
func (f *fakeCursors) NextConsumerID() int32 {
	id := f.nextID
	f.nextID++
	return id
}

func mustProduce(t *testing.T, c *fakeCursors, payload byte, written *[]byte) {
	t.Helper()
	Produce(c, func(off uint8) {
		*written = append(*written, payload)
		_ = off
	})
}

func TestRegisterInitializesAtCurrentReadCursor(t *testing.T) {
	c := newFake(4)
	c.SetWrOff(2)
	c.SetRdOff(1)

	id := Register(c)
	if id != 1 {
		t.Fatalf("expected first id 1, got %d", id)
	}
	idx := FindConsumerIndex(c, id)
	if idx == -1 {
		t.Fatalf("registered consumer not found")
	}
	if c.LocalOff(idx) != c.RdOff() {
		t.Fatalf("local cursor = %d, want %d", c.LocalOff(idx), c.RdOff())
	}
}

func TestRegisterFullTableReturnsNegativeOne(t *testing.T) {
	c := newFake(8)
	for i := 0; i < MaxConsumers; i++ {
		if id := Register(c); id == -1 {
			t.Fatalf("unexpected registration failure at slot %d", i)
		}
	}
	if id := Register(c); id != -1 {
		t.Fatalf("expected -1 once the table is full, got %d", id)
	}
}

func TestRegisterSequenceNumberAdvancesEvenOnFailure(t *testing.T) {
	c := newFake(8)
	for i := 0; i < MaxConsumers; i++ {
		Register(c)
	}
	before := c.nextID
	Register(c) // fails: table full
	if c.nextID != before+1 {
		t.Fatalf("sequence number did not advance on failed registration: before=%d after=%d", before, c.nextID)
	}
}

func TestDeregisterClearsSlotOnly(t *testing.T) {
	c := newFake(8)
	a := Register(c)
	b := Register(c)

	Deregister(c, a)

	if FindConsumerIndex(c, a) != -1 {
		t.Fatalf("consumer %d still present after deregister", a)
	}
	if FindConsumerIndex(c, b) == -1 {
		t.Fatalf("unrelated consumer %d was removed", b)
	}
}

// TestConsumerDrainingEachItemTracksProducer mirrors S1: a single
// registered consumer that reads every item right after it is produced
// sees each one (no false emptiness) and ends back on wr_off.
func TestConsumerDrainingEachItemTracksProducer(t *testing.T) {
	c := newFake(4)
	id := Register(c)
	idx := FindConsumerIndex(c, id)

	var written []byte
	for i := 0; i < 3; i++ {
		mustProduce(t, c, byte(i), &written)
		if st := Consume(c, id, func(off uint8) {}); st != StatusOK {
			t.Fatalf("consume after produce %d: status=%v", i, st)
		}
	}

	if c.LocalOff(idx) != c.WrOff() {
		t.Fatalf("caught-up consumer local=%d, wr=%d: should track producer", c.LocalOff(idx), c.WrOff())
	}
}

// TestOverflowOverwritesOldestAndFastForwardsRdOff mirrors S2: producing
// into a full ring must drop the oldest item and pull rd_off forward with
// it, even with no consumers registered.
func TestOverflowOverwritesOldestAndFastForwardsRdOff(t *testing.T) {
	c := newFake(4) // usable capacity 3 (next(wr)==rd defines "full")

	var written []byte
	for i := 0; i < 3; i++ {
		mustProduce(t, c, byte(i), &written)
	}
	if !Full(c) {
		t.Fatalf("ring should be full after filling usable capacity")
	}
	rdBefore := c.RdOff()

	mustProduce(t, c, byte(99), &written)

	if c.RdOff() == rdBefore {
		t.Fatalf("rd_off did not advance past the overwritten item")
	}
	if !Full(c) {
		t.Fatalf("ring should remain full after an overflowing produce")
	}
}

// TestSlowConsumerGetsFastForwardedOnOverflow mirrors S3: a consumer that
// never reads has its local cursor dragged forward by produce so it never
// points at data that no longer exists, and WillOverwrite correctly
// predicts which slot is about to be lost.
func TestSlowConsumerGetsFastForwardedOnOverflow(t *testing.T) {
	c := newFake(4)
	id := Register(c)
	idx := FindConsumerIndex(c, id)

	var written []byte
	for i := 0; i < 3; i++ {
		mustProduce(t, c, byte(i), &written)
	}

	overwrite, lostOff := WillOverwrite(c)
	if !overwrite {
		t.Fatalf("expected WillOverwrite to report an impending overwrite")
	}
	if lostOff != c.LocalOff(idx) {
		t.Fatalf("predicted overwritten offset %d does not match stalled consumer cursor %d", lostOff, c.LocalOff(idx))
	}

	mustProduce(t, c, byte(99), &written)

	if c.LocalOff(idx) == lostOff {
		t.Fatalf("slow consumer's local cursor was not fast-forwarded past the lost slot")
	}
}

// TestGlobalReadCursorTracksSlowestConsumer mirrors S4: once every
// registered consumer has read past the global cursor, rd_off jumps
// straight to the position of the slowest one instead of creeping forward
// one slot per consume call.
func TestGlobalReadCursorTracksSlowestConsumer(t *testing.T) {
	c := newFake(8)
	slow := Register(c)
	fast := Register(c)

	var written []byte
	for i := 0; i < 3; i++ {
		mustProduce(t, c, byte(i), &written)
	}

	// Fast consumer drains everything.
	for i := 0; i < 3; i++ {
		if st := Consume(c, fast, func(off uint8) {}); st != StatusOK {
			t.Fatalf("fast consume %d: status=%v", i, st)
		}
	}
	// Slow consumer only reads one.
	if st := Consume(c, slow, func(off uint8) {}); st != StatusOK {
		t.Fatalf("slow consume: status=%v", st)
	}

	slowIdx := FindConsumerIndex(c, slow)
	if c.RdOff() != c.LocalOff(slowIdx) {
		t.Fatalf("rd_off=%d did not converge on slowest consumer's cursor=%d", c.RdOff(), c.LocalOff(slowIdx))
	}
}

// TestConsumeNoBufAndConsumerNotFound mirrors S5's error-path coverage.
func TestConsumeNoBufAndConsumerNotFound(t *testing.T) {
	c := newFake(4)
	id := Register(c)

	if st := Consume(c, id, func(off uint8) {}); st != StatusNoBuf {
		t.Fatalf("expected StatusNoBuf on empty ring, got %v", st)
	}

	if st := Consume(c, id+100, func(off uint8) {}); st != StatusConsumerNotFound {
		t.Fatalf("expected StatusConsumerNotFound for unknown id, got %v", st)
	}
}

func TestSlowestOffsetInvalidWithNoConsumers(t *testing.T) {
	c := newFake(4)
	if off := SlowestOffset(c); off != InvalidOffset {
		t.Fatalf("expected InvalidOffset with no registered consumers, got %d", off)
	}
}

// TestSlowestOffsetTreatsCaughtUpAsFastest mirrors the diff==0 special case
// in slowest_rd_off: a consumer sitting exactly on wr_off must never win
// the "slowest" contest against one that is genuinely behind.
func TestSlowestOffsetTreatsCaughtUpAsFastest(t *testing.T) {
	c := newFake(8)
	caughtUp := Register(c)
	behind := Register(c)

	var written []byte
	mustProduce(t, c, 0, &written)

	// Drain the caught-up consumer so its local cursor equals wr_off.
	Consume(c, caughtUp, func(off uint8) {})

	behindIdx := FindConsumerIndex(c, behind)
	if off := SlowestOffset(c); off != c.LocalOff(behindIdx) {
		t.Fatalf("slowest offset %d should be the behind consumer's cursor %d, not the caught-up one", off, c.LocalOff(behindIdx))
	}
}

func TestEnumerateReturnsOnlyRegistered(t *testing.T) {
	c := newFake(4)
	a := Register(c)
	b := Register(c)
	Deregister(c, a)

	ids := Enumerate(c)
	if len(ids) != 1 || ids[0] != b {
		t.Fatalf("expected only %d, got %v", b, ids)
	}
}

func TestSizeEmptyFull(t *testing.T) {
	c := newFake(4)
	if !Empty(c) {
		t.Fatalf("fresh ring should be empty")
	}
	if Size(c) != 0 {
		t.Fatalf("fresh ring size should be 0, got %d", Size(c))
	}

	var written []byte
	mustProduce(t, c, 1, &written)
	mustProduce(t, c, 2, &written)
	mustProduce(t, c, 3, &written)

	if !Full(c) {
		t.Fatalf("ring should be full at usable capacity")
	}
	if Size(c) != 3 {
		t.Fatalf("expected size 3, got %d", Size(c))
	}
}

// Package fdring is the fd-carrying slot array fdzcq layers on top of
// shmring's cursor state: the same produce/consume/overwrite algebra as
// avllq, but each slot holds a file descriptor plus a three-state refcount
// instead of a byte-copied payload. The fd is only meaningful in the
// process that owns it; cross-process translation is fdchannel's job, not
// this package's.
package fdring

import (
	"encoding/binary"
	"fmt"
	"log"

	"github.com/lowlatency/llq/internal/metrics"
	"github.com/lowlatency/llq/internal/ringstate"
	"github.com/lowlatency/llq/internal/shmring"
)

const slotSize = 8 // int32 fd + int32 ref_count, packed directly after the shmring header

// SlotRef identifies one consumed item: the fd valid in the producer's
// address space, and the ring offset a consumer must pass back to Unref
// once it has translated the fd via fdchannel and finished using it.
type SlotRef struct {
	Fd     int32
	Offset uint8
}

// ReleaseCallback is invoked at the IDLE transition of the refcount state
// machine (the moment a slot has no outstanding references and its fd can
// be closed or returned to a pool). The default is a no-op, matching the
// original source's fdbuf_free_func placeholder.
type ReleaseCallback func(slot SlotRef)

func defaultRelease(SlotRef) {}

// Ring is one process's view onto a shared fd ring: the producer created it
// with Create, a consumer attached to it with Open (see shmring). Either
// role builds a Ring over the same shmring.Ring's Extra() region.
type Ring struct {
	shm        *shmring.Ring
	extra      []byte
	isProducer bool
	release    ReleaseCallback
	metrics    metrics.Recorder
	name       string
}

// ExtraBytes returns how large the trailing shmring region must be for a
// ring of the given capacity — pass this to shmring.Create.
func ExtraBytes(capacity uint8) int {
	return int(capacity) * slotSize
}

// NewProducer wraps a freshly created shmring.Ring (already sized via
// ExtraBytes) as the producer side of an fd ring.
func NewProducer(name string, shm *shmring.Ring, release ReleaseCallback, rec metrics.Recorder) *Ring {
	return newRing(name, shm, true, release, rec)
}

// NewConsumer wraps a shmring.Ring opened via shmring.Open as the consumer
// side of an fd ring.
func NewConsumer(name string, shm *shmring.Ring, release ReleaseCallback, rec metrics.Recorder) *Ring {
	return newRing(name, shm, false, release, rec)
}

func newRing(name string, shm *shmring.Ring, isProducer bool, release ReleaseCallback, rec metrics.Recorder) *Ring {
	if release == nil {
		release = defaultRelease
	}
	return &Ring{
		shm:        shm,
		extra:      shm.Extra(),
		isProducer: isProducer,
		release:    release,
		metrics:    rec,
		name:       name,
	}
}

func (r *Ring) slotFd(i uint8) int32 {
	off := int(i) * slotSize
	return int32(binary.LittleEndian.Uint32(r.extra[off : off+4]))
}

func (r *Ring) setSlotFd(i uint8, fd int32) {
	off := int(i) * slotSize
	binary.LittleEndian.PutUint32(r.extra[off:off+4], uint32(fd))
}

func (r *Ring) slotRefCount(i uint8) int32 {
	off := int(i)*slotSize + 4
	return int32(binary.LittleEndian.Uint32(r.extra[off : off+4]))
}

func (r *Ring) setSlotRefCount(i uint8, v int32) {
	off := int(i)*slotSize + 4
	binary.LittleEndian.PutUint32(r.extra[off:off+4], uint32(v))
}

// RegisterConsumer allocates a consumer id, or -1 if the table is full.
func (r *Ring) RegisterConsumer() int32 {
	r.shm.Lock()
	defer r.shm.Unlock()
	return ringstate.Register(r.shm.Header())
}

// DeregisterConsumer removes a consumer's slot.
func (r *Ring) DeregisterConsumer(consumerID int32) {
	r.shm.Lock()
	defer r.shm.Unlock()
	ringstate.Deregister(r.shm.Header(), consumerID)
}

// EnumerateConsumers lists currently registered consumer ids.
func (r *Ring) EnumerateConsumers() []int32 {
	r.shm.Lock()
	defer r.shm.Unlock()
	return ringstate.Enumerate(r.shm.Header())
}

// Produce publishes fd as the newest item. If the ring is full, the slot
// about to be overwritten is unreffed with the lock released, matching the
// original source's "post the semaphore, unref, re-wait" sequence, so the
// release callback never runs while the cursor lock is held.
func (r *Ring) Produce(fd int32) error {
	if !r.isProducer {
		return fmt.Errorf("fdring: Produce called on a consumer-side ring")
	}

	r.shm.Lock()
	hdr := r.shm.Header()

	off := hdr.WrOff()
	r.setSlotFd(off, fd)
	r.setSlotRefCount(off, 0)

	overwrite, lostOff := ringstate.WillOverwrite(hdr)
	if overwrite {
		r.shm.Unlock()
		r.unrefLocked(lostOff, true)
		r.shm.Lock()
	}

	ringstate.AdvanceAfterWrite(hdr)
	r.shm.Unlock()

	if r.metrics != nil {
		r.metrics.ItemProduced(r.name)
		if overwrite {
			r.metrics.ItemDropped(r.name)
		}
	}
	return nil
}

// Consume increments the slot's refcount and advances consumerID's cursor,
// returning the fd (still only meaningful to the producer process) and
// offset the caller must eventually Unref.
func (r *Ring) Consume(consumerID int32) (SlotRef, ringstate.Status) {
	r.shm.Lock()
	defer r.shm.Unlock()

	var ref SlotRef
	status := ringstate.Consume(r.shm.Header(), consumerID, func(off uint8) {
		r.setSlotRefCount(off, r.slotRefCount(off)+1)
		ref = SlotRef{Fd: r.slotFd(off), Offset: off}
	})
	return ref, status
}

// Ref increments a slot's refcount directly, mirroring msu_fdbuf_ref. Used
// when a caller duplicates a reference without going through Consume (e.g.
// handing the same slot to a second in-process worker).
func (r *Ring) Ref(offset uint8) {
	r.shm.Lock()
	defer r.shm.Unlock()
	r.setSlotRefCount(offset, r.slotRefCount(offset)+1)
}

// Unref decrements a slot's refcount, applying the three-state machine
// (LIVE >0, IDLE_UNFIRED ==0, IDLE_FIRED ==-1) with the asymmetric
// producer/consumer behavior of the original source: a producer uses the
// negative value as a "release callback already fired" sentinel and logs
// instead of double-firing; a consumer just logs a double-release.
func (r *Ring) Unref(offset uint8) {
	r.shm.Lock()
	defer r.shm.Unlock()
	r.unrefLocked(offset, r.isProducer)
}

func (r *Ring) unrefLocked(offset uint8, asProducer bool) {
	rc := r.slotRefCount(offset)

	if asProducer {
		if rc < 0 {
			log.Printf("fdring: %s: double free of slot %d by producer (refcount %d)", r.name, offset, rc)
			if r.metrics != nil {
				r.metrics.DoubleUnref(r.name)
			}
			return
		}
		rc--
		r.setSlotRefCount(offset, rc)
		switch rc {
		case 0, -1:
			r.fireRelease(offset, rc)
		default:
			// A positive remainder after a producer decrement means
			// consumers still hold references to the overwritten slot; no
			// callback fires here.
		}
		return
	}

	if rc <= 0 {
		log.Printf("fdring: %s: double release of slot %d by consumer (refcount %d)", r.name, offset, rc)
		if r.metrics != nil {
			r.metrics.DoubleUnref(r.name)
		}
		return
	}
	rc--
	r.setSlotRefCount(offset, rc)
	if rc == 0 {
		r.fireRelease(offset, rc)
	}
}

func (r *Ring) fireRelease(offset uint8, rc int32) {
	fd := r.slotFd(offset)
	if rc == 0 {
		// Prevent the callback from firing twice for the same drop to zero.
		r.setSlotRefCount(offset, -1)
	}
	if r.metrics != nil {
		reason := "idle"
		if rc == -1 {
			reason = "idle_fired"
		}
		r.metrics.ReleaseCallback(r.name, reason)
	}
	r.release(SlotRef{Fd: fd, Offset: offset})
}

// FdAt returns the raw fd stored at offset without touching its refcount.
// Only meaningful in the producer's address space; fdchannel calls this to
// answer a consumer's translation request.
func (r *Ring) FdAt(offset uint8) int32 {
	r.shm.Lock()
	defer r.shm.Unlock()
	return r.slotFd(offset)
}

// Size returns the number of unread items relative to the global cursor.
func (r *Ring) Size() int {
	r.shm.Lock()
	defer r.shm.Unlock()
	return ringstate.Size(r.shm.Header())
}

// Empty reports whether the global read cursor has caught up to wr_off.
func (r *Ring) Empty() bool {
	r.shm.Lock()
	defer r.shm.Unlock()
	return ringstate.Empty(r.shm.Header())
}

// Full reports whether the ring holds its maximum usable item count.
func (r *Ring) Full() bool {
	r.shm.Lock()
	defer r.shm.Unlock()
	return ringstate.Full(r.shm.Header())
}

// Stats returns a point-in-time occupancy snapshot, satisfying
// monitor.StatsProvider.
func (r *Ring) Stats() ringstate.Stats {
	r.shm.Lock()
	defer r.shm.Unlock()
	hdr := r.shm.Header()
	return ringstate.Stats{
		Size:      ringstate.Size(hdr),
		Capacity:  int(hdr.Capacity()),
		Consumers: len(ringstate.Enumerate(hdr)),
	}
}

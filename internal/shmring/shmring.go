// Package shmring is the shared-memory-backed twin of ringstate's cursor
// algebra: the same Cursors interface, but backed by bytes mapped into
// /dev/shm instead of Go struct fields, so the cursor state is visible to
// every process that maps the same segment. Mutual exclusion is a
// process-shared spinlock at byte offset 0, standing in for the POSIX
// semaphore idiomatic Go cannot bind without cgo.
package shmring

import (
	"encoding/binary"
	"fmt"
	"os"
	"runtime"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/lowlatency/llq/internal/ringstate"
)

// Byte layout of the mapped header, in order. The lock word occupies the
// first four bytes so it lands on its own cache line's start regardless of
// page alignment, and so every mapping agrees on where to spin-lock before
// any other field has meaning.
const (
	lockOff     = 0
	lockSize    = 4
	capacityOff = lockOff + lockSize // 4
	wrOff       = capacityOff + 1    // 5
	rdOff       = wrOff + 1          // 6
	localOff    = rdOff + 1          // 7, one byte per consumer
	consumerOff = localOff + ringstate.MaxConsumers                  // 11, one int32 per consumer
	seqNoOff    = consumerOff + ringstate.MaxConsumers*4             // 27
	HeaderSize  = seqNoOff + 4                                       // 31
)

const (
	lockFree = 0
	lockHeld = 1
)

// Header is a Cursors implementation over a byte slice mapped from shared
// memory. It does not own the mapping's lifecycle; callers go through Ring
// for that.
type Header struct {
	buf []byte
}

func newHeader(buf []byte) *Header {
	if len(buf) < HeaderSize {
		panic("shmring: mapped region smaller than HeaderSize")
	}
	return &Header{buf: buf}
}

func (h *Header) lockWord() *int32 {
	return (*int32)(unsafe.Pointer(&h.buf[lockOff]))
}

// Lock spins until the process-shared lock word is acquired. Backoff starts
// with a runtime.Gosched yield and escalates to short sleeps under
// contention, since a real futex wait isn't available without cgo.
func (h *Header) Lock() {
	word := h.lockWord()
	spins := 0
	for !atomic.CompareAndSwapInt32(word, lockFree, lockHeld) {
		spins++
		if spins < 100 {
			runtime.Gosched()
			continue
		}
		time.Sleep(time.Duration(min(spins-100, 50)) * time.Microsecond)
	}
}

// Unlock releases the lock word. Calling it without holding the lock
// corrupts the spinlock for every mapping; callers must pair every Lock
// with exactly one Unlock.
func (h *Header) Unlock() {
	atomic.StoreInt32(h.lockWord(), lockFree)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Cursors implementation. Every method assumes the caller holds the lock.

func (h *Header) Capacity() uint8 { return h.buf[capacityOff] }

func (h *Header) WrOff() uint8     { return h.buf[wrOff] }
func (h *Header) SetWrOff(v uint8) { h.buf[wrOff] = v }

func (h *Header) RdOff() uint8     { return h.buf[rdOff] }
func (h *Header) SetRdOff(v uint8) { h.buf[rdOff] = v }

func (h *Header) LocalOff(i int) uint8 { return h.buf[localOff+i] }
func (h *Header) SetLocalOff(i int, v uint8) {
	h.buf[localOff+i] = v
}

func (h *Header) Consumer(i int) int32 {
	off := consumerOff + i*4
	return int32(binary.LittleEndian.Uint32(h.buf[off : off+4]))
}

func (h *Header) SetConsumer(i int, v int32) {
	off := consumerOff + i*4
	binary.LittleEndian.PutUint32(h.buf[off:off+4], uint32(v))
}

func (h *Header) NextConsumerID() int32 {
	id := int32(binary.LittleEndian.Uint32(h.buf[seqNoOff : seqNoOff+4]))
	binary.LittleEndian.PutUint32(h.buf[seqNoOff:seqNoOff+4], uint32(id+1))
	return id
}

func (h *Header) initialize(capacity uint8) {
	h.buf[capacityOff] = capacity
	h.buf[wrOff] = 0
	h.buf[rdOff] = 0
	for i := 0; i < ringstate.MaxConsumers; i++ {
		h.buf[localOff+i] = 0
		h.SetConsumer(i, -1)
	}
	binary.LittleEndian.PutUint32(h.buf[seqNoOff:seqNoOff+4], 1)
}

// Ring owns a shared-memory mapping's lifecycle (open/create, mmap, unmap,
// unlink) around a Header.
type Ring struct {
	Name string

	file *os.File
	data []byte
	hdr  *Header
}

func shmPath(name string) string {
	return "/dev/shm/" + name
}

// Create opens (creating if necessary) the named shared-memory segment,
// sizes it to HeaderSize+extraBytes, maps it, and initializes cursor state.
// extraBytes is opaque to shmring: fdring uses it to lay out its fd/refcount
// slot array directly after the header, exactly where the original source
// places msu_fdbuf_t entries (MSU_FDZCQ_SHM_DATA_PTR). Only the producer
// should call Create; consumers call Open.
func Create(name string, capacity uint8, extraBytes int) (*Ring, error) {
	if capacity < ringstate.MinCapacity || capacity > ringstate.MaxCapacity {
		return nil, fmt.Errorf("shmring: capacity %d outside [%d, %d]", capacity, ringstate.MinCapacity, ringstate.MaxCapacity)
	}

	f, err := os.OpenFile(shmPath(name), os.O_CREATE|os.O_RDWR, 0666)
	if err != nil {
		return nil, fmt.Errorf("shmring: open %s: %w", name, err)
	}

	total := HeaderSize + extraBytes
	if err := unix.Ftruncate(int(f.Fd()), int64(total)); err != nil {
		f.Close()
		return nil, fmt.Errorf("shmring: ftruncate %s: %w", name, err)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, total, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("shmring: mmap %s: %w", name, err)
	}

	hdr := newHeader(data)
	hdr.initialize(capacity)

	return &Ring{Name: name, file: f, data: data, hdr: hdr}, nil
}

// Open maps an existing shared-memory segment without reinitializing it,
// sizing the mapping to the file's current length (matching the original
// source's fstat-then-mmap consumer path). Consumers call this after the
// producer has called Create.
func Open(name string) (*Ring, error) {
	f, err := os.OpenFile(shmPath(name), os.O_RDWR, 0666)
	if err != nil {
		return nil, fmt.Errorf("shmring: open %s: %w", name, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("shmring: stat %s: %w", name, err)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("shmring: mmap %s: %w", name, err)
	}

	return &Ring{Name: name, file: f, data: data, hdr: newHeader(data)}, nil
}

// Header exposes the Cursors implementation for use with ringstate's free
// functions. Callers must hold Lock/Unlock around any call into ringstate.
func (r *Ring) Header() *Header { return r.hdr }

// Extra returns the mapped bytes following the fixed-size header: the
// region fdring lays its fd/refcount slot array over.
func (r *Ring) Extra() []byte {
	if len(r.data) <= HeaderSize {
		return nil
	}
	return r.data[HeaderSize:]
}

func (r *Ring) Lock()   { r.hdr.Lock() }
func (r *Ring) Unlock() { r.hdr.Unlock() }

// Close unmaps the segment without removing the backing file, leaving it
// available for other processes still holding it open.
func (r *Ring) Close() error {
	if err := unix.Munmap(r.data); err != nil {
		return fmt.Errorf("shmring: munmap %s: %w", r.Name, err)
	}
	return r.file.Close()
}

// Destroy unmaps the segment and unlinks the backing file. Only the
// producer should call this, once all consumers are known to have exited.
func (r *Ring) Destroy() error {
	if err := r.Close(); err != nil {
		return err
	}
	if err := os.Remove(shmPath(r.Name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("shmring: remove %s: %w", r.Name, err)
	}
	return nil
}

// Package dmabuf is a thin, opaque pass-through to the dma-buf
// synchronization ioctl. fdzcq itself never interprets the fds it carries —
// this is here purely so a consumer holding a translated camera-buffer fd
// can bracket its CPU access the way the kernel's dma-buf documentation
// requires, exactly as the original source's msu_fdbuf_dmabuf_lock/unlock
// do.
package dmabuf

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// syncArg mirrors struct dma_buf_sync from linux/dma-buf.h. The kernel UAPI
// doesn't have a golang.org/x/sys/unix binding, so the ioctl number and
// flag bits are reproduced here verbatim from the header.
type syncArg struct {
	Flags uint64
}

const (
	dmaBufSyncRead  = 1 << 0
	dmaBufSyncWrite = 2 << 0
	dmaBufSyncRW    = dmaBufSyncRead | dmaBufSyncWrite
	dmaBufSyncStart = 0 << 2
	dmaBufSyncEnd   = 1 << 2

	// DMA_BUF_BASE = 'b', ioctl number 0, struct dma_buf_sync (8 bytes).
	dmaBufIoctlSync = 0x40086200
)

// Lock brackets the start of CPU access to a dma-buf fd, blocking until any
// outstanding GPU/device access completes.
func Lock(fd int) error {
	return sync(fd, dmaBufSyncRW|dmaBufSyncStart)
}

// Unlock brackets the end of CPU access, signaling the kernel the buffer
// is available for the device side again.
func Unlock(fd int) error {
	return sync(fd, dmaBufSyncRW|dmaBufSyncEnd)
}

func sync(fd int, flags uint64) error {
	arg := syncArg{Flags: flags}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(dmaBufIoctlSync), uintptr(unsafe.Pointer(&arg)))
	if errno != 0 {
		return fmt.Errorf("dmabuf: DMA_BUF_IOCTL_SYNC(fd=%d, flags=%#x): %w", fd, flags, errno)
	}
	return nil
}

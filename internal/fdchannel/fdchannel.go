// Package fdchannel is the Unix-domain-socket side channel that turns a
// shmring offset into a file descriptor valid in the asking consumer's own
// address space. fds are meaningless across a process boundary on their
// own; SCM_RIGHTS ancillary data is what actually hands the kernel
// reference across, and that can only travel over a local socket, never
// through the mmap'd cursor state itself.
//
// Wire protocol: the consumer writes one byte (the slot offset). The
// producer replies with one payload byte plus an SCM_RIGHTS control
// message carrying the translated fd.
package fdchannel

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/lowlatency/llq/internal/fdring"
	"github.com/lowlatency/llq/internal/metrics"
)

const respOK byte = 1

// FdSource is the read-only view of a producer's fd ring fdchannel needs:
// just enough to translate an offset into a locally-valid fd. Implemented
// by *fdring.Ring.
type FdSource interface {
	FdAt(offset uint8) int32
}

var _ FdSource = (*fdring.Ring)(nil)

// Listener is the producer side of the channel: it accepts consumer
// connections on a Unix socket and answers offset translation requests.
type Listener struct {
	path         string
	source       FdSource
	pollInterval time.Duration
	metrics      metrics.Recorder
	name         string

	ln   *net.UnixListener
	quit chan struct{}
}

// NewListener prepares a producer-side channel bound to path. The socket
// file is removed and recreated if one is already present, matching the
// teacher's general pattern of idempotent local-resource setup.
func NewListener(path string, source FdSource, pollInterval time.Duration, name string, rec metrics.Recorder) (*Listener, error) {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}

	addr, err := net.ResolveUnixAddr("unix", path)
	if err != nil {
		return nil, fmt.Errorf("fdchannel: resolve %s: %w", path, err)
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("fdchannel: remove stale socket %s: %w", path, err)
	}

	ln, err := net.ListenUnix("unix", addr)
	if err != nil {
		return nil, fmt.Errorf("fdchannel: listen %s: %w", path, err)
	}

	return &Listener{
		path:         path,
		source:       source,
		pollInterval: pollInterval,
		metrics:      rec,
		name:         name,
		ln:           ln,
		quit:         make(chan struct{}),
	}, nil
}

// Run drives the accept loop until ctx is done or Quit is called. It
// returns nil on a clean shutdown.
func (l *Listener) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-l.quit:
			return nil
		default:
		}

		l.ln.SetDeadline(time.Now().Add(l.pollInterval))
		conn, err := l.ln.AcceptUnix()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			select {
			case <-l.quit:
				return nil
			case <-ctx.Done():
				return nil
			default:
				log.Printf("fdchannel: accept on %s: %v", l.path, err)
				continue
			}
		}

		go l.serve(ctx, conn)
	}
}

func (l *Listener) serve(ctx context.Context, conn *net.UnixConn) {
	defer conn.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.quit:
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(l.pollInterval))
		req := make([]byte, 1)
		n, err := conn.Read(req)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			return // client disconnected or a real read error
		}
		if n != 1 {
			continue
		}

		offset := req[0]
		fd := l.source.FdAt(offset)

		rights := unix.UnixRights(int(fd))
		if _, _, err := conn.WriteMsgUnix([]byte{respOK}, rights, nil); err != nil {
			log.Printf("fdchannel: write response for offset %d: %v", offset, err)
			return
		}
	}
}

// Quit stops the accept loop and closes the listening socket. Already
// accepted connections finish their current request before noticing.
func (l *Listener) Quit() {
	close(l.quit)
	l.ln.Close()
}

// Client is the consumer side: it asks the producer to translate a slot
// offset into an fd valid in this process.
type Client struct {
	path    string
	timeout time.Duration
	metrics metrics.Recorder
	name    string

	conn *net.UnixConn
}

// NewClient connects to a producer's fdchannel socket at path. timeout
// bounds every GetFD round trip; the original source's documented target
// is ~100ms.
func NewClient(path string, timeout time.Duration, name string, rec metrics.Recorder) (*Client, error) {
	if timeout <= 0 {
		timeout = 100 * time.Millisecond
	}

	addr, err := net.ResolveUnixAddr("unix", path)
	if err != nil {
		return nil, fmt.Errorf("fdchannel: resolve %s: %w", path, err)
	}

	conn, err := net.DialUnix("unix", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("fdchannel: dial %s: %w", path, err)
	}

	return &Client{path: path, timeout: timeout, name: name, metrics: rec, conn: conn}, nil
}

// GetFD asks the producer to translate offset. On a clean round trip it
// returns the fd received over SCM_RIGHTS. On timeout it returns -1, nil —
// matching the original source's "OK status, translated_fd = -1" contract —
// so callers still owe the slot an Unref even when the translation itself
// didn't complete.
func (c *Client) GetFD(ctx context.Context, offset uint8) (int, error) {
	deadline := time.Now().Add(c.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	c.conn.SetDeadline(deadline)

	start := time.Now()
	if _, err := c.conn.Write([]byte{offset}); err != nil {
		if isTimeout(err) {
			c.observeTimeout()
			return -1, nil
		}
		return -1, fmt.Errorf("fdchannel: send offset %d: %w", offset, err)
	}

	buf := make([]byte, 1)
	oob := make([]byte, unix.CmsgSpace(4))
	_, oobn, _, _, err := c.conn.ReadMsgUnix(buf, oob)
	if err != nil {
		if isTimeout(err) {
			c.observeTimeout()
			return -1, nil
		}
		return -1, fmt.Errorf("fdchannel: recv for offset %d: %w", offset, err)
	}

	if c.metrics != nil {
		c.metrics.ObserveFdChannelRequest(c.name, time.Since(start).Seconds())
	}

	cmsgs, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return -1, fmt.Errorf("fdchannel: parse control message: %w", err)
	}
	if len(cmsgs) == 0 {
		return -1, fmt.Errorf("fdchannel: no control message in response for offset %d", offset)
	}

	fds, err := unix.ParseUnixRights(&cmsgs[0])
	if err != nil {
		return -1, fmt.Errorf("fdchannel: parse unix rights: %w", err)
	}
	if len(fds) == 0 {
		return -1, fmt.Errorf("fdchannel: empty fd set in response for offset %d", offset)
	}

	return fds[0], nil
}

func (c *Client) observeTimeout() {
	if c.metrics != nil {
		c.metrics.FdChannelTimeout(c.name)
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Close releases the client's connection to the producer.
func (c *Client) Close() error {
	return c.conn.Close()
}

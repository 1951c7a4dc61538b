// Command fdzcq-producer stands up the shared-memory side of a zero-copy
// queue and publishes memfd-backed frames into it, acting as the producer
// half of the cross-process demo (cmd/fdzcq-consumer is the other half).
// Real dma-buf handles would come from a camera or GPU driver; memfd is
// used here because it needs no special hardware to demonstrate the same
// fd-passing and refcount path.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sys/unix"

	"github.com/lowlatency/llq/internal/config"
	"github.com/lowlatency/llq/internal/fdchannel"
	"github.com/lowlatency/llq/internal/fdring"
	"github.com/lowlatency/llq/internal/metrics"
	"github.com/lowlatency/llq/internal/monitor"
	"github.com/lowlatency/llq/internal/shmring"
)

// newFrame creates an anonymous memfd carrying a small payload describing
// the frame, standing in for a real dma-buf handle.
func newFrame(seq int) (int, error) {
	fd, err := unix.MemfdCreate(fmt.Sprintf("fdzcq-frame-%d", seq), 0)
	if err != nil {
		return -1, fmt.Errorf("memfd_create: %w", err)
	}
	payload := []byte(fmt.Sprintf("frame %d at %s", seq, time.Now().Format(time.RFC3339Nano)))
	if _, err := unix.Write(fd, payload); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("write frame payload: %w", err)
	}
	return fd, nil
}

func main() {
	cfg := config.DefaultConfig()

	reg := prometheus.NewRegistry()
	rec := metrics.New(reg)

	shm, err := shmring.Create(cfg.Fdzcq.ShmName, cfg.Fdzcq.Capacity, fdring.ExtraBytes(cfg.Fdzcq.Capacity))
	if err != nil {
		log.Fatalf("fdzcq-producer: create shared ring: %v", err)
	}
	defer shm.Destroy()

	ring := fdring.NewProducer(cfg.Fdzcq.ShmName, shm, func(slot fdring.SlotRef) {
		if err := unix.Close(int(slot.Fd)); err != nil {
			log.Printf("fdzcq-producer: close released fd %d: %v", slot.Fd, err)
		}
	}, rec)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listener, err := fdchannel.NewListener(cfg.Fdzcq.SocketPath, ring, cfg.Fdzcq.ListenerPoll, cfg.Fdzcq.ShmName, rec)
	if err != nil {
		log.Fatalf("fdzcq-producer: start fd channel: %v", err)
	}
	defer listener.Quit()
	go func() {
		if err := listener.Run(ctx); err != nil {
			log.Printf("fdzcq-producer: fd channel: %v", err)
		}
	}()

	mon := monitor.New(cfg.Monitor, reg)
	mon.Register("fdzcq", ring)
	go func() {
		if err := mon.Listen(); err != nil {
			log.Printf("fdzcq-producer: monitor: %v", err)
		}
	}()
	defer mon.Shutdown()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(33 * time.Millisecond)
	defer ticker.Stop()

	log.Printf("fdzcq-producer: publishing on shm %q, fd channel %q", cfg.Fdzcq.ShmName, cfg.Fdzcq.SocketPath)

	seq := 0
	for {
		select {
		case <-sigCh:
			log.Println("fdzcq-producer: shutting down")
			return
		case <-ticker.C:
			fd, err := newFrame(seq)
			if err != nil {
				log.Printf("fdzcq-producer: new frame: %v", err)
				continue
			}
			if err := ring.Produce(int32(fd)); err != nil {
				log.Printf("fdzcq-producer: produce: %v", err)
				unix.Close(fd)
				continue
			}
			seq++
		}
	}
}

// Command fdzcq-consumer attaches to the shared ring created by
// cmd/fdzcq-producer, consumes slots, translates each producer-local fd
// into a local one over the fd channel, reads its payload, and releases
// its reference.
package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lowlatency/llq/internal/config"
	"github.com/lowlatency/llq/internal/fdchannel"
	"github.com/lowlatency/llq/internal/fdring"
	"github.com/lowlatency/llq/internal/ringstate"
	"github.com/lowlatency/llq/internal/shmring"
)

func main() {
	cfg := config.DefaultConfig()

	shm, err := shmring.Open(cfg.Fdzcq.ShmName)
	if err != nil {
		log.Fatalf("fdzcq-consumer: open shared ring %q: %v (is fdzcq-producer running?)", cfg.Fdzcq.ShmName, err)
	}
	defer shm.Close()

	ring := fdring.NewConsumer(cfg.Fdzcq.ShmName, shm, nil, nil)

	consumerID := ring.RegisterConsumer()
	if consumerID < 0 {
		log.Fatal("fdzcq-consumer: consumer registration table full")
	}
	defer ring.DeregisterConsumer(consumerID)

	client, err := fdchannel.NewClient(cfg.Fdzcq.SocketPath, cfg.Fdzcq.RequestTimeout, cfg.Fdzcq.ShmName, nil)
	if err != nil {
		log.Fatalf("fdzcq-consumer: dial fd channel: %v", err)
	}
	defer client.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-sigCh
		cancel()
	}()

	log.Printf("fdzcq-consumer: attached as consumer %d", consumerID)

	for {
		select {
		case <-ctx.Done():
			log.Println("fdzcq-consumer: shutting down")
			return
		default:
		}

		slot, status := ring.Consume(consumerID)
		switch status {
		case ringstate.StatusOK:
			if err := readFrame(ctx, client, slot); err != nil {
				log.Printf("fdzcq-consumer: read slot %d: %v", slot.Offset, err)
			}
			ring.Unref(slot.Offset)
		case ringstate.StatusNoBuf:
			time.Sleep(5 * time.Millisecond)
		default:
			log.Printf("fdzcq-consumer: consume status %s", status)
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func readFrame(ctx context.Context, client *fdchannel.Client, slot fdring.SlotRef) error {
	localFd, err := client.GetFD(ctx, slot.Offset)
	if err != nil {
		return err
	}
	if localFd < 0 {
		return nil // translation timed out, the slot may already be stale
	}

	f := os.NewFile(uintptr(localFd), "fdzcq-frame")
	defer f.Close()

	f.Seek(0, io.SeekStart)
	data, err := io.ReadAll(f)
	if err != nil {
		return err
	}

	log.Printf("fdzcq-consumer: slot %d: %s", slot.Offset, data)
	return nil
}

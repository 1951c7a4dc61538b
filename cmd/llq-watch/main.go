// Command llq-watch connects to a running monitor's /ws/stats feed and
// prints each ring's occupancy as it arrives.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/lowlatency/llq/internal/config"
	"github.com/lowlatency/llq/internal/monitor"
	"github.com/lowlatency/llq/internal/websocket"
)

type printer struct{}

func (printer) HandleSnapshot(snapshots []monitor.Snapshot) {
	for _, s := range snapshots {
		log.Printf("%-10s size=%d/%d consumers=%d", s.Queue, s.Size, s.Capacity, s.Consumers)
	}
}

func main() {
	cfg := config.DefaultConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := websocket.NewClient(ctx, &cfg.Watch, printer{})
	if err := client.Start(); err != nil {
		log.Fatalf("llq-watch: start: %v", err)
	}
	defer client.Stop()

	log.Printf("llq-watch: watching %s", cfg.Watch.URL)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("llq-watch: shutting down")
}

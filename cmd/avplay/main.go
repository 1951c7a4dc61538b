// Command avplay feeds a WAV file into an AVLLQ queue at real-time pace and
// plays it back through an output device, exercising the consume side of
// the queue the way a downstream renderer would.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-audio/wav"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lowlatency/llq/internal/audio"
	"github.com/lowlatency/llq/internal/avllq"
	"github.com/lowlatency/llq/internal/config"
	"github.com/lowlatency/llq/internal/metrics"
	"github.com/lowlatency/llq/internal/monitor"
	"github.com/lowlatency/llq/pkg/wavutil"
)

// feed decodes path's PCM samples and produces them into queue in
// cfg.ChunkSampleCount chunks, pacing itself to chunkDuration so the
// consumer sees roughly the same cadence a live capture would produce.
func feed(ctx context.Context, queue *avllq.Queue, cfg *config.AudioConfig, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return err
	}
	samples := buf.Data

	ticker := time.NewTicker(cfg.ChunkDuration)
	defer ticker.Stop()

	for offset := 0; offset < len(samples); offset += cfg.ChunkSampleCount {
		end := offset + cfg.ChunkSampleCount
		if end > len(samples) {
			end = len(samples)
		}

		chunk := make([]int16, end-offset)
		for i, s := range samples[offset:end] {
			chunk[i] = int16(s)
		}

		queue.Produce(wavutil.SamplesToBytes(chunk), audio.ItemTypePCM)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
	return nil
}

func main() {
	path := flag.String("file", "", "WAV file to play through the queue")
	flag.Parse()

	if *path == "" {
		log.Fatal("avplay: -file is required")
	}

	cfg := config.DefaultConfig()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	rec := metrics.New(reg)

	queue, err := avllq.New(cfg.Avllq.Capacity, cfg.Avllq.MaxItemSize)
	if err != nil {
		log.Fatalf("avplay: create queue: %v", err)
	}
	queue.WithMetrics("avplay", rec)

	mon := monitor.New(cfg.Monitor, reg)
	mon.Register("avplay", queue)
	go func() {
		if err := mon.Listen(); err != nil {
			log.Printf("avplay: monitor: %v", err)
		}
	}()
	defer mon.Shutdown()

	consumerID := queue.RegisterConsumer()
	if consumerID < 0 {
		log.Fatal("avplay: consumer registration table full")
	}
	defer queue.DeregisterConsumer(consumerID)

	player := audio.NewPlayer(ctx, &cfg.Audio, queue, consumerID, true)
	if err := player.Start(); err != nil {
		log.Fatalf("avplay: start player: %v", err)
	}
	defer player.Stop()

	go func() {
		if err := feed(ctx, queue, &cfg.Audio, *path); err != nil {
			log.Printf("avplay: feed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("avplay: shutting down")
}

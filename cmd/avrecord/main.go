// Command avrecord captures microphone audio into an AVLLQ queue and fans
// it out to several consumer goroutines, demonstrating the single-producer
// multiple-consumer "latest wins" behavior the in-process queue is built
// around. Capture is started and stopped by a control command, the way the
// teacher's chat client toggled recording.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lowlatency/llq/internal/audio"
	"github.com/lowlatency/llq/internal/avllq"
	"github.com/lowlatency/llq/internal/config"
	"github.com/lowlatency/llq/internal/control"
	"github.com/lowlatency/llq/internal/metrics"
	"github.com/lowlatency/llq/internal/monitor"
	"github.com/lowlatency/llq/internal/ringstate"
	"github.com/lowlatency/llq/pkg/wavutil"
)

type app struct {
	cfg      *config.Config
	queue    *avllq.Queue
	recorder *audio.Recorder

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (a *app) HandleCommand(cmd control.Command) {
	switch cmd {
	case control.CmdStartCapture:
		if a.recorder.IsRecording() {
			log.Println("avrecord: already capturing, ignoring start")
			return
		}
		if err := a.recorder.StartCapture(); err != nil {
			log.Printf("avrecord: start capture: %v", err)
		}
	case control.CmdStopCapture:
		if err := a.recorder.StopCapture(); err != nil {
			log.Printf("avrecord: stop capture: %v", err)
		}
	case control.CmdTestCapture:
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.runTestCapture(5 * time.Second)
		}()
	case control.CmdQuit:
		a.cancel()
	}
}

func (a *app) runTestCapture(duration time.Duration) {
	if a.recorder.IsRecording() {
		log.Println("avrecord: busy, cannot start test capture")
		return
	}
	if err := a.recorder.StartCapture(); err != nil {
		log.Printf("avrecord: test capture start: %v", err)
		return
	}
	log.Printf("avrecord: test capture running for %s", duration)
	time.Sleep(duration)
	if err := a.recorder.StopCapture(); err != nil {
		log.Printf("avrecord: test capture stop: %v", err)
	}
}

// runConsumer registers a consumer and logs a running digest of what it
// reads, standing in for a real downstream sink (an encoder, a network
// publisher). It demonstrates that every registered consumer sees the
// latest audio even if it occasionally falls behind and gets fast-forwarded.
func (a *app) runConsumer(name string) {
	defer a.wg.Done()

	id := a.queue.RegisterConsumer()
	if id < 0 {
		log.Printf("avrecord: consumer %s: registration table full", name)
		return
	}
	defer a.queue.DeregisterConsumer(id)

	var received, dropped int
	for {
		select {
		case <-a.ctx.Done():
			log.Printf("avrecord: consumer %s exiting (%d items, %d gaps)", name, received, dropped)
			return
		default:
		}

		item, status := a.queue.Consume(id)
		switch status {
		case ringstate.StatusOK:
			received++
			samples := wavutil.BytesToSamples(item.Data)
			stats := wavutil.CalculateStats(samples, 100)
			if received%50 == 0 {
				log.Printf("avrecord: consumer %s received %d items (RMS %.1f, peak %d)",
					name, received, stats.RMS, stats.Peak)
			}
		case ringstate.StatusNoBuf:
			time.Sleep(5 * time.Millisecond)
		default:
			dropped++
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func main() {
	consumers := flag.Int("consumers", 2, "number of demo fan-out consumers")
	useStdin := flag.Bool("stdin", false, "drive capture from stdin instead of the control file")
	flag.Parse()

	cfg := config.DefaultConfig()
	ctx, cancel := context.WithCancel(context.Background())

	reg := prometheus.NewRegistry()
	rec := metrics.New(reg)

	queue, err := avllq.New(cfg.Avllq.Capacity, cfg.Avllq.MaxItemSize)
	if err != nil {
		log.Fatalf("avrecord: create queue: %v", err)
	}
	queue.WithMetrics("avrecord", rec)

	a := &app{
		cfg:      cfg,
		queue:    queue,
		recorder: audio.NewRecorder(&cfg.Audio, queue, true),
		ctx:      ctx,
		cancel:   cancel,
	}

	if err := a.recorder.Initialize(); err != nil {
		log.Fatalf("avrecord: init recorder: %v", err)
	}
	defer a.recorder.Terminate()

	mon := monitor.New(cfg.Monitor, reg)
	mon.Register("avrecord", queue)
	go func() {
		if err := mon.Listen(); err != nil {
			log.Printf("avrecord: monitor: %v", err)
		}
	}()
	defer mon.Shutdown()

	for i := 0; i < *consumers; i++ {
		a.wg.Add(1)
		go a.runConsumer(fmt.Sprintf("c%d", i))
	}

	var stop func() error
	if *useStdin {
		sm := control.NewStdinMonitor(ctx, a)
		sm.Start()
		stop = sm.Stop
	} else {
		fm := control.NewFileMonitor(ctx, &cfg.Control, a)
		if err := fm.Start(); err != nil {
			log.Fatalf("avrecord: start control: %v", err)
		}
		stop = fm.Stop
		log.Printf("avrecord: write 1/2/3 to %s to start/stop/test capture", cfg.Control.FilePath)
	}
	defer stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("avrecord: received %v, shutting down", sig)
	case <-ctx.Done():
		log.Println("avrecord: shutdown requested")
	}

	cancel()
	a.recorder.StopCapture()
	a.wg.Wait()
}

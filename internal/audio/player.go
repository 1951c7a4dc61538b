package audio

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/lowlatency/llq/internal/avllq"
	"github.com/lowlatency/llq/internal/config"
	"github.com/lowlatency/llq/internal/ringstate"
	"github.com/lowlatency/llq/pkg/wavutil"
)

// Player consumes PCM items from an AVLLQ queue and renders them to an
// output device. A pcmStage stages consumed bytes between the consumer
// goroutine (producer side of the stage) and the PortAudio render callback
// (its single consumer), exactly the handoff the teacher's chat client used
// between its WebSocket reader and speaker callback.
type Player struct {
	config      *config.AudioConfig
	queue       *avllq.Queue
	consumerID  int32
	audioBuffer *pcmStage

	mutex     sync.RWMutex
	isPlaying bool
	stream    *portaudio.Stream

	ctx    context.Context
	cancel context.CancelFunc

	enableDebug bool
}

// NewPlayer creates a player that pulls items from queue as consumerID.
func NewPlayer(parentCtx context.Context, cfg *config.AudioConfig, queue *avllq.Queue, consumerID int32, enableDebug bool) *Player {
	ctx, cancel := context.WithCancel(parentCtx)
	bufSize := cfg.ChunkByteSize * 8
	return &Player{
		config:      cfg,
		queue:       queue,
		consumerID:  consumerID,
		audioBuffer: newPCMStage(bufSize),
		ctx:         ctx,
		cancel:      cancel,
		enableDebug: enableDebug,
	}
}

// Start opens the output stream and begins pulling items from the queue in
// the background.
func (p *Player) Start() error {
	stream, err := portaudio.OpenDefaultStream(0, p.config.Channels, float64(p.config.SampleRate), 0, p.onRender)
	if err != nil {
		return err
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return err
	}

	p.mutex.Lock()
	p.stream = stream
	p.isPlaying = true
	p.mutex.Unlock()

	go p.pullLoop()

	if p.enableDebug {
		log.Println("audio: playback started")
	}
	return nil
}

// Stop closes the output stream and stops pulling from the queue.
func (p *Player) Stop() error {
	p.cancel()

	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.isPlaying = false
	p.audioBuffer.close()

	if p.stream != nil {
		if err := p.stream.Abort(); err != nil {
			log.Printf("audio: abort output stream: %v", err)
		}
		if err := p.stream.Close(); err != nil {
			log.Printf("audio: close output stream: %v", err)
		}
		p.stream = nil
	}
	return nil
}

// IsPlaying reports whether the output stream is open.
func (p *Player) IsPlaying() bool {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return p.isPlaying
}

// pullLoop consumes items from the queue and stages their bytes into the
// ring buffer the render callback drains. A NoBuf status (nothing new to
// consume yet) just means waiting for the next item; this is the
// latest-wins queue's normal idle state, not an error.
func (p *Player) pullLoop() {
	for {
		select {
		case <-p.ctx.Done():
			return
		default:
		}

		item, status := p.queue.Consume(p.consumerID)
		switch status {
		case ringstate.StatusOK:
			written := p.audioBuffer.push(item.Data)
			if p.enableDebug && written < len(item.Data) {
				log.Printf("audio: playback buffer full, dropped %d bytes", len(item.Data)-written)
			}
		case ringstate.StatusNoBuf:
			time.Sleep(5 * time.Millisecond)
		default:
			log.Printf("audio: consume status %s", status)
			time.Sleep(5 * time.Millisecond)
		}
	}
}

// onRender is the PortAudio output callback: it drains the ring buffer
// into out, zero-filling any shortfall so silence plays instead of
// whatever stale samples happened to be in the device buffer.
func (p *Player) onRender(out []int16) {
	raw := make([]byte, len(out)*2)
	n := p.audioBuffer.pull(raw)

	samples := wavutil.BytesToSamples(raw[:n])
	copy(out, samples)
	for i := len(samples); i < len(out); i++ {
		out[i] = 0
	}
}

// Package audio wires a PortAudio input/output device to an AVLLQ queue:
// Recorder captures microphone input and produces fixed-duration chunks,
// Player consumes items from a queue and renders them to an output device.
// Adapted from the teacher's chat-client recorder/player, generalized away
// from the chat wire protocol onto avllq.Queue.
package audio

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/lowlatency/llq/internal/avllq"
	"github.com/lowlatency/llq/internal/config"
	"github.com/lowlatency/llq/internal/ringstate"
	"github.com/lowlatency/llq/pkg/wavutil"
)

// ItemTypePCM marks an avllq.Item as raw little-endian PCM samples at the
// recorder's configured format.
const ItemTypePCM = 1

// Recorder captures audio from an input device and produces fixed-size PCM
// chunks into a queue.
type Recorder struct {
	config *config.AudioConfig
	queue  *avllq.Queue

	targetDevice *portaudio.DeviceInfo
	paInit       bool

	mutex       sync.RWMutex
	isRecording bool
	stream      *portaudio.Stream

	streamingMutex sync.Mutex
	streamBuffer   []int16

	enableDebug bool
}

// NewRecorder creates a recorder that produces into queue.
func NewRecorder(cfg *config.AudioConfig, queue *avllq.Queue, enableDebug bool) *Recorder {
	return &Recorder{config: cfg, queue: queue, enableDebug: enableDebug}
}

// Initialize opens PortAudio and selects an input device.
func (r *Recorder) Initialize() error {
	if !r.paInit {
		if err := portaudio.Initialize(); err != nil {
			return fmt.Errorf("audio: portaudio init: %w", err)
		}
		r.paInit = true
	}

	if err := r.findDevice(); err != nil {
		portaudio.Terminate()
		r.paInit = false
		return err
	}
	return nil
}

// findDevice picks an input device, preferring PulseAudio/PipeWire and
// explicit microphone devices over generic captures, the same priority
// order the teacher's chat client used to avoid picking a monitor/loopback
// device by accident.
func (r *Recorder) findDevice() error {
	devices, err := portaudio.Devices()
	if err != nil {
		return fmt.Errorf("audio: list devices: %w", err)
	}

	var best *portaudio.DeviceInfo
	bestPriority := -1

	for _, dev := range devices {
		if dev.MaxInputChannels == 0 {
			continue
		}
		name := strings.ToLower(dev.Name)

		if strings.Contains(name, "monitor") || strings.Contains(name, "loopback") {
			continue
		}

		priority := 0
		switch {
		case strings.Contains(name, "pulse"):
			priority = 200
		case strings.Contains(name, "pipewire"):
			priority = 190
		case name == "default":
			priority = 150
		case strings.Contains(name, "mic") || strings.Contains(name, "microphone"):
			priority = 100
		default:
			priority = 10
		}

		if priority > bestPriority {
			bestPriority = priority
			best = dev
		}
	}

	if best == nil {
		def, err := portaudio.DefaultInputDevice()
		if err != nil {
			return fmt.Errorf("audio: no input device available: %w", err)
		}
		best = def
	}

	r.targetDevice = best
	if r.enableDebug {
		log.Printf("audio: selected input device %q (%d channels, %.0f Hz default)",
			best.Name, best.MaxInputChannels, best.DefaultSampleRate)
	}
	return nil
}

// Terminate closes any open stream and shuts down PortAudio.
func (r *Recorder) Terminate() error {
	r.mutex.Lock()
	if r.stream != nil {
		r.stream.Stop()
		r.stream.Close()
		r.stream = nil
	}
	r.mutex.Unlock()

	if r.paInit {
		err := portaudio.Terminate()
		r.paInit = false
		return err
	}
	return nil
}

// IsRecording reports whether a capture stream is currently open.
func (r *Recorder) IsRecording() bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.isRecording
}

// StartCapture opens the input stream and begins producing chunks into the
// queue from the PortAudio callback.
func (r *Recorder) StartCapture() error {
	if r.targetDevice == nil {
		return fmt.Errorf("audio: device not initialized")
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.isRecording {
		return nil
	}

	r.streamingMutex.Lock()
	r.streamBuffer = make([]int16, 0, r.config.ChunkSampleCount*2)
	r.streamingMutex.Unlock()

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   r.targetDevice,
			Channels: r.config.Channels,
			Latency:  r.targetDevice.DefaultLowInputLatency,
		},
		SampleRate:      float64(r.config.SampleRate),
		FramesPerBuffer: 1024,
	}

	stream, err := portaudio.OpenStream(params, r.onCapture)
	if err != nil {
		return fmt.Errorf("audio: open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("audio: start input stream: %w", err)
	}

	r.stream = stream
	r.isRecording = true
	if r.enableDebug {
		log.Printf("audio: capture started on %q at %d Hz", r.targetDevice.Name, r.config.SampleRate)
	}
	return nil
}

// StopCapture closes the input stream.
func (r *Recorder) StopCapture() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if !r.isRecording {
		return nil
	}
	r.isRecording = false

	if r.stream != nil {
		if err := r.stream.Stop(); err != nil {
			return err
		}
		if err := r.stream.Close(); err != nil {
			return err
		}
		r.stream = nil
	}
	return nil
}

// onCapture is the PortAudio input callback: it accumulates samples and
// produces one queue item per ChunkSampleCount samples, dropping chunks
// that are silent rather than spending ring capacity on them.
func (r *Recorder) onCapture(in []int16) {
	r.streamingMutex.Lock()
	defer r.streamingMutex.Unlock()

	r.streamBuffer = append(r.streamBuffer, in...)

	for len(r.streamBuffer) >= r.config.ChunkSampleCount {
		chunk := make([]int16, r.config.ChunkSampleCount)
		copy(chunk, r.streamBuffer[:r.config.ChunkSampleCount])
		r.streamBuffer = r.streamBuffer[r.config.ChunkSampleCount:]

		if wavutil.IsSilent(chunk, 200.0, 0.95) {
			continue
		}

		status := r.queue.Produce(wavutil.SamplesToBytes(chunk), ItemTypePCM)
		if r.enableDebug && status != ringstate.StatusOK {
			log.Printf("audio: produce status %s", status)
		}
	}
}

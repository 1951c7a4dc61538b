// Package config holds the typed configuration for every llq component,
// one struct per concern plus a single DefaultConfig constructor that
// fills in every field with a working value.
package config

import "time"

// Config bundles every component's configuration.
type Config struct {
	Audio   AudioConfig   `json:"audio"`
	Avllq   AvllqConfig   `json:"avllq"`
	Fdzcq   FdzcqConfig   `json:"fdzcq"`
	Monitor MonitorConfig `json:"monitor"`
	Watch   WatchConfig   `json:"watch"`
	Control ControlConfig `json:"control"`
	Gpio    GpioConfig    `json:"gpio"`
}

// AudioConfig describes the PCM stream cmd/avrecord captures and
// cmd/avplay renders through AVLLQ.
type AudioConfig struct {
	SampleRate       int           `json:"sampleRate"`
	Channels         int           `json:"channels"`
	BitDepth         int           `json:"bitDepth"`
	ChunkDuration    time.Duration `json:"chunkDuration"`
	ChunkSampleCount int           `json:"chunkSampleCount"`
	ChunkByteSize    int           `json:"chunkByteSize"`
}

// AvllqConfig configures an in-process queue instance.
type AvllqConfig struct {
	Capacity    uint8 `json:"capacity"`
	MaxItemSize int   `json:"maxItemSize"`
}

// FdzcqConfig configures a shared-memory fd ring, its side-channel socket,
// and the timeouts governing consumer translation requests. ShmName and
// SocketPath are promoted to configuration (rather than hard-coded) so
// independent queues can coexist on the same host.
type FdzcqConfig struct {
	ShmName        string        `json:"shmName"`
	SocketPath     string        `json:"socketPath"`
	Capacity       uint8         `json:"capacity"`
	RequestTimeout time.Duration `json:"requestTimeout"`
	ListenerPoll   time.Duration `json:"listenerPoll"`
}

// MonitorConfig configures the Fiber-based stats/health server.
type MonitorConfig struct {
	ListenAddr   string        `json:"listenAddr"`
	PollInterval time.Duration `json:"pollInterval"`
}

// WatchConfig configures cmd/llq-watch, the gorilla/websocket client that
// mirrors ring stats pushed by internal/monitor.
type WatchConfig struct {
	URL            string        `json:"url"`
	ReconnectDelay time.Duration `json:"reconnectDelay"`
	ReadTimeout    time.Duration `json:"readTimeout"`
}

// ControlConfig describes a polled control file: cmd/avrecord's FileMonitor
// polls it and cmd/llqctl's "control" subcommand writes commands into it,
// without a dedicated RPC surface.
type ControlConfig struct {
	FilePath     string        `json:"filePath"`
	MonitorDelay time.Duration `json:"monitorDelay"`
}

// GpioConfig describes a sysfs GPIO pin wired as a physical capture trigger.
type GpioConfig struct {
	PinNumber    int           `json:"pinNumber"`
	PollInterval time.Duration `json:"pollInterval"`
}

// DefaultConfig returns a config with the spec's reference values: a
// 4-slot AVLLQ (matching the original source's MSU_AVLLQ_MAX_CONSUMER data
// point), an 8-slot FDZCQ bound to /dev/shm/fdzcq and /tmp/fdzcq.sock, and
// a monitor listening on :9090.
func DefaultConfig() *Config {
	const (
		sampleRate    = 48000
		audioChannels = 2
		bitDepth      = 2
		chunkDuration = 20 * time.Millisecond
	)

	chunkSampleCount := int(sampleRate * chunkDuration / time.Second)
	chunkByteSize := chunkSampleCount * audioChannels * bitDepth

	return &Config{
		Audio: AudioConfig{
			SampleRate:       sampleRate,
			Channels:         audioChannels,
			BitDepth:         bitDepth,
			ChunkDuration:    chunkDuration,
			ChunkSampleCount: chunkSampleCount,
			ChunkByteSize:    chunkByteSize,
		},
		Avllq: AvllqConfig{
			Capacity:    4,
			MaxItemSize: chunkByteSize,
		},
		Fdzcq: FdzcqConfig{
			ShmName:        "fdzcq",
			SocketPath:     "/tmp/fdzcq.sock",
			Capacity:       8,
			RequestTimeout: 100 * time.Millisecond,
			ListenerPoll:   time.Second,
		},
		Monitor: MonitorConfig{
			ListenAddr:   ":9090",
			PollInterval: time.Second,
		},
		Watch: WatchConfig{
			URL:            "ws://localhost:9090/ws/stats",
			ReconnectDelay: 5 * time.Second,
			ReadTimeout:    60 * time.Second,
		},
		Control: ControlConfig{
			FilePath:     "/tmp/llq-control",
			MonitorDelay: 100 * time.Millisecond,
		},
		Gpio: GpioConfig{
			PinNumber:    17,
			PollInterval: 50 * time.Millisecond,
		},
	}
}

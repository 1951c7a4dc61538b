package config

import "testing"

func TestDefaultConfigDerivesChunkSizes(t *testing.T) {
	c := DefaultConfig()

	wantSamples := int(c.Audio.SampleRate) * int(c.Audio.ChunkDuration) / int(1e9)
	if c.Audio.ChunkSampleCount != wantSamples {
		t.Fatalf("ChunkSampleCount = %d, want %d", c.Audio.ChunkSampleCount, wantSamples)
	}

	wantBytes := c.Audio.ChunkSampleCount * c.Audio.Channels * c.Audio.BitDepth
	if c.Audio.ChunkByteSize != wantBytes {
		t.Fatalf("ChunkByteSize = %d, want %d", c.Audio.ChunkByteSize, wantBytes)
	}
}

func TestDefaultConfigFdzcqFields(t *testing.T) {
	c := DefaultConfig()

	if c.Fdzcq.ShmName == "" {
		t.Fatalf("expected a non-empty shm name")
	}
	if c.Fdzcq.SocketPath == "" {
		t.Fatalf("expected a non-empty socket path")
	}
	if c.Fdzcq.Capacity < 2 {
		t.Fatalf("expected a usable fdzcq capacity, got %d", c.Fdzcq.Capacity)
	}
}

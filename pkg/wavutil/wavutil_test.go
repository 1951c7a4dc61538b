package wavutil

import "testing"

func TestSamplesToBytesRoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 12345}
	got := BytesToSamples(SamplesToBytes(samples))

	if len(got) != len(samples) {
		t.Fatalf("len = %d, want %d", len(got), len(samples))
	}
	for i, s := range samples {
		if got[i] != s {
			t.Fatalf("sample %d = %d, want %d", i, got[i], s)
		}
	}
}

func TestGenerateWAVHeaderFields(t *testing.T) {
	h := GenerateWAVHeader(1000, 48000, 2, 2)

	if len(h) != 44 {
		t.Fatalf("header length = %d, want 44", len(h))
	}
	if string(h[0:4]) != "RIFF" || string(h[8:12]) != "WAVE" || string(h[36:40]) != "data" {
		t.Fatalf("header chunk ids malformed: %q", h)
	}
}

func TestConvertSamplesToWAVPrependsHeader(t *testing.T) {
	samples := []int16{1, 2, 3, 4}
	out := ConvertSamplesToWAV(samples, 48000, 1, 2)

	if len(out) != 44+len(samples)*2 {
		t.Fatalf("len = %d, want %d", len(out), 44+len(samples)*2)
	}
	if string(out[0:4]) != "RIFF" {
		t.Fatalf("missing RIFF chunk")
	}
}

func TestResampleAudioSameRateIsNoop(t *testing.T) {
	samples := []int16{1, 2, 3}
	out := ResampleAudio(samples, 48000, 48000)
	if len(out) != len(samples) {
		t.Fatalf("expected unchanged slice, got len %d", len(out))
	}
}

func TestResampleAudioDownsamplesShorter(t *testing.T) {
	samples := make([]int16, 480)
	for i := range samples {
		samples[i] = int16(i)
	}
	out := ResampleAudio(samples, 48000, 24000)
	if len(out) >= len(samples) {
		t.Fatalf("expected fewer samples after downsampling, got %d from %d", len(out), len(samples))
	}
}

func TestIsSilentDetectsZeroSignal(t *testing.T) {
	silence := make([]int16, 960)
	if !IsSilent(silence, 50, 0.9) {
		t.Fatalf("expected all-zero samples to be silent")
	}
}

func TestIsSilentDetectsLoudSignal(t *testing.T) {
	loud := make([]int16, 960)
	for i := range loud {
		if i%2 == 0 {
			loud[i] = 20000
		} else {
			loud[i] = -20000
		}
	}
	if IsSilent(loud, 50, 0.9) {
		t.Fatalf("expected a loud alternating signal not to be silent")
	}
}

func TestCalculateStatsPeakAndRatio(t *testing.T) {
	samples := []int16{0, 0, 100, -200, 0}
	stats := CalculateStats(samples, 10)

	if stats.Peak != 200 {
		t.Fatalf("Peak = %d, want 200", stats.Peak)
	}
	if stats.SilentSamples != 3 {
		t.Fatalf("SilentSamples = %d, want 3", stats.SilentSamples)
	}
	if stats.TotalSamples != len(samples) {
		t.Fatalf("TotalSamples = %d, want %d", stats.TotalSamples, len(samples))
	}
}

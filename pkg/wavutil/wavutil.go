// Package wavutil converts between int16 PCM sample slices and the raw
// []byte payloads avllq.Queue.Produce/Consume carries, plus a few signal
// stats used to decide whether a captured chunk is worth publishing at all.
package wavutil

import (
	"encoding/binary"
	"math"
)

// SamplesToBytes packs int16 samples into little-endian bytes, the layout
// AVLLQ items carry and GenerateWAVHeader expects to follow its header.
func SamplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// BytesToSamples unpacks little-endian bytes back into int16 samples. Odd
// trailing bytes are dropped.
func BytesToSamples(data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return out
}

// GenerateWAVHeader builds a 44-byte canonical PCM WAV header for dataSize
// bytes of audio at the given format.
func GenerateWAVHeader(dataSize, sampleRate, channels, bitDepth int) []byte {
	header := make([]byte, 44)

	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(dataSize+36))
	copy(header[8:12], "WAVE")

	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1)
	binary.LittleEndian.PutUint16(header[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))

	byteRate := sampleRate * channels * bitDepth
	binary.LittleEndian.PutUint32(header[28:32], uint32(byteRate))

	blockAlign := channels * bitDepth
	binary.LittleEndian.PutUint16(header[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:36], uint16(bitDepth*8))

	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(dataSize))

	return header
}

// ConvertSamplesToWAV prefixes samples with a matching WAV header, ready to
// write straight to a .wav file.
func ConvertSamplesToWAV(samples []int16, sampleRate, channels, bitDepth int) []byte {
	pcm := SamplesToBytes(samples)
	header := GenerateWAVHeader(len(pcm), sampleRate, channels, bitDepth)

	out := make([]byte, 0, len(header)+len(pcm))
	out = append(out, header...)
	out = append(out, pcm...)
	return out
}

// ResampleAudio linearly resamples from fromRate to toRate. Adequate for
// speech-grade audio, not intended for production mastering.
func ResampleAudio(input []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate || len(input) == 0 {
		return input
	}

	ratio := float64(fromRate) / float64(toRate)
	outLen := int(float64(len(input)) / ratio)
	out := make([]int16, outLen)

	for i := range out {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)

		if srcIdx >= len(input)-1 {
			out[i] = input[len(input)-1]
			continue
		}

		frac := srcPos - float64(srcIdx)
		a := float64(input[srcIdx])
		b := float64(input[srcIdx+1])
		out[i] = int16(a + (b-a)*frac)
	}

	return out
}

// Stats summarizes a chunk of samples.
type Stats struct {
	RMS           float64
	Peak          int16
	SilentSamples int
	TotalSamples  int
	SilenceRatio  float64
}

// RMS computes the root-mean-square value of samples.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// CalculateStats computes RMS, peak, and silence ratio for samples, using
// silenceThreshold as the per-sample cutoff below which a sample counts as
// silent.
func CalculateStats(samples []int16, silenceThreshold int16) Stats {
	stats := Stats{TotalSamples: len(samples)}
	if len(samples) == 0 {
		return stats
	}

	var sum float64
	var peak int16
	silent := 0

	for _, s := range samples {
		v := float64(s)
		sum += v * v

		abs := s
		if abs < 0 {
			abs = -abs
		}
		if abs > peak {
			peak = abs
		}
		if abs <= silenceThreshold {
			silent++
		}
	}

	stats.RMS = math.Sqrt(sum / float64(len(samples)))
	stats.Peak = peak
	stats.SilentSamples = silent
	stats.SilenceRatio = float64(silent) / float64(len(samples))
	return stats
}

// IsSilent reports whether samples should be treated as silence: either
// its overall RMS is below rmsThreshold, or enough individual samples are
// below half that threshold to exceed silenceRatioThreshold. Producers can
// use this to skip publishing silent chunks into AVLLQ entirely.
func IsSilent(samples []int16, rmsThreshold, silenceRatioThreshold float64) bool {
	if len(samples) == 0 {
		return true
	}
	if RMS(samples) < rmsThreshold {
		return true
	}
	silenceThreshold := int16(rmsThreshold * 0.5)
	return CalculateStats(samples, silenceThreshold).SilenceRatio > silenceRatioThreshold
}

package audio

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
)

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// Pipeline is the canonical format every chunk is normalized to before
// recognition: 16 kHz mono.
var Pipeline = Format{SampleRate: 16000, Channels: 1}

// Float32 converts little-endian signed 16-bit PCM to float32 samples
// normalised to the range [-1.0, 1.0]. Any trailing odd byte is silently
// ignored.
func Float32(pcm []byte) []float32 {
	n := len(pcm) / 2
	samples := make([]float32, n)
	for i := range n {
		sample := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		samples[i] = float32(sample) / 32768.0
	}
	return samples
}

// RMS returns the root-mean-square energy of normalised samples.
// The result is always >= 0; an empty input yields 0.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Level converts normalised samples to a display level in [0, 1]: the RMS
// energy expressed in decibels, clamped to [-60 dB, 0 dB] and rescaled.
// All-silent input yields exactly 0.0 without evaluating log10(0).
func Level(samples []float32) float64 {
	rms := RMS(samples)
	if rms == 0 {
		return 0.0
	}
	db := 20 * math.Log10(rms)
	if db < -60 {
		db = -60
	} else if db > 0 {
		db = 0
	}
	return (db + 60) / 60
}

// Normalizer converts incoming chunks to the [Pipeline] format. Devices may
// deliver stereo or non-16 kHz PCM; the recognition pipeline only ever sees
// normalized mono chunks. It logs a warning on the first mismatch and drops
// misaligned data. Create one per ingest stream; not designed for shared use
// across goroutines.
type Normalizer struct {
	// Source is the format the device declared at connect time.
	Source Format

	warnedMismatch sync.Once
	warnedCorrupt  sync.Once
}

// Normalize converts pcm from the declared source format to [Pipeline].
// If the source already matches, the input is returned unchanged (zero
// allocation). Misaligned data (odd byte counts for int16 PCM) yields nil.
func (n *Normalizer) Normalize(pcm []byte) []byte {
	if len(pcm)%2 != 0 {
		n.warnedCorrupt.Do(func() {
			slog.Warn("audio normalizer: odd byte count in PCM data, dropping chunk",
				"bytes", len(pcm),
				"source", formatString(n.Source.SampleRate, n.Source.Channels),
			)
		})
		return nil
	}

	// Fast path: source already matches the pipeline format.
	if n.Source.SampleRate == Pipeline.SampleRate && n.Source.Channels <= 1 {
		return pcm
	}

	n.warnedMismatch.Do(func() {
		slog.Warn("audio normalizer: converting source format",
			"from", formatString(n.Source.SampleRate, n.Source.Channels),
			"to", formatString(Pipeline.SampleRate, Pipeline.Channels),
		)
	})

	// Downmix first so resampling only ever handles mono data.
	if n.Source.Channels == 2 {
		pcm = StereoToMono(pcm)
	}
	if n.Source.SampleRate != Pipeline.SampleRate {
		pcm = ResampleMono16(pcm, n.Source.SampleRate, Pipeline.SampleRate)
	}
	return pcm
}

// StereoToMono averages L+R per stereo frame (4 bytes) to produce mono output.
// Uses int32 arithmetic to prevent overflow and clamps to int16 range.
func StereoToMono(pcm []byte) []byte {
	// Each stereo frame is 4 bytes (2 bytes L + 2 bytes R).
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		lSample := int32(int16(pcm[i*4]) | int16(pcm[i*4+1])<<8)
		rSample := int32(int16(pcm[i*4+2]) | int16(pcm[i*4+3])<<8)
		avg := (lSample + rSample) / 2

		// Clamp to int16 range.
		if avg > 32767 {
			avg = 32767
		} else if avg < -32768 {
			avg = -32768
		}

		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using linear
// interpolation. The input must be little-endian int16 samples. If srcRate ==
// dstRate, the input is returned unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 {
		return pcm
	}
	if srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := int16(pcm[srcIdx*2]) | int16(pcm[srcIdx*2+1])<<8
		var s1 int16
		if srcIdx+1 < srcSamples {
			s1 = int16(pcm[(srcIdx+1)*2]) | int16(pcm[(srcIdx+1)*2+1])<<8
		} else {
			s1 = s0
		}

		interpolated := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out[i*2] = byte(interpolated)
		out[i*2+1] = byte(interpolated >> 8)
	}
	return out
}

// formatString returns a human-readable string for a sample rate and channel
// count, e.g. "48000Hz stereo".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}

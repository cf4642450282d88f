package audio_test

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/MrWong99/voxprint/pkg/audio"
)

// samplesToBytes converts a slice of int16 samples to little-endian byte representation.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// bytesToSamples converts a little-endian byte slice to int16 samples.
func bytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

// sineWave produces n int16 samples of a freq Hz sine at the given amplitude
// (0..1) and sample rate.
func sineWave(n int, freq float64, amplitude float64, sampleRate int) []int16 {
	samples := make([]int16, n)
	for i := range samples {
		v := amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
		samples[i] = int16(v * 32767)
	}
	return samples
}

func TestFloat32(t *testing.T) {
	pcm := samplesToBytes([]int16{0, 16384, -16384, 32767, -32768})
	got := audio.Float32(pcm)
	want := []float32{0, 0.5, -0.5, 32767.0 / 32768.0, -1.0}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestFloat32_OddTrailingByte(t *testing.T) {
	pcm := []byte{0x64, 0x00, 0xFF} // one complete sample + junk byte
	got := audio.Float32(pcm)
	if len(got) != 1 {
		t.Fatalf("expected 1 sample for 3 input bytes, got %d", len(got))
	}
}

func TestLevel_Silence(t *testing.T) {
	// All-zero chunk must yield exactly 0.0 at any sample rate.
	samples := audio.Float32(samplesToBytes(make([]int16, 1024)))
	if got := audio.Level(samples); got != 0.0 {
		t.Errorf("Level(silence) = %v, want exactly 0.0", got)
	}
}

func TestLevel_SineWave(t *testing.T) {
	// 1 second of 440 Hz at amplitude 0.3, 16 kHz: level must be strictly
	// inside (0, 1).
	pcm := samplesToBytes(sineWave(16000, 440, 0.3, 16000))
	got := audio.Level(audio.Float32(pcm))
	if got <= 0.0 || got >= 1.0 {
		t.Errorf("Level(sine) = %v, want strictly between 0 and 1", got)
	}
}

func TestLevel_FullScale(t *testing.T) {
	// A constant full-scale signal has RMS 1.0 → 0 dB → level 1.0.
	samples := make([]float32, 256)
	for i := range samples {
		samples[i] = 1.0
	}
	if got := audio.Level(samples); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("Level(full scale) = %v, want 1.0", got)
	}
}

func TestLevel_ClampsVeryQuiet(t *testing.T) {
	// RMS below -60 dB clamps to level 0, not negative.
	samples := make([]float32, 256)
	for i := range samples {
		samples[i] = 1e-6
	}
	if got := audio.Level(samples); got != 0.0 {
		t.Errorf("Level(near silence) = %v, want 0.0 after clamping", got)
	}
}

func TestRMS_Empty(t *testing.T) {
	if got := audio.RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %v, want 0", got)
	}
}

func TestStereoToMono(t *testing.T) {
	// Two stereo frames: L=100,R=200 and L=-100,R=-200
	stereo := samplesToBytes([]int16{100, 200, -100, -200})
	mono := audio.StereoToMono(stereo)
	got := bytesToSamples(mono)
	want := []int16{150, -150}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestStereoToMono_Clamping(t *testing.T) {
	// Two max-positive samples should clamp to 32767 (not overflow).
	stereo := samplesToBytes([]int16{32767, 32767})
	mono := audio.StereoToMono(stereo)
	got := bytesToSamples(mono)
	if len(got) != 1 {
		t.Fatalf("length mismatch: got %d, want 1", len(got))
	}
	if got[0] != 32767 {
		t.Errorf("got %d, want 32767", got[0])
	}
}

func TestResampleMono16_SameRate(t *testing.T) {
	pcm := samplesToBytes([]int16{100, 200, 300})
	out := audio.ResampleMono16(pcm, 16000, 16000)
	if len(out) != len(pcm) {
		t.Fatalf("length mismatch: got %d, want %d", len(out), len(pcm))
	}
}

func TestResampleMono16_Downsample(t *testing.T) {
	// 6 samples at 48kHz → 2 samples at 16kHz (1/3x)
	pcm := samplesToBytes([]int16{100, 200, 300, 400, 500, 600})
	out := audio.ResampleMono16(pcm, 48000, 16000)
	got := bytesToSamples(out)
	if len(got) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(got))
	}
}

func TestResampleMono16_Upsample(t *testing.T) {
	// 2 samples at 16kHz → 6 samples at 48kHz (3x)
	pcm := samplesToBytes([]int16{1000, 2000})
	out := audio.ResampleMono16(pcm, 16000, 48000)
	got := bytesToSamples(out)
	if len(got) != 6 {
		t.Fatalf("expected 6 samples, got %d", len(got))
	}
	if got[0] != 1000 {
		t.Errorf("first sample: got %d, want 1000", got[0])
	}
	last := got[len(got)-1]
	if last < 1800 || last > 2200 {
		t.Errorf("last sample: got %d, want close to 2000", last)
	}
}

func TestResampleMono16_ZeroRate(t *testing.T) {
	pcm := samplesToBytes([]int16{100, 200})
	out := audio.ResampleMono16(pcm, 0, 16000)
	if len(out) != len(pcm) {
		t.Errorf("expected unchanged output for zero srcRate, got len %d", len(out))
	}
	out = audio.ResampleMono16(pcm, 16000, 0)
	if len(out) != len(pcm) {
		t.Errorf("expected unchanged output for zero dstRate, got len %d", len(out))
	}
}

func TestNormalizer_FastPath(t *testing.T) {
	n := audio.Normalizer{Source: audio.Pipeline}
	pcm := samplesToBytes([]int16{100, 200})
	out := n.Normalize(pcm)
	// Pointer equality proves the fast path returned the input slice.
	if &out[0] != &pcm[0] {
		t.Error("expected same slice (zero allocation) for matching format")
	}
}

func TestNormalizer_StereoDownmix(t *testing.T) {
	n := audio.Normalizer{Source: audio.Format{SampleRate: 16000, Channels: 2}}
	out := n.Normalize(samplesToBytes([]int16{100, 200, 300, 400}))
	got := bytesToSamples(out)
	want := []int16{150, 350}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestNormalizer_FullConversion(t *testing.T) {
	// 48 kHz stereo → 16 kHz mono: 6 stereo frames become 2 mono samples.
	n := audio.Normalizer{Source: audio.Format{SampleRate: 48000, Channels: 2}}
	out := n.Normalize(samplesToBytes(sineWave(12, 440, 0.5, 48000)))
	if len(out)%2 != 0 {
		t.Fatalf("expected aligned int16 output, got %d bytes", len(out))
	}
	if got := len(out) / 2; got != 2 {
		t.Errorf("expected 2 mono samples after 3x downsample, got %d", got)
	}
}

func TestNormalizer_OddByteCount(t *testing.T) {
	n := audio.Normalizer{Source: audio.Format{SampleRate: 48000, Channels: 1}}
	out := n.Normalize([]byte{1, 2, 3})
	if out != nil {
		t.Errorf("expected nil for odd byte count, got %d bytes", len(out))
	}
}

func TestChunk_SamplesAndDuration(t *testing.T) {
	c := audio.Chunk{Data: make([]byte, 3200), SampleRate: 16000}
	if got := c.Samples(); got != 1600 {
		t.Errorf("Samples() = %d, want 1600", got)
	}
	if got := c.Duration().Milliseconds(); got != 100 {
		t.Errorf("Duration() = %dms, want 100ms", got)
	}
}

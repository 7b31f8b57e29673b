package fingerprint

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sineWave(freq float64, seconds float64, amplitude float64) []float64 {
	n := int(seconds * SPEC_FREQ)
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = amplitude * math.Sin(2*math.Pi*freq*float64(i)/SPEC_FREQ)
	}
	return samples
}

func TestFingerprintDeterminism(t *testing.T) {
	samples := sineWave(440, 2, 16000)
	p := DefaultParams()

	first := Fingerprint(samples, p)
	second := Fingerprint(samples, p)

	require.NotEmpty(t, first)
	assert.Equal(t, first, second)
}

func TestFingerprintSilenceIsEmpty(t *testing.T) {
	silence := make([]float64, 3*SPEC_FREQ)
	hashes := Fingerprint(silence, DefaultParams())
	assert.Empty(t, hashes)
}

func TestFingerprintShortInputIsEmpty(t *testing.T) {
	// Less than one window: no frames, no peaks, no hashes.
	hashes := Fingerprint(sineWave(440, 0.01, 16000), DefaultParams())
	assert.Empty(t, hashes)
}

func TestHashBitLayout(t *testing.T) {
	p := DefaultParams()
	peaks := []Peak{
		{Freq: 1000, Time: 10},
		{Freq: 1200, Time: 30},
	}

	hashes := hashPeaks(peaks, p)
	require.Len(t, hashes, 1)

	h := hashes[0]
	assert.Equal(t, uint64(1000)<<32|uint64(1200)<<16|uint64(20), h.Sum)
	assert.Equal(t, uint32(10), h.Offset)

	assert.Equal(t, uint64(1000), h.Sum>>32)
	assert.Equal(t, uint64(1200), (h.Sum>>16)&0xFFFF)
	assert.Equal(t, uint64(20), h.Sum&0xFFFF)
	assert.Zero(t, h.Sum>>48)
}

func TestHashDeltaBounds(t *testing.T) {
	p := DefaultParams()

	// Delta above HASH_DELTA_MAX: no hash.
	far := []Peak{{Freq: 100, Time: 0}, {Freq: 200, Time: p.HashDeltaMax + 1}}
	assert.Empty(t, hashPeaks(far, p))

	// Delta exactly at the bounds: both included.
	edge := []Peak{
		{Freq: 100, Time: 0},
		{Freq: 200, Time: 0},               // delta = HASH_DELTA_MIN
		{Freq: 300, Time: p.HashDeltaMax}, // delta = HASH_DELTA_MAX
	}
	hashes := hashPeaks(edge, p)
	deltas := make([]uint64, 0, len(hashes))
	for _, h := range hashes {
		deltas = append(deltas, h.Sum&0xFFFF)
	}
	assert.Contains(t, deltas, uint64(p.HashDeltaMin))
	assert.Contains(t, deltas, uint64(p.HashDeltaMax))
	for _, d := range deltas {
		assert.GreaterOrEqual(t, d, uint64(p.HashDeltaMin))
		assert.LessOrEqual(t, d, uint64(p.HashDeltaMax))
	}
}

func TestHashFanOutLimit(t *testing.T) {
	p := DefaultParams()
	p.FanOut = 2

	peaks := []Peak{
		{Freq: 10, Time: 0},
		{Freq: 20, Time: 1},
		{Freq: 30, Time: 2},
		{Freq: 40, Time: 3},
	}

	hashes := hashPeaks(peaks, p)
	// Anchors pair with at most the next 2 peaks: 2 + 2 + 1 + 0.
	assert.Len(t, hashes, 5)

	for _, h := range hashes {
		anchor := h.Sum >> 32
		assert.NotEqual(t, uint64(40), anchor, "last peak can never be an anchor")
	}
}

func TestHashSetSemantics(t *testing.T) {
	p := DefaultParams()
	// Two identical peak pairs collapse into one hash.
	peaks := []Peak{
		{Freq: 100, Time: 5},
		{Freq: 200, Time: 15},
		{Freq: 100, Time: 5},
		{Freq: 200, Time: 15},
	}
	hashes := hashPeaks(peaks, p)

	unique := make(map[Hash]struct{}, len(hashes))
	for _, h := range hashes {
		unique[h] = struct{}{}
	}
	assert.Len(t, hashes, len(unique))
}

func TestPCMToFloat64(t *testing.T) {
	samples := PCMToFloat64([]int32{-32768, 0, 32767})
	assert.Equal(t, []float64{-32768, 0, 32767}, samples)
}

func TestHopSize(t *testing.T) {
	p := DefaultParams()
	assert.Equal(t, 2048, p.HopSize())

	p.Overlap = 0.75
	assert.Equal(t, 1024, p.HopSize())
}

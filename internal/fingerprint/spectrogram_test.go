package fingerprint

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flatSpec builds a numBins x numFrames spectrogram filled with floor.
func flatSpec(numBins, numFrames int, floor float64) [][]float64 {
	spec := make([][]float64, numBins)
	for f := range spec {
		spec[f] = make([]float64, numFrames)
		for t := range spec[f] {
			spec[f][t] = floor
		}
	}
	return spec
}

func TestSpectrogramShape(t *testing.T) {
	p := DefaultParams()

	// Exactly one window plus one hop: two frames.
	samples := make([]float64, p.WindowSize+p.HopSize())
	spec := Spectrogram(samples, p)

	require.Len(t, spec, p.WindowSize/2+1)
	for _, row := range spec {
		assert.Len(t, row, 2)
	}
}

func TestSpectrogramEmptyInput(t *testing.T) {
	p := DefaultParams()
	spec := Spectrogram(nil, p)

	require.Len(t, spec, p.WindowSize/2+1)
	for _, row := range spec {
		assert.Empty(t, row)
	}
}

func TestSpectrogramSineEnergyLandsInTheRightBin(t *testing.T) {
	p := DefaultParams()
	samples := sineWave(441, 1, 16000)
	spec := Spectrogram(samples, p)
	require.NotEmpty(t, spec[0])

	// 441 Hz at a 44100 Hz rate with 4096-point FFT: bin 441*4096/44100 ≈ 41.
	bestBin := 0
	bestVal := math.Inf(-1)
	for f := range spec {
		if spec[f][0] > bestVal {
			bestVal = spec[f][0]
			bestBin = f
		}
	}
	assert.InDelta(t, 41, bestBin, 1)
}

func TestSpectrogramSilenceHasNoFiniteEnergy(t *testing.T) {
	p := DefaultParams()
	spec := Spectrogram(make([]float64, p.WindowSize), p)
	for f := range spec {
		for _, v := range spec[f] {
			assert.True(t, math.IsInf(v, -1), "silent PSD should be -Inf dB")
		}
	}
}

func TestPickPeaksSingleMaximum(t *testing.T) {
	p := DefaultParams()
	spec := flatSpec(64, 40, -80)
	spec[30][20] = 25

	peaks := PickPeaks(spec, p)
	require.Len(t, peaks, 1)
	assert.Equal(t, Peak{Freq: 30, Time: 20}, peaks[0])
}

func TestPickPeaksAmplitudeFloor(t *testing.T) {
	p := DefaultParams()
	spec := flatSpec(64, 40, -80)
	// A local maximum below PEAK_MIN_AMP is not a peak.
	spec[30][20] = p.PeakMinAmp - 1

	assert.Empty(t, PickPeaks(spec, p))
}

func TestPickPeaksPlateauAdmitsAllTiedBins(t *testing.T) {
	p := DefaultParams()
	spec := flatSpec(64, 40, -80)
	spec[30][20] = 25
	spec[30][21] = 25

	peaks := PickPeaks(spec, p)
	require.Len(t, peaks, 2)
	assert.Contains(t, peaks, Peak{Freq: 30, Time: 20})
	assert.Contains(t, peaks, Peak{Freq: 30, Time: 21})
}

func TestPickPeaksNeighbourhoodSuppression(t *testing.T) {
	p := DefaultParams()
	spec := flatSpec(64, 40, -80)
	// Two maxima closer than the neighbourhood half-width: only the
	// larger one survives.
	spec[30][20] = 25
	spec[31][22] = 20

	peaks := PickPeaks(spec, p)
	require.Len(t, peaks, 1)
	assert.Equal(t, Peak{Freq: 30, Time: 20}, peaks[0])
}

func TestPickPeaksDistantMaximaBothSurvive(t *testing.T) {
	p := DefaultParams()
	spec := flatSpec(64, 60, -80)
	spec[10][10] = 25
	spec[50][50] = 20

	peaks := PickPeaks(spec, p)
	assert.Len(t, peaks, 2)
}

func TestPickPeaksScanOrder(t *testing.T) {
	p := DefaultParams()
	spec := flatSpec(64, 60, -80)
	spec[50][10] = 25
	spec[10][50] = 25

	peaks := PickPeaks(spec, p)
	require.Len(t, peaks, 2)
	assert.Equal(t, Peak{Freq: 50, Time: 10}, peaks[0])
	assert.Equal(t, Peak{Freq: 10, Time: 50}, peaks[1])
}

func TestSlidingMaxClampsAtBounds(t *testing.T) {
	values := []float64{1, 5, 2, 4, 3}
	out := slidingMax(values, 1)
	assert.Equal(t, []float64{5, 5, 5, 4, 4}, out)
}

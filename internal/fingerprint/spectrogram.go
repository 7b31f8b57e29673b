package fingerprint

import (
	"math"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

// Spectrogram computes a power spectral density spectrogram in
// decibels. Rows are frequency bins 0..WindowSize/2, columns are time
// frames; frames are Hann-windowed slices of the input taken every
// HopSize samples.
func Spectrogram(samples []float64, p Params) [][]float64 {
	numBins := p.WindowSize/2 + 1
	hop := p.HopSize()

	numFrames := 0
	if len(samples) >= p.WindowSize {
		numFrames = 1 + (len(samples)-p.WindowSize)/hop
	}

	spec := make([][]float64, numBins)
	for f := range spec {
		spec[f] = make([]float64, numFrames)
	}
	if numFrames == 0 {
		return spec
	}

	hann := window.Hann(p.WindowSize)
	frame := make([]float64, p.WindowSize)

	for t := 0; t < numFrames; t++ {
		start := t * hop
		for i := 0; i < p.WindowSize; i++ {
			frame[i] = samples[start+i] * hann[i]
		}

		spectrum := fft.FFTReal(frame)
		for f := 0; f < numBins; f++ {
			re := real(spectrum[f])
			im := imag(spectrum[f])
			// 10*log10(|X|^2); silence maps to -Inf, which can never
			// clear the amplitude floor.
			spec[f][t] = 10 * math.Log10(re*re+im*im)
		}
	}

	return spec
}

// PickPeaks returns the local maxima of the spectrogram. A bin is a
// peak iff it equals the maximum of the square neighbourhood reaching
// PeakWinSize/2 bins and frames on each side of it (side 11 for the
// default 10) and exceeds the PeakMinAmp floor. Plateaus
// tie under that definition and every tied bin is admitted, so the
// result is deterministic for a given spectrogram. Peaks are returned
// in (time, frequency) scan order.
func PickPeaks(spec [][]float64, p Params) []Peak {
	numBins := len(spec)
	if numBins == 0 {
		return nil
	}
	numFrames := len(spec[0])
	if numFrames == 0 {
		return nil
	}

	half := p.PeakWinSize / 2

	// Rectangular dilation is separable: a max filter along time
	// followed by one along frequency equals the full square window.
	timeMax := make([][]float64, numBins)
	for f := 0; f < numBins; f++ {
		timeMax[f] = slidingMax(spec[f], half)
	}

	column := make([]float64, numBins)
	colMax := make([][]float64, numFrames)
	for t := 0; t < numFrames; t++ {
		for f := 0; f < numBins; f++ {
			column[f] = timeMax[f][t]
		}
		colMax[t] = slidingMax(column, half)
	}

	var peaks []Peak
	for t := 0; t < numFrames; t++ {
		for f := 0; f < numBins; f++ {
			v := spec[f][t]
			if v > p.PeakMinAmp && v == colMax[t][f] {
				peaks = append(peaks, Peak{Freq: f, Time: t})
			}
		}
	}
	return peaks
}

// slidingMax computes, for every index i, the maximum of
// values[i-half .. i+half] clamped to the slice bounds.
func slidingMax(values []float64, half int) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		lo := i - half
		if lo < 0 {
			lo = 0
		}
		hi := i + half
		if hi >= len(values) {
			hi = len(values) - 1
		}
		max := math.Inf(-1)
		for j := lo; j <= hi; j++ {
			if values[j] > max {
				max = values[j]
			}
		}
		out[i] = max
	}
	return out
}

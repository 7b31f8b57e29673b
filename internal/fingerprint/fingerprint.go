package fingerprint

import "sort"

const (
	SPEC_WIN_SIZE  = 4096  // Size of the window used for the STFT (power of 2)
	SPEC_OVERLAP   = 0.5   // Overlap ratio between successive STFT windows
	SPEC_FREQ      = 44100 // Sample rate the whole pipeline is fixed to
	PEAK_WIN_SIZE  = 10    // Local-maximum neighbourhood spans PEAK_WIN_SIZE/2 on each side of a bin
	PEAK_MIN_AMP   = 10    // Minimum amplitude in dB for a bin to count as a peak
	FAN_VALUE      = 15    // Number of forward neighbours each anchor peak is paired with
	HASH_DELTA_MIN = 0     // Min frame delta between two peaks to emit a hash
	HASH_DELTA_MAX = 200   // Max frame delta between two peaks to emit a hash
)

// Params holds the tunables of the fingerprint pipeline. All of them
// are policy: two runs with equal Params over equal PCM produce equal
// hash sets.
type Params struct {
	WindowSize   int
	Overlap      float64
	SampleRate   int
	PeakWinSize  int
	PeakMinAmp   float64
	FanOut       int
	HashDeltaMin int
	HashDeltaMax int
}

// DefaultParams returns the reference parameter set.
func DefaultParams() Params {
	return Params{
		WindowSize:   SPEC_WIN_SIZE,
		Overlap:      SPEC_OVERLAP,
		SampleRate:   SPEC_FREQ,
		PeakWinSize:  PEAK_WIN_SIZE,
		PeakMinAmp:   PEAK_MIN_AMP,
		FanOut:       FAN_VALUE,
		HashDeltaMin: HASH_DELTA_MIN,
		HashDeltaMax: HASH_DELTA_MAX,
	}
}

// HopSize returns the STFT stride derived from window size and overlap.
func (p Params) HopSize() int {
	hop := int(float64(p.WindowSize) * (1 - p.Overlap))
	if hop < 1 {
		hop = 1
	}
	return hop
}

// Hash is a single fingerprint: a packed peak pair and the frame index
// of its anchor peak.
type Hash struct {
	Sum    uint64
	Offset uint32
}

// Peak is a local maximum in the time-frequency plane.
type Peak struct {
	Freq int // frequency bin index
	Time int // time frame index
}

// PCMToFloat64 widens raw integer PCM to the float64 samples the
// spectrogram stage consumes. Amplitudes are kept as-is: the dB floor
// in peak picking is calibrated against raw sample magnitudes.
func PCMToFloat64(samples []int32) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = float64(s)
	}
	return out
}

// Fingerprint runs the full pipeline over one channel of PCM and
// returns the resulting hash set, sorted for determinism. Duplicate
// (hash, offset) pairs within the channel are collapsed.
func Fingerprint(samples []float64, p Params) []Hash {
	return hashPeaks(PickPeaks(Spectrogram(samples, p), p), p)
}

// hashPeaks pairs every anchor peak with its next FanOut peaks in time
// order and packs each eligible pair into a 64-bit hash:
//
//	hash = f_anchor<<32 | f_target<<16 | delta
//
// All three fields are 16-bit quantities; the top 16 bits stay zero.
func hashPeaks(peaks []Peak, p Params) []Hash {
	// Peaks arrive in (time, freq) scan order from PickPeaks, but sort
	// anyway so callers can pass arbitrary peak sets.
	sort.Slice(peaks, func(i, j int) bool {
		if peaks[i].Time != peaks[j].Time {
			return peaks[i].Time < peaks[j].Time
		}
		return peaks[i].Freq < peaks[j].Freq
	})

	seen := make(map[Hash]struct{})
	for i, anchor := range peaks {
		for j := i + 1; j <= i+p.FanOut && j < len(peaks); j++ {
			target := peaks[j]

			delta := target.Time - anchor.Time
			if delta < p.HashDeltaMin || delta > p.HashDeltaMax {
				continue
			}

			h := Hash{
				Sum:    uint64(anchor.Freq)<<32 | uint64(target.Freq)<<16 | uint64(delta),
				Offset: uint32(anchor.Time),
			}
			seen[h] = struct{}{}
		}
	}

	hashes := make([]Hash, 0, len(seen))
	for h := range seen {
		hashes = append(hashes, h)
	}
	sort.Slice(hashes, func(i, j int) bool {
		if hashes[i].Offset != hashes[j].Offset {
			return hashes[i].Offset < hashes[j].Offset
		}
		return hashes[i].Sum < hashes[j].Sum
	})
	return hashes
}

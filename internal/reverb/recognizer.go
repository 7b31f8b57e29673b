package reverb

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/media-luna/reverb/internal/codec"
	"github.com/media-luna/reverb/internal/database"
	"github.com/media-luna/reverb/internal/fingerprint"
)

// Result is one recognized candidate.
type Result struct {
	AudioID                 string  `json:"audio_id"`
	AudioName               string  `json:"audio_name"`
	InputConfidence         float64 `json:"input_confidence"`
	FingerprintedConfidence float64 `json:"fingerprinted_confidence"`
}

// Recognition is the full response for one probe.
type Recognition struct {
	TotalTime       float64  `json:"total_time"`
	FingerprintTime float64  `json:"fingerprint_time"`
	QueryTime       float64  `json:"query_time"`
	AlignTime       float64  `json:"align_time"`
	Results         []Result `json:"results"`
}

// Recognize decodes a probe file and matches it against the index.
// Decode errors surface to the caller unchanged.
func (r *Reverb) Recognize(path string) (*Recognition, error) {
	record, err := codec.ReadFile(path, 0)
	if err != nil {
		return nil, err
	}
	return r.RecognizeChannels(record.Channels)
}

// RecognizeChannels matches pre-decoded PCM channels against the index.
// A probe that yields zero hashes returns an empty result list, not an
// error.
func (r *Reverb) RecognizeChannels(channels [][]int32) (*Recognition, error) {
	start := time.Now()

	var fingerprintTime float64
	seen := make(map[fingerprint.Hash]struct{})
	for _, channel := range channels {
		t := time.Now()
		channelHashes := fingerprint.Fingerprint(fingerprint.PCMToFloat64(channel), r.params)
		fingerprintTime += time.Since(t).Seconds()
		for _, h := range channelHashes {
			seen[h] = struct{}{}
		}
	}
	hashes := make([]fingerprint.Hash, 0, len(seen))
	for h := range seen {
		hashes = append(hashes, h)
	}

	recognition := &Recognition{
		FingerprintTime: fingerprintTime,
		Results:         []Result{},
	}
	if len(hashes) == 0 {
		recognition.TotalTime = time.Since(start).Seconds()
		return recognition, nil
	}

	t := time.Now()
	matches, counts, err := r.db.ReturnMatches(hashes, database.DefaultBatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to query index: %w", err)
	}
	recognition.QueryTime = time.Since(t).Seconds()

	t = time.Now()
	results, err := r.alignMatches(matches, counts, len(hashes))
	if err != nil {
		return nil, err
	}
	recognition.AlignTime = time.Since(t).Seconds()

	recognition.Results = results
	recognition.TotalTime = time.Since(start).Seconds()
	return recognition, nil
}

// alignMatches finds, per audio, the offset difference most of its hits
// agree on; audios are ranked by that winning vote count and the top N
// survive. Ties inside an audio resolve to the smallest offset
// difference, which makes the ranking deterministic.
func (r *Reverb) alignMatches(matches []database.Match, counts map[int]int, queriedHashes int) ([]Result, error) {
	if len(matches) == 0 {
		return []Result{}, nil
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].AudioID != matches[j].AudioID {
			return matches[i].AudioID < matches[j].AudioID
		}
		return matches[i].OffsetDiff < matches[j].OffsetDiff
	})

	type alignment struct {
		audioID    int
		offsetDiff int
		votes      int
	}

	var best []alignment
	current := alignment{audioID: matches[0].AudioID, offsetDiff: matches[0].OffsetDiff}
	groupDiff := matches[0].OffsetDiff
	groupVotes := 0

	flushGroup := func() {
		// Strictly-greater keeps the smallest offset diff on ties: the
		// scan visits diffs in ascending order.
		if groupVotes > current.votes {
			current.offsetDiff = groupDiff
			current.votes = groupVotes
		}
	}

	for _, m := range matches {
		if m.AudioID != current.audioID {
			flushGroup()
			best = append(best, current)
			current = alignment{audioID: m.AudioID, offsetDiff: m.OffsetDiff}
			groupDiff = m.OffsetDiff
			groupVotes = 0
		} else if m.OffsetDiff != groupDiff {
			flushGroup()
			groupDiff = m.OffsetDiff
			groupVotes = 0
		}
		groupVotes++
	}
	flushGroup()
	best = append(best, current)

	sort.Slice(best, func(i, j int) bool {
		if best[i].votes != best[j].votes {
			return best[i].votes > best[j].votes
		}
		return best[i].audioID < best[j].audioID
	})

	topN := r.cfg.Fingerprint.TopN
	if topN > len(best) {
		topN = len(best)
	}

	results := make([]Result, 0, topN)
	for _, a := range best[:topN] {
		audio, err := r.db.GetAudioByID(a.audioID)
		if err != nil {
			return nil, fmt.Errorf("failed to look up matched audio %d: %w", a.audioID, err)
		}

		matched := counts[a.audioID]
		results = append(results, Result{
			AudioID:                 strconv.Itoa(a.audioID),
			AudioName:               audio.Name,
			InputConfidence:         confidence(matched, queriedHashes),
			FingerprintedConfidence: confidence(matched, audio.TotalHashes),
		})
	}
	return results, nil
}

// confidence is a ratio rounded to 2 decimals and clamped into [0, 1].
func confidence(matched, total int) float64 {
	if total <= 0 {
		return 0
	}
	c := math.Round(float64(matched)/float64(total)*100) / 100
	if c > 1 {
		c = 1
	}
	if c < 0 {
		c = 0
	}
	return c
}

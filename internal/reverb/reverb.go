package reverb

import (
	"fmt"
	"sort"

	"github.com/media-luna/reverb/configs"
	"github.com/media-luna/reverb/internal/database"
	"github.com/media-luna/reverb/internal/fingerprint"
)

// Reverb ties the decoder, the fingerprinter and the index store into
// the ingestion and recognition workflows.
type Reverb struct {
	cfg    configs.Config
	db     database.IndexStore
	params fingerprint.Params
}

// NewReverb connects to the configured index store.
func NewReverb(cfg configs.Config) (*Reverb, error) {
	db, err := database.New(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize index store: %w", err)
	}
	return newWithStore(cfg, db), nil
}

// newWithStore is the injection point used by tests.
func newWithStore(cfg configs.Config, db database.IndexStore) *Reverb {
	return &Reverb{cfg: cfg, db: db, params: paramsFromConfig(cfg.Fingerprint)}
}

func paramsFromConfig(fc configs.FingerprintConfig) fingerprint.Params {
	return fingerprint.Params{
		WindowSize:   fc.SpecWinSize,
		Overlap:      fc.SpecOverlap,
		SampleRate:   fc.SpecFreq,
		PeakWinSize:  fc.PeakWinSize,
		PeakMinAmp:   fc.PeakMinAmp,
		FanOut:       fc.NNeighbours,
		HashDeltaMin: fc.HashDeltaMin,
		HashDeltaMax: fc.HashDeltaMax,
	}
}

// Close releases the index store connection pool.
func (r *Reverb) Close() error {
	return r.db.Close()
}

// Setup ensures the index schema exists.
func (r *Reverb) Setup() error {
	return r.db.Setup()
}

// Empty drops and recreates the whole index.
func (r *Reverb) Empty() error {
	return r.db.Empty()
}

// List returns all fully fingerprinted audios.
func (r *Reverb) List() ([]database.Audio, error) {
	return r.db.GetAudios()
}

// Count returns the number of fully fingerprinted audios.
func (r *Reverb) Count() (int, error) {
	return r.db.GetNumAudios()
}

// CountFingerprints returns the number of stored fingerprint rows.
func (r *Reverb) CountFingerprints() (int64, error) {
	return r.db.GetNumFingerprints()
}

// Delete removes audios by id; their fingerprints cascade.
func (r *Reverb) Delete(audioIDs ...int) error {
	return r.db.DeleteAudiosByID(audioIDs, database.DefaultBatchSize)
}

// unionFingerprints fingerprints every channel and unions the results.
// The union collapses duplicates across channels; confidences depend on
// this being a true set.
func unionFingerprints(channels [][]int32, p fingerprint.Params) []fingerprint.Hash {
	seen := make(map[fingerprint.Hash]struct{})
	for _, channel := range channels {
		for _, h := range fingerprint.Fingerprint(fingerprint.PCMToFloat64(channel), p) {
			seen[h] = struct{}{}
		}
	}

	hashes := make([]fingerprint.Hash, 0, len(seen))
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

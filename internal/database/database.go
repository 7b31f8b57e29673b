package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/media-luna/reverb/configs"
	"github.com/media-luna/reverb/internal/fingerprint"
)

// DefaultBatchSize bounds the row count of a single bulk insert (three
// parameters per row) and the parameter count of a single IN (...)
// clause. Chunking is a correctness constraint: backends have hard
// parameter limits.
const DefaultBatchSize = 1000

// ErrNotFound is returned when an audio id has no catalogue row.
var ErrNotFound = errors.New("audio not found")

// Audio is one catalogue entry. SHA1 is upper hex.
type Audio struct {
	ID            int
	Name          string
	SHA1          string
	TotalHashes   int
	Fingerprinted bool
	DateCreated   time.Time
	DateModified  time.Time
}

// Match is one alignment vote: a stored fingerprint hit together with
// the difference between its stored offset and the probe offset.
type Match struct {
	AudioID    int
	OffsetDiff int
}

// IndexStore is the persistent hash index and audio catalogue.
type IndexStore interface {
	// Setup ensures the schema exists. Idempotent.
	Setup() error
	// Empty drops and recreates all tables.
	Empty() error
	Close() error

	// InsertAudio registers a new audio with fingerprinted=0 and
	// returns its id.
	InsertAudio(name, sha1Hex string, totalHashes int) (int, error)
	// InsertHashes bulk-inserts fingerprints in batches of batchSize,
	// ignoring duplicate rows.
	InsertHashes(audioID int, hashes []fingerprint.Hash, batchSize int) error
	// SetAudioFingerprinted marks an audio complete and bumps its
	// modification timestamp.
	SetAudioFingerprinted(audioID int) error
	// DeleteUnfingerprinted removes crash residue: audios whose
	// ingestion never committed. Fingerprints cascade.
	DeleteUnfingerprinted() error

	// GetAudios returns all fully fingerprinted audios.
	GetAudios() ([]Audio, error)
	// GetAudioByID returns one catalogue row or ErrNotFound.
	GetAudioByID(audioID int) (Audio, error)
	// GetNumAudios counts fully fingerprinted audios.
	GetNumAudios() (int, error)
	// GetNumFingerprints counts stored fingerprint rows.
	GetNumFingerprints() (int64, error)

	// ReturnMatches looks up every probe hash and returns one Match per
	// (stored row, probe offset) combination plus, per audio, the
	// number of stored rows hit.
	ReturnMatches(hashes []fingerprint.Hash, batchSize int) ([]Match, map[int]int, error)
	// DeleteAudiosByID removes audios in batches; fingerprints cascade.
	DeleteAudiosByID(audioIDs []int, batchSize int) error
}

// New builds the IndexStore backend selected by the configuration.
func New(cfg configs.DatabaseConfig) (IndexStore, error) {
	switch cfg.Driver {
	case "postgres":
		return NewPostgres(cfg)
	case "mysql":
		return NewMySQL(cfg)
	case "sqlite":
		return NewSQLite(cfg)
	default:
		return nil, fmt.Errorf("unsupported database driver: %q", cfg.Driver)
	}
}

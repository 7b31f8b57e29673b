package database

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/media-luna/reverb/internal/fingerprint"
)

type placeholderStyle int

const (
	questionMarks placeholderStyle = iota // ?, ?, ?
	dollarNumbers                         // $1, $2, $3
)

// dialect carries one backend's SQL. Queries are constants filled in by
// the backend constructors, not strings built per call; only IN lists
// and multi-row VALUES expand placeholders at runtime.
type dialect struct {
	style       placeholderStyle
	returningID bool // insertAudio yields the id via RETURNING, not LastInsertId

	setup []string
	drop  []string

	insertAudio           string // (name, sha1_hex, total_hashes)
	insertHashes          string // %s -> multi-row (audio_id, hash, offset) placeholders
	updateFingerprinted   string
	deleteUnfingerprinted string
	selectAudios          string
	selectAudio           string
	countAudios           string
	countFingerprints     string
	selectMultiple        string // %s -> IN list of hashes
	deleteAudios          string // %s -> IN list of audio ids
}

// store implements IndexStore over database/sql for every backend. The
// *sql.DB pool is owned by the store value and shared by all callers.
type store struct {
	db *sql.DB
	d  dialect
}

func (s *store) Setup() error {
	for _, stmt := range s.d.setup {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

func (s *store) Empty() error {
	for _, stmt := range s.d.drop {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to drop tables: %w", err)
		}
	}
	return s.Setup()
}

func (s *store) Close() error {
	return s.db.Close()
}

func (s *store) InsertAudio(name, sha1Hex string, totalHashes int) (int, error) {
	if s.d.returningID {
		var id int
		err := s.db.QueryRow(s.d.insertAudio, name, sha1Hex, totalHashes).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("failed to insert audio %q: %w", name, err)
		}
		return id, nil
	}

	res, err := s.db.Exec(s.d.insertAudio, name, sha1Hex, totalHashes)
	if err != nil {
		return 0, fmt.Errorf("failed to insert audio %q: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read inserted audio id: %w", err)
	}
	return int(id), nil
}

func (s *store) InsertHashes(audioID int, hashes []fingerprint.Hash, batchSize int) error {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	for start := 0; start < len(hashes); start += batchSize {
		end := start + batchSize
		if end > len(hashes) {
			end = len(hashes)
		}
		chunk := hashes[start:end]

		args := make([]any, 0, len(chunk)*3)
		for _, h := range chunk {
			args = append(args, audioID, int64(h.Sum), int(h.Offset))
		}

		query := fmt.Sprintf(s.d.insertHashes, s.rowPlaceholders(len(chunk), 3))
		if _, err := s.db.Exec(query, args...); err != nil {
			return fmt.Errorf("failed to insert hash batch for audio %d: %w", audioID, err)
		}
	}
	return nil
}

func (s *store) SetAudioFingerprinted(audioID int) error {
	if _, err := s.db.Exec(s.d.updateFingerprinted, audioID); err != nil {
		return fmt.Errorf("failed to mark audio %d fingerprinted: %w", audioID, err)
	}
	return nil
}

func (s *store) DeleteUnfingerprinted() error {
	if _, err := s.db.Exec(s.d.deleteUnfingerprinted); err != nil {
		return fmt.Errorf("failed to delete unfingerprinted audios: %w", err)
	}
	return nil
}

func (s *store) GetAudios() ([]Audio, error) {
	rows, err := s.db.Query(s.d.selectAudios)
	if err != nil {
		return nil, fmt.Errorf("failed to list audios: %w", err)
	}
	defer rows.Close()

	var audios []Audio
	for rows.Next() {
		audio, err := scanAudio(rows)
		if err != nil {
			return nil, err
		}
		audios = append(audios, audio)
	}
	return audios, rows.Err()
}

func (s *store) GetAudioByID(audioID int) (Audio, error) {
	rows, err := s.db.Query(s.d.selectAudio, audioID)
	if err != nil {
		return Audio{}, fmt.Errorf("failed to query audio %d: %w", audioID, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return Audio{}, err
		}
		return Audio{}, fmt.Errorf("audio %d: %w", audioID, ErrNotFound)
	}
	return scanAudio(rows)
}

func (s *store) GetNumAudios() (int, error) {
	var count int
	if err := s.db.QueryRow(s.d.countAudios).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count audios: %w", err)
	}
	return count, nil
}

func (s *store) GetNumFingerprints() (int64, error) {
	var count int64
	if err := s.db.QueryRow(s.d.countFingerprints).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count fingerprints: %w", err)
	}
	return count, nil
}

func (s *store) ReturnMatches(hashes []fingerprint.Hash, batchSize int) ([]Match, map[int]int, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	// Multimap of probe hash -> probe offsets. A probe can contain the
	// same hash at several offsets; every stored hit votes once per
	// probe offset, while dedupCounts counts stored rows only.
	mapper := make(map[uint64][]uint32, len(hashes))
	for _, h := range hashes {
		mapper[h.Sum] = append(mapper[h.Sum], h.Offset)
	}

	keys := make([]uint64, 0, len(mapper))
	for k := range mapper {
		keys = append(keys, k)
	}

	var matches []Match
	dedupCounts := make(map[int]int)

	for start := 0; start < len(keys); start += batchSize {
		end := start + batchSize
		if end > len(keys) {
			end = len(keys)
		}
		chunk := keys[start:end]

		args := make([]any, len(chunk))
		for i, k := range chunk {
			args[i] = int64(k)
		}

		query := fmt.Sprintf(s.d.selectMultiple, s.placeholders(len(chunk)))
		rows, err := s.db.Query(query, args...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to query hash batch: %w", err)
		}

		for rows.Next() {
			var (
				hash     int64
				audioID  int
				dbOffset int
			)
			if err := rows.Scan(&hash, &audioID, &dbOffset); err != nil {
				rows.Close()
				return nil, nil, fmt.Errorf("failed to scan fingerprint match: %w", err)
			}
			dedupCounts[audioID]++
			for _, probeOffset := range mapper[uint64(hash)] {
				matches = append(matches, Match{AudioID: audioID, OffsetDiff: dbOffset - int(probeOffset)})
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, nil, fmt.Errorf("failed to read hash batch: %w", err)
		}
		rows.Close()
	}

	return matches, dedupCounts, nil
}

func (s *store) DeleteAudiosByID(audioIDs []int, batchSize int) error {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	for start := 0; start < len(audioIDs); start += batchSize {
		end := start + batchSize
		if end > len(audioIDs) {
			end = len(audioIDs)
		}
		chunk := audioIDs[start:end]

		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}

		query := fmt.Sprintf(s.d.deleteAudios, s.placeholders(len(chunk)))
		if _, err := s.db.Exec(query, args...); err != nil {
			return fmt.Errorf("failed to delete audio batch: %w", err)
		}
	}
	return nil
}

// placeholders renders a flat parameter list: "?, ?, ?" or "$1, $2, $3".
func (s *store) placeholders(n int) string {
	return s.placeholdersFrom(1, n)
}

func (s *store) placeholdersFrom(first, n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		if s.d.style == dollarNumbers {
			fmt.Fprintf(&b, "$%d", first+i)
		} else {
			b.WriteByte('?')
		}
	}
	return b.String()
}

// rowPlaceholders renders multi-row VALUES placeholders:
// "(?, ?, ?), (?, ?, ?)" or "($1, $2, $3), ($4, $5, $6)".
func (s *store) rowPlaceholders(rows, cols int) string {
	var b strings.Builder
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		b.WriteString(s.placeholdersFrom(r*cols+1, cols))
		b.WriteByte(')')
	}
	return b.String()
}

func scanAudio(rows *sql.Rows) (Audio, error) {
	var (
		audio         Audio
		sha1          sql.NullString
		fingerprinted int
	)
	err := rows.Scan(&audio.ID, &audio.Name, &sha1, &audio.TotalHashes,
		&fingerprinted, &audio.DateCreated, &audio.DateModified)
	if err != nil {
		return Audio{}, fmt.Errorf("failed to scan audio row: %w", err)
	}
	audio.SHA1 = strings.ToUpper(sha1.String)
	audio.Fingerprinted = fingerprinted == 1
	return audio, nil
}

package database

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/media-luna/reverb/configs"
)

// The embedded backend. It keeps the SHA-1 as upper hex text instead of
// a byte column, indexes fingerprints.hash with an ordinary index and has
// no unique index on file_sha1; the tables and queries otherwise mirror
// the server backends.
const (
	liteCreateAudios = `
		CREATE TABLE IF NOT EXISTS audios (
			audio_id      INTEGER PRIMARY KEY AUTOINCREMENT
		,	audio_name    TEXT NOT NULL
		,	fingerprinted INTEGER DEFAULT 0
		,	file_sha1     TEXT
		,	total_hashes  INTEGER NOT NULL DEFAULT 0
		,	dt_created    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		,	dt_modified   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`

	liteCreateFingerprints = `
		CREATE TABLE IF NOT EXISTS fingerprints (
			hash     INTEGER NOT NULL
		,	audio_id INTEGER NOT NULL REFERENCES audios (audio_id) ON DELETE CASCADE
		,	"offset" INTEGER NOT NULL
		);`

	liteCreateFingerprintsHashIndex = `
		CREATE INDEX IF NOT EXISTS ix_fingerprints_hash ON fingerprints (hash);`

	liteCreateFingerprintsUnique = `
		CREATE UNIQUE INDEX IF NOT EXISTS uq_fingerprints
		ON fingerprints (hash, audio_id, "offset");`

	liteDropFingerprints = `DROP TABLE IF EXISTS fingerprints;`
	liteDropAudios       = `DROP TABLE IF EXISTS audios;`

	liteInsertAudio = `
		INSERT INTO audios (audio_name, file_sha1, total_hashes)
		VALUES (?, upper(?), ?);`

	liteInsertHashes = `
		INSERT OR IGNORE INTO fingerprints (audio_id, hash, "offset")
		VALUES %s;`

	liteUpdateFingerprinted = `
		UPDATE audios SET fingerprinted = 1, dt_modified = CURRENT_TIMESTAMP
		WHERE audio_id = ?;`

	liteDeleteUnfingerprinted = `DELETE FROM audios WHERE fingerprinted = 0;`

	liteSelectAudios = `
		SELECT audio_id, audio_name, file_sha1,
		       total_hashes, fingerprinted, dt_created, dt_modified
		FROM audios WHERE fingerprinted = 1;`

	liteSelectAudio = `
		SELECT audio_id, audio_name, file_sha1,
		       total_hashes, fingerprinted, dt_created, dt_modified
		FROM audios WHERE audio_id = ?;`

	liteCountAudios       = `SELECT COUNT(*) FROM audios WHERE fingerprinted = 1;`
	liteCountFingerprints = `SELECT COUNT(*) FROM fingerprints;`

	liteSelectMultiple = `
		SELECT hash, audio_id, "offset" FROM fingerprints
		WHERE hash IN (%s);`

	liteDeleteAudios = `DELETE FROM audios WHERE audio_id IN (%s);`
)

// NewSQLite opens an embedded store at cfg.Path (":memory:" works).
// Foreign keys are off by default in SQLite; the DSN turns them on so
// deletes cascade like the server backends.
func NewSQLite(cfg configs.DatabaseConfig) (IndexStore, error) {
	path := cfg.Path
	if path == "" {
		path = cfg.Name
	}
	if path == "" {
		return nil, fmt.Errorf("sqlite driver needs database.path")
	}

	dsn := "file:" + path + "?_foreign_keys=on"
	if path == ":memory:" {
		// Every pool connection would otherwise get its own private
		// in-memory database.
		dsn = "file::memory:?_foreign_keys=on&cache=shared"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", path, err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", path, err)
	}

	return &store{
		db: db,
		d: dialect{
			style: questionMarks,
			setup: []string{
				liteCreateAudios,
				liteCreateFingerprints,
				liteCreateFingerprintsHashIndex,
				liteCreateFingerprintsUnique,
			},
			drop:                  []string{liteDropFingerprints, liteDropAudios},
			insertAudio:           liteInsertAudio,
			insertHashes:          liteInsertHashes,
			updateFingerprinted:   liteUpdateFingerprinted,
			deleteUnfingerprinted: liteDeleteUnfingerprinted,
			selectAudios:          liteSelectAudios,
			selectAudio:           liteSelectAudio,
			countAudios:           liteCountAudios,
			countFingerprints:     liteCountFingerprints,
			selectMultiple:        liteSelectMultiple,
			deleteAudios:          liteDeleteAudios,
		},
	}, nil
}

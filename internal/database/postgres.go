package database

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/media-luna/reverb/configs"
)

// Postgres schema. The fingerprints.hash index is a hash-method index:
// lookups are equality-only, a B-tree buys nothing. The partial unique
// index enforces SHA-1 uniqueness among committed audios while still
// allowing an in-flight re-ingestion of a crashed row.
const (
	pgCreateAudios = `
		CREATE TABLE IF NOT EXISTS audios (
			audio_id      SERIAL PRIMARY KEY
		,	audio_name    VARCHAR(250) NOT NULL
		,	fingerprinted SMALLINT DEFAULT 0
		,	file_sha1     BYTEA
		,	total_hashes  INT NOT NULL DEFAULT 0
		,	dt_created    TIMESTAMP NOT NULL DEFAULT now()
		,	dt_modified   TIMESTAMP NOT NULL DEFAULT now()
		);`

	pgCreateAudiosSHA1Index = `
		CREATE UNIQUE INDEX IF NOT EXISTS uq_audios_file_sha1
		ON audios (file_sha1) WHERE fingerprinted = 1;`

	pgCreateFingerprints = `
		CREATE TABLE IF NOT EXISTS fingerprints (
			hash     BIGINT NOT NULL
		,	audio_id INT NOT NULL REFERENCES audios (audio_id) ON DELETE CASCADE
		,	"offset" INT NOT NULL
		);`

	pgCreateFingerprintsHashIndex = `
		CREATE INDEX IF NOT EXISTS ix_fingerprints_hash
		ON fingerprints USING hash (hash);`

	pgCreateFingerprintsUnique = `
		CREATE UNIQUE INDEX IF NOT EXISTS uq_fingerprints
		ON fingerprints (hash, audio_id, "offset");`

	pgDropFingerprints = `DROP TABLE IF EXISTS fingerprints;`
	pgDropAudios       = `DROP TABLE IF EXISTS audios;`

	pgInsertAudio = `
		INSERT INTO audios (audio_name, file_sha1, total_hashes)
		VALUES ($1, decode($2, 'hex'), $3)
		RETURNING audio_id;`

	pgInsertHashes = `
		INSERT INTO fingerprints (audio_id, hash, "offset")
		VALUES %s ON CONFLICT DO NOTHING;`

	pgUpdateFingerprinted = `
		UPDATE audios SET fingerprinted = 1, dt_modified = now()
		WHERE audio_id = $1;`

	pgDeleteUnfingerprinted = `DELETE FROM audios WHERE fingerprinted = 0;`

	pgSelectAudios = `
		SELECT audio_id, audio_name, upper(encode(file_sha1, 'hex')),
		       total_hashes, fingerprinted, dt_created, dt_modified
		FROM audios WHERE fingerprinted = 1;`

	pgSelectAudio = `
		SELECT audio_id, audio_name, upper(encode(file_sha1, 'hex')),
		       total_hashes, fingerprinted, dt_created, dt_modified
		FROM audios WHERE audio_id = $1;`

	pgCountAudios       = `SELECT COUNT(*) FROM audios WHERE fingerprinted = 1;`
	pgCountFingerprints = `SELECT COUNT(*) FROM fingerprints;`

	pgSelectMultiple = `
		SELECT hash, audio_id, "offset" FROM fingerprints
		WHERE hash IN (%s);`

	pgDeleteAudios = `DELETE FROM audios WHERE audio_id IN (%s);`
)

// NewPostgres opens the primary backend.
func NewPostgres(cfg configs.DatabaseConfig) (IndexStore, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, sslMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	return &store{
		db: db,
		d: dialect{
			style:       dollarNumbers,
			returningID: true,
			setup: []string{
				pgCreateAudios,
				pgCreateAudiosSHA1Index,
				pgCreateFingerprints,
				pgCreateFingerprintsHashIndex,
				pgCreateFingerprintsUnique,
			},
			drop:                  []string{pgDropFingerprints, pgDropAudios},
			insertAudio:           pgInsertAudio,
			insertHashes:          pgInsertHashes,
			updateFingerprinted:   pgUpdateFingerprinted,
			deleteUnfingerprinted: pgDeleteUnfingerprinted,
			selectAudios:          pgSelectAudios,
			selectAudio:           pgSelectAudio,
			countAudios:           pgCountAudios,
			countFingerprints:     pgCountFingerprints,
			selectMultiple:        pgSelectMultiple,
			deleteAudios:          pgDeleteAudios,
		},
	}, nil
}

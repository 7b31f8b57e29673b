package database

import (
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"

	"github.com/media-luna/reverb/configs"
)

const (
	myCreateAudios = `
		CREATE TABLE IF NOT EXISTS audios (
			audio_id      MEDIUMINT UNSIGNED NOT NULL AUTO_INCREMENT
		,	audio_name    VARCHAR(250) NOT NULL
		,	fingerprinted TINYINT DEFAULT 0
		,	file_sha1     BINARY(20)
		,	total_hashes  INT NOT NULL DEFAULT 0
		,	dt_created    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		,	dt_modified   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		,	PRIMARY KEY (audio_id)
		) ENGINE=INNODB;`

	myCreateFingerprints = `
		CREATE TABLE IF NOT EXISTS fingerprints (
			hash     BIGINT UNSIGNED NOT NULL
		,	audio_id MEDIUMINT UNSIGNED NOT NULL
		,	` + "`offset`" + ` INT UNSIGNED NOT NULL
		,	INDEX ix_fingerprints_hash (hash)
		,	UNIQUE KEY uq_fingerprints (hash, audio_id, ` + "`offset`" + `)
		,	CONSTRAINT fk_fingerprints_audio_id FOREIGN KEY (audio_id)
				REFERENCES audios (audio_id) ON DELETE CASCADE
		) ENGINE=INNODB;`

	myDropFingerprints = `DROP TABLE IF EXISTS fingerprints;`
	myDropAudios       = `DROP TABLE IF EXISTS audios;`

	myInsertAudio = `
		INSERT INTO audios (audio_name, file_sha1, total_hashes)
		VALUES (?, UNHEX(?), ?);`

	myInsertHashes = `
		INSERT IGNORE INTO fingerprints (audio_id, hash, ` + "`offset`" + `)
		VALUES %s;`

	myUpdateFingerprinted = `
		UPDATE audios SET fingerprinted = 1, dt_modified = NOW()
		WHERE audio_id = ?;`

	myDeleteUnfingerprinted = `DELETE FROM audios WHERE fingerprinted = 0;`

	mySelectAudios = `
		SELECT audio_id, audio_name, UPPER(HEX(file_sha1)),
		       total_hashes, fingerprinted, dt_created, dt_modified
		FROM audios WHERE fingerprinted = 1;`

	mySelectAudio = `
		SELECT audio_id, audio_name, UPPER(HEX(file_sha1)),
		       total_hashes, fingerprinted, dt_created, dt_modified
		FROM audios WHERE audio_id = ?;`

	myCountAudios       = `SELECT COUNT(*) FROM audios WHERE fingerprinted = 1;`
	myCountFingerprints = `SELECT COUNT(*) FROM fingerprints;`

	mySelectMultiple = `
		SELECT hash, audio_id, ` + "`offset`" + ` FROM fingerprints
		WHERE hash IN (%s);`

	myDeleteAudios = `DELETE FROM audios WHERE audio_id IN (%s);`
)

// NewMySQL opens the MySQL backend.
func NewMySQL(cfg configs.DatabaseConfig) (IndexStore, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to mysql: %w", err)
	}

	return &store{
		db: db,
		d: dialect{
			style:                 questionMarks,
			setup:                 []string{myCreateAudios, myCreateFingerprints},
			drop:                  []string{myDropFingerprints, myDropAudios},
			insertAudio:           myInsertAudio,
			insertHashes:          myInsertHashes,
			updateFingerprinted:   myUpdateFingerprinted,
			deleteUnfingerprinted: myDeleteUnfingerprinted,
			selectAudios:          mySelectAudios,
			selectAudio:           mySelectAudio,
			countAudios:           myCountAudios,
			countFingerprints:     myCountFingerprints,
			selectMultiple:        mySelectMultiple,
			deleteAudios:          myDeleteAudios,
		},
	}, nil
}

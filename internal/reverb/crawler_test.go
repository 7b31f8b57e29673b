package reverb

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/media-luna/reverb/internal/database"
	"github.com/media-luna/reverb/internal/fingerprint"
)

var (
	tonesA = []float64{440, 550, 660, 770, 880, 990}
	tonesB = []float64{523, 622, 740, 831, 932, 1047}
)

func TestCrawlIngestsAndRecognizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sequence_a.wav")
	writePCM16WAV(t, path, 44100, toneSequence(tonesA, 1))

	app := newTestApp(t, dir)
	require.NoError(t, app.Crawl(context.Background()))

	count, err := app.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	numHashes, err := app.CountFingerprints()
	require.NoError(t, err)
	assert.Positive(t, numHashes)

	// Recognizing the ingested file verbatim is a perfect match.
	recognition, err := app.Recognize(path)
	require.NoError(t, err)
	require.NotEmpty(t, recognition.Results)

	top := recognition.Results[0]
	assert.Equal(t, "sequence_a.wav", top.AudioName)
	assert.InDelta(t, 1.0, top.InputConfidence, 0.01)
	assert.InDelta(t, 1.0, top.FingerprintedConfidence, 0.01)
}

func TestCrawlDedupByContentHash(t *testing.T) {
	dir := t.TempDir()
	original := filepath.Join(dir, "song_a.wav")
	writePCM16WAV(t, original, 44100, toneSequence(tonesA, 1))

	// Identical bytes under a different name.
	data, err := os.ReadFile(original)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "song_a_copy.wav"), data, 0o644))

	app := newTestApp(t, dir)
	require.NoError(t, app.Crawl(context.Background()))

	count, err := app.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCrawlIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	writePCM16WAV(t, filepath.Join(dir, "a.wav"), 44100, toneSequence(tonesA, 1))
	writePCM16WAV(t, filepath.Join(dir, "b.wav"), 44100, toneSequence(tonesB, 1))

	app := newTestApp(t, dir)
	require.NoError(t, app.Crawl(context.Background()))

	audios, err := app.List()
	require.NoError(t, err)
	require.Len(t, audios, 2)

	hashesBefore, err := app.CountFingerprints()
	require.NoError(t, err)

	// A second run over the same directory inserts nothing.
	require.NoError(t, app.Crawl(context.Background()))

	again, err := app.List()
	require.NoError(t, err)
	require.Len(t, again, 2)
	assert.ElementsMatch(t,
		[]string{audios[0].SHA1, audios[1].SHA1},
		[]string{again[0].SHA1, again[1].SHA1})

	hashesAfter, err := app.CountFingerprints()
	require.NoError(t, err)
	assert.Equal(t, hashesBefore, hashesAfter)
}

func TestCrawlSkipsWrongSampleRate(t *testing.T) {
	dir := t.TempDir()
	writePCM16WAV(t, filepath.Join(dir, "slow.wav"), 8000, toneSequence(tonesA[:2], 1))

	app := newTestApp(t, dir)
	require.NoError(t, app.Crawl(context.Background()))

	count, err := app.Count()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCrawlRecoversFromCrashedIngestion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.wav")
	writePCM16WAV(t, path, 44100, toneSequence(tonesA, 1))

	app := newTestApp(t, dir)

	// Simulate a crash between insert_audio and set_audio_fingerprinted:
	// the row exists, some hashes exist, the flag was never set.
	crashedID, err := app.db.InsertAudio("a.wav", "AAAA0123456789ABCDEF0123456789ABCDEF0123", 3)
	require.NoError(t, err)
	require.NoError(t, app.db.InsertHashes(crashedID, []fingerprint.Hash{{Sum: 7, Offset: 1}}, database.DefaultBatchSize))

	require.NoError(t, app.Crawl(context.Background()))

	// The residue is gone and the file was ingested for real.
	_, err = app.db.GetAudioByID(crashedID)
	assert.ErrorIs(t, err, database.ErrNotFound)

	count, err := app.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCrawlEmptyDirectory(t *testing.T) {
	app := newTestApp(t, t.TempDir())
	require.NoError(t, app.Crawl(context.Background()))

	count, err := app.Count()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRunSessionRebuildsOnStorageCorruption(t *testing.T) {
	dir := t.TempDir()
	keep := filepath.Join(dir, "keep.wav")
	lost := filepath.Join(dir, "lost.wav")
	writePCM16WAV(t, keep, 44100, toneSequence(tonesA, 1))
	writePCM16WAV(t, lost, 44100, toneSequence(tonesB, 1))

	app := newTestApp(t, dir)
	require.NoError(t, app.RunSession(context.Background()))

	count, err := app.Count()
	require.NoError(t, err)
	require.Equal(t, 2, count)

	// Fewer files on disk than audios in the index: the session wipes
	// the index and reingests what is actually there.
	require.NoError(t, os.Remove(lost))
	require.NoError(t, app.RunSession(context.Background()))

	audios, err := app.List()
	require.NoError(t, err)
	require.Len(t, audios, 1)
	assert.Equal(t, "keep.wav", audios[0].Name)
}

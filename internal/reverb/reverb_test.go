package reverb

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/media-luna/reverb/configs"
	"github.com/media-luna/reverb/internal/database"
)

// newTestApp wires an app to an embedded index in a temp directory.
func newTestApp(t *testing.T, targetDir string) *Reverb {
	t.Helper()

	cfg := configs.Default()
	cfg.Database = configs.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "index.db"),
	}
	cfg.Crawler.TargetDir = targetDir

	db, err := database.New(cfg.Database)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Setup())

	return newWithStore(cfg, db)
}

// writePCM16WAV writes a mono 16-bit RIFF/WAVE file.
func writePCM16WAV(t *testing.T, path string, sampleRate int, samples []int16) {
	t.Helper()

	var data bytes.Buffer
	for _, s := range samples {
		binary.Write(&data, binary.LittleEndian, s)
	}

	var out bytes.Buffer
	out.WriteString("RIFF")
	binary.Write(&out, binary.LittleEndian, uint32(36+data.Len()))
	out.WriteString("WAVE")
	out.WriteString("fmt ")
	binary.Write(&out, binary.LittleEndian, uint32(16))
	binary.Write(&out, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&out, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&out, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&out, binary.LittleEndian, uint32(sampleRate*2))
	binary.Write(&out, binary.LittleEndian, uint16(2))
	binary.Write(&out, binary.LittleEndian, uint16(16))
	out.WriteString("data")
	binary.Write(&out, binary.LittleEndian, uint32(data.Len()))
	out.Write(data.Bytes())

	require.NoError(t, os.WriteFile(path, out.Bytes(), 0o644))
}

// toneSequence renders a run of pure tones, one after another, as
// 16-bit PCM at 44.1 kHz. Distinct tone orders give files a distinct
// temporal structure, which is what alignment votes on.
func toneSequence(freqs []float64, secondsPerTone float64) []int16 {
	const rate = 44100
	perTone := int(secondsPerTone * rate)
	samples := make([]int16, 0, perTone*len(freqs))
	for _, freq := range freqs {
		for i := 0; i < perTone; i++ {
			samples = append(samples, int16(16000*math.Sin(2*math.Pi*freq*float64(i)/rate)))
		}
	}
	return samples
}

func int16sToChannel(samples []int16) []int32 {
	out := make([]int32, len(samples))
	for i, s := range samples {
		out[i] = int32(s)
	}
	return out
}

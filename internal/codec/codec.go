package codec

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// RequiredSampleRate is the only framerate the fingerprint pipeline
// accepts. Input at any other rate must be resampled by the caller.
const RequiredSampleRate = 44100

// hashingBlockSize is the read block used when computing file SHA-1s.
const hashingBlockSize = 1 << 20

var (
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrCorruptAudio      = errors.New("corrupt audio file")
	ErrWrongSampleRate   = errors.New("sample rate must be 44100 Hz")
)

// Record is a decoded audio file: de-interleaved integer PCM channels
// at the observed sample rate, plus the identity of the source bytes.
type Record struct {
	Channels   [][]int32
	SampleRate int
	Name       string
	SHA1       string // upper hex
}

// Codec reads one container family into PCM channels. Implementations
// report the observed sample rate; they do not resample.
type Codec interface {
	Extensions() []string
	Read(r io.Reader, ext string, limitSec int) (channels [][]int32, sampleRate int, err error)
}

var registry = map[string]Codec{}

func register(c Codec) {
	for _, ext := range c.Extensions() {
		registry[ext] = c
	}
}

func init() {
	register(wavCodec{})
	register(beepCodec{})
}

// lookup returns the codec registered for an extension (without dot).
func lookup(ext string) (Codec, error) {
	c, ok := registry[strings.ToLower(strings.TrimPrefix(ext, "."))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	return c, nil
}

// Read decodes an audio byte stream using the codec selected by ext.
// limitSec > 0 truncates every channel to the first limitSec*1000
// samples, matching the source units of the fingerprint reference.
func Read(r io.Reader, ext string, limitSec int) ([][]int32, int, error) {
	c, err := lookup(ext)
	if err != nil {
		return nil, 0, err
	}

	channels, sampleRate, err := c.Read(r, strings.ToLower(strings.TrimPrefix(ext, ".")), limitSec)
	if err != nil {
		return nil, 0, err
	}

	if limitSec > 0 {
		maxSamples := limitSec * 1000
		for i, ch := range channels {
			if len(ch) > maxSamples {
				channels[i] = ch[:maxSamples]
			}
		}
	}

	return channels, sampleRate, nil
}

// ReadFile decodes path into a Record. The file SHA-1 is computed in a
// streaming pass before decoding; the fingerprinter requires 44.1 kHz
// input, so any other observed rate is refused here.
func ReadFile(path string, limitSec int) (*Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	sha, err := hashReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to hash %s: %w", path, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind %s: %w", path, err)
	}

	channels, sampleRate, err := Read(f, filepath.Ext(path), limitSec)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if sampleRate != RequiredSampleRate {
		return nil, fmt.Errorf("%w: %s is %d Hz", ErrWrongSampleRate, path, sampleRate)
	}

	return &Record{
		Channels:   channels,
		SampleRate: sampleRate,
		Name:       filepath.Base(path),
		SHA1:       sha,
	}, nil
}

// HashFile returns the streaming SHA-1 of a file as upper hex.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return hashReader(f)
}

func hashReader(r io.Reader) (string, error) {
	h := sha1.New()
	buf := make([]byte, hashingBlockSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
	}
	return strings.ToUpper(hex.EncodeToString(h.Sum(nil))), nil
}

// File is a crawl candidate found under the target directory.
type File struct {
	Path string
	Ext  string // without dot, lower case
}

// FindFiles walks root and returns every file whose extension is in
// extensions (accepted with or without a leading dot).
func FindFiles(root string, extensions []string) ([]File, error) {
	wanted := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		wanted[strings.ToLower(strings.TrimPrefix(ext, "."))] = true
	}

	var files []File
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
		if wanted[ext] {
			files = append(files, File{Path: path, Ext: ext})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	return files, nil
}

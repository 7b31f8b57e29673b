package codec

import (
	"bufio"
	"fmt"
	"io"
	"math"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/vorbis"
)

// beepCodec decodes compressed containers through the beep decoders.
// The decoder library is a black box here: we only consume the PCM it
// streams out, rescaled to the 16-bit range the pipeline works in.
type beepCodec struct{}

func (beepCodec) Extensions() []string {
	return []string{"mp3", "mpeg", "ogg"}
}

func (beepCodec) Read(r io.Reader, ext string, limitSec int) ([][]int32, int, error) {
	rc := io.NopCloser(bufio.NewReader(r))

	var (
		stream beep.StreamSeekCloser
		format beep.Format
		err    error
	)
	switch ext {
	case "mp3", "mpeg":
		stream, format, err = mp3.Decode(rc)
	case "ogg":
		stream, format, err = vorbis.Decode(rc)
	default:
		return nil, 0, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %s decode failed: %v", ErrCorruptAudio, ext, err)
	}
	defer stream.Close()

	// beep always streams stereo frames; a mono source is mirrored into
	// both columns, so a single channel is enough in that case.
	numChannels := format.NumChannels
	if numChannels > 2 {
		numChannels = 2
	}
	if numChannels < 1 {
		numChannels = 1
	}

	channels := make([][]int32, numChannels)
	buf := make([][2]float64, 2048)
	for {
		n, ok := stream.Stream(buf)
		for i := 0; i < n; i++ {
			for c := 0; c < numChannels; c++ {
				channels[c] = append(channels[c], pcm16FromFloat(buf[i][c]))
			}
		}
		if !ok {
			break
		}
	}
	if err := stream.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: %s stream failed: %v", ErrCorruptAudio, ext, err)
	}

	return channels, int(format.SampleRate), nil
}

func pcm16FromFloat(f float64) int32 {
	v := math.Round(f * 32767)
	if v > 32767 {
		v = 32767
	}
	if v < -32768 {
		v = -32768
	}
	return int32(v)
}

package audio

import (
	"context"
	"io"

	"github.com/gopxl/beep/v2"
	"github.com/pkg/errors"

	"github.com/satindergrewal/shuffleradio/internal/media"
	"github.com/satindergrewal/shuffleradio/internal/pipeline"
)

// ErrUnsupportedRate is returned for sample rates the resampler cannot
// convert.
var ErrUnsupportedRate = errors.New("unsupported sample rate")

const (
	// maxRatio bounds the conversion ratio in either direction.
	maxRatio = 16
	// resampleQuality is the number of neighbouring frames on each side
	// beep interpolates from.
	resampleQuality = 4
	// chunkFrames is the largest chunk the decode and resample stages emit.
	chunkFrames = media.PacketFrames
)

func checkRates(from, to int) error {
	if from <= 0 || to <= 0 || from > to*maxRatio || to > from*maxRatio {
		return errors.Wrapf(ErrUnsupportedRate, "%d Hz to %d Hz", from, to)
	}
	return nil
}

// convertRate wraps s so it streams at rate to. beep's resampler reads
// ahead and treats a short read as the end of s, so s must only come up
// short once it is really exhausted.
func convertRate(s beep.Streamer, from, to int) (beep.Streamer, error) {
	if err := checkRates(from, to); err != nil {
		return nil, err
	}
	if from == to {
		return s, nil
	}
	return beep.Resample(resampleQuality, beep.SampleRate(from), beep.SampleRate(to), &padded{s: s}), nil
}

// padded streams silence once s has come up short. The resampler records
// the end of its source at the first short read and may read one block past
// it for interpolation; a second short read would move that end.
type padded struct {
	s     beep.Streamer
	short bool
}

func (p *padded) Stream(samples [][2]float64) (int, bool) {
	if p.short {
		clear(samples)
		return len(samples), true
	}
	n, ok := p.s.Stream(samples)
	if n < len(samples) {
		p.short = true
	}
	return n, ok
}

func (p *padded) Err() error {
	return p.s.Err()
}

// stereoFrames maps buf to stereo frames: the first channel goes left, the
// second goes right when present, otherwise the first is duplicated.
func stereoFrames(buf media.Buffer) [][2]float64 {
	if len(buf.Channels) == 0 {
		return nil
	}
	left, right := buf.Channels[0], buf.Channels[0]
	if len(buf.Channels) >= 2 {
		right = buf.Channels[1]
	}
	out := make([][2]float64, len(left))
	for i := range out {
		out[i] = [2]float64{left[i], right[i]}
	}
	return out
}

func chunkOf(frames [][2]float64) Chunk {
	c := Chunk{Left: make([]int16, len(frames)), Right: make([]int16, len(frames))}
	for i, f := range frames {
		c.Left[i] = toInt16(f[0])
		c.Right[i] = toInt16(f[1])
	}
	return c
}

// Resample converts a stream of chunks at rate from into chunks at rate to.
// The returned stream closes src.
func Resample(src pipeline.Stream[Chunk], from, to int) (pipeline.Stream[Chunk], error) {
	if err := checkRates(from, to); err != nil {
		return nil, err
	}
	if from == to {
		return src, nil
	}
	in := &chunkStreamer{src: src}
	out, err := convertRate(in, from, to)
	if err != nil {
		return nil, err
	}
	return &resampled{in: in, out: out, buf: make([][2]float64, chunkFrames)}, nil
}

type resampled struct {
	in  *chunkStreamer
	out beep.Streamer
	buf [][2]float64
}

func (r *resampled) Next(ctx context.Context) (Chunk, error) {
	r.in.ctx = ctx
	defer func() { r.in.ctx = nil }()

	if n, _ := r.out.Stream(r.buf); n > 0 {
		return chunkOf(r.buf[:n]), nil
	}
	if r.in.err != nil {
		return Chunk{}, r.in.err
	}
	return Chunk{}, io.EOF
}

func (r *resampled) Close() error {
	return r.in.src.Close()
}

// chunkStreamer pulls a chunk stream on behalf of a beep.Streamer. ctx is
// the context of the Next call currently pulling through it.
type chunkStreamer struct {
	src     pipeline.Stream[Chunk]
	ctx     context.Context
	pending Chunk
	done    bool
	err     error
}

func (s *chunkStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	for n < len(samples) {
		if s.pending.Frames() == 0 {
			if s.done {
				break
			}
			c, err := s.src.Next(s.ctx)
			if err != nil {
				s.done = true
				if !errors.Is(err, io.EOF) {
					s.err = err
				}
				break
			}
			s.pending = c
			continue
		}
		k := min(len(samples)-n, s.pending.Frames())
		for i := 0; i < k; i++ {
			samples[n+i] = [2]float64{float64(s.pending.Left[i]) / 32768, float64(s.pending.Right[i]) / 32768}
		}
		s.pending = Chunk{Left: s.pending.Left[k:], Right: s.pending.Right[k:]}
		n += k
	}
	return n, n > 0
}

func (s *chunkStreamer) Err() error {
	return s.err
}

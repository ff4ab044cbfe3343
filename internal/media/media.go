// Package media defines the container and codec capabilities the track
// decoder is built on, plus implementations backed by the local filesystem
// and github.com/gopxl/beep.
package media

import (
	"io"

	"github.com/pkg/errors"
)

var (
	ErrUnknownFormat    = errors.New("unknown container format")
	ErrUnsupportedCodec = errors.New("unsupported codec")
	ErrNoTracks         = errors.New("container has no tracks")
)

// Codec names understood by PCMCodecs.
const (
	CodecPCMS16LE = "pcm_s16le"
	CodecPCMF32LE = "pcm_f32le"
)

// CodecParams describes one elementary track.
type CodecParams struct {
	Codec      string
	SampleRate int
	Channels   int
}

// Track is one elementary stream inside a container.
type Track struct {
	ID     uint32
	Params CodecParams
}

// Packet is one unit of encoded data for a single track.
type Packet struct {
	TrackID uint32
	Data    []byte
}

// Buffer is decoded audio in planar float form, one slice per channel, with
// samples nominally in [-1, 1].
type Buffer struct {
	SampleRate int
	Channels   [][]float64
}

// Frames returns the number of frames in b.
func (b Buffer) Frames() int {
	if len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Source opens the byte source behind a track identifier.
type Source interface {
	Open(path string) (io.ReadSeekCloser, error)
}

// Prober detects a container format and opens a demuxer over it. hint is the
// file extension, used when the content cannot be sniffed.
type Prober interface {
	Probe(r io.ReadSeekCloser, hint string) (Demuxer, error)
}

// Demuxer splits a container into packets. NextPacket returns io.EOF at the
// clean end of the stream. Close releases the underlying source.
type Demuxer interface {
	Tracks() []Track
	NextPacket() (Packet, error)
	Close() error
}

// Codecs constructs decoders for codec parameters.
type Codecs interface {
	NewDecoder(params CodecParams) (Decoder, error)
}

// Decoder turns packets of one track into audio.
type Decoder interface {
	Decode(p Packet) (Buffer, error)
	Close() error
}

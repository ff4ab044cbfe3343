package media

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"os"
	"strings"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
	"github.com/pkg/errors"
)

// PacketFrames is how many frames a beep-backed demuxer puts in one packet.
const PacketFrames = 1152

type container int

const (
	unknown container = iota
	wavContainer
	flacContainer
	oggContainer
	mp3Container
)

// BeepProber recognises WAV, FLAC, Ogg Vorbis and MP3. The decoded stream is
// exposed as a single pcm_f32le track, so it pairs with PCMCodecs.
type BeepProber struct{}

func (BeepProber) Probe(r io.ReadSeekCloser, hint string) (Demuxer, error) {
	kind, err := sniff(r)
	if err != nil {
		return nil, err
	}
	if kind == unknown {
		kind = fromExtension(hint)
	}

	var (
		s      beep.StreamSeekCloser
		format beep.Format
	)
	switch kind {
	case wavContainer:
		s, format, err = wav.Decode(r)
	case flacContainer:
		s, format, err = flac.Decode(r)
	case oggContainer:
		s, format, err = vorbis.Decode(r)
	case mp3Container:
		s, format, err = mp3.Decode(r)
	default:
		return nil, ErrUnknownFormat
	}
	if err != nil {
		return nil, errors.Wrap(err, "probe")
	}

	channels := min(max(format.NumChannels, 1), 2)
	return &beepDemuxer{
		src:      r,
		streamer: s,
		track: Track{
			ID: 0,
			Params: CodecParams{
				Codec:      CodecPCMF32LE,
				SampleRate: int(format.SampleRate),
				Channels:   channels,
			},
		},
		buf: make([][2]float64, PacketFrames),
	}, nil
}

func sniff(r io.ReadSeeker) (container, error) {
	head := make([]byte, 12)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return unknown, errors.Wrap(err, "read header")
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return unknown, errors.Wrap(err, "rewind")
	}
	head = head[:n]

	switch {
	case len(head) >= 12 && bytes.Equal(head[:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WAVE")):
		return wavContainer, nil
	case bytes.HasPrefix(head, []byte("fLaC")):
		return flacContainer, nil
	case bytes.HasPrefix(head, []byte("OggS")):
		return oggContainer, nil
	case bytes.HasPrefix(head, []byte("ID3")):
		return mp3Container, nil
	case len(head) >= 2 && head[0] == 0xFF && head[1]&0xE0 == 0xE0:
		return mp3Container, nil
	}
	return unknown, nil
}

func fromExtension(hint string) container {
	switch strings.ToLower(strings.TrimPrefix(hint, ".")) {
	case "wav", "wave":
		return wavContainer
	case "flac":
		return flacContainer
	case "ogg", "oga":
		return oggContainer
	case "mp3":
		return mp3Container
	}
	return unknown
}

type beepDemuxer struct {
	src      io.Closer
	streamer beep.StreamSeekCloser
	track    Track
	buf      [][2]float64
	closed   bool
}

func (d *beepDemuxer) Tracks() []Track {
	return []Track{d.track}
}

func (d *beepDemuxer) NextPacket() (Packet, error) {
	n, ok := d.streamer.Stream(d.buf)
	if n == 0 {
		if err := d.streamer.Err(); err != nil {
			return Packet{}, errors.Wrap(err, "read packet")
		}
		if !ok {
			return Packet{}, io.EOF
		}
	}

	channels := d.track.Params.Channels
	data := make([]byte, n*channels*4)
	for i := 0; i < n; i++ {
		for ch := 0; ch < channels; ch++ {
			off := (i*channels + ch) * 4
			binary.LittleEndian.PutUint32(data[off:], math.Float32bits(float32(d.buf[i][ch])))
		}
	}
	return Packet{TrackID: d.track.ID, Data: data}, nil
}

func (d *beepDemuxer) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	err := d.streamer.Close()
	if srcErr := d.src.Close(); srcErr != nil && !errors.Is(srcErr, os.ErrClosed) && err == nil {
		err = srcErr
	}
	return err
}

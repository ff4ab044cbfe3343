package encoder

import (
	"bytes"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"github.com/pkg/errors"
	"gopkg.in/hraban/opus.v2"

	"github.com/satindergrewal/shuffleradio/internal/audio"
	"github.com/satindergrewal/shuffleradio/internal/pipeline"
)

// Opus always runs at 48 kHz; frames are 20ms.
const (
	OpusSampleRate    = 48000
	OpusFrameSize     = 960 // samples per channel per frame
	OpusFrameDuration = 20 * time.Millisecond
	maxOpusPacket     = 4000
)

// frameEncoder is the part of *opus.Encoder the framer uses.
type frameEncoder interface {
	Encode(pcm []int16, data []byte) (int, error)
}

// OpusInput converts canonical PCM to the rate OpusFramer takes.
func OpusInput(src pipeline.Stream[audio.Chunk]) (pipeline.Stream[audio.Chunk], error) {
	return audio.Resample(src, audio.SampleRate, OpusSampleRate)
}

// OpusFramer cuts 48 kHz stereo chunks into 20ms Opus packets.
type OpusFramer struct {
	enc     frameEncoder
	pending []int16 // interleaved 48 kHz samples not yet framed
	scratch []byte
}

// NewOpusFramer creates a framer backed by libopus.
func NewOpusFramer(bitrate int) (*OpusFramer, error) {
	enc, err := opus.NewEncoder(OpusSampleRate, audio.Channels, opus.AppAudio)
	if err != nil {
		return nil, errors.Wrap(err, "opus: new encoder")
	}
	if err := enc.SetBitrate(bitrate * 1000); err != nil {
		return nil, errors.Wrap(err, "opus: set bitrate")
	}
	return newOpusFramer(enc), nil
}

func newOpusFramer(enc frameEncoder) *OpusFramer {
	return &OpusFramer{enc: enc, scratch: make([]byte, maxOpusPacket)}
}

// Push buffers c, which must already be at OpusSampleRate, and returns one
// packet per complete frame.
func (f *OpusFramer) Push(c audio.Chunk) ([][]byte, error) {
	f.pending = append(f.pending, c.Interleaved()...)
	return f.drain()
}

// Flush pads the trailing partial frame with silence and encodes it.
func (f *OpusFramer) Flush() ([][]byte, error) {
	if rem := len(f.pending) % (OpusFrameSize * audio.Channels); rem != 0 {
		f.pending = append(f.pending, make([]int16, OpusFrameSize*audio.Channels-rem)...)
	}
	return f.drain()
}

func (f *OpusFramer) drain() ([][]byte, error) {
	const frame = OpusFrameSize * audio.Channels
	var packets [][]byte
	for len(f.pending) >= frame {
		n, err := f.enc.Encode(f.pending[:frame], f.scratch)
		if err != nil {
			return packets, errors.Wrap(err, "opus: encode")
		}
		packets = append(packets, bytes.Clone(f.scratch[:n]))
		f.pending = f.pending[frame:]
	}
	if len(f.pending) == 0 {
		f.pending = nil
	}
	return packets, nil
}

// oggSession wraps Opus packets in an Ogg stream for plain HTTP clients.
type oggSession struct {
	buf    *bytes.Buffer
	framer *OpusFramer
	ogg    *oggwriter.OggWriter
	seq    uint16
	ts     uint32
}

// NewOggOpusSession creates an Ogg/Opus session taking 48 kHz input. The Ogg
// headers are part of the first output.
func NewOggOpusSession(cfg Config) (Session, error) {
	framer, err := NewOpusFramer(cfg.Bitrate)
	if err != nil {
		return nil, err
	}
	return newOggSession(framer)
}

func newOggSession(framer *OpusFramer) (*oggSession, error) {
	buf := &bytes.Buffer{}
	w, err := oggwriter.NewWith(buf, OpusSampleRate, audio.Channels)
	if err != nil {
		return nil, errors.Wrap(err, "ogg: new writer")
	}
	return &oggSession{buf: buf, framer: framer, ogg: w}, nil
}

func (s *oggSession) Encode(c audio.Chunk) ([]byte, error) {
	packets, err := s.framer.Push(c)
	if err != nil {
		return nil, err
	}
	return s.write(packets)
}

func (s *oggSession) Flush() ([]byte, error) {
	packets, err := s.framer.Flush()
	if err != nil {
		return nil, err
	}
	return s.write(packets)
}

func (s *oggSession) write(packets [][]byte) ([]byte, error) {
	for _, p := range packets {
		s.seq++
		s.ts += OpusFrameSize
		pkt := &rtp.Packet{
			Header:  rtp.Header{Version: 2, SequenceNumber: s.seq, Timestamp: s.ts},
			Payload: p,
		}
		if err := s.ogg.WriteRTP(pkt); err != nil {
			return nil, errors.Wrap(err, "ogg: write")
		}
	}
	if s.buf.Len() == 0 {
		return nil, nil
	}
	out := bytes.Clone(s.buf.Bytes())
	s.buf.Reset()
	return out, nil
}

func (s *oggSession) Close() error {
	return s.ogg.Close()
}

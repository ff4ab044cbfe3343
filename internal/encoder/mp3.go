package encoder

import (
	"bytes"

	"github.com/pkg/errors"
	lame "github.com/viert/go-lame"

	"github.com/satindergrewal/shuffleradio/internal/audio"
)

// mp3Session encodes canonical PCM with LAME. The encoder writes into buf,
// which is drained after every call.
//
// go-lame flushes on every release, so Flush releases the encoder itself
// and Close after a teardown discards whatever the implicit flush wrote.
type mp3Session struct {
	buf    *bytes.Buffer
	enc    lameEncoder
	closed bool
}

// lameEncoder is the part of *lame.Encoder the session drives.
type lameEncoder interface {
	Write(p []byte) (int, error)
	Close()
}

// NewMP3Session configures a LAME encoder for canonical stereo input.
func NewMP3Session(cfg Config) (Session, error) {
	buf := &bytes.Buffer{}
	enc := lame.NewEncoder(buf)
	if enc == nil {
		return nil, errors.New("lame: init failed")
	}

	steps := []struct {
		name string
		set  func() error
	}{
		{"sample rate", func() error { return enc.SetInSamplerate(audio.SampleRate) }},
		{"channels", func() error { return enc.SetNumChannels(audio.Channels) }},
		{"bitrate", func() error { return enc.SetBrate(cfg.Bitrate) }},
		{"quality", func() error { return enc.SetQuality(cfg.Quality) }},
	}
	for _, s := range steps {
		if err := s.set(); err != nil {
			enc.Close()
			return nil, errors.Wrapf(err, "lame: set %s", s.name)
		}
	}
	// go-lame applies the parameters on the first Write and drops the
	// result. A single silent frame makes a rejected configuration fail
	// here instead of mid-stream.
	if _, err := enc.Write(make([]byte, 2*audio.Channels)); err != nil {
		enc.Close()
		return nil, errors.Wrap(err, "lame: init params")
	}
	return &mp3Session{buf: buf, enc: enc}, nil
}

func (s *mp3Session) Encode(c audio.Chunk) ([]byte, error) {
	if _, err := s.enc.Write(audio.SamplesToBytes(c.Interleaved())); err != nil {
		return nil, err
	}
	return s.drain(), nil
}

func (s *mp3Session) Flush() ([]byte, error) {
	if s.closed {
		return nil, nil
	}
	s.closed = true
	s.enc.Close()
	return s.drain(), nil
}

func (s *mp3Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.enc.Close()
	s.buf.Reset()
	return nil
}

func (s *mp3Session) drain() []byte {
	if s.buf.Len() == 0 {
		return nil
	}
	out := bytes.Clone(s.buf.Bytes())
	s.buf.Reset()
	return out
}

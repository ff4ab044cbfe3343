// Package encoder turns canonical PCM into a compressed byte stream. One
// Session lives for the whole listener connection and spans every track the
// playlist feeds it.
package encoder

import (
	"context"
	"io"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/satindergrewal/shuffleradio/internal/audio"
	"github.com/satindergrewal/shuffleradio/internal/pipeline"
)

var (
	ErrEncode        = errors.New("encode failed")
	ErrUnknownFormat = errors.New("unknown output format")
)

// Bytes is one chunk of encoded output. A RateLimiter paces it in bytes.
type Bytes []byte

func (b Bytes) Quantity() int { return len(b) }

// Session is one native codec instance. Its input is PCM at the SampleRate of
// its format. Encode and Flush return whatever
// output is ready, which may be nothing. Close releases the codec.
type Session interface {
	Encode(c audio.Chunk) ([]byte, error)
	Flush() ([]byte, error)
	Close() error
}

// NewSession constructs a codec session for format.
func NewSession(format Format, cfg Config) (Session, error) {
	switch format {
	case MP3:
		return NewMP3Session(cfg)
	case OggOpus:
		return NewOggOpusSession(cfg)
	}
	return nil, errors.Wrap(ErrUnknownFormat, string(format))
}

// Encoder is the stream stage wrapping a Session. The session is flushed at
// most once and closed exactly once, whichever way the stream ends.
type Encoder struct {
	src     pipeline.Stream[audio.Chunk]
	session Session
	logger  *slog.Logger

	flushed bool
	closed  bool
}

// Input converts canonical PCM from src to the input rate of format.
func Input(format Format, src pipeline.Stream[audio.Chunk]) (pipeline.Stream[audio.Chunk], error) {
	return audio.Resample(src, audio.SampleRate, format.SampleRate())
}

// New builds the codec session and the stage around it, taking canonical
// PCM from src. A construction failure is returned before any audio is
// pulled.
func New(format Format, cfg Config, src pipeline.Stream[audio.Chunk], logger *slog.Logger) (*Encoder, error) {
	in, err := Input(format, src)
	if err != nil {
		return nil, err
	}
	session, err := NewSession(format, cfg)
	if err != nil {
		encoderFailures.WithLabelValues("init").Inc()
		return nil, err
	}
	return NewWithSession(session, in, logger), nil
}

// NewWithSession wraps an existing session. src must already be at the
// session's input rate.
func NewWithSession(session Session, src pipeline.Stream[audio.Chunk], logger *slog.Logger) *Encoder {
	return &Encoder{src: src, session: session, logger: logger.With("module", "encoder")}
}

func (e *Encoder) Next(ctx context.Context) (Bytes, error) {
	for {
		if e.closed {
			return nil, io.EOF
		}

		chunk, err := e.src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return e.finish()
		}
		if err != nil {
			return nil, err
		}

		out, err := e.session.Encode(chunk)
		if err != nil {
			e.release()
			encoderFailures.WithLabelValues("encode").Inc()
			return nil, errors.Wrapf(ErrEncode, "%v", err)
		}
		if len(out) == 0 {
			continue
		}
		encodedBytes.Add(float64(len(out)))
		return Bytes(out), nil
	}
}

// finish flushes the session on end of input and returns the tail, if any.
func (e *Encoder) finish() (Bytes, error) {
	var (
		out []byte
		err error
	)
	if !e.flushed {
		e.flushed = true
		out, err = e.session.Flush()
	}
	e.release()
	if err != nil {
		encoderFailures.WithLabelValues("flush").Inc()
		return nil, errors.Wrapf(ErrEncode, "flush: %v", err)
	}
	if len(out) == 0 {
		return nil, io.EOF
	}
	encodedBytes.Add(float64(len(out)))
	return Bytes(out), nil
}

func (e *Encoder) release() {
	if e.closed {
		return
	}
	e.closed = true
	if err := e.session.Close(); err != nil {
		e.logger.Warn("failed closing encoder", "err", err)
	}
}

// Close releases the session, without flushing, and everything upstream.
func (e *Encoder) Close() error {
	e.release()
	return e.src.Close()
}

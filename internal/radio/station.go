// Package radio composes the per-listener streaming pipeline:
//
//	playlist -> track decoder -> encoder -> shutdown filter -> byte pacer
//
// Every listener gets its own shuffle, its own codec session and its own
// pacing clock. The catalog is the only shared state.
package radio

import (
	"context"
	"io"
	"log/slog"

	"github.com/grafana/dskit/services"
	"github.com/pkg/errors"

	"github.com/satindergrewal/shuffleradio/internal/audio"
	"github.com/satindergrewal/shuffleradio/internal/catalog"
	"github.com/satindergrewal/shuffleradio/internal/encoder"
	"github.com/satindergrewal/shuffleradio/internal/pipeline"
	"github.com/satindergrewal/shuffleradio/internal/playlist"
)

var module = "radio"

// Status is a point in time summary of the station.
type Status struct {
	Listeners int    `json:"listeners"`
	Tracks    int    `json:"tracks"`
	Format    string `json:"format"`
}

type Station struct {
	services.Service

	cfg      Config
	format   encoder.Format
	catalog  *catalog.Catalog
	tracks   *audio.Tracks
	shutdown *pipeline.Shutdown
	logger   *slog.Logger

	newSession  func(encoder.Format, encoder.Config) (encoder.Session, error)
	playlistOps []playlist.Option
	limiterOps  []pipeline.RateLimiterOption
}

// Option configures a Station.
type Option func(*Station)

// WithTracks replaces the track decoder factory.
func WithTracks(t *audio.Tracks) Option {
	return func(s *Station) { s.tracks = t }
}

// WithSessions replaces codec session construction.
func WithSessions(fn func(encoder.Format, encoder.Config) (encoder.Session, error)) Option {
	return func(s *Station) { s.newSession = fn }
}

// WithPlaylistOptions passes options to every listener's sequencer.
func WithPlaylistOptions(opts ...playlist.Option) Option {
	return func(s *Station) { s.playlistOps = append(s.playlistOps, opts...) }
}

// WithLimiterOptions passes options to every rate limiter.
func WithLimiterOptions(opts ...pipeline.RateLimiterOption) Option {
	return func(s *Station) { s.limiterOps = append(s.limiterOps, opts...) }
}

// New creates a station streaming tracks from c.
func New(cfg Config, c *catalog.Catalog, logger *slog.Logger, opts ...Option) (*Station, error) {
	format, err := encoder.ParseFormat(cfg.Format)
	if err != nil {
		return nil, err
	}
	if cfg.ByteRate < 0 {
		return nil, errors.Errorf("byte rate must not be negative, got %d", cfg.ByteRate)
	}

	s := &Station{
		cfg:        cfg,
		format:     format,
		catalog:    c,
		shutdown:   pipeline.NewShutdown(),
		logger:     logger.With("module", module),
		newSession: encoder.NewSession,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tracks == nil {
		s.tracks = audio.NewTracks(logger, audio.WithAbortOnReadError(cfg.AbortOnReadError))
	}

	s.Service = services.NewBasicService(nil, s.running, s.stopping)
	return s, nil
}

// Format is the station's default output format.
func (s *Station) Format() encoder.Format {
	return s.format
}

// Done is closed when the station starts shutting down.
func (s *Station) Done() <-chan struct{} {
	return s.shutdown.Context().Done()
}

func (s *Station) Status() Status {
	return Status{
		Listeners: s.shutdown.ListenerCount(),
		Tracks:    s.catalog.Len(),
		Format:    string(s.format),
	}
}

// peerBurst is the PCM lead, in frames, a WebRTC peer may get ahead of real
// time: about one decode block.
const peerBurst = audio.SampleRate / 20

// pcm builds the shuffled, decoded audio for one listener, paced to real
// time with burst frames of lead when burst is positive.
func (s *Station) pcm(burst int) pipeline.Stream[audio.Chunk] {
	seq := playlist.New(s.catalog, append([]playlist.Option{playlist.WithRetry(s.cfg.EmptyRetry)}, s.playlistOps...)...)
	decoded := pipeline.FlatMap[catalog.TrackID, audio.Chunk](seq, s.tracks.Decode)
	if burst <= 0 {
		return decoded
	}
	return pipeline.NewRateLimiter(decoded, audio.SampleRate, burst, s.limiterOptions()...)
}

// httpBurst is the PCM lead for HTTP listeners, zero when PCM pacing is off.
func (s *Station) httpBurst() int {
	if !s.cfg.PacePCM {
		return 0
	}
	return audio.SampleRate * burstFactor
}

func (s *Station) limiterOptions() []pipeline.RateLimiterOption {
	return append([]pipeline.RateLimiterOption{pipeline.WithSlack(s.cfg.PacingSlack)}, s.limiterOps...)
}

// Listen starts the encoded stream for one listener. An error means the
// codec session could not be created and nothing was sent. The stream ends
// when ctx is done or the station shuts down, whichever comes first, even
// while it is waiting on the pacer. The caller must Close the stream.
func (s *Station) Listen(ctx context.Context, id string, format encoder.Format) (pipeline.Stream[encoder.Bytes], error) {
	session, err := s.newSession(format, s.cfg.Encoder)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialise audio encoder")
	}
	pcm := s.pcm(s.httpBurst())
	in, err := encoder.Input(format, pcm)
	if err != nil {
		pcm.Close()
		session.Close()
		return nil, errors.Wrap(err, "failed to initialise audio encoder")
	}

	l := s.subscribe(id, format)
	enc := encoder.NewWithSession(session, in, s.logger)
	paced := pipeline.NewRateLimiter(pipeline.Until[encoder.Bytes](l, enc), float64(s.cfg.byteRate()), s.cfg.byteBurst(), s.limiterOptions()...)
	return newListenerStream[encoder.Bytes](ctx, paced, s, l), nil
}

// ListenPCM starts a decoded stream paced to real time with little lead, for
// transports that encode per frame themselves. It ends like Listen.
func (s *Station) ListenPCM(ctx context.Context, id string) pipeline.Stream[audio.Chunk] {
	l := s.subscribe(id, "pcm")
	return newListenerStream(ctx, pipeline.Until(l, s.pcm(peerBurst)), s, l)
}

func (s *Station) subscribe(id string, format encoder.Format) *pipeline.Listener {
	l := s.shutdown.Subscribe(id)
	listenersActive.Inc()
	listenerSessions.WithLabelValues(string(format)).Inc()
	return l
}

// listenerStream runs a listener's pipeline under the context it was opened
// with, cut short by station shutdown, and ends the subscription on Close.
type listenerStream[T any] struct {
	pipeline.Stream[T]
	station  *Station
	listener *pipeline.Listener
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	stop   func() bool
}

func newListenerStream[T any](ctx context.Context, src pipeline.Stream[T], s *Station, l *pipeline.Listener) *listenerStream[T] {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.shutdown.Context(), cancel)
	return &listenerStream[T]{Stream: src, station: s, listener: l, ctx: ctx, cancel: cancel, stop: stop}
}

// Next pulls under both ctx and the listener's own context. A wait cut short
// by station shutdown ends the stream with io.EOF.
func (ls *listenerStream[T]) Next(ctx context.Context) (T, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer context.AfterFunc(ls.ctx, cancel)()

	item, err := ls.Stream.Next(ctx)
	if err != nil && ctx.Err() != nil && ls.station.shutdown.Context().Err() != nil {
		var zero T
		return zero, io.EOF
	}
	return item, err
}

func (ls *listenerStream[T]) Close() error {
	if ls.closed {
		return nil
	}
	ls.closed = true
	ls.stop()
	ls.cancel()
	err := ls.Stream.Close()
	ls.station.shutdown.Unsubscribe(ls.listener)
	listenersActive.Dec()
	return err
}

func (s *Station) running(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

// stopping ends every listener pipeline at its next pull and waits, up to
// the drain timeout, for them to close.
func (s *Station) stopping(_ error) error {
	n := s.shutdown.ListenerCount()
	s.shutdown.Fire()
	s.logger.Info("stopping", "listeners", n)

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.DrainTimeout)
	defer cancel()
	if err := s.shutdown.Wait(ctx); err != nil {
		s.logger.Warn("listeners still connected after drain timeout", "listeners", s.shutdown.ListenerCount())
	}
	return nil
}

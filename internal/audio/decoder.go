package audio

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/gopxl/beep/v2"
	"github.com/pkg/errors"

	"github.com/satindergrewal/shuffleradio/internal/catalog"
	"github.com/satindergrewal/shuffleradio/internal/media"
	"github.com/satindergrewal/shuffleradio/internal/pipeline"
)

// Tracks opens catalog entries as canonical PCM streams.
type Tracks struct {
	source media.Source
	prober media.Prober
	codecs media.Codecs
	logger *slog.Logger

	// abortOnReadError makes a failed packet read end the whole listener
	// stream instead of only the current track.
	abortOnReadError bool
}

// TracksOption configures Tracks.
type TracksOption func(*Tracks)

// WithMedia replaces the default file, beep and PCM capabilities.
func WithMedia(source media.Source, prober media.Prober, codecs media.Codecs) TracksOption {
	return func(t *Tracks) {
		t.source = source
		t.prober = prober
		t.codecs = codecs
	}
}

// WithAbortOnReadError sets the read failure policy.
func WithAbortOnReadError(abort bool) TracksOption {
	return func(t *Tracks) { t.abortOnReadError = abort }
}

// NewTracks returns a decoder factory reading from the local filesystem.
func NewTracks(logger *slog.Logger, opts ...TracksOption) *Tracks {
	t := &Tracks{
		source: media.FileSource{},
		prober: media.BeepProber{},
		codecs: media.PCMCodecs{},
		logger: logger.With("module", "decoder"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Decode returns a lazy stream of the track's audio. Nothing is opened until
// the first call to Next. Files that cannot be opened, probed or decoded
// produce a short or empty stream rather than an error.
func (t *Tracks) Decode(id catalog.TrackID) pipeline.Stream[Chunk] {
	return &TrackDecoder{tracks: t, id: id, logger: t.logger.With("track", id.String())}
}

// TrackDecoder is the decode session for one file. At most one elementary
// track decoder is active at a time.
type TrackDecoder struct {
	tracks *Tracks
	id     catalog.TrackID
	logger *slog.Logger

	started bool
	done    bool
	demux   media.Demuxer
	streams []media.Track
	active  *activeTrack
	// next is a packet already read that starts the next elementary track.
	next *media.Packet
	buf  [][2]float64
}

type activeTrack struct {
	src *elementary
	out beep.Streamer
}

func (d *TrackDecoder) Next(ctx context.Context) (Chunk, error) {
	if d.done {
		return Chunk{}, io.EOF
	}
	if !d.started {
		d.started = true
		if !d.open() {
			d.finish(outcomeSkipped)
			return Chunk{}, io.EOF
		}
		d.buf = make([][2]float64, chunkFrames)
	}

	for {
		if err := ctx.Err(); err != nil {
			return Chunk{}, err
		}

		if d.active == nil {
			p, err := d.nextPacket()
			if errors.Is(err, io.EOF) {
				d.finish(outcomeComplete)
				return Chunk{}, io.EOF
			}
			if err != nil {
				return Chunk{}, d.readFailed(err)
			}
			track, ok := d.stream(p.TrackID)
			if !ok {
				continue
			}
			if err := d.startTrack(track, p); err != nil {
				d.logger.Warn("failed starting track decoder", "stream", p.TrackID, "err", err)
				d.finish(outcomeSkipped)
				return Chunk{}, io.EOF
			}
		}

		if n, _ := d.active.out.Stream(d.buf); n > 0 {
			return chunkOf(d.buf[:n]), nil
		}

		src := d.active.src
		switch {
		case src.decodeErr != nil:
			d.logger.Warn("failed decoding packet", "stream", src.id, "err", src.decodeErr)
			d.finish(outcomeAborted)
			return Chunk{}, io.EOF
		case src.readErr != nil:
			return Chunk{}, d.readFailed(src.readErr)
		case src.eof:
			d.finish(outcomeComplete)
			return Chunk{}, io.EOF
		}
		// The file moved on to another elementary track.
		d.closeActive()
	}
}

// readFailed ends the track after a packet read failure. The returned error
// is io.EOF unless the read policy ends the whole listener stream.
func (d *TrackDecoder) readFailed(err error) error {
	d.logger.Warn("failed reading packet", "err", err)
	d.finish(outcomeAborted)
	if d.tracks.abortOnReadError {
		return errors.Wrapf(err, "read %s", d.id)
	}
	return io.EOF
}

func (d *TrackDecoder) open() bool {
	path := d.id.String()
	r, err := d.tracks.source.Open(path)
	if err != nil {
		d.logger.Warn("failed opening track", "err", err)
		return false
	}
	demux, err := d.tracks.prober.Probe(r, filepath.Ext(path))
	if err != nil {
		r.Close()
		d.logger.Warn("failed probing track", "err", err)
		return false
	}
	d.demux = demux
	d.streams = demux.Tracks()
	if len(d.streams) == 0 {
		d.logger.Warn("failed probing track", "err", media.ErrNoTracks)
		return false
	}
	return true
}

func (d *TrackDecoder) nextPacket() (media.Packet, error) {
	if d.next != nil {
		p := *d.next
		d.next = nil
		return p, nil
	}
	return d.demux.NextPacket()
}

func (d *TrackDecoder) stream(id uint32) (media.Track, bool) {
	for _, t := range d.streams {
		if t.ID == id {
			return t, true
		}
	}
	return media.Track{}, false
}

// startTrack starts a fresh decoder and resampler for the elementary track
// that first packet belongs to.
func (d *TrackDecoder) startTrack(track media.Track, first media.Packet) error {
	if err := checkRates(track.Params.SampleRate, SampleRate); err != nil {
		return err
	}
	dec, err := d.tracks.codecs.NewDecoder(track.Params)
	if err != nil {
		return err
	}
	src := &elementary{d: d, id: track.ID, dec: dec}
	out, err := convertRate(src, track.Params.SampleRate, SampleRate)
	if err != nil {
		dec.Close()
		return err
	}
	d.next = &first
	d.active = &activeTrack{src: src, out: out}
	return nil
}

func (d *TrackDecoder) closeActive() {
	if d.active == nil {
		return
	}
	if err := d.active.src.dec.Close(); err != nil {
		d.logger.Debug("failed closing decoder", "err", err)
	}
	d.active = nil
}

func (d *TrackDecoder) finish(outcome string) {
	if d.done {
		return
	}
	d.done = true
	d.closeActive()
	d.next = nil
	if d.demux != nil {
		if err := d.demux.Close(); err != nil {
			d.logger.Debug("failed closing track", "err", err)
		}
		d.demux = nil
	}
	trackOutcomes.WithLabelValues(outcome).Inc()
}

// Close releases the file and any active decoder. It is safe to call at any
// point and more than once.
func (d *TrackDecoder) Close() error {
	d.finish(outcomeClosed)
	return nil
}

// elementary streams the decoded audio of one elementary track to beep,
// reading packets from the file on demand. It ends at the first packet of
// another known track and leaves that packet for the next elementary stream.
// Packets of unknown tracks are skipped.
type elementary struct {
	d       *TrackDecoder
	id      uint32
	dec     media.Decoder
	pending [][2]float64
	ended   bool

	eof       bool
	readErr   error
	decodeErr error
}

func (e *elementary) Stream(samples [][2]float64) (n int, ok bool) {
	for n < len(samples) {
		if len(e.pending) == 0 && !e.fill() {
			break
		}
		k := copy(samples[n:], e.pending)
		e.pending = e.pending[k:]
		n += k
	}
	return n, n > 0
}

func (e *elementary) Err() error {
	if e.decodeErr != nil {
		return e.decodeErr
	}
	return e.readErr
}

// fill decodes packets until one yields audio. It reports false once this
// elementary track has no more audio.
func (e *elementary) fill() bool {
	for !e.ended {
		p, err := e.d.nextPacket()
		switch {
		case errors.Is(err, io.EOF):
			e.eof, e.ended = true, true
		case err != nil:
			e.readErr, e.ended = err, true
		case p.TrackID != e.id:
			if _, ok := e.d.stream(p.TrackID); ok {
				e.d.next = &p
				e.ended = true
			}
		default:
			buf, err := e.dec.Decode(p)
			if err != nil {
				e.decodeErr, e.ended = err, true
				break
			}
			if e.pending = stereoFrames(buf); len(e.pending) > 0 {
				return true
			}
		}
	}
	return false
}

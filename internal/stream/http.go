package stream

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/zachfi/zkit/pkg/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/satindergrewal/shuffleradio/internal/audio"
	"github.com/satindergrewal/shuffleradio/internal/encoder"
	"github.com/satindergrewal/shuffleradio/internal/pipeline"
	"github.com/satindergrewal/shuffleradio/internal/radio"
)

// EncoderFailedMessage is the body of the 500 response sent when a
// listener's codec session cannot be created.
const EncoderFailedMessage = "Failed to initialise audio encoder"

var tracer = otel.Tracer("github.com/satindergrewal/shuffleradio/internal/stream")

// Station is the part of the radio the handlers serve from.
type Station interface {
	Listen(ctx context.Context, id string, format encoder.Format) (pipeline.Stream[encoder.Bytes], error)
	ListenPCM(ctx context.Context, id string) pipeline.Stream[audio.Chunk]
	Done() <-chan struct{}
	Format() encoder.Format
	Status() radio.Status
}

// HTTPHandler serves an open-ended compressed audio stream. Each request
// gets its own pipeline and codec session.
type HTTPHandler struct {
	station Station
	format  encoder.Format
	logger  *slog.Logger
}

// NewHTTPHandler creates an HTTP stream handler for one output format.
func NewHTTPHandler(s Station, format encoder.Format, logger *slog.Logger) *HTTPHandler {
	return &HTTPHandler{station: s, format: format, logger: logger.With("module", "http")}
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ctx, cancel := withStation(r.Context(), h.station)
	defer cancel()

	id := uuid.NewString()
	ctx, span := tracer.Start(ctx, "listener", trace.WithAttributes(
		attribute.String("listener.id", id),
		attribute.String("format", string(h.format)),
	))

	s, err := h.station.Listen(ctx, id, h.format)
	if err != nil {
		_ = tracing.ErrHandler(span, err, "failed to start listener", h.logger)
		http.Error(w, EncoderFailedMessage, http.StatusInternalServerError)
		return
	}
	defer s.Close()

	w.Header().Set("Content-Type", h.format.ContentType())
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Connection", "close")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.logger.Info("listener connected", "listener", id, "format", h.format, "total", h.station.Status().Listeners)

	sent, err := copyStream(ctx, w, flusher, s)
	h.logger.Info("listener disconnected", "listener", id, "bytes", sent)
	span.SetAttributes(attribute.Int64("bytes", sent))
	_ = tracing.ErrHandler(span, err, "listener stream failed", h.logger)
}

// copyStream writes s to w until it ends, the client goes away or the
// station shuts down. Those are all clean ends; only pipeline failures are
// returned.
func copyStream(ctx context.Context, w io.Writer, flusher http.Flusher, s pipeline.Stream[encoder.Bytes]) (int64, error) {
	var sent int64
	for {
		b, err := s.Next(ctx)
		if errors.Is(err, io.EOF) || ctx.Err() != nil {
			return sent, nil
		}
		if err != nil {
			return sent, err
		}
		n, err := w.Write(b)
		sent += int64(n)
		if err != nil {
			return sent, nil
		}
		flusher.Flush()
	}
}

// withStation derives a context that is also cancelled when the station
// shuts down, so a pipeline blocked in a pacing delay wakes up.
func withStation(parent context.Context, s Station) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-s.Done():
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

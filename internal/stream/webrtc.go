package stream

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pkg/errors"

	"github.com/satindergrewal/shuffleradio/internal/encoder"
)

// WebRTCHandler serves WebRTC SDP negotiation for low-latency Opus streaming.
// Every peer gets its own shuffle, paced to real time at the PCM level.
type WebRTCHandler struct {
	station Station
	bitrate int
	logger  *slog.Logger

	mu    sync.Mutex
	peers map[*webrtc.PeerConnection]context.CancelFunc
}

// NewWebRTCHandler creates a WebRTC stream handler. bitrate is in kbps.
func NewWebRTCHandler(s Station, bitrate int, logger *slog.Logger) *WebRTCHandler {
	return &WebRTCHandler{
		station: s,
		bitrate: bitrate,
		logger:  logger.With("module", "webrtc"),
		peers:   make(map[*webrtc.PeerConnection]context.CancelFunc),
	}
}

// PeerCount returns the number of active WebRTC peers.
func (h *WebRTCHandler) PeerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

func (h *WebRTCHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.WriteHeader(http.StatusOK)
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}

	var offer webrtc.SessionDescription
	if err := json.NewDecoder(r.Body).Decode(&offer); err != nil {
		http.Error(w, "invalid SDP offer", http.StatusBadRequest)
		return
	}

	framer, err := encoder.NewOpusFramer(h.bitrate)
	if err != nil {
		h.logger.Error("failed to create opus encoder", "err", err)
		http.Error(w, EncoderFailedMessage, http.StatusInternalServerError)
		return
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		http.Error(w, "create peer connection failed", http.StatusInternalServerError)
		return
	}

	audioTrack, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio",
		"shuffleradio",
	)
	if err != nil {
		pc.Close()
		http.Error(w, "create audio track failed", http.StatusInternalServerError)
		return
	}

	if _, err := pc.AddTrack(audioTrack); err != nil {
		pc.Close()
		http.Error(w, "add track failed", http.StatusInternalServerError)
		return
	}

	if err := pc.SetRemoteDescription(offer); err != nil {
		pc.Close()
		http.Error(w, "set remote description failed", http.StatusBadRequest)
		return
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		http.Error(w, "create answer failed", http.StatusInternalServerError)
		return
	}

	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		http.Error(w, "set local description failed", http.StatusInternalServerError)
		return
	}

	// Wait for ICE gathering to complete
	<-webrtc.GatheringCompletePromise(pc)

	ctx, cancel := withStation(context.Background(), h.station)
	h.mu.Lock()
	h.peers[pc] = cancel
	h.mu.Unlock()

	id := uuid.NewString()
	h.logger.Info("peer connected", "listener", id, "total", h.PeerCount())

	go h.streamToPeer(ctx, id, framer, audioTrack)

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		if s == webrtc.PeerConnectionStateFailed ||
			s == webrtc.PeerConnectionStateClosed ||
			s == webrtc.PeerConnectionStateDisconnected {
			h.removePeer(pc)
			pc.Close()
			h.logger.Info("peer disconnected", "listener", id, "remaining", h.PeerCount())
		}
	})

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	json.NewEncoder(w).Encode(pc.LocalDescription())
}

// sampleWriter is the part of a local track the peer loop writes to.
type sampleWriter interface {
	WriteSample(s media.Sample) error
}

func (h *WebRTCHandler) streamToPeer(ctx context.Context, id string, framer *encoder.OpusFramer, track sampleWriter) {
	src := h.station.ListenPCM(ctx, id)
	pcm, err := encoder.OpusInput(src)
	if err != nil {
		src.Close()
		h.logger.Error("failed to resample for opus", "listener", id, "err", err)
		return
	}
	defer pcm.Close()

	for {
		chunk, err := pcm.Next(ctx)
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				h.logger.Warn("peer stream ended", "listener", id, "err", err)
			}
			return
		}
		packets, err := framer.Push(chunk)
		if err != nil {
			h.logger.Error("opus encode failed", "listener", id, "err", err)
			return
		}
		for _, p := range packets {
			if err := track.WriteSample(media.Sample{Data: p, Duration: encoder.OpusFrameDuration}); err != nil {
				return
			}
		}
	}
}

func (h *WebRTCHandler) removePeer(pc *webrtc.PeerConnection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cancel, ok := h.peers[pc]; ok {
		cancel()
		delete(h.peers, pc)
	}
}

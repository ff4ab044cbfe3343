package stream

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/satindergrewal/shuffleradio/internal/encoder"
	"github.com/satindergrewal/shuffleradio/internal/web"
)

// RegisterRoutes mounts the player page, the audio streams and the status
// API on r. opusBitrate is the WebRTC Opus bitrate in kbps.
func RegisterRoutes(r *mux.Router, s Station, opusBitrate int, logger *slog.Logger) *WebRTCHandler {
	rtc := NewWebRTCHandler(s, opusBitrate, logger)

	r.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(web.IndexHTML)
	}).Methods(http.MethodGet)

	r.Handle("/stream.mp3", NewHTTPHandler(s, encoder.MP3, logger)).Methods(http.MethodGet)
	r.Handle("/stream.ogg", NewHTTPHandler(s, encoder.OggOpus, logger)).Methods(http.MethodGet)
	r.Handle("/stream", NewHTTPHandler(s, s.Format(), logger)).Methods(http.MethodGet)
	r.Handle("/offer", rtc).Methods(http.MethodPost, http.MethodOptions)

	r.HandleFunc("/api/status", func(w http.ResponseWriter, _ *http.Request) {
		st := s.Status()
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		json.NewEncoder(w).Encode(map[string]any{
			"listeners":        st.Listeners,
			"tracks":           st.Tracks,
			"format":           st.Format,
			"webrtc_listeners": rtc.PeerCount(),
		})
	}).Methods(http.MethodGet)

	return rtc
}

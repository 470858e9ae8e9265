package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"whatsapp-gateway/whatsapp"
)

// Connection is the slice of the manager the dashboard consumes.
type Connection interface {
	Status() whatsapp.Status
	RequestQR(ctx context.Context) (whatsapp.QR, error)
	Reconnect(ctx context.Context) (whatsapp.QR, error)
}

// qrRequestTimeout bounds a QR/reconnect request end to end; it sits
// above the manager's wait timeout plus its polling fallback.
const qrRequestTimeout = 45 * time.Second

type Server struct {
	conn        Connection
	log         zerolog.Logger
	limiter     *RateLimiter
	stopCleanup func()
	srv         *http.Server
}

func NewServer(conn Connection, log zerolog.Logger) *Server {
	// QR and reconnect tear sessions down; one request per 2s per caller
	// with a small burst is plenty for a human clicking a dashboard.
	limiter := NewRateLimiter(0.5, 2)
	return &Server{
		conn:        conn,
		log:         log,
		limiter:     limiter,
		stopCleanup: limiter.StartCleanup(time.Minute, 10*time.Minute),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/whatsapp/status", s.handleStatus)
	mux.HandleFunc("/api/whatsapp/qr", s.handleQR)
	mux.HandleFunc("/api/whatsapp/reconnect", s.handleReconnect)
	return mux
}

// Start runs the HTTP server and blocks until it stops.
func (s *Server) Start(addr string) error {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info().Str("addr", addr).Msg("dashboard listening")
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.stopCleanup()
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET")
		return
	}
	writeJSON(w, http.StatusOK, s.conn.Status())
}

func (s *Server) handleQR(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET")
		return
	}
	if !s.limiter.Allow(clientIP(r)) {
		writeError(w, http.StatusTooManyRequests, "rate_limited", "too many QR requests, slow down")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), qrRequestTimeout)
	defer cancel()

	qr, err := s.conn.RequestQR(ctx)
	if err != nil {
		s.writeQRError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, qr)
}

func (s *Server) handleReconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}
	if !s.limiter.Allow(clientIP(r)) {
		writeError(w, http.StatusTooManyRequests, "rate_limited", "too many reconnect requests, slow down")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), qrRequestTimeout)
	defer cancel()

	qr, err := s.conn.Reconnect(ctx)
	if err != nil {
		s.writeQRError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, qr)
}

func (s *Server) writeQRError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, whatsapp.ErrAlreadyConnected):
		writeError(w, http.StatusBadRequest, "already_connected", "session is already connected")
	case errors.Is(err, whatsapp.ErrNotReady):
		writeError(w, http.StatusServiceUnavailable, "not_ready", "transport produced no QR yet, retry shortly")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusRequestTimeout, "timeout", "timed out waiting for QR")
	default:
		s.log.Error().Err(err).Msg("qr request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, errCode, message string) {
	writeJSON(w, code, map[string]string{"error": errCode, "message": message})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

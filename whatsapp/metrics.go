package whatsapp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricPhase = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "whatsapp_connection_phase",
		Help: "Current connection phase (0=disconnected 1=connecting 2=qr_ready 3=connected 4=pairing)",
	})
	metricReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "whatsapp_reconnects_scheduled_total",
		Help: "Total auto-reconnect attempts scheduled after a recoverable close",
	})
	metricQRIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "whatsapp_qr_codes_issued_total",
		Help: "Total QR codes encoded and cached",
	})
	metricQRTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "whatsapp_qr_wait_timeouts_total",
		Help: "Total QR waits that hit the timeout and fell back to polling",
	})
	metricStateCorrections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "whatsapp_state_corrections_total",
		Help: "Times reconciliation had to force-correct drifted connection state",
	})
)

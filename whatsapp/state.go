package whatsapp

import "time"

// connectionState is the process-wide mirror of the transport's condition:
// the believed phase, the live/dead verdict, and the cached QR image.
// It is advisory only; reconcile corrects it against the session whenever
// it is read. All methods expect the manager's lock to be held.
type connectionState struct {
	phase     Phase
	connected bool

	qrDataURL   string
	qrExpiresAt time.Time
}

// setPhase moves the lifecycle phase and keeps the connected flag in
// lockstep: connected is true iff the phase is PhaseConnected.
func (s *connectionState) setPhase(p Phase) {
	s.phase = p
	s.connected = p == PhaseConnected
	metricPhase.Set(float64(p))
}

func (s *connectionState) cacheQR(dataURL string, ttl time.Duration) {
	s.qrDataURL = dataURL
	s.qrExpiresAt = time.Now().Add(ttl)
}

func (s *connectionState) clearQR() {
	s.qrDataURL = ""
	s.qrExpiresAt = time.Time{}
}

func (s *connectionState) qrValid(now time.Time) bool {
	return s.qrDataURL != "" && now.Before(s.qrExpiresAt)
}

// qr returns the cached image with its remaining validity. Callers must
// have checked qrValid first.
func (s *connectionState) qr(now time.Time) QR {
	remaining := s.qrExpiresAt.Sub(now)
	secs := int((remaining + time.Second - 1) / time.Second)
	if secs < 0 {
		secs = 0
	}
	return QR{DataURL: s.qrDataURL, ExpiresIn: secs}
}

func (s *connectionState) snapshot(now time.Time) Status {
	return Status{
		Connected: s.connected,
		State:     s.phase.String(),
		HasQR:     s.qrValid(now),
	}
}

package whatsapp

// Phase is the coarse connection lifecycle label mirrored from the live
// transport session.
type Phase int

const (
	PhaseDisconnected Phase = iota
	PhaseConnecting
	PhaseQRReady
	PhaseConnected
	PhasePairing
)

func (p Phase) String() string {
	switch p {
	case PhaseDisconnected:
		return "DISCONNECTED"
	case PhaseConnecting:
		return "CONNECTING"
	case PhaseQRReady:
		return "QR_READY"
	case PhaseConnected:
		return "CONNECTED"
	case PhasePairing:
		return "PAIRING"
	}
	return "UNKNOWN"
}

// DisconnectCause classifies why the transport dropped the connection.
// Terminal causes (logged out, session conflict) never trigger an
// auto-reconnect; everything else is treated as recoverable.
type DisconnectCause int

const (
	CauseTransient DisconnectCause = iota
	CauseLoggedOut
	CauseSessionConflict
)

func (c DisconnectCause) String() string {
	switch c {
	case CauseLoggedOut:
		return "logged_out"
	case CauseSessionConflict:
		return "session_conflict"
	}
	return "transient"
}

// Normalized transport events. The whatsmeow adapter translates the
// library's event types into these; tests feed them directly.

// QREvent carries the pairing strings emitted while the transport waits
// for a device to scan.
type QREvent struct {
	Codes []string
}

// ConnectedEvent signals the socket is open and authenticated.
type ConnectedEvent struct{}

// PairSuccessEvent signals a device scanned the QR; the transport will
// follow up with a ConnectedEvent once the stream is re-established.
type PairSuccessEvent struct {
	ID       string
	Platform string
}

// DisconnectedEvent signals the socket closed.
type DisconnectedEvent struct {
	Cause  DisconnectCause
	Detail string
}

// CredentialsEvent signals the transport persisted updated credentials.
type CredentialsEvent struct{}

// Status is the read-only connection snapshot served to the dashboard.
// The QR image itself is never part of it.
type Status struct {
	Connected bool   `json:"connected"`
	State     string `json:"state"`
	HasQR     bool   `json:"hasQR"`
}

// QR is a scannable pairing code rendered as a PNG data URL.
type QR struct {
	DataURL   string `json:"qrCode"`
	ExpiresIn int    `json:"expiresIn"`
}

package whatsapp

import "errors"

var (
	// ErrAlreadyConnected is returned when a QR is requested while the
	// session is live. Not a fault; the caller simply has nothing to scan.
	ErrAlreadyConnected = errors.New("whatsapp: already connected")

	// ErrNotReady is returned when the transport produced no QR within the
	// bounded wait. Retryable.
	ErrNotReady = errors.New("whatsapp: qr code not ready")

	// ErrInitialization wraps transport failures during session creation.
	ErrInitialization = errors.New("whatsapp: transport initialization failed")
)

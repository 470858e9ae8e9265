package whatsapp

import "context"

// HandlerID identifies one event subscription on a transport session.
type HandlerID uint32

// Transport is one logical connection attempt against WhatsApp. The
// manager owns at most one live Transport at a time and never trusts its
// own mirrored state over the answers these probes give.
type Transport interface {
	// Connect opens the socket. Stored credentials may complete the
	// login silently, without any event being observed by a handler
	// attached afterwards.
	Connect() error

	// Logout gracefully unlinks the session. Best effort; callers
	// tolerate failure.
	Logout(ctx context.Context) error

	// Disconnect force-terminates the socket.
	Disconnect()

	// IsConnected reports whether the socket is currently open.
	IsConnected() bool

	// AuthenticatedID returns the logged-in identity, or "" when the
	// session holds no authenticated device. The pair
	// IsConnected && AuthenticatedID != "" is the liveness ground truth.
	AuthenticatedID() string

	AddEventHandler(fn func(evt any)) HandlerID
	RemoveEventHandler(id HandlerID)
}

// TransportFactory creates fresh sessions. Each call is a new connection
// attempt; the factory owns whatever credential store backs them.
type TransportFactory interface {
	NewSession(ctx context.Context) (Transport, error)
}

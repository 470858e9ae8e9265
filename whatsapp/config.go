package whatsapp

import "time"

// Config holds the manager's timing knobs. Tests shrink these; production
// uses DefaultConfig.
type Config struct {
	// QRValidity is how long an encoded QR image stays servable.
	QRValidity time.Duration
	// QRWaitTimeout bounds the wait on the pending-QR signal before the
	// polling fallback takes over.
	QRWaitTimeout time.Duration
	// PollInterval / PollAttempts bound the fallback loop that re-checks
	// the cache after a missed wakeup.
	PollInterval time.Duration
	PollAttempts int

	// ReconnectBase and ReconnectCap shape the auto-reconnect schedule:
	// delay n is min(ReconnectBase<<n, ReconnectCap).
	ReconnectBase time.Duration
	ReconnectCap  time.Duration
	// MaxReconnectAttempts caps consecutive auto-reconnects; past it the
	// session stays down until a manual reconnect.
	MaxReconnectAttempts int

	// ProbeInterval / ProbeWindow bound the post-initialize poll that
	// catches silent logins from stored credentials.
	ProbeInterval time.Duration
	ProbeWindow   time.Duration

	// SettleDelay is the pause around teardown/rebuild during a manual
	// reconnect.
	SettleDelay time.Duration
	// InitAwaitTimeout is how long a manual reconnect waits for an
	// in-flight initialization before abandoning it.
	InitAwaitTimeout time.Duration
	// LogoutTimeout bounds the graceful logout attempt during cleanup.
	LogoutTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		QRValidity:           60 * time.Second,
		QRWaitTimeout:        30 * time.Second,
		PollInterval:         500 * time.Millisecond,
		PollAttempts:         10,
		ReconnectBase:        2 * time.Second,
		ReconnectCap:         60 * time.Second,
		MaxReconnectAttempts: 10,
		ProbeInterval:        250 * time.Millisecond,
		ProbeWindow:          3 * time.Second,
		SettleDelay:          500 * time.Millisecond,
		InitAwaitTimeout:     10 * time.Second,
		LogoutTimeout:        5 * time.Second,
	}
}

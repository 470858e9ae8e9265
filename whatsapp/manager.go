package whatsapp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const eventBuffer = 32

// Manager owns the one-and-only transport session and keeps the mirrored
// connection state truthful. The transport's event feed is treated as
// advisory: event delivery has been observed to be late or missing
// (especially around silent logins from stored credentials), so every
// read reconciles the mirror against the live session first.
type Manager struct {
	cfg     Config
	factory TransportFactory
	log     zerolog.Logger

	mu       sync.Mutex
	state    connectionState
	session  Transport
	handler  HandlerID
	stopFeed chan struct{}

	// initDone is non-nil while an initialization is in flight; it is
	// closed on completion and concurrent callers await it instead of
	// racing a second attempt.
	initDone chan struct{}
	initErr  error

	// cleaning is the cleanup reentrancy latch: concurrent callers
	// simply return while a teardown is running.
	cleaning bool

	// qrReady is closed whenever a QR lands in the cache (or the wait
	// becomes moot because the session connected), then replaced.
	qrReady chan struct{}

	reconnectTimer    *time.Timer
	reconnectAttempts int
}

func NewManager(factory TransportFactory, cfg Config, log zerolog.Logger) *Manager {
	m := &Manager{
		cfg:     cfg,
		factory: factory,
		log:     log,
		qrReady: make(chan struct{}),
	}
	m.state.setPhase(PhaseDisconnected)
	return m
}

// Status reconciles and returns the connection snapshot. It never fails;
// status polling must not error.
func (m *Manager) Status() Status {
	m.reconcile()
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.snapshot(time.Now())
}

// reconcile re-derives the cached state from the live session. The probe
// happens outside the lock; if the session was replaced meanwhile the
// result is discarded rather than applied to the wrong handle.
func (m *Manager) reconcile() {
	m.mu.Lock()
	sess := m.session
	m.mu.Unlock()

	live := sess != nil && sess.IsConnected() && sess.AuthenticatedID() != ""

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != sess {
		return
	}
	if !m.state.qrValid(time.Now()) {
		m.state.clearQR()
	}
	switch {
	case live && !m.state.connected:
		m.log.Warn().Stringer("phase", m.state.phase).Msg("session live but state says otherwise, correcting")
		metricStateCorrections.Inc()
		m.becomeConnectedLocked()
	case !live && m.state.connected:
		m.log.Warn().Msg("session dead but state says connected, correcting")
		metricStateCorrections.Inc()
		m.state.setPhase(PhaseDisconnected)
		m.state.clearQR()
	}
}

// Initialize ensures a live session exists, creating one if needed.
// It is a no-op when the session is verified live, when an initialization
// is already in flight (the caller awaits that one), or when an existing
// session is legitimately mid-handshake.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	if sess := m.session; sess != nil {
		// The mirrored phase can lag reality, so ask the session itself.
		if sess.IsConnected() && sess.AuthenticatedID() != "" {
			m.becomeConnectedLocked()
			m.mu.Unlock()
			return nil
		}
	}
	if done := m.initDone; done != nil {
		m.mu.Unlock()
		select {
		case <-done:
			m.mu.Lock()
			err := m.initErr
			m.mu.Unlock()
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if m.session != nil && m.state.phase != PhaseDisconnected {
		// Mid-handshake; a second initialization must not race it.
		m.mu.Unlock()
		return nil
	}
	done := make(chan struct{})
	m.initDone = done
	m.mu.Unlock()

	err := m.startSession(ctx)

	m.mu.Lock()
	m.initErr = err
	m.initDone = nil
	m.mu.Unlock()
	close(done)
	return err
}

func (m *Manager) startSession(ctx context.Context) error {
	m.mu.Lock()
	stale := m.session != nil
	m.mu.Unlock()
	if stale {
		m.Cleanup(ctx)
	}
	m.awaitCleanupIdle(ctx)

	sess, err := m.factory.NewSession(ctx)
	if err != nil {
		m.mu.Lock()
		m.state.setPhase(PhaseDisconnected)
		m.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrInitialization, err)
	}

	feed := make(chan any, eventBuffer)
	stop := make(chan struct{})
	// Subscriptions attach before Connect so no early event slips past.
	id := sess.AddEventHandler(func(evt any) {
		select {
		case feed <- evt:
		case <-stop:
		}
	})

	m.mu.Lock()
	m.session = sess
	m.handler = id
	m.stopFeed = stop
	m.state.setPhase(PhaseConnecting)
	m.mu.Unlock()

	go m.consumeEvents(sess, feed, stop)

	if err := sess.Connect(); err != nil {
		m.log.Error().Err(err).Msg("transport connect failed")
		m.mu.Lock()
		if m.session == sess {
			m.detachLocked()
		}
		m.state.setPhase(PhaseDisconnected)
		m.mu.Unlock()
		sess.Disconnect()
		return fmt.Errorf("%w: %v", ErrInitialization, err)
	}

	m.log.Info().Msg("transport session started")
	m.probeSilentConnect(sess)
	return nil
}

// probeSilentConnect polls the fresh session for a short bounded window:
// stored credentials can complete the login without any open event being
// delivered to our handler, and the mirror must not stay at CONNECTING
// when that happens.
func (m *Manager) probeSilentConnect(sess Transport) {
	deadline := time.Now().Add(m.cfg.ProbeWindow)
	for time.Now().Before(deadline) {
		m.mu.Lock()
		if m.session != sess || m.state.phase != PhaseConnecting {
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()

		if sess.IsConnected() && sess.AuthenticatedID() != "" {
			m.mu.Lock()
			if m.session == sess && !m.state.connected {
				m.log.Info().Msg("silent login detected via stored credentials")
				metricStateCorrections.Inc()
				m.becomeConnectedLocked()
			}
			m.mu.Unlock()
			return
		}
		time.Sleep(m.cfg.ProbeInterval)
	}
}

// Cleanup tears the current session down: cancel any pending reconnect
// timer, detach subscriptions, attempt a graceful logout, then force the
// socket closed. Idempotent and reentrancy-guarded; it never fails.
func (m *Manager) Cleanup(ctx context.Context) {
	m.cleanupSession(ctx, nil)
}

// cleanupSession is Cleanup optionally scoped to one session: a non-nil
// only makes the call a no-op when another session has since taken its
// place, so a stale close can never tear down its replacement.
func (m *Manager) cleanupSession(ctx context.Context, only Transport) {
	m.mu.Lock()
	if m.cleaning || (only != nil && m.session != only) {
		m.mu.Unlock()
		return
	}
	m.cleaning = true
	// A stale timer must never fire into a half-destroyed session.
	m.cancelReconnectLocked()
	sess := m.detachLocked()
	m.state.setPhase(PhaseDisconnected)
	m.state.clearQR()
	m.mu.Unlock()

	if sess != nil {
		lctx, cancel := context.WithTimeout(ctx, m.cfg.LogoutTimeout)
		if err := sess.Logout(lctx); err != nil {
			m.log.Debug().Err(err).Msg("graceful logout failed, forcing disconnect")
		}
		cancel()
		sess.Disconnect()
		m.log.Info().Msg("transport session cleaned up")
	}

	m.mu.Lock()
	m.cleaning = false
	m.mu.Unlock()
}

// Close detaches and disconnects without logging out, preserving stored
// credentials across process restarts. For shutdown only.
func (m *Manager) Close() {
	m.mu.Lock()
	m.cancelReconnectLocked()
	sess := m.detachLocked()
	m.state.setPhase(PhaseDisconnected)
	m.state.clearQR()
	m.mu.Unlock()
	if sess != nil {
		sess.Disconnect()
	}
}

// detachLocked drops the session reference and its event subscription so
// late events cannot mutate state after replacement. The stop channel is
// closed before the handler is removed so a dispatch blocked on a full
// feed aborts instead of deadlocking against the removal.
func (m *Manager) detachLocked() Transport {
	sess := m.session
	if sess == nil {
		return nil
	}
	if m.stopFeed != nil {
		close(m.stopFeed)
		m.stopFeed = nil
	}
	sess.RemoveEventHandler(m.handler)
	m.session = nil
	return sess
}

func (m *Manager) awaitCleanupIdle(ctx context.Context) {
	for {
		m.mu.Lock()
		busy := m.cleaning
		m.mu.Unlock()
		if !busy {
			return
		}
		select {
		case <-time.After(20 * time.Millisecond):
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) consumeEvents(sess Transport, feed <-chan any, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case evt := <-feed:
			m.handleEvent(sess, evt)
		}
	}
}

func (m *Manager) handleEvent(sess Transport, evt any) {
	switch e := evt.(type) {
	case *QREvent:
		if len(e.Codes) > 0 {
			m.handleQRCode(sess, e.Codes[0])
		}
	case *PairSuccessEvent:
		m.handlePairSuccess(sess, e)
	case *ConnectedEvent:
		m.handleOpen(sess)
	case *DisconnectedEvent:
		m.handleClose(sess, e)
	case *CredentialsEvent:
		m.log.Debug().Msg("transport credentials updated")
	}
}

func (m *Manager) handleQRCode(sess Transport, code string) {
	dataURL, err := encodeQRDataURL(code)
	if err != nil {
		m.log.Error().Err(err).Msg("qr encode failed")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != sess || m.state.connected {
		return
	}
	m.state.cacheQR(dataURL, m.cfg.QRValidity)
	m.state.setPhase(PhaseQRReady)
	m.resolveQRWaitLocked()
	metricQRIssued.Inc()
	m.log.Info().Msg("qr code issued")
}

func (m *Manager) handlePairSuccess(sess Transport, e *PairSuccessEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != sess || m.state.connected {
		return
	}
	m.state.setPhase(PhasePairing)
	m.state.clearQR()
	m.log.Info().Str("jid", e.ID).Str("platform", e.Platform).Msg("device paired, waiting for open")
}

func (m *Manager) handleOpen(sess Transport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != sess {
		return
	}
	m.becomeConnectedLocked()
	m.log.Info().Msg("connection open")
}

func (m *Manager) handleClose(sess Transport, e *DisconnectedEvent) {
	m.mu.Lock()
	if m.session != sess {
		m.mu.Unlock()
		return
	}
	m.state.setPhase(PhaseDisconnected)
	m.state.clearQR()
	attempts := m.reconnectAttempts
	m.mu.Unlock()

	m.log.Warn().Stringer("cause", e.Cause).Str("detail", e.Detail).Msg("connection closed")
	m.cleanupSession(context.Background(), sess)

	switch {
	case e.Cause == CauseLoggedOut || e.Cause == CauseSessionConflict:
		m.log.Warn().Stringer("cause", e.Cause).Msg("terminal disconnect, manual reconnect required")
	case attempts >= m.cfg.MaxReconnectAttempts:
		m.log.Warn().Int("attempts", attempts).Msg("reconnect attempts exhausted, manual reconnect required")
	default:
		m.scheduleReconnect(attempts)
	}
}

func (m *Manager) scheduleReconnect(attempt int) {
	delay := reconnectDelay(m.cfg.ReconnectBase, m.cfg.ReconnectCap, attempt)
	m.mu.Lock()
	m.cancelReconnectLocked()
	m.reconnectAttempts = attempt + 1
	m.reconnectTimer = time.AfterFunc(delay, func() {
		if err := m.Initialize(context.Background()); err != nil {
			m.log.Error().Err(err).Msg("auto-reconnect failed")
		}
	})
	m.mu.Unlock()
	metricReconnects.Inc()
	m.log.Info().Dur("delay", delay).Int("attempt", attempt+1).Msg("auto-reconnect scheduled")
}

// reconnectDelay computes min(base<<attempt, limit).
func reconnectDelay(base, limit time.Duration, attempt int) time.Duration {
	if attempt >= 30 {
		return limit
	}
	d := base << uint(attempt)
	if d <= 0 || d > limit {
		return limit
	}
	return d
}

// becomeConnectedLocked commits the live verdict: the QR cache is cleared,
// any pending reconnect cancelled, and the attempt counter reset.
func (m *Manager) becomeConnectedLocked() {
	m.state.setPhase(PhaseConnected)
	m.state.clearQR()
	m.cancelReconnectLocked()
	m.reconnectAttempts = 0
	m.resolveQRWaitLocked()
}

func (m *Manager) cancelReconnectLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}

// resolveQRWaitLocked wakes everyone blocked on the pending-QR signal and
// arms a fresh one. Woken waiters re-read state; they never assume the
// wakeup means a QR exists.
func (m *Manager) resolveQRWaitLocked() {
	close(m.qrReady)
	m.qrReady = make(chan struct{})
}

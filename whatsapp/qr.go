package whatsapp

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/skip2/go-qrcode"
)

const qrImageSize = 256

func encodeQRDataURL(code string) (string, error) {
	png, err := qrcode.Encode(code, qrcode.Medium, qrImageSize)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// RequestQR answers "give me a scannable QR" for any number of concurrent
// callers without multiplying transport initializations. The fast path is
// the cached image; otherwise callers share one in-flight initialization,
// wait on the pending-QR signal, and fall back to a bounded poll. The
// fallback exists because a concurrent reconnect can consume the signal
// from under a waiter; polling guarantees forward progress regardless.
func (m *Manager) RequestQR(ctx context.Context) (QR, error) {
	m.reconcile()

	m.mu.Lock()
	now := time.Now()
	if m.state.connected {
		m.mu.Unlock()
		return QR{}, ErrAlreadyConnected
	}
	if m.state.qrValid(now) {
		qr := m.state.qr(now)
		m.mu.Unlock()
		return qr, nil
	}
	needInit := m.session == nil
	m.mu.Unlock()

	if needInit {
		if err := m.Initialize(ctx); err != nil {
			return QR{}, err
		}
	}

	// State may have moved while the initialization was awaited.
	m.mu.Lock()
	now = time.Now()
	if m.state.connected {
		m.mu.Unlock()
		return QR{}, ErrAlreadyConnected
	}
	if m.state.qrValid(now) {
		qr := m.state.qr(now)
		m.mu.Unlock()
		return qr, nil
	}
	phase := m.state.phase
	wait := m.qrReady
	m.mu.Unlock()

	if phase == PhaseConnecting || phase == PhaseQRReady {
		select {
		case <-wait:
		case <-time.After(m.cfg.QRWaitTimeout):
			metricQRTimeouts.Inc()
			m.log.Warn().Msg("qr wait timed out, falling back to polling")
		case <-ctx.Done():
			return QR{}, ctx.Err()
		}
		if qr, ok, err := m.checkQR(); err != nil || ok {
			return qr, err
		}
	}

	for i := 0; i < m.cfg.PollAttempts; i++ {
		select {
		case <-time.After(m.cfg.PollInterval):
		case <-ctx.Done():
			return QR{}, ctx.Err()
		}
		if qr, ok, err := m.checkQR(); err != nil || ok {
			return qr, err
		}
	}
	return QR{}, ErrNotReady
}

// checkQR re-reads connected/cache state after a suspension point.
func (m *Manager) checkQR() (QR, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.connected {
		return QR{}, false, ErrAlreadyConnected
	}
	now := time.Now()
	if m.state.qrValid(now) {
		return m.state.qr(now), true, nil
	}
	return QR{}, false, nil
}

// Reconnect forces a full teardown and rebuild, then produces a fresh QR.
// Safe to call mid-handshake: the pending reconnect timer is cancelled,
// any in-flight initialization is awaited (or abandoned on timeout), and
// cleanup always wins before the new session starts.
func (m *Manager) Reconnect(ctx context.Context) (QR, error) {
	m.log.Info().Msg("manual reconnect requested")

	m.mu.Lock()
	m.cancelReconnectLocked()
	done := m.initDone
	m.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-time.After(m.cfg.InitAwaitTimeout):
			m.log.Warn().Msg("abandoning in-flight initialization")
		case <-ctx.Done():
			return QR{}, ctx.Err()
		}
	}

	m.Cleanup(ctx)

	m.mu.Lock()
	m.state.setPhase(PhaseDisconnected)
	m.state.clearQR()
	m.reconnectAttempts = 0
	m.resolveQRWaitLocked()
	m.mu.Unlock()

	if err := sleepCtx(ctx, m.cfg.SettleDelay); err != nil {
		return QR{}, err
	}
	if err := m.Initialize(ctx); err != nil {
		return QR{}, err
	}
	if err := sleepCtx(ctx, m.cfg.SettleDelay); err != nil {
		return QR{}, err
	}
	return m.RequestQR(ctx)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

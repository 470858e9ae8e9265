package whatsapp

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// qrAfterConnect makes every new session emit a QR code shortly after
// Connect, like an unauthenticated socket does.
func qrAfterConnect(code string) func(s *fakeSession) {
	return func(s *fakeSession) {
		s.onConnect = func(s *fakeSession) {
			time.Sleep(10 * time.Millisecond)
			s.emit(&QREvent{Codes: []string{code, "fallback-1", "fallback-2"}})
		}
	}
}

func TestRequestQRIssuesAndCaches(t *testing.T) {
	f := &fakeFactory{prep: qrAfterConnect("qr-token-1")}
	m := newTestManager(f, testConfig())

	qr, err := m.RequestQR(context.Background())
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(qr.DataURL, "data:image/png;base64,"))
	require.Equal(t, 2, qr.ExpiresIn)
	require.Equal(t, 1, f.count())

	again, err := m.RequestQR(context.Background())
	require.NoError(t, err)
	require.Equal(t, qr.DataURL, again.DataURL, "second call serves the cache")
	require.Equal(t, 1, f.count(), "cache hit must not initialize again")

	time.Sleep(1050 * time.Millisecond)
	later, err := m.RequestQR(context.Background())
	require.NoError(t, err)
	require.Equal(t, qr.DataURL, later.DataURL)
	require.Less(t, later.ExpiresIn, qr.ExpiresIn, "remaining validity shrinks")

	st := m.Status()
	require.True(t, st.HasQR)
	require.Equal(t, "QR_READY", st.State)
}

func TestRequestQRWhenConnected(t *testing.T) {
	f := &fakeFactory{}
	m := newTestManager(f, testConfig())
	require.NoError(t, m.Initialize(context.Background()))
	f.last().goLive()
	require.Eventually(t, func() bool { return m.Status().Connected }, time.Second, 5*time.Millisecond)

	_, err := m.RequestQR(context.Background())
	require.ErrorIs(t, err, ErrAlreadyConnected)
	require.Equal(t, 1, f.count())
}

func TestRequestQRNotReady(t *testing.T) {
	f := &fakeFactory{}
	m := newTestManager(f, testConfig())

	_, err := m.RequestQR(context.Background())
	require.ErrorIs(t, err, ErrNotReady)
	require.Equal(t, 1, f.count())
}

func TestRequestQRConcurrentSharesOneSession(t *testing.T) {
	f := &fakeFactory{prep: qrAfterConnect("qr-shared")}
	m := newTestManager(f, testConfig())

	var wg sync.WaitGroup
	results := make([]QR, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			qr, err := m.RequestQR(context.Background())
			require.NoError(t, err)
			results[i] = qr
		}(i)
	}
	wg.Wait()

	require.Equal(t, 1, f.count())
	for _, qr := range results[1:] {
		require.Equal(t, results[0].DataURL, qr.DataURL)
	}
}

func TestRequestQRReissueAfterExpiry(t *testing.T) {
	f := &fakeFactory{prep: qrAfterConnect("qr-gen-1")}
	cfg := testConfig()
	cfg.QRValidity = 150 * time.Millisecond
	m := newTestManager(f, cfg)

	first, err := m.RequestQR(context.Background())
	require.NoError(t, err)

	time.Sleep(200 * time.Millisecond)
	require.False(t, m.Status().HasQR, "expired qr must not be reported")

	// The socket rotates codes; a fresh one arrives while the caller waits.
	go func() {
		time.Sleep(50 * time.Millisecond)
		f.last().emit(&QREvent{Codes: []string{"qr-gen-2"}})
	}()

	second, err := m.RequestQR(context.Background())
	require.NoError(t, err)
	require.NotEqual(t, first.DataURL, second.DataURL)
}

func TestRequestQRCancelled(t *testing.T) {
	f := &fakeFactory{}
	m := newTestManager(f, testConfig())
	require.NoError(t, m.Initialize(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := m.RequestQR(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReconnectRebuildsSession(t *testing.T) {
	f := &fakeFactory{prep: qrAfterConnect("qr-rebuild")}
	m := newTestManager(f, testConfig())

	require.NoError(t, m.Initialize(context.Background()))
	old := f.last()
	old.goLive()
	require.Eventually(t, func() bool { return m.Status().Connected }, time.Second, 5*time.Millisecond)

	qr, err := m.Reconnect(context.Background())
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(qr.DataURL, "data:image/png;base64,"))
	require.Equal(t, 2, f.count())
	require.EqualValues(t, 1, atomic.LoadInt32(&old.logoutCalls), "old session is logged out")
	require.EqualValues(t, 1, atomic.LoadInt32(&old.disconnectCalls))
	require.Equal(t, 0, attempts(m))

	// A straggler event from the replaced session changes nothing.
	old.emit(&ConnectedEvent{})
	time.Sleep(50 * time.Millisecond)
	st := m.Status()
	require.False(t, st.Connected)
	require.Equal(t, "QR_READY", st.State)
}

func TestReconnectFromQRState(t *testing.T) {
	f := &fakeFactory{prep: qrAfterConnect("qr-again")}
	m := newTestManager(f, testConfig())

	first, err := m.RequestQR(context.Background())
	require.NoError(t, err)
	old := f.last()

	second, err := m.Reconnect(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, f.count())
	require.EqualValues(t, 1, atomic.LoadInt32(&old.logoutCalls))
	require.Equal(t, first.DataURL, second.DataURL, "same code encodes to the same image")
	assertPhaseInvariant(t, m)
}

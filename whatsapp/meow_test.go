package whatsapp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

func TestTranslateEvent(t *testing.T) {
	jid := types.JID{User: "5511999990000", Server: types.DefaultUserServer}

	t.Run("qr", func(t *testing.T) {
		evt := translateEvent(&events.QR{Codes: []string{"a", "b"}})
		qr, ok := evt.(*QREvent)
		require.True(t, ok)
		assert.Equal(t, []string{"a", "b"}, qr.Codes)
	})

	t.Run("connected", func(t *testing.T) {
		_, ok := translateEvent(&events.Connected{}).(*ConnectedEvent)
		assert.True(t, ok)
	})

	t.Run("pair success", func(t *testing.T) {
		evt := translateEvent(&events.PairSuccess{ID: jid, Platform: "android"})
		ps, ok := evt.(*PairSuccessEvent)
		require.True(t, ok)
		assert.Equal(t, jid.String(), ps.ID)
		assert.Equal(t, "android", ps.Platform)
	})

	t.Run("disconnected is transient", func(t *testing.T) {
		evt := translateEvent(&events.Disconnected{})
		d, ok := evt.(*DisconnectedEvent)
		require.True(t, ok)
		assert.Equal(t, CauseTransient, d.Cause)
	})

	t.Run("logged out", func(t *testing.T) {
		evt := translateEvent(&events.LoggedOut{OnConnect: false, Reason: events.ConnectFailureLoggedOut})
		d, ok := evt.(*DisconnectedEvent)
		require.True(t, ok)
		assert.Equal(t, CauseLoggedOut, d.Cause)
		assert.NotEmpty(t, d.Detail)
	})

	t.Run("stream replaced is a session conflict", func(t *testing.T) {
		evt := translateEvent(&events.StreamReplaced{})
		d, ok := evt.(*DisconnectedEvent)
		require.True(t, ok)
		assert.Equal(t, CauseSessionConflict, d.Cause)
	})

	t.Run("connect failure maps by reason", func(t *testing.T) {
		evt := translateEvent(&events.ConnectFailure{Reason: events.ConnectFailureLoggedOut, Message: "401"})
		d, ok := evt.(*DisconnectedEvent)
		require.True(t, ok)
		assert.Equal(t, CauseLoggedOut, d.Cause)

		evt = translateEvent(&events.ConnectFailure{Reason: events.ConnectFailureServiceUnavailable, Message: "503"})
		d, ok = evt.(*DisconnectedEvent)
		require.True(t, ok)
		assert.Equal(t, CauseTransient, d.Cause)
	})

	t.Run("irrelevant events are dropped", func(t *testing.T) {
		assert.Nil(t, translateEvent(&events.Message{}))
		assert.Nil(t, translateEvent("garbage"))
	})
}

package whatsapp

import (
	"context"
	"fmt"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// MeowFactory builds whatsmeow-backed transport sessions on top of a
// shared sqlstore container. The container persists device credentials,
// which is why a freshly built session can connect without a QR scan.
type MeowFactory struct {
	container *sqlstore.Container
	log       waLog.Logger
}

func NewMeowFactory(container *sqlstore.Container, log waLog.Logger) *MeowFactory {
	return &MeowFactory{container: container, log: log}
}

func (f *MeowFactory) NewSession(ctx context.Context) (Transport, error) {
	// GetFirstDevice hands back a brand new device when the store is empty.
	device, err := f.container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get device: %w", err)
	}
	cli := whatsmeow.NewClient(device, f.log.Sub("Client"))
	return &meowSession{cli: cli}, nil
}

type meowSession struct {
	cli *whatsmeow.Client
}

func (s *meowSession) Connect() error {
	return s.cli.Connect()
}

func (s *meowSession) Logout(ctx context.Context) error {
	return s.cli.Logout(ctx)
}

func (s *meowSession) Disconnect() {
	s.cli.Disconnect()
}

func (s *meowSession) IsConnected() bool {
	return s.cli.IsConnected()
}

func (s *meowSession) AuthenticatedID() string {
	if id := s.cli.Store.ID; id != nil {
		return id.String()
	}
	return ""
}

func (s *meowSession) AddEventHandler(fn func(evt any)) HandlerID {
	return HandlerID(s.cli.AddEventHandler(func(raw interface{}) {
		if evt := translateEvent(raw); evt != nil {
			fn(evt)
		}
	}))
}

func (s *meowSession) RemoveEventHandler(id HandlerID) {
	s.cli.RemoveEventHandler(uint32(id))
}

// translateEvent maps whatsmeow events onto the manager's normalized set.
// Events with no bearing on connection state are dropped here.
func translateEvent(raw interface{}) any {
	switch e := raw.(type) {
	case *events.QR:
		return &QREvent{Codes: e.Codes}
	case *events.Connected:
		return &ConnectedEvent{}
	case *events.PairSuccess:
		return &PairSuccessEvent{ID: e.ID.String(), Platform: e.Platform}
	case *events.Disconnected:
		return &DisconnectedEvent{Cause: CauseTransient}
	case *events.LoggedOut:
		return &DisconnectedEvent{Cause: CauseLoggedOut, Detail: e.Reason.String()}
	case *events.StreamReplaced:
		// Another session took over with the same credentials.
		return &DisconnectedEvent{Cause: CauseSessionConflict, Detail: "stream replaced"}
	case *events.ConnectFailure:
		cause := CauseTransient
		if e.Reason == events.ConnectFailureLoggedOut {
			cause = CauseLoggedOut
		}
		return &DisconnectedEvent{Cause: cause, Detail: e.Message}
	case *events.TemporaryBan:
		return &DisconnectedEvent{Cause: CauseTransient, Detail: fmt.Sprintf("temporary ban: %v", e.Code)}
	}
	return nil
}

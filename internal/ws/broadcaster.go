package ws

import (
	"go.uber.org/zap"

	"github.com/xiaot623/clinic-assistant/internal/domain"
	"github.com/xiaot623/clinic-assistant/internal/hub"
	"github.com/xiaot623/clinic-assistant/internal/protocol"
	"github.com/xiaot623/clinic-assistant/internal/transcript"
)

// broadcaster forwards a session's transcript and notifications to every
// connection bound to it. It is both a transcript.Sink and a chat.Notifier.
type broadcaster struct {
	hub       *hub.Hub
	sessionID string
	logger    *zap.Logger
}

func (b *broadcaster) OnEntry(e transcript.Entry) {
	b.send(protocol.EntryMessage{
		BaseMessage: protocol.NewBase(protocol.TypeEntry, b.sessionID),
		Entry:       e,
	})
}

func (b *broadcaster) OnClear() {
	b.send(protocol.ClearMessage{BaseMessage: protocol.NewBase(protocol.TypeClear, b.sessionID)})
}

func (b *broadcaster) LoggedIn(patientID string) {
	b.send(protocol.LoggedInMessage{
		BaseMessage: protocol.NewBase(protocol.TypeLoggedIn, b.sessionID),
		PatientID:   patientID,
	})
}

func (b *broadcaster) LoggedOut(reason string) {
	b.send(protocol.LoggedOutMessage{
		BaseMessage: protocol.NewBase(protocol.TypeLoggedOut, b.sessionID),
		Reason:      reason,
	})
}

func (b *broadcaster) PatientUpdated(summary domain.PatientSummary) {
	b.send(protocol.PatientMessage{
		BaseMessage: protocol.NewBase(protocol.TypePatient, b.sessionID),
		Summary:     summary,
	})
}

func (b *broadcaster) Alert(message string) {
	b.send(protocol.AlertMessage{
		BaseMessage: protocol.NewBase(protocol.TypeAlert, b.sessionID),
		Message:     message,
	})
}

func (b *broadcaster) send(v interface{}) {
	if err := b.hub.BroadcastJSON(b.sessionID, v); err != nil {
		b.logger.Error("failed to encode session message",
			zap.String("session_id", b.sessionID),
			zap.Error(err))
	}
}

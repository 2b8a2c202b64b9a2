package instance

import "time"

type EventKind string

const (
	EventQR           EventKind = "qr"
	EventReady        EventKind = "ready"
	EventDisconnected EventKind = "disconnected"
	EventAuthFailure  EventKind = "auth_failure"
	EventMessage      EventKind = "message"

	// Internos: los empujan los timers del propio controlador.
	EventQRExpired    EventKind = "qr_expired"
	EventReconnectDue EventKind = "reconnect_due"
	// Operador: reconectar o reanudar una instancia deshabilitada.
	EventResume EventKind = "resume"
)

// Event is one typed adapter event. Only the fields of its Kind are set.
type Event struct {
	Kind     EventKind
	QR       string
	Identity Identity
	Reason   string
	Message  *InboundMessage
	// Generation ties timer events to the timer that produced them.
	Generation uint64
	At         time.Time
}

// InboundMessage is a text message received by an instance.
type InboundMessage struct {
	InstanceID string
	SenderID   string
	Text       string
	FromSelf   bool
	PushName   string
	ReceivedAt time.Time
}

func QREvent(code string) Event {
	return Event{Kind: EventQR, QR: code, At: time.Now()}
}

func ReadyEvent(id Identity) Event {
	return Event{Kind: EventReady, Identity: id, At: time.Now()}
}

func DisconnectedEvent(reason string) Event {
	return Event{Kind: EventDisconnected, Reason: reason, At: time.Now()}
}

func AuthFailureEvent(reason string) Event {
	return Event{Kind: EventAuthFailure, Reason: reason, At: time.Now()}
}

func MessageEvent(senderID, text string, fromSelf bool) Event {
	now := time.Now()
	return Event{Kind: EventMessage, At: now, Message: &InboundMessage{
		SenderID:   senderID,
		Text:       text,
		FromSelf:   fromSelf,
		ReceivedAt: now,
	}}
}

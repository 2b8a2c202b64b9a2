package instance

import "time"

type NotificationType string

const (
	NotificationLifecycle          NotificationType = "lifecycle"
	NotificationQR                 NotificationType = "qr"
	NotificationConversationStatus NotificationType = "conversation_status"
)

// Notification is what the dashboard sink receives. Delivery is best-effort.
type Notification struct {
	Type       NotificationType `json:"type"`
	InstanceID string           `json:"instance_id,omitempty"`
	Label      string           `json:"label,omitempty"`
	State      LifecycleState   `json:"state,omitempty"`
	QR         string           `json:"qr,omitempty"`
	SenderID   string           `json:"sender_id,omitempty"`
	Status     string           `json:"status,omitempty"`
	OperatorID string           `json:"operator_id,omitempty"`
	Error      string           `json:"error,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}

// INotifier must not block the caller.
type INotifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to INotifier.
type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

// Fanout delivers to every notifier in order.
type Fanout []INotifier

func (f Fanout) Notify(n Notification) {
	for _, sink := range f {
		if sink != nil {
			sink.Notify(n)
		}
	}
}

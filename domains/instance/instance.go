package instance

import (
	"context"
	"time"
)

type LifecycleState string

const (
	StateCreated      LifecycleState = "CREATED"
	StateAuthPending  LifecycleState = "AUTH_PENDING"
	StateConnecting   LifecycleState = "CONNECTING"
	StateConnected    LifecycleState = "CONNECTED"
	StateDisconnected LifecycleState = "DISCONNECTED"
	StateReconnecting LifecycleState = "RECONNECTING"
	StateDestroyed    LifecycleState = "DESTROYED"
)

// Identity is the real external identity reported by the session once it is ready.
type Identity struct {
	JID      string `json:"jid"`
	Phone    string `json:"phone"`
	PushName string `json:"push_name,omitempty"`
}

func (i Identity) IsZero() bool {
	return i.JID == "" && i.Phone == ""
}

// Instance is the read model of one managed WhatsApp session.
type Instance struct {
	ID                string         `json:"id"`
	Label             string         `json:"label"`
	State             LifecycleState `json:"state"`
	Identity          *Identity      `json:"identity,omitempty"`
	QRPayload         string         `json:"qr_payload,omitempty"`
	QRExpiresAt       *time.Time     `json:"qr_expires_at,omitempty"`
	LastActivity      time.Time      `json:"last_activity"`
	ErrorCount        int            `json:"error_count"`
	ReconnectAttempts int            `json:"reconnect_attempts"`
	Enabled           bool           `json:"enabled"`
	CreatedAt         time.Time      `json:"created_at"`
}

// Snapshot is the stable list() view; it carries no timers nor adapters.
type Snapshot struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Connected bool   `json:"connected"`
	Enabled   bool   `json:"enabled"`
}

type CreateInstanceRequest struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type QRResponse struct {
	InstanceID string     `json:"instance_id"`
	Payload    string     `json:"payload"`
	ImageURL   string     `json:"image_url,omitempty"` // data:image/png;base64,...
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// IInstanceManager is what the outer layers (REST, MCP, websocket) use.
type IInstanceManager interface {
	Create(ctx context.Context, instanceID, label string) (Instance, error)
	Destroy(ctx context.Context, instanceID string) bool
	List() []Snapshot
	Get(instanceID string) (Instance, error)
	QR(instanceID string) (QRResponse, error)
	SetEnabled(ctx context.Context, instanceID string, enabled bool) error
	Reconnect(ctx context.Context, instanceID string) error
	Send(ctx context.Context, instanceID, to, text string) error
}

type SendMessageRequest struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

package conversation

import (
	"context"
	"strings"
	"time"
)

type Status string

const (
	StatusBot      Status = "bot"
	StatusHuman    Status = "human"
	StatusAwaiting Status = "awaiting"
	StatusFinished Status = "finished"
)

var AllStatuses = []Status{StatusBot, StatusHuman, StatusAwaiting, StatusFinished}

func (s Status) Valid() bool {
	for _, v := range AllStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// AllowsAutoReply: solo "bot" deja pasar mensajes al responder.
func (s Status) AllowsAutoReply() bool {
	return s == StatusBot
}

type Author string

const (
	AuthorUser   Author = "user"
	AuthorSystem Author = "system"
)

// State is the per-sender conversation record owned by the router.
type State struct {
	SenderID           string    `json:"sender_id"`
	Status             Status    `json:"status"`
	AssignedOperatorID string    `json:"assigned_operator_id,omitempty"`
	InstanceID         string    `json:"instance_id,omitempty"` // last instance that received a message
	LastActivity       time.Time `json:"last_activity"`
}

type StatusChange struct {
	SenderID   string    `json:"sender_id"`
	Status     Status    `json:"status"`
	OperatorID string    `json:"operator_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

type Message struct {
	ID        string    `json:"id"`
	SenderID  string    `json:"sender_id"`
	Text      string    `json:"text"`
	Author    Author    `json:"author"`
	CreatedAt time.Time `json:"created_at"`
}

// BurstMessage is one bubble held in a pending burst.
type BurstMessage struct {
	Text       string
	ReceivedAt time.Time
}

// Burst is a coalesced run of inbound messages taken from the scheduler.
type Burst struct {
	SenderID   string
	InstanceID string
	PushName   string
	Messages   []BurstMessage
}

func (b Burst) Text() string {
	parts := make([]string, 0, len(b.Messages))
	for _, m := range b.Messages {
		if t := strings.TrimSpace(m.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n")
}

type SetStatusRequest struct {
	Status     Status `json:"status"`
	OperatorID string `json:"operator_id"`
}

// IConversationStore is the persistence collaborator.
// GetConversationStatus returns UnknownSender when the sender was never seen.
// EnsureConversation creates the record as bot only if it does not exist and
// returns whatever is stored afterwards; it never changes an existing status.
type IConversationStore interface {
	AppendMessage(ctx context.Context, senderID, text string, author Author) error
	GetRecentHistory(ctx context.Context, senderID string, limit int) ([]Message, error)
	GetConversationStatus(ctx context.Context, senderID string) (State, error)
	EnsureConversation(ctx context.Context, senderID string) (State, error)
	SetConversationStatus(ctx context.Context, senderID string, status Status, operatorID string) error
	ListConversations(ctx context.Context) ([]State, error)
}

// IConversationRouter is what the outer layers use to read/drive the gate.
type IConversationRouter interface {
	SetStatus(ctx context.Context, senderID string, status Status, operatorID string) (State, error)
	GetState(ctx context.Context, senderID string) (State, error)
	ListStates(ctx context.Context) ([]State, error)
	History(ctx context.Context, senderID string, limit int) ([]Message, error)
}

// NormalizeSenderID strips "+", blanks, the device suffix and the default
// user server so the same customer maps to one key across instances.
func NormalizeSenderID(raw string) string {
	id := strings.TrimSpace(raw)
	id = strings.TrimPrefix(id, "+")
	id = strings.ReplaceAll(id, " ", "")
	id = strings.ReplaceAll(id, "-", "")

	user, server, hasServer := strings.Cut(id, "@")
	if i := strings.Index(user, ":"); i >= 0 {
		user = user[:i]
	}
	if i := strings.Index(user, "."); i >= 0 {
		user = user[:i]
	}
	if !hasServer || server == "s.whatsapp.net" || server == "c.us" {
		return user
	}
	return user + "@" + server
}

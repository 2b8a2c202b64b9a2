package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"

	domainInstance "github.com/AzielCF/az-wap-sales/domains/instance"
	"github.com/AzielCF/az-wap-sales/infrastructure/valkey"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

const broadcastChannel = "azwap:ws_broadcast"

type BroadcastMessage struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Result   any    `json:"result"`
	SenderID string `json:"sender_id,omitempty"`
}

// Hub is the dashboard notification sink. Only Run touches the connection set.
type Hub struct {
	clients    map[*websocket.Conn]struct{}
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	broadcast  chan BroadcastMessage

	vk       *valkey.Client
	serverID string

	stopOnce sync.Once
	done     chan struct{}
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 256
	}
	return &Hub{
		clients:    make(map[*websocket.Conn]struct{}),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		broadcast:  make(chan BroadcastMessage, buffer),
		done:       make(chan struct{}),
	}
}

// SetValkeyClient enables fan-out of notifications across servers.
func (h *Hub) SetValkeyClient(client *valkey.Client, serverID string) {
	h.vk = client
	h.serverID = serverID
}

// Notify implements domainInstance.INotifier. It never blocks: when the
// queue is full the notification is dropped.
func (h *Hub) Notify(n domainInstance.Notification) {
	h.Publish(BroadcastMessage{Code: string(n.Type), Message: notificationMessage(n), Result: n})
}

func (h *Hub) Publish(msg BroadcastMessage) {
	select {
	case <-h.done:
	case h.broadcast <- msg:
	default:
		logrus.Warnf("[WS] Broadcast queue full, dropping %s", msg.Code)
	}
}

func notificationMessage(n domainInstance.Notification) string {
	switch n.Type {
	case domainInstance.NotificationQR:
		return "QR code updated"
	case domainInstance.NotificationConversationStatus:
		return "Conversation status changed"
	default:
		return "Instance state changed"
	}
}

// Run owns the client set until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	if h.vk != nil {
		h.startValkeySubscriber(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			h.Stop()
			for conn := range h.clients {
				h.closeConnection(conn)
			}
			return

		case conn := <-h.register:
			h.clients[conn] = struct{}{}
			logrus.Debug("[WS] Connection registered")

		case conn := <-h.unregister:
			delete(h.clients, conn)
			logrus.Debug("[WS] Connection unregistered")

		case message := <-h.broadcast:
			// 1. Clientes locales
			h.broadcastToLocal(message)

			// 2. Otros servidores, solo lo que se origino aqui
			if h.vk != nil && message.SenderID == "" {
				h.publishToValkey(ctx, message)
			}
		}
	}
}

func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// ClientCount is only meaningful from tests once Run has settled.
func (h *Hub) ClientCount() int {
	return len(h.clients)
}

func (h *Hub) broadcastToLocal(message BroadcastMessage) {
	payload, err := json.Marshal(message)
	if err != nil {
		logrus.Errorf("[WS] Marshal error: %v", err)
		return
	}

	for conn := range h.clients {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			logrus.Errorf("[WS] Write error: %v", err)
			h.closeConnection(conn)
		}
	}
}

func (h *Hub) publishToValkey(ctx context.Context, message BroadcastMessage) {
	message.SenderID = h.serverID
	data, err := json.Marshal(message)
	if err != nil {
		return
	}
	if err := h.vk.Publish(ctx, broadcastChannel, data); err != nil {
		logrus.Errorf("[WS] Failed to publish to Valkey: %v", err)
	}
}

func (h *Hub) startValkeySubscriber(ctx context.Context) {
	logrus.Info("[WS] Starting Valkey Pub/Sub subscriber for distributed events")
	go func() {
		err := h.vk.Subscribe(ctx, broadcastChannel, func(payload []byte) {
			var msg BroadcastMessage
			if err := json.Unmarshal(payload, &msg); err != nil {
				return
			}
			// evitar bucles: ignorar lo que publico este mismo servidor
			if msg.SenderID == "" || msg.SenderID == h.serverID {
				return
			}
			h.Publish(msg)
		})
		if err != nil && ctx.Err() == nil {
			logrus.Errorf("[WS] Valkey subscriber failed: %v", err)
		}
	}()
}

func (h *Hub) closeConnection(conn *websocket.Conn) {
	_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
	_ = conn.Close()
	delete(h.clients, conn)
}

// RegisterRoutes mounts /ws. Clients may send FETCH_INSTANCES to get the
// current instance list pushed to everyone.
func RegisterRoutes(app fiber.Router, hub *Hub, manager domainInstance.IInstanceManager) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return c.SendStatus(fiber.StatusUpgradeRequired)
	})

	app.Get("/ws", websocket.New(func(conn *websocket.Conn) {
		defer func() {
			select {
			case hub.unregister <- conn:
			case <-hub.done:
			}
			_ = conn.Close()
		}()

		select {
		case hub.register <- conn:
		case <-hub.done:
			return
		}

		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logrus.Debugf("[WS] read error: %v", err)
				}
				return
			}

			if messageType != websocket.TextMessage {
				logrus.Debugf("[WS] unsupported message type: %d", messageType)
				continue
			}

			var request BroadcastMessage
			if err := json.Unmarshal(message, &request); err != nil {
				logrus.Debugf("[WS] unmarshal error: %v", err)
				return
			}

			if request.Code == "FETCH_INSTANCES" {
				hub.Publish(BroadcastMessage{
					Code:    "LIST_INSTANCES",
					Message: "Instances found",
					Result:  manager.List(),
				})
			}
		}
	}))
}

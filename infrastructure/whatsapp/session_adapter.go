package whatsapp

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	domainInstance "github.com/AzielCF/az-wap-sales/domains/instance"
	"github.com/sirupsen/logrus"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"
)

const (
	eventBuffer = 256
	// messageWait bounds how long a message event waits for room in a full buffer.
	messageWait = 5 * time.Second
)

// SessionAdapter is the whatsmeow implementation of the capability adapter.
// It only translates: every lifecycle decision stays with the controller.
type SessionAdapter struct {
	instanceID string
	client     *whatsmeow.Client
	handlerID  uint32

	// release frees the device store when the adapter owns it.
	release func() error
	// onPaired stores the instance -> device binding after a QR login.
	onPaired func(jid types.JID)

	mu          sync.RWMutex
	events      chan domainInstance.Event
	closed      bool
	releaseOnce sync.Once

	// stop is closed first on Close so a blocked emit lets go of mu.
	stop        chan struct{}
	stopOnce    sync.Once
	messageWait time.Duration
	dropped     atomic.Int64

	qrMu     sync.Mutex
	qrCancel context.CancelFunc
}

func newSessionAdapter(instanceID string, client *whatsmeow.Client, release func() error, onPaired func(types.JID)) *SessionAdapter {
	a := &SessionAdapter{
		instanceID:  instanceID,
		client:      client,
		release:     release,
		onPaired:    onPaired,
		events:      make(chan domainInstance.Event, eventBuffer),
		stop:        make(chan struct{}),
		messageWait: messageWait,
	}
	if client != nil {
		a.handlerID = client.AddEventHandler(a.handleEvent)
	}
	return a
}

func (a *SessionAdapter) Events() <-chan domainInstance.Event { return a.events }

// Dropped counts message events lost to a full buffer.
func (a *SessionAdapter) Dropped() int64 { return a.dropped.Load() }

// Connect opens the socket. Without a stored pairing the QR flow is started
// and codes arrive as qr events.
func (a *SessionAdapter) Connect(ctx context.Context) error {
	if a.client == nil {
		return fmt.Errorf("no client")
	}
	if a.client.IsConnected() {
		a.client.Disconnect()
	}
	if a.client.Store.ID == nil {
		return a.pair(ctx)
	}
	logrus.Infof("[WHATSAPP] Restoring stored session for %s", a.instanceID)
	return a.client.Connect()
}

// RequestQR restarts pairing to obtain a fresh code.
func (a *SessionAdapter) RequestQR(ctx context.Context) error {
	if a.client == nil {
		return fmt.Errorf("no client")
	}
	if a.client.Store.ID != nil {
		return nil
	}
	a.client.Disconnect()
	return a.pair(ctx)
}

func (a *SessionAdapter) pair(ctx context.Context) error {
	a.qrMu.Lock()
	if a.qrCancel != nil {
		a.qrCancel()
	}
	qrCtx, cancel := context.WithCancel(ctx)
	a.qrCancel = cancel
	a.qrMu.Unlock()

	qrChan, err := a.client.GetQRChannel(qrCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("getting QR channel: %w", err)
	}
	if err := a.client.Connect(); err != nil {
		cancel()
		return fmt.Errorf("connecting for QR: %w", err)
	}

	go a.watchQR(qrCtx, qrChan)
	return nil
}

func (a *SessionAdapter) watchQR(ctx context.Context, qrChan <-chan whatsmeow.QRChannelItem) {
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-qrChan:
			if !ok {
				return
			}
			switch item.Event {
			case whatsmeow.QRChannelEventCode:
				a.emit(domainInstance.QREvent(item.Code))
			case whatsmeow.QRChannelSuccess.Event:
				logrus.Infof("[WHATSAPP] Pairing successful for %s", a.instanceID)
				return
			case whatsmeow.QRChannelTimeout.Event:
				// la expiracion la gestiona el controlador con su propio timer
				logrus.Debugf("[WHATSAPP] QR channel timed out for %s", a.instanceID)
				return
			default:
				if item.Error != nil {
					a.emit(domainInstance.AuthFailureEvent("pairing: " + item.Error.Error()))
				}
				return
			}
		}
	}
}

// Send delivers a plain text message. Plain numbers are sent to the default user server.
func (a *SessionAdapter) Send(ctx context.Context, to, text string) error {
	if a.client == nil || !a.client.IsLoggedIn() {
		return fmt.Errorf("instance %s is not logged in", a.instanceID)
	}
	jid, err := parseJID(to)
	if err != nil {
		return fmt.Errorf("invalid JID: %w", err)
	}

	msg := &waE2E.Message{
		ExtendedTextMessage: &waE2E.ExtendedTextMessage{
			Text: proto.String(text),
		},
	}
	resp, err := a.client.SendMessage(ctx, jid, msg)
	if err != nil {
		return err
	}
	logrus.Debugf("[WHATSAPP] Sent %s to %s via %s", resp.ID, jid.String(), a.instanceID)
	return nil
}

// Close disconnects, releases the store and closes Events.
func (a *SessionAdapter) Close(ctx context.Context) error {
	a.stopOnce.Do(func() { close(a.stop) })

	a.qrMu.Lock()
	if a.qrCancel != nil {
		a.qrCancel()
		a.qrCancel = nil
	}
	a.qrMu.Unlock()

	if a.client != nil {
		if a.handlerID != 0 {
			a.client.RemoveEventHandler(a.handlerID)
		}
		a.client.Disconnect()
	}

	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.events)
	}
	a.mu.Unlock()

	var err error
	a.releaseOnce.Do(func() {
		if a.release != nil {
			err = a.release()
		}
	})
	return err
}

// emit waits for room in the buffer. Lifecycle events are never dropped; a
// message event is dropped only after messageWait, and counted.
func (a *SessionAdapter) emit(ev domainInstance.Event) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.events <- ev:
		return
	default:
	}

	if ev.Kind != domainInstance.EventMessage {
		select {
		case a.events <- ev:
		case <-a.stop:
		}
		return
	}

	timer := time.NewTimer(a.messageWait)
	defer timer.Stop()
	select {
	case a.events <- ev:
	case <-a.stop:
	case <-timer.C:
		n := a.dropped.Add(1)
		sender := ""
		if ev.Message != nil {
			sender = ev.Message.SenderID
		}
		logrus.Errorf("[WHATSAPP] Event buffer full for %s, dropped message from %s (%d dropped)", a.instanceID, sender, n)
	}
}

func parseJID(chatID string) (types.JID, error) {
	chatID = strings.TrimSpace(chatID)
	if strings.Contains(chatID, "@") {
		return types.ParseJID(chatID)
	}
	if chatID == "" {
		return types.JID{}, fmt.Errorf("empty recipient")
	}
	return types.NewJID(chatID, types.DefaultUserServer), nil
}

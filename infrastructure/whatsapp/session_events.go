package whatsapp

import (
	"context"
	"fmt"
	"strings"
	"time"

	domainInstance "github.com/AzielCF/az-wap-sales/domains/instance"
	"github.com/sirupsen/logrus"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

// handleEvent converts whatsmeow events to lifecycle events.
func (a *SessionAdapter) handleEvent(raw interface{}) {
	for _, ev := range a.translate(raw) {
		a.emit(ev)
	}
}

func (a *SessionAdapter) translate(raw interface{}) []domainInstance.Event {
	switch v := raw.(type) {
	case *events.Connected:
		return []domainInstance.Event{domainInstance.ReadyEvent(a.identity())}

	case *events.PairSuccess:
		logrus.Infof("[WHATSAPP] Instance %s paired with %s", a.instanceID, v.ID.String())
		if a.onPaired != nil {
			a.onPaired(v.ID)
		}

	case *events.Disconnected:
		return []domainInstance.Event{domainInstance.DisconnectedEvent("disconnected")}

	case *events.StreamReplaced:
		return []domainInstance.Event{domainInstance.DisconnectedEvent("stream_replaced")}

	case *events.KeepAliveTimeout:
		logrus.Debugf("[WHATSAPP] Keepalive timeout on %s (errors: %d)", a.instanceID, v.ErrorCount)

	case *events.LoggedOut:
		reason := fmt.Sprintf("logged_out: %v", v.Reason)
		return []domainInstance.Event{
			domainInstance.AuthFailureEvent(reason),
			domainInstance.DisconnectedEvent(reason),
		}

	case *events.ConnectFailure:
		reason := fmt.Sprintf("connect_failure: %v", v.Reason)
		if v.Message != "" {
			reason += " (" + v.Message + ")"
		}
		return []domainInstance.Event{
			domainInstance.AuthFailureEvent(reason),
			domainInstance.DisconnectedEvent(reason),
		}

	case *events.TemporaryBan:
		return []domainInstance.Event{domainInstance.AuthFailureEvent("temporary_ban: " + v.String())}

	case *events.Message:
		if ev, ok := a.inbound(v); ok {
			return []domainInstance.Event{ev}
		}
	}
	return nil
}

func (a *SessionAdapter) identity() domainInstance.Identity {
	if a.client == nil || a.client.Store == nil || a.client.Store.ID == nil {
		return domainInstance.Identity{}
	}
	jid := a.client.Store.ID.ToNonAD()
	return domainInstance.Identity{
		JID:      jid.String(),
		Phone:    jid.User,
		PushName: a.client.Store.PushName,
	}
}

// inbound keeps one-to-one text messages only.
func (a *SessionAdapter) inbound(v *events.Message) (domainInstance.Event, bool) {
	if v == nil || v.Info.Chat.IsEmpty() {
		return domainInstance.Event{}, false
	}
	switch v.Info.Chat.Server {
	case types.GroupServer, types.BroadcastServer, types.NewsletterServer:
		return domainInstance.Event{}, false
	}
	if v.Info.IsIncomingBroadcast() {
		return domainInstance.Event{}, false
	}

	text := strings.TrimSpace(messageText(v.Message))
	if text == "" {
		return domainInstance.Event{}, false
	}

	sender := a.resolveSender(v.Info.Sender)
	if v.Info.IsFromMe {
		sender = a.resolveSender(v.Info.Chat)
	}

	at := v.Info.Timestamp
	if at.IsZero() {
		at = time.Now()
	}
	return domainInstance.Event{
		Kind: domainInstance.EventMessage,
		At:   at,
		Message: &domainInstance.InboundMessage{
			SenderID:   sender.ToNonAD().String(),
			Text:       text,
			FromSelf:   v.Info.IsFromMe,
			PushName:   v.Info.PushName,
			ReceivedAt: at,
		},
	}, true
}

// resolveSender maps a hidden (lid) user to its phone number when the store knows it.
func (a *SessionAdapter) resolveSender(jid types.JID) types.JID {
	if jid.Server != types.HiddenUserServer || a.client == nil || a.client.Store == nil || a.client.Store.LIDs == nil {
		return jid
	}
	pn, err := a.client.Store.LIDs.GetPNForLID(context.Background(), jid)
	if err != nil || pn.IsEmpty() {
		return jid
	}
	return pn
}

func messageText(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	switch {
	case msg.GetConversation() != "":
		return msg.GetConversation()
	case msg.GetExtendedTextMessage() != nil:
		return msg.GetExtendedTextMessage().GetText()
	case msg.GetImageMessage() != nil:
		return msg.GetImageMessage().GetCaption()
	case msg.GetVideoMessage() != nil:
		return msg.GetVideoMessage().GetCaption()
	case msg.GetDocumentMessage() != nil:
		return msg.GetDocumentMessage().GetCaption()
	case msg.GetEphemeralMessage() != nil:
		return messageText(msg.GetEphemeralMessage().GetMessage())
	}
	return ""
}

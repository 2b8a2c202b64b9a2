package whatsapp

import (
	"context"
	"fmt"
	"testing"
	"time"

	domainInstance "github.com/AzielCF/az-wap-sales/domains/instance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func textMessage(chat, sender types.JID, text string, fromMe bool) *events.Message {
	return &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{Chat: chat, Sender: sender, IsFromMe: fromMe},
			ID:            "3EB0ABC",
			PushName:      "Maria",
			Timestamp:     time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		},
		Message: &waE2E.Message{Conversation: proto.String(text)},
	}
}

func TestTranslate_DirectMessage(t *testing.T) {
	a := newSessionAdapter("wa1", nil, nil, nil)
	user := types.NewJID("5511999999999", types.DefaultUserServer)

	out := a.translate(textMessage(user, user, " oi ", false))
	require.Len(t, out, 1)
	assert.Equal(t, domainInstance.EventMessage, out[0].Kind)
	require.NotNil(t, out[0].Message)
	assert.Equal(t, "5511999999999@s.whatsapp.net", out[0].Message.SenderID)
	assert.Equal(t, "oi", out[0].Message.Text)
	assert.Equal(t, "Maria", out[0].Message.PushName)
	assert.False(t, out[0].Message.FromSelf)
}

func TestTranslate_SkipsGroupsStatusAndEmpty(t *testing.T) {
	a := newSessionAdapter("wa1", nil, nil, nil)
	user := types.NewJID("5511999999999", types.DefaultUserServer)
	group := types.NewJID("120363000000000000", types.GroupServer)

	assert.Empty(t, a.translate(textMessage(group, user, "hola grupo", false)))
	assert.Empty(t, a.translate(textMessage(types.StatusBroadcastJID, user, "story", false)))
	assert.Empty(t, a.translate(textMessage(user, user, "   ", false)))
}

func TestTranslate_ConnectionEvents(t *testing.T) {
	a := newSessionAdapter("wa1", nil, nil, nil)

	out := a.translate(&events.Connected{})
	require.Len(t, out, 1)
	assert.Equal(t, domainInstance.EventReady, out[0].Kind)
	assert.True(t, out[0].Identity.IsZero())

	out = a.translate(&events.Disconnected{})
	require.Len(t, out, 1)
	assert.Equal(t, domainInstance.EventDisconnected, out[0].Kind)

	out = a.translate(&events.StreamReplaced{})
	require.Len(t, out, 1)
	assert.Equal(t, "stream_replaced", out[0].Reason)

	out = a.translate(&events.LoggedOut{Reason: events.ConnectFailureLoggedOut})
	require.Len(t, out, 2)
	assert.Equal(t, domainInstance.EventAuthFailure, out[0].Kind)
	assert.Equal(t, domainInstance.EventDisconnected, out[1].Kind)

	assert.Empty(t, a.translate(&events.Receipt{}))
}

func TestTranslate_PairSuccessStoresBinding(t *testing.T) {
	var paired types.JID
	a := newSessionAdapter("wa1", nil, nil, func(jid types.JID) { paired = jid })
	jid := types.NewJID("5511888888888", types.DefaultUserServer)

	assert.Empty(t, a.translate(&events.PairSuccess{ID: jid}))
	assert.Equal(t, jid, paired)
}

func TestMessageText(t *testing.T) {
	assert.Equal(t, "", messageText(nil))
	assert.Equal(t, "ext", messageText(&waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("ext")}}))
	assert.Equal(t, "foto", messageText(&waE2E.Message{ImageMessage: &waE2E.ImageMessage{Caption: proto.String("foto")}}))
	assert.Equal(t, "efimero", messageText(&waE2E.Message{EphemeralMessage: &waE2E.FutureProofMessage{
		Message: &waE2E.Message{Conversation: proto.String("efimero")},
	}}))
}

func TestParseJID(t *testing.T) {
	jid, err := parseJID("5511999999999")
	require.NoError(t, err)
	assert.Equal(t, types.DefaultUserServer, jid.Server)

	jid, err = parseJID("123@lid")
	require.NoError(t, err)
	assert.Equal(t, types.HiddenUserServer, jid.Server)

	_, err = parseJID(" ")
	assert.Error(t, err)
}

func TestSessionAdapter_CloseIsIdempotentAndClosesEvents(t *testing.T) {
	released := 0
	a := newSessionAdapter("wa1", nil, func() error { released++; return nil }, nil)

	require.NoError(t, a.Close(context.Background()))
	require.NoError(t, a.Close(context.Background()))
	_, open := <-a.Events()
	assert.False(t, open)
	assert.Equal(t, 1, released)

	assert.NotPanics(t, func() { a.emit(domainInstance.DisconnectedEvent("late")) })
	assert.Error(t, a.Send(context.Background(), "5511999999999", "hola"))
}

func fillEvents(a *SessionAdapter) {
	for i := 0; i < eventBuffer; i++ {
		a.emit(domainInstance.MessageEvent("5511999999999@s.whatsapp.net", "flood", false))
	}
}

func TestSessionAdapter_LifecycleEventWaitsForRoom(t *testing.T) {
	a := newSessionAdapter("wa1", nil, nil, nil)
	fillEvents(a)

	done := make(chan struct{})
	go func() {
		a.emit(domainInstance.DisconnectedEvent("stream_replaced"))
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("lifecycle event returned while the buffer was full")
	case <-time.After(50 * time.Millisecond):
	}

	<-a.Events()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lifecycle event never delivered")
	}

	var last domainInstance.Event
	for i := 0; i < eventBuffer; i++ {
		last = <-a.Events()
	}
	assert.Equal(t, domainInstance.EventDisconnected, last.Kind)
	assert.Zero(t, a.Dropped())
}

func TestSessionAdapter_MessageDroppedAfterWait(t *testing.T) {
	a := newSessionAdapter("wa1", nil, nil, nil)
	a.messageWait = 10 * time.Millisecond
	fillEvents(a)

	for i := 0; i < 3; i++ {
		a.emit(domainInstance.MessageEvent("5511999999999@s.whatsapp.net", "extra", false))
	}
	assert.Len(t, a.events, eventBuffer)
	assert.Equal(t, int64(3), a.Dropped())
}

func TestSessionAdapter_CloseReleasesBlockedEmit(t *testing.T) {
	a := newSessionAdapter("wa1", nil, nil, nil)
	fillEvents(a)

	done := make(chan struct{})
	go func() {
		a.emit(domainInstance.ReadyEvent(domainInstance.Identity{}))
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, a.Close(context.Background()))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("emit still blocked after Close")
	}
}

func TestDeviceBindingGormStore(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	s := NewDeviceBindingGormStore(db)
	ctx := context.Background()
	require.NoError(t, s.Init(ctx))

	_, ok, err := s.Get(ctx, "wa1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Save(ctx, "wa1", "5511888888888.0:1@s.whatsapp.net"))
	require.NoError(t, s.Save(ctx, "wa1", "5511888888888.0:2@s.whatsapp.net"))

	jid, ok, err := s.Get(ctx, "wa1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "5511888888888.0:2@s.whatsapp.net", jid)
}

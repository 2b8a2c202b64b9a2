package instance

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	convApp "github.com/AzielCF/az-wap-sales/conversation/application"
	"github.com/AzielCF/az-wap-sales/conversation/repository"
	domainConversation "github.com/AzielCF/az-wap-sales/domains/conversation"
	domainInstance "github.com/AzielCF/az-wap-sales/domains/instance"
	"github.com/AzielCF/az-wap-sales/instance/application"
	"github.com/AzielCF/az-wap-sales/pkg/botmonitor"
	pkgError "github.com/AzielCF/az-wap-sales/pkg/error"
	"github.com/AzielCF/az-wap-sales/pkg/msgworker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type outbound struct{ To, Text string }

type stubAdapter struct {
	events chan domainInstance.Event
	qr     string

	mu   sync.Mutex
	sent []outbound
}

func (a *stubAdapter) Connect(ctx context.Context) error {
	if a.qr != "" {
		a.events <- domainInstance.QREvent(a.qr)
		return nil
	}
	a.events <- domainInstance.ReadyEvent(domainInstance.Identity{JID: "5511888888888@s.whatsapp.net", Phone: "5511888888888"})
	return nil
}

func (a *stubAdapter) Send(ctx context.Context, to, text string) error {
	a.mu.Lock()
	a.sent = append(a.sent, outbound{to, text})
	a.mu.Unlock()
	return nil
}

func (a *stubAdapter) Events() <-chan domainInstance.Event { return a.events }
func (a *stubAdapter) RequestQR(ctx context.Context) error { return nil }
func (a *stubAdapter) Close(ctx context.Context) error     { return nil }
func (a *stubAdapter) emit(ev domainInstance.Event)        { a.events <- ev }

func (a *stubAdapter) Sent() []outbound {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]outbound(nil), a.sent...)
}

type echoResponder struct {
	mu    sync.Mutex
	texts []string
}

func (r *echoResponder) GenerateReply(ctx context.Context, history []domainConversation.Turn, newText string, meta domainConversation.SenderMetadata) (string, error) {
	r.mu.Lock()
	r.texts = append(r.texts, newText)
	r.mu.Unlock()
	return "Ola! Como posso ajudar?", nil
}

func (r *echoResponder) Texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.texts...)
}

type env struct {
	manager   *Manager
	store     *repository.MemoryStore
	responder *echoResponder
	events    *botmonitor.Monitor

	mu       sync.Mutex
	adapters map[string]*stubAdapter
	qr       string
}

func newEnv(t *testing.T, debounce time.Duration) *env {
	t.Helper()
	e := &env{
		store:     repository.NewMemoryStore(),
		responder: &echoResponder{},
		events:    botmonitor.New(100, 0),
		adapters:  map[string]*stubAdapter{},
	}
	pool := msgworker.NewPool(2, 16)
	pool.Start(context.Background())

	factory := func(ctx context.Context, id string) (domainInstance.ICapabilityAdapter, error) {
		e.mu.Lock()
		defer e.mu.Unlock()
		a := &stubAdapter{events: make(chan domainInstance.Event, 16), qr: e.qr}
		e.adapters[id] = a
		return a, nil
	}

	e.manager = NewManager(context.Background(), Dependencies{
		Factory:   factory,
		Store:     e.store,
		Responder: e.responder,
		Pool:      pool,
		Events:    e.events,
	}, Options{
		MaxInstances: 3,
		Lifecycle:    application.LifecycleOptions{QRTimeout: time.Minute, BackoffBase: time.Millisecond, BackoffMax: 5 * time.Millisecond},
		Debounce:     debounce,
		Invoker:      convApp.InvokerOptions{Timeout: time.Second},
	})
	t.Cleanup(func() {
		e.manager.Shutdown(context.Background())
		pool.Stop()
	})
	return e
}

func (e *env) adapter(id string) *stubAdapter {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.adapters[id]
}

func (e *env) connected(t *testing.T, id string) *stubAdapter {
	t.Helper()
	_, err := e.manager.Create(context.Background(), id, "")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		inst, err := e.manager.Get(id)
		return err == nil && inst.State == domainInstance.StateConnected
	}, time.Second, 2*time.Millisecond)
	return e.adapter(id)
}

func TestManager_BurstGetsExactlyOneReply(t *testing.T) {
	e := newEnv(t, 80*time.Millisecond)
	wa1 := e.connected(t, "wa1")

	wa1.emit(domainInstance.MessageEvent("5511999999999@s.whatsapp.net", "oi", false))
	time.Sleep(20 * time.Millisecond)
	wa1.emit(domainInstance.MessageEvent("5511999999999@s.whatsapp.net", "quero ajuda", false))

	require.Eventually(t, func() bool { return len(wa1.Sent()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Never(t, func() bool { return len(wa1.Sent()) > 1 }, 150*time.Millisecond, 10*time.Millisecond)

	assert.Equal(t, outbound{"5511999999999", "Ola! Como posso ajudar?"}, wa1.Sent()[0])
	assert.Equal(t, []string{"oi\nquero ajuda"}, e.responder.Texts())
	assert.Equal(t, 2, e.events.Count(botmonitor.StageInbound, botmonitor.StatusOK))
	require.Eventually(t, func() bool {
		return e.events.Count(botmonitor.StageOutbound, botmonitor.StatusOK) == 1
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		h, err := e.manager.Conversations().History(context.Background(), "5511999999999", 10)
		return err == nil && len(h) == 3
	}, time.Second, 5*time.Millisecond)
	history, err := e.manager.Conversations().History(context.Background(), "5511999999999", 10)
	require.NoError(t, err)
	assert.Equal(t, domainConversation.AuthorUser, history[0].Author)
	assert.Equal(t, "oi", history[0].Text)
	assert.Equal(t, domainConversation.AuthorUser, history[1].Author)
	assert.Equal(t, domainConversation.AuthorSystem, history[2].Author)

	st, err := e.manager.Conversations().GetState(context.Background(), "5511999999999")
	require.NoError(t, err)
	assert.Equal(t, domainConversation.StatusBot, st.Status)
}

func TestManager_ReadyOverwritesLabelWithPhone(t *testing.T) {
	e := newEnv(t, time.Hour)
	e.connected(t, "wa1")

	inst, err := e.manager.Get("wa1")
	require.NoError(t, err)
	assert.Equal(t, "5511888888888", inst.Label)
	require.NotNil(t, inst.Identity)

	list := e.manager.List()
	require.Len(t, list, 1)
	assert.Equal(t, domainInstance.Snapshot{ID: "wa1", Label: "5511888888888", Connected: true, Enabled: true}, list[0])
}

func TestManager_DestroyDiscardsPendingBurst(t *testing.T) {
	e := newEnv(t, 100*time.Millisecond)
	wa1 := e.connected(t, "wa1")

	wa1.emit(domainInstance.MessageEvent("5511999999999", "oi", false))
	require.Eventually(t, func() bool { return e.manager.PendingBursts() == 1 }, time.Second, 2*time.Millisecond)

	assert.True(t, e.manager.Destroy(context.Background(), "wa1"))
	assert.Equal(t, 0, e.manager.PendingBursts())
	assert.Never(t, func() bool { return len(e.responder.Texts()) > 0 }, 200*time.Millisecond, 10*time.Millisecond)
	assert.False(t, e.manager.Destroy(context.Background(), "wa1"))
}

func TestManager_QR(t *testing.T) {
	e := newEnv(t, time.Hour)
	e.qr = "2@pairing-ref,key,adv"

	_, err := e.manager.Create(context.Background(), "wa1", "Ventas")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		inst, _ := e.manager.Get("wa1")
		return inst.State == domainInstance.StateAuthPending
	}, time.Second, 2*time.Millisecond)

	resp, err := e.manager.QR("wa1")
	require.NoError(t, err)
	assert.Equal(t, "2@pairing-ref,key,adv", resp.Payload)
	assert.True(t, strings.HasPrefix(resp.ImageURL, "data:image/png;base64,"))
	require.NotNil(t, resp.ExpiresAt)

	_, err = e.manager.QR("nope")
	assert.ErrorIs(t, err, pkgError.ErrUnknownInstance)
}

func TestManager_QRNotPendingOnceConnected(t *testing.T) {
	e := newEnv(t, time.Hour)
	e.connected(t, "wa1")

	_, err := e.manager.QR("wa1")
	var notFound pkgError.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestManager_CreateValidatesID(t *testing.T) {
	e := newEnv(t, time.Hour)
	_, err := e.manager.Create(context.Background(), "  ", "x")
	var verr pkgError.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestManager_SendRequiresConnectedInstance(t *testing.T) {
	e := newEnv(t, time.Hour)
	err := e.manager.Send(context.Background(), "ghost", "5511999999999", "hola")
	assert.ErrorIs(t, err, pkgError.ErrUnknownInstance)

	wa1 := e.connected(t, "wa1")
	require.NoError(t, e.manager.Send(context.Background(), "wa1", "+55 11 99999-9999", "hola"))
	assert.Equal(t, []outbound{{"5511999999999", "hola"}}, wa1.Sent())
}

func TestManager_SetCapacityTrimsImmediately(t *testing.T) {
	e := newEnv(t, time.Second)
	ctx := context.Background()
	for _, id := range []string{"wa1", "wa2", "wa3"} {
		e.connected(t, id)
	}
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, e.manager.Send(ctx, "wa1", "5511999999999", "oi"))

	require.NoError(t, e.manager.SetCapacity(1))

	list := e.manager.List()
	require.Len(t, list, 1)
	assert.Equal(t, "wa1", list[0].ID)
	used, max := e.manager.Capacity()
	assert.Equal(t, 1, used)
	assert.Equal(t, 1, max)

	var verr pkgError.ValidationError
	assert.ErrorAs(t, e.manager.SetCapacity(0), &verr)
}

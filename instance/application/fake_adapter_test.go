package application

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	domainInstance "github.com/AzielCF/az-wap-sales/domains/instance"
)

type sentMessage struct {
	To   string
	Text string
}

// fakeAdapter is a scriptable CapabilityAdapter.
type fakeAdapter struct {
	id     string
	events chan domainInstance.Event

	mu        sync.Mutex
	onConnect func(a *fakeAdapter) error
	sent      []sentMessage

	connects   int32
	qrRequests int32
	closes     int32
}

func newFakeAdapter(id string) *fakeAdapter {
	return &fakeAdapter{id: id, events: make(chan domainInstance.Event, 32)}
}

func (a *fakeAdapter) Connect(ctx context.Context) error {
	atomic.AddInt32(&a.connects, 1)
	a.mu.Lock()
	fn := a.onConnect
	a.mu.Unlock()
	if fn != nil {
		return fn(a)
	}
	return nil
}

func (a *fakeAdapter) Send(ctx context.Context, to, text string) error {
	if atomic.LoadInt32(&a.closes) > 0 {
		return errors.New("adapter closed")
	}
	a.mu.Lock()
	a.sent = append(a.sent, sentMessage{To: to, Text: text})
	a.mu.Unlock()
	return nil
}

func (a *fakeAdapter) Events() <-chan domainInstance.Event { return a.events }

func (a *fakeAdapter) RequestQR(ctx context.Context) error {
	atomic.AddInt32(&a.qrRequests, 1)
	return nil
}

func (a *fakeAdapter) Close(ctx context.Context) error {
	atomic.AddInt32(&a.closes, 1)
	return nil
}

func (a *fakeAdapter) emit(ev domainInstance.Event) {
	a.events <- ev
}

func (a *fakeAdapter) setOnConnect(fn func(a *fakeAdapter) error) {
	a.mu.Lock()
	a.onConnect = fn
	a.mu.Unlock()
}

func (a *fakeAdapter) Sent() []sentMessage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]sentMessage(nil), a.sent...)
}

func readyOnConnect(a *fakeAdapter) error {
	a.emit(domainInstance.ReadyEvent(domainInstance.Identity{}))
	return nil
}

// fakeFactory hands out fake adapters and remembers them by id.
type fakeFactory struct {
	mu        sync.Mutex
	adapters  map[string]*fakeAdapter
	calls     int32
	onConnect func(a *fakeAdapter) error
}

func newFakeFactory(onConnect func(a *fakeAdapter) error) *fakeFactory {
	return &fakeFactory{adapters: map[string]*fakeAdapter{}, onConnect: onConnect}
}

func (f *fakeFactory) New(ctx context.Context, instanceID string) (domainInstance.ICapabilityAdapter, error) {
	atomic.AddInt32(&f.calls, 1)
	a := newFakeAdapter(instanceID)
	a.onConnect = f.onConnect
	f.mu.Lock()
	f.adapters[instanceID] = a
	f.mu.Unlock()
	return a, nil
}

func (f *fakeFactory) get(instanceID string) *fakeAdapter {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.adapters[instanceID]
}

// notificationLog records every notification.
type notificationLog struct {
	mu   sync.Mutex
	list []domainInstance.Notification
}

func (l *notificationLog) Notify(n domainInstance.Notification) {
	l.mu.Lock()
	l.list = append(l.list, n)
	l.mu.Unlock()
}

func (l *notificationLog) all() []domainInstance.Notification {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domainInstance.Notification(nil), l.list...)
}

func (l *notificationLog) has(fn func(n domainInstance.Notification) bool) bool {
	for _, n := range l.all() {
		if fn(n) {
			return true
		}
	}
	return false
}

type harness struct {
	registry  *Registry
	lifecycle *LifecycleController
	factory   *fakeFactory
	notes     *notificationLog
}

func newHarness(t *testing.T, capacity int, opts LifecycleOptions, onConnect func(a *fakeAdapter) error) *harness {
	t.Helper()
	factory := newFakeFactory(onConnect)
	notes := &notificationLog{}
	registry := NewRegistry(capacity, factory.New)
	lc := NewLifecycleController(context.Background(), registry, opts, notes, nil)
	t.Cleanup(func() { lc.Shutdown(context.Background()) })
	return &harness{registry: registry, lifecycle: lc, factory: factory, notes: notes}
}

func (h *harness) state(id string) domainInstance.LifecycleState {
	inst, err := h.registry.Lookup(id)
	if err != nil {
		return ""
	}
	return inst.State
}

func (h *harness) touch(id string, at time.Time) {
	if s, ok := h.registry.lookup(id); ok {
		s.handle.Touch(at)
	}
}

package application

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	domainInstance "github.com/AzielCF/az-wap-sales/domains/instance"
	pkgError "github.com/AzielCF/az-wap-sales/pkg/error"
	"github.com/sirupsen/logrus"
)

// session is the registry entry: the handle plus everything scoped to it.
// All of it is torn down together by LifecycleController.Destroy.
type session struct {
	handle  *SessionHandle
	adapter domainInstance.ICapabilityAdapter

	ctx    context.Context
	cancel context.CancelFunc
	intake chan domainInstance.Event
	done   chan struct{}

	qrTimer        ScopedTimer
	reconnectTimer ScopedTimer

	teardownOnce sync.Once
}

// push hands an event to the instance loop; dropped once the session is gone.
func (s *session) push(ev domainInstance.Event) {
	select {
	case s.intake <- ev:
	case <-s.ctx.Done():
	}
}

// Registry owns the instanceId -> session map and the capacity policy.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*session
	capacity int

	// createMu serializes Create so that check, eviction and insert act as one step.
	createMu sync.Mutex

	factory   domainInstance.AdapterFactory
	lifecycle *LifecycleController
	qrTimeout time.Duration
	now       func() time.Time
}

func NewRegistry(capacity int, factory domainInstance.AdapterFactory) *Registry {
	if capacity <= 0 {
		capacity = 1
	}
	return &Registry{
		sessions: make(map[string]*session),
		capacity: capacity,
		factory:  factory,
		now:      time.Now,
	}
}

// Create registers a new instance, evicting the least recently active one when
// the registry is full. Creating an existing id returns it unchanged.
func (r *Registry) Create(ctx context.Context, instanceID, label string) (domainInstance.Instance, error) {
	r.createMu.Lock()
	defer r.createMu.Unlock()

	if s, ok := r.lookup(instanceID); ok {
		return s.handle.Instance(), nil
	}

	r.mu.RLock()
	full := len(r.sessions) >= r.capacity
	capacity := r.capacity
	r.mu.RUnlock()

	var victim *session
	if full {
		victim = r.evictionCandidate()
		if victim == nil {
			return domainInstance.Instance{}, pkgError.CapacityExceededError{Max: capacity}
		}
	}

	adapter, err := r.factory(ctx, instanceID)
	if err != nil {
		return domainInstance.Instance{}, err
	}

	if victim != nil {
		logrus.WithFields(logrus.Fields{
			"victim":        victim.handle.ID(),
			"instance_id":   instanceID,
			"last_activity": victim.handle.LastActivity(),
		}).Warn("[REGISTRY] At capacity, evicting least recently active instance")
		r.lifecycle.destroy(ctx, victim.handle.ID(), "capacity")
	}

	if label == "" {
		label = instanceID
	}
	s := &session{
		handle:  NewSessionHandle(instanceID, label, r.now()),
		adapter: adapter,
	}
	r.lifecycle.prepare(s)

	// publicar y arrancar juntos: un destroy no puede colarse en medio
	r.mu.Lock()
	r.sessions[instanceID] = s
	r.lifecycle.start(s)
	n := len(r.sessions)
	r.mu.Unlock()

	logrus.Infof("[REGISTRY] Instance %s created (%d/%d)", instanceID, n, capacity)
	return s.handle.Instance(), nil
}

// Destroy delegates to the lifecycle controller. Unknown ids return false.
func (r *Registry) Destroy(ctx context.Context, instanceID string) bool {
	return r.lifecycle.Destroy(ctx, instanceID)
}

// List returns a stable snapshot ordered by id.
func (r *Registry) List() []domainInstance.Snapshot {
	r.mu.RLock()
	out := make([]domainInstance.Snapshot, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.handle.Snapshot())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Lookup returns the read model of one instance or an UnknownInstanceError.
func (r *Registry) Lookup(instanceID string) (domainInstance.Instance, error) {
	s, ok := r.lookup(instanceID)
	if !ok {
		return domainInstance.Instance{}, pkgError.UnknownInstanceError{InstanceID: instanceID}
	}
	return s.handle.Instance(), nil
}

// Send delivers text through the instance's adapter. The instance must be CONNECTED.
func (r *Registry) Send(ctx context.Context, instanceID, to, text string) error {
	s, ok := r.lookup(instanceID)
	if !ok {
		return pkgError.UnknownInstanceError{InstanceID: instanceID}
	}
	if state := s.handle.State(); state != domainInstance.StateConnected {
		return fmt.Errorf("instance %s is %s", instanceID, state)
	}
	if err := s.adapter.Send(ctx, to, text); err != nil {
		return err
	}
	s.handle.Touch(r.now())
	return nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) Capacity() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.capacity
}

// SetCapacity changes the limit at runtime. Trimming existing instances above
// it is ResourceMonitor.TrimToCapacity's job.
func (r *Registry) SetCapacity(n int) {
	if n <= 0 {
		return
	}
	r.mu.Lock()
	r.capacity = n
	r.mu.Unlock()
}

func (r *Registry) lookup(instanceID string) (*session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[instanceID]
	return s, ok
}

// take removes the entry; only one caller ever gets it.
func (r *Registry) take(instanceID string) (*session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[instanceID]
	if ok {
		delete(r.sessions, instanceID)
	}
	return s, ok
}

func (r *Registry) all() []*session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// byActivity orders sessions by last activity, oldest first.
func byActivity(list []*session) []*session {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i].handle.LastActivity(), list[j].handle.LastActivity()
		if a.Equal(b) {
			return list[i].handle.ID() < list[j].handle.ID()
		}
		return a.Before(b)
	})
	return list
}

// evictionCandidate picks the least recently active instance, with one
// deliberate exception: an instance still pairing (created, auth_pending or
// connecting) and active within one QR timeout is skipped, even when it is the
// oldest, so a QR an operator is about to scan is never pulled from under them.
// Such an instance becomes a candidate again once its QR window has passed.
func (r *Registry) evictionCandidate() *session {
	now := r.now()
	for _, s := range byActivity(r.all()) {
		switch s.handle.State() {
		case domainInstance.StateCreated, domainInstance.StateAuthPending, domainInstance.StateConnecting:
			if now.Sub(s.handle.LastActivity()) < r.qrTimeout {
				continue
			}
		}
		return s
	}
	return nil
}

// IdleCandidates returns instances idle for longer than threshold, oldest first.
func (r *Registry) IdleCandidates(threshold time.Duration) []string {
	now := r.now()
	var out []string
	for _, s := range byActivity(r.all()) {
		if now.Sub(s.handle.LastActivity()) > threshold {
			out = append(out, s.handle.ID())
		}
	}
	return out
}

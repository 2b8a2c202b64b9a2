package application

import (
	"sync"
	"time"

	domainInstance "github.com/AzielCF/az-wap-sales/domains/instance"
)

// transitions lists the legal lifecycle moves. DESTROYED is terminal.
var transitions = map[domainInstance.LifecycleState][]domainInstance.LifecycleState{
	domainInstance.StateCreated:      {domainInstance.StateAuthPending, domainInstance.StateConnecting},
	domainInstance.StateAuthPending:  {domainInstance.StateAuthPending, domainInstance.StateConnecting, domainInstance.StateConnected, domainInstance.StateDisconnected},
	domainInstance.StateConnecting:   {domainInstance.StateAuthPending, domainInstance.StateConnected, domainInstance.StateDisconnected},
	domainInstance.StateConnected:    {domainInstance.StateDisconnected},
	domainInstance.StateDisconnected: {domainInstance.StateReconnecting, domainInstance.StateConnecting},
	domainInstance.StateReconnecting: {domainInstance.StateConnecting, domainInstance.StateDisconnected},
}

func canTransition(from, to domainInstance.LifecycleState) bool {
	if from == domainInstance.StateDestroyed {
		return false
	}
	if to == domainInstance.StateDestroyed {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// SessionHandle holds the mutable state of one session. It has no behavior
// beyond guarded reads and writes; the lifecycle controller decides when to call them.
type SessionHandle struct {
	mu sync.RWMutex

	id                string
	label             string
	state             domainInstance.LifecycleState
	identity          *domainInstance.Identity
	qrPayload         string
	qrExpiresAt       time.Time
	lastActivity      time.Time
	errorCount        int
	reconnectAttempts int
	enabled           bool
	createdAt         time.Time
}

func NewSessionHandle(id, label string, now time.Time) *SessionHandle {
	return &SessionHandle{
		id:           id,
		label:        label,
		state:        domainInstance.StateCreated,
		lastActivity: now,
		enabled:      true,
		createdAt:    now,
	}
}

func (h *SessionHandle) ID() string { return h.id }

func (h *SessionHandle) Label() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.label
}

func (h *SessionHandle) State() domainInstance.LifecycleState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// Transition moves to the given state when the table allows it and returns the previous state.
func (h *SessionHandle) Transition(to domainInstance.LifecycleState) (domainInstance.LifecycleState, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	from := h.state
	if !canTransition(from, to) {
		return from, false
	}
	h.state = to
	return from, true
}

func (h *SessionHandle) SetQR(payload string, expiresAt time.Time) {
	h.mu.Lock()
	h.qrPayload = payload
	h.qrExpiresAt = expiresAt
	h.mu.Unlock()
}

func (h *SessionHandle) ClearQR() {
	h.mu.Lock()
	h.qrPayload = ""
	h.qrExpiresAt = time.Time{}
	h.mu.Unlock()
}

func (h *SessionHandle) QR() (string, time.Time) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.qrPayload, h.qrExpiresAt
}

// MarkReady records a successful connection. The identity is only stored the
// first time; its phone overwrites the requested label.
func (h *SessionHandle) MarkReady(id domainInstance.Identity, now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.qrPayload = ""
	h.qrExpiresAt = time.Time{}
	h.errorCount = 0
	h.reconnectAttempts = 0
	h.lastActivity = now
	if h.identity == nil && !id.IsZero() {
		identity := id
		h.identity = &identity
		if identity.Phone != "" {
			h.label = identity.Phone
		}
	}
}

func (h *SessionHandle) Identity() *domainInstance.Identity {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.identity == nil {
		return nil
	}
	id := *h.identity
	return &id
}

func (h *SessionHandle) Touch(now time.Time) {
	h.mu.Lock()
	if now.After(h.lastActivity) {
		h.lastActivity = now
	}
	h.mu.Unlock()
}

func (h *SessionHandle) LastActivity() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastActivity
}

func (h *SessionHandle) IncError() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errorCount++
	return h.errorCount
}

func (h *SessionHandle) ErrorCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.errorCount
}

// NextReconnectAttempt bumps the attempt counter unless the budget is spent.
func (h *SessionHandle) NextReconnectAttempt(max int) (int, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.reconnectAttempts >= max {
		return h.reconnectAttempts, false
	}
	h.reconnectAttempts++
	return h.reconnectAttempts, true
}

func (h *SessionHandle) ResetReconnect() {
	h.mu.Lock()
	h.reconnectAttempts = 0
	h.mu.Unlock()
}

func (h *SessionHandle) ReconnectAttempts() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.reconnectAttempts
}

func (h *SessionHandle) Enabled() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.enabled
}

func (h *SessionHandle) SetEnabled(enabled bool) {
	h.mu.Lock()
	h.enabled = enabled
	h.mu.Unlock()
}

// Instance copies the handle into the read model.
func (h *SessionHandle) Instance() domainInstance.Instance {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := domainInstance.Instance{
		ID:                h.id,
		Label:             h.label,
		State:             h.state,
		QRPayload:         h.qrPayload,
		LastActivity:      h.lastActivity,
		ErrorCount:        h.errorCount,
		ReconnectAttempts: h.reconnectAttempts,
		Enabled:           h.enabled,
		CreatedAt:         h.createdAt,
	}
	if h.identity != nil {
		id := *h.identity
		out.Identity = &id
	}
	if !h.qrExpiresAt.IsZero() {
		exp := h.qrExpiresAt
		out.QRExpiresAt = &exp
	}
	return out
}

func (h *SessionHandle) Snapshot() domainInstance.Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return domainInstance.Snapshot{
		ID:        h.id,
		Label:     h.label,
		Connected: h.state == domainInstance.StateConnected,
		Enabled:   h.enabled,
	}
}

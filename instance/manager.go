package instance

import (
	"context"
	"strings"
	"time"

	convApp "github.com/AzielCF/az-wap-sales/conversation/application"
	domainConversation "github.com/AzielCF/az-wap-sales/domains/conversation"
	domainInstance "github.com/AzielCF/az-wap-sales/domains/instance"
	"github.com/AzielCF/az-wap-sales/instance/application"
	"github.com/AzielCF/az-wap-sales/pkg/botmonitor"
	pkgError "github.com/AzielCF/az-wap-sales/pkg/error"
	"github.com/AzielCF/az-wap-sales/pkg/msgworker"
	"github.com/AzielCF/az-wap-sales/pkg/qr"
	"github.com/sirupsen/logrus"
)

type Options struct {
	MaxInstances int
	Lifecycle    application.LifecycleOptions
	Resources    application.ResourceMonitorOptions
	Debounce     time.Duration
	Invoker      convApp.InvokerOptions
}

type Dependencies struct {
	Factory   domainInstance.AdapterFactory
	Store     domainConversation.IConversationStore
	Responder domainConversation.IResponder
	Notifier  domainInstance.INotifier
	Pool      *msgworker.Pool
	Events    *botmonitor.Monitor
}

// Manager is the single entry point the outer layers talk to. It owns the
// instance registry and the conversation pipeline fed by it.
type Manager struct {
	registry  *application.Registry
	lifecycle *application.LifecycleController
	resources *application.ResourceMonitor

	router    *convApp.Router
	scheduler *convApp.DebounceScheduler
	invoker   *convApp.ResponderInvoker

	pool   *msgworker.Pool
	events *botmonitor.Monitor
}

var _ domainInstance.IInstanceManager = (*Manager)(nil)

func NewManager(ctx context.Context, deps Dependencies, opts Options) *Manager {
	m := &Manager{pool: deps.Pool, events: deps.Events}

	// 1. Registry + lifecycle
	m.registry = application.NewRegistry(opts.MaxInstances, deps.Factory)
	m.lifecycle = application.NewLifecycleController(ctx, m.registry, opts.Lifecycle, deps.Notifier, deps.Events)

	// 2. Resource monitor
	m.resources = application.NewResourceMonitor(m.registry, m.lifecycle, opts.Resources, deps.Events)

	// 3. Conversation pipeline: scheduler -> invoker -> registry.Send
	m.scheduler = convApp.NewDebounceScheduler(opts.Debounce, deps.Pool, m.flush)
	m.router = convApp.NewRouter(deps.Store, m.scheduler, deps.Notifier, deps.Events)
	m.invoker = convApp.NewResponderInvoker(deps.Store, m.router, deps.Responder, m.registry, opts.Invoker, deps.Events)

	// 4. Wire up callbacks
	m.lifecycle.OnInbound = m.router.HandleInbound
	m.lifecycle.OnDestroyed = func(instanceID string) {
		m.scheduler.CancelInstance(instanceID)
	}

	return m
}

func (m *Manager) flush(ctx context.Context, burst domainConversation.Burst) {
	if err := m.invoker.Flush(ctx, burst); err != nil {
		logrus.WithError(err).Debugf("[APP] Burst from %s ended without reply", burst.SenderID)
	}
}

// Start launches the periodic resource checks.
func (m *Manager) Start(ctx context.Context) error {
	return m.resources.Start(ctx)
}

// Shutdown stops timers and tears every instance down. Pending bursts are dropped.
func (m *Manager) Shutdown(ctx context.Context) {
	m.resources.Stop()
	m.scheduler.Stop()
	m.lifecycle.Shutdown(ctx)
	logrus.Info("[APP] Instance manager stopped")
}

func (m *Manager) Create(ctx context.Context, instanceID, label string) (domainInstance.Instance, error) {
	instanceID = strings.TrimSpace(instanceID)
	if instanceID == "" {
		return domainInstance.Instance{}, pkgError.ValidationError("instance id is required")
	}
	return m.registry.Create(ctx, instanceID, strings.TrimSpace(label))
}

func (m *Manager) Destroy(ctx context.Context, instanceID string) bool {
	return m.registry.Destroy(ctx, instanceID)
}

func (m *Manager) List() []domainInstance.Snapshot {
	return m.registry.List()
}

func (m *Manager) Get(instanceID string) (domainInstance.Instance, error) {
	return m.registry.Lookup(instanceID)
}

// QR returns the pending pairing code, rendered as an image.
func (m *Manager) QR(instanceID string) (domainInstance.QRResponse, error) {
	inst, err := m.registry.Lookup(instanceID)
	if err != nil {
		return domainInstance.QRResponse{}, err
	}
	if inst.QRPayload == "" {
		return domainInstance.QRResponse{}, pkgError.NotFoundError("no pairing code pending for instance " + instanceID)
	}

	resp := domainInstance.QRResponse{
		InstanceID: inst.ID,
		Payload:    inst.QRPayload,
		ExpiresAt:  inst.QRExpiresAt,
	}
	if img, err := qr.DataURL(inst.QRPayload, qr.DefaultSize); err != nil {
		logrus.WithError(err).Warnf("[APP] Could not render QR for %s", instanceID)
	} else {
		resp.ImageURL = img
	}
	return resp, nil
}

func (m *Manager) SetEnabled(ctx context.Context, instanceID string, enabled bool) error {
	return m.lifecycle.SetEnabled(ctx, instanceID, enabled)
}

func (m *Manager) Reconnect(ctx context.Context, instanceID string) error {
	return m.lifecycle.Reconnect(ctx, instanceID)
}

// Send pushes an operator message through an instance.
func (m *Manager) Send(ctx context.Context, instanceID, to, text string) error {
	to = domainConversation.NormalizeSenderID(to)
	if to == "" || strings.TrimSpace(text) == "" {
		return pkgError.ValidationError("recipient and text are required")
	}
	if err := m.registry.Send(ctx, instanceID, to, text); err != nil {
		return err
	}
	return nil
}

func (m *Manager) Conversations() domainConversation.IConversationRouter {
	return m.router
}

func (m *Manager) Resources() *application.ResourceMonitor {
	return m.resources
}

func (m *Manager) Events() *botmonitor.Monitor {
	return m.events
}

func (m *Manager) Workers() *msgworker.Pool {
	return m.pool
}

func (m *Manager) PendingBursts() int {
	return m.scheduler.Pending()
}

func (m *Manager) Capacity() (used, max int) {
	return m.registry.Len(), m.registry.Capacity()
}

// SetCapacity changes the instance limit and evicts, least recently active
// first, whatever no longer fits before returning.
func (m *Manager) SetCapacity(n int) error {
	if n <= 0 {
		return pkgError.ValidationError("max_instances must be positive")
	}
	m.registry.SetCapacity(n)
	evicted := m.resources.TrimToCapacity(context.Background())
	logrus.Infof("[APP] Instance capacity set to %d (%d evicted)", n, len(evicted))
	return nil
}

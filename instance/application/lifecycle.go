package application

import (
	"context"
	"sync"
	"time"

	domainInstance "github.com/AzielCF/az-wap-sales/domains/instance"
	"github.com/AzielCF/az-wap-sales/pkg/botmonitor"
	pkgError "github.com/AzielCF/az-wap-sales/pkg/error"
	"github.com/sirupsen/logrus"
)

const intakeBuffer = 64

type LifecycleOptions struct {
	QRTimeout            time.Duration
	MaxReconnectAttempts int
	BackoffBase          time.Duration
	BackoffMax           time.Duration
}

func (o LifecycleOptions) withDefaults() LifecycleOptions {
	if o.QRTimeout <= 0 {
		o.QRTimeout = 60 * time.Second
	}
	if o.MaxReconnectAttempts <= 0 {
		o.MaxReconnectAttempts = 5
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = 2 * time.Second
	}
	if o.BackoffMax < o.BackoffBase {
		o.BackoffMax = o.BackoffBase
	}
	return o
}

// backoff returns base*2^(attempt-1), capped.
func (o LifecycleOptions) backoff(attempt int) time.Duration {
	d := o.BackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= o.BackoffMax {
			return o.BackoffMax
		}
	}
	if d > o.BackoffMax {
		return o.BackoffMax
	}
	return d
}

// LifecycleController drives every SessionHandle from its adapter's events.
// Each instance has one intake channel and one loop goroutine, so a handle is
// mutated by one handler at a time.
type LifecycleController struct {
	registry *Registry
	opts     LifecycleOptions
	notifier domainInstance.INotifier
	monitor  *botmonitor.Monitor

	baseCtx context.Context
	wg      sync.WaitGroup

	// OnInbound receives every inbound message, stamped with its instance id.
	OnInbound func(ctx context.Context, msg domainInstance.InboundMessage)
	// OnDestroyed runs after an instance is torn down (debounce cleanup, etc).
	OnDestroyed func(instanceID string)
}

func NewLifecycleController(ctx context.Context, registry *Registry, opts LifecycleOptions, notifier domainInstance.INotifier, monitor *botmonitor.Monitor) *LifecycleController {
	lc := &LifecycleController{
		registry: registry,
		opts:     opts.withDefaults(),
		notifier: notifier,
		monitor:  monitor,
		baseCtx:  ctx,
	}
	registry.lifecycle = lc
	registry.qrTimeout = lc.opts.QRTimeout
	return lc
}

// prepare builds everything push and destroy rely on. It runs before the
// session becomes visible in the registry.
func (lc *LifecycleController) prepare(s *session) {
	s.ctx, s.cancel = context.WithCancel(lc.baseCtx)
	s.intake = make(chan domainInstance.Event, intakeBuffer)
	s.done = make(chan struct{})
}

func (lc *LifecycleController) start(s *session) {
	lc.wg.Add(2)
	go lc.pump(s)
	go lc.loop(s)
}

// pump forwards adapter events into the intake.
func (lc *LifecycleController) pump(s *session) {
	defer lc.wg.Done()
	events := s.adapter.Events()
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.push(ev)
		}
	}
}

func (lc *LifecycleController) loop(s *session) {
	defer lc.wg.Done()
	defer close(s.done)

	if s.ctx.Err() != nil {
		return
	}
	lc.transition(s, domainInstance.StateConnecting)
	if err := s.adapter.Connect(s.ctx); err != nil {
		logrus.WithError(err).Errorf("[LIFECYCLE] Initial connect failed for %s", s.handle.ID())
		if lc.transition(s, domainInstance.StateDisconnected) {
			lc.scheduleReconnect(s)
		}
	}

	for {
		select {
		case <-s.ctx.Done():
			return
		case ev := <-s.intake:
			lc.handle(s, ev)
		}
	}
}

func (lc *LifecycleController) handle(s *session, ev domainInstance.Event) {
	id := s.handle.ID()
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("[LIFECYCLE] Panic handling %s event for %s: %v", ev.Kind, id, r)
		}
	}()

	switch ev.Kind {
	case domainInstance.EventQR:
		lc.onQR(s, ev.QR)

	case domainInstance.EventQRExpired:
		if !s.qrTimer.Consume(ev.Generation) || s.handle.State() != domainInstance.StateAuthPending {
			return
		}
		lc.onQRExpired(s)

	case domainInstance.EventReady:
		if !lc.transition(s, domainInstance.StateConnected) {
			return
		}
		s.qrTimer.Stop()
		s.reconnectTimer.Stop()
		s.handle.MarkReady(ev.Identity, time.Now())
		logrus.Infof("[LIFECYCLE] Instance %s connected as %s", id, s.handle.Label())
		// la notificacion de transicion salio antes de conocer la identidad
		lc.notifyState(s, "")

	case domainInstance.EventDisconnected:
		s.qrTimer.Stop()
		s.handle.ClearQR()
		if !lc.transition(s, domainInstance.StateDisconnected) {
			return
		}
		logrus.Warnf("[LIFECYCLE] Instance %s disconnected: %s", id, ev.Reason)
		lc.scheduleReconnect(s)

	case domainInstance.EventReconnectDue:
		if !s.reconnectTimer.Consume(ev.Generation) || s.handle.State() != domainInstance.StateReconnecting {
			return
		}
		lc.connect(s)

	case domainInstance.EventResume:
		lc.onResume(s)

	case domainInstance.EventAuthFailure:
		count := s.handle.IncError()
		logrus.WithFields(logrus.Fields{
			"instance_id": id,
			"error_count": count,
			"reason":      ev.Reason,
		}).Warn("[LIFECYCLE] Auth failure")
		err := pkgError.SessionAuthFailureError{InstanceID: id, Reason: ev.Reason}
		lc.record(id, botmonitor.StatusError, err.Error())

	case domainInstance.EventMessage:
		if ev.Message == nil {
			return
		}
		s.handle.Touch(time.Now())
		msg := *ev.Message
		msg.InstanceID = id
		if lc.OnInbound != nil {
			lc.OnInbound(s.ctx, msg)
		}
	}
}

func (lc *LifecycleController) onQR(s *session, code string) {
	if !lc.transition(s, domainInstance.StateAuthPending) {
		return
	}
	expiresAt := time.Now().Add(lc.opts.QRTimeout)
	s.handle.SetQR(code, expiresAt)
	lc.startQRTimer(s)

	lc.notify(domainInstance.Notification{
		Type:       domainInstance.NotificationQR,
		InstanceID: s.handle.ID(),
		Label:      s.handle.Label(),
		State:      domainInstance.StateAuthPending,
		QR:         code,
	})
}

func (lc *LifecycleController) startQRTimer(s *session) {
	s.qrTimer.Reset(lc.opts.QRTimeout, func(gen uint64) {
		s.push(domainInstance.Event{Kind: domainInstance.EventQRExpired, Generation: gen, At: time.Now()})
	})
}

// onQRExpired clears the code and asks for a new one. The state stays AUTH_PENDING.
func (lc *LifecycleController) onQRExpired(s *session) {
	id := s.handle.ID()
	s.handle.ClearQR()
	lc.notify(domainInstance.Notification{
		Type:       domainInstance.NotificationQR,
		InstanceID: id,
		Label:      s.handle.Label(),
		State:      domainInstance.StateAuthPending,
	})

	if !s.handle.Enabled() {
		logrus.Infof("[LIFECYCLE] QR expired for disabled instance %s, not requesting a new one", id)
		return
	}

	logrus.Infof("[LIFECYCLE] QR expired for %s, requesting a new one", id)
	if err := s.adapter.RequestQR(s.ctx); err != nil {
		logrus.WithError(err).Warnf("[LIFECYCLE] QR request failed for %s", id)
	}
	// Si el adaptador no entrega codigo nuevo, se vuelve a pedir en el siguiente vencimiento
	lc.startQRTimer(s)
}

func (lc *LifecycleController) scheduleReconnect(s *session) {
	id := s.handle.ID()
	if !s.handle.Enabled() {
		logrus.Infof("[LIFECYCLE] Instance %s is disabled, no automatic reconnect", id)
		return
	}

	attempt, ok := s.handle.NextReconnectAttempt(lc.opts.MaxReconnectAttempts)
	if !ok {
		err := pkgError.ReconnectExhaustedError{InstanceID: id, Attempts: attempt}
		logrus.WithError(err).Error("[LIFECYCLE] Giving up, operator intervention required")
		lc.record(id, botmonitor.StatusError, err.Error())
		lc.notifyState(s, err.Error())
		return
	}

	if !lc.transition(s, domainInstance.StateReconnecting) {
		return
	}
	delay := lc.opts.backoff(attempt)
	logrus.Infof("[LIFECYCLE] Reconnect attempt %d/%d for %s in %s", attempt, lc.opts.MaxReconnectAttempts, id, delay)
	s.reconnectTimer.Reset(delay, func(gen uint64) {
		s.push(domainInstance.Event{Kind: domainInstance.EventReconnectDue, Generation: gen, At: time.Now()})
	})
}

// connect counts a failed connect as a failed attempt.
func (lc *LifecycleController) connect(s *session) {
	if !lc.transition(s, domainInstance.StateConnecting) {
		return
	}
	if err := s.adapter.Connect(s.ctx); err != nil {
		logrus.WithError(err).Warnf("[LIFECYCLE] Connect failed for %s", s.handle.ID())
		if lc.transition(s, domainInstance.StateDisconnected) {
			lc.scheduleReconnect(s)
		}
	}
}

func (lc *LifecycleController) onResume(s *session) {
	switch s.handle.State() {
	case domainInstance.StateDisconnected:
		s.reconnectTimer.Stop()
		lc.connect(s)
	case domainInstance.StateAuthPending:
		if code, _ := s.handle.QR(); code == "" {
			if err := s.adapter.RequestQR(s.ctx); err != nil {
				logrus.WithError(err).Warnf("[LIFECYCLE] QR request failed for %s", s.handle.ID())
			}
			lc.startQRTimer(s)
		}
	}
}

// Reconnect is the operator's way out of an exhausted reconnect budget.
func (lc *LifecycleController) Reconnect(ctx context.Context, instanceID string) error {
	s, ok := lc.registry.lookup(instanceID)
	if !ok {
		return pkgError.UnknownInstanceError{InstanceID: instanceID}
	}
	s.handle.ResetReconnect()
	s.push(domainInstance.Event{Kind: domainInstance.EventResume, At: time.Now()})
	return nil
}

// SetEnabled toggles automatic QR refresh and reconnection.
func (lc *LifecycleController) SetEnabled(ctx context.Context, instanceID string, enabled bool) error {
	s, ok := lc.registry.lookup(instanceID)
	if !ok {
		return pkgError.UnknownInstanceError{InstanceID: instanceID}
	}
	s.handle.SetEnabled(enabled)
	if !enabled {
		s.reconnectTimer.Stop()
		logrus.Infof("[LIFECYCLE] Instance %s disabled", instanceID)
	} else {
		s.push(domainInstance.Event{Kind: domainInstance.EventResume, At: time.Now()})
		logrus.Infof("[LIFECYCLE] Instance %s enabled", instanceID)
	}
	lc.notifyState(s, "")
	return nil
}

// Destroy tears the instance down. Unknown ids return false; it never fails.
func (lc *LifecycleController) Destroy(ctx context.Context, instanceID string) bool {
	return lc.destroy(ctx, instanceID, "explicit")
}

func (lc *LifecycleController) destroy(ctx context.Context, instanceID, reason string) bool {
	s, ok := lc.registry.take(instanceID)
	if !ok {
		return false
	}

	s.teardownOnce.Do(func() {
		s.qrTimer.Stop()
		s.reconnectTimer.Stop()
		if s.cancel != nil {
			s.cancel()
		}
		lc.closeAdapter(ctx, s)
		s.handle.Transition(domainInstance.StateDestroyed)

		if lc.OnDestroyed != nil {
			func() {
				defer func() {
					if r := recover(); r != nil {
						logrus.Errorf("[LIFECYCLE] Destroy hook panic for %s: %v", instanceID, r)
					}
				}()
				lc.OnDestroyed(instanceID)
			}()
		}

		logrus.Infof("[LIFECYCLE] Instance %s destroyed (%s)", instanceID, reason)
		lc.record(instanceID, botmonitor.StatusOK, "destroyed: "+reason)
		lc.notifyState(s, "")
	})
	return true
}

func (lc *LifecycleController) closeAdapter(ctx context.Context, s *session) {
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("[LIFECYCLE] Adapter close panic for %s: %v", s.handle.ID(), r)
		}
	}()
	if err := s.adapter.Close(ctx); err != nil {
		logrus.WithError(err).Warnf("[LIFECYCLE] Adapter close failed for %s", s.handle.ID())
	}
}

// Shutdown destroys every instance and waits for their goroutines.
func (lc *LifecycleController) Shutdown(ctx context.Context) {
	for _, s := range lc.registry.all() {
		lc.destroy(ctx, s.handle.ID(), "shutdown")
	}
	lc.wg.Wait()
}

func (lc *LifecycleController) transition(s *session, to domainInstance.LifecycleState) bool {
	from, ok := s.handle.Transition(to)
	if !ok {
		if from != to {
			logrus.Debugf("[LIFECYCLE] Ignoring %s -> %s for %s", from, to, s.handle.ID())
		}
		return false
	}
	if from != to {
		lc.notifyState(s, "")
	}
	return true
}

func (lc *LifecycleController) notifyState(s *session, errMsg string) {
	lc.notify(domainInstance.Notification{
		Type:       domainInstance.NotificationLifecycle,
		InstanceID: s.handle.ID(),
		Label:      s.handle.Label(),
		State:      s.handle.State(),
		Error:      errMsg,
	})
}

// notify never lets a sink failure reach the state machine.
func (lc *LifecycleController) notify(n domainInstance.Notification) {
	if lc.notifier == nil {
		return
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now().UTC()
	}
	defer func() {
		if r := recover(); r != nil {
			logrus.Warnf("[LIFECYCLE] Notification sink panic: %v", r)
		}
	}()
	lc.notifier.Notify(n)
}

func (lc *LifecycleController) record(instanceID, status, detail string) {
	e := botmonitor.Event{
		InstanceID: instanceID,
		Stage:      botmonitor.StageLifecycle,
		Status:     status,
		Metadata:   map[string]string{"detail": detail},
	}
	if status == botmonitor.StatusError {
		e.Error = detail
	}
	lc.monitor.Record(e)
}

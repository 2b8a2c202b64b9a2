package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	domainConversation "github.com/AzielCF/az-wap-sales/domains/conversation"
	domainInstance "github.com/AzielCF/az-wap-sales/domains/instance"
	"github.com/AzielCF/az-wap-sales/pkg/botmonitor"
	pkgError "github.com/AzielCF/az-wap-sales/pkg/error"
	"github.com/sirupsen/logrus"
)

// Router gates inbound messages by conversation status. It owns the
// ConversationState records; the store only persists them.
type Router struct {
	store     domainConversation.IConversationStore
	scheduler *DebounceScheduler
	notifier  domainInstance.INotifier
	monitor   *botmonitor.Monitor

	mu     sync.Mutex
	states map[string]domainConversation.State
}

var _ domainConversation.IConversationRouter = (*Router)(nil)

func NewRouter(store domainConversation.IConversationStore, scheduler *DebounceScheduler, notifier domainInstance.INotifier, monitor *botmonitor.Monitor) *Router {
	return &Router{
		store:     store,
		scheduler: scheduler,
		notifier:  notifier,
		monitor:   monitor,
		states:    make(map[string]domainConversation.State),
	}
}

// HandleInbound is the entry point for every message an instance receives.
func (r *Router) HandleInbound(ctx context.Context, msg domainInstance.InboundMessage) {
	if msg.FromSelf {
		return
	}
	sender := domainConversation.NormalizeSenderID(msg.SenderID)
	text := strings.TrimSpace(msg.Text)
	if sender == "" || text == "" {
		return
	}
	receivedAt := msg.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}

	state, err := r.observe(ctx, sender, msg.InstanceID, receivedAt)
	if err != nil {
		logrus.WithError(err).Errorf("[ROUTER] Could not load conversation state for %s", sender)
		return
	}

	r.monitor.Record(botmonitor.Event{
		InstanceID: msg.InstanceID,
		SenderID:   sender,
		Stage:      botmonitor.StageInbound,
		Status:     botmonitor.StatusOK,
		Metadata:   map[string]string{"conversation_status": string(state.Status)},
	})

	if state.Status.AllowsAutoReply() {
		r.scheduler.Enqueue(msg.InstanceID, sender, msg.PushName, text, receivedAt)
		return
	}

	// Sin respuesta automatica: queda en el burst pendiente (si hay) para no romper el orden.
	if r.scheduler.AppendIfPending(msg.InstanceID, sender, text, receivedAt) {
		return
	}
	if err := r.store.AppendMessage(ctx, sender, text, domainConversation.AuthorUser); err != nil {
		logrus.WithError(err).Errorf("[ROUTER] Failed to persist message from %s", sender)
		return
	}
	logrus.Debugf("[ROUTER] %s is %s, message recorded without auto reply", sender, state.Status)
}

// observe returns the sender's state, creating it as bot on first contact.
// Only the owning instance and the activity clock are merged in here; the
// status always comes from the cache or the store, never from an earlier read.
func (r *Router) observe(ctx context.Context, sender, instanceID string, at time.Time) (domainConversation.State, error) {
	if state, ok := r.touch(sender, instanceID, at); ok {
		return state, nil
	}

	stored, err := r.store.EnsureConversation(ctx, sender)
	if err != nil {
		return domainConversation.State{}, err
	}

	r.mu.Lock()
	if _, ok := r.states[sender]; !ok {
		r.states[sender] = stored
		logrus.Infof("[ROUTER] Tracking conversation %s (%s, via %s)", sender, stored.Status, instanceID)
	}
	r.mu.Unlock()

	state, _ := r.touch(sender, instanceID, at)
	return state, nil
}

// touch updates a cached state in place. It reports false on a cache miss.
func (r *Router) touch(sender, instanceID string, at time.Time) (domainConversation.State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.states[sender]
	if !ok {
		return domainConversation.State{}, false
	}
	if instanceID != "" {
		state.InstanceID = instanceID
	}
	if at.After(state.LastActivity) {
		state.LastActivity = at
	}
	r.states[sender] = state
	return state, true
}

func (r *Router) load(ctx context.Context, sender string) (domainConversation.State, error) {
	r.mu.Lock()
	state, ok := r.states[sender]
	r.mu.Unlock()
	if ok {
		return state, nil
	}

	state, err := r.store.GetConversationStatus(ctx, sender)
	if err != nil {
		return domainConversation.State{}, err
	}
	r.mu.Lock()
	if cached, ok := r.states[sender]; ok {
		state = cached
	} else {
		r.states[sender] = state
	}
	r.mu.Unlock()
	return state, nil
}

// SetStatus is the operator action. Any status may be set at any time.
func (r *Router) SetStatus(ctx context.Context, senderID string, status domainConversation.Status, operatorID string) (domainConversation.State, error) {
	if !status.Valid() {
		return domainConversation.State{}, pkgError.ValidationError(fmt.Sprintf("invalid conversation status: %q", status))
	}
	sender := domainConversation.NormalizeSenderID(senderID)
	if sender == "" {
		return domainConversation.State{}, pkgError.ValidationError("sender_id is required")
	}
	operatorID = strings.TrimSpace(operatorID)

	if err := r.store.SetConversationStatus(ctx, sender, status, operatorID); err != nil {
		return domainConversation.State{}, err
	}

	now := time.Now().UTC()
	r.mu.Lock()
	state, ok := r.states[sender]
	if !ok {
		state = domainConversation.State{SenderID: sender, LastActivity: now}
	}
	state.Status = status
	state.AssignedOperatorID = operatorID
	r.states[sender] = state
	r.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"sender_id":   sender,
		"status":      status,
		"operator_id": operatorID,
	}).Info("[ROUTER] Conversation status changed")

	r.broadcast(domainConversation.StatusChange{SenderID: sender, Status: status, OperatorID: operatorID, Timestamp: now})
	return state, nil
}

// broadcast never lets a sink failure reach the caller.
func (r *Router) broadcast(change domainConversation.StatusChange) {
	if r.notifier == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			logrus.Warnf("[ROUTER] Notification sink panic: %v", rec)
		}
	}()
	r.notifier.Notify(domainInstance.Notification{
		Type:       domainInstance.NotificationConversationStatus,
		SenderID:   change.SenderID,
		Status:     string(change.Status),
		OperatorID: change.OperatorID,
		Timestamp:  change.Timestamp,
	})
}

// Status reads the current gate, defaulting unknown senders to bot.
func (r *Router) Status(ctx context.Context, senderID string) (domainConversation.Status, error) {
	state, err := r.load(ctx, domainConversation.NormalizeSenderID(senderID))
	if errors.Is(err, pkgError.ErrUnknownSender) {
		return domainConversation.StatusBot, nil
	}
	if err != nil {
		return "", err
	}
	return state.Status, nil
}

func (r *Router) GetState(ctx context.Context, senderID string) (domainConversation.State, error) {
	return r.load(ctx, domainConversation.NormalizeSenderID(senderID))
}

// ListStates merges the stored records with what only lives in memory (owning instance).
func (r *Router) ListStates(ctx context.Context) ([]domainConversation.State, error) {
	stored, err := r.store.ListConversations(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range stored {
		if cached, ok := r.states[s.SenderID]; ok {
			stored[i].InstanceID = cached.InstanceID
			if cached.LastActivity.After(s.LastActivity) {
				stored[i].LastActivity = cached.LastActivity
			}
		}
	}
	return stored, nil
}

func (r *Router) History(ctx context.Context, senderID string, limit int) ([]domainConversation.Message, error) {
	sender := domainConversation.NormalizeSenderID(senderID)
	if _, err := r.load(ctx, sender); err != nil {
		return nil, err
	}
	return r.store.GetRecentHistory(ctx, sender, limit)
}

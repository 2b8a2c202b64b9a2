package application

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	domainConversation "github.com/AzielCF/az-wap-sales/domains/conversation"
	"github.com/AzielCF/az-wap-sales/pkg/botmonitor"
	pkgError "github.com/AzielCF/az-wap-sales/pkg/error"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ReplySender delivers a reply through the instance that owns the conversation.
type ReplySender interface {
	Send(ctx context.Context, instanceID, to, text string) error
}

type InvokerOptions struct {
	HistoryLimit int
	Timeout      time.Duration
	SendTimeout  time.Duration
	Provider     string
}

// ResponderInvoker turns a flushed burst into at most one reply.
type ResponderInvoker struct {
	store     domainConversation.IConversationStore
	router    *Router
	responder domainConversation.IResponder
	sender    ReplySender
	opts      InvokerOptions
	monitor   *botmonitor.Monitor
}

func NewResponderInvoker(store domainConversation.IConversationStore, router *Router, responder domainConversation.IResponder, sender ReplySender, opts InvokerOptions, monitor *botmonitor.Monitor) *ResponderInvoker {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 20
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 15 * time.Second
	}
	return &ResponderInvoker{
		store:     store,
		router:    router,
		responder: responder,
		sender:    sender,
		opts:      opts,
		monitor:   monitor,
	}
}

// Flush persists the burst and, if the sender is still gated to the bot,
// asks the responder for a reply and sends it. Failures end in silence.
func (inv *ResponderInvoker) Flush(ctx context.Context, burst domainConversation.Burst) error {
	if len(burst.Messages) == 0 {
		return nil
	}
	sender := burst.SenderID
	traceID := uuid.NewString()
	log := logrus.WithFields(logrus.Fields{
		"trace_id":    traceID,
		"instance_id": burst.InstanceID,
		"sender_id":   sender,
	})

	history, err := inv.store.GetRecentHistory(ctx, sender, inv.opts.HistoryLimit)
	if err != nil {
		log.WithError(err).Warn("[RESPONDER] Could not load history, continuing without it")
		history = nil
	}

	for _, m := range burst.Messages {
		if strings.TrimSpace(m.Text) == "" {
			continue
		}
		if err := inv.store.AppendMessage(ctx, sender, m.Text, domainConversation.AuthorUser); err != nil {
			log.WithError(err).Error("[RESPONDER] Failed to persist inbound message")
		}
	}

	status, err := inv.router.Status(ctx, sender)
	if err != nil {
		log.WithError(err).Error("[RESPONDER] Could not read conversation status, skipping reply")
		return err
	}
	if !status.AllowsAutoReply() {
		log.Infof("[RESPONDER] Conversation is %s, burst recorded without reply", status)
		inv.record(traceID, burst, botmonitor.StageAIRequest, botmonitor.StatusSkipped, "", 0, map[string]string{"conversation_status": string(status)})
		return nil
	}

	text := burst.Text()
	inv.record(traceID, burst, botmonitor.StageAIRequest, botmonitor.StatusOK, "", 0, map[string]string{"messages": strconv.Itoa(len(burst.Messages))})

	replyCtx, cancel := context.WithTimeout(ctx, inv.opts.Timeout)
	start := time.Now()
	reply, err := inv.responder.GenerateReply(replyCtx, domainConversation.TurnsFromHistory(history), text, domainConversation.SenderMetadata{
		SenderID:   sender,
		InstanceID: burst.InstanceID,
		PushName:   burst.PushName,
	})
	timedOut := errors.Is(replyCtx.Err(), context.DeadlineExceeded)
	cancel()
	took := time.Since(start)

	if err == nil && strings.TrimSpace(reply) == "" {
		err = errors.New("empty reply")
	}
	if err != nil {
		var typed error
		if timedOut || errors.Is(err, context.DeadlineExceeded) {
			typed = pkgError.ResponderTimeoutError{SenderID: sender, Err: err}
		} else {
			typed = pkgError.ResponderError{SenderID: sender, Err: err}
		}
		log.WithError(typed).Warn("[RESPONDER] No reply generated")
		inv.record(traceID, burst, botmonitor.StageAIResponse, botmonitor.StatusError, typed.Error(), took, nil)
		return typed
	}
	inv.record(traceID, burst, botmonitor.StageAIResponse, botmonitor.StatusOK, "", took, nil)

	sendCtx, cancelSend := context.WithTimeout(ctx, inv.opts.SendTimeout)
	err = inv.sender.Send(sendCtx, burst.InstanceID, sender, reply)
	cancelSend()
	if err != nil {
		typed := pkgError.SendFailureError{InstanceID: burst.InstanceID, To: sender, Err: err}
		log.WithError(typed).Warn("[RESPONDER] Reply lost")
		inv.record(traceID, burst, botmonitor.StageOutbound, botmonitor.StatusError, typed.Error(), 0, nil)
		return typed
	}

	if err := inv.store.AppendMessage(ctx, sender, reply, domainConversation.AuthorSystem); err != nil {
		log.WithError(err).Error("[RESPONDER] Reply sent but not persisted")
	}
	inv.record(traceID, burst, botmonitor.StageOutbound, botmonitor.StatusOK, "", 0, nil)
	log.Infof("[RESPONDER] Replied to burst of %d message(s) in %s", len(burst.Messages), took.Round(time.Millisecond))
	return nil
}

func (inv *ResponderInvoker) record(traceID string, burst domainConversation.Burst, stage, status, errMsg string, took time.Duration, meta map[string]string) {
	inv.monitor.Record(botmonitor.Event{
		TraceID:    traceID,
		InstanceID: burst.InstanceID,
		SenderID:   burst.SenderID,
		Provider:   inv.opts.Provider,
		Stage:      stage,
		Status:     status,
		Error:      errMsg,
		Metadata:   meta,
		DurationMs: took.Milliseconds(),
	})
}

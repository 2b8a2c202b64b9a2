package application

import (
	"context"
	"strings"
	"sync"
	"time"

	domainConversation "github.com/AzielCF/az-wap-sales/domains/conversation"
	"github.com/AzielCF/az-wap-sales/pkg/msgworker"
	"github.com/sirupsen/logrus"
)

type pendingBurst struct {
	burst domainConversation.Burst
	timer *time.Timer
	gen   uint64
}

// DebounceScheduler coalesces the bubbles of one sender into a single flush
// after a quiet period. It is the only owner of pending bursts.
type DebounceScheduler struct {
	mu      sync.Mutex
	entries map[string]*pendingBurst
	seq     uint64
	stopped bool

	quiet time.Duration
	pool  *msgworker.Pool

	// flushFn receives every burst taken from the scheduler.
	flushFn func(ctx context.Context, burst domainConversation.Burst)
}

func NewDebounceScheduler(quiet time.Duration, pool *msgworker.Pool, flush func(ctx context.Context, burst domainConversation.Burst)) *DebounceScheduler {
	return &DebounceScheduler{
		entries: make(map[string]*pendingBurst),
		quiet:   quiet,
		pool:    pool,
		flushFn: flush,
	}
}

// Enqueue appends a message to the sender's burst and restarts its quiet timer.
func (d *DebounceScheduler) Enqueue(instanceID, senderID, pushName, text string, receivedAt time.Time) bool {
	if strings.TrimSpace(senderID) == "" || strings.TrimSpace(text) == "" {
		return false
	}

	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return false
	}

	e := d.entries[senderID]
	if e == nil {
		e = &pendingBurst{burst: domainConversation.Burst{SenderID: senderID}}
		d.entries[senderID] = e
	}
	e.burst.InstanceID = instanceID
	if pushName != "" {
		e.burst.PushName = pushName
	}
	e.burst.Messages = append(e.burst.Messages, domainConversation.BurstMessage{Text: text, ReceivedAt: receivedAt})

	if d.quiet <= 0 {
		burst := e.burst
		delete(d.entries, senderID)
		d.mu.Unlock()
		d.dispatch(burst)
		return true
	}

	if e.timer != nil {
		e.timer.Stop()
	}
	d.seq++
	gen := d.seq
	e.gen = gen
	e.timer = time.AfterFunc(d.quiet, func() { d.fire(senderID, gen) })
	size := len(e.burst.Messages)
	d.mu.Unlock()

	logrus.Debugf("[DEBOUNCER] %s has %d message(s) pending, flush in %s", senderID, size, d.quiet)
	return true
}

// AppendIfPending adds a message to an existing burst without touching its timer.
// Used for senders no longer gated to the bot so their history keeps its order.
func (d *DebounceScheduler) AppendIfPending(instanceID, senderID, text string, receivedAt time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	e := d.entries[senderID]
	if e == nil || d.stopped {
		return false
	}
	e.burst.Messages = append(e.burst.Messages, domainConversation.BurstMessage{Text: text, ReceivedAt: receivedAt})
	return true
}

func (d *DebounceScheduler) HasPending(senderID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.entries[senderID]
	return ok
}

func (d *DebounceScheduler) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// fire takes and clears the burst atomically; anything arriving later starts a new one.
func (d *DebounceScheduler) fire(senderID string, gen uint64) {
	d.mu.Lock()
	e := d.entries[senderID]
	if e == nil || e.gen != gen {
		d.mu.Unlock()
		return
	}
	delete(d.entries, senderID)
	burst := e.burst
	d.mu.Unlock()

	logrus.Debugf("[DEBOUNCER] Flushing %d message(s) from %s", len(burst.Messages), senderID)
	d.dispatch(burst)
}

func (d *DebounceScheduler) dispatch(burst domainConversation.Burst) {
	if d.flushFn == nil {
		return
	}
	job := msgworker.Job{
		InstanceID: burst.InstanceID,
		SenderID:   burst.SenderID,
		Handler: func(ctx context.Context) error {
			d.flushFn(ctx, burst)
			return nil
		},
	}
	if d.pool != nil && d.pool.TryDispatch(job) {
		return
	}
	// sin pool (o cola llena): se procesa en la goroutine del timer
	_ = job.Handler(context.Background())
}

// CancelInstance discards, without dispatch, every burst owned by the instance.
func (d *DebounceScheduler) CancelInstance(instanceID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for sender, e := range d.entries {
		if e.burst.InstanceID != instanceID {
			continue
		}
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(d.entries, sender)
		n++
	}
	if n > 0 {
		logrus.Infof("[DEBOUNCER] Discarded %d pending burst(s) of destroyed instance %s", n, instanceID)
	}
	return n
}

// Stop cancels every timer and drops pending bursts.
func (d *DebounceScheduler) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	for sender, e := range d.entries {
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(d.entries, sender)
	}
}

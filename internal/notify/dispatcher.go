// Package notify implements the decoupled outbound-notification pipeline:
// a queue plus a single worker that serializes and rate-limits sends so the
// reconciliation hot path never waits on the messaging provider.
package notify

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
)

// ErrRecipientBlocked indicates the recipient has blocked the bot. Delivery
// failures of this kind are swallowed, never retried.
var ErrRecipientBlocked = errors.New("notify: recipient blocked")

// Button is one inline keyboard button.
type Button struct {
	Text         string
	CallbackData string
}

// Message is one outbound notification.
type Message struct {
	Recipient int64
	Text      string
	Buttons   [][]Button
}

// Messenger sends a single message to a single recipient.
type Messenger interface {
	Send(ctx context.Context, msg Message) error
}

// Config configures the Dispatcher.
type Config struct {
	Messenger     Messenger
	QueueSize     int
	MinInterval   time.Duration // minimum gap between sends to one recipient
	MaxConcurrent int           // concurrent send gate
}

// Dispatcher drains a message queue with per-recipient flood control.
// Enqueue is non-blocking; a full queue drops the message.
type Dispatcher struct {
	messenger   Messenger
	queue       chan Message
	minInterval time.Duration
	sem         chan struct{}
	lastSend    *xsync.Map[int64, *sendState]

	ctx      context.Context
	cancel   context.CancelFunc
	stopCh   chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewDispatcher creates a dispatcher. Zero config fields get defaults.
func NewDispatcher(cfg Config) *Dispatcher {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 4096
	}
	minInterval := cfg.MinInterval
	if minInterval <= 0 {
		minInterval = time.Second
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 5
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		messenger:   cfg.Messenger,
		queue:       make(chan Message, queueSize),
		minInterval: minInterval,
		sem:         make(chan struct{}, maxConcurrent),
		lastSend:    xsync.NewMap[int64, *sendState](),
		ctx:         ctx,
		cancel:      cancel,
		stopCh:      make(chan struct{}),
	}
}

// Start launches the background worker.
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop halts the worker and cancels in-flight sends. Messages still queued
// are dropped (logged); the monitor re-evaluates full state next start, so
// anything important is re-emitted.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopCh)
		d.cancel()
	})
	d.wg.Wait()
	if n := len(d.queue); n > 0 {
		log.Printf("[notify] stopped with %d undelivered messages", n)
	}
}

// Enqueue queues a message for delivery. Non-blocking; reports whether the
// message was accepted.
func (d *Dispatcher) Enqueue(msg Message) bool {
	select {
	case d.queue <- msg:
		return true
	default:
		log.Printf("[notify] queue full, dropping message for %d", msg.Recipient)
		return false
	}
}

// QueueLen returns the number of queued, not yet dispatched messages.
func (d *Dispatcher) QueueLen() int {
	return len(d.queue)
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case <-d.stopCh:
			return
		case msg := <-d.queue:
			st, ok := d.throttle(msg.Recipient)
			if !ok {
				return // stopped mid-wait
			}
			select {
			case <-d.stopCh:
				return
			case d.sem <- struct{}{}:
			}
			d.wg.Add(1)
			go d.send(msg, st)
		}
	}
}

// sendState tracks one in-flight or completed send to a recipient.
// completedAt is valid once done is closed.
type sendState struct {
	done        chan struct{}
	completedAt time.Time
}

// throttle enforces the per-recipient minimum interval, measured from the
// completion of the previous send so a slow provider cannot compress the
// gap. Waiting on the previous send also keeps same-recipient deliveries in
// queue order. Returns false if the dispatcher stopped while waiting.
func (d *Dispatcher) throttle(recipient int64) (*sendState, bool) {
	if prev, ok := d.lastSend.Load(recipient); ok {
		select {
		case <-d.stopCh:
			return nil, false
		case <-prev.done:
		}
		if wait := d.minInterval - time.Since(prev.completedAt); wait > 0 {
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case <-d.stopCh:
				return nil, false
			case <-timer.C:
			}
		}
	}
	st := &sendState{done: make(chan struct{})}
	d.lastSend.Store(recipient, st)
	return st, true
}

func (d *Dispatcher) send(msg Message, st *sendState) {
	defer d.wg.Done()
	defer func() { <-d.sem }()

	err := d.messenger.Send(d.ctx, msg)
	st.completedAt = time.Now()
	close(st.done)
	switch {
	case err == nil:
	case errors.Is(err, ErrRecipientBlocked):
		// User blocked the bot; not actionable, don't spam the log.
		log.Printf("[notify] recipient %d blocked, message dropped", msg.Recipient)
	default:
		log.Printf("[notify] send to %d failed: %v", msg.Recipient, err)
	}
}

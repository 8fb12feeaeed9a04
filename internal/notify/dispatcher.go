package notify

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"tablequeue/queue-service/internal/store"

	"go.uber.org/zap"
)

const (
	KindTicketIssued     = "ticket_issued"
	KindTicketCalled     = "ticket_called"
	KindVerificationCode = "verification_code"

	statusSent   = "sent"
	statusFailed = "failed"
)

// Message is a notification request. Vars fill the kind's template.
type Message struct {
	Kind       string
	CustomerID string
	TicketID   string
	Recipient  string
	Vars       map[string]string
}

type Options struct {
	Workers     int
	QueueSize   int
	SendTimeout time.Duration
}

// Dispatcher delivers messages on a bounded worker pool. Delivery is best
// effort: a full queue drops the message and a failed send is only recorded.
type Dispatcher struct {
	provider    Provider
	recorder    store.NotificationLog
	log         *zap.Logger
	queue       chan Message
	workers     int
	sendTimeout time.Duration
	now         func() time.Time

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(provider Provider, recorder store.NotificationLog, log *zap.Logger, options Options) *Dispatcher {
	workers := options.Workers
	if workers <= 0 {
		workers = 4
	}
	size := options.QueueSize
	if size <= 0 {
		size = 256
	}
	timeout := options.SendTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		provider:    provider,
		recorder:    recorder,
		log:         log,
		queue:       make(chan Message, size),
		workers:     workers,
		sendTimeout: timeout,
		now:         time.Now,
	}
}

// Start runs the workers until Close is called or ctx is done.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-d.queue:
					if !ok {
						return
					}
					d.deliver(ctx, msg)
				}
			}
		}()
	}
}

// Notify enqueues msg without blocking and reports whether it was accepted.
func (d *Dispatcher) Notify(msg Message) bool {
	if msg.Recipient == "" {
		return false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	select {
	case d.queue <- msg:
		return true
	default:
		d.log.Warn("notification queue full, dropping message",
			zap.String("kind", msg.Kind),
			zap.String("ticket_id", msg.TicketID))
		return false
	}
}

// Close stops accepting messages, drains the queue and waits for the workers.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
	if closer, ok := d.provider.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, msg Message) {
	text := Render(msg.Kind, msg.Vars)
	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	record := store.NotificationRecord{
		CustomerID: msg.CustomerID,
		TicketID:   msg.TicketID,
		Kind:       msg.Kind,
		Recipient:  msg.Recipient,
		Message:    text,
		Provider:   d.provider.Name(),
		Status:     statusSent,
		CreatedAt:  d.now().UTC(),
	}
	if err := d.provider.Send(sendCtx, text, msg.Recipient); err != nil {
		record.Status = statusFailed
		record.LastError = err.Error()
		d.log.Warn("notification failed",
			zap.String("kind", msg.Kind),
			zap.String("provider", record.Provider),
			zap.String("ticket_id", msg.TicketID),
			zap.Error(err))
	}

	if d.recorder == nil {
		return
	}
	if err := d.recorder.RecordNotification(sendCtx, record); err != nil {
		d.log.Warn("notification log write failed", zap.String("kind", msg.Kind), zap.Error(err))
	}
}

func defaultTemplate(kind string) string {
	switch kind {
	case KindTicketIssued:
		return "Your ticket is {formatted_number} ({table_type} table). Now calling {current_called}, {waiting_count} party(ies) ahead of you."
	case KindTicketCalled:
		return "Ticket {formatted_number}: your table is ready, please come to the host stand."
	case KindVerificationCode:
		return "Your verification code is {code}. It expires in {ttl_minutes} minutes."
	}
	return ""
}

// Render fills the kind's template with vars. Unknown placeholders are left
// as they are.
func Render(kind string, vars map[string]string) string {
	result := defaultTemplate(kind)
	for key, value := range vars {
		result = strings.ReplaceAll(result, "{"+key+"}", value)
	}
	return result
}

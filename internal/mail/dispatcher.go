package mail

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/cenkalti/backoff/v4"
)

const queueCapacity = 64

// Dispatcher decouples email delivery from request handling. Messages are
// queued and delivered by background workers; each delivery retries with
// exponential backoff before giving up. Failures are logged, never returned.
type Dispatcher struct {
	sender     Sender
	logger     *slog.Logger
	queue      chan Message
	maxRetries uint64

	wg   sync.WaitGroup
	once sync.Once
}

// NewDispatcher starts the worker pool. maxRetries bounds retry attempts per
// message beyond the first.
func NewDispatcher(sender Sender, logger *slog.Logger, workers int, maxRetries int) *Dispatcher {
	if workers <= 0 {
		workers = 2
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	d := &Dispatcher{
		sender:     sender,
		logger:     logger,
		queue:      make(chan Message, queueCapacity),
		maxRetries: uint64(maxRetries),
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Enqueue hands a message to the background workers without blocking the
// caller. When the queue is full the message is dropped and logged.
func (d *Dispatcher) Enqueue(msg Message) {
	select {
	case d.queue <- msg:
	default:
		d.logger.Warn("mail queue full, dropping message", "to", msg.To, "subject", msg.Subject)
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for msg := range d.queue {
		d.deliver(msg)
	}
}

func (d *Dispatcher) deliver(msg Message) {
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), d.maxRetries)
	err := backoff.Retry(func() error {
		res := d.sender.Send(msg)
		if res.OK {
			return nil
		}
		if res.Err != nil {
			return res.Err
		}
		return errors.New("send failed")
	}, policy)

	if err != nil {
		d.logger.Warn("email delivery failed", "to", msg.To, "subject", msg.Subject, "error", err)
		return
	}
	d.logger.Debug("email delivered", "to", msg.To, "subject", msg.Subject)
}

// Close stops accepting messages, drains the queue, and waits for in-flight
// deliveries to finish.
func (d *Dispatcher) Close() {
	d.once.Do(func() { close(d.queue) })
	d.wg.Wait()
}

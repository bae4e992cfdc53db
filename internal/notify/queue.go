package notify

import (
	"context"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"contentjobs/pkg/backoff"
	"contentjobs/pkg/circuitbreaker"
)

// MetricsRecorder receives delivery outcome callbacks. Implementations must
// be safe for concurrent use.
type MetricsRecorder interface {
	WebhookDelivered(eventType string)
	WebhookFailed(eventType string)
	WebhookDropped(eventType string)
}

// QueueNotifier is an in-memory buffered notifier with a worker pool,
// per-destination circuit breaking, and retry with jittered backoff.
type QueueNotifier struct {
	queue    chan *Delivery
	sender   *Sender
	breakers *circuitbreaker.Registry
	cfg      Config
	logger   *slog.Logger
	metrics  MetricsRecorder

	queued    atomic.Int64
	inflight  atomic.Int64
	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
	requeued  atomic.Int64
	retries   atomic.Int64

	wg     sync.WaitGroup
	cancel context.CancelFunc
	closed atomic.Bool
}

// NewQueueNotifier creates and starts a queue-backed notifier.
// metrics may be nil.
func NewQueueNotifier(cfg Config, logger *slog.Logger, metrics MetricsRecorder) *QueueNotifier {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	n := &QueueNotifier{
		queue:    make(chan *Delivery, cfg.BufferSize),
		sender:   NewSender(cfg.HTTPTimeout),
		breakers: circuitbreaker.NewRegistry(circuitbreaker.Config{}),
		cfg:      cfg,
		logger:   logger.With("component", "notifier"),
		metrics:  metrics,
	}
	n.cancel = cancel

	for i := range cfg.Workers {
		n.wg.Add(1)
		go n.worker(ctx, i)
	}
	return n
}

// Notify queues a delivery without blocking.
func (n *QueueNotifier) Notify(d *Delivery) error {
	if n.closed.Load() {
		return ErrBufferFull
	}
	select {
	case n.queue <- d:
		n.queued.Add(1)
		return nil
	default:
		n.dropped.Add(1)
		if n.metrics != nil {
			n.metrics.WebhookDropped(d.Event.Type)
		}
		n.logger.Warn("delivery dropped, buffer full",
			"event_type", d.Event.Type,
			"session_id", d.Event.SessionID)
		return ErrBufferFull
	}
}

// Stats returns current notifier statistics.
func (n *QueueNotifier) Stats() Stats {
	bs := n.breakers.Stats()
	return Stats{
		QueueDepth:    len(n.queue),
		Queued:        n.queued.Load(),
		Delivered:     n.delivered.Load(),
		Failed:        n.failed.Load(),
		Dropped:       n.dropped.Load(),
		Requeued:      n.requeued.Load(),
		RetriesTotal:  n.retries.Load(),
		BreakersTotal: bs.Total,
		BreakersOpen:  bs.Open,
	}
}

// Close stops accepting deliveries and waits for the queue to drain, up to
// the context deadline.
func (n *QueueNotifier) Close(ctx context.Context) error {
	n.closed.Store(true)

	drained := make(chan struct{})
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		// Require two consecutive idle observations, since a worker may have
		// dequeued a delivery it has not yet marked in flight.
		idle := 0
		for idle < 2 {
			if len(n.queue) == 0 && n.inflight.Load() == 0 {
				idle++
			} else {
				idle = 0
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
		close(drained)
	}()

	select {
	case <-drained:
	case <-ctx.Done():
		n.logger.Warn("notifier closed with undelivered events", "remaining", len(n.queue))
	}

	n.cancel()
	n.wg.Wait()
	return nil
}

func (n *QueueNotifier) worker(ctx context.Context, id int) {
	defer n.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case d := <-n.queue:
			n.inflight.Add(1)
			n.deliver(ctx, d)
			n.inflight.Add(-1)
		}
	}
}

func (n *QueueNotifier) deliver(ctx context.Context, d *Delivery) {
	breaker := n.breakers.Get(breakerKey(d.URL))

	if !breaker.Allow() {
		n.requeue(d)
		return
	}

	var lastErr error
	for attempt := 1; attempt <= n.cfg.MaxRetries; attempt++ {
		lastErr = n.sender.Send(ctx, d.URL, d.Event, d.SigningKey)
		if lastErr == nil {
			breaker.RecordSuccess()
			n.delivered.Add(1)
			if n.metrics != nil {
				n.metrics.WebhookDelivered(d.Event.Type)
			}
			return
		}
		if IsClientError(lastErr) || ctx.Err() != nil {
			break
		}
		if attempt < n.cfg.MaxRetries {
			n.retries.Add(1)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff.Jittered(attempt, nil)):
			}
		}
	}

	breaker.RecordFailure()
	n.failed.Add(1)
	if n.metrics != nil {
		n.metrics.WebhookFailed(d.Event.Type)
	}
	n.logger.Warn("delivery failed",
		"event_type", d.Event.Type,
		"session_id", d.Event.SessionID,
		"url", d.URL,
		"error", lastErr)
}

// requeue puts a delivery back on the queue when its circuit is open,
// dropping it after too many trips.
func (n *QueueNotifier) requeue(d *Delivery) {
	d.Requeues++
	if d.Requeues > n.cfg.MaxRequeues {
		n.dropped.Add(1)
		if n.metrics != nil {
			n.metrics.WebhookDropped(d.Event.Type)
		}
		n.logger.Warn("delivery dropped, circuit open too long",
			"event_type", d.Event.Type,
			"url", d.URL)
		return
	}
	n.requeued.Add(1)
	select {
	case n.queue <- d:
	default:
		n.dropped.Add(1)
		if n.metrics != nil {
			n.metrics.WebhookDropped(d.Event.Type)
		}
	}
}

// breakerKey extracts the host so all endpoints on one destination share a
// breaker.
func breakerKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}

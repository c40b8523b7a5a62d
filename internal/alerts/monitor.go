package alerts

import (
	"context"
	"sync"
	"time"

	"vpsdash/internal/health"
	"vpsdash/internal/logger"
	"vpsdash/internal/notify"
	"vpsdash/internal/probe"
)

const queueSize = 32

// Sender delivers a notification
type Sender interface {
	Send(ctx context.Context, msg notify.Message) error
}

// Monitor watches published snapshots and raises or resolves alerts.
// Delivery happens on a background worker so a slow endpoint never holds
// up the probe cycle.
type Monitor struct {
	manager *AlertManager
	sender  Sender
	log     *logger.Logger
	queue   chan notify.Message
	wg      sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

// NewMonitor creates a monitor. A nil sender only logs decisions.
func NewMonitor(manager *AlertManager, sender Sender, log *logger.Logger) *Monitor {
	if log == nil {
		log = logger.Nop()
	}
	return &Monitor{
		manager: manager,
		sender:  sender,
		log:     log.Named("alerts"),
		queue:   make(chan notify.Message, queueSize),
	}
}

// Observe implements health.Observer
func (m *Monitor) Observe(s health.Snapshot) {
	for _, r := range s.Results {
		if alert, ok := FromResult(r); ok {
			decision := m.manager.ProcessAlert(alert)
			if decision.ShouldNotify {
				m.log.Warning("alert %s: %s", decision.Reason, alert.Title)
				m.enqueue(decision)
			}
			continue
		}
		if r.Status == probe.StatusOK {
			if decision := m.manager.CheckResolved(r.Name); decision != nil {
				m.log.Info("alert resolved: %s", decision.Alert.Alert.Title)
				m.enqueue(*decision)
			}
		}
	}
}

func (m *Monitor) enqueue(d NotificationDecision) {
	if m.sender == nil {
		return
	}
	a := d.Alert
	msg := notify.Message{
		Type:  d.Reason,
		Title: a.Alert.Title,
		Body:  d.Notification,
		Payload: map[string]any{
			"probe":       a.Alert.Probe,
			"status":      a.Alert.Status,
			"severity":    a.Alert.Severity,
			"value":       a.Alert.Value,
			"message":     a.Alert.Message,
			"fingerprint": a.Fingerprint,
			"firstSeen":   a.FirstSeen.UTC().Format(time.RFC3339),
			"count":       a.Count,
		},
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	select {
	case m.queue <- msg:
	default:
		m.log.Warning("notification queue full, dropping %s for %s", d.Reason, a.Alert.Probe)
	}
}

// Start runs the delivery worker until ctx is done or Stop is called
func (m *Monitor) Start(ctx context.Context) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			select {
			case msg, ok := <-m.queue:
				if !ok {
					return
				}
				m.deliver(ctx, msg)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop drains queued notifications and waits for the worker
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.stopped {
		m.stopped = true
		close(m.queue)
	}
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *Monitor) deliver(ctx context.Context, msg notify.Message) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := m.sender.Send(ctx, msg); err != nil {
		m.log.Error("failed to deliver %s notification %q: %v", msg.Type, msg.Title, err)
		return
	}
	m.log.Debug("delivered %s notification %q", msg.Type, msg.Title)
}

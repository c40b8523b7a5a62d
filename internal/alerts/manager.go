package alerts

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"sync"
	"time"

	"vpsdash/internal/probe"
)

// AlertSeverity represents alert severity level
type AlertSeverity string

const (
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// Decision reasons
const (
	ReasonNew       = "new"
	ReasonRenotify  = "renotify"
	ReasonEscalated = "escalated"
	ReasonDuplicate = "duplicate"
	ReasonResolved  = "resolved"
)

// Alert is a non-OK probe result worth telling someone about
type Alert struct {
	Probe       string        `json:"probe"`
	Status      probe.Status  `json:"status"`
	Severity    AlertSeverity `json:"severity"`
	Title       string        `json:"title"`
	Message     string        `json:"message"`
	Value       any           `json:"value,omitempty"`
	Fingerprint string        `json:"fingerprint"`
	Timestamp   time.Time     `json:"timestamp"`
}

// ActiveAlert represents an active (firing) alert
type ActiveAlert struct {
	Fingerprint string
	Alert       Alert
	FirstSeen   time.Time
	LastSeen    time.Time
	// LastNotified drives renotification
	LastNotified time.Time
	Count        int
}

// AlertManager handles alert deduplication and tracking
type AlertManager struct {
	active            map[string]*ActiveAlert
	mutex             sync.RWMutex
	renotifyInterval  time.Duration // How often to re-send still-active alerts
	resolutionTimeout time.Duration // How long a probe must stay healthy before resolving
	maxAlerts         int           // Maximum number of active alerts
	now               func() time.Time
}

// NotificationDecision indicates whether to send notification and why
type NotificationDecision struct {
	ShouldNotify bool
	Reason       string
	Notification string // Formatted notification message
	Alert        *ActiveAlert
}

// NewAlertManager creates a new alert manager
func NewAlertManager(renotifyInterval, resolutionTimeout time.Duration) *AlertManager {
	return &AlertManager{
		active:            make(map[string]*ActiveAlert),
		renotifyInterval:  renotifyInterval,
		resolutionTimeout: resolutionTimeout,
		maxAlerts:         100,
		now:               time.Now,
	}
}

// FromResult turns a WARN or CRIT result into an alert
func FromResult(r probe.Result) (Alert, bool) {
	var severity AlertSeverity
	switch r.Status {
	case probe.StatusWarn:
		severity = SeverityWarning
	case probe.StatusCrit:
		severity = SeverityCritical
	default:
		return Alert{}, false
	}
	return Alert{
		Probe:     r.Name,
		Status:    r.Status,
		Severity:  severity,
		Title:     fmt.Sprintf("%s is %s", r.Name, r.Status),
		Message:   r.Message,
		Value:     r.Value,
		Timestamp: r.SampledAt,
	}, true
}

// ProcessAlert processes an incoming alert and returns notification decision
func (am *AlertManager) ProcessAlert(alert Alert) NotificationDecision {
	fingerprint := Fingerprint(alert.Probe)
	alert.Fingerprint = fingerprint
	now := am.now()

	am.mutex.Lock()
	defer am.mutex.Unlock()

	existing, exists := am.active[fingerprint]
	if !exists {
		if len(am.active) >= am.maxAlerts {
			am.evictOldest()
		}

		activeAlert := &ActiveAlert{
			Fingerprint:  fingerprint,
			Alert:        alert,
			FirstSeen:    now,
			LastSeen:     now,
			LastNotified: now,
			Count:        1,
		}
		am.active[fingerprint] = activeAlert

		return NotificationDecision{
			ShouldNotify: true,
			Reason:       ReasonNew,
			Notification: am.formatAlert(activeAlert, ReasonNew),
			Alert:        activeAlert,
		}
	}

	escalated := alert.Status.Severity() > existing.Alert.Status.Severity()
	existing.LastSeen = now
	existing.Count++
	existing.Alert = alert

	if escalated {
		existing.LastNotified = now
		return NotificationDecision{
			ShouldNotify: true,
			Reason:       ReasonEscalated,
			Notification: am.formatAlert(existing, ReasonEscalated),
			Alert:        existing,
		}
	}

	if now.Sub(existing.LastNotified) >= am.renotifyInterval {
		existing.LastNotified = now
		return NotificationDecision{
			ShouldNotify: true,
			Reason:       ReasonRenotify,
			Notification: am.formatAlert(existing, ReasonRenotify),
			Alert:        existing,
		}
	}

	return NotificationDecision{
		ShouldNotify: false,
		Reason:       ReasonDuplicate,
		Alert:        existing,
	}
}

// CheckResolved resolves the alert for a probe that is healthy again, once
// it has not fired for the resolution timeout
func (am *AlertManager) CheckResolved(probeName string) *NotificationDecision {
	fingerprint := Fingerprint(probeName)

	am.mutex.Lock()
	defer am.mutex.Unlock()

	alert, exists := am.active[fingerprint]
	if !exists {
		return nil
	}
	if am.now().Sub(alert.LastSeen) < am.resolutionTimeout {
		return nil // Too soon to declare resolved
	}

	notification := am.formatAlert(alert, ReasonResolved)
	delete(am.active, fingerprint)

	return &NotificationDecision{
		ShouldNotify: true,
		Reason:       ReasonResolved,
		Notification: notification,
		Alert:        alert,
	}
}

// GetActiveAlerts returns all currently active alerts ordered by probe name
func (am *AlertManager) GetActiveAlerts() []*ActiveAlert {
	am.mutex.RLock()
	defer am.mutex.RUnlock()

	alerts := make([]*ActiveAlert, 0, len(am.active))
	for _, alert := range am.active {
		alerts = append(alerts, alert)
	}
	sort.Slice(alerts, func(i, j int) bool { return alerts[i].Alert.Probe < alerts[j].Alert.Probe })
	return alerts
}

// GetActiveCount returns count of active alerts
func (am *AlertManager) GetActiveCount() int {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	return len(am.active)
}

func (am *AlertManager) evictOldest() {
	oldestFingerprint := ""
	var oldestTime time.Time
	for fp, a := range am.active {
		if oldestFingerprint == "" || a.FirstSeen.Before(oldestTime) {
			oldestTime = a.FirstSeen
			oldestFingerprint = fp
		}
	}
	delete(am.active, oldestFingerprint)
}

// Fingerprint identifies all alerts of one probe
func Fingerprint(probeName string) string {
	hash := sha256.Sum256([]byte("probe:" + probeName))
	return fmt.Sprintf("%x", hash[:8])
}

// formatAlert formats an alert for notification
func (am *AlertManager) formatAlert(alert *ActiveAlert, reason string) string {
	emoji := getSeverityEmoji(alert.Alert.Severity)
	duration := am.now().Sub(alert.FirstSeen)

	switch reason {
	case ReasonNew:
		return fmt.Sprintf("%s %s\n\n%s\n\n⏰ %s",
			emoji,
			alert.Alert.Title,
			alert.Alert.Message,
			alert.FirstSeen.Format("2006-01-02 15:04:05"))

	case ReasonEscalated:
		return fmt.Sprintf("%s ESCALATED: %s\n\n%s\n\n⏱ Duration: %s",
			emoji,
			alert.Alert.Title,
			alert.Alert.Message,
			formatDuration(duration))

	case ReasonRenotify:
		return fmt.Sprintf("%s STILL ACTIVE: %s\n\n%s\n\n⏱ Duration: %s\n🔢 Fired: %d times",
			emoji,
			alert.Alert.Title,
			alert.Alert.Message,
			formatDuration(duration),
			alert.Count)

	case ReasonResolved:
		return fmt.Sprintf("✅ RESOLVED: %s\n\n⏱ Duration: %s\n🔢 Fired: %d times",
			alert.Alert.Title,
			formatDuration(duration),
			alert.Count)

	default:
		return alert.Alert.Message
	}
}

func getSeverityEmoji(severity AlertSeverity) string {
	switch severity {
	case SeverityCritical:
		return "🔴"
	case SeverityWarning:
		return "🟡"
	default:
		return "⚪"
	}
}

// formatDuration formats duration in human-readable format
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.0fm", d.Minutes())
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}

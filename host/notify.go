package host

import (
	"sync"
	"time"

	"github.com/teranos/lookbridge/plugin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// NotifyRecorder counts shown and rate limited notifications.
// metrics.Registry satisfies it.
type NotifyRecorder interface {
	NotificationShown(kind string, shown bool)
}

// NotifyConfig limits how often one title may notify
type NotifyConfig struct {
	// PerMinute is the sustained rate per title. Zero disables limiting.
	PerMinute int
	Burst     int
	// History is the number of shown notifications kept for Recent
	History int
}

// DefaultNotifyConfig allows short bursts of status messages per title
func DefaultNotifyConfig() NotifyConfig {
	return NotifyConfig{PerMinute: 30, Burst: 5, History: 64}
}

// Notifier logs notifications and rate limits them per title.
// A flapping companion would otherwise flood the user with "connection lost".
type Notifier struct {
	cfg    NotifyConfig
	rec    NotifyRecorder
	logger *zap.SugaredLogger

	// OnShow, when set, also renders shown notifications (the CLI prints them)
	OnShow func(n plugin.Notification)

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	recent   []plugin.Notification
}

// NewNotifier creates a notifier. rec may be nil.
func NewNotifier(cfg NotifyConfig, rec NotifyRecorder, log *zap.SugaredLogger) *Notifier {
	return &Notifier{
		cfg:      cfg,
		rec:      rec,
		logger:   log,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Show implements plugin.NotificationService
func (n *Notifier) Show(note plugin.Notification) {
	if !n.allow(note.Title) {
		n.logger.Debugw("Notification rate limited",
			"title", note.Title,
			"type", note.Type,
			"message", note.Message,
		)
		n.record(note.Type, false)
		return
	}

	kv := []interface{}{"title", note.Title, "type", note.Type}
	if note.Duration > 0 {
		kv = append(kv, "duration_ms", note.Duration.Milliseconds())
	}
	switch note.Type {
	case plugin.NotificationError:
		n.logger.Errorw(note.Message, kv...)
	case plugin.NotificationWarning:
		n.logger.Warnw(note.Message, kv...)
	default:
		n.logger.Infow(note.Message, kv...)
	}
	n.record(note.Type, true)

	n.mu.Lock()
	n.recent = append(n.recent, note)
	if limit := n.cfg.History; limit > 0 && len(n.recent) > limit {
		n.recent = n.recent[len(n.recent)-limit:]
	}
	onShow := n.OnShow
	n.mu.Unlock()

	if onShow != nil {
		onShow(note)
	}
}

// Recent returns the shown notifications, oldest first
func (n *Notifier) Recent() []plugin.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]plugin.Notification, len(n.recent))
	copy(out, n.recent)
	return out
}

func (n *Notifier) allow(title string) bool {
	if n.cfg.PerMinute <= 0 {
		return true
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	limiter, ok := n.limiters[title]
	if !ok {
		burst := n.cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n.cfg.PerMinute)), burst)
		n.limiters[title] = limiter
	}
	return limiter.Allow()
}

func (n *Notifier) record(kind plugin.NotificationType, shown bool) {
	if n.rec != nil {
		n.rec.NotificationShown(string(kind), shown)
	}
}

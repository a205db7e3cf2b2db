// Package notify tells operators how a run ended.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hochfrequenz/musicgen-worker/internal/config"
	"github.com/hochfrequenz/musicgen-worker/internal/domain"
)

// NotificationType represents the type of notification
type NotificationType int

const (
	NotifyInfo NotificationType = iota
	NotifySuccess
	NotifyWarning
	NotifyError
)

func (t NotificationType) String() string {
	switch t {
	case NotifySuccess:
		return "success"
	case NotifyWarning:
		return "warning"
	case NotifyError:
		return "error"
	default:
		return "info"
	}
}

// Notification represents a notification to be sent
type Notification struct {
	Title     string
	Message   string
	Type      NotificationType
	RunID     string // Optional run reference
	ReportKey string // Optional cost report key
}

// Notifier is the interface for sending notifications
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// ForRun builds the end-of-run notification
func ForRun(run *domain.Run) Notification {
	n := Notification{
		RunID:     run.ID,
		ReportKey: run.ReportKey,
		Message: fmt.Sprintf("%d/%d jobs succeeded (%d skipped, %d failed), est. cost $%.3f",
			run.Succeeded+run.Skipped, run.Total, run.Skipped, run.Failed, run.TotalCostUSD),
	}
	switch {
	case run.Failed > 0:
		n.Title = "MusicGen run finished with failures"
		n.Type = NotifyError
	case run.ReportKey == "":
		n.Title = "MusicGen run finished, no cost report"
		n.Type = NotifyWarning
	default:
		n.Title = "MusicGen run finished"
		n.Type = NotifySuccess
	}
	return n
}

// FromConfig builds the notifier set enabled in cfg
func FromConfig(cfg config.NotificationsConfig) Notifier {
	var notifiers []Notifier
	if cfg.Desktop {
		notifiers = append(notifiers, NewDesktopNotifier())
	}
	if cfg.SlackWebhook != "" {
		notifiers = append(notifiers, NewSlackNotifier(cfg.SlackWebhook))
	}
	if cfg.RedisAddr != "" {
		notifiers = append(notifiers, NewRedisNotifier(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisStream, cfg.RedisMaxLen))
	}
	if len(notifiers) == 0 {
		return NoopNotifier{}
	}
	return NewMultiNotifier(notifiers...)
}

// MultiNotifier sends to multiple notifiers
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a notifier that sends to all provided notifiers
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Send sends the notification to all notifiers
func (m *MultiNotifier) Send(ctx context.Context, n Notification) error {
	var lastErr error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(ctx, n); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Close closes every member that holds resources
func (m *MultiNotifier) Close() error {
	var errs []error
	for _, notifier := range m.notifiers {
		if c, ok := notifier.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// NoopNotifier does nothing (for testing or disabled notifications)
type NoopNotifier struct{}

func (NoopNotifier) Send(ctx context.Context, n Notification) error { return nil }

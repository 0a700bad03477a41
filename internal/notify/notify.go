// Package notify tells people and listeners that an import has finished.
package notify

import (
	"fmt"

	"github.com/hochfrequenz/project-tracker/internal/domain"
)

// NotificationType represents the type of notification
type NotificationType int

const (
	NotifyInfo NotificationType = iota
	NotifySuccess
	NotifyWarning
	NotifyError
)

// String returns the lowercase name of the type
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
	ProjectID string
	Run       *domain.ImportRun // Optional, set for import notifications
}

// Notifier is the interface for sending notifications
type Notifier interface {
	Send(n Notification) error
}

// ForRun builds the notification for a finished import
func ForRun(run *domain.ImportRun) Notification {
	n := Notification{ProjectID: run.ProjectID, Run: run}
	switch {
	case !run.Success:
		n.Type = NotifyError
		n.Title = "Import failed"
		if len(run.Errors) > 0 {
			n.Message = run.Errors[0]
		}
	case len(run.Errors) > 0 || len(run.Warnings) > 0:
		n.Type = NotifyWarning
		n.Title = "Import finished with issues"
		n.Message = fmt.Sprintf("%d tasks, %d warnings, %d errors", run.TaskCount, len(run.Warnings), len(run.Errors))
	default:
		n.Type = NotifySuccess
		n.Title = "Import finished"
		n.Message = fmt.Sprintf("%d tasks, %d dependencies, %d checklists", run.TaskCount, run.DependencyCount, run.ChecklistCount)
	}
	if run.ProjectID != "" {
		n.Title += ": " + run.ProjectID
	}
	return n
}

// MultiNotifier sends to multiple notifiers
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a notifier that sends to all provided notifiers
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Add appends a notifier. It must not be called while Send is running.
func (m *MultiNotifier) Add(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

// Send sends the notification to all notifiers
func (m *MultiNotifier) Send(n Notification) error {
	var lastErr error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(n); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// NoopNotifier does nothing (for testing or disabled notifications)
type NoopNotifier struct{}

func (NoopNotifier) Send(n Notification) error { return nil }

package notify

import (
	"os/exec"
	"runtime"
	"strings"
)

// DesktopNotifier shows import results as desktop notifications while the
// inbox watcher runs in a user session.
type DesktopNotifier struct {
	enabled bool
	goos    string
	run     func(name string, args ...string) error
}

// NewDesktopNotifier creates a new desktop notifier
func NewDesktopNotifier(enabled bool) *DesktopNotifier {
	return &DesktopNotifier{
		enabled: enabled,
		goos:    runtime.GOOS,
		run: func(name string, args ...string) error {
			return exec.Command(name, args...).Run()
		},
	}
}

// Send shows the notification. Unsupported platforms are a no-op.
func (d *DesktopNotifier) Send(n Notification) error {
	if !d.enabled {
		return nil
	}

	switch d.goos {
	case "darwin":
		script := `display notification ` + appleScriptString(n.Message) + ` with title ` + appleScriptString(n.Title)
		return d.run("osascript", "-e", script)
	case "linux":
		return d.run("notify-send", "--icon", IconForType(n.Type), n.Title, n.Message)
	default:
		return nil
	}
}

func appleScriptString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

// IconForType returns a freedesktop icon name for the notification type
func IconForType(t NotificationType) string {
	switch t {
	case NotifySuccess:
		return "dialog-positive"
	case NotifyWarning:
		return "dialog-warning"
	case NotifyError:
		return "dialog-error"
	default:
		return "dialog-information"
	}
}

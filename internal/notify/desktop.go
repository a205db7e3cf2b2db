package notify

import (
	"context"
	"os/exec"
	"runtime"
	"strings"
)

// DesktopNotifier pops up a notification on the machine running the worker.
// Only macOS and Linux with notify-send are supported; elsewhere Send is a
// no-op.
type DesktopNotifier struct {
	goos string
	run  func(ctx context.Context, name string, args ...string) error
}

// NewDesktopNotifier creates a notifier for the current OS
func NewDesktopNotifier() *DesktopNotifier {
	return &DesktopNotifier{
		goos: runtime.GOOS,
		run: func(ctx context.Context, name string, args ...string) error {
			return exec.CommandContext(ctx, name, args...).Run()
		},
	}
}

// Send shows n
func (d *DesktopNotifier) Send(ctx context.Context, n Notification) error {
	name, args := d.command(n)
	if name == "" {
		return nil
	}
	return d.run(ctx, name, args...)
}

// command returns the program and arguments that display n, or an empty
// name when the OS has no supported notifier
func (d *DesktopNotifier) command(n Notification) (string, []string) {
	switch d.goos {
	case "darwin":
		return "osascript", []string{"-e", appleScript(n)}
	case "linux":
		urgency := "normal"
		if n.Type == NotifyError {
			urgency = "critical"
		}
		return "notify-send", []string{"--app-name=musicgen-worker", "--urgency=" + urgency, "--icon=" + linuxIcon(n.Type), n.Title, n.Message}
	}
	return "", nil
}

func appleScript(n Notification) string {
	esc := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `display notification "` + esc.Replace(n.Message) + `" with title "` + esc.Replace(n.Title) + `"`
}

func linuxIcon(t NotificationType) string {
	switch t {
	case NotifySuccess:
		return "dialog-positive"
	case NotifyWarning:
		return "dialog-warning"
	case NotifyError:
		return "dialog-error"
	}
	return "dialog-information"
}

package notify

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// Notifier sends desktop notifications.
type Notifier struct {
	Enabled bool
}

// Send sends a system notification.
// On macOS, uses osascript to display notifications.
// On other platforms, this is a no-op.
func (n *Notifier) Send(title, message string) error {
	if n == nil || !n.Enabled {
		return nil
	}
	if runtime.GOOS != "darwin" {
		return nil
	}
	return sendMacOSNotification(title, message)
}

func sendMacOSNotification(title, message string) error {
	title = strings.ReplaceAll(title, `"`, `\"`)
	message = strings.ReplaceAll(message, `"`, `\"`)

	script := fmt.Sprintf(`display notification "%s" with title "%s"`, message, title)
	cmd := exec.Command("osascript", "-e", script)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	return nil
}

// FormatSweepComplete formats the notification for a finished sweep.
func FormatSweepComplete(name, status string, points, failed int) (title, message string) {
	switch {
	case status == "partial":
		title = "gridsweep: sweep stopped"
		message = fmt.Sprintf("%s: stopped early, %d points requested", name, points)
	case status == "detached":
		title = "gridsweep: sweep queued"
		message = fmt.Sprintf("%s: %d points handed to the queue", name, points)
	case status == "empty":
		title = "gridsweep: sweep produced no data"
		message = fmt.Sprintf("%s: no usable results", name)
	case failed > 0:
		title = "gridsweep: sweep finished with failures"
		message = fmt.Sprintf("%s: %d/%d points failed", name, failed, points)
	default:
		title = "gridsweep: sweep complete"
		message = fmt.Sprintf("%s: %d points evaluated", name, points)
	}
	return title, message
}

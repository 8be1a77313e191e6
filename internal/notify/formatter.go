package notify

import (
	"fmt"
	"strings"

	"github.com/mixelka/mailhub/pkg/models"
)

// AlertFormatter formats operator alerts as Telegram HTML
type AlertFormatter struct {
	maxLength int
}

// NewAlertFormatter creates a new alert formatter
func NewAlertFormatter() *AlertFormatter {
	return &AlertFormatter{
		maxLength: 4000, // Leave room for markup
	}
}

// FormatTaskFailed formats a failed dispatch
func (f *AlertFormatter) FormatTaskFailed(task *models.SendTask, acc *models.Account, reason string) string {
	var sb strings.Builder

	sb.WriteString("<b>Send task failed</b>\n")
	sb.WriteString(fmt.Sprintf("<b>Task:</b> #%d\n", task.ID))
	sb.WriteString(fmt.Sprintf("<b>Account:</b> %s\n", f.escapeHTML(accountLabel(acc))))
	sb.WriteString(fmt.Sprintf("<b>To:</b> %s\n", f.escapeHTML(task.ToEmail)))
	sb.WriteString(fmt.Sprintf("<b>Failures:</b> %d\n", task.FailCount+1))
	sb.WriteString("\n")

	sb.WriteString("<b>Error:</b>\n")
	body := f.truncate(reason, f.maxLength-sb.Len()-50)
	sb.WriteString("<code>" + f.escapeHTML(body) + "</code>")

	return sb.String()
}

// FormatDeadTask formats a task whose account no longer exists
func (f *AlertFormatter) FormatDeadTask(task *models.SendTask) string {
	var sb strings.Builder
	sb.WriteString("<b>Dead send task</b>\n")
	sb.WriteString(fmt.Sprintf("<b>Task:</b> #%d\n", task.ID))
	sb.WriteString(fmt.Sprintf("<b>Missing account:</b> #%d\n", task.AccountID))
	sb.WriteString(fmt.Sprintf("<b>To:</b> %s\n", f.escapeHTML(task.ToEmail)))
	sb.WriteString("\n<i>The task stays queued until it is deleted.</i>")
	return sb.String()
}

func accountLabel(acc *models.Account) string {
	if acc == nil {
		return "unknown"
	}
	if acc.Email != "" {
		return fmt.Sprintf("%s (%s)", acc.Name, acc.Email)
	}
	return acc.Name
}

// escapeHTML escapes HTML special characters for Telegram
func (f *AlertFormatter) escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

// truncate truncates text to maxLen characters
func (f *AlertFormatter) truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = 100
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}

package scheduler

import (
	"fmt"

	"github.com/hray3182/NagLine/internal/models"
)

// DueMessage is the text sent when a reminder comes due. Reminders that
// expect an acknowledgement carry the dismiss command.
func DueMessage(r *models.Reminder) string {
	msg := "🔔 " + r.Message
	if r.NeedsAck() {
		msg += dismissHint(r)
	}
	return msg
}

// NagMessage is the text of a repeated delivery.
func NagMessage(r *models.Reminder) string {
	return "🔔 Still waiting: " + r.Message + dismissHint(r)
}

func dismissHint(r *models.Reminder) string {
	return fmt.Sprintf("\n/done %s to dismiss", r.ShortCode)
}

package workers

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"sarthi/models"
	"sarthi/tools"
)

// Notifier delivers one distress alert to the care team.
type Notifier interface {
	Notify(ctx context.Context, alert models.Alert) error
}

// WhatsAppNotifier sends the alert summary to a fixed care-team number.
type WhatsAppNotifier struct {
	Client tools.WhatsAppClient
	To     string
}

func (n WhatsAppNotifier) Notify(ctx context.Context, alert models.Alert) error {
	return n.Client.SendText(ctx, n.To, AlertText(alert))
}

// LogNotifier only logs; used when no WhatsApp number is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, alert models.Alert) error {
	log.WithFields(log.Fields{
		"alert_id":      alert.ID,
		"reflection_id": alert.ReflectionID,
		"message_id":    alert.MessageID,
		"severity":      alert.Severity,
	}).Warn("distress alert (no notifier configured)")
	return nil
}

// AlertText never includes the user's message, only references to it.
func AlertText(alert models.Alert) string {
	return fmt.Sprintf("Sarthi distress alert\nseverity: %s\nreflection: %s\nstage: %d\nmessage: %d\ngiver: %s",
		alert.Severity, alert.ReflectionID, alert.StageNo, alert.MessageID, alert.GiverUserID)
}

package workers

import (
	"context"
	"time"

	"github.com/jinzhu/gorm"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"sarthi/metrics"
	"sarthi/models"
)

const alertBatchSize = 50

type retryable interface {
	Retryable() bool
}

// StartAlertProcessor starts a loop that delivers pending distress alerts
// until ctx is cancelled. Rows left in processing by a previous crash are
// put back to pending first.
func StartAlertProcessor(ctx context.Context, db *gorm.DB, notifier Notifier, interval time.Duration, maxAttempts int) {
	if err := db.Model(&models.Alert{}).
		Where("status = ?", models.ALERT_STATUS_PROCESSING).
		Update("status", models.ALERT_STATUS_PENDING).Error; err != nil {
		log.WithError(err).Error("alerts worker: could not requeue processing alerts")
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ProcessPendingAlerts(ctx, db, notifier, maxAttempts)
			}
		}
	}()
}

// ProcessPendingAlerts delivers one batch and returns how many alerts were
// delivered.
func ProcessPendingAlerts(ctx context.Context, db *gorm.DB, notifier Notifier, maxAttempts int) int {
	var alerts []models.Alert
	if err := db.
		Where("status = ?", models.ALERT_STATUS_PENDING).
		Order("id asc").
		Limit(alertBatchSize).
		Find(&alerts).Error; err != nil {
		log.WithError(err).Error("alerts worker: query error")
		return 0
	}

	delivered := 0
	for _, a := range alerts {
		if ctx.Err() != nil {
			break
		}
		// lock otimista: só processa se conseguir mudar status
		res := db.Model(&models.Alert{}).
			Where("id = ? AND status = ?", a.ID, models.ALERT_STATUS_PENDING).
			Update("status", models.ALERT_STATUS_PROCESSING)
		if res.Error != nil || res.RowsAffected == 0 {
			continue
		}

		if handleAlert(ctx, db, notifier, a, maxAttempts) {
			delivered++
		}
	}
	return delivered
}

func handleAlert(ctx context.Context, db *gorm.DB, notifier Notifier, a models.Alert, maxAttempts int) bool {
	sendCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	fields := log.Fields{"alert_id": a.ID, "reflection_id": a.ReflectionID, "severity": a.Severity}
	now := time.Now()

	err := notifier.Notify(sendCtx, a)
	if err == nil {
		if uerr := db.Model(&models.Alert{}).Where("id = ?", a.ID).Updates(map[string]any{
			"status":       models.ALERT_STATUS_DONE,
			"attempts":     a.Attempts + 1,
			"processed_at": &now,
			"last_error":   "",
		}).Error; uerr != nil {
			log.WithError(uerr).WithFields(fields).Error("alerts worker: could not mark alert done")
		}
		metrics.AlertsTotal.WithLabelValues("delivered").Inc()
		log.WithFields(fields).Info("distress alert delivered")
		return true
	}

	attempts := a.Attempts + 1
	status := models.ALERT_STATUS_PENDING
	var r retryable
	permanent := errors.As(err, &r) && !r.Retryable()
	if attempts >= maxAttempts || permanent {
		status = models.ALERT_STATUS_FAILED
		metrics.AlertsTotal.WithLabelValues("failed").Inc()
		log.WithError(err).WithFields(fields).Error("alerts worker: giving up on alert")
	} else {
		metrics.AlertsTotal.WithLabelValues("retry").Inc()
		log.WithError(err).WithFields(fields).WithField("attempts", attempts).Warn("alerts worker: delivery failed, will retry")
	}

	updates := map[string]any{
		"status":     status,
		"attempts":   attempts,
		"last_error": err.Error(),
	}
	if status == models.ALERT_STATUS_FAILED {
		updates["processed_at"] = &now
	}
	if uerr := db.Model(&models.Alert{}).Where("id = ?", a.ID).Updates(updates).Error; uerr != nil {
		log.WithError(uerr).WithFields(fields).Error("alerts worker: could not record failure")
	}
	return false
}

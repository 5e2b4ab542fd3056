package models

import "time"

/************************************************
/**** MARK: ALERT STATUS ****/
/************************************************/
const ALERT_STATUS_PENDING = "pending"
const ALERT_STATUS_PROCESSING = "processing"
const ALERT_STATUS_DONE = "done"
const ALERT_STATUS_FAILED = "failed"

// Alert é a caixa de saída (outbox) de sinais de sofrimento detectados numa mensagem.
// É gravado na mesma transação da mensagem e entregue depois pelo workers.StartAlertProcessor.
type Alert struct {
	ID           int64      `gorm:"primary_key;AUTO_INCREMENT" json:"id"`
	ReflectionID string     `gorm:"type:varchar(36);not null;index" json:"reflection_id"`
	MessageID    int64      `gorm:"not null;index" json:"message_id"`
	GiverUserID  string     `gorm:"type:varchar(36);not null" json:"giver_user_id"`
	Severity     string     `gorm:"not null" json:"severity"`
	StageNo      int        `gorm:"not null" json:"stage_no"`
	Status       string     `gorm:"not null;default:'pending';index" json:"status"`
	Attempts     int        `gorm:"not null;default:0" json:"attempts"`
	LastError    string     `gorm:"type:text" json:"last_error"`
	ProcessedAt  *time.Time `json:"processed_at"`
	CreatedAt    *time.Time `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at"`
}

func (Alert) TableName() string { return "distress_alerts" }

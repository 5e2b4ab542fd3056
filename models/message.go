package models

import "time"

const MESSAGE_SENDER_USER = 1
const MESSAGE_SENDER_SYSTEM = 2

// Message é um registro imutável (append-only) de cada entrada do usuário numa reflection.
type Message struct {
	MessageID    int64      `gorm:"column:message_id;primary_key;AUTO_INCREMENT" json:"message_id"`
	Text         string     `gorm:"column:text;type:text;not null" json:"text"`
	ReflectionID string     `gorm:"column:reflection_id;type:varchar(36);not null;index" json:"reflection_id"`
	Sender       int        `gorm:"column:sender;not null" json:"sender"`
	Status       int        `gorm:"column:status;not null;default:1" json:"status"`
	StageNo      int        `gorm:"column:stage_no;not null" json:"stage_no"`
	IsDistress   bool       `gorm:"column:is_distress;not null;default:false" json:"is_distress"`
	Severity     string     `gorm:"column:severity;not null;default:'none'" json:"severity"`
	CreatedAt    *time.Time `json:"created_at"`
}

func (Message) TableName() string { return "messages" }

package models

import "time"

/************************************************
/**** MARK: REFLECTION STATUS ****/
/************************************************/
const REFLECTION_STATUS_ACTIVE = 1
const REFLECTION_STATUS_COMPLETED = 2

/************************************************
/**** MARK: REFLECTION MODE ****/
/************************************************/
const REFLECTION_MODE_GUIDED = "guided"
const REFLECTION_MODE_COLLABORATIVE = "collaborative"

/************************************************
/**** MARK: DELIVERY MODE ****/
/************************************************/
const DELIVERY_MODE_WHATSAPP = "whatsapp"
const DELIVERY_MODE_EMAIL = "email"
const DELIVERY_MODE_PRIVATE = "private"

// Reflection é uma instância do fluxo guiado de um usuário (giver).
// Regra: no máximo uma reflection com status ativo por giver (índice único parcial criado em db.Migrate).
type Reflection struct {
	ReflectionID   string     `gorm:"column:reflection_id;primary_key;type:varchar(36)" json:"reflection_id"`
	StageNo        int        `gorm:"column:stage_no;not null" json:"stage_no"`
	CategoryNo     int        `gorm:"column:category_no;not null" json:"category_no"`
	ReceiverUserID *string    `gorm:"column:receiver_user_id;type:varchar(36)" json:"receiver_user_id"`
	GiverUserID    string     `gorm:"column:giver_user_id;type:varchar(36);not null;index" json:"giver_user_id"`
	Mode           string     `gorm:"column:mode;not null;default:'guided'" json:"mode"`
	DeliveryMode   string     `gorm:"column:delivery_mode;not null;default:'email'" json:"delivery_mode"`
	Name           *string    `gorm:"column:name;type:varchar(256)" json:"name"`
	Relation       *string    `gorm:"column:relation;type:varchar(256)" json:"relation"`
	Body           *string    `gorm:"column:reflection;type:text" json:"reflection"`
	Status         int        `gorm:"column:status;not null;default:1" json:"status"`
	CompletedAt    *time.Time `gorm:"column:completed_at" json:"completed_at"`
	CreatedAt      *time.Time `json:"created_at"`
	UpdatedAt      *time.Time `json:"updated_at"`
}

func (Reflection) TableName() string { return "reflections" }

func (r Reflection) IsActive() bool {
	return r.Status == REFLECTION_STATUS_ACTIVE
}

func (r Reflection) IsCompleted() bool {
	return r.Status == REFLECTION_STATUS_COMPLETED
}

package models

import "time"

/************************************************
/**** MARK: USER TYPES ****/
/************************************************/
const USER_TYPE_USER = "user"
const USER_TYPE_ADMIN = "admin"

/************************************************
/**** MARK: USER STATUS ****/
/************************************************/
const USER_STATUS_ACTIVE = 1
const USER_STATUS_INACTIVE = 0

// User representa quem escreve (giver) ou recebe (receiver) uma reflection.
// O cadastro de usuários é feito fora deste serviço; aqui só lemos.
type User struct {
	UserID           string     `gorm:"column:user_id;primary_key;type:varchar(36)" json:"user_id"`
	Name             string     `gorm:"column:name;type:varchar(256);not null" json:"name"`
	Email            string     `gorm:"column:email;type:varchar(256);not null;unique" json:"email"`
	PhoneNumber      string     `gorm:"column:phone_number" json:"phone_number"`
	UserType         string     `gorm:"column:user_type;not null;default:'user'" json:"user_type"`
	ProficiencyScore int        `gorm:"column:proficiency_score;not null;default:0" json:"proficiency_score"`
	Status           int        `gorm:"column:status;not null;default:1" json:"status"`
	CreatedAt        *time.Time `json:"created_at"`
	UpdatedAt        *time.Time `json:"updated_at"`
}

func (User) TableName() string { return "users" }

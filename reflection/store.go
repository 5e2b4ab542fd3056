package reflection

import (
	"time"

	"github.com/jinzhu/gorm"
	"github.com/pkg/errors"

	"sarthi/db"
	"sarthi/models"
)

// Repository is the persistence the workflow needs. Store is the gorm
// implementation.
type Repository interface {
	FindUser(userID string) (*models.User, error)
	ActiveReflection(giverID string) (*models.Reflection, error)
	CreateReflection(r *models.Reflection) error
	GetReflection(reflectionID string) (*models.Reflection, error)
	ApplyTransition(t Transition) (*models.Message, error)
	ListMessages(reflectionID string) ([]models.Message, error)
}

// Transition is one committed step of a reflection: the stage move, the
// stage field it fills, the message that records it and, for distress
// inputs, the alert row.
type Transition struct {
	ReflectionID string
	GiverUserID  string
	FromStage    int
	ToStage      int
	Complete     bool

	CategoryNo *int
	// Field is the reflections column that receives Value, empty for none.
	Field string
	Value string

	Message models.Message
	Alert   bool
	At      time.Time
}

type Store struct {
	db *gorm.DB
}

func NewStore(database *gorm.DB) *Store {
	return &Store{db: database}
}

func (s *Store) FindUser(userID string) (*models.User, error) {
	var u models.User
	if err := s.db.Where("user_id = ?", userID).First(&u).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, errors.Wrapf(ErrNotFound, "user %s", userID)
		}
		return nil, errors.Wrap(err, "find user")
	}
	return &u, nil
}

// ActiveReflection returns nil without error when the giver has none.
func (s *Store) ActiveReflection(giverID string) (*models.Reflection, error) {
	var r models.Reflection
	err := s.db.
		Where("giver_user_id = ? AND status = ?", giverID, models.REFLECTION_STATUS_ACTIVE).
		Order("created_at desc").
		First(&r).Error
	if err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "find active reflection")
	}
	return &r, nil
}

func (s *Store) CreateReflection(r *models.Reflection) error {
	if err := s.db.Create(r).Error; err != nil {
		if db.IsUniqueViolation(err) {
			return errActiveExists
		}
		return errors.Wrap(err, "create reflection")
	}
	return nil
}

func (s *Store) GetReflection(reflectionID string) (*models.Reflection, error) {
	var r models.Reflection
	if err := s.db.Where("reflection_id = ?", reflectionID).First(&r).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, errors.Wrapf(ErrNotFound, "reflection %s", reflectionID)
		}
		return nil, errors.Wrap(err, "get reflection")
	}
	return &r, nil
}

// ApplyTransition commits the reflection update, its message and the optional
// alert in one transaction. The update only matches while the reflection is
// still active at FromStage; a concurrent writer that moved it first turns
// this call into ErrPersistenceConflict and nothing is written.
func (s *Store) ApplyTransition(t Transition) (*models.Message, error) {
	at := t.At
	if at.IsZero() {
		at = time.Now()
	}

	updates := map[string]interface{}{"stage_no": t.ToStage}
	if t.CategoryNo != nil {
		updates["category_no"] = *t.CategoryNo
	}
	if t.Field != "" {
		updates[t.Field] = t.Value
	}
	if t.Complete {
		updates["status"] = models.REFLECTION_STATUS_COMPLETED
		updates["completed_at"] = &at
	}

	tx := s.db.Begin()
	if tx.Error != nil {
		return nil, errors.Wrap(tx.Error, "begin transition")
	}

	res := tx.Model(&models.Reflection{}).
		Where("reflection_id = ? AND stage_no = ? AND status = ?", t.ReflectionID, t.FromStage, models.REFLECTION_STATUS_ACTIVE).
		Updates(updates)
	if res.Error != nil {
		tx.Rollback()
		return nil, errors.Wrap(res.Error, "update reflection")
	}
	if res.RowsAffected == 0 {
		tx.Rollback()
		return nil, errors.Wrapf(ErrPersistenceConflict, "reflection %s moved from stage %d concurrently", t.ReflectionID, t.FromStage)
	}

	msg := t.Message
	msg.ReflectionID = t.ReflectionID
	msg.CreatedAt = &at
	if err := tx.Create(&msg).Error; err != nil {
		tx.Rollback()
		return nil, errors.Wrap(err, "insert message")
	}

	if t.Alert {
		alert := models.Alert{
			ReflectionID: t.ReflectionID,
			MessageID:    msg.MessageID,
			GiverUserID:  t.GiverUserID,
			Severity:     msg.Severity,
			StageNo:      msg.StageNo,
			Status:       models.ALERT_STATUS_PENDING,
		}
		if err := tx.Create(&alert).Error; err != nil {
			tx.Rollback()
			return nil, errors.Wrap(err, "insert distress alert")
		}
	}

	if err := tx.Commit().Error; err != nil {
		tx.Rollback()
		return nil, errors.Wrap(err, "commit transition")
	}
	return &msg, nil
}

func (s *Store) ListMessages(reflectionID string) ([]models.Message, error) {
	var msgs []models.Message
	if err := s.db.
		Where("reflection_id = ?", reflectionID).
		Order("message_id asc").
		Find(&msgs).Error; err != nil {
		return nil, errors.Wrap(err, "list messages")
	}
	return msgs, nil
}

// Package reflection runs the guided reflection workflow: it creates or resumes
// a giver's reflection, records the category choice and walks the remaining
// stages, screening every free-text input for distress on the way.
package reflection

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"sarthi/catalog"
	"sarthi/config"
	"sarthi/distress"
	"sarthi/metrics"
	"sarthi/models"
)

// CategoryStage is the only stage that accepts SetCategory.
const CategoryStage = 1

const (
	resumeMessage   = "Resuming existing reflection"
	completeMessage = "Reflection workflow complete!"
	fallbackPrompt  = "Continue your reflection"
)

// stageFields maps a stage to the reflections column its input fills.
// Stages without an entry accept input without writing a field.
var stageFields = map[int]string{
	2: "name",
	3: "relation",
	4: "reflection",
}

// Classifier screens free text. *distress.Classifier implements it.
type Classifier interface {
	Classify(ctx context.Context, text string) (distress.Severity, error)
}

type Options struct {
	DefaultCategory             int
	DefaultDeliveryMode         string
	CollaborativeMinProficiency int
	// FailurePolicy is config.FAILURE_POLICY_OPEN or config.FAILURE_POLICY_CLOSED.
	FailurePolicy string
}

// OptionsFromConfig copies the workflow and classifier settings the service uses.
func OptionsFromConfig(cfg config.Configuration) Options {
	return Options{
		DefaultCategory:             cfg.Workflow.DefaultCategory,
		DefaultDeliveryMode:         cfg.Workflow.DefaultDeliveryMode,
		CollaborativeMinProficiency: cfg.Workflow.CollaborativeMinProficiency,
		FailurePolicy:               cfg.Classifier.FailurePolicy,
	}
}

type StartResult struct {
	ReflectionID    string             `json:"reflection_id"`
	StageNo         int                `json:"stage_no"`
	StageName       string             `json:"stage_name"`
	Prompt          string             `json:"prompt"`
	Mode            string             `json:"mode"`
	Resumed         bool               `json:"resumed"`
	Message         string             `json:"message,omitempty"`
	CategoryOptions []catalog.Category `json:"category_options,omitempty"`
}

// StepResult is either the next stage to show or the completion notice.
type StepResult struct {
	StageNo          int    `json:"stage_no,omitempty"`
	StageName        string `json:"stage_name,omitempty"`
	Prompt           string `json:"prompt,omitempty"`
	SelectedCategory string `json:"selected_category,omitempty"`
	Completed        bool   `json:"completed,omitempty"`
	Message          string `json:"message,omitempty"`
}

type Snapshot struct {
	models.Reflection
	StageName    string `json:"stage_name"`
	CategoryName string `json:"category_name"`
	Completed    bool   `json:"completed"`
}

type Service struct {
	repo       Repository
	catalog    *catalog.Catalog
	classifier Classifier
	opts       Options
	now        func() time.Time
}

// NewService wires the workflow. classifier may be nil, in which case inputs
// are stored as unclassified.
func NewService(repo Repository, cat *catalog.Catalog, classifier Classifier, opts Options) *Service {
	if opts.DefaultDeliveryMode == "" {
		opts.DefaultDeliveryMode = models.DELIVERY_MODE_EMAIL
	}
	if opts.FailurePolicy == "" {
		opts.FailurePolicy = config.FAILURE_POLICY_OPEN
	}
	return &Service{repo: repo, catalog: cat, classifier: classifier, opts: opts, now: time.Now}
}

// Start returns the giver's active reflection if there is one, otherwise
// creates a new one at the category stage.
func (s *Service) Start(ctx context.Context, giverID string) (*StartResult, error) {
	if err := checkID("user_id", giverID); err != nil {
		return nil, err
	}

	user, err := s.repo.FindUser(giverID)
	if err != nil {
		return nil, err
	}

	active, err := s.repo.ActiveReflection(giverID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return s.resume(active), nil
	}

	first, ok := s.catalog.Lookup(CategoryStage)
	if !ok {
		return nil, errors.New("stage 1 is not defined in the stage catalog")
	}
	category, err := s.defaultCategory()
	if err != nil {
		return nil, err
	}

	r := &models.Reflection{
		ReflectionID: uuid.New().String(),
		StageNo:      first.No,
		CategoryNo:   category.No,
		GiverUserID:  giverID,
		Mode:         ModeFor(user.ProficiencyScore, s.opts.CollaborativeMinProficiency),
		DeliveryMode: s.opts.DefaultDeliveryMode,
		Status:       models.REFLECTION_STATUS_ACTIVE,
	}
	if err := s.repo.CreateReflection(r); err != nil {
		if !errors.Is(err, errActiveExists) {
			return nil, err
		}
		// lost the race against a concurrent start; resume the winner
		winner, rerr := s.repo.ActiveReflection(giverID)
		if rerr != nil {
			return nil, rerr
		}
		if winner == nil {
			metrics.PersistenceConflictsTotal.Inc()
			return nil, errors.Wrapf(ErrPersistenceConflict, "start reflection for %s", giverID)
		}
		return s.resume(winner), nil
	}

	metrics.ReflectionsTotal.WithLabelValues("created").Inc()
	log.WithFields(log.Fields{"reflection_id": r.ReflectionID, "giver_user_id": giverID, "mode": r.Mode}).Info("reflection created")

	return &StartResult{
		ReflectionID:    r.ReflectionID,
		StageNo:         first.No,
		StageName:       first.Name,
		Prompt:          first.Prompt,
		Mode:            r.Mode,
		CategoryOptions: s.catalog.ActiveCategories(),
	}, nil
}

func (s *Service) resume(r *models.Reflection) *StartResult {
	metrics.ReflectionsTotal.WithLabelValues("resumed").Inc()
	name, prompt := s.describe(r.StageNo)
	res := &StartResult{
		ReflectionID: r.ReflectionID,
		StageNo:      r.StageNo,
		StageName:    name,
		Prompt:       prompt,
		Mode:         r.Mode,
		Resumed:      true,
		Message:      resumeMessage,
	}
	if r.StageNo == CategoryStage {
		res.CategoryOptions = s.catalog.ActiveCategories()
	}
	return res
}

// SetCategory records the category choice and leaves the category stage.
func (s *Service) SetCategory(ctx context.Context, reflectionID string, ref CategoryRef) (*StepResult, error) {
	if err := checkID("reflection_id", reflectionID); err != nil {
		return nil, err
	}

	r, err := s.repo.GetReflection(reflectionID)
	if err != nil {
		return nil, err
	}
	if !r.IsActive() {
		return nil, errors.Wrapf(ErrInvalidState, "reflection %s is already completed", reflectionID)
	}
	if r.StageNo != CategoryStage {
		return nil, errors.Wrapf(ErrInvalidState, "category can only be set in stage %d, current stage: %d", CategoryStage, r.StageNo)
	}

	category, err := s.resolveCategory(ref)
	if err != nil {
		return nil, err
	}

	next, hasNext := s.catalog.Lookup(CategoryStage + 1)
	t := Transition{
		ReflectionID: r.ReflectionID,
		GiverUserID:  r.GiverUserID,
		FromStage:    CategoryStage,
		ToStage:      CategoryStage,
		Complete:     !hasNext,
		CategoryNo:   &category.No,
		Message: models.Message{
			Text:     "Selected category: " + category.Name,
			Sender:   models.MESSAGE_SENDER_USER,
			StageNo:  CategoryStage,
			Severity: string(distress.SeverityNone),
		},
		At: s.now(),
	}
	if hasNext {
		t.ToStage = next.No
	}

	if _, err := s.commit(t); err != nil {
		return nil, err
	}

	if !hasNext {
		return &StepResult{Completed: true, Message: completeMessage, SelectedCategory: category.Name}, nil
	}
	return &StepResult{
		StageNo:          next.No,
		StageName:        next.Name,
		Prompt:           next.Prompt,
		SelectedCategory: category.Name,
	}, nil
}

// Advance stores the input for the current stage and moves to the next one,
// completing the reflection after the last stage.
func (s *Service) Advance(ctx context.Context, reflectionID, input string) (*StepResult, error) {
	if err := checkID("reflection_id", reflectionID); err != nil {
		return nil, err
	}

	r, err := s.repo.GetReflection(reflectionID)
	if err != nil {
		return nil, err
	}
	if !r.IsActive() {
		return nil, errors.Wrapf(ErrInvalidState, "reflection %s is already completed", reflectionID)
	}
	if r.StageNo == CategoryStage {
		return nil, errors.Wrapf(ErrInvalidState, "reflection %s is at stage %d, select a category first", reflectionID, CategoryStage)
	}
	if strings.TrimSpace(input) == "" {
		return nil, errors.Wrap(ErrInvalidInput, "user_input is required")
	}

	severity, err := s.screen(ctx, r, input)
	if err != nil {
		return nil, err
	}

	next, hasNext := s.catalog.Lookup(r.StageNo + 1)
	t := Transition{
		ReflectionID: r.ReflectionID,
		GiverUserID:  r.GiverUserID,
		FromStage:    r.StageNo,
		ToStage:      r.StageNo,
		Complete:     !hasNext,
		Field:        stageFields[r.StageNo],
		Value:        input,
		Message: models.Message{
			Text:       input,
			Sender:     models.MESSAGE_SENDER_USER,
			StageNo:    r.StageNo,
			IsDistress: severity.IsDistress(),
			Severity:   string(severity),
		},
		Alert: severity.IsDistress(),
		At:    s.now(),
	}
	if hasNext {
		t.ToStage = next.No
	}

	msg, err := s.commit(t)
	if err != nil {
		return nil, err
	}

	if t.Alert {
		log.WithFields(log.Fields{
			"reflection_id": r.ReflectionID,
			"message_id":    msg.MessageID,
			"stage_no":      r.StageNo,
			"severity":      severity,
		}).Warn("distress detected in reflection input")
	}

	if !hasNext {
		return &StepResult{Completed: true, Message: completeMessage}, nil
	}
	return &StepResult{StageNo: next.No, StageName: next.Name, Prompt: next.Prompt}, nil
}

// Status is a read-only projection of the reflection.
func (s *Service) Status(ctx context.Context, reflectionID string) (*Snapshot, error) {
	if err := checkID("reflection_id", reflectionID); err != nil {
		return nil, err
	}
	r, err := s.repo.GetReflection(reflectionID)
	if err != nil {
		return nil, err
	}

	name, _ := s.describe(r.StageNo)
	snap := &Snapshot{Reflection: *r, StageName: name, Completed: r.IsCompleted()}
	if c, ok := s.catalog.Category(r.CategoryNo); ok {
		snap.CategoryName = c.Name
	}
	return snap, nil
}

func (s *Service) Messages(ctx context.Context, reflectionID string) ([]models.Message, error) {
	if err := checkID("reflection_id", reflectionID); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetReflection(reflectionID); err != nil {
		return nil, err
	}
	return s.repo.ListMessages(reflectionID)
}

func (s *Service) CategoryOptions() []catalog.Category {
	return s.catalog.ActiveCategories()
}

func (s *Service) commit(t Transition) (*models.Message, error) {
	msg, err := s.repo.ApplyTransition(t)
	if err != nil {
		if errors.Is(err, ErrPersistenceConflict) {
			metrics.PersistenceConflictsTotal.Inc()
		}
		return nil, err
	}

	metrics.StageTransitionsTotal.WithLabelValues(strconv.Itoa(t.FromStage)).Inc()
	if t.Complete {
		metrics.ReflectionsTotal.WithLabelValues("completed").Inc()
		log.WithField("reflection_id", t.ReflectionID).Info("reflection completed")
	}
	return msg, nil
}

// screen classifies the input before any write. With the closed policy an
// unavailable classifier blocks the step; with the open policy the input is
// stored as unclassified.
func (s *Service) screen(ctx context.Context, r *models.Reflection, input string) (distress.Severity, error) {
	if s.classifier == nil {
		return distress.SeverityUnclassified, nil
	}

	severity, err := s.classifier.Classify(ctx, input)
	if err == nil {
		return severity, nil
	}

	fields := log.Fields{"reflection_id": r.ReflectionID, "stage_no": r.StageNo}
	if s.opts.FailurePolicy == config.FAILURE_POLICY_CLOSED {
		log.WithError(err).WithFields(fields).Error("distress classification unavailable, rejecting input")
		return "", errors.Wrap(err, "screen input")
	}
	log.WithError(err).WithFields(fields).Warn("distress classification unavailable, storing input unclassified")
	return distress.SeverityUnclassified, nil
}

func (s *Service) resolveCategory(ref CategoryRef) (catalog.Category, error) {
	var (
		c  catalog.Category
		ok bool
	)
	if ref.Name != "" {
		c, ok = s.catalog.CategoryByName(ref.Name)
	} else {
		c, ok = s.catalog.Category(ref.No)
	}
	if !ok {
		return catalog.Category{}, errors.Wrapf(ErrInvalidInput, "invalid category selection %s", ref)
	}
	if !c.Active {
		return catalog.Category{}, errors.Wrapf(ErrInvalidInput, "category %s is not active", ref)
	}
	return c, nil
}

func (s *Service) defaultCategory() (catalog.Category, error) {
	if c, ok := s.catalog.Category(s.opts.DefaultCategory); ok && c.Active {
		return c, nil
	}
	active := s.catalog.ActiveCategories()
	if len(active) == 0 {
		return catalog.Category{}, errors.New("no categories available")
	}
	return active[0], nil
}

// describe returns name and prompt for a stage, with fallbacks for stages
// the catalog no longer defines.
func (s *Service) describe(stageNo int) (string, string) {
	if st, ok := s.catalog.Lookup(stageNo); ok {
		return st.Name, st.Prompt
	}
	return fmt.Sprintf("STAGE_%d", stageNo), fallbackPrompt
}

func checkID(field, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.Wrapf(ErrInvalidInput, "%s must be a UUID", field)
	}
	return nil
}

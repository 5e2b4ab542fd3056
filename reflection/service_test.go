package reflection

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jinzhu/gorm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sarthi/catalog"
	"sarthi/config"
	"sarthi/db"
	"sarthi/distress"
	"sarthi/models"
)

type stubClassifier struct {
	mu       sync.Mutex
	severity map[string]distress.Severity
	err      error
	calls    int
}

func (c *stubClassifier) Classify(ctx context.Context, text string) (distress.Severity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	if s, ok := c.severity[text]; ok {
		return s, nil
	}
	return distress.SeverityNone, nil
}

type fixture struct {
	db      *gorm.DB
	store   *Store
	catalog *catalog.Catalog
	svc     *Service
	cls     *stubClassifier
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New(
		[]catalog.Stage{
			{No: 1, Name: "CATEGORY_SELECTION", Prompt: "Pick a category", Active: true},
			{No: 2, Name: "RECIPIENT_NAME", Prompt: "Who is it for?", Active: true},
			{No: 3, Name: "RELATION", Prompt: "How do you know them?", Active: true},
			{No: 4, Name: "REFLECTION", Prompt: "Write your reflection", Active: true},
		},
		[]catalog.Category{
			{No: 1, Name: "feedback", Active: true},
			{No: 2, Name: "gratitude", Active: true},
			{No: 3, Name: "apology", Active: false},
		},
	)
	require.NoError(t, err)
	return cat
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	return newFixtureWithCatalog(t, testCatalog(t), opts)
}

func newFixtureWithCatalog(t *testing.T, cat *catalog.Catalog, opts Options) *fixture {
	t.Helper()
	database, err := db.Connect(config.Configuration{Database: "sqlite3", DbPath: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.Migrate(database, cat))

	if opts.DefaultCategory == 0 {
		opts.DefaultCategory = 1
	}
	if opts.CollaborativeMinProficiency == 0 {
		opts.CollaborativeMinProficiency = 50
	}

	store := NewStore(database)
	cls := &stubClassifier{severity: map[string]distress.Severity{}}
	return &fixture{
		db:      database,
		store:   store,
		catalog: cat,
		svc:     NewService(store, cat, cls, opts),
		cls:     cls,
	}
}

func (f *fixture) user(t *testing.T, proficiency int) string {
	t.Helper()
	id := uuid.New().String()
	require.NoError(t, f.db.Create(&models.User{
		UserID:           id,
		Name:             "giver",
		Email:            id + "@example.com",
		ProficiencyScore: proficiency,
	}).Error)
	return id
}

func (f *fixture) messages(t *testing.T, reflectionID string) []models.Message {
	t.Helper()
	msgs, err := f.store.ListMessages(reflectionID)
	require.NoError(t, err)
	return msgs
}

func (f *fixture) alerts(t *testing.T) []models.Alert {
	t.Helper()
	var alerts []models.Alert
	require.NoError(t, f.db.Order("id asc").Find(&alerts).Error)
	return alerts
}

func TestFullWorkflow(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	giver := f.user(t, 10)

	start, err := f.svc.Start(ctx, giver)
	require.NoError(t, err)
	assert.Equal(t, 1, start.StageNo)
	assert.Equal(t, "CATEGORY_SELECTION", start.StageName)
	assert.Equal(t, "Pick a category", start.Prompt)
	assert.Equal(t, models.REFLECTION_MODE_GUIDED, start.Mode)
	assert.False(t, start.Resumed)
	require.Len(t, start.CategoryOptions, 2)
	assert.Equal(t, "feedback", start.CategoryOptions[0].Name)

	id := start.ReflectionID

	step, err := f.svc.SetCategory(ctx, id, CategoryByName("feedback"))
	require.NoError(t, err)
	assert.Equal(t, 2, step.StageNo)
	assert.Equal(t, "RECIPIENT_NAME", step.StageName)
	assert.Equal(t, "feedback", step.SelectedCategory)

	step, err = f.svc.Advance(ctx, id, "Alex")
	require.NoError(t, err)
	assert.Equal(t, 3, step.StageNo)

	snap, err := f.svc.Status(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, snap.Name)
	assert.Equal(t, "Alex", *snap.Name)

	step, err = f.svc.Advance(ctx, id, "friend")
	require.NoError(t, err)
	assert.Equal(t, 4, step.StageNo)

	step, err = f.svc.Advance(ctx, id, "Thank you for everything")
	require.NoError(t, err)
	assert.True(t, step.Completed)
	assert.Equal(t, completeMessage, step.Message)

	snap, err = f.svc.Status(ctx, id)
	require.NoError(t, err)
	assert.True(t, snap.Completed)
	assert.Equal(t, 4, snap.StageNo)
	assert.Equal(t, models.REFLECTION_STATUS_COMPLETED, snap.Status)
	assert.NotNil(t, snap.CompletedAt)
	assert.Equal(t, "feedback", snap.CategoryName)
	require.NotNil(t, snap.Name)
	assert.Equal(t, "Alex", *snap.Name)
	require.NotNil(t, snap.Relation)
	assert.Equal(t, "friend", *snap.Relation)
	require.NotNil(t, snap.Body)
	assert.Equal(t, "Thank you for everything", *snap.Body)

	_, err = f.svc.Advance(ctx, id, "more")
	assert.True(t, errors.Is(err, ErrInvalidState))

	msgs := f.messages(t, id)
	require.Len(t, msgs, 4)
	assert.Equal(t, "Selected category: feedback", msgs[0].Text)
	assert.Equal(t, 1, msgs[0].StageNo)
	assert.Equal(t, []int{2, 3, 4}, []int{msgs[1].StageNo, msgs[2].StageNo, msgs[3].StageNo})
	for _, m := range msgs {
		assert.Equal(t, models.MESSAGE_SENDER_USER, m.Sender)
		assert.False(t, m.IsDistress)
	}

	// the category message is never screened
	assert.Equal(t, 3, f.cls.calls)

	// a finished reflection frees the giver for a new one
	again, err := f.svc.Start(ctx, giver)
	require.NoError(t, err)
	assert.NotEqual(t, id, again.ReflectionID)
	assert.False(t, again.Resumed)
}

func TestStartResumesActiveReflection(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	giver := f.user(t, 80)

	first, err := f.svc.Start(ctx, giver)
	require.NoError(t, err)
	assert.Equal(t, models.REFLECTION_MODE_COLLABORATIVE, first.Mode)
	require.NotEmpty(t, first.CategoryOptions)

	// still choosing a category: the options come back with the resumed reflection
	again, err := f.svc.Start(ctx, giver)
	require.NoError(t, err)
	assert.True(t, again.Resumed)
	assert.Equal(t, 1, again.StageNo)
	assert.Equal(t, first.CategoryOptions, again.CategoryOptions)

	_, err = f.svc.SetCategory(ctx, first.ReflectionID, CategoryByNo(2))
	require.NoError(t, err)

	second, err := f.svc.Start(ctx, giver)
	require.NoError(t, err)
	assert.Equal(t, first.ReflectionID, second.ReflectionID)
	assert.True(t, second.Resumed)
	assert.Equal(t, resumeMessage, second.Message)
	assert.Equal(t, 2, second.StageNo)
	assert.Equal(t, "RECIPIENT_NAME", second.StageName)
	assert.Empty(t, second.CategoryOptions)

	var count int
	require.NoError(t, f.db.Model(&models.Reflection{}).Where("giver_user_id = ?", giver).Count(&count).Error)
	assert.Equal(t, 1, count)
}

func TestStartConcurrentCreatesOne(t *testing.T) {
	f := newFixture(t, Options{})
	giver := f.user(t, 0)

	const n = 8
	ids := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.svc.Start(context.Background(), giver)
			errs[i] = err
			if res != nil {
				ids[i] = res.ReflectionID
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}

	var count int
	require.NoError(t, f.db.Model(&models.Reflection{}).
		Where("giver_user_id = ? AND status = ?", giver, models.REFLECTION_STATUS_ACTIVE).
		Count(&count).Error)
	assert.Equal(t, 1, count)
}

func TestActiveIndexRejectsSecondInsert(t *testing.T) {
	f := newFixture(t, Options{})
	giver := f.user(t, 0)

	mk := func() *models.Reflection {
		return &models.Reflection{
			ReflectionID: uuid.New().String(),
			StageNo:      1,
			CategoryNo:   1,
			GiverUserID:  giver,
			Mode:         models.REFLECTION_MODE_GUIDED,
			DeliveryMode: models.DELIVERY_MODE_EMAIL,
			Status:       models.REFLECTION_STATUS_ACTIVE,
		}
	}
	require.NoError(t, f.store.CreateReflection(mk()))
	assert.Equal(t, errActiveExists, f.store.CreateReflection(mk()))
}

func TestStartErrors(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.svc.Start(context.Background(), uuid.New().String())
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = f.svc.Start(context.Background(), "not-a-uuid")
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestStartDefaultCategoryFallback(t *testing.T) {
	f := newFixture(t, Options{DefaultCategory: 3}) // apology is inactive
	giver := f.user(t, 0)

	res, err := f.svc.Start(context.Background(), giver)
	require.NoError(t, err)

	snap, err := f.svc.Status(context.Background(), res.ReflectionID)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.CategoryNo)
	assert.Equal(t, models.DELIVERY_MODE_EMAIL, snap.DeliveryMode)
}

func TestSetCategory(t *testing.T) {
	tests := []struct {
		name    string
		ref     CategoryRef
		wantErr error
		want    string
	}{
		{name: "by number", ref: CategoryByNo(2), want: "gratitude"},
		{name: "by name case insensitive", ref: CategoryByName("  Gratitude "), want: "gratitude"},
		{name: "unknown number", ref: CategoryByNo(42), wantErr: ErrInvalidInput},
		{name: "unknown name", ref: CategoryByName("rant"), wantErr: ErrInvalidInput},
		{name: "inactive", ref: CategoryByName("apology"), wantErr: ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Options{})
			ctx := context.Background()
			start, err := f.svc.Start(ctx, f.user(t, 0))
			require.NoError(t, err)

			step, err := f.svc.SetCategory(ctx, start.ReflectionID, tt.ref)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				snap, serr := f.svc.Status(ctx, start.ReflectionID)
				require.NoError(t, serr)
				assert.Equal(t, 1, snap.StageNo)
				assert.Empty(t, f.messages(t, start.ReflectionID))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 2, step.StageNo)
			assert.Equal(t, tt.want, step.SelectedCategory)
			assert.Len(t, f.messages(t, start.ReflectionID), 1)
		})
	}
}

func TestSetCategoryOutsideStageOne(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	start, err := f.svc.Start(ctx, f.user(t, 0))
	require.NoError(t, err)

	_, err = f.svc.SetCategory(ctx, start.ReflectionID, CategoryByNo(1))
	require.NoError(t, err)

	_, err = f.svc.SetCategory(ctx, start.ReflectionID, CategoryByNo(2))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidState))
	assert.Contains(t, err.Error(), "current stage: 2")

	_, err = f.svc.SetCategory(ctx, uuid.New().String(), CategoryByNo(1))
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestAdvanceValidation(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	start, err := f.svc.Start(ctx, f.user(t, 0))
	require.NoError(t, err)

	_, err = f.svc.Advance(ctx, start.ReflectionID, "too early")
	assert.True(t, errors.Is(err, ErrInvalidState))

	_, err = f.svc.SetCategory(ctx, start.ReflectionID, CategoryByNo(1))
	require.NoError(t, err)

	_, err = f.svc.Advance(ctx, start.ReflectionID, "   ")
	assert.True(t, errors.Is(err, ErrInvalidInput))

	_, err = f.svc.Advance(ctx, uuid.New().String(), "Alex")
	assert.True(t, errors.Is(err, ErrNotFound))

	assert.Len(t, f.messages(t, start.ReflectionID), 1)
}

func TestAdvanceBeyondNamedFields(t *testing.T) {
	cat, err := catalog.New(
		[]catalog.Stage{
			{No: 1, Name: "CATEGORY_SELECTION", Prompt: "p1", Active: true},
			{No: 2, Name: "RECIPIENT_NAME", Prompt: "p2", Active: true},
			{No: 3, Name: "RELATION", Prompt: "p3", Active: true},
			{No: 4, Name: "REFLECTION", Prompt: "p4", Active: true},
			{No: 5, Name: "CLOSING_NOTE", Prompt: "p5", Active: true},
		},
		[]catalog.Category{{No: 1, Name: "feedback", Active: true}},
	)
	require.NoError(t, err)

	f := newFixtureWithCatalog(t, cat, Options{})
	ctx := context.Background()
	start, err := f.svc.Start(ctx, f.user(t, 0))
	require.NoError(t, err)
	id := start.ReflectionID

	_, err = f.svc.SetCategory(ctx, id, CategoryByNo(1))
	require.NoError(t, err)
	for _, in := range []string{"Alex", "friend", "body"} {
		_, err = f.svc.Advance(ctx, id, in)
		require.NoError(t, err)
	}

	step, err := f.svc.Advance(ctx, id, "see you soon")
	require.NoError(t, err)
	assert.True(t, step.Completed)

	snap, err := f.svc.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 5, snap.StageNo)
	assert.Equal(t, "body", *snap.Body)

	msgs := f.messages(t, id)
	assert.Equal(t, "see you soon", msgs[len(msgs)-1].Text)
	assert.Equal(t, 5, msgs[len(msgs)-1].StageNo)
}

func TestAdvanceFlagsDistress(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	start, err := f.svc.Start(ctx, f.user(t, 0))
	require.NoError(t, err)
	id := start.ReflectionID

	f.cls.severity["I can't go on"] = distress.SeverityCrisis
	f.cls.severity["feeling low"] = distress.SeverityCaution

	_, err = f.svc.SetCategory(ctx, id, CategoryByNo(1))
	require.NoError(t, err)
	_, err = f.svc.Advance(ctx, id, "Alex")
	require.NoError(t, err)
	_, err = f.svc.Advance(ctx, id, "feeling low")
	require.NoError(t, err)
	_, err = f.svc.Advance(ctx, id, "I can't go on")
	require.NoError(t, err)

	msgs := f.messages(t, id)
	require.Len(t, msgs, 4)
	assert.False(t, msgs[1].IsDistress)
	assert.Equal(t, string(distress.SeverityNone), msgs[1].Severity)
	assert.True(t, msgs[2].IsDistress)
	assert.Equal(t, string(distress.SeverityCaution), msgs[2].Severity)
	assert.True(t, msgs[3].IsDistress)
	assert.Equal(t, string(distress.SeverityCrisis), msgs[3].Severity)

	alerts := f.alerts(t)
	require.Len(t, alerts, 2)
	assert.Equal(t, msgs[2].MessageID, alerts[0].MessageID)
	assert.Equal(t, models.ALERT_STATUS_PENDING, alerts[0].Status)
	assert.Equal(t, string(distress.SeverityCrisis), alerts[1].Severity)
	assert.Equal(t, 4, alerts[1].StageNo)
}

func TestAdvanceFailurePolicy(t *testing.T) {
	unavailable := &distress.UnavailableError{Op: "embed", Err: errors.New("timeout")}

	t.Run("open stores unclassified", func(t *testing.T) {
		f := newFixture(t, Options{FailurePolicy: config.FAILURE_POLICY_OPEN})
		ctx := context.Background()
		start, err := f.svc.Start(ctx, f.user(t, 0))
		require.NoError(t, err)
		_, err = f.svc.SetCategory(ctx, start.ReflectionID, CategoryByNo(1))
		require.NoError(t, err)

		f.cls.err = unavailable
		step, err := f.svc.Advance(ctx, start.ReflectionID, "Alex")
		require.NoError(t, err)
		assert.Equal(t, 3, step.StageNo)

		msgs := f.messages(t, start.ReflectionID)
		last := msgs[len(msgs)-1]
		assert.False(t, last.IsDistress)
		assert.Equal(t, string(distress.SeverityUnclassified), last.Severity)
		assert.Empty(t, f.alerts(t))
	})

	t.Run("closed blocks the step", func(t *testing.T) {
		f := newFixture(t, Options{FailurePolicy: config.FAILURE_POLICY_CLOSED})
		ctx := context.Background()
		start, err := f.svc.Start(ctx, f.user(t, 0))
		require.NoError(t, err)
		_, err = f.svc.SetCategory(ctx, start.ReflectionID, CategoryByNo(1))
		require.NoError(t, err)

		f.cls.err = unavailable
		_, err = f.svc.Advance(ctx, start.ReflectionID, "Alex")
		require.Error(t, err)
		assert.True(t, errors.Is(err, distress.ErrClassificationUnavailable))

		snap, err := f.svc.Status(ctx, start.ReflectionID)
		require.NoError(t, err)
		assert.Equal(t, 2, snap.StageNo)
		assert.Nil(t, snap.Name)
		assert.Len(t, f.messages(t, start.ReflectionID), 1)
	})
}

func TestApplyTransitionConflict(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	start, err := f.svc.Start(ctx, f.user(t, 0))
	require.NoError(t, err)
	_, err = f.svc.SetCategory(ctx, start.ReflectionID, CategoryByNo(1))
	require.NoError(t, err)

	// a writer that read stage 1 before SetCategory committed
	_, err = f.store.ApplyTransition(Transition{
		ReflectionID: start.ReflectionID,
		FromStage:    1,
		ToStage:      2,
		Message:      models.Message{Text: "stale", Sender: models.MESSAGE_SENDER_USER, StageNo: 1, Severity: "none"},
	})
	assert.True(t, errors.Is(err, ErrPersistenceConflict))
	assert.Len(t, f.messages(t, start.ReflectionID), 1)
}

func TestAdvanceConcurrentSingleWinner(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	start, err := f.svc.Start(ctx, f.user(t, 0))
	require.NoError(t, err)
	_, err = f.svc.SetCategory(ctx, start.ReflectionID, CategoryByNo(1))
	require.NoError(t, err)

	const n = 6
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Advance(ctx, start.ReflectionID, "Alex")
		}(i)
	}
	wg.Wait()

	snap, err := f.svc.Status(ctx, start.ReflectionID)
	require.NoError(t, err)

	// every successful call moved the stage exactly once and wrote one message
	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.True(t, errors.Is(err, ErrPersistenceConflict) || errors.Is(err, ErrInvalidState), "got %v", err)
	}
	require.GreaterOrEqual(t, ok, 1)
	assert.Len(t, f.messages(t, start.ReflectionID), 1+ok)
	if snap.Completed {
		assert.Equal(t, 3, ok)
		assert.Equal(t, 4, snap.StageNo)
	} else {
		assert.Equal(t, 2+ok, snap.StageNo)
	}
}

func TestMessagesAndOptions(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.svc.Messages(context.Background(), uuid.New().String())
	assert.True(t, errors.Is(err, ErrNotFound))

	opts := f.svc.CategoryOptions()
	require.Len(t, opts, 2)
	assert.Equal(t, 1, opts[0].No)
	assert.Equal(t, 2, opts[1].No)
}

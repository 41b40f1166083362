package reflection_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/farum-reflect/internal/adapters/identity"
	"github.com/PabloGalante/farum-reflect/internal/adapters/storage/memory"
	"github.com/PabloGalante/farum-reflect/internal/app/reflection"
	"github.com/PabloGalante/farum-reflect/internal/app/submission"
	"github.com/PabloGalante/farum-reflect/internal/app/template"
	"github.com/PabloGalante/farum-reflect/internal/app/validation"
	"github.com/PabloGalante/farum-reflect/internal/domain"
)

type fixture struct {
	engine  *reflection.Engine
	drafts  *memory.DraftStore
	records *flakyRecords
	reg     *template.Registry
}

// flakyRecords counts inserts, can block them and can fail them.
type flakyRecords struct {
	inner   *memory.RecordStore
	calls   atomic.Int32
	mu      sync.Mutex
	err     error
	release chan struct{}
}

func (f *flakyRecords) InsertRecord(ctx context.Context, rec *domain.Record) (domain.Stored, error) {
	f.calls.Add(1)
	f.mu.Lock()
	release, err := f.release, f.err
	f.mu.Unlock()
	if release != nil {
		<-release
	}
	if err != nil {
		return domain.Stored{}, err
	}
	return f.inner.InsertRecord(ctx, rec)
}

func (f *flakyRecords) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func scenarioTemplates() []*domain.Template {
	return []*domain.Template{
		{
			ID:    "two_step",
			Title: "Two Step",
			Steps: []domain.StepDefinition{
				{ID: "one", Title: "One", Fields: []domain.FieldDefinition{{ID: "f1", Label: "First", Kind: domain.KindText, Required: true}}},
				{ID: "two", Title: "Two", Fields: []domain.FieldDefinition{{ID: "f2", Label: "Second", Kind: domain.KindText, Required: true, MinLength: 10}}},
			},
		},
		{
			ID:    "three_step",
			Title: "Three Step",
			Steps: []domain.StepDefinition{
				{ID: "a", Title: "A", Fields: []domain.FieldDefinition{{ID: "a1", Kind: domain.KindText, Required: true}}},
				{ID: "b", Title: "B", Fields: []domain.FieldDefinition{{ID: "b1", Kind: domain.KindScale, Required: true, Min: 1, Max: 5}}},
				{ID: "c", Title: "C", Fields: []domain.FieldDefinition{{ID: "c1", Kind: domain.KindText}}},
			},
		},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg, err := template.NewRegistry(scenarioTemplates()...)
	require.NoError(t, err)

	drafts := memory.NewDraftStore()
	records := &flakyRecords{inner: memory.NewRecordStore()}
	ctrl := submission.NewController(reg, records, drafts, identity.Static("interpreter-1"))

	return &fixture{
		engine:  reflection.NewEngine(reg, drafts, ctrl),
		drafts:  drafts,
		records: records,
		reg:     reg,
	}
}

func TestExampleScenario(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	s, err := fx.engine.Start(ctx, "two_step")
	require.NoError(t, err)

	require.NoError(t, s.EditField(ctx, "f1", domain.TextValue("ok")))
	errs, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Empty(t, errs)
	assert.Equal(t, 1, s.Snapshot().CurrentStepIndex)

	require.NoError(t, s.EditField(ctx, "f2", domain.TextValue("short")))
	res, err := s.Complete(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.ResultValidationFailure, res.Kind)
	snap := s.Snapshot()
	assert.Equal(t, 1, snap.CurrentStepIndex)
	assert.Equal(t, domain.StatusDraft, snap.Status)
	assert.Equal(t, domain.ErrorMap{"f2": validation.MinLengthMessage(10)}, snap.Errors)

	// editing clears the field error immediately
	require.NoError(t, s.EditField(ctx, "f2", domain.TextValue("this is long enough")))
	assert.Empty(t, s.Snapshot().Errors)

	res, err = s.Complete(ctx)
	require.NoError(t, err)
	require.True(t, res.OK(), "result: %+v", res)
	assert.Equal(t, domain.StatusSubmitted, s.Snapshot().Status)

	_, err = fx.drafts.LoadDraft(ctx, s.ID())
	assert.ErrorIs(t, err, domain.ErrDraftNotFound)
	assert.Equal(t, 1, fx.records.inner.Len())
	assert.Equal(t, int32(1), fx.records.calls.Load())
}

func TestNextBlockedByValidation(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	s, err := fx.engine.Start(ctx, "three_step")
	require.NoError(t, err)

	before := s.Snapshot()
	errs, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.ErrorMap{"a1": validation.MsgRequired}, errs)

	after := s.Snapshot()
	assert.Equal(t, before.CurrentStepIndex, after.CurrentStepIndex)
	assert.Equal(t, before.Answers, after.Answers)
	assert.Equal(t, before.Status, after.Status)
	assert.Equal(t, errs, after.Errors)
}

func TestPreviousIgnoresValidation(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	s, err := fx.engine.Start(ctx, "three_step")
	require.NoError(t, err)

	assert.ErrorIs(t, s.Previous(ctx), domain.ErrIllegalTransition)

	require.NoError(t, s.EditField(ctx, "a1", domain.TextValue("x")))
	_, err = s.Next(ctx)
	require.NoError(t, err)

	// step b is invalid, going back still works and clears errors
	errs, err := s.Next(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, errs)

	require.NoError(t, s.Previous(ctx))
	snap := s.Snapshot()
	assert.Equal(t, 0, snap.CurrentStepIndex)
	assert.Empty(t, snap.Errors)
}

func TestNextRejectedOnLastStep(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	s, err := fx.engine.Start(ctx, "two_step")
	require.NoError(t, err)

	require.NoError(t, s.EditField(ctx, "f1", domain.TextValue("ok")))
	_, err = s.Next(ctx)
	require.NoError(t, err)

	_, err = s.Next(ctx)
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)
}

func TestCompleteRejectedBeforeLastStep(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	s, err := fx.engine.Start(ctx, "two_step")
	require.NoError(t, err)

	_, err = s.Complete(ctx)
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)
	assert.Equal(t, int32(0), fx.records.calls.Load())
}

func TestEditUnknownField(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	s, err := fx.engine.Start(ctx, "two_step")
	require.NoError(t, err)

	assert.ErrorIs(t, s.EditField(ctx, "nope", domain.TextValue("x")), domain.ErrUnknownField)
}

func TestJumpToRequiresCompletedSteps(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	s, err := fx.engine.Start(ctx, "three_step")
	require.NoError(t, err)

	ok, err := s.JumpTo(ctx, 2)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.EditField(ctx, "a1", domain.TextValue("x")))
	_, err = s.Next(ctx)
	require.NoError(t, err)
	require.NoError(t, s.EditField(ctx, "b1", domain.NumberValue(3)))
	_, err = s.Next(ctx)
	require.NoError(t, err)

	ok, err = s.JumpTo(ctx, 0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, s.Snapshot().CurrentStepIndex)

	// steps 0 and 1 validated once, so the last step is reachable again
	ok, err = s.JumpTo(ctx, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = s.JumpTo(ctx, 7)
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)
}

func TestConcurrentCompleteWritesOnce(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	fx.records.release = make(chan struct{})

	s := readyToComplete(t, fx)

	var wg sync.WaitGroup
	results := make([]domain.SubmissionResult, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := s.Complete(ctx)
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(fx.records.release)
	wg.Wait()

	assert.True(t, results[0].OK())
	assert.Equal(t, results[0], results[1])
	assert.Equal(t, int32(1), fx.records.calls.Load())
	assert.Equal(t, 1, fx.records.inner.Len())

	// and once more after success
	res, err := s.Complete(ctx)
	require.NoError(t, err)
	assert.Equal(t, results[0], res)
	assert.Equal(t, int32(1), fx.records.calls.Load())
}

func TestDraftSurvivesReconstruction(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	s, err := fx.engine.Start(ctx, "three_step")
	require.NoError(t, err)

	require.NoError(t, s.EditField(ctx, "a1", domain.TextValue("first")))
	_, err = s.Next(ctx)
	require.NoError(t, err)
	require.NoError(t, s.EditField(ctx, "b1", domain.NumberValue(4)))
	_, err = s.Next(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Previous(ctx))
	require.NoError(t, s.EditField(ctx, "a1", domain.TextValue("second")))

	before := s.Snapshot()

	resumed, err := fx.engine.Open(ctx, "three_step", s.ID())
	require.NoError(t, err)
	after := resumed.Snapshot()

	assert.Equal(t, before.Answers, after.Answers)
	assert.Equal(t, before.CurrentStepIndex, after.CurrentStepIndex)
	assert.Equal(t, before.CompletedSteps, after.CompletedSteps)
	assert.Equal(t, domain.StatusDraft, after.Status)

	// completed steps survive too, so review navigation still works
	ok, err := resumed.JumpTo(ctx, 2)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTransientFailurePreservesDraft(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	fx.records.setErr(fmt.Errorf("timeout: %w", domain.ErrStoreUnavailable))

	s := readyToComplete(t, fx)
	answers := s.Snapshot().Answers

	res, err := s.Complete(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.ResultTransientFailure, res.Kind)
	assert.Equal(t, domain.StatusSubmissionFailed, s.Snapshot().Status)

	draft, err := fx.drafts.LoadDraft(ctx, s.ID())
	require.NoError(t, err)
	assert.Equal(t, answers, draft.Answers)
	assert.Equal(t, domain.StatusSubmissionFailed, draft.Status)

	// editing is not allowed while failed, retrying is
	assert.ErrorIs(t, s.EditField(ctx, "f1", domain.TextValue("x")), domain.ErrIllegalTransition)

	fx.records.setErr(nil)
	res, err = s.Complete(ctx)
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, 1, fx.records.inner.Len())
}

func TestRejectedWriteReturnsToDraft(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	fx.records.setErr(domain.ErrRecordRejected)

	s := readyToComplete(t, fx)
	res, err := s.Complete(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.ResultValidationFailure, res.Kind)

	snap := s.Snapshot()
	assert.Equal(t, domain.StatusDraft, snap.Status)
	assert.Equal(t, 1, snap.CurrentStepIndex)
	assert.Equal(t, submission.ReasonRejected, snap.FailureReason)
	require.NoError(t, s.EditField(ctx, "f2", domain.TextValue("changed and long enough")))
}

func TestResumeMidSubmissionAllowsRetry(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	require.NoError(t, fx.drafts.SaveDraft(ctx, &domain.Draft{
		Version:     domain.DraftVersion,
		SessionID:   "closed-mid-submit",
		TemplateID:  "two_step",
		Answers:     domain.AnswerMap{"f1": domain.TextValue("ok"), "f2": domain.TextValue("this is long enough")},
		CurrentStep: 1,
		Status:      domain.StatusSubmitting,
	}))

	s, err := fx.engine.Resume(ctx, "closed-mid-submit")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSubmissionFailed, s.Snapshot().Status)

	res, err := s.Complete(ctx)
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, domain.RecordIDFor("closed-mid-submit"), res.RecordID)
}

func TestResumeReconcilesStaleDraft(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	require.NoError(t, fx.drafts.SaveDraft(ctx, &domain.Draft{
		Version:    domain.DraftVersion,
		SessionID:  "old",
		TemplateID: "three_step",
		Answers: domain.AnswerMap{
			"a1":      domain.TextValue("kept"),
			"removed": domain.TextValue("dropped"),
		},
		CurrentStep:    9,
		CompletedSteps: []int{0, 1, 5},
		Errors:         domain.ErrorMap{"a1": "stale"},
	}))

	s, err := fx.engine.Open(ctx, "three_step", "old")
	require.NoError(t, err)
	snap := s.Snapshot()

	assert.Equal(t, domain.AnswerMap{"a1": domain.TextValue("kept")}, snap.Answers)
	assert.Equal(t, 2, snap.CurrentStepIndex)
	assert.Equal(t, map[int]bool{0: true, 1: true}, snap.CompletedSteps)
	assert.Empty(t, snap.Errors)
	assert.Equal(t, domain.StatusDraft, snap.Status)
}

func TestOpenTemplateMismatch(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	s, err := fx.engine.Start(ctx, "two_step")
	require.NoError(t, err)

	_, err = fx.engine.Open(ctx, "three_step", s.ID())
	assert.ErrorIs(t, err, domain.ErrTemplateMismatch)
}

func TestOpenUnknownSessionID(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	_, err := fx.engine.Open(ctx, "two_step", "device-session")
	assert.ErrorIs(t, err, domain.ErrDraftNotFound)
	assert.Equal(t, 0, fx.drafts.Len())

	s, err := fx.engine.Open(ctx, "two_step", "")
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID())
	assert.Equal(t, 0, s.Snapshot().CurrentStepIndex)

	_, err = fx.engine.Start(ctx, "unknown")
	assert.ErrorIs(t, err, domain.ErrTemplateNotFound)
}

func TestReopenSubmittedSessionID(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	s := readyToComplete(t, fx)
	res, err := s.Complete(ctx)
	require.NoError(t, err)
	require.True(t, res.OK())

	// the draft is gone, so the id cannot be reused for new answers
	_, err = fx.engine.Open(ctx, "two_step", s.ID())
	assert.ErrorIs(t, err, domain.ErrDraftNotFound)

	_, err = fx.engine.Resume(ctx, s.ID())
	assert.ErrorIs(t, err, domain.ErrDraftNotFound)

	stored, ok := fx.records.inner.Get(res.RecordID)
	require.True(t, ok)
	text, _ := stored.Answers["f2"].Text()
	assert.Equal(t, "this is long enough", text)
	assert.Equal(t, int32(1), fx.records.calls.Load())
}

// failingDrafts accepts loads but fails every save.
type failingDrafts struct {
	*memory.DraftStore
}

func (failingDrafts) SaveDraft(context.Context, *domain.Draft) error {
	return errors.New("disk full")
}

func TestDraftWriteFailureKeepsStateInMemory(t *testing.T) {
	ctx := context.Background()
	reg, err := template.NewRegistry(scenarioTemplates()...)
	require.NoError(t, err)
	drafts := failingDrafts{memory.NewDraftStore()}
	records := memory.NewRecordStore()
	engine := reflection.NewEngine(reg, drafts, submission.NewController(reg, records, drafts, identity.Static("u1")))

	s, err := engine.Start(ctx, "two_step")
	assert.ErrorIs(t, err, domain.ErrDraftPersist)
	require.NotNil(t, s)

	err = s.EditField(ctx, "f1", domain.TextValue("ok"))
	assert.ErrorIs(t, err, domain.ErrDraftPersist)
	text, _ := s.Snapshot().Answers["f1"].Text()
	assert.Equal(t, "ok", text)

	_, err = s.Next(ctx)
	assert.ErrorIs(t, err, domain.ErrDraftPersist)
	require.NoError(t, nilIfPersist(s.EditField(ctx, "f2", domain.TextValue("this is long enough"))))

	// submission still goes through
	res, err := s.Complete(ctx)
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, 1, records.Len())
}

func TestSummaryFollowsTemplate(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	s, err := fx.engine.Start(ctx, "two_step")
	require.NoError(t, err)
	require.NoError(t, s.EditField(ctx, "f1", domain.TextValue("ok")))

	assert.Equal(t, "Two Step\n========\n\n1. One\n- First: ok\n\n2. Two\n- Second: Not provided\n", s.Summary())
}

func readyToComplete(t *testing.T, fx *fixture) *reflection.Session {
	t.Helper()
	ctx := context.Background()
	s, err := fx.engine.Start(ctx, "two_step")
	require.NoError(t, err)
	require.NoError(t, s.EditField(ctx, "f1", domain.TextValue("ok")))
	_, err = s.Next(ctx)
	require.NoError(t, err)
	require.NoError(t, s.EditField(ctx, "f2", domain.TextValue("this is long enough")))
	return s
}

func nilIfPersist(err error) error {
	if errors.Is(err, domain.ErrDraftPersist) {
		return nil
	}
	return err
}

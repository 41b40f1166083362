// Package reflection drives a user through the steps of a reflection
// template: navigation, validation gates, draft persistence and the final
// hand-off to submission.
package reflection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PabloGalante/farum-reflect/internal/domain"
	"github.com/PabloGalante/farum-reflect/internal/observability"
)

// Submitter performs the terminal write of a session.
type Submitter interface {
	Submit(ctx context.Context, sess *domain.ReflectionSession) domain.SubmissionResult
}

// Engine constructs sessions. It is generic over templates: every
// reflection type runs through the same state machine.
type Engine struct {
	templates domain.TemplateRegistry
	drafts    domain.DraftStore
	submitter Submitter
	metrics   *observability.Metrics
	now       func() time.Time
}

func NewEngine(templates domain.TemplateRegistry, drafts domain.DraftStore, submitter Submitter) *Engine {
	return &Engine{
		templates: templates,
		drafts:    drafts,
		submitter: submitter,
		metrics:   observability.NewMetrics(),
		now:       time.Now,
	}
}

// Start opens a brand-new session with a fresh id.
func (e *Engine) Start(ctx context.Context, templateID domain.TemplateID) (*Session, error) {
	tmpl, err := e.templates.GetTemplate(templateID)
	if err != nil {
		return nil, err
	}
	return e.fresh(ctx, tmpl, domain.NewSessionID())
}

// Open resumes the draft stored under sessionID; an empty id starts a fresh
// session. Only Start mints session ids: an id with no draft may belong to a
// session that was already submitted, so it fails with ErrDraftNotFound.
// The draft store is read exactly once.
func (e *Engine) Open(ctx context.Context, templateID domain.TemplateID, sessionID domain.SessionID) (*Session, error) {
	if sessionID == "" {
		return e.Start(ctx, templateID)
	}
	tmpl, err := e.templates.GetTemplate(templateID)
	if err != nil {
		return nil, err
	}

	draft, err := e.drafts.LoadDraft(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrDraftNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("loading draft %s: %w", sessionID, err)
	}

	if draft.TemplateID != templateID {
		return nil, fmt.Errorf("%w: draft %s is %s, not %s", domain.ErrTemplateMismatch, sessionID, draft.TemplateID, templateID)
	}
	return e.resume(ctx, tmpl, draft), nil
}

// Resume reopens a stored draft using the template recorded in it.
func (e *Engine) Resume(ctx context.Context, sessionID domain.SessionID) (*Session, error) {
	draft, err := e.drafts.LoadDraft(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	tmpl, err := e.templates.GetTemplate(draft.TemplateID)
	if err != nil {
		return nil, err
	}
	return e.resume(ctx, tmpl, draft), nil
}

func (e *Engine) fresh(ctx context.Context, tmpl *domain.Template, id domain.SessionID) (*Session, error) {
	now := e.now()
	s := &Session{
		engine: e,
		tmpl:   tmpl,
		state: &domain.ReflectionSession{
			ID:             id,
			TemplateID:     tmpl.ID,
			Answers:        domain.AnswerMap{},
			CompletedSteps: map[int]bool{},
			Errors:         domain.ErrorMap{},
			Status:         domain.StatusDraft,
			StartedAt:      now,
			LastMutatedAt:  now,
		},
	}

	observability.LoggerFromContext(ctx).Info("reflection session started",
		"session_id", id,
		"template_id", tmpl.ID,
	)

	// saved up front so a reload before the first edit still finds the session
	if err := s.persist(ctx); err != nil {
		return s, err
	}
	return s, nil
}

func (e *Engine) resume(ctx context.Context, tmpl *domain.Template, draft *domain.Draft) *Session {
	state := draft.Session()
	reconcile(tmpl, state)

	observability.LoggerFromContext(ctx).Info("reflection session resumed",
		"session_id", state.ID,
		"template_id", tmpl.ID,
		"step", state.CurrentStepIndex,
		"status", state.Status,
	)
	return &Session{engine: e, tmpl: tmpl, state: state}
}

// reconcile fits a draft written against an older template onto the current one.
func reconcile(tmpl *domain.Template, st *domain.ReflectionSession) {
	if st.Answers == nil {
		st.Answers = domain.AnswerMap{}
	}
	for id := range st.Answers {
		if !tmpl.HasField(id) {
			delete(st.Answers, id)
		}
	}

	if st.CurrentStepIndex < 0 {
		st.CurrentStepIndex = 0
	}
	if st.CurrentStepIndex > tmpl.LastIndex() {
		st.CurrentStepIndex = tmpl.LastIndex()
	}

	if st.CompletedSteps == nil {
		st.CompletedSteps = map[int]bool{}
	}
	for i := range st.CompletedSteps {
		if i < 0 || i > tmpl.LastIndex() {
			delete(st.CompletedSteps, i)
		}
	}

	errs := domain.ErrorMap{}
	for _, f := range tmpl.Steps[st.CurrentStepIndex].Fields {
		if msg, ok := st.Errors[f.ID]; ok {
			errs[f.ID] = msg
		}
	}
	st.Errors = errs

	switch st.Status {
	case domain.StatusSubmitting, domain.StatusSubmitted:
		// the write may or may not have landed; a retry reuses the same record id
		st.Status = domain.StatusSubmissionFailed
		st.CurrentStepIndex = tmpl.LastIndex()
	case domain.StatusSubmissionFailed:
		st.CurrentStepIndex = tmpl.LastIndex()
	default:
		st.Status = domain.StatusDraft
	}
}

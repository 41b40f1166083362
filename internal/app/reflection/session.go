package reflection

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/PabloGalante/farum-reflect/internal/app/summary"
	"github.com/PabloGalante/farum-reflect/internal/app/validation"
	"github.com/PabloGalante/farum-reflect/internal/domain"
	"github.com/PabloGalante/farum-reflect/internal/observability"
)

// Transition names used in logs and metrics.
const (
	TransitionEdit     = "edit_field"
	TransitionNext     = "next"
	TransitionPrevious = "previous"
	TransitionJump     = "jump_to"
	TransitionComplete = "complete"
)

// Session is the authoritative in-memory state of one reflection attempt.
// Transitions are serialized: each runs to completion, including its draft
// write, before the next one is accepted.
//
// A transition whose draft write fails is still applied; the returned error
// wraps domain.ErrDraftPersist and callers should keep going.
type Session struct {
	mu     sync.Mutex
	engine *Engine
	tmpl   *domain.Template
	state  *domain.ReflectionSession

	inflight *attempt
	result   *domain.SubmissionResult
}

// attempt lets concurrent complete() calls wait on the same submission.
type attempt struct {
	done   chan struct{}
	result domain.SubmissionResult
}

func (s *Session) ID() domain.SessionID { return s.state.ID }

func (s *Session) Template() *domain.Template { return s.tmpl }

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() *domain.ReflectionSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Summary projects the current answers.
func (s *Session) Summary() string {
	s.mu.Lock()
	answers := s.state.Answers.Clone()
	s.mu.Unlock()
	return summary.Project(s.tmpl, answers)
}

// EditField sets an answer and clears that field's error. It never changes step.
func (s *Session) EditField(ctx context.Context, fieldID domain.FieldID, value domain.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Status != domain.StatusDraft {
		return s.reject(TransitionEdit)
	}
	if !s.tmpl.HasField(fieldID) {
		s.count(TransitionEdit, "rejected")
		return fmt.Errorf("%w: %s has no field %s", domain.ErrUnknownField, s.tmpl.ID, fieldID)
	}

	s.state.Answers[fieldID] = value
	delete(s.state.Errors, fieldID)
	return s.taken(ctx, TransitionEdit)
}

// Next validates the current step and advances when it is clean. The
// returned map holds the blocking errors; it is empty when the step advanced.
func (s *Session) Next(ctx context.Context) (domain.ErrorMap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.state.CurrentStepIndex
	if s.state.Status != domain.StatusDraft || i >= s.tmpl.LastIndex() {
		return nil, s.reject(TransitionNext)
	}

	errs := validation.ValidateStep(s.tmpl.Steps[i], s.state.Answers)
	if len(errs) > 0 {
		s.state.Errors = errs
		s.count(TransitionNext, "blocked")
		return errs.Clone(), s.save(ctx)
	}

	s.state.CompletedSteps[i] = true
	s.state.CurrentStepIndex = i + 1
	s.state.Errors = domain.ErrorMap{}
	return domain.ErrorMap{}, s.taken(ctx, TransitionNext)
}

// Previous steps back without validating anything.
func (s *Session) Previous(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Status != domain.StatusDraft || s.state.CurrentStepIndex == 0 {
		return s.reject(TransitionPrevious)
	}

	s.state.CurrentStepIndex--
	s.state.Errors = domain.ErrorMap{}
	return s.taken(ctx, TransitionPrevious)
}

// JumpTo moves directly to step i when every step before it has validated
// at least once. It reports false, without error, when that is not the case.
func (s *Session) JumpTo(ctx context.Context, i int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Status != domain.StatusDraft || i < 0 || i > s.tmpl.LastIndex() {
		return false, s.reject(TransitionJump)
	}
	if i == s.state.CurrentStepIndex {
		return false, nil
	}
	for j := 0; j < i; j++ {
		if !s.state.CompletedSteps[j] {
			s.count(TransitionJump, "blocked")
			return false, nil
		}
	}

	s.state.CurrentStepIndex = i
	s.state.Errors = domain.ErrorMap{}
	return true, s.taken(ctx, TransitionJump)
}

// Complete validates the last step and submits the session. Calls made
// while a submission is in flight wait for it and share its result; calls
// made after success return the stored result without another write.
func (s *Session) Complete(ctx context.Context) (domain.SubmissionResult, error) {
	s.mu.Lock()

	switch s.state.Status {
	case domain.StatusSubmitted:
		res := *s.result
		s.mu.Unlock()
		return res, nil

	case domain.StatusSubmitting:
		a := s.inflight
		s.mu.Unlock()
		if a == nil {
			return domain.SubmissionResult{}, fmt.Errorf("%w: no submission in flight", domain.ErrIllegalTransition)
		}
		select {
		case <-a.done:
			return a.result, nil
		case <-ctx.Done():
			return domain.SubmissionResult{}, ctx.Err()
		}

	case domain.StatusDraft:
		last := s.tmpl.LastIndex()
		if s.state.CurrentStepIndex != last {
			err := s.reject(TransitionComplete)
			s.mu.Unlock()
			return domain.SubmissionResult{}, err
		}
		if errs := validation.ValidateStep(s.tmpl.Steps[last], s.state.Answers); len(errs) > 0 {
			s.state.Errors = errs
			s.count(TransitionComplete, "blocked")
			err := s.save(ctx)
			s.mu.Unlock()
			return domain.ValidationFailure(errs.Clone(), ""), err
		}
		s.state.CompletedSteps[last] = true

	case domain.StatusSubmissionFailed:
		// retry
	}

	a := &attempt{done: make(chan struct{})}
	s.inflight = a
	s.state.Status = domain.StatusSubmitting
	s.state.Errors = domain.ErrorMap{}
	s.state.FailureReason = ""
	if err := s.taken(ctx, TransitionComplete); err != nil {
		// the in-memory state stays authoritative; the submission goes ahead
		s.logger(ctx).Warn("submitting without a saved draft", "error", err)
	}
	snap := s.state.Clone()
	s.mu.Unlock()

	res := s.engine.submitter.Submit(ctx, snap)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.apply(ctx, res)
	a.result = res
	s.inflight = nil
	close(a.done)
	return res, nil
}

// apply moves the session out of submitting. Caller holds mu.
func (s *Session) apply(ctx context.Context, res domain.SubmissionResult) {
	s.state.LastMutatedAt = s.engine.now()

	switch res.Kind {
	case domain.ResultSuccess:
		// the controller already removed the draft; nothing is written here
		s.state.Status = domain.StatusSubmitted
		s.result = &res
		s.logger(ctx).Info("reflection completed", "record_id", res.RecordID)
		return
	case domain.ResultValidationFailure:
		s.state.Status = domain.StatusDraft
		s.state.CurrentStepIndex = s.tmpl.LastIndex()
		s.state.Errors = s.currentStepErrors(res.Errors)
		s.state.FailureReason = res.Reason
	default:
		s.state.Status = domain.StatusSubmissionFailed
		s.state.FailureReason = res.Reason
	}

	if err := s.save(ctx); err != nil {
		s.logger(ctx).Error("failed to save draft after submission", "error", err)
	}
}

// currentStepErrors keeps the errors a user can act on from the last step.
// Errors on earlier steps stay visible through the result itself.
func (s *Session) currentStepErrors(all domain.ErrorMap) domain.ErrorMap {
	out := domain.ErrorMap{}
	for _, f := range s.tmpl.Steps[s.state.CurrentStepIndex].Fields {
		if msg, ok := all[f.ID]; ok {
			out[f.ID] = msg
		}
	}
	return out
}

func (s *Session) taken(ctx context.Context, transition string) error {
	s.count(transition, "taken")
	s.logger(ctx).Debug("transition taken",
		"transition", transition,
		"step", s.state.CurrentStepIndex,
		"status", s.state.Status,
	)
	return s.save(ctx)
}

func (s *Session) reject(transition string) error {
	s.count(transition, "rejected")
	return fmt.Errorf("%w: %s from %s at step %d", domain.ErrIllegalTransition, transition, s.state.Status, s.state.CurrentStepIndex)
}

func (s *Session) save(ctx context.Context) error {
	s.state.LastMutatedAt = s.engine.now()
	return s.persist(ctx)
}

// persist writes the full session. Caller holds mu, which is what keeps
// writes in mutation order.
func (s *Session) persist(ctx context.Context) error {
	if err := s.engine.drafts.SaveDraft(ctx, domain.NewDraft(s.state)); err != nil {
		s.engine.metrics.DraftWrites.WithLabelValues("save", "error").Inc()
		s.logger(ctx).Error("failed to save draft", "error", err)
		return fmt.Errorf("%w: %w", domain.ErrDraftPersist, err)
	}
	s.engine.metrics.DraftWrites.WithLabelValues("save", "ok").Inc()
	return nil
}

func (s *Session) count(transition, outcome string) {
	s.engine.metrics.Transitions.WithLabelValues(string(s.tmpl.ID), transition, outcome).Inc()
}

func (s *Session) logger(ctx context.Context) *slog.Logger {
	return observability.LoggerFromContext(ctx).With(
		"session_id", s.state.ID,
		"template_id", s.tmpl.ID,
	)
}

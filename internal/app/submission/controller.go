package submission

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/PabloGalante/farum-reflect/internal/app/validation"
	"github.com/PabloGalante/farum-reflect/internal/domain"
	"github.com/PabloGalante/farum-reflect/internal/observability"
)

// User-facing reasons attached to non-success results.
const (
	ReasonSignIn          = "Please sign in to save your reflection."
	ReasonIncomplete      = "Some answers need attention before you can finish."
	ReasonRejected        = "Your reflection could not be saved. Please review your answers and try again."
	ReasonUnavailable     = "We could not reach the server. Your answers are kept, please try again."
	ReasonUnknownTemplate = "This reflection type is no longer available."
)

const (
	defaultInsertTimeout = 15 * time.Second

	// A success evicted from the cache is still deduplicated by the Record
	// Store on the record id.
	defaultSuccessCacheSize = 4096
	defaultSuccessCacheTTL  = time.Hour
)

// Controller performs the terminal write of a session. At most one write
// per session id is ever in flight, and a session that already succeeded
// is answered from memory.
type Controller struct {
	templates domain.TemplateRegistry
	records   domain.RecordStore
	drafts    domain.DraftStore
	identity  domain.IdentityProvider
	metrics   *observability.Metrics
	now       func() time.Time
	timeout   time.Duration

	flight singleflight.Group

	cacheSize int
	cacheTTL  time.Duration
	succeeded *expirable.LRU[domain.SessionID, domain.SubmissionResult]
}

type Option func(*Controller)

// WithInsertTimeout bounds a single Record Store insert.
func WithInsertTimeout(d time.Duration) Option {
	return func(c *Controller) { c.timeout = d }
}

// WithSuccessCache bounds how many successful results are remembered and
// for how long.
func WithSuccessCache(size int, ttl time.Duration) Option {
	return func(c *Controller) {
		c.cacheSize = size
		c.cacheTTL = ttl
	}
}

// WithClock replaces time.Now for CompletedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

func NewController(
	templates domain.TemplateRegistry,
	records domain.RecordStore,
	drafts domain.DraftStore,
	identity domain.IdentityProvider,
	opts ...Option,
) *Controller {
	c := &Controller{
		templates: templates,
		records:   records,
		drafts:    drafts,
		identity:  identity,
		metrics:   observability.NewMetrics(),
		now:       time.Now,
		timeout:   defaultInsertTimeout,
		cacheSize: defaultSuccessCacheSize,
		cacheTTL:  defaultSuccessCacheTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.succeeded = expirable.NewLRU[domain.SessionID, domain.SubmissionResult](c.cacheSize, nil, c.cacheTTL)
	return c
}

// Submit validates the whole session and inserts it into the Record Store.
// Expected failures come back as result values, never as errors.
func (c *Controller) Submit(ctx context.Context, sess *domain.ReflectionSession) domain.SubmissionResult {
	log := observability.LoggerFromContext(ctx).With(
		"session_id", sess.ID,
		"template_id", sess.TemplateID,
	)

	if res, ok := c.previous(sess.ID); ok {
		c.metrics.SubmissionDedups.Inc()
		log.Info("submission already succeeded, skipping write")
		return res
	}

	v, _, shared := c.flight.Do(string(sess.ID), func() (any, error) {
		return c.submit(ctx, sess), nil
	})
	if shared {
		c.metrics.SubmissionDedups.Inc()
		log.Info("joined in-flight submission")
	}
	return v.(domain.SubmissionResult)
}

func (c *Controller) previous(id domain.SessionID) (domain.SubmissionResult, bool) {
	return c.succeeded.Get(id)
}

func (c *Controller) submit(ctx context.Context, sess *domain.ReflectionSession) domain.SubmissionResult {
	log := observability.LoggerFromContext(ctx).With(
		"session_id", sess.ID,
		"template_id", sess.TemplateID,
	)

	// a concurrent flight may have finished between previous() and Do
	if res, ok := c.previous(sess.ID); ok {
		return res
	}

	res := c.attempt(ctx, sess)
	c.metrics.Submissions.WithLabelValues(string(sess.TemplateID), string(res.Kind)).Inc()

	switch res.Kind {
	case domain.ResultSuccess:
		c.succeeded.Add(sess.ID, res)

		if err := c.drafts.DeleteDraft(context.WithoutCancel(ctx), sess.ID); err != nil && !errors.Is(err, domain.ErrDraftNotFound) {
			// the record is durable; a leftover draft resumes into a deduplicated retry
			c.metrics.DraftWrites.WithLabelValues("delete", "error").Inc()
			log.Error("failed to delete draft after submission", "error", err)
		} else {
			c.metrics.DraftWrites.WithLabelValues("delete", "ok").Inc()
		}
		log.Info("reflection submitted", "record_id", res.RecordID)
	case domain.ResultValidationFailure:
		log.Warn("submission rejected", "reason", res.Reason, "field_errors", len(res.Errors))
	default:
		log.Warn("submission failed, retryable", "reason", res.Reason)
	}
	return res
}

func (c *Controller) attempt(ctx context.Context, sess *domain.ReflectionSession) domain.SubmissionResult {
	log := observability.LoggerFromContext(ctx).With("session_id", sess.ID)

	tmpl, err := c.templates.GetTemplate(sess.TemplateID)
	if err != nil {
		return domain.ValidationFailure(nil, ReasonUnknownTemplate)
	}

	if errs := validation.ValidateTemplate(tmpl, sess.Answers); len(errs) > 0 {
		return domain.ValidationFailure(errs, ReasonIncomplete)
	}

	userID, err := c.identity.CurrentUser(ctx)
	if err != nil || userID == "" {
		if err != nil && !errors.Is(err, domain.ErrNotAuthenticated) {
			log.Error("identity lookup failed", "error", err)
			return domain.TransientFailure(ReasonUnavailable)
		}
		return domain.ValidationFailure(nil, ReasonSignIn)
	}

	rec := &domain.Record{
		ID:          domain.RecordIDFor(sess.ID),
		SessionID:   sess.ID,
		UserID:      userID,
		TemplateID:  tmpl.ID,
		Answers:     templateAnswers(tmpl, sess.Answers),
		CompletedAt: c.now().UTC(),
	}

	// closing the UI must not abort a write that is already on its way
	insertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	stored, err := c.records.InsertRecord(insertCtx, rec)
	if err != nil {
		log.Error("record insert failed", "record_id", rec.ID, "error", err)
		return Classify(err)
	}
	if stored.Duplicate {
		log.Info("record already stored, treating retry as success", "record_id", stored.RecordID)
	}
	return domain.Success(stored.RecordID)
}

// Classify maps a Record Store error onto a submission result.
// Unknown errors are retryable so the draft is never discarded on doubt.
func Classify(err error) domain.SubmissionResult {
	switch {
	case errors.Is(err, domain.ErrRecordRejected):
		return domain.ValidationFailure(nil, ReasonRejected)
	case errors.Is(err, domain.ErrNotAuthenticated):
		return domain.ValidationFailure(nil, ReasonSignIn)
	default:
		return domain.TransientFailure(ReasonUnavailable)
	}
}

// templateAnswers drops answers for fields the template no longer declares.
func templateAnswers(tmpl *domain.Template, answers domain.AnswerMap) domain.AnswerMap {
	out := make(domain.AnswerMap, len(answers))
	for id, v := range answers {
		if tmpl.HasField(id) && !v.IsEmpty() {
			out[id] = v
		}
	}
	return out
}

package httpadapter

import (
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/PabloGalante/farum-reflect/internal/app/reflection"
	"github.com/PabloGalante/farum-reflect/internal/domain"
	"github.com/PabloGalante/farum-reflect/internal/observability"
)

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

type openSessionRequest struct {
	TemplateID string `json:"template_id"`
	SessionID  string `json:"session_id,omitempty"`
}

type editFieldRequest struct {
	Value domain.Value `json:"value"`
}

type jumpRequest struct {
	Index *int `json:"index"`
}

type sessionResponse struct {
	ID             string           `json:"id"`
	TemplateID     string           `json:"template_id"`
	Status         string           `json:"status"`
	CurrentStep    int              `json:"current_step"`
	StepCount      int              `json:"step_count"`
	CompletedSteps []int            `json:"completed_steps"`
	Answers        domain.AnswerMap `json:"answers"`
	Errors         domain.ErrorMap  `json:"errors,omitempty"`
	FailureReason  string           `json:"failure_reason,omitempty"`
	StartedAt      time.Time        `json:"started_at"`
	LastMutatedAt  time.Time        `json:"last_mutated_at"`
	// Warning is set when the transition was applied but its draft was not saved.
	Warning string `json:"warning,omitempty"`
}

type nextResponse struct {
	Session sessionResponse `json:"session"`
	Errors  domain.ErrorMap `json:"errors,omitempty"`
}

type jumpResponse struct {
	Moved   bool            `json:"moved"`
	Session sessionResponse `json:"session"`
}

type completeResponse struct {
	Result  domain.SubmissionResult `json:"result"`
	Session sessionResponse         `json:"session"`
}

type errorResponse struct {
	Error string `json:"error"`
}

const warningDraftNotSaved = "Your latest changes could not be saved yet."

// ─────────────────────────────────────────────
// Concrete handlers
// ─────────────────────────────────────────────

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListTemplates(c echo.Context) error {
	return c.JSON(http.StatusOK, s.templates.ListTemplates())
}

func (s *Server) handleGetTemplate(c echo.Context) error {
	tmpl, err := s.templates.GetTemplate(domain.TemplateID(c.Param("id")))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tmpl)
}

func (s *Server) handleOpenSession(c echo.Context) error {
	var req openSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body")
	}
	if req.TemplateID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "template_id is required")
	}

	ctx := c.Request().Context()
	sess, err := s.engine.Open(ctx, domain.TemplateID(req.TemplateID), domain.SessionID(req.SessionID))
	warning, err := persistWarning(err)
	if err != nil {
		return err
	}
	sess = s.sessions.put(sess)

	resp := toSessionResponse(sess.Snapshot(), sess.Template())
	resp.Warning = warning
	return c.JSON(http.StatusCreated, resp)
}

func (s *Server) handleGetSession(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toSessionResponse(sess.Snapshot(), sess.Template()))
}

func (s *Server) handleEditField(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}

	var req editFieldRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "value must be a string, number, list of strings or null")
	}

	err = sess.EditField(c.Request().Context(), domain.FieldID(c.Param("field")), req.Value)
	return s.respond(c, sess, err)
}

func (s *Server) handleNext(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}

	errs, err := sess.Next(c.Request().Context())
	warning, err := persistWarning(err)
	if err != nil {
		return err
	}

	resp := nextResponse{Session: toSessionResponse(sess.Snapshot(), sess.Template()), Errors: errs}
	resp.Session.Warning = warning
	if len(errs) > 0 {
		return c.JSON(http.StatusUnprocessableEntity, resp)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handlePrevious(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	return s.respond(c, sess, sess.Previous(c.Request().Context()))
}

func (s *Server) handleJump(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}

	var req jumpRequest
	if err := c.Bind(&req); err != nil || req.Index == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "index is required")
	}

	moved, err := sess.JumpTo(c.Request().Context(), *req.Index)
	warning, err := persistWarning(err)
	if err != nil {
		return err
	}

	resp := jumpResponse{Moved: moved, Session: toSessionResponse(sess.Snapshot(), sess.Template())}
	resp.Session.Warning = warning
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleComplete(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}

	res, err := sess.Complete(c.Request().Context())
	warning, err := persistWarning(err)
	if err != nil {
		return err
	}

	resp := completeResponse{Result: res, Session: toSessionResponse(sess.Snapshot(), sess.Template())}
	resp.Session.Warning = warning

	switch res.Kind {
	case domain.ResultSuccess:
		s.sessions.retire(sess)
		return c.JSON(http.StatusOK, resp)
	case domain.ResultValidationFailure:
		return c.JSON(http.StatusUnprocessableEntity, resp)
	default:
		return c.JSON(http.StatusServiceUnavailable, resp)
	}
}

func (s *Server) handleSummary(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	return c.String(http.StatusOK, sess.Summary())
}

// ─────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────

func (s *Server) session(c echo.Context) (*reflection.Session, error) {
	return s.sessions.get(c.Request().Context(), domain.SessionID(c.Param("id")))
}

// respond answers a plain transition with the resulting session.
func (s *Server) respond(c echo.Context, sess *reflection.Session, err error) error {
	warning, err := persistWarning(err)
	if err != nil {
		return err
	}
	resp := toSessionResponse(sess.Snapshot(), sess.Template())
	resp.Warning = warning
	return c.JSON(http.StatusOK, resp)
}

// persistWarning turns a failed draft write into a warning. The transition
// itself was applied, so the request still succeeds.
func persistWarning(err error) (string, error) {
	if errors.Is(err, domain.ErrDraftPersist) {
		return warningDraftNotSaved, nil
	}
	return "", err
}

func toSessionResponse(st *domain.ReflectionSession, tmpl *domain.Template) sessionResponse {
	completed := make([]int, 0, len(st.CompletedSteps))
	for i, ok := range st.CompletedSteps {
		if ok {
			completed = append(completed, i)
		}
	}
	sort.Ints(completed)

	return sessionResponse{
		ID:             string(st.ID),
		TemplateID:     string(st.TemplateID),
		Status:         string(st.Status),
		CurrentStep:    st.CurrentStepIndex,
		StepCount:      len(tmpl.Steps),
		CompletedSteps: completed,
		Answers:        st.Answers,
		Errors:         st.Errors,
		FailureReason:  st.FailureReason,
		StartedAt:      st.StartedAt,
		LastMutatedAt:  st.LastMutatedAt,
	}
}

// statusFor maps the domain taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrTemplateNotFound), errors.Is(err, domain.ErrDraftNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrIllegalTransition), errors.Is(err, domain.ErrTemplateMismatch):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnknownField):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := statusFor(err)
	msg := err.Error()

	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		} else {
			msg = http.StatusText(code)
		}
	}
	if code == http.StatusInternalServerError {
		observability.LoggerFromContext(c.Request().Context()).Error("request failed", "error", err)
		msg = "internal server error"
	}

	_ = c.JSON(code, errorResponse{Error: msg})
}

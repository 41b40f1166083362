package httpadapter

import (
	"context"
	"errors"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/PabloGalante/farum-reflect/internal/app/reflection"
	"github.com/PabloGalante/farum-reflect/internal/domain"
	"github.com/PabloGalante/farum-reflect/internal/observability"
)

// Server exposes reflection sessions over HTTP.
type Server struct {
	echo      *echo.Echo
	engine    *reflection.Engine
	templates domain.TemplateRegistry
	sessions  *sessionSet
}

func NewServer(engine *reflection.Engine, templates domain.TemplateRegistry) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(withCORS())
	e.Use(withRequestContext)
	e.Use(withLogging)

	s := &Server{
		echo:      e,
		engine:    engine,
		templates: templates,
		sessions:  newSessionSet(engine),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	s.echo.GET("/templates", s.handleListTemplates)
	s.echo.GET("/templates/:id", s.handleGetTemplate)

	s.echo.POST("/sessions", s.handleOpenSession)

	g := s.echo.Group("/sessions/:id")
	g.GET("", s.handleGetSession)
	g.PUT("/answers/:field", s.handleEditField)
	g.POST("/next", s.handleNext)
	g.POST("/previous", s.handlePrevious)
	g.POST("/jump", s.handleJump)
	g.POST("/complete", s.handleComplete)
	g.GET("/summary", s.handleSummary)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start blocks serving on addr until Shutdown.
func (s *Server) Start(addr string) error {
	observability.Logger().Info("farum api listening", "addr", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	observability.Logger().Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// sessionSet holds the live state machines of recently used sessions. A
// session missing from the set is resumed from its draft, so evicting an
// idle one loses nothing. Submitted sessions have no draft; they move to a
// short-lived set that answers repeated completes and summaries.
type sessionSet struct {
	engine *reflection.Engine

	live      *lru.Cache[domain.SessionID, *reflection.Session]
	submitted *expirable.LRU[domain.SessionID, *reflection.Session]
}

const (
	maxLiveSessions      = 4096
	maxSubmittedSessions = 1024
	submittedSessionTTL  = 15 * time.Minute
)

func newSessionSet(engine *reflection.Engine) *sessionSet {
	live, err := lru.New[domain.SessionID, *reflection.Session](maxLiveSessions)
	if err != nil {
		// only fails on a non-positive size
		panic(err)
	}
	return &sessionSet{
		engine:    engine,
		live:      live,
		submitted: expirable.NewLRU[domain.SessionID, *reflection.Session](maxSubmittedSessions, nil, submittedSessionTTL),
	}
}

func (ss *sessionSet) get(ctx context.Context, id domain.SessionID) (*reflection.Session, error) {
	if sess, ok := ss.live.Get(id); ok {
		return sess, nil
	}
	if sess, ok := ss.submitted.Get(id); ok {
		return sess, nil
	}

	resumed, err := ss.engine.Resume(ctx, id)
	if err != nil {
		return nil, err
	}
	return ss.put(resumed), nil
}

// put registers sess unless another request got there first, in which case
// the registered one wins.
func (ss *sessionSet) put(sess *reflection.Session) *reflection.Session {
	if existing, ok, _ := ss.live.PeekOrAdd(sess.ID(), sess); ok {
		return existing
	}
	return sess
}

// retire moves a submitted session out of the live set.
func (ss *sessionSet) retire(sess *reflection.Session) {
	ss.submitted.Add(sess.ID(), sess)
	ss.live.Remove(sess.ID())
}

package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/alama/core"
	"github.com/trezcool/alama/core/course"
	"github.com/trezcool/alama/core/score"
	"github.com/trezcool/alama/core/setting"
	"github.com/trezcool/alama/core/user"
)

type (
	// Services are the domain services exposed by the API.
	Services struct {
		Users    *user.Service
		Courses  *course.Service
		Scores   *score.Service
		Settings *setting.Service
	}

	Server struct {
		conf       *core.Config
		logger     core.Logger
		validate   *validator.Validate
		translator ut.Translator
		svcs       Services
		app        *echo.Echo
		jwtConfig  middleware.JWTConfig

		shutdown chan os.Signal
		errors   chan error
	}
)

func NewServer(
	conf *core.Config,
	logger core.Logger,
	validate *validator.Validate,
	translator ut.Translator,
	svcs Services,
) *Server {
	s := &Server{
		conf:       conf,
		logger:     logger,
		validate:   validate,
		translator: translator,
		svcs:       svcs,
		app:        echo.New(),
		jwtConfig:  newJWTConfig(conf),
		shutdown:   make(chan os.Signal, 1),
		errors:     make(chan error, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.conf.TestMode {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(s.conf.Debug || s.conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.logger, s.translator, s.signalShutdown)
	s.app.Debug = s.conf.Debug && !s.conf.TestMode

	s.app.GET("/", s.home)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(s.jwtConfig)
	auth := contextUserMiddleware(s.svcs.Users)

	registerUserAPI(v1, s.svcs.Users, jwt, auth)
	registerCourseAPI(v1, s.svcs.Courses, s.svcs.Scores, jwt, auth)
	registerScoreAPI(v1, s.svcs.Scores, s.svcs.Courses, jwt, auth)
	registerSettingAPI(v1, s.svcs.Settings, jwt, auth)
}

// Start starts the HTTP server. Errors are reported on Errors.
func (s *Server) Start() {
	if err := s.app.Start(s.conf.Server.Addr); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

// Errors reports the errors preventing the server from serving.
func (s *Server) Errors() <-chan error {
	return s.errors
}

// ShutdownSignal is notified on interrupt and whenever a core.shutdown error is caught.
func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default: // already signaled
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.conf.AppName+" API!")
}

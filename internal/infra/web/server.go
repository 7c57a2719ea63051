// internal/infra/web/server.go
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"zvit_agent/internal/app"
	"zvit_agent/internal/domain/push"
	"zvit_agent/internal/domain/reminder"
	"zvit_agent/internal/domain/report"
	"zvit_agent/internal/domain/session"
)

const heartbeatInterval = 30 * time.Second

// Routers and services the server exposes. Nil services leave their routes
// unregistered.

type Router interface {
	Intercepts(method string) bool
	Fetch(ctx context.Context, target *url.URL, header http.Header) (*app.Result, error)
}

type PushHandler interface {
	HandlePush(ctx context.Context, raw []byte) (push.Notification, error)
}

type ClickHandler interface {
	HandleClickByID(ctx context.Context, id, action string) error
}

type NotificationLister interface {
	List() []push.Notification
}

type ReportSubmitter interface {
	Submit(ctx context.Context, r report.Report) (app.Outcome, error)
}

type PendingLister interface {
	List(ctx context.Context) ([]app.QueuedReport, error)
}

type ReminderReader interface {
	All(ctx context.Context) (reminder.Reminders, error)
	Get(ctx context.Context, groupID string) (reminder.Urgent, bool, error)
}

type NextReporter interface {
	NextReport(ctx context.Context, groupID string, now time.Time) (string, bool, error)
}

type Authenticator interface {
	Login(ctx context.Context, phone, password string) (*session.Session, error)
	Logout(ctx context.Context) error
}

type Registrar interface {
	Register(ctx context.Context, name, phone, password string) error
	Verify(ctx context.Context, code string) (*session.Session, error)
}

type AccountManager interface {
	Account(ctx context.Context) (app.Account, error)
	SetNotificationsEnabled(ctx context.Context, enabled bool) error
	RegisterPushToken(ctx context.Context, token string) error
}

type InstallBanners interface {
	DismissInstall(ctx context.Context, variant string) error
	InstallDismissed(ctx context.Context, variant string) bool
}

type StatusSource interface {
	Status(ctx context.Context) (app.Status, error)
}

type SyncTrigger interface {
	Fire(ctx context.Context) ([]string, error)
}

type Services struct {
	Router        Router
	Push          PushHandler
	Clicks        ClickHandler
	Notifications NotificationLister
	Reports       ReportSubmitter
	Pending       PendingLister
	Reminders     ReminderReader
	Schedule      NextReporter
	Auth          Authenticator
	Signup        Registrar
	Account       AccountManager
	Banners       InstallBanners
	Status        StatusSource
	Sync          SyncTrigger
	Metrics       http.Handler
}

type ServerConfig struct {
	ListenAddr string
	BackendURL string // non-GET requests outside /agent are proxied here
}

// Server is the local HTTP surface of the agent: the event stream windows
// connect to, the agent API, and the routed origin.
type Server struct {
	echo *echo.Echo
	cfg  ServerConfig
	svc  Services
	hub  *Hub
	log  *logrus.Entry
	now  func() time.Time
}

func NewServer(cfg ServerConfig, svc Services, hub *Hub, log *logrus.Entry) (*Server, error) {
	backend, err := url.Parse(cfg.BackendURL)
	if err != nil || backend.Host == "" {
		return nil, fmt.Errorf("invalid backend URL %q", cfg.BackendURL)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{echo: e, cfg: cfg, svc: svc, hub: hub, log: log, now: time.Now}

	e.Use(middleware.Recover())
	e.Use(s.requestLogger())
	e.Use(middleware.ProxyWithConfig(middleware.ProxyConfig{
		Skipper:  s.handledLocally,
		Balancer: middleware.NewRoundRobinBalancer([]*middleware.ProxyTarget{{URL: backend}}),
	}))

	s.routes()
	return s, nil
}

func (s *Server) routes() {
	g := s.echo.Group("/agent")

	if s.hub != nil {
		g.GET("/events", s.streamEvents)
		g.PUT("/windows/:id", s.navigateWindow)
	}
	if s.svc.Push != nil {
		g.POST("/push", s.receivePush)
	}
	if s.svc.Notifications != nil {
		g.GET("/notifications", s.listNotifications)
	}
	if s.svc.Clicks != nil {
		g.POST("/notifications/:id/click", s.clickNotification)
	}
	if s.svc.Reports != nil {
		g.POST("/reports", s.submitReport)
	}
	if s.svc.Pending != nil {
		g.GET("/reports/pending", s.listPending)
	}
	if s.svc.Reminders != nil {
		g.GET("/reminders", s.listReminders)
		g.GET("/reminders/:groupId", s.getReminder)
	}
	if s.svc.Schedule != nil {
		g.GET("/groups/:groupId/next-report", s.nextReport)
	}
	if s.svc.Auth != nil {
		g.POST("/login", s.login)
		g.POST("/logout", s.logout)
	}
	if s.svc.Signup != nil {
		g.POST("/register", s.register)
		g.POST("/verify", s.verify)
	}
	if s.svc.Account != nil {
		g.GET("/account", s.account)
		g.PUT("/notifications", s.setNotifications)
		g.POST("/push-token", s.registerPushToken)
	}
	if s.svc.Banners != nil {
		g.GET("/install-dismissed", s.installDismissed)
		g.GET("/install-dismissed/:variant", s.installDismissed)
		g.POST("/install-dismissed", s.dismissInstall)
		g.POST("/install-dismissed/:variant", s.dismissInstall)
	}
	if s.svc.Status != nil {
		g.GET("/status", s.status)
	}
	if s.svc.Sync != nil {
		g.POST("/sync", s.triggerSync)
	}
	if s.svc.Metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.svc.Metrics))
	}
	if s.svc.Router != nil {
		s.echo.GET("/*", s.routed)
	}
}

// handledLocally skips the backend proxy for the agent API and for requests
// the cache router answers.
func (s *Server) handledLocally(c echo.Context) bool {
	p := c.Request().URL.Path
	if p == "/agent" || strings.HasPrefix(p, "/agent/") || p == "/metrics" {
		return true
	}
	return s.svc.Router != nil && s.svc.Router.Intercepts(c.Request().Method)
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			s.log.WithFields(logrus.Fields{
				"method":   c.Request().Method,
				"path":     c.Request().URL.Path,
				"status":   c.Response().Status,
				"duration": time.Since(start).String(),
			}).Debug("Request handled")
			return nil
		}
	}
}

// Handler exposes the server for tests and embedding.
func (s *Server) Handler() http.Handler { return s.echo }

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.log.WithField("addr", s.cfg.ListenAddr).Info("HTTP server listening")
	if err := s.echo.Start(s.cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

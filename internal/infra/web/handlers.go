// internal/infra/web/handlers.go
package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"zvit_agent/internal/app"
	"zvit_agent/internal/domain/report"
	"zvit_agent/internal/domain/session"
	"zvit_agent/internal/infra/api"
)

// envelope mirrors the backend's response wrapper so pages can treat agent
// and backend responses alike.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func ok(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, envelope{Success: true, Data: data})
}

func fail(c echo.Context, status int, msg string) error {
	return c.JSON(status, envelope{Success: false, Message: msg})
}

// failFor maps service errors to HTTP responses. Backend application errors
// keep their status and message.
func (s *Server) failFor(c echo.Context, err error) error {
	var appErr *api.AppError
	switch {
	case errors.As(err, &appErr):
		return fail(c, appErr.Status, appErr.Message)
	case errors.Is(err, api.ErrSessionExpired), errors.Is(err, session.ErrNoSession):
		return fail(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, report.ErrGroupRequired), errors.Is(err, report.ErrResponseRequired),
		errors.Is(err, session.ErrInvalidPhone), errors.Is(err, app.ErrPasswordTooShort),
		errors.Is(err, app.ErrNameRequired), errors.Is(err, app.ErrCodeRequired),
		errors.Is(err, app.ErrPushTokenRequired):
		return fail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrNoPendingVerification):
		return fail(c, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrConnectivity), errors.Is(err, api.ErrTransport):
		return fail(c, http.StatusServiceUnavailable, err.Error())
	}
	s.log.WithError(err).WithField("path", c.Request().URL.Path).Error("Request failed")
	return fail(c, http.StatusInternalServerError, "internal error")
}

// streamEvents is the window's event stream. The query parameter url is the
// page the window shows.
func (s *Server) streamEvents(c echo.Context) error {
	w := s.hub.Register(c.QueryParam("url"))
	defer s.hub.Unregister(w.ID())

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)

	if err := writeEvent(res, Event{Name: EventHello, Data: map[string]string{"id": w.ID()}}); err != nil {
		return nil
	}

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-w.Events():
			if err := writeEvent(res, ev); err != nil {
				s.log.WithError(err).WithField("window_id", w.ID()).Debug("Event stream closed")
				return nil
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(res, ": heartbeat\n\n"); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}

func writeEvent(res *echo.Response, ev Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(res, "event: %s\ndata: %s\n\n", ev.Name, data); err != nil {
		return err
	}
	res.Flush()
	return nil
}

func (s *Server) navigateWindow(c echo.Context) error {
	var body struct {
		URL string `json:"url"`
	}
	if err := c.Bind(&body); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	if !s.hub.Navigate(c.Param("id"), body.URL) {
		return fail(c, http.StatusNotFound, "window not found")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) receivePush(c echo.Context) error {
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return fail(c, http.StatusBadRequest, "failed to read push payload")
	}
	n, err := s.svc.Push.HandlePush(c.Request().Context(), raw)
	if err != nil {
		return s.failFor(c, err)
	}
	return c.JSON(http.StatusAccepted, envelope{Success: true, Data: n})
}

func (s *Server) listNotifications(c echo.Context) error {
	return ok(c, s.svc.Notifications.List())
}

func (s *Server) clickNotification(c echo.Context) error {
	var body struct {
		Action string `json:"action"`
	}
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&body); err != nil {
			return fail(c, http.StatusBadRequest, "invalid body")
		}
	}
	err := s.svc.Clicks.HandleClickByID(c.Request().Context(), c.Param("id"), body.Action)
	if errors.Is(err, app.ErrNotificationNotFound) {
		return fail(c, http.StatusNotFound, err.Error())
	}
	if err != nil {
		return s.failFor(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) submitReport(c echo.Context) error {
	var r report.Report
	if err := c.Bind(&r); err != nil {
		return fail(c, http.StatusBadRequest, "invalid report")
	}
	outcome, err := s.svc.Reports.Submit(c.Request().Context(), r)
	if err != nil {
		return s.failFor(c, err)
	}
	status := http.StatusOK
	if outcome == app.OutcomeSavedForSync {
		status = http.StatusAccepted
	}
	return c.JSON(status, envelope{Success: true, Data: map[string]string{"outcome": string(outcome)}})
}

// pendingView leaves out the captured token.
type pendingView struct {
	Key       string    `json:"key"`
	GroupID   string    `json:"groupId"`
	Kind      string    `json:"kind"`
	Endpoint  string    `json:"endpoint"`
	CreatedAt time.Time `json:"createdAt"`
}

func (s *Server) listPending(c echo.Context) error {
	queued, err := s.svc.Pending.List(c.Request().Context())
	if err != nil {
		return s.failFor(c, err)
	}
	views := make([]pendingView, 0, len(queued))
	for _, q := range queued {
		views = append(views, pendingView{
			Key:       q.Key,
			GroupID:   q.Report.GroupID,
			Kind:      string(q.Report.Kind()),
			Endpoint:  q.Endpoint,
			CreatedAt: q.CreatedAt,
		})
	}
	return ok(c, views)
}

func (s *Server) listReminders(c echo.Context) error {
	all, err := s.svc.Reminders.All(c.Request().Context())
	if err != nil {
		return s.failFor(c, err)
	}
	return ok(c, all)
}

func (s *Server) getReminder(c echo.Context) error {
	u, found, err := s.svc.Reminders.Get(c.Request().Context(), c.Param("groupId"))
	if err != nil {
		return s.failFor(c, err)
	}
	if !found {
		return fail(c, http.StatusNotFound, "no urgent reminder for this group")
	}
	return ok(c, u)
}

func (s *Server) nextReport(c echo.Context) error {
	next, found, err := s.svc.Schedule.NextReport(c.Request().Context(), c.Param("groupId"), s.now())
	if errors.Is(err, app.ErrGroupNotFound) {
		return fail(c, http.StatusNotFound, err.Error())
	}
	if err != nil {
		return s.failFor(c, err)
	}
	if !found {
		return ok(c, map[string]any{"nextReport": nil})
	}
	return ok(c, map[string]string{"nextReport": next})
}

func (s *Server) login(c echo.Context) error {
	var body struct {
		Phone    string `json:"phone"`
		Password string `json:"password"`
	}
	if err := c.Bind(&body); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	sess, err := s.svc.Auth.Login(c.Request().Context(), body.Phone, body.Password)
	if err != nil {
		return s.failFor(c, err)
	}
	return ok(c, newUserView(sess.User))
}

type userView struct {
	session.User
	DisplayPhone string `json:"displayPhone"`
}

func newUserView(u session.User) userView {
	return userView{User: u, DisplayPhone: session.FormatPhone(u.Phone)}
}

func (s *Server) register(c echo.Context) error {
	var body struct {
		Name     string `json:"name"`
		Phone    string `json:"phone"`
		Password string `json:"password"`
	}
	if err := c.Bind(&body); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	if err := s.svc.Signup.Register(c.Request().Context(), body.Name, body.Phone, body.Password); err != nil {
		return s.failFor(c, err)
	}
	return c.JSON(http.StatusAccepted, envelope{Success: true, Message: "verification code sent"})
}

func (s *Server) verify(c echo.Context) error {
	var body struct {
		Code string `json:"code"`
	}
	if err := c.Bind(&body); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	sess, err := s.svc.Signup.Verify(c.Request().Context(), body.Code)
	if err != nil {
		return s.failFor(c, err)
	}
	return ok(c, newUserView(sess.User))
}

func (s *Server) account(c echo.Context) error {
	acc, err := s.svc.Account.Account(c.Request().Context())
	if err != nil {
		return s.failFor(c, err)
	}
	return ok(c, acc)
}

func (s *Server) setNotifications(c echo.Context) error {
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := c.Bind(&body); err != nil || body.Enabled == nil {
		return fail(c, http.StatusBadRequest, "enabled is required")
	}
	if err := s.svc.Account.SetNotificationsEnabled(c.Request().Context(), *body.Enabled); err != nil {
		return s.failFor(c, err)
	}
	return ok(c, map[string]bool{"enabled": *body.Enabled})
}

func (s *Server) registerPushToken(c echo.Context) error {
	var body struct {
		Token string `json:"token"`
	}
	if err := c.Bind(&body); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	if err := s.svc.Account.RegisterPushToken(c.Request().Context(), body.Token); err != nil {
		return s.failFor(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// installDismissed and dismissInstall serve both the generic banner and the
// per-platform variants.
func (s *Server) installDismissed(c echo.Context) error {
	dismissed := s.svc.Banners.InstallDismissed(c.Request().Context(), c.Param("variant"))
	return ok(c, map[string]bool{"dismissed": dismissed})
}

func (s *Server) dismissInstall(c echo.Context) error {
	if err := s.svc.Banners.DismissInstall(c.Request().Context(), c.Param("variant")); err != nil {
		return s.failFor(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) logout(c echo.Context) error {
	if err := s.svc.Auth.Logout(c.Request().Context()); err != nil {
		return s.failFor(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) status(c echo.Context) error {
	st, err := s.svc.Status.Status(c.Request().Context())
	if err != nil {
		return s.failFor(c, err)
	}
	return ok(c, st)
}

func (s *Server) triggerSync(c echo.Context) error {
	ran, err := s.svc.Sync.Fire(c.Request().Context())
	if err != nil {
		s.log.WithError(err).Warn("Manual sync finished with errors")
		return c.JSON(http.StatusOK, envelope{Success: false, Data: map[string]any{"ran": ran}, Message: err.Error()})
	}
	return ok(c, map[string]any{"ran": ran})
}

// routed answers GET requests through the cache router.
func (s *Server) routed(c echo.Context) error {
	req := c.Request()
	res, err := s.svc.Router.Fetch(req.Context(), req.URL, req.Header)
	if errors.Is(err, app.ErrOffline) {
		return c.String(http.StatusServiceUnavailable, "Offline")
	}
	if err != nil {
		return s.failFor(c, err)
	}

	s.log.WithFields(logrus.Fields{
		"path":     req.URL.Path,
		"strategy": res.Strategy,
		"source":   res.Source,
	}).Debug("Routed request")

	h := c.Response().Header()
	for k, vs := range res.Entry.Header {
		if strings.EqualFold(k, echo.HeaderContentLength) {
			continue
		}
		for _, v := range vs {
			h.Add(k, v)
		}
	}
	h.Set("X-Zvit-Source", res.Source)
	c.Response().WriteHeader(res.Entry.Status)
	_, err = c.Response().Write(res.Entry.Body)
	return err
}

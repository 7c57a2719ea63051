// internal/infra/web/hub.go
package web

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"zvit_agent/internal/domain/push"
)

const windowBuffer = 16

// SSE event names sent to windows.
const (
	EventHello             = "hello"
	EventMessage           = "message"
	EventFocus             = "focus"
	EventNotification      = "notification"
	EventNotificationClose = "notification-close"
	EventControllerChange  = "controllerchange"
)

var ErrWindowBusy = errors.New("window is not reading its event stream")

// Event is one server-sent event.
type Event struct {
	Name string
	Data any
}

// Window is a page connected to the event stream.
type Window struct {
	id     string
	events chan Event

	mu         sync.RWMutex
	url        string
	controlled bool
}

func (w *Window) ID() string { return w.id }

func (w *Window) URL() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.url
}

func (w *Window) setURL(u string) {
	w.mu.Lock()
	w.url = u
	w.mu.Unlock()
}

func (w *Window) isControlled() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.controlled
}

// Events is the stream the window's SSE connection drains.
func (w *Window) Events() <-chan Event { return w.events }

func (w *Window) send(ev Event) error {
	select {
	case w.events <- ev:
		return nil
	default:
		return ErrWindowBusy
	}
}

func (w *Window) PostMessage(_ context.Context, msg push.Message) error {
	return w.send(Event{Name: EventMessage, Data: msg})
}

func (w *Window) Focus(context.Context) error {
	return w.send(Event{Name: EventFocus, Data: map[string]string{"id": w.id}})
}

// WindowOpener opens a new window at an absolute URL.
type WindowOpener interface {
	Open(ctx context.Context, url string) error
}

// Hub tracks connected windows. Windows that connect before the agent has
// claimed them are uncontrolled.
type Hub struct {
	opener    WindowOpener
	publicURL string
	log       *logrus.Entry

	mu      sync.RWMutex
	windows []*Window
	extra   []push.Client
	claimed bool
}

func NewHub(opener WindowOpener, publicURL string, log *logrus.Entry) *Hub {
	return &Hub{opener: opener, publicURL: strings.TrimRight(publicURL, "/"), log: log}
}

// AddClient adds an in-process window that is always matched.
func (h *Hub) AddClient(c push.Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.extra = append(h.extra, c)
}

func (h *Hub) Register(windowURL string) *Window {
	h.mu.Lock()
	defer h.mu.Unlock()
	w := &Window{
		id:         uuid.NewString(),
		url:        windowURL,
		controlled: h.claimed,
		events:     make(chan Event, windowBuffer),
	}
	h.windows = append(h.windows, w)
	h.log.WithFields(logrus.Fields{"window_id": w.id, "url": windowURL}).Debug("Window connected")
	return w
}

func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, w := range h.windows {
		if w.id == id {
			h.windows = append(h.windows[:i], h.windows[i+1:]...)
			h.log.WithField("window_id", id).Debug("Window disconnected")
			return
		}
	}
}

// Navigate records a window's new URL.
func (h *Hub) Navigate(id, windowURL string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, w := range h.windows {
		if w.id == id {
			w.setURL(windowURL)
			return true
		}
	}
	return false
}

func (h *Hub) MatchAll(_ context.Context, opts push.MatchOptions) ([]push.Client, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []push.Client
	for _, w := range h.windows {
		if opts.IncludeUncontrolled || w.isControlled() {
			out = append(out, w)
		}
	}
	return append(out, h.extra...), nil
}

// OpenWindow opens url, resolved against the agent's public URL.
func (h *Hub) OpenWindow(ctx context.Context, target string) error {
	abs := target
	if u, err := url.Parse(target); err != nil || !u.IsAbs() {
		abs = h.publicURL + "/" + strings.TrimLeft(target, "/")
	}
	h.log.WithField("url", abs).Info("Opening window")
	return h.opener.Open(ctx, abs)
}

// Claim puts every connected window under the agent's control.
func (h *Hub) Claim(context.Context) error {
	h.mu.Lock()
	h.claimed = true
	windows := append([]*Window(nil), h.windows...)
	h.mu.Unlock()

	for _, w := range windows {
		w.mu.Lock()
		changed := !w.controlled
		w.controlled = true
		w.mu.Unlock()
		if changed {
			_ = w.send(Event{Name: EventControllerChange, Data: map[string]string{"id": w.id}})
		}
	}
	return nil
}

func (h *Hub) broadcast(ev Event) {
	h.mu.RLock()
	windows := append([]*Window(nil), h.windows...)
	h.mu.RUnlock()
	for _, w := range windows {
		if err := w.send(ev); err != nil {
			h.log.WithError(err).WithField("window_id", w.id).Warn("Dropped event for window")
		}
	}
}

// The hub is also a notification backend: windows render the
// notifications they receive.

func (h *Hub) Name() string { return "windows" }

func (h *Hub) Deliver(_ context.Context, n push.Notification) error {
	h.broadcast(Event{Name: EventNotification, Data: n})
	return nil
}

func (h *Hub) Retract(_ context.Context, id string) error {
	h.broadcast(Event{Name: EventNotificationClose, Data: map[string]string{"id": id}})
	return nil
}

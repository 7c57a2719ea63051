package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zvit_agent/internal/domain/push"
	"zvit_agent/internal/infra/logger"
)

func newClickRouter(windows ...push.Client) (*ClickRouter, *fakeClients, *fakeDisplay, *events) {
	ev := &events{}
	for _, w := range windows {
		w.(*fakeWindow).ev = ev
	}
	clients := &fakeClients{windows: windows, ev: ev}
	display := newFakeDisplay(ev)
	return NewClickRouter(clients, display, display, "/app", logger.Discard(), nil), clients, display, ev
}

func TestClickRouter_NoWindowOpensDataURL(t *testing.T) {
	r, clients, _, ev := newClickRouter()
	n := push.Notification{ID: "n1", Data: push.Data{URL: "/app#group/g1"}}

	require.NoError(t, r.HandleClick(context.Background(), push.Click{Notification: n, Action: push.ActionOpen}))
	assert.Equal(t, []string{"/app#group/g1"}, clients.opened)
	assert.Equal(t, []string{"close:n1", "open:/app#group/g1"}, ev.all())
}

func TestClickRouter_NoWindowDefaultsToRoot(t *testing.T) {
	r, clients, _, _ := newClickRouter(&fakeWindow{id: "w", url: "http://127.0.0.1:8088/login"})

	require.NoError(t, r.HandleClick(context.Background(), push.Click{Notification: push.Notification{ID: "n1"}}))
	assert.Equal(t, []string{"/app"}, clients.opened)
}

func TestClickRouter_DismissOnlyCloses(t *testing.T) {
	for _, action := range []string{push.ActionDismiss, push.ActionClose} {
		r, clients, display, ev := newClickRouter(&fakeWindow{id: "w", url: "http://x/app"})

		require.NoError(t, r.HandleClick(context.Background(), push.Click{
			Notification: push.Notification{ID: "n1", Data: push.Data{URL: "/app"}},
			Action:       action,
		}))
		assert.Equal(t, []string{"n1"}, display.closed, action)
		assert.Empty(t, clients.opened, action)
		assert.Equal(t, []string{"close:n1"}, ev.all(), action)
	}
}

func TestClickRouter_FocusesMainWindow(t *testing.T) {
	login := &fakeWindow{id: "login", url: "http://x/login"}
	main := &fakeWindow{id: "main", url: "http://x/app?tab=groups"}
	r, clients, _, ev := newClickRouter(login, main)

	data := push.Data{URL: "/app", GroupID: "g1", Type: push.TypeUrgentReport, Deadline: "2025-07-01T12:00:00"}
	require.NoError(t, r.HandleClick(context.Background(), push.Click{Notification: push.Notification{ID: "n1", Data: data}}))

	assert.Empty(t, clients.opened)
	assert.Equal(t, []string{
		"close:n1",
		"post:main:NOTIFICATION_CLICK",
		"post:main:URGENT_REPORT_RECEIVED",
		"focus:main",
	}, ev.all())
	assert.Equal(t, data, main.messages[0].Data)
	assert.Empty(t, login.messages)
}

func TestClickRouter_HandleClickByID(t *testing.T) {
	r, clients, display, _ := newClickRouter()
	ctx := context.Background()

	assert.ErrorIs(t, r.HandleClickByID(ctx, "missing", ""), ErrNotificationNotFound)

	require.NoError(t, display.Show(ctx, push.Notification{ID: "n2", Data: push.Data{URL: "/app#reports"}}))
	require.NoError(t, r.HandleClickByID(ctx, "n2", push.ActionOpen))
	assert.Equal(t, []string{"/app#reports"}, clients.opened)

	_, still := display.Get("n2")
	assert.False(t, still)
}

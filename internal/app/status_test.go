package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zvit_agent/internal/domain/session"
	"zvit_agent/internal/infra/logger"
)

type fixedState struct {
	online bool
	tags   []string
}

func (s fixedState) Online() bool { return s.online }

func (s fixedState) Tags(context.Context) ([]string, error) { return s.tags, nil }

func TestStatusService_Status(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	sessions, _ := newSessionStore(t)
	queue := NewOfflineQueue(store, &fakeRegistrar{}, fullCaps, logger.Discard(), nil)
	svc := NewStatusService(fixedState{online: true, tags: []string{"sync-reports"}}, queue,
		NewReminderService(store.LocalStorage(), logger.Discard()), sessions)

	st, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Online)
	assert.Equal(t, []string{"sync-reports"}, st.SyncTags)
	assert.Empty(t, st.Phone)

	require.NoError(t, sessions.Save(ctx, &session.Session{AuthToken: "jwt", User: session.User{Phone: "+380671234567"}}))
	st, err = svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "+380 67 123 45 67", st.Phone)
}

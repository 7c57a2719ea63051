package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zvit_agent/internal/domain/group"
	"zvit_agent/internal/domain/push"
	"zvit_agent/internal/domain/schedule"
	"zvit_agent/internal/infra/logger"
)

type fakeGroupSource struct {
	groups []group.Group
	err    error
}

func (s *fakeGroupSource) Groups(context.Context) ([]group.Group, error) {
	return s.groups, s.err
}

type fakePresenter struct {
	payloads []push.Payload
}

func (p *fakePresenter) Present(_ context.Context, payload push.Payload) (push.Notification, error) {
	p.payloads = append(p.payloads, payload)
	return push.Compose(payload, time.Now()), nil
}

var testGroups = []group.Group{
	{ID: "fixed", Name: "Взвод 1", Schedule: schedule.Config{
		ScheduleType: schedule.TypeFixedTimes,
		FixedTimes:   []string{"08:00", "14:00", "20:00"},
	}},
	{ID: "interval", Name: "Взвод 2", Schedule: schedule.Config{
		ScheduleType:      schedule.TypeInterval,
		IntervalStartTime: "06:00",
		IntervalMinutes:   90,
	}},
}

func newScheduleService(t *testing.T) (*ScheduleService, *fakeGroupSource, *fakePresenter) {
	t.Helper()
	source := &fakeGroupSource{groups: testGroups}
	presenter := &fakePresenter{}
	return NewScheduleService(source, openStore(t).LocalStorage(), presenter, logger.Discard()), source, presenter
}

// kyiv returns the UTC instant of a summer-time Kyiv wall clock on 2025-07-01.
func kyiv(hhmm string) time.Time {
	t, err := schedule.ParseKyivTimestamp("2025-07-01T" + hhmm + ":00")
	if err != nil {
		panic(err)
	}
	return t
}

func TestScheduleService_GroupsBeforeRefresh(t *testing.T) {
	s, _, _ := newScheduleService(t)
	groups, err := s.Groups(context.Background())
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestScheduleService_RefreshKeepsLastGoodCopy(t *testing.T) {
	ctx := context.Background()
	s, source, _ := newScheduleService(t)

	_, err := s.RefreshGroups(ctx)
	require.NoError(t, err)

	source.err = errors.New("offline")
	_, err = s.RefreshGroups(ctx)
	assert.Error(t, err)

	groups, err := s.Groups(ctx)
	require.NoError(t, err)
	assert.Equal(t, testGroups, groups)
}

func TestScheduleService_CheckDue(t *testing.T) {
	ctx := context.Background()
	s, _, presenter := newScheduleService(t)
	_, err := s.RefreshGroups(ctx)
	require.NoError(t, err)

	shown, err := s.CheckDue(ctx, kyiv("14:00"))
	require.NoError(t, err)
	assert.Equal(t, 1, shown)
	require.Len(t, presenter.payloads, 1)
	n := push.Compose(presenter.payloads[0], time.Now())
	assert.Equal(t, "⏰ Час звітувати!", n.Title)
	assert.Equal(t, "Взвод 1 - надішліть свій звіт", n.Body)
	assert.Equal(t, "reminder-fixed", n.Tag)
	assert.Equal(t, push.TypeReminder, n.Data.Type)

	// 07:30 is an interval boundary, 07:31 is nothing.
	shown, err = s.CheckDue(ctx, kyiv("07:30"))
	require.NoError(t, err)
	assert.Equal(t, 1, shown)
	assert.Equal(t, "interval", presenter.payloads[1].Data["groupId"])

	shown, err = s.CheckDue(ctx, kyiv("07:31"))
	require.NoError(t, err)
	assert.Zero(t, shown)
}

func TestScheduleService_NextReport(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newScheduleService(t)
	_, err := s.RefreshGroups(ctx)
	require.NoError(t, err)

	tests := []struct {
		group string
		at    string
		want  string
	}{
		{"fixed", "09:00", "14:00"},
		{"fixed", "21:00", "08:00"},
		{"interval", "07:00", "07:30"},
		{"interval", "05:00", "06:00"},
	}
	for _, tt := range tests {
		next, ok, err := s.NextReport(ctx, tt.group, kyiv(tt.at))
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, tt.want, next, "%s at %s", tt.group, tt.at)
	}

	_, _, err = s.NextReport(ctx, "nope", time.Now())
	assert.ErrorIs(t, err, ErrGroupNotFound)
}

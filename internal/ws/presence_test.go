package ws

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"syncup-service/internal/mocks"
)

func TestPresencePersistsOnlyOnTransitions(t *testing.T) {
	hub := NewHub()
	users := new(mocks.UserRepositoryMock)
	tracker := NewPresenceTracker(hub, users)

	users.On("SetOnline", mock.Anything, int64(1), true).Return(nil).Once()
	users.On("SetOnline", mock.Anything, int64(1), false).Return(nil).Once()

	first := testConn(1)
	second := testConn(1)

	tracker.ConnectionOpened(context.Background(), first)
	tracker.ConnectionOpened(context.Background(), second)

	tracker.ConnectionClosed(context.Background(), first)
	tracker.ConnectionClosed(context.Background(), second)

	users.AssertExpectations(t)
}

func TestPresenceBroadcastsDespitePersistFailure(t *testing.T) {
	hub := NewHub()
	users := new(mocks.UserRepositoryMock)
	tracker := NewPresenceTracker(hub, users)

	watcher := testConn(2)
	users.On("SetOnline", mock.Anything, int64(2), true).Return(nil).Once()
	tracker.ConnectionOpened(context.Background(), watcher)
	drain(t, watcher)

	users.On("SetOnline", mock.Anything, int64(1), true).Return(errors.New("db down")).Once()
	tracker.ConnectionOpened(context.Background(), testConn(1))

	events := drain(t, watcher)
	require.Len(t, events, 1)
	require.NotNil(t, events[0].Presence)
	require.True(t, events[0].Presence.IsOnline)
}

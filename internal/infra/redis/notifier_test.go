package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu    sync.Mutex
	games []string
}

func (r *recordingNotifier) Notify(_ context.Context, gameID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.games = append(r.games, gameID)
	return nil
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.games)
}

func TestNotifierBridgesInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	publisher := NewNotifier(newClient(mr), "test:changed", nil)
	listener := NewNotifier(newClient(mr), "test:changed", nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	local := &recordingNotifier{}
	done := make(chan error, 1)
	go func() { done <- listener.Listen(ctx, local) }()

	require.Eventually(t, func() bool {
		return len(mr.PubSubChannels("test:changed")) == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, publisher.Notify(ctx, "g1"))
	require.Eventually(t, func() bool { return local.count() == 1 }, time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

package inbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/livinlefevreloca/msgaudit/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestInbox_SendReceive(t *testing.T) {
	ib := New[int](2, 0, nil)
	ctx := context.Background()

	require.NoError(t, ib.Send(ctx, 1))
	require.NoError(t, ib.Send(ctx, 2))
	assert.Equal(t, 2, ib.Len())

	v, ok, err := ib.Receive(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	v, ok = ib.TryReceive()
	assert.True(t, ok)
	assert.Equal(t, 2, v)

	_, ok = ib.TryReceive()
	assert.False(t, ok)

	stats := ib.GetStats()
	assert.Equal(t, int64(2), stats.TotalSent)
	assert.Equal(t, int64(2), stats.TotalReceived)
	assert.Equal(t, 2, stats.MaxDepthSeen)
	assert.Equal(t, 0, stats.CurrentDepth)
}

func TestInbox_SendHonorsContext(t *testing.T) {
	ib := New[string](1, 0, nil)
	require.NoError(t, ib.Send(context.Background(), "fill"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := ib.Send(ctx, "blocked")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int64(1), ib.GetStats().TotalSent)
}

func TestInbox_SlowSendIsLogged(t *testing.T) {
	logger := testutil.NewTestLogger()
	ib := New[int](0, 10*time.Millisecond, logger.Logger())

	done := make(chan error)
	go func() { done <- ib.Send(context.Background(), 7) }()

	time.Sleep(50 * time.Millisecond)
	v, ok, err := ib.Receive(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 7, v)
	require.NoError(t, <-done)

	assert.True(t, logger.HasWarning())
	assert.Equal(t, int64(1), ib.GetStats().SlowSends)
}

func TestInbox_ReceiveAfterClose(t *testing.T) {
	ib := New[int](1, 0, nil)
	require.NoError(t, ib.Send(context.Background(), 1))
	ib.Close()

	v, ok, err := ib.Receive(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok, err = ib.Receive(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInbox_ReceiveHonorsContext(t *testing.T) {
	ib := New[int](1, 0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok, err := ib.Receive(ctx)
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
}

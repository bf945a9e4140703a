package bus

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/tutorgraph-backend/internal/platform/logger"
	"github.com/yungbote/tutorgraph-backend/internal/realtime"
)

func TestMemoryBusFansOut(t *testing.T) {
	b := NewMemoryBus()
	var got []string
	require.NoError(t, b.StartForwarder(context.Background(), func(ev realtime.GraphEvent) {
		got = append(got, ev.ID)
	}))
	require.NoError(t, b.Publish(context.Background(), realtime.GraphEvent{Type: realtime.EventMergeApplied, ID: "m1"}))
	assert.Equal(t, []string{"m1"}, got)
	assert.Len(t, b.Published(), 1)
}

func TestRedisBusRoundTrip(t *testing.T) {
	addr := strings.TrimSpace(os.Getenv("TEST_REDIS_ADDR"))
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis integration tests")
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })

	b, err := NewRedisBus(logger.Nop(), rdb, "tutorgraph.test")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan realtime.GraphEvent, 1)
	require.NoError(t, b.StartForwarder(ctx, func(ev realtime.GraphEvent) { got <- ev }))
	require.NoError(t, b.Publish(ctx, realtime.GraphEvent{Type: realtime.EventChangesetApplied, ID: "cs1"}))

	select {
	case ev := <-got:
		assert.Equal(t, "cs1", ev.ID)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

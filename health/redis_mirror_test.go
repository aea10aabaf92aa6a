package health

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pokt-network/poktroll/pkg/polylog/polyzero"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

const (
	testMirrorKey     = "test:gateway:status"
	testMirrorChannel = "test:gateway:events"
)

// setupTestRedis creates a miniredis instance and returns a redis client.
func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(func() { mr.Close() })

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { _ = client.Close() })

	return mr, client
}

func newTestMirror(client *redis.Client) *RedisMirror {
	return NewRedisMirror(RedisMirrorConfig{
		Client:  client,
		Key:     testMirrorKey,
		Channel: testMirrorChannel,
		Logger:  polyzero.NewLogger(),
	})
}

func TestNewRedisMirror_NilClient(t *testing.T) {
	require.Nil(t, NewRedisMirror(RedisMirrorConfig{Logger: polyzero.NewLogger()}))
}

func TestRedisMirror_FetchBeforePublish(t *testing.T) {
	_, client := setupTestRedis(t)

	status, err := newTestMirror(client).Fetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatusUnknown, status)
}

func TestRedisMirror_FetchRejectsGarbage(t *testing.T) {
	mr, client := setupTestRedis(t)
	require.NoError(t, mr.Set(testMirrorKey, "sideways"))

	_, err := newTestMirror(client).Fetch(context.Background())
	require.Error(t, err)
}

func TestRedisMirror_AttachMirrorsTransitions(t *testing.T) {
	c := require.New(t)
	ctx := context.Background()

	mr, client := setupTestRedis(t)
	mirror := newTestMirror(client)

	pubsub := client.Subscribe(ctx, testMirrorChannel)
	defer pubsub.Close()
	_, err := pubsub.Receive(ctx)
	c.NoError(err)
	messages := pubsub.Channel()

	monitor := newTestMonitor(&scriptedProber{outcomes: []error{nil, nil, errProbe}})
	defer mirror.Attach(monitor)()

	// Replay of the initial status.
	value, err := mr.Get(testMirrorKey)
	c.NoError(err)
	c.Equal(StatusUnknown.String(), value)

	monitor.RunCycle(ctx)
	monitor.RunCycle(ctx)
	monitor.RunCycle(ctx)

	status, err := mirror.Fetch(ctx)
	c.NoError(err)
	c.Equal(StatusDown, status)

	var published []string
	timeout := time.After(time.Second)
	for len(published) < 3 {
		select {
		case msg := <-messages:
			published = append(published, msg.Payload)
		case <-timeout:
			c.FailNow("timed out waiting for published statuses", "got %v", published)
		}
	}
	c.Equal([]string{"unknown", "up", "down"}, published)
}

func TestRedisMirror_WriteFailureDoesNotStopMonitor(t *testing.T) {
	c := require.New(t)

	mr, client := setupTestRedis(t)
	mirror := newTestMirror(client)
	mr.Close()

	monitor := newTestMonitor(&scriptedProber{outcomes: []error{nil}})
	defer mirror.Attach(monitor)()

	c.Equal(StatusUp, monitor.RunCycle(context.Background()))
	c.Equal(StatusUp, monitor.Status())
}

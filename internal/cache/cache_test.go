package cache

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryClient_GetSetDelete(t *testing.T) {
	c := NewMemoryClient(10)
	defer c.Close()
	ctx := context.Background()

	_, err := c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	val, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), val)

	require.NoError(t, c.Delete(ctx, "k"))
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryClient_ExpiredEntryMisses(t *testing.T) {
	c := NewMemoryClient(10)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), -time.Second))
	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryClient_DeleteByPrefix(t *testing.T) {
	c := NewMemoryClient(10)
	defer c.Close()
	ctx := context.Background()

	sessionID := uuid.New()
	require.NoError(t, c.Set(ctx, BlueprintKey(sessionID), []byte("b"), time.Minute))
	require.NoError(t, c.Set(ctx, WorkflowKey(sessionID), []byte("w"), time.Minute))
	require.NoError(t, c.Set(ctx, "unrelated", []byte("x"), time.Minute))

	require.NoError(t, c.DeleteByPrefix(ctx, SessionPrefix(sessionID)))

	_, err := c.Get(ctx, BlueprintKey(sessionID))
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = c.Get(ctx, WorkflowKey(sessionID))
	assert.ErrorIs(t, err, ErrCacheMiss)

	val, err := c.Get(ctx, "unrelated")
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), val)
}

func TestMemoryClient_EvictsWhenFull(t *testing.T) {
	c := NewMemoryClient(2)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Second))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), time.Hour))
	require.NoError(t, c.Set(ctx, "c", []byte("3"), time.Hour))

	// "a" expires soonest and is the eviction victim.
	_, err := c.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrCacheMiss)

	_, err = c.Get(ctx, "b")
	assert.NoError(t, err)
	_, err = c.Get(ctx, "c")
	assert.NoError(t, err)
}

func TestMemoryClient_PublishSubscribe(t *testing.T) {
	c := NewMemoryClient(10)
	defer c.Close()
	ctx := context.Background()

	channel := EventChannel(uuid.New())
	msgs, unsubscribe, err := c.Subscribe(ctx, channel)
	require.NoError(t, err)
	defer unsubscribe()

	require.NoError(t, c.Publish(ctx, channel, map[string]string{"type": "start"}))

	select {
	case payload := <-msgs:
		assert.Contains(t, string(payload), `"start"`)
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}
}

func TestMemoryClient_UnsubscribeStopsDelivery(t *testing.T) {
	c := NewMemoryClient(10)
	defer c.Close()
	ctx := context.Background()

	msgs, unsubscribe, err := c.Subscribe(ctx, "ch")
	require.NoError(t, err)
	unsubscribe()

	_, open := <-msgs
	assert.False(t, open)

	// Publishing after unsubscribe must not panic.
	require.NoError(t, c.Publish(ctx, "ch", "late"))
}

func TestKeys(t *testing.T) {
	sessionID := uuid.New()
	pageID := uuid.New()

	assert.Equal(t, "s:"+sessionID.String()+":page:"+pageID.String(), PageKey(sessionID, pageID))
	assert.Equal(t, "s:"+sessionID.String()+":blueprint", BlueprintKey(sessionID))
	assert.Equal(t, "s:"+sessionID.String()+":workflow", WorkflowKey(sessionID))
	assert.True(t, len(SessionPrefix(sessionID)) < len(BlueprintKey(sessionID)))
}

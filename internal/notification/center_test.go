package notification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCenter_NotifyAndDrain(t *testing.T) {
	c := NewCenter(10, time.Minute)

	c.Notify("user-1", LevelSuccess, "Added Mug to cart")
	c.Notify("user-1", LevelError, "Could not save your cart")
	c.Notify("user-2", LevelInfo, "hello")

	got := c.Drain("user-1")
	require.Len(t, got, 2)
	assert.Equal(t, LevelSuccess, got[0].Level)
	assert.Equal(t, "Added Mug to cart", got[0].Message)
	assert.NotEmpty(t, got[0].ID)
	assert.Equal(t, LevelError, got[1].Level)

	assert.Empty(t, c.Drain("user-1"), "drain must empty the queue")
	assert.Len(t, c.Drain("user-2"), 1)
}

func TestCenter_DropsOldestWhenFull(t *testing.T) {
	c := NewCenter(2, 0)

	c.Notify("user-1", LevelInfo, "one")
	c.Notify("user-1", LevelInfo, "two")
	c.Notify("user-1", LevelInfo, "three")

	got := c.Drain("user-1")
	require.Len(t, got, 2)
	assert.Equal(t, "two", got[0].Message)
	assert.Equal(t, "three", got[1].Message)
}

func TestCenter_DiscardsExpired(t *testing.T) {
	c := NewCenter(10, 3*time.Second)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Notify("user-1", LevelInfo, "stale")
	now = now.Add(2 * time.Second)
	c.Notify("user-1", LevelInfo, "fresh")
	now = now.Add(2 * time.Second)

	got := c.Drain("user-1")
	require.Len(t, got, 1)
	assert.Equal(t, "fresh", got[0].Message)
}

func TestCenter_AnonymousIsNotQueued(t *testing.T) {
	c := NewCenter(10, time.Minute)

	c.Notify("", LevelWarning, "Please sign in to use the cart")

	assert.Empty(t, c.Drain(""))
}

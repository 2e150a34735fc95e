package telemetry_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/adapters/telemetry"
)

type collector struct {
	mu   sync.Mutex
	data []byte
	hits int
}

func (c *collector) flush(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = append(c.data, data...)
	c.hits++
}

func (c *collector) snapshot() (string, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return string(c.data), c.hits
}

func TestBatcher_FlushOnSize(t *testing.T) {
	c := &collector{}
	b := telemetry.NewBatcher(5, time.Hour, c.flush)
	defer func() { _ = b.Close() }()

	_, err := b.Write([]byte("123"))
	require.NoError(t, err)
	got, _ := c.snapshot()
	assert.Empty(t, got)

	_, err = b.Write([]byte("456"))
	require.NoError(t, err)
	got, hits := c.snapshot()
	assert.Equal(t, "123456", got)
	assert.Equal(t, 1, hits)
}

func TestBatcher_FlushOnTime(t *testing.T) {
	c := &collector{}
	b := telemetry.NewBatcher(1024, 10*time.Millisecond, c.flush)
	defer func() { _ = b.Close() }()

	_, err := b.Write([]byte("tick"))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		got, _ := c.snapshot()
		return got == "tick"
	}, time.Second, 5*time.Millisecond)
}

func TestBatcher_Close(t *testing.T) {
	c := &collector{}
	b := telemetry.NewBatcher(1024, time.Hour, c.flush)

	_, err := b.Write([]byte("tail"))
	require.NoError(t, err)
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	got, hits := c.snapshot()
	assert.Equal(t, "tail", got)
	assert.Equal(t, 1, hits)

	_, err = b.Write([]byte("late"))
	require.ErrorIs(t, err, telemetry.ErrBatcherClosed)
	b.Flush()
	got, _ = c.snapshot()
	assert.Equal(t, "tail", got)
}

func TestBatcher_Defaults(t *testing.T) {
	c := &collector{}
	b := telemetry.NewBatcher(0, 0, c.flush)
	_, err := b.Write(make([]byte, telemetry.DefaultSizeLimit))
	require.NoError(t, err)
	_, hits := c.snapshot()
	assert.Equal(t, 1, hits)
	require.NoError(t, b.Close())
}

package scanner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBrowserPool_ClosedPoolRefusesWork(t *testing.T) {
	p := NewBrowserPool(PoolOptions{Size: 2}, quietLogger())
	assert.Equal(t, PoolStats{MaxSize: 2}, p.Stats())

	p.Shutdown()
	p.Shutdown()

	_, err := p.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrPoolClosed)

	_, err = p.Open(context.Background())
	assert.ErrorIs(t, err, ErrPoolClosed)

	p.Release(nil)
}

func TestBrowserPool_DefaultSize(t *testing.T) {
	p := NewBrowserPool(PoolOptions{}, nil)
	defer p.Shutdown()
	assert.Equal(t, DefaultPoolSize, p.Stats().MaxSize)
}

func TestSessionTimeouts_Defaults(t *testing.T) {
	p := NewBrowserPool(PoolOptions{Timeouts: SessionTimeouts{Screenshot: 3 * time.Second}}, quietLogger())
	defer p.Shutdown()

	want := DefaultSessionTimeouts
	want.Screenshot = 3 * time.Second
	assert.Equal(t, want, p.timeouts)
	assert.Equal(t, DefaultSessionTimeouts, SessionTimeouts{}.withDefaults())
}

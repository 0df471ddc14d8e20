package sequence

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/millroll/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLocalLockerSerializesKey(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "job:1")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		u, err := l.Lock(ctx, "job:1")
		if err == nil {
			close(acquired)
			u()
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while first was held")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second lock never acquired")
	}
}

func TestLocalLockerIndependentKeys(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	u1, err := l.Lock(ctx, "job:1")
	require.NoError(t, err)
	defer u1()

	u2, err := l.Lock(ctx, "job:2")
	require.NoError(t, err)
	u2()
}

func TestLocalLockerHonorsContext(t *testing.T) {
	l := NewLocalLocker()

	unlock, err := l.Lock(context.Background(), "job:1")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "job:1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLocalLockerReleasesEntries(t *testing.T) {
	l := NewLocalLocker()

	unlock, err := l.Lock(context.Background(), "job:1")
	require.NoError(t, err)
	unlock()
	unlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Empty(t, l.entries)
}

func TestLockerRejectsEmptyKey(t *testing.T) {
	_, err := NewLocalLocker().Lock(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyKey)
}

func TestRedisLockerRequiresClient(t *testing.T) {
	l := NewRedisLocker(nil, 0)
	assert.Equal(t, defaultLockTTL, l.ttl)

	_, err := l.Lock(context.Background(), "job:1")
	assert.Error(t, err)

	_, err = l.Lock(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyKey)
}

func TestNewLockerFallsBackToLocal(t *testing.T) {
	l := NewLocker(config.Config{}, zap.NewNop())
	_, ok := l.(*LocalLocker)
	assert.True(t, ok)
}

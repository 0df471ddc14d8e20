package sequence

import (
	"context"
	"errors"
	"strings"
	"sync"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/millroll/internal/config"
	"go.uber.org/zap"
)

// Locker serializes work on a key (a production job) across concurrent
// requests.
type Locker interface {
	Lock(ctx context.Context, key string) (Unlock, error)
}

type Unlock func()

var ErrEmptyKey = errors.New("lock key is empty")

// NewLocker returns a redis-backed locker when REDIS_ADDR is configured and
// an in-process keyed mutex otherwise.
func NewLocker(cfg config.Config, log *zap.Logger) Locker {
	if !cfg.Redis.Enabled() {
		log.Info("using in-process job locks")
		return NewLocalLocker()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     strings.TrimSpace(cfg.Redis.Addr),
		Password: strings.TrimSpace(cfg.Redis.Password),
		DB:       cfg.Redis.DB,
	})
	log.Info("using redis job locks", zap.String("addr", cfg.Redis.Addr))
	return NewRedisLocker(client, cfg.Redis.LockTTL)
}

type localEntry struct {
	ch   chan struct{}
	refs int
}

// LocalLocker is a keyed mutex that honors context cancellation.
type LocalLocker struct {
	mu      sync.Mutex
	entries map[string]*localEntry
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{entries: make(map[string]*localEntry)}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	l.mu.Lock()
	entry, ok := l.entries[key]
	if !ok {
		entry = &localEntry{ch: make(chan struct{}, 1)}
		l.entries[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	select {
	case entry.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, entry, false)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(key, entry, true) })
	}, nil
}

func (l *LocalLocker) release(key string, entry *localEntry, held bool) {
	if held {
		<-entry.ch
	}
	l.mu.Lock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.entries, key)
	}
	l.mu.Unlock()
}

// rocketshoes-cartservice/cartstore/local_cartstore.go

package cartstore

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// LocalCartStore keeps slots in memory. Contents are lost on restart.
type LocalCartStore struct {
	mu    sync.RWMutex
	store map[string]map[string]string

	log logrus.FieldLogger
}

// NewLocalCartStore constructor.
func NewLocalCartStore(log logrus.FieldLogger) *LocalCartStore {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LocalCartStore{
		store: make(map[string]map[string]string),
		log:   log,
	}
}

// Initialize does nothing.
func (l *LocalCartStore) Initialize(ctx context.Context) error {
	l.log.Info("LocalCartStore initialized")
	return nil
}

// Get returns the value stored under key for userID.
func (l *LocalCartStore) Get(ctx context.Context, userID, key string) (string, bool, error) {
	l.log.Debugf("LocalCartStore: Get called (userID=%s, key=%s)", userID, key)
	l.mu.RLock()
	defer l.mu.RUnlock()

	slots, exists := l.store[userID]
	if !exists {
		return "", false, nil
	}
	val, ok := slots[key]
	return val, ok, nil
}

// Set stores value under key for userID.
func (l *LocalCartStore) Set(ctx context.Context, userID, key, value string) error {
	l.log.Debugf("LocalCartStore: Set called (userID=%s, key=%s, bytes=%d)", userID, key, len(value))
	l.mu.Lock()
	defer l.mu.Unlock()

	slots, exists := l.store[userID]
	if !exists {
		slots = make(map[string]string)
		l.store[userID] = slots
	}
	slots[key] = value
	return nil
}

// Ping always returns true.
func (l *LocalCartStore) Ping(ctx context.Context) bool {
	return true
}

package service

import (
	"strconv"
	"sync"

	"tensord/pkg/status"
)

// PropMaxInput bounds the per-port input queue depth. Unset means
// unbounded (limited only by memory).
const PropMaxInput = "max_input"

// infoStore is the per-handle key/value property table. Keys are
// case-sensitive and values are opaque strings, except for the few keys the
// service itself interprets, which are validated at set time.
type infoStore struct {
	mu sync.RWMutex
	kv map[string]string
}

func newInfoStore() *infoStore {
	return &infoStore{kv: make(map[string]string)}
}

func (st *infoStore) set(key, value string) error {
	if key == "" {
		return status.Errorf(status.InvalidArgument, "empty information key")
	}
	if key == PropMaxInput {
		if n, err := strconv.Atoi(value); err != nil || n < 0 {
			return status.Errorf(status.InvalidArgument, "%s must be a non-negative integer, got %q", PropMaxInput, value)
		}
	}
	st.mu.Lock()
	st.kv[key] = value
	st.mu.Unlock()
	return nil
}

// get returns the stored value. An absent key is a lookup failure, never an
// empty string.
func (st *infoStore) get(key string) (string, error) {
	if key == "" {
		return "", status.Errorf(status.InvalidArgument, "empty information key")
	}
	st.mu.RLock()
	v, ok := st.kv[key]
	st.mu.RUnlock()
	if !ok {
		return "", status.Errorf(status.KeyNotFound, "information key %q is not set", key)
	}
	return v, nil
}

// maxInput reads the queue bound, 0 meaning unbounded. The value was
// validated at set time.
func (st *infoStore) maxInput() int {
	st.mu.RLock()
	v, ok := st.kv[PropMaxInput]
	st.mu.RUnlock()
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

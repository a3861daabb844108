package storefakes

import (
	"context"
	"sync"

	"github.com/deskhive/deskhive-go/keystore"
)

var _ keystore.Store = (*FakeStore)(nil)

// FakeStore is an in-memory keystore for tests. Per-operation error fields
// simulate a locked or unavailable device keystore.
type FakeStore struct {
	values map[string]string
	lock   sync.RWMutex

	GetErr    error
	SetErr    error
	RemoveErr error
}

func NewFakeStore() *FakeStore {
	return &FakeStore{values: make(map[string]string)}
}

func (s *FakeStore) Get(_ context.Context, key string) (string, error) {
	if s.GetErr != nil {
		return "", s.GetErr
	}
	s.lock.RLock()
	defer s.lock.RUnlock()
	value, ok := s.values[key]
	if !ok {
		return "", keystore.ErrNotFound
	}
	return value, nil
}

func (s *FakeStore) Set(_ context.Context, key, value string) error {
	if s.SetErr != nil {
		return s.SetErr
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	s.values[key] = value
	return nil
}

func (s *FakeStore) Remove(_ context.Context, key string) error {
	if s.RemoveErr != nil {
		return s.RemoveErr
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.values, key)
	return nil
}

// Value returns the stored value for key without error simulation, for
// asserting on persisted state.
func (s *FakeStore) Value(key string) (string, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	value, ok := s.values[key]
	return value, ok
}

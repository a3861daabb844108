// Package session holds the current authentication session: the token pair,
// the claims derived from the access token, and the hydration/refresh flags
// the rest of the client keys off.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/deskhive/deskhive-go/keystore"
	"github.com/deskhive/deskhive-go/token"
)

// StorageKey is the single keystore record per install. Claims are never
// persisted; they are always re-derived from the access token.
const StorageKey = "deskhive.session"

// Session is a point-in-time snapshot of the store. Reading a snapshot is the
// only supported way to observe the token pair and claims together: they are
// updated atomically and must never be read in two interleavable steps.
type Session struct {
	AccessToken  string
	RefreshToken string
	Claims       *token.Claims
	Refreshing   bool
	Hydrated     bool
}

// LoggedIn reports whether the session currently holds credentials.
func (s Session) LoggedIn() bool { return s.AccessToken != "" }

type persistedSession struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Store owns the mutable session state. All mutations go through SetTokens
// and Clear; both update memory atomically and then persist. Persistence
// writes are serialized relative to each other so a crash can never leave an
// interleaved partial record.
type Store struct {
	store  keystore.Store
	logger zerolog.Logger

	lock         sync.RWMutex
	accessToken  string
	refreshToken string
	claims       *token.Claims
	refreshing   bool
	hydrated     bool

	hydrateOnce sync.Once
	hydrateErr  error
	hydratedCh  chan struct{}

	persistLock sync.Mutex
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the logger used for persistence warnings.
func WithLogger(logger zerolog.Logger) StoreOption {
	return func(s *Store) { s.logger = logger }
}

// NewStore creates a session store backed by the given keystore.
func NewStore(store keystore.Store, options ...StoreOption) (*Store, error) {
	if store == nil {
		return nil, fmt.Errorf("[NewStore] keystore is required")
	}
	s := &Store{
		store:      store,
		logger:     log.Logger,
		hydratedCh: make(chan struct{}),
	}
	for _, option := range options {
		option(s)
	}
	return s, nil
}

// Hydrate loads the persisted session exactly once. It is idempotent and safe
// to call concurrently with reads. The store becomes hydrated regardless of
// the outcome: absence of stored data is not an error, and a failed keystore
// read leaves an empty session rather than blocking startup. The first call's
// read error, if any, is returned from every call for logging.
func (s *Store) Hydrate(ctx context.Context) error {
	s.hydrateOnce.Do(func() {
		defer func() {
			s.lock.Lock()
			s.hydrated = true
			s.lock.Unlock()
			close(s.hydratedCh)
		}()

		raw, err := s.store.Get(ctx, StorageKey)
		if errors.Is(err, keystore.ErrNotFound) {
			return
		}
		if err != nil {
			s.hydrateErr = fmt.Errorf("[Store Hydrate] read persisted session: %w", err)
			s.logger.Warn().Err(err).Msg("session hydration failed, starting logged out")
			return
		}

		var record persistedSession
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			s.hydrateErr = fmt.Errorf("[Store Hydrate] decode persisted session: %w", err)
			s.logger.Warn().Err(err).Msg("persisted session is corrupt, starting logged out")
			return
		}

		claims, err := token.Decode(record.AccessToken)
		if err != nil {
			s.logger.Warn().Err(err).Msg("persisted access token does not decode")
		}
		s.lock.Lock()
		s.accessToken = record.AccessToken
		s.refreshToken = record.RefreshToken
		s.claims = claims
		s.lock.Unlock()
	})
	return s.hydrateErr
}

// AwaitHydration blocks until Hydrate has completed or ctx is done. Readers
// must wait for hydration before trusting the access token.
func (s *Store) AwaitHydration(ctx context.Context) error {
	select {
	case <-s.hydratedCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Hydrated reports whether persisted state has been loaded.
func (s *Store) Hydrated() bool {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.hydrated
}

// Snapshot returns a consistent copy of the session.
func (s *Store) Snapshot() Session {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return Session{
		AccessToken:  s.accessToken,
		RefreshToken: s.refreshToken,
		Claims:       s.claims,
		Refreshing:   s.refreshing,
		Hydrated:     s.hydrated,
	}
}

// SetTokens atomically installs a new token pair and re-derives the claims
// from the access token. This is the only path by which claims change. The
// in-memory session always updates; the persistence error, if any, is
// returned for logging and does not roll the update back.
func (s *Store) SetTokens(ctx context.Context, accessToken, refreshToken string) error {
	claims, err := token.Decode(accessToken)
	if err != nil {
		s.logger.Warn().Err(err).Msg("new access token does not decode")
	}

	s.lock.Lock()
	s.accessToken = accessToken
	s.refreshToken = refreshToken
	s.claims = claims
	s.lock.Unlock()

	return s.persist(ctx, persistedSession{AccessToken: accessToken, RefreshToken: refreshToken})
}

// Clear nulls every field and removes the persisted record. Used on logout
// and on irrecoverable refresh failure.
func (s *Store) Clear(ctx context.Context) error {
	s.lock.Lock()
	s.accessToken = ""
	s.refreshToken = ""
	s.claims = nil
	s.refreshing = false
	s.lock.Unlock()

	s.persistLock.Lock()
	defer s.persistLock.Unlock()
	if err := s.store.Remove(ctx, StorageKey); err != nil {
		s.logger.Warn().Err(err).Msg("failed to remove persisted session")
		return fmt.Errorf("[Store Clear] remove persisted session: %w", err)
	}
	return nil
}

// SetRefreshing flips the refresh-in-progress flag observed via Snapshot.
func (s *Store) SetRefreshing(refreshing bool) {
	s.lock.Lock()
	s.refreshing = refreshing
	s.lock.Unlock()
}

func (s *Store) persist(ctx context.Context, record persistedSession) error {
	s.persistLock.Lock()
	defer s.persistLock.Unlock()

	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("[Store persist] encode session: %w", err)
	}
	if err := s.store.Set(ctx, StorageKey, string(raw)); err != nil {
		s.logger.Warn().Err(err).Msg("failed to persist session")
		return fmt.Errorf("[Store persist] write session: %w", err)
	}
	return nil
}

package keystore

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vitalvas/gatekeeper/clock"
)

// Lookup resolves keys by ID. Returned keys must be treated as read-only.
type Lookup interface {
	Lookup(keyID string) (*Key, bool)
}

// StoreConfig configures a Store.
type StoreConfig struct {
	// MaxTokenLifetime is the longest validity any credential signed by a
	// key may have. A retired key can only be removed once this much time
	// has passed since retirement.
	MaxTokenLifetime time.Duration

	// Clock defaults to the system clock.
	Clock clock.Clock
}

type snapshot struct {
	keys      map[string]*Key
	defaultID string
}

// Store is an in-memory key table with rotation support. Reads are
// lock-free; writes are serialized and publish a new snapshot.
type Store struct {
	mu   sync.Mutex
	snap atomic.Pointer[snapshot]

	maxTokenLifetime time.Duration
	clock            clock.Clock
}

// NewStore returns an empty Store.
func NewStore(cfg StoreConfig) *Store {
	s := &Store{
		maxTokenLifetime: cfg.MaxTokenLifetime,
		clock:            clock.Default(cfg.Clock),
	}

	s.snap.Store(&snapshot{keys: map[string]*Key{}})

	return s
}

// Lookup returns the key for keyID, including retired keys.
func (s *Store) Lookup(keyID string) (*Key, bool) {
	k, ok := s.snap.Load().keys[keyID]
	return k, ok
}

// IDs returns all key IDs in sorted order.
func (s *Store) IDs() []string {
	snap := s.snap.Load()

	ids := make([]string, 0, len(snap.keys))
	for id := range snap.keys {
		ids = append(ids, id)
	}

	slices.Sort(ids)

	return ids
}

// Add validates and stores a key. The first signing-capable key added
// becomes the default signing key.
func (s *Store) Add(k Key) error {
	if err := k.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.snap.Load()
	if _, exists := cur.keys[k.ID]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateKey, k.ID)
	}

	stored := k.clone()
	stored.AddedAt = s.clock.Now()
	stored.RetiredAt = time.Time{}

	next := cur.with(stored)
	if next.defaultID == "" && stored.CanSign() {
		next.defaultID = stored.ID
	}

	s.snap.Store(next)

	return nil
}

// SetDefault makes keyID the signing key for newly issued credentials.
// Credentials signed with the previous default remain verifiable.
func (s *Store) SetDefault(keyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.snap.Load()

	k, ok := cur.keys[keyID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrKeyNotFound, keyID)
	}

	if k.Retired() {
		return fmt.Errorf("%w: %q", ErrKeyRetired, keyID)
	}

	if !k.CanSign() {
		return fmt.Errorf("%w: %q", ErrVerifyOnly, keyID)
	}

	next := cur.with(nil)
	next.defaultID = keyID
	s.snap.Store(next)

	return nil
}

// Default returns the current default signing key.
func (s *Store) Default() (*Key, error) {
	snap := s.snap.Load()
	if snap.defaultID == "" {
		return nil, ErrNoDefaultKey
	}

	k, ok := snap.keys[snap.defaultID]
	if !ok {
		return nil, fmt.Errorf("%w: default key %q has no record", ErrCorrupted, snap.defaultID)
	}

	return k, nil
}

// Retire stops keyID from being used for signing. It stays available for
// verification. Retiring the default key clears the default.
func (s *Store) Retire(keyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.snap.Load()

	k, ok := cur.keys[keyID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrKeyNotFound, keyID)
	}

	if k.Retired() {
		return nil
	}

	retired := *k
	retired.RetiredAt = s.clock.Now()

	next := cur.with(&retired)
	if next.defaultID == keyID {
		next.defaultID = ""
	}

	s.snap.Store(next)

	return nil
}

// Remove deletes a retired key once MaxTokenLifetime has elapsed since its
// retirement. Active keys and recently retired keys return ErrKeyInUse.
func (s *Store) Remove(keyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.snap.Load()

	k, ok := cur.keys[keyID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrKeyNotFound, keyID)
	}

	if !k.Retired() {
		return fmt.Errorf("%w: %q is not retired", ErrKeyInUse, keyID)
	}

	if s.clock.Now().Before(k.RetiredAt.Add(s.maxTokenLifetime)) {
		return fmt.Errorf("%w: %q retired at %s", ErrKeyInUse, keyID, k.RetiredAt.Format(time.RFC3339))
	}

	next := cur.with(nil)
	delete(next.keys, keyID)
	s.snap.Store(next)

	return nil
}

// with copies the snapshot, replacing or inserting k when non-nil.
func (s *snapshot) with(k *Key) *snapshot {
	keys := make(map[string]*Key, len(s.keys)+1)
	for id, v := range s.keys {
		keys[id] = v
	}

	if k != nil {
		keys[k.ID] = k
	}

	return &snapshot{keys: keys, defaultID: s.defaultID}
}

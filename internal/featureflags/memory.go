package featureflags

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrFlagNotFound is returned when a store has no flag for a key.
var ErrFlagNotFound = errors.New("feature flag not found")

// Repository stores flag values. Implementations must be safe for
// concurrent use.
type Repository interface {
	GetFlag(ctx context.Context, key string) (*Flag, error)
	GetAllFlags(ctx context.Context) (map[string]*Flag, error)
	SetFlag(ctx context.Context, flag *Flag) error

	// SetFlags applies every update or none of them.
	SetFlags(ctx context.Context, flags []*Flag) error

	DeleteFlag(ctx context.Context, key string) error
}

// InMemoryRepository keeps flags in process memory. It is the store used
// when no database is configured, so overrides made through the admin API
// last until the process exits and are not shared between replicas.
type InMemoryRepository struct {
	mu    sync.RWMutex
	flags map[string]*Flag
}

// NewInMemoryRepository returns a store seeded with DefaultFlags.
func NewInMemoryRepository() *InMemoryRepository {
	return NewInMemoryRepositoryWithFlags(DefaultFlags())
}

// NewInMemoryRepositoryWithFlags returns a store seeded with flags, typically
// the result of WithOverrides.
func NewInMemoryRepositoryWithFlags(flags map[string]*Flag) *InMemoryRepository {
	seeded := make(map[string]*Flag, len(flags))
	for key, flag := range flags {
		seeded[key] = flag.clone()
	}
	return &InMemoryRepository{flags: seeded}
}

func (r *InMemoryRepository) GetFlag(_ context.Context, key string) (*Flag, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if flag, ok := r.flags[key]; ok {
		return flag.clone(), nil
	}
	return nil, ErrFlagNotFound
}

func (r *InMemoryRepository) GetAllFlags(_ context.Context) (map[string]*Flag, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*Flag, len(r.flags))
	for key, flag := range r.flags {
		out[key] = flag.clone()
	}
	return out, nil
}

func (r *InMemoryRepository) SetFlag(ctx context.Context, flag *Flag) error {
	return r.SetFlags(ctx, []*Flag{flag})
}

func (r *InMemoryRepository) SetFlags(_ context.Context, flags []*Flag) error {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, flag := range flags {
		r.flags[flag.Key] = &Flag{Key: flag.Key, Value: flag.Value, UpdatedAt: now}
	}
	return nil
}

func (r *InMemoryRepository) DeleteFlag(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.flags[key]; !ok {
		return ErrFlagNotFound
	}
	delete(r.flags, key)
	return nil
}

var _ Repository = (*InMemoryRepository)(nil)

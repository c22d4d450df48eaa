package metadata

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/fintrack/internal/cryptox"
)

// ErrCorrupt is returned by SealedStore.Load when a stored value cannot be
// decrypted or decoded.
var ErrCorrupt = errors.New("cached value is corrupt")

// SealedStore keeps JSON values in a Repository, encrypted with AES-GCM.
type SealedStore struct {
	repo Repository
	key  []byte
}

func NewSealedStore(repo Repository, key []byte) *SealedStore {
	return &SealedStore{repo: repo, key: key}
}

// Load decodes the value under key into dst. found is false when the key
// is absent.
func (s *SealedStore) Load(ctx context.Context, key string, dst any) (found bool, err error) {
	raw, err := s.repo.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if raw == nil {
		return false, nil
	}
	if err := cryptox.Open(raw, s.key, dst); err != nil {
		return false, fmt.Errorf("%w: %s: %w", ErrCorrupt, key, err)
	}
	return true, nil
}

func (s *SealedStore) Save(ctx context.Context, key string, v any) error {
	sealed, err := cryptox.Seal(v, s.key)
	if err != nil {
		return fmt.Errorf("failed to seal metadata[%s]: %w", key, err)
	}
	return s.repo.Set(ctx, key, sealed)
}

func (s *SealedStore) Remove(ctx context.Context, keys ...string) error {
	return s.repo.Delete(ctx, keys...)
}

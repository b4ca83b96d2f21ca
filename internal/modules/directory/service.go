// README: Directory service adds bounded retries and receiver sampling on top of a store.
package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"carpool/internal/types"
)

// Service retries transient store failures. ErrNotRegistered and context
// errors are returned immediately.
type Service struct {
	store    Directory
	attempts int
	backoff  time.Duration
	log      *slog.Logger
}

func NewService(store Directory, attempts int, backoff time.Duration, log *slog.Logger) *Service {
	if attempts < 1 {
		attempts = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, attempts: attempts, backoff: backoff, log: log}
}

func (s *Service) Register(ctx context.Context, id types.ID, role types.Role) error {
	return s.retry(ctx, "register", func() error { return s.store.Register(ctx, id, role) })
}

func (s *Service) Deregister(ctx context.Context, id types.ID) error {
	return s.retry(ctx, "deregister", func() error { return s.store.Deregister(ctx, id) })
}

func (s *Service) Find(ctx context.Context, role types.Role) ([]types.ID, error) {
	var ids []types.ID
	err := s.retry(ctx, "find", func() error {
		var err error
		ids, err = s.store.Find(ctx, role)
		return err
	})
	return ids, err
}

func (s *Service) retry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		err = fn()
		if err == nil || errors.Is(err, ErrNotRegistered) || ctx.Err() != nil {
			return err
		}
		s.log.Warn("directory call failed", "op", op, "attempt", attempt, "err", err)
		if attempt == s.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.backoff * time.Duration(attempt)):
		}
	}
	return fmt.Errorf("directory %s after %d attempts: %w", op, s.attempts, err)
}

// PickRandom returns up to n distinct ids from pool in random order without
// modifying pool.
func PickRandom(pool []types.ID, n int, rng *rand.Rand) []types.ID {
	if n <= 0 || len(pool) == 0 {
		return []types.ID{}
	}
	cp := make([]types.ID, len(pool))
	copy(cp, pool)
	shuffle := rand.Shuffle
	if rng != nil {
		shuffle = rng.Shuffle
	}
	shuffle(len(cp), func(i, j int) { cp[i], cp[j] = cp[j], cp[i] })
	if n < len(cp) {
		cp = cp[:n]
	}
	return cp
}

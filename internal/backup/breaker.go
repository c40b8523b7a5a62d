package backup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	constants "vpsdash/config"
	"vpsdash/internal/logger"
)

// BreakerStore guards an ObjectStore with a circuit breaker. Every failure,
// including a rejected call while the breaker is open, is reported as
// ErrStorageUnavailable so the step retry policy treats it uniformly.
type BreakerStore struct {
	store   ObjectStore
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerStore trips after maxFailures consecutive failures and probes
// again after timeout
func NewBreakerStore(store ObjectStore, maxFailures uint32, timeout time.Duration, log *logger.Logger) *BreakerStore {
	if maxFailures == 0 {
		maxFailures = constants.DEFAULT_BREAKER_FAILURES
	}
	if timeout <= 0 {
		timeout = constants.DEFAULT_BREAKER_TIMEOUT * time.Second
	}
	if log == nil {
		log = logger.Named("store")
	}

	settings := gobreaker.Settings{
		Name:        "object-store",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrVerificationMismatch)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warning("%s circuit %s -> %s", name, from, to)
		},
	}
	return &BreakerStore{store: store, breaker: gobreaker.NewCircuitBreaker(settings)}
}

func (b *BreakerStore) do(op string, fn func() (interface{}, error)) (interface{}, error) {
	res, err := b.breaker.Execute(fn)
	if err == nil {
		return res, nil
	}
	if errors.Is(err, ErrVerificationMismatch) {
		return nil, err
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %s rejected, circuit %s", ErrStorageUnavailable, op, b.breaker.State())
	}
	return nil, fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)
}

func (b *BreakerStore) Put(ctx context.Context, key, localPath string) error {
	_, err := b.do("put", func() (interface{}, error) {
		return nil, b.store.Put(ctx, key, localPath)
	})
	return err
}

func (b *BreakerStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	res, err := b.do("list", func() (interface{}, error) {
		return b.store.List(ctx, prefix)
	})
	if err != nil {
		return nil, err
	}
	objects, _ := res.([]ObjectInfo)
	return objects, nil
}

func (b *BreakerStore) Delete(ctx context.Context, key string) error {
	_, err := b.do("delete", func() (interface{}, error) {
		return nil, b.store.Delete(ctx, key)
	})
	return err
}

func (b *BreakerStore) Checksum(ctx context.Context, key string) (string, error) {
	res, err := b.do("checksum", func() (interface{}, error) {
		return b.store.Checksum(ctx, key)
	})
	if err != nil {
		return "", err
	}
	sum, _ := res.(string)
	return sum, nil
}

// State reports the breaker state: closed, half-open or open
func (b *BreakerStore) State() string {
	return b.breaker.State().String()
}

package cache

import (
	"context"
	"time"

	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/domain"
)

// DueCache holds computed due boards. Entries also expire on their own.
//
// Generation is a per-scope counter that Bump advances. Callers put it in
// their keys so a snapshot computed before a Bump is never served after it.
type DueCache interface {
	Get(ctx context.Context, key string) (*domain.DueBoard, bool, error)
	Set(ctx context.Context, key string, value *domain.DueBoard, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Generation(ctx context.Context, scope string) (int64, error)
	Bump(ctx context.Context, scope string) (int64, error)
}

type NoopDueCache struct{}

func (NoopDueCache) Get(_ context.Context, _ string) (*domain.DueBoard, bool, error) {
	return nil, false, nil
}

func (NoopDueCache) Set(_ context.Context, _ string, _ *domain.DueBoard, _ time.Duration) error {
	return nil
}

func (NoopDueCache) Delete(_ context.Context, _ string) error {
	return nil
}

func (NoopDueCache) Generation(_ context.Context, _ string) (int64, error) {
	return 0, nil
}

func (NoopDueCache) Bump(_ context.Context, _ string) (int64, error) {
	return 0, nil
}

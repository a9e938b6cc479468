package cache

import (
	"context"
	"time"

	"github.com/llu77/erp-system-sub005/internal/domain"
)

// SnapshotCache holds computed KPI snapshots keyed by branch and period.
type SnapshotCache interface {
	Get(ctx context.Context, key string) (*domain.KpiSnapshot, bool, error)
	Set(ctx context.Context, key string, value *domain.KpiSnapshot, ttl time.Duration) error
	Invalidate(ctx context.Context, keyPrefix string) error
}

type NoopSnapshotCache struct{}

func (NoopSnapshotCache) Get(_ context.Context, _ string) (*domain.KpiSnapshot, bool, error) {
	return nil, false, nil
}

func (NoopSnapshotCache) Set(_ context.Context, _ string, _ *domain.KpiSnapshot, _ time.Duration) error {
	return nil
}

func (NoopSnapshotCache) Invalidate(_ context.Context, _ string) error {
	return nil
}

package cache

import (
	"context"
	"time"

	"vendafacil/backend/internal/domain"
)

type StatisticsCache interface {
	Get(ctx context.Context, key string) (*domain.SalesStatistics, bool, error)
	Set(ctx context.Context, key string, value *domain.SalesStatistics, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

type NoopStatisticsCache struct{}

func (NoopStatisticsCache) Get(_ context.Context, _ string) (*domain.SalesStatistics, bool, error) {
	return nil, false, nil
}

func (NoopStatisticsCache) Set(_ context.Context, _ string, _ *domain.SalesStatistics, _ time.Duration) error {
	return nil
}

func (NoopStatisticsCache) Invalidate(_ context.Context) error {
	return nil
}

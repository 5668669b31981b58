package setup

import (
	"context"
	"fmt"

	"github.com/3Eeeecho/go-fastdb/internal/config"
	"github.com/3Eeeecho/go-fastdb/internal/pkg/staging"
)

// InitStaging 连接告警暂存库, 连接失败按 ingest 的重试策略重试
func InitStaging(ctx context.Context, cfg *config.Config) (staging.Store, error) {
	store, err := staging.NewMongoStore(ctx, cfg.Mongo, cfg.Ingest)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize staging store: %w", err)
	}
	return store, nil
}

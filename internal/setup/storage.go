package setup

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/3Eeeecho/go-fastdb/internal/config"
	"github.com/3Eeeecho/go-fastdb/internal/pkg/logger"
	"github.com/3Eeeecho/go-fastdb/internal/pkg/storage"
)

// InitStorage 按 storageconfig.type 初始化导出用的对象存储, 并确保默认存储桶存在
func InitStorage(cfg *config.Config) (storage.StorageService, error) {
	ss, err := storage.NewStorageService(cfg)
	if err != nil {
		return nil, fmt.Errorf("初始化对象存储服务失败: %w", err)
	}
	logger.Info("对象存储服务已选择并初始化", zap.String("type", cfg.Storage.Type))

	// 为外部调用使用带超时的上下文
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	bucket := ss.Bucket()
	exists, err := ss.IsBucketExist(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("检查存储桶存在性失败: %w", err)
	}
	if !exists {
		logger.Info("存储桶不存在，尝试创建...", zap.String("bucketName", bucket))
		if err := ss.MakeBucket(ctx, bucket); err != nil {
			return nil, fmt.Errorf("创建存储桶失败: %w", err)
		}
		logger.Info("存储桶创建成功", zap.String("bucketName", bucket))
	} else {
		logger.Info("存储桶已存在", zap.String("bucketName", bucket))
	}
	return ss, nil
}

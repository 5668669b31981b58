package worker

import (
	"github.com/3Eeeecho/go-fastdb/internal/config"
	"github.com/3Eeeecho/go-fastdb/internal/pkg/logger"
	"github.com/3Eeeecho/go-fastdb/internal/pkg/mq"
	"github.com/3Eeeecho/go-fastdb/internal/services/ingest"
)

// StartAllWorkers 启动应用中所有定义的后台 Worker
func StartAllWorkers(cfg *config.Config, consumer mq.Consumer, ingestService ingest.Service) error {
	// --- 导入 Worker ---
	if err := NewIngestWorker(consumer, ingestService, cfg).Start(); err != nil {
		return err
	}

	logger.Info("所有后台工作进程已启动。")
	return nil
}

package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/3Eeeecho/go-fastdb/internal/config"
	"github.com/3Eeeecho/go-fastdb/internal/models"
	"github.com/3Eeeecho/go-fastdb/internal/pkg/logger"
	"github.com/3Eeeecho/go-fastdb/internal/pkg/mq"
	"github.com/3Eeeecho/go-fastdb/internal/pkg/staging"
	"github.com/3Eeeecho/go-fastdb/internal/pkg/xerr"
	"github.com/3Eeeecho/go-fastdb/internal/services/ingest"
	"github.com/cenkalti/backoff/v4"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

type outcome int

const (
	ack     outcome = iota
	drop            // 无法处理, 丢弃
	requeue         // 临时故障, 重新入队
)

type IngestWorker struct {
	consumer mq.Consumer
	ingest   ingest.Service
	queue    string
	retry    config.IngestConfig
}

func NewIngestWorker(consumer mq.Consumer, svc ingest.Service, cfg *config.Config) *IngestWorker {
	queue := cfg.RabbitMQ.IngestQueue
	if queue == "" {
		queue = ingest.DefaultQueue
	}
	return &IngestWorker{consumer: consumer, ingest: svc, queue: queue, retry: cfg.Ingest}
}

func (w *IngestWorker) Start() error {
	if _, err := w.consumer.DeclareQueue(w.queue); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", w.queue, err)
	}
	if err := w.consumer.Consume(w.queue, w.Handle); err != nil {
		return fmt.Errorf("failed to start consuming from queue %s: %w", w.queue, err)
	}
	logger.Info("ingest worker started", zap.String("queue", w.queue))
	return nil
}

// transient 暂存库和数据库的故障值得重试, 参数错误不值得
func transient(err error) bool {
	return xerr.Is(err, xerr.ErrStagingError) || xerr.Is(err, xerr.ErrDatabaseError)
}

func (w *IngestWorker) process(ctx context.Context, body []byte, redelivered bool) outcome {
	var task models.IngestTask
	if err := json.Unmarshal(body, &task); err != nil {
		logger.Error("failed to unmarshal ingest task", zap.Error(err))
		return drop
	}
	logger.Info("received ingest task",
		zap.String("collection", task.Collection), zap.String("base_procver", task.BaseProcessingVersion))

	var rep *ingest.Report
	run := func() error {
		var err error
		rep, err = w.ingest.Run(ctx, ingest.RequestOf(task))
		if err != nil && !transient(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	err := backoff.RetryNotify(run, staging.NewBackOff(ctx, w.retry), func(err error, wait time.Duration) {
		logger.Warn("ingest task failed, retrying", zap.String("collection", task.Collection), zap.Duration("wait", wait), zap.Error(err))
	})
	if err == nil {
		logger.Info("ingest task done", zap.String("collection", task.Collection), zap.Int("alerts", rep.Alerts))
		return ack
	}
	logger.Error("ingest task failed", zap.String("collection", task.Collection), zap.Error(err))
	// 已经重投过一次的任务不再入队, 避免无限循环
	if transient(err) && !redelivered {
		return requeue
	}
	return drop
}

func (w *IngestWorker) Handle(msg amqp.Delivery) {
	switch w.process(context.Background(), msg.Body, msg.Redelivered) {
	case ack:
		_ = msg.Ack(false)
	case requeue:
		_ = msg.Nack(false, true)
	default:
		_ = msg.Nack(false, false)
	}
}

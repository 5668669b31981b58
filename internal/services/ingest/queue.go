package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/3Eeeecho/go-fastdb/internal/models"
	"github.com/3Eeeecho/go-fastdb/internal/pkg/logger"
	"github.com/3Eeeecho/go-fastdb/internal/pkg/mq"
	"github.com/3Eeeecho/go-fastdb/internal/pkg/xerr"
	"github.com/3Eeeecho/go-fastdb/internal/services/versioning"
	"go.uber.org/zap"
)

const DefaultQueue = "fastdb_ingest_queue"

// Queue 把导入请求投递到消息队列, 由 IngestWorker 异步执行
type Queue interface {
	Enqueue(ctx context.Context, req Request) (*models.IngestTask, error)
}

type queue struct {
	versions versioning.Service
	pub      mq.Publisher
	name     string
	now      func() time.Time
}

var _ Queue = (*queue)(nil)

func NewQueue(versions versioning.Service, pub mq.Publisher, name string) Queue {
	if name == "" {
		name = DefaultQueue
	}
	return &queue{versions: versions, pub: pub, name: name, now: time.Now}
}

// Enqueue 先同步检查参数, 避免无效任务进入队列
func (q *queue) Enqueue(ctx context.Context, req Request) (*models.IngestTask, error) {
	if req.Collection == "" {
		return nil, xerr.Wrapf(xerr.ErrInvalidParams, "collection is required")
	}
	if _, err := q.versions.ResolveBaseProcessingVersion(ctx, req.BaseProcver); err != nil {
		return nil, err
	}
	task := &models.IngestTask{
		Collection:            req.Collection,
		BaseProcessingVersion: req.BaseProcver,
		Cutoff:                req.Cutoff,
		RequestedAt:           q.now().UTC(),
	}
	if err := mq.PublishJSON(q.pub, q.name, task); err != nil {
		logger.Error("publish ingest task failed", zap.String("queue", q.name), zap.Error(err))
		return nil, errors.Join(xerr.ErrMQError, err)
	}
	logger.Info("ingest task queued", zap.String("collection", task.Collection), zap.String("base_procver", task.BaseProcessingVersion))
	return task, nil
}

// RequestOf 把队列中的任务还原为导入请求
func RequestOf(task models.IngestTask) Request {
	return Request{Collection: task.Collection, BaseProcver: task.BaseProcessingVersion, Cutoff: task.Cutoff}
}

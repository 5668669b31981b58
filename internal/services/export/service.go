package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"time"

	"github.com/3Eeeecho/go-fastdb/internal/pkg/logger"
	"github.com/3Eeeecho/go-fastdb/internal/pkg/storage"
	"github.com/3Eeeecho/go-fastdb/internal/pkg/xerr"
	"github.com/3Eeeecho/go-fastdb/internal/services/ltcv"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
)

const DefaultPrefix = "hot"

// Result 导出的快照位置
type Result struct {
	Bucket  string  `json:"bucket"`
	Key     string  `json:"key"`
	Size    int64   `json:"size"`
	Objects int     `json:"objects"`
	MJDNow  float64 `json:"mjd_now"`
	URL     string  `json:"url,omitempty"`
}

// Snapshot 一份已导出的快照, Reader 由调用方关闭
type Snapshot struct {
	Key    string
	Size   int64
	Reader io.ReadCloser
}

type Service interface {
	// ExportHotLtcvs 查询最近有探测的光变曲线, 以 gzip 压缩的 JSON 写入对象存储
	ExportHotLtcvs(ctx context.Context, req ltcv.HotRequest) (*Result, error)
	// OpenSnapshot 读取 ExportHotLtcvs 写入的快照
	OpenSnapshot(ctx context.Context, procver string, mjdNow float64) (*Snapshot, error)
	// RemoveSnapshot 删除快照, 快照不存在时不报错
	RemoveSnapshot(ctx context.Context, procver string, mjdNow float64) error
}

type service struct {
	ltcvs  ltcv.Service
	store  storage.StorageService
	prefix string
	expiry time.Duration
}

var _ Service = (*service)(nil)

// NewService expiry 大于 0 时在结果中附上预签名下载地址
func NewService(ltcvs ltcv.Service, store storage.StorageService, prefix string, expiry time.Duration) Service {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &service{ltcvs: ltcvs, store: store, prefix: prefix, expiry: expiry}
}

// Key 快照的对象名: <prefix>/<procver>/<mjd_now>.json.gz
func Key(prefix, procver string, mjdNow float64) string {
	return path.Join(prefix, procver, strconv.FormatFloat(mjdNow, 'f', 5, 64)+".json.gz")
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := json.NewEncoder(zw).Encode(v); err != nil {
		_ = zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *service) ensureBucket(ctx context.Context, bucket string) error {
	ok, err := s.store.IsBucketExist(ctx, bucket)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return s.store.MakeBucket(ctx, bucket)
}

func (s *service) ExportHotLtcvs(ctx context.Context, req ltcv.HotRequest) (*Result, error) {
	if req.Procver == "" {
		return nil, xerr.Wrapf(xerr.ErrInvalidParams, "processing version is required")
	}
	hot, err := s.ltcvs.GetHotLtcvs(ctx, req)
	if err != nil {
		return nil, err
	}
	data, err := encode(hot)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}

	bucket := s.store.Bucket()
	key := Key(s.prefix, req.Procver, hot.MJDNow)
	if err := s.ensureBucket(ctx, bucket); err != nil {
		logger.Error("export bucket unavailable", zap.String("bucket", bucket), zap.Error(err))
		return nil, errors.Join(xerr.ErrStorageError, err)
	}
	put, err := s.store.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), "application/gzip")
	if err != nil {
		logger.Error("export upload failed", zap.String("bucket", bucket), zap.String("key", key), zap.Error(err))
		return nil, errors.Join(xerr.ErrStorageError, err)
	}

	res := &Result{Bucket: bucket, Key: key, Size: put.Size, Objects: len(hot.Objects), MJDNow: hot.MJDNow}
	if s.expiry > 0 {
		if res.URL, err = s.store.PreSignGetObjectURL(ctx, bucket, key, s.expiry); err != nil {
			logger.Warn("presign export url failed", zap.String("key", key), zap.Error(err))
		}
	}
	logger.Info("hot lightcurves exported",
		zap.String("procver", req.Procver), zap.String("key", key),
		zap.Int("objects", res.Objects), zap.Int64("bytes", res.Size))
	return res, nil
}

func (s *service) OpenSnapshot(ctx context.Context, procver string, mjdNow float64) (*Snapshot, error) {
	if procver == "" {
		return nil, xerr.Wrapf(xerr.ErrInvalidParams, "processing version is required")
	}
	bucket := s.store.Bucket()
	key := Key(s.prefix, procver, mjdNow)
	obj, err := s.store.GetObject(ctx, bucket, key)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, xerr.Wrapf(xerr.ErrNoSnapshot, "%s", key)
	}
	if err != nil {
		logger.Error("reading export snapshot failed", zap.String("bucket", bucket), zap.String("key", key), zap.Error(err))
		return nil, errors.Join(xerr.ErrStorageError, err)
	}
	return &Snapshot{Key: key, Size: obj.Size, Reader: obj.Reader}, nil
}

func (s *service) RemoveSnapshot(ctx context.Context, procver string, mjdNow float64) error {
	if procver == "" {
		return xerr.Wrapf(xerr.ErrInvalidParams, "processing version is required")
	}
	bucket := s.store.Bucket()
	key := Key(s.prefix, procver, mjdNow)
	if err := s.store.RemoveObject(ctx, bucket, key); err != nil {
		logger.Error("removing export snapshot failed", zap.String("bucket", bucket), zap.String("key", key), zap.Error(err))
		return errors.Join(xerr.ErrStorageError, err)
	}
	logger.Info("export snapshot removed", zap.String("key", key))
	return nil
}

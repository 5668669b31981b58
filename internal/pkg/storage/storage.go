package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/3Eeeecho/go-fastdb/internal/config"
)

// ErrObjectNotFound 对象不存在, GetObject 返回的错误包裹它
var ErrObjectNotFound = errors.New("object not found")

// StorageService 导出快照用到的对象存储操作
type StorageService interface {
	// Bucket 配置中的默认存储桶
	Bucket() string
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, contentType string) (PutObjectResult, error)
	// GetObject 返回的 Reader 需要调用方关闭
	GetObject(ctx context.Context, bucketName, objectName string) (GetObjectResult, error)
	RemoveObject(ctx context.Context, bucketName, objectName string) error
	IsBucketExist(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string) error
	PreSignGetObjectURL(ctx context.Context, bucketName, objectName string, expiry time.Duration) (string, error)
}

type PutObjectResult struct {
	Bucket string
	Key    string
	Size   int64
	ETag   string // 对象哈希值
}

type GetObjectResult struct {
	Reader   io.ReadCloser
	Size     int64
	MimeType string
}

func NewStorageService(cfg *config.Config) (StorageService, error) {
	switch cfg.Storage.Type {
	case "minio":
		return NewMinIOStorageService(&cfg.MinIO)
	case "aliyun_oss":
		return NewAliyunOSSStorageService(&cfg.AliyunOSS)
	default:
		return nil, fmt.Errorf("invalid storage type %q", cfg.Storage.Type)
	}
}

package staging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/3Eeeecho/go-fastdb/internal/config"
	"github.com/3Eeeecho/go-fastdb/internal/pkg/logger"
	"github.com/3Eeeecho/go-fastdb/internal/pkg/xerr"
	"github.com/cenkalti/backoff/v4"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

type mongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	retry  config.IngestConfig
}

var _ Store = (*mongoStore)(nil)

// NewMongoStore 连接失败时按 cfg 中的策略重试
func NewMongoStore(ctx context.Context, mc config.MongoConfig, cfg config.IngestConfig) (Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mc.URI))
	if err != nil {
		return nil, errors.Join(xerr.ErrStagingError, fmt.Errorf("connect staging store: %w", err))
	}
	ping := func() error { return client.Ping(ctx, nil) }
	notify := func(err error, wait time.Duration) {
		logger.Warn("staging store not reachable, retrying", zap.Duration("wait", wait), zap.Error(err))
	}
	if err := backoff.RetryNotify(ping, NewBackOff(ctx, cfg), notify); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Join(xerr.ErrStagingError, fmt.Errorf("ping staging store: %w", err))
	}
	logger.Info("staging store connected", zap.String("database", mc.Database))
	return &mongoStore{client: client, db: client.Database(mc.Database), retry: cfg}, nil
}

func (s *mongoStore) Alerts(ctx context.Context, collection string, after, cutoff time.Time) ([]Alert, error) {
	filter := bson.M{"savetime": bson.M{"$gt": after, "$lte": cutoff}}
	opts := options.Find().SetSort(bson.D{{Key: "savetime", Value: 1}})

	var alerts []Alert
	read := func() error {
		cur, err := s.db.Collection(collection).Find(ctx, filter, opts)
		if err != nil {
			return err
		}
		alerts = nil
		return cur.All(ctx, &alerts)
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn("reading staging store failed, retrying",
			zap.String("collection", collection), zap.Duration("wait", wait), zap.Error(err))
	}
	if err := backoff.RetryNotify(read, NewBackOff(ctx, s.retry), notify); err != nil {
		return nil, errors.Join(xerr.ErrStagingError, fmt.Errorf("read %s: %w", collection, err))
	}
	return alerts, nil
}

func (s *mongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

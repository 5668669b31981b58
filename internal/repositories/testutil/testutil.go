package testutil

import (
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/3Eeeecho/go-fastdb/internal/models"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

var errMissingDSN = errors.New("missing TEST_POSTGRES_DSN")

var (
	dbOnce sync.Once
	db     *gorm.DB
	dbErr  error
	hasQ3C bool
)

// DB 打开 TEST_POSTGRES_DSN 指向的数据库并迁移表结构, 未设置时跳过测试
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()

	dbOnce.Do(func() {
		dsn := os.Getenv("TEST_POSTGRES_DSN")
		if dsn == "" {
			dbErr = errMissingDSN
			return
		}

		var err error
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: gormLogger.Default.LogMode(gormLogger.Silent),
		})
		if err != nil {
			dbErr = err
			return
		}

		// q3c 不一定安装, 只有锥形检索相关测试依赖它
		hasQ3C = db.Exec(`CREATE EXTENSION IF NOT EXISTS q3c`).Error == nil

		if err := db.AutoMigrate(models.All()...); err != nil {
			dbErr = err
			return
		}
	})

	if errors.Is(dbErr, errMissingDSN) {
		tb.Skip("set TEST_POSTGRES_DSN to run repo integration tests")
	}
	if dbErr != nil {
		tb.Fatalf("failed to init test db: %v", dbErr)
	}
	return db
}

// RequireQ3C 在数据库没有 q3c 扩展时跳过测试
func RequireQ3C(tb testing.TB) {
	tb.Helper()
	DB(tb)
	if !hasQ3C {
		tb.Skip("q3c extension not available")
	}
}

// Unique 生成不会与其他测试冲突的描述
func Unique(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

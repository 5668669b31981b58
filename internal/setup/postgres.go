package setup

import (
	"fmt"
	"time"

	"github.com/3Eeeecho/go-fastdb/internal/config"
	"github.com/3Eeeecho/go-fastdb/internal/models"
	"github.com/3Eeeecho/go-fastdb/internal/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// InitPostgres 初始化 Postgres 数据库连接, 开启 auto_migrate 时同时迁移表结构
func InitPostgres(cfg *config.PostgresConfig, qc config.QueryConfig) (*gorm.DB, error) {
	level := gormLogger.Warn
	if qc.Echo {
		level = gormLogger.Info
	}
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger: gormLogger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get generic database object from GORM: %w", err)
	}
	// 设置连接池参数
	sqlDB.SetMaxIdleConns(cfg.MaxIdle)
	sqlDB.SetMaxOpenConns(cfg.MaxOpen)
	sqlDB.SetConnMaxLifetime(time.Hour)

	logger.Info("成功连接 Postgres 数据库!")

	if cfg.AutoMigrate {
		if err := AutoMigrate(db); err != nil {
			return nil, err
		}
	}
	return db, nil
}

// spatialIndexes q3c 锥形检索依赖的函数索引
var spatialIndexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_diaobject_q3c ON diaobject (q3c_ang2ipix(ra, dec))`,
	`CREATE INDEX IF NOT EXISTS idx_diasource_q3c ON diasource (q3c_ang2ipix(ra, dec))`,
}

// AutoMigrate 自动迁移数据库表结构. q3c 扩展不可用时只记录警告, 锥形检索会在查询时失败
func AutoMigrate(db *gorm.DB) error {
	q3c := true
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS q3c`).Error; err != nil {
		q3c = false
		logger.Warn("q3c 扩展不可用, 锥形检索将无法使用", zap.Error(err))
	}

	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("failed to auto migrate database tables: %w", err)
	}

	if q3c {
		for _, stmt := range spatialIndexes {
			if err := db.Exec(stmt).Error; err != nil {
				return fmt.Errorf("failed to create spatial index: %w", err)
			}
		}
	}
	logger.Info("Database tables migrated successfully!", zap.Bool("q3c", q3c))
	return nil
}

// ClosePostgres 关闭数据库连接
func ClosePostgres(db *gorm.DB) {
	if db == nil {
		return
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Error("Error getting generic database object to close", zap.Error(err))
		return
	}
	if err := sqlDB.Close(); err != nil {
		logger.Error("Error closing Postgres database connection", zap.Error(err))
	} else {
		logger.Info("Postgres database connection closed.")
	}
}

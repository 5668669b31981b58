package repositories

import (
	"context"
	"strings"

	"github.com/3Eeeecho/go-fastdb/internal/config"
	"github.com/3Eeeecho/go-fastdb/internal/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// session 根据查询配置决定是否打印 SQL
func session(ctx context.Context, db *gorm.DB, qc config.QueryConfig) *gorm.DB {
	tx := db.WithContext(ctx)
	if qc.Echo {
		tx = tx.Debug()
	}
	return tx
}

// explain 在开启 explain 时记录查询计划, 失败只记日志不影响查询
func explain(ctx context.Context, db *gorm.DB, qc config.QueryConfig, name string, build func(tx *gorm.DB) *gorm.DB) {
	if !qc.Explain {
		return
	}
	stmt := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		return build(tx.WithContext(ctx))
	})
	var plan []string
	rows, err := db.WithContext(ctx).Raw("EXPLAIN ANALYZE " + stmt).Rows()
	if err != nil {
		logger.Warn("explain failed", zap.String("query", name), zap.Error(err))
		return
	}
	defer rows.Close()
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			break
		}
		plan = append(plan, line)
	}
	logger.Info("query plan", zap.String("query", name), zap.String("sql", stmt), zap.String("plan", strings.Join(plan, "\n")))
}

// chunkSize 控制 IN 列表的长度, Postgres 单条语句最多 65535 个参数
const chunkSize = 5000

func chunks[T any](ids []T) [][]T {
	if len(ids) <= chunkSize {
		return [][]T{ids}
	}
	out := make([][]T, 0, len(ids)/chunkSize+1)
	for start := 0; start < len(ids); start += chunkSize {
		end := min(start+chunkSize, len(ids))
		out = append(out, ids[start:end])
	}
	return out
}

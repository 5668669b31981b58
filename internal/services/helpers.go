package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/3Eeeecho/go-fastdb/internal/pkg/xerr"
	"github.com/google/uuid"
)

// WithQueryTimeout 给整条查询流水线加上超时, timeout <= 0 表示不限时
func WithQueryTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// QueryError 把超时转换为 ErrQueryTimeout, 其余数据库错误包上 ErrDatabaseError.
// 已经带有业务哨兵的错误原样返回.
func QueryError(ctx context.Context, stage string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return xerr.Wrapf(xerr.ErrQueryTimeout, "%s", stage)
	}
	if xerr.CodeOf(err) != xerr.InternalServerErrorCode {
		return err
	}
	return fmt.Errorf("%s: %w", stage, errors.Join(xerr.ErrDatabaseError, err))
}

// ObjectIDs 一组对象标识, 要么全部是 diaobjectid, 要么全部是 rootid
type ObjectIDs struct {
	DiaObjectIDs []int64
	RootIDs      []uuid.UUID
}

func (o ObjectIDs) IsRoot() bool { return len(o.RootIDs) > 0 }

// ParseObjectIDs 整数按 diaobjectid 处理, UUID 按 rootid 处理, 不允许混用
func ParseObjectIDs(raw []string) (ObjectIDs, error) {
	var out ObjectIDs
	if len(raw) == 0 {
		return out, xerr.Wrapf(xerr.ErrInvalidParams, "no object ids requested")
	}
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if id, err := strconv.ParseInt(s, 10, 64); err == nil {
			out.DiaObjectIDs = append(out.DiaObjectIDs, id)
			continue
		}
		if id, err := uuid.Parse(s); err == nil {
			out.RootIDs = append(out.RootIDs, id)
			continue
		}
		return ObjectIDs{}, xerr.Wrapf(xerr.ErrInvalidParams, "object id %q is neither an integer nor a UUID", s)
	}
	if len(out.DiaObjectIDs) > 0 && len(out.RootIDs) > 0 {
		return ObjectIDs{}, xerr.Wrapf(xerr.ErrInvalidParams, "object ids must be all integers or all UUIDs")
	}
	return out, nil
}

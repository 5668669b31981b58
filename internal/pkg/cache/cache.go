package cache

import (
	"context"
	"fmt"
	"time"
)

// 缓存通用接口
type Cache interface {
	// Set在缓存中设置一个值，并指定过期时间。
	// value应该是一个可以被JSON封送的结构体或指向结构体的指针。
	Set(ctx context.Context, key string, value any, expiration time.Duration) error

	// Get从缓存中检索一个值，并将其解编组到目标接口。
	// 未命中时返回 ErrCacheMiss
	Get(ctx context.Context, key string, target any) error

	// 删除一个或多个key
	Del(ctx context.Context, keys ...string) error
}

// 处理版本名 -> id
func GenerateProcverNameKey(name string) string {
	return fmt.Sprintf("fastdb:procver:name:%s", name)
}

// 基础处理版本名 -> id
func GenerateBaseProcverNameKey(name string) string {
	return fmt.Sprintf("fastdb:baseprocver:name:%s", name)
}

// 处理版本 id -> 按优先级排列的基础版本列表
func GenerateProcverBasesKey(procverID string) string {
	return fmt.Sprintf("fastdb:procver:bases:%s", procverID)
}

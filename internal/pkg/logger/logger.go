package logger

import (
	"fmt"
	"os"
	"sync"

	"github.com/3Eeeecho/go-fastdb/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	log  *zap.Logger
	once sync.Once
)

// InitLogger 初始化 Zap 日志库
// level: debug, info, warn, error, dpanic, panic, fatal
func InitLogger(cfg config.LogConfig) {
	once.Do(func() {
		log = build(cfg)
		zap.ReplaceGlobals(log)
	})
}

func build(cfg config.LogConfig) *zap.Logger {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(cfg.Level)); err != nil {
		l = zap.InfoLevel
		fmt.Fprintf(os.Stderr, "Failed to parse log level '%s', defaulting to info: %v\n", cfg.Level, err)
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(l)
	zcfg.OutputPaths = []string{"stdout"}
	zcfg.ErrorOutputPaths = []string{"stderr"}
	if cfg.OutputPath != "" && cfg.OutputPath != "stdout" {
		zcfg.OutputPaths = append(zcfg.OutputPaths, cfg.OutputPath)
	}
	if cfg.ErrorPath != "" && cfg.ErrorPath != "stderr" {
		zcfg.ErrorOutputPaths = append(zcfg.ErrorOutputPaths, cfg.ErrorPath)
	}
	zcfg.Encoding = "json"
	zcfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")
	zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	logger, err := zcfg.Build()
	if err != nil {
		panic(fmt.Sprintf("Failed to build zap logger: %v", err))
	}
	return logger
}

// GetLogger 返回全局logger, 未初始化时退回到 stdout info 级别
func GetLogger() *zap.Logger {
	if log == nil {
		InitLogger(config.LogConfig{Level: "info"})
	}
	return log
}

// With 返回带固定字段的子 logger, 例如某个处理版本或 collection
func With(fields ...zap.Field) *zap.Logger {
	return GetLogger().With(fields...)
}

func Sugar() *zap.SugaredLogger {
	return GetLogger().Sugar()
}

// 刷新缓冲区,确保程序退出前使用
func Sync() {
	if log != nil {
		if err := log.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to sync zap logger: %v\n", err)
		}
	}
}

func Debug(msg string, fields ...zap.Field) {
	GetLogger().Debug(msg, fields...)
}

func Info(msg string, fields ...zap.Field) {
	GetLogger().Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	GetLogger().Error(msg, fields...)
}

func Fatal(msg string, fields ...zap.Field) {
	GetLogger().Fatal(msg, fields...)
}

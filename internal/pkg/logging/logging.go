package logging

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New 创建结构化日志，未识别的级别回退到 info。debug 模式使用便于阅读的控制台输出。
func New(level, mode string) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if err := lvl.Set(strings.ToLower(strings.TrimSpace(level))); err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	if mode == "debug" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg.Encoding = "json"
		cfg.EncoderConfig.TimeKey = "ts"
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

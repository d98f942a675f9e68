// Package logging 基于 zerolog 提供全局结构化日志
//
// 用法:
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//	logging.Info().Int64("user_id", id).Msg("用户登录")
//	logging.Ctx(ctx).Warn().Err(err).Msg("请求失败")
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config 日志配置
type Config struct {
	Level  string    // debug / info / warn / error
	Format string    // json / console
	Output io.Writer // 默认 os.Stderr
}

var (
	log zerolog.Logger
	mu  sync.RWMutex
)

func init() {
	initLogger(Config{})
}

// Init 初始化全局日志，可重复调用
func Init(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	initLogger(cfg)
}

// initLogger 调用方需持有 mu
func initLogger(cfg Config) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Format == "" {
		cfg.Format = "json"
	}
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	zerolog.TimeFieldFormat = time.RFC3339

	output := cfg.Output
	if cfg.Format == "console" || cfg.Format == "text" {
		output = zerolog.ConsoleWriter{Out: cfg.Output, TimeFormat: "15:04:05"}
	}

	log = zerolog.New(output).With().Timestamp().Logger()
}

// parseLevel 将字符串转换为 zerolog 级别，无法识别时使用 info
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// Logger 返回全局 logger 的副本
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// With 返回用于追加字段的上下文
func With() zerolog.Context {
	l := Logger()
	return l.With()
}

// Debug 开始一条 debug 级别日志
func Debug() *zerolog.Event {
	l := Logger()
	return l.Debug()
}

// Info 开始一条 info 级别日志
func Info() *zerolog.Event {
	l := Logger()
	return l.Info()
}

// Warn 开始一条 warn 级别日志
func Warn() *zerolog.Event {
	l := Logger()
	return l.Warn()
}

// Error 开始一条 error 级别日志
func Error() *zerolog.Event {
	l := Logger()
	return l.Error()
}

// Fatal 记录日志后退出进程
func Fatal() *zerolog.Event {
	l := Logger()
	return l.Fatal()
}

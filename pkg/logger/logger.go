package logger

import (
    "go.uber.org/zap"
)

var log = zap.Must(zap.NewProduction())

// Init 按运行模式重建全局 logger（debug 模式输出开发格式）
func Init(mode string) {
    if mode == "debug" {
        log = zap.Must(zap.NewDevelopment())
        return
    }
    log = zap.Must(zap.NewProduction())
}

func L() *zap.Logger { return log }

func Debug(msg string, fields ...zap.Field) { log.Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { log.Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { log.Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { log.Error(msg, fields...) }
func Fatal(msg string, fields ...zap.Field) { log.Fatal(msg, fields...) }

// Sync 刷新缓冲日志，进程退出前调用
func Sync() { _ = log.Sync() }

package database

import (
    "fmt"

    "gorm.io/driver/postgres"
    "gorm.io/driver/sqlite"
    "gorm.io/gorm"
    gormlogger "gorm.io/gorm/logger"

    "github.com/d60-Lab/subscription-graph/config"
)

// InitDB 按配置打开数据库连接（postgres 线上 / sqlite 本地与测试）
func InitDB(cfg *config.Config) (*gorm.DB, error) {
    gcfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}
    switch cfg.Database.Driver {
    case "postgres":
        return gorm.Open(postgres.Open(cfg.Database.DSN), gcfg)
    case "sqlite":
        return gorm.Open(sqlite.Open(cfg.Database.DSN), gcfg)
    default:
        return nil, fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
    }
}

package config

import (
    "strings"

    "github.com/go-playground/validator/v10"
    "github.com/spf13/viper"
)

// Config 服务配置（viper 加载，环境变量可覆盖）
type Config struct {
    Server struct {
        Mode string `mapstructure:"mode" validate:"oneof=debug release test"`
        Addr string `mapstructure:"addr" validate:"required"`
    } `mapstructure:"server"`

    // Store 图记录存储后端
    Store struct {
        Backend string `mapstructure:"backend" validate:"oneof=memory gorm redis"`
    } `mapstructure:"store"`

    Database struct {
        Driver string `mapstructure:"driver" validate:"oneof=postgres sqlite"`
        DSN    string `mapstructure:"dsn" validate:"required"`
    } `mapstructure:"database"`

    Redis struct {
        Addr     string `mapstructure:"addr"`
        Password string `mapstructure:"password"`
        DB       int    `mapstructure:"db"`
    } `mapstructure:"redis"`

    // Relay 事件外发与回扫
    Relay struct {
        Workers      int    `mapstructure:"workers"`
        ClaimLimit   int    `mapstructure:"claim_limit"`
        PollInterval string `mapstructure:"poll_interval"`
        Stream       string `mapstructure:"stream"`
    } `mapstructure:"relay"`

    Cache struct {
        TTL string `mapstructure:"ttl"`
    } `mapstructure:"cache"`

    RateLimit struct {
        RPS   float64 `mapstructure:"rps"`
        Burst int     `mapstructure:"burst"`
    } `mapstructure:"rate_limit"`

    Sentry struct {
        DSN string `mapstructure:"dsn"`
    } `mapstructure:"sentry"`

    Otel struct {
        Endpoint string `mapstructure:"endpoint"`
    } `mapstructure:"otel"`
}

func setDefaults(v *viper.Viper) {
    v.SetDefault("server.mode", "release")
    v.SetDefault("server.addr", ":8080")
    v.SetDefault("store.backend", "gorm")
    v.SetDefault("database.driver", "sqlite")
    v.SetDefault("database.dsn", "file::memory:?cache=shared")
    v.SetDefault("redis.addr", "127.0.0.1:6379")
    v.SetDefault("relay.workers", 2)
    v.SetDefault("relay.claim_limit", 128)
    v.SetDefault("relay.poll_interval", "50ms")
    v.SetDefault("relay.stream", "graph-events")
    v.SetDefault("cache.ttl", "60s")
    v.SetDefault("rate_limit.rps", 200)
    v.SetDefault("rate_limit.burst", 400)
}

// Load 读取 config.yaml（可选）并套用 SUBGRAPH_ 前缀环境变量
func Load() (*Config, error) {
    v := viper.New()
    setDefaults(v)

    v.SetConfigName("config")
    v.SetConfigType("yaml")
    v.AddConfigPath(".")
    v.AddConfigPath("./config")
    v.SetEnvPrefix("SUBGRAPH")
    v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
    v.AutomaticEnv()

    if err := v.ReadInConfig(); err != nil {
        // 配置文件缺失时全部走默认值 + 环境变量
        if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
            return nil, err
        }
    }

    var cfg Config
    if err := v.Unmarshal(&cfg); err != nil {
        return nil, err
    }
    if err := validator.New().Struct(&cfg); err != nil {
        return nil, err
    }
    return &cfg, nil
}

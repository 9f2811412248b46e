package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	OSS       OSSConfig       `mapstructure:"oss"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Log       LogConfig       `mapstructure:"log"`
	Comment   CommentConfig   `mapstructure:"comment"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	Upload    UploadConfig    `mapstructure:"upload"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // mysql, postgres, sqlite
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

type OSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	BucketName      string `mapstructure:"bucket_name"`
	CDNDomain       string `mapstructure:"cdn_domain"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// CommentConfig 评论楼层相关配置
type CommentConfig struct {
	MaxDepth        int `mapstructure:"max_depth"`         // 创建时的层级上限（根=0）
	DisplayMaxDepth int `mapstructure:"display_max_depth"` // 展示时的层级上限，可与创建上限不同
	PageLimit       int `mapstructure:"page_limit"`        // 实时订阅每次返回的最大条数
	WriteRetries    int `mapstructure:"write_retries"`     // 点赞、编辑并发冲突时的重试次数
}

type ReconcileConfig struct {
	IntervalMinutes int `mapstructure:"interval_minutes"`
}

type UploadConfig struct {
	MaxSize           int64    `mapstructure:"max_size"`           // 最大文件大小（字节）
	AllowedExtensions []string `mapstructure:"allowed_extensions"` // 允许的扩展名
}

// WithDefaults 填充未配置的评论参数
func (c CommentConfig) WithDefaults() CommentConfig {
	if c.MaxDepth <= 0 {
		c.MaxDepth = 2
	}
	if c.DisplayMaxDepth <= 0 {
		c.DisplayMaxDepth = c.MaxDepth
	}
	if c.PageLimit <= 0 {
		c.PageLimit = 100
	}
	if c.WriteRetries <= 0 {
		c.WriteRetries = 3
	}
	return c
}

func Load(configPath string) (*Config, error) {
	// 优先尝试读取 config.local.yaml（包含真实密钥，不提交到git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")

	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("log.level", "info")
	v.SetDefault("comment.max_depth", 2)
	v.SetDefault("comment.page_limit", 100)
	v.SetDefault("reconcile.interval_minutes", 60)

	// 环境变量覆盖
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.Comment = cfg.Comment.WithDefaults()

	return &cfg, nil
}

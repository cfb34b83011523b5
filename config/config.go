package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Billing   BillingConfig   `mapstructure:"billing"`
	Generator GeneratorConfig `mapstructure:"generator"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Quota     QuotaConfig     `mapstructure:"quota"`
	Upload    UploadConfig    `mapstructure:"upload"`
	Stats     StatsConfig     `mapstructure:"stats"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Cron      CronConfig      `mapstructure:"cron"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // text, json
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // postgres, mysql, sqlite
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	SSLMode      string `mapstructure:"ssl_mode"`
	Path         string `mapstructure:"path"` // sqlite 文件路径，为空时使用内存库
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	AutoMigrate  bool   `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type AuthConfig struct {
	Mode        string `mapstructure:"mode"` // hs256, jwks, disabled
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
	JWKSURL     string `mapstructure:"jwks_url"`
	Issuer      string `mapstructure:"issuer"`
	Audience    string `mapstructure:"audience"`
	DevUserID   string `mapstructure:"dev_user_id"`
	DevEmail    string `mapstructure:"dev_email"`
}

type BillingConfig struct {
	Provider      string `mapstructure:"provider"` // stripe, mock
	SecretKey     string `mapstructure:"secret_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	PriceID       string `mapstructure:"price_id"`
	FrontendURL   string `mapstructure:"frontend_url"`
}

type GeneratorConfig struct {
	Provider      string        `mapstructure:"provider"` // openai, mock
	BaseURL       string        `mapstructure:"base_url"`
	APIKey        string        `mapstructure:"api_key"`
	Model         string        `mapstructure:"model"`
	Timeout       time.Duration `mapstructure:"timeout"`
	QuestionCount int           `mapstructure:"question_count"`
	MaxQuestions  int           `mapstructure:"max_questions"`
}

type StorageConfig struct {
	Provider string    `mapstructure:"provider"` // oss, memory
	OSS      OSSConfig `mapstructure:"oss"`
}

type OSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	BucketName      string `mapstructure:"bucket_name"`
	CDNDomain       string `mapstructure:"cdn_domain"`
}

type QuotaConfig struct {
	FreeTestLimit   int `mapstructure:"free_test_limit"`
	FreeUploadLimit int `mapstructure:"free_upload_limit"`
}

type UploadConfig struct {
	MaxSize           int64    `mapstructure:"max_size"`           // 最大文件大小（字节）
	ExpireHours       int      `mapstructure:"expire_hours"`       // 过期时间（小时）
	AllowedExtensions []string `mapstructure:"allowed_extensions"` // 允许的扩展名
}

type StatsConfig struct {
	Timezone string        `mapstructure:"timezone"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

type CronConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
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
	setDefaults(v)

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

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 90*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("auth.mode", "hs256")
	v.SetDefault("auth.expire_hours", 72)
	v.SetDefault("billing.provider", "mock")
	v.SetDefault("generator.provider", "mock")
	v.SetDefault("generator.timeout", 60*time.Second)
	v.SetDefault("generator.question_count", 10)
	v.SetDefault("generator.max_questions", 150)
	v.SetDefault("storage.provider", "memory")
	v.SetDefault("quota.free_test_limit", 2)
	v.SetDefault("quota.free_upload_limit", 5)
	v.SetDefault("upload.max_size", 5<<20)
	v.SetDefault("upload.expire_hours", 24*30)
	v.SetDefault("upload.allowed_extensions", []string{".txt", ".md", ".csv"})
	v.SetDefault("stats.timezone", "UTC")
	v.SetDefault("stats.cache_ttl", 5*time.Minute)
	v.SetDefault("rate_limit.requests_per_second", 5)
	v.SetDefault("rate_limit.burst", 20)
	v.SetDefault("cron.interval", time.Hour)
}

package config

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 包含所有应用的配置
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Redis     RedisConfig     `mapstructure:"redis"`
	MinIO     MinIOConfig     `mapstructure:"minio"`
	AliyunOSS AliyunOSSConfig `mapstructure:"aliyun_oss"`
	RabbitMQ  RabbitMQConfig  `mapstructure:"rabbitmq"`
	Mongo     MongoConfig     `mapstructure:"mongo"`
	Storage   StorageConfig   `mapstructure:"storageconfig"`
	Log       LogConfig       `mapstructure:"log"`
	Query     QueryConfig     `mapstructure:"query"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // gin 模式: debug / release / test
}

// PostgresConfig 数据库配置
type PostgresConfig struct {
	DSN         string `mapstructure:"dsn"`
	MaxIdle     int    `mapstructure:"max_idle"`
	MaxOpen     int    `mapstructure:"max_open"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Addr            string        `mapstructure:"addr"`
	Password        string        `mapstructure:"password"`
	DB              int           `mapstructure:"db"`
	VersionCacheTTL time.Duration `mapstructure:"version_cache_ttl"`
}

type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

type AliyunOSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"` // 例如: oss-cn-hangzhou.aliyuncs.com
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	BucketName      string `mapstructure:"bucket_name"`
}

type RabbitMQConfig struct {
	URL         string `mapstructure:"url"`
	IngestQueue string `mapstructure:"ingest_queue"`
}

// MongoConfig 告警暂存库 (staging store)
type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type StorageConfig struct {
	Type         string `mapstructure:"type"` // minio / aliyun_oss
	ExportPrefix string `mapstructure:"export_prefix"`
	// 导出结果附带的预签名下载地址有效期, 0 表示不生成
	ExportURLExpiry time.Duration `mapstructure:"export_url_expiry"`
}

// zap日志配置
type LogConfig struct {
	OutputPath string `mapstructure:"output_path"`
	ErrorPath  string `mapstructure:"error_path"`
	Level      string `mapstructure:"level"`
}

// QueryConfig 控制光变曲线和对象检索的查询行为
type QueryConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
	// 探测与强制测光按 trunc(mjd*steps) 匹配, 10000 约为 8.6 秒
	MJDMatchStepsPerDay int64   `mapstructure:"mjd_match_steps_per_day"`
	MatchPolicy         string  `mapstructure:"match_policy"` // mjd / visit
	Zeropoint           float64 `mapstructure:"zeropoint"`
	Echo                bool    `mapstructure:"echo"`    // 打印每条 SQL
	Explain             bool    `mapstructure:"explain"` // 打印 EXPLAIN 结果
}

type IngestConfig struct {
	ObjectMatchRadiusArcsec float64       `mapstructure:"object_match_radius_arcsec"`
	BatchSize               int           `mapstructure:"batch_size"`
	MaxRetries              uint64        `mapstructure:"max_retries"`
	RetryMaxInterval        time.Duration `mapstructure:"retry_max_interval"`
	RetryMaxElapsed         time.Duration `mapstructure:"retry_max_elapsed"`
}

const (
	MatchPolicyMJD   = "mjd"
	MatchPolicyVisit = "visit"
)

var AppConfig *Config // 全局应用配置实例

// SetDefaults 注册所有默认值, 配置文件和环境变量均可覆盖
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("postgres.max_idle", 10)
	v.SetDefault("postgres.max_open", 100)
	v.SetDefault("postgres.auto_migrate", true)
	v.SetDefault("redis.version_cache_ttl", 10*time.Minute)
	v.SetDefault("rabbitmq.ingest_queue", "fastdb_ingest_queue")
	v.SetDefault("mongo.database", "alerts")
	v.SetDefault("storageconfig.type", "minio")
	v.SetDefault("storageconfig.export_prefix", "hot_ltcvs")
	v.SetDefault("storageconfig.export_url_expiry", 24*time.Hour)
	v.SetDefault("log.output_path", "logs/fastdb.log")
	v.SetDefault("log.error_path", "logs/fastdb_error.log")
	v.SetDefault("log.level", "info")
	v.SetDefault("query.timeout", 5*time.Minute)
	v.SetDefault("query.mjd_match_steps_per_day", 10000)
	v.SetDefault("query.match_policy", MatchPolicyMJD)
	v.SetDefault("query.zeropoint", 31.4)
	v.SetDefault("ingest.object_match_radius_arcsec", 1.0)
	v.SetDefault("ingest.batch_size", 1000)
	v.SetDefault("ingest.max_retries", 5)
	v.SetDefault("ingest.retry_max_interval", 30*time.Second)
	v.SetDefault("ingest.retry_max_elapsed", 5*time.Minute)
}

// Default 返回只包含默认值的配置, 主要用于测试和命令行工具
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		log.Fatalf("Fatal error unmarshaling default config: %s \n", err)
	}
	return cfg
}

// LoadConfig 加载配置
func LoadConfig() (*Config, error) {
	return LoadConfigFrom("")
}

// LoadConfigFrom 从指定文件加载配置, path 为空时按默认路径查找
func LoadConfigFrom(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/go-fastdb/")
	}

	// 例如 GO_FASTDB_POSTGRES_DSN 对应 postgres.dsn
	v.SetEnvPrefix("GO_FASTDB")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		// 没有配置文件时依赖环境变量和默认值
		log.Println("Warning: config file not found, using environment variables or default values.")
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	AppConfig = cfg

	log.Println("Configuration loaded successfully with Viper.")
	return cfg, nil
}

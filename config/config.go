package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 应用程序配置结构体
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	VectorDB VectorDBConfig `mapstructure:"vectordb"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Embed    EmbedConfig    `mapstructure:"embed"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Database DatabaseConfig `mapstructure:"database"`
	Segment  SegmentConfig  `mapstructure:"segment"`
	Search   SearchConfig   `mapstructure:"search"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port" validate:"gt=0,lte=65535"`
	Mode       string `mapstructure:"mode" validate:"oneof=debug release test"` // gin运行模式
	APIKey     string `mapstructure:"api_key"`                                  // 接口密钥，空串表示不鉴权
	EnableCORS bool   `mapstructure:"enable_cors"`
}

// StorageConfig 存储配置
type StorageConfig struct {
	Type      string `mapstructure:"type" validate:"oneof=local minio"` // 存储类型
	Path      string `mapstructure:"path"`                              // 本地存储路径
	Bucket    string `mapstructure:"bucket"`                            // MinIO桶名称
	Endpoint  string `mapstructure:"endpoint"`                          // MinIO端点
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// VectorDBConfig 向量数据库配置
type VectorDBConfig struct {
	Type     string `mapstructure:"type" validate:"oneof=memory faiss"` // 向量数据库类型
	Path     string `mapstructure:"path"`                               // 数据库文件路径
	Dim      int    `mapstructure:"dim" validate:"gt=0"`                // 向量维度
	Distance string `mapstructure:"distance"`                           // 距离度量方式：cosine, l2, dot
}

// LLMConfig 大语言模型配置
type LLMConfig struct {
	Provider    string  `mapstructure:"provider"`    // 提供商：openai, tongyi
	Model       string  `mapstructure:"model"`       // 模型名称
	APIKey      string  `mapstructure:"api_key"`     // API密钥，支持${ENV_VAR}占位
	Endpoint    string  `mapstructure:"endpoint"`    // API端点
	MaxTokens   int     `mapstructure:"max_tokens"`  // 最大生成token数量
	Temperature float32 `mapstructure:"temperature"` // 采样温度
}

// EmbedConfig 向量嵌入模型配置
type EmbedConfig struct {
	Provider  string `mapstructure:"provider"`   // 提供商：openai, tongyi
	Model     string `mapstructure:"model"`      // 模型名称
	APIKey    string `mapstructure:"api_key"`    // API密钥，支持${ENV_VAR}占位
	Endpoint  string `mapstructure:"endpoint"`   // API端点
	BatchSize int    `mapstructure:"batch_size"` // 批处理大小
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Enable   bool   `mapstructure:"enable"`   // 是否启用问答缓存
	Type     string `mapstructure:"type"`     // 缓存类型：memory 或 redis
	Address  string `mapstructure:"address"`  // Redis地址
	Password string `mapstructure:"password"` // Redis密码
	DB       int    `mapstructure:"db"`       // Redis数据库
	TTL      int    `mapstructure:"ttl"`      // 缓存TTL（秒）
}

// QueueConfig 任务队列配置
type QueueConfig struct {
	Enable        bool   `mapstructure:"enable"`         // 是否启用异步任务队列
	Type          string `mapstructure:"type"`           // 队列类型
	RedisAddr     string `mapstructure:"redis_addr"`     // Redis地址
	RedisPassword string `mapstructure:"redis_password"` // Redis密码
	RedisDB       int    `mapstructure:"redis_db"`       // Redis数据库编号
	Concurrency   int    `mapstructure:"concurrency"`    // 任务处理并发数
	RetryLimit    int    `mapstructure:"retry_limit"`    // 任务最大重试次数
	RetryDelay    int    `mapstructure:"retry_delay"`    // 重试延迟(秒)
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Type string `mapstructure:"type"` // 数据库类型: sqlite, mysql
	DSN  string `mapstructure:"dsn"`  // 数据源名称
}

// SegmentConfig 溯源分块配置
type SegmentConfig struct {
	MaxChunkChars int `mapstructure:"max_chunk_chars" validate:"gt=0"` // 分块的目标最大字符数
	OverlapChars  int `mapstructure:"overlap_chars" validate:"gte=0"`  // 相邻分块间的重叠字符数
}

// SearchConfig 检索配置
type SearchConfig struct {
	TopK         int     `mapstructure:"top_k" validate:"gt=0"`      // 检索返回的分块数量
	MinScore     float32 `mapstructure:"min_score"`                  // 最低相似度分数
	PreviewChars int     `mapstructure:"preview_chars" validate:"gt=0"` // 引用文本预览长度
}

// LogConfig 日志配置
// 文件输出经lumberjack轮转，File为空时只输出到标准输出
type LogConfig struct {
	Level      string `mapstructure:"level"`       // 日志级别
	File       string `mapstructure:"file"`        // 日志文件路径
	MaxSize    int    `mapstructure:"max_size"`    // 单个日志文件上限(MB)
	MaxBackups int    `mapstructure:"max_backups"` // 保留的旧文件数量
	MaxAge     int    `mapstructure:"max_age"`     // 旧文件保留天数
	Compress   bool   `mapstructure:"compress"`    // 是否压缩旧文件
}

// Load 从文件和环境变量加载配置
// 先读.env再读配置文件，环境变量的优先级最高
func Load(configPath string) (*Config, error) {
	// .env不存在时静默跳过
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("PDFQA")
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	expandEnvPlaceholders(&config)

	if err := validator.New().Struct(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// expandEnvPlaceholders 展开密钥字段里的${ENV_VAR}占位符
// 密钥不落盘，配置文件中只写环境变量名
func expandEnvPlaceholders(cfg *Config) {
	cfg.Embed.APIKey = expandEnv(cfg.Embed.APIKey)
	cfg.LLM.APIKey = expandEnv(cfg.LLM.APIKey)
	cfg.Server.APIKey = expandEnv(cfg.Server.APIKey)
	cfg.Storage.AccessKey = expandEnv(cfg.Storage.AccessKey)
	cfg.Storage.SecretKey = expandEnv(cfg.Storage.SecretKey)
	cfg.Cache.Password = expandEnv(cfg.Cache.Password)
	cfg.Queue.RedisPassword = expandEnv(cfg.Queue.RedisPassword)
}

func expandEnv(value string) string {
	if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") {
		if envVal := os.Getenv(value[2 : len(value)-1]); envVal != "" {
			return envVal
		}
	}
	return value
}

// setDefaults 设置配置的默认值
func setDefaults(v *viper.Viper) {
	// 服务器默认配置
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.enable_cors", true)

	// 存储默认配置
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.path", "./data/files")
	v.SetDefault("storage.bucket", "pdfqa")
	v.SetDefault("storage.use_ssl", false)

	// 向量数据库默认配置
	v.SetDefault("vectordb.type", "faiss")
	v.SetDefault("vectordb.path", "./data/vectordb")
	v.SetDefault("vectordb.dim", 1024)
	v.SetDefault("vectordb.distance", "cosine")

	// LLM默认配置
	v.SetDefault("llm.provider", "tongyi")
	v.SetDefault("llm.model", "qwen-turbo")
	v.SetDefault("llm.api_key", "${LLM_API_KEY}")
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.temperature", 0.7)

	// Embedding默认配置
	v.SetDefault("embed.provider", "tongyi")
	v.SetDefault("embed.model", "text-embedding-v1")
	v.SetDefault("embed.api_key", "${EMBEDDING_API_KEY}")
	v.SetDefault("embed.batch_size", 16)

	// 缓存默认配置
	v.SetDefault("cache.enable", true)
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.ttl", 86400)

	// 队列默认配置
	v.SetDefault("queue.enable", false)
	v.SetDefault("queue.type", "redis")
	v.SetDefault("queue.redis_addr", "localhost:6379")
	v.SetDefault("queue.redis_db", 0)
	v.SetDefault("queue.concurrency", 10)
	v.SetDefault("queue.retry_limit", 3)
	v.SetDefault("queue.retry_delay", 60)

	// 数据库默认配置
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "./data/pdfqa.db")

	// 分块默认配置
	v.SetDefault("segment.max_chunk_chars", 500)
	v.SetDefault("segment.overlap_chars", 50)

	// 检索默认配置
	v.SetDefault("search.top_k", 5)
	v.SetDefault("search.min_score", 0.5)
	v.SetDefault("search.preview_chars", 300)

	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
	v.SetDefault("log.compress", true)
}

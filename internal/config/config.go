package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	App       AppConfig
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	AI        AIConfig
	Chat      ChatConfig
	CORS      CORSConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

// AppConfig 应用配置
type AppConfig struct {
	Name        string
	Environment string
	Version     string
	Debug       bool
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host         string
	Port         int
	Mode         string
	ReadTimeout  int
	WriteTimeout int // SSE 长连接，0 表示不限制
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	DSN          string
	Host         string
	Port         int
	User         string
	Password     string
	DBName       string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  int
}

// RedisConfig Redis配置，启用后用于跨进程的会话锁
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// AIConfig AI配置
type AIConfig struct {
	Provider     string
	Temperature  float32
	SystemPrompt string
	Gemini       ProviderConfig
	OpenAI       ProviderConfig
	DeepSeek     ProviderConfig
}

// ProviderConfig 单个模型供应商配置（均走 OpenAI 兼容接口）
type ProviderConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout int
}

// ChatConfig 聊天流程配置
type ChatConfig struct {
	MaxWords          int
	TitleWords        int
	DefaultTitle      string
	MaxStreamDuration time.Duration
	LockTTL           time.Duration
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowedOrigins []string
	FrontendURL    string
}

// RateLimitConfig 发送消息限流配置
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string
	Format string // console, json
	File   string // 为空时只输出到 stdout
}

// Load 加载配置
// 优先级：环境变量 > 配置文件 > 默认值；存在 .env 时先加载到环境变量
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// 环境变量
	v.SetEnvPrefix("NEXT_CHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindLegacyEnv(v); err != nil {
		return nil, fmt.Errorf("failed to bind env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	if _, err := c.AI.Active(); err != nil {
		return err
	}
	if c.Chat.MaxWords <= 0 {
		return errors.New("chat.maxWords must be positive")
	}
	if c.Chat.TitleWords <= 0 {
		return errors.New("chat.titleWords must be positive")
	}
	if c.Chat.MaxStreamDuration <= 0 {
		return errors.New("chat.maxStreamDuration must be positive")
	}
	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		return errors.New("rateLimit values must not be negative")
	}
	return nil
}

// Active 返回当前选中的供应商配置
func (c *AIConfig) Active() (ProviderConfig, error) {
	var p ProviderConfig
	switch c.Provider {
	case "gemini", "google":
		p = c.Gemini
	case "openai":
		p = c.OpenAI
	case "deepseek":
		p = c.DeepSeek
	default:
		return p, fmt.Errorf("unsupported ai provider: %s", c.Provider)
	}
	if p.APIKey == "" {
		return p, fmt.Errorf("api_key is required for provider: %s", c.Provider)
	}
	return p, nil
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// GetAddr 获取服务器地址
func (c *ServerConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetAddr 获取 Redis 地址
func (c *RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Origins 返回允许跨域的来源列表
func (c *CORSConfig) Origins() []string {
	origins := make([]string, 0, len(c.AllowedOrigins)+1)
	for _, o := range c.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if c.FrontendURL != "" {
		origins = append(origins, c.FrontendURL)
	}
	return origins
}

// bindLegacyEnv 兼容无前缀的部署变量（PORT、GEMINI_API_KEY 等）
// 带前缀的变量优先
func bindLegacyEnv(v *viper.Viper) error {
	legacy := map[string]string{
		"server.port":        "PORT",
		"ai.gemini.apiKey":   "GEMINI_API_KEY",
		"ai.openai.apiKey":   "OPENAI_API_KEY",
		"ai.deepseek.apiKey": "DEEPSEEK_API_KEY",
		"cors.frontendUrl":   "FRONTEND_URL",
		"database.dsn":       "DATABASE_URL",
	}
	for key, env := range legacy {
		if err := v.BindEnv(key, envName(key), env); err != nil {
			return err
		}
	}
	return nil
}

func envName(key string) string {
	return "NEXT_CHAT_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func setDefaults(v *viper.Viper) {
	// App
	v.SetDefault("app.name", "next-chat")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.debug", false)

	// Server
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 0)

	// Database
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "next_chat")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.maxOpenConns", 25)
	v.SetDefault("database.maxIdleConns", 5)
	v.SetDefault("database.maxLifetime", 300)

	// Redis
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// AI
	v.SetDefault("ai.provider", "gemini")
	v.SetDefault("ai.temperature", 0.7)
	v.SetDefault("ai.systemPrompt", "")
	for _, p := range []string{"gemini", "openai", "deepseek"} {
		v.SetDefault("ai."+p+".apiKey", "")
	}
	v.SetDefault("ai.gemini.baseUrl", "https://generativelanguage.googleapis.com/v1beta/openai/")
	v.SetDefault("ai.gemini.model", "gemini-2.5-flash")
	v.SetDefault("ai.gemini.timeout", 120)
	v.SetDefault("ai.openai.baseUrl", "https://api.openai.com/v1")
	v.SetDefault("ai.openai.model", "gpt-4o-mini")
	v.SetDefault("ai.openai.timeout", 120)
	v.SetDefault("ai.deepseek.baseUrl", "https://api.deepseek.com/v1")
	v.SetDefault("ai.deepseek.model", "deepseek-chat")
	v.SetDefault("ai.deepseek.timeout", 120)

	// Chat
	v.SetDefault("chat.maxWords", 500)
	v.SetDefault("chat.titleWords", 6)
	v.SetDefault("chat.defaultTitle", "New Chat")
	v.SetDefault("chat.maxStreamDuration", 2*time.Minute)
	v.SetDefault("chat.lockTTL", 3*time.Minute)

	// CORS
	v.SetDefault("cors.allowedOrigins", []string{"http://localhost:5173", "http://localhost:3000"})
	v.SetDefault("cors.frontendUrl", "")

	// RateLimit
	v.SetDefault("rateLimit.rps", 2)
	v.SetDefault("rateLimit.burst", 5)

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")
}

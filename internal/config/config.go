package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config 描述了 SuiCoPilot 在启动阶段需要加载的核心配置。
type Config struct {
	Server    ServerConfig    `json:"server"`
	Logging   LoggingConfig   `json:"logging"`
	Auth      AuthConfig      `json:"auth"`
	LLM       LLMConfig       `json:"llm"`
	Sui       SuiConfig       `json:"sui"`
	Storage   StorageConfig   `json:"storage"`
	Queue     QueueConfig     `json:"queue"`
	Cache     CacheConfig     `json:"cache"`
	Knowledge KnowledgeConfig `json:"knowledge"`
	Alerting  AlertingConfig  `json:"alerting"`
	Runtime   RuntimeConfig   `json:"runtime"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address                string   `json:"address"`
	AllowedOrigins         []string `json:"allowed_origins"`
	ShutdownTimeoutSeconds int      `json:"shutdown_timeout_seconds"`
}

// ShutdownTimeout 返回优雅关闭的等待时间。
func (s ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeoutSeconds) * time.Second
}

// LoggingConfig 对应 pkg/logger 的初始化参数。
type LoggingConfig struct {
	Level      string   `json:"level"`
	Format     string   `json:"format"`
	Outputs    []string `json:"outputs"`
	AuditPath  string   `json:"audit_path"`
	MaxSizeMB  int      `json:"max_size_mb"`
	MaxBackups int      `json:"max_backups"`
	MaxAgeDays int      `json:"max_age_days"`
}

// AuthConfig 选择身份提供方。mode 取值 disabled、jwt 或 supabase。
type AuthConfig struct {
	Mode             string     `json:"mode"`
	JWTSecret        string     `json:"jwt_secret"`
	Issuer           string     `json:"issuer"`
	AccessTTLSeconds int64      `json:"access_ttl_seconds"`
	SupabaseURL      string     `json:"supabase_url"`
	SupabaseAnonKey  string     `json:"supabase_anon_key"`
	Seeds            []SeedUser `json:"seeds"`
}

// SeedUser 用于 jwt 模式下的初始账号。
type SeedUser struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LLMConfig 用于配置大模型推理的调用方式。
type LLMConfig struct {
	Provider       string       `json:"provider"`
	OpenAI         OpenAIConfig `json:"openai"`
	Gemini         GeminiConfig `json:"gemini"`
	MaxTokens      int          `json:"max_tokens"`
	Temperature    float64      `json:"temperature"`
	HistoryDepth   int          `json:"history_depth"`
	TimeoutSeconds int          `json:"timeout_seconds"`
}

// Timeout 返回单次补全调用的超时时间。
func (l LLMConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutSeconds) * time.Second
}

// OpenAIConfig 描述 OpenAI 兼容接口。
type OpenAIConfig struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
}

// GeminiConfig 描述 Google Gemini 接口。
type GeminiConfig struct {
	APIKey string `json:"api_key"`
	Model  string `json:"model"`
}

// SuiConfig 描述链上网关与签名桥。
type SuiConfig struct {
	DefaultNetwork string       `json:"default_network"`
	NetworksFile   string       `json:"networks_file"`
	GasBudget      uint64       `json:"gas_budget"`
	Signer         SignerConfig `json:"signer"`
}

// SignerConfig 指向钱包签名桥服务。
type SignerConfig struct {
	URL            string `json:"url"`
	Token          string `json:"token"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// StorageConfig 描述会话历史与交易日志的存储后端。driver 取值 memory、mysql 或 sqlite。
type StorageConfig struct {
	Driver                 string `json:"driver"`
	DSN                    string `json:"dsn"`
	MaxOpenConns           int    `json:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int    `json:"conn_max_idle_time_seconds"`
}

// QueueConfig 控制异步持久化任务的队列。
type QueueConfig struct {
	Driver      string         `json:"driver"`
	Worker      int            `json:"worker"`
	MaxAttempts int            `json:"max_attempts"`
	Redis       RedisConfig    `json:"redis"`
	RabbitMQ    RabbitMQConfig `json:"rabbitmq"`
}

// RedisConfig 同时用于 Redis 队列和缓存。
type RedisConfig struct {
	Address          string `json:"address"`
	Password         string `json:"password"`
	DB               int    `json:"db"`
	Queue            string `json:"queue"`
	BlockWaitSeconds int    `json:"block_wait_seconds"`
}

// RabbitMQConfig 描述 RabbitMQ 队列的连接参数。
type RabbitMQConfig struct {
	URL        string `json:"url"`
	Queue      string `json:"queue"`
	Prefetch   int    `json:"prefetch"`
	Durable    bool   `json:"durable"`
	AutoDelete bool   `json:"auto_delete"`
}

// CacheConfig 控制钱包快照缓存。
type CacheConfig struct {
	Redis            RedisConfig `json:"redis"`
	WalletTTLSeconds int         `json:"wallet_ttl_seconds"`
}

// KnowledgeConfig 允许替换内置的概念目录。
type KnowledgeConfig struct {
	Source     string `json:"source"`
	MaxResults int    `json:"max_results"`
}

// AlertingConfig 配置告警渠道。
type AlertingConfig struct {
	WebhookURL string `json:"webhook_url"`
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir string `json:"data_dir"`
}

// LoadEnv 从 .env 文件加载环境变量，文件不存在时忽略。
func LoadEnv(files ...string) error {
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("加载环境变量文件失败: %w", err)
	}
	return nil
}

// Load 负责解析指定路径的 JSON 配置文件，并用环境变量覆盖敏感字段。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv 使用环境变量覆盖密钥类配置，避免将其写入配置文件。
func (c *Config) applyEnv() {
	override := func(target *string, keys ...string) {
		for _, key := range keys {
			if value := strings.TrimSpace(os.Getenv(key)); value != "" {
				*target = value
				return
			}
		}
	}
	override(&c.Server.Address, "SUICOPILOT_ADDRESS")
	override(&c.LLM.OpenAI.APIKey, "OPENAI_API_KEY")
	override(&c.LLM.Gemini.APIKey, "GEMINI_API_KEY", "GOOGLE_API_KEY")
	override(&c.Auth.JWTSecret, "SUICOPILOT_JWT_SECRET", "SUPABASE_JWT_SECRET")
	override(&c.Auth.SupabaseURL, "SUPABASE_URL")
	override(&c.Auth.SupabaseAnonKey, "SUPABASE_ANON_KEY")
	override(&c.Storage.DSN, "SUICOPILOT_STORAGE_DSN")
	override(&c.Sui.Signer.Token, "SUICOPILOT_SIGNER_TOKEN")
	override(&c.Queue.Redis.Password, "REDIS_PASSWORD")
	override(&c.Cache.Redis.Password, "REDIS_PASSWORD")
	override(&c.Queue.RabbitMQ.URL, "RABBITMQ_URL")
	if raw := os.Getenv("SUICOPILOT_GAS_BUDGET"); raw != "" {
		if parsed, err := strconv.ParseUint(raw, 10, 64); err == nil {
			c.Sui.GasBudget = parsed
		}
	}
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.ShutdownTimeoutSeconds <= 0 {
		c.Server.ShutdownTimeoutSeconds = 5
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"*"}
	}

	if c.Auth.Mode == "" {
		c.Auth.Mode = "disabled"
	}
	if c.Auth.AccessTTLSeconds <= 0 {
		c.Auth.AccessTTLSeconds = 3600
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.MaxTokens <= 0 {
		c.LLM.MaxTokens = 1000
	}
	if c.LLM.Temperature <= 0 {
		c.LLM.Temperature = 0.7
	}
	if c.LLM.HistoryDepth <= 0 {
		c.LLM.HistoryDepth = 6
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = 60
	}

	if c.Sui.DefaultNetwork == "" {
		c.Sui.DefaultNetwork = "testnet"
	}
	if c.Sui.GasBudget == 0 {
		c.Sui.GasBudget = 10_000_000
	}
	if c.Sui.Signer.TimeoutSeconds <= 0 {
		c.Sui.Signer.TimeoutSeconds = 30
	}
	c.Sui.NetworksFile = resolvePath(baseDir, c.Sui.NetworksFile)

	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}

	if c.Queue.Driver == "" {
		c.Queue.Driver = "memory"
	}
	if c.Queue.Worker <= 0 {
		c.Queue.Worker = 2
	}
	if c.Queue.MaxAttempts <= 0 {
		c.Queue.MaxAttempts = 3
	}

	if c.Cache.WalletTTLSeconds <= 0 {
		c.Cache.WalletTTLSeconds = 30
	}

	if c.Knowledge.MaxResults <= 0 {
		c.Knowledge.MaxResults = 3
	}
	c.Knowledge.Source = resolvePath(baseDir, c.Knowledge.Source)

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else {
		c.Runtime.DataDir = resolvePath(baseDir, c.Runtime.DataDir)
	}
	if c.Storage.Driver == "sqlite" && c.Storage.DSN == "" {
		c.Storage.DSN = filepath.Join(c.Runtime.DataDir, "suicopilot.db")
	}
}

// Validate 检查无法通过默认值修复的配置组合。
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "memory", "sqlite":
	case "mysql":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			return errors.New("mysql 存储需要配置 dsn")
		}
	default:
		return fmt.Errorf("未知的存储驱动: %s", c.Storage.Driver)
	}
	switch c.Queue.Driver {
	case "memory", "redis", "rabbitmq":
	default:
		return fmt.Errorf("未知的队列驱动: %s", c.Queue.Driver)
	}
	switch c.LLM.Provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("未知的大模型提供方: %s", c.LLM.Provider)
	}
	switch c.Auth.Mode {
	case "disabled", "jwt", "supabase":
	default:
		return fmt.Errorf("未知的认证模式: %s", c.Auth.Mode)
	}
	return nil
}

func resolvePath(baseDir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

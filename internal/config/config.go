package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// AI 后端名称。
const (
	ProviderAuto    = "auto"
	ProviderArk     = "ark"
	ProviderOpenAI  = "openai"
	ProviderOffline = "offline"
)

// 预览冲突策略。
const (
	PreviewReplace = "replace"
	PreviewReject  = "reject"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server   ServerConfig
	Log      LogConfig
	AI       AIConfig
	Storage  StorageConfig
	Auth     AuthConfig
	Presence PresenceConfig
	Chat     ChatConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	storage, err := loadStorageConfig()
	if err != nil {
		return nil, err
	}

	auth, err := loadAuthConfig()
	if err != nil {
		return nil, err
	}

	presence, err := loadPresenceConfig()
	if err != nil {
		return nil, err
	}

	chat, err := loadChatConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:   server,
		Log:      loadLogConfig(),
		AI:       ai,
		Storage:  storage,
		Auth:     auth,
		Presence: presence,
		Chat:     chat,
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr        string
	CORSOrigins []string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	origins := splitList(getEnvOrDefault("CORS_ORIGINS", "*"))

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port, CORSOrigins: origins}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, CORSOrigins: origins}, nil
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Level string
	JSON  bool
}

func loadLogConfig() LogConfig {
	format := strings.ToLower(getEnvOrDefault("LOG_FORMAT", "json"))
	return LogConfig{
		Level: getEnvOrDefault("LOG_LEVEL", "info"),
		JSON:  format != "text",
	}
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	Provider      string
	APIKey        string
	AccessKey     string
	SecretKey     string
	Model         string
	BaseURL       string
	Region        string
	Temperature   *float64
	TopP          *float64
	MaxTokens     *int
	OpenAIKey     string
	OpenAIModel   string
	OpenAIBaseURL string
	Timeout       time.Duration
}

// ArkEnabled 表示是否提供了 Ark 必需的密钥。
func (c AIConfig) ArkEnabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// OpenAIEnabled 表示是否提供了 OpenAI 密钥。
func (c AIConfig) OpenAIEnabled() bool {
	return c.OpenAIKey != "" && c.OpenAIModel != ""
}

// ResolveProvider 根据 Provider 与凭证决定实际使用的后端。
func (c AIConfig) ResolveProvider() (string, error) {
	switch c.Provider {
	case ProviderArk:
		if !c.ArkEnabled() {
			return "", fmt.Errorf("AI_PROVIDER=ark but Ark credentials or Model are missing")
		}
		return ProviderArk, nil
	case ProviderOpenAI:
		if !c.OpenAIEnabled() {
			return "", fmt.Errorf("AI_PROVIDER=openai but OPENAI_API_KEY or OPENAI_MODEL is missing")
		}
		return ProviderOpenAI, nil
	case ProviderOffline:
		return ProviderOffline, nil
	case ProviderAuto, "":
		if c.ArkEnabled() {
			return ProviderArk, nil
		}
		if c.OpenAIEnabled() {
			return ProviderOpenAI, nil
		}
		return ProviderOffline, nil
	default:
		return "", fmt.Errorf("unknown AI_PROVIDER %q", c.Provider)
	}
}

// NewChatModel 使用配置创建一个 Ark 模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.ArkEnabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	timeout, err := parseDurationEnv("AI_TIMEOUT", 30*time.Second)
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		Provider:      strings.ToLower(getEnvOrDefault("AI_PROVIDER", ProviderAuto)),
		APIKey:        strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:     strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:     strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:         strings.TrimSpace(os.Getenv("Model")),
		BaseURL:       getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:        getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:   temperature,
		TopP:          topP,
		MaxTokens:     maxTokens,
		OpenAIKey:     strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIModel:   getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL: strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
		Timeout:       timeout,
	}, nil
}

// StorageConfig 描述文档库与 Redis 连接。两者为空时使用内存实现。
type StorageConfig struct {
	MongoURI      string
	MongoDatabase string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// MongoEnabled 表示是否配置了 MongoDB。
func (c StorageConfig) MongoEnabled() bool { return c.MongoURI != "" }

// RedisEnabled 表示是否配置了 Redis。
func (c StorageConfig) RedisEnabled() bool { return c.RedisAddr != "" }

func loadStorageConfig() (StorageConfig, error) {
	db, err := parseOptionalIntEnv("REDIS_DB")
	if err != nil {
		return StorageConfig{}, err
	}
	redisDB := 0
	if db != nil {
		redisDB = *db
	}

	return StorageConfig{
		MongoURI:      strings.TrimSpace(os.Getenv("MONGO_URI")),
		MongoDatabase: getEnvOrDefault("MONGO_DATABASE", "convosense"),
		RedisAddr:     strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       redisDB,
	}, nil
}

// AuthConfig 描述会话令牌。
type AuthConfig struct {
	Secret   string
	TokenTTL time.Duration
}

func loadAuthConfig() (AuthConfig, error) {
	ttl, err := parseDurationEnv("JWT_TTL", 24*time.Hour)
	if err != nil {
		return AuthConfig{}, err
	}
	secret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if secret == "" {
		return AuthConfig{}, fmt.Errorf("JWT_SECRET is required")
	}
	return AuthConfig{Secret: secret, TokenTTL: ttl}, nil
}

// PresenceConfig 描述在线状态心跳。
type PresenceConfig struct {
	TTL time.Duration
}

func loadPresenceConfig() (PresenceConfig, error) {
	ttl, err := parseDurationEnv("PRESENCE_TTL", 90*time.Second)
	if err != nil {
		return PresenceConfig{}, err
	}
	if ttl < time.Second {
		return PresenceConfig{}, fmt.Errorf("PRESENCE_TTL must be at least 1s, got %s", ttl)
	}
	return PresenceConfig{TTL: ttl}, nil
}

// ChatConfig 描述发送流程的策略与限流。
type ChatConfig struct {
	PreviewPolicy string
	SendRate      float64
	SendBurst     int
}

func loadChatConfig() (ChatConfig, error) {
	policy := strings.ToLower(getEnvOrDefault("PREVIEW_POLICY", PreviewReplace))
	if policy != PreviewReplace && policy != PreviewReject {
		return ChatConfig{}, fmt.Errorf("invalid PREVIEW_POLICY value %q", policy)
	}

	sendRate := 2.0
	if override, err := parseOptionalFloatEnv("SEND_RATE"); err != nil {
		return ChatConfig{}, err
	} else if override != nil {
		sendRate = *override
	}

	burst := 5
	if override, err := parseOptionalIntEnv("SEND_BURST"); err != nil {
		return ChatConfig{}, err
	} else if override != nil {
		if *override < 1 {
			burst = 1
		} else {
			burst = *override
		}
	}

	return ChatConfig{PreviewPolicy: policy, SendRate: sendRate, SendBurst: burst}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseDurationEnv 接受 Go duration 字符串，纯数字按秒处理。
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/hashicorp/go-multierror"
	"github.com/robfig/cron/v3"

	"github.com/zhouzirui/elder-companion/backend/internal/service/completion"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server  ServerConfig
	LLM     LLMConfig
	Session SessionConfig
	Log     LogConfig
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Port           string   `env:"PORT" envDefault:"8080"`
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	Addr string
}

// LLMConfig 描述补全接口配置。APIKey 为空时服务仍可启动，每次对话回退为致歉消息。
type LLMConfig struct {
	APIKey       string        `env:"SILICONFLOW_API_KEY"`
	LegacyAPIKey string        `env:"NEXT_PUBLIC_SILICONFLOW_API_KEY"`
	BaseURL      string        `env:"LLM_BASE_URL" envDefault:"https://api.siliconflow.cn/v1"`
	Model        string        `env:"LLM_MODEL" envDefault:"Qwen/Qwen2.5-7B-Instruct"`
	Temperature  float32       `env:"LLM_TEMPERATURE" envDefault:"0.7"`
	MaxTokens    int           `env:"LLM_MAX_TOKENS" envDefault:"800"`
	Timeout      time.Duration `env:"LLM_TIMEOUT" envDefault:"0s"`
}

// SessionConfig 控制会话生命周期。
type SessionConfig struct {
	IdleTTL       time.Duration `env:"SESSION_IDLE_TTL" envDefault:"30m"`
	SweepSchedule string        `env:"SESSION_SWEEP_SCHEDULE" envDefault:"@every 5m"`
}

// LogConfig 日志级别与格式。
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

// Enabled 表示是否提供了补全接口密钥。
func (c LLMConfig) Enabled() bool {
	return c.APIKey != ""
}

// Completion converts the settings into a completion client config.
func (c LLMConfig) Completion() completion.Config {
	return completion.Config{
		APIKey:      c.APIKey,
		BaseURL:     c.BaseURL,
		Model:       c.Model,
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
	}
}

// Load 从环境变量加载并校验配置。
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing env config: %w", err)
	}

	addr, err := normalizeAddr(cfg.Server.Port)
	if err != nil {
		return nil, err
	}
	cfg.Server.Addr = addr

	cfg.Server.AllowedOrigins = cleanList(cfg.Server.AllowedOrigins)
	cfg.LLM.APIKey = strings.TrimSpace(cfg.LLM.APIKey)
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = strings.TrimSpace(cfg.LLM.LegacyAPIKey)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 汇总所有配置错误后一次性返回。
func (c *Config) Validate() error {
	var result *multierror.Error

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		result = multierror.Append(result, fmt.Errorf("LLM_TEMPERATURE must be within [0, 2], got %v", c.LLM.Temperature))
	}
	if c.LLM.MaxTokens <= 0 {
		result = multierror.Append(result, fmt.Errorf("LLM_MAX_TOKENS must be positive, got %d", c.LLM.MaxTokens))
	}
	if c.LLM.Timeout < 0 {
		result = multierror.Append(result, fmt.Errorf("LLM_TIMEOUT must not be negative, got %s", c.LLM.Timeout))
	}
	if strings.TrimSpace(c.LLM.Model) == "" {
		result = multierror.Append(result, fmt.Errorf("LLM_MODEL must not be empty"))
	}
	if c.Session.IdleTTL < 0 {
		result = multierror.Append(result, fmt.Errorf("SESSION_IDLE_TTL must not be negative, got %s", c.Session.IdleTTL))
	}
	if _, err := cron.ParseStandard(c.Session.SweepSchedule); err != nil {
		result = multierror.Append(result, fmt.Errorf("invalid SESSION_SWEEP_SCHEDULE %q: %w", c.Session.SweepSchedule, err))
	}
	if len(cleanList(c.Server.AllowedOrigins)) == 0 {
		result = multierror.Append(result, fmt.Errorf("CORS_ALLOWED_ORIGINS must list at least one origin"))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		result = multierror.Append(result, fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Log.Format))
	}

	return result.ErrorOrNil()
}

func cleanList(items []string) []string {
	out := items[:0:0]
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// normalizeAddr 解析服务器监听地址。
func normalizeAddr(port string) (string, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return port, nil
	}

	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}

	return ":" + port, nil
}

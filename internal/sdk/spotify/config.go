package spotify

import (
	"time"

	zlog "github.com/discord-rose/lavalink-wrapper/pkg/log"
	"github.com/discord-rose/lavalink-wrapper/pkg/util/merr"
)

const (
	defaultTokenURL   = "https://accounts.spotify.com/api/token"
	defaultAPIBaseURL = "https://api.spotify.com"

	defaultRequestTimeout = 5 * time.Second
	defaultMaxAttempts    = 3
	// defaultPageLimit 为分页接口的单页条数上限。
	defaultPageLimit = 100
	// defaultRateLimit 为每秒请求数上限。
	defaultRateLimit = 10
)

// Config 描述第二目录（Spotify 风格的只读曲库）客户端的基础配置。
//
// 说明：
//   - ClientID/ClientSecret 为 client-credentials 授权的应用凭证；
//   - TokenURL/APIBaseURL 预留主要便于测试或未来多环境支持；
//   - MaxAttempts 为瞬时错误（网络错误、5xx）的总尝试次数。
type Config struct {
	ClientID     string
	ClientSecret string

	TokenURL   string
	APIBaseURL string

	RequestTimeout time.Duration
	MaxAttempts    int
	PageLimit      int
	// RateLimit 为每秒允许发出的请求数。
	RateLimit int

	// Logger 允许调用方注入自定义日志实例；为空时使用全局日志。
	Logger *zlog.MLogger
}

// Option 为 Config 的可选配置项。
type Option func(*Config)

// WithTokenURL 设置令牌端点地址。
func WithTokenURL(u string) Option {
	return func(c *Config) {
		if u != "" {
			c.TokenURL = u
		}
	}
}

// WithAPIBaseURL 设置资源查询接口的基础地址。
func WithAPIBaseURL(u string) Option {
	return func(c *Config) {
		if u != "" {
			c.APIBaseURL = u
		}
	}
}

// WithRequestTimeout 设置单次 HTTP 请求的超时时间。
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.RequestTimeout = d
		}
	}
}

// WithMaxRetries 设置瞬时错误的最大重试次数（不含首次调用）。
func WithMaxRetries(n int) Option {
	return func(c *Config) {
		if n >= 0 {
			c.MaxAttempts = n + 1
		}
	}
}

// WithPageLimit 设置分页接口的单页条数。
func WithPageLimit(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.PageLimit = n
		}
	}
}

// WithRateLimit 设置每秒请求数上限。
func WithRateLimit(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.RateLimit = n
		}
	}
}

// WithLogger 注入具名日志实例。
func WithLogger(l *zlog.MLogger) Option {
	return func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	}
}

// Validate 校验必填字段。
func (c *Config) Validate() error {
	if c.ClientID == "" {
		return merr.WrapErrConfigMissing("client-id")
	}
	if c.ClientSecret == "" {
		return merr.WrapErrConfigMissing("client-secret")
	}
	return nil
}

func (c *Config) fillDefaults() {
	if c.TokenURL == "" {
		c.TokenURL = defaultTokenURL
	}
	if c.APIBaseURL == "" {
		c.APIBaseURL = defaultAPIBaseURL
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.PageLimit <= 0 {
		c.PageLimit = defaultPageLimit
	}
	if c.RateLimit <= 0 {
		c.RateLimit = defaultRateLimit
	}
}

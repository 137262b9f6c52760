package node

import (
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"

	"github.com/discord-rose/lavalink-wrapper/pkg/util/merr"
)

// 默认超时与重连参数。
const (
	defaultConnectionTimeout = 5 * time.Second
	defaultRequestTimeout    = 10 * time.Second
	defaultRetryDelay        = 15 * time.Second
	defaultClientName        = "lavalink-wrapper"
)

// Config 描述到单个节点的连接配置。
type Config struct {
	// ID 为节点在池中的稳定编号。
	ID int `mapstructure:"id"`

	Host   string `mapstructure:"host"`
	Port   int    `mapstructure:"port"`
	Secure bool   `mapstructure:"secure"`

	// Password 为节点的共享密钥，随握手与每个 REST 请求携带。
	Password string `mapstructure:"password"`

	// UserID 为宿主应用的用户身份，节点要求在握手头中携带。
	UserID snowflake.ID `mapstructure:"user-id"`

	// ClientName 为握手头中的客户端名称。
	ClientName string `mapstructure:"client-name"`

	// ConnectionTimeout 为单次 WebSocket 握手的超时。
	ConnectionTimeout time.Duration `mapstructure:"connection-timeout"`

	// RequestTimeout 为单个 REST 请求的超时，与握手超时相互独立。
	RequestTimeout time.Duration `mapstructure:"request-timeout"`

	// RetryDelay 为重连的固定间隔。
	// 约束：ConnectionTimeout 必须小于 RetryDelay，保证挂起的握手不会与
	// 下一次重连嘀嗒重叠。
	RetryDelay time.Duration `mapstructure:"retry-delay"`

	// MaxRetries 为重连尝试上限；0 表示无限重试。
	MaxRetries int `mapstructure:"max-retries"`
}

func (cfg *Config) fillDefaults() {
	if cfg.ClientName == "" {
		cfg.ClientName = defaultClientName
	}
	if cfg.ConnectionTimeout <= 0 {
		cfg.ConnectionTimeout = defaultConnectionTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
}

// Validate 校验配置并填充默认值。所有配置错误在构造期暴露，不做延迟失败。
func (cfg *Config) Validate() error {
	if cfg.Host == "" {
		return merr.WrapErrConfigMissing("host")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return merr.WrapErrConfigInvalid("port", cfg.Port, "must be in (0, 65535]")
	}
	if cfg.Password == "" {
		return merr.WrapErrConfigMissing("password")
	}
	if cfg.UserID == 0 {
		return merr.WrapErrConfigMissing("user-id")
	}
	if cfg.MaxRetries < 0 {
		return merr.WrapErrConfigInvalid("max-retries", cfg.MaxRetries, "must not be negative")
	}

	cfg.fillDefaults()

	if cfg.ConnectionTimeout >= cfg.RetryDelay {
		return merr.WrapErrConfigInvalid("connection-timeout", cfg.ConnectionTimeout,
			fmt.Sprintf("must be less than retry-delay (%s)", cfg.RetryDelay))
	}
	return nil
}

// wsURL 返回 WebSocket 握手地址。
func (cfg *Config) wsURL() string {
	scheme := "ws"
	if cfg.Secure {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s:%d/", scheme, cfg.Host, cfg.Port)
}

// restURL 返回 REST 请求的基础地址。
func (cfg *Config) restURL(route string) string {
	scheme := "http"
	if cfg.Secure {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d%s", scheme, cfg.Host, cfg.Port, route)
}

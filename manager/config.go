package manager

import (
	"time"

	"github.com/discord-rose/lavalink-wrapper/node"
	"github.com/discord-rose/lavalink-wrapper/pkg/util/merr"
	"github.com/discord-rose/lavalink-wrapper/pkg/util/typeutil"
	"github.com/discord-rose/lavalink-wrapper/pkg/util/viper"
)

const (
	defaultSource        = "ytsearch"
	defaultRefreshMargin = 30 * time.Second
	// authRetryDelay 为凭证刷新失败后的短间隔重试延迟。
	authRetryDelay = 10 * time.Second
)

// CatalogConfig 为第二目录（可选）的接入配置，ClientID 为空表示未启用。
type CatalogConfig struct {
	ClientID     string `mapstructure:"client-id"`
	ClientSecret string `mapstructure:"client-secret"`
	TokenURL     string `mapstructure:"token-url"`
	APIBaseURL   string `mapstructure:"api-base-url"`

	// RefreshMargin 为提前于令牌过期刷新的时间量。
	RefreshMargin time.Duration `mapstructure:"refresh-margin"`
}

// Enabled 判断第二目录是否已配置。
func (c *CatalogConfig) Enabled() bool {
	return c != nil && c.ClientID != ""
}

// Config 为管理器的创建参数。
type Config struct {
	Nodes []node.Config `mapstructure:"nodes"`

	Catalog *CatalogConfig `mapstructure:"catalog"`

	// DefaultSource 为无显式来源时搜索查询使用的目录前缀。
	DefaultSource string `mapstructure:"default-source"`
}

// Validate 校验并填充默认值。节点编号必须全局唯一。
func (cfg *Config) Validate() error {
	if len(cfg.Nodes) == 0 {
		return merr.WrapErrConfigMissing("nodes")
	}

	seen := typeutil.NewSet[int]()
	for i := range cfg.Nodes {
		if err := cfg.Nodes[i].Validate(); err != nil {
			return err
		}
		if seen.Contain(cfg.Nodes[i].ID) {
			return merr.WrapErrConfigInvalid("nodes", cfg.Nodes[i].ID, "duplicate node id")
		}
		seen.Insert(cfg.Nodes[i].ID)
	}

	if cfg.DefaultSource == "" {
		cfg.DefaultSource = defaultSource
	}

	if cfg.Catalog.Enabled() {
		if cfg.Catalog.ClientSecret == "" {
			return merr.WrapErrConfigMissing("catalog.client-secret")
		}
		if cfg.Catalog.RefreshMargin <= 0 {
			cfg.Catalog.RefreshMargin = defaultRefreshMargin
		}
	}
	return nil
}

// ConfigFromFile 从 YAML/JSON 文件加载配置。
func ConfigFromFile(path string) (*Config, error) {
	v := viper.New()
	if err := v.LoadFile(path); err != nil {
		return nil, merr.WrapErrConfigInvalid("file", path, err.Error())
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, merr.WrapErrConfigInvalid("file", path, err.Error())
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

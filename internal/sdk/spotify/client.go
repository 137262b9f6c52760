package spotify

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/discord-rose/lavalink-wrapper/internal/json"
	zlog "github.com/discord-rose/lavalink-wrapper/pkg/log"
	"github.com/discord-rose/lavalink-wrapper/pkg/util/merr"
)

// retryInterval 为瞬时错误重试的固定间隔。
const retryInterval = 500 * time.Millisecond

// Client 封装第二目录的 REST 访问：client-credentials 授权、
// 资源查询与分页聚合。
//
// 设计目标：
//   - 令牌获取与业务查询分离，刷新节奏由上层调度；
//   - 网络错误与 5xx 按固定间隔有限重试，4xx 视为业务错误直接返回；
//   - 所有请求经由限速器平滑发出。
type Client struct {
	cfg    Config
	logger *zlog.MLogger

	httpClient *http.Client
	limiter    *rate.Limiter

	mu     sync.RWMutex
	token  string
	expiry time.Time
}

// Token 为一次授权成功后持有的凭证。
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

// NewClient 创建第二目录客户端。
// 调用方至少需要提供 ClientID 与 ClientSecret，其余字段可留空使用默认值。
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.fillDefaults()

	logger := cfg.Logger
	if logger == nil {
		logger = &zlog.MLogger{Logger: zlog.L()}
	}

	return &Client{
		cfg:    cfg,
		logger: logger,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimit),
	}, nil
}

// Authenticate 执行一次 client-credentials 授权，存下令牌并返回其有效期。
func (c *Client) Authenticate(ctx context.Context) (*Token, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, merr.WrapErrCatalogAuth(err)
	}
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, merr.WrapErrCatalogAuth(err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, merr.WrapErrCatalogAuth(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("token grant rejected",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", body))
		return nil, merr.WrapErrCatalogAuth(
			merr.WrapErrCatalogRequest(c.cfg.TokenURL, resp.StatusCode))
	}

	var grant struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&grant); err != nil {
		return nil, merr.WrapErrCatalogAuth(err)
	}
	if grant.AccessToken == "" {
		return nil, merr.WrapErrCatalogAuth(merr.ErrCatalogNoToken)
	}

	token := &Token{
		AccessToken: grant.AccessToken,
		ExpiresAt:   time.Now().Add(time.Duration(grant.ExpiresIn) * time.Second),
	}

	c.mu.Lock()
	c.token = token.AccessToken
	c.expiry = token.ExpiresAt
	c.mu.Unlock()

	return token, nil
}

// HasValidToken 判断当前是否持有未过期的令牌。
func (c *Client) HasValidToken() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token != "" && time.Now().Before(c.expiry)
}

func (c *Client) bearer() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token == "" || !time.Now().Before(c.expiry) {
		return "", merr.ErrCatalogNoToken
	}
	return c.token, nil
}

// getJSON 执行一次带鉴权的 GET 并解码响应。
// 网络错误与 5xx 按固定间隔重试至尝试上限；4xx 直接返回类型化错误。
func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
	token, err := c.bearer()
	if err != nil {
		return err
	}

	attempt := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(merr.WrapErrCatalogRequest(rawURL, 0))
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return backoff.Permanent(merr.WrapErrCatalogRequest(rawURL, 0))
		}
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			// 网络层失败，留给下一次尝试。
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return backoff.Permanent(merr.WrapErrCatalogRequest(rawURL, resp.StatusCode))
			}
			return nil

		case resp.StatusCode >= http.StatusInternalServerError:
			return merr.WrapErrCatalogRequest(rawURL, resp.StatusCode)

		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(merr.WrapErrCatalogNotFound(rawURL))

		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return backoff.Permanent(merr.WrapErrCatalogAuth(
				merr.WrapErrCatalogRequest(rawURL, resp.StatusCode)))

		default:
			return backoff.Permanent(merr.WrapErrCatalogRequest(rawURL, resp.StatusCode))
		}
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(retryInterval), uint64(c.cfg.MaxAttempts-1)),
		ctx)
	return backoff.Retry(attempt, bo)
}

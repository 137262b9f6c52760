package manager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/discord-rose/lavalink-wrapper/internal/sdk/spotify"
	"github.com/discord-rose/lavalink-wrapper/node"
	zlog "github.com/discord-rose/lavalink-wrapper/pkg/log"
	"github.com/discord-rose/lavalink-wrapper/pkg/util/conc"
	"github.com/discord-rose/lavalink-wrapper/pkg/util/merr"
	"github.com/discord-rose/lavalink-wrapper/pkg/util/retry"
	"github.com/discord-rose/lavalink-wrapper/player"
	"github.com/discord-rose/lavalink-wrapper/protocol"
	"github.com/discord-rose/lavalink-wrapper/voice"
)

// LoadMetric 为节点负载比较口径。
type LoadMetric int

const (
	// LoadMetricSystem 按 systemLoad / 核数比较（默认）。
	LoadMetricSystem LoadMetric = iota
	// LoadMetricLavalink 按节点自身上报的进程负载比较。
	LoadMetricLavalink
)

// Option 为 Manager 的可选配置项。
type Option func(*Manager)

// WithLoadMetric 设置节点负载比较口径。
func WithLoadMetric(metric LoadMetric) Option {
	return func(m *Manager) {
		m.loadMetric = metric
	}
}

// WithHooks 注入管理器级事件回调。
func WithHooks(h Hooks) Option {
	return func(m *Manager) {
		if h != nil {
			m.hooks = h
		}
	}
}

// Manager 为顶层门面：持有节点池与会话表，负责最低负载节点选择、
// 搜索/解码/跨目录解析，以及第二目录凭证的后台刷新。
//
// 约定：
//   - 节点池顺序在创建后保持稳定，负载相同按池内顺序取先者；
//   - 会话按公会键唯一，节点销毁时先快照受影响会话再级联销毁；
//   - 语音事件按公会路由到归属会话，无归属时静默丢弃。
type Manager struct {
	cfg     *Config
	logger  *zlog.MLogger
	gateway voice.Gateway
	hooks   Hooks

	loadMetric LoadMetric

	catalog *spotify.Client

	mu       sync.RWMutex
	nodes    []*node.Node
	sessions map[snowflake.ID]*player.Session

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
}

// New 根据配置构造管理器与其节点池，此时尚未发起任何连接。
func New(cfg *Config, gateway voice.Gateway, opts ...Option) (*Manager, error) {
	if cfg == nil {
		return nil, merr.WrapErrParameterMissing("cfg")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if gateway == nil {
		return nil, merr.WrapErrParameterMissing("gateway")
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:      cfg,
		logger:   zlog.With(zap.String("module", "manager")),
		gateway:  gateway,
		hooks:    BaseHooks{},
		sessions: make(map[snowflake.ID]*player.Session),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	events := &nodeEvents{m: m}
	for i := range cfg.Nodes {
		n, err := node.New(cfg.Nodes[i], events)
		if err != nil {
			cancel()
			return nil, err
		}
		m.nodes = append(m.nodes, n)
	}

	if cfg.Catalog.Enabled() {
		client, err := spotify.NewClient(spotify.Config{
			ClientID:     cfg.Catalog.ClientID,
			ClientSecret: cfg.Catalog.ClientSecret,
			TokenURL:     cfg.Catalog.TokenURL,
			APIBaseURL:   cfg.Catalog.APIBaseURL,
		})
		if err != nil {
			cancel()
			return nil, err
		}
		m.catalog = client
	}

	return m, nil
}

// Start 连接全部节点，并在配置了第二目录时启动凭证刷新循环。
func (m *Manager) Start(ctx context.Context) error {
	if m.catalog != nil {
		if err := conc.Go(m.credentialLoop); err != nil {
			return err
		}
	}
	return m.ConnectAll(ctx)
}

// ConnectAll 并发连接全部节点。
//
// 每个节点按自己的 RetryDelay 固定间隔重试，直到自己的 MaxRetries
// 耗尽；单个节点的失败不影响其余节点，结果按节点聚合返回。
// 已连接或正在重连的节点原样跳过：重复调用不产生任何副作用。
func (m *Manager) ConnectAll(ctx context.Context) error {
	m.mu.RLock()
	nodes := make([]*node.Node, len(m.nodes))
	copy(nodes, m.nodes)
	m.mu.RUnlock()

	errs := make([]error, len(nodes))
	var g errgroup.Group
	for i, n := range nodes {
		i, n := i, n
		g.Go(func() error {
			if n.State() != node.StateDisconnected {
				return nil
			}
			cfg := m.cfg.Nodes[i]
			attempts := uint(cfg.MaxRetries)
			err := retry.Do(ctx, func() error {
				return n.Connect(ctx)
			}, retry.Attempts(attempts),
				retry.FixedSleep(cfg.RetryDelay),
				retry.RetryErr(merr.IsRetryableErr))
			if err == nil {
				return nil
			}
			// 只有真实的连接失败（可重试类错误）耗尽后才拆节点；
			// 状态类错误或调用方取消都不构成销毁理由。
			if ctx.Err() != nil || !merr.IsRetryableErr(err) {
				return nil
			}
			n.Destroy("connect attempts exhausted")
			errs[i] = merr.WrapErrNodeReconnectGivenUp(n.ID(), cfg.MaxRetries)
			return nil
		})
	}
	_ = g.Wait()

	return merr.Combine(errs...)
}

// BestNode 在 Connected 节点中选出负载最低者，负载相同取池内顺序靠前者。
func (m *Manager) BestNode() (*node.Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bestNodeLocked()
}

func (m *Manager) bestNodeLocked() (*node.Node, error) {
	var best *node.Node
	var bestLoad float64

	for _, n := range m.nodes {
		if n.State() != node.StateConnected {
			continue
		}
		load := m.nodeLoad(n)
		if best == nil || load < bestLoad {
			best, bestLoad = n, load
		}
	}
	if best == nil {
		return nil, merr.WrapErrNodeNotAvailable()
	}
	return best, nil
}

// nodeLoad 计算比较用的负载值；尚无负载上报的节点视为空载。
func (m *Manager) nodeLoad(n *node.Node) float64 {
	stats := n.Stats()
	if stats == nil {
		return 0
	}
	if m.loadMetric == LoadMetricLavalink {
		return stats.CPU.LavalinkLoad
	}
	cores := stats.CPU.Cores
	if cores <= 0 {
		cores = 1
	}
	return stats.CPU.SystemLoad / float64(cores)
}

// CreateSession 为公会创建会话并绑定到当前负载最低的节点。
// 同一公会已有会话时拒绝；会话一旦创建绝不改绑节点。
func (m *Manager) CreateSession(cfg player.Config, h player.Handler) (*player.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[cfg.GuildID]; ok {
		return nil, merr.WrapErrSessionDuplicate(cfg.GuildID)
	}

	n, err := m.bestNodeLocked()
	if err != nil {
		return nil, err
	}

	s, err := player.New(cfg, n, m.gateway, m, h, m.removeSession)
	if err != nil {
		return nil, err
	}
	m.sessions[cfg.GuildID] = s

	m.logger.Info("session created",
		zap.Uint64("guild", uint64(cfg.GuildID)),
		zap.Int("node", n.ID()))
	return s, nil
}

// Session 返回公会对应的会话。
func (m *Manager) Session(guildID snowflake.ID) (*player.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[guildID]
	if !ok {
		return nil, merr.WrapErrSessionNotFound(guildID)
	}
	return s, nil
}

// Sessions 返回全部会话的快照。
func (m *Manager) Sessions() []*player.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*player.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// removeSession 在会话销毁时移除公会键，与状态转移一并发生。
func (m *Manager) removeSession(guildID snowflake.ID) {
	m.mu.Lock()
	delete(m.sessions, guildID)
	m.mu.Unlock()
}

// HandleVoiceServerUpdate 按公会路由语音服务器分配事件。
func (m *Manager) HandleVoiceServerUpdate(ctx context.Context, upd voice.ServerUpdate) {
	if s, err := m.Session(upd.GuildID); err == nil {
		s.HandleVoiceServerUpdate(ctx, upd)
	}
}

// HandleVoiceStateUpdate 按公会路由语音状态变化事件。
func (m *Manager) HandleVoiceStateUpdate(ctx context.Context, upd voice.StateUpdate) {
	if s, err := m.Session(upd.GuildID); err == nil {
		s.HandleVoiceStateUpdate(ctx, upd)
	}
}

// Close 销毁全部会话与节点，停止后台循环。幂等。
func (m *Manager) Close(ctx context.Context) {
	m.closeOnce.Do(func() {
		m.cancel()

		for _, s := range m.Sessions() {
			s.Destroy(ctx, "manager shutdown")
		}

		m.mu.RLock()
		nodes := make([]*node.Node, len(m.nodes))
		copy(nodes, m.nodes)
		m.mu.RUnlock()
		for _, n := range nodes {
			n.Destroy("manager shutdown")
		}
	})
}

// credentialLoop 维护第二目录凭证：启动即授权，在过期前按刷新余量
// 重新授权；失败上报后按短间隔重试，不等待下一个自然过期点。
func (m *Manager) credentialLoop() {
	for {
		var wait time.Duration

		token, err := m.catalog.Authenticate(m.ctx)
		if err != nil {
			if m.ctx.Err() != nil {
				return
			}
			m.logger.Warn("catalog authentication failed", zap.Error(err))
			m.hooks.OnCatalogAuthFailed(err)
			wait = authRetryDelay
		} else {
			m.hooks.OnCatalogAuthenticated(token.ExpiresAt)
			wait = time.Until(token.ExpiresAt) - m.cfg.Catalog.RefreshMargin
			if wait < time.Second {
				wait = time.Second
			}
		}

		select {
		case <-m.ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// nodeEvents 将节点回调接入管理器：上报 Hooks，并在节点销毁时
// 级联销毁绑定的会话、从池中移除该节点。
type nodeEvents struct {
	m *Manager
}

var _ node.Handler = (*nodeEvents)(nil)

func (e *nodeEvents) OnConnected(n *node.Node) {
	e.m.hooks.OnNodeConnected(n)
}

func (e *nodeEvents) OnDisconnected(n *node.Node, err error) {
	e.m.hooks.OnNodeDisconnected(n, err)
}

func (e *nodeEvents) OnStats(n *node.Node, stats *protocol.Stats) {}

func (e *nodeEvents) OnError(n *node.Node, err error) {
	e.m.hooks.OnNodeError(n, err)
}

func (e *nodeEvents) OnDestroy(n *node.Node, reason string) {
	m := e.m

	// 先快照受影响的会话，再级联销毁，避免边遍历边改表。
	m.mu.RLock()
	var bound []*player.Session
	for _, s := range m.sessions {
		if s.NodeID() == n.ID() {
			bound = append(bound, s)
		}
	}
	m.mu.RUnlock()

	cascade := fmt.Sprintf("node %d destroyed: %s", n.ID(), reason)
	for _, s := range bound {
		s.Destroy(context.Background(), cascade)
	}

	m.mu.Lock()
	for i, candidate := range m.nodes {
		if candidate == n {
			m.nodes = append(m.nodes[:i], m.nodes[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	m.hooks.OnNodeDestroyed(n, reason)
}

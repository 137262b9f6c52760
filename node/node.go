package node

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/disgoorg/snowflake/v2"
	"github.com/gorilla/websocket"
	uatomic "go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/discord-rose/lavalink-wrapper/internal/json"
	zlog "github.com/discord-rose/lavalink-wrapper/pkg/log"
	"github.com/discord-rose/lavalink-wrapper/pkg/metrics"
	"github.com/discord-rose/lavalink-wrapper/pkg/util/conc"
	"github.com/discord-rose/lavalink-wrapper/pkg/util/merr"
	"github.com/discord-rose/lavalink-wrapper/protocol"
)

// Node 维护到单个后端节点的一条 WebSocket 连接与一个 REST 客户端。
//
// 设计目标：
//   - 生命周期状态机：Disconnected → Connecting → Connected → Disconnected →
//     Reconnecting → Connected | Destroyed，Destroyed 为终态且可从任意状态进入；
//   - 异常断开后按固定间隔重连，尝试次数达到上限后自毁；
//   - 入站帧在接收协程上按序分发，避免交叉修改同一会话的状态。
type Node struct {
	cfg    Config
	logger *zlog.MLogger

	ctx    context.Context
	cancel context.CancelFunc

	state   uatomic.Int32
	retries uatomic.Int32

	h Handler

	// connMu 串行化对当前连接对象的替换与写操作。
	connMu sync.Mutex
	conn   *websocket.Conn

	httpClient *http.Client

	// statsMu 保护最近一次负载快照（浅替换）。
	statsMu sync.RWMutex
	stats   *protocol.Stats

	// subMu 保护按公会订阅的入站帧注册表。
	subMu sync.RWMutex
	subs  map[snowflake.ID]FrameHandler

	version versionInfo

	destroyOnce sync.Once
}

// New 创建一个节点连接。cfg 在此完成校验，违反约束的配置直接失败。
func New(cfg Config, h Handler) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if h == nil {
		h = BaseHandler{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	n := &Node{
		cfg:    cfg,
		logger: zlog.With(zap.Int("node", cfg.ID), zap.String("host", cfg.Host)),
		ctx:    ctx,
		cancel: cancel,
		h:      h,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		subs: make(map[snowflake.ID]FrameHandler),
	}
	n.state.Store(int32(StateDisconnected))
	return n, nil
}

// ID 返回节点在池中的稳定编号。
func (n *Node) ID() int {
	return n.cfg.ID
}

// State 返回当前生命周期状态。
func (n *Node) State() State {
	return State(n.state.Load())
}

// ReconnectAttempts 返回当前重连轮次中已失败的尝试次数。
func (n *Node) ReconnectAttempts() int {
	return int(n.retries.Load())
}

// Stats 返回最近一次负载快照；尚未收到上报时返回 nil。
func (n *Node) Stats() *protocol.Stats {
	n.statsMu.RLock()
	defer n.statsMu.RUnlock()
	return n.stats
}

// Connect 发起一次 WebSocket 握手。
//
// 仅允许从 Disconnected/Reconnecting 状态进入；握手超时由
// ConnectionTimeout 控制，成功后开始分发入站帧。
func (n *Node) Connect(ctx context.Context) error {
	prev := n.State()
	switch prev {
	case StateDisconnected, StateReconnecting:
	default:
		return merr.WrapErrSessionState(n.cfg.ID, prev.String(), "connect")
	}
	if !n.state.CompareAndSwap(int32(prev), int32(StateConnecting)) {
		return merr.WrapErrSessionState(n.cfg.ID, n.State().String(), "connect")
	}

	header := http.Header{}
	header.Set("Authorization", n.cfg.Password)
	header.Set("User-Id", n.cfg.UserID.String())
	header.Set("Client-Name", n.cfg.ClientName)

	dialer := websocket.Dialer{
		HandshakeTimeout: n.cfg.ConnectionTimeout,
	}

	dialCtx, cancel := context.WithTimeout(ctx, n.cfg.ConnectionTimeout)
	defer cancel()

	conn, _, err := dialer.DialContext(dialCtx, n.cfg.wsURL(), header)
	if err != nil {
		// 握手失败：回到调用前状态，保留调用方的重连循环。
		n.state.CompareAndSwap(int32(StateConnecting), int32(prev))
		if merr.IsCanceledOrTimeout(err) || dialCtx.Err() != nil {
			return merr.WrapErrNodeConnectTimeout(n.cfg.ID, n.cfg.ConnectionTimeout)
		}
		return merr.WrapErrNodeHandshakeFailed(n.cfg.ID, err)
	}

	n.connMu.Lock()
	n.conn = conn
	n.connMu.Unlock()

	if !n.state.CompareAndSwap(int32(StateConnecting), int32(StateConnected)) {
		// 握手期间被销毁。
		_ = conn.Close()
		return merr.WrapErrNodeDestroyed(n.cfg.ID, "destroyed during handshake")
	}

	n.retries.Store(0)
	n.logger.Info("node connected")

	if err := conc.Go(func() { n.recvLoop(conn) }); err != nil {
		return err
	}
	_ = conc.Go(func() { n.fetchVersion() })

	n.h.OnConnected(n)
	return nil
}

// Send 序列化并写出一个出站帧。仅在 Connected 状态下有效；
// 写失败返回错误但不改变连接状态。
func (n *Node) Send(frame any) error {
	if n.State() != StateConnected {
		return merr.WrapErrNodeNotConnected(n.cfg.ID, n.State().String())
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return merr.WrapErrNodeSendFailed(n.cfg.ID, err)
	}

	n.connMu.Lock()
	defer n.connMu.Unlock()
	if n.conn == nil {
		return merr.WrapErrNodeNotConnected(n.cfg.ID, n.State().String())
	}
	if err := n.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return merr.WrapErrNodeSendFailed(n.cfg.ID, err)
	}
	return nil
}

// Subscribe 注册某个公会的入站帧处理器，替换同公会的旧注册。
func (n *Node) Subscribe(guildID snowflake.ID, h FrameHandler) {
	n.subMu.Lock()
	defer n.subMu.Unlock()
	n.subs[guildID] = h
}

// Unsubscribe 取消某个公会的订阅。
func (n *Node) Unsubscribe(guildID snowflake.ID) {
	n.subMu.Lock()
	defer n.subMu.Unlock()
	delete(n.subs, guildID)
}

// Destroy 以正常关闭码优雅关闭连接，取消重连计时并进入终态。
// 幂等：重复调用无副作用。
func (n *Node) Destroy(reason string) {
	n.destroyOnce.Do(func() {
		n.state.Store(int32(StateDestroyed))
		n.cancel()

		n.connMu.Lock()
		if n.conn != nil {
			_ = n.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
				time.Now().Add(time.Second))
			_ = n.conn.Close()
			n.conn = nil
		}
		n.connMu.Unlock()

		n.logger.Info("node destroyed", zap.String("reason", reason))
		n.h.OnDestroy(n, reason)
	})
}

// recvLoop 持续读取入站帧并按序分发，连接断开时转入重连流程。
func (n *Node) recvLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			n.onReadError(conn, err)
			return
		}
		n.dispatch(data)
	}
}

func (n *Node) onReadError(conn *websocket.Conn, err error) {
	_ = conn.Close()

	if n.State() == StateDestroyed {
		return
	}

	// 正常关闭码不触发重连。
	if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		n.state.CompareAndSwap(int32(StateConnected), int32(StateDisconnected))
		n.logger.Info("node closed normally")
		return
	}

	n.state.CompareAndSwap(int32(StateConnected), int32(StateDisconnected))
	n.logger.Warn("node disconnected", zap.Error(err))
	n.h.OnDisconnected(n, err)

	n.state.CompareAndSwap(int32(StateDisconnected), int32(StateReconnecting))
	_ = conc.Go(n.reconnectLoop)
}

// reconnectLoop 按固定间隔重连，直到成功、销毁或尝试次数耗尽。
//
// 配置约束 ConnectionTimeout < RetryDelay 保证单次挂起的握手
// 不会与下一次嘀嗒重叠，因此这里不需要额外的并发防护。
func (n *Node) reconnectLoop() {
	bo := backoff.NewConstantBackOff(n.cfg.RetryDelay)

	for {
		select {
		case <-n.ctx.Done():
			return
		case <-time.After(bo.NextBackOff()):
		}

		if n.State() != StateReconnecting {
			return
		}

		attempt := int(n.retries.Inc())
		err := n.Connect(n.ctx)
		if err == nil {
			return
		}

		n.logger.Warn("node reconnect attempt failed",
			zap.Int("attempt", attempt),
			zap.Error(err))

		if n.cfg.MaxRetries > 0 && attempt >= n.cfg.MaxRetries {
			n.h.OnError(n, merr.WrapErrNodeReconnectGivenUp(n.cfg.ID, attempt))
			n.Destroy("reconnect attempts exhausted")
			return
		}
	}
}

// dispatch 解出帧头后路由：stats 进入负载快照，其余按公会定向分发。
func (n *Node) dispatch(data []byte) {
	h, err := protocol.DecodeHeader(data)
	if err != nil {
		n.h.OnError(n, err)
		return
	}

	switch h.Op {
	case protocol.OpStats:
		n.handleStats(data)

	case protocol.OpPlayerUpdate, protocol.OpEvent:
		n.subMu.RLock()
		sub := n.subs[h.GuildID]
		n.subMu.RUnlock()
		if sub != nil {
			sub(h.Op, data)
		}

	default:
		n.h.OnError(n, merr.WrapErrProtocolUnexpectedOp(string(h.Op)))
	}
}

func (n *Node) handleStats(data []byte) {
	stats := new(protocol.Stats)
	if err := json.Unmarshal(data, stats); err != nil {
		n.h.OnError(n, merr.WrapErrProtocolMalformed(string(protocol.OpStats), err))
		return
	}

	n.statsMu.Lock()
	n.stats = stats
	n.statsMu.Unlock()

	n.exportStats(stats)
	n.h.OnStats(n, stats)
}

func (n *Node) exportStats(stats *protocol.Stats) {
	id := strconv.Itoa(n.cfg.ID)
	metrics.NodePlayers.WithLabelValues(id).Set(float64(stats.Players))
	metrics.NodePlayingPlayers.WithLabelValues(id).Set(float64(stats.PlayingPlayers))
	metrics.NodeSystemLoad.WithLabelValues(id).Set(stats.CPU.SystemLoad)
	metrics.NodeLavalinkLoad.WithLabelValues(id).Set(stats.CPU.LavalinkLoad)
	metrics.NodeMemoryUsed.WithLabelValues(id).Set(float64(stats.Memory.Used))
	if stats.FrameStats != nil {
		metrics.NodeFramesSent.WithLabelValues(id).Set(float64(stats.FrameStats.Sent))
		metrics.NodeFramesDeficit.WithLabelValues(id).Set(float64(stats.FrameStats.Deficit))
	}
}

package player

import (
	"context"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"go.uber.org/zap"

	"github.com/discord-rose/lavalink-wrapper/internal/json"
	"github.com/discord-rose/lavalink-wrapper/node"
	zlog "github.com/discord-rose/lavalink-wrapper/pkg/log"
	"github.com/discord-rose/lavalink-wrapper/pkg/util/merr"
	"github.com/discord-rose/lavalink-wrapper/protocol"
	"github.com/discord-rose/lavalink-wrapper/track"
	"github.com/discord-rose/lavalink-wrapper/voice"
)

// State 为会话生命周期状态。
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StatePaused
	StatePlaying
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StatePaused:
		return "Paused"
	case StatePlaying:
		return "Playing"
	case StateDestroyed:
		return "Destroyed"
	}
	return "Unknown"
}

// active 判断会话是否处于已入会的活跃状态。
func (s State) active() bool {
	return s == StateConnected || s == StatePaused || s == StatePlaying
}

// Link 是会话对所绑节点连接的最小依赖，由 *node.Node 满足。
type Link interface {
	ID() int
	Send(frame any) error
	Subscribe(guildID snowflake.ID, h node.FrameHandler)
	Unsubscribe(guildID snowflake.ID)
}

var _ Link = (*node.Node)(nil)

// Resolver 把未解析引用换成可播放音轨，由管理器满足。
type Resolver interface {
	ResolveTrack(ctx context.Context, ref *track.Unresolved) (*track.Track, error)
}

// Session 为单个公会的播放会话状态机。
//
// 约定：
//   - 公开操作不支持对同一公会并发调用，嵌入方按公会串行分发指令；
//   - 入站帧由节点接收协程按序投递，与公开操作用同一把锁互斥；
//   - 会话绑定到创建时选定的节点，之后绝不改绑。
type Session struct {
	cfg      Config
	logger   *zlog.MLogger
	link     Link
	gateway  voice.Gateway
	resolver Resolver
	h        Handler

	// onRemove 在销毁时通知所有者将公会键移出会话表。
	onRemove func(guildID snowflake.ID)

	mu    sync.Mutex
	state State

	queue []track.Entry
	// index 为 -1 时表示当前没有进行中的队列位置。
	index int
	loop  LoopMode

	volume  int
	filters json.RawMessage

	// position 为节点最近上报的播放进度，单位毫秒。
	position int64
	// pausedStart 记录最近一个播放帧是否要求以暂停状态起播。
	pausedStart bool

	// lastState 为最近一次观测到的语音状态快照，首个快照前为 nil。
	lastState      *voice.StateUpdate
	voiceSessionID string
	// pendingServer 暂存先于语音状态到达的服务器分配事件。
	pendingServer *voice.ServerUpdate

	// isStage/speaker 为三态：nil 表示尚未观测。
	isStage *bool
	speaker *bool

	// connectDone 为进行中的 Connect 等待的完成信号。
	connectDone chan error

	destroyOnce sync.Once
}

// New 构造一个尚未入会的会话。
func New(cfg Config, link Link, gateway voice.Gateway, resolver Resolver, h Handler, onRemove func(snowflake.ID)) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if link == nil || gateway == nil || resolver == nil {
		return nil, merr.WrapErrParameterMissing("link/gateway/resolver")
	}
	if h == nil {
		h = BaseHandler{}
	}

	return &Session{
		cfg: cfg,
		logger: zlog.With(
			zap.Uint64("guild", uint64(cfg.GuildID)),
			zap.Int("node", link.ID()),
		),
		link:     link,
		gateway:  gateway,
		resolver: resolver,
		h:        h,
		onRemove: onRemove,
		index:    -1,
		loop:     LoopOff,
		volume:   defaultVolume,
	}, nil
}

// GuildID 返回会话归属的公会。
func (s *Session) GuildID() snowflake.ID {
	return s.cfg.GuildID
}

// NodeID 返回会话绑定的节点编号。
func (s *Session) NodeID() int {
	return s.link.ID()
}

// State 返回当前生命周期状态。
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Queue 返回队列快照。
func (s *Session) Queue() []track.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]track.Entry, len(s.queue))
	copy(out, s.queue)
	return out
}

// Index 返回当前队列位置；没有进行中的位置时第二个返回值为 false。
func (s *Session) Index() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index < 0 {
		return 0, false
	}
	return s.index, true
}

// Current 返回当前播放的音轨；无进行中位置时返回 nil。
func (s *Session) Current() *track.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentLocked()
}

func (s *Session) currentLocked() *track.Track {
	if s.index < 0 || s.index >= len(s.queue) {
		return nil
	}
	return s.queue[s.index].Resolved()
}

// Volume 返回会话音量。
func (s *Session) Volume() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

// Loop 返回循环模式。
func (s *Session) Loop() LoopMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loop
}

// Position 返回节点最近上报的播放进度（毫秒）。
func (s *Session) Position() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

// Connect 请求加入绑定的语音频道。
//
// 仅允许从 Disconnected 发起。入会结果不由网关直接应答，而是等待
// 语音状态事件回流确认加入了正确的频道；超时前未确认则拒绝本次连接。
// 频道为舞台类型时在确认入会后进行发言协商，协商失败销毁会话。
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateDisconnected {
		st := s.state
		s.mu.Unlock()
		return merr.WrapErrSessionState(s.cfg.GuildID, st.String(), "connect")
	}
	done := make(chan error, 1)
	s.state = StateConnecting
	s.connectDone = done
	s.mu.Unlock()

	stage, err := s.gateway.IsStageChannel(ctx, s.cfg.GuildID, s.cfg.VoiceChannelID)
	if err != nil {
		s.abortConnect()
		return merr.WrapErrVoiceConnect(s.cfg.GuildID, "channel type query failed: "+err.Error())
	}
	s.mu.Lock()
	s.isStage = &stage
	s.mu.Unlock()

	if err := s.gateway.JoinVoiceChannel(ctx, s.cfg.GuildID, s.cfg.VoiceChannelID, s.cfg.SelfMute, s.cfg.SelfDeaf); err != nil {
		s.abortConnect()
		return merr.WrapErrVoiceConnect(s.cfg.GuildID, "join request failed: "+err.Error())
	}

	timer := time.NewTimer(s.cfg.ConnectTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			return err
		}
	case <-timer.C:
		s.abortConnect()
		_ = s.gateway.LeaveVoiceChannel(context.Background(), s.cfg.GuildID)
		return merr.WrapErrVoiceConnect(s.cfg.GuildID, "timed out waiting for voice state")
	case <-ctx.Done():
		s.abortConnect()
		_ = s.gateway.LeaveVoiceChannel(context.Background(), s.cfg.GuildID)
		return merr.WrapErrVoiceConnect(s.cfg.GuildID, "canceled: "+ctx.Err().Error())
	}

	if stage && s.cfg.BecomeSpeaker {
		if err := s.negotiateSpeaker(ctx); err != nil {
			s.Destroy(ctx, "stage speaker negotiation failed")
			return err
		}
	}

	s.link.Subscribe(s.cfg.GuildID, s.onFrame)
	s.logger.Info("session connected",
		zap.Uint64("channel", uint64(s.cfg.VoiceChannelID)),
		zap.Bool("stage", stage))
	return nil
}

// abortConnect 撤销一次未完成的连接尝试，回到 Disconnected。
func (s *Session) abortConnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateConnecting {
		s.state = StateDisconnected
	}
	s.connectDone = nil
}

// negotiateSpeaker 按当前权限选择协商手段：可直接解除抑制则直接成为
// 发言者，否则请求发言；两者都不可用视为协商失败。
func (s *Session) negotiateSpeaker(ctx context.Context) error {
	caps, err := s.gateway.SpeakerCapabilities(ctx, s.cfg.GuildID, s.cfg.VoiceChannelID)
	if err != nil {
		return merr.WrapErrStageNegotiation(s.cfg.GuildID, s.cfg.VoiceChannelID)
	}

	switch {
	case caps.CanBecomeSpeaker:
		if err := s.gateway.BecomeSpeaker(ctx, s.cfg.GuildID); err != nil {
			return merr.WrapErrStageNegotiation(s.cfg.GuildID, s.cfg.VoiceChannelID)
		}
		speaking := true
		s.mu.Lock()
		s.speaker = &speaking
		s.mu.Unlock()

	case caps.CanRequestToSpeak:
		if err := s.gateway.RequestToSpeak(ctx, s.cfg.GuildID); err != nil {
			return merr.WrapErrStageNegotiation(s.cfg.GuildID, s.cfg.VoiceChannelID)
		}

	default:
		return merr.WrapErrStageNegotiation(s.cfg.GuildID, s.cfg.VoiceChannelID)
	}
	return nil
}

// Destroy 幂等销毁会话：退订节点帧，尽力离开语音频道并通知节点清理，
// 清空队列后进入终态，并从所有者的会话表中移除。
func (s *Session) Destroy(ctx context.Context, reason string) {
	s.destroyOnce.Do(func() {
		s.link.Unsubscribe(s.cfg.GuildID)

		s.mu.Lock()
		wasActive := s.state.active() || s.state == StateConnecting
		s.state = StateDestroyed
		s.queue = nil
		s.index = -1
		if s.connectDone != nil {
			s.connectDone <- merr.WrapErrSessionDestroyed(s.cfg.GuildID, reason)
			s.connectDone = nil
		}
		s.mu.Unlock()

		if wasActive {
			_ = s.gateway.LeaveVoiceChannel(ctx, s.cfg.GuildID)
			_ = s.link.Send(protocol.NewDestroyFrame(s.cfg.GuildID))
		}

		s.logger.Info("session destroyed", zap.String("reason", reason))
		s.h.OnDestroy(s, reason)
		if s.onRemove != nil {
			s.onRemove(s.cfg.GuildID)
		}
	})
}

// Package voice 定义宿主应用语音信令层的外部契约。
//
// 本库不依赖任何具体的聊天框架：嵌入方实现 Gateway 接口，并把网关推送的
// 语音事件转交给 SessionManager，即可驱动会话状态机。
package voice

import (
	"context"

	"github.com/disgoorg/snowflake/v2"

	"github.com/discord-rose/lavalink-wrapper/internal/json"
)

// ServerUpdate 为“语音服务器已分配”事件。
//
// Raw 保留网关下发的原始 JSON，原样转发给节点的 voiceUpdate 帧，
// 避免本层对字段演进做出假设。
type ServerUpdate struct {
	GuildID  snowflake.ID
	Token    string
	Endpoint string
	Raw      json.RawMessage
}

// StateUpdate 为“语音状态变化”事件（本应用自身的成员状态）。
type StateUpdate struct {
	GuildID snowflake.ID
	// ChannelID 为 nil 表示已离开语音频道。
	ChannelID *snowflake.ID
	SessionID string
	// Suppressed 表示在舞台频道中处于“听众”（非发言者）状态。
	Suppressed bool
}

// SpeakerCapabilities 描述当前权限下可用的舞台发言协商手段。
type SpeakerCapabilities struct {
	// CanBecomeSpeaker 表示可直接解除抑制成为发言者。
	CanBecomeSpeaker bool
	// CanRequestToSpeak 表示可发起请求发言。
	CanRequestToSpeak bool
}

// Gateway 是会话层对宿主语音信令能力的最小依赖。
//
// 约定：
//   - 所有方法都可能跨网络，必须接受 context 以支持超时；
//   - JoinVoiceChannel/LeaveVoiceChannel 只表达意图，加入结果通过
//     StateUpdate 事件回流；
//   - 实现方负责权限计算，本库只消费布尔结论。
type Gateway interface {
	// JoinVoiceChannel 请求加入指定语音频道。
	JoinVoiceChannel(ctx context.Context, guildID, channelID snowflake.ID, selfMute, selfDeaf bool) error

	// LeaveVoiceChannel 请求离开当前语音频道。
	LeaveVoiceChannel(ctx context.Context, guildID snowflake.ID) error

	// IsStageChannel 判断频道是否为舞台类型。
	IsStageChannel(ctx context.Context, guildID, channelID snowflake.ID) (bool, error)

	// SpeakerCapabilities 查询当前权限下的舞台发言协商能力。
	SpeakerCapabilities(ctx context.Context, guildID, channelID snowflake.ID) (SpeakerCapabilities, error)

	// BecomeSpeaker 直接解除自身的舞台抑制状态。
	BecomeSpeaker(ctx context.Context, guildID snowflake.ID) error

	// RequestToSpeak 发起请求发言。
	RequestToSpeak(ctx context.Context, guildID snowflake.ID) error
}

package player

import (
	"time"

	"github.com/disgoorg/snowflake/v2"

	"github.com/discord-rose/lavalink-wrapper/pkg/util/merr"
)

// Behavior 为语音频道变动时的处置策略，封闭取值。
type Behavior string

const (
	// BehaviorDestroy 在触发时直接销毁会话。
	BehaviorDestroy Behavior = "destroy"
	// BehaviorPause 在触发时暂停播放，条件恢复后自动继续。
	BehaviorPause Behavior = "pause"
)

func (b Behavior) Valid() bool {
	return b == BehaviorDestroy || b == BehaviorPause
}

// LoopMode 为队列循环模式，封闭取值。
type LoopMode string

const (
	LoopOff    LoopMode = "off"
	LoopSingle LoopMode = "single"
	LoopQueue  LoopMode = "queue"
)

func (m LoopMode) Valid() bool {
	switch m {
	case LoopOff, LoopSingle, LoopQueue:
		return true
	}
	return false
}

const (
	defaultConnectTimeout = 10 * time.Second

	// 音量合法区间与默认值。
	minVolume     = 0
	maxVolume     = 1000
	defaultVolume = 100
)

// Config 为单个会话的创建参数。
type Config struct {
	GuildID        snowflake.ID `mapstructure:"guild-id"`
	VoiceChannelID snowflake.ID `mapstructure:"voice-channel-id"`
	TextChannelID  snowflake.ID `mapstructure:"text-channel-id"`

	SelfMute bool `mapstructure:"self-mute"`
	SelfDeaf bool `mapstructure:"self-deaf"`

	// ConnectTimeout 为等待语音状态回流确认入会的上限。
	ConnectTimeout time.Duration `mapstructure:"connect-timeout"`

	// BecomeSpeaker 控制舞台频道下是否自动进行发言协商。
	BecomeSpeaker bool `mapstructure:"become-speaker"`

	// MoveBehavior 为被移出绑定频道时的处置策略。
	MoveBehavior Behavior `mapstructure:"move-behavior"`
	// StageMoveBehavior 为舞台频道中被重新抑制时的处置策略。
	StageMoveBehavior Behavior `mapstructure:"stage-move-behavior"`
}

// Validate 校验并填充默认值。
func (cfg *Config) Validate() error {
	if cfg.GuildID == 0 {
		return merr.WrapErrConfigMissing("guild-id")
	}
	if cfg.VoiceChannelID == 0 {
		return merr.WrapErrConfigMissing("voice-channel-id")
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.ConnectTimeout < 0 {
		return merr.WrapErrConfigInvalid("connect-timeout", cfg.ConnectTimeout, "must be positive")
	}
	if cfg.MoveBehavior == "" {
		cfg.MoveBehavior = BehaviorDestroy
	}
	if !cfg.MoveBehavior.Valid() {
		return merr.WrapErrConfigInvalid("move-behavior", cfg.MoveBehavior, "must be destroy or pause")
	}
	if cfg.StageMoveBehavior == "" {
		cfg.StageMoveBehavior = BehaviorDestroy
	}
	if !cfg.StageMoveBehavior.Valid() {
		return merr.WrapErrConfigInvalid("stage-move-behavior", cfg.StageMoveBehavior, "must be destroy or pause")
	}
	return nil
}

// PlayOptions 为 Play 的可选播放参数，零值字段不进入播放帧。
type PlayOptions struct {
	// StartTime/EndTime 单位毫秒。
	StartTime int64
	EndTime   int64
	// Volume 为本次播放的音量覆盖；nil 表示沿用会话音量。
	// 0 是合法覆盖值（静音）。
	Volume *int
	// Paused 表示以暂停状态开始播放。
	Paused bool
	// NoReplace 表示节点上已有播放时不替换。
	NoReplace bool
}

package protocol

import (
	"github.com/disgoorg/snowflake/v2"

	"github.com/discord-rose/lavalink-wrapper/internal/json"
	"github.com/discord-rose/lavalink-wrapper/pkg/util/merr"
)

// Op 为 WebSocket 帧的协议号（字符串标签）。
type Op string

const (
	// 出站协议号。
	OpPlay        Op = "play"
	OpStop        Op = "stop"
	OpPause       Op = "pause"
	OpSeek        Op = "seek"
	OpVolume      Op = "volume"
	OpFilters     Op = "filters"
	OpDestroy     Op = "destroy"
	OpVoiceUpdate Op = "voiceUpdate"

	// 入站协议号。
	OpPlayerUpdate Op = "playerUpdate"
	OpEvent        Op = "event"
	OpStats        Op = "stats"
)

// Valid 判断协议号是否为已知取值。
func (op Op) Valid() bool {
	switch op {
	case OpPlay, OpStop, OpPause, OpSeek, OpVolume, OpFilters, OpDestroy, OpVoiceUpdate,
		OpPlayerUpdate, OpEvent, OpStats:
		return true
	}
	return false
}

// Inbound 判断该协议号是否为节点推送方向。
func (op Op) Inbound() bool {
	switch op {
	case OpPlayerUpdate, OpEvent, OpStats:
		return true
	}
	return false
}

// EventType 为 event 帧的事件类型标签。
type EventType string

const (
	EventTrackStart      EventType = "TrackStartEvent"
	EventTrackEnd        EventType = "TrackEndEvent"
	EventTrackException  EventType = "TrackExceptionEvent"
	EventTrackStuck      EventType = "TrackStuckEvent"
	EventWebSocketClosed EventType = "WebSocketClosedEvent"
)

func (t EventType) Valid() bool {
	switch t {
	case EventTrackStart, EventTrackEnd, EventTrackException, EventTrackStuck, EventWebSocketClosed:
		return true
	}
	return false
}

// EndReason 为 TrackEndEvent 的结束原因标签。
type EndReason string

const (
	EndReasonFinished   EndReason = "FINISHED"
	EndReasonLoadFailed EndReason = "LOAD_FAILED"
	EndReasonStopped    EndReason = "STOPPED"
	EndReasonReplaced   EndReason = "REPLACED"
	EndReasonCleanup    EndReason = "CLEANUP"
)

// MayStartNext 判断该结束原因是否应触发队列推进。
// 主动停止与替换播放不推进，由发起方决定后续行为。
func (r EndReason) MayStartNext() bool {
	switch r {
	case EndReasonFinished, EndReasonLoadFailed:
		return true
	}
	return false
}

// Header 为入站帧的公共头：先解出 op 与 guildId，payload 延迟按类型解码。
type Header struct {
	Op      Op           `json:"op"`
	GuildID snowflake.ID `json:"guildId,omitempty"`
}

// DecodeHeader 从原始帧字节中解出公共头。
func DecodeHeader(data []byte) (*Header, error) {
	var h Header
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, merr.WrapErrProtocolMalformed("", err)
	}
	if !h.Op.Valid() {
		return nil, merr.WrapErrProtocolUnexpectedOp(string(h.Op))
	}
	return &h, nil
}

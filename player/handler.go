package player

import (
	"github.com/discord-rose/lavalink-wrapper/protocol"
	"github.com/discord-rose/lavalink-wrapper/track"
)

// 暂停/恢复事件附带的原因标签。
const (
	ReasonCommand    = "command"
	ReasonMoved      = "moved"
	ReasonSuppressed = "suppressed"
)

// Handler 描述会话在各播放阶段的回调能力。
//
// 回调在节点接收协程或调用方协程上触发，实现方不应阻塞，
// 也不应在回调内同步调用会话的公开操作。
type Handler interface {
	// OnTrackStart 在节点确认开始播放后触发。
	OnTrackStart(s *Session, t *track.Track)

	// OnTrackEnd 在音轨结束后触发，reason 为节点上报的结束原因。
	OnTrackEnd(s *Session, t *track.Track, reason protocol.EndReason)

	// OnTrackException 在节点上报播放异常时触发。
	OnTrackException(s *Session, t *track.Track, message string)

	// OnTrackStuck 在节点上报播放卡顿时触发，随后会话停止并推进队列。
	OnTrackStuck(s *Session, t *track.Track, thresholdMs int64)

	// OnPause/OnResume 在播放暂停/恢复时触发，reason 标注触发来源。
	OnPause(s *Session, reason string)
	OnResume(s *Session, reason string)

	// OnQueueEnd 在队列耗尽、播放自然停止时触发。
	OnQueueEnd(s *Session)

	// OnError 在队列推进等可恢复失败时触发。
	OnError(s *Session, err error)

	// OnDestroy 在会话进入终态后触发一次。
	OnDestroy(s *Session, reason string)
}

// BaseHandler 提供 Handler 的空实现，方便业务侧嵌入并按需覆写。
type BaseHandler struct{}

var _ Handler = (*BaseHandler)(nil)

func (BaseHandler) OnTrackStart(*Session, *track.Track)                    {}
func (BaseHandler) OnTrackEnd(*Session, *track.Track, protocol.EndReason)  {}
func (BaseHandler) OnTrackException(*Session, *track.Track, string)        {}
func (BaseHandler) OnTrackStuck(*Session, *track.Track, int64)             {}
func (BaseHandler) OnPause(*Session, string)                               {}
func (BaseHandler) OnResume(*Session, string)                              {}
func (BaseHandler) OnQueueEnd(*Session)                                    {}
func (BaseHandler) OnError(*Session, error)                                {}
func (BaseHandler) OnDestroy(*Session, string)                             {}

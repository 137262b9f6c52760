package player

import (
	"context"

	"go.uber.org/zap"

	"github.com/discord-rose/lavalink-wrapper/internal/json"
	"github.com/discord-rose/lavalink-wrapper/pkg/util/merr"
	"github.com/discord-rose/lavalink-wrapper/protocol"
	"github.com/discord-rose/lavalink-wrapper/voice"
)

// advanceLocked 推进队列到下一个可播放位置。
//
// 迭代且有界：单轮尝试次数不超过队列长度，整条队列都无法解析或
// 播放时按队列耗尽处理，清除位置并通知 OnQueueEnd。
func (s *Session) advanceLocked(ctx context.Context) {
	if len(s.queue) == 0 {
		s.index = -1
		s.h.OnQueueEnd(s)
		return
	}

	next := 0
	if s.index >= 0 {
		next = s.index
		if s.loop != LoopSingle {
			next++
		}
	}

	for tries := 0; tries <= len(s.queue); tries++ {
		if next >= len(s.queue) {
			if s.loop != LoopQueue {
				break
			}
			next = 0
		}

		t, err := s.resolveEntryLocked(ctx, next)
		if err == nil {
			err = s.playLocked(t, nil)
		}
		if err != nil {
			// 失败的条目跳过，继续向后尝试。
			s.h.OnError(s, err)
			next++
			continue
		}

		s.index = next
		return
	}

	s.index = -1
	s.h.OnQueueEnd(s)
}

// onFrame 处理节点投递的本公会入站帧，在节点接收协程上按序执行。
func (s *Session) onFrame(op protocol.Op, data []byte) {
	switch op {
	case protocol.OpPlayerUpdate:
		var upd protocol.PlayerUpdate
		if err := json.Unmarshal(data, &upd); err != nil {
			s.h.OnError(s, merr.WrapErrProtocolMalformed(string(op), err))
			return
		}
		s.mu.Lock()
		s.position = upd.State.Position
		if t := s.currentLocked(); t != nil {
			t.Info.Position = upd.State.Position
		}
		s.mu.Unlock()

	case protocol.OpEvent:
		var ev protocol.TrackEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			s.h.OnError(s, merr.WrapErrProtocolMalformed(string(op), err))
			return
		}
		s.handleEvent(&ev)
	}
}

func (s *Session) handleEvent(ev *protocol.TrackEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateDestroyed {
		return
	}

	switch ev.Type {
	case protocol.EventTrackStart:
		if s.pausedStart {
			s.state = StatePaused
		} else {
			s.state = StatePlaying
		}
		s.h.OnTrackStart(s, s.currentLocked())

	case protocol.EventTrackEnd:
		t := s.currentLocked()
		s.position = 0
		s.state = StateConnected
		s.h.OnTrackEnd(s, t, ev.Reason)
		if ev.Reason.MayStartNext() {
			s.advanceLocked(context.Background())
		}

	case protocol.EventTrackException:
		s.h.OnTrackException(s, s.currentLocked(), ev.Error)

	case protocol.EventTrackStuck:
		s.h.OnTrackStuck(s, s.currentLocked(), ev.ThresholdMs)
		if err := s.link.Send(protocol.NewStopFrame(s.cfg.GuildID)); err != nil {
			s.h.OnError(s, err)
		}
		s.position = 0
		s.state = StateConnected
		s.advanceLocked(context.Background())

	case protocol.EventWebSocketClosed:
		s.logger.Warn("voice websocket closed by node",
			zap.Int("code", ev.Code),
			zap.Bool("byRemote", ev.ByRemote))

	default:
		s.h.OnError(s, merr.WrapErrProtocolUnexpectedOp(string(ev.Type)))
	}
}

// HandleVoiceServerUpdate 将网关分配的语音服务器事件转发给节点。
// 语音会话标识尚未就绪时暂存，待状态事件补齐后再发。
func (s *Session) HandleVoiceServerUpdate(ctx context.Context, upd voice.ServerUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateDestroyed {
		return
	}

	if s.voiceSessionID == "" {
		s.pendingServer = &upd
		return
	}

	if err := s.link.Send(protocol.NewVoiceUpdateFrame(s.cfg.GuildID, s.voiceSessionID, upd.Raw)); err != nil {
		s.h.OnError(s, err)
	}
}

// HandleVoiceStateUpdate 对照上一个语音状态快照进行对账。
//
// 分支规则：
//   - Connecting：回流的频道与绑定频道一致则完成连接，否则销毁；
//   - 活跃状态且存在先前快照：按 MoveBehavior 处理频道变动，
//     舞台频道按 StageMoveBehavior 处理抑制位变化；
//   - 首个快照只做记录，不触发暂停/恢复/销毁。
//
// 无论走到哪个分支，新快照都会被记录为"最近观测"。
func (s *Session) HandleVoiceStateUpdate(ctx context.Context, upd voice.StateUpdate) {
	s.mu.Lock()

	if s.state == StateDestroyed {
		s.mu.Unlock()
		return
	}

	prev := s.lastState
	s.lastState = &upd

	if upd.SessionID != "" && upd.SessionID != s.voiceSessionID {
		s.voiceSessionID = upd.SessionID
		if s.pendingServer != nil {
			pending := s.pendingServer
			s.pendingServer = nil
			if err := s.link.Send(protocol.NewVoiceUpdateFrame(s.cfg.GuildID, s.voiceSessionID, pending.Raw)); err != nil {
				s.h.OnError(s, err)
			}
		}
	}

	inChannel := upd.ChannelID != nil && *upd.ChannelID == s.cfg.VoiceChannelID

	var destroyReason string
	var renegotiate bool

	switch {
	case s.state == StateConnecting:
		if inChannel {
			s.state = StateConnected
			if s.connectDone != nil {
				s.connectDone <- nil
				s.connectDone = nil
			}
		} else {
			destroyReason = "connected to incorrect channel"
		}

	case s.state.active() && prev != nil:
		wasInChannel := prev.ChannelID != nil && *prev.ChannelID == s.cfg.VoiceChannelID

		if !inChannel {
			if s.cfg.MoveBehavior == BehaviorDestroy {
				destroyReason = "moved out of bound voice channel"
			} else if s.state == StatePlaying {
				_ = s.pauseLocked(ReasonMoved)
			}
			break
		}

		if !wasInChannel && s.cfg.MoveBehavior == BehaviorPause && s.state == StatePaused {
			_ = s.resumeLocked(ReasonMoved)
		}

		if s.isStage != nil && *s.isStage && s.cfg.BecomeSpeaker {
			speaking := !upd.Suppressed
			s.speaker = &speaking

			switch {
			case upd.Suppressed && !prev.Suppressed:
				if s.cfg.StageMoveBehavior == BehaviorDestroy {
					destroyReason = "suppressed on stage channel"
					break
				}
				if s.state == StatePlaying {
					_ = s.pauseLocked(ReasonSuppressed)
				}
				renegotiate = true

			case !upd.Suppressed && prev.Suppressed:
				if s.cfg.StageMoveBehavior == BehaviorPause && s.state == StatePaused {
					_ = s.resumeLocked(ReasonSuppressed)
				}
			}
		}
	}

	s.mu.Unlock()

	if destroyReason != "" {
		s.Destroy(ctx, destroyReason)
		return
	}
	if renegotiate {
		if err := s.negotiateSpeaker(ctx); err != nil {
			s.h.OnError(s, err)
		}
	}
}

package player

import (
	"context"
	"math/rand"

	"github.com/discord-rose/lavalink-wrapper/internal/json"
	"github.com/discord-rose/lavalink-wrapper/pkg/util/merr"
	"github.com/discord-rose/lavalink-wrapper/protocol"
	"github.com/discord-rose/lavalink-wrapper/track"
)

// Play 将条目追加进队列。
//
// 会话空闲（Connected 且无进行中位置）时立即解析并播放第一条新条目；
// 已在播放或暂停时仅入队，不改变当前播放。
func (s *Session) Play(ctx context.Context, entries []track.Entry, opts *PlayOptions) error {
	if len(entries) == 0 {
		return merr.WrapErrParameterMissing("entries")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.active() {
		return merr.WrapErrSessionState(s.cfg.GuildID, s.state.String(), "play")
	}

	first := len(s.queue)
	s.queue = append(s.queue, entries...)

	if s.state != StateConnected || s.index >= 0 {
		return nil
	}

	t, err := s.resolveEntryLocked(ctx, first)
	if err != nil {
		return err
	}
	if err := s.playLocked(t, opts); err != nil {
		return err
	}
	s.index = first
	return nil
}

// Skip 停止当前播放后切换队列位置。
// 给定显式下标时播放该条目；否则按循环模式推进队列。
func (s *Session) Skip(ctx context.Context, index ...int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.active() {
		return merr.WrapErrSessionState(s.cfg.GuildID, s.state.String(), "skip")
	}

	if err := s.link.Send(protocol.NewStopFrame(s.cfg.GuildID)); err != nil {
		return err
	}

	if len(index) == 0 {
		s.advanceLocked(ctx)
		return nil
	}

	i := index[0]
	if i < 0 || i >= len(s.queue) {
		return merr.WrapErrParameterInvalidRange(0, len(s.queue)-1, i, "skip index out of range")
	}

	t, err := s.resolveEntryLocked(ctx, i)
	if err != nil {
		return err
	}
	if err := s.playLocked(t, nil); err != nil {
		return err
	}
	s.index = i
	return nil
}

// Shuffle 停止当前播放，对整条队列做无偏乱序，并从新的 0 号位开始播放。
func (s *Session) Shuffle(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.active() {
		return merr.WrapErrSessionState(s.cfg.GuildID, s.state.String(), "shuffle")
	}

	if err := s.link.Send(protocol.NewStopFrame(s.cfg.GuildID)); err != nil {
		return err
	}

	rand.Shuffle(len(s.queue), func(i, j int) {
		s.queue[i], s.queue[j] = s.queue[j], s.queue[i]
	})

	s.index = -1
	s.advanceLocked(ctx)
	return nil
}

// Seek 跳转到指定进度（毫秒），拒绝负值。
func (s *Session) Seek(ctx context.Context, position int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.active() {
		return merr.WrapErrSessionState(s.cfg.GuildID, s.state.String(), "seek")
	}
	if position < 0 {
		return merr.WrapErrParameterInvalid(int64(0), position, "seek position must not be negative")
	}
	return s.link.Send(protocol.NewSeekFrame(s.cfg.GuildID, position))
}

// Pause 暂停当前播放。
func (s *Session) Pause(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pauseLocked(ReasonCommand)
}

// Resume 恢复播放。
func (s *Session) Resume(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resumeLocked(ReasonCommand)
}

// Stop 停止播放并清除队列位置，回到 Connected。队列内容保留。
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.active() {
		return merr.WrapErrSessionState(s.cfg.GuildID, s.state.String(), "stop")
	}

	if err := s.link.Send(protocol.NewStopFrame(s.cfg.GuildID)); err != nil {
		return err
	}
	s.index = -1
	s.position = 0
	s.state = StateConnected
	return nil
}

// SetVolume 设置会话音量，合法区间 [0, 1000]。
// 音量被持久记录并带入后续播放帧；活跃状态下同时下发音量帧。
func (s *Session) SetVolume(ctx context.Context, volume int) error {
	if volume < minVolume || volume > maxVolume {
		return merr.WrapErrParameterInvalidRange(minVolume, maxVolume, volume, "volume")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateDestroyed {
		return merr.WrapErrSessionState(s.cfg.GuildID, s.state.String(), "setVolume")
	}

	s.volume = volume
	if s.state.active() {
		return s.link.Send(protocol.NewVolumeFrame(s.cfg.GuildID, volume))
	}
	return nil
}

// SetFilters 把滤镜文档原样转发给节点，空文档表示清除全部滤镜。
func (s *Session) SetFilters(ctx context.Context, filters json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.active() {
		return merr.WrapErrSessionState(s.cfg.GuildID, s.state.String(), "setFilters")
	}

	s.filters = filters
	return s.link.Send(protocol.NewFiltersFrame(s.cfg.GuildID, filters))
}

// Filters 返回当前滤镜文档。
func (s *Session) Filters() json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filters
}

// SetLoop 设置循环模式。
func (s *Session) SetLoop(mode LoopMode) error {
	if !mode.Valid() {
		return merr.WrapErrParameterInvalid(string(LoopOff), string(mode), "unknown loop mode")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateDestroyed {
		return merr.WrapErrSessionState(s.cfg.GuildID, s.state.String(), "setLoop")
	}
	s.loop = mode
	return nil
}

// playLocked 为指定音轨发送播放帧。未显式覆盖时带上会话音量。
func (s *Session) playLocked(t *track.Track, opts *PlayOptions) error {
	if err := t.Validate(); err != nil {
		return err
	}

	frame := protocol.NewPlayFrame(s.cfg.GuildID, t.Encoded)
	frame.Volume = s.volume
	if opts != nil {
		frame.StartTime = opts.StartTime
		frame.EndTime = opts.EndTime
		frame.Pause = opts.Paused
		frame.NoReplace = opts.NoReplace
		if opts.Volume != nil {
			if *opts.Volume < minVolume || *opts.Volume > maxVolume {
				return merr.WrapErrParameterInvalidRange(minVolume, maxVolume, *opts.Volume, "volume")
			}
			frame.Volume = *opts.Volume
		}
	}

	if err := s.link.Send(frame); err != nil {
		return err
	}
	s.pausedStart = frame.Pause
	s.position = 0
	return nil
}

// resolveEntryLocked 确保 i 号位持有已解析音轨：未解析引用经解析后
// 原位替换，保持队列位置不变。
func (s *Session) resolveEntryLocked(ctx context.Context, i int) (*track.Track, error) {
	entry := s.queue[i]
	if t := entry.Resolved(); t != nil {
		return t, nil
	}

	ref := entry.(*track.Unresolved)
	t, err := s.resolver.ResolveTrack(ctx, ref)
	if err != nil {
		return nil, merr.WrapErrTrackResolveFailed(ref.Title, err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	t.SetRequester(ref.Requester)
	s.queue[i] = t
	return t, nil
}

func (s *Session) pauseLocked(reason string) error {
	if !s.state.active() {
		return merr.WrapErrSessionState(s.cfg.GuildID, s.state.String(), "pause")
	}
	if err := s.link.Send(protocol.NewPauseFrame(s.cfg.GuildID, true)); err != nil {
		return err
	}
	s.state = StatePaused
	s.h.OnPause(s, reason)
	return nil
}

func (s *Session) resumeLocked(reason string) error {
	if !s.state.active() {
		return merr.WrapErrSessionState(s.cfg.GuildID, s.state.String(), "resume")
	}
	if err := s.link.Send(protocol.NewPauseFrame(s.cfg.GuildID, false)); err != nil {
		return err
	}
	s.state = StatePlaying
	s.h.OnResume(s, reason)
	return nil
}

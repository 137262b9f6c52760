package player

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/suite"

	"github.com/discord-rose/lavalink-wrapper/node"
	"github.com/discord-rose/lavalink-wrapper/pkg/util/merr"
	"github.com/discord-rose/lavalink-wrapper/protocol"
	"github.com/discord-rose/lavalink-wrapper/track"
	"github.com/discord-rose/lavalink-wrapper/voice"
)

const (
	testGuild   snowflake.ID = 100
	testChannel snowflake.ID = 200
)

// fakeLink 记录发出的全部帧，替代真实节点连接。
type fakeLink struct {
	mu      sync.Mutex
	frames  []any
	sendErr error
	subs    map[snowflake.ID]node.FrameHandler
}

func newFakeLink() *fakeLink {
	return &fakeLink{subs: make(map[snowflake.ID]node.FrameHandler)}
}

func (l *fakeLink) ID() int { return 1 }

func (l *fakeLink) Send(frame any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sendErr != nil {
		return l.sendErr
	}
	l.frames = append(l.frames, frame)
	return nil
}

func (l *fakeLink) Subscribe(guildID snowflake.ID, h node.FrameHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subs[guildID] = h
}

func (l *fakeLink) Unsubscribe(guildID snowflake.ID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.subs, guildID)
}

func (l *fakeLink) ops() []protocol.Op {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]protocol.Op, 0, len(l.frames))
	for _, f := range l.frames {
		switch f.(type) {
		case *protocol.PlayFrame:
			out = append(out, protocol.OpPlay)
		case *protocol.StopFrame:
			out = append(out, protocol.OpStop)
		case *protocol.PauseFrame:
			out = append(out, protocol.OpPause)
		case *protocol.SeekFrame:
			out = append(out, protocol.OpSeek)
		case *protocol.VolumeFrame:
			out = append(out, protocol.OpVolume)
		case *protocol.FiltersFrame:
			out = append(out, protocol.OpFilters)
		case *protocol.DestroyFrame:
			out = append(out, protocol.OpDestroy)
		case *protocol.VoiceUpdateFrame:
			out = append(out, protocol.OpVoiceUpdate)
		}
	}
	return out
}

func (l *fakeLink) playFrames() []*protocol.PlayFrame {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*protocol.PlayFrame
	for _, f := range l.frames {
		if p, ok := f.(*protocol.PlayFrame); ok {
			out = append(out, p)
		}
	}
	return out
}

func (l *fakeLink) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frames = nil
}

// fakeGateway 记录语音信令调用。
type fakeGateway struct {
	mu sync.Mutex

	stage bool
	caps  voice.SpeakerCapabilities

	joins, leaves, becomes, requests int
}

func (g *fakeGateway) JoinVoiceChannel(_ context.Context, _, _ snowflake.ID, _, _ bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.joins++
	return nil
}

func (g *fakeGateway) LeaveVoiceChannel(_ context.Context, _ snowflake.ID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.leaves++
	return nil
}

func (g *fakeGateway) IsStageChannel(_ context.Context, _, _ snowflake.ID) (bool, error) {
	return g.stage, nil
}

func (g *fakeGateway) SpeakerCapabilities(_ context.Context, _, _ snowflake.ID) (voice.SpeakerCapabilities, error) {
	return g.caps, nil
}

func (g *fakeGateway) BecomeSpeaker(_ context.Context, _ snowflake.ID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.becomes++
	return nil
}

func (g *fakeGateway) RequestToSpeak(_ context.Context, _ snowflake.ID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests++
	return nil
}

func (g *fakeGateway) counts() (joins, leaves, becomes, requests int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.joins, g.leaves, g.becomes, g.requests
}

// fakeResolver 按标题决定解析结果，标题带 "bad" 前缀的引用解析失败。
type fakeResolver struct{}

func (fakeResolver) ResolveTrack(_ context.Context, ref *track.Unresolved) (*track.Track, error) {
	if strings.HasPrefix(ref.Title, "bad") {
		return nil, merr.WrapErrTrackNoResults(ref.Title)
	}
	t := track.New("resolved:"+ref.Title, track.Info{Title: ref.Title, Author: ref.Author})
	return t, nil
}

// recorder 收集会话回调。
type recorder struct {
	BaseHandler

	mu        sync.Mutex
	errors    []error
	pauses    []string
	resumes   []string
	queueEnds int
	destroys  []string
}

func (r *recorder) OnPause(_ *Session, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pauses = append(r.pauses, reason)
}

func (r *recorder) OnResume(_ *Session, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resumes = append(r.resumes, reason)
}

func (r *recorder) OnQueueEnd(*Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queueEnds++
}

func (r *recorder) OnError(_ *Session, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, err)
}

func (r *recorder) OnDestroy(_ *Session, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.destroys = append(r.destroys, reason)
}

func newTrack(title string) *track.Track {
	return track.New("enc:"+title, track.Info{Title: title, Length: 180000})
}

type SessionSuite struct {
	suite.Suite

	link     *fakeLink
	gateway  *fakeGateway
	rec      *recorder
	removed  []snowflake.ID
	removeMu sync.Mutex
}

func (s *SessionSuite) SetupTest() {
	s.link = newFakeLink()
	s.gateway = &fakeGateway{}
	s.rec = &recorder{}
	s.removed = nil
}

func (s *SessionSuite) newSession(cfg Config) *Session {
	if cfg.GuildID == 0 {
		cfg.GuildID = testGuild
	}
	if cfg.VoiceChannelID == 0 {
		cfg.VoiceChannelID = testChannel
	}
	sess, err := New(cfg, s.link, s.gateway, fakeResolver{}, s.rec, func(id snowflake.ID) {
		s.removeMu.Lock()
		s.removed = append(s.removed, id)
		s.removeMu.Unlock()
	})
	s.Require().NoError(err)
	return sess
}

// connect 驱动完整的连接流程：发起 Connect 后注入匹配的语音状态事件。
func (s *SessionSuite) connect(sess *Session) {
	errCh := make(chan error, 1)
	go func() { errCh <- sess.Connect(context.Background()) }()

	s.Require().Eventually(func() bool {
		return sess.State() == StateConnecting
	}, time.Second, 5*time.Millisecond)

	ch := testChannel
	sess.HandleVoiceStateUpdate(context.Background(), voice.StateUpdate{
		GuildID:   testGuild,
		ChannelID: &ch,
		SessionID: "voice-session-1",
	})

	select {
	case err := <-errCh:
		s.Require().NoError(err)
	case <-time.After(2 * time.Second):
		s.FailNow("connect did not complete")
	}
}

func (s *SessionSuite) stateUpdate(sess *Session, channel *snowflake.ID, suppressed bool) {
	sess.HandleVoiceStateUpdate(context.Background(), voice.StateUpdate{
		GuildID:    testGuild,
		ChannelID:  channel,
		SessionID:  "voice-session-1",
		Suppressed: suppressed,
	})
}

func (s *SessionSuite) TestConfigValidate() {
	cfg := Config{GuildID: 1, VoiceChannelID: 2}
	s.NoError(cfg.Validate())
	s.Equal(BehaviorDestroy, cfg.MoveBehavior)
	s.Equal(BehaviorDestroy, cfg.StageMoveBehavior)
	s.Equal(defaultConnectTimeout, cfg.ConnectTimeout)

	bad := Config{GuildID: 1, VoiceChannelID: 2, MoveBehavior: "explode"}
	s.ErrorIs(bad.Validate(), merr.ErrConfigInvalid)

	missing := Config{VoiceChannelID: 2}
	s.ErrorIs(missing.Validate(), merr.ErrConfigMissing)
}

func (s *SessionSuite) TestConnectReconciliation() {
	sess := s.newSession(Config{})
	s.connect(sess)

	s.Equal(StateConnected, sess.State())
	joins, _, _, _ := s.gateway.counts()
	s.Equal(1, joins)

	// 连接完成后订阅本公会的入站帧。
	s.link.mu.Lock()
	_, subscribed := s.link.subs[testGuild]
	s.link.mu.Unlock()
	s.True(subscribed)
}

func (s *SessionSuite) TestConnectWrongChannelDestroys() {
	sess := s.newSession(Config{})

	errCh := make(chan error, 1)
	go func() { errCh <- sess.Connect(context.Background()) }()
	s.Require().Eventually(func() bool {
		return sess.State() == StateConnecting
	}, time.Second, 5*time.Millisecond)

	wrong := snowflake.ID(999)
	s.stateUpdate(sess, &wrong, false)

	s.ErrorIs(<-errCh, merr.ErrSessionDestroyed)
	s.Equal(StateDestroyed, sess.State())
	s.Contains(s.rec.destroys[0], "incorrect channel")
	s.Equal([]snowflake.ID{testGuild}, s.removed)
}

func (s *SessionSuite) TestConnectTimeout() {
	sess := s.newSession(Config{ConnectTimeout: 50 * time.Millisecond})

	err := sess.Connect(context.Background())
	s.ErrorIs(err, merr.ErrVoiceConnect)
	s.Equal(StateDisconnected, sess.State())
}

func (s *SessionSuite) TestPlaySkipSequence() {
	sess := s.newSession(Config{})
	s.connect(sess)
	s.link.reset()

	trackA, trackB := newTrack("a"), newTrack("b")
	s.Require().NoError(sess.Play(context.Background(), []track.Entry{trackA, trackB}, nil))

	plays := s.link.playFrames()
	s.Require().Len(plays, 1)
	s.Equal("enc:a", plays[0].Track)
	idx, ok := sess.Index()
	s.True(ok)
	s.Equal(0, idx)

	s.Require().NoError(sess.Skip(context.Background()))
	s.Equal([]protocol.Op{protocol.OpPlay, protocol.OpStop, protocol.OpPlay}, s.link.ops())

	plays = s.link.playFrames()
	s.Require().Len(plays, 2)
	s.Equal("enc:b", plays[1].Track)
	idx, ok = sess.Index()
	s.True(ok)
	s.Equal(1, idx)
}

func (s *SessionSuite) TestPlayWhileBusyOnlyQueues() {
	sess := s.newSession(Config{})
	s.connect(sess)

	s.Require().NoError(sess.Play(context.Background(), []track.Entry{newTrack("a")}, nil))
	sess.handleEvent(&protocol.TrackEvent{Type: protocol.EventTrackStart})
	s.Equal(StatePlaying, sess.State())
	s.link.reset()

	s.Require().NoError(sess.Play(context.Background(), []track.Entry{newTrack("b")}, nil))
	s.Empty(s.link.ops())
	s.Len(sess.Queue(), 2)
	idx, _ := sess.Index()
	s.Equal(0, idx)
}

func (s *SessionSuite) TestVolumeCarriedIntoPlayFrame() {
	sess := s.newSession(Config{})
	s.connect(sess)

	s.Require().NoError(sess.SetVolume(context.Background(), 250))
	s.Require().NoError(sess.Play(context.Background(), []track.Entry{newTrack("a")}, nil))

	plays := s.link.playFrames()
	s.Require().Len(plays, 1)
	s.Equal(250, plays[0].Volume)

	s.ErrorIs(sess.SetVolume(context.Background(), 1001), merr.ErrParameterInvalid)
	s.ErrorIs(sess.SetVolume(context.Background(), -1), merr.ErrParameterInvalid)
}

func (s *SessionSuite) TestVolumeZeroCarriedIntoPlayFrame() {
	sess := s.newSession(Config{})
	s.connect(sess)

	// 音量 0（静音）合法，且必须随播放帧下发。
	s.Require().NoError(sess.SetVolume(context.Background(), 0))
	s.Require().NoError(sess.Play(context.Background(), []track.Entry{newTrack("a")}, nil))

	plays := s.link.playFrames()
	s.Require().Len(plays, 1)
	s.Equal(0, plays[0].Volume)
}

func (s *SessionSuite) TestPlayOptionsVolumeOverride() {
	sess := s.newSession(Config{})
	s.connect(sess)

	muted := 0
	s.Require().NoError(sess.Play(context.Background(), []track.Entry{newTrack("a")}, &PlayOptions{Volume: &muted}))

	plays := s.link.playFrames()
	s.Require().Len(plays, 1)
	s.Equal(0, plays[0].Volume)
	// 覆盖只作用于本次播放，会话音量不变。
	s.Equal(100, sess.Volume())

	s.Require().NoError(sess.Stop(context.Background()))
	out := 1001
	err := sess.Play(context.Background(), []track.Entry{newTrack("b")}, &PlayOptions{Volume: &out})
	s.ErrorIs(err, merr.ErrParameterInvalid)
}

func (s *SessionSuite) TestAdvanceSkipsUnresolvable() {
	sess := s.newSession(Config{})
	s.connect(sess)

	entries := []track.Entry{
		newTrack("a"),
		&track.Unresolved{Title: "bad ref", Requester: 1},
		newTrack("c"),
	}
	s.Require().NoError(sess.Play(context.Background(), entries, nil))
	sess.handleEvent(&protocol.TrackEvent{Type: protocol.EventTrackStart})

	// 自然结束：推进跳过解析失败的条目，落在 c 上。
	sess.handleEvent(&protocol.TrackEvent{Type: protocol.EventTrackEnd, Reason: protocol.EndReasonFinished})

	idx, ok := sess.Index()
	s.Require().True(ok)
	s.Equal(2, idx)
	s.Len(s.rec.errors, 1)

	// 队列位置指向的条目始终是已解析音轨。
	queue := sess.Queue()
	s.NotNil(queue[idx].Resolved())
}

func (s *SessionSuite) TestQueueExhaustionClearsIndex() {
	sess := s.newSession(Config{})
	s.connect(sess)

	s.Require().NoError(sess.Play(context.Background(), []track.Entry{newTrack("a")}, nil))
	sess.handleEvent(&protocol.TrackEvent{Type: protocol.EventTrackStart})
	sess.handleEvent(&protocol.TrackEvent{Type: protocol.EventTrackEnd, Reason: protocol.EndReasonFinished})

	_, ok := sess.Index()
	s.False(ok)
	s.Equal(StateConnected, sess.State())
	s.Equal(1, s.rec.queueEnds)
}

func (s *SessionSuite) TestLoopSingleRepeats() {
	sess := s.newSession(Config{})
	s.connect(sess)
	s.Require().NoError(sess.SetLoop(LoopSingle))

	s.Require().NoError(sess.Play(context.Background(), []track.Entry{newTrack("a"), newTrack("b")}, nil))
	sess.handleEvent(&protocol.TrackEvent{Type: protocol.EventTrackStart})
	sess.handleEvent(&protocol.TrackEvent{Type: protocol.EventTrackEnd, Reason: protocol.EndReasonFinished})

	idx, ok := sess.Index()
	s.Require().True(ok)
	s.Equal(0, idx)

	plays := s.link.playFrames()
	s.Require().Len(plays, 2)
	s.Equal(plays[0].Track, plays[1].Track)
}

func (s *SessionSuite) TestLoopQueueWraps() {
	sess := s.newSession(Config{})
	s.connect(sess)
	s.Require().NoError(sess.SetLoop(LoopQueue))

	s.Require().NoError(sess.Play(context.Background(), []track.Entry{newTrack("a"), newTrack("b")}, nil))
	s.Require().NoError(sess.Skip(context.Background(), 1))
	sess.handleEvent(&protocol.TrackEvent{Type: protocol.EventTrackStart})
	sess.handleEvent(&protocol.TrackEvent{Type: protocol.EventTrackEnd, Reason: protocol.EndReasonFinished})

	idx, ok := sess.Index()
	s.Require().True(ok)
	s.Equal(0, idx)
}

func (s *SessionSuite) TestStoppedEndDoesNotAdvance() {
	sess := s.newSession(Config{})
	s.connect(sess)

	s.Require().NoError(sess.Play(context.Background(), []track.Entry{newTrack("a"), newTrack("b")}, nil))
	sess.handleEvent(&protocol.TrackEvent{Type: protocol.EventTrackStart})
	s.link.reset()

	sess.handleEvent(&protocol.TrackEvent{Type: protocol.EventTrackEnd, Reason: protocol.EndReasonStopped})
	s.Empty(s.link.playFrames())
	s.Equal(StateConnected, sess.State())
}

func (s *SessionSuite) TestShufflePermutation() {
	sess := s.newSession(Config{})
	s.connect(sess)

	var entries []track.Entry
	var titles []string
	for i := 0; i < 8; i++ {
		title := fmt.Sprintf("track-%d", i)
		entries = append(entries, newTrack(title))
		titles = append(titles, title)
	}
	s.Require().NoError(sess.Play(context.Background(), entries, nil))
	s.Require().NoError(sess.Shuffle(context.Background()))

	queue := sess.Queue()
	s.Require().Len(queue, len(titles))
	var after []string
	for _, e := range queue {
		after = append(after, e.Resolved().Info.Title)
	}
	s.ElementsMatch(titles, after)

	idx, ok := sess.Index()
	s.Require().True(ok)
	s.Equal(0, idx)
}

func (s *SessionSuite) TestPauseResume() {
	sess := s.newSession(Config{})
	s.connect(sess)

	s.Require().NoError(sess.Play(context.Background(), []track.Entry{newTrack("a")}, nil))
	sess.handleEvent(&protocol.TrackEvent{Type: protocol.EventTrackStart})
	s.Equal(StatePlaying, sess.State())

	s.Require().NoError(sess.Pause(context.Background()))
	s.Equal(StatePaused, sess.State())
	s.Equal([]string{ReasonCommand}, s.rec.pauses)

	s.Require().NoError(sess.Resume(context.Background()))
	s.Equal(StatePlaying, sess.State())
	s.Equal([]string{ReasonCommand}, s.rec.resumes)
}

func (s *SessionSuite) TestPausedStart() {
	sess := s.newSession(Config{})
	s.connect(sess)

	s.Require().NoError(sess.Play(context.Background(), []track.Entry{newTrack("a")}, &PlayOptions{Paused: true}))
	sess.handleEvent(&protocol.TrackEvent{Type: protocol.EventTrackStart})
	s.Equal(StatePaused, sess.State())
}

func (s *SessionSuite) TestSeekRejectsNegative() {
	sess := s.newSession(Config{})
	s.connect(sess)

	s.ErrorIs(sess.Seek(context.Background(), -1), merr.ErrParameterInvalid)
	s.NoError(sess.Seek(context.Background(), 1000))
}

func (s *SessionSuite) TestMoveBehaviorDestroy() {
	sess := s.newSession(Config{MoveBehavior: BehaviorDestroy})
	s.connect(sess)

	other := snowflake.ID(999)
	s.stateUpdate(sess, &other, false)

	s.Equal(StateDestroyed, sess.State())
	s.Equal([]snowflake.ID{testGuild}, s.removed)
}

func (s *SessionSuite) TestMoveBehaviorPause() {
	sess := s.newSession(Config{MoveBehavior: BehaviorPause})
	s.connect(sess)

	s.Require().NoError(sess.Play(context.Background(), []track.Entry{newTrack("a")}, nil))
	sess.handleEvent(&protocol.TrackEvent{Type: protocol.EventTrackStart})

	other := snowflake.ID(999)
	s.stateUpdate(sess, &other, false)
	s.Equal(StatePaused, sess.State())
	s.Equal([]string{ReasonMoved}, s.rec.pauses)

	ch := testChannel
	s.stateUpdate(sess, &ch, false)
	s.Equal(StatePlaying, sess.State())
	s.Equal([]string{ReasonMoved}, s.rec.resumes)
}

func (s *SessionSuite) TestStageSuppression() {
	s.gateway.stage = true
	s.gateway.caps = voice.SpeakerCapabilities{CanBecomeSpeaker: true}

	sess := s.newSession(Config{
		BecomeSpeaker:     true,
		StageMoveBehavior: BehaviorPause,
	})
	s.connect(sess)

	_, _, becomes, _ := s.gateway.counts()
	s.Equal(1, becomes)

	s.Require().NoError(sess.Play(context.Background(), []track.Entry{newTrack("a")}, nil))
	sess.handleEvent(&protocol.TrackEvent{Type: protocol.EventTrackStart})

	// 被重新抑制：暂停并重新协商发言。
	ch := testChannel
	s.stateUpdate(sess, &ch, true)
	s.Equal(StatePaused, sess.State())
	s.Equal([]string{ReasonSuppressed}, s.rec.pauses)
	_, _, becomes, _ = s.gateway.counts()
	s.Equal(2, becomes)

	// 解除抑制：恢复播放。
	s.stateUpdate(sess, &ch, false)
	s.Equal(StatePlaying, sess.State())
	s.Equal([]string{ReasonSuppressed}, s.rec.resumes)
}

func (s *SessionSuite) TestStageSuppressionDestroy() {
	s.gateway.stage = true
	s.gateway.caps = voice.SpeakerCapabilities{CanBecomeSpeaker: true}

	sess := s.newSession(Config{
		BecomeSpeaker:     true,
		StageMoveBehavior: BehaviorDestroy,
	})
	s.connect(sess)

	ch := testChannel
	s.stateUpdate(sess, &ch, true)
	s.Equal(StateDestroyed, sess.State())
}

func (s *SessionSuite) TestTrackStuckStopsAndAdvances() {
	sess := s.newSession(Config{})
	s.connect(sess)

	s.Require().NoError(sess.Play(context.Background(), []track.Entry{newTrack("a"), newTrack("b")}, nil))
	sess.handleEvent(&protocol.TrackEvent{Type: protocol.EventTrackStart})
	s.link.reset()

	sess.handleEvent(&protocol.TrackEvent{Type: protocol.EventTrackStuck, ThresholdMs: 5000})

	s.Equal([]protocol.Op{protocol.OpStop, protocol.OpPlay}, s.link.ops())
	idx, ok := sess.Index()
	s.Require().True(ok)
	s.Equal(1, idx)
}

func (s *SessionSuite) TestVoiceServerForwarding() {
	sess := s.newSession(Config{})

	// 先于语音状态到达的服务器事件被暂存。
	sess.HandleVoiceServerUpdate(context.Background(), voice.ServerUpdate{
		GuildID: testGuild,
		Raw:     []byte(`{"token":"tok","endpoint":"ep"}`),
	})
	s.Empty(s.link.ops())

	s.connect(sess)

	ops := s.link.ops()
	s.Contains(ops, protocol.OpVoiceUpdate)
}

func (s *SessionSuite) TestDestroyIdempotent() {
	sess := s.newSession(Config{})
	s.connect(sess)

	sess.Destroy(context.Background(), "first")
	sess.Destroy(context.Background(), "second")

	s.Equal(StateDestroyed, sess.State())
	s.Equal([]string{"first"}, s.rec.destroys)
	s.Equal([]snowflake.ID{testGuild}, s.removed)

	_, leaves, _, _ := s.gateway.counts()
	s.Equal(1, leaves)

	s.ErrorIs(sess.Play(context.Background(), []track.Entry{newTrack("a")}, nil), merr.ErrSessionState)
	s.ErrorIs(sess.Seek(context.Background(), 0), merr.ErrSessionState)
	s.ErrorIs(sess.Connect(context.Background()), merr.ErrSessionState)
}

func TestSession(t *testing.T) {
	suite.Run(t, new(SessionSuite))
}

package node

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"

	"github.com/discord-rose/lavalink-wrapper/pkg/util/merr"
	"github.com/discord-rose/lavalink-wrapper/protocol"
)

// fakeNode 为测试用的假后端：记录握手头，升级 WebSocket 后持有连接。
type fakeNode struct {
	srv *httptest.Server

	mu      sync.Mutex
	headers http.Header
	conns   chan *websocket.Conn
}

func newFakeNode(t *testing.T) *fakeNode {
	f := &fakeNode{
		conns: make(chan *websocket.Conn, 4),
	}
	upgrader := websocket.Upgrader{}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.headers = r.Header.Clone()
		f.mu.Unlock()

		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		f.conns <- c
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeNode) config() Config {
	u, _ := url.Parse(f.srv.URL)
	host, portStr, _ := net.SplitHostPort(u.Host)
	port, _ := strconv.Atoi(portStr)

	return Config{
		ID:                1,
		Host:              host,
		Port:              port,
		Password:          "youshallnotpass",
		UserID:            snowflake.ID(987654321),
		ConnectionTimeout: 2 * time.Second,
		RequestTimeout:    2 * time.Second,
		RetryDelay:        3 * time.Second,
		MaxRetries:        1,
	}
}

func (f *fakeNode) header() http.Header {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.headers
}

// captureHandler 把回调转成可等待的通道信号。
type captureHandler struct {
	BaseHandler

	connected chan struct{}
	stats     chan *protocol.Stats
	destroyed chan string
}

func newCaptureHandler() *captureHandler {
	return &captureHandler{
		connected: make(chan struct{}, 4),
		stats:     make(chan *protocol.Stats, 4),
		destroyed: make(chan string, 4),
	}
}

func (h *captureHandler) OnConnected(*Node) { h.connected <- struct{}{} }

func (h *captureHandler) OnStats(_ *Node, st *protocol.Stats) { h.stats <- st }

func (h *captureHandler) OnDestroy(_ *Node, reason string) { h.destroyed <- reason }

type NodeSuite struct {
	suite.Suite
}

func (s *NodeSuite) TestConfigValidate() {
	valid := Config{
		ID: 1, Host: "localhost", Port: 2333,
		Password: "secret", UserID: 1,
	}
	s.NoError(valid.Validate())
	// 默认值填充后必须满足超时约束。
	s.Less(valid.ConnectionTimeout, valid.RetryDelay)

	missingHost := valid
	missingHost.Host = ""
	s.ErrorIs(missingHost.Validate(), merr.ErrConfigMissing)

	badPort := valid
	badPort.Port = 70000
	s.ErrorIs(badPort.Validate(), merr.ErrConfigInvalid)

	negRetries := valid
	negRetries.MaxRetries = -1
	s.ErrorIs(negRetries.Validate(), merr.ErrConfigInvalid)

	// 连接超时不小于重试间隔的配置直接拒绝。
	conflict := valid
	conflict.ConnectionTimeout = 10 * time.Second
	conflict.RetryDelay = 5 * time.Second
	s.ErrorIs(conflict.Validate(), merr.ErrConfigInvalid)

	equal := valid
	equal.ConnectionTimeout = 5 * time.Second
	equal.RetryDelay = 5 * time.Second
	s.ErrorIs(equal.Validate(), merr.ErrConfigInvalid)
}

func (s *NodeSuite) TestConnectLifecycle() {
	fake := newFakeNode(s.T())
	h := newCaptureHandler()

	cfg := fake.config()
	cfg.ClientName = "test-client"
	n, err := New(cfg, h)
	s.Require().NoError(err)
	s.Equal(StateDisconnected, n.State())

	s.Require().NoError(n.Connect(context.Background()))
	s.Equal(StateConnected, n.State())

	select {
	case <-h.connected:
	case <-time.After(2 * time.Second):
		s.FailNow("OnConnected not signaled")
	}

	// 握手头携带共享密钥、宿主身份与客户端名。
	header := fake.header()
	s.Equal("youshallnotpass", header.Get("Authorization"))
	s.Equal("987654321", header.Get("User-Id"))
	s.Equal("test-client", header.Get("Client-Name"))

	// 重复连接被状态机拒绝。
	s.ErrorIs(n.Connect(context.Background()), merr.ErrSessionState)

	n.Destroy("test teardown")
	s.Equal(StateDestroyed, n.State())
	select {
	case reason := <-h.destroyed:
		s.Equal("test teardown", reason)
	case <-time.After(time.Second):
		s.FailNow("OnDestroy not signaled")
	}

	// Destroy 幂等。
	n.Destroy("again")
	s.Empty(h.destroyed)
}

func (s *NodeSuite) TestSendRequiresConnected() {
	fake := newFakeNode(s.T())
	n, err := New(fake.config(), nil)
	s.Require().NoError(err)

	err = n.Send(protocol.NewStopFrame(1))
	s.ErrorIs(err, merr.ErrNodeNotConnected)
}

func (s *NodeSuite) TestStatsSnapshot() {
	fake := newFakeNode(s.T())
	h := newCaptureHandler()
	n, err := New(fake.config(), h)
	s.Require().NoError(err)
	s.Require().NoError(n.Connect(context.Background()))
	defer n.Destroy("test teardown")

	conn := <-fake.conns
	payload := `{"op":"stats","players":3,"playingPlayers":1,"uptime":60,
		"memory":{"free":1,"used":2,"allocated":3,"reservable":4},
		"cpu":{"cores":4,"systemLoad":0.5,"lavalinkLoad":0.25}}`
	s.Require().NoError(conn.WriteMessage(websocket.TextMessage, []byte(payload)))

	select {
	case st := <-h.stats:
		s.Equal(3, st.Players)
		s.Equal(0.25, st.CPU.LavalinkLoad)
	case <-time.After(2 * time.Second):
		s.FailNow("OnStats not signaled")
	}
	s.NotNil(n.Stats())
	s.Equal(3, n.Stats().Players)
}

func (s *NodeSuite) TestGuildFrameDispatch() {
	fake := newFakeNode(s.T())
	n, err := New(fake.config(), nil)
	s.Require().NoError(err)
	s.Require().NoError(n.Connect(context.Background()))
	defer n.Destroy("test teardown")

	got := make(chan protocol.Op, 1)
	n.Subscribe(42, func(op protocol.Op, data []byte) {
		got <- op
	})

	conn := <-fake.conns
	payload := `{"op":"playerUpdate","guildId":"42","state":{"time":1,"position":1000}}`
	s.Require().NoError(conn.WriteMessage(websocket.TextMessage, []byte(payload)))

	select {
	case op := <-got:
		s.Equal(protocol.OpPlayerUpdate, op)
	case <-time.After(2 * time.Second):
		s.FailNow("subscriber not invoked")
	}

	// 退订后不再投递；帧被静默丢弃，连接保持。
	n.Unsubscribe(42)
	s.Require().NoError(conn.WriteMessage(websocket.TextMessage, []byte(payload)))
	select {
	case <-got:
		s.FailNow("unsubscribed handler invoked")
	case <-time.After(200 * time.Millisecond):
	}
	s.Equal(StateConnected, n.State())
}

func (s *NodeSuite) TestReconnectExhaustionDestroys() {
	fake := newFakeNode(s.T())
	h := newCaptureHandler()

	cfg := fake.config()
	cfg.ConnectionTimeout = 100 * time.Millisecond
	cfg.RetryDelay = 200 * time.Millisecond
	cfg.MaxRetries = 3
	n, err := New(cfg, h)
	s.Require().NoError(err)
	s.Require().NoError(n.Connect(context.Background()))
	<-h.connected

	// 关掉后端：当前连接异常断开，后续重连全部失败。
	conn := <-fake.conns
	_ = conn.Close()
	fake.srv.Close()

	select {
	case <-h.destroyed:
		s.Equal(StateDestroyed, n.State())
		s.Equal(3, n.ReconnectAttempts())
	case <-time.After(5 * time.Second):
		s.FailNow("node not destroyed after retry exhaustion")
	}
}

func (s *NodeSuite) TestRequest() {
	mux := http.NewServeMux()
	mux.HandleFunc("/loadtracks", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "youshallnotpass" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"loadType":"SEARCH_RESULT","tracks":[{"track":"abc","info":{"title":"t"}}]}`))
	})
	mux.HandleFunc("/decodetracks", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"track":"abc","info":{"title":"t"}}]`))
	})
	mux.HandleFunc("/nocontent", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/boom", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	u, _ := url.Parse(srv.URL)
	host, portStr, _ := net.SplitHostPort(u.Host)
	port, _ := strconv.Atoi(portStr)
	cfg := Config{
		ID: 1, Host: host, Port: port,
		Password: "youshallnotpass", UserID: 1,
	}
	n, err := New(cfg, nil)
	s.Require().NoError(err)

	ctx := context.Background()

	lr, err := n.LoadTracks(ctx, "ytsearch:test")
	s.NoError(err)
	s.Equal(protocol.LoadTypeSearchResult, lr.LoadType)
	s.Len(lr.Tracks, 1)

	payloads, err := n.DecodeTracks(ctx, []string{"abc"})
	s.NoError(err)
	s.Len(payloads, 1)
	s.Equal("t", payloads[0].Info.Title)

	// 204 不携带响应体。
	s.NoError(n.Request(ctx, http.MethodGet, "/nocontent", nil, &struct{}{}))

	s.ErrorIs(n.Request(ctx, http.MethodGet, "/boom", nil, nil), merr.ErrNodeRequestFailed)
}

func TestNode(t *testing.T) {
	suite.Run(t, new(NodeSuite))
}

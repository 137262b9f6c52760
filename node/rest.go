package node

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/blang/semver/v4"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/discord-rose/lavalink-wrapper/internal/json"
	"github.com/discord-rose/lavalink-wrapper/pkg/util/merr"
	"github.com/discord-rose/lavalink-wrapper/protocol"
)

// versionInfo 为节点上报的服务端版本，未上报或解析失败时 ok 为 false。
type versionInfo struct {
	mu sync.RWMutex
	v  semver.Version
	ok bool
}

// Request 执行一次 REST 请求：序列化 body、带鉴权头、按 RequestTimeout 超时。
// out 为 nil 或响应为 204 时跳过反序列化。
func (n *Node) Request(ctx context.Context, method, route string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return merr.WrapErrNodeRequestFailed(n.cfg.ID, route, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, n.cfg.restURL(route), reader)
	if err != nil {
		return merr.WrapErrNodeRequestFailed(n.cfg.ID, route, err)
	}
	req.Header.Set("Authorization", n.cfg.Password)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return merr.WrapErrNodeRequestFailed(n.cfg.ID, route, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return merr.WrapErrNodeRequestFailed(n.cfg.ID, route,
			errors.Newf("unexpected status %d", resp.StatusCode))
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return merr.WrapErrNodeRequestFailed(n.cfg.ID, route, err)
	}
	return nil
}

// LoadTracks 按标识符向节点请求音轨解析，返回原始结果信封。
// 标识符可以是直链 URL，也可以是带搜索前缀的查询串。
func (n *Node) LoadTracks(ctx context.Context, identifier string) (*protocol.LoadResult, error) {
	route := "/loadtracks?identifier=" + url.QueryEscape(identifier)

	result := new(protocol.LoadResult)
	if err := n.Request(ctx, http.MethodGet, route, nil, result); err != nil {
		return nil, err
	}
	if !result.LoadType.Valid() {
		return nil, merr.WrapErrProtocolMalformed("loadtracks",
			errors.Newf("unknown loadType %q", result.LoadType))
	}
	return result, nil
}

// DecodeTracks 将一批编码句柄还原为音轨元数据，返回顺序与入参一致。
func (n *Node) DecodeTracks(ctx context.Context, encoded []string) ([]protocol.TrackPayload, error) {
	if len(encoded) == 0 {
		return nil, nil
	}

	var payloads []protocol.TrackPayload
	if err := n.Request(ctx, http.MethodPost, "/decodetracks", encoded, &payloads); err != nil {
		return nil, err
	}
	return payloads, nil
}

// Version 返回节点上报的服务端版本；尚未获取到时第二个返回值为 false。
func (n *Node) Version() (semver.Version, bool) {
	n.version.mu.RLock()
	defer n.version.mu.RUnlock()
	return n.version.v, n.version.ok
}

// fetchVersion 在连接建立后拉取一次服务端版本，失败只记日志不影响连接。
func (n *Node) fetchVersion() {
	req, err := http.NewRequestWithContext(n.ctx, http.MethodGet, n.cfg.restURL("/version"), nil)
	if err != nil {
		return
	}
	req.Header.Set("Authorization", n.cfg.Password)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		n.logger.Debug("version probe failed", zap.Error(err))
		return
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil || resp.StatusCode != http.StatusOK {
		return
	}

	v, err := semver.ParseTolerant(strings.TrimSpace(string(raw)))
	if err != nil {
		n.logger.Debug("version probe returned unparseable payload",
			zap.String("payload", string(raw)))
		return
	}

	n.version.mu.Lock()
	n.version.v = v
	n.version.ok = true
	n.version.mu.Unlock()

	n.logger.Info("node version", zap.String("version", v.String()))
}

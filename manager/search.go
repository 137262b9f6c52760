package manager

import (
	"context"
	"strings"

	"github.com/disgoorg/snowflake/v2"

	"github.com/discord-rose/lavalink-wrapper/internal/sdk/spotify"
	"github.com/discord-rose/lavalink-wrapper/pkg/util/merr"
	"github.com/discord-rose/lavalink-wrapper/protocol"
	"github.com/discord-rose/lavalink-wrapper/track"
)

// 跨目录解析的时长匹配窗口：候选时长落在 [提示-2000ms, 提示+200ms]
// 内视为匹配。窗口刻意不对称，容忍目录上报略短的时长。
const (
	durationWindowBelow = 2000
	durationWindowAbove = 200
)

// SearchResult 为搜索的统一结果信封。
// 主目录返回已解析音轨，第二目录返回未解析引用，统一为队列条目。
type SearchResult struct {
	Type    protocol.LoadType
	Entries []track.Entry

	// Playlist 在歌单/专辑加载时携带元数据。
	Playlist *protocol.PlaylistInfo
	// Exception 在加载失败时携带节点返回的错误描述。
	Exception *protocol.LoadException
}

// Search 执行一次搜索。
//
// 查询命中第二目录链接且持有有效凭证时走第二目录：逐页聚合后返回
// 未解析引用（由队列推进时惰性解析）。否则走主目录：裸 URL 原样
// 透传，普通查询加上来源前缀后发给负载最低的节点。
func (m *Manager) Search(ctx context.Context, query string, requester snowflake.ID, source ...string) (*SearchResult, error) {
	if query == "" {
		return nil, merr.WrapErrParameterMissing("query")
	}

	if spotify.IsCatalogURL(query) && m.catalog != nil && m.catalog.HasValidToken() {
		return m.searchCatalog(ctx, query, requester)
	}

	identifier := query
	if !isBareURL(query) {
		prefix := m.cfg.DefaultSource
		if len(source) > 0 && source[0] != "" {
			prefix = source[0]
		}
		identifier = prefix + ":" + query
	}

	n, err := m.BestNode()
	if err != nil {
		return nil, err
	}

	lr, err := n.LoadTracks(ctx, identifier)
	if err != nil {
		return nil, err
	}

	result := &SearchResult{
		Type:      lr.LoadType,
		Playlist:  lr.PlaylistInfo,
		Exception: lr.Exception,
		Entries:   make([]track.Entry, 0, len(lr.Tracks)),
	}
	for i := range lr.Tracks {
		t := track.New(lr.Tracks[i].Track, lr.Tracks[i].Info)
		t.SetRequester(requester)
		result.Entries = append(result.Entries, t)
	}
	return result, nil
}

// searchCatalog 在第二目录中查询并转换为未解析引用。
func (m *Manager) searchCatalog(ctx context.Context, query string, requester snowflake.ID) (*SearchResult, error) {
	lookup, err := m.catalog.Lookup(ctx, query)
	if err != nil {
		return nil, err
	}

	entries := make([]track.Entry, 0, len(lookup.Items))
	for _, item := range lookup.Items {
		entries = append(entries, &track.Unresolved{
			Title:     item.Title,
			Author:    item.Author(),
			Length:    item.DurationMS,
			Requester: requester,
		})
	}

	if lookup.Kind == spotify.KindTrack {
		return &SearchResult{
			Type:    protocol.LoadTypeTrackLoaded,
			Entries: entries,
		}, nil
	}
	return &SearchResult{
		Type:    protocol.LoadTypePlaylistLoaded,
		Entries: entries,
		Playlist: &protocol.PlaylistInfo{
			Name:          lookup.Name,
			SelectedTrack: -1,
		},
	}, nil
}

// Decode 批量还原编码句柄。裸解码缺少请求者上下文，
// 统一标记为占位身份。
func (m *Manager) Decode(ctx context.Context, handles []string) ([]*track.Track, error) {
	n, err := m.BestNode()
	if err != nil {
		return nil, err
	}

	payloads, err := n.DecodeTracks(ctx, handles)
	if err != nil {
		return nil, err
	}

	tracks := make([]*track.Track, 0, len(payloads))
	for i := range payloads {
		t := track.New(payloads[i].Track, payloads[i].Info)
		t.SetRequester(track.UnknownRequester)
		tracks = append(tracks, t)
	}
	return tracks, nil
}

// ResolveTrack 把未解析引用解析为可播放音轨。
//
// 以 "标题 - 作者"（无作者时仅标题）重新搜索主目录，候选优先级：
// 作者精确匹配（含 "作者 - Topic" 频道惯例，忽略大小写）优先于
// 时长落在提示窗口内的候选，再退到首个候选。
func (m *Manager) ResolveTrack(ctx context.Context, ref *track.Unresolved) (*track.Track, error) {
	if ref == nil || ref.Title == "" {
		return nil, merr.WrapErrParameterMissing("ref")
	}

	query := ref.Title
	if ref.Author != "" {
		query = ref.Title + " - " + ref.Author
	}

	result, err := m.Search(ctx, query, ref.Requester)
	if err != nil {
		return nil, err
	}
	if result.Type != protocol.LoadTypeSearchResult {
		return nil, merr.WrapErrTrackNoResults(query)
	}

	candidates := make([]*track.Track, 0, len(result.Entries))
	for _, e := range result.Entries {
		if t := e.Resolved(); t != nil {
			candidates = append(candidates, t)
		}
	}
	if len(candidates) == 0 {
		return nil, merr.WrapErrTrackNoResults(query)
	}

	pick := m.pickCandidate(ref, candidates)
	pick.SetRequester(ref.Requester)
	return pick, nil
}

func (m *Manager) pickCandidate(ref *track.Unresolved, candidates []*track.Track) *track.Track {
	if ref.Author != "" {
		for _, c := range candidates {
			if strings.EqualFold(c.Info.Author, ref.Author) ||
				strings.EqualFold(c.Info.Author, ref.Author+" - Topic") {
				return c
			}
		}
	}

	if ref.Length > 0 {
		for _, c := range candidates {
			if c.Info.Length >= ref.Length-durationWindowBelow &&
				c.Info.Length <= ref.Length+durationWindowAbove {
				return c
			}
		}
	}

	return candidates[0]
}

func isBareURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

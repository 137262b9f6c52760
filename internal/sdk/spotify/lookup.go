package spotify

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/samber/lo"

	"github.com/discord-rose/lavalink-wrapper/pkg/util/merr"
)

// Kind 为可识别的资源类别。
type Kind string

const (
	KindTrack    Kind = "track"
	KindAlbum    Kind = "album"
	KindPlaylist Kind = "playlist"
)

// catalogURLRe 匹配 open.spotify.com 下的 track/album/playlist 链接。
var catalogURLRe = regexp.MustCompile(`^https?://open\.spotify\.com/(track|album|playlist)/([0-9A-Za-z]+)`)

// IsCatalogURL 判断给定字符串是否为可识别的第二目录链接。
func IsCatalogURL(s string) bool {
	return catalogURLRe.MatchString(s)
}

// Item 为目录条目的描述性元数据，不含可播放句柄。
type Item struct {
	Title   string
	Artists []string
	// DurationMS 为时长提示，单位毫秒。
	DurationMS int64
}

// Author 返回用于搜索匹配的合并作者名。
func (i Item) Author() string {
	return strings.Join(i.Artists, ", ")
}

// LookupResult 为一次目录查询的聚合结果。
// 专辑与歌单的全部分页在客户端聚合完成后一次性返回。
type LookupResult struct {
	Kind Kind
	// Name 为专辑/歌单名，单曲时为空。
	Name  string
	Items []Item
}

// 接口返回中的条目结构。
type trackObject struct {
	Name    string `json:"name"`
	Artists []struct {
		Name string `json:"name"`
	} `json:"artists"`
	DurationMS int64 `json:"duration_ms"`
}

func (t *trackObject) item() Item {
	artists := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		artists = append(artists, a.Name)
	}
	return Item{
		Title:      t.Name,
		Artists:    artists,
		DurationMS: t.DurationMS,
	}
}

type trackPage struct {
	Items []trackObject `json:"items"`
	Next  string        `json:"next"`
}

type playlistTrackPage struct {
	Items []struct {
		Track *trackObject `json:"track"`
	} `json:"items"`
	Next string `json:"next"`
}

// Lookup 解析目录链接并查询其内容。
//
// 单曲直接返回一条；专辑与歌单从首页起沿 next 链取完全部分页。
// 无法识别的链接返回 ErrCatalogBadLookup。
func (c *Client) Lookup(ctx context.Context, rawURL string) (*LookupResult, error) {
	m := catalogURLRe.FindStringSubmatch(rawURL)
	if m == nil {
		return nil, merr.WrapErrCatalogBadLookup(rawURL)
	}
	kind, id := Kind(m[1]), m[2]

	switch kind {
	case KindTrack:
		return c.lookupTrack(ctx, id)
	case KindAlbum:
		return c.lookupAlbum(ctx, id)
	case KindPlaylist:
		return c.lookupPlaylist(ctx, id)
	}
	return nil, merr.WrapErrCatalogBadLookup(rawURL)
}

func (c *Client) lookupTrack(ctx context.Context, id string) (*LookupResult, error) {
	var obj trackObject
	if err := c.getJSON(ctx, fmt.Sprintf("%s/v1/tracks/%s", c.cfg.APIBaseURL, id), &obj); err != nil {
		return nil, err
	}
	return &LookupResult{
		Kind:  KindTrack,
		Items: []Item{obj.item()},
	}, nil
}

func (c *Client) lookupAlbum(ctx context.Context, id string) (*LookupResult, error) {
	var album struct {
		Name string `json:"name"`
	}
	if err := c.getJSON(ctx, fmt.Sprintf("%s/v1/albums/%s", c.cfg.APIBaseURL, id), &album); err != nil {
		return nil, err
	}

	var items []Item
	next := fmt.Sprintf("%s/v1/albums/%s/tracks?offset=0&limit=%d", c.cfg.APIBaseURL, id, c.cfg.PageLimit)
	for next != "" {
		var page trackPage
		if err := c.getJSON(ctx, next, &page); err != nil {
			return nil, err
		}
		items = append(items, lo.Map(page.Items, func(t trackObject, _ int) Item { return t.item() })...)
		next = page.Next
	}

	return &LookupResult{
		Kind:  KindAlbum,
		Name:  album.Name,
		Items: items,
	}, nil
}

func (c *Client) lookupPlaylist(ctx context.Context, id string) (*LookupResult, error) {
	var playlist struct {
		Name string `json:"name"`
	}
	if err := c.getJSON(ctx, fmt.Sprintf("%s/v1/playlists/%s", c.cfg.APIBaseURL, id), &playlist); err != nil {
		return nil, err
	}

	var items []Item
	next := fmt.Sprintf("%s/v1/playlists/%s/tracks?offset=0&limit=%d", c.cfg.APIBaseURL, id, c.cfg.PageLimit)
	for next != "" {
		var page playlistTrackPage
		if err := c.getJSON(ctx, next, &page); err != nil {
			return nil, err
		}
		for i := range page.Items {
			// 本地文件等占位条目没有 track 对象，跳过。
			if page.Items[i].Track != nil {
				items = append(items, page.Items[i].Track.item())
			}
		}
		next = page.Next
	}

	return &LookupResult{
		Kind:  KindPlaylist,
		Name:  playlist.Name,
		Items: items,
	}, nil
}

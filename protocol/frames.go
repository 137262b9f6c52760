package protocol

import (
	"github.com/disgoorg/snowflake/v2"

	"github.com/discord-rose/lavalink-wrapper/internal/json"
	"github.com/discord-rose/lavalink-wrapper/track"
)

// 出站帧定义。每个帧自带 op 字段，直接整体序列化后写入 WebSocket。

// PlayFrame 指示节点开始播放指定句柄。
type PlayFrame struct {
	Op      Op           `json:"op"`
	GuildID snowflake.ID `json:"guildId"`
	Track   string       `json:"track"`
	// StartTime/EndTime 单位毫秒，零值时省略。
	StartTime int64 `json:"startTime,omitempty"`
	EndTime   int64 `json:"endTime,omitempty"`
	// Volume 总是携带：0 表示静音，是合法取值，不能省略。
	Volume    int   `json:"volume"`
	Pause     bool  `json:"pause,omitempty"`
	NoReplace bool  `json:"noReplace,omitempty"`
}

// NewPlayFrame 构造携带默认 op 的播放帧。
func NewPlayFrame(guildID snowflake.ID, encoded string) *PlayFrame {
	return &PlayFrame{Op: OpPlay, GuildID: guildID, Track: encoded}
}

type StopFrame struct {
	Op      Op           `json:"op"`
	GuildID snowflake.ID `json:"guildId"`
}

func NewStopFrame(guildID snowflake.ID) *StopFrame {
	return &StopFrame{Op: OpStop, GuildID: guildID}
}

type PauseFrame struct {
	Op      Op           `json:"op"`
	GuildID snowflake.ID `json:"guildId"`
	Pause   bool         `json:"pause"`
}

func NewPauseFrame(guildID snowflake.ID, pause bool) *PauseFrame {
	return &PauseFrame{Op: OpPause, GuildID: guildID, Pause: pause}
}

type SeekFrame struct {
	Op       Op           `json:"op"`
	GuildID  snowflake.ID `json:"guildId"`
	Position int64        `json:"position"`
}

func NewSeekFrame(guildID snowflake.ID, position int64) *SeekFrame {
	return &SeekFrame{Op: OpSeek, GuildID: guildID, Position: position}
}

type VolumeFrame struct {
	Op      Op           `json:"op"`
	GuildID snowflake.ID `json:"guildId"`
	Volume  int          `json:"volume"`
}

func NewVolumeFrame(guildID snowflake.ID, volume int) *VolumeFrame {
	return &VolumeFrame{Op: OpVolume, GuildID: guildID, Volume: volume}
}

// FiltersFrame 透传滤镜文档；文档内容由嵌入方与节点约定，本层不做解释。
type FiltersFrame struct {
	Op      Op              `json:"op"`
	GuildID snowflake.ID    `json:"guildId"`
	Filters json.RawMessage `json:"-"`
}

// MarshalJSON 将滤镜文档的键拍平到帧顶层，符合节点协议格式。
func (f *FiltersFrame) MarshalJSON() ([]byte, error) {
	base := map[string]any{
		"op":      f.Op,
		"guildId": f.GuildID,
	}
	if len(f.Filters) > 0 {
		var doc map[string]json.RawMessage
		if err := json.Unmarshal(f.Filters, &doc); err != nil {
			return nil, err
		}
		for k, v := range doc {
			if k == "op" || k == "guildId" {
				continue
			}
			base[k] = v
		}
	}
	return json.Marshal(base)
}

func NewFiltersFrame(guildID snowflake.ID, filters json.RawMessage) *FiltersFrame {
	return &FiltersFrame{Op: OpFilters, GuildID: guildID, Filters: filters}
}

type DestroyFrame struct {
	Op      Op           `json:"op"`
	GuildID snowflake.ID `json:"guildId"`
}

func NewDestroyFrame(guildID snowflake.ID) *DestroyFrame {
	return &DestroyFrame{Op: OpDestroy, GuildID: guildID}
}

// VoiceUpdateFrame 将宿主下发的语音服务器事件转发给节点。
type VoiceUpdateFrame struct {
	Op        Op              `json:"op"`
	GuildID   snowflake.ID    `json:"guildId"`
	SessionID string          `json:"sessionId"`
	Event     json.RawMessage `json:"event"`
}

func NewVoiceUpdateFrame(guildID snowflake.ID, sessionID string, event json.RawMessage) *VoiceUpdateFrame {
	return &VoiceUpdateFrame{Op: OpVoiceUpdate, GuildID: guildID, SessionID: sessionID, Event: event}
}

// 入站帧 payload 定义。

// PlayerUpdate 为节点周期推送的播放进度。
type PlayerUpdate struct {
	GuildID snowflake.ID `json:"guildId"`
	State   struct {
		Time     int64 `json:"time"`
		Position int64 `json:"position"`
	} `json:"state"`
}

// TrackEvent 为 event 帧的完整载荷，按 Type 取用对应字段。
type TrackEvent struct {
	GuildID snowflake.ID `json:"guildId"`
	Type    EventType    `json:"type"`
	// Track 为事件关联的编码句柄，部分事件可能缺失。
	Track  string    `json:"track,omitempty"`
	Reason EndReason `json:"reason,omitempty"`
	Error  string    `json:"error,omitempty"`
	// ThresholdMs 仅在 TrackStuckEvent 中出现。
	ThresholdMs int64 `json:"thresholdMs,omitempty"`
	// Code/ByRemote 仅在 WebSocketClosedEvent 中出现。
	Code     int  `json:"code,omitempty"`
	ByRemote bool `json:"byRemote,omitempty"`
}

// Stats 为节点全局负载的周期上报，无 guildId。
type Stats struct {
	Players        int   `json:"players"`
	PlayingPlayers int   `json:"playingPlayers"`
	Uptime         int64 `json:"uptime"`
	Memory         struct {
		Free       int64 `json:"free"`
		Used       int64 `json:"used"`
		Allocated  int64 `json:"allocated"`
		Reservable int64 `json:"reservable"`
	} `json:"memory"`
	CPU struct {
		Cores        int     `json:"cores"`
		SystemLoad   float64 `json:"systemLoad"`
		LavalinkLoad float64 `json:"lavalinkLoad"`
	} `json:"cpu"`
	FrameStats *struct {
		Sent    int64 `json:"sent"`
		Nulled  int64 `json:"nulled"`
		Deficit int64 `json:"deficit"`
	} `json:"frameStats,omitempty"`
}

// REST 载荷定义。

// LoadType 为 loadtracks 返回的结果类别标签。
type LoadType string

const (
	LoadTypeTrackLoaded    LoadType = "TRACK_LOADED"
	LoadTypePlaylistLoaded LoadType = "PLAYLIST_LOADED"
	LoadTypeSearchResult   LoadType = "SEARCH_RESULT"
	LoadTypeNoMatches      LoadType = "NO_MATCHES"
	LoadTypeLoadFailed     LoadType = "LOAD_FAILED"
)

func (t LoadType) Valid() bool {
	switch t {
	case LoadTypeTrackLoaded, LoadTypePlaylistLoaded, LoadTypeSearchResult,
		LoadTypeNoMatches, LoadTypeLoadFailed:
		return true
	}
	return false
}

// TrackPayload 为 REST 返回中的单条音轨（编码句柄 + 元数据）。
type TrackPayload struct {
	Track string     `json:"track"`
	Info  track.Info `json:"info"`
}

// PlaylistInfo 为歌单加载结果附带的元数据。
type PlaylistInfo struct {
	Name          string `json:"name"`
	SelectedTrack int    `json:"selectedTrack"`
}

// LoadException 为加载失败时的错误描述。
type LoadException struct {
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// LoadResult 为 GET /loadtracks 的响应信封。
type LoadResult struct {
	LoadType     LoadType       `json:"loadType"`
	PlaylistInfo *PlaylistInfo  `json:"playlistInfo,omitempty"`
	Tracks       []TrackPayload `json:"tracks"`
	Exception    *LoadException `json:"exception,omitempty"`
}

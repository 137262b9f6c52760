package track

import (
	"github.com/disgoorg/snowflake/v2"

	"github.com/discord-rose/lavalink-wrapper/pkg/util/merr"
)

// UnknownRequester 为批量解码等缺少请求者上下文的场景使用的占位身份。
const UnknownRequester snowflake.ID = 0

// Info 描述一条已解析音轨的元数据，字段与节点的 trackinfo 返回格式一致。
type Info struct {
	Identifier string `json:"identifier"`
	Title      string `json:"title"`
	Author     string `json:"author"`
	// Length 为音轨时长，单位毫秒。
	Length     int64  `json:"length"`
	IsStream   bool   `json:"isStream"`
	IsSeekable bool   `json:"isSeekable"`
	// Position 为节点最近一次上报的播放位置，单位毫秒。
	Position   int64  `json:"position"`
	URI        string `json:"uri"`
	SourceName string `json:"sourceName"`
}

// Track 表示一条可播放的音轨。
//
// 约定：
//   - Encoded 为节点返回的不透明编码句柄，是“可播放”的唯一凭证；
//   - Info 仅用于展示与匹配，播放指令只携带 Encoded；
//   - Requester 在解析时设置一次，之后不可变更。
type Track struct {
	Encoded string `json:"track"`
	Info    Info   `json:"info"`

	requester    snowflake.ID
	requesterSet bool
}

// New 根据编码句柄与元数据构造 Track。
func New(encoded string, info Info) *Track {
	return &Track{
		Encoded: encoded,
		Info:    info,
	}
}

// Validate 校验音轨是否持有合法的编码句柄。
func (t *Track) Validate() error {
	if t == nil || t.Encoded == "" {
		return merr.WrapErrTrackInvalid(t.title(), "empty encoded handle")
	}
	return nil
}

func (t *Track) title() string {
	if t == nil {
		return ""
	}
	return t.Info.Title
}

// Requester 返回请求者身份；未设置时返回 UnknownRequester。
func (t *Track) Requester() snowflake.ID {
	if !t.requesterSet {
		return UnknownRequester
	}
	return t.requester
}

// SetRequester 设置请求者身份。
// 只有第一次调用生效，之后的调用被忽略。
func (t *Track) SetRequester(id snowflake.ID) {
	if t.requesterSet {
		return
	}
	t.requester = id
	t.requesterSet = true
}

// Unresolved 表示仅有描述信息、尚未解析为可播放句柄的音轨引用。
//
// 它只存在于队列中，被惰性解析为 Track 后替换；绝不会直接发送给节点。
type Unresolved struct {
	Title     string
	Author    string
	// Length 为时长提示，单位毫秒；0 表示未知。
	Length    int64
	Requester snowflake.ID
}

// Entry 是队列元素的封闭接口：只有 Track 与 Unresolved 两种实现。
type Entry interface {
	// Resolved 返回已解析的 Track；未解析时返回 nil。
	Resolved() *Track

	queueEntry()
}

var (
	_ Entry = (*Track)(nil)
	_ Entry = (*Unresolved)(nil)
)

func (t *Track) Resolved() *Track { return t }
func (t *Track) queueEntry()      {}

func (u *Unresolved) Resolved() *Track { return nil }
func (u *Unresolved) queueEntry()      {}

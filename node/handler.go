package node

import (
	"github.com/discord-rose/lavalink-wrapper/protocol"
)

// FrameHandler 处理某个公会订阅到的入站帧。
// data 为完整的原始帧字节，由订阅方按 op 解码具体类型。
type FrameHandler func(op protocol.Op, data []byte)

// Handler 描述节点在各生命周期阶段的回调能力。
//
// 所有回调都在节点的接收协程上按序触发，实现方不应阻塞。
type Handler interface {
	// OnConnected 在握手成功、开始分发入站帧后触发。
	OnConnected(n *Node)

	// OnDisconnected 在连接异常断开、进入重连流程前触发。
	OnDisconnected(n *Node, err error)

	// OnStats 在收到节点负载上报后触发。
	OnStats(n *Node, stats *protocol.Stats)

	// OnError 在协议解码失败等非致命错误时触发，连接状态不受影响。
	OnError(n *Node, err error)

	// OnDestroy 在节点进入终态后触发一次；实现方应在此级联销毁绑定的会话。
	OnDestroy(n *Node, reason string)
}

// BaseHandler 提供 Handler 的空实现，方便业务侧嵌入并按需覆写。
type BaseHandler struct{}

var _ Handler = (*BaseHandler)(nil)

func (BaseHandler) OnConnected(*Node)              {}
func (BaseHandler) OnDisconnected(*Node, error)    {}
func (BaseHandler) OnStats(*Node, *protocol.Stats) {}
func (BaseHandler) OnError(*Node, error)           {}
func (BaseHandler) OnDestroy(*Node, string)        {}

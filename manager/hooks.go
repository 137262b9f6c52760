package manager

import (
	"time"

	"github.com/discord-rose/lavalink-wrapper/node"
)

// Hooks 描述管理器级别的事件回调能力。
//
// 回调可能在节点接收协程或后台刷新协程上触发，实现方不应阻塞。
type Hooks interface {
	// OnNodeConnected 在某个节点完成握手后触发。
	OnNodeConnected(n *node.Node)

	// OnNodeDisconnected 在某个节点异常断开、进入重连前触发。
	OnNodeDisconnected(n *node.Node, err error)

	// OnNodeDestroyed 在某个节点进入终态、级联销毁其会话之后触发。
	OnNodeDestroyed(n *node.Node, reason string)

	// OnNodeError 在节点上报非致命错误时触发。
	OnNodeError(n *node.Node, err error)

	// OnCatalogAuthenticated 在第二目录凭证刷新成功后触发。
	OnCatalogAuthenticated(expiresAt time.Time)

	// OnCatalogAuthFailed 在第二目录凭证刷新失败后触发，随后会短间隔重试。
	OnCatalogAuthFailed(err error)
}

// BaseHooks 提供 Hooks 的空实现，方便业务侧嵌入并按需覆写。
type BaseHooks struct{}

var _ Hooks = (*BaseHooks)(nil)

func (BaseHooks) OnNodeConnected(*node.Node)           {}
func (BaseHooks) OnNodeDisconnected(*node.Node, error) {}
func (BaseHooks) OnNodeDestroyed(*node.Node, string)   {}
func (BaseHooks) OnNodeError(*node.Node, error)        {}
func (BaseHooks) OnCatalogAuthenticated(time.Time)     {}
func (BaseHooks) OnCatalogAuthFailed(error)            {}

package node

// State 为节点连接的生命周期状态。
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateReconnecting
	StateConnected
	StateDestroyed
)

var stateNames = map[State]string{
	StateDisconnected: "Disconnected",
	StateConnecting:   "Connecting",
	StateReconnecting: "Reconnecting",
	StateConnected:    "Connected",
	StateDestroyed:    "Destroyed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "Unknown"
}

package bot

import "time"

// State 表示受监管交易机器人的运行状态。
type State string

const (
	// StateStopped 为初始状态，也可由停止指令或自报进入。
	StateStopped State = "stopped"
	StateRunning State = "running"
	StatePaused  State = "paused"
	// StateDisconnected 为派生状态：运行中但心跳超龄。
	// 只在状态读取时投影得出，不会被指令或心跳直接写入。
	StateDisconnected State = "disconnected"
)

// Action 为管理端控制指令。
type Action string

const (
	ActionStart Action = "start"
	ActionPause Action = "pause"
	ActionStop  Action = "stop"
)

// Signal 为机器人上报的单次交易信号。
type Signal struct {
	Timestamp  time.Time `json:"timestamp"`
	Action     string    `json:"signal"`
	Confidence float64   `json:"confidence"`
	Symbol     string    `json:"symbol"`
	Price      float64   `json:"price"`
	Reason     string    `json:"reason"`
}

// Heartbeat 为机器人周期性推送的自报状态。
// OpenPositions 为不透明透传字段，本服务只存储与转发，不解释其内容。
type Heartbeat struct {
	Timestamp     time.Time                `json:"timestamp"`
	State         State                    `json:"state"`
	Symbol        string                   `json:"symbol"`
	Timeframe     string                   `json:"tf"`
	LastSignal    *Signal                  `json:"lastSignal,omitempty"`
	OpenPositions []map[string]interface{} `json:"openPositions"`
	PnL           float64                  `json:"pnl"`
}

// Status 为状态查询的快照。
type Status struct {
	State           State                    `json:"state"`
	LastHeartbeatTs time.Time                `json:"lastHeartbeatTs"`
	CurrentSymbol   string                   `json:"currentSymbol"`
	Timeframe       string                   `json:"tf"`
	OpenPositions   []map[string]interface{} `json:"openPositions"`
	PnL             float64                  `json:"pnl"`
	LastSignals     []Signal                 `json:"lastSignals"`
}

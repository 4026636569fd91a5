package monitor

import (
	"time"

	"github.com/aamirshehzad9/AITB/internal/bot"
	"github.com/aamirshehzad9/AITB/internal/market"
)

// EventType 表示运维事件类型。
type EventType string

const (
	EventBotControl   EventType = "bot_control"
	EventBotHeartbeat EventType = "bot_heartbeat"
	EventBackfill     EventType = "backfill"
	EventError        EventType = "error"
)

// Event 封装通用运维事件。
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// BotControlPayload 记录管理端控制指令及其结果。
type BotControlPayload struct {
	Action   string    `json:"action"`
	NewState bot.State `json:"newState"`
	Symbol   string    `json:"symbol"`
	Tf       string    `json:"tf"`
}

// BotHeartbeatPayload 记录一次心跳摄入摘要。
type BotHeartbeatPayload struct {
	State   bot.State `json:"state"`
	Symbol  string    `json:"symbol"`
	Tf      string    `json:"tf"`
	PnL     float64   `json:"pnl"`
	Signals int       `json:"signals"`
}

// BackfillPayload 记录回填结果。
type BackfillPayload struct {
	Outcome market.BackfillOutcome `json:"outcome"`
}

// ErrorPayload 记录异常。
type ErrorPayload struct {
	Message string                 `json:"message"`
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

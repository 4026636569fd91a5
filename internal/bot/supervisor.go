package bot

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aamirshehzad9/AITB/internal/config"
)

// ErrInvalidAction 表示控制指令不合法，调用方不应重试。
var ErrInvalidAction = errors.New("bot: invalid control action")

// 信号历史只保留最近3条，新信号在前。
const signalHistoryCap = 3

// Supervisor 跟踪远端交易机器人的生命周期。
// 心跳摄入、控制指令与状态查询都经过同一把互斥锁，
// 并发到达时按到达顺序后写覆盖（机器人对自身存活状态有最终话语权）。
type Supervisor struct {
	logger          *zap.Logger
	maxHeartbeatAge time.Duration
	now             func() time.Time

	mu              sync.Mutex
	state           State
	currentSymbol   string
	timeframe       string
	lastHeartbeatAt time.Time
	openPositions   []map[string]interface{}
	pnl             float64
	signals         []Signal
}

// NewSupervisor 创建机器人监管器，初始状态为 stopped。
func NewSupervisor(cfg config.BotConfig, logger *zap.Logger) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}

	maxAge := cfg.MaxHeartbeatAge
	if maxAge <= 0 {
		maxAge = time.Minute
	}

	now := func() time.Time { return time.Now().UTC() }

	return &Supervisor{
		logger:          logger,
		maxHeartbeatAge: maxAge,
		now:             now,
		state:           StateStopped,
		currentSymbol:   cfg.DefaultSymbol,
		timeframe:       cfg.DefaultTimeframe,
		lastHeartbeatAt: now(),
	}
}

// Control 执行管理端控制指令并返回指令后的状态快照。
// stop 指令同时清空持仓透传记录。
func (s *Supervisor) Control(action Action, symbol, timeframe string) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch Action(strings.ToLower(string(action))) {
	case ActionStart:
		s.state = StateRunning
	case ActionPause:
		s.state = StatePaused
	case ActionStop:
		s.state = StateStopped
		s.openPositions = nil
	default:
		return Status{}, fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}

	if symbol != "" {
		s.currentSymbol = symbol
	}
	if timeframe != "" {
		s.timeframe = timeframe
	}

	s.logger.Info("机器人状态已切换",
		zap.String("action", string(action)),
		zap.String("state", string(s.state)),
		zap.String("symbol", s.currentSymbol),
		zap.String("timeframe", s.timeframe),
	)

	return s.snapshotLocked(), nil
}

// ApplyHeartbeat 摄入一次心跳：机器人自报的状态无条件覆盖当前状态，
// 心跳时间以到达本端的墙钟时间为准。
func (s *Supervisor) ApplyHeartbeat(hb Heartbeat) Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastHeartbeatAt = s.now()

	switch hb.State {
	case StateStopped, StateRunning, StatePaused:
		s.state = hb.State
	default:
		s.logger.Warn("心跳携带未知状态，保持当前状态",
			zap.String("reported", string(hb.State)),
		)
	}

	if hb.Symbol != "" {
		s.currentSymbol = hb.Symbol
	}
	if hb.Timeframe != "" {
		s.timeframe = hb.Timeframe
	}
	s.openPositions = hb.OpenPositions
	s.pnl = hb.PnL

	if hb.LastSignal != nil {
		s.signals = append([]Signal{*hb.LastSignal}, s.signals...)
		if len(s.signals) > signalHistoryCap {
			s.signals = s.signals[:signalHistoryCap]
		}
	}

	return s.snapshotLocked()
}

// Status 返回当前状态快照。存量状态为 running 且心跳超过
// 最大允许年龄时，对外投影为 disconnected；下一次心跳会立即恢复。
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := s.snapshotLocked()
	if s.state == StateRunning && s.now().Sub(s.lastHeartbeatAt) > s.maxHeartbeatAge {
		s.logger.Warn("机器人心跳超龄，投影为断连",
			zap.Time("last_heartbeat", s.lastHeartbeatAt),
			zap.Duration("max_age", s.maxHeartbeatAge),
		)
		status.State = StateDisconnected
	}

	return status
}

func (s *Supervisor) snapshotLocked() Status {
	positions := make([]map[string]interface{}, len(s.openPositions))
	copy(positions, s.openPositions)

	signals := make([]Signal, len(s.signals))
	copy(signals, s.signals)

	return Status{
		State:           s.state,
		LastHeartbeatTs: s.lastHeartbeatAt,
		CurrentSymbol:   s.currentSymbol,
		Timeframe:       s.timeframe,
		OpenPositions:   positions,
		PnL:             s.pnl,
		LastSignals:     signals,
	}
}

package bot

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aamirshehzad9/AITB/internal/config"
)

func newTestSupervisor() *Supervisor {
	return NewSupervisor(config.BotConfig{
		DefaultSymbol:    "BTCUSDT",
		DefaultTimeframe: "15m",
		MaxHeartbeatAge:  time.Minute,
	}, nil)
}

func TestSupervisor_ControlTransitions(t *testing.T) {
	s := newTestSupervisor()

	status, err := s.Control(ActionStart, "ETHUSDT", "1h")
	if err != nil {
		t.Fatalf("start returned error: %v", err)
	}
	if status.State != StateRunning {
		t.Errorf("expected running, got %s", status.State)
	}
	if status.CurrentSymbol != "ETHUSDT" || status.Timeframe != "1h" {
		t.Errorf("symbol/timeframe not applied: %+v", status)
	}

	status, err = s.Control(ActionPause, "", "")
	if err != nil {
		t.Fatalf("pause returned error: %v", err)
	}
	if status.State != StatePaused {
		t.Errorf("expected paused, got %s", status.State)
	}
	if status.CurrentSymbol != "ETHUSDT" {
		t.Errorf("empty symbol must not overwrite current, got %s", status.CurrentSymbol)
	}
}

func TestSupervisor_StopClearsPositions(t *testing.T) {
	s := newTestSupervisor()

	s.ApplyHeartbeat(Heartbeat{
		State:  StateRunning,
		Symbol: "BTCUSDT",
		OpenPositions: []map[string]interface{}{
			{"side": "long", "size": 0.5},
		},
		PnL: 123.4,
	})

	status, err := s.Control(ActionStop, "", "")
	if err != nil {
		t.Fatalf("stop returned error: %v", err)
	}
	if status.State != StateStopped {
		t.Errorf("expected stopped, got %s", status.State)
	}
	if len(status.OpenPositions) != 0 {
		t.Errorf("stop must clear open positions, got %d", len(status.OpenPositions))
	}
}

func TestSupervisor_InvalidAction(t *testing.T) {
	s := newTestSupervisor()

	if _, err := s.Control("restart", "", ""); !errors.Is(err, ErrInvalidAction) {
		t.Fatalf("expected ErrInvalidAction, got %v", err)
	}
}

func TestSupervisor_StalenessProjection(t *testing.T) {
	s := newTestSupervisor()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	current := base
	s.now = func() time.Time { return current }

	s.ApplyHeartbeat(Heartbeat{State: StateRunning, Symbol: "BTCUSDT", Timeframe: "15m"})

	// 60秒内仍视为运行中。
	current = base.Add(59 * time.Second)
	if got := s.Status().State; got != StateRunning {
		t.Errorf("expected running before max age, got %s", got)
	}

	// 超龄后投影为断连，但存量状态不变。
	current = base.Add(61 * time.Second)
	if got := s.Status().State; got != StateDisconnected {
		t.Errorf("expected disconnected after max age, got %s", got)
	}

	// 下一次心跳立即恢复自报状态。
	current = base.Add(61500 * time.Millisecond)
	s.ApplyHeartbeat(Heartbeat{State: StateRunning})
	if got := s.Status().State; got != StateRunning {
		t.Errorf("expected running right after heartbeat, got %s", got)
	}
}

func TestSupervisor_StalenessOnlyAppliesToRunning(t *testing.T) {
	s := newTestSupervisor()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	current := base
	s.now = func() time.Time { return current }

	s.ApplyHeartbeat(Heartbeat{State: StatePaused})

	current = base.Add(10 * time.Minute)
	if got := s.Status().State; got != StatePaused {
		t.Errorf("paused state must not project to disconnected, got %s", got)
	}
}

func TestSupervisor_SignalHistoryBounded(t *testing.T) {
	s := newTestSupervisor()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		s.ApplyHeartbeat(Heartbeat{
			State: StateRunning,
			LastSignal: &Signal{
				Timestamp: base.Add(time.Duration(i) * time.Minute),
				Action:    "buy",
				Reason:    fmt.Sprintf("signal-%d", i),
			},
		})
	}

	signals := s.Status().LastSignals
	if len(signals) != 3 {
		t.Fatalf("expected exactly 3 signals, got %d", len(signals))
	}
	for i, want := range []string{"signal-4", "signal-3", "signal-2"} {
		if signals[i].Reason != want {
			t.Errorf("signal %d: expected %s, got %s", i, want, signals[i].Reason)
		}
	}
}

func TestSupervisor_HeartbeatUnknownStateKept(t *testing.T) {
	s := newTestSupervisor()

	s.ApplyHeartbeat(Heartbeat{State: StateRunning})
	status := s.ApplyHeartbeat(Heartbeat{State: "exploded"})

	if status.State != StateRunning {
		t.Errorf("unknown reported state must not overwrite, got %s", status.State)
	}
}

func TestSupervisor_HeartbeatOverwritesControl(t *testing.T) {
	s := newTestSupervisor()

	if _, err := s.Control(ActionPause, "", ""); err != nil {
		t.Fatalf("pause returned error: %v", err)
	}

	status := s.ApplyHeartbeat(Heartbeat{State: StateRunning, PnL: 7.5})
	if status.State != StateRunning {
		t.Errorf("worker self-report must win, got %s", status.State)
	}
	if status.PnL != 7.5 {
		t.Errorf("expected pnl=7.5, got %f", status.PnL)
	}
}

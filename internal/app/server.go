package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/aamirshehzad9/AITB/internal/bot"
	"github.com/aamirshehzad9/AITB/internal/market"
	"github.com/aamirshehzad9/AITB/internal/monitor"
)

const defaultCandleLimit = 500

type priceResolver interface {
	Resolve(ctx context.Context, symbol string) (market.PricePoint, error)
}

type candleResolver interface {
	Resolve(ctx context.Context, symbol, timeframe string, limit int) ([]market.Candle, market.Source, error)
}

type backfiller interface {
	Backfill(ctx context.Context, symbol, timeframe string, limit int) (market.BackfillOutcome, error)
}

type tickerClient interface {
	FetchTickers(ctx context.Context, symbols []string) ([]market.Ticker, error)
}

type storeProbe interface {
	Ready(ctx context.Context) bool
}

// Server 承载对外HTTP接口。
type Server struct {
	logger     *zap.Logger
	prices     priceResolver
	candles    candleResolver
	backfill   backfiller
	tickers    tickerClient
	probe      storeProbe
	supervisor *bot.Supervisor
	journal    *monitor.Service

	defaultSymbols []string
	marketsTopN    int
	tickerTimeout  time.Duration
	maxLimit       int
}

// ServerDeps 聚合 Server 的全部依赖。
type ServerDeps struct {
	Prices     priceResolver
	Candles    candleResolver
	Backfill   backfiller
	Tickers    tickerClient
	Probe      storeProbe
	Supervisor *bot.Supervisor
	Journal    *monitor.Service

	DefaultSymbols []string
	MarketsTopN    int
	TickerTimeout  time.Duration
	MaxCandleLimit int
}

// NewServer 创建HTTP服务。
func NewServer(deps ServerDeps, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.MarketsTopN <= 0 {
		deps.MarketsTopN = 20
	}
	if deps.TickerTimeout <= 0 {
		deps.TickerTimeout = 10 * time.Second
	}
	if deps.MaxCandleLimit <= 0 {
		deps.MaxCandleLimit = 1000
	}

	return &Server{
		logger:         logger,
		prices:         deps.Prices,
		candles:        deps.Candles,
		backfill:       deps.Backfill,
		tickers:        deps.Tickers,
		probe:          deps.Probe,
		supervisor:     deps.Supervisor,
		journal:        deps.Journal,
		defaultSymbols: deps.DefaultSymbols,
		marketsTopN:    deps.MarketsTopN,
		tickerTimeout:  deps.TickerTimeout,
		maxLimit:       deps.MaxCandleLimit,
	}
}

// Router 构造路由表。
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/data/price", s.handlePrice).Methods(http.MethodGet)
	r.HandleFunc("/data/markets", s.handleMarkets).Methods(http.MethodGet)
	r.HandleFunc("/chart/candles", s.handleCandles).Methods(http.MethodGet)
	r.HandleFunc("/data/backfill-candles", s.handleBackfill).Methods(http.MethodPost)
	r.HandleFunc("/bot/control", s.handleBotControl).Methods(http.MethodPost)
	r.HandleFunc("/bot/status", s.handleBotStatus).Methods(http.MethodGet)
	r.HandleFunc("/bot/heartbeat", s.handleBotHeartbeat).Methods(http.MethodPost)
	r.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	return r
}

type priceResponse struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Timestamp string  `json:"timestamp"`
	Source    string  `json:"source"`
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	symbol := normalizeSymbol(r.URL.Query().Get("symbol"))
	if symbol == "" {
		s.writeError(w, http.StatusBadRequest, "symbol 参数不能为空")
		return
	}

	point, err := s.prices.Resolve(r.Context(), symbol)
	if err != nil {
		if errors.Is(err, market.ErrPriceNotFound) {
			s.writeError(w, http.StatusNotFound, "未找到交易对 "+symbol+" 的价格")
			return
		}
		s.internalError(w, r, "价格解析异常", err, map[string]interface{}{"symbol": symbol})
		return
	}

	s.writeJSON(w, http.StatusOK, priceResponse{
		Symbol:    point.Symbol,
		Price:     point.Price,
		Timestamp: point.ObservedAt.Format(time.RFC3339),
		Source:    string(point.Source),
	})
}

type marketEntry struct {
	Symbol             string  `json:"symbol"`
	LastPrice          float64 `json:"lastPrice"`
	PriceChange        float64 `json:"priceChange"`
	PriceChangePercent float64 `json:"priceChangePercent"`
	Volume             float64 `json:"volume"`
	Timestamp          string  `json:"timestamp"`
}

type marketsResponse struct {
	Markets   []marketEntry `json:"markets"`
	Timestamp string        `json:"timestamp"`
	Count     int           `json:"count"`
}

func (s *Server) handleMarkets(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.tickerTimeout)
	defer cancel()

	tickers, err := s.tickers.FetchTickers(ctx, s.defaultSymbols)
	if err != nil {
		s.logger.Error("拉取24小时行情失败", zap.Error(err))
		s.writeError(w, http.StatusServiceUnavailable, "无法获取行情数据")
		return
	}
	if len(tickers) == 0 {
		s.writeError(w, http.StatusServiceUnavailable, "无法获取行情数据")
		return
	}

	if len(tickers) > s.marketsTopN {
		tickers = tickers[:s.marketsTopN]
	}

	entries := make([]marketEntry, 0, len(tickers))
	for _, t := range tickers {
		entries = append(entries, marketEntry{
			Symbol:             t.Symbol,
			LastPrice:          t.LastPrice,
			PriceChange:        t.PriceChange,
			PriceChangePercent: t.PriceChangePercent,
			Volume:             t.Volume,
			Timestamp:          t.Timestamp.Format(time.RFC3339),
		})
	}

	s.writeJSON(w, http.StatusOK, marketsResponse{
		Markets:   entries,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Count:     len(entries),
	})
}

type candleEntry struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Symbol    string  `json:"symbol"`
	Timeframe string  `json:"timeframe"`
}

type candlesResponse struct {
	Candles  []candleEntry `json:"candles"`
	Symbol   string        `json:"symbol"`
	Interval string        `json:"interval"`
	Count    int           `json:"count"`
	Source   string        `json:"source"`
}

func (s *Server) handleCandles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	symbol := normalizeSymbol(q.Get("symbol"))
	if symbol == "" {
		s.writeError(w, http.StatusBadRequest, "symbol 参数不能为空")
		return
	}

	interval := strings.TrimSpace(q.Get("interval"))
	if interval == "" {
		interval = "1m"
	}

	limit := defaultCandleLimit
	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "limit 参数必须为整数")
			return
		}
		limit = v
	}

	candles, source, err := s.candles.Resolve(r.Context(), symbol, interval, limit)
	if err != nil {
		switch {
		case errors.Is(err, market.ErrInvalidRequest):
			s.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, market.ErrNoCandleData):
			s.writeError(w, http.StatusNotFound, "未找到 "+symbol+" "+interval+" 的K线数据")
		default:
			s.internalError(w, r, "K线解析异常", err, map[string]interface{}{
				"symbol": symbol, "interval": interval,
			})
		}
		return
	}

	entries := make([]candleEntry, 0, len(candles))
	for _, c := range candles {
		entries = append(entries, candleEntry{
			Timestamp: c.OpenTime.Unix(),
			Open:      c.Open,
			High:      c.High,
			Low:       c.Low,
			Close:     c.Close,
			Volume:    c.Volume,
			Symbol:    c.Symbol,
			Timeframe: c.Timeframe,
		})
	}

	s.writeJSON(w, http.StatusOK, candlesResponse{
		Candles:  entries,
		Symbol:   symbol,
		Interval: interval,
		Count:    len(entries),
		Source:   string(source),
	})
}

type backfillRequest struct {
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
	Limit    int    `json:"limit"`
}

type backfillResponse struct {
	Symbol         string `json:"symbol"`
	Interval       string `json:"interval"`
	CandlesWritten int    `json:"candlesWritten"`
	Status         string `json:"status"`
	Message        string `json:"message"`
}

func (s *Server) handleBackfill(w http.ResponseWriter, r *http.Request) {
	var req backfillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "请求体解析失败")
		return
	}

	req.Symbol = normalizeSymbol(req.Symbol)
	if req.Symbol == "" {
		s.writeError(w, http.StatusBadRequest, "symbol 不能为空")
		return
	}
	if req.Interval == "" {
		req.Interval = "1m"
	}
	if req.Limit == 0 {
		req.Limit = defaultCandleLimit
	}

	outcome, err := s.backfill.Backfill(r.Context(), req.Symbol, req.Interval, req.Limit)
	if err != nil {
		if errors.Is(err, market.ErrInvalidRequest) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.internalError(w, r, "回填异常", err, map[string]interface{}{
			"symbol": req.Symbol, "interval": req.Interval,
		})
		return
	}

	s.journal.RecordBackfill(r.Context(), outcome)

	s.writeJSON(w, http.StatusOK, backfillResponse{
		Symbol:         outcome.Symbol,
		Interval:       outcome.Timeframe,
		CandlesWritten: outcome.CandlesWritten,
		Status:         string(outcome.Status),
		Message:        outcome.Reason,
	})
}

type botControlRequest struct {
	Action string `json:"action"`
	Symbol string `json:"symbol"`
	Tf     string `json:"tf"`
}

type botControlResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	NewState  string `json:"newState"`
	Symbol    string `json:"symbol"`
	Tf        string `json:"tf"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) handleBotControl(w http.ResponseWriter, r *http.Request) {
	var req botControlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "请求体解析失败")
		return
	}

	status, err := s.supervisor.Control(bot.Action(req.Action), normalizeSymbol(req.Symbol), req.Tf)
	if err != nil {
		if errors.Is(err, bot.ErrInvalidAction) {
			s.writeError(w, http.StatusBadRequest, "无效的控制指令: "+req.Action)
			return
		}
		s.internalError(w, r, "控制指令异常", err, map[string]interface{}{"action": req.Action})
		return
	}

	s.journal.RecordBotControl(r.Context(), req.Action, status)

	s.writeJSON(w, http.StatusOK, botControlResponse{
		Status:    "success",
		Message:   "指令 " + req.Action + " 已执行",
		NewState:  string(status.State),
		Symbol:    status.CurrentSymbol,
		Tf:        status.Timeframe,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleBotStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.supervisor.Status())
}

type ackResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) handleBotHeartbeat(w http.ResponseWriter, r *http.Request) {
	var hb bot.Heartbeat
	if err := json.NewDecoder(r.Body).Decode(&hb); err != nil {
		s.writeError(w, http.StatusBadRequest, "心跳解析失败")
		return
	}

	status := s.supervisor.ApplyHeartbeat(hb)
	s.journal.RecordBotHeartbeat(r.Context(), status)

	s.writeJSON(w, http.StatusOK, ackResponse{
		Status:    "success",
		Message:   "心跳已接收",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 200
	if raw := q.Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			if v > 1000 {
				v = 1000
			}
			limit = v
		}
	}

	eventType := monitor.EventType("")
	if typ := strings.TrimSpace(q.Get("type")); typ != "" {
		eventType = monitor.EventType(strings.ToLower(typ))
	}

	events, err := s.journal.ListEvents(r.Context(), eventType, limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, events)
}

type healthResponse struct {
	Status         string `json:"status"`
	Timestamp      string `json:"timestamp"`
	Service        string `json:"service"`
	StoreConnected bool   `json:"storeConnected"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:         "healthy",
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
		Service:        "data-adapter",
		StoreConnected: s.probe.Ready(r.Context()),
	})
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, msg string, err error,
	ctxMap map[string]interface{}) {
	s.logger.Error(msg, zap.Error(err))
	s.journal.RecordError(r.Context(), msg, err, ctxMap)
	s.writeError(w, http.StatusInternalServerError, msg)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("写入响应失败", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

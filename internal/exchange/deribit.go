package exchange

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"grid-hedge-bot-go/internal/logger"
	"grid-hedge-bot-go/internal/models"

	"github.com/gorilla/websocket"
)

const (
	deribitMainnetURL = "wss://www.deribit.com/ws/api/v2"
	deribitTestnetURL = "wss://test.deribit.com/ws/api/v2"

	deribitCallTimeout = 10 * time.Second
)

// DeribitExchange 实现了 OptionsExchange 接口。
// 通过 Deribit 原生的 WebSocket JSON-RPC 2.0 接口拉取期权订单簿。
// 只消费公共行情方法，不需要鉴权。
type DeribitExchange struct {
	url string

	mu     sync.Mutex
	conn   *websocket.Conn
	nextID int64
}

type deribitRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int64       `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type deribitResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *deribitError   `json:"error"`
}

type deribitError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *deribitError) Error() string {
	return fmt.Sprintf("deribit 错误 %d: %s", e.Code, e.Message)
}

// NewDeribitExchange 创建一个新的 DeribitExchange 实例。
// testnet 为 true 时连接 test.deribit.com。连接按需懒建立。
func NewDeribitExchange(testnet bool) *DeribitExchange {
	url := deribitMainnetURL
	if testnet {
		url = deribitTestnetURL
	}
	return &DeribitExchange{url: url, nextID: 1}
}

func (e *DeribitExchange) ensureConn() error {
	if e.conn != nil {
		return nil
	}
	conn, _, err := websocket.DefaultDialer.Dial(e.url, nil)
	if err != nil {
		return fmt.Errorf("连接 deribit 失败: %w", err)
	}
	e.conn = conn
	return nil
}

func (e *DeribitExchange) closeConn() {
	if e.conn != nil {
		e.conn.Close()
		e.conn = nil
	}
}

// call 发送一次 JSON-RPC 请求并等待对应 id 的响应。
// 连接失效时重连并重试一次。订阅推送等 id 不匹配的消息直接丢弃。
func (e *DeribitExchange) call(method string, params interface{}, result interface{}) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			logger.S().Warnf("deribit 调用 %s 失败, 重连后重试: %v", method, lastErr)
			e.closeConn()
		}
		if lastErr = e.ensureConn(); lastErr != nil {
			continue
		}
		if lastErr = e.doCall(method, params, result); lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func (e *DeribitExchange) doCall(method string, params interface{}, result interface{}) error {
	id := e.nextID
	e.nextID++

	req := deribitRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	deadline := time.Now().Add(deribitCallTimeout)
	if err := e.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if err := e.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("发送 %s 请求失败: %w", method, err)
	}

	for time.Now().Before(deadline) {
		if err := e.conn.SetReadDeadline(deadline); err != nil {
			return err
		}
		_, data, err := e.conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("读取 %s 响应失败: %w", method, err)
		}

		var resp deribitResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			logger.S().Warnf("deribit 返回了无法解析的消息: %v", err)
			continue
		}
		if resp.ID != id {
			continue
		}
		if resp.Error != nil {
			return resp.Error
		}
		return json.Unmarshal(resp.Result, result)
	}
	return fmt.Errorf("等待 %s 响应超时", method)
}

type deribitBookResult struct {
	InstrumentName string      `json:"instrument_name"`
	Timestamp      int64       `json:"timestamp"`
	Bids           [][]float64 `json:"bids"`
	Asks           [][]float64 `json:"asks"`
}

// GetOptionOrderbook 获取期权合约的订单簿。
func (e *DeribitExchange) GetOptionOrderbook(instrument string) (*models.OptionOrderbook, error) {
	var res deribitBookResult
	params := map[string]interface{}{"instrument_name": instrument}
	if err := e.call("public/get_order_book", params, &res); err != nil {
		return nil, err
	}

	book := &models.OptionOrderbook{
		InstrumentName: res.InstrumentName,
		Timestamp:      res.Timestamp,
		Bids:           make([]models.OptionBookLevel, 0, len(res.Bids)),
		Asks:           make([]models.OptionBookLevel, 0, len(res.Asks)),
	}
	for _, lvl := range res.Bids {
		if len(lvl) < 2 {
			continue
		}
		book.Bids = append(book.Bids, models.OptionBookLevel{Price: lvl[0], Amount: lvl[1]})
	}
	for _, lvl := range res.Asks {
		if len(lvl) < 2 {
			continue
		}
		book.Asks = append(book.Asks, models.OptionBookLevel{Price: lvl[0], Amount: lvl[1]})
	}
	return book, nil
}

// PriceForVolume 返回按给定数量吃单的成交量加权均价。
// SELL 视角遍历 bids，BUY 视角遍历 asks。流动性不足时返回0。
func (e *DeribitExchange) PriceForVolume(instrument string, volume float64, side models.Side) (float64, error) {
	book, err := e.GetOptionOrderbook(instrument)
	if err != nil {
		return 0, err
	}

	levels := book.Asks
	if side == models.Sell {
		levels = book.Bids
	}
	return priceForVolume(levels, volume), nil
}

// priceForVolume 沿订单簿逐档累积成交量，返回加权均价。
// levels 应已按价格优先排序。无法吃满 volume 时返回0。
func priceForVolume(levels []models.OptionBookLevel, volume float64) float64 {
	if volume <= 0 {
		return 0
	}

	remaining := volume
	cost := 0.0
	for _, lvl := range levels {
		take := lvl.Amount
		if take > remaining {
			take = remaining
		}
		cost += take * lvl.Price
		remaining -= take
		if remaining <= 0 {
			return cost / volume
		}
	}
	return 0
}

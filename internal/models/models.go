package models

// Config 结构体定义了机器人的所有配置参数。
// 配置在启动时构造一次，之后以只读方式传入各个组件，不允许运行期修改。
type Config struct {
	BotName     string `json:"bot_name"`     // 机器人名称，用于生成 client_order_id 和数据库记录
	TradingMode string `json:"trading_mode"` // 运行模式: "test" 或 "live"

	SpotMarket string `json:"spot_market"` // 现货交易对，如 "BTCFDUSD"
	BaseAsset  string `json:"base_asset"`  // 基础资产，如 "BTC"
	QuoteAsset string `json:"quote_asset"` // 计价资产，如 "FDUSD"

	// 网格参数
	SpotEntryPrice        float64 `json:"spot_entry_price"`         // 入场价格
	SpotDownRangePercent  float64 `json:"spot_down_range_percent"`  // 向下区间百分比
	SpotUpRangePercent    float64 `json:"spot_up_range_percent"`    // 向上区间百分比
	SpotOrdersDiffPercent float64 `json:"spot_orders_diff_percent"` // 相邻网格价差百分比
	SpotOrderSizeQuote    float64 `json:"spot_order_size_quote"`    // 单个网格订单的计价货币价值
	GridMaxOpenOrders     int     `json:"grid_max_open_orders"`     // 价格两侧各维持的最大挂单数
	GridModeLoopSleep     float64 `json:"grid_mode_loop_sleep"`     // 主循环休眠间隔(秒)

	// 退出条件
	DailyROITargetForExit float64 `json:"daily_roi_target_for_exit"` // 触发止盈退出的日化收益率

	// 期权腿配置 (Deribit 合约)
	CallOptionName            string  `json:"call_option_name"`
	CallOptionSizeBase        float64 `json:"call_option_size_base"`
	CallOptionInitialCostBase float64 `json:"call_option_initial_cost_base"`
	PutOptionName             string  `json:"put_option_name"`
	PutOptionSizeBase         float64 `json:"put_option_size_base"`
	PutOptionInitialCostBase  float64 `json:"put_option_initial_cost_base"`

	// API 密钥 (test 模式下可为空；live 模式下也可由环境变量覆盖)
	BinanceAPIKey    string `json:"binance_api_key,omitempty"`
	BinanceAPISecret string `json:"binance_api_secret,omitempty"`
	DeribitAPIKey    string `json:"deribit_api_key,omitempty"`
	DeribitAPISecret string `json:"deribit_api_secret,omitempty"`

	DataDir string `json:"data_dir"` // JSONL 数据表目录
	DBPath  string `json:"db_path"`  // BadgerDB 状态库路径 (live 模式恢复用)

	RetryAttempts       int `json:"retry_attempts"`         // 行情读取失败时的重试次数
	RetryInitialDelayMs int `json:"retry_initial_delay_ms"` // 重试前的初始延迟毫秒数

	LogConfig LogConfig `json:"log"` // 日志配置
}

// LogConfig 定义了日志相关的配置
type LogConfig struct {
	Level      string `json:"level"`       // 日志级别, e.g., "debug", "info", "warn", "error"
	Output     string `json:"output"`      // 输出模式: "console", "file", "both"
	File       string `json:"file"`        // 日志文件路径
	MaxSize    int    `json:"max_size"`    // 单个日志文件的最大大小 (MB)
	MaxBackups int    `json:"max_backups"` // 保留的旧日志文件最大数量
	MaxAge     int    `json:"max_age"`     // 旧日志文件的最大保留天数
	Compress   bool   `json:"compress"`    // 是否压缩旧日志文件
}

// IsTestMode 判断当前是否为模拟运行模式。
func (c *Config) IsTestMode() bool {
	return c.TradingMode == "test"
}

// Mode 返回持久化记录使用的模式字符串。
func (c *Config) Mode() string {
	if c.IsTestMode() {
		return "test"
	}
	return "live"
}

// Redacted 返回一份去除了所有密钥的配置副本，用于写入 runs 表。
func (c *Config) Redacted() Config {
	cp := *c
	cp.BinanceAPIKey = ""
	cp.BinanceAPISecret = ""
	cp.DeribitAPIKey = ""
	cp.DeribitAPISecret = ""
	return cp
}

// Side 定义了交易方向的类型
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// OrderStatus 定义了订单状态
type OrderStatus string

const (
	OrderStatusNew       OrderStatus = "NEW"
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// Order 代表机器人跟踪的一个挂单。
// live 模式下 ClientOrderID 由 bot_name 和网格价格确定性地派生，
// 用于在交易所挂单列表中识别自己的订单。
type Order struct {
	OrderID       int64       `json:"order_id"`
	ClientOrderID string      `json:"client_order_id"`
	Symbol        string      `json:"symbol"`
	Side          Side        `json:"side"`
	Price         float64     `json:"price"`
	Quantity      float64     `json:"quantity"`
	Status        OrderStatus `json:"status"`
}

// Orderbook 代表现货盘口的一档行情。
type Orderbook struct {
	Symbol   string  `json:"symbol"`
	BidPrice float64 `json:"bid_price"`
	BidQty   float64 `json:"bid_qty"`
	AskPrice float64 `json:"ask_price"`
	AskQty   float64 `json:"ask_qty"`
}

// Mid 返回买一卖一的中间价。
func (o *Orderbook) Mid() float64 {
	return (o.BidPrice + o.AskPrice) / 2
}

// OptionBookLevel 代表期权订单簿的一档报价。
type OptionBookLevel struct {
	Price  float64
	Amount float64
}

// OptionOrderbook 代表期权合约的订单簿。
type OptionOrderbook struct {
	InstrumentName string
	Bids           []OptionBookLevel
	Asks           []OptionBookLevel
	Timestamp      int64
}

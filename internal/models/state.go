package models

import "time"

// BotState 定义了 live 模式下需要跨进程重启持久化的关键数据。
// 挂单集合在进程退出时保存，重启时恢复，使机器人能继续跟踪
// 自己在交易所的存量订单，而不是盲目重新挂单。
type BotState struct {
	BotName        string    `json:"bot_name"`
	BotRun         string    `json:"bot_run"`
	Symbol         string    `json:"symbol"`
	StartTime      time.Time `json:"start_time"`
	OpenOrders     []Order   `json:"open_orders"`
	BuyTrades      int       `json:"buy_trades"`
	SellTrades     int       `json:"sell_trades"`
	LastUpdateTime time.Time `json:"last_update_time"`
}

package reporter

import (
	"fmt"
	"io"
	"os"
	"time"

	"grid-hedge-bot-go/internal/store"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Summary 汇总一次运行结束时的关键指标。
type Summary struct {
	BotName     string
	BotRun      string
	Mode        string
	FinalPnl    float64
	BuyTrades   int
	SellTrades  int
	RunningTime time.Duration
}

// PrintSummary 在控制台渲染本次运行的结算报告表格。
func PrintSummary(s Summary) {
	FprintSummary(os.Stdout, s)
}

// FprintSummary 将结算报告写入指定输出，便于测试。
func FprintSummary(w io.Writer, s Summary) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("运行结算 %s", s.BotName)
	t.AppendHeader(table.Row{"指标", "数值"})
	t.AppendRows([]table.Row{
		{"bot_run", s.BotRun},
		{"模式", s.Mode},
		{"最终收益", fmt.Sprintf("%.4f", s.FinalPnl)},
		{"买入成交", s.BuyTrades},
		{"卖出成交", s.SellTrades},
		{"总成交", s.BuyTrades + s.SellTrades},
		{"运行时长", fmt.Sprintf("%.2f 小时", s.RunningTime.Hours())},
	})
	t.SetStyle(table.StyleLight)
	t.Render()
}

// PrintTradeHistory 渲染本次运行的成交明细表，按时间升序。
func PrintTradeHistory(trades []store.TradeRecord) {
	FprintTradeHistory(os.Stdout, trades)
}

// FprintTradeHistory 将成交明细写入指定输出。
func FprintTradeHistory(w io.Writer, trades []store.TradeRecord) {
	if len(trades) == 0 {
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("成交明细")
	t.AppendHeader(table.Row{"时间", "方向", "价格", "数量"})
	for _, tr := range trades {
		t.AppendRow(table.Row{tr.Timestamp, tr.Side, tr.Price, tr.Quantity})
	}
	t.SetStyle(table.StyleLight)
	t.Render()
}

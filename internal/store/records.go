package store

import "time"

// TimestampLayout is a fixed-width UTC layout so that the lexicographic
// order of stored timestamps matches chronological order.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// Table names of the append-only store.
const (
	TableTrades   = "trades"
	TableStats    = "stats"
	TableRuns     = "runs"
	TableShutdown = "bot_shutdown"
)

const unknownSentinel = "unknown"

// TradeRecord is one executed trade. Records are immutable facts:
// appended once, never mutated.
type TradeRecord struct {
	Timestamp string  `json:"timestamp"`
	Side      string  `json:"side"`
	Price     float64 `json:"price"`
	Quantity  float64 `json:"quantity"`
	BotName   string  `json:"bot_name"`
	Mode      string  `json:"mode"`
	BotRun    string  `json:"bot_run"`
}

// NewTradeRecord builds a trade record, resolving optional-field defaults
// at construction time (missing quantity stays 0.0, missing identifiers
// become the "unknown" sentinel).
func NewTradeRecord(ts time.Time, side string, price, quantity float64, botName, mode, botRun string) TradeRecord {
	return TradeRecord{
		Timestamp: ts.UTC().Format(TimestampLayout),
		Side:      side,
		Price:     price,
		Quantity:  quantity,
		BotName:   orUnknown(botName),
		Mode:      orUnknown(mode),
		BotRun:    orUnknown(botRun),
	}
}

// StatsRecord is one periodic PnL snapshot.
type StatsRecord struct {
	Timestamp         string  `json:"timestamp"`
	SpotRealizedPnl   float64 `json:"spot_realized_pnl"`
	SpotUnrealizedPnl float64 `json:"spot_unrealized_pnl"`
	CallUnrealizedPnl float64 `json:"call_unrealized_pnl"`
	PutUnrealizedPnl  float64 `json:"put_unrealized_pnl"`
	BuyTrades         int     `json:"buy_trades"`
	SellTrades        int     `json:"sell_trades"`
	Mode              string  `json:"mode"`
	BotName           string  `json:"bot_name"`
	BotRun            string  `json:"bot_run"`
}

// NewStatsRecord builds a stats record with defaults resolved.
func NewStatsRecord(ts time.Time, spotRealized, spotUnrealized, callPnl, putPnl float64, buyTrades, sellTrades int, botName, mode, botRun string) StatsRecord {
	return StatsRecord{
		Timestamp:         ts.UTC().Format(TimestampLayout),
		SpotRealizedPnl:   spotRealized,
		SpotUnrealizedPnl: spotUnrealized,
		CallUnrealizedPnl: callPnl,
		PutUnrealizedPnl:  putPnl,
		BuyTrades:         buyTrades,
		SellTrades:        sellTrades,
		BotName:           orUnknown(botName),
		Mode:              orUnknown(mode),
		BotRun:            orUnknown(botRun),
	}
}

// RunRecord persists the strategy configuration of one bot run, written
// exactly once when the run starts. Config must already be secret-free.
type RunRecord struct {
	Timestamp string      `json:"timestamp"`
	BotName   string      `json:"bot_name"`
	BotRun    string      `json:"bot_run"`
	Config    interface{} `json:"config"`
}

// NewRunRecord builds a run record with defaults resolved.
func NewRunRecord(ts time.Time, botName, botRun string, config interface{}) RunRecord {
	if config == nil {
		config = unknownSentinel
	}
	return RunRecord{
		Timestamp: ts.UTC().Format(TimestampLayout),
		BotName:   orUnknown(botName),
		BotRun:    orUnknown(botRun),
		Config:    config,
	}
}

// ShutdownRecord captures the final state of a run, written exactly once
// at process exit.
type ShutdownRecord struct {
	Timestamp        string  `json:"timestamp"`
	FinalPnl         float64 `json:"final_pnl"`
	BuyTrades        int     `json:"buy_trades"`
	SellTrades       int     `json:"sell_trades"`
	TotalTrades      int     `json:"total_trades"`
	RunningTimeHours float64 `json:"running_time_hours"`
	Mode             string  `json:"mode"`
	BotName          string  `json:"bot_name"`
	BotRun           string  `json:"bot_run"`
}

// NewShutdownRecord builds a shutdown record with defaults resolved.
func NewShutdownRecord(ts time.Time, finalPnl float64, buyTrades, sellTrades int, runningTimeHours float64, botName, mode, botRun string) ShutdownRecord {
	return ShutdownRecord{
		Timestamp:        ts.UTC().Format(TimestampLayout),
		FinalPnl:         finalPnl,
		BuyTrades:        buyTrades,
		SellTrades:       sellTrades,
		TotalTrades:      buyTrades + sellTrades,
		RunningTimeHours: runningTimeHours,
		BotName:          orUnknown(botName),
		Mode:             orUnknown(mode),
		BotRun:           orUnknown(botRun),
	}
}

func orUnknown(s string) string {
	if s == "" {
		return unknownSentinel
	}
	return s
}

func (r TradeRecord) keys() (string, string)    { return r.BotName, r.BotRun }
func (r StatsRecord) keys() (string, string)    { return r.BotName, r.BotRun }
func (r RunRecord) keys() (string, string)      { return r.BotName, r.BotRun }
func (r ShutdownRecord) keys() (string, string) { return r.BotName, r.BotRun }

func (r TradeRecord) when() string    { return r.Timestamp }
func (r StatsRecord) when() string    { return r.Timestamp }
func (r RunRecord) when() string      { return r.Timestamp }
func (r ShutdownRecord) when() string { return r.Timestamp }

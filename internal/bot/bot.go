package bot

import (
	"fmt"
	"sync"
	"time"

	"grid-hedge-bot-go/internal/exchange"
	"grid-hedge-bot-go/internal/grid"
	"grid-hedge-bot-go/internal/logger"
	"grid-hedge-bot-go/internal/models"
	"grid-hedge-bot-go/internal/persistence"
	"grid-hedge-bot-go/internal/pnl"
	"grid-hedge-bot-go/internal/store"
)

// State 表示状态机当前所处的阶段。
type State string

const (
	StateInitializing   State = "INITIALIZING"
	StateVerifyingFunds State = "VERIFYING_FUNDS"
	StateRunning        State = "RUNNING"
	StateTakeProfit     State = "TAKE_PROFIT"
	StateShutdown       State = "SHUTDOWN"
	StateAborted        State = "ABORTED"
)

// pnlCheckInterval 是 RUNNING 状态下两次 PnL 评估之间的最小间隔。
const pnlCheckInterval = 60 * time.Second

// botRunLayout 生成按 UTC 时间命名的 bot_run 标识，
// 字典序即时间序，与持久化记录的排序方式一致。
const botRunLayout = "20060102_150405"

// ladderReceiver 由模拟交易所实现，网格构建完成后注入，
// 之后余额查询才能由网格推导。
type ladderReceiver interface {
	SetLadder(l *grid.Ladder)
}

// Bot 是网格对冲机器人的核心状态机。
// 它组合网格、订单对账、PnL 引擎和持久化存储，驱动策略从启动到退出:
// INITIALIZING → VERIFYING_FUNDS → RUNNING → TAKE_PROFIT → SHUTDOWN。
// 整个生命周期跑在单个协作式循环里，没有内部并行。
type Bot struct {
	cfg     *models.Config
	spot    exchange.SpotExchange
	options exchange.OptionsExchange
	db      *store.Store
	repo    persistence.StateRepository // live 模式下非nil
	clock   Clock

	state  State
	ladder *grid.Ladder
	syncer *OrderSyncer
	engine *pnl.Engine

	botRun       string
	startTime    time.Time
	lastPnlCheck time.Time
	buyTrades    int
	sellTrades   int
	finalPnl     float64

	stopCh   chan struct{}
	stopOnce sync.Once
}

// New 创建一个新的机器人实例。repo 在 test 模式下可以为 nil。
func New(cfg *models.Config, spot exchange.SpotExchange, options exchange.OptionsExchange,
	db *store.Store, repo persistence.StateRepository, clock Clock) *Bot {
	if clock == nil {
		clock = NewRealClock()
	}
	return &Bot{
		cfg:     cfg,
		spot:    spot,
		options: options,
		db:      db,
		repo:    repo,
		clock:   clock,
		state:   StateInitializing,
		stopCh:  make(chan struct{}),
	}
}

// State 返回状态机当前的阶段。
func (b *Bot) State() State {
	return b.state
}

// BotRun 返回本次运行的标识。
func (b *Bot) BotRun() string {
	return b.botRun
}

// FinalPnl 返回关机时计算的最终收益，供报告模块使用。
func (b *Bot) FinalPnl() float64 {
	return b.finalPnl
}

// TradeCounts 返回本次运行的买卖成交计数。
func (b *Bot) TradeCounts() (buys, sells int) {
	return b.buyTrades, b.sellTrades
}

// RunningTime 返回本次运行的持续时长。
func (b *Bot) RunningTime() time.Duration {
	return b.clock.Now().Sub(b.startTime)
}

// Stop 请求停止。信号在两次循环迭代之间被响应，
// 之后 TAKE_PROFIT/SHUTDOWN 流程会完整执行再退出。
func (b *Bot) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}

// Run 驱动状态机走完整个生命周期。
// INITIALIZING/VERIFYING_FUNDS 阶段的错误直接中止启动并返回；
// RUNNING 阶段的错误只记录日志，循环继续。
func (b *Bot) Run() error {
	if err := b.initialize(); err != nil {
		b.state = StateAborted
		return fmt.Errorf("初始化失败: %w", err)
	}

	b.state = StateVerifyingFunds
	if err := b.verifyFunds(); err != nil {
		b.state = StateAborted
		return err
	}

	b.state = StateRunning
	logger.S().Infof("机器人 %s 进入 RUNNING 状态 (bot_run: %s)", b.cfg.BotName, b.botRun)
	b.runLoop()

	b.state = StateTakeProfit
	b.takeProfit()

	b.state = StateShutdown
	b.shutdown()
	return nil
}

// initialize 构建网格、创建协作组件并恢复/登记本次运行。
func (b *Bot) initialize() error {
	priceTick, err := b.spot.GetPriceTick(b.cfg.SpotMarket)
	if err != nil {
		return fmt.Errorf("获取价格精度失败: %w", err)
	}
	sizeTick, err := b.spot.GetSizeTick(b.cfg.SpotMarket)
	if err != nil {
		return fmt.Errorf("获取数量精度失败: %w", err)
	}

	calc := grid.NewCalculator(b.cfg, priceTick, sizeTick)
	ladder, err := calc.Calculate()
	if err != nil {
		return err
	}
	b.ladder = ladder
	logger.S().Infof("网格构建完成: %d 档, 区间 [%f, %f], 需要 %f %s + %f %s",
		len(ladder.Levels), ladder.MinPrice, ladder.MaxPrice,
		ladder.BaseNeeded, b.cfg.BaseAsset, ladder.QuoteNeeded, b.cfg.QuoteAsset)

	if receiver, ok := b.spot.(ladderReceiver); ok {
		receiver.SetLadder(ladder)
	}

	b.syncer = NewOrderSyncer(b.cfg, b.spot, ladder)
	b.engine = pnl.NewEngine(b.cfg, b.options, ladder.BaseNeeded, ladder.QuoteNeeded)

	b.startTime = b.clock.Now()
	b.botRun = b.startTime.UTC().Format(botRunLayout)

	// live 模式下尝试恢复上次未结束运行的跟踪挂单
	if restored, err := b.restoreState(); err != nil {
		return fmt.Errorf("恢复持久化状态失败: %w", err)
	} else if restored {
		return nil
	}

	// 全新运行: 登记一次去除密钥的策略配置
	rec := store.NewRunRecord(b.startTime, b.cfg.BotName, b.botRun, b.cfg.Redacted())
	if err := b.db.AppendRun(rec); err != nil {
		return fmt.Errorf("写入 runs 记录失败: %w", err)
	}
	return nil
}

// restoreState 从 BadgerDB 恢复上次运行的挂单集合和计数器。
// 返回是否成功恢复了先前的运行。
func (b *Bot) restoreState() (bool, error) {
	if b.repo == nil {
		return false, nil
	}
	state, err := b.repo.LoadState()
	if err != nil {
		return false, err
	}
	if state == nil || state.BotName != b.cfg.BotName || state.Symbol != b.cfg.SpotMarket {
		return false, nil
	}

	b.botRun = state.BotRun
	b.startTime = state.StartTime
	b.buyTrades = state.BuyTrades
	b.sellTrades = state.SellTrades
	b.syncer.RestoreOpenOrders(state.OpenOrders)
	logger.S().Infof("已恢复运行 %s: %d 个跟踪挂单, %d 买 / %d 卖",
		state.BotRun, len(state.OpenOrders), state.BuyTrades, state.SellTrades)
	return true, nil
}

func (b *Bot) saveState() {
	if b.repo == nil {
		return
	}
	state := &models.BotState{
		BotName:        b.cfg.BotName,
		BotRun:         b.botRun,
		Symbol:         b.cfg.SpotMarket,
		StartTime:      b.startTime,
		OpenOrders:     b.syncer.OpenOrders(),
		BuyTrades:      b.buyTrades,
		SellTrades:     b.sellTrades,
		LastUpdateTime: b.clock.Now(),
	}
	if err := b.repo.SaveState(state); err != nil {
		logger.S().Errorf("保存状态失败: %v", err)
	}
}

// verifyFunds 在 live 模式下核对账户资金是否覆盖网格的资本需求。
// test 模式的余额由网格自身推导，必然充足，直接通过。
func (b *Bot) verifyFunds() error {
	if b.cfg.IsTestMode() {
		return nil
	}

	balances, err := b.spot.GetAccountBalance()
	if err != nil {
		return fmt.Errorf("资金校验时获取余额失败: %w", err)
	}

	base := balances[b.cfg.BaseAsset]
	quote := balances[b.cfg.QuoteAsset]
	if base < b.ladder.BaseNeeded || quote < b.ladder.QuoteNeeded {
		return fmt.Errorf("资金不足: 需要 %f %s + %f %s, 实际 %f / %f",
			b.ladder.BaseNeeded, b.cfg.BaseAsset,
			b.ladder.QuoteNeeded, b.cfg.QuoteAsset, base, quote)
	}
	logger.S().Infof("资金校验通过: %f %s, %f %s", base, b.cfg.BaseAsset, quote, b.cfg.QuoteAsset)
	return nil
}

// runLoop 是 RUNNING 状态的主循环。
// 迭代内的任何错误都被捕获并记录，循环在下一个间隔继续；
// 停止信号和止盈条件只在迭代边界被检查。
func (b *Bot) runLoop() {
	sleep := time.Duration(b.cfg.GridModeLoopSleep * float64(time.Second))
	if sleep <= 0 {
		sleep = 5 * time.Second
	}

	for {
		select {
		case <-b.stopCh:
			logger.S().Info("收到停止信号, 进入止盈流程")
			return
		default:
		}

		if b.runIteration() {
			logger.S().Infof("日化收益率达到目标 %f, 进入止盈流程", b.cfg.DailyROITargetForExit)
			return
		}
		b.clock.Sleep(sleep)
	}
}

// runIteration 执行一轮行情读取、订单对账和周期性 PnL 评估。
// 返回是否触发了止盈退出条件。
func (b *Bot) runIteration() (takeProfit bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.S().Errorf("循环迭代发生未预期异常, 下一周期继续: %v", r)
			takeProfit = false
		}
	}()

	ob, err := b.spot.GetOrderbook(b.cfg.SpotMarket)
	if err != nil {
		logger.S().Errorf("获取盘口失败, 跳过本周期: %v", err)
		return false
	}

	mid := ob.Mid()
	if mid < b.ladder.MinPrice || mid > b.ladder.MaxPrice {
		logger.S().Warnf("价格 %f 超出网格区间 [%f, %f]", mid, b.ladder.MinPrice, b.ladder.MaxPrice)
	}

	balances, err := b.spot.GetAccountBalance()
	if err != nil {
		logger.S().Errorf("获取余额失败, 跳过本周期: %v", err)
		return false
	}

	fills := b.syncer.Sync(ob, balances[b.cfg.BaseAsset])
	for _, fill := range fills {
		b.recordTrade(fill)
	}
	b.saveState()

	now := b.clock.Now()
	if now.Sub(b.lastPnlCheck) < pnlCheckInterval {
		return false
	}
	b.lastPnlCheck = now
	return b.evaluatePnl(ob, balances)
}

func (b *Bot) recordTrade(fill models.Order) {
	if fill.Side == models.Buy {
		b.buyTrades++
	} else {
		b.sellTrades++
	}
	rec := store.NewTradeRecord(b.clock.Now(), string(fill.Side), fill.Price, fill.Quantity,
		b.cfg.BotName, b.cfg.Mode(), b.botRun)
	if err := b.db.AppendTrade(rec); err != nil {
		logger.S().Errorf("写入成交记录失败: %v", err)
	}
}

// evaluatePnl 评估当前收益、落盘统计快照并检查日化收益率退出条件。
func (b *Bot) evaluatePnl(ob *models.Orderbook, balances map[string]float64) bool {
	trades, err := b.db.ReadTrades(b.cfg.BotName, b.botRun)
	if err != nil {
		logger.S().Errorf("读取成交历史失败, 跳过本次 PnL 评估: %v", err)
		return false
	}

	snap := b.engine.Evaluate(trades,
		balances[b.cfg.BaseAsset], balances[b.cfg.QuoteAsset], ob)

	rec := store.NewStatsRecord(b.clock.Now(),
		snap.SpotRealized, snap.SpotUnrealized, snap.CallUnrealized, snap.PutUnrealized,
		snap.BuyTrades, snap.SellTrades, b.cfg.BotName, b.cfg.Mode(), b.botRun)
	if err := b.db.AppendStats(rec); err != nil {
		logger.S().Errorf("写入统计记录失败: %v", err)
	}

	roi := pnl.DailyROI(snap.Total(), b.clock.Now().Sub(b.startTime), b.initialInvestment())
	logger.S().Infof("PnL快照: 现货已实现 %f, 现货未实现 %f, call %f, put %f, 日化 %f",
		snap.SpotRealized, snap.SpotUnrealized, snap.CallUnrealized, snap.PutUnrealized, roi)

	return roi >= b.cfg.DailyROITargetForExit
}

// initialInvestment 以计价货币计算本次运行投入的总资本:
// 网格资金需求加上两条期权腿的建仓成本(期权成本以基础货币计)。
func (b *Bot) initialInvestment() float64 {
	optionCostQuote := (b.cfg.CallOptionInitialCostBase + b.cfg.PutOptionInitialCostBase) * b.cfg.SpotEntryPrice
	return b.ladder.BaseNeeded*b.cfg.SpotEntryPrice + b.ladder.QuoteNeeded + optionCostQuote
}

// takeProfit 取消全部跟踪挂单(尽力而为)，市价清算剩余基础资产，
// 并计算最终收益。
func (b *Bot) takeProfit() {
	logger.S().Info("止盈: 取消所有挂单")
	if failed := b.syncer.CancelAll(); failed > 0 {
		logger.S().Warnf("%d 个订单取消失败, 继续退出流程", failed)
	}

	balances, err := b.spot.GetAccountBalance()
	if err != nil {
		logger.S().Errorf("止盈时获取余额失败, 跳过清算: %v", err)
		return
	}

	if base := balances[b.cfg.BaseAsset]; base > fillEpsilon {
		logger.S().Infof("市价清算 %f %s", base, b.cfg.BaseAsset)
		_, err := b.spot.PlaceOrder(exchange.PlaceOrderRequest{
			Symbol:   b.cfg.SpotMarket,
			Side:     models.Sell,
			Type:     "MARKET",
			Quantity: base,
		})
		if err != nil {
			logger.S().Errorf("市价清算失败: %v", err)
		}
	}

	ob, err := b.spot.GetOrderbook(b.cfg.SpotMarket)
	if err != nil {
		logger.S().Errorf("止盈时获取盘口失败, 最终收益按0计: %v", err)
		return
	}
	balances, err = b.spot.GetAccountBalance()
	if err != nil {
		logger.S().Errorf("止盈后获取余额失败, 最终收益按0计: %v", err)
		return
	}
	trades, err := b.db.ReadTrades(b.cfg.BotName, b.botRun)
	if err != nil {
		logger.S().Errorf("止盈时读取成交历史失败, 最终收益按0计: %v", err)
		return
	}

	snap := b.engine.Evaluate(trades,
		balances[b.cfg.BaseAsset], balances[b.cfg.QuoteAsset], ob)
	b.finalPnl = snap.Total()
}

// shutdown 写入一条关机记录并保存最终状态。每次运行恰好写入一次。
func (b *Bot) shutdown() {
	hours := b.RunningTime().Hours()
	rec := store.NewShutdownRecord(b.clock.Now(), b.finalPnl,
		b.buyTrades, b.sellTrades, hours, b.cfg.BotName, b.cfg.Mode(), b.botRun)
	if err := b.db.AppendShutdown(rec); err != nil {
		logger.S().Errorf("写入关机记录失败: %v", err)
	}
	b.saveState()
	logger.S().Infof("机器人 %s 已关机: 最终收益 %f, %d 买 / %d 卖, 运行 %.2f 小时",
		b.cfg.BotName, b.finalPnl, b.buyTrades, b.sellTrades, hours)
}

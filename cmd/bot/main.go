package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"grid-hedge-bot-go/internal/bot"
	"grid-hedge-bot-go/internal/config"
	"grid-hedge-bot-go/internal/exchange"
	"grid-hedge-bot-go/internal/logger"
	"grid-hedge-bot-go/internal/models"
	"grid-hedge-bot-go/internal/persistence"
	"grid-hedge-bot-go/internal/reporter"
	"grid-hedge-bot-go/internal/store"

	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the config file")
	validateOnly := flag.Bool("validate", false, "validate the config file and exit")
	flag.Parse()

	// 先用默认配置初始化日志，保证加载配置阶段也有日志可用
	logger.InitLogger(models.LogConfig{Level: "info", Output: "console"})

	if err := godotenv.Load(); err != nil {
		logger.S().Info("未找到 .env 文件，将从系统环境变量中读取。")
	} else {
		logger.S().Info("成功从 .env 文件加载配置。")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.S().Errorf("配置无效: %v", err)
		os.Exit(1)
	}
	if *validateOnly {
		logger.S().Infof("配置文件 %s 校验通过。", *configPath)
		return
	}

	// 使用文件中的配置重新初始化日志
	logger.InitLogger(cfg.LogConfig)
	defer logger.S().Sync()

	if err := run(cfg); err != nil {
		logger.S().Errorf("机器人异常退出: %v", err)
		os.Exit(1)
	}
}

// run 组装各个组件并驱动机器人完成一次完整运行。
func run(cfg *models.Config) error {
	logger.S().Infof("--- 启动 %s (%s 模式) ---", cfg.BotName, cfg.Mode())

	db, err := store.New(cfg.DataDir)
	if err != nil {
		return err
	}

	binanceEx := exchange.NewBinanceExchange(cfg.BinanceAPIKey, cfg.BinanceAPISecret,
		cfg.RetryAttempts, cfg.RetryInitialDelayMs)
	options := exchange.NewDeribitExchange(cfg.IsTestMode())

	var spot exchange.SpotExchange = binanceEx
	var repo persistence.StateRepository
	if cfg.IsTestMode() {
		spot = exchange.NewSimulatedExchange(binanceEx, cfg)
	} else {
		repo, err = persistence.NewBadgerRepository(cfg.DBPath, cfg.BotName)
		if err != nil {
			return err
		}
		defer repo.Close()
	}

	b := bot.New(cfg, spot, options, db, repo, nil)

	// 停止信号在两次循环迭代之间被响应，之后止盈流程完整执行
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.S().Infof("收到信号 %v, 准备停止机器人...", sig)
		b.Stop()
	}()

	if err := b.Run(); err != nil {
		return err
	}

	buys, sells := b.TradeCounts()
	reporter.PrintSummary(reporter.Summary{
		BotName:     cfg.BotName,
		BotRun:      b.BotRun(),
		Mode:        cfg.Mode(),
		FinalPnl:    b.FinalPnl(),
		BuyTrades:   buys,
		SellTrades:  sells,
		RunningTime: b.RunningTime(),
	})
	if trades, err := db.ReadTrades(cfg.BotName, b.BotRun()); err == nil {
		reporter.PrintTradeHistory(trades)
	}
	return nil
}

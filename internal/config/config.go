package config

import (
	"encoding/json"
	"fmt"
	"os"

	"grid-hedge-bot-go/internal/models"
)

// LoadConfig 从指定路径加载JSON配置文件并解析到Config结构体中。
// 加载成功后立即执行校验，任何配置错误都会在启动阶段被拒绝。
func LoadConfig(path string) (*models.Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	config := &models.Config{}
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("invalid JSON in configuration file: %v", err)
	}

	applyEnvSecrets(config)

	if err := Validate(config); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvSecrets 用环境变量覆盖配置文件中的API密钥。
// 密钥优先从环境读取(含 .env)，配置文件中的同名字段仅作兜底，
// 覆盖必须发生在校验之前，否则仅配置了环境密钥的 live 模式会被拒绝。
func applyEnvSecrets(cfg *models.Config) {
	if v := os.Getenv("BINANCE_API_KEY"); v != "" {
		cfg.BinanceAPIKey = v
	}
	if v := os.Getenv("BINANCE_API_SECRET"); v != "" {
		cfg.BinanceAPISecret = v
	}
	if v := os.Getenv("DERIBIT_API_KEY"); v != "" {
		cfg.DeribitAPIKey = v
	}
	if v := os.Getenv("DERIBIT_API_SECRET"); v != "" {
		cfg.DeribitAPISecret = v
	}
}

// Validate 对配置执行完整校验。配置错误属于致命错误，进程应以非零码退出。
func Validate(cfg *models.Config) error {
	if cfg.TradingMode != "test" && cfg.TradingMode != "live" {
		return fmt.Errorf("trading_mode must be one of [test live], got %q", cfg.TradingMode)
	}

	if err := checkRequiredStrings(cfg); err != nil {
		return err
	}

	// live 模式必须提供密钥和状态库路径；test 模式下均可为空
	if !cfg.IsTestMode() {
		if cfg.BinanceAPIKey == "" || cfg.BinanceAPISecret == "" {
			return fmt.Errorf("binance_api_key and binance_api_secret are required in live mode")
		}
		if cfg.DBPath == "" {
			return fmt.Errorf("db_path is required in live mode")
		}
	}

	if cfg.SpotDownRangePercent <= 0 || cfg.SpotDownRangePercent >= 100 {
		return fmt.Errorf("spot_down_range_percent must be between 0 and 100, got %v", cfg.SpotDownRangePercent)
	}
	if cfg.SpotUpRangePercent <= 0 || cfg.SpotUpRangePercent >= 100 {
		return fmt.Errorf("spot_up_range_percent must be between 0 and 100, got %v", cfg.SpotUpRangePercent)
	}
	if cfg.SpotOrdersDiffPercent <= 0 {
		return fmt.Errorf("spot_orders_diff_percent must be positive, got %v", cfg.SpotOrdersDiffPercent)
	}
	if cfg.DailyROITargetForExit <= 0 {
		return fmt.Errorf("daily_roi_target_for_exit must be positive, got %v", cfg.DailyROITargetForExit)
	}
	if cfg.GridMaxOpenOrders <= 0 {
		return fmt.Errorf("grid_max_open_orders must be positive, got %v", cfg.GridMaxOpenOrders)
	}

	positives := []struct {
		name  string
		value float64
	}{
		{"spot_entry_price", cfg.SpotEntryPrice},
		{"spot_order_size_quote", cfg.SpotOrderSizeQuote},
		{"grid_mode_loop_sleep", cfg.GridModeLoopSleep},
		{"call_option_size_base", cfg.CallOptionSizeBase},
		{"call_option_initial_cost_base", cfg.CallOptionInitialCostBase},
		{"put_option_size_base", cfg.PutOptionSizeBase},
		{"put_option_initial_cost_base", cfg.PutOptionInitialCostBase},
	}
	for _, p := range positives {
		if p.value <= 0 {
			return fmt.Errorf("%s must be positive, got %v", p.name, p.value)
		}
	}

	return nil
}

func checkRequiredStrings(cfg *models.Config) error {
	required := []struct {
		name  string
		value string
	}{
		{"bot_name", cfg.BotName},
		{"spot_market", cfg.SpotMarket},
		{"base_asset", cfg.BaseAsset},
		{"quote_asset", cfg.QuoteAsset},
		{"call_option_name", cfg.CallOptionName},
		{"put_option_name", cfg.PutOptionName},
		{"data_dir", cfg.DataDir},
	}
	var missing []string
	for _, r := range required {
		if r.value == "" {
			missing = append(missing, r.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration fields: %v", missing)
	}
	return nil
}

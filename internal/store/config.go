package store

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Mode        string   `yaml:"mode"`
	DataSource  string   `yaml:"data_source"`
	PollSeconds int      `yaml:"poll_seconds"`
	Exchange    string   `yaml:"exchange"`
	Watchlist   []string `yaml:"watchlist"`
	Strategy    struct {
		BuyGapPct     float64 `yaml:"buy_gap_pct"`
		SellTargetPct float64 `yaml:"sell_target_pct"`
		LossAlertPct  float64 `yaml:"loss_alert_pct"`
	} `yaml:"strategy"`
	Capital struct {
		DeploymentPct float64 `yaml:"deployment_pct"`
		PerTradePct   float64 `yaml:"per_trade_pct"`
		PaperBalance  float64 `yaml:"paper_balance"`
	} `yaml:"capital"`
	Execution struct {
		Products         []string `yaml:"products"`
		FillCheckDelayMs int      `yaml:"fill_check_delay_ms"`
		MinTick          float64  `yaml:"min_tick"`
	} `yaml:"execution"`
	Schedule struct {
		ReconcileSeconds    int    `yaml:"reconcile_seconds"`
		HousekeepingSeconds int    `yaml:"housekeeping_seconds"`
		EODTime             string `yaml:"eod_time"`
		EODDir              string `yaml:"eod_dir"`
	} `yaml:"schedule"`
	Storage struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"storage"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Stream   string `yaml:"stream"`
		Channel  string `yaml:"channel"`
	} `yaml:"redis"`
	Telegram struct {
		Enabled bool  `yaml:"enabled"`
		ChatID  int64 `yaml:"chat_id"`
	} `yaml:"telegram"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Addr    string `yaml:"addr"`
	} `yaml:"metrics"`

	// Populated from the environment only.
	Kite struct {
		APIKey      string `yaml:"-"`
		AccessToken string `yaml:"-"`
	} `yaml:"-"`
	TelegramToken string `yaml:"-"`
}

func (c *Config) DryRun() bool { return c.Mode == "DRY_RUN" }

// ReservePct is always the complement of DeploymentPct.
func (c *Config) ReservePct() float64 { return 100 - c.Capital.DeploymentPct }

func (c *Config) Validate() error {
	if c.Mode != "DRY_RUN" && c.Mode != "LIVE" {
		return fmt.Errorf("invalid mode '%s': must be 'DRY_RUN' or 'LIVE'", c.Mode)
	}
	if c.DataSource != "STATIC" && c.DataSource != "LIVE" {
		return fmt.Errorf("invalid data_source '%s': must be 'STATIC' or 'LIVE'", c.DataSource)
	}
	if len(c.Watchlist) == 0 {
		return errors.New("watchlist cannot be empty")
	}
	if c.Capital.DeploymentPct <= 0 || c.Capital.DeploymentPct > 100 {
		return fmt.Errorf("capital.deployment_pct must be between 0-100, got %.2f", c.Capital.DeploymentPct)
	}
	if c.Capital.PerTradePct <= 0 || c.Capital.PerTradePct > 100 {
		return fmt.Errorf("capital.per_trade_pct must be between 0-100, got %.2f", c.Capital.PerTradePct)
	}
	if c.Strategy.BuyGapPct <= 0 || c.Strategy.SellTargetPct <= 0 || c.Strategy.LossAlertPct <= 0 {
		return errors.New("strategy percentages must be positive")
	}
	if len(c.Execution.Products) == 0 {
		return errors.New("execution.products cannot be empty")
	}
	if c.Storage.Driver != "sqlite" && c.Storage.Driver != "postgres" {
		return fmt.Errorf("storage.driver must be 'sqlite' or 'postgres', got '%s'", c.Storage.Driver)
	}
	if _, _, err := ParseClock(c.Schedule.EODTime); err != nil {
		return fmt.Errorf("schedule.eod_time: %w", err)
	}
	if c.Mode == "LIVE" && (c.Kite.APIKey == "" || c.Kite.AccessToken == "") {
		return errors.New("LIVE mode requires KITE_API_KEY and KITE_ACCESS_TOKEN")
	}
	if c.DataSource == "LIVE" && c.Kite.APIKey == "" {
		return errors.New("LIVE data_source requires KITE_API_KEY")
	}
	if c.Telegram.Enabled && (c.TelegramToken == "" || c.Telegram.ChatID == 0) {
		return errors.New("telegram requires TELEGRAM_BOT_TOKEN and a chat_id")
	}
	return nil
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	c.applyDefaults()
	c.applyEnv()
	c.Watchlist = NormalizeSymbols(c.Watchlist)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = "DRY_RUN"
	}
	if c.DataSource == "" {
		c.DataSource = "STATIC"
	}
	if c.PollSeconds == 0 {
		c.PollSeconds = 5
	}
	if c.Exchange == "" {
		c.Exchange = "NSE"
	}
	if c.Strategy.BuyGapPct == 0 {
		c.Strategy.BuyGapPct = 2
	}
	if c.Strategy.SellTargetPct == 0 {
		c.Strategy.SellTargetPct = 3
	}
	if c.Strategy.LossAlertPct == 0 {
		c.Strategy.LossAlertPct = 5
	}
	if c.Capital.DeploymentPct == 0 {
		c.Capital.DeploymentPct = 70
	}
	if c.Capital.PerTradePct == 0 {
		c.Capital.PerTradePct = 5
	}
	if c.Capital.PaperBalance == 0 {
		c.Capital.PaperBalance = 100000
	}
	if len(c.Execution.Products) == 0 {
		c.Execution.Products = []string{"MTF", "CNC"}
	}
	if c.Execution.FillCheckDelayMs == 0 {
		c.Execution.FillCheckDelayMs = 2000
	}
	if c.Execution.MinTick == 0 {
		c.Execution.MinTick = 0.05
	}
	if c.Schedule.ReconcileSeconds == 0 {
		c.Schedule.ReconcileSeconds = 60
	}
	if c.Schedule.HousekeepingSeconds == 0 {
		c.Schedule.HousekeepingSeconds = 600
	}
	if c.Schedule.EODTime == "" {
		c.Schedule.EODTime = "15:35"
	}
	if c.Schedule.EODDir == "" {
		c.Schedule.EODDir = "logs/eod"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Storage.DSN == "" {
		c.Storage.DSN = "trades.db"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.Stream == "" {
		c.Redis.Stream = "gaptrader:trades"
	}
	if c.Redis.Channel == "" {
		c.Redis.Channel = "gaptrader:activity"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9102"
	}
}

func (c *Config) applyEnv() {
	c.Kite.APIKey = os.Getenv("KITE_API_KEY")
	c.Kite.AccessToken = os.Getenv("KITE_ACCESS_TOKEN")
	c.TelegramToken = os.Getenv("TELEGRAM_BOT_TOKEN")

	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Telegram.ChatID = id
		}
	}
	if v := os.Getenv("WATCHLIST"); v != "" {
		c.Watchlist = strings.Split(v, ",")
	}
	if v := os.Getenv("DRY_RUN"); v != "" {
		if dry, err := strconv.ParseBool(v); err == nil {
			if dry {
				c.Mode = "DRY_RUN"
			} else {
				c.Mode = "LIVE"
			}
		}
	}
	if v := os.Getenv("DB_FILE"); v != "" && c.Storage.Driver == "sqlite" {
		c.Storage.DSN = v
	}
}

// NormalizeSymbols upper-cases, trims and de-duplicates symbols, keeping order.
func NormalizeSymbols(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// ParseClock parses "HH:MM".
func ParseClock(s string) (hour, minute int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid clock %q, want HH:MM", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour, minute, nil
}

package store

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{"KITE_API_KEY", "KITE_ACCESS_TOKEN", "TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID", "WATCHLIST", "DRY_RUN", "DB_FILE"} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "watchlist: [niftybees, goldbees, NIFTYBEES]\n")

	c, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if !c.DryRun() {
		t.Errorf("mode = %s, want DRY_RUN", c.Mode)
	}
	if c.PollSeconds != 5 || c.Exchange != "NSE" {
		t.Errorf("poll/exchange defaults = %d/%s", c.PollSeconds, c.Exchange)
	}
	if c.Capital.DeploymentPct != 70 || c.ReservePct() != 30 || c.Capital.PerTradePct != 5 {
		t.Errorf("capital defaults = %.0f/%.0f/%.0f", c.Capital.DeploymentPct, c.ReservePct(), c.Capital.PerTradePct)
	}
	if c.Strategy.BuyGapPct != 2 || c.Strategy.SellTargetPct != 3 || c.Strategy.LossAlertPct != 5 {
		t.Errorf("strategy defaults = %+v", c.Strategy)
	}
	if want := []string{"MTF", "CNC"}; !reflect.DeepEqual(c.Execution.Products, want) {
		t.Errorf("products = %v, want %v", c.Execution.Products, want)
	}
	if want := []string{"NIFTYBEES", "GOLDBEES"}; !reflect.DeepEqual(c.Watchlist, want) {
		t.Errorf("watchlist = %v, want %v", c.Watchlist, want)
	}
	if c.Storage.Driver != "sqlite" || c.Storage.DSN != "trades.db" {
		t.Errorf("storage = %+v", c.Storage)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("WATCHLIST", "bankbees, itbees")
	t.Setenv("DB_FILE", "/tmp/x.db")
	t.Setenv("DRY_RUN", "false")
	t.Setenv("KITE_API_KEY", "key")
	t.Setenv("KITE_ACCESS_TOKEN", "token")

	c, err := LoadConfig(writeConfig(t, "watchlist: [NIFTYBEES]\ndata_source: LIVE\n"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if c.Mode != "LIVE" {
		t.Errorf("mode = %s, want LIVE", c.Mode)
	}
	if want := []string{"BANKBEES", "ITBEES"}; !reflect.DeepEqual(c.Watchlist, want) {
		t.Errorf("watchlist = %v, want %v", c.Watchlist, want)
	}
	if c.Storage.DSN != "/tmp/x.db" {
		t.Errorf("dsn = %s", c.Storage.DSN)
	}
}

func TestValidateRejects(t *testing.T) {
	clearEnv(t)
	cases := map[string]string{
		"empty watchlist":   "mode: DRY_RUN\n",
		"bad mode":          "mode: PAPER\nwatchlist: [A]\n",
		"deployment > 100":  "watchlist: [A]\ncapital:\n  deployment_pct: 120\n",
		"live without keys": "mode: LIVE\nwatchlist: [A]\n",
		"bad eod clock":     "watchlist: [A]\nschedule:\n  eod_time: \"25:00\"\n",
		"bad driver":        "watchlist: [A]\nstorage:\n  driver: mysql\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), "config validation failed") {
				t.Errorf("error = %v", err)
			}
		})
	}
}

func TestParseClock(t *testing.T) {
	h, m, err := ParseClock("15:35")
	if err != nil || h != 15 || m != 35 {
		t.Fatalf("ParseClock = %d:%d, %v", h, m, err)
	}
	if _, _, err := ParseClock("1535"); err == nil {
		t.Errorf("expected error for missing colon")
	}
}

package telegram

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"etf-gap-trader/internal/types"
)

func formatBuyOutcome(o types.BuyOutcome) string {
	switch o.Status {
	case types.BuyFilled, types.BuySimulated:
		s := fmt.Sprintf("%s %s: %d @ %s (%s)", o.Status, o.Symbol, o.Quantity, o.Price.StringFixed(2), o.Product)
		if o.Degraded {
			s += "\nWARNING: no protective sell order"
		}
		return s
	case types.BuyPending:
		return fmt.Sprintf("PENDING %s: order %s not complete yet", o.Symbol, o.OrderID)
	case types.BuySkipped:
		return fmt.Sprintf("SKIPPED %s: %s", o.Symbol, o.Skip)
	default:
		if o.Err != nil {
			return fmt.Sprintf("FAILED %s: %v", o.Symbol, o.Err)
		}
		return fmt.Sprintf("FAILED %s", o.Symbol)
	}
}

func formatSellOutcome(o types.SellOutcome) string {
	prefix := "SELL"
	if o.Simulated {
		prefix = "SELL (dry run)"
	}
	s := fmt.Sprintf("%s %s: %d @ %s id=%s", prefix, o.Symbol, o.Quantity, o.Price.StringFixed(2), o.OrderID)
	if o.Closed {
		s += "\nPosition closed"
	}
	return s
}

func formatCapital(c types.CapitalState) string {
	return fmt.Sprintf("Total %s | deploy %s (%s%%) | reserve %s | allocated %s | per trade %s",
		c.TotalCapital.StringFixed(2),
		c.DeploymentCapital().StringFixed(2), c.DeploymentPct.String(),
		c.ReserveCapital().StringFixed(2),
		c.AllocatedCapital.StringFixed(2),
		c.PerTradeBudget().StringFixed(2))
}

func formatPositions(ps []types.Position) string {
	if len(ps) == 0 {
		return "No positions"
	}
	var b strings.Builder
	for _, p := range ps {
		fmt.Fprintf(&b, "%s %s %d @ %s target %s [%s]\n",
			p.Symbol, p.Status, p.Quantity, p.AvgBuyPrice.StringFixed(2), p.TargetPrice.StringFixed(2), p.ProductType)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatConditionals(orders []types.ConditionalOrder) string {
	if len(orders) == 0 {
		return "No conditional orders"
	}
	var b strings.Builder
	for _, o := range orders {
		fmt.Fprintf(&b, "%s %s %s %s %s %d [%s]\n",
			o.RemoteID, o.Symbol, o.Meta.Side, o.Condition, o.TriggerPrice.StringFixed(2), o.Quantity, o.Status)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatTrades(ts []types.TradeRecord) string {
	if len(ts) == 0 {
		return "No trades"
	}
	var b strings.Builder
	for _, t := range ts {
		sim := ""
		if t.Simulated {
			sim = " (sim)"
		}
		fmt.Fprintf(&b, "%s %s %s %d @ %s%s\n",
			t.Timestamp.In(ist).Format("01-02 15:04"), t.Side, t.Symbol, t.Quantity, t.Price.StringFixed(2), sim)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatStatus(st types.EngineStatus) string {
	mode := "LIVE"
	if st.DryRun {
		mode = "DRY_RUN"
	}
	statuses := make([]string, 0, len(st.Counts))
	for s, n := range st.Counts {
		statuses = append(statuses, fmt.Sprintf("%s=%d", s, n))
	}
	sort.Strings(statuses)
	return fmt.Sprintf("Mode %s | watching %d symbols\n%s\nAvailable %s\nPositions: %s\nGuarded: %s",
		mode, len(st.Watchlist), formatCapital(st.Capital), st.Available.StringFixed(2),
		strings.Join(statuses, " "), strings.Join(st.Guarded, ", "))
}

var ist = time.FixedZone("IST", 19800)

package eod

import (
	"etf-gap-trader/internal/interfaces"
	"etf-gap-trader/internal/store"
)

// NewSummarizer reads trades from log and writes reports under dir once the
// IST clock passes hour:minute.
func NewSummarizer(log interfaces.TradeLog, dir string, hour, minute int) interfaces.EodSummarizer {
	return newSummarizer(log, dir, hour, minute)
}

// FromConfig builds a summarizer from the schedule section.
func FromConfig(cfg *store.Config, log interfaces.TradeLog) (interfaces.EodSummarizer, error) {
	h, m, err := store.ParseClock(cfg.Schedule.EODTime)
	if err != nil {
		return nil, err
	}
	return newSummarizer(log, cfg.Schedule.EODDir, h, m), nil
}

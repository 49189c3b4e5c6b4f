package interfaces

import (
	"context"
	"time"
)

// EodSummarizer writes the end-of-day trade summary.
type EodSummarizer interface {
	// SummarizeDay aggregates the trade log for the IST day containing day
	// and writes a CSV report.
	//
	// Returns:
	//   - csvPath: Path to the generated CSV file, empty when the day has no trades
	//   - error: Error if the trade log or the file could not be read or written
	SummarizeDay(ctx context.Context, day time.Time) (csvPath string, err error)

	// ShouldRunNow reports whether now is past the configured EOD time and
	// today's summary has not been produced yet.
	ShouldRunNow(now time.Time) bool
}

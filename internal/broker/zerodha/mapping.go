package zerodha

import (
	"errors"
	"fmt"
	"strings"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"etf-gap-trader/internal/types"
)

// Kite error_type values that mean the request itself was refused.
var rejectionTypes = map[string]bool{
	"OrderException":      true,
	"InputException":      true,
	"MarginException":     true,
	"HoldingException":    true,
	"PermissionException": true,
}

// classify tags a Kite error with ErrOrderRejected or ErrTransport.
func classify(err error) error {
	var kerr kiteconnect.Error
	if errors.As(err, &kerr) && rejectionTypes[kerr.ErrorType] {
		return fmt.Errorf("%w: %w", types.ErrOrderRejected, err)
	}
	return fmt.Errorf("%w: %w", types.ErrTransport, err)
}

func mapOrderStatus(s string) types.OrderState {
	switch strings.ToUpper(s) {
	case "COMPLETE":
		return types.OrderComplete
	case "REJECTED":
		return types.OrderRejected
	case "CANCELLED":
		return types.OrderCancelled
	case "":
		return types.OrderUnknown
	default:
		// OPEN, TRIGGER PENDING, VALIDATION PENDING, PUT ORDER REQ RECEIVED, ...
		return types.OrderOpen
	}
}

func mapGTTStatus(s string) types.ConditionalStatus {
	switch strings.ToLower(s) {
	case "triggered":
		return types.CondTriggered
	case "cancelled", "deleted", "disabled", "expired", "rejected":
		return types.CondCancelled
	default:
		return types.CondActive
	}
}

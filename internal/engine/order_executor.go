package engine

import (
	"context"
	"errors"

	"etf-gap-trader/internal/logger"
	"etf-gap-trader/internal/metrics"
	"etf-gap-trader/internal/types"
)

const buyTag = "GAPBUY"

// placeBuyOrder sends a market buy, trying each configured product in order.
// Only a rejection moves on to the next product: after a transport error the
// order may exist at the broker, so trying again could double the position.
//
// Returns:
//   - orderID: broker order id of the accepted attempt
//   - product: product the order was accepted under
//   - attempts: every try, for the audit trail
//   - err: joined errors of all attempts when none was accepted
func (c *Coordinator) placeBuyOrder(ctx context.Context, symbol string, qty int) (string, string, []types.OrderAttempt, error) {
	var (
		attempts []types.OrderAttempt
		errs     []error
	)
	for i, product := range c.p.Products {
		id, err := c.broker.PlaceOrder(ctx, types.OrderRequest{
			Symbol:  symbol,
			Qty:     qty,
			Side:    types.OrderBuy,
			Kind:    types.KindMarket,
			Product: product,
			Tag:     buyTag,
		})
		attempts = append(attempts, types.OrderAttempt{Product: product, OrderID: id, Error: errString(err)})
		if err == nil {
			metrics.Orders.WithLabelValues(string(types.OrderBuy), product, "placed").Inc()
			logger.Info(ctx, "Buy order placed", "symbol", symbol, "qty", qty, "product", product, "order_id", id, "attempt", i+1)
			return id, product, attempts, nil
		}
		errs = append(errs, err)
		if !isRejected(err) {
			metrics.Orders.WithLabelValues(string(types.OrderBuy), product, "error").Inc()
			logger.ErrorWithErr(ctx, "Buy order outcome unknown, not retrying", err, "symbol", symbol, "product", product)
			break
		}
		metrics.Orders.WithLabelValues(string(types.OrderBuy), product, "rejected").Inc()
		logger.Warn(ctx, "Buy order rejected for product", "symbol", symbol, "product", product, "error", err)
	}
	if len(errs) == 0 {
		errs = append(errs, errors.New("no products configured"))
	}
	return "", "", attempts, errors.Join(errs...)
}

// placeSellOrder sends a market or limit sell for a product.
func (c *Coordinator) placeSellOrder(ctx context.Context, req types.OrderRequest) (string, error) {
	req.Side = types.OrderSell
	id, err := c.broker.PlaceOrder(ctx, req)
	switch {
	case err == nil:
		metrics.Orders.WithLabelValues(string(types.OrderSell), req.Product, "placed").Inc()
	case isRejected(err):
		metrics.Orders.WithLabelValues(string(types.OrderSell), req.Product, "rejected").Inc()
	default:
		metrics.Orders.WithLabelValues(string(types.OrderSell), req.Product, "error").Inc()
	}
	return id, err
}

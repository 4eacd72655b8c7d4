// Package feeoracle turns a (speed, address, method) request into the
// flat per-transaction fee, in satoshis, the engine adds to a built
// transaction.
package feeoracle

import (
	"context"

	"github.com/btcswap/htlcengine/internal/gateway"
)

// DefaultFeeSatoshis is the dust-threshold fallback fee used when no
// oracle is configured. Degraded behavior: enough to relay, too low to
// confirm quickly.
const DefaultFeeSatoshis = 546

// Method is the policy tag passed to FeeEstimateRequest.Method. Both
// funding and redeeming use the same value; see DESIGN.md for why a
// single policy was chosen over letting it vary by call site.
const Method = "swap"

// FeeOracle estimates the flat fee for a transaction.
type FeeOracle interface {
	Estimate(ctx context.Context, req gateway.FeeEstimateRequest) (uint64, error)
}

// DefaultFeeOracle always returns the constant dust-threshold fee.
type DefaultFeeOracle struct{}

func (DefaultFeeOracle) Estimate(ctx context.Context, req gateway.FeeEstimateRequest) (uint64, error) {
	return DefaultFeeSatoshis, nil
}

// GatewayFeeOracle asks the ChainGateway's optional FeeEstimator, if the
// configured gateway provides one, instead of quoting the flat default.
type GatewayFeeOracle struct {
	Estimator gateway.FeeEstimator
}

// NewGatewayFeeOracle wraps a FeeEstimator-capable gateway.
func NewGatewayFeeOracle(estimator gateway.FeeEstimator) *GatewayFeeOracle {
	return &GatewayFeeOracle{Estimator: estimator}
}

func (o *GatewayFeeOracle) Estimate(ctx context.Context, req gateway.FeeEstimateRequest) (uint64, error) {
	if o.Estimator == nil {
		return DefaultFeeSatoshis, nil
	}
	return o.Estimator.EstimateFeeValue(ctx, req)
}

var (
	_ FeeOracle = DefaultFeeOracle{}
	_ FeeOracle = (*GatewayFeeOracle)(nil)
)

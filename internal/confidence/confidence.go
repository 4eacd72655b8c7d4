// Package confidence classifies unspent outputs as confident enough to
// act on before they reach full confirmation, trading zero-conf risk
// for a fee-based proxy: a mempool transaction paying at least the
// current fast fee is unlikely to be evicted by a replacement.
package confidence

import (
	"context"

	"github.com/btcswap/htlcengine/internal/feeoracle"
	"github.com/btcswap/htlcengine/internal/gateway"
)

// DefaultThreshold is the acceptance cutoff used when none is configured.
const DefaultThreshold = 0.95

// Filter scores and accepts Unspents by confidence.
type Filter struct {
	Gateway   gateway.Gateway
	FeeOracle feeoracle.FeeOracle
	Threshold float64
}

// New creates a Filter. A zero threshold is replaced with DefaultThreshold.
func New(gw gateway.Gateway, fo feeoracle.FeeOracle, threshold float64) *Filter {
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	return &Filter{Gateway: gw, FeeOracle: fo, Threshold: threshold}
}

// Confidence scores a single Unspent in [0, 1]:
//  1. confirmed outputs are always 1.0.
//  2. otherwise, fetch TxInfo (if the gateway supports it) and compare
//     the fee it paid against the current fast fee for its sender.
//  3. any failure along that path - no TxInfoFetcher, a fetch error, a
//     missing fees field - degrades to the unconfirmed default of 0.
func (f *Filter) Confidence(ctx context.Context, u gateway.Unspent) float64 {
	if u.Confirmations > 0 {
		return 1.0
	}

	fetcher, ok := f.Gateway.(gateway.TxInfoFetcher)
	if !ok {
		return 0
	}
	info, err := fetcher.FetchTxInfo(ctx, u.TxID)
	if err != nil || info == nil || info.Fees == nil {
		return 0
	}

	fastFee, err := f.FeeOracle.Estimate(ctx, gateway.FeeEstimateRequest{
		Speed:   gateway.SpeedFast,
		Address: info.SenderAddress,
		Method:  feeoracle.Method,
	})
	if err != nil || fastFee == 0 {
		return 0
	}

	conf := float64(*info.Fees) / float64(fastFee)
	if conf > 1 {
		conf = 1
	}
	return conf
}

// FilterAccepted returns the subset of unspents whose confidence meets the
// filter's threshold.
func (f *Filter) FilterAccepted(ctx context.Context, unspents []gateway.Unspent) []gateway.Unspent {
	accepted := make([]gateway.Unspent, 0, len(unspents))
	for _, u := range unspents {
		if f.Confidence(ctx, u) >= f.Threshold {
			accepted = append(accepted, u)
		}
	}
	return accepted
}

// Total sums the satoshi value of unspents.
func Total(unspents []gateway.Unspent) uint64 {
	var total uint64
	for _, u := range unspents {
		total += u.Satoshis
	}
	return total
}

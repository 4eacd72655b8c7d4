package confidence

import (
	"context"
	"testing"

	"github.com/btcswap/htlcengine/internal/gateway"
)

type fakeGateway struct {
	txInfo map[string]*gateway.TxInfo
}

func (f *fakeGateway) FetchBalance(ctx context.Context, address string) (uint64, error) {
	return 0, nil
}

func (f *fakeGateway) FetchUnspents(ctx context.Context, address string) ([]gateway.Unspent, error) {
	return nil, nil
}

func (f *fakeGateway) BroadcastTx(ctx context.Context, rawTxHex string) (string, error) {
	return "", nil
}

func (f *fakeGateway) FetchTxInfo(ctx context.Context, txid string) (*gateway.TxInfo, error) {
	info, ok := f.txInfo[txid]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	return info, nil
}

type fixedFeeOracle uint64

func (f fixedFeeOracle) Estimate(ctx context.Context, req gateway.FeeEstimateRequest) (uint64, error) {
	return uint64(f), nil
}

var _ gateway.Gateway = (*fakeGateway)(nil)
var _ gateway.TxInfoFetcher = (*fakeGateway)(nil)

func fee(v uint64) *uint64 { return &v }

func TestConfirmedUnspentIsAlwaysFullConfidence(t *testing.T) {
	f := New(&fakeGateway{}, fixedFeeOracle(1000), 0)
	u := gateway.Unspent{TxID: "a", Confirmations: 1}
	if got := f.Confidence(context.Background(), u); got != 1.0 {
		t.Errorf("Confidence() = %v, want 1.0", got)
	}
}

func TestUnconfirmedWithoutTxInfoFetcherIsZero(t *testing.T) {
	gw := struct{ gateway.Gateway }{&fakeGateway{}} // wrapper hides TxInfoFetcher
	f := New(gw, fixedFeeOracle(1000), 0)
	u := gateway.Unspent{TxID: "a", Confirmations: 0}
	if got := f.Confidence(context.Background(), u); got != 0 {
		t.Errorf("Confidence() = %v, want 0", got)
	}
}

func TestConfidenceMonotonicInFee(t *testing.T) {
	gw := &fakeGateway{txInfo: map[string]*gateway.TxInfo{
		"low":  {TxID: "low", SenderAddress: "addr", Fees: fee(100)},
		"high": {TxID: "high", SenderAddress: "addr", Fees: fee(900)},
	}}
	f := New(gw, fixedFeeOracle(1000), 0)

	low := f.Confidence(context.Background(), gateway.Unspent{TxID: "low"})
	high := f.Confidence(context.Background(), gateway.Unspent{TxID: "high"})
	if !(low < high) {
		t.Errorf("expected low fee confidence (%v) < high fee confidence (%v)", low, high)
	}
}

func TestConfidenceCappedAtOne(t *testing.T) {
	gw := &fakeGateway{txInfo: map[string]*gateway.TxInfo{
		"overpaid": {TxID: "overpaid", SenderAddress: "addr", Fees: fee(5000)},
	}}
	f := New(gw, fixedFeeOracle(1000), 0)
	got := f.Confidence(context.Background(), gateway.Unspent{TxID: "overpaid"})
	if got != 1.0 {
		t.Errorf("Confidence() = %v, want capped at 1.0", got)
	}
}

func TestFilterAcceptedRespectsThreshold(t *testing.T) {
	gw := &fakeGateway{txInfo: map[string]*gateway.TxInfo{
		"confident":   {TxID: "confident", SenderAddress: "addr", Fees: fee(1000)},
		"unconfident": {TxID: "unconfident", SenderAddress: "addr", Fees: fee(10)},
	}}
	f := New(gw, fixedFeeOracle(1000), DefaultThreshold)
	unspents := []gateway.Unspent{
		{TxID: "confident"},
		{TxID: "unconfident"},
	}
	accepted := f.FilterAccepted(context.Background(), unspents)
	if len(accepted) != 1 || accepted[0].TxID != "confident" {
		t.Errorf("FilterAccepted() = %+v, want only the confident unspent", accepted)
	}
}

func TestTotal(t *testing.T) {
	unspents := []gateway.Unspent{{Satoshis: 100}, {Satoshis: 250}}
	if got := Total(unspents); got != 350 {
		t.Errorf("Total() = %d, want 350", got)
	}
}

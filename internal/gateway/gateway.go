// Package gateway abstracts blockchain access - balance, UTXO set,
// broadcast, transaction metadata, and fee estimation - behind a small
// interface plus optional capability interfaces, so the engine degrades
// gracefully when a backend can't support one of them.
package gateway

import (
	"context"
	"errors"
)

// ErrNotFound means the gateway has no record of the requested resource
// (an address with no history, or an unknown txid).
var ErrNotFound = errors.New("gateway: not found")

// ErrNonFinal is returned by BroadcastTx when a transaction is rejected
// because its CLTV locktime has not yet been reached by the chain.
var ErrNonFinal = errors.New("gateway: transaction not final")

// Unspent is an unspent transaction output as reported by a gateway.
type Unspent struct {
	TxID     string
	Vout     uint32
	Satoshis uint64

	// Confirmations is 0 for an unconfirmed or unreported output.
	Confirmations uint32
}

// TxInfo is transaction metadata used for confidence estimation. Fields
// a gateway cannot supply are left at their zero value; Fees is a
// pointer because its absence (vs. zero) is meaningful.
type TxInfo struct {
	TxID          string
	SenderAddress string
	Fees          *uint64
	SizeVBytes    uint32
	Confirmations uint32
}

// Speed is the confirmation-urgency hint passed to a FeeEstimator.
type Speed string

const (
	SpeedSlow   Speed = "slow"
	SpeedNormal Speed = "normal"
	SpeedFast   Speed = "fast"
)

// FeeEstimateRequest carries the parameters a FeeEstimator may use to
// compute a per-transaction fee.
type FeeEstimateRequest struct {
	InSatoshis   uint64
	Speed        Speed
	Address      string
	Method       string
	TxSizeVBytes uint32 // 0 means unknown
}

// WithdrawRecord reports a transaction that has already spent an HTLC
// output, discovered by a WithdrawDetector.
type WithdrawRecord struct {
	Address string
	TxID    string
}

// Gateway is the required surface every backend must implement: balance,
// UTXO set, and broadcast.
type Gateway interface {
	FetchBalance(ctx context.Context, address string) (uint64, error)
	FetchUnspents(ctx context.Context, address string) ([]Unspent, error)
	BroadcastTx(ctx context.Context, rawTxHex string) (string, error)
}

// TxInfoFetcher is an optional capability. Its absence disables
// fee-based confidence estimation; callers must type-assert for it.
type TxInfoFetcher interface {
	FetchTxInfo(ctx context.Context, txid string) (*TxInfo, error)
}

// FeeEstimator is an optional capability. Its absence falls back to the
// default constant fee.
type FeeEstimator interface {
	EstimateFeeValue(ctx context.Context, req FeeEstimateRequest) (uint64, error)
}

// WithdrawDetector is an optional capability enabling the
// already-withdrawn idempotence path.
type WithdrawDetector interface {
	CheckWithdraw(ctx context.Context, address string) (*WithdrawRecord, error)
}

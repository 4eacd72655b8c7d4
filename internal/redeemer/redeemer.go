// Package redeemer spends a funded HTLC, either by revealing the secret
// (withdraw) or by waiting out the timelock (refund). Both paths share
// one algorithm, parameterized on which branch of the redeem script
// they intend to satisfy.
package redeemer

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/btcswap/htlcengine/internal/chain"
	"github.com/btcswap/htlcengine/internal/feeoracle"
	"github.com/btcswap/htlcengine/internal/gateway"
	"github.com/btcswap/htlcengine/internal/htlc"
	"github.com/btcswap/htlcengine/internal/keyring"
	"github.com/btcswap/htlcengine/internal/swaperr"
	"github.com/btcswap/htlcengine/pkg/logging"
)

// observeDelay is how long Redeemer waits after broadcast before checking
// that the transaction is actually observable through the gateway. The
// spec calls for "a short interval (~10s)" to let an indexer catch up.
const observeDelay = 10 * time.Second

// finalSequence is 0xFFFFFFFE: final enough to relay, but still low
// enough to leave nLockTime enforcement active. 0xFFFFFFFF would disable
// it entirely and break the refund path.
const finalSequence = 0xFFFFFFFE

// Result is what Withdraw/Refund return on success.
type Result struct {
	TxID string

	// AlreadyWithdrawn is true when this call found a prior spend via
	// WithdrawDetector and returned its txid instead of broadcasting.
	AlreadyWithdrawn bool
}

// Redeemer spends a funded HTLC address.
type Redeemer struct {
	Gateway   gateway.Gateway
	Keyring   keyring.Keyring
	FeeOracle feeoracle.FeeOracle
	Params    *chain.Params

	// ObserveDelay overrides observeDelay; zero means use the default.
	// Exposed so tests don't have to wait out the real interval.
	ObserveDelay time.Duration
}

// New creates a Redeemer.
func New(gw gateway.Gateway, kr keyring.Keyring, fo feeoracle.FeeOracle, params *chain.Params) *Redeemer {
	return &Redeemer{Gateway: gw, Keyring: kr, FeeOracle: fo, Params: params}
}

// Withdraw spends the HTLC by revealing secret, paying the HTLC's value
// (minus fee) to destAddress. An empty destAddress defaults to the
// keyring's own address, since withdraw's recipient is the local party
// acting as the HTLC's recipient.
func (r *Redeemer) Withdraw(ctx context.Context, values htlc.ScriptValues, secret []byte, destAddress string) (*Result, error) {
	return r.redeem(ctx, values, false, secret, destAddress)
}

// Refund spends the HTLC via its timelock branch after scriptValues.LockTime
// has matured, paying the HTLC's value (minus fee) to destAddress. An
// empty destAddress defaults to the keyring's own address, since refund's
// recipient is the local party acting as the HTLC's owner.
//
// refundDummySecret is a non-matching value pushed in place of the real
// secret so that the script's OP_EQUAL evaluates false and execution
// falls into the timelock branch. It is a distinct, documented parameter
// rather than a reuse of Withdraw's secret - the reference implementation
// this spec distills from blurs the two, which this engine treats as a
// defect to avoid rather than reproduce.
func (r *Redeemer) Refund(ctx context.Context, values htlc.ScriptValues, refundDummySecret []byte, destAddress string) (*Result, error) {
	return r.redeem(ctx, values, true, refundDummySecret, destAddress)
}

func (r *Redeemer) redeem(ctx context.Context, values htlc.ScriptValues, isRefund bool, secretOrDummy []byte, destAddress string) (*Result, error) {
	built, err := htlc.Build(values, r.Params)
	if err != nil {
		return nil, err
	}

	if destAddress == "" {
		destAddress, err = r.Keyring.Address(r.Params)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", swaperr.ErrInvariantViolated, err)
		}
	}

	unspents, err := r.Gateway.FetchUnspents(ctx, built.Address)
	if err != nil {
		return nil, swaperr.Gateway("fetch-unspents", err)
	}
	var total uint64
	for _, u := range unspents {
		total += u.Satoshis
	}

	feeValue, err := r.FeeOracle.Estimate(ctx, gateway.FeeEstimateRequest{
		InSatoshis: total,
		Speed:      gateway.SpeedNormal,
		Address:    built.Address,
		Method:     feeoracle.Method,
	})
	if err != nil {
		return nil, swaperr.Gateway("estimate-fee", err)
	}

	if total < feeValue {
		if detector, ok := r.Gateway.(gateway.WithdrawDetector); ok {
			record, derr := detector.CheckWithdraw(ctx, built.Address)
			if derr == nil && record != nil && strings.EqualFold(record.Address, destAddress) {
				return &Result{TxID: record.TxID, AlreadyWithdrawn: true}, nil
			}
		}
		if total == 0 {
			return nil, swaperr.ErrAddressEmpty
		}
		return nil, &swaperr.InsufficientFundsError{Total: total, Fee: feeValue, Requested: 0}
	}
	payoutValue := total - feeValue

	destAddr, err := btcutil.DecodeAddress(destAddress, chain.ToChainCfgParams(r.Params))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", swaperr.ErrInvariantViolated, err)
	}
	destPkScript, err := txscript.PayToAddrScript(destAddr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", swaperr.ErrInvariantViolated, err)
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	if isRefund {
		tx.LockTime = uint32(values.LockTime)
	}
	for _, u := range unspents {
		hash, err := chainhash.NewHashFromStr(u.TxID)
		if err != nil {
			return nil, fmt.Errorf("%w: bad txid %q: %v", swaperr.ErrInvariantViolated, u.TxID, err)
		}
		in := wire.NewTxIn(&wire.OutPoint{Hash: *hash, Index: u.Vout}, nil, nil)
		in.Sequence = finalSequence
		tx.AddTxIn(in)
	}
	tx.AddTxOut(wire.NewTxOut(int64(payoutValue), destPkScript))

	localPubKey := r.Keyring.PublicKey()
	secret := stripHexPrefix(secretOrDummy)

	for i := range tx.TxIn {
		sigHash, err := txscript.CalcSignatureHash(built.RedeemScript, txscript.SigHashAll, tx, i)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", swaperr.ErrInvariantViolated, err)
		}
		rawSig, err := r.Keyring.SignHash(sigHash)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", swaperr.ErrInvariantViolated, err)
		}
		sig := append(append([]byte{}, rawSig...), byte(txscript.SigHashAll))

		b := txscript.NewScriptBuilder()
		b.AddData(sig)
		b.AddData(localPubKey)
		b.AddData(secret)
		b.AddData(built.RedeemScript)
		scriptSig, err := b.Script()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", swaperr.ErrInvariantViolated, err)
		}
		tx.TxIn[i].SignatureScript = scriptSig
	}

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, fmt.Errorf("%w: %v", swaperr.ErrInvariantViolated, err)
	}

	txid, err := r.Gateway.BroadcastTx(ctx, hex.EncodeToString(buf.Bytes()))
	if err != nil {
		if errors.Is(err, gateway.ErrNonFinal) {
			return nil, &swaperr.TimelockNotMatureError{LockTime: values.LockTime}
		}
		return nil, swaperr.Gateway("broadcast", err)
	}

	delay := r.ObserveDelay
	if delay == 0 {
		delay = observeDelay
	}
	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	observed, err := r.observe(ctx, txid)
	if err != nil {
		logging.Warn("redeem tx not observable after delay", "txid", txid, "error", err)
		return nil, &swaperr.TxNotFoundError{TxID: txid}
	}
	if !observed {
		return nil, &swaperr.TxNotFoundError{TxID: txid}
	}

	return &Result{TxID: txid}, nil
}

// observe reports whether txid can be found through the gateway's
// optional TxInfoFetcher. A gateway without that capability is assumed
// to have observed anything it just accepted a broadcast for.
func (r *Redeemer) observe(ctx context.Context, txid string) (bool, error) {
	fetcher, ok := r.Gateway.(gateway.TxInfoFetcher)
	if !ok {
		return true, nil
	}
	info, err := fetcher.FetchTxInfo(ctx, txid)
	if err != nil {
		return false, err
	}
	return info != nil, nil
}

func stripHexPrefix(b []byte) []byte {
	if len(b) >= 2 && b[0] == '0' && (b[1] == 'x' || b[1] == 'X') {
		return b[2:]
	}
	return b
}

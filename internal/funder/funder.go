// Package funder builds, signs, and broadcasts the transaction that
// locks coins into an HTLC address.
package funder

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"

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
	"github.com/btcswap/htlcengine/pkg/satoshi"
)

// Result is what Fund returns on success.
type Result struct {
	TxID        string
	HTLCAddress string
	FundValue   uint64
	FeeValue    uint64
	ChangeValue uint64
}

// Funder locks an owner's coins into an HTLC address.
type Funder struct {
	Gateway   gateway.Gateway
	Keyring   keyring.Keyring
	FeeOracle feeoracle.FeeOracle
	Params    *chain.Params
}

// New creates a Funder.
func New(gw gateway.Gateway, kr keyring.Keyring, fo feeoracle.FeeOracle, params *chain.Params) *Funder {
	return &Funder{Gateway: gw, Keyring: kr, FeeOracle: fo, Params: params}
}

// Fund builds, signs and broadcasts the funding transaction for values,
// locking amountBTC (decimal BTC, e.g. "0.015") into the HTLC address.
// If onTxID is non-nil, it is invoked with the computed txid before
// broadcast.
func (f *Funder) Fund(ctx context.Context, values htlc.ScriptValues, amountBTC string, onTxID func(txid string)) (*Result, error) {
	built, err := htlc.Build(values, f.Params)
	if err != nil {
		return nil, err
	}

	ownerAddress, err := f.Keyring.Address(f.Params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", swaperr.ErrInvariantViolated, err)
	}

	unspents, err := f.Gateway.FetchUnspents(ctx, ownerAddress)
	if err != nil {
		return nil, swaperr.Gateway("fetch-unspents", err)
	}
	var total uint64
	for _, u := range unspents {
		total += u.Satoshis
	}

	fundValue, err := satoshi.FromBTC(amountBTC)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", swaperr.ErrInvariantViolated, err)
	}
	feeValue, err := f.FeeOracle.Estimate(ctx, gateway.FeeEstimateRequest{
		InSatoshis: fundValue,
		Speed:      gateway.SpeedNormal,
		Address:    ownerAddress,
		Method:     feeoracle.Method,
	})
	if err != nil {
		return nil, swaperr.Gateway("estimate-fee", err)
	}

	if total < fundValue+feeValue {
		return nil, &swaperr.InsufficientFundsError{Total: total, Fee: feeValue, Requested: fundValue}
	}
	changeValue := total - fundValue - feeValue

	chainParams := chain.ToChainCfgParams(f.Params)
	ownerAddr, err := btcutil.DecodeAddress(ownerAddress, chainParams)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", swaperr.ErrInvariantViolated, err)
	}
	ownerPkScript, err := txscript.PayToAddrScript(ownerAddr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", swaperr.ErrInvariantViolated, err)
	}

	htlcPkScript, err := htlc.P2SHScriptPubKey(built.RedeemScript)
	if err != nil {
		return nil, err
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	for _, u := range unspents {
		hash, err := chainhash.NewHashFromStr(u.TxID)
		if err != nil {
			return nil, fmt.Errorf("%w: bad txid %q: %v", swaperr.ErrInvariantViolated, u.TxID, err)
		}
		tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Hash: *hash, Index: u.Vout}, nil, nil))
	}

	tx.AddTxOut(wire.NewTxOut(int64(fundValue), htlcPkScript))
	tx.AddTxOut(wire.NewTxOut(int64(changeValue), ownerPkScript))

	for i := range tx.TxIn {
		if err := f.Keyring.SignP2PKH(tx, i, ownerPkScript); err != nil {
			return nil, fmt.Errorf("%w: %v", swaperr.ErrInvariantViolated, err)
		}
	}

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, fmt.Errorf("%w: %v", swaperr.ErrInvariantViolated, err)
	}
	txid := tx.TxHash().String()

	if onTxID != nil {
		onTxID(txid)
	}

	broadcastTxID, err := f.Gateway.BroadcastTx(ctx, hex.EncodeToString(buf.Bytes()))
	if err != nil {
		return nil, swaperr.Gateway("broadcast", err)
	}

	return &Result{
		TxID:        broadcastTxID,
		HTLCAddress: built.Address,
		FundValue:   fundValue,
		FeeValue:    feeValue,
		ChangeValue: changeValue,
	}, nil
}

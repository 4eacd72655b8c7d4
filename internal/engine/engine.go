// Package engine exposes one Bitcoin HTLC swap leg through the
// chain-agnostic SwapEngine contract. A multi-chain swap orchestrator
// holds one SwapEngine per chain and sequences the two legs; this
// package is the Bitcoin implementation, composed from the script
// builder, funder, checker and redeemer.
package engine

import (
	"context"

	"github.com/btcswap/htlcengine/internal/chain"
	"github.com/btcswap/htlcengine/internal/checker"
	"github.com/btcswap/htlcengine/internal/confidence"
	"github.com/btcswap/htlcengine/internal/feeoracle"
	"github.com/btcswap/htlcengine/internal/funder"
	"github.com/btcswap/htlcengine/internal/gateway"
	"github.com/btcswap/htlcengine/internal/htlc"
	"github.com/btcswap/htlcengine/internal/keyring"
	"github.com/btcswap/htlcengine/internal/redeemer"
	"github.com/btcswap/htlcengine/internal/swaperr"
	"github.com/btcswap/htlcengine/pkg/logging"
)

// SwapEngine is the contract every chain-side HTLC engine implements.
// No state is shared across implementations - only this surface.
type SwapEngine interface {
	// CreateScript compiles the HTLC redeem script and derives the
	// address the funding transaction must pay.
	CreateScript(values htlc.ScriptValues) (*htlc.Built, error)

	// CheckScript verifies a counterparty-published HTLC against the
	// negotiated expectations. A mismatch surfaces as a
	// swaperr.ScriptMismatchError; transport failures as GatewayError.
	CheckScript(ctx context.Context, values htlc.ScriptValues, expected checker.Expected) error

	// FundScript locks amountBTC (decimal BTC) into the HTLC address.
	FundScript(ctx context.Context, values htlc.ScriptValues, amountBTC string, onTxID func(txid string)) (*funder.Result, error)

	// Withdraw spends the HTLC by revealing secret.
	Withdraw(ctx context.Context, values htlc.ScriptValues, secret []byte, destAddress string) (*redeemer.Result, error)

	// Refund spends the HTLC via its timelock branch once matured.
	Refund(ctx context.Context, values htlc.ScriptValues, refundDummySecret []byte, destAddress string) (*redeemer.Result, error)

	// GetBalance returns the satoshi balance at address, defaulting to
	// the engine's own key's address when address is empty.
	GetBalance(ctx context.Context, address string) (uint64, error)
}

// Bitcoin is the Bitcoin-side SwapEngine.
type Bitcoin struct {
	gateway gateway.Gateway
	keyring keyring.Keyring
	params  *chain.Params

	funder   *funder.Funder
	checker  *checker.Checker
	redeemer *redeemer.Redeemer

	log *logging.Logger
}

// NewBitcoin assembles a Bitcoin engine. A nil FeeOracle falls back to
// the constant-fee default; a zero confidenceThreshold falls back to
// confidence.DefaultThreshold.
func NewBitcoin(gw gateway.Gateway, kr keyring.Keyring, fo feeoracle.FeeOracle, params *chain.Params, confidenceThreshold float64) *Bitcoin {
	if fo == nil {
		fo = feeoracle.DefaultFeeOracle{}
	}
	cf := confidence.New(gw, fo, confidenceThreshold)
	return &Bitcoin{
		gateway:  gw,
		keyring:  kr,
		params:   params,
		funder:   funder.New(gw, kr, fo, params),
		checker:  checker.New(gw, cf),
		redeemer: redeemer.New(gw, kr, fo, params),
		log:      logging.GetDefault().Component("btc-engine"),
	}
}

func (b *Bitcoin) CreateScript(values htlc.ScriptValues) (*htlc.Built, error) {
	return htlc.Build(values, b.params)
}

func (b *Bitcoin) CheckScript(ctx context.Context, values htlc.ScriptValues, expected checker.Expected) error {
	reason, err := b.checker.Check(ctx, values, b.params, expected)
	if err != nil {
		return err
	}
	if reason != "" {
		b.log.Warn("counterparty script rejected", "reason", reason)
		return &swaperr.ScriptMismatchError{Reason: reason}
	}
	return nil
}

func (b *Bitcoin) FundScript(ctx context.Context, values htlc.ScriptValues, amountBTC string, onTxID func(txid string)) (*funder.Result, error) {
	result, err := b.funder.Fund(ctx, values, amountBTC, onTxID)
	if err != nil {
		return nil, err
	}
	b.log.Info("htlc funded", "address", result.HTLCAddress, "txid", result.TxID, "satoshis", result.FundValue)
	return result, nil
}

func (b *Bitcoin) Withdraw(ctx context.Context, values htlc.ScriptValues, secret []byte, destAddress string) (*redeemer.Result, error) {
	result, err := b.redeemer.Withdraw(ctx, values, secret, destAddress)
	if err != nil {
		return nil, err
	}
	b.log.Info("htlc withdrawn", "txid", result.TxID, "already", result.AlreadyWithdrawn)
	return result, nil
}

func (b *Bitcoin) Refund(ctx context.Context, values htlc.ScriptValues, refundDummySecret []byte, destAddress string) (*redeemer.Result, error) {
	result, err := b.redeemer.Refund(ctx, values, refundDummySecret, destAddress)
	if err != nil {
		return nil, err
	}
	b.log.Info("htlc refunded", "txid", result.TxID, "already", result.AlreadyWithdrawn)
	return result, nil
}

func (b *Bitcoin) GetBalance(ctx context.Context, address string) (uint64, error) {
	if address == "" {
		var err error
		address, err = b.keyring.Address(b.params)
		if err != nil {
			return 0, err
		}
	}
	balance, err := b.gateway.FetchBalance(ctx, address)
	if err != nil {
		return 0, swaperr.Gateway("fetch-balance", err)
	}
	return balance, nil
}

var _ SwapEngine = (*Bitcoin)(nil)

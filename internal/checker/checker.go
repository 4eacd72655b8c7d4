// Package checker verifies that a counterparty-published HTLC matches
// the value, lock-time, and recipient a swap was negotiated for, with
// enough confidence to act on.
package checker

import (
	"bytes"
	"context"
	"fmt"

	"github.com/btcswap/htlcengine/internal/chain"
	"github.com/btcswap/htlcengine/internal/confidence"
	"github.com/btcswap/htlcengine/internal/gateway"
	"github.com/btcswap/htlcengine/internal/htlc"
	"github.com/btcswap/htlcengine/internal/swaperr"
)

// Expected is what a prior negotiation committed the counterparty's
// HTLC to. The owner and hash algorithm are implicitly trusted via that
// negotiation - Checker only re-verifies value, lock-time and recipient.
type Expected struct {
	Value              uint64
	LockTime           int64
	RecipientPublicKey []byte
}

// Checker derives an HTLC's address from ScriptValues, fetches its
// unspent outputs, and validates them against Expected.
type Checker struct {
	Gateway    gateway.Gateway
	Confidence *confidence.Filter
}

// New creates a Checker.
func New(gw gateway.Gateway, cf *confidence.Filter) *Checker {
	return &Checker{Gateway: gw, Confidence: cf}
}

// Check returns an empty string when values/expected are consistent with
// what's actually on-chain, or a diagnostic reason string otherwise. It
// never returns an error for counterparty misbehavior - only for
// transport or invariant failures reaching the gateway or ScriptBuilder.
func (c *Checker) Check(ctx context.Context, values htlc.ScriptValues, params *chain.Params, expected Expected) (string, error) {
	built, err := htlc.Build(values, params)
	if err != nil {
		return "", err
	}

	unspents, err := c.Gateway.FetchUnspents(ctx, built.Address)
	if err != nil {
		return "", swaperr.Gateway("fetch-unspents", err)
	}

	total := confidence.Total(unspents)
	confident := c.Confidence.FilterAccepted(ctx, unspents)
	confidentTotal := confidence.Total(confident)

	switch {
	case expected.Value > total:
		return fmt.Sprintf("expected value %d exceeds total unspent %d", expected.Value, total), nil
	case expected.LockTime > values.LockTime:
		return fmt.Sprintf("expected lockTime %d exceeds script lockTime %d", expected.LockTime, values.LockTime), nil
	case !bytes.Equal(expected.RecipientPublicKey, values.RecipientPublicKey):
		return "recipient public key mismatch", nil
	case expected.Value > confidentTotal:
		return fmt.Sprintf("expected value %d exceeds confidence-filtered total %d", expected.Value, confidentTotal), nil
	default:
		return "", nil
	}
}

// Package htlc builds the hash-time-locked-contract redeem script used to
// lock one leg of a cross-chain atomic swap, and derives the P2SH address
// that wraps it.
package htlc

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"

	"github.com/btcswap/htlcengine/internal/chain"
	"github.com/btcswap/htlcengine/internal/swaperr"
)

// HashAlgorithm selects the hash opcode the redeem script uses to check
// the revealed secret against secretHash.
type HashAlgorithm string

const (
	RIPEMD160 HashAlgorithm = "ripemd160"
	SHA256    HashAlgorithm = "sha256"
)

// compressedPubKeyLen is the length of a 33-byte compressed SEC point.
const compressedPubKeyLen = 33

// ScriptValues are the parameters that uniquely identify one HTLC
// instance. Immutable - the derived P2SH address is a deterministic
// function of (ScriptValues, network).
type ScriptValues struct {
	// SecretHash is 20 bytes when HashName is RIPEMD160, 32 bytes when SHA256.
	SecretHash []byte

	// OwnerPublicKey is the refund beneficiary's 33-byte compressed key.
	OwnerPublicKey []byte

	// RecipientPublicKey is the secret-reveal beneficiary's 33-byte compressed key.
	RecipientPublicKey []byte

	// LockTime is the absolute locktime (block height or Unix timestamp
	// per BIP-65 conventions) enforced in the refund branch.
	LockTime int64

	// HashName selects the hash opcode.
	HashName HashAlgorithm
}

// Validate checks field lengths and reports malformed values as
// ErrInvariantViolated - the only error class Build returns.
func (v ScriptValues) Validate() error {
	wantHashLen := 32
	if v.HashName == RIPEMD160 {
		wantHashLen = 20
	} else if v.HashName != SHA256 {
		return fmt.Errorf("%w: unknown hash algorithm %q", swaperr.ErrInvariantViolated, v.HashName)
	}
	if len(v.SecretHash) != wantHashLen {
		return fmt.Errorf("%w: secretHash must be %d bytes, got %d", swaperr.ErrInvariantViolated, wantHashLen, len(v.SecretHash))
	}
	if len(v.OwnerPublicKey) != compressedPubKeyLen {
		return fmt.Errorf("%w: ownerPublicKey must be %d bytes, got %d", swaperr.ErrInvariantViolated, compressedPubKeyLen, len(v.OwnerPublicKey))
	}
	if len(v.RecipientPublicKey) != compressedPubKeyLen {
		return fmt.Errorf("%w: recipientPublicKey must be %d bytes, got %d", swaperr.ErrInvariantViolated, compressedPubKeyLen, len(v.RecipientPublicKey))
	}
	if v.LockTime < 0 {
		return fmt.Errorf("%w: lockTime must be nonnegative, got %d", swaperr.ErrInvariantViolated, v.LockTime)
	}
	return nil
}

// Built is the output of Build: the redeem script and the
// P2SH address that wraps it.
type Built struct {
	RedeemScript []byte
	Address      string
}

// Build deterministically compiles the HTLC redeem script and derives its
// P2SH address. Pure - no I/O - and returns an error only for invariant
// violations (malformed ScriptValues).
func Build(values ScriptValues, params *chain.Params) (*Built, error) {
	if err := values.Validate(); err != nil {
		return nil, err
	}

	script, err := redeemScript(values)
	if err != nil {
		return nil, err
	}

	scriptHash := btcutil.Hash160(script)
	chainParams := chain.ToChainCfgParams(params)
	addr, err := btcutil.NewAddressScriptHashFromHash(scriptHash, chainParams)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", swaperr.ErrInvariantViolated, err)
	}

	return &Built{
		RedeemScript: script,
		Address:      addr.EncodeAddress(),
	}, nil
}

// redeemScript emits the opcode sequence:
//
//	<HASH_OP> <secretHash> OP_EQUALVERIFY
//	<recipientPubKey> OP_EQUAL
//	OP_IF
//	  <recipientPubKey> OP_CHECKSIG
//	OP_ELSE
//	  <lockTime-as-script-number> OP_CHECKLOCKTIMEVERIFY OP_DROP
//	  <ownerPubKey> OP_CHECKSIG
//	OP_ENDIF
func redeemScript(values ScriptValues) ([]byte, error) {
	hashOp := byte(txscript.OP_SHA256)
	if values.HashName == RIPEMD160 {
		hashOp = txscript.OP_RIPEMD160
	}

	b := txscript.NewScriptBuilder()
	b.AddOp(hashOp)
	b.AddData(values.SecretHash)
	b.AddOp(txscript.OP_EQUALVERIFY)
	b.AddData(values.RecipientPublicKey)
	b.AddOp(txscript.OP_EQUAL)
	b.AddOp(txscript.OP_IF)
	b.AddData(values.RecipientPublicKey)
	b.AddOp(txscript.OP_CHECKSIG)
	b.AddOp(txscript.OP_ELSE)
	b.AddInt64(values.LockTime)
	b.AddOp(txscript.OP_CHECKLOCKTIMEVERIFY)
	b.AddOp(txscript.OP_DROP)
	b.AddData(values.OwnerPublicKey)
	b.AddOp(txscript.OP_CHECKSIG)
	b.AddOp(txscript.OP_ENDIF)

	script, err := b.Script()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", swaperr.ErrInvariantViolated, err)
	}
	return script, nil
}

// P2SHScriptPubKey returns the standard P2SH scriptPubKey
// (OP_HASH160 <scriptHash> OP_EQUAL) for a built redeem script, the form
// a funding transaction's output carries.
func P2SHScriptPubKey(redeemScript []byte) ([]byte, error) {
	scriptHash := btcutil.Hash160(redeemScript)
	b := txscript.NewScriptBuilder()
	b.AddOp(txscript.OP_HASH160)
	b.AddData(scriptHash)
	b.AddOp(txscript.OP_EQUAL)
	script, err := b.Script()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", swaperr.ErrInvariantViolated, err)
	}
	return script, nil
}

// Package keyring holds the local signing key and exposes just enough
// surface for the engine to fund and redeem HTLCs: an address, a
// compressed public key, a P2PKH-input signer for funding transactions,
// and a raw signer for the HTLC script branch.
package keyring

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	btcecdsa "github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/btcswap/htlcengine/internal/chain"
)

// Keyring is the dependency-injected signer the engine needs. A swap
// leg uses exactly one key at a time; callers MUST serialize funding
// across swaps sharing the same key; internal/funder spends every
// unspent at the key's address and does not reserve or lock them.
type Keyring interface {
	// Address derives the key's P2PKH address for the given network.
	Address(params *chain.Params) (string, error)

	// PublicKey returns the 33-byte compressed SEC point.
	PublicKey() []byte

	// PrivateKeyWIF exports the key in Wallet Import Format.
	PrivateKeyWIF(params *chain.Params) (string, error)

	// SignP2PKH signs input inputIndex of tx, whose previous output
	// carries prevOutScript, with SIGHASH_ALL over the standard P2PKH
	// template, and installs the resulting scriptSig.
	SignP2PKH(tx *wire.MsgTx, inputIndex int, prevOutScript []byte) error

	// SignHash produces a raw (non-sighash-tagged) ECDSA signature over
	// hash, for use in the HTLC redeem script's scriptSig construction.
	SignHash(hash []byte) ([]byte, error)
}

// PrivateKeyKeyring is a Keyring backed directly by a btcec private key.
type PrivateKeyKeyring struct {
	priv *btcec.PrivateKey
}

// New wraps an existing private key.
func New(priv *btcec.PrivateKey) *PrivateKeyKeyring {
	return &PrivateKeyKeyring{priv: priv}
}

// FromWIF reconstructs a Keyring from a WIF-encoded private key, checked
// against the expected network.
func FromWIF(wifStr string, params *chain.Params) (*PrivateKeyKeyring, error) {
	wif, err := btcutil.DecodeWIF(wifStr)
	if err != nil {
		return nil, fmt.Errorf("invalid WIF: %w", err)
	}
	if !wif.IsForNet(chain.ToChainCfgParams(params)) {
		return nil, fmt.Errorf("WIF is for a different network")
	}
	return &PrivateKeyKeyring{priv: wif.PrivKey}, nil
}

func (k *PrivateKeyKeyring) Address(params *chain.Params) (string, error) {
	pubKeyHash := btcutil.Hash160(k.PublicKey())
	addr, err := btcutil.NewAddressPubKeyHash(pubKeyHash, chain.ToChainCfgParams(params))
	if err != nil {
		return "", fmt.Errorf("failed to derive P2PKH address: %w", err)
	}
	return addr.EncodeAddress(), nil
}

func (k *PrivateKeyKeyring) PublicKey() []byte {
	return k.priv.PubKey().SerializeCompressed()
}

func (k *PrivateKeyKeyring) PrivateKeyWIF(params *chain.Params) (string, error) {
	wif, err := btcutil.NewWIF(k.priv, chain.ToChainCfgParams(params), true)
	if err != nil {
		return "", fmt.Errorf("failed to encode WIF: %w", err)
	}
	return wif.String(), nil
}

func (k *PrivateKeyKeyring) SignP2PKH(tx *wire.MsgTx, inputIndex int, prevOutScript []byte) error {
	sigScript, err := txscript.SignatureScript(
		tx, inputIndex, prevOutScript, txscript.SigHashAll, k.priv, true,
	)
	if err != nil {
		return fmt.Errorf("failed to sign P2PKH input %d: %w", inputIndex, err)
	}
	tx.TxIn[inputIndex].SignatureScript = sigScript
	return nil
}

func (k *PrivateKeyKeyring) SignHash(hash []byte) ([]byte, error) {
	sig := btcecdsa.Sign(k.priv, hash)
	return sig.Serialize(), nil
}

var _ Keyring = (*PrivateKeyKeyring)(nil)

// Package chain defines the Bitcoin network parameters this engine needs:
// address version bytes and the WIF prefix, for mainnet and testnet. No
// external configuration is needed - the two parameter sets are hardcoded.
package chain

import "github.com/btcsuite/btcd/chaincfg"

// Network selects mainnet or testnet parameters.
type Network string

const (
	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
)

// Params carries the address-encoding bytes a P2SH HTLC needs.
type Params struct {
	Network Network

	// PubKeyHashAddrID is the P2PKH address version byte (0x00 mainnet, 0x6F testnet).
	PubKeyHashAddrID byte

	// ScriptHashAddrID is the P2SH address version byte (0x05 mainnet, 0xC4 testnet).
	ScriptHashAddrID byte

	// WIF is the private-key WIF version byte (0x80 mainnet, 0xEF testnet).
	WIF byte
}

var mainnetParams = &Params{
	Network:          Mainnet,
	PubKeyHashAddrID: 0x00,
	ScriptHashAddrID: 0x05,
	WIF:              0x80,
}

var testnetParams = &Params{
	Network:          Testnet,
	PubKeyHashAddrID: 0x6F,
	ScriptHashAddrID: 0xC4,
	WIF:              0xEF,
}

// ParamsFor returns the parameter set for a network.
func ParamsFor(network Network) *Params {
	if network == Testnet {
		return testnetParams
	}
	return mainnetParams
}

// ToChainCfgParams maps our Params onto btcd's chaincfg.Params, the type
// txscript and btcutil's address/WIF helpers expect.
func ToChainCfgParams(p *Params) *chaincfg.Params {
	if p.Network == Testnet {
		return &chaincfg.TestNet3Params
	}
	return &chaincfg.MainNetParams
}

package keyring

import (
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/btcswap/htlcengine/internal/chain"
)

func newTestKeyring(t *testing.T) *PrivateKeyKeyring {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("NewPrivateKey: %v", err)
	}
	return New(priv)
}

func TestPublicKeyIsCompressed(t *testing.T) {
	kr := newTestKeyring(t)
	pub := kr.PublicKey()
	if len(pub) != 33 {
		t.Errorf("PublicKey() length = %d, want 33", len(pub))
	}
	if pub[0] != 0x02 && pub[0] != 0x03 {
		t.Errorf("PublicKey()[0] = 0x%02x, want 0x02 or 0x03", pub[0])
	}
}

func TestAddressMainnetTestnetDiffer(t *testing.T) {
	kr := newTestKeyring(t)
	mainAddr, err := kr.Address(chain.ParamsFor(chain.Mainnet))
	if err != nil {
		t.Fatalf("Address(mainnet): %v", err)
	}
	testAddr, err := kr.Address(chain.ParamsFor(chain.Testnet))
	if err != nil {
		t.Fatalf("Address(testnet): %v", err)
	}
	if mainAddr == testAddr {
		t.Error("expected mainnet and testnet addresses to differ")
	}
	if !strings.HasPrefix(mainAddr, "1") {
		t.Errorf("mainnet P2PKH address %q should start with '1'", mainAddr)
	}
	if !strings.HasPrefix(testAddr, "m") && !strings.HasPrefix(testAddr, "n") {
		t.Errorf("testnet P2PKH address %q should start with 'm' or 'n'", testAddr)
	}
}

func TestWIFRoundtrip(t *testing.T) {
	kr := newTestKeyring(t)
	params := chain.ParamsFor(chain.Testnet)

	wif, err := kr.PrivateKeyWIF(params)
	if err != nil {
		t.Fatalf("PrivateKeyWIF: %v", err)
	}

	restored, err := FromWIF(wif, params)
	if err != nil {
		t.Fatalf("FromWIF: %v", err)
	}

	if string(restored.PublicKey()) != string(kr.PublicKey()) {
		t.Error("restored keyring's public key does not match the original")
	}
}

func TestFromWIFRejectsWrongNetwork(t *testing.T) {
	kr := newTestKeyring(t)
	wif, err := kr.PrivateKeyWIF(chain.ParamsFor(chain.Mainnet))
	if err != nil {
		t.Fatalf("PrivateKeyWIF: %v", err)
	}
	if _, err := FromWIF(wif, chain.ParamsFor(chain.Testnet)); err == nil {
		t.Error("expected FromWIF to reject a WIF encoded for a different network")
	}
}

func TestSignHashProducesNonEmptySignature(t *testing.T) {
	kr := newTestKeyring(t)
	hash := make([]byte, 32)
	for i := range hash {
		hash[i] = byte(i)
	}
	sig, err := kr.SignHash(hash)
	if err != nil {
		t.Fatalf("SignHash: %v", err)
	}
	if len(sig) == 0 {
		t.Error("expected a non-empty signature")
	}
}

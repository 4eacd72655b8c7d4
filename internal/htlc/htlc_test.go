package htlc

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcswap/htlcengine/internal/chain"
)

func testValues(hashName HashAlgorithm) ScriptValues {
	hashLen := 32
	if hashName == RIPEMD160 {
		hashLen = 20
	}
	return ScriptValues{
		SecretHash:         bytes.Repeat([]byte{0xc0}, hashLen),
		OwnerPublicKey:     append([]byte{0x02}, bytes.Repeat([]byte{0xaa}, 32)...),
		RecipientPublicKey: append([]byte{0x03}, bytes.Repeat([]byte{0xbb}, 32)...),
		LockTime:           1_700_000_000,
		HashName:           hashName,
	}
}

func TestBuildDeterministic(t *testing.T) {
	values := testValues(RIPEMD160)
	params := chain.ParamsFor(chain.Mainnet)

	first, err := Build(values, params)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	second, err := Build(values, params)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if !bytes.Equal(first.RedeemScript, second.RedeemScript) {
		t.Error("redeem script is not deterministic across calls")
	}
	if first.Address != second.Address {
		t.Error("address is not deterministic across calls")
	}
}

func TestScriptEqualityImpliesAddressEquality(t *testing.T) {
	v1 := testValues(RIPEMD160)
	v2 := testValues(RIPEMD160) // separately constructed, byte-identical fields
	params := chain.ParamsFor(chain.Mainnet)

	b1, err := Build(v1, params)
	if err != nil {
		t.Fatalf("Build(v1): %v", err)
	}
	b2, err := Build(v2, params)
	if err != nil {
		t.Fatalf("Build(v2): %v", err)
	}

	if !bytes.Equal(b1.RedeemScript, b2.RedeemScript) {
		t.Fatal("expected identical redeem scripts")
	}
	if b1.Address != b2.Address {
		t.Error("identical redeem scripts produced different addresses")
	}
}

func TestRedeemScriptOpcodeSequence(t *testing.T) {
	tests := []struct {
		name     string
		hashName HashAlgorithm
		hashOp   string
	}{
		{"ripemd160", RIPEMD160, "OP_RIPEMD160"},
		{"sha256", SHA256, "OP_SHA256"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			script, err := redeemScript(testValues(tt.hashName))
			if err != nil {
				t.Fatalf("redeemScript: %v", err)
			}
			disasm, err := txscript.DisasmString(script)
			if err != nil {
				t.Fatalf("DisasmString: %v", err)
			}

			wantPrefix := tt.hashOp
			if !strings.HasPrefix(disasm, wantPrefix) {
				t.Errorf("script does not start with %s: %s", wantPrefix, disasm)
			}
			for _, op := range []string{
				"OP_EQUALVERIFY", "OP_EQUAL", "OP_IF", "OP_CHECKSIG",
				"OP_ELSE", "OP_CHECKLOCKTIMEVERIFY", "OP_DROP", "OP_ENDIF",
			} {
				if !strings.Contains(disasm, op) {
					t.Errorf("script missing %s: %s", op, disasm)
				}
			}
		})
	}
}

// TestRedeemScriptExactBytes hand-computes the full opcode stream for a
// fixed set of values and asserts byte-for-byte equality, so a
// push-length miscalculation that still disassembles to the right
// opcode names would be caught.
func TestRedeemScriptExactBytes(t *testing.T) {
	script, err := redeemScript(testValues(RIPEMD160))
	if err != nil {
		t.Fatalf("redeemScript: %v", err)
	}

	want := "a614c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0882103bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb87632103bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbac670400f15365b1752102aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaac68"
	if got := hex.EncodeToString(script); got != want {
		t.Errorf("redeemScript bytes =\n%s\nwant\n%s", got, want)
	}
}

func TestTestnetAddressPrefix(t *testing.T) {
	built, err := Build(testValues(RIPEMD160), chain.ParamsFor(chain.Testnet))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !strings.HasPrefix(built.Address, "2") {
		t.Errorf("testnet P2SH address %q does not start with '2'", built.Address)
	}
}

func TestMainnetAddressPrefix(t *testing.T) {
	built, err := Build(testValues(RIPEMD160), chain.ParamsFor(chain.Mainnet))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !strings.HasPrefix(built.Address, "3") {
		t.Errorf("mainnet P2SH address %q does not start with '3'", built.Address)
	}
}

func TestValidateRejectsBadHashLength(t *testing.T) {
	values := testValues(RIPEMD160)
	values.SecretHash = values.SecretHash[:10]
	if err := values.Validate(); err == nil {
		t.Error("expected error for wrong-length secretHash")
	}
}

func TestValidateRejectsBadPubKeyLength(t *testing.T) {
	values := testValues(RIPEMD160)
	values.OwnerPublicKey = values.OwnerPublicKey[:10]
	if err := values.Validate(); err == nil {
		t.Error("expected error for wrong-length ownerPublicKey")
	}
}

func TestValidateRejectsNegativeLockTime(t *testing.T) {
	values := testValues(RIPEMD160)
	values.LockTime = -1
	if err := values.Validate(); err == nil {
		t.Error("expected error for negative lockTime")
	}
}

func TestValidateRejectsUnknownHashAlgorithm(t *testing.T) {
	values := testValues(RIPEMD160)
	values.HashName = HashAlgorithm("keccak256")
	if err := values.Validate(); err == nil {
		t.Error("expected error for unknown hash algorithm")
	}
}

func TestP2SHScriptPubKeyWrapsRedeemScript(t *testing.T) {
	built, err := Build(testValues(SHA256), chain.ParamsFor(chain.Mainnet))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	pkScript, err := P2SHScriptPubKey(built.RedeemScript)
	if err != nil {
		t.Fatalf("P2SHScriptPubKey: %v", err)
	}
	disasm, err := txscript.DisasmString(pkScript)
	if err != nil {
		t.Fatalf("DisasmString: %v", err)
	}
	if !strings.HasPrefix(disasm, "OP_HASH160") || !strings.HasSuffix(disasm, "OP_EQUAL") {
		t.Errorf("unexpected P2SH scriptPubKey shape: %s", disasm)
	}
}

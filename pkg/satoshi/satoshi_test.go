package satoshi

import "testing"

func TestFromBTC(t *testing.T) {
	tests := []struct {
		btc  string
		want uint64
	}{
		{"1", 100000000},
		{"0.1", 10000000},
		{"0.015", 1500000},
		{"0.00000001", 1},
		{"0", 0},
	}
	for _, tt := range tests {
		t.Run(tt.btc, func(t *testing.T) {
			got, err := FromBTC(tt.btc)
			if err != nil {
				t.Fatalf("FromBTC(%q): %v", tt.btc, err)
			}
			if got != tt.want {
				t.Errorf("FromBTC(%q) = %d, want %d", tt.btc, got, tt.want)
			}
		})
	}
}

func TestFromBTCTruncatesBeyondEightDecimals(t *testing.T) {
	got, err := FromBTC("0.123456789")
	if err != nil {
		t.Fatalf("FromBTC: %v", err)
	}
	if got != 12345678 {
		t.Errorf("FromBTC(0.123456789) = %d, want 12345678 (truncated, not rounded)", got)
	}
}

func TestFromBTCRejectsGarbage(t *testing.T) {
	if _, err := FromBTC("not-a-number"); err == nil {
		t.Error("expected an error for a non-numeric amount")
	}
	if _, err := FromBTC(""); err == nil {
		t.Error("expected an error for an empty amount")
	}
}

func TestToBTCRoundtrip(t *testing.T) {
	amounts := []uint64{1, 546, 10000000, 100000000, 89990000}
	for _, amount := range amounts {
		btc := ToBTC(amount)
		got, err := FromBTC(btc)
		if err != nil {
			t.Fatalf("FromBTC(%q): %v", btc, err)
		}
		if got != amount {
			t.Errorf("roundtrip failed: %d -> %q -> %d", amount, btc, got)
		}
	}
}

// Package satoshi converts between decimal-BTC strings and integer
// satoshi amounts - the one place the engine allows decimals, at the
// user-facing edge; every internal boundary uses satoshis as integers.
package satoshi

import "github.com/btcswap/htlcengine/pkg/helpers"

// btcDecimals is fixed: BTC always has 8 decimal places, unlike
// helpers.FormatAmount/ParseAmount's general per-coin decimals argument.
const btcDecimals = 8

// FromBTC parses a decimal BTC string into satoshis, truncating any
// precision beyond 8 decimal places.
func FromBTC(btc string) (uint64, error) {
	return helpers.ParseAmount(btc, btcDecimals)
}

// ToBTC formats a satoshi amount as a decimal BTC string, trimming
// trailing fractional zeros.
func ToBTC(sats uint64) string {
	return helpers.FormatAmount(sats, btcDecimals)
}

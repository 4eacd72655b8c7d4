package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPGateway implements Gateway, TxInfoFetcher and FeeEstimator against
// a mempool.space-compatible REST API (mempool.space, litecoinspace.org,
// and self-hosted/Esplora-family instances all share this wire format).
type HTTPGateway struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPGateway creates a gateway against baseURL, e.g.
// "https://mempool.space/api" or "https://mempool.space/testnet4/api".
func NewHTTPGateway(baseURL string) *HTTPGateway {
	return &HTTPGateway{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// FetchBalance returns the confirmed satoshi balance for address.
func (g *HTTPGateway) FetchBalance(ctx context.Context, address string) (uint64, error) {
	var result struct {
		ChainStats struct {
			FundedTxoSum uint64 `json:"funded_txo_sum"`
			SpentTxoSum  uint64 `json:"spent_txo_sum"`
		} `json:"chain_stats"`
	}
	if err := g.get(ctx, "/address/"+address, &result); err != nil {
		return 0, err
	}
	return result.ChainStats.FundedTxoSum - result.ChainStats.SpentTxoSum, nil
}

// FetchUnspents returns unspent outputs at address, annotated with
// confirmation counts computed against current chain tip. When the tip
// cannot be fetched, a confirmed output is reported with 1 confirmation.
func (g *HTTPGateway) FetchUnspents(ctx context.Context, address string) ([]Unspent, error) {
	var result []struct {
		TxID   string `json:"txid"`
		Vout   uint32 `json:"vout"`
		Status struct {
			Confirmed   bool  `json:"confirmed"`
			BlockHeight int64 `json:"block_height"`
		} `json:"status"`
		Value uint64 `json:"value"`
	}
	if err := g.get(ctx, "/address/"+address+"/utxo", &result); err != nil {
		return nil, err
	}

	tip, err := g.blockHeight(ctx)
	if err != nil {
		tip = 0
	}

	unspents := make([]Unspent, len(result))
	for i, u := range result {
		var confirmations uint32
		if u.Status.Confirmed && u.Status.BlockHeight > 0 {
			if tip > 0 {
				confirmations = uint32(tip - u.Status.BlockHeight + 1)
			} else {
				confirmations = 1
			}
		}
		unspents[i] = Unspent{
			TxID:          u.TxID,
			Vout:          u.Vout,
			Satoshis:      u.Value,
			Confirmations: confirmations,
		}
	}
	return unspents, nil
}

// FetchTxInfo returns metadata for txid, including the fee paid if the
// API reports one.
func (g *HTTPGateway) FetchTxInfo(ctx context.Context, txid string) (*TxInfo, error) {
	var result struct {
		Fee    uint64 `json:"fee"`
		Size   int64  `json:"size"`
		Status struct {
			Confirmed   bool  `json:"confirmed"`
			BlockHeight int64 `json:"block_height"`
		} `json:"status"`
		Vin []struct {
			Prevout *struct {
				ScriptPubKeyAddr string `json:"scriptpubkey_address"`
			} `json:"prevout"`
		} `json:"vin"`
	}
	if err := g.get(ctx, "/tx/"+txid, &result); err != nil {
		return nil, err
	}

	info := &TxInfo{
		TxID:       txid,
		Fees:       &result.Fee,
		SizeVBytes: uint32(result.Size),
	}
	if len(result.Vin) > 0 && result.Vin[0].Prevout != nil {
		info.SenderAddress = result.Vin[0].Prevout.ScriptPubKeyAddr
	}
	if result.Status.Confirmed && result.Status.BlockHeight > 0 {
		if tip, err := g.blockHeight(ctx); err == nil && tip >= result.Status.BlockHeight {
			info.Confirmations = uint32(tip - result.Status.BlockHeight + 1)
		}
	}
	return info, nil
}

// EstimateFeeValue turns req.Speed into a flat per-transaction fee, using
// the API's recommended sat/vB rate against req.TxSizeVBytes (or a
// conservative default size when the caller doesn't know it yet).
func (g *HTTPGateway) EstimateFeeValue(ctx context.Context, req FeeEstimateRequest) (uint64, error) {
	var rates map[string]float64
	if err := g.get(ctx, "/v1/fees/recommended", &rates); err != nil {
		return 0, err
	}

	var rate float64
	switch req.Speed {
	case SpeedFast:
		rate = rates["fastestFee"]
	case SpeedSlow:
		rate = rates["economyFee"]
	default:
		rate = rates["halfHourFee"]
	}
	if rate <= 0 {
		rate = 1
	}

	size := req.TxSizeVBytes
	if size == 0 {
		size = 200
	}
	return uint64(rate) * uint64(size), nil
}

// BroadcastTx submits a raw transaction, returning its txid.
func (g *HTTPGateway) BroadcastTx(ctx context.Context, rawTxHex string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/tx", strings.NewReader(rawTxHex))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("broadcast: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		if strings.Contains(strings.ToLower(string(body)), "non-final") {
			return "", ErrNonFinal
		}
		return "", fmt.Errorf("broadcast failed: %s", strings.TrimSpace(string(body)))
	}
	return strings.TrimSpace(string(body)), nil
}

// CheckWithdraw scans address's transaction history for a transaction
// spending it, reporting the destination of the first match's first
// output. Returns a nil record, not an error, when address has no spend
// on record yet.
func (g *HTTPGateway) CheckWithdraw(ctx context.Context, address string) (*WithdrawRecord, error) {
	var txs []struct {
		TxID string `json:"txid"`
		Vin  []struct {
			Prevout *struct {
				ScriptPubKeyAddr string `json:"scriptpubkey_address"`
			} `json:"prevout"`
		} `json:"vin"`
		Vout []struct {
			ScriptPubKeyAddr string `json:"scriptpubkey_address"`
		} `json:"vout"`
	}
	if err := g.get(ctx, "/address/"+address+"/txs", &txs); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	for _, tx := range txs {
		spendsAddress := false
		for _, in := range tx.Vin {
			if in.Prevout != nil && in.Prevout.ScriptPubKeyAddr == address {
				spendsAddress = true
				break
			}
		}
		if !spendsAddress || len(tx.Vout) == 0 {
			continue
		}
		return &WithdrawRecord{Address: tx.Vout[0].ScriptPubKeyAddr, TxID: tx.TxID}, nil
	}
	return nil, nil
}

func (g *HTTPGateway) blockHeight(ctx context.Context) (int64, error) {
	var height int64
	if err := g.get(ctx, "/blocks/tip/height", &height); err != nil {
		return 0, err
	}
	return height, nil
}

func (g *HTTPGateway) get(ctx context.Context, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(result)
}

var _ Gateway = (*HTTPGateway)(nil)
var _ TxInfoFetcher = (*HTTPGateway)(nil)
var _ FeeEstimator = (*HTTPGateway)(nil)
var _ WithdrawDetector = (*HTTPGateway)(nil)

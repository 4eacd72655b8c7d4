package gateway

import (
	"bufio"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

// ElectrumGateway implements Gateway, TxInfoFetcher and FeeEstimator over
// the Electrum protocol (newline-delimited JSON-RPC over TCP or TLS).
type ElectrumGateway struct {
	servers []string
	useTLS  bool
	params  *chaincfg.Params

	mu        sync.Mutex
	conn      net.Conn
	reader    *bufio.Reader
	connected bool
	requestID atomic.Uint64
	timeout   time.Duration
}

// NewElectrumGateway creates a gateway that connects to the first
// reachable server in servers ("host:port" form). params is used to
// convert addresses into the scripthash format Electrum's protocol
// indexes by.
func NewElectrumGateway(servers []string, useTLS bool, params *chaincfg.Params) *ElectrumGateway {
	return &ElectrumGateway{
		servers: servers,
		useTLS:  useTLS,
		params:  params,
		timeout: 30 * time.Second,
	}
}

func (g *ElectrumGateway) connect(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.connected {
		return nil
	}

	var lastErr error
	for _, server := range g.servers {
		dialer := &net.Dialer{Timeout: g.timeout}
		var conn net.Conn
		var err error
		if g.useTLS {
			conn, err = tls.DialWithDialer(dialer, "tcp", server, &tls.Config{MinVersion: tls.VersionTLS12})
		} else {
			conn, err = dialer.DialContext(ctx, "tcp", server)
		}
		if err != nil {
			lastErr = err
			continue
		}
		g.conn = conn
		g.reader = bufio.NewReader(conn)
		g.connected = true
		return nil
	}
	return fmt.Errorf("electrum: no reachable server: %w", lastErr)
}

// call makes a newline-delimited JSON-RPC call and returns its result field.
func (g *ElectrumGateway) call(ctx context.Context, method string, params []interface{}) (interface{}, error) {
	if err := g.connect(ctx); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	id := g.requestID.Add(1)
	request := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
		"params":  params,
	}
	data, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}

	g.conn.SetDeadline(time.Now().Add(g.timeout))
	if _, err := g.conn.Write(append(data, '\n')); err != nil {
		g.connected = false
		return nil, err
	}

	line, err := g.reader.ReadBytes('\n')
	if err != nil {
		g.connected = false
		return nil, err
	}

	var response struct {
		Result interface{} `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(line, &response); err != nil {
		return nil, err
	}
	if response.Error != nil {
		if strings.Contains(strings.ToLower(response.Error.Message), "non-final") {
			return nil, ErrNonFinal
		}
		return nil, fmt.Errorf("electrum error %d: %s", response.Error.Code, response.Error.Message)
	}
	return response.Result, nil
}

// FetchBalance returns the confirmed satoshi balance for address.
func (g *ElectrumGateway) FetchBalance(ctx context.Context, address string) (uint64, error) {
	scriptHash, err := g.scriptHash(address)
	if err != nil {
		return 0, err
	}
	result, err := g.call(ctx, "blockchain.scripthash.get_balance", []interface{}{scriptHash})
	if err != nil {
		return 0, err
	}
	balance, ok := result.(map[string]interface{})
	if !ok {
		return 0, fmt.Errorf("electrum: unexpected balance response")
	}
	confirmed, _ := balance["confirmed"].(float64)
	return uint64(confirmed), nil
}

// FetchUnspents returns unspent outputs at address.
func (g *ElectrumGateway) FetchUnspents(ctx context.Context, address string) ([]Unspent, error) {
	scriptHash, err := g.scriptHash(address)
	if err != nil {
		return nil, err
	}
	result, err := g.call(ctx, "blockchain.scripthash.listunspent", []interface{}{scriptHash})
	if err != nil {
		return nil, err
	}
	list, ok := result.([]interface{})
	if !ok {
		return nil, fmt.Errorf("electrum: unexpected listunspent response")
	}

	tip, err := g.blockHeight(ctx)
	if err != nil {
		tip = 0
	}

	unspents := make([]Unspent, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		height, _ := m["height"].(float64)
		var confirmations uint32
		if height > 0 && tip > 0 {
			confirmations = uint32(tip - int64(height) + 1)
		}
		txID, _ := m["tx_hash"].(string)
		vout, _ := m["tx_pos"].(float64)
		value, _ := m["value"].(float64)
		unspents = append(unspents, Unspent{
			TxID:          txID,
			Vout:          uint32(vout),
			Satoshis:      uint64(value),
			Confirmations: confirmations,
		})
	}
	return unspents, nil
}

// FetchTxInfo returns metadata for txid.
func (g *ElectrumGateway) FetchTxInfo(ctx context.Context, txid string) (*TxInfo, error) {
	result, err := g.call(ctx, "blockchain.transaction.get", []interface{}{txid, true})
	if err != nil {
		return nil, err
	}
	m, ok := result.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("electrum: unexpected transaction response")
	}
	info := &TxInfo{TxID: txid}
	if confirmations, ok := m["confirmations"].(float64); ok {
		info.Confirmations = uint32(confirmations)
	}
	// Electrum's verbose transaction.get does not carry a fee field;
	// confidence estimation degrades to confirmations-only for this gateway.
	return info, nil
}

// EstimateFeeValue asks Electrum's fee estimator for a rate (BTC/kB) and
// converts it to a flat fee over the requested transaction size.
func (g *ElectrumGateway) EstimateFeeValue(ctx context.Context, req FeeEstimateRequest) (uint64, error) {
	blocks := 3
	switch req.Speed {
	case SpeedFast:
		blocks = 1
	case SpeedSlow:
		blocks = 144
	}
	result, err := g.call(ctx, "blockchain.estimatefee", []interface{}{blocks})
	if err != nil {
		return 0, err
	}
	rateBTCPerKB, ok := result.(float64)
	if !ok || rateBTCPerKB <= 0 {
		rateBTCPerKB = 0.00001
	}
	satPerVByte := rateBTCPerKB * 1e8 / 1000
	size := req.TxSizeVBytes
	if size == 0 {
		size = 200
	}
	return uint64(satPerVByte * float64(size)), nil
}

// BroadcastTx submits a raw transaction, returning its txid.
func (g *ElectrumGateway) BroadcastTx(ctx context.Context, rawTxHex string) (string, error) {
	result, err := g.call(ctx, "blockchain.transaction.broadcast", []interface{}{rawTxHex})
	if err != nil {
		return "", err
	}
	txID, ok := result.(string)
	if !ok {
		return "", fmt.Errorf("electrum: unexpected broadcast response")
	}
	return txID, nil
}

// CheckWithdraw scans address's scripthash history for a transaction
// spending it, reporting the destination of the first match's first
// output. Returns a nil record, not an error, when address has no spend
// on record yet.
func (g *ElectrumGateway) CheckWithdraw(ctx context.Context, address string) (*WithdrawRecord, error) {
	scriptHash, err := g.scriptHash(address)
	if err != nil {
		return nil, err
	}
	result, err := g.call(ctx, "blockchain.scripthash.get_history", []interface{}{scriptHash})
	if err != nil {
		return nil, err
	}
	history, ok := result.([]interface{})
	if !ok {
		return nil, fmt.Errorf("electrum: unexpected history response")
	}

	for _, item := range history {
		entry, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		txID, _ := entry["tx_hash"].(string)
		if txID == "" {
			continue
		}
		record, err := g.spendOf(ctx, address, txID)
		if err != nil || record == nil {
			continue
		}
		return record, nil
	}
	return nil, nil
}

// spendOf reports the destination of txID if one of its inputs spends
// address's scriptPubKey. Electrum's verbose transaction.get mirrors
// bitcoind's decoderawtransaction, which gives inputs only as
// (prevTxID, prevVout) pairs rather than a resolved prevout address, so
// confirming the spend means a second lookup of the input's own
// previous transaction.
func (g *ElectrumGateway) spendOf(ctx context.Context, address, txID string) (*WithdrawRecord, error) {
	tx, err := g.verboseTx(ctx, txID)
	if err != nil {
		return nil, err
	}
	vin, _ := tx["vin"].([]interface{})
	for _, in := range vin {
		inMap, ok := in.(map[string]interface{})
		if !ok {
			continue
		}
		prevTxID, _ := inMap["txid"].(string)
		prevVout, _ := inMap["vout"].(float64)
		if prevTxID == "" {
			continue
		}
		prevTx, err := g.verboseTx(ctx, prevTxID)
		if err != nil {
			continue
		}
		if addressOfVout(prevTx, int(prevVout)) != address {
			continue
		}
		if addressOfVout(tx, 0) == "" {
			return nil, nil
		}
		return &WithdrawRecord{Address: addressOfVout(tx, 0), TxID: txID}, nil
	}
	return nil, nil
}

func (g *ElectrumGateway) verboseTx(ctx context.Context, txID string) (map[string]interface{}, error) {
	result, err := g.call(ctx, "blockchain.transaction.get", []interface{}{txID, true})
	if err != nil {
		return nil, err
	}
	m, ok := result.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("electrum: unexpected transaction response")
	}
	return m, nil
}

// addressOfVout extracts the owning address of tx's output at index,
// supporting both the modern singular "address" field and the legacy
// "addresses" array some Electrum servers still emit.
func addressOfVout(tx map[string]interface{}, index int) string {
	vout, _ := tx["vout"].([]interface{})
	if index < 0 || index >= len(vout) {
		return ""
	}
	voutMap, ok := vout[index].(map[string]interface{})
	if !ok {
		return ""
	}
	scriptPubKey, ok := voutMap["scriptPubKey"].(map[string]interface{})
	if !ok {
		return ""
	}
	if addr, ok := scriptPubKey["address"].(string); ok {
		return addr
	}
	if addrs, ok := scriptPubKey["addresses"].([]interface{}); ok && len(addrs) > 0 {
		if s, ok := addrs[0].(string); ok {
			return s
		}
	}
	return ""
}

func (g *ElectrumGateway) blockHeight(ctx context.Context) (int64, error) {
	result, err := g.call(ctx, "blockchain.headers.subscribe", []interface{}{})
	if err != nil {
		return 0, err
	}
	m, ok := result.(map[string]interface{})
	if !ok {
		return 0, fmt.Errorf("electrum: unexpected headers response")
	}
	height, _ := m["height"].(float64)
	return int64(height), nil
}

// scriptHash converts a Bitcoin address to Electrum's scripthash format:
// SHA256(scriptPubKey), byte-reversed, hex-encoded.
func (g *ElectrumGateway) scriptHash(address string) (string, error) {
	decoded, err := btcutil.DecodeAddress(address, g.params)
	if err != nil {
		return "", fmt.Errorf("electrum: invalid address: %w", err)
	}
	script, err := txscript.PayToAddrScript(decoded)
	if err != nil {
		return "", fmt.Errorf("electrum: cannot derive scriptPubKey: %w", err)
	}
	hash := sha256.Sum256(script)
	reversed := make([]byte, len(hash))
	for i := range hash {
		reversed[i] = hash[len(hash)-1-i]
	}
	return hex.EncodeToString(reversed), nil
}

var _ Gateway = (*ElectrumGateway)(nil)
var _ TxInfoFetcher = (*ElectrumGateway)(nil)
var _ FeeEstimator = (*ElectrumGateway)(nil)
var _ WithdrawDetector = (*ElectrumGateway)(nil)

// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

// Package provider implements network collaborators of the engine: utxo source and asset indexer over
// sandshrew JSON-RPC endpoint, broadcaster and mempool watcher over bitcoind RPC.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/bytedance/sonic"
	lru "github.com/hashicorp/golang-lru"
	"github.com/hashicorp/go-hclog"

	"github.com/BoostyLabs/txengine/bitcoin"
	"github.com/BoostyLabs/txengine/bitcoin/addresses"
	"github.com/BoostyLabs/txengine/bitcoin/utxoset"
	"github.com/BoostyLabs/txengine/internal/reverse"
)

// ErrSandshrew defines errors class for sandshrew client.
var ErrSandshrew = errors.New("sandshrew")

const (
	// DefaultVersion defines api version path segment.
	DefaultVersion = "v1"
	// DefaultTimeout defines request timeout.
	DefaultTimeout = 30 * time.Second
	// DefaultPrevTxCacheSize defines number of cached raw transactions.
	DefaultPrevTxCacheSize = 1024
)

// alkanesProtocolTag defines protorunes protocol tag of alkanes.
const alkanesProtocolTag = "1"

// jsonAPI decodes numbers as json.Number so rune amounts keep precision.
var jsonAPI = sonic.Config{UseNumber: true}.Froze()

// Config defines configuration of sandshrew client.
type Config struct {
	URL             string        `yaml:"url"`
	ProjectID       string        `yaml:"project_id"`
	Version         string        `yaml:"version"`
	Timeout         time.Duration `yaml:"timeout"`
	PrevTxCacheSize int           `yaml:"prev_tx_cache_size"`
}

// Sandshrew is a client of sandshrew JSON-RPC endpoint which proxies esplora, ord, alkanes and bitcoind methods.
type Sandshrew struct {
	url     string
	params  *chaincfg.Params
	client  *http.Client
	prevTxs *lru.Cache
	nextID  atomic.Int64
	log     hclog.Logger
}

// NewSandshrew is a constructor for Sandshrew.
func NewSandshrew(config Config, params *chaincfg.Params, log hclog.Logger) (*Sandshrew, error) {
	if config.URL == "" {
		return nil, errors.Join(ErrSandshrew, errors.New("empty url"))
	}
	if config.Version == "" {
		config.Version = DefaultVersion
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.PrevTxCacheSize <= 0 {
		config.PrevTxCacheSize = DefaultPrevTxCacheSize
	}
	if log == nil {
		log = hclog.NewNullLogger()
	}

	prevTxs, err := lru.New(config.PrevTxCacheSize)
	if err != nil {
		return nil, errors.Join(ErrSandshrew, err)
	}

	segments := []string{strings.TrimSuffix(config.URL, "/"), config.Version}
	if config.ProjectID != "" {
		segments = append(segments, config.ProjectID)
	}

	return &Sandshrew{
		url:     strings.Join(segments, "/"),
		params:  params,
		client:  &http.Client{Timeout: config.Timeout},
		prevTxs: prevTxs,
		log:     log,
	}, nil
}

// rpcRequest defines JSON-RPC request body.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// rpcResponse defines JSON-RPC response body.
type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// rpcError defines JSON-RPC error.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// call executes JSON-RPC method and decodes its result into result.
func (s *Sandshrew) call(ctx context.Context, result any, method string, params ...any) (err error) {
	defer func() {
		if err != nil {
			err = errors.Join(ErrSandshrew, fmt.Errorf("%s: %w", method, err))
		}
	}()

	if params == nil {
		params = []any{}
	}

	body, err := jsonAPI.Marshal(rpcRequest{JSONRPC: "2.0", ID: s.nextID.Add(1), Method: method, Params: params})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, resp.Body.Close())
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var response rpcResponse
	if err = jsonAPI.Unmarshal(raw, &response); err != nil {
		return err
	}
	if response.Error != nil {
		return fmt.Errorf("rpc error %d: %s", response.Error.Code, response.Error.Message)
	}

	s.log.Trace("rpc call", "method", method)

	if result == nil {
		return nil
	}

	return jsonAPI.Unmarshal(response.Result, result)
}

// esploraUTXO defines esplora address utxo.
type esploraUTXO struct {
	TxID   string `json:"txid"`
	Vout   uint32 `json:"vout"`
	Value  int64  `json:"value"`
	Status struct {
		Confirmed   bool  `json:"confirmed"`
		BlockHeight int64 `json:"block_height"`
	} `json:"status"`
}

// BlockCount returns height of the chain tip.
func (s *Sandshrew) BlockCount(ctx context.Context) (int64, error) {
	var count int64
	if err := s.call(ctx, &count, "btc_getblockcount"); err != nil {
		return 0, err
	}

	return count, nil
}

// ListUTXOs returns unspent outputs of the address. Asset metadata is not filled.
func (s *Sandshrew) ListUTXOs(ctx context.Context, address string) ([]bitcoin.UTXO, error) {
	pkScript, err := addresses.PayToAddress(address, s.params)
	if err != nil {
		return nil, err
	}

	var raw []esploraUTXO
	if err = s.call(ctx, &raw, "esplora_address::utxo", address); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}

	tip, err := s.BlockCount(ctx)
	if err != nil {
		return nil, err
	}

	utxos := make([]bitcoin.UTXO, 0, len(raw))
	for _, u := range raw {
		var confirmations int64
		if u.Status.Confirmed {
			confirmations = tip - u.Status.BlockHeight + 1
		}

		utxos = append(utxos, bitcoin.UTXO{
			TxHash:        u.TxID,
			Index:         u.Vout,
			Amount:        u.Value,
			Script:        append([]byte(nil), pkScript...),
			Address:       address,
			Confirmations: confirmations,
		})
	}

	return utxos, nil
}

// TxHex returns raw transaction hex. Transactions are immutable, so results are cached.
func (s *Sandshrew) TxHex(ctx context.Context, txID string) (string, error) {
	if cached, ok := s.prevTxs.Get(txID); ok {
		return cached.(string), nil
	}

	var txHex string
	if err := s.call(ctx, &txHex, "esplora_tx::hex", txID); err != nil {
		return "", err
	}

	s.prevTxs.Add(txID, txHex)

	return txHex, nil
}

// FeeEstimates returns fee rates in sat/vB keyed by confirmation target in blocks.
func (s *Sandshrew) FeeEstimates(ctx context.Context) (map[string]float64, error) {
	var estimates map[string]float64
	if err := s.call(ctx, &estimates, "esplora_fee-estimates"); err != nil {
		return nil, err
	}

	return estimates, nil
}

// ordOutput defines ord output response.
type ordOutput struct {
	Indexed      bool     `json:"indexed"`
	Inscriptions []string `json:"inscriptions"`
	// Runes is an object keyed by spaced rune name, outputs without runes may report an empty array.
	Runes json.RawMessage `json:"runes"`
}

// ordRune defines rune balance of ord output.
type ordRune struct {
	Amount       json.Number `json:"amount"`
	Divisibility uint8       `json:"divisibility"`
	Symbol       string      `json:"symbol"`
}

// OutputAssets returns inscriptions and runes of the "txid:vout" output.
func (s *Sandshrew) OutputAssets(ctx context.Context, outpoint string) (*utxoset.OutputAssets, error) {
	var output ordOutput
	if err := s.call(ctx, &output, "ord_output", outpoint); err != nil {
		return nil, err
	}

	assets := &utxoset.OutputAssets{Inscriptions: output.Inscriptions, Indexed: output.Indexed}

	runesRaw := bytes.TrimSpace(output.Runes)
	if len(runesRaw) == 0 || runesRaw[0] != '{' {
		return assets, nil
	}

	var balances map[string]ordRune
	if err := jsonAPI.Unmarshal(runesRaw, &balances); err != nil {
		return nil, errors.Join(ErrSandshrew, err)
	}

	for name, balance := range balances {
		amount, ok := new(big.Int).SetString(balance.Amount.String(), 10)
		if !ok {
			return nil, errors.Join(ErrSandshrew, fmt.Errorf("invalid %s rune amount %q", name, balance.Amount))
		}

		assets.Runes = append(assets.Runes, bitcoin.RuneUTXO{Name: name, Amount: amount})
	}

	return assets, nil
}

// alkanesOutpoints defines alkanes_protorunesbyaddress response.
type alkanesOutpoints struct {
	Outpoints []struct {
		Outpoint struct {
			TxID string `json:"txid"` // internal byte order.
			Vout uint32 `json:"vout"`
		} `json:"outpoint"`
		Runes []struct {
			Rune struct {
				ID struct {
					Block string `json:"block"`
					Tx    string `json:"tx"`
				} `json:"id"`
				Name string `json:"name"`
			} `json:"rune"`
			Balance string `json:"balance"`
		} `json:"runes"`
	} `json:"outpoints"`
}

// alkanesByAddressParams defines alkanes_protorunesbyaddress parameters.
type alkanesByAddressParams struct {
	Address     string `json:"address"`
	ProtocolTag string `json:"protocolTag"`
}

// AlkaneBalances returns alkane balances of the address keyed by "txid:vout".
// Every outpoint listed by the indexer has a key, even when its balance list is empty.
func (s *Sandshrew) AlkaneBalances(ctx context.Context, address string) (_ map[string][]bitcoin.AlkaneUTXO, err error) {
	var response alkanesOutpoints
	err = s.call(ctx, &response, "alkanes_protorunesbyaddress", alkanesByAddressParams{Address: address, ProtocolTag: alkanesProtocolTag})
	if err != nil {
		return nil, err
	}

	defer func() {
		if err != nil {
			err = errors.Join(ErrSandshrew, err)
		}
	}()

	balances := make(map[string][]bitcoin.AlkaneUTXO)
	for _, outpoint := range response.Outpoints {
		txID, err := reverse.Hex(outpoint.Outpoint.TxID)
		if err != nil {
			return nil, err
		}

		key := fmt.Sprintf("%s:%d", txID, outpoint.Outpoint.Vout)
		if _, ok := balances[key]; !ok {
			balances[key] = make([]bitcoin.AlkaneUTXO, 0, len(outpoint.Runes))
		}
		for _, r := range outpoint.Runes {
			block, err := parseHexBigInt(r.Rune.ID.Block)
			if err != nil {
				return nil, err
			}
			tx, err := parseHexBigInt(r.Rune.ID.Tx)
			if err != nil {
				return nil, err
			}
			amount, err := parseHexBigInt(r.Balance)
			if err != nil {
				return nil, err
			}

			balances[key] = append(balances[key], bitcoin.AlkaneUTXO{
				ID:     bitcoin.AlkaneID{Block: block.Uint64(), Tx: tx.Uint64()},
				Amount: amount,
			})
		}
	}

	return balances, nil
}

// parseHexBigInt parses "0x" prefixed hex number.
func parseHexBigInt(value string) (*big.Int, error) {
	number, ok := new(big.Int).SetString(strings.TrimPrefix(value, "0x"), 16)
	if !ok {
		return nil, fmt.Errorf("invalid hex number %q", value)
	}

	return number, nil
}

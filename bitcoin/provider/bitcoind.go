// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package provider

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/hashicorp/go-hclog"

	"github.com/BoostyLabs/txengine/bitcoin"
)

// ErrBitcoind defines errors class for bitcoind client.
var ErrBitcoind = errors.New("bitcoind")

// BitcoindConfig defines configuration of bitcoind RPC connection.
type BitcoindConfig struct {
	Host string `yaml:"host"`
	User string `yaml:"user"`
	Pass string `yaml:"pass"`
	TLS  bool   `yaml:"tls"`
}

// Bitcoind broadcasts transactions and watches mempool through bitcoind RPC.
type Bitcoind struct {
	client *rpcclient.Client
	log    hclog.Logger
}

// NewBitcoind is a constructor for Bitcoind.
func NewBitcoind(config BitcoindConfig, log hclog.Logger) (*Bitcoind, error) {
	if config.Host == "" {
		return nil, errors.Join(ErrBitcoind, errors.New("empty host"))
	}
	if log == nil {
		log = hclog.NewNullLogger()
	}

	host := strings.TrimPrefix(strings.TrimPrefix(config.Host, "http://"), "https://")
	client, err := rpcclient.New(&rpcclient.ConnConfig{
		Host:         host,
		User:         config.User,
		Pass:         config.Pass,
		HTTPPostMode: true,
		DisableTLS:   !config.TLS,
	}, nil)
	if err != nil {
		return nil, errors.Join(ErrBitcoind, err)
	}

	return &Bitcoind{client: client, log: log}, nil
}

// Close shuts down RPC client.
func (b *Bitcoind) Close() {
	b.client.Shutdown()
}

// Push checks the finalized packet against mempool policy and broadcasts it.
// Node reject reason is returned verbatim in *bitcoin.RejectedError.
func (b *Bitcoind) Push(ctx context.Context, packet *psbt.Packet) (_ *bitcoin.PushResult, err error) {
	defer func() {
		if err != nil {
			err = errors.Join(ErrBitcoind, err)
		}
	}()

	if err = ctx.Err(); err != nil {
		return nil, err
	}

	fee, err := packet.GetTxFee()
	if err != nil {
		return nil, err
	}

	tx, err := psbt.Extract(packet)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err = tx.Serialize(&buf); err != nil {
		return nil, err
	}
	txHex := hex.EncodeToString(buf.Bytes())
	txID := tx.TxHash().String()

	acceptance, err := b.testMempoolAccept(txHex)
	if err != nil {
		return nil, err
	}
	if !acceptance.Allowed {
		reason := acceptance.RejectReason
		if reason == "" {
			reason = acceptance.PackageError
		}

		return nil, &bitcoin.RejectedError{TxID: txID, Reason: reason}
	}

	if err = ctx.Err(); err != nil {
		return nil, err
	}

	rawParam, err := jsonAPI.Marshal(txHex)
	if err != nil {
		return nil, err
	}
	if _, err = b.client.RawRequest("sendrawtransaction", []json.RawMessage{rawParam}); err != nil {
		return nil, err
	}

	b.log.Info("transaction pushed", "txid", txID, "vsize", acceptance.Vsize, "fee", int64(fee))

	return &bitcoin.PushResult{TxID: txID, VSize: int64(acceptance.Vsize), Fee: int64(fee)}, nil
}

// testMempoolAccept runs mempool policy check of the single raw transaction.
func (b *Bitcoind) testMempoolAccept(txHex string) (*btcjson.TestMempoolAcceptResult, error) {
	rawParam, err := jsonAPI.Marshal([]string{txHex})
	if err != nil {
		return nil, err
	}

	raw, err := b.client.RawRequest("testmempoolaccept", []json.RawMessage{rawParam})
	if err != nil {
		return nil, err
	}

	var results []btcjson.TestMempoolAcceptResult
	if err = jsonAPI.Unmarshal(raw, &results); err != nil {
		return nil, err
	}
	if len(results) != 1 {
		return nil, fmt.Errorf("testmempoolaccept returned %d results", len(results))
	}

	return &results[0], nil
}

// InMempool returns true if the transaction is in mempool or already mined.
func (b *Bitcoind) InMempool(ctx context.Context, txID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	_, err := b.client.GetMempoolEntry(txID)
	if err == nil {
		return true, nil
	}
	if !isNotFound(err) {
		return false, errors.Join(ErrBitcoind, err)
	}

	hash, err := chainhash.NewHashFromStr(txID)
	if err != nil {
		return false, errors.Join(ErrBitcoind, err)
	}

	// mined transactions leave mempool, node index is asked instead.
	if _, err = b.client.GetRawTransaction(hash); err != nil {
		if isNotFound(err) {
			return false, nil
		}

		return false, errors.Join(ErrBitcoind, err)
	}

	return true, nil
}

// isNotFound returns true if node reports unknown transaction.
func isNotFound(err error) bool {
	var rpcErr *btcjson.RPCError

	return errors.As(err, &rpcErr) && rpcErr.Code == btcjson.ErrRPCInvalidAddressOrKey
}

// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package commitreveal_test

import (
	"context"
	"crypto/sha256"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/BoostyLabs/txengine/bitcoin"
	"github.com/BoostyLabs/txengine/bitcoin/addresses"
	"github.com/BoostyLabs/txengine/bitcoin/commitreveal"
	"github.com/BoostyLabs/txengine/bitcoin/ord/inscriptions"
	"github.com/BoostyLabs/txengine/bitcoin/signer"
	"github.com/BoostyLabs/txengine/bitcoin/txbuilder"
	"github.com/BoostyLabs/txengine/bitcoin/utils"
)

var params = &chaincfg.RegressionNetParams

type mockBroadcaster struct {
	mu     sync.Mutex
	pushed []*wire.MsgTx
	PushFn func(tx *wire.MsgTx) error
}

func (m *mockBroadcaster) Push(_ context.Context, packet *psbt.Packet) (*bitcoin.PushResult, error) {
	tx, err := psbt.Extract(packet)
	if err != nil {
		return nil, err
	}

	if m.PushFn != nil {
		if err = m.PushFn(tx); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	m.pushed = append(m.pushed, tx)
	m.mu.Unlock()

	var fee int64
	for _, input := range packet.Inputs {
		fee += input.WitnessUtxo.Value
	}
	for _, output := range tx.TxOut {
		fee -= output.Value
	}

	return &bitcoin.PushResult{TxID: tx.TxHash().String(), Fee: fee}, nil
}

type mockWatcher struct {
	InMempoolFn func(ctx context.Context, txID string) (bool, error)
}

func (m *mockWatcher) InMempool(ctx context.Context, txID string) (bool, error) {
	return m.InMempoolFn(ctx, txID)
}

type mockStore struct {
	mu      sync.Mutex
	pending map[string]commitreveal.Pending
}

func (m *mockStore) Save(_ context.Context, pending commitreveal.Pending) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pending[pending.CommitTxID] = pending

	return nil
}

func (m *mockStore) Delete(_ context.Context, commitTxID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.pending, commitTxID)

	return nil
}

type testEnv struct {
	keys        signer.KeyRing
	account     *bitcoin.Account
	builder     *txbuilder.Builder
	signer      *signer.Signer
	broadcaster *mockBroadcaster
	store       *mockStore
}

func newKey(seed string) *btcec.PrivateKey {
	hash := sha256.Sum256([]byte(seed))
	privateKey, _ := btcec.PrivKeyFromBytes(hash[:])

	return privateKey
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	keys := signer.KeyRing{Taproot: newKey("taproot"), NativeSegwit: newKey("native")}
	s := signer.NewSigner(params, keys)
	account, err := s.Account()
	require.NoError(t, err)

	return &testEnv{
		keys:        keys,
		account:     account,
		builder:     txbuilder.NewBuilder(params, account, nil),
		signer:      s,
		broadcaster: new(mockBroadcaster),
		store:       &mockStore{pending: make(map[string]commitreveal.Pending)},
	}
}

func (env *testEnv) protocol(config commitreveal.Config, watcher commitreveal.MempoolWatcher) *commitreveal.Protocol {
	return commitreveal.NewProtocol(config, params, env.builder, env.signer, env.broadcaster, watcher, env.store, nil)
}

func (env *testEnv) request(t *testing.T) commitreveal.Request {
	t.Helper()

	internalKey := env.keys.Taproot.PubKey()
	inscription := inscriptions.Inscription{ContentType: "text/plain", Body: []byte("commit reveal")}
	lockingScript, err := inscription.IntoScriptForWitness(utils.XOnlyPubKey(internalKey))
	require.NoError(t, err)

	pkScript, err := addresses.PayToAddress(env.account.NativeSegwit.Address, params)
	require.NoError(t, err)

	return commitreveal.Request{
		LockingScript: lockingScript,
		InternalKey:   internalKey,
		Funding: []bitcoin.UTXO{{
			TxHash:        "5aa4e4e957b467d07413aa75cdab5e4ce9ff2b714cd81b6af0e90bfee5ff070c",
			Amount:        100_000,
			Script:        pkScript,
			Address:       env.account.NativeSegwit.Address,
			Confirmations: 1,
			Indexed:       true,
		}},
		RevealOutputs: []bitcoin.OutputSpec{{Address: env.account.Taproot.Address, Amount: 546}},
		Receiver:      env.account.Taproot.Address,
		FeeRate:       10,
	}
}

func TestRun(t *testing.T) {
	env := newTestEnv(t)
	req := env.request(t)

	var polls int
	watcher := &mockWatcher{InMempoolFn: func(_ context.Context, _ string) (bool, error) {
		polls++
		if polls == 1 {
			return false, errors.New("node is syncing")
		}

		return polls > 2, nil
	}}

	protocol := env.protocol(commitreveal.Config{PollInterval: time.Millisecond, Timeout: time.Second}, watcher)
	pending, err := protocol.Prepare(req)
	require.NoError(t, err)

	result, err := protocol.Run(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, commitreveal.StateDone, result.State)
	require.Equal(t, 3, polls)
	require.Empty(t, env.store.pending)

	require.Len(t, env.broadcaster.pushed, 2)
	commitTx, revealTx := env.broadcaster.pushed[0], env.broadcaster.pushed[1]
	require.Equal(t, commitTx.TxHash().String(), result.CommitTxID)
	require.Equal(t, revealTx.TxHash().String(), result.RevealTxID)

	t.Run("commit output", func(t *testing.T) {
		commitScript, err := addresses.PayToAddress(pending.CommitAddress, params)
		require.NoError(t, err)

		require.Equal(t, commitScript, commitTx.TxOut[0].PkScript)
		require.Equal(t, pending.CommitValue, commitTx.TxOut[0].Value)
		require.Equal(t, pending.RevealFee+546, pending.CommitValue)
	})

	t.Run("reveal spends commit through script path", func(t *testing.T) {
		require.Len(t, revealTx.TxIn, 1)
		require.Equal(t, result.CommitTxID, revealTx.TxIn[0].PreviousOutPoint.Hash.String())
		require.EqualValues(t, 0, revealTx.TxIn[0].PreviousOutPoint.Index)
		require.Equal(t, req.LockingScript, []byte(revealTx.TxIn[0].Witness[1]))

		// commit value covers reveal outputs and fee exactly, so there is no change.
		require.Len(t, revealTx.TxOut, 1)
		require.Equal(t, pending.RevealFee, result.RevealFee)

		prevOut := commitTx.TxOut[0]
		fetcher := txscript.NewCannedPrevOutputFetcher(prevOut.PkScript, prevOut.Value)
		vm, err := txscript.NewEngine(prevOut.PkScript, revealTx, 0, txscript.StandardVerifyFlags, nil,
			txscript.NewTxSigHashes(revealTx, fetcher), prevOut.Value, fetcher)
		require.NoError(t, err)
		require.NoError(t, vm.Execute())
	})
}

func TestRunTimeoutAndResume(t *testing.T) {
	env := newTestEnv(t)
	req := env.request(t)

	var accepted bool
	watcher := &mockWatcher{InMempoolFn: func(_ context.Context, _ string) (bool, error) {
		return accepted, nil
	}}
	protocol := env.protocol(commitreveal.Config{PollInterval: 5 * time.Millisecond, Timeout: 30 * time.Millisecond}, watcher)

	result, err := protocol.Run(context.Background(), req)
	require.ErrorIs(t, err, bitcoin.ErrTimeout)
	require.ErrorIs(t, err, commitreveal.ErrCommitReveal)

	var timeoutErr *bitcoin.TimeoutError
	require.True(t, errors.As(err, &timeoutErr))
	require.Equal(t, result.CommitTxID, timeoutErr.TxID)
	require.Equal(t, 30*time.Millisecond, timeoutErr.Waited)
	require.Equal(t, commitreveal.StateWaitingForAcceptance, result.State)

	require.Len(t, env.broadcaster.pushed, 1)
	pending, ok := env.store.pending[result.CommitTxID]
	require.True(t, ok)

	accepted = true
	resumed, err := protocol.Resume(context.Background(), pending)
	require.NoError(t, err)
	require.Equal(t, commitreveal.StateDone, resumed.State)
	require.Equal(t, result.CommitTxID, resumed.CommitTxID)
	require.NotEmpty(t, resumed.RevealTxID)
	require.Len(t, env.broadcaster.pushed, 2)
	require.Empty(t, env.store.pending)
}

func TestRunFailures(t *testing.T) {
	found := &mockWatcher{InMempoolFn: func(_ context.Context, _ string) (bool, error) { return true, nil }}
	config := commitreveal.Config{PollInterval: time.Millisecond, Timeout: time.Second}

	t.Run("rejected commit", func(t *testing.T) {
		env := newTestEnv(t)
		env.broadcaster.PushFn = func(tx *wire.MsgTx) error {
			return &bitcoin.RejectedError{TxID: tx.TxHash().String(), Reason: "min relay fee not met"}
		}

		result, err := env.protocol(config, found).Run(context.Background(), env.request(t))
		require.ErrorIs(t, err, bitcoin.ErrTransactionRejected)
		require.Equal(t, commitreveal.StateFailed, result.State)
		require.Empty(t, env.store.pending)
	})

	t.Run("insufficient funding", func(t *testing.T) {
		env := newTestEnv(t)
		req := env.request(t)
		req.Funding[0].Amount = 1_000

		result, err := env.protocol(config, found).Run(context.Background(), req)
		require.ErrorIs(t, err, bitcoin.ErrInsufficientBalance)
		require.Equal(t, commitreveal.StateFailed, result.State)
		require.Empty(t, env.broadcaster.pushed)
	})

	t.Run("invalid request", func(t *testing.T) {
		env := newTestEnv(t)
		protocol := env.protocol(config, found)

		req := env.request(t)
		req.LockingScript = nil
		_, err := protocol.Prepare(req)
		require.Error(t, err)

		req = env.request(t)
		req.RevealOutputs = nil
		_, err = protocol.Prepare(req)
		require.Error(t, err)

		_, err = protocol.Resume(context.Background(), commitreveal.Pending{})
		require.ErrorIs(t, err, commitreveal.ErrCommitReveal)
	})

	t.Run("canceled wait", func(t *testing.T) {
		env := newTestEnv(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		notFound := &mockWatcher{InMempoolFn: func(_ context.Context, _ string) (bool, error) { return false, nil }}
		err := env.protocol(config, notFound).WaitForAcceptance(ctx, "txid")
		require.ErrorIs(t, err, context.Canceled)
	})
}

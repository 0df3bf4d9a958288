package transactor

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/OjusWiZard/triton-bot/internal/logger"
	"github.com/OjusWiZard/triton-bot/pkg/contractCaller"
	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

var (
	safeAddress    = common.HexToAddress("0x1111111111111111111111111111111111111111")
	stakingAddress = common.HexToAddress("0x389b46c259631acd6a69bde8b6cee218230bae8c")
	safeTxHash     = common.HexToHash("0xabababababababababababababababababababababababababababababababab")
)

// fakeChain answers the Safe view calls and records submitted transactions.
type fakeChain struct {
	mu            sync.Mutex
	abis          *contractCaller.Abis
	sent          []*types.Transaction
	receiptStatus uint64
	sendErr       error
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		abis:          contractCaller.MustParseAbis(),
		receiptStatus: types.ReceiptStatusSuccessful,
	}
}

func (f *fakeChain) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

func (f *fakeChain) CallContract(ctx context.Context, call geth.CallMsg, blockNumber *big.Int) ([]byte, error) {
	safeAbi := f.abis.GnosisSafe
	method, err := safeAbi.MethodById(call.Data[:4])
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case "nonce":
		return method.Outputs.Pack(big.NewInt(7))
	case "getTransactionHash":
		return method.Outputs.Pack([32]byte(safeTxHash))
	}
	return nil, fmt.Errorf("execution reverted")
}

func (f *fakeChain) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (f *fakeChain) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(100)}, nil
}

func (f *fakeChain) PendingCodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return []byte{0x60}, nil
}

func (f *fakeChain) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return 3, nil
}

func (f *fakeChain) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeChain) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeChain) EstimateGas(ctx context.Context, call geth.CallMsg) (uint64, error) {
	return 200_000, nil
}

func (f *fakeChain) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeChain) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return &types.Receipt{Status: f.receiptStatus, TxHash: txHash}, nil
}

func (f *fakeChain) ChainID(ctx context.Context) (*big.Int, error) {
	return big.NewInt(100), nil
}

func Test_Signer(t *testing.T) {
	t.Run("Parses keys with and without prefix", func(t *testing.T) {
		a, err := SignerFromHex(testKey)
		require.NoError(t, err)
		b, err := SignerFromHex("0x" + testKey)
		require.NoError(t, err)
		assert.Equal(t, a.Address, b.Address)
	})
	t.Run("Rejects empty and malformed keys", func(t *testing.T) {
		_, err := SignerFromHex("")
		assert.Error(t, err)
		_, err = SignerFromHex("0xnothex")
		assert.Error(t, err)
	})
	t.Run("Signs safe hashes with v of 27 or 28", func(t *testing.T) {
		signer, err := SignerFromHex(testKey)
		require.NoError(t, err)

		sig, err := signer.SignSafeHash(safeTxHash)
		require.NoError(t, err)
		require.Len(t, sig, 65)
		assert.Contains(t, []byte{27, 28}, sig[64])

		recoverable := append([]byte{}, sig...)
		recoverable[64] -= 27
		pub, err := crypto.SigToPub(safeTxHash[:], recoverable)
		require.NoError(t, err)
		assert.Equal(t, signer.Address, crypto.PubkeyToAddress(*pub))
	})
}

func Test_SafeTransactor(t *testing.T) {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	require.NoError(t, err)
	abis := contractCaller.MustParseAbis()
	claimData, err := abis.StakingToken.Pack("claim", big.NewInt(1234))
	require.NoError(t, err)

	signer, err := SignerFromHex(testKey)
	require.NoError(t, err)

	t.Run("Executes through the safe", func(t *testing.T) {
		chain := newFakeChain()
		st := NewSafeTransactor(chain, &SafeTransactorConfig{ReceiptTimeout: time.Second}, l)

		hash, err := st.Exec(context.Background(), safeAddress, stakingAddress, claimData, signer)
		require.NoError(t, err)
		require.Len(t, chain.sent, 1)

		sent := chain.sent[0]
		assert.Equal(t, hash, sent.Hash())
		assert.Equal(t, safeAddress, *sent.To())

		args, err := abis.GnosisSafe.Methods["execTransaction"].Inputs.Unpack(sent.Data()[4:])
		require.NoError(t, err)
		assert.Equal(t, stakingAddress, args[0].(common.Address))
		assert.Equal(t, claimData, args[2].([]byte))

		sig := args[9].([]byte)
		require.Len(t, sig, 65)
		assert.Contains(t, []byte{27, 28}, sig[64])
	})
	t.Run("Fails on a reverted receipt", func(t *testing.T) {
		chain := newFakeChain()
		chain.receiptStatus = types.ReceiptStatusFailed
		st := NewSafeTransactor(chain, &SafeTransactorConfig{ReceiptTimeout: time.Second}, l)

		hash, err := st.Exec(context.Background(), safeAddress, stakingAddress, claimData, signer)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "reverted")
		assert.NotEqual(t, common.Hash{}, hash)
	})
	t.Run("Fails when broadcast fails", func(t *testing.T) {
		chain := newFakeChain()
		chain.sendErr = fmt.Errorf("insufficient funds for gas")
		st := NewSafeTransactor(chain, nil, l)

		_, err := st.Exec(context.Background(), safeAddress, stakingAddress, claimData, signer)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "insufficient funds")
	})
	t.Run("Requires a signer", func(t *testing.T) {
		st := NewSafeTransactor(newFakeChain(), nil, l)
		_, err := st.Exec(context.Background(), safeAddress, stakingAddress, claimData, nil)
		assert.Error(t, err)
	})
}

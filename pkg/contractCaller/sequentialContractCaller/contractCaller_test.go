package sequentialContractCaller

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
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type callResponse func(input []byte) ([]byte, error)

// fakeBackend answers eth_call by contract address and 4-byte selector.
type fakeBackend struct {
	mu        sync.Mutex
	responses map[string]callResponse
	calls     map[string]int
	balances  map[common.Address]*big.Int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		responses: make(map[string]callResponse),
		calls:     make(map[string]int),
		balances:  make(map[common.Address]*big.Int),
	}
}

func responseKey(address common.Address, selector []byte) string {
	return fmt.Sprintf("%s:%x", address.Hex(), selector)
}

func (f *fakeBackend) on(t *testing.T, contractAbi abi.ABI, address common.Address, method string, fn callResponse) {
	m, ok := contractAbi.Methods[method]
	require.True(t, ok, method)
	f.responses[responseKey(address, m.ID)] = fn
}

func (f *fakeBackend) returns(t *testing.T, contractAbi abi.ABI, address common.Address, method string, values ...interface{}) {
	out, err := contractAbi.Methods[method].Outputs.Pack(values...)
	require.NoError(t, err)
	f.on(t, contractAbi, address, method, func([]byte) ([]byte, error) { return out, nil })
}

func (f *fakeBackend) callCount(contractAbi abi.ABI, address common.Address, method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[responseKey(address, contractAbi.Methods[method].ID)]
}

func (f *fakeBackend) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{0x60, 0x80}, nil
}

func (f *fakeBackend) CallContract(ctx context.Context, call geth.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if call.To == nil || len(call.Data) < 4 {
		return nil, fmt.Errorf("malformed call")
	}
	key := responseKey(*call.To, call.Data[:4])
	f.mu.Lock()
	f.calls[key]++
	fn, ok := f.responses[key]
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("execution reverted")
	}
	return fn(call.Data[4:])
}

func (f *fakeBackend) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	if b, ok := f.balances[account]; ok {
		return b, nil
	}
	return big.NewInt(0), nil
}

var (
	stakingAddress = common.HexToAddress("0x389b46c259631acd6a69bde8b6cee218230bae8c")
	checkerAddress = common.HexToAddress("0x5555555555555555555555555555555555555555")
	mechAddress    = common.HexToAddress("0x77af31De935740567Cf4fF1986D04B2c964A786a")
	safeAddress    = common.HexToAddress("0x1111111111111111111111111111111111111111")
	tokenAddress   = common.HexToAddress("0xcE11e14225575945b8E6Dc0D4F2dD4C570f79d9f")
)

func setup(t *testing.T) (*fakeBackend, *SequentialContractCaller, *contractCaller.Abis, *zap.Logger) {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	require.NoError(t, err)

	backend := newFakeBackend()
	scc := NewSequentialContractCaller(backend, &SequentialContractCallerConfig{
		CallTimeout: time.Second,
		Backoffs:    []time.Duration{0, time.Millisecond, time.Millisecond},
	}, l)
	return backend, scc, contractCaller.MustParseAbis(), l
}

func Test_SequentialContractCaller(t *testing.T) {
	t.Run("Reads the reward field of mapServiceInfo", func(t *testing.T) {
		backend, scc, abis, _ := setup(t)
		reward, _ := new(big.Int).SetString("1000000000000000000", 10)
		backend.returns(t, abis.StakingToken, stakingAddress, "mapServiceInfo",
			safeAddress, common.HexToAddress("0x02"), big.NewInt(1700000000), reward, big.NewInt(0))

		got, err := scc.GetServiceReward(context.Background(), stakingAddress, 1234)
		require.NoError(t, err)
		assert.Equal(t, reward.String(), got.String())
	})
	t.Run("Decodes the getServiceInfo tuple", func(t *testing.T) {
		backend, scc, abis, _ := setup(t)
		info := contractCaller.ServiceInfo{
			Multisig:   safeAddress,
			Owner:      common.HexToAddress("0x02"),
			Nonces:     []*big.Int{big.NewInt(10), big.NewInt(93)},
			TsStart:    big.NewInt(1700000000),
			Reward:     big.NewInt(5),
			Inactivity: big.NewInt(0),
		}
		backend.returns(t, abis.StakingToken, stakingAddress, "getServiceInfo", info)

		got, err := scc.GetServiceInfo(context.Background(), stakingAddress, 1234)
		require.NoError(t, err)
		assert.Equal(t, safeAddress, got.Multisig)
		require.Len(t, got.Nonces, 2)
		assert.Equal(t, int64(93), got.Nonces[1].Int64())
	})
	t.Run("Reads scalar staking and checker values", func(t *testing.T) {
		backend, scc, abis, _ := setup(t)
		backend.returns(t, abis.StakingToken, stakingAddress, "livenessPeriod", big.NewInt(86400))
		backend.returns(t, abis.StakingToken, stakingAddress, "tsCheckpoint", big.NewInt(1700000000))
		backend.returns(t, abis.StakingToken, stakingAddress, "activityChecker", checkerAddress)
		backend.returns(t, abis.StakingToken, stakingAddress, "maxNumServices", big.NewInt(100))
		backend.returns(t, abis.StakingToken, stakingAddress, "getServiceIds", []*big.Int{big.NewInt(1), big.NewInt(2)})
		backend.returns(t, abis.MechActivityChecker, checkerAddress, "livenessRatio", big.NewInt(462962962962960))
		backend.returns(t, abis.Mech, mechAddress, "getRequestsCount", big.NewInt(126))

		ctx := context.Background()
		period, err := scc.GetLivenessPeriod(ctx, stakingAddress)
		require.NoError(t, err)
		assert.Equal(t, int64(86400), period.Int64())

		checkpoint, err := scc.GetTsCheckpoint(ctx, stakingAddress)
		require.NoError(t, err)
		assert.Equal(t, int64(1700000000), checkpoint.Int64())

		checker, err := scc.GetActivityChecker(ctx, stakingAddress)
		require.NoError(t, err)
		assert.Equal(t, checkerAddress, checker)

		maxServices, err := scc.GetMaxNumServices(ctx, stakingAddress)
		require.NoError(t, err)
		assert.Equal(t, int64(100), maxServices.Int64())

		ids, err := scc.GetServiceIds(ctx, stakingAddress)
		require.NoError(t, err)
		assert.Len(t, ids, 2)

		ratio, err := scc.GetLivenessRatio(ctx, checkerAddress)
		require.NoError(t, err)
		assert.Equal(t, int64(462962962962960), ratio.Int64())

		count, err := scc.GetRequestsCount(ctx, mechAddress, safeAddress)
		require.NoError(t, err)
		assert.Equal(t, int64(126), count.Int64())
	})
	t.Run("Passes the owner argument to balanceOf", func(t *testing.T) {
		backend, scc, abis, _ := setup(t)
		backend.on(t, abis.Erc20, tokenAddress, "balanceOf", func(input []byte) ([]byte, error) {
			args, err := abis.Erc20.Methods["balanceOf"].Inputs.Unpack(input)
			if err != nil {
				return nil, err
			}
			if args[0].(common.Address) != safeAddress {
				return abis.Erc20.Methods["balanceOf"].Outputs.Pack(big.NewInt(0))
			}
			return abis.Erc20.Methods["balanceOf"].Outputs.Pack(big.NewInt(42))
		})

		balance, err := scc.GetTokenBalance(context.Background(), tokenAddress, safeAddress)
		require.NoError(t, err)
		assert.Equal(t, int64(42), balance.Int64())
	})
	t.Run("Reads native balances", func(t *testing.T) {
		backend, scc, _, _ := setup(t)
		backend.balances[safeAddress] = big.NewInt(7)

		balance, err := scc.GetNativeBalance(context.Background(), safeAddress)
		require.NoError(t, err)
		assert.Equal(t, int64(7), balance.Int64())
	})
	t.Run("Does not retry execution reverts", func(t *testing.T) {
		backend, scc, abis, _ := setup(t)

		_, err := scc.GetMechMarketplace(context.Background(), checkerAddress)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "execution reverted")
		assert.Equal(t, 1, backend.callCount(abis.RequesterActivityChecker, checkerAddress, "mechMarketplace"))
	})
	t.Run("Retries transient failures until success", func(t *testing.T) {
		backend, scc, abis, _ := setup(t)
		attempts := 0
		backend.on(t, abis.MechActivityChecker, checkerAddress, "agentMech", func([]byte) ([]byte, error) {
			attempts++
			if attempts < 3 {
				return nil, fmt.Errorf("connection reset by peer")
			}
			return abis.MechActivityChecker.Methods["agentMech"].Outputs.Pack(mechAddress)
		})

		got, err := scc.GetAgentMech(context.Background(), checkerAddress)
		require.NoError(t, err)
		assert.Equal(t, mechAddress, got)
		assert.Equal(t, 3, attempts)
	})
	t.Run("Gives up after the last backoff", func(t *testing.T) {
		backend, scc, abis, _ := setup(t)
		backend.on(t, abis.MechActivityChecker, checkerAddress, "agentMech", func([]byte) ([]byte, error) {
			return nil, fmt.Errorf("connection reset by peer")
		})

		_, err := scc.GetAgentMech(context.Background(), checkerAddress)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exceeded retries")
		assert.Equal(t, 3, backend.callCount(abis.MechActivityChecker, checkerAddress, "agentMech"))
	})
}

func Test_BackoffsForRetries(t *testing.T) {
	assert.Equal(t, []time.Duration{0}, BackoffsForRetries(0))
	assert.Equal(t, []time.Duration{0, time.Second, 3 * time.Second}, BackoffsForRetries(2))
	assert.Len(t, BackoffsForRetries(7), 8)
	assert.Equal(t, []time.Duration{0}, BackoffsForRetries(-1))
}

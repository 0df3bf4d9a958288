package sequentialContractCaller

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/OjusWiZard/triton-bot/pkg/clients/ethereum"
	"github.com/OjusWiZard/triton-bot/pkg/contractCaller"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type SequentialContractCallerConfig struct {
	// CallTimeout bounds every single eth_call / eth_getBalance round trip.
	CallTimeout time.Duration
	// Backoffs is the wait before each attempt; its length is the attempt count.
	// Execution reverts are never retried.
	Backoffs []time.Duration
}

func DefaultSequentialContractCallerConfig() *SequentialContractCallerConfig {
	return &SequentialContractCallerConfig{
		CallTimeout: 15 * time.Second,
		Backoffs:    []time.Duration{0, time.Second, 3 * time.Second},
	}
}

// BackoffsForRetries builds a backoff schedule with the given number of retries after the
// first attempt.
func BackoffsForRetries(retries int) []time.Duration {
	schedule := []time.Duration{0, time.Second, 3 * time.Second, 5 * time.Second, 10 * time.Second}
	if retries < 0 {
		retries = 0
	}
	if retries+1 <= len(schedule) {
		return schedule[:retries+1]
	}
	for len(schedule) < retries+1 {
		schedule = append(schedule, schedule[len(schedule)-1])
	}
	return schedule
}

type SequentialContractCaller struct {
	EthereumClient ethereum.ChainReader
	Logger         *zap.Logger
	config         *SequentialContractCallerConfig
	abis           *contractCaller.Abis
}

var _ contractCaller.IContractCaller = (*SequentialContractCaller)(nil)

func NewSequentialContractCaller(ec ethereum.ChainReader, cfg *SequentialContractCallerConfig, l *zap.Logger) *SequentialContractCaller {
	if cfg == nil {
		cfg = DefaultSequentialContractCallerConfig()
	}
	if len(cfg.Backoffs) == 0 {
		cfg.Backoffs = []time.Duration{0}
	}
	return &SequentialContractCaller{
		EthereumClient: ec,
		Logger:         l,
		config:         cfg,
		abis:           contractCaller.MustParseAbis(),
	}
}

// retryable runs fn under a per-attempt timeout, waiting the configured backoff before each
// attempt. Reverts, missing code and parent context cancellation end the loop immediately.
func (cc *SequentialContractCaller) retryable(ctx context.Context, method string, address common.Address, fn func(ctx context.Context) error) error {
	var lastErr error
	for i, backoff := range cc.config.Backoffs {
		if backoff > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		callCtx := ctx
		var cancel context.CancelFunc = func() {}
		if cc.config.CallTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, cc.config.CallTimeout)
		}
		err := fn(callCtx)
		cancel()
		if err == nil {
			if i > 0 {
				cc.Logger.Sugar().Infow("Successfully called after backoff",
					zap.String("method", method),
					zap.String("address", address.Hex()),
					zap.Int("attempt", i+1),
				)
			}
			return nil
		}
		lastErr = err

		if contractCaller.IsContractError(err) || ctx.Err() != nil {
			return err
		}
		cc.Logger.Sugar().Warnw("Contract call failed",
			zap.String("method", method),
			zap.String("address", address.Hex()),
			zap.Int("attempt", i+1),
			zap.Error(err),
		)
	}
	return errors.Wrapf(lastErr, "exceeded retries for %s", method)
}

func (cc *SequentialContractCaller) call(ctx context.Context, contractAbi abi.ABI, address common.Address, method string, args ...interface{}) ([]interface{}, error) {
	contract := bind.NewBoundContract(address, contractAbi, cc.EthereumClient, nil, nil)

	var results []interface{}
	err := cc.retryable(ctx, method, address, func(callCtx context.Context) error {
		results = make([]interface{}, 0)
		return contract.Call(&bind.CallOpts{Context: callCtx}, &results, method, args...)
	})
	if err != nil {
		cc.Logger.Sugar().Debugw("Contract call failed",
			zap.String("method", method),
			zap.String("address", address.Hex()),
			zap.Error(err),
		)
		return nil, errors.Wrapf(err, "%s on %s", method, address.Hex())
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%s on %s returned no values", method, address.Hex())
	}
	return results, nil
}

func asBigInt(method string, v interface{}) (*big.Int, error) {
	n, ok := v.(*big.Int)
	if !ok || n == nil {
		return nil, fmt.Errorf("%s: unexpected output type %T", method, v)
	}
	return n, nil
}

func asAddress(method string, v interface{}) (common.Address, error) {
	a, ok := v.(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%s: unexpected output type %T", method, v)
	}
	return a, nil
}

func (cc *SequentialContractCaller) callBigInt(ctx context.Context, contractAbi abi.ABI, address common.Address, method string, args ...interface{}) (*big.Int, error) {
	results, err := cc.call(ctx, contractAbi, address, method, args...)
	if err != nil {
		return nil, err
	}
	return asBigInt(method, results[0])
}

func (cc *SequentialContractCaller) callAddress(ctx context.Context, contractAbi abi.ABI, address common.Address, method string, args ...interface{}) (common.Address, error) {
	results, err := cc.call(ctx, contractAbi, address, method, args...)
	if err != nil {
		return common.Address{}, err
	}
	return asAddress(method, results[0])
}

// GetServiceReward reads mapServiceInfo(serviceId) and returns the reward field (index 3).
func (cc *SequentialContractCaller) GetServiceReward(ctx context.Context, stakingContract common.Address, serviceId uint64) (*big.Int, error) {
	results, err := cc.call(ctx, cc.abis.StakingToken, stakingContract, "mapServiceInfo", new(big.Int).SetUint64(serviceId))
	if err != nil {
		return nil, err
	}
	if len(results) < 4 {
		return nil, fmt.Errorf("mapServiceInfo: expected 5 outputs, got %d", len(results))
	}
	return asBigInt("mapServiceInfo", results[3])
}

func (cc *SequentialContractCaller) GetServiceInfo(ctx context.Context, stakingContract common.Address, serviceId uint64) (*contractCaller.ServiceInfo, error) {
	results, err := cc.call(ctx, cc.abis.StakingToken, stakingContract, "getServiceInfo", new(big.Int).SetUint64(serviceId))
	if err != nil {
		return nil, err
	}
	converted, ok := abi.ConvertType(results[0], new(contractCaller.ServiceInfo)).(*contractCaller.ServiceInfo)
	if !ok || converted == nil {
		return nil, fmt.Errorf("getServiceInfo: unexpected output type %T", results[0])
	}
	return converted, nil
}

func (cc *SequentialContractCaller) GetLivenessPeriod(ctx context.Context, stakingContract common.Address) (*big.Int, error) {
	return cc.callBigInt(ctx, cc.abis.StakingToken, stakingContract, "livenessPeriod")
}

func (cc *SequentialContractCaller) GetTsCheckpoint(ctx context.Context, stakingContract common.Address) (*big.Int, error) {
	return cc.callBigInt(ctx, cc.abis.StakingToken, stakingContract, "tsCheckpoint")
}

func (cc *SequentialContractCaller) GetActivityChecker(ctx context.Context, stakingContract common.Address) (common.Address, error) {
	return cc.callAddress(ctx, cc.abis.StakingToken, stakingContract, "activityChecker")
}

func (cc *SequentialContractCaller) GetServiceIds(ctx context.Context, stakingContract common.Address) ([]*big.Int, error) {
	results, err := cc.call(ctx, cc.abis.StakingToken, stakingContract, "getServiceIds")
	if err != nil {
		return nil, err
	}
	ids, ok := results[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("getServiceIds: unexpected output type %T", results[0])
	}
	return ids, nil
}

func (cc *SequentialContractCaller) GetMaxNumServices(ctx context.Context, stakingContract common.Address) (*big.Int, error) {
	return cc.callBigInt(ctx, cc.abis.StakingToken, stakingContract, "maxNumServices")
}

func (cc *SequentialContractCaller) GetLivenessRatio(ctx context.Context, activityChecker common.Address) (*big.Int, error) {
	return cc.callBigInt(ctx, cc.abis.MechActivityChecker, activityChecker, "livenessRatio")
}

func (cc *SequentialContractCaller) GetMechMarketplace(ctx context.Context, activityChecker common.Address) (common.Address, error) {
	return cc.callAddress(ctx, cc.abis.RequesterActivityChecker, activityChecker, "mechMarketplace")
}

func (cc *SequentialContractCaller) GetAgentMech(ctx context.Context, activityChecker common.Address) (common.Address, error) {
	return cc.callAddress(ctx, cc.abis.MechActivityChecker, activityChecker, "agentMech")
}

func (cc *SequentialContractCaller) GetRequestsCount(ctx context.Context, mech common.Address, requester common.Address) (*big.Int, error) {
	return cc.callBigInt(ctx, cc.abis.Mech, mech, "getRequestsCount", requester)
}

func (cc *SequentialContractCaller) GetTokenBalance(ctx context.Context, token common.Address, owner common.Address) (*big.Int, error) {
	return cc.callBigInt(ctx, cc.abis.Erc20, token, "balanceOf", owner)
}

func (cc *SequentialContractCaller) GetNativeBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	var balance *big.Int
	err := cc.retryable(ctx, "eth_getBalance", owner, func(callCtx context.Context) error {
		b, err := cc.EthereumClient.BalanceAt(callCtx, owner, nil)
		if err != nil {
			return err
		}
		balance = b
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "eth_getBalance for %s", owner.Hex())
	}
	return balance, nil
}

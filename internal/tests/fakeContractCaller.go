package tests

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/OjusWiZard/triton-bot/pkg/contractCaller"
	"github.com/ethereum/go-ethereum/common"
)

// FakeContractCaller is an in-memory IContractCaller. Unknown lookups behave like a revert,
// except balances which default to zero.
type FakeContractCaller struct {
	mu sync.Mutex

	Rewards          map[uint64]*big.Int
	ServiceInfos     map[uint64]*contractCaller.ServiceInfo
	LivenessPeriod   *big.Int
	TsCheckpoint     *big.Int
	ActivityCheckers map[common.Address]common.Address
	ServiceIds       map[common.Address][]*big.Int
	MaxNumServices   map[common.Address]*big.Int
	LivenessRatios   map[common.Address]*big.Int
	Marketplaces     map[common.Address]common.Address
	AgentMechs       map[common.Address]common.Address
	// RequestsCounts is keyed by requester.
	RequestsCounts map[common.Address]*big.Int
	// TokenBalances is keyed by owner.
	TokenBalances  map[common.Address]*big.Int
	NativeBalances map[common.Address]*big.Int

	// Errors forces a method to fail for every argument.
	Errors map[string]error
	// FailFor forces a method to fail for one address argument (owner, requester or contract).
	FailFor map[string]map[common.Address]error

	calls map[string]int
}

func NewFakeContractCaller() *FakeContractCaller {
	return &FakeContractCaller{
		Rewards:          make(map[uint64]*big.Int),
		ServiceInfos:     make(map[uint64]*contractCaller.ServiceInfo),
		LivenessPeriod:   big.NewInt(86400),
		TsCheckpoint:     big.NewInt(0),
		ActivityCheckers: make(map[common.Address]common.Address),
		ServiceIds:       make(map[common.Address][]*big.Int),
		MaxNumServices:   make(map[common.Address]*big.Int),
		LivenessRatios:   make(map[common.Address]*big.Int),
		Marketplaces:     make(map[common.Address]common.Address),
		AgentMechs:       make(map[common.Address]common.Address),
		RequestsCounts:   make(map[common.Address]*big.Int),
		TokenBalances:    make(map[common.Address]*big.Int),
		NativeBalances:   make(map[common.Address]*big.Int),
		Errors:           make(map[string]error),
		FailFor:          make(map[string]map[common.Address]error),
		calls:            make(map[string]int),
	}
}

var _ contractCaller.IContractCaller = (*FakeContractCaller)(nil)

func (f *FakeContractCaller) SetFailure(method string, address common.Address, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.FailFor[method]; !ok {
		f.FailFor[method] = make(map[common.Address]error)
	}
	f.FailFor[method][address] = err
}

func (f *FakeContractCaller) SetTokenBalance(owner common.Address, amount *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.TokenBalances[owner] = amount
}

func (f *FakeContractCaller) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *FakeContractCaller) enter(method string, address common.Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method]++
	if err, ok := f.Errors[method]; ok {
		return err
	}
	if byAddress, ok := f.FailFor[method]; ok {
		if err, ok := byAddress[address]; ok {
			return err
		}
	}
	return nil
}

func reverted(method string) error {
	return fmt.Errorf("%s: execution reverted", method)
}

func (f *FakeContractCaller) GetServiceReward(ctx context.Context, stakingContract common.Address, serviceId uint64) (*big.Int, error) {
	if err := f.enter("GetServiceReward", stakingContract); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.Rewards[serviceId]; ok {
		return r, nil
	}
	return big.NewInt(0), nil
}

func (f *FakeContractCaller) GetServiceInfo(ctx context.Context, stakingContract common.Address, serviceId uint64) (*contractCaller.ServiceInfo, error) {
	if err := f.enter("GetServiceInfo", stakingContract); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if info, ok := f.ServiceInfos[serviceId]; ok {
		return info, nil
	}
	return &contractCaller.ServiceInfo{Nonces: []*big.Int{}}, nil
}

func (f *FakeContractCaller) GetLivenessPeriod(ctx context.Context, stakingContract common.Address) (*big.Int, error) {
	if err := f.enter("GetLivenessPeriod", stakingContract); err != nil {
		return nil, err
	}
	return f.LivenessPeriod, nil
}

func (f *FakeContractCaller) GetTsCheckpoint(ctx context.Context, stakingContract common.Address) (*big.Int, error) {
	if err := f.enter("GetTsCheckpoint", stakingContract); err != nil {
		return nil, err
	}
	return f.TsCheckpoint, nil
}

func (f *FakeContractCaller) GetActivityChecker(ctx context.Context, stakingContract common.Address) (common.Address, error) {
	if err := f.enter("GetActivityChecker", stakingContract); err != nil {
		return common.Address{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.ActivityCheckers[stakingContract]; ok {
		return a, nil
	}
	return common.Address{}, reverted("activityChecker")
}

func (f *FakeContractCaller) GetServiceIds(ctx context.Context, stakingContract common.Address) ([]*big.Int, error) {
	if err := f.enter("GetServiceIds", stakingContract); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ServiceIds[stakingContract], nil
}

func (f *FakeContractCaller) GetMaxNumServices(ctx context.Context, stakingContract common.Address) (*big.Int, error) {
	if err := f.enter("GetMaxNumServices", stakingContract); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if n, ok := f.MaxNumServices[stakingContract]; ok {
		return n, nil
	}
	return nil, reverted("maxNumServices")
}

func (f *FakeContractCaller) GetLivenessRatio(ctx context.Context, activityChecker common.Address) (*big.Int, error) {
	if err := f.enter("GetLivenessRatio", activityChecker); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.LivenessRatios[activityChecker]; ok {
		return r, nil
	}
	return big.NewInt(0), nil
}

func (f *FakeContractCaller) GetMechMarketplace(ctx context.Context, activityChecker common.Address) (common.Address, error) {
	if err := f.enter("GetMechMarketplace", activityChecker); err != nil {
		return common.Address{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.Marketplaces[activityChecker]; ok {
		return a, nil
	}
	return common.Address{}, reverted("mechMarketplace")
}

func (f *FakeContractCaller) GetAgentMech(ctx context.Context, activityChecker common.Address) (common.Address, error) {
	if err := f.enter("GetAgentMech", activityChecker); err != nil {
		return common.Address{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.AgentMechs[activityChecker]; ok {
		return a, nil
	}
	return common.Address{}, reverted("agentMech")
}

func (f *FakeContractCaller) GetRequestsCount(ctx context.Context, mech common.Address, requester common.Address) (*big.Int, error) {
	if err := f.enter("GetRequestsCount", requester); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if n, ok := f.RequestsCounts[requester]; ok {
		return n, nil
	}
	return big.NewInt(0), nil
}

func (f *FakeContractCaller) GetTokenBalance(ctx context.Context, token common.Address, owner common.Address) (*big.Int, error) {
	if err := f.enter("GetTokenBalance", owner); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.TokenBalances[owner]; ok {
		return b, nil
	}
	return big.NewInt(0), nil
}

func (f *FakeContractCaller) GetNativeBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	if err := f.enter("GetNativeBalance", owner); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.NativeBalances[owner]; ok {
		return b, nil
	}
	return big.NewInt(0), nil
}

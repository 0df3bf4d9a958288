package contractCaller

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ServiceInfo mirrors the staking contract's ServiceInfo struct. Field names and order must
// match the ABI tuple so abi.ConvertType can map the decoded value onto it.
type ServiceInfo struct {
	Multisig   common.Address
	Owner      common.Address
	Nonces     []*big.Int
	TsStart    *big.Int
	Reward     *big.Int
	Inactivity *big.Int
}

// IContractCaller exposes the typed view functions the orchestrator reads. Every call is a
// single network round trip against the latest block.
type IContractCaller interface {
	// staking token
	GetServiceReward(ctx context.Context, stakingContract common.Address, serviceId uint64) (*big.Int, error)
	GetServiceInfo(ctx context.Context, stakingContract common.Address, serviceId uint64) (*ServiceInfo, error)
	GetLivenessPeriod(ctx context.Context, stakingContract common.Address) (*big.Int, error)
	GetTsCheckpoint(ctx context.Context, stakingContract common.Address) (*big.Int, error)
	GetActivityChecker(ctx context.Context, stakingContract common.Address) (common.Address, error)
	GetServiceIds(ctx context.Context, stakingContract common.Address) ([]*big.Int, error)
	GetMaxNumServices(ctx context.Context, stakingContract common.Address) (*big.Int, error)

	// activity checkers
	GetLivenessRatio(ctx context.Context, activityChecker common.Address) (*big.Int, error)
	GetMechMarketplace(ctx context.Context, activityChecker common.Address) (common.Address, error)
	GetAgentMech(ctx context.Context, activityChecker common.Address) (common.Address, error)

	// mech
	GetRequestsCount(ctx context.Context, mech common.Address, requester common.Address) (*big.Int, error)

	// balances
	GetTokenBalance(ctx context.Context, token common.Address, owner common.Address) (*big.Int, error)
	GetNativeBalance(ctx context.Context, owner common.Address) (*big.Int, error)
}

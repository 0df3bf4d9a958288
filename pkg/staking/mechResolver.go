package staking

import (
	"context"
	"fmt"

	"github.com/OjusWiZard/triton-bot/pkg/contractCaller"
	"github.com/OjusWiZard/triton-bot/pkg/utils"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// DefaultMechAddress is the mech used when the activity checker exposes neither a
// marketplace nor an agent mech.
var DefaultMechAddress = common.HexToAddress("0x77af31De935740567Cf4fF1986D04B2c964A786a")

type MechLookupResult struct {
	Address common.Address
	Err     error
}

// MechStrategy is one step of the mech address fallback chain.
type MechStrategy struct {
	Name   string
	Lookup func(ctx context.Context, activityChecker common.Address) MechLookupResult
}

// Resolution records which strategy produced the address and why the earlier ones failed.
type Resolution struct {
	Strategy string
	Failures []StrategyFailure
}

type StrategyFailure struct {
	Strategy string
	Err      error
	// Definitive is set when the contract answered (revert, no code, zero address), so a
	// later attempt would fail the same way.
	Definitive bool
}

type MechResolver struct {
	strategies []MechStrategy
	logger     *zap.Logger
}

const (
	MechStrategy_Marketplace = "mechMarketplace"
	MechStrategy_AgentMech   = "agentMech"
	MechStrategy_Default     = "default"
)

func MarketplaceStrategy(cc contractCaller.IContractCaller) MechStrategy {
	return MechStrategy{
		Name: MechStrategy_Marketplace,
		Lookup: func(ctx context.Context, activityChecker common.Address) MechLookupResult {
			addr, err := cc.GetMechMarketplace(ctx, activityChecker)
			return MechLookupResult{Address: addr, Err: err}
		},
	}
}

func AgentMechStrategy(cc contractCaller.IContractCaller) MechStrategy {
	return MechStrategy{
		Name: MechStrategy_AgentMech,
		Lookup: func(ctx context.Context, activityChecker common.Address) MechLookupResult {
			addr, err := cc.GetAgentMech(ctx, activityChecker)
			return MechLookupResult{Address: addr, Err: err}
		},
	}
}

func DefaultStrategy(address common.Address) MechStrategy {
	return MechStrategy{
		Name: MechStrategy_Default,
		Lookup: func(context.Context, common.Address) MechLookupResult {
			return MechLookupResult{Address: address}
		},
	}
}

// NewMechResolver builds the standard chain: marketplace, then agent mech, then the default.
func NewMechResolver(cc contractCaller.IContractCaller, l *zap.Logger) *MechResolver {
	return NewMechResolverWithStrategies(l,
		MarketplaceStrategy(cc),
		AgentMechStrategy(cc),
		DefaultStrategy(DefaultMechAddress),
	)
}

func NewMechResolverWithStrategies(l *zap.Logger, strategies ...MechStrategy) *MechResolver {
	return &MechResolver{
		strategies: strategies,
		logger:     l,
	}
}

// Resolve runs the strategies in order and stops at the first one that returns a non-zero
// address. If every strategy fails the zero address is returned along with all failures.
func (r *MechResolver) Resolve(ctx context.Context, activityChecker common.Address) (common.Address, Resolution) {
	res := Resolution{Failures: make([]StrategyFailure, 0)}
	for _, strategy := range r.strategies {
		result := strategy.Lookup(ctx, activityChecker)
		definitive := contractCaller.IsContractError(result.Err)
		if result.Err == nil && utils.IsZeroAddress(result.Address) {
			result.Err = fmt.Errorf("%s returned the zero address", strategy.Name)
			definitive = true
		}
		if result.Err != nil {
			r.logger.Sugar().Debugw("Mech lookup strategy failed",
				zap.String("strategy", strategy.Name),
				zap.String("activityChecker", activityChecker.Hex()),
				zap.Error(result.Err),
			)
			res.Failures = append(res.Failures, StrategyFailure{Strategy: strategy.Name, Err: result.Err, Definitive: definitive})
			continue
		}
		res.Strategy = strategy.Name
		return result.Address, res
	}
	return common.Address{}, res
}

// Resolved reports whether any strategy succeeded.
func (r Resolution) Resolved() bool {
	return r.Strategy != ""
}

// Stable reports whether the resolved address can be reused on later runs. An address that
// only came from the default after a transient failure of an earlier strategy is not.
func (r Resolution) Stable() bool {
	if !r.Resolved() {
		return false
	}
	if r.Strategy != MechStrategy_Default {
		return true
	}
	for _, f := range r.Failures {
		if !f.Definitive {
			return false
		}
	}
	return true
}

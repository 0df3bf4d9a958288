package lifecycle

import (
	"context"
	"math/big"

	"github.com/OjusWiZard/triton-bot/internal/logger"
	"github.com/OjusWiZard/triton-bot/internal/metrics"
	"github.com/OjusWiZard/triton-bot/internal/metrics/metricsTypes"
	"github.com/OjusWiZard/triton-bot/pkg/contractCaller"
	"github.com/OjusWiZard/triton-bot/pkg/transactor"
	"github.com/OjusWiZard/triton-bot/pkg/types/numbers"
	"github.com/OjusWiZard/triton-bot/pkg/utils"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Target is the slice of a service the pipeline acts on.
type Target struct {
	Name            string
	ServiceId       uint64
	Safe            common.Address
	StakingContract common.Address
	// WithdrawalAddress is the zero address when withdrawals are not configured.
	WithdrawalAddress common.Address
	Signer            *transactor.Signer
}

type State string

const (
	State_Claiming        State = "claiming"
	State_Claimed         State = "claimed"
	State_ClaimFailed     State = "claim_failed"
	State_Withdrawing     State = "withdrawing"
	State_Withdrawn       State = "withdrawn"
	State_WithdrawFailed  State = "withdraw_failed"
	State_WithdrawSkipped State = "withdraw_skipped"
)

// Outcome is the result of one claim/withdraw run. Nil hashes mean no transaction was made.
type Outcome struct {
	ClaimTx    *common.Hash
	WithdrawTx *common.Hash
	Withdrawn  decimal.Decimal
}

func (o Outcome) AmountFloat() float64 {
	f, _ := o.Withdrawn.Float64()
	return f
}

type PipelineConfig struct {
	RewardToken common.Address
}

type Pipeline struct {
	contractCaller contractCaller.IContractCaller
	transactor     transactor.ITransactor
	abis           *contractCaller.Abis
	config         *PipelineConfig
	metricsSink    *metrics.MetricsSink
	logger         *zap.Logger
}

func NewPipeline(
	cc contractCaller.IContractCaller,
	tx transactor.ITransactor,
	cfg *PipelineConfig,
	ms *metrics.MetricsSink,
	l *zap.Logger,
) *Pipeline {
	if ms == nil {
		ms = metrics.NewNoopMetricsSink()
	}
	return &Pipeline{
		contractCaller: cc,
		transactor:     tx,
		abis:           contractCaller.MustParseAbis(),
		config:         cfg,
		metricsSink:    ms,
		logger:         l,
	}
}

func (p *Pipeline) serviceLogger(t Target) *zap.Logger {
	return logger.ForService(p.logger, t.Name).With(zap.Uint64("serviceId", t.ServiceId))
}

func (p *Pipeline) recordAttempt(metric string, t Target, state State) {
	_ = p.metricsSink.Incr(metric, []metricsTypes.MetricsLabel{
		{Name: "service", Value: t.Name},
		{Name: "result", Value: string(state)},
	}, 1)
}

// Claim asks the staking contract to pay out accrued rewards to the service Safe. Failures
// are logged and reported as a nil hash; they never propagate.
func (p *Pipeline) Claim(ctx context.Context, t Target) *common.Hash {
	l := p.serviceLogger(t)
	l.Sugar().Infow("Lifecycle state", zap.String("state", string(State_Claiming)))

	hash, err := p.claim(ctx, t)
	if err != nil {
		l.Sugar().Errorw("Failed to claim rewards",
			zap.String("state", string(State_ClaimFailed)),
			zap.Error(err),
		)
		p.recordAttempt(metricsTypes.Metric_Incr_ClaimAttempt, t, State_ClaimFailed)
		return nil
	}
	l.Sugar().Infow("Lifecycle state",
		zap.String("state", string(State_Claimed)),
		zap.String("txHash", hash.Hex()),
	)
	p.recordAttempt(metricsTypes.Metric_Incr_ClaimAttempt, t, State_Claimed)
	return &hash
}

func (p *Pipeline) claim(ctx context.Context, t Target) (common.Hash, error) {
	if t.Signer == nil {
		return common.Hash{}, errors.New("agent key is not configured")
	}
	data, err := p.abis.StakingToken.Pack("claim", new(big.Int).SetUint64(t.ServiceId))
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "failed to encode claim")
	}
	return p.transactor.Exec(ctx, t.Safe, t.StakingContract, data, t.Signer)
}

// Withdraw transfers the Safe's whole reward token balance to the withdrawal address.
// It returns (nil, 0) when there is nothing to do or anything fails.
func (p *Pipeline) Withdraw(ctx context.Context, t Target) (*common.Hash, decimal.Decimal) {
	l := p.serviceLogger(t)

	if utils.IsZeroAddress(t.WithdrawalAddress) {
		l.Sugar().Infow("Lifecycle state",
			zap.String("state", string(State_WithdrawSkipped)),
			zap.String("reason", "no withdrawal address"),
		)
		return nil, decimal.Zero
	}

	l.Sugar().Infow("Lifecycle state", zap.String("state", string(State_Withdrawing)))
	balance, err := p.contractCaller.GetTokenBalance(ctx, p.config.RewardToken, t.Safe)
	if err != nil {
		l.Sugar().Errorw("Failed to read reward token balance",
			zap.String("state", string(State_WithdrawFailed)),
			zap.Error(err),
		)
		p.recordAttempt(metricsTypes.Metric_Incr_WithdrawAttempt, t, State_WithdrawFailed)
		return nil, decimal.Zero
	}
	if balance.Sign() <= 0 {
		l.Sugar().Infow("Lifecycle state",
			zap.String("state", string(State_WithdrawSkipped)),
			zap.String("reason", "zero balance"),
		)
		return nil, decimal.Zero
	}

	data, err := p.abis.Erc20.Pack("transfer", t.WithdrawalAddress, balance)
	if err != nil {
		l.Sugar().Errorw("Failed to encode transfer", zap.Error(err))
		return nil, decimal.Zero
	}
	if t.Signer == nil {
		l.Sugar().Errorw("Failed to withdraw rewards",
			zap.String("state", string(State_WithdrawFailed)),
			zap.Error(errors.New("agent key is not configured")),
		)
		p.recordAttempt(metricsTypes.Metric_Incr_WithdrawAttempt, t, State_WithdrawFailed)
		return nil, decimal.Zero
	}
	hash, err := p.transactor.Exec(ctx, t.Safe, p.config.RewardToken, data, t.Signer)
	if err != nil {
		l.Sugar().Errorw("Failed to withdraw rewards",
			zap.String("state", string(State_WithdrawFailed)),
			zap.Error(err),
		)
		p.recordAttempt(metricsTypes.Metric_Incr_WithdrawAttempt, t, State_WithdrawFailed)
		return nil, decimal.Zero
	}

	amount := numbers.WeiToUnit(balance)
	l.Sugar().Infow("Lifecycle state",
		zap.String("state", string(State_Withdrawn)),
		zap.String("txHash", hash.Hex()),
		zap.String("amount", amount.String()),
		zap.String("to", t.WithdrawalAddress.Hex()),
	)
	p.recordAttempt(metricsTypes.Metric_Incr_WithdrawAttempt, t, State_Withdrawn)
	return &hash, amount
}

// Run claims and then withdraws for a single service. A failed claim does not stop the
// withdraw, since earlier rewards may already sit in the Safe.
func (p *Pipeline) Run(ctx context.Context, t Target) Outcome {
	claimTx := p.Claim(ctx, t)
	withdrawTx, amount := p.Withdraw(ctx, t)
	return Outcome{
		ClaimTx:    claimTx,
		WithdrawTx: withdrawTx,
		Withdrawn:  amount,
	}
}

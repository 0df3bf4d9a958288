package fleet

import (
	"context"
	"strings"
	"time"

	"github.com/OjusWiZard/triton-bot/internal/config"
	"github.com/OjusWiZard/triton-bot/internal/logger"
	"github.com/OjusWiZard/triton-bot/internal/metrics"
	"github.com/OjusWiZard/triton-bot/internal/metrics/metricsTypes"
	"github.com/OjusWiZard/triton-bot/pkg/contractCaller"
	"github.com/OjusWiZard/triton-bot/pkg/lifecycle"
	"github.com/OjusWiZard/triton-bot/pkg/notifier"
	"github.com/OjusWiZard/triton-bot/pkg/staking"
	"github.com/OjusWiZard/triton-bot/pkg/utils"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"go.uber.org/zap"
)

// SummarySendTimeout bounds the autoclaim summary send, which is detached from the job context.
const SummarySendTimeout = time.Minute

// PriceFeed quotes the reward token in fiat. A nil price without error means unavailable.
type PriceFeed interface {
	GetPrice(ctx context.Context, tokenId string, currency string) (*decimal.Decimal, error)
}

type Fleet struct {
	services       *orderedmap.OrderedMap[string, *Service]
	contractCaller contractCaller.IContractCaller
	statusResolver *staking.EpochStatusResolver
	mechResolver   *staking.MechResolver
	pipeline       *lifecycle.Pipeline
	sink           notifier.Sink
	priceFeed      PriceFeed
	alertPolicy    AlertPolicy
	metricsSink    *metrics.MetricsSink
	config         *config.Config
	rewardToken    common.Address
	programNames   map[common.Address]string
	logger         *zap.Logger
}

func NewFleet(
	cfg *config.Config,
	cc contractCaller.IContractCaller,
	pipeline *lifecycle.Pipeline,
	sink notifier.Sink,
	priceFeed PriceFeed,
	ms *metrics.MetricsSink,
	l *zap.Logger,
) *Fleet {
	if ms == nil {
		ms = metrics.NewNoopMetricsSink()
	}
	programNames := make(map[common.Address]string)
	for _, p := range cfg.StakingPrograms {
		programNames[common.HexToAddress(p.Address)] = p.Name
	}
	return &Fleet{
		services:       orderedmap.New[string, *Service](),
		contractCaller: cc,
		statusResolver: staking.NewEpochStatusResolver(cc, cfg.GetLocation(), l),
		mechResolver:   staking.NewMechResolver(cc, l),
		pipeline:       pipeline,
		sink:           sink,
		priceFeed:      priceFeed,
		alertPolicy:    NewThresholdAlertPolicy(cfg.ThresholdsConfig.AgentBalance, cfg.ThresholdsConfig.SafeBalance),
		metricsSink:    ms,
		config:         cfg,
		rewardToken:    common.HexToAddress(cfg.RewardTokenConfig.Address),
		programNames:   programNames,
		logger:         l,
	}
}

// NewFleetFromConfig builds the fleet and loads every configured service, in file order.
func NewFleetFromConfig(
	cfg *config.Config,
	cc contractCaller.IContractCaller,
	pipeline *lifecycle.Pipeline,
	sink notifier.Sink,
	priceFeed PriceFeed,
	ms *metrics.MetricsSink,
	l *zap.Logger,
) (*Fleet, error) {
	f := NewFleet(cfg, cc, pipeline, sink, priceFeed, ms, l)
	for _, sc := range cfg.Services {
		svc, err := NewServiceFromConfig(sc, nil)
		if err != nil {
			return nil, err
		}
		if err := f.AddService(svc); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func (f *Fleet) SetAlertPolicy(p AlertPolicy) {
	f.alertPolicy = p
}

func (f *Fleet) AddService(svc *Service) error {
	if _, exists := f.services.Get(svc.Name); exists {
		return errors.Errorf("duplicate service name %q", svc.Name)
	}
	f.services.Set(svc.Name, svc)
	f.logger.Sugar().Infow("Loaded service",
		zap.String("service", svc.Name),
		zap.Uint64("serviceId", svc.ServiceId),
		zap.String("safe", svc.Safe.Hex()),
		zap.Bool("canTransact", svc.Signer != nil),
	)
	return nil
}

// Services returns the services in load order.
func (f *Fleet) Services() []*Service {
	out := make([]*Service, 0, f.services.Len())
	for pair := f.services.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

func (f *Fleet) Len() int {
	return f.services.Len()
}

func runForServices[T any](ctx context.Context, f *Fleet, fn func(ctx context.Context, svc *Service) (T, error)) []TaskResult[T] {
	return runAll(ctx, f.Services(), f.config.SchedulerConfig.MaxConcurrency, f.config.SchedulerConfig.ServiceTimeout, f.logger, fn)
}

func (f *Fleet) activityChecker(ctx context.Context, svc *Service) (common.Address, error) {
	if a, ok := svc.cachedActivityChecker(); ok {
		return a, nil
	}
	a, err := f.contractCaller.GetActivityChecker(ctx, svc.StakingContract)
	if err != nil {
		return common.Address{}, errors.Wrap(err, "failed to read activity checker")
	}
	if utils.IsZeroAddress(a) {
		return common.Address{}, errors.New("staking contract has no activity checker")
	}
	svc.setActivityChecker(a)
	return a, nil
}

// mechContract resolves the mech through the fallback chain. Only a stable resolution is
// cached; a default picked after a transport error is used for this run and retried next time.
func (f *Fleet) mechContract(ctx context.Context, svc *Service, activityChecker common.Address) (common.Address, error) {
	if m, ok := svc.cachedMech(); ok {
		return m, nil
	}
	mech, res := f.mechResolver.Resolve(ctx, activityChecker)
	if !res.Resolved() {
		return common.Address{}, errors.Errorf("could not resolve mech contract for %s", svc.Name)
	}
	l := logger.ForService(f.logger, svc.Name)
	if !res.Stable() {
		l.Sugar().Warnw("Using the default mech contract for this run",
			zap.String("mech", mech.Hex()),
			zap.Int("failures", len(res.Failures)),
		)
		return mech, nil
	}
	l.Sugar().Infow("Resolved mech contract",
		zap.String("mech", mech.Hex()),
		zap.String("strategy", res.Strategy),
	)
	svc.setMech(mech)
	return mech, nil
}

type ServiceStatus struct {
	Service *Service
	Status  *staking.EpochStatus
	Program string
	Err     error
}

// StakingStatus resolves the epoch status of every service. A failing service is reported
// with Err set; it does not affect the others.
func (f *Fleet) StakingStatus(ctx context.Context) []ServiceStatus {
	results := runForServices(ctx, f, func(ctx context.Context, svc *Service) (*staking.EpochStatus, error) {
		checker, err := f.activityChecker(ctx, svc)
		if err != nil {
			return nil, err
		}
		mech, err := f.mechContract(ctx, svc, checker)
		if err != nil {
			return nil, err
		}
		return f.statusResolver.Resolve(ctx, staking.StatusRequest{
			StakingContract: svc.StakingContract,
			ActivityChecker: checker,
			MechContract:    mech,
			ServiceId:       svc.ServiceId,
			Safe:            svc.Safe,
		})
	})

	statuses := make([]ServiceStatus, 0, len(results))
	for _, r := range results {
		if r.Err != nil {
			f.logger.Sugar().Errorw("Failed to get staking status",
				zap.String("service", r.Service.Name),
				zap.Error(r.Err),
			)
			_ = f.metricsSink.Incr(metricsTypes.Metric_Incr_StatusFailure, []metricsTypes.MetricsLabel{
				{Name: "service", Value: r.Service.Name},
			}, 1)
		}
		statuses = append(statuses, ServiceStatus{
			Service: r.Service,
			Status:  r.Value,
			Program: f.programNames[r.Service.StakingContract],
			Err:     r.Err,
		})
	}
	return statuses
}

type ServiceBalances struct {
	Service  *Service
	Balances *BalanceSnapshot
	Err      error
}

func (f *Fleet) Balances(ctx context.Context) []ServiceBalances {
	results := runForServices(ctx, f, f.readBalances)
	out := make([]ServiceBalances, 0, len(results))
	for _, r := range results {
		if r.Err != nil {
			f.logger.Sugar().Errorw("Failed to read balances",
				zap.String("service", r.Service.Name),
				zap.Error(r.Err),
			)
		} else {
			f.recordBalances(r.Service, r.Value)
		}
		out = append(out, ServiceBalances{Service: r.Service, Balances: r.Value, Err: r.Err})
	}
	return out
}

func (f *Fleet) recordBalances(svc *Service, b *BalanceSnapshot) {
	gauge := func(wallet Wallet, value decimal.Decimal) {
		v, _ := value.Float64()
		_ = f.metricsSink.Gauge(metricsTypes.Metric_Gauge_ServiceBalance, v, []metricsTypes.MetricsLabel{
			{Name: "service", Value: svc.Name},
			{Name: "wallet", Value: string(wallet)},
		})
	}
	gauge(Wallet_Agent, b.AgentNativeUnits())
	gauge(Wallet_Safe, b.SafeNativeUnits())
}

// BalanceCheck reads every service's balances and sends one message per breached
// threshold. Alerts are not de-duplicated across runs.
func (f *Fleet) BalanceCheck(ctx context.Context) error {
	f.logger.Sugar().Infow("Running balance check task", zap.Int("services", f.Len()))
	_ = f.metricsSink.Incr(metricsTypes.Metric_Incr_BalanceCheckRun, nil, 1)

	var sendErrs []error
	for _, sb := range f.Balances(ctx) {
		if sb.Err != nil {
			continue
		}
		for _, alert := range f.alertPolicy.Evaluate(sb.Service, sb.Balances) {
			msg := f.formatAlert(sb.Service, alert)
			if err := f.sink.SendMessage(ctx, msg, notifier.Format_MarkdownV2); err != nil {
				f.logger.Sugar().Errorw("Failed to send balance alert",
					zap.String("service", sb.Service.Name),
					zap.Error(err),
				)
				sendErrs = append(sendErrs, err)
				continue
			}
			_ = f.metricsSink.Incr(metricsTypes.Metric_Incr_AlertSent, []metricsTypes.MetricsLabel{
				{Name: "service", Value: sb.Service.Name},
				{Name: "wallet", Value: string(alert.Wallet)},
			}, 1)
		}
	}
	if len(sendErrs) > 0 {
		return errors.Errorf("failed to send %d balance alerts", len(sendErrs))
	}
	return nil
}

type claimResult struct {
	Service *Service
	TxHash  *common.Hash
}

// claimAll claims for every service and waits for all of them.
func (f *Fleet) claimAll(ctx context.Context) []claimResult {
	results := runForServices(ctx, f, func(ctx context.Context, svc *Service) (*common.Hash, error) {
		return f.pipeline.Claim(ctx, svc.Target()), nil
	})
	out := make([]claimResult, 0, len(results))
	for _, r := range results {
		out = append(out, claimResult{Service: r.Service, TxHash: r.Value})
	}
	return out
}

type WithdrawResult struct {
	Service *Service
	TxHash  *common.Hash
	Amount  decimal.Decimal
}

func (f *Fleet) withdrawAll(ctx context.Context) []WithdrawResult {
	results := runForServices(ctx, f, func(ctx context.Context, svc *Service) (WithdrawResult, error) {
		hash, amount := f.pipeline.Withdraw(ctx, svc.Target())
		return WithdrawResult{Service: svc, TxHash: hash, Amount: amount}, nil
	})
	out := make([]WithdrawResult, 0, len(results))
	for _, r := range results {
		if r.Err != nil {
			// only a panic or timeout gets here
			out = append(out, WithdrawResult{Service: r.Service, Amount: decimal.Zero})
			continue
		}
		out = append(out, r.Value)
	}
	return out
}

// Autoclaim claims for every service, then withdraws for every service, then sends a single
// summary. No withdraw starts before every claim has finished.
func (f *Fleet) Autoclaim(ctx context.Context) error {
	f.logger.Sugar().Infow("Running autoclaim task")
	if !f.config.SchedulerConfig.AutoclaimEnabled {
		f.logger.Sugar().Infow("Autoclaim task is disabled")
		return nil
	}
	if f.Len() == 0 {
		f.logger.Sugar().Infow("No services to autoclaim")
		return nil
	}

	f.claimAll(ctx)
	withdrawals := f.withdrawAll(ctx)

	lines := make([]string, 0, len(withdrawals))
	for _, w := range withdrawals {
		lines = append(lines, f.formatWithdrawal(w, true))
	}
	// transactions are already broadcast, so the summary goes out even if the job ran out of time
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), SummarySendTimeout)
	defer cancel()
	return f.sink.SendMessage(sendCtx, strings.Join(lines, "\n\n"), notifier.Format_MarkdownV2)
}

// ManualClaim claims for every service and reports the sent transactions.
func (f *Fleet) ManualClaim(ctx context.Context) (string, notifier.Format) {
	if !f.config.SchedulerConfig.ManualClaimEnabled {
		return "Manual claim is disabled", notifier.Format_Plain
	}
	lines := make([]string, 0)
	for _, c := range f.claimAll(ctx) {
		if c.TxHash == nil {
			continue
		}
		lines = append(lines, f.formatClaim(c))
	}
	if len(lines) == 0 {
		return "No claim transactions were sent", notifier.Format_Plain
	}
	return strings.Join(lines, "\n"), notifier.Format_MarkdownV2
}

// ManualWithdraw withdraws for every service and reports one line per service.
func (f *Fleet) ManualWithdraw(ctx context.Context) (string, notifier.Format) {
	withdrawals := f.withdrawAll(ctx)
	lines := make([]string, 0, len(withdrawals))
	for _, w := range withdrawals {
		lines = append(lines, f.formatWithdrawal(w, false))
	}
	return strings.Join(lines, "\n\n"), notifier.Format_MarkdownV2
}

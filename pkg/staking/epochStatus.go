package staking

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/OjusWiZard/triton-bot/pkg/contractCaller"
	"github.com/OjusWiZard/triton-bot/pkg/types/numbers"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// EpochStatus is a point-in-time view of a service's standing in the current staking epoch.
type EpochStatus struct {
	// Rewards accrued and not yet claimed, in base units.
	Rewards *big.Int
	// RewardsFormatted is Rewards in token units with two decimals, e.g. "1.00".
	RewardsFormatted string
	// MechRequestsThisEpoch may be negative if the request counter was reset on-chain.
	MechRequestsThisEpoch int64
	RequiredRequests      int64
	EpochEnd              time.Time
}

type StatusRequest struct {
	StakingContract common.Address
	ActivityChecker common.Address
	MechContract    common.Address
	ServiceId       uint64
	Safe            common.Address
}

type EpochStatusResolver struct {
	contractCaller contractCaller.IContractCaller
	location       *time.Location
	logger         *zap.Logger
}

func NewEpochStatusResolver(cc contractCaller.IContractCaller, location *time.Location, l *zap.Logger) *EpochStatusResolver {
	if location == nil {
		location = time.UTC
	}
	return &EpochStatusResolver{
		contractCaller: cc,
		location:       location,
		logger:         l,
	}
}

// RequiredRequests converts the activity checker's liveness ratio (requests per second
// scaled by 1e18) into the number of requests needed per day, rounded up.
func RequiredRequests(livenessRatio *big.Int) *big.Int {
	if livenessRatio == nil || livenessRatio.Sign() <= 0 {
		return big.NewInt(0)
	}
	perDay := new(big.Int).Mul(livenessRatio, numbers.SecondsPerDay)
	return numbers.CeilDiv(perDay, numbers.Ether)
}

// EpochEnd is the checkpoint timestamp plus the liveness period, in whole seconds.
func EpochEnd(tsCheckpoint *big.Int, livenessPeriod *big.Int, location *time.Location) time.Time {
	end := new(big.Int).Add(tsCheckpoint, livenessPeriod)
	return time.Unix(end.Int64(), 0).In(location)
}

// LastCheckpointRequests returns the request count recorded at the last checkpoint, which the
// staking contract stores as the second entry of the service's nonces.
func LastCheckpointRequests(info *contractCaller.ServiceInfo) *big.Int {
	if info == nil || len(info.Nonces) < 2 || info.Nonces[1] == nil {
		return big.NewInt(0)
	}
	return info.Nonces[1]
}

func (r *EpochStatusResolver) Resolve(ctx context.Context, req StatusRequest) (*EpochStatus, error) {
	cc := r.contractCaller

	reward, err := cc.GetServiceReward(ctx, req.StakingContract, req.ServiceId)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read service reward")
	}

	totalRequests, err := cc.GetRequestsCount(ctx, req.MechContract, req.Safe)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read mech requests count")
	}

	info, err := cc.GetServiceInfo(ctx, req.StakingContract, req.ServiceId)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read service info")
	}
	thisEpoch := new(big.Int).Sub(totalRequests, LastCheckpointRequests(info))

	ratio, err := cc.GetLivenessRatio(ctx, req.ActivityChecker)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read liveness ratio")
	}

	period, err := cc.GetLivenessPeriod(ctx, req.StakingContract)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read liveness period")
	}
	checkpoint, err := cc.GetTsCheckpoint(ctx, req.StakingContract)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read checkpoint timestamp")
	}

	status := &EpochStatus{
		Rewards:               reward,
		RewardsFormatted:      numbers.FormatUnits(reward, 2),
		MechRequestsThisEpoch: thisEpoch.Int64(),
		RequiredRequests:      RequiredRequests(ratio).Int64(),
		EpochEnd:              EpochEnd(checkpoint, period, r.location),
	}
	r.logger.Sugar().Debugw("Resolved epoch status",
		zap.Uint64("serviceId", req.ServiceId),
		zap.String("rewards", status.RewardsFormatted),
		zap.Int64("requests", status.MechRequestsThisEpoch),
		zap.Int64("required", status.RequiredRequests),
		zap.Time("epochEnd", status.EpochEnd),
	)
	return status, nil
}

// Progress renders the "[done/required]" counter shown next to a service.
func (s *EpochStatus) Progress() string {
	return fmt.Sprintf("[%d/%d]", s.MechRequestsThisEpoch, s.RequiredRequests)
}

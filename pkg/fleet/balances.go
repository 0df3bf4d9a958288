package fleet

import (
	"context"
	"math/big"

	"github.com/OjusWiZard/triton-bot/pkg/types/numbers"
	"github.com/OjusWiZard/triton-bot/pkg/utils"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type Wallet string

const (
	Wallet_Agent      Wallet = "agent"
	Wallet_Safe       Wallet = "safe"
	Wallet_MasterEoa  Wallet = "master_eoa"
	Wallet_MasterSafe Wallet = "master_safe"
)

// BalanceSnapshot holds fresh balances of one service. Master wallet balances are nil when
// the addresses are not configured.
type BalanceSnapshot struct {
	AgentNative      *big.Int
	SafeNative       *big.Int
	SafeRewardToken  *big.Int
	MasterEoaNative  *big.Int
	MasterSafeNative *big.Int
}

func (b *BalanceSnapshot) AgentNativeUnits() decimal.Decimal {
	return numbers.WeiToUnit(b.AgentNative)
}

func (b *BalanceSnapshot) SafeNativeUnits() decimal.Decimal {
	return numbers.WeiToUnit(b.SafeNative)
}

func (f *Fleet) readBalances(ctx context.Context, svc *Service) (*BalanceSnapshot, error) {
	cc := f.contractCaller
	snapshot := &BalanceSnapshot{}
	var err error

	if snapshot.AgentNative, err = cc.GetNativeBalance(ctx, svc.Agent); err != nil {
		return nil, errors.Wrap(err, "failed to read agent balance")
	}
	if snapshot.SafeNative, err = cc.GetNativeBalance(ctx, svc.Safe); err != nil {
		return nil, errors.Wrap(err, "failed to read safe balance")
	}
	if snapshot.SafeRewardToken, err = cc.GetTokenBalance(ctx, f.rewardToken, svc.Safe); err != nil {
		return nil, errors.Wrap(err, "failed to read safe reward token balance")
	}
	if !utils.IsZeroAddress(svc.MasterEoa) {
		if snapshot.MasterEoaNative, err = cc.GetNativeBalance(ctx, svc.MasterEoa); err != nil {
			return nil, errors.Wrap(err, "failed to read master EOA balance")
		}
	}
	if !utils.IsZeroAddress(svc.MasterSafe) {
		if snapshot.MasterSafeNative, err = cc.GetNativeBalance(ctx, svc.MasterSafe); err != nil {
			return nil, errors.Wrap(err, "failed to read master safe balance")
		}
	}
	return snapshot, nil
}

type Alert struct {
	Wallet    Wallet
	Balance   decimal.Decimal
	Threshold decimal.Decimal
}

// AlertPolicy decides which wallets of a service need attention.
type AlertPolicy interface {
	Evaluate(svc *Service, snapshot *BalanceSnapshot) []Alert
}

// ThresholdAlertPolicy raises one alert per native balance below its threshold.
type ThresholdAlertPolicy struct {
	AgentThreshold decimal.Decimal
	SafeThreshold  decimal.Decimal
}

func NewThresholdAlertPolicy(agentThreshold float64, safeThreshold float64) *ThresholdAlertPolicy {
	return &ThresholdAlertPolicy{
		AgentThreshold: decimal.NewFromFloat(agentThreshold),
		SafeThreshold:  decimal.NewFromFloat(safeThreshold),
	}
}

func (p *ThresholdAlertPolicy) Evaluate(svc *Service, snapshot *BalanceSnapshot) []Alert {
	alerts := make([]Alert, 0, 2)
	if agent := snapshot.AgentNativeUnits(); agent.LessThan(p.AgentThreshold) {
		alerts = append(alerts, Alert{Wallet: Wallet_Agent, Balance: agent, Threshold: p.AgentThreshold})
	}
	if safe := snapshot.SafeNativeUnits(); safe.LessThan(p.SafeThreshold) {
		alerts = append(alerts, Alert{Wallet: Wallet_Safe, Balance: safe, Threshold: p.SafeThreshold})
	}
	return alerts
}

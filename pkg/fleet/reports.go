package fleet

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/OjusWiZard/triton-bot/pkg/notifier"
	"github.com/OjusWiZard/triton-bot/pkg/staking"
	"github.com/OjusWiZard/triton-bot/pkg/types/numbers"
	"github.com/OjusWiZard/triton-bot/pkg/utils"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const epochTimeLayout = "2006-01-02 15:04:05 MST"

// StatusReport renders the staking status of every service as plain text, followed by the
// total accrued rewards and their fiat value when the price feed answers.
func (f *Fleet) StatusReport(ctx context.Context) string {
	statuses := f.StakingStatus(ctx)
	symbol := f.config.RewardTokenConfig.Symbol

	blocks := make([]string, 0, len(statuses)+1)
	total := big.NewInt(0)
	for _, s := range statuses {
		if s.Err != nil {
			blocks = append(blocks, fmt.Sprintf("[%s] status unavailable", s.Service.Name))
			continue
		}
		total.Add(total, s.Status.Rewards)

		lines := []string{fmt.Sprintf("[%s] %s %s %s", s.Service.Name, s.Status.RewardsFormatted, symbol, s.Status.Progress())}
		if s.Program != "" {
			lines = append(lines, fmt.Sprintf("Staking program: %s", s.Program))
		}
		lines = append(lines, fmt.Sprintf("Next epoch: %s", s.Status.EpochEnd.Format(epochTimeLayout)))
		blocks = append(blocks, strings.Join(lines, "\n"))
	}

	totalLine := fmt.Sprintf("Total rewards = %s %s", numbers.FormatUnits(total, 2), symbol)
	if value, ok := f.fiatValue(ctx, numbers.WeiToUnit(total)); ok {
		totalLine = fmt.Sprintf("%s [$%s]", totalLine, value.StringFixed(2))
	}
	blocks = append(blocks, totalLine)
	return strings.Join(blocks, "\n\n")
}

// fiatValue converts an amount of reward tokens to fiat. A failing price feed is logged and
// only drops the conversion.
func (f *Fleet) fiatValue(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, bool) {
	if f.priceFeed == nil {
		return decimal.Zero, false
	}
	cg := f.config.CoingeckoConfig
	price, err := f.priceFeed.GetPrice(ctx, cg.TokenId, cg.Currency)
	if err != nil {
		f.logger.Sugar().Warnw("Failed to get reward token price", zap.Error(err))
		return decimal.Zero, false
	}
	if price == nil {
		return decimal.Zero, false
	}
	return amount.Mul(*price), true
}

func (f *Fleet) addressLink(label string, address common.Address) string {
	return notifier.Link(label, f.config.AddressUrl(address.Hex()))
}

func (f *Fleet) txLink(label string, hash common.Hash) string {
	return notifier.Link(label, f.config.TxUrl(hash.Hex()))
}

func (f *Fleet) nativeAmount(wei *big.Int) string {
	return notifier.EscapeMarkdownV2(fmt.Sprintf("%s %s",
		numbers.FormatSignificant(numbers.WeiToUnit(wei)), f.config.EthereumRpcConfig.NativeSymbol))
}

func (f *Fleet) tokenAmount(amount decimal.Decimal) string {
	return notifier.EscapeMarkdownV2(fmt.Sprintf("%s %s",
		numbers.FormatSignificant(amount), f.config.RewardTokenConfig.Symbol))
}

func serviceTag(svc *Service) string {
	return notifier.EscapeMarkdownV2(fmt.Sprintf("[%s]", svc.Name))
}

// BalanceReport renders the balances of every wallet of every service, in MarkdownV2.
func (f *Fleet) BalanceReport(ctx context.Context) string {
	blocks := make([]string, 0, f.Len())
	for _, sb := range f.Balances(ctx) {
		if sb.Err != nil {
			blocks = append(blocks, fmt.Sprintf("%s balances unavailable", serviceTag(sb.Service)))
			continue
		}
		blocks = append(blocks, f.formatBalances(sb.Service, sb.Balances))
	}
	return strings.Join(blocks, "\n\n")
}

func (f *Fleet) formatBalances(svc *Service, b *BalanceSnapshot) string {
	lines := []string{
		serviceTag(svc),
		fmt.Sprintf("%s = %s", f.addressLink("Agent EOA", svc.Agent), f.nativeAmount(b.AgentNative)),
		fmt.Sprintf("%s = %s  %s", f.addressLink("Service Safe", svc.Safe),
			f.nativeAmount(b.SafeNative), f.tokenAmount(numbers.WeiToUnit(b.SafeRewardToken))),
	}
	if b.MasterEoaNative != nil {
		lines = append(lines, fmt.Sprintf("%s = %s", f.addressLink("Master EOA", svc.MasterEoa), f.nativeAmount(b.MasterEoaNative)))
	}
	if b.MasterSafeNative != nil {
		lines = append(lines, fmt.Sprintf("%s = %s", f.addressLink("Master Safe", svc.MasterSafe), f.nativeAmount(b.MasterSafeNative)))
	}
	return strings.Join(lines, "\n")
}

func (f *Fleet) formatAlert(svc *Service, alert Alert) string {
	label, address := "Agent EOA", svc.Agent
	if alert.Wallet == Wallet_Safe {
		label, address = "Service Safe", svc.Safe
	}
	balance := notifier.EscapeMarkdownV2(fmt.Sprintf("%s %s",
		numbers.FormatSignificant(alert.Balance), f.config.EthereumRpcConfig.NativeSymbol))
	return fmt.Sprintf("%s %s balance is %s", serviceTag(svc), f.addressLink(label, address), balance)
}

func (f *Fleet) formatClaim(c claimResult) string {
	return fmt.Sprintf("%s Sent the %s%s", serviceTag(c.Service), f.txLink("claim transaction", *c.TxHash),
		notifier.EscapeMarkdownV2(". Rewards will be sent to the Service Safe."))
}

func (f *Fleet) formatWithdrawal(w WithdrawResult, auto bool) string {
	prefix := serviceTag(w.Service)
	from := "Service Safe"
	if auto {
		prefix = notifier.EscapeMarkdownV2("(Autoclaim) ") + prefix
		from = "Safe"
	}
	if w.TxHash == nil {
		return fmt.Sprintf("%s Cannot withdraw rewards", prefix)
	}
	return fmt.Sprintf("%s Sent the %s%s %s sent from the %s to %s %s",
		prefix,
		f.txLink("withdrawal transaction", *w.TxHash),
		notifier.EscapeMarkdownV2("."),
		f.tokenAmount(w.Amount),
		from,
		f.addressLink(utils.ShortAddress(w.Service.WithdrawalAddress), w.Service.WithdrawalAddress),
		notifier.EscapeMarkdownV2("#withdraw"),
	)
}

// SlotsReport renders the free slots of every configured staking program as plain text.
func (f *Fleet) SlotsReport(ctx context.Context) string {
	programs := make([]staking.StakingProgram, 0, len(f.config.StakingPrograms))
	for _, p := range f.config.StakingPrograms {
		programs = append(programs, staking.StakingProgram{
			Name:    p.Name,
			Address: common.HexToAddress(p.Address),
			Slots:   p.Slots,
		})
	}

	lines := make([]string, 0, len(programs))
	for _, ps := range staking.NewSlotsReader(f.contractCaller, f.logger).AvailableSlots(ctx, programs) {
		if ps.Err != nil {
			lines = append(lines, fmt.Sprintf("[%s] slots unavailable", ps.Program.Name))
			continue
		}
		lines = append(lines, fmt.Sprintf("[%s] %d available slots", ps.Program.Name, ps.Available))
	}
	return strings.Join(lines, "\n")
}

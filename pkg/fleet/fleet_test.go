package fleet

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/OjusWiZard/triton-bot/internal/config"
	"github.com/OjusWiZard/triton-bot/internal/tests"
	"github.com/OjusWiZard/triton-bot/pkg/contractCaller"
	"github.com/OjusWiZard/triton-bot/pkg/lifecycle"
	"github.com/OjusWiZard/triton-bot/pkg/notifier"
	"github.com/OjusWiZard/triton-bot/pkg/staking"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	rewardToken     = common.HexToAddress(config.DefaultGnosisRewardToken)
	stakingContract = common.HexToAddress("0x389b46c259631acd6a69bde8b6cee218230bae8c")
	activityChecker = common.HexToAddress("0x2222222222222222222222222222222222222222")
	marketplace     = common.HexToAddress("0x3333333333333333333333333333333333333333")
	withdrawTo      = common.HexToAddress("0x6666666666666666666666666666666666666666")
	safeA           = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	safeB           = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
)

type sentMessage struct {
	text   string
	format notifier.Format
	ctxErr error
}

type recordingSink struct {
	mu       sync.Mutex
	messages []sentMessage
}

func (r *recordingSink) SendMessage(ctx context.Context, text string, format notifier.Format) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, sentMessage{text: text, format: format, ctxErr: ctx.Err()})
	return nil
}

func (r *recordingSink) Messages() []sentMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]sentMessage, len(r.messages))
	copy(out, r.messages)
	return out
}

type fixedPrice struct {
	price *decimal.Decimal
	err   error
}

func (p *fixedPrice) GetPrice(ctx context.Context, tokenId string, currency string) (*decimal.Decimal, error) {
	return p.price, p.err
}

func tokens(whole int64, tenths int64) *big.Int {
	wei := new(big.Int).Mul(big.NewInt(whole*10+tenths), big.NewInt(100_000_000_000_000_000))
	return wei
}

func newService(name string, id uint64, safe common.Address) *Service {
	signer := tests.TestSigner()
	return &Service{
		Name:              name,
		ServiceId:         id,
		Safe:              safe,
		Agent:             signer.Address,
		StakingContract:   stakingContract,
		WithdrawalAddress: withdrawTo,
		Signer:            signer,
	}
}

type fixture struct {
	fleet *Fleet
	cc    *tests.FakeContractCaller
	tx    *tests.FakeTransactor
	sink  *recordingSink
	cfg   *config.Config
	a     *Service
	b     *Service
}

func setup(t *testing.T, mutate func(cfg *config.Config)) *fixture {
	cfg := tests.GetConfig()
	cfg.StakingPrograms = []config.StakingProgramConfig{
		{Name: "Hobbyist (100 OLAS)", Address: stakingContract.Hex(), Slots: 100},
	}
	if mutate != nil {
		mutate(cfg)
	}
	l := tests.GetLogger(t)

	cc := tests.NewFakeContractCaller()
	cc.ActivityCheckers[stakingContract] = activityChecker
	cc.Marketplaces[activityChecker] = marketplace

	tx := tests.NewFakeTransactor()
	pipeline := lifecycle.NewPipeline(cc, tx, &lifecycle.PipelineConfig{RewardToken: rewardToken}, nil, l)
	sink := &recordingSink{}
	price := decimal.NewFromFloat(2.5)

	f := NewFleet(cfg, cc, pipeline, sink, &fixedPrice{price: &price}, nil, l)
	a := newService("alice", 1, safeA)
	b := newService("bob", 2, safeB)
	require.NoError(t, f.AddService(a))
	require.NoError(t, f.AddService(b))

	return &fixture{fleet: f, cc: cc, tx: tx, sink: sink, cfg: cfg, a: a, b: b}
}

func Test_AddService(t *testing.T) {
	fx := setup(t, nil)

	err := fx.fleet.AddService(newService("alice", 9, safeA))
	assert.Error(t, err)

	names := make([]string, 0)
	for _, s := range fx.fleet.Services() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"alice", "bob"}, names)
}

func Test_StatusReport(t *testing.T) {
	t.Run("Renders the epoch status and the fiat total", func(t *testing.T) {
		fx := setup(t, nil)
		fx.cc.Rewards[1] = tokens(1, 0)
		fx.cc.RequestsCounts[safeA] = big.NewInt(126)
		fx.cc.ServiceInfos[1] = &contractCaller.ServiceInfo{Nonces: []*big.Int{big.NewInt(1), big.NewInt(93)}}
		fx.cc.LivenessRatios[activityChecker] = big.NewInt(462962962962960)
		fx.cc.TsCheckpoint = big.NewInt(1700000000)
		fx.cc.SetFailure("GetRequestsCount", safeB, fmt.Errorf("connection refused"))

		report := fx.fleet.StatusReport(context.Background())

		expected := strings.Join([]string{
			"[alice] 1.00 OLAS [33/40]\nStaking program: Hobbyist (100 OLAS)\nNext epoch: 2023-11-15 22:13:20 UTC",
			"[bob] status unavailable",
			"Total rewards = 1.00 OLAS [$2.50]",
		}, "\n\n")
		assert.Equal(t, expected, report)
	})
	t.Run("Omits the fiat value when the price is unavailable", func(t *testing.T) {
		fx := setup(t, nil)
		fx.fleet.priceFeed = &fixedPrice{err: fmt.Errorf("timeout")}

		report := fx.fleet.StatusReport(context.Background())
		assert.True(t, strings.HasSuffix(report, "Total rewards = 0.00 OLAS"), report)
	})
	t.Run("Caches the mech after the first resolution", func(t *testing.T) {
		fx := setup(t, nil)

		fx.fleet.StakingStatus(context.Background())
		fx.fleet.StakingStatus(context.Background())

		assert.Equal(t, 2, fx.cc.Calls("GetMechMarketplace"))
		assert.Equal(t, 2, fx.cc.Calls("GetActivityChecker"))
		m, ok := fx.a.cachedMech()
		assert.True(t, ok)
		assert.Equal(t, marketplace, m)
	})
	t.Run("Does not cache the default mech after a transport error", func(t *testing.T) {
		fx := setup(t, nil)
		fx.cc.SetFailure("GetMechMarketplace", activityChecker, fmt.Errorf("dial tcp: connection refused"))
		fx.cc.SetFailure("GetAgentMech", activityChecker, fmt.Errorf("dial tcp: connection refused"))

		fx.fleet.StakingStatus(context.Background())
		_, ok := fx.a.cachedMech()
		assert.False(t, ok)

		delete(fx.cc.FailFor, "GetMechMarketplace")
		delete(fx.cc.FailFor, "GetAgentMech")

		fx.fleet.StakingStatus(context.Background())
		m, ok := fx.a.cachedMech()
		assert.True(t, ok)
		assert.Equal(t, marketplace, m)
	})
	t.Run("Caches the default mech when the checker has no mech getters", func(t *testing.T) {
		fx := setup(t, nil)
		delete(fx.cc.Marketplaces, activityChecker)

		fx.fleet.StakingStatus(context.Background())
		m, ok := fx.a.cachedMech()
		assert.True(t, ok)
		assert.Equal(t, staking.DefaultMechAddress, m)
	})
}

func Test_BalanceCheck(t *testing.T) {
	t.Run("Sends exactly one alert when only the agent is low", func(t *testing.T) {
		fx := setup(t, nil)
		fx.cc.NativeBalances[fx.a.Agent] = new(big.Int).Div(tokens(0, 1), big.NewInt(2))
		fx.cc.NativeBalances[safeA] = tokens(2, 0)
		fx.cc.NativeBalances[fx.b.Agent] = tokens(1, 0)
		fx.cc.NativeBalances[safeB] = tokens(5, 0)

		require.NoError(t, fx.fleet.BalanceCheck(context.Background()))

		messages := fx.sink.Messages()
		require.Len(t, messages, 1)
		assert.Equal(t, notifier.Format_MarkdownV2, messages[0].format)
		assert.Equal(t,
			fmt.Sprintf("\\[alice\\] [Agent EOA](https://gnosisscan.io/address/%s) balance is 0\\.05 xDAI", fx.a.Agent.Hex()),
			messages[0].text,
		)
	})
	t.Run("Alerts on both wallets", func(t *testing.T) {
		fx := setup(t, nil)
		fx.cc.NativeBalances[fx.b.Agent] = tokens(1, 0)
		fx.cc.NativeBalances[safeB] = tokens(5, 0)

		require.NoError(t, fx.fleet.BalanceCheck(context.Background()))

		messages := fx.sink.Messages()
		require.Len(t, messages, 2)
		assert.Contains(t, messages[0].text, "Agent EOA")
		assert.Contains(t, messages[1].text, "Service Safe")
	})
	t.Run("Uses the configured alert policy", func(t *testing.T) {
		fx := setup(t, nil)
		fx.fleet.SetAlertPolicy(NewThresholdAlertPolicy(0, 0))

		require.NoError(t, fx.fleet.BalanceCheck(context.Background()))
		assert.Empty(t, fx.sink.Messages())
	})
	t.Run("A failing service does not stop the others", func(t *testing.T) {
		fx := setup(t, nil)
		fx.cc.SetFailure("GetNativeBalance", fx.a.Agent, fmt.Errorf("connection refused"))

		require.NoError(t, fx.fleet.BalanceCheck(context.Background()))

		messages := fx.sink.Messages()
		require.Len(t, messages, 2)
		for _, m := range messages {
			assert.Contains(t, m.text, "\\[bob\\]")
		}
	})
}

func Test_BalanceReport(t *testing.T) {
	fx := setup(t, nil)
	fx.a.MasterEoa = common.HexToAddress("0x4444444444444444444444444444444444444444")
	fx.cc.NativeBalances[fx.a.Agent] = tokens(0, 5)
	fx.cc.NativeBalances[safeA] = tokens(2, 5)
	fx.cc.SetTokenBalance(safeA, tokens(12, 0))
	fx.cc.NativeBalances[fx.a.MasterEoa] = tokens(3, 0)
	fx.cc.SetFailure("GetTokenBalance", safeB, fmt.Errorf("connection refused"))

	report := fx.fleet.BalanceReport(context.Background())
	blocks := strings.Split(report, "\n\n")
	require.Len(t, blocks, 2)

	assert.Equal(t, strings.Join([]string{
		"\\[alice\\]",
		fmt.Sprintf("[Agent EOA](https://gnosisscan.io/address/%s) = 0\\.5 xDAI", fx.a.Agent.Hex()),
		fmt.Sprintf("[Service Safe](https://gnosisscan.io/address/%s) = 2\\.5 xDAI  12 OLAS", safeA.Hex()),
		fmt.Sprintf("[Master EOA](https://gnosisscan.io/address/%s) = 3 xDAI", fx.a.MasterEoa.Hex()),
	}, "\n"), blocks[0])
	assert.Equal(t, "\\[bob\\] balances unavailable", blocks[1])
}

func Test_ManualClaim(t *testing.T) {
	t.Run("A failed claim does not prevent the next one", func(t *testing.T) {
		fx := setup(t, nil)
		fx.tx.FailFor[safeA] = fmt.Errorf("execution reverted")

		text, format := fx.fleet.ManualClaim(context.Background())

		calls := fx.tx.Calls()
		require.Len(t, calls, 1)
		assert.Equal(t, safeB, calls[0].Safe)
		assert.Equal(t, notifier.Format_MarkdownV2, format)
		assert.NotContains(t, text, "alice")
		assert.Contains(t, text, "\\[bob\\] Sent the [claim transaction](https://gnosisscan.io/tx/0x")
		assert.True(t, strings.HasSuffix(text, "\\. Rewards will be sent to the Service Safe\\."), text)
	})
	t.Run("Reports when manual claim is disabled", func(t *testing.T) {
		fx := setup(t, func(cfg *config.Config) {
			cfg.SchedulerConfig.ManualClaimEnabled = false
		})

		text, format := fx.fleet.ManualClaim(context.Background())
		assert.Equal(t, "Manual claim is disabled", text)
		assert.Equal(t, notifier.Format_Plain, format)
		assert.Empty(t, fx.tx.Calls())
	})
}

func Test_ManualWithdraw(t *testing.T) {
	fx := setup(t, nil)
	fx.cc.SetTokenBalance(safeA, tokens(2, 5))

	text, _ := fx.fleet.ManualWithdraw(context.Background())
	lines := strings.Split(text, "\n\n")
	require.Len(t, lines, 2)

	assert.Contains(t, lines[0], "\\[alice\\] Sent the [withdrawal transaction](https://gnosisscan.io/tx/0x")
	assert.Contains(t, lines[0], "2\\.5 OLAS sent from the Service Safe to [0x6666\\.\\.\\.6666]")
	assert.True(t, strings.HasSuffix(lines[0], "\\#withdraw"), lines[0])
	assert.Equal(t, "\\[bob\\] Cannot withdraw rewards", lines[1])
}

func Test_Autoclaim(t *testing.T) {
	t.Run("Claims everything before withdrawing anything", func(t *testing.T) {
		fx := setup(t, nil)
		fx.cc.SetTokenBalance(safeA, tokens(1, 0))
		fx.cc.SetTokenBalance(safeB, tokens(3, 0))

		require.NoError(t, fx.fleet.Autoclaim(context.Background()))

		calls := fx.tx.Calls()
		require.Len(t, calls, 4)
		for i, c := range calls {
			if i < 2 {
				assert.Equal(t, stakingContract, c.To, "call %d should be a claim", i)
			} else {
				assert.Equal(t, rewardToken, c.To, "call %d should be a withdrawal", i)
			}
		}

		messages := fx.sink.Messages()
		require.Len(t, messages, 1)
		lines := strings.Split(messages[0].text, "\n\n")
		require.Len(t, lines, 2)
		assert.True(t, strings.HasPrefix(lines[0], "\\(Autoclaim\\) \\[alice\\] Sent the"), lines[0])
		assert.Contains(t, lines[1], "3 OLAS sent from the Safe to")
	})
	t.Run("A claim failure for one service does not stop the other", func(t *testing.T) {
		fx := setup(t, nil)
		fx.cc.SetTokenBalance(safeB, tokens(1, 0))
		fx.tx.FailFor[safeA] = fmt.Errorf("execution reverted")

		require.NoError(t, fx.fleet.Autoclaim(context.Background()))

		calls := fx.tx.Calls()
		require.Len(t, calls, 2)
		assert.Equal(t, safeB, calls[0].Safe)
		assert.Equal(t, stakingContract, calls[0].To)
		assert.Equal(t, rewardToken, calls[1].To)

		lines := strings.Split(fx.sink.Messages()[0].text, "\n\n")
		assert.Equal(t, "\\(Autoclaim\\) \\[alice\\] Cannot withdraw rewards", lines[0])
	})
	t.Run("Sends the summary after the job context is done", func(t *testing.T) {
		fx := setup(t, nil)
		fx.cc.SetTokenBalance(safeA, tokens(1, 0))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		require.NoError(t, fx.fleet.Autoclaim(ctx))

		messages := fx.sink.Messages()
		require.Len(t, messages, 1)
		assert.NoError(t, messages[0].ctxErr)
	})
	t.Run("Does nothing when disabled", func(t *testing.T) {
		fx := setup(t, func(cfg *config.Config) {
			cfg.SchedulerConfig.AutoclaimEnabled = false
		})

		require.NoError(t, fx.fleet.Autoclaim(context.Background()))
		assert.Empty(t, fx.tx.Calls())
		assert.Empty(t, fx.sink.Messages())
		assert.Equal(t, 0, fx.cc.Calls("GetTokenBalance"))
	})
}

func Test_SlotsReport(t *testing.T) {
	fx := setup(t, func(cfg *config.Config) {
		cfg.StakingPrograms = append(cfg.StakingPrograms, config.StakingProgramConfig{
			Name: "Expert (1k OLAS)", Address: "0x5344b7dd311e5d3dddd46a4f71481bd7b05aaa3e", Slots: 20,
		})
	})
	fx.cc.MaxNumServices[stakingContract] = big.NewInt(100)
	fx.cc.ServiceIds[stakingContract] = []*big.Int{big.NewInt(1), big.NewInt(2), big.NewInt(3)}
	fx.cc.SetFailure("GetServiceIds", common.HexToAddress("0x5344b7dd311e5d3dddd46a4f71481bd7b05aaa3e"), fmt.Errorf("connection refused"))

	assert.Equal(t,
		"[Hobbyist (100 OLAS)] 97 available slots\n[Expert (1k OLAS)] slots unavailable",
		fx.fleet.SlotsReport(context.Background()),
	)
}

func Test_runAll(t *testing.T) {
	services := []*Service{{Name: "a"}, {Name: "b"}, {Name: "c"}}

	results := runAll(context.Background(), services, 2, time.Second, tests.GetLogger(t),
		func(ctx context.Context, svc *Service) (string, error) {
			switch svc.Name {
			case "a":
				panic("boom")
			case "b":
				return "", fmt.Errorf("failed")
			}
			return "ok " + svc.Name, nil
		})

	require.Len(t, results, 3)
	assert.ErrorContains(t, results[0].Err, "panic in task for a")
	assert.EqualError(t, results[1].Err, "failed")
	assert.NoError(t, results[2].Err)
	assert.Equal(t, "ok c", results[2].Value)
	for i, s := range services {
		assert.Same(t, s, results[i].Service)
	}

	t.Run("Applies the per-task timeout", func(t *testing.T) {
		results := runAll(context.Background(), services[:1], 1, 10*time.Millisecond, tests.GetLogger(t),
			func(ctx context.Context, svc *Service) (bool, error) {
				<-ctx.Done()
				return false, ctx.Err()
			})
		assert.ErrorIs(t, results[0].Err, context.DeadlineExceeded)
	})
}

func Test_NewServiceFromConfig(t *testing.T) {
	signer := tests.TestSigner()
	key := fmt.Sprintf("%x", signer.Key.D.FillBytes(make([]byte, 32)))
	sc := config.ServiceConfig{
		Name:                   "alice",
		ServiceId:              1,
		SafeAddress:            safeA.Hex(),
		AgentAddress:           signer.Address.Hex(),
		StakingContractAddress: stakingContract.Hex(),
		ActivityCheckerAddress: activityChecker.Hex(),
		AgentKeyEnv:            "ALICE_KEY",
	}

	t.Run("Loads the agent key from the environment", func(t *testing.T) {
		svc, err := NewServiceFromConfig(sc, func(name string) (string, bool) {
			return "0x" + key, name == "ALICE_KEY"
		})
		require.NoError(t, err)
		require.NotNil(t, svc.Signer)
		assert.Equal(t, signer.Address, svc.Signer.Address)
		checker, ok := svc.cachedActivityChecker()
		assert.True(t, ok)
		assert.Equal(t, activityChecker, checker)
		assert.Equal(t, common.Address{}, svc.WithdrawalAddress)
	})
	t.Run("Fails when the env var is missing", func(t *testing.T) {
		_, err := NewServiceFromConfig(sc, func(string) (string, bool) { return "", false })
		assert.ErrorContains(t, err, "ALICE_KEY")
	})
	t.Run("Fails when the key is for another address", func(t *testing.T) {
		other := tests.TestSigner()
		otherKey := fmt.Sprintf("%x", other.Key.D.FillBytes(make([]byte, 32)))
		_, err := NewServiceFromConfig(sc, func(string) (string, bool) { return otherKey, true })
		assert.ErrorContains(t, err, "not the agent")
	})
	t.Run("Monitors without a key", func(t *testing.T) {
		noKey := sc
		noKey.AgentKeyEnv = ""
		svc, err := NewServiceFromConfig(noKey, nil)
		require.NoError(t, err)
		assert.Nil(t, svc.Signer)
	})
}

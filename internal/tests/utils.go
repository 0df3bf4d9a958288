package tests

import (
	"testing"
	"time"

	"github.com/OjusWiZard/triton-bot/internal/config"
	"github.com/OjusWiZard/triton-bot/internal/logger"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// GetConfig returns a validated-looking config with gnosis defaults and no services.
func GetConfig() *config.Config {
	return &config.Config{
		Chain:             config.Chain_Gnosis,
		Timezone:          "UTC",
		WithdrawalAddress: "",
		EthereumRpcConfig: config.EthereumRpcConfig{
			BaseUrl:        "http://localhost:8545",
			CallTimeout:    time.Second,
			ReceiptTimeout: time.Second,
			ExplorerUrl:    config.DefaultGnosisExplorerUrl,
			NativeSymbol:   "xDAI",
		},
		RewardTokenConfig: config.RewardTokenConfig{
			Address: config.DefaultGnosisRewardToken,
			Symbol:  "OLAS",
		},
		ThresholdsConfig: config.ThresholdsConfig{
			AgentBalance: 0.1,
			SafeBalance:  1,
		},
		SchedulerConfig: config.SchedulerConfig{
			AutoclaimEnabled:     true,
			AutoclaimDay:         1,
			AutoclaimHourUtc:     9,
			ManualClaimEnabled:   true,
			BalanceCheckInterval: time.Hour,
			JobTimeout:           time.Minute,
			ServiceTimeout:       10 * time.Second,
			MaxConcurrency:       4,
		},
		CoingeckoConfig: config.CoingeckoConfig{
			TokenId:  "autonolas",
			Currency: "usd",
		},
	}
}

func GetLogger(t *testing.T) *zap.Logger {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	require.NoError(t, err)
	return l
}

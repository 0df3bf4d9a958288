package cmd

import (
	"os"
	"strings"
	"time"

	"github.com/OjusWiZard/triton-bot/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "triton",
	Short: "Triton watches staked autonomous services and claims and withdraws their rewards",
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	initConfig(rootCmd)

	rootCmd.PersistentFlags().Bool(config.Debug, false, `"true" or "false"`)
	rootCmd.PersistentFlags().String(config.ConfigFile, "config.yaml", `Path to the YAML file with the services list`)
	rootCmd.PersistentFlags().String(config.LocalTimezone, "UTC", `Timezone used to render epoch end times, e.g. "Europe/Madrid"`)
	rootCmd.PersistentFlags().String(config.WithdrawalAddress, "", `Default address rewards are withdrawn to`)

	rootCmd.PersistentFlags().String(config.ChainName, "gnosis", `The chain the services are staked on`)
	rootCmd.PersistentFlags().String(config.ChainRpcUrl, "", `e.g. "https://rpc.gnosischain.com"`)
	rootCmd.PersistentFlags().Duration(config.ChainCallTimeout, 15*time.Second, `Timeout of a single contract call`)
	rootCmd.PersistentFlags().Int(config.ChainCallRetries, 2, `Retries of a failed contract call; reverts are never retried`)
	rootCmd.PersistentFlags().Duration(config.ChainReceiptWait, 2*time.Minute, `How long to wait for a transaction receipt`)
	rootCmd.PersistentFlags().String(config.ChainExplorerUrl, config.DefaultGnosisExplorerUrl, `Block explorer used for links`)
	rootCmd.PersistentFlags().String(config.NativeTokenSymbol, "xDAI", `Symbol of the native token`)
	rootCmd.PersistentFlags().String(config.RewardTokenAddress, config.DefaultGnosisRewardToken, `Address of the staking reward token`)
	rootCmd.PersistentFlags().String(config.RewardTokenSymbol, "OLAS", `Symbol of the staking reward token`)

	rootCmd.PersistentFlags().Float64(config.AgentBalanceThreshold, 0.1, `Alert when an agent EOA holds less native token than this`)
	rootCmd.PersistentFlags().Float64(config.SafeBalanceThreshold, 1.0, `Alert when a service Safe holds less native token than this`)

	rootCmd.PersistentFlags().Bool(config.AutoclaimEnabled, false, `Claim and withdraw rewards once a month`)
	rootCmd.PersistentFlags().Int(config.AutoclaimDay, 1, `Day of the month autoclaim runs on`)
	rootCmd.PersistentFlags().Int(config.AutoclaimHourUtc, 9, `Hour (UTC) autoclaim runs at`)
	rootCmd.PersistentFlags().Bool(config.ManualClaimEnabled, true, `Allow the claim command`)
	rootCmd.PersistentFlags().Duration(config.BalanceCheckInterval, time.Hour, `Interval between balance checks`)
	rootCmd.PersistentFlags().Duration(config.JobTimeout, 10*time.Minute, `Upper bound for a single job run`)
	rootCmd.PersistentFlags().Duration(config.ServiceTimeout, 3*time.Minute, `Upper bound for the work done for one service in a job`)
	rootCmd.PersistentFlags().Int(config.MaxConcurrency, 4, `Services processed at the same time`)

	rootCmd.PersistentFlags().String(config.TelegramToken, "", `Telegram bot token`)
	rootCmd.PersistentFlags().String(config.TelegramChatId, "", `Telegram chat notifications are sent to`)
	rootCmd.PersistentFlags().String(config.TelegramBaseUrl, "", `Telegram Bot API url`)

	rootCmd.PersistentFlags().String(config.CoingeckoApiKey, "", `CoinGecko demo API key`)
	rootCmd.PersistentFlags().String(config.CoingeckoBaseUrl, "", `CoinGecko API url`)
	rootCmd.PersistentFlags().String(config.CoingeckoTokenId, "autonolas", `CoinGecko id of the reward token`)
	rootCmd.PersistentFlags().String(config.CoingeckoFiat, "usd", `Fiat currency rewards are valued in`)

	rootCmd.PersistentFlags().Bool(config.DataDogStatsdEnabled, false, `e.g. "true" or "false"`)
	rootCmd.PersistentFlags().String(config.DataDogStatsdUrl, "", `e.g. "localhost:8125"`)
	rootCmd.PersistentFlags().Float64(config.DataDogStatsdSampleRate, 1.0, `The sample rate to use for statsd metrics`)

	rootCmd.PersistentFlags().Bool(config.PrometheusEnabled, false, `e.g. "true" or "false"`)
	rootCmd.PersistentFlags().Int(config.PrometheusPort, 2112, `The port to run the prometheus server on`)

	// setup sub commands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(balanceCmd)
	rootCmd.AddCommand(claimCmd)
	rootCmd.AddCommand(withdrawCmd)
	rootCmd.AddCommand(slotsCmd)
	rootCmd.AddCommand(runVersionCmd)

	rootCmd.PersistentFlags().VisitAll(func(f *pflag.Flag) {
		key := config.KebabToSnakeCase(f.Name)
		viper.BindPFlag(key, f) //nolint:errcheck
		viper.BindEnv(key)      //nolint:errcheck
	})
}

func initConfig(cmd *cobra.Command) {
	viper.SetEnvPrefix(config.ENV_PREFIX)

	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	viper.AutomaticEnv()
}

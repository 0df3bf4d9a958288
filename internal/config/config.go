package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const ENV_PREFIX = "TRITON"

type Chain string

const (
	Chain_Gnosis Chain = "gnosis"
)

// Flag names. Viper keys are derived with KebabToSnakeCase.
const (
	Debug      = "debug"
	ConfigFile = "config"

	ChainName          = "chain.name"
	ChainRpcUrl        = "chain.rpc-url"
	ChainCallTimeout   = "chain.call-timeout"
	ChainCallRetries   = "chain.call-retries"
	ChainReceiptWait   = "chain.receipt-timeout"
	ChainExplorerUrl   = "chain.explorer-url"
	RewardTokenAddress = "reward-token.address"
	RewardTokenSymbol  = "reward-token.symbol"
	NativeTokenSymbol  = "chain.native-symbol"
	LocalTimezone      = "timezone"

	WithdrawalAddress = "withdrawal-address"

	AgentBalanceThreshold = "thresholds.agent-balance"
	SafeBalanceThreshold  = "thresholds.safe-balance"

	AutoclaimEnabled     = "autoclaim.enabled"
	AutoclaimDay         = "autoclaim.day"
	AutoclaimHourUtc     = "autoclaim.hour-utc"
	ManualClaimEnabled   = "manual-claim.enabled"
	BalanceCheckInterval = "scheduler.balance-check-interval"
	JobTimeout           = "scheduler.job-timeout"
	ServiceTimeout       = "scheduler.service-timeout"
	MaxConcurrency       = "scheduler.max-concurrency"

	TelegramToken   = "telegram.token"
	TelegramChatId  = "telegram.chat-id"
	TelegramBaseUrl = "telegram.base-url"

	CoingeckoApiKey  = "coingecko.api-key"
	CoingeckoBaseUrl = "coingecko.base-url"
	CoingeckoTokenId = "coingecko.token-id"
	CoingeckoFiat    = "coingecko.currency"

	DataDogStatsdEnabled    = "datadog.statsd.enabled"
	DataDogStatsdUrl        = "datadog.statsd.url"
	DataDogStatsdSampleRate = "datadog.statsd.sample-rate"

	PrometheusEnabled = "prometheus.enabled"
	PrometheusPort    = "prometheus.port"

	// keys read from the YAML config file only
	ServicesKey        = "services"
	StakingProgramsKey = "staking_programs"
)

const (
	DefaultGnosisRewardToken = "0xcE11e14225575945b8E6Dc0D4F2dD4C570f79d9f"
	DefaultGnosisExplorerUrl = "https://gnosisscan.io"
)

type Config struct {
	Debug             bool
	ConfigFile        string
	Chain             Chain
	Timezone          string
	WithdrawalAddress string

	EthereumRpcConfig EthereumRpcConfig
	RewardTokenConfig RewardTokenConfig
	ThresholdsConfig  ThresholdsConfig
	SchedulerConfig   SchedulerConfig
	TelegramConfig    TelegramConfig
	CoingeckoConfig   CoingeckoConfig
	DataDogConfig     DataDogConfig
	PrometheusConfig  PrometheusConfig

	Services        []ServiceConfig
	StakingPrograms []StakingProgramConfig
}

type EthereumRpcConfig struct {
	BaseUrl        string
	CallTimeout    time.Duration
	CallRetries    int
	ReceiptTimeout time.Duration
	ExplorerUrl    string
	NativeSymbol   string
}

type RewardTokenConfig struct {
	Address string
	Symbol  string
}

type ThresholdsConfig struct {
	AgentBalance float64
	SafeBalance  float64
}

type SchedulerConfig struct {
	AutoclaimEnabled     bool
	AutoclaimDay         int
	AutoclaimHourUtc     int
	ManualClaimEnabled   bool
	BalanceCheckInterval time.Duration
	JobTimeout           time.Duration
	ServiceTimeout       time.Duration
	MaxConcurrency       int
}

type TelegramConfig struct {
	Token   string
	ChatId  string
	BaseUrl string
}

type CoingeckoConfig struct {
	ApiKey   string
	BaseUrl  string
	TokenId  string
	Currency string
}

type DataDogConfig struct {
	StatsdConfig StatsdConfig
}

type StatsdConfig struct {
	Enabled    bool
	Url        string
	SampleRate float64
}

type PrometheusConfig struct {
	Enabled bool
	Port    int
}

// ServiceConfig is one entry of the "services" list in the config file.
type ServiceConfig struct {
	Name                   string `mapstructure:"name"`
	ServiceId              uint64 `mapstructure:"service_id"`
	SafeAddress            string `mapstructure:"safe_address"`
	AgentAddress           string `mapstructure:"agent_address"`
	StakingContractAddress string `mapstructure:"staking_contract_address"`
	ActivityCheckerAddress string `mapstructure:"activity_checker_address"`
	WithdrawalAddress      string `mapstructure:"withdrawal_address"`
	MasterEoaAddress       string `mapstructure:"master_eoa_address"`
	MasterSafeAddress      string `mapstructure:"master_safe_address"`
	AgentKeyEnv            string `mapstructure:"agent_key_env"`
}

type StakingProgramConfig struct {
	Name    string `mapstructure:"name"`
	Address string `mapstructure:"address"`
	Slots   uint64 `mapstructure:"slots"`
}

// DefaultStakingPrograms are the Gnosis staking programs reported by the slots command
// when the config file does not list any.
var DefaultStakingPrograms = []StakingProgramConfig{
	{Name: "Hobbyist (100 OLAS)", Address: "0x389b46c259631acd6a69bde8b6cee218230bae8c", Slots: 100},
	{Name: "Hobbyist 2 (500 OLAS)", Address: "0x238eb6993b90a978ec6aad7530d6429c949c08da", Slots: 50},
	{Name: "Expert (1k OLAS)", Address: "0x5344b7dd311e5d3dddd46a4f71481bd7b05aaa3e", Slots: 20},
	{Name: "Expert 2 (1k OLAS)", Address: "0xb964e44c126410df341ae04b13ab10a985fe3513", Slots: 40},
	{Name: "Expert 3 (2k OLAS)", Address: "0x80fad33cadb5f53f9d29f02db97d682e8b101618", Slots: 20},
	{Name: "Expert 4 (10k OLAS)", Address: "0xad9d891134443b443d7f30013c7e14fe27f2e029", Slots: 26},
	{Name: "Expert 5 (10k OLAS)", Address: "0xe56df1e563de1b10715cb313d514af350d207212", Slots: 26},
	{Name: "Expert 6 (1k OLAS)", Address: "0x2546214aee7eea4bee7689c81231017ca231dc93", Slots: 40},
	{Name: "Expert 7 (10k OLAS)", Address: "0xd7a3c8b975f71030135f1a66e9e23164d54ff455", Slots: 26},
}

func KebabToSnakeCase(str string) string {
	return strings.ReplaceAll(str, "-", "_")
}

func normalizeFlagName(name string) string {
	return KebabToSnakeCase(name)
}

func ParseChain(c string) Chain {
	switch strings.ToLower(c) {
	case "gnosis", "xdai", "":
		return Chain_Gnosis
	default:
		return Chain(c)
	}
}

// NewConfig builds the typed config from the global viper instance. Flags and env vars
// must already be bound, and the config file read, before calling it.
func NewConfig() *Config {
	cfg := &Config{
		Debug:             viper.GetBool(normalizeFlagName(Debug)),
		ConfigFile:        viper.GetString(normalizeFlagName(ConfigFile)),
		Chain:             ParseChain(viper.GetString(normalizeFlagName(ChainName))),
		Timezone:          viper.GetString(normalizeFlagName(LocalTimezone)),
		WithdrawalAddress: viper.GetString(normalizeFlagName(WithdrawalAddress)),

		EthereumRpcConfig: EthereumRpcConfig{
			BaseUrl:        viper.GetString(normalizeFlagName(ChainRpcUrl)),
			CallTimeout:    viper.GetDuration(normalizeFlagName(ChainCallTimeout)),
			CallRetries:    viper.GetInt(normalizeFlagName(ChainCallRetries)),
			ReceiptTimeout: viper.GetDuration(normalizeFlagName(ChainReceiptWait)),
			ExplorerUrl:    viper.GetString(normalizeFlagName(ChainExplorerUrl)),
			NativeSymbol:   viper.GetString(normalizeFlagName(NativeTokenSymbol)),
		},

		RewardTokenConfig: RewardTokenConfig{
			Address: viper.GetString(normalizeFlagName(RewardTokenAddress)),
			Symbol:  viper.GetString(normalizeFlagName(RewardTokenSymbol)),
		},

		ThresholdsConfig: ThresholdsConfig{
			AgentBalance: viper.GetFloat64(normalizeFlagName(AgentBalanceThreshold)),
			SafeBalance:  viper.GetFloat64(normalizeFlagName(SafeBalanceThreshold)),
		},

		SchedulerConfig: SchedulerConfig{
			AutoclaimEnabled:     viper.GetBool(normalizeFlagName(AutoclaimEnabled)),
			AutoclaimDay:         viper.GetInt(normalizeFlagName(AutoclaimDay)),
			AutoclaimHourUtc:     viper.GetInt(normalizeFlagName(AutoclaimHourUtc)),
			ManualClaimEnabled:   viper.GetBool(normalizeFlagName(ManualClaimEnabled)),
			BalanceCheckInterval: viper.GetDuration(normalizeFlagName(BalanceCheckInterval)),
			JobTimeout:           viper.GetDuration(normalizeFlagName(JobTimeout)),
			ServiceTimeout:       viper.GetDuration(normalizeFlagName(ServiceTimeout)),
			MaxConcurrency:       viper.GetInt(normalizeFlagName(MaxConcurrency)),
		},

		TelegramConfig: TelegramConfig{
			Token:   viper.GetString(normalizeFlagName(TelegramToken)),
			ChatId:  viper.GetString(normalizeFlagName(TelegramChatId)),
			BaseUrl: viper.GetString(normalizeFlagName(TelegramBaseUrl)),
		},

		CoingeckoConfig: CoingeckoConfig{
			ApiKey:   viper.GetString(normalizeFlagName(CoingeckoApiKey)),
			BaseUrl:  viper.GetString(normalizeFlagName(CoingeckoBaseUrl)),
			TokenId:  viper.GetString(normalizeFlagName(CoingeckoTokenId)),
			Currency: viper.GetString(normalizeFlagName(CoingeckoFiat)),
		},

		DataDogConfig: DataDogConfig{
			StatsdConfig: StatsdConfig{
				Enabled:    viper.GetBool(normalizeFlagName(DataDogStatsdEnabled)),
				Url:        viper.GetString(normalizeFlagName(DataDogStatsdUrl)),
				SampleRate: viper.GetFloat64(normalizeFlagName(DataDogStatsdSampleRate)),
			},
		},

		PrometheusConfig: PrometheusConfig{
			Enabled: viper.GetBool(normalizeFlagName(PrometheusEnabled)),
			Port:    viper.GetInt(normalizeFlagName(PrometheusPort)),
		},
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.RewardTokenConfig.Address == "" && c.Chain == Chain_Gnosis {
		c.RewardTokenConfig.Address = DefaultGnosisRewardToken
	}
	if c.RewardTokenConfig.Symbol == "" {
		c.RewardTokenConfig.Symbol = "OLAS"
	}
	if c.EthereumRpcConfig.ExplorerUrl == "" && c.Chain == Chain_Gnosis {
		c.EthereumRpcConfig.ExplorerUrl = DefaultGnosisExplorerUrl
	}
	if c.EthereumRpcConfig.NativeSymbol == "" {
		c.EthereumRpcConfig.NativeSymbol = "xDAI"
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.SchedulerConfig.MaxConcurrency <= 0 {
		c.SchedulerConfig.MaxConcurrency = 1
	}
}

// LoadServices reads the service and staking program lists from the config file that viper
// has already loaded. A service without its own withdrawal address inherits the global one.
func (c *Config) LoadServices() error {
	services := make([]ServiceConfig, 0)
	if err := viper.UnmarshalKey(ServicesKey, &services); err != nil {
		return errors.Wrap(err, "failed to parse services")
	}
	for i := range services {
		if services[i].WithdrawalAddress == "" {
			services[i].WithdrawalAddress = c.WithdrawalAddress
		}
	}
	c.Services = services

	programs := make([]StakingProgramConfig, 0)
	if err := viper.UnmarshalKey(StakingProgramsKey, &programs); err != nil {
		return errors.Wrap(err, "failed to parse staking programs")
	}
	if len(programs) == 0 {
		programs = DefaultStakingPrograms
	}
	c.StakingPrograms = programs
	return nil
}

func validateAddress(field string, value string, required bool) error {
	if value == "" {
		if required {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
	if !common.IsHexAddress(value) {
		return fmt.Errorf("%s is not a valid address: %s", field, value)
	}
	return nil
}

func (c *Config) Validate() error {
	if c.EthereumRpcConfig.BaseUrl == "" {
		return fmt.Errorf("%s is required", ChainRpcUrl)
	}
	if c.SchedulerConfig.AutoclaimDay < 1 || c.SchedulerConfig.AutoclaimDay > 31 {
		return fmt.Errorf("%s must be between 1 and 31, got %d", AutoclaimDay, c.SchedulerConfig.AutoclaimDay)
	}
	if c.SchedulerConfig.AutoclaimHourUtc < 0 || c.SchedulerConfig.AutoclaimHourUtc > 23 {
		return fmt.Errorf("%s must be between 0 and 23, got %d", AutoclaimHourUtc, c.SchedulerConfig.AutoclaimHourUtc)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return errors.Wrapf(err, "invalid %s", LocalTimezone)
	}
	if err := validateAddress(RewardTokenAddress, c.RewardTokenConfig.Address, true); err != nil {
		return err
	}
	if err := validateAddress(WithdrawalAddress, c.WithdrawalAddress, false); err != nil {
		return err
	}

	seen := make(map[string]bool)
	for i, s := range c.Services {
		if s.Name == "" {
			return fmt.Errorf("services[%d].name is required", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate service name %q", s.Name)
		}
		seen[s.Name] = true

		prefix := fmt.Sprintf("services[%s]", s.Name)
		checks := []struct {
			field    string
			value    string
			required bool
		}{
			{"safe_address", s.SafeAddress, true},
			{"agent_address", s.AgentAddress, true},
			{"staking_contract_address", s.StakingContractAddress, true},
			{"activity_checker_address", s.ActivityCheckerAddress, false},
			{"withdrawal_address", s.WithdrawalAddress, false},
			{"master_eoa_address", s.MasterEoaAddress, false},
			{"master_safe_address", s.MasterSafeAddress, false},
		}
		for _, chk := range checks {
			if err := validateAddress(prefix+"."+chk.field, chk.value, chk.required); err != nil {
				return err
			}
		}
	}
	for _, p := range c.StakingPrograms {
		if err := validateAddress(fmt.Sprintf("staking_programs[%s].address", p.Name), p.Address, true); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) GetLocation() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) AddressUrl(address string) string {
	return fmt.Sprintf("%s/address/%s", strings.TrimRight(c.EthereumRpcConfig.ExplorerUrl, "/"), address)
}

func (c *Config) TxUrl(txHash string) string {
	return fmt.Sprintf("%s/tx/%s", strings.TrimRight(c.EthereumRpcConfig.ExplorerUrl, "/"), txHash)
}

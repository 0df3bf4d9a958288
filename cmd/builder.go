package cmd

import (
	"context"
	"net/http"
	"os"

	"github.com/OjusWiZard/triton-bot/internal/config"
	"github.com/OjusWiZard/triton-bot/internal/logger"
	"github.com/OjusWiZard/triton-bot/internal/metrics"
	"github.com/OjusWiZard/triton-bot/pkg/clients/coingecko"
	"github.com/OjusWiZard/triton-bot/pkg/clients/ethereum"
	"github.com/OjusWiZard/triton-bot/pkg/clients/telegram"
	"github.com/OjusWiZard/triton-bot/pkg/contractCaller/sequentialContractCaller"
	"github.com/OjusWiZard/triton-bot/pkg/fleet"
	"github.com/OjusWiZard/triton-bot/pkg/lifecycle"
	"github.com/OjusWiZard/triton-bot/pkg/notifier"
	"github.com/OjusWiZard/triton-bot/pkg/transactor"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type app struct {
	config      *config.Config
	logger      *zap.Logger
	metricsSink *metrics.MetricsSink
	client      *ethereum.Client
	sink        notifier.Sink
	fleet       *fleet.Fleet
}

// loadConfig reads the optional config file into viper and builds the typed config.
func loadConfig() (*config.Config, error) {
	if path := viper.GetString(config.ConfigFile); path != "" {
		if _, err := os.Stat(path); err == nil {
			viper.SetConfigFile(path)
			if err := viper.ReadInConfig(); err != nil {
				return nil, errors.Wrapf(err, "failed to read config file %s", path)
			}
		} else if rootCmd.PersistentFlags().Changed(config.ConfigFile) {
			return nil, errors.Wrapf(err, "config file %s", path)
		}
	}

	cfg := config.NewConfig()
	if err := cfg.LoadServices(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildApp wires the chain client, contract caller, transactor, notification sinks and the
// fleet. Metrics backends are only created when withMetrics is set.
func buildApp(ctx context.Context, withMetrics bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug, Name: "triton"})
	if err != nil {
		return nil, err
	}

	ms := metrics.NewNoopMetricsSink()
	if withMetrics {
		clients, err := metrics.InitMetricsSinksFromConfig(cfg, l)
		if err != nil {
			l.Sugar().Errorw("Failed to setup metrics sink", zap.Error(err))
			return nil, err
		}
		ms, err = metrics.NewMetricsSink(&metrics.MetricsSinkConfig{}, clients)
		if err != nil {
			return nil, err
		}
	}

	client, err := ethereum.NewClient(ctx, &ethereum.EthereumClientConfig{
		BaseUrl:     cfg.EthereumRpcConfig.BaseUrl,
		DialTimeout: ethereum.DefaultEthereumClientConfig().DialTimeout,
	}, l)
	if err != nil {
		return nil, err
	}

	cc := sequentialContractCaller.NewSequentialContractCaller(client, &sequentialContractCaller.SequentialContractCallerConfig{
		CallTimeout: cfg.EthereumRpcConfig.CallTimeout,
		Backoffs:    sequentialContractCaller.BackoffsForRetries(cfg.EthereumRpcConfig.CallRetries),
	}, l)

	tx := transactor.NewSafeTransactor(client, &transactor.SafeTransactorConfig{
		ReceiptTimeout: cfg.EthereumRpcConfig.ReceiptTimeout,
	}, l)

	pipeline := lifecycle.NewPipeline(cc, tx, &lifecycle.PipelineConfig{
		RewardToken: common.HexToAddress(cfg.RewardTokenConfig.Address),
	}, ms, l)

	sink := buildSink(cfg, l)

	priceFeed := coingecko.NewCoingeckoClient(nil, l, &coingecko.CoingeckoConfig{
		BaseUrl: cfg.CoingeckoConfig.BaseUrl,
		ApiKey:  cfg.CoingeckoConfig.ApiKey,
	})

	f, err := fleet.NewFleetFromConfig(cfg, cc, pipeline, sink, priceFeed, ms, l)
	if err != nil {
		return nil, err
	}
	l.Sugar().Infow("Fleet loaded", zap.Int("services", f.Len()))

	return &app{
		config:      cfg,
		logger:      l,
		metricsSink: ms,
		client:      client,
		sink:        sink,
		fleet:       f,
	}, nil
}

// buildSink sends to Telegram when a bot token and chat are configured, and always logs.
func buildSink(cfg *config.Config, l *zap.Logger) notifier.Sink {
	logSink := notifier.NewLogSink(l)
	if cfg.TelegramConfig.Token == "" || cfg.TelegramConfig.ChatId == "" {
		l.Sugar().Warnw("Telegram is not configured, notifications are only logged")
		return logSink
	}
	tc := telegram.NewTelegramClient(&http.Client{Timeout: coingecko.RequestTimeout}, l, &telegram.TelegramConfig{
		BaseUrl: cfg.TelegramConfig.BaseUrl,
		Token:   cfg.TelegramConfig.Token,
	})
	return notifier.NewFanoutSink(notifier.NewTelegramSink(tc, cfg.TelegramConfig.ChatId), logSink)
}

func (a *app) Close() {
	a.client.Close()
	_ = a.logger.Sync()
}

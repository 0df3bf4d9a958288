package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/OjusWiZard/triton-bot/internal/config"
	"github.com/OjusWiZard/triton-bot/internal/logger"
	"github.com/OjusWiZard/triton-bot/pkg/clients/ethereum"
	"github.com/OjusWiZard/triton-bot/pkg/contractCaller/sequentialContractCaller"
	"github.com/OjusWiZard/triton-bot/pkg/staking"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Walks the mech fallback chain for the activity checkers given as arguments and prints
// every strategy that failed. Reads TRITON_CHAIN_RPC_URL like the main binary.
func main() {
	ctx := context.Background()

	viper.SetEnvPrefix(config.ENV_PREFIX)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()
	cfg := config.NewConfig()

	l, _ := logger.NewLogger(&logger.LoggerConfig{Debug: true})

	if len(os.Args) < 2 {
		log.Fatalf("usage: %s <activity checker address>...", os.Args[0])
	}

	client, err := ethereum.NewClient(ctx, &ethereum.EthereumClientConfig{
		BaseUrl:     cfg.EthereumRpcConfig.BaseUrl,
		DialTimeout: ethereum.DefaultEthereumClientConfig().DialTimeout,
	}, l)
	if err != nil {
		l.Sugar().Fatalw("Failed to create ethereum client", zap.Error(err))
	}
	defer client.Close()

	cc := sequentialContractCaller.NewSequentialContractCaller(client, nil, l)
	resolver := staking.NewMechResolver(cc, l)

	for _, arg := range os.Args[1:] {
		if !common.IsHexAddress(arg) {
			fmt.Printf("%s: not an address\n", arg)
			continue
		}
		mech, res := resolver.Resolve(ctx, common.HexToAddress(arg))
		for _, f := range res.Failures {
			fmt.Printf("%s: %s failed: %v\n", arg, f.Strategy, f.Err)
		}
		if !res.Resolved() {
			fmt.Printf("%s: unresolved\n", arg)
			continue
		}
		fmt.Printf("%s: mech %s via %s\n", arg, mech.Hex(), res.Strategy)
	}
}

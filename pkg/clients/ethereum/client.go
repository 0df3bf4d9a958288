package ethereum

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ChainReader is the read half of the chain capability: contract view calls and balances.
type ChainReader interface {
	bind.ContractCaller
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// ChainClient is the full chain capability consumed by the orchestrator. *ethclient.Client
// satisfies it and is safe for concurrent use.
type ChainClient interface {
	ChainReader
	bind.ContractTransactor
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
}

type EthereumClientConfig struct {
	BaseUrl     string
	DialTimeout time.Duration
}

func DefaultEthereumClientConfig() *EthereumClientConfig {
	return &EthereumClientConfig{
		DialTimeout: 10 * time.Second,
	}
}

type Client struct {
	*ethclient.Client
	Logger       *zap.Logger
	clientConfig *EthereumClientConfig
	chainIdLock  sync.Mutex
	chainId      *big.Int
}

var _ ChainClient = (*Client)(nil)

func NewClient(ctx context.Context, cfg *EthereumClientConfig, l *zap.Logger) (*Client, error) {
	baseUrl := strings.TrimSpace(cfg.BaseUrl)
	if baseUrl == "" {
		return nil, errors.New("ethereum rpc url is not configured")
	}

	l.Sugar().Infow("Creating new Ethereum client", zap.String("baseUrl", redactUrl(baseUrl)))

	dialCtx := ctx
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}

	ec, err := ethclient.DialContext(dialCtx, baseUrl)
	if err != nil {
		l.Sugar().Errorw("Failed to create new eth client", zap.Error(err))
		return nil, errors.Wrap(err, "failed to dial ethereum rpc")
	}

	return &Client{
		Client:       ec,
		Logger:       l,
		clientConfig: cfg,
	}, nil
}

// ChainID caches the chain id after the first successful lookup.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	c.chainIdLock.Lock()
	defer c.chainIdLock.Unlock()
	if c.chainId != nil {
		return new(big.Int).Set(c.chainId), nil
	}
	id, err := c.Client.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	c.chainId = id
	return new(big.Int).Set(id), nil
}

// redactUrl strips the path and query from RPC urls, which commonly embed API keys.
func redactUrl(u string) string {
	schemeIdx := strings.Index(u, "://")
	rest := u
	prefix := ""
	if schemeIdx >= 0 {
		prefix = u[:schemeIdx+3]
		rest = u[schemeIdx+3:]
	}
	if i := strings.IndexAny(rest, "/?"); i >= 0 {
		return prefix + rest[:i] + "/..."
	}
	return u
}

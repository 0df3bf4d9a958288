package transactor

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/OjusWiZard/triton-bot/pkg/clients/ethereum"
	"github.com/OjusWiZard/triton-bot/pkg/contractCaller"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ITransactor submits a call from a Safe and waits for it to be mined.
type ITransactor interface {
	Exec(ctx context.Context, safe common.Address, to common.Address, data []byte, signer *Signer) (common.Hash, error)
}

type SafeTransactorConfig struct {
	// ReceiptTimeout bounds the wait for the execTransaction receipt.
	ReceiptTimeout time.Duration
}

type SafeTransactor struct {
	client ethereum.ChainClient
	abis   *contractCaller.Abis
	config *SafeTransactorConfig
	logger *zap.Logger
}

var _ ITransactor = (*SafeTransactor)(nil)

func NewSafeTransactor(client ethereum.ChainClient, cfg *SafeTransactorConfig, l *zap.Logger) *SafeTransactor {
	if cfg == nil {
		cfg = &SafeTransactorConfig{ReceiptTimeout: 2 * time.Minute}
	}
	return &SafeTransactor{
		client: client,
		abis:   contractCaller.MustParseAbis(),
		config: cfg,
		logger: l,
	}
}

type safeTx struct {
	To             common.Address
	Value          *big.Int
	Data           []byte
	Operation      uint8
	SafeTxGas      *big.Int
	BaseGas        *big.Int
	GasPrice       *big.Int
	GasToken       common.Address
	RefundReceiver common.Address
}

func newSafeCall(to common.Address, data []byte) safeTx {
	return safeTx{
		To:        to,
		Value:     big.NewInt(0),
		Data:      data,
		Operation: 0,
		SafeTxGas: big.NewInt(0),
		BaseGas:   big.NewInt(0),
		GasPrice:  big.NewInt(0),
	}
}

// Exec runs a plain CALL from the Safe to `to` with the given calldata. The signer must be a
// Safe owner and, for a 1-of-n Safe, is also the relayer paying gas.
func (t *SafeTransactor) Exec(ctx context.Context, safe common.Address, to common.Address, data []byte, signer *Signer) (common.Hash, error) {
	if signer == nil {
		return common.Hash{}, errors.New("no signer configured")
	}
	safeContract := bind.NewBoundContract(safe, t.abis.GnosisSafe, t.client, t.client, nil)
	callOpts := &bind.CallOpts{Context: ctx, From: signer.Address}

	nonceRes := make([]interface{}, 0)
	if err := safeContract.Call(callOpts, &nonceRes, "nonce"); err != nil {
		return common.Hash{}, errors.Wrap(err, "failed to read safe nonce")
	}
	nonce, ok := nonceRes[0].(*big.Int)
	if !ok {
		return common.Hash{}, fmt.Errorf("unexpected safe nonce type %T", nonceRes[0])
	}

	tx := newSafeCall(to, data)
	hashRes := make([]interface{}, 0)
	err := safeContract.Call(callOpts, &hashRes, "getTransactionHash",
		tx.To, tx.Value, tx.Data, tx.Operation, tx.SafeTxGas, tx.BaseGas, tx.GasPrice, tx.GasToken, tx.RefundReceiver, nonce,
	)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "failed to compute safe transaction hash")
	}
	safeTxHash, ok := hashRes[0].([32]byte)
	if !ok {
		return common.Hash{}, fmt.Errorf("unexpected safe transaction hash type %T", hashRes[0])
	}

	signature, err := signer.SignSafeHash(safeTxHash)
	if err != nil {
		return common.Hash{}, err
	}

	chainId, err := t.client.ChainID(ctx)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "failed to read chain id")
	}
	auth, err := bind.NewKeyedTransactorWithChainID(signer.Key, chainId)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "failed to create transactor")
	}
	auth.Context = ctx

	sent, err := safeContract.Transact(auth, "execTransaction",
		tx.To, tx.Value, tx.Data, tx.Operation, tx.SafeTxGas, tx.BaseGas, tx.GasPrice, tx.GasToken, tx.RefundReceiver, signature,
	)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "failed to submit execTransaction")
	}
	t.logger.Sugar().Infow("Submitted safe transaction",
		zap.String("safe", safe.Hex()),
		zap.String("to", to.Hex()),
		zap.String("txHash", sent.Hash().Hex()),
		zap.Uint64("safeNonce", nonce.Uint64()),
	)

	waitCtx := ctx
	if t.config.ReceiptTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, t.config.ReceiptTimeout)
		defer cancel()
	}
	receipt, err := bind.WaitMined(waitCtx, t.client, sent)
	if err != nil {
		return sent.Hash(), errors.Wrapf(err, "failed waiting for receipt of %s", sent.Hash().Hex())
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return sent.Hash(), fmt.Errorf("transaction %s reverted", sent.Hash().Hex())
	}
	return sent.Hash(), nil
}

package tests

import (
	"context"
	"sync"

	"github.com/OjusWiZard/triton-bot/pkg/transactor"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

type ExecCall struct {
	Safe common.Address
	To   common.Address
	Data []byte
}

// FakeTransactor records Safe executions and returns a deterministic hash per call.
type FakeTransactor struct {
	mu    sync.Mutex
	calls []ExecCall
	// FailFor makes Exec fail for a given Safe.
	FailFor map[common.Address]error
	// OnExec, if set, runs before the call is recorded.
	OnExec func(call ExecCall)
}

var _ transactor.ITransactor = (*FakeTransactor)(nil)

func NewFakeTransactor() *FakeTransactor {
	return &FakeTransactor{
		calls:   make([]ExecCall, 0),
		FailFor: make(map[common.Address]error),
	}
}

func (f *FakeTransactor) Exec(ctx context.Context, safe common.Address, to common.Address, data []byte, signer *transactor.Signer) (common.Hash, error) {
	call := ExecCall{Safe: safe, To: to, Data: data}
	if f.OnExec != nil {
		f.OnExec(call)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.FailFor[safe]; ok {
		return common.Hash{}, err
	}
	f.calls = append(f.calls, call)
	return crypto.Keccak256Hash(safe.Bytes(), to.Bytes(), data), nil
}

func (f *FakeTransactor) Calls() []ExecCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ExecCall, len(f.calls))
	copy(out, f.calls)
	return out
}

// TestSigner returns a throwaway signer.
func TestSigner() *transactor.Signer {
	key, err := crypto.GenerateKey()
	if err != nil {
		panic(err)
	}
	return transactor.NewSigner(key)
}

package staking

import (
	"context"
	"math/big"

	"github.com/OjusWiZard/triton-bot/pkg/contractCaller"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type StakingProgram struct {
	Name    string
	Address common.Address
	// Slots is used when maxNumServices cannot be read.
	Slots uint64
}

type ProgramSlots struct {
	Program   StakingProgram
	Total     uint64
	Staked    uint64
	Available int64
	Err       error
}

type SlotsReader struct {
	contractCaller contractCaller.IContractCaller
	logger         *zap.Logger
}

func NewSlotsReader(cc contractCaller.IContractCaller, l *zap.Logger) *SlotsReader {
	return &SlotsReader{
		contractCaller: cc,
		logger:         l,
	}
}

// AvailableSlots reports the free slots of every program. A program that cannot be read is
// returned with Err set rather than failing the whole report.
func (s *SlotsReader) AvailableSlots(ctx context.Context, programs []StakingProgram) []ProgramSlots {
	results := make([]ProgramSlots, 0, len(programs))
	for _, p := range programs {
		results = append(results, s.programSlots(ctx, p))
	}
	return results
}

func (s *SlotsReader) programSlots(ctx context.Context, p StakingProgram) ProgramSlots {
	out := ProgramSlots{Program: p, Total: p.Slots}

	maxServices, err := s.contractCaller.GetMaxNumServices(ctx, p.Address)
	if err != nil {
		s.logger.Sugar().Warnw("Failed to read maxNumServices, using configured slots",
			zap.String("program", p.Name),
			zap.Uint64("slots", p.Slots),
			zap.Error(err),
		)
	} else if maxServices.IsUint64() {
		out.Total = maxServices.Uint64()
	}

	ids, err := s.contractCaller.GetServiceIds(ctx, p.Address)
	if err != nil {
		out.Err = errors.Wrapf(err, "failed to read staked services of %s", p.Name)
		return out
	}
	out.Staked = uint64(len(ids))
	out.Available = new(big.Int).Sub(new(big.Int).SetUint64(out.Total), new(big.Int).SetUint64(out.Staked)).Int64()
	return out
}

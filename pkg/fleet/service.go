package fleet

import (
	"os"
	"sync"

	"github.com/OjusWiZard/triton-bot/internal/config"
	"github.com/OjusWiZard/triton-bot/pkg/lifecycle"
	"github.com/OjusWiZard/triton-bot/pkg/transactor"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// Service is one staked service managed by the fleet. All fields are fixed after load
// except the lazily resolved activity checker and mech addresses.
type Service struct {
	Name              string
	ServiceId         uint64
	Safe              common.Address
	Agent             common.Address
	StakingContract   common.Address
	WithdrawalAddress common.Address
	MasterEoa         common.Address
	MasterSafe        common.Address
	Signer            *transactor.Signer

	mu              sync.Mutex
	activityChecker common.Address
	mech            common.Address
}

func optionalAddress(value string) common.Address {
	if value == "" {
		return common.Address{}
	}
	return common.HexToAddress(value)
}

// NewServiceFromConfig builds a service from its config entry. The agent key, when
// agent_key_env is set, is read from that environment variable; a service without a key
// can still be monitored but not claimed or withdrawn.
func NewServiceFromConfig(sc config.ServiceConfig, lookupEnv func(string) (string, bool)) (*Service, error) {
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}
	svc := &Service{
		Name:              sc.Name,
		ServiceId:         sc.ServiceId,
		Safe:              common.HexToAddress(sc.SafeAddress),
		Agent:             common.HexToAddress(sc.AgentAddress),
		StakingContract:   common.HexToAddress(sc.StakingContractAddress),
		WithdrawalAddress: optionalAddress(sc.WithdrawalAddress),
		MasterEoa:         optionalAddress(sc.MasterEoaAddress),
		MasterSafe:        optionalAddress(sc.MasterSafeAddress),
		activityChecker:   optionalAddress(sc.ActivityCheckerAddress),
	}

	if sc.AgentKeyEnv != "" {
		hexKey, ok := lookupEnv(sc.AgentKeyEnv)
		if !ok || hexKey == "" {
			return nil, errors.Errorf("service %s: env var %s is not set", sc.Name, sc.AgentKeyEnv)
		}
		signer, err := transactor.SignerFromHex(hexKey)
		if err != nil {
			return nil, errors.Wrapf(err, "service %s", sc.Name)
		}
		if signer.Address != svc.Agent {
			return nil, errors.Errorf("service %s: key in %s is for %s, not the agent %s",
				sc.Name, sc.AgentKeyEnv, signer.Address.Hex(), svc.Agent.Hex())
		}
		svc.Signer = signer
	}
	return svc, nil
}

func (s *Service) cachedActivityChecker() (common.Address, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activityChecker, s.activityChecker != (common.Address{})
}

func (s *Service) setActivityChecker(a common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activityChecker = a
}

func (s *Service) cachedMech() (common.Address, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mech, s.mech != (common.Address{})
}

func (s *Service) setMech(a common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mech = a
}

func (s *Service) Target() lifecycle.Target {
	return lifecycle.Target{
		Name:              s.Name,
		ServiceId:         s.ServiceId,
		Safe:              s.Safe,
		StakingContract:   s.StakingContract,
		WithdrawalAddress: s.WithdrawalAddress,
		Signer:            s.Signer,
	}
}

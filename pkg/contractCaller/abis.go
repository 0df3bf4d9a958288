package contractCaller

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Only the fragments the orchestrator calls are included.

var StakingTokenAbi = `[
	{"type":"function","name":"mapServiceInfo","stateMutability":"view","inputs":[{"name":"","type":"uint256"}],"outputs":[{"name":"multisig","type":"address"},{"name":"owner","type":"address"},{"name":"tsStart","type":"uint256"},{"name":"reward","type":"uint256"},{"name":"inactivity","type":"uint256"}]},
	{"type":"function","name":"getServiceInfo","stateMutability":"view","inputs":[{"name":"serviceId","type":"uint256"}],"outputs":[{"name":"sInfo","type":"tuple","components":[{"name":"multisig","type":"address"},{"name":"owner","type":"address"},{"name":"nonces","type":"uint256[]"},{"name":"tsStart","type":"uint256"},{"name":"reward","type":"uint256"},{"name":"inactivity","type":"uint256"}]}]},
	{"type":"function","name":"livenessPeriod","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"tsCheckpoint","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"activityChecker","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"getServiceIds","stateMutability":"view","inputs":[],"outputs":[{"name":"serviceIds","type":"uint256[]"}]},
	{"type":"function","name":"maxNumServices","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"claim","stateMutability":"nonpayable","inputs":[{"name":"serviceId","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]}
]`

var RequesterActivityCheckerAbi = `[
	{"type":"function","name":"mechMarketplace","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"livenessRatio","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`

var MechActivityCheckerAbi = `[
	{"type":"function","name":"agentMech","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"livenessRatio","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`

var MechAbi = `[
	{"type":"function","name":"getRequestsCount","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"requestsCount","type":"uint256"}]}
]`

var Erc20Abi = `[
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"transfer","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

var GnosisSafeAbi = `[
	{"type":"function","name":"nonce","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getTransactionHash","stateMutability":"view","inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"},{"name":"data","type":"bytes"},{"name":"operation","type":"uint8"},{"name":"safeTxGas","type":"uint256"},{"name":"baseGas","type":"uint256"},{"name":"gasPrice","type":"uint256"},{"name":"gasToken","type":"address"},{"name":"refundReceiver","type":"address"},{"name":"_nonce","type":"uint256"}],"outputs":[{"name":"","type":"bytes32"}]},
	{"type":"function","name":"execTransaction","stateMutability":"payable","inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"},{"name":"data","type":"bytes"},{"name":"operation","type":"uint8"},{"name":"safeTxGas","type":"uint256"},{"name":"baseGas","type":"uint256"},{"name":"gasPrice","type":"uint256"},{"name":"gasToken","type":"address"},{"name":"refundReceiver","type":"address"},{"name":"signatures","type":"bytes"}],"outputs":[{"name":"success","type":"bool"}]}
]`

// Abis holds the parsed ABIs shared by the callers and the transactor.
type Abis struct {
	StakingToken             abi.ABI
	RequesterActivityChecker abi.ABI
	MechActivityChecker      abi.ABI
	Mech                     abi.ABI
	Erc20                    abi.ABI
	GnosisSafe               abi.ABI
}

type abiSource struct {
	json string
	dest *abi.ABI
}

func ParseAbis() (*Abis, error) {
	out := &Abis{}
	sources := []abiSource{
		{StakingTokenAbi, &out.StakingToken},
		{RequesterActivityCheckerAbi, &out.RequesterActivityChecker},
		{MechActivityCheckerAbi, &out.MechActivityChecker},
		{MechAbi, &out.Mech},
		{Erc20Abi, &out.Erc20},
		{GnosisSafeAbi, &out.GnosisSafe},
	}
	for _, s := range sources {
		parsed, err := abi.JSON(strings.NewReader(s.json))
		if err != nil {
			return nil, err
		}
		*s.dest = parsed
	}
	return out, nil
}

// MustParseAbis panics on malformed ABI definitions; they are compile-time constants.
func MustParseAbis() *Abis {
	a, err := ParseAbis()
	if err != nil {
		panic(err)
	}
	return a
}

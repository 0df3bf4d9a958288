package contractCaller

import (
	"regexp"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/pkg/errors"
)

var executionRevertedRegex = regexp.MustCompile(`execution reverted`)

func IsExecutionRevertedError(err error) bool {
	return err != nil && executionRevertedRegex.MatchString(err.Error())
}

func IsNoCodeError(err error) bool {
	return errors.Is(err, bind.ErrNoCode)
}

// IsContractError reports whether the contract itself answered with a failure, as opposed
// to a transport or timeout error that may go away on a later call.
func IsContractError(err error) bool {
	return IsExecutionRevertedError(err) || IsNoCodeError(err)
}

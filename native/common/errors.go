package common

import "errors"

// Error kinds returned by the financial engines. Engines wrap these with
// context; callers match them with errors.Is.
var (
	ErrInsufficientLiquidity  = errors.New("insufficient liquidity")
	ErrInsufficientOutput     = errors.New("insufficient output amount")
	ErrExcessiveOutputAmount  = errors.New("excessive output amount")
	ErrInsufficientCollateral = errors.New("insufficient collateral")
	ErrExceedsMaxUtilization  = errors.New("exceeds max utilization")
	ErrInvalidTrancheOrder    = errors.New("invalid tranche order")
	ErrInvalidConfiguration   = errors.New("invalid configuration")
	ErrArithmeticOverflow     = errors.New("arithmetic overflow")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrInsufficientLiquidity, "InsufficientLiquidity"},
	{ErrInsufficientOutput, "InsufficientOutput"},
	{ErrExcessiveOutputAmount, "ExcessiveOutputAmount"},
	{ErrInsufficientCollateral, "InsufficientCollateral"},
	{ErrExceedsMaxUtilization, "ExceedsMaxUtilization"},
	{ErrInvalidTrancheOrder, "InvalidTrancheOrder"},
	{ErrInvalidConfiguration, "InvalidConfiguration"},
	{ErrArithmeticOverflow, "ArithmeticOverflow"},
	{ErrModulePaused, "ModulePaused"},
}

// Kind returns the stable name of the error kind wrapped by err. Errors that
// carry no known kind report "Internal"; a nil error reports "".
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "Internal"
}

package domain

import (
	"math/big"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// SweepPlan is the outcome of sizing a sweep against the observed balance and gas price.
// All values are in wei.
type SweepPlan struct {
	Balance     *big.Int
	GasPrice    *big.Int
	GasLimit    uint64
	GasCost     *big.Int
	MinRequired *big.Int
	// Amount is Balance - GasCost and may be zero or negative.
	Amount     *big.Int
	Sufficient bool
}

// Transferable reports whether the plan leaves a positive amount after the gas reserve.
func (p SweepPlan) Transferable() bool {
	return p.Amount != nil && p.Amount.Sign() > 0
}

// PlanSweep computes gasCost = gasLimit*gasPrice and minRequired = gasCost+margin with 256-bit
// checked arithmetic. The balance is sufficient when balance >= minRequired.
func PlanSweep(balance, gasPrice *big.Int, gasLimit uint64, margin *big.Int) (SweepPlan, error) {
	if balance == nil || gasPrice == nil || margin == nil {
		return SweepPlan{}, errors.New("balance, gas price and margin are required")
	}
	if balance.Sign() < 0 || gasPrice.Sign() < 0 || margin.Sign() < 0 {
		return SweepPlan{}, errors.New("balance, gas price and margin must not be negative")
	}

	bal, overflow := uint256.FromBig(balance)
	if overflow {
		return SweepPlan{}, errors.Errorf("balance %s overflows 256 bits", balance)
	}
	price, overflow := uint256.FromBig(gasPrice)
	if overflow {
		return SweepPlan{}, errors.Errorf("gas price %s overflows 256 bits", gasPrice)
	}
	reserve, overflow := uint256.FromBig(margin)
	if overflow {
		return SweepPlan{}, errors.Errorf("safety margin %s overflows 256 bits", margin)
	}

	gasCost, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(gasLimit), price)
	if overflow {
		return SweepPlan{}, errors.Errorf("gas cost overflows 256 bits (limit %d, price %s)", gasLimit, gasPrice)
	}
	minRequired, overflow := new(uint256.Int).AddOverflow(gasCost, reserve)
	if overflow {
		return SweepPlan{}, errors.New("minimum required balance overflows 256 bits")
	}

	gasCostBig := gasCost.ToBig()

	return SweepPlan{
		Balance:     new(big.Int).Set(balance),
		GasPrice:    new(big.Int).Set(gasPrice),
		GasLimit:    gasLimit,
		GasCost:     gasCostBig,
		MinRequired: minRequired.ToBig(),
		Amount:      new(big.Int).Sub(balance, gasCostBig),
		Sufficient:  !bal.Lt(minRequired),
	}, nil
}

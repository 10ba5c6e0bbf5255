package domain

import (
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

// SweepRecord is a completed transfer from the monitored account to the safe account.
type SweepRecord struct {
	ID        string    `json:"id"`
	Amount    *big.Int  `json:"amount"`
	TxHash    string    `json:"tx_hash"`
	GasCost   *big.Int  `json:"gas_cost"`
	GasPrice  *big.Int  `json:"gas_price"`
	Nonce     uint64    `json:"nonce"`
	Timestamp time.Time `json:"ts"`
}

// NewSweepRecord builds a record from an executed plan.
func NewSweepRecord(plan SweepPlan, txHash string, nonce uint64, at time.Time) SweepRecord {
	return SweepRecord{
		ID:        uuid.New().String(),
		Amount:    new(big.Int).Set(plan.Amount),
		TxHash:    txHash,
		GasCost:   new(big.Int).Set(plan.GasCost),
		GasPrice:  new(big.Int).Set(plan.GasPrice),
		Nonce:     nonce,
		Timestamp: at,
	}
}

// String returns a human-readable string representation.
func (r SweepRecord) String() string {
	return fmt.Sprintf("sweep %s amount: %s ETH gas: %s ETH tx: %s", r.ID, FormatEther(r.Amount), FormatEther(r.GasCost), r.TxHash)
}

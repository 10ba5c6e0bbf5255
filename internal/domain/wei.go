package domain

import (
	"math/big"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	etherDecimals = 18
	gweiDecimals  = 9
)

// FormatEther renders a wei amount in ether. Only used at the logging and notification boundary.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -etherDecimals).String()
}

// FormatGwei renders a wei amount in gwei.
func FormatGwei(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -gweiDecimals).String()
}

// EtherFloat is a lossy conversion for gauges.
func EtherFloat(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	f, _ := decimal.NewFromBigInt(wei, -etherDecimals).Float64()
	return f
}

// ParseEther converts a decimal ether amount (e.g. "0.001") into wei.
func ParseEther(s string) (*big.Int, error) {
	return parseUnits(s, etherDecimals)
}

// ParseGwei converts a decimal gwei amount (e.g. "20") into wei.
func ParseGwei(s string) (*big.Int, error) {
	return parseUnits(s, gweiDecimals)
}

func parseUnits(s string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, errors.Wrapf(err, "invalid amount %q", s)
	}
	if d.IsNegative() {
		return nil, errors.Errorf("amount %q must not be negative", s)
	}

	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, errors.Errorf("amount %q has more than %d decimal places", s, decimals)
	}

	return scaled.BigInt(), nil
}

package domain

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEther(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "0.001", want: "1000000000000000"},
		{in: "0.0001", want: "100000000000000"},
		{in: "1", want: "1000000000000000000"},
		{in: " 2.5 ", want: "2500000000000000000"},
		{in: "0", want: "0"},
		{in: "0.0000000000000000001", wantErr: true},
		{in: "-1", wantErr: true},
		{in: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseEther(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestParseGwei(t *testing.T) {
	got, err := ParseGwei("20")
	require.NoError(t, err)
	assert.Equal(t, "20000000000", got.String())

	got, err = ParseGwei("1.5")
	require.NoError(t, err)
	assert.Equal(t, "1500000000", got.String())
}

func TestFormatEther(t *testing.T) {
	assert.Equal(t, "0.00058", FormatEther(wei("580000000000000")))
	assert.Equal(t, "1", FormatEther(wei("1000000000000000000")))
	assert.Equal(t, "0", FormatEther(nil))
	assert.Equal(t, "20", FormatGwei(big.NewInt(20_000_000_000)))
	assert.InDelta(t, 0.001, EtherFloat(wei("1000000000000000")), 1e-12)
}

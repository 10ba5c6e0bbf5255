package domain

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestKindError(t *testing.T) {
	cause := errors.New("connection refused")
	err := NetworkError(cause, "get balance")

	assert.True(t, errors.Is(err, ErrNetwork))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, errors.Is(err, ErrTransfer))
	assert.Equal(t, "network error: get balance: connection refused", err.Error())

	cfgErr := ConfigurationError("missing %s", "RPC_URL")
	assert.True(t, errors.Is(cfgErr, ErrConfiguration))
	assert.Contains(t, cfgErr.Error(), "missing RPC_URL")
}

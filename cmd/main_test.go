package main

import (
	"context"
	"errors"
	"net"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vadiminshakov/sweepguard/internal/metrics"
)

func TestSuperviseRecoversPanic(t *testing.T) {
	err := supervise("sweeper", func() error { panic("nil map") })()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sweeper panicked: nil map")
}

func TestSupervisePassesErrors(t *testing.T) {
	want := errors.New("bind: address in use")
	assert.ErrorIs(t, supervise("metrics", func() error { return want })(), want)
	assert.NoError(t, supervise("metrics", func() error { return nil })())
}

func TestSignalError(t *testing.T) {
	var err error = signalError{sig: syscall.SIGTERM}
	var sigErr signalError
	require.True(t, errors.As(err, &sigErr))
	assert.Equal(t, "received terminated", err.Error())
}

func TestServeMetricsFailureIsNotFatal(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, ln.Close())

	core, logs := observer.New(zap.ErrorLevel)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := metrics.NewServer(ln.Addr().String(), metrics.New(), nil)
	assert.NoError(t, serveMetrics(ctx, srv, ln, zap.New(core)))
	assert.Equal(t, 1, logs.FilterMessage("Metrics endpoint stopped").Len())
}

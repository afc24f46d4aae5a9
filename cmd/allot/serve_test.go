// SPDX-License-Identifier: Apache-2.0

package main

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestListen_ReleasesHTTPWhenGRPCFails(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	// Reserve a free port for HTTP, then hand it back so listen can bind it.
	spare, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	httpAddr := spare.Addr().String()
	require.NoError(t, spare.Close())

	_, _, err = listen(httpAddr, busy.Addr().String())
	require.Error(t, err)
	require.Contains(t, err.Error(), "listen grpc")

	again, err := net.Listen("tcp", httpAddr)
	require.NoError(t, err, "http listener must be closed after a gRPC listen failure")
	again.Close()
}

func TestListen_HTTPOnly(t *testing.T) {
	httpLn, grpcLn, err := listen("127.0.0.1:0", "")
	require.NoError(t, err)
	defer httpLn.Close()
	require.Nil(t, grpcLn)
}

func TestServeCommand_FailsFastOnBusyGRPCAddr(t *testing.T) {
	ref := writeReference(t)
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	done := make(chan error, 1)
	go func() {
		_, _, err := runCLI(t, "", "serve", "--reference", ref,
			"--set", "server.http_addr=127.0.0.1:0",
			"--set", "server.grpc_addr="+busy.Addr().String())
		done <- err
	}()

	select {
	case err := <-done:
		require.Error(t, err)
		require.Contains(t, err.Error(), "listen grpc")
	case <-time.After(5 * time.Second):
		t.Fatal("serve kept running after the gRPC address could not be bound")
	}
}

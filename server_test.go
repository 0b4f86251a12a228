// The MIT License
//
// Copyright (c) 2017-2018 by the author(s)
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package vna

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startTestServer spins up a Server on an OS-assigned loopback port backed
// by a mock register bus/channel, returning the dialable address and a
// context cancel func that tears it down.
func startTestServer(t *testing.T) (addr string, stop func()) {
	t.Helper()

	bus := NewMockRegisterBus()
	probe := NewPLConfig(bus)
	ch := NewMockChannel(probe.Enabled)
	thermal := &MockThermalSensor{CelsiusValue: 36.5}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr = ln.Addr().String()
	ln.Close()

	srv := NewServer(bus, ch, thermal, addr, 4)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	// Give the listener a moment to bind before a client dials it.
	require.Eventually(t, func() bool {
		conn, derr := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if derr != nil {
			return false
		}
		conn.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond)

	return addr, func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("server did not shut down after context cancel")
		}
	}
}

func TestServerQueueSizeAndCPUTemp(t *testing.T) {
	addr, stop := startTestServer(t)
	defer stop()

	c, err := Dial(addr)
	require.NoError(t, err)
	defer c.Close()

	n, err := c.QueueSize()
	require.NoError(t, err)
	assert.Equal(t, uint16(0), n)

	temp, err := c.CPUTemp()
	require.NoError(t, err)
	assert.InDelta(t, 36.5, temp, 1e-9)
}

func TestServerRejectsDataRequestBeforeRunPL(t *testing.T) {
	addr, stop := startTestServer(t)
	defer stop()

	c, err := Dial(addr)
	require.NoError(t, err)
	defer c.Close()

	data, err := c.RequestData()
	assert.Nil(t, data)
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestServerConfigWriteRejectedWhilePLEnabled(t *testing.T) {
	addr, stop := startTestServer(t)
	defer stop()

	c, err := Dial(addr)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.SendPointsPerTransfer(4))
	require.NoError(t, c.SendDeadTime(1e-4))
	require.NoError(t, c.SendTriggerLength(5e-6))
	require.NoError(t, c.SendTPP(1e-3))

	require.NoError(t, c.StartAcquisition())

	err = c.SendDeadTime(2e-4)
	assert.Error(t, err)

	require.NoError(t, c.StopAcquisition())
}

func TestServerStartStopAcquisitionProducesData(t *testing.T) {
	addr, stop := startTestServer(t)
	defer stop()

	c, err := Dial(addr)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.SendPointsPerTransfer(4))
	require.NoError(t, c.SendDeadTime(1e-4))
	require.NoError(t, c.SendTriggerLength(5e-6))
	require.NoError(t, c.SendTPP(1e-3))
	require.NoError(t, c.SendTriggerConfig(0, true, true, true))
	require.NoError(t, c.SendTriggerConfig(1, true, false, true))

	require.NoError(t, c.StartAcquisition())

	var data []float64
	require.Eventually(t, func() bool {
		d, derr := c.RequestData()
		if derr != nil || len(d) == 0 {
			return false
		}
		data = d
		return true
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 0, len(data)%4)

	require.NoError(t, c.StopAcquisition())
}

func TestServerStopServerClosesConnectionGracefully(t *testing.T) {
	addr, stop := startTestServer(t)
	defer stop()

	c, err := Dial(addr)
	require.NoError(t, err)

	require.NoError(t, c.StopServer())

	_, err = c.QueueSize()
	assert.Error(t, err)
}

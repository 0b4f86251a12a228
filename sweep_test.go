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
	"testing"
	"time"

	"github.com/steelelab-vna/slvna/mockgen"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freqSweepConfig(t *testing.T, addr string) *SweepConfig {
	t.Helper()
	cfg := NewSweepConfig(addr, mockgen.New("rf"), mockgen.New("lo"), nil)
	require.NoError(t, cfg.SetFreqSweep(FreqSweepParams{
		StartFreq: 1e9, StopFreq: 1.1e9, Power: -10,
		Timestep: 5e-3, Points: 5,
	}))
	return cfg
}

func TestSweepRunProducesFullResultAgainstLoopbackServer(t *testing.T) {
	addr, stop := startTestServer(t)
	defer stop()

	cfg := freqSweepConfig(t, addr)
	result, err := NewSweep(cfg).Run()
	require.NoError(t, err)

	assert.Len(t, result.Frequency, 5)
	assert.Len(t, result.S21Mag, 5)
	assert.False(t, cfg.Running())
	assert.Equal(t, "rf", result.Config.GenRFName)
	assert.Equal(t, "lo", result.Config.GenLOName)
}

func TestSweepRunClearsRunningLatchEvenOnMidSweepFailure(t *testing.T) {
	// No server is listening at this address, so Dial inside
	// fsweepUnchecked fails after the running latch is set; the deferred
	// clear must still fire.
	cfg := freqSweepConfig(t, "127.0.0.1:1")

	_, err := NewSweep(cfg).Run()
	assert.Error(t, err)
	assert.False(t, cfg.Running())
}

func TestSweepRunRejectsUnimplementedModes(t *testing.T) {
	addr, stop := startTestServer(t)
	defer stop()

	cfg := freqSweepConfig(t, addr)
	cfg.SweepMode = ModePower
	cfg.StartPower, cfg.StopPower, cfg.Freq = -10, -5, 1e9

	_, err := NewSweep(cfg).Run()
	assert.ErrorIs(t, err, ErrNotImplemented)
}

func TestSweepSetupTestRestoresConfigAfterRunning(t *testing.T) {
	addr, stop := startTestServer(t)
	defer stop()

	cfg := freqSweepConfig(t, addr)
	origPoints, origTimestep := cfg.Points, cfg.Timestep

	err := NewSweep(cfg).SetupTest()
	require.NoError(t, err)

	assert.Equal(t, origPoints, cfg.Points)
	assert.Equal(t, origTimestep, cfg.Timestep)
	assert.False(t, cfg.Running())
}

// TestSweepRunRejectsConcurrentInvocationOnSameOrchestrator starts one
// Run against a generator whose ping never returns on its own, then fires
// a second, concurrent Run on the same config and checks it fails fast
// with ErrConfig -- before either call has connected to a generator.
func TestSweepRunRejectsConcurrentInvocationOnSameOrchestrator(t *testing.T) {
	rf := fullCapabilityGenerator("rf")
	lo := fullCapabilityGenerator("lo")
	rf.pingGate = make(chan struct{})

	cfg := NewSweepConfig("127.0.0.1:1", rf, lo, nil)
	cfg.StartFreq, cfg.StopFreq, cfg.Power, cfg.Points, cfg.Timestep = 1e9, 2e9, -10, 5, 1e-3
	cfg.SweepMode = ModeFrequency

	firstDone := make(chan error, 1)
	go func() {
		_, err := NewSweep(cfg).Run()
		firstDone <- err
	}()

	require.Eventually(t, cfg.Running, time.Second, time.Millisecond)

	_, err := NewSweep(cfg).Run()
	assert.ErrorIs(t, err, ErrConfig)
	assert.False(t, rf.connectCalled, "second Run must fail before touching any generator")
	assert.False(t, lo.connectCalled, "second Run must fail before touching any generator")

	close(rf.pingGate)
	require.Error(t, <-firstDone) // unreachable SoC address; only the latch behavior is under test
}

func TestSweepStartGetStopAreUnimplemented(t *testing.T) {
	cfg := freqSweepConfig(t, "127.0.0.1:1")
	sw := NewSweep(cfg)

	assert.ErrorIs(t, sw.Start(), ErrNotImplemented)
	_, err := sw.Get()
	assert.ErrorIs(t, err, ErrNotImplemented)
	assert.ErrorIs(t, sw.Stop(), ErrNotImplemented)
}

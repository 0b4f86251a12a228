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
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type stubGenerator struct {
	name string
	caps GeneratorCapabilities
	rtt  float64

	// pingGate, when non-nil, blocks NetworkPingRTT until it is closed --
	// used to hold a readyChecks call open mid-flight in concurrency tests.
	pingGate chan struct{}
	connectCalled bool
}

func (g *stubGenerator) Name() string { return g.name }
func (g *stubGenerator) Connect() error {
	g.connectCalled = true
	return nil
}
func (g *stubGenerator) Disconnect() error { return nil }
func (g *stubGenerator) Capabilities() (GeneratorCapabilities, error) { return g.caps, nil }
func (g *stubGenerator) ContinuousWave(freqHz, powerDBm float64) error { return nil }
func (g *stubGenerator) FSweep(startHz, stopHz, powerDBm float64, points int, timestep float64) error {
	return nil
}
func (g *stubGenerator) PSweep(freqHz, startDBm, stopDBm float64, points int, timestep float64) error {
	return nil
}
func (g *stubGenerator) ConfigureTrigger(spec TriggerSpec) error { return nil }
func (g *stubGenerator) ConfigureRefOsc(external bool) error     { return nil }
func (g *stubGenerator) RFOn() error                             { return nil }
func (g *stubGenerator) RFOff() error                            { return nil }
func (g *stubGenerator) Query(param string) (string, error)      { return "", nil }
func (g *stubGenerator) NetworkPingRTT() (string, float64, error) {
	if g.pingGate != nil {
		<-g.pingGate
	}
	return "1.2.3.4", g.rtt, nil
}

func fullCapabilityGenerator(name string) *stubGenerator {
	return &stubGenerator{
		name: name,
		caps: GeneratorCapabilities{
			ContinuousWave: true, FSweep: true, PSweep: true,
			DeadTime: 1e-4,
			Trigger:  TriggerSpec{Length: 5e-6, Polarity: true, First: true, Remaining: true},
		},
	}
}

func readySweepConfig() *SweepConfig {
	rf := fullCapabilityGenerator("rf")
	lo := fullCapabilityGenerator("lo")
	cfg := NewSweepConfig("127.0.0.1:2024", rf, lo, nil)
	cfg.StartFreq, cfg.StopFreq, cfg.Power, cfg.Points, cfg.Timestep = 1e9, 2e9, -10, 11, 1e-3
	cfg.SweepMode = ModeFrequency
	return cfg
}

func TestSweepConfigSetRejectsProtectedAndUnknownFields(t *testing.T) {
	cfg := readySweepConfig()
	assert.ErrorIs(t, cfg.Set("_running", 1), ErrConfig)
	assert.ErrorIs(t, cfg.Set("NotAField", 1), ErrConfig)
	assert.NoError(t, cfg.Set("Points", 42))
	assert.Equal(t, 42, cfg.Points)
}

func TestSweepConfigReadyChecksRejectsWhileRunning(t *testing.T) {
	cfg := readySweepConfig()
	cfg.running = true
	assert.ErrorIs(t, cfg.readyChecks(false), ErrConfig)
}

func TestSweepConfigReadyChecksRequiresModeFields(t *testing.T) {
	cfg := NewSweepConfig("127.0.0.1:2024", fullCapabilityGenerator("rf"), fullCapabilityGenerator("lo"), nil)
	cfg.SweepMode = ModeFrequency
	cfg.Timestep = 1e-3
	err := cfg.readyChecks(false)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestSweepConfigReadyChecksCapabilityMismatch(t *testing.T) {
	cfg := readySweepConfig()
	rf := cfg.GenRF.(*stubGenerator)
	rf.caps.FSweep = false

	err := cfg.readyChecks(false)
	assert.ErrorIs(t, err, ErrNotImplemented)
}

func TestSweepConfigReadyChecksHighPingIsWarningNotFailureByDefault(t *testing.T) {
	cfg := readySweepConfig()
	cfg.GenRF.(*stubGenerator).rtt = HighPingRTT * 2
	cfg.GenClk = fullCapabilityGenerator("clk")

	assert.NoError(t, cfg.readyChecks(false))
	cfg.endRun() // release the latch a successful check leaves held, as Run's defer would
	assert.ErrorIs(t, cfg.readyChecks(true), ErrReadiness)
}

func TestSweepConfigReadyChecksSucceeds(t *testing.T) {
	cfg := readySweepConfig()
	require.NoError(t, cfg.readyChecks(false))
	defer cfg.endRun()
	assert.InDelta(t, 1e-4, cfg.deadTime, 1e-12)
	assert.InDelta(t, 5e-6, cfg.trigLen, 1e-12)
	assert.True(t, cfg.Running())
}

func TestResolveTimestepExactlyOneOf(t *testing.T) {
	_, err := resolveTimestep(0, 0)
	assert.ErrorIs(t, err, ErrConfig)

	_, err = resolveTimestep(1e-3, 1e3)
	assert.ErrorIs(t, err, ErrConfig)

	ts, err := resolveTimestep(0, 1e3)
	require.NoError(t, err)
	assert.InDelta(t, 1e-3, ts, 1e-12)
}

func TestSetFreqSweepAdjustsStopFrequencyToFitStep(t *testing.T) {
	cfg := NewSweepConfig("127.0.0.1:2024", fullCapabilityGenerator("rf"), fullCapabilityGenerator("lo"), nil)
	err := cfg.SetFreqSweep(FreqSweepParams{
		StartFreq: 1e9, StopFreq: 1.95e9, Power: 0,
		Timestep: 1e-3, FreqStep: 1e8,
	})
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Points)
	assert.InDelta(t, 2e9, cfg.StopFreq, 1)
}

// TestSweepConfigSetProtectedFieldProperty checks, for any key starting
// with an underscore, that Set always rejects it regardless of the
// remainder of the key.
func TestSweepConfigSetProtectedFieldProperty(t *testing.T) {
	cfg := readySweepConfig()
	rapid.Check(t, func(tg *rapid.T) {
		suffix := rapid.StringMatching(`[A-Za-z0-9]{0,12}`).Draw(tg, "suffix")
		key := fmt.Sprintf("_%s", suffix)
		assert.ErrorIs(t, cfg.Set(key, 1), ErrConfig)
	})
}

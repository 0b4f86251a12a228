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
//
// Description:
//
// This file defines SweepConfig, the semantic measurement configuration,
// its generic and typed setters, and the readiness checks run before a
// sweep starts.

package vna

import (
	"fmt"
	"sync"
	"time"
)

// SweepMode selects which kind of sweep a SweepConfig describes. Only
// ModeFrequency has an executable Run path in this core; the others are
// configuration-surface only, per the non-goals.
type SweepMode string

const (
	ModeFrequency      SweepMode = "frequency"
	ModePower          SweepMode = "power"
	ModeContinuousWave SweepMode = "continuouswave"
	ModeTime           SweepMode = "time"
	Mode2D             SweepMode = "2d"
	ModeTable          SweepMode = "table"
)

// HighPingRTT is the round-trip-time threshold (seconds) at or above which a
// generator's control link is considered unreliable.
const HighPingRTT = 20e-3

// SweepConfig is the semantic configuration of a measurement: which
// generators to use, over what range, and how densely sampled.
type SweepConfig struct {
	AddrSoc string // "host:port"
	GenRF   Generator
	GenLO   Generator
	GenClk  Generator // optional; nil means an external clock is assumed

	SweepMode SweepMode

	StartFreq, StopFreq float64 // Hz
	Freq                float64 // Hz, used by non-frequency modes

	Power                float64 // dBm
	StartPower, StopPower float64 // dBm

	Points      int
	PowerPoints int
	Timestep    float64 // seconds

	IFreq        float64 // Hz
	LOPower      float64 // dBm
	SoCClkFreq   float64 // Hz
	SoCClkPower  float64 // dBm

	runMu   sync.Mutex
	running bool

	rfCap, loCap     GeneratorCapabilities
	deadTime, trigLen float64
}

// NewSweepConfig returns a SweepConfig with the reference implementation's
// defaults applied.
func NewSweepConfig(addrSoc string, genRF, genLO, genClk Generator) *SweepConfig {
	return &SweepConfig{
		AddrSoc:     addrSoc,
		GenRF:       genRF,
		GenLO:       genLO,
		GenClk:      genClk,
		IFreq:       7.8125e6,
		LOPower:     23.0,
		SoCClkFreq:  125e6,
		SoCClkPower: 10.0,
	}
}

// Running reports whether a sweep is currently executing on this config.
func (c *SweepConfig) Running() bool {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	return c.running
}

// beginRun atomically claims the running latch, failing if a sweep is
// already in flight on this config. The claim must be released with
// endRun exactly once, by whichever caller successfully claimed it.
func (c *SweepConfig) beginRun() error {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.running {
		return fmt.Errorf("%w: a sweep is already running", ErrConfig)
	}
	c.running = true
	return nil
}

// endRun releases the running latch claimed by beginRun.
func (c *SweepConfig) endRun() {
	c.runMu.Lock()
	c.running = false
	c.runMu.Unlock()
}

// settableFields lists the exported configuration fields Set may mutate by
// name.
var settableFields = map[string]bool{
	"StartFreq": true, "StopFreq": true, "Freq": true,
	"Power": true, "StartPower": true, "StopPower": true,
	"Points": true, "PowerPoints": true, "Timestep": true,
	"IFreq": true, "LOPower": true, "SoCClkFreq": true, "SoCClkPower": true,
}

// Set assigns a single named field generically, rejecting any key
// beginning with "_" (the testable property that protected, underscore-
// prefixed names can never be set this way) and any key that is not a
// recognised field.
func (c *SweepConfig) Set(key string, value float64) error {
	if len(key) > 0 && key[0] == '_' {
		return fmt.Errorf("%w: cannot set protected field %q", ErrConfig, key)
	}
	if !settableFields[key] {
		return fmt.Errorf("%w: unknown field %q", ErrConfig, key)
	}
	switch key {
	case "StartFreq":
		c.StartFreq = value
	case "StopFreq":
		c.StopFreq = value
	case "Freq":
		c.Freq = value
	case "Power":
		c.Power = value
	case "StartPower":
		c.StartPower = value
	case "StopPower":
		c.StopPower = value
	case "Points":
		c.Points = int(value)
	case "PowerPoints":
		c.PowerPoints = int(value)
	case "Timestep":
		c.Timestep = value
	case "IFreq":
		c.IFreq = value
	case "LOPower":
		c.LOPower = value
	case "SoCClkFreq":
		c.SoCClkFreq = value
	case "SoCClkPower":
		c.SoCClkPower = value
	}
	return nil
}

// FreqSweepParams configures SetFreqSweep. Exactly one of Timestep/IFBW,
// and exactly one of FreqStep/Points/Time, must be set (non-zero).
type FreqSweepParams struct {
	StartFreq, StopFreq, Power float64
	Timestep, IFBW             float64
	FreqStep                   float64
	Points                     int
	Time                       float64
}

// SetFreqSweep configures a frequency sweep, resolving the
// mutually-exclusive timestep/bandwidth and points/step/time parameter
// groups the way the reference configuration object does.
func (c *SweepConfig) SetFreqSweep(p FreqSweepParams) error {
	c.StartFreq = p.StartFreq
	c.StopFreq = p.StopFreq
	c.Power = p.Power
	c.SweepMode = ModeFrequency

	ts, err := resolveTimestep(p.Timestep, p.IFBW)
	if err != nil {
		return err
	}
	c.Timestep = ts

	n := 0
	switch {
	case p.FreqStep != 0 && p.Points == 0 && p.Time == 0:
		pointsInRange := (p.StopFreq - p.StartFreq) / p.FreqStep
		n = int(pointsInRange)
		if float64(n) != pointsInRange {
			n++
			Log(LOG_WARN, "changing stop frequency to fit frequency step evenly")
			c.StopFreq = c.StartFreq + float64(n)*p.FreqStep
		}
	case p.FreqStep == 0 && p.Points != 0 && p.Time == 0:
		n = p.Points
	case p.FreqStep == 0 && p.Points == 0 && p.Time != 0:
		n = int(p.Time/ts + 0.5)
	default:
		return fmt.Errorf("%w: specify exactly one of freqstep, points, time", ErrConfig)
	}
	c.Points = n
	return nil
}

// PowerSweepParams configures SetPowerSweep.
type PowerSweepParams struct {
	Freq, StartPower, StopPower float64
	Timestep, IFBW              float64
	Points                      int
	Time                        float64
}

// SetPowerSweep configures a power sweep. The configuration surface is
// fully supported even though Run has no executable path for ModePower,
// per the non-goals.
func (c *SweepConfig) SetPowerSweep(p PowerSweepParams) error {
	c.Freq = p.Freq
	c.StartPower = p.StartPower
	c.StopPower = p.StopPower
	c.SweepMode = ModePower

	ts, err := resolveTimestep(p.Timestep, p.IFBW)
	if err != nil {
		return err
	}
	c.Timestep = ts

	switch {
	case p.Points != 0 && p.Time == 0:
		c.Points = p.Points
	case p.Points == 0 && p.Time != 0:
		c.Points = int(p.Time/ts + 0.5)
	default:
		return fmt.Errorf("%w: specify exactly one of points, time", ErrConfig)
	}
	return nil
}

// ContinuousWaveParams configures SetContinuousWave.
type ContinuousWaveParams struct {
	Freq, Power    float64
	Timestep, IFBW float64
	Points         int
	Time           float64
}

// SetContinuousWave configures a fixed-frequency capture. Like power
// sweeps, this mode's execution path is out of scope for this core.
func (c *SweepConfig) SetContinuousWave(p ContinuousWaveParams) error {
	c.Freq = p.Freq
	c.Power = p.Power
	c.SweepMode = ModeContinuousWave

	ts, err := resolveTimestep(p.Timestep, p.IFBW)
	if err != nil {
		return err
	}
	c.Timestep = ts

	switch {
	case p.Points != 0 && p.Time == 0:
		c.Points = p.Points
	case p.Points == 0 && p.Time != 0:
		c.Points = int(p.Time/ts + 0.5)
	default:
		return fmt.Errorf("%w: specify exactly one of points, time", ErrConfig)
	}
	return nil
}

func resolveTimestep(timestep, ifbw float64) (float64, error) {
	switch {
	case timestep != 0 && ifbw == 0:
		return timestep, nil
	case timestep == 0 && ifbw != 0:
		return 1 / ifbw, nil
	default:
		return 0, fmt.Errorf("%w: specify exactly one of timestep, ifbw", ErrConfig)
	}
}

// ConfigSnapshot is a point-in-time record of a SweepConfig's fields, for
// attaching to saved results. It deliberately omits the cached generator
// capability records and the running latch.
type ConfigSnapshot struct {
	AddrSoc               string
	GenRFName, GenLOName  string
	GenClkName            string
	SweepMode             SweepMode
	StartFreq, StopFreq   float64
	Freq                  float64
	Power                 float64
	StartPower, StopPower float64
	Points, PowerPoints   int
	Timestep              float64
	IFreq, LOPower        float64
	SoCClkFreq, SoCClkPower float64
	Time                  time.Time
}

// GetConfigData returns a snapshot of the current configuration.
func (c *SweepConfig) GetConfigData() ConfigSnapshot {
	s := ConfigSnapshot{
		AddrSoc: c.AddrSoc, SweepMode: c.SweepMode,
		StartFreq: c.StartFreq, StopFreq: c.StopFreq, Freq: c.Freq,
		Power: c.Power, StartPower: c.StartPower, StopPower: c.StopPower,
		Points: c.Points, PowerPoints: c.PowerPoints, Timestep: c.Timestep,
		IFreq: c.IFreq, LOPower: c.LOPower,
		SoCClkFreq: c.SoCClkFreq, SoCClkPower: c.SoCClkPower,
		Time: time.Now(),
	}
	if c.GenRF != nil {
		s.GenRFName = c.GenRF.Name()
	}
	if c.GenLO != nil {
		s.GenLOName = c.GenLO.Name()
	}
	if c.GenClk != nil {
		s.GenClkName = c.GenClk.Name()
	}
	return s
}

// SetConfigData is intentionally unimplemented: re-hydrating a config from
// a snapshot requires a policy decision about which cached temporaries to
// discard that is left open by the design this implements.
func (c *SweepConfig) SetConfigData(ConfigSnapshot) error {
	return ErrNotImplemented
}

// readyChecks validates that c is ready to run, caching generator
// capability records and the derived dead-time/trigger-length bounds on
// success. failOnWarning escalates conditions that would otherwise only be
// logged (no clock generator, high ping) into hard failures.
//
// On success the running latch is left claimed for the caller, which must
// release it with endRun once the sweep (or SetupTest run) completes. The
// latch is claimed before any other check runs, and under the same lock as
// the check itself, so two concurrent callers can never both observe it
// free: the loser fails here, before touching any generator.
func (c *SweepConfig) readyChecks(failOnWarning bool) error {
	if err := c.beginRun(); err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			c.endRun()
		}
	}()

	if c.GenRF == nil || c.GenLO == nil || c.AddrSoc == "" || c.Timestep == 0 {
		return fmt.Errorf("%w: addr_soc, gen_rf, gen_lo and timestep are required", ErrConfig)
	}

	switch c.SweepMode {
	case ModeFrequency:
		if c.StartFreq == 0 || c.StopFreq == 0 || c.Points == 0 || c.Power == 0 {
			return fmt.Errorf("%w: frequency sweep requires start_freq, stop_freq, points, power", ErrConfig)
		}
	case ModeContinuousWave:
		if c.Freq == 0 || c.Points == 0 || c.Power == 0 {
			return fmt.Errorf("%w: continuous wave requires freq, points, power", ErrConfig)
		}
	case ModeTime:
		if c.Freq == 0 || c.Points == 0 {
			return fmt.Errorf("%w: time mode requires freq, points", ErrConfig)
		}
	case ModePower:
		if c.StartPower == 0 || c.StopPower == 0 || c.Points == 0 || c.Freq == 0 {
			return fmt.Errorf("%w: power sweep requires start_power, stop_power, points, freq", ErrConfig)
		}
	case Mode2D:
		if c.StartFreq == 0 || c.StopFreq == 0 || c.Points == 0 || c.StartPower == 0 || c.StopPower == 0 || c.PowerPoints == 0 {
			return fmt.Errorf("%w: 2d sweep requires the frequency and power sweep ranges plus power_points", ErrConfig)
		}
	default:
		return fmt.Errorf("%w: mode %q not implemented", ErrNotImplemented, c.SweepMode)
	}

	if c.GenClk == nil {
		if failOnWarning {
			return fmt.Errorf("%w: clock generator not specified", ErrReadiness)
		}
		Log(LOG_WARN, "clock generator not specified, assuming an external clock source")
	}

	for _, gen := range []Generator{c.GenRF, c.GenLO, c.GenClk} {
		if gen == nil {
			continue
		}
		_, rtt, err := gen.NetworkPingRTT()
		if err != nil {
			return fmt.Errorf("%w: pinging %s: %v", ErrReadiness, gen.Name(), err)
		}
		if rtt >= HighPingRTT {
			if failOnWarning {
				return fmt.Errorf("%w: high ping round trip time (%v s) to %s", ErrReadiness, rtt, gen.Name())
			}
			Log(LOG_WARN, "high ping round trip time (%v s) to %s; control could be unreliable", rtt, gen.Name())
		}
	}

	// Unlike the reference implementation (whose capability-key selection
	// is an unconditional no-op), frequency and power sweeps each require
	// their own, distinct capability.
	switch c.SweepMode {
	case ModeFrequency:
		if err := requireCapability(c.GenRF, "fsweep", func(cp GeneratorCapabilities) bool { return cp.FSweep }); err != nil {
			return err
		}
		if err := requireCapability(c.GenLO, "fsweep", func(cp GeneratorCapabilities) bool { return cp.FSweep }); err != nil {
			return err
		}
	case ModePower:
		if err := requireCapability(c.GenRF, "psweep", func(cp GeneratorCapabilities) bool { return cp.PSweep }); err != nil {
			return err
		}
		if err := requireCapability(c.GenLO, "psweep", func(cp GeneratorCapabilities) bool { return cp.PSweep }); err != nil {
			return err
		}
	default:
		Log(LOG_WARN, "readiness checks for sweep mode %q are not implemented", c.SweepMode)
	}

	if c.GenClk != nil {
		if err := requireCapability(c.GenClk, "continuous_wave", func(cp GeneratorCapabilities) bool { return cp.ContinuousWave }); err != nil {
			return err
		}
	}

	rfCap, err := c.GenRF.Capabilities()
	if err != nil {
		return fmt.Errorf("%w: querying RF generator capabilities: %v", ErrReadiness, err)
	}
	loCap, err := c.GenLO.Capabilities()
	if err != nil {
		return fmt.Errorf("%w: querying LO generator capabilities: %v", ErrReadiness, err)
	}
	c.rfCap, c.loCap = rfCap, loCap

	c.deadTime = maxFloat(rfCap.DeadTime, loCap.DeadTime)
	c.trigLen = maxFloat(rfCap.Trigger.Length, loCap.Trigger.Length)

	if c.Timestep <= c.deadTime {
		return fmt.Errorf("%w: timestep %v must exceed dead time %v", ErrConfig, c.Timestep, c.deadTime)
	}
	if c.Timestep <= c.trigLen {
		return fmt.Errorf("%w: timestep %v must exceed trigger pulse length %v", ErrConfig, c.Timestep, c.trigLen)
	}
	committed = true
	return nil
}

func requireCapability(gen Generator, name string, has func(GeneratorCapabilities) bool) error {
	capRec, err := gen.Capabilities()
	if err != nil {
		return fmt.Errorf("%w: querying %s capabilities: %v", ErrReadiness, gen.Name(), err)
	}
	if !has(capRec) {
		return fmt.Errorf("%w: generator %s cannot perform %s", ErrNotImplemented, gen.Name(), name)
	}
	return nil
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

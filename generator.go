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
// This file defines the generator capability interface: the polymorphic
// contract an orchestrator uses to drive any RF signal generator, real or
// mocked, without caring which variant it is talking to.

package vna

// TriggerSpec describes a generator's trigger pulse characteristics.
type TriggerSpec struct {
	Length    float64 // seconds
	Polarity  bool    // true = active-high
	First     bool    // fires once at sweep start
	Remaining bool    // fires once per point
}

// GeneratorCapabilities reports what a generator can do and its timing
// constants, queried once at readiness-check time and cached.
type GeneratorCapabilities struct {
	ContinuousWave bool
	FSweep         bool
	PSweep         bool
	DeadTime       float64 // seconds
	Trigger        TriggerSpec
}

// Generator is the capability interface every generator variant
// (real SCPI driver, remote proxy, or mock) implements. Connect/Disconnect
// are the scoped-acquisition boundary: callers must always pair a
// successful Connect with a deferred Disconnect.
type Generator interface {
	// Name identifies the generator for logging.
	Name() string

	// Connect opens the underlying session (network or otherwise).
	Connect() error

	// Disconnect releases the underlying session. It must be safe to call
	// even if Connect failed or was never called.
	Disconnect() error

	// Capabilities reports what this generator variant can do.
	Capabilities() (GeneratorCapabilities, error)

	// ContinuousWave configures a fixed-frequency, fixed-power output.
	ContinuousWave(freqHz, powerDBm float64) error

	// FSweep configures a frequency sweep from start to stop over the
	// given number of points, dwelling timestep seconds per point.
	FSweep(startHz, stopHz, powerDBm float64, points int, timestep float64) error

	// PSweep configures a power sweep at a fixed frequency.
	PSweep(freqHz, startDBm, stopDBm float64, points int, timestep float64) error

	// ConfigureTrigger arms the generator's trigger output.
	ConfigureTrigger(spec TriggerSpec) error

	// ConfigureRefOsc selects the generator's reference oscillator source.
	ConfigureRefOsc(external bool) error

	// RFOn/RFOff enable/disable the generator's RF output.
	RFOn() error
	RFOff() error

	// Query issues an arbitrary instrument query and returns the raw
	// response.
	Query(param string) (string, error)

	// NetworkPingRTT returns the resolved address and the measured
	// round-trip time to it, used by readiness checks to flag
	// unreliable control links.
	NetworkPingRTT() (string, float64, error)
}

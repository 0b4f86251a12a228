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
// Package mockgen implements an in-memory vna.Generator that talks to
// nothing, for exercising sweeps without real RF hardware attached.

package mockgen

import (
	"fmt"

	"github.com/steelelab-vna/slvna"
)

// Generator is an ideal, fully-capable generator with near-zero dead
// time. It records the last mode it was configured for so Query can
// answer something plausible.
type Generator struct {
	name      string
	connected bool
	lastMode  string
}

// New returns a mock generator identified by name.
func New(name string) *Generator {
	return &Generator{name: name}
}

func (g *Generator) Name() string { return g.name }

func (g *Generator) Connect() error {
	g.connected = true
	return nil
}

func (g *Generator) Disconnect() error {
	g.connected = false
	return nil
}

func (g *Generator) Capabilities() (vna.GeneratorCapabilities, error) {
	return vna.GeneratorCapabilities{
		ContinuousWave: true,
		FSweep:         true,
		PSweep:         true,
		DeadTime:       1e-12,
		Trigger: vna.TriggerSpec{
			Length:    10e-6,
			Polarity:  true,
			First:     true,
			Remaining: true,
		},
	}, nil
}

func (g *Generator) ContinuousWave(freqHz, powerDBm float64) error {
	if !g.connected {
		return fmt.Errorf("mockgen %s: not connected", g.name)
	}
	g.lastMode = "continuouswave"
	return nil
}

func (g *Generator) FSweep(startHz, stopHz, powerDBm float64, points int, timestep float64) error {
	if !g.connected {
		return fmt.Errorf("mockgen %s: not connected", g.name)
	}
	g.lastMode = "fsweep"
	return nil
}

func (g *Generator) PSweep(freqHz, startDBm, stopDBm float64, points int, timestep float64) error {
	if !g.connected {
		return fmt.Errorf("mockgen %s: not connected", g.name)
	}
	g.lastMode = "psweep"
	return nil
}

func (g *Generator) ConfigureTrigger(spec vna.TriggerSpec) error { return nil }

func (g *Generator) ConfigureRefOsc(external bool) error { return nil }

func (g *Generator) RFOn() error {
	if !g.connected {
		return fmt.Errorf("mockgen %s: not connected", g.name)
	}
	return nil
}

func (g *Generator) RFOff() error { return nil }

func (g *Generator) Query(param string) (string, error) {
	if param == "*IDN?" {
		return "mocked_generator", nil
	}
	return "-1", nil
}

func (g *Generator) NetworkPingRTT() (string, float64, error) {
	return "1.2.3.4", 1e-12, nil
}

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
// Package remotegen drives a generator indirectly through a remote
// agent process, reached over a ZeroMQ REQ/REP JSON control channel.
// This lets a generator that an agent machine can reach, but the
// orchestrator cannot, still be used by a sweep.

package remotegen

import (
	"encoding/json"
	"fmt"

	zmq "github.com/pebbe/zmq4"

	"github.com/steelelab-vna/slvna"
)

// call is the envelope sent to the remote agent for every operation.
type call struct {
	Op   string          `json:"op"`
	Args json.RawMessage `json:"args,omitempty"`
}

// reply is the envelope the agent sends back.
type reply struct {
	Status string          `json:"status"` // "ack" or "nack"
	Reason string          `json:"reason,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

// Generator proxies Generator operations to a remote agent bound to
// name over ZeroMQ REQ/REP.
type Generator struct {
	name string
	addr string
	sock *zmq.Socket
}

// New returns a remote generator proxy identified by name, reachable at
// addr ("host:port" of the agent's REP socket).
func New(name, addr string) *Generator {
	return &Generator{name: name, addr: addr}
}

func (g *Generator) Name() string { return g.name }

func (g *Generator) Connect() error {
	sock, err := zmq.NewSocket(zmq.REQ)
	if err != nil {
		return fmt.Errorf("remotegen %s: creating socket: %w", g.name, err)
	}
	if err := sock.Connect(fmt.Sprintf("tcp://%s", g.addr)); err != nil {
		return fmt.Errorf("remotegen %s: connecting: %w", g.name, err)
	}
	g.sock = sock
	return nil
}

func (g *Generator) Disconnect() error {
	if g.sock == nil {
		return nil
	}
	err := g.sock.Close()
	g.sock = nil
	return err
}

func (g *Generator) Capabilities() (vna.GeneratorCapabilities, error) {
	var caps vna.GeneratorCapabilities
	if err := g.roundTrip("capabilities", nil, &caps); err != nil {
		return vna.GeneratorCapabilities{}, err
	}
	return caps, nil
}

func (g *Generator) ContinuousWave(freqHz, powerDBm float64) error {
	return g.roundTrip("continuous_wave", map[string]float64{"freq": freqHz, "power": powerDBm}, nil)
}

func (g *Generator) FSweep(startHz, stopHz, powerDBm float64, points int, timestep float64) error {
	return g.roundTrip("fsweep", map[string]float64{
		"start_freq": startHz, "stop_freq": stopHz, "power": powerDBm,
		"points": float64(points), "timestep": timestep,
	}, nil)
}

func (g *Generator) PSweep(freqHz, startDBm, stopDBm float64, points int, timestep float64) error {
	return g.roundTrip("psweep", map[string]float64{
		"freq": freqHz, "start_power": startDBm, "stop_power": stopDBm,
		"points": float64(points), "timestep": timestep,
	}, nil)
}

func (g *Generator) ConfigureTrigger(spec vna.TriggerSpec) error {
	return g.roundTrip("configure_trigger", spec, nil)
}

func (g *Generator) ConfigureRefOsc(external bool) error {
	return g.roundTrip("configure_ref_osc", map[string]bool{"external": external}, nil)
}

func (g *Generator) RFOn() error  { return g.roundTrip("rf_on", nil, nil) }
func (g *Generator) RFOff() error { return g.roundTrip("rf_off", nil, nil) }

func (g *Generator) Query(param string) (string, error) {
	var result string
	if err := g.roundTrip("query", map[string]string{"parameter": param}, &result); err != nil {
		return "", err
	}
	return result, nil
}

type pingResult struct {
	Address string  `json:"address"`
	RTT     float64 `json:"rtt"`
}

func (g *Generator) NetworkPingRTT() (string, float64, error) {
	var pr pingResult
	if err := g.roundTrip("network_ping_rtt", nil, &pr); err != nil {
		return "", 0, err
	}
	return pr.Address, pr.RTT, nil
}

// roundTrip marshals args, sends op as a JSON request, and waits for a
// response. On an "ack" reply, result is unmarshalled into out (if
// non-nil). On a "nack" reply, the agent's reason becomes the error.
func (g *Generator) roundTrip(op string, args interface{}, out interface{}) error {
	if g.sock == nil {
		return fmt.Errorf("remotegen %s: not connected", g.name)
	}

	var rawArgs json.RawMessage
	if args != nil {
		enc, err := json.Marshal(args)
		if err != nil {
			return fmt.Errorf("remotegen %s: encoding %s args: %w", g.name, op, err)
		}
		rawArgs = enc
	}

	req, err := json.Marshal(call{Op: op, Args: rawArgs})
	if err != nil {
		return fmt.Errorf("remotegen %s: encoding %s request: %w", g.name, op, err)
	}
	if _, err := g.sock.SendBytes(req, 0); err != nil {
		return fmt.Errorf("remotegen %s: sending %s: %w", g.name, op, err)
	}

	data, err := g.sock.RecvBytes(0)
	if err != nil {
		return fmt.Errorf("remotegen %s: receiving %s reply: %w", g.name, op, err)
	}

	var resp reply
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("remotegen %s: decoding %s reply: %w", g.name, op, err)
	}
	if resp.Status != "ack" {
		return fmt.Errorf("remotegen %s: agent rejected %s: %s", g.name, op, resp.Reason)
	}
	if out != nil && len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("remotegen %s: decoding %s result: %w", g.name, op, err)
		}
	}
	return nil
}
